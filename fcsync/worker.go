package fcsync

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"bitbucket.org/hisdatafocus/lmis_backend/models"
	"bitbucket.org/hisdatafocus/lmis_backend/utils"
	"github.com/sirupsen/logrus"
)

const fetchPageSize = 100

type PageFetcher interface {
	FetchPage(ctx context.Context, kind EntityKind, path string, params url.Values) (*Page, error)
}

type WatermarkStore interface {
	Get(ctx context.Context, kind EntityKind) (*models.FcWatermark, error)
	Save(ctx context.Context, wm *models.FcWatermark) error
}

type RunStore interface {
	CreateRun(ctx context.Context, run *models.FcSyncRun) error
	FinishRun(ctx context.Context, run *models.FcSyncRun, updates map[string]interface{}) error
	CreateError(ctx context.Context, errRec *models.FcSyncError) error
}

// RunSummary is what one kind's run reports back to scheduling/alerting.
type RunSummary struct {
	RunId         int        `json:"run_id"`
	Kind          EntityKind `json:"kind"`
	Status        string     `json:"status"`
	Processed     int        `json:"processed"`
	ErrorCount    int        `json:"error_count"`
	FinalSuccess  bool       `json:"final_success"`
	LastUpdatedAt *time.Time `json:"last_updated_at"`
}

// Worker drives one entity kind through fetch -> reconcile -> watermark. It
// never panics a run away: every outcome lands in an FcSyncRun row.
type Worker struct {
	Fetch      PageFetcher
	Registry   *Registry
	Watermarks WatermarkStore
	Runs       RunStore
	Logger     *logrus.Logger
	Now        func() time.Time
}

func NewWorker(fetch PageFetcher, registry *Registry, logger *logrus.Logger) *Worker {
	return &Worker{
		Fetch:      fetch,
		Registry:   registry,
		Watermarks: gormWatermarkStore{},
		Runs:       gormRunStore{},
		Logger:     logger,
		Now:        time.Now,
	}
}

// RunKind executes one full cycle for kind. overrideDate, when non-nil,
// replaces the computed window start. The watermark is only written after the
// reconciler produced a result; fetch failures and empty pulls leave it
// untouched.
func (w *Worker) RunKind(ctx context.Context, kind EntityKind, overrideDate *time.Time, triggeredBy string) (*RunSummary, error) {
	entry, err := w.Registry.Lookup(kind)
	if err != nil {
		return nil, err
	}

	now := w.Now()
	startedAt := now
	run := &models.FcSyncRun{
		EntityKind:  string(kind),
		Status:      models.SyncRunStatusRunning,
		StartedAt:   &startedAt,
		TriggeredBy: triggeredBy,
	}
	if err := w.Runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	wm, err := w.Watermarks.Get(ctx, kind)
	if err != nil {
		return w.finishFailed(ctx, run, kind, err)
	}

	windowStart, windowEnd, params := queryWindow(entry.Window, wm, overrideDate, now)

	items, err := w.fetchAllPages(ctx, entry, params)
	if err != nil {
		return w.finishFailed(ctx, run, kind, err)
	}

	result, err := entry.Reconciler.Reconcile(ctx, items, windowStart)
	if err != nil {
		return w.finishFailed(ctx, run, kind, err)
	}

	summary := &RunSummary{RunId: run.ID, Kind: kind, Status: models.SyncRunStatusSuccess, FinalSuccess: true}
	if result == nil {
		// Empty pull: a no-op that preserves the last good watermark.
		w.finishRun(ctx, run, summary, startedAt)
		cacheRunSummary(kind, summary)
		return summary, nil
	}

	for _, itemErr := range result.Errors {
		_ = w.Runs.CreateError(ctx, &models.FcSyncError{
			SyncRunId:   run.ID,
			EntityKind:  string(kind),
			ExternalId:  itemErr.ExternalId,
			ErrorCode:   itemErr.Code,
			Message:     itemErr.Message,
			PayloadJSON: itemErr.Payload,
			Retryable:   itemErr.Retryable,
		})
	}

	if wm == nil {
		wm = &models.FcWatermark{EntityKind: string(kind)}
	}
	if result.LastUpdatedAt != nil {
		wm.LastSuccessfulSyncAt = result.LastUpdatedAt
	}
	wm.LastQueryEndDate = &windowEnd
	if result.FinalSuccess {
		wm.FinalSuccess = utils.NewTrue()
	} else {
		wm.FinalSuccess = utils.NewFalse()
	}
	if err := w.Watermarks.Save(ctx, wm); err != nil {
		return w.finishFailed(ctx, run, kind, err)
	}

	summary.Processed = result.Processed
	summary.ErrorCount = len(result.Errors)
	summary.FinalSuccess = result.FinalSuccess
	summary.LastUpdatedAt = result.LastUpdatedAt
	summary.Status = classifyRun(result.Processed, len(result.Errors))
	w.finishRun(ctx, run, summary, startedAt)
	cacheRunSummary(kind, summary)

	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"module":    "fcsync",
			"kind":      kind,
			"status":    summary.Status,
			"processed": summary.Processed,
			"errors":    summary.ErrorCount,
		}).Info("sync run finished")
	}
	return summary, nil
}

// fetchAllPages accumulates every page of the window into one batch before
// any reconciliation starts.
func (w *Worker) fetchAllPages(ctx context.Context, entry registryEntry, params url.Values) ([]json.RawMessage, error) {
	var items []json.RawMessage
	pageNumber := 1
	for {
		params.Set("page", strconv.Itoa(pageNumber))
		params.Set("pageSize", strconv.Itoa(fetchPageSize))
		page, err := w.Fetch.FetchPage(ctx, entry.Kind, entry.Path, params)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		// Progress comes from the page we asked for, not the echoed header;
		// a server that misreports PageNumber must not loop us.
		if len(page.Items) == 0 || pageNumber >= page.TotalPages {
			return items, nil
		}
		pageNumber++
	}
}

func (w *Worker) finishFailed(ctx context.Context, run *models.FcSyncRun, kind EntityKind, cause error) (*RunSummary, error) {
	finishedAt := w.Now()
	_ = w.Runs.FinishRun(ctx, run, map[string]interface{}{
		"status":      models.SyncRunStatusFailed,
		"finished_at": finishedAt,
		"duration_ms": finishedAt.Sub(*run.StartedAt).Milliseconds(),
		"error_count": 1,
	})
	_ = w.Runs.CreateError(ctx, &models.FcSyncError{
		SyncRunId:  run.ID,
		EntityKind: string(kind),
		ErrorCode:  "run_failed",
		Message:    cause.Error(),
		Retryable:  true,
	})
	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"module": "fcsync",
			"kind":   kind,
		}).Error("sync run failed: " + cause.Error())
	}
	summary := &RunSummary{RunId: run.ID, Kind: kind, Status: models.SyncRunStatusFailed, ErrorCount: 1}
	cacheRunSummary(kind, summary)
	return summary, cause
}

const runSummaryCacheTTL = 48 * time.Hour

func runSummaryCacheKey(kind EntityKind) string {
	return "fcsync:last_run:" + string(kind)
}

// cacheRunSummary keeps each kind's most recent outcome in Redis so status
// reads skip the run table. Best effort; a cold cache just means a miss.
func cacheRunSummary(kind EntityKind, summary *RunSummary) {
	_ = config.SetRedisObject(runSummaryCacheKey(kind), summary, runSummaryCacheTTL)
}

func (w *Worker) finishRun(ctx context.Context, run *models.FcSyncRun, summary *RunSummary, startedAt time.Time) {
	finishedAt := w.Now()
	_ = w.Runs.FinishRun(ctx, run, map[string]interface{}{
		"status":         summary.Status,
		"finished_at":    finishedAt,
		"duration_ms":    finishedAt.Sub(startedAt).Milliseconds(),
		"records_synced": summary.Processed,
		"error_count":    summary.ErrorCount,
	})
}

func classifyRun(processed, errorCount int) string {
	switch {
	case errorCount > 0 && processed == 0:
		return models.SyncRunStatusFailed
	case errorCount > 0:
		return models.SyncRunStatusPartial
	default:
		return models.SyncRunStatusSuccess
	}
}

// queryWindow computes the query bounds for one run. Order of precedence:
// explicit override date, then the stored watermark when it lags behind the
// default, then "yesterday" (daily kinds) or the current month (statistics).
func queryWindow(rule windowRule, wm *models.FcWatermark, override *time.Time, now time.Time) (time.Time, time.Time, url.Values) {
	params := url.Values{}

	if rule == windowMonthly {
		ref := now
		if override != nil {
			ref = *override
		}
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).Add(-time.Second)
		params.Set("period", utils.FormatFcMonthYear(ref))
		return start, end, params
	}

	yesterday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	start := yesterday
	if override != nil {
		start = time.Date(override.Year(), override.Month(), override.Day(), 0, 0, 0, 0, time.UTC)
	} else if wm != nil && wm.LastQueryEndDate != nil && wm.LastQueryEndDate.Before(yesterday) {
		// Missed cycles: resume from the watermark so the gap is covered.
		start = time.Date(wm.LastQueryEndDate.Year(), wm.LastQueryEndDate.Month(), wm.LastQueryEndDate.Day(), 0, 0, 0, 0, time.UTC)
	}
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	params.Set("date", utils.FormatFcDay(start))
	return start, end, params
}
