package fcsync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"bitbucket.org/hisdatafocus/lmis_backend/models"
	"bitbucket.org/hisdatafocus/lmis_backend/utils"
	"github.com/gin-gonic/gin"
)

type TriggerSyncRequest struct {
	Kind string `json:"kind" binding:"required"`
	// Date overrides the computed window start, yyyy-MM-dd.
	Date string `json:"date"`
}

type WatermarkResponse struct {
	EntityKind           string      `json:"entityKind"`
	LastSuccessfulSyncAt *string     `json:"lastSuccessfulSyncAt"`
	LastQueryEndDate     *string     `json:"lastQueryEndDate"`
	FinalSuccess         bool        `json:"finalSuccess"`
	LastRun              *RunSummary `json:"lastRun,omitempty"`
}

type SyncRunResponse struct {
	ID            int     `json:"id"`
	EntityKind    string  `json:"entityKind"`
	Status        string  `json:"status"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type SyncErrorResponse struct {
	ID         int    `json:"id"`
	EntityKind string `json:"entityKind"`
	ExternalId string `json:"externalId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

// TriggerSyncHandler runs one kind synchronously and returns its summary.
// A kind already in flight answers 409.
func TriggerSyncHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		var overrideDate *time.Time
		if req.Date != "" {
			t, ok := utils.ParseFcTime(req.Date)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be yyyy-MM-dd"})
				return
			}
			overrideDate = &t
		}

		summary, err := scheduler.TriggerKind(c.Request.Context(), EntityKind(req.Kind), overrideDate, "api")
		if err != nil {
			switch {
			case errors.Is(err, ErrRunInFlight):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrKindDisabled):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// EnqueueSyncHandler accepts the same request body as TriggerSyncHandler but
// publishes a trigger message instead of running inline, so a worker instance
// picks the run up through the push endpoint.
func EnqueueSyncHandler(registry *Registry, publish func(ctx context.Context, kind EntityKind, date string, triggeredBy string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if _, err := registry.Lookup(EntityKind(req.Kind)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Date != "" {
			if _, ok := utils.ParseFcTime(req.Date); !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be yyyy-MM-dd"})
				return
			}
		}

		if err := publish(c.Request.Context(), EntityKind(req.Kind), req.Date, "api"); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"entityKind": req.Kind, "status": "queued"})
	}
}

// StatusHandler reports every kind's watermark.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		watermarks, err := models.ListFcWatermarks(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]WatermarkResponse, 0, len(watermarks))
		for _, wm := range watermarks {
			resp := WatermarkResponse{
				EntityKind:           wm.EntityKind,
				LastSuccessfulSyncAt: formatTime(wm.LastSuccessfulSyncAt),
				LastQueryEndDate:     formatTime(wm.LastQueryEndDate),
			}
			if wm.FinalSuccess != nil {
				resp.FinalSuccess = *wm.FinalSuccess
			}
			var lastRun RunSummary
			if found, err := config.GetRedisObject(runSummaryCacheKey(EntityKind(wm.EntityKind)), &lastRun); err == nil && found {
				resp.LastRun = &lastRun
			}
			out = append(out, resp)
		}
		c.JSON(http.StatusOK, gin.H{"watermarks": out})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		runs, err := models.ListFcSyncRuns(c.Request.Context(), c.Query("kind"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			out = append(out, runResponse(run))
		}
		c.JSON(http.StatusOK, gin.H{"items": out})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		run, errs, err := models.GetFcSyncRun(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		errOut := make([]SyncErrorResponse, 0, len(errs))
		for _, e := range errs {
			errOut = append(errOut, SyncErrorResponse{
				ID:         e.ID,
				EntityKind: e.EntityKind,
				ExternalId: e.ExternalId,
				Code:       e.ErrorCode,
				Message:    e.Message,
				Retryable:  e.Retryable,
			})
		}
		c.JSON(http.StatusOK, gin.H{"run": runResponse(run), "errors": errOut})
	}
}

func runResponse(run *models.FcSyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		EntityKind:    run.EntityKind,
		Status:        run.Status,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
		TriggeredBy:   run.TriggeredBy,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
