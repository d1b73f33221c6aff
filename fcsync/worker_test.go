package fcsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/models"
)

type fakeFetcher struct {
	pages      map[int]*Page
	err        error
	callParams []url.Values
}

func (f *fakeFetcher) FetchPage(ctx context.Context, kind EntityKind, path string, params url.Values) (*Page, error) {
	copied := url.Values{}
	for k, v := range params {
		copied[k] = append([]string(nil), v...)
	}
	f.callParams = append(f.callParams, copied)
	if f.err != nil {
		return nil, f.err
	}
	pageNumber := 1
	fmt.Sscanf(params.Get("page"), "%d", &pageNumber)
	if page, ok := f.pages[pageNumber]; ok {
		return page, nil
	}
	return &Page{Kind: kind, PageNumber: pageNumber, TotalPages: pageNumber}, nil
}

type fakeWatermarkStore struct {
	byKind map[EntityKind]*models.FcWatermark
	saves  int
}

func newFakeWatermarkStore() *fakeWatermarkStore {
	return &fakeWatermarkStore{byKind: map[EntityKind]*models.FcWatermark{}}
}

func (s *fakeWatermarkStore) Get(ctx context.Context, kind EntityKind) (*models.FcWatermark, error) {
	if wm, ok := s.byKind[kind]; ok {
		copied := *wm
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeWatermarkStore) Save(ctx context.Context, wm *models.FcWatermark) error {
	s.saves++
	copied := *wm
	s.byKind[EntityKind(wm.EntityKind)] = &copied
	return nil
}

type fakeRunStore struct {
	runs     []*models.FcSyncRun
	finishes []map[string]interface{}
	errRows  []*models.FcSyncError
}

func (s *fakeRunStore) CreateRun(ctx context.Context, run *models.FcSyncRun) error {
	run.ID = len(s.runs) + 1
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeRunStore) FinishRun(ctx context.Context, run *models.FcSyncRun, updates map[string]interface{}) error {
	s.finishes = append(s.finishes, updates)
	return nil
}

func (s *fakeRunStore) CreateError(ctx context.Context, errRec *models.FcSyncError) error {
	s.errRows = append(s.errRows, errRec)
	return nil
}

type fakeReconciler struct {
	result  *Result
	err     error
	batches [][]json.RawMessage
}

func (r *fakeReconciler) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	r.batches = append(r.batches, items)
	return r.result, r.err
}

func newTestWorker(fetch PageFetcher, rec Reconciler, rule windowRule) (*Worker, *fakeWatermarkStore, *fakeRunStore) {
	registry := NewRegistry()
	registry.Register(registryEntry{Kind: KindFacility, Path: "/facilities", Window: rule, Reconciler: rec})
	watermarks := newFakeWatermarkStore()
	runs := &fakeRunStore{}
	w := &Worker{
		Fetch:      fetch,
		Registry:   registry,
		Watermarks: watermarks,
		Runs:       runs,
		Now:        func() time.Time { return time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC) },
	}
	return w, watermarks, runs
}

func TestRunKindWritesWatermarkOnSuccess(t *testing.T) {
	lastUpdated := time.Date(2026, 8, 30, 18, 30, 0, 0, time.UTC)
	rec := &fakeReconciler{result: &Result{FinalSuccess: true, Processed: 3, LastUpdatedAt: &lastUpdated}}
	fetch := &fakeFetcher{pages: map[int]*Page{
		1: {Kind: KindFacility, Items: []json.RawMessage{[]byte(`{}`), []byte(`{}`), []byte(`{}`)}, PageNumber: 1, TotalPages: 1},
	}}
	w, watermarks, runs := newTestWorker(fetch, rec, windowDaily)

	summary, err := w.RunKind(context.Background(), KindFacility, nil, "manual")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Status != models.SyncRunStatusSuccess || summary.Processed != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	wm := watermarks.byKind[KindFacility]
	if wm == nil {
		t.Fatal("watermark not written")
	}
	if wm.LastSuccessfulSyncAt == nil || !wm.LastSuccessfulSyncAt.Equal(lastUpdated) {
		t.Fatalf("watermark sync time wrong: %+v", wm.LastSuccessfulSyncAt)
	}
	if wm.FinalSuccess == nil || !*wm.FinalSuccess {
		t.Fatal("watermark must record final success")
	}
	if len(runs.runs) != 1 || len(runs.finishes) != 1 {
		t.Fatalf("expected one finished run, got runs=%d finishes=%d", len(runs.runs), len(runs.finishes))
	}
}

func TestRunKindEmptyPullLeavesWatermarkAlone(t *testing.T) {
	rec := &fakeReconciler{result: nil}
	fetch := &fakeFetcher{pages: map[int]*Page{
		1: {Kind: KindFacility, PageNumber: 1, TotalPages: 1},
	}}
	w, watermarks, runs := newTestWorker(fetch, rec, windowDaily)

	previous := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	watermarks.byKind[KindFacility] = &models.FcWatermark{
		EntityKind:           string(KindFacility),
		LastSuccessfulSyncAt: &previous,
	}

	summary, err := w.RunKind(context.Background(), KindFacility, nil, "scheduler")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Status != models.SyncRunStatusSuccess {
		t.Fatalf("an empty pull is a successful no-op, got %s", summary.Status)
	}
	if watermarks.saves != 0 {
		t.Fatalf("empty pull must not rewrite the watermark, saw %d saves", watermarks.saves)
	}
	if !watermarks.byKind[KindFacility].LastSuccessfulSyncAt.Equal(previous) {
		t.Fatal("existing watermark was disturbed")
	}
	if len(runs.finishes) != 1 {
		t.Fatalf("the run row must still be closed, got %d finishes", len(runs.finishes))
	}
}

func TestRunKindFetchFailureRecordsFailedRun(t *testing.T) {
	rec := &fakeReconciler{}
	fetch := &fakeFetcher{err: fmt.Errorf("%w: kind=facility after 5 attempts", ErrFetchFailed)}
	w, watermarks, runs := newTestWorker(fetch, rec, windowDaily)

	summary, err := w.RunKind(context.Background(), KindFacility, nil, "scheduler")
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected the fetch failure back, got %v", err)
	}
	if summary.Status != models.SyncRunStatusFailed {
		t.Fatalf("expected a FAILED run, got %s", summary.Status)
	}
	if watermarks.saves != 0 {
		t.Fatal("a failed fetch must not move the watermark")
	}
	if len(runs.errRows) != 1 || runs.errRows[0].ErrorCode != "run_failed" {
		t.Fatalf("expected one run_failed error row, got %+v", runs.errRows)
	}
	if len(rec.batches) != 0 {
		t.Fatal("nothing may be reconciled after a failed fetch")
	}
}

func TestRunKindAccumulatesAllPages(t *testing.T) {
	rec := &fakeReconciler{result: &Result{FinalSuccess: true, Processed: 5}}
	fetch := &fakeFetcher{pages: map[int]*Page{
		1: {Kind: KindFacility, Items: []json.RawMessage{[]byte(`1`), []byte(`2`)}, PageNumber: 1, TotalPages: 3},
		2: {Kind: KindFacility, Items: []json.RawMessage{[]byte(`3`), []byte(`4`)}, PageNumber: 2, TotalPages: 3},
		3: {Kind: KindFacility, Items: []json.RawMessage{[]byte(`5`)}, PageNumber: 3, TotalPages: 3},
	}}
	w, _, _ := newTestWorker(fetch, rec, windowDaily)

	if _, err := w.RunKind(context.Background(), KindFacility, nil, "manual"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.batches) != 1 {
		t.Fatalf("the reconciler must see one combined batch, got %d", len(rec.batches))
	}
	if got := len(rec.batches[0]); got != 5 {
		t.Fatalf("expected 5 accumulated items, got %d", got)
	}
	if len(fetch.callParams) != 3 {
		t.Fatalf("expected 3 page fetches, got %d", len(fetch.callParams))
	}
}

func TestRunKindIgnoresMisreportedPageNumberHeader(t *testing.T) {
	rec := &fakeReconciler{result: &Result{FinalSuccess: true, Processed: 3}}
	// Page two echoes PageNumber 1. Pagination must advance from the page we
	// requested, not from the header, or this feed would be fetched forever.
	fetch := &fakeFetcher{pages: map[int]*Page{
		1: {Kind: KindFacility, Items: []json.RawMessage{[]byte(`1`), []byte(`2`)}, PageNumber: 1, TotalPages: 2},
		2: {Kind: KindFacility, Items: []json.RawMessage{[]byte(`3`)}, PageNumber: 1, TotalPages: 2},
	}}
	w, _, _ := newTestWorker(fetch, rec, windowDaily)

	if _, err := w.RunKind(context.Background(), KindFacility, nil, "manual"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fetch.callParams) != 2 {
		t.Fatalf("expected exactly 2 page fetches, got %d", len(fetch.callParams))
	}
	if got := len(rec.batches[0]); got != 3 {
		t.Fatalf("expected 3 items without duplicates, got %d", got)
	}
}

func TestRunKindItemErrorsLandInErrorRows(t *testing.T) {
	rec := &fakeReconciler{result: &Result{
		FinalSuccess: false,
		Processed:    1,
		Errors: []ItemError{
			{ExternalId: "F002", Code: "sync_failed", Message: "boom", Retryable: true},
		},
	}}
	fetch := &fakeFetcher{pages: map[int]*Page{
		1: {Kind: KindFacility, Items: []json.RawMessage{[]byte(`{}`), []byte(`{}`)}, PageNumber: 1, TotalPages: 1},
	}}
	w, watermarks, runs := newTestWorker(fetch, rec, windowDaily)

	summary, err := w.RunKind(context.Background(), KindFacility, nil, "manual")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Status != models.SyncRunStatusPartial {
		t.Fatalf("processed>0 with errors is a PARTIAL run, got %s", summary.Status)
	}
	if len(runs.errRows) != 1 || runs.errRows[0].ExternalId != "F002" {
		t.Fatalf("item error not persisted: %+v", runs.errRows)
	}
	wm := watermarks.byKind[KindFacility]
	if wm == nil || wm.FinalSuccess == nil || *wm.FinalSuccess {
		t.Fatal("the watermark must record that the run was not fully clean")
	}
}

func TestClassifyRun(t *testing.T) {
	cases := []struct {
		processed, errorCount int
		want                  string
	}{
		{processed: 10, errorCount: 0, want: models.SyncRunStatusSuccess},
		{processed: 0, errorCount: 0, want: models.SyncRunStatusSuccess},
		{processed: 8, errorCount: 2, want: models.SyncRunStatusPartial},
		{processed: 0, errorCount: 5, want: models.SyncRunStatusFailed},
	}
	for _, c := range cases {
		if got := classifyRun(c.processed, c.errorCount); got != c.want {
			t.Errorf("classifyRun(%d, %d) = %s, want %s", c.processed, c.errorCount, got, c.want)
		}
	}
}

func TestQueryWindowDailyDefaultsToYesterday(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	start, end, params := queryWindow(windowDaily, nil, nil, now)

	wantStart := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Fatalf("expected start %v, got %v", wantStart, start)
	}
	if !end.Equal(time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", end)
	}
	if got := params.Get("date"); got != "20260830" {
		t.Fatalf("expected date=20260830, got %q", got)
	}
}

func TestQueryWindowResumesFromLaggingWatermark(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	lagging := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	wm := &models.FcWatermark{LastQueryEndDate: &lagging}

	start, _, params := queryWindow(windowDaily, wm, nil, now)
	if !start.Equal(lagging) {
		t.Fatalf("expected the window to resume at %v, got %v", lagging, start)
	}
	if got := params.Get("date"); got != "20260825" {
		t.Fatalf("expected date=20260825, got %q", got)
	}
}

func TestQueryWindowOverrideBeatsWatermark(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	lagging := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	override := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	wm := &models.FcWatermark{LastQueryEndDate: &lagging}

	start, _, params := queryWindow(windowDaily, wm, &override, now)
	if !start.Equal(override) {
		t.Fatalf("expected the override to win, got %v", start)
	}
	if got := params.Get("date"); got != "20260701" {
		t.Fatalf("expected date=20260701, got %q", got)
	}
}

func TestQueryWindowMonthlyUsesPeriodParam(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	start, end, params := queryWindow(windowMonthly, nil, nil, now)

	if !start.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected the month start, got %v", start)
	}
	if end.Month() != time.August || end.Day() != 31 {
		t.Fatalf("expected the end of August, got %v", end)
	}
	if got := params.Get("period"); got != "08-2026" {
		t.Fatalf("expected period=08-2026, got %q", got)
	}
	if params.Get("date") != "" {
		t.Fatal("monthly kinds must not send a date parameter")
	}

	override := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	_, _, params = queryWindow(windowMonthly, nil, &override, now)
	if got := params.Get("period"); got != "05-2026" {
		t.Fatalf("expected overridden period=05-2026, got %q", got)
	}
}
