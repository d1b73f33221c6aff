package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"gorm.io/gorm"
)

const (
	SyncRunStatusPending = "PENDING"
	SyncRunStatusRunning = "RUNNING"
	SyncRunStatusSuccess = "SUCCESS"
	SyncRunStatusPartial = "PARTIAL"
	SyncRunStatusFailed  = "FAILED"
)

// FcWatermark marks the last successfully synchronized point for one entity
// kind. One row per kind, rewritten whole only after a run completes.
type FcWatermark struct {
	ID                   int        `gorm:"primary_key" json:"id"`
	EntityKind           string     `gorm:"size:50;uniqueIndex;not null" json:"entity_kind"`
	LastSuccessfulSyncAt *time.Time `json:"last_successful_sync_at"`
	LastQueryEndDate     *time.Time `json:"last_query_end_date"`
	FinalSuccess         *bool      `gorm:"not null;default:false" json:"final_success"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type FcSyncRun struct {
	ID            int        `gorm:"primary_key" json:"id"`
	EntityKind    string     `gorm:"size:50;index;not null" json:"entity_kind"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	TriggeredBy   string     `gorm:"size:50" json:"triggered_by"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type FcSyncError struct {
	ID          int       `gorm:"primary_key" json:"id"`
	SyncRunId   int       `gorm:"index;not null" json:"sync_run_id"`
	EntityKind  string    `gorm:"size:50;not null" json:"entity_kind"`
	ExternalId  string    `gorm:"size:100" json:"external_id"`
	ErrorCode   string    `gorm:"size:50" json:"error_code"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload_json"`
	Retryable   bool      `json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func FindFcWatermark(ctx context.Context, entityKind string) (*FcWatermark, error) {
	var wm FcWatermark
	err := config.GetDB().WithContext(ctx).
		Where("entity_kind = ?", entityKind).Take(&wm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wm, nil
}

func SaveFcWatermark(ctx context.Context, wm *FcWatermark) error {
	return config.GetDB().WithContext(ctx).Save(wm).Error
}

func ListFcWatermarks(ctx context.Context) ([]*FcWatermark, error) {
	var results []*FcWatermark
	err := config.GetDB().WithContext(ctx).Order("entity_kind").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func CreateFcSyncRun(ctx context.Context, run *FcSyncRun) error {
	return config.GetDB().WithContext(ctx).Create(run).Error
}

func UpdateFcSyncRun(ctx context.Context, run *FcSyncRun, updates map[string]interface{}) error {
	return config.GetDB().WithContext(ctx).Model(run).Updates(updates).Error
}

func CreateFcSyncError(ctx context.Context, errRec *FcSyncError) error {
	return config.GetDB().WithContext(ctx).Create(errRec).Error
}

func ListFcSyncRuns(ctx context.Context, entityKind string, limit int) ([]*FcSyncRun, error) {
	db := config.GetDB().WithContext(ctx).Order("id DESC").Limit(limit)
	if entityKind != "" {
		db = db.Where("entity_kind = ?", entityKind)
	}
	var results []*FcSyncRun
	if err := db.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func GetFcSyncRun(ctx context.Context, id int) (*FcSyncRun, []*FcSyncError, error) {
	var run FcSyncRun
	err := config.GetDB().WithContext(ctx).Where("id = ?", id).Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var errs []*FcSyncError
	if err := config.GetDB().WithContext(ctx).
		Where("sync_run_id = ?", id).Order("id").Find(&errs).Error; err != nil {
		return nil, nil, err
	}
	return &run, errs, nil
}
