package registry

import (
	"context"
	"fmt"

	"github.com/swipe-markets/backend/internal/models"
	"gorm.io/gorm"
)

// RunLog records one audit row per batch sync.
type RunLog interface {
	Record(ctx context.Context, run *models.SyncRun) error
	Recent(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// NewRunLog returns the gorm-backed log, or a no-op log without a database.
func NewRunLog(db *gorm.DB) RunLog {
	if db == nil {
		return NopRunLog{}
	}
	return &GormRunLog{db: db}
}

type GormRunLog struct {
	db *gorm.DB
}

func (l *GormRunLog) Record(ctx context.Context, run *models.SyncRun) error {
	if run.Summary == "" {
		run.Summary = "{}"
	}
	if err := l.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

func (l *GormRunLog) Recent(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.SyncRun
	err := l.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&runs).Error
	return runs, err
}

// NopRunLog discards runs.
type NopRunLog struct{}

func (NopRunLog) Record(context.Context, *models.SyncRun) error { return nil }

func (NopRunLog) Recent(context.Context, int) ([]models.SyncRun, error) {
	return []models.SyncRun{}, nil
}
