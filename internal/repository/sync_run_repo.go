package repository

import (
	"context"

	"go-pricebook-sync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error
	Update(ctx context.Context, run *model.SyncRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SyncRun, error)
	FindRecent(ctx context.Context, limit int) ([]model.SyncRun, error)
	FindLatest(ctx context.Context) (*model.SyncRun, error)
}

type syncRunRepo struct {
	db *gorm.DB
}

func NewSyncRunRepo(db *gorm.DB) SyncRunRepository {
	return &syncRunRepo{db}
}

func (r *syncRunRepo) Create(ctx context.Context, run *model.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *syncRunRepo) Update(ctx context.Context, run *model.SyncRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *syncRunRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.SyncRun, error) {
	var run model.SyncRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *syncRunRepo) FindRecent(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []model.SyncRun
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// FindLatest returns nil, nil when no run has been recorded yet.
func (r *syncRunRepo) FindLatest(ctx context.Context) (*model.SyncRun, error) {
	var runs []model.SyncRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(1).Find(&runs).Error; err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
