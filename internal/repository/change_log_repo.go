package repository

import (
	"context"

	"go-pricebook-sync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChangeLogRepository is append-only: there is no update or delete.
type ChangeLogRepository interface {
	Create(tx *gorm.DB, entry *model.ChangeLog) error
	FindByEntity(ctx context.Context, kind model.EntityType, entityID uuid.UUID) ([]model.ChangeLog, error)
	FindByRun(ctx context.Context, runID uuid.UUID) ([]model.ChangeLog, error)
	CountByRun(ctx context.Context, runID uuid.UUID) (int64, error)
}

type changeLogRepo struct {
	db *gorm.DB
}

func NewChangeLogRepo(db *gorm.DB) ChangeLogRepository {
	return &changeLogRepo{db}
}

func (r *changeLogRepo) Create(tx *gorm.DB, entry *model.ChangeLog) error {
	return tx.Create(entry).Error
}

func (r *changeLogRepo) FindByEntity(ctx context.Context, kind model.EntityType, entityID uuid.UUID) ([]model.ChangeLog, error) {
	var entries []model.ChangeLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", kind, entityID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *changeLogRepo) FindByRun(ctx context.Context, runID uuid.UUID) ([]model.ChangeLog, error) {
	var entries []model.ChangeLog
	err := r.db.WithContext(ctx).Where("sync_run_id = ?", runID).Order("created_at ASC").Find(&entries).Error
	return entries, err
}

func (r *changeLogRepo) CountByRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ChangeLog{}).Where("sync_run_id = ?", runID).Count(&n).Error
	return n, err
}
