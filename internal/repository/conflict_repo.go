package repository

import (
	"context"
	"time"

	"go-pricebook-sync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConflictRepository interface {
	DB() *gorm.DB
	Create(tx *gorm.DB, conflict *model.SyncConflict) error
	Save(tx *gorm.DB, conflict *model.SyncConflict) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SyncConflict, error)
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.SyncConflict, error)
	MarkResolved(tx *gorm.DB, id uuid.UUID, status model.ConflictStatus, strategy model.ResolutionStrategy, resolvedBy string, at time.Time) (bool, error)
	FindUnresolvedByEntity(tx *gorm.DB, kind model.EntityType, entityID uuid.UUID) (*model.SyncConflict, error)
	FindUnresolved(ctx context.Context, kind model.EntityType) ([]model.SyncConflict, error)
	FindByEntity(ctx context.Context, kind model.EntityType, entityID uuid.UUID) ([]model.SyncConflict, error)
	CountUnresolved(ctx context.Context) (int64, error)
}

type conflictRepo struct {
	db *gorm.DB
}

func NewConflictRepo(db *gorm.DB) ConflictRepository {
	return &conflictRepo{db}
}

func (r *conflictRepo) DB() *gorm.DB {
	return r.db
}

func (r *conflictRepo) Create(tx *gorm.DB, conflict *model.SyncConflict) error {
	return tx.Create(conflict).Error
}

func (r *conflictRepo) Save(tx *gorm.DB, conflict *model.SyncConflict) error {
	return tx.Save(conflict).Error
}

func (r *conflictRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.SyncConflict, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), id)
}

func (r *conflictRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.SyncConflict, error) {
	var c model.SyncConflict
	if err := tx.First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkResolved moves an unresolved conflict to a terminal status. It returns
// false when the conflict was already resolved, so two resolvers racing on the
// same record cannot both win.
func (r *conflictRepo) MarkResolved(tx *gorm.DB, id uuid.UUID, status model.ConflictStatus, strategy model.ResolutionStrategy, resolvedBy string, at time.Time) (bool, error) {
	res := tx.Model(&model.SyncConflict{}).
		Where("id = ? AND status = ?", id, model.ConflictUnresolved).
		Updates(map[string]interface{}{
			"status":              status,
			"resolution_strategy": strategy,
			"resolved_by":         resolvedBy,
			"resolved_at":         at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindUnresolvedByEntity returns nil, nil when the entity has no open conflict.
func (r *conflictRepo) FindUnresolvedByEntity(tx *gorm.DB, kind model.EntityType, entityID uuid.UUID) (*model.SyncConflict, error) {
	var list []model.SyncConflict
	err := tx.Where("entity_type = ? AND entity_id = ? AND status = ?", kind, entityID, model.ConflictUnresolved).
		Order("detected_at ASC").
		Limit(1).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// FindUnresolved lists open conflicts, optionally for one kind (empty = all).
func (r *conflictRepo) FindUnresolved(ctx context.Context, kind model.EntityType) ([]model.SyncConflict, error) {
	q := r.db.WithContext(ctx).Where("status = ?", model.ConflictUnresolved)
	if kind != "" {
		q = q.Where("entity_type = ?", kind)
	}
	var list []model.SyncConflict
	err := q.Order("detected_at ASC").Find(&list).Error
	return list, err
}

func (r *conflictRepo) FindByEntity(ctx context.Context, kind model.EntityType, entityID uuid.UUID) ([]model.SyncConflict, error) {
	var list []model.SyncConflict
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", kind, entityID).
		Order("detected_at ASC").
		Find(&list).Error
	return list, err
}

func (r *conflictRepo) CountUnresolved(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.SyncConflict{}).Where("status = ?", model.ConflictUnresolved).Count(&n).Error
	return n, err
}
