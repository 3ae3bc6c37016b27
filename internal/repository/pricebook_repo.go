package repository

import (
	"context"
	"fmt"
	"time"

	"go-pricebook-sync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ItemRepository stores one pricebook kind. Write methods take the *gorm.DB
// to run on so callers can group an item write with its change-log entry.
type ItemRepository[T any, PT model.ItemPtr[T]] interface {
	DB() *gorm.DB
	FindLive(ctx context.Context) ([]T, error)
	FindByID(ctx context.Context, id uuid.UUID) (PT, error)
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (PT, error)
	FindByUpstreamIDUnscoped(tx *gorm.DB, upstreamID int64) (PT, error)
	FindPending(ctx context.Context) ([]T, error)
	FindUnlinked(ctx context.Context, refColumn, keyColumn string) ([]T, error)
	FindPage(ctx context.Context, q PageQuery) ([]T, int64, error)
	LocalIDsByUpstreamIDs(tx *gorm.DB, upstreamIDs []int64) (map[int64]uuid.UUID, error)
	Count(ctx context.Context) (int64, error)
	Create(tx *gorm.DB, item PT) error
	Save(tx *gorm.DB, item PT) error
	UpdateMeta(tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	SoftDelete(tx *gorm.DB, id uuid.UUID, at time.Time) error
}

// PageQuery selects one page of live rows. Where holds column equality
// conditions.
type PageQuery struct {
	Page     int
	PageSize int
	Where    map[string]interface{}
}

type itemRepo[T any, PT model.ItemPtr[T]] struct {
	db *gorm.DB
}

func NewItemRepo[T any, PT model.ItemPtr[T]](db *gorm.DB) ItemRepository[T, PT] {
	return &itemRepo[T, PT]{db}
}

func (r *itemRepo[T, PT]) DB() *gorm.DB {
	return r.db
}

func (r *itemRepo[T, PT]) model() PT {
	return PT(new(T))
}

func (r *itemRepo[T, PT]) FindLive(ctx context.Context) ([]T, error) {
	var items []T
	err := r.db.WithContext(ctx).Order("upstream_id ASC").Find(&items).Error
	return items, err
}

func (r *itemRepo[T, PT]) FindByID(ctx context.Context, id uuid.UUID) (PT, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), id)
}

func (r *itemRepo[T, PT]) FindByIDTx(tx *gorm.DB, id uuid.UUID) (PT, error) {
	var item T
	if err := tx.First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return PT(&item), nil
}

// FindByUpstreamIDUnscoped also returns soft-deleted rows, so a reappearing
// upstream item can be restored instead of duplicated.
func (r *itemRepo[T, PT]) FindByUpstreamIDUnscoped(tx *gorm.DB, upstreamID int64) (PT, error) {
	var item T
	if err := tx.Unscoped().First(&item, "upstream_id = ?", upstreamID).Error; err != nil {
		return nil, err
	}
	return PT(&item), nil
}

func (r *itemRepo[T, PT]) FindPending(ctx context.Context) ([]T, error) {
	var items []T
	err := r.db.WithContext(ctx).
		Where("sync_status = ? AND has_conflict = ?", model.SyncStatusPending, false).
		Order("upstream_id ASC").
		Find(&items).Error
	return items, err
}

// FindUnlinked returns live rows that carry an upstream reference whose local
// key was never resolved.
func (r *itemRepo[T, PT]) FindUnlinked(ctx context.Context, refColumn, keyColumn string) ([]T, error) {
	var items []T
	err := r.db.WithContext(ctx).
		Where(fmt.Sprintf("%s IS NOT NULL AND %s IS NULL", refColumn, keyColumn)).
		Order("upstream_id ASC").
		Find(&items).Error
	return items, err
}

func (r *itemRepo[T, PT]) FindPage(ctx context.Context, q PageQuery) ([]T, int64, error) {
	scope := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(r.model())
		if len(q.Where) > 0 {
			tx = tx.Where(q.Where)
		}
		return tx
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []T
	err := scope().
		Order("upstream_id ASC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&items).Error
	return items, total, err
}

func (r *itemRepo[T, PT]) LocalIDsByUpstreamIDs(tx *gorm.DB, upstreamIDs []int64) (map[int64]uuid.UUID, error) {
	result := make(map[int64]uuid.UUID, len(upstreamIDs))
	if len(upstreamIDs) == 0 {
		return result, nil
	}

	type row struct {
		ID         uuid.UUID
		UpstreamID int64
	}
	var rows []row
	err := tx.Model(r.model()).
		Select("id, upstream_id").
		Where("upstream_id IN ?", upstreamIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, rw := range rows {
		result[rw.UpstreamID] = rw.ID
	}
	return result, nil
}

func (r *itemRepo[T, PT]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(r.model()).Count(&n).Error
	return n, err
}

func (r *itemRepo[T, PT]) Create(tx *gorm.DB, item PT) error {
	return tx.Create(item).Error
}

// Save writes every column, including deleted_at, so it can restore a
// soft-deleted row.
func (r *itemRepo[T, PT]) Save(tx *gorm.DB, item PT) error {
	return tx.Unscoped().Save(item).Error
}

func (r *itemRepo[T, PT]) UpdateMeta(tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	res := tx.Model(r.model()).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDelete never removes the row: it stamps deleted_at and records that the
// item disappeared upstream.
func (r *itemRepo[T, PT]) SoftDelete(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return r.UpdateMeta(tx, id, map[string]interface{}{
		"deleted_at":          at,
		"deleted_in_upstream": true,
		"sync_status":         model.SyncStatusSynced,
		"has_conflict":        false,
		"conflict_id":         nil,
		"last_synced_at":      at,
	})
}
