package repository

import (
	"context"
	"time"

	"go-pricebook-sync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncLockRepository implements the run lock as a row keyed by name.
type SyncLockRepository interface {
	TryAcquire(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) error
	Find(ctx context.Context, name string) (*model.SyncLock, error)
}

type syncLockRepo struct {
	db *gorm.DB
}

func NewSyncLockRepo(db *gorm.DB) SyncLockRepository {
	return &syncLockRepo{db}
}

// TryAcquire reclaims an expired lock and then inserts a new one. It returns
// false when another owner holds a live lock.
func (r *syncLockRepo) TryAcquire(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (bool, error) {
	acquired := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ? AND expires_at < ?", name, now).Delete(&model.SyncLock{}).Error; err != nil {
			return err
		}
		lock := model.SyncLock{Name: name, Owner: owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	return acquired, err
}

func (r *syncLockRepo) Release(ctx context.Context, name, owner string) error {
	return r.db.WithContext(ctx).Where("name = ? AND owner = ?", name, owner).Delete(&model.SyncLock{}).Error
}

// Find returns nil, nil when the lock is free.
func (r *syncLockRepo) Find(ctx context.Context, name string) (*model.SyncLock, error) {
	var locks []model.SyncLock
	if err := r.db.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&locks).Error; err != nil {
		return nil, err
	}
	if len(locks) == 0 {
		return nil, nil
	}
	return &locks[0], nil
}

type SyncStateRepository interface {
	Get(ctx context.Context, scope string) (*model.SyncState, error)
	Save(ctx context.Context, state *model.SyncState) error
}

type syncStateRepo struct {
	db *gorm.DB
}

func NewSyncStateRepo(db *gorm.DB) SyncStateRepository {
	return &syncStateRepo{db}
}

// Get returns an empty state (not nil) for a scope that was never synced.
func (r *syncStateRepo) Get(ctx context.Context, scope string) (*model.SyncState, error) {
	var states []model.SyncState
	if err := r.db.WithContext(ctx).Where("scope = ?", scope).Limit(1).Find(&states).Error; err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return &model.SyncState{Scope: scope}, nil
	}
	return &states[0], nil
}

func (r *syncStateRepo) Save(ctx context.Context, state *model.SyncState) error {
	return r.db.WithContext(ctx).Save(state).Error
}
