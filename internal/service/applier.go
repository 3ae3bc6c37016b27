package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/repository"
	"go-pricebook-sync/internal/upstream"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Applier is the only writer of pricebook rows. Every call runs in its own
// short transaction that also appends the change-log entry, so one bad
// record never rolls back another.
type Applier[T any, PT model.ItemPtr[T]] struct {
	repo       repository.ItemRepository[T, PT]
	mapper     Mapper[T]
	changeLogs repository.ChangeLogRepository
	now        func() time.Time

	// closeConflict runs inside Delete's transaction
	closeConflict func(tx *gorm.DB, kind model.EntityType, localID uuid.UUID) error
}

func NewApplier[T any, PT model.ItemPtr[T]](repo repository.ItemRepository[T, PT], mapper Mapper[T], changeLogs repository.ChangeLogRepository, now func() time.Time) *Applier[T, PT] {
	if now == nil {
		now = time.Now
	}
	return &Applier[T, PT]{repo: repo, mapper: mapper, changeLogs: changeLogs, now: now}
}

// OnDelete registers the hook that closes an open conflict before the row is
// soft-deleted.
func (a *Applier[T, PT]) OnDelete(fn func(tx *gorm.DB, kind model.EntityType, localID uuid.UUID) error) {
	a.closeConflict = fn
}

func (a *Applier[T, PT]) Kind() model.EntityType {
	return a.mapper.Kind()
}

func (a *Applier[T, PT]) stamp() time.Time {
	return upstream.NormalizeTime(a.now())
}

// Create inserts a new row, or restores the soft-deleted row that already
// carries this upstream id.
func (a *Applier[T, PT]) Create(ctx context.Context, incoming *T, runID *uuid.UUID) (PT, error) {
	now := a.stamp()
	var result PT

	err := a.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target := PT(incoming)
		restored := false

		existing, err := a.repo.FindByUpstreamIDUnscoped(tx, target.Meta().UpstreamID)
		switch {
		case err == nil:
			a.mapper.CopyContent((*T)(existing), incoming)
			existing.Meta().UpstreamModifiedAt = target.Meta().UpstreamModifiedAt
			existing.Restore()
			target = existing
			restored = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := a.mapper.Link(tx, (*T)(target)); err != nil {
			return err
		}
		markSynced(target.Meta(), now, model.DirectionFromUpstream)

		if restored {
			err = a.repo.Save(tx, target)
		} else {
			err = a.repo.Create(tx, target)
		}
		if err != nil {
			return err
		}

		result = target
		return a.log(tx, target, model.ActionCreate, model.SourceFromUpstream, nil, contentValues(target), runID)
	})
	if err != nil {
		return nil, fmt.Errorf("create %s %d: %w", a.Kind(), PT(incoming).Meta().UpstreamID, err)
	}
	return result, nil
}

// Update overwrites a live row with upstream content and clears any conflict.
func (a *Applier[T, PT]) Update(ctx context.Context, localID uuid.UUID, incoming *T, runID *uuid.UUID) (PT, error) {
	var result PT
	err := a.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := a.overwrite(tx, localID, incoming, model.SourceFromUpstream, runID)
		result = row
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update %s %d: %w", a.Kind(), PT(incoming).Meta().UpstreamID, err)
	}
	return result, nil
}

func (a *Applier[T, PT]) overwrite(tx *gorm.DB, localID uuid.UUID, incoming *T, source string, runID *uuid.UUID) (PT, error) {
	current, err := a.repo.FindByIDTx(tx, localID)
	if err != nil {
		return nil, err
	}
	before := *(*T)(current)

	a.mapper.CopyContent((*T)(current), incoming)
	current.Meta().UpstreamModifiedAt = PT(incoming).Meta().UpstreamModifiedAt
	if err := a.mapper.Link(tx, (*T)(current)); err != nil {
		return nil, err
	}
	markSynced(current.Meta(), a.stamp(), model.DirectionFromUpstream)

	if err := a.repo.Save(tx, current); err != nil {
		return nil, err
	}
	oldVals, newVals := changedValues(&before, current)
	return current, a.log(tx, current, model.ActionUpdate, source, oldVals, newVals, runID)
}

// Delete soft-deletes a row that disappeared upstream.
func (a *Applier[T, PT]) Delete(ctx context.Context, localID uuid.UUID, runID *uuid.UUID) (PT, error) {
	now := a.stamp()
	var result PT

	err := a.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := a.repo.FindByIDTx(tx, localID)
		if err != nil {
			return err
		}
		oldVals := contentValues(current)
		if a.closeConflict != nil && (current.Meta().HasConflict || current.Meta().ConflictID != nil) {
			if err := a.closeConflict(tx, a.Kind(), localID); err != nil {
				return err
			}
		}
		if err := a.repo.SoftDelete(tx, localID, now); err != nil {
			return err
		}

		meta := current.Meta()
		meta.DeletedInUpstream = true
		meta.SyncStatus = model.SyncStatusSynced
		meta.HasConflict = false
		meta.ConflictID = nil
		meta.LastSyncedAt = &now
		result = current
		return a.log(tx, current, model.ActionDelete, model.SourceFromUpstream, oldVals, nil, runID)
	})
	if err != nil {
		return nil, fmt.Errorf("delete %s %s: %w", a.Kind(), localID, err)
	}
	return result, nil
}

// MarkConflict flags a row as waiting on a conflict record.
func (a *Applier[T, PT]) MarkConflict(tx *gorm.DB, localID, conflictID uuid.UUID) error {
	return a.repo.UpdateMeta(tx, localID, map[string]interface{}{
		"has_conflict": true,
		"conflict_id":  conflictID,
		"sync_status":  model.SyncStatusConflict,
	})
}

// ResolveKeepUpstream applies the stored upstream snapshot to the row.
func (a *Applier[T, PT]) ResolveKeepUpstream(tx *gorm.DB, localID uuid.UUID, upstreamData datatypes.JSON, runID *uuid.UUID) error {
	item, err := upstream.DecodeItem([]byte(upstreamData))
	if err != nil {
		return err
	}
	incoming, err := a.mapper.Decode(item)
	if err != nil {
		return err
	}
	_, err = a.overwrite(tx, localID, incoming, model.SourceConflictResolution, runID)
	return err
}

// ResolveKeepLocal clears the conflict without touching content. The
// upstream stamp is recorded as seen so the same upstream version does not
// conflict again, and the row is left pending so the local version can be
// pushed.
func (a *Applier[T, PT]) ResolveKeepLocal(tx *gorm.DB, localID uuid.UUID, upstreamData datatypes.JSON) error {
	current, err := a.repo.FindByIDTx(tx, localID)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{
		"has_conflict":   false,
		"conflict_id":    nil,
		"sync_status":    model.SyncStatusSynced,
		"sync_direction": model.DirectionToUpstream,
	}
	if current.Meta().LocallyModified() {
		fields["sync_status"] = model.SyncStatusPending
	}
	if item, err := upstream.DecodeItem([]byte(upstreamData)); err == nil && item.ModifiedOn != nil {
		fields["upstream_modified_at"] = *item.ModifiedOn
	}
	return a.repo.UpdateMeta(tx, localID, fields)
}

// MarkPushed records that a pending local edit was accepted upstream.
func (a *Applier[T, PT]) MarkPushed(ctx context.Context, localID uuid.UUID, patch map[string]interface{}, modifiedOn *time.Time, runID *uuid.UUID) error {
	now := a.stamp()
	return a.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := a.repo.FindByIDTx(tx, localID)
		if err != nil {
			return err
		}
		fields := map[string]interface{}{
			"sync_status":    model.SyncStatusSynced,
			"sync_direction": model.DirectionToUpstream,
			"last_synced_at": now,
		}
		if modifiedOn != nil {
			fields["upstream_modified_at"] = *modifiedOn
		}
		if err := a.repo.UpdateMeta(tx, localID, fields); err != nil {
			return err
		}
		return a.log(tx, current, model.ActionUpdate, model.SourceToUpstream, nil, snapshot(patch), runID)
	})
}

// ApplyLocalEdit changes content on behalf of a local actor and queues the
// row for push.
func (a *Applier[T, PT]) ApplyLocalEdit(ctx context.Context, localID uuid.UUID, edit LocalEdit) (PT, error) {
	if edit.IsEmpty() {
		return nil, ErrEmptyEdit
	}
	now := a.stamp()
	var result PT

	err := a.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := a.repo.FindByIDTx(tx, localID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrItemNotFound
		}
		if err != nil {
			return err
		}
		before := *(*T)(current)

		if err := a.mapper.ApplyEdit((*T)(current), edit); err != nil {
			return err
		}
		meta := current.Meta()
		meta.LocalModifiedAt = &now
		meta.SyncDirection = model.DirectionToUpstream
		if !meta.HasConflict {
			meta.SyncStatus = model.SyncStatusPending
		}

		if err := a.repo.Save(tx, current); err != nil {
			return err
		}
		result = current
		oldVals, newVals := changedValues(&before, current)
		return a.log(tx, current, model.ActionUpdate, model.SourceLocal, oldVals, newVals, nil)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Relink resolves references whose target arrived after the row was written.
// A row that still cannot be linked is left untouched; the result reports
// whether the row was saved.
func (a *Applier[T, PT]) Relink(ctx context.Context, localID uuid.UUID, runID *uuid.UUID) (bool, error) {
	r, ok := a.mapper.(relinker[T])
	if !ok {
		return false, nil
	}

	linked := false
	err := a.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := a.repo.FindByIDTx(tx, localID)
		if err != nil {
			return err
		}
		if !r.Unlinked((*T)(current)) {
			return nil
		}
		before := *(*T)(current)
		if err := a.mapper.Link(tx, (*T)(current)); err != nil {
			return err
		}
		if r.Unlinked((*T)(current)) {
			return nil
		}
		if err := a.repo.Save(tx, current); err != nil {
			return err
		}
		linked = true
		oldVals, newVals := changedValues(&before, current)
		return a.log(tx, current, model.ActionUpdate, model.SourceFromUpstream, oldVals, newVals, runID)
	})
	if err != nil {
		return false, fmt.Errorf("relink %s %s: %w", a.Kind(), localID, err)
	}
	return linked, nil
}

func (a *Applier[T, PT]) log(tx *gorm.DB, row PT, action model.ChangeAction, source string, oldVals, newVals datatypes.JSON, runID *uuid.UUID) error {
	return a.changeLogs.Create(tx, &model.ChangeLog{
		EntityType: a.Kind(),
		EntityID:   row.GetID(),
		UpstreamID: row.Meta().UpstreamID,
		Action:     action,
		Source:     source,
		OldValues:  oldVals,
		NewValues:  newVals,
		Snapshot:   snapshot(row),
		SyncRunID:  runID,
	})
}

func markSynced(meta *model.SyncMeta, now time.Time, direction model.SyncDirection) {
	meta.LastSyncedAt = &now
	meta.SyncStatus = model.SyncStatusSynced
	meta.SyncDirection = direction
	meta.HasConflict = false
	meta.ConflictID = nil
	meta.DeletedInUpstream = false
}
