package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/repository"
	"go-pricebook-sync/internal/upstream"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SystemResolver is the resolver identity used by the engine itself.
const SystemResolver = "system"

// ConflictCandidate is a modified pair changed on both sides.
type ConflictCandidate struct {
	Kind         model.EntityType
	EntityID     uuid.UUID
	UpstreamID   int64
	UpstreamData datatypes.JSON
	LocalData    datatypes.JSON
	Diff         map[string]model.FieldDiff
}

// ConflictTarget applies resolutions to the rows of one kind. Applier
// implements it.
type ConflictTarget interface {
	Kind() model.EntityType
	MarkConflict(tx *gorm.DB, localID, conflictID uuid.UUID) error
	ResolveKeepUpstream(tx *gorm.DB, localID uuid.UUID, upstreamData datatypes.JSON, runID *uuid.UUID) error
	ResolveKeepLocal(tx *gorm.DB, localID uuid.UUID, upstreamData datatypes.JSON) error
}

type ConflictService interface {
	DetectConflicts(ctx context.Context, candidates []ConflictCandidate, runID *uuid.UUID, persist bool) ([]model.SyncConflict, []model.RecordError)
	ResolveConflicts(ctx context.Context, conflicts []model.SyncConflict, strategy model.ResolutionStrategy, resolvedBy string, runID *uuid.UUID) ([]model.SyncConflict, []model.RecordError)
	ResolveConflictByID(ctx context.Context, id uuid.UUID, strategy model.ResolutionStrategy, resolvedBy string) (*model.SyncConflict, error)
	CloseForDeletedEntity(tx *gorm.DB, kind model.EntityType, entityID uuid.UUID) error
	ListUnresolved(ctx context.Context, kind model.EntityType) ([]model.SyncConflict, error)
	ListForEntity(ctx context.Context, kind model.EntityType, entityID uuid.UUID) ([]model.SyncConflict, error)
	CountUnresolved(ctx context.Context) (int64, error)
}

type conflictService struct {
	repo     repository.ConflictRepository
	targets  map[model.EntityType]ConflictTarget
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
}

func NewConflictService(repo repository.ConflictRepository, targets []ConflictTarget, notifier Notifier, logger *log.Logger, now func() time.Time) ConflictService {
	if now == nil {
		now = time.Now
	}
	s := &conflictService{
		repo:     repo,
		targets:  make(map[model.EntityType]ConflictTarget, len(targets)),
		notifier: notifierOrNoop(notifier),
		logger:   logger,
		now:      now,
	}
	for _, t := range targets {
		s.targets[t.Kind()] = t
	}
	return s
}

// DetectConflicts records a conflict per candidate and flags the entity. An
// entity that already has an unresolved conflict gets that record refreshed
// instead of a second one. With persist unset the records are only built.
func (s *conflictService) DetectConflicts(ctx context.Context, candidates []ConflictCandidate, runID *uuid.UUID, persist bool) ([]model.SyncConflict, []model.RecordError) {
	var detected []model.SyncConflict
	var errs []model.RecordError

	for _, c := range candidates {
		conflict := model.SyncConflict{
			EntityType:   c.Kind,
			EntityID:     c.EntityID,
			UpstreamID:   c.UpstreamID,
			ConflictType: model.ConflictBothModified,
			UpstreamData: c.UpstreamData,
			LocalData:    c.LocalData,
			FieldDiff:    snapshot(c.Diff),
			Status:       model.ConflictUnresolved,
			SyncRunID:    runID,
			DetectedAt:   upstream.NormalizeTime(s.now()),
		}
		if !persist {
			detected = append(detected, conflict)
			continue
		}

		err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			target, ok := s.targets[c.Kind]
			if !ok {
				return ErrUnknownEntityType
			}
			existing, err := s.repo.FindUnresolvedByEntity(tx, c.Kind, c.EntityID)
			if err != nil {
				return err
			}
			if existing != nil {
				existing.UpstreamData = conflict.UpstreamData
				existing.LocalData = conflict.LocalData
				existing.FieldDiff = conflict.FieldDiff
				existing.SyncRunID = runID
				if err := s.repo.Save(tx, existing); err != nil {
					return err
				}
				conflict = *existing
			} else if err := s.repo.Create(tx, &conflict); err != nil {
				return err
			}
			return target.MarkConflict(tx, c.EntityID, conflict.ID)
		})
		if err != nil {
			s.logger.Printf("conflict %s %d: %v", c.Kind, c.UpstreamID, err)
			errs = append(errs, model.RecordError{Kind: c.Kind, UpstreamID: c.UpstreamID, Action: "conflict", Message: err.Error()})
			continue
		}

		detected = append(detected, conflict)
		s.notifier.Publish(EventConflictDetected, map[string]interface{}{
			"conflict_id": conflict.ID,
			"entity_type": conflict.EntityType,
			"entity_id":   conflict.EntityID,
			"upstream_id": conflict.UpstreamID,
		})
	}
	return detected, errs
}

// ResolveConflicts applies one strategy to every conflict. Manual resolves
// nothing.
func (s *conflictService) ResolveConflicts(ctx context.Context, conflicts []model.SyncConflict, strategy model.ResolutionStrategy, resolvedBy string, runID *uuid.UUID) ([]model.SyncConflict, []model.RecordError) {
	if strategy == model.StrategyManual || !strategy.Valid() {
		return nil, nil
	}

	var resolved []model.SyncConflict
	var errs []model.RecordError
	for _, c := range conflicts {
		r, err := s.resolve(ctx, c.ID, strategy, resolvedBy, runID)
		if err != nil {
			s.logger.Printf("resolve conflict %s (%s %d): %v", c.ID, c.EntityType, c.UpstreamID, err)
			errs = append(errs, model.RecordError{Kind: c.EntityType, UpstreamID: c.UpstreamID, Action: "resolve", Message: err.Error()})
			continue
		}
		resolved = append(resolved, *r)
	}
	return resolved, errs
}

func (s *conflictService) ResolveConflictByID(ctx context.Context, id uuid.UUID, strategy model.ResolutionStrategy, resolvedBy string) (*model.SyncConflict, error) {
	if !strategy.Valid() {
		return nil, ErrInvalidStrategy
	}
	if strategy == model.StrategyManual {
		c, err := s.repo.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConflictNotFound
		}
		if err != nil {
			return nil, err
		}
		if c.IsResolved() {
			return nil, ErrConflictAlreadyResolved
		}
		return c, nil
	}
	return s.resolve(ctx, id, strategy, resolvedBy, nil)
}

func (s *conflictService) resolve(ctx context.Context, id uuid.UUID, strategy model.ResolutionStrategy, resolvedBy string, runID *uuid.UUID) (*model.SyncConflict, error) {
	if resolvedBy == "" {
		resolvedBy = SystemResolver
	}
	status := model.ConflictResolvedKeepUpstream
	if strategy == model.StrategyKeepLocal {
		status = model.ConflictResolvedKeepLocal
	}
	now := upstream.NormalizeTime(s.now())

	var conflict *model.SyncConflict
	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.repo.FindByIDTx(tx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConflictNotFound
		}
		if err != nil {
			return err
		}
		if c.IsResolved() {
			return ErrConflictAlreadyResolved
		}
		target, ok := s.targets[c.EntityType]
		if !ok {
			return ErrUnknownEntityType
		}

		won, err := s.repo.MarkResolved(tx, c.ID, status, strategy, resolvedBy, now)
		if err != nil {
			return err
		}
		if !won {
			return ErrConflictAlreadyResolved
		}

		switch strategy {
		case model.StrategyKeepUpstream:
			err = target.ResolveKeepUpstream(tx, c.EntityID, c.UpstreamData, runID)
		case model.StrategyKeepLocal:
			err = target.ResolveKeepLocal(tx, c.EntityID, c.UpstreamData)
		}
		if err != nil {
			return fmt.Errorf("apply %s to %s %s: %w", strategy, c.EntityType, c.EntityID, err)
		}

		c.Status = status
		c.ResolutionStrategy = strategy
		c.ResolvedBy = resolvedBy
		c.ResolvedAt = &now
		conflict = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(EventConflictResolved, map[string]interface{}{
		"conflict_id": conflict.ID,
		"entity_type": conflict.EntityType,
		"entity_id":   conflict.EntityID,
		"strategy":    strategy,
		"resolved_by": resolvedBy,
	})
	return conflict, nil
}

// CloseForDeletedEntity closes the open conflict of an entity that is about
// to be soft-deleted because it disappeared upstream.
func (s *conflictService) CloseForDeletedEntity(tx *gorm.DB, kind model.EntityType, entityID uuid.UUID) error {
	c, err := s.repo.FindUnresolvedByEntity(tx, kind, entityID)
	if err != nil || c == nil {
		return err
	}
	_, err = s.repo.MarkResolved(tx, c.ID, model.ConflictResolvedKeepUpstream, model.StrategyKeepUpstream, SystemResolver, upstream.NormalizeTime(s.now()))
	return err
}

func (s *conflictService) ListUnresolved(ctx context.Context, kind model.EntityType) ([]model.SyncConflict, error) {
	return s.repo.FindUnresolved(ctx, kind)
}

// ListForEntity returns every conflict ever recorded for one item.
func (s *conflictService) ListForEntity(ctx context.Context, kind model.EntityType, entityID uuid.UUID) ([]model.SyncConflict, error) {
	return s.repo.FindByEntity(ctx, kind, entityID)
}

func (s *conflictService) CountUnresolved(ctx context.Context) (int64, error) {
	return s.repo.CountUnresolved(ctx)
}
