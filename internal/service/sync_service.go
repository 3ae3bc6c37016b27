package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/repository"
	"go-pricebook-sync/internal/upstream"

	"github.com/google/uuid"
)

// LockName is the run lock shared by every trigger.
const LockName = "pricebook"

// SyncOptions selects what one run does. Zero values mean a full pull of
// every kind with the engine's default strategy.
type SyncOptions struct {
	Type        model.RunType
	Direction   model.SyncDirection
	EntityTypes []model.EntityType
	Strategy    model.ResolutionStrategy
	DryRun      bool
	TriggeredBy string
	ResolvedBy  string
	// CategoryID limits materials, services and equipment to one upstream
	// category. Categories are still pulled whole.
	CategoryID *int64
}

type SyncService interface {
	Run(ctx context.Context, opts SyncOptions) (*model.RunResult, error)
	FullSync(ctx context.Context, opts SyncOptions) (*model.RunResult, error)
	IncrementalSync(ctx context.Context, opts SyncOptions) (*model.RunResult, error)
}

type syncService struct {
	syncers         map[model.EntityType]KindSyncer
	runs            repository.SyncRunRepository
	states          repository.SyncStateRepository
	locks           repository.SyncLockRepository
	notifier        Notifier
	logger          *log.Logger
	lockTTL         time.Duration
	defaultStrategy model.ResolutionStrategy
	now             func() time.Time
}

func NewSyncService(
	syncers []KindSyncer,
	runs repository.SyncRunRepository,
	states repository.SyncStateRepository,
	locks repository.SyncLockRepository,
	notifier Notifier,
	logger *log.Logger,
	lockTTL time.Duration,
	defaultStrategy model.ResolutionStrategy,
	now func() time.Time,
) SyncService {
	if now == nil {
		now = time.Now
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Hour
	}
	if !defaultStrategy.Valid() {
		defaultStrategy = model.StrategyManual
	}
	s := &syncService{
		syncers:         make(map[model.EntityType]KindSyncer, len(syncers)),
		runs:            runs,
		states:          states,
		locks:           locks,
		notifier:        notifierOrNoop(notifier),
		logger:          logger,
		lockTTL:         lockTTL,
		defaultStrategy: defaultStrategy,
		now:             now,
	}
	for _, k := range syncers {
		s.syncers[k.Kind()] = k
	}
	return s
}

func (s *syncService) FullSync(ctx context.Context, opts SyncOptions) (*model.RunResult, error) {
	opts.Type = model.RunTypeFull
	return s.Run(ctx, opts)
}

func (s *syncService) IncrementalSync(ctx context.Context, opts SyncOptions) (*model.RunResult, error) {
	opts.Type = model.RunTypeIncremental
	return s.Run(ctx, opts)
}

func (s *syncService) normalize(opts SyncOptions) (SyncOptions, error) {
	switch opts.Type {
	case "":
		opts.Type = model.RunTypeFull
	case model.RunTypeFull, model.RunTypeIncremental:
	default:
		return opts, fmt.Errorf("unknown run type %q", opts.Type)
	}

	switch opts.Direction {
	case "":
		opts.Direction = model.DirectionFromUpstream
	case model.DirectionFromUpstream, model.DirectionToUpstream, model.DirectionBidirectional:
	default:
		return opts, ErrInvalidDirection
	}

	if opts.Strategy == "" {
		opts.Strategy = s.defaultStrategy
	}
	if !opts.Strategy.Valid() {
		return opts, ErrInvalidStrategy
	}

	if opts.CategoryID != nil && *opts.CategoryID <= 0 {
		return opts, fmt.Errorf("invalid category id %d", *opts.CategoryID)
	}

	for _, k := range opts.EntityTypes {
		if _, ok := s.syncers[k]; !ok {
			return opts, fmt.Errorf("%w: %q", ErrUnknownEntityType, k)
		}
	}
	opts.EntityTypes = model.OrderEntityTypes(opts.EntityTypes)

	if opts.TriggeredBy == "" {
		opts.TriggeredBy = model.TriggerAPI
	}
	if opts.ResolvedBy == "" {
		opts.ResolvedBy = SystemResolver
	}
	return opts, nil
}

// Run executes one sync. It fails fast with ErrSyncInProgress when another
// run holds the lock. Once the run record exists the result is always
// returned, failed runs included; the outcome is in its Status.
func (s *syncService) Run(ctx context.Context, opts SyncOptions) (*model.RunResult, error) {
	opts, err := s.normalize(opts)
	if err != nil {
		return nil, err
	}

	run := &model.SyncRun{
		ID:          uuid.New(),
		Type:        opts.Type,
		Direction:   opts.Direction,
		EntityTypes: snapshot(opts.EntityTypes),
		Status:      model.RunStatusRunning,
		TriggeredBy: opts.TriggeredBy,
		Strategy:    opts.Strategy,
		DryRun:      opts.DryRun,
		StartedAt:   upstream.NormalizeTime(s.now()),
	}

	owner := run.ID.String()
	acquired, err := s.locks.TryAcquire(ctx, LockName, owner, run.StartedAt, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), LockName, owner); err != nil {
			s.logger.Printf("release sync lock: %v", err)
		}
	}()

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync run: %w", err)
	}
	s.logger.Printf("run %s started: %s %s %v (strategy=%s, dryRun=%t, by %s)",
		run.ID, run.Type, run.Direction, opts.EntityTypes, run.Strategy, run.DryRun, run.TriggeredBy)
	s.notifier.Publish(EventRunStarted, map[string]interface{}{
		"run_id":       run.ID,
		"type":         run.Type,
		"direction":    run.Direction,
		"entity_types": opts.EntityTypes,
		"dry_run":      run.DryRun,
	})

	result := &model.RunResult{
		RunID:    run.ID.String(),
		DryRun:   opts.DryRun,
		Strategy: opts.Strategy,
		ByKind:   make(map[model.EntityType]*model.KindStats, len(opts.EntityTypes)),
	}
	runErr := s.execute(ctx, run, opts, result)
	s.finalize(ctx, run, result, runErr)
	return result, nil
}

func (s *syncService) execute(ctx context.Context, run *model.SyncRun, opts SyncOptions, result *model.RunResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()

	for _, kind := range opts.EntityTypes {
		syncer := s.syncers[kind]
		stats := &model.KindStats{}
		result.ByKind[kind] = stats

		state, err := s.states.Get(ctx, string(kind))
		if err != nil {
			return fmt.Errorf("load %s sync state: %w", kind, err)
		}

		rc := &RunContext{
			RunID:      &run.ID,
			FullSync:   opts.Type == model.RunTypeFull,
			DryRun:     opts.DryRun,
			Strategy:   opts.Strategy,
			ResolvedBy: opts.ResolvedBy,
			CategoryID: opts.CategoryID,
		}
		if opts.Type == model.RunTypeIncremental {
			rc.ModifiedSince = state.WatermarkTS
		}

		kindStart := upstream.NormalizeTime(s.now())
		var kindErr error
		var recordErrs []model.RecordError

		if opts.Direction.Pulls() {
			pulled, errs, err := syncer.Pull(ctx, rc)
			stats.Add(*pulled)
			recordErrs = append(recordErrs, errs...)
			kindErr = err
		}
		if kindErr == nil && opts.Direction.Pushes() {
			pushed, errs, err := syncer.Push(ctx, rc)
			stats.Add(*pushed)
			recordErrs = append(recordErrs, errs...)
			kindErr = err
		}
		result.Errors = append(result.Errors, recordErrs...)

		if !opts.DryRun {
			// a category-scoped pull did not see the whole collection
			complete := opts.Direction.Pulls() && !rc.Scoped(kind)
			s.saveState(ctx, state, kindStart, complete, stats, len(recordErrs), kindErr)
		}
		if kindErr != nil {
			return fmt.Errorf("%s: %w", kind, kindErr)
		}
		s.logger.Printf("run %s %s: fetched=%d created=%d updated=%d deleted=%d skipped=%d conflicts=%d pushed=%d errors=%d",
			run.ID, kind, stats.Fetched, stats.Created, stats.Updated, stats.Deleted, stats.Skipped, stats.Conflicts, stats.Pushed, stats.Errors)
	}
	return nil
}

// saveState advances the watermark only after a clean pull of the whole
// collection, so records that failed are fetched again by the next
// incremental run.
func (s *syncService) saveState(ctx context.Context, state *model.SyncState, started time.Time, pulled bool, stats *model.KindStats, recordErrs int, kindErr error) {
	state.LastAttemptAt = &started
	state.StatsJSON = snapshot(stats)
	if kindErr != nil {
		msg := kindErr.Error()
		state.LastError = &msg
	} else {
		state.LastError = nil
		state.LastSuccessAt = &started
		if pulled && recordErrs == 0 {
			state.WatermarkTS = &started
		}
	}
	if err := s.states.Save(context.WithoutCancel(ctx), state); err != nil {
		s.logger.Printf("save %s sync state: %v", state.Scope, err)
	}
}

func (s *syncService) finalize(ctx context.Context, run *model.SyncRun, result *model.RunResult, runErr error) {
	completed := upstream.NormalizeTime(s.now())

	var totals model.KindStats
	for _, k := range result.ByKind {
		totals.Add(*k)
	}

	status := model.RunStatusCompleted
	switch {
	case runErr != nil:
		status = model.RunStatusFailed
		result.Error = runErr.Error()
		run.ErrorMessage = runErr.Error()
	case len(result.Errors) > 0:
		status = model.RunStatusPartial
	}

	result.Status = status
	result.Totals = totals
	result.Duration = completed.Sub(run.StartedAt).Milliseconds()

	run.Status = status
	run.CompletedAt = &completed
	run.DurationMs = result.Duration
	run.ApplyTotals(totals)
	run.Result = snapshot(result)

	if err := s.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Printf("finalize run %s: %v", run.ID, err)
	}
	if runErr != nil {
		s.logger.Printf("run %s failed after %dms: %v", run.ID, run.DurationMs, runErr)
	} else {
		s.logger.Printf("run %s %s in %dms: %d created, %d updated, %d deleted, %d errors",
			run.ID, status, run.DurationMs, totals.Created, totals.Updated, totals.Deleted, totals.Errors)
	}
	s.notifier.Publish(EventRunFinished, map[string]interface{}{
		"run_id":   run.ID,
		"status":   status,
		"totals":   totals,
		"duration": run.DurationMs,
	})
}
