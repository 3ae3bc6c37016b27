package service

import (
	"context"
	"errors"
	"fmt"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/repository"
	"go-pricebook-sync/pkg/validator"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusReport is the answer to "how is the sync doing".
type StatusReport struct {
	LastRun             *model.SyncRun             `json:"lastRun"`
	UnresolvedConflicts int64                      `json:"unresolvedConflicts"`
	Items               map[model.EntityType]int64 `json:"items"`
	Scheduler           *SchedulerStatus           `json:"scheduler,omitempty"`
}

// RunDetail is a run with the number of change-log entries it wrote, and
// the entries themselves when asked for.
type RunDetail struct {
	*model.SyncRun
	ChangeCount int64             `json:"changeCount"`
	Changes     []model.ChangeLog `json:"changes,omitempty"`
}

// ItemHistory is everything recorded about one item.
type ItemHistory struct {
	Changes   []model.ChangeLog    `json:"changes"`
	Conflicts []model.SyncConflict `json:"conflicts"`
}

// ItemPage is one page of stored rows of a kind.
type ItemPage struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// ItemRefresh reports what pulling a single item did.
type ItemRefresh struct {
	Stats  *model.KindStats    `json:"stats"`
	Errors []model.RecordError `json:"errors,omitempty"`
}

const (
	DefaultItemPageSize = 50
	MaxItemPageSize     = 500
)

type PricebookService interface {
	ListItems(ctx context.Context, kind model.EntityType, q ItemQuery) (*ItemPage, error)
	GetItem(ctx context.Context, kind model.EntityType, id uuid.UUID, refresh bool) (interface{}, *ItemRefresh, error)
	EditItem(ctx context.Context, kind model.EntityType, id uuid.UUID, edit LocalEdit) (interface{}, error)
	Status(ctx context.Context) (*StatusReport, error)
	ListRuns(ctx context.Context, limit int) ([]model.SyncRun, error)
	GetRun(ctx context.Context, id uuid.UUID, withChanges bool) (*RunDetail, error)
	ListConflicts(ctx context.Context, kind model.EntityType) ([]model.SyncConflict, error)
	ResolveConflict(ctx context.Context, id uuid.UUID, strategy model.ResolutionStrategy, resolvedBy string) (*model.SyncConflict, error)
	History(ctx context.Context, kind model.EntityType, id uuid.UUID) (*ItemHistory, error)
}

type pricebookService struct {
	syncers    map[model.EntityType]KindSyncer
	runs       repository.SyncRunRepository
	changeLogs repository.ChangeLogRepository
	conflicts  ConflictService
	scheduler  *Scheduler
	notifier   Notifier
}

func NewPricebookService(syncers []KindSyncer, runs repository.SyncRunRepository, changeLogs repository.ChangeLogRepository, conflicts ConflictService, scheduler *Scheduler, notifier Notifier) PricebookService {
	s := &pricebookService{
		syncers:    make(map[model.EntityType]KindSyncer, len(syncers)),
		runs:       runs,
		changeLogs: changeLogs,
		conflicts:  conflicts,
		scheduler:  scheduler,
		notifier:   notifierOrNoop(notifier),
	}
	for _, k := range syncers {
		s.syncers[k.Kind()] = k
	}
	return s
}

func (s *pricebookService) ListItems(ctx context.Context, kind model.EntityType, q ItemQuery) (*ItemPage, error) {
	syncer, ok := s.syncers[kind]
	if !ok {
		return nil, ErrUnknownEntityType
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > MaxItemPageSize {
		q.PageSize = DefaultItemPageSize
	}
	items, total, err := syncer.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return &ItemPage{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// GetItem returns one stored row. With refresh set, the row's upstream record
// is pulled first; conflicts it raises are recorded but never auto-resolved.
func (s *pricebookService) GetItem(ctx context.Context, kind model.EntityType, id uuid.UUID, refresh bool) (interface{}, *ItemRefresh, error) {
	syncer, ok := s.syncers[kind]
	if !ok {
		return nil, nil, ErrUnknownEntityType
	}

	var report *ItemRefresh
	if refresh {
		stats, errs, err := syncer.Refresh(ctx, id, &RunContext{
			Strategy:   model.StrategyManual,
			ResolvedBy: SystemResolver,
		})
		if err != nil {
			return nil, nil, err
		}
		report = &ItemRefresh{Stats: stats, Errors: errs}
		s.notifier.Publish(EventItemRefreshed, map[string]interface{}{
			"entity_type": kind,
			"entity_id":   id,
			"stats":       stats,
		})
	}

	item, err := syncer.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return item, report, nil
}

func (s *pricebookService) EditItem(ctx context.Context, kind model.EntityType, id uuid.UUID, edit LocalEdit) (interface{}, error) {
	syncer, ok := s.syncers[kind]
	if !ok {
		return nil, ErrUnknownEntityType
	}
	if err := validator.Validate(&edit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}

	item, err := syncer.Edit(ctx, id, edit)
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(EventItemEdited, map[string]interface{}{
		"entity_type": kind,
		"entity_id":   id,
	})
	return item, nil
}

func (s *pricebookService) Status(ctx context.Context) (*StatusReport, error) {
	last, err := s.runs.FindLatest(ctx)
	if err != nil {
		return nil, err
	}
	unresolved, err := s.conflicts.CountUnresolved(ctx)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		LastRun:             last,
		UnresolvedConflicts: unresolved,
		Items:               make(map[model.EntityType]int64, len(s.syncers)),
	}
	for _, kind := range model.EntityTypes {
		syncer, ok := s.syncers[kind]
		if !ok {
			continue
		}
		n, err := syncer.Count(ctx)
		if err != nil {
			return nil, err
		}
		report.Items[kind] = n
	}
	if s.scheduler != nil {
		st := s.scheduler.Status()
		report.Scheduler = &st
	}
	return report, nil
}

func (s *pricebookService) ListRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	return s.runs.FindRecent(ctx, limit)
}

func (s *pricebookService) GetRun(ctx context.Context, id uuid.UUID, withChanges bool) (*RunDetail, error) {
	run, err := s.runs.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	if withChanges {
		changes, err := s.changeLogs.FindByRun(ctx, id)
		if err != nil {
			return nil, err
		}
		return &RunDetail{SyncRun: run, ChangeCount: int64(len(changes)), Changes: changes}, nil
	}
	n, err := s.changeLogs.CountByRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{SyncRun: run, ChangeCount: n}, nil
}

func (s *pricebookService) ListConflicts(ctx context.Context, kind model.EntityType) ([]model.SyncConflict, error) {
	return s.conflicts.ListUnresolved(ctx, kind)
}

func (s *pricebookService) ResolveConflict(ctx context.Context, id uuid.UUID, strategy model.ResolutionStrategy, resolvedBy string) (*model.SyncConflict, error) {
	return s.conflicts.ResolveConflictByID(ctx, id, strategy, resolvedBy)
}

func (s *pricebookService) History(ctx context.Context, kind model.EntityType, id uuid.UUID) (*ItemHistory, error) {
	if _, ok := s.syncers[kind]; !ok {
		return nil, ErrUnknownEntityType
	}
	changes, err := s.changeLogs.FindByEntity(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.conflicts.ListForEntity(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return &ItemHistory{Changes: changes, Conflicts: conflicts}, nil
}
