package service

import (
	"log"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/repository"
	"go-pricebook-sync/internal/upstream"

	"gorm.io/gorm"
)

// EngineConfig holds the tunables of the sync engine.
type EngineConfig struct {
	PageSize        int
	PageDelay       time.Duration
	PageTimeout     time.Duration
	LockTTL         time.Duration
	DefaultStrategy model.ResolutionStrategy
	Scheduler       SchedulerConfig
	Now             func() time.Time
}

// Components is the assembled engine.
type Components struct {
	Sync      SyncService
	Conflicts ConflictService
	Pricebook PricebookService
	Scheduler *Scheduler
}

func NewComponents(db *gorm.DB, client upstream.Client, cfg EngineConfig, notifier Notifier, logger *log.Logger) *Components {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	changeLogs := repository.NewChangeLogRepo(db)
	runs := repository.NewSyncRunRepo(db)
	fetcher := NewFetcher(client, cfg.PageSize, cfg.PageDelay, cfg.PageTimeout, logger)

	categoryRepo := repository.NewItemRepo[model.Category, *model.Category](db)
	categories := newKindPipeline[model.Category, *model.Category](categoryRepo, NewCategoryMapper(categoryRepo), fetcher, changeLogs, client, now, logger)
	materials := newKindPipeline[model.Material, *model.Material](
		repository.NewItemRepo[model.Material, *model.Material](db), NewMaterialMapper(categoryRepo), fetcher, changeLogs, client, now, logger)
	services := newKindPipeline[model.Service, *model.Service](
		repository.NewItemRepo[model.Service, *model.Service](db), NewServiceMapper(categoryRepo), fetcher, changeLogs, client, now, logger)
	equipment := newKindPipeline[model.Equipment, *model.Equipment](
		repository.NewItemRepo[model.Equipment, *model.Equipment](db), NewEquipmentMapper(categoryRepo), fetcher, changeLogs, client, now, logger)

	conflicts := NewConflictService(repository.NewConflictRepo(db),
		[]ConflictTarget{categories.applier, materials.applier, services.applier, equipment.applier},
		notifier, logger, now)
	categories.bind(conflicts)
	materials.bind(conflicts)
	services.bind(conflicts)
	equipment.bind(conflicts)

	syncers := []KindSyncer{categories, materials, services, equipment}
	engine := NewSyncService(syncers, runs, repository.NewSyncStateRepo(db), repository.NewSyncLockRepo(db),
		notifier, logger, cfg.LockTTL, cfg.DefaultStrategy, now)

	schedCfg := cfg.Scheduler
	if schedCfg.Strategy == "" {
		schedCfg.Strategy = cfg.DefaultStrategy
	}
	scheduler := NewScheduler(engine, schedCfg, logger)

	return &Components{
		Sync:      engine,
		Conflicts: conflicts,
		Pricebook: NewPricebookService(syncers, runs, changeLogs, conflicts, scheduler, notifier),
		Scheduler: scheduler,
	}
}

func newKindPipeline[T any, PT model.ItemPtr[T]](
	repo repository.ItemRepository[T, PT],
	mapper Mapper[T],
	fetcher *Fetcher,
	changeLogs repository.ChangeLogRepository,
	client upstream.Client,
	now func() time.Time,
	logger *log.Logger,
) *kindPipeline[T, PT] {
	return &kindPipeline[T, PT]{
		repo:       repo,
		mapper:     mapper,
		fetcher:    fetcher,
		comparator: NewComparator[T, PT](repo, mapper),
		applier:    NewApplier[T, PT](repo, mapper, changeLogs, now),
		client:     client,
		logger:     logger,
	}
}

func (p *kindPipeline[T, PT]) bind(conflicts ConflictService) {
	p.conflicts = conflicts
	p.applier.OnDelete(conflicts.CloseForDeletedEntity)
}
