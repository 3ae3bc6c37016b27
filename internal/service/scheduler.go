package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go-pricebook-sync/internal/model"

	"github.com/robfig/cron/v3"
)

type SchedulerConfig struct {
	FullSyncCron        string
	IncrementalSyncCron string
	Strategy            model.ResolutionStrategy
}

// SchedulerState is owned by one Scheduler and only changed by Start and Stop.
type SchedulerState struct {
	Running          bool
	FullEntry        cron.EntryID
	IncrementalEntry cron.EntryID
	cron             *cron.Cron
}

// SchedulerStatus is the reportable view of the scheduler.
type SchedulerStatus struct {
	IsRunning bool `json:"isRunning"`
	Schedules struct {
		FullSync        string `json:"fullSync"`
		IncrementalSync string `json:"incrementalSync"`
	} `json:"schedules"`
	NextFullSync        *time.Time `json:"nextFullSync,omitempty"`
	NextIncrementalSync *time.Time `json:"nextIncrementalSync,omitempty"`
}

type Scheduler struct {
	mu     sync.Mutex
	cfg    SchedulerConfig
	engine SyncService
	logger *log.Logger
	state  SchedulerState
}

func NewScheduler(svc SyncService, cfg SchedulerConfig, logger *log.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, engine: svc, logger: logger}
}

// Start registers both cron jobs. Starting a running scheduler only warns.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Running {
		s.logger.Println("scheduler already running")
		return nil
	}

	cronLogger := cron.PrintfLogger(s.logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	fullID, err := c.AddFunc(s.cfg.FullSyncCron, func() { s.runScheduled(model.RunTypeFull) })
	if err != nil {
		return fmt.Errorf("full sync schedule %q: %w", s.cfg.FullSyncCron, err)
	}
	incID, err := c.AddFunc(s.cfg.IncrementalSyncCron, func() { s.runScheduled(model.RunTypeIncremental) })
	if err != nil {
		return fmt.Errorf("incremental sync schedule %q: %w", s.cfg.IncrementalSyncCron, err)
	}
	c.Start()

	s.state = SchedulerState{Running: true, FullEntry: fullID, IncrementalEntry: incID, cron: c}
	s.logger.Printf("scheduler started: full=%q incremental=%q", s.cfg.FullSyncCron, s.cfg.IncrementalSyncCron)
	return nil
}

// Stop removes the cron jobs and waits for a job in flight to return.
// Stopping a stopped scheduler only warns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.state.Running {
		s.mu.Unlock()
		s.logger.Println("scheduler is not running")
		return
	}
	c := s.state.cron
	s.state = SchedulerState{}
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Println("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Running
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st SchedulerStatus
	st.IsRunning = s.state.Running
	st.Schedules.FullSync = s.cfg.FullSyncCron
	st.Schedules.IncrementalSync = s.cfg.IncrementalSyncCron
	if s.state.Running {
		if next := s.state.cron.Entry(s.state.FullEntry).Next; !next.IsZero() {
			st.NextFullSync = &next
		}
		if next := s.state.cron.Entry(s.state.IncrementalEntry).Next; !next.IsZero() {
			st.NextIncrementalSync = &next
		}
	}
	return st
}

// Trigger runs a sync now with caller-supplied options.
func (s *Scheduler) Trigger(ctx context.Context, opts SyncOptions) (*model.RunResult, error) {
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = model.TriggerAPI
	}
	return s.engine.Run(ctx, opts)
}

func (s *Scheduler) runScheduled(runType model.RunType) {
	res, err := s.engine.Run(context.Background(), SyncOptions{
		Type:        runType,
		Direction:   model.DirectionFromUpstream,
		Strategy:    s.cfg.Strategy,
		TriggeredBy: model.TriggerScheduler,
	})
	switch {
	case errors.Is(err, ErrSyncInProgress):
		s.logger.Printf("scheduled %s sync skipped: another run is in progress", runType)
	case err != nil:
		s.logger.Printf("scheduled %s sync: %v", runType, err)
	default:
		s.logger.Printf("scheduled %s sync %s: %s", runType, res.RunID, res.Status)
	}
}
