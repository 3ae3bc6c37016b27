package service

import (
	"context"
	"errors"
	"log"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/repository"
	"go-pricebook-sync/internal/upstream"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunContext carries the parameters of one run into each kind.
type RunContext struct {
	RunID         *uuid.UUID
	FullSync      bool
	DryRun        bool
	Strategy      model.ResolutionStrategy
	ResolvedBy    string
	ModifiedSince *time.Time
	// CategoryID limits catalog pulls to one upstream category. Such a pull
	// never detects deletions.
	CategoryID *int64
}

// Scoped reports whether a pull of kind sees only part of the collection.
func (rc *RunContext) Scoped(kind model.EntityType) bool {
	return rc.CategoryID != nil && kind != model.EntityCategory
}

// ItemQuery selects one page of stored rows. CategoryID filters catalog rows
// by upstream category and categories by parent.
type ItemQuery struct {
	Page       int
	PageSize   int
	CategoryID *int64
}

// KindSyncer is one kind's pipeline as seen by the engine. A kind-level error
// (the fetch failed, the local rows could not be read) is returned as error;
// per-record failures come back as RecordErrors and never stop the batch.
type KindSyncer interface {
	Kind() model.EntityType
	Pull(ctx context.Context, rc *RunContext) (*model.KindStats, []model.RecordError, error)
	Refresh(ctx context.Context, id uuid.UUID, rc *RunContext) (*model.KindStats, []model.RecordError, error)
	Push(ctx context.Context, rc *RunContext) (*model.KindStats, []model.RecordError, error)
	Edit(ctx context.Context, id uuid.UUID, edit LocalEdit) (interface{}, error)
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, q ItemQuery) (interface{}, int64, error)
	Get(ctx context.Context, id uuid.UUID) (interface{}, error)
}

type kindPipeline[T any, PT model.ItemPtr[T]] struct {
	repo       repository.ItemRepository[T, PT]
	mapper     Mapper[T]
	fetcher    *Fetcher
	comparator *Comparator[T, PT]
	applier    *Applier[T, PT]
	conflicts  ConflictService
	client     upstream.Client
	logger     *log.Logger
}

func (p *kindPipeline[T, PT]) Kind() model.EntityType {
	return p.mapper.Kind()
}

func (p *kindPipeline[T, PT]) Pull(ctx context.Context, rc *RunContext) (*model.KindStats, []model.RecordError, error) {
	kind := p.Kind()
	var items []upstream.Item
	var err error
	if rc.Scoped(kind) {
		items, err = p.fetcher.FetchByCategory(ctx, kind, *rc.CategoryID)
	} else {
		items, err = p.fetcher.FetchAll(ctx, kind, FetchOptions{ModifiedSince: rc.ModifiedSince})
	}
	if err != nil {
		return &model.KindStats{}, nil, err
	}
	return p.process(ctx, rc, items, rc.FullSync && !rc.Scoped(kind))
}

// Refresh pulls the upstream record of one stored row through the same
// compare and apply steps as a run.
func (p *kindPipeline[T, PT]) Refresh(ctx context.Context, id uuid.UUID, rc *RunContext) (*model.KindStats, []model.RecordError, error) {
	row, err := p.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.KindStats{}, nil, ErrItemNotFound
	}
	if err != nil {
		return &model.KindStats{}, nil, err
	}
	item, err := p.fetcher.FetchByID(ctx, p.Kind(), row.Meta().UpstreamID)
	if err != nil {
		return &model.KindStats{}, nil, err
	}
	return p.process(ctx, rc, []upstream.Item{item}, false)
}

func (p *kindPipeline[T, PT]) process(ctx context.Context, rc *RunContext, items []upstream.Item, fullSync bool) (*model.KindStats, []model.RecordError, error) {
	kind := p.Kind()
	stats := &model.KindStats{Fetched: len(items)}
	var errs []model.RecordError
	fail := func(upstreamID int64, action string, err error) {
		p.logger.Printf("%s %d %s failed: %v", kind, upstreamID, action, err)
		errs = append(errs, model.RecordError{Kind: kind, UpstreamID: upstreamID, Action: action, Message: err.Error()})
		stats.Errors++
	}

	cmp, err := p.comparator.Compare(ctx, items, fullSync)
	if err != nil {
		return stats, errs, err
	}
	for _, inv := range cmp.Invalid {
		fail(inv.Item.ID, "map", inv.Err)
	}
	if cmp.DeletionSkipped {
		p.logger.Printf("%s: deletion detection skipped, a record had no readable id", kind)
	}
	stats.Unchanged = len(cmp.Unchanged)

	// Rows with a conflict, new or left over from an earlier run, are not
	// overwritten until the conflict is resolved.
	held := make(map[uuid.UUID]bool)
	var candidates []ConflictCandidate
	for _, m := range cmp.Modified {
		local := PT(m.Local)
		if local.Meta().HasConflict {
			held[local.GetID()] = true
		}
		if !m.HasConflict {
			continue
		}
		held[local.GetID()] = true
		candidates = append(candidates, ConflictCandidate{
			Kind:         kind,
			EntityID:     local.GetID(),
			UpstreamID:   m.Item.ID,
			UpstreamData: datatypes.JSON(m.Item.Raw),
			LocalData:    contentValues(m.Local),
			Diff:         fieldDiff(m.Local, m.Incoming, m.ChangedFields),
		})
	}

	if len(candidates) > 0 {
		detected, derrs := p.conflicts.DetectConflicts(ctx, candidates, rc.RunID, !rc.DryRun)
		errs = append(errs, derrs...)
		stats.Errors += len(derrs)
		stats.Conflicts = len(detected)

		if !rc.DryRun && rc.Strategy != model.StrategyManual && len(detected) > 0 {
			resolved, rerrs := p.conflicts.ResolveConflicts(ctx, detected, rc.Strategy, rc.ResolvedBy, rc.RunID)
			errs = append(errs, rerrs...)
			stats.Errors += len(rerrs)
			stats.ConflictsResolved = len(resolved)
			for _, r := range resolved {
				// settled: keep_upstream already applied the row, keep_local left it pending
				held[r.EntityID] = false
			}
		}
	}

	var updates []ModifiedItem[T]
	for _, m := range cmp.Modified {
		hold, ok := held[PT(m.Local).GetID()]
		switch {
		case !ok:
			updates = append(updates, m)
		case hold:
			stats.Skipped++
		}
	}

	if rc.DryRun {
		stats.Created = len(cmp.New)
		stats.Updated = len(updates)
		stats.Deleted = len(cmp.Deleted)
		return stats, errs, nil
	}

	for _, incoming := range p.creationOrder(cmp.New) {
		if _, err := p.applier.Create(ctx, incoming, rc.RunID); err != nil {
			fail(PT(incoming).Meta().UpstreamID, "create", err)
			continue
		}
		stats.Created++
	}
	for _, m := range updates {
		if _, err := p.applier.Update(ctx, PT(m.Local).GetID(), m.Incoming, rc.RunID); err != nil {
			fail(m.Item.ID, "update", err)
			continue
		}
		stats.Updated++
	}
	for _, d := range cmp.Deleted {
		local := PT(d)
		if _, err := p.applier.Delete(ctx, local.GetID(), rc.RunID); err != nil {
			fail(local.Meta().UpstreamID, "delete", err)
			continue
		}
		stats.Deleted++
	}

	if err := p.relink(ctx, rc, stats, fail); err != nil {
		return stats, errs, err
	}
	return stats, errs, nil
}

// relink retries references that could not be resolved when the row was
// written, such as a material applied before its category existed.
func (p *kindPipeline[T, PT]) relink(ctx context.Context, rc *RunContext, stats *model.KindStats, fail func(int64, string, error)) error {
	r, ok := p.mapper.(relinker[T])
	if !ok {
		return nil
	}
	ref, key := r.ReferenceColumns()
	rows, err := p.repo.FindUnlinked(ctx, ref, key)
	if err != nil {
		return err
	}
	for i := range rows {
		row := PT(&rows[i])
		linked, err := p.applier.Relink(ctx, row.GetID(), rc.RunID)
		if err != nil {
			fail(row.Meta().UpstreamID, "link", err)
			continue
		}
		if linked {
			stats.Relinked++
		}
	}
	return nil
}

func (p *kindPipeline[T, PT]) creationOrder(news []NewItem[T]) []*T {
	rows := make([]*T, 0, len(news))
	for _, n := range news {
		rows = append(rows, n.Incoming)
	}
	if o, ok := p.mapper.(creationOrderer[T]); ok {
		return o.OrderForCreate(rows)
	}
	return rows
}

// Push sends every pending local edit upstream.
func (p *kindPipeline[T, PT]) Push(ctx context.Context, rc *RunContext) (*model.KindStats, []model.RecordError, error) {
	kind := p.Kind()
	stats := &model.KindStats{}
	var errs []model.RecordError

	rows, err := p.repo.FindPending(ctx)
	if err != nil {
		return stats, errs, err
	}

	for i := range rows {
		row := PT(&rows[i])
		upstreamID := row.Meta().UpstreamID
		if rc.DryRun {
			stats.Pushed++
			continue
		}

		patch := p.mapper.Patch(&rows[i])
		raw, err := p.client.Update(ctx, kind, upstreamID, patch)
		if err == nil {
			var modifiedOn *time.Time
			if item, derr := upstream.DecodeItem(raw); derr == nil {
				modifiedOn = item.ModifiedOn
			}
			err = p.applier.MarkPushed(ctx, row.GetID(), patch, modifiedOn, rc.RunID)
		}
		if err != nil {
			p.logger.Printf("%s %d push failed: %v", kind, upstreamID, err)
			errs = append(errs, model.RecordError{Kind: kind, UpstreamID: upstreamID, Action: "push", Message: err.Error()})
			stats.Errors++
			continue
		}
		stats.Pushed++
	}
	return stats, errs, nil
}

func (p *kindPipeline[T, PT]) Edit(ctx context.Context, id uuid.UUID, edit LocalEdit) (interface{}, error) {
	return p.applier.ApplyLocalEdit(ctx, id, edit)
}

func (p *kindPipeline[T, PT]) Count(ctx context.Context) (int64, error) {
	return p.repo.Count(ctx)
}

func (p *kindPipeline[T, PT]) List(ctx context.Context, q ItemQuery) (interface{}, int64, error) {
	pq := repository.PageQuery{Page: q.Page, PageSize: q.PageSize}
	if q.CategoryID != nil {
		if r, ok := p.mapper.(relinker[T]); ok {
			ref, _ := r.ReferenceColumns()
			pq.Where = map[string]interface{}{ref: *q.CategoryID}
		}
	}
	rows, total, err := p.repo.FindPage(ctx, pq)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (p *kindPipeline[T, PT]) Get(ctx context.Context, id uuid.UUID) (interface{}, error) {
	row, err := p.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}
