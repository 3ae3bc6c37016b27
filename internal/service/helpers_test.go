package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/repository"
	"go-pricebook-sync/internal/upstream"
	"go-pricebook-sync/pkg/database"
	"go-pricebook-sync/pkg/logger"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "pricebook.db"), gormlogger.Silent)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testClock hands out a controllable "now".
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type pushedPatch struct {
	Kind  model.EntityType
	ID    int64
	Patch map[string]interface{}
}

// fakeUpstream serves fixtures keyed by kind and upstream id.
type fakeUpstream struct {
	mu        sync.Mutex
	items     map[model.EntityType]map[int64]json.RawMessage
	listErr   map[model.EntityType]error
	updateErr error
	pushed    []pushedPatch
	stamp     time.Time
	lists     int
	listed    []upstream.ListOptions
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		items:   make(map[model.EntityType]map[int64]json.RawMessage),
		listErr: make(map[model.EntityType]error),
	}
}

func (f *fakeUpstream) put(kind model.EntityType, id int64, raw json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items[kind] == nil {
		f.items[kind] = make(map[int64]json.RawMessage)
	}
	f.items[kind][id] = raw
}

func (f *fakeUpstream) remove(kind model.EntityType, id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items[kind], id)
}

func (f *fakeUpstream) List(ctx context.Context, kind model.EntityType, opts upstream.ListOptions) (*upstream.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if opts.Page == 1 {
		f.listed = append(f.listed, opts)
	}
	if err := f.listErr[kind]; err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(f.items[kind]))
	for id := range f.items[kind] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var matched []json.RawMessage
	for _, id := range ids {
		raw := f.items[kind][id]
		if opts.ModifiedSince != nil {
			item, err := upstream.DecodeItem(raw)
			if err == nil && item.ModifiedOn != nil && item.ModifiedOn.Before(*opts.ModifiedSince) {
				continue
			}
		}
		if opts.CategoryID != nil && !inCategory(raw, *opts.CategoryID) {
			continue
		}
		matched = append(matched, raw)
	}

	start := (opts.Page - 1) * opts.PageSize
	if start >= len(matched) {
		return &upstream.Page{}, nil
	}
	end := start + opts.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return &upstream.Page{Data: matched[start:end], HasMore: end < len(matched)}, nil
}

func inCategory(raw json.RawMessage, category int64) bool {
	var body struct {
		CategoryID *int64  `json:"categoryId"`
		Categories []int64 `json:"categories"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	if body.CategoryID != nil && *body.CategoryID == category {
		return true
	}
	for _, c := range body.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func (f *fakeUpstream) Get(ctx context.Context, kind model.EntityType, id int64) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.items[kind][id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return raw, nil
}

func (f *fakeUpstream) Update(ctx context.Context, kind model.EntityType, id int64, patch map[string]interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.pushed = append(f.pushed, pushedPatch{Kind: kind, ID: id, Patch: patch})
	body := map[string]interface{}{"id": id}
	if !f.stamp.IsZero() {
		body["modifiedOn"] = f.stamp
	}
	raw, _ := json.Marshal(body)
	return raw, nil
}

func categoryJSON(id int64, name string, parent int64, modified *time.Time) json.RawMessage {
	body := map[string]interface{}{"id": id, "name": name, "active": true}
	if parent != 0 {
		body["parentId"] = parent
	}
	if modified != nil {
		body["modifiedOn"] = modified.Format(time.RFC3339Nano)
	}
	raw, _ := json.Marshal(body)
	return raw
}

// materialJSON takes the price as a JSON literal so tests can send malformed values.
func materialJSON(id int64, name, price string, category int64, modified *time.Time) json.RawMessage {
	s := fmt.Sprintf(`{"id":%d,"code":"M-%d","displayName":%q,"active":true,"price":%s,"unitOfMeasure":"ea"`, id, id, name, price)
	if category != 0 {
		s += fmt.Sprintf(`,"categories":[%d]`, category)
	}
	if modified != nil {
		s += fmt.Sprintf(`,"modifiedOn":%q`, modified.Format(time.RFC3339Nano))
	}
	return json.RawMessage(s + "}")
}

// lastList returns the options of the most recent first-page list call.
func (f *fakeUpstream) lastList(t *testing.T) upstream.ListOptions {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.listed) == 0 {
		t.Fatalf("upstream was never listed")
	}
	return f.listed[len(f.listed)-1]
}

func ts(t time.Time) *time.Time {
	return &t
}

type testEnv struct {
	db       *gorm.DB
	upstream *fakeUpstream
	clock    *testClock
	c        *Components
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	fake := newFakeUpstream()
	clock := newTestClock()
	c := NewComponents(db, fake, EngineConfig{
		PageSize:        7,
		LockTTL:         time.Hour,
		DefaultStrategy: model.StrategyManual,
		Scheduler: SchedulerConfig{
			FullSyncCron:        "0 2 * * *",
			IncrementalSyncCron: "0 */4 * * *",
		},
		Now: clock.Now,
	}, nil, logger.Discard())
	return &testEnv{db: db, upstream: fake, clock: clock, c: c}
}

func (e *testEnv) run(t *testing.T, opts SyncOptions) *model.RunResult {
	t.Helper()
	res, err := e.c.Sync.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func (e *testEnv) material(t *testing.T, upstreamID int64) *model.Material {
	t.Helper()
	var m model.Material
	if err := e.db.Unscoped().First(&m, "upstream_id = ?", upstreamID).Error; err != nil {
		t.Fatalf("load material %d: %v", upstreamID, err)
	}
	return &m
}

func (e *testEnv) state(t *testing.T, kind model.EntityType) *model.SyncState {
	t.Helper()
	state, err := repository.NewSyncStateRepo(e.db).Get(context.Background(), string(kind))
	if err != nil {
		t.Fatalf("load %s state: %v", kind, err)
	}
	return state
}

func (e *testEnv) count(t *testing.T, value interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.db.Unscoped().Model(value)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// checkConflictInvariant asserts that a live row is flagged iff it has an
// unresolved conflict record.
func (e *testEnv) checkConflictInvariant(t *testing.T) {
	t.Helper()
	var materials []model.Material
	if err := e.db.Find(&materials).Error; err != nil {
		t.Fatalf("load materials: %v", err)
	}
	for _, m := range materials {
		open := e.count(t, &model.SyncConflict{}, "entity_id = ? AND status = ?", m.ID, model.ConflictUnresolved)
		if m.HasConflict != (open > 0) {
			t.Errorf("material %d: has_conflict=%t but %d unresolved conflict(s)", m.UpstreamID, m.HasConflict, open)
		}
		if m.HasConflict != (m.SyncStatus == model.SyncStatusConflict) {
			t.Errorf("material %d: has_conflict=%t but sync_status=%s", m.UpstreamID, m.HasConflict, m.SyncStatus)
		}
	}
}
