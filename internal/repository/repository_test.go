package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/pkg/database"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "repo.db"), logger.Silent)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSyncLock(t *testing.T) {
	db := setupTestDB(t)
	locks := NewSyncLockRepo(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	ok, err := locks.TryAcquire(ctx, "pricebook", "run-a", now, time.Hour)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = locks.TryAcquire(ctx, "pricebook", "run-b", now.Add(time.Minute), time.Hour)
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}

	// Releasing with the wrong owner leaves the lock in place.
	if err := locks.Release(ctx, "pricebook", "run-b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if held, _ := locks.Find(ctx, "pricebook"); held == nil || held.Owner != "run-a" {
		t.Fatalf("lock = %+v, want run-a", held)
	}

	// An expired lock is reclaimed.
	ok, err = locks.TryAcquire(ctx, "pricebook", "run-c", now.Add(2*time.Hour), time.Hour)
	if err != nil || !ok {
		t.Fatalf("reclaim: ok=%v err=%v", ok, err)
	}
	if err := locks.Release(ctx, "pricebook", "run-c"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if held, _ := locks.Find(ctx, "pricebook"); held != nil {
		t.Fatalf("lock should be free, got %+v", held)
	}
}

func TestSyncStateDefaultsAndSave(t *testing.T) {
	db := setupTestDB(t)
	states := NewSyncStateRepo(db)
	ctx := context.Background()

	st, err := states.Get(ctx, "material")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Scope != "material" || st.WatermarkTS != nil {
		t.Fatalf("unexpected empty state: %+v", st)
	}

	mark := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st.WatermarkTS = &mark
	if err := states.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := states.Get(ctx, "material")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.WatermarkTS == nil || !got.WatermarkTS.Equal(mark) {
		t.Errorf("watermark = %v, want %v", got.WatermarkTS, mark)
	}
}

func newMaterial(upstreamID int64, name string) *model.Material {
	m := &model.Material{}
	m.UpstreamID = upstreamID
	m.Name = name
	m.Active = true
	m.Price = decimal.RequireFromString("10.00")
	m.SyncStatus = model.SyncStatusSynced
	m.SyncDirection = model.DirectionFromUpstream
	return m
}

func TestItemRepoSoftDeleteAndUnscopedLookup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewItemRepo[model.Material, *model.Material](db)
	ctx := context.Background()

	a, b := newMaterial(1, "Pipe"), newMaterial(2, "Valve")
	for _, m := range []*model.Material{a, b} {
		if err := repo.Create(db, m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	ids, err := repo.LocalIDsByUpstreamIDs(db, []int64{1, 2, 99})
	if err != nil {
		t.Fatalf("LocalIDsByUpstreamIDs: %v", err)
	}
	if len(ids) != 2 || ids[1] != a.ID || ids[2] != b.ID {
		t.Fatalf("ids = %v", ids)
	}

	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if err := repo.SoftDelete(db, a.ID, at); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("live count = %d, want 1", n)
	}
	if _, err := repo.FindByID(ctx, a.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("deleted row should be hidden, got %v", err)
	}

	gone, err := repo.FindByUpstreamIDUnscoped(db, 1)
	if err != nil {
		t.Fatalf("unscoped lookup: %v", err)
	}
	if !gone.IsDeleted() || !gone.DeletedInUpstream {
		t.Errorf("row should be soft deleted: %+v", gone.SyncMeta)
	}

	gone.Restore()
	gone.DeletedInUpstream = false
	if err := repo.Save(db, gone); err != nil {
		t.Fatalf("save: %v", err)
	}
	if n, _ := repo.Count(ctx); n != 2 {
		t.Errorf("live count after restore = %d, want 2", n)
	}

	if err := repo.UpdateMeta(db, a.ID, map[string]interface{}{"sync_status": model.SyncStatusPending}); err != nil {
		t.Fatalf("update meta: %v", err)
	}
	pending, err := repo.FindPending(ctx)
	if err != nil || len(pending) != 1 || pending[0].ID != a.ID {
		t.Errorf("pending = %v err=%v", pending, err)
	}
}

func TestItemRepoPageAndUnlinked(t *testing.T) {
	db := setupTestDB(t)
	repo := NewItemRepo[model.Material, *model.Material](db)
	ctx := context.Background()

	for id := int64(1); id <= 7; id++ {
		m := newMaterial(id, "Item")
		category := 1 + id%2
		m.CategoryUpstreamID = &category
		if id == 3 {
			m.CategoryUpstreamID = nil
		}
		if err := repo.Create(db, m); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
	}
	linked, _ := repo.FindByUpstreamIDUnscoped(db, 5)
	if err := repo.UpdateMeta(db, linked.ID, map[string]interface{}{"category_id": linked.ID}); err != nil {
		t.Fatalf("link: %v", err)
	}
	gone, _ := repo.FindByUpstreamIDUnscoped(db, 7)
	if err := repo.SoftDelete(db, gone.ID, time.Now()); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	rows, total, err := repo.FindPage(ctx, PageQuery{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if total != 6 || len(rows) != 2 || rows[0].UpstreamID != 3 || rows[1].UpstreamID != 4 {
		t.Errorf("page 2 = total %d rows %v", total, rows)
	}

	rows, total, err = repo.FindPage(ctx, PageQuery{Page: 1, PageSize: 10, Where: map[string]interface{}{"category_upstream_id": 2}})
	if err != nil {
		t.Fatalf("filtered page: %v", err)
	}
	if total != 2 || len(rows) != 2 || rows[0].UpstreamID != 1 || rows[1].UpstreamID != 5 {
		t.Errorf("category 2 = total %d rows %v, want 1 and 5", total, rows)
	}

	unlinked, err := repo.FindUnlinked(ctx, "category_upstream_id", "category_id")
	if err != nil {
		t.Fatalf("unlinked: %v", err)
	}
	var ids []int64
	for _, m := range unlinked {
		ids = append(ids, m.UpstreamID)
	}
	if len(ids) != 4 || ids[0] != 1 || ids[1] != 2 || ids[2] != 4 || ids[3] != 6 {
		t.Errorf("unlinked = %v, want [1 2 4 6]", ids)
	}
}
