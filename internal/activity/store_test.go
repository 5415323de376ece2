package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := NewGormStore(db, func() time.Time { return testClock })
	if err != nil {
		t.Fatalf("NewGormStore: %v", err)
	}
	return store
}

func TestNewGormStoreRequiresDatabase(t *testing.T) {
	if _, err := NewGormStore(nil, nil); err == nil {
		t.Fatalf("expected error without database handle")
	}
}

func TestGormStoreCreateAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := newTestActivity(2, nil)
	a.Slug = "team-climate"

	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, version, err := store.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1 after create, got %d", version)
	}
	if loaded.ID != a.ID || loaded.MaxEntries != 2 {
		t.Fatalf("round-trip mismatch: %+v", loaded)
	}

	bySlug, _, err := store.FindByID(ctx, "team-climate")
	if err != nil {
		t.Fatalf("FindByID via slug: %v", err)
	}
	if bySlug.ID != a.ID {
		t.Fatalf("expected slug lookup to resolve the same activity")
	}

	if _, _, err := store.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestGormStoreConditionalUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := newTestActivity(1, nil)
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	a.Title = "Renamed"
	if err := store.UpdateConditional(ctx, a.ID, 1, a); err != nil {
		t.Fatalf("UpdateConditional: %v", err)
	}

	loaded, version, err := store.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version bump to 2, got %d", version)
	}
	if loaded.Title != "Renamed" {
		t.Fatalf("expected the update to land, got %q", loaded.Title)
	}

	// A stale writer using the old version must observe a conflict.
	a.Title = "Stale write"
	if err := store.UpdateConditional(ctx, a.ID, 1, a); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict for stale version, got %v", err)
	}

	missing := newTestActivity(1, nil)
	missing.ID = "never-created"
	if err := store.UpdateConditional(ctx, missing.ID, 1, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown activity, got %v", err)
	}
}

func TestGormStoreListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	early := newTestActivity(1, nil)
	early.ID = "act-early"
	early.Slug = "act-early"
	late := newTestActivity(1, nil)
	late.ID = "act-late"
	late.Slug = "act-late"

	// Distinct creation timestamps via a stepped clock.
	step := testClock
	store.clock = func() time.Time {
		step = step.Add(time.Minute)
		return step
	}

	if err := store.Create(ctx, early); err != nil {
		t.Fatalf("Create early: %v", err)
	}
	if err := store.Create(ctx, late); err != nil {
		t.Fatalf("Create late: %v", err)
	}

	activities, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(activities) != 2 {
		t.Fatalf("expected two activities, got %d", len(activities))
	}
	if activities[0].ID != "act-late" {
		t.Fatalf("expected newest first, got %q", activities[0].ID)
	}
}

func TestGormStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := newTestActivity(1, nil)
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.FindByID(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for repeated delete, got %v", err)
	}
}
