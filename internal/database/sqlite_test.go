package database

import (
	"testing"

	"github.com/markothell/holoscopic-websocket-server/internal/activity"
)

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	db, err := OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	defer sqlDB.Close()

	for _, table := range []string{"activities", "db_migrations"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %q to exist", table)
		}
	}

	// Migrations are recorded so reopening does not reapply them.
	var count int64
	if err := db.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count == 0 {
		t.Fatalf("expected applied migrations to be recorded")
	}
}

func TestBackfillActivitySlugs(t *testing.T) {
	db, err := OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	defer sqlDB.Close()

	legacy := activity.Record{
		ActivityID:  "act-legacy",
		Slug:        "",
		PayloadJSON: "{}",
		Version:     1,
	}
	if err := db.Create(&legacy).Error; err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	if err := backfillActivitySlugs(db); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	var migrated activity.Record
	if err := db.Where("activity_id = ?", "act-legacy").Take(&migrated).Error; err != nil {
		t.Fatalf("load migrated row: %v", err)
	}
	if migrated.Slug != "act-legacy" {
		t.Fatalf("expected slug backfilled to the activity id, got %q", migrated.Slug)
	}
}
