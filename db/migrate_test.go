package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrateCreatesAllTables(t *testing.T) {
	database := openMemoryDB(t)

	if err := Migrate(database, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{"schema_migrations", "books", "chunks", "jobs", "job_logs"} {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openMemoryDB(t)

	if err := Migrate(database, nil); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(database, nil); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}

	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 recorded migrations, got %d", count)
	}
}
