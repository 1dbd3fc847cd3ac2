package database

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	dir := migrationsDir(t)
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing up files: %v", err)
	}
	if len(upFiles) == 0 {
		t.Fatal("no migration files found")
	}

	for _, up := range upFiles {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}

// TestMigrations_DocumentsTableMatchesLocalSchema checks that the remote
// documents table keeps the columns the local cache mirrors. The stores copy
// rows between the two, so a renamed column breaks fallback reads.
func TestMigrations_DocumentsTableMatchesLocalSchema(t *testing.T) {
	dir := migrationsDir(t)
	data, err := os.ReadFile(filepath.Join(dir, "000001_create_documents.up.sql"))
	if err != nil {
		t.Fatalf("reading documents migration: %v", err)
	}
	content := string(data)

	columnPattern := regexp.MustCompile(`(?m)^\s+(\w+)\s+(?:VARCHAR|JSON|DATETIME)`)
	var columns []string
	for _, m := range columnPattern.FindAllStringSubmatch(content, -1) {
		columns = append(columns, m[1])
	}

	for _, want := range []string{"collection", "id", "data", "updated_at"} {
		found := false
		for _, c := range columns {
			if c == want {
				found = true
			}
		}
		if !found {
			t.Errorf("documents table missing column %q (have %v)", want, columns)
		}
		if !strings.Contains(localSchema, want) {
			t.Errorf("local schema missing column %q", want)
		}
	}

	if !strings.Contains(content, "PRIMARY KEY (collection, id)") {
		t.Error("documents table must be keyed by (collection, id)")
	}
}

func TestNewSQLite_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "local.db")
	db, err := NewSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer db.Close()

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='documents'`).Scan(&name)
	if err != nil {
		t.Fatalf("documents table not created: %v", err)
	}
}

func TestNewSQLite_RequiresPath(t *testing.T) {
	if _, err := NewSQLite(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
