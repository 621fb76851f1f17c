package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrations(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, sql := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestLoadMigrations_ParsesAndOrders(t *testing.T) {
	dir := t.TempDir()
	// Written out of order on purpose; numeric prefix decides, so 010
	// sorts after 002.
	writeMigrations(t, dir, map[string]string{
		"010_audit.sql":    "CREATE TABLE audit_logs (id UUID PRIMARY KEY);",
		"001_identity.sql": "CREATE TABLE users (id UUID PRIMARY KEY);",
		"002_visits.sql":   "CREATE TABLE visits (id UUID PRIMARY KEY);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("loaded %d migrations, want 3", len(migrations))
	}

	wantVersions := []int{1, 2, 10}
	for i, want := range wantVersions {
		if migrations[i].Version != want {
			t.Errorf("migrations[%d].Version = %d, want %d", i, migrations[i].Version, want)
		}
	}
	if migrations[0].Name != "001_identity.sql" {
		t.Errorf("name = %s, want 001_identity.sql", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE users (id UUID PRIMARY KEY);" {
		t.Errorf("SQL not carried through: %q", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsUnversionedFiles(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_identity.sql": "SELECT 1;",
		"002_visits.sql":   "SELECT 2;",
		"readme.sql":       "-- no version prefix",
		"abc_bad.sql":      "-- non-numeric prefix",
		"notes.txt":        "not sql at all",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("loaded %d migrations, want the 2 versioned ones", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("versions = %d, %d, want 1, 2", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("loaded %d migrations from an empty dir, want 0", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := NewMigrator(nil, "/no/such/dir").LoadMigrations(); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
