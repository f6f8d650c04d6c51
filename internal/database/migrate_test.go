package database

import (
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
	dir := filepath.Join(filepath.Dir(thisFile), "..", "..", "db", "migrations")
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

// TestMigrations_UniqueConstraints guards the two indexes the services rely
// on for correctness under concurrency: the unique email (DuplicateEmail)
// and the unique directed pair (AlreadyFriends on racing adds).
func TestMigrations_UniqueConstraints(t *testing.T) {
	dir := migrationsDir(t)

	want := map[string]*regexp.Regexp{
		"users":       regexp.MustCompile(`(?i)UNIQUE KEY \w+ \(email\)`),
		"friendships": regexp.MustCompile(`(?i)UNIQUE KEY \w+ \(user_id, friend_id\)`),
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}

	found := make(map[string]bool)
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		for table, pattern := range want {
			if strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table) && pattern.Match(data) {
				found[table] = true
			}
		}
	}

	for table := range want {
		if !found[table] {
			t.Errorf("missing unique constraint on %s", table)
		}
	}
}
