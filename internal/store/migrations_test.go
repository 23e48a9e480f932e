package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			t.Fatalf("migration file %s does not follow NNNN_name.up|down.sql", name)
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestInitialSchemaCoversAttendanceTables(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}
	schema := string(contents)

	for _, table := range []string{"campaigns", "persons", "users", "tests", "operators", "operator_tests", "user_tests", "test_roster", "applicants"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("initial migration missing table %s", table)
		}
	}

	// user_id on operators is a weak reference that may dangle after hard
	// credential revocation; a foreign key there would break that. Only the
	// operators block matters: user_tests legitimately references users.
	start := strings.Index(schema, "CREATE TABLE IF NOT EXISTS operators")
	if start < 0 {
		t.Fatal("operators table not found in initial migration")
	}
	end := strings.Index(schema[start:], ");")
	if end < 0 {
		t.Fatal("operators table block not terminated")
	}
	if block := schema[start : start+end]; strings.Contains(block, "REFERENCES users") {
		t.Error("operators.user_id must not carry a foreign key to users")
	}
}
