package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 {
		t.Fatal("no migrations embedded")
	}

	body, err := migrationFiles.ReadFile(names[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"btree_gist", "bookings_no_overlap", "CREATE TABLE IF NOT EXISTS event_logs"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("%s does not contain %q", names[0], want)
		}
	}
}
