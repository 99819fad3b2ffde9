package sqlite

import (
	"strings"
	"testing"
)

func TestUpSection(t *testing.T) {
	in := "-- +migrate Up\nCREATE TABLE a (x INT);\n\n-- +migrate Down\nDROP TABLE a;\n"
	got := strings.TrimSpace(upSection(in))
	if got != "CREATE TABLE a (x INT);" {
		t.Fatalf("unexpected up section: %q", got)
	}
	if upSection("DROP TABLE a;") != "" {
		t.Fatal("expected empty up section without marker")
	}
}

func TestLoadMigrations_Ordered(t *testing.T) {
	ms, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(ms) == 0 || ms[0].version != 1 {
		t.Fatalf("unexpected migrations: %+v", ms)
	}
	for i := 1; i < len(ms); i++ {
		if ms[i-1].version >= ms[i].version {
			t.Fatalf("migrations not ordered: %+v", ms)
		}
	}
	if !strings.Contains(ms[0].up, "CREATE TABLE IF NOT EXISTS settings") {
		t.Fatalf("settings table missing from first migration: %q", ms[0].up)
	}
}

func TestDSN(t *testing.T) {
	if dsn(":memory:") != ":memory:" {
		t.Fatal("memory dsn must be left untouched")
	}
	if got := dsn("subseek.db"); !strings.HasPrefix(got, "file:subseek.db?") || !strings.Contains(got, "busy_timeout") {
		t.Fatalf("unexpected dsn: %q", got)
	}
}
