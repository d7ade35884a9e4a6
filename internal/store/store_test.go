package store

import (
	"testing"

	"github.com/golang-migrate/migrate/v4"
)

func TestBindPassthroughForSQLite(t *testing.T) {
	s := &Store{driver: driverSQLite}
	q := `SELECT * FROM job_history WHERE id = ? AND dupe_key = ?`
	if got := s.bind(q); got != q {
		t.Fatalf("expected sqlite query unchanged, got %q", got)
	}
}

func TestBindRewritesPlaceholdersForPostgres(t *testing.T) {
	s := &Store{driver: driverPostgres}
	got := s.bind(`SELECT * FROM job_history WHERE id = ? AND dupe_key = ?`)
	want := `SELECT * FROM job_history WHERE id = $1 AND dupe_key = $2`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMigrateErrTreatsNoChangeAsSuccess(t *testing.T) {
	s := &Store{}
	if err := s.migrateErr(migrate.ErrNoChange); err != nil {
		t.Fatalf("expected ErrNoChange to be swallowed, got %v", err)
	}
}
