// Package store persists state that must survive a restart: per-feed item
// history (so a feed poll can tell new items from ones already seen) and
// job history (completed/deleted jobs, for the RPC History command). The
// live queue itself stays in memory, owned by internal/queue.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// driver names, also used as the golang-migrate database name.
const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// Options selects and configures the metadata backend (§A4). Driver is
// "sqlite" (default) or "postgres"; DSN is only consulted for the latter.
type Options struct {
	Driver     string
	SQLitePath string
	DSN        string
	BlobDir    string
}

// Store wraps the metadata database. Blob storage for NZB bodies lives
// alongside it on disk, addressed by job id. Queries are written against
// sqlite's `?` placeholder style and rebound to postgres's `$N` style at
// call time by bind, so the two backends share one set of SQL strings.
type Store struct {
	db      *sql.DB
	driver  string
	blobDir string
}

// Open creates (or reuses) the configured database and the blob directory
// at opts.BlobDir, then applies any pending migrations.
func Open(opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = driverSQLite
	}
	if err := os.MkdirAll(opts.BlobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}

	var db *sql.DB
	var err error
	switch driver {
	case driverSQLite:
		if err := os.MkdirAll(filepath.Dir(opts.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		db, err = sql.Open("sqlite", opts.SQLitePath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	case driverPostgres:
		db, err = sql.Open("pgx", opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver, blobDir: opts.BlobDir}
	if err := s.runMigrations(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// bind rewrites a query's sqlite-style `?` placeholders into the target
// driver's native syntax. sqlite and the pgx stdlib driver both accept
// positional args, but pgx requires `$1`, `$2`, ... rather than `?`.
func (s *Store) bind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) migrateErr(err error) error {
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// NZBPath returns where a job's original NZB body is archived, for replay
// or debugging after the in-memory queue entry is gone.
func (s *Store) NZBPath(jobID string) string {
	return filepath.Join(s.blobDir, jobID+".nzb")
}

func (s *Store) Close() error {
	return s.db.Close()
}
