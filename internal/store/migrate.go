package store

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"

	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func (s *Store) runMigrations() error {
	d, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}

	var m *migrate.Migrate
	switch s.driver {
	case driverPostgres:
		pgDriver, err := pgxmigrate.WithInstance(s.db, &pgxmigrate.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", d, driverPostgres, pgDriver)
		if err != nil {
			return err
		}
	default:
		// This driver works with modernc.org/sqlite as well.
		sqliteDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", d, driverSQLite, sqliteDriver)
		if err != nil {
			return err
		}
	}

	return s.migrateErr(m.Up())
}
