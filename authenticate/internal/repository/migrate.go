package repository

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

func migrationSource(dialect string) (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return src, nil
}

// migratePostgres applies the embedded postgres migrations over a dedicated
// connection opened from databaseURL.
func migratePostgres(databaseURL string) (uint, error) {
	src, err := migrationSource("postgres")
	if err != nil {
		return 0, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	return applyMigrations(m)
}

// migrateSQLite applies the embedded sqlite migrations on db. The migrator is
// not closed because that would close db.
func migrateSQLite(db *sql.DB) (uint, error) {
	src, err := migrationSource("sqlite")
	if err != nil {
		return 0, err
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("create migration db driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}
	return applyMigrations(m)
}

func applyMigrations(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return 0, fmt.Errorf("read migration version: %w", err)
	case dirty:
		return version, fmt.Errorf("%w: version %d", ErrSchemaDirty, version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return uint(dirtyErr.Version), fmt.Errorf("%w: version %d", ErrSchemaDirty, dirtyErr.Version)
		}
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	version, _, err = m.Version()
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if version < CredentialSchema.Version {
		return version, fmt.Errorf("%w: migrated to version %d, need %d", ErrSchemaInvalid, version, CredentialSchema.Version)
	}
	return version, nil
}
