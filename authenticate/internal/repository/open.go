package repository

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Type        string
	PostgresURL string
	SQLitePath  string
	Admin       AdminSeed
}

// Open returns the repository for opts.Type. SQL backends are migrated and
// their credential schema validated before Open returns.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Repository, error) {
	switch opts.Type {
	case BackendMemory, "":
		return NewInMemoryRepository(opts.Admin), nil
	case BackendPostgres:
		if opts.PostgresURL == "" {
			return nil, fmt.Errorf("database.postgres url is required for the postgres backend")
		}
		return NewPostgresRepository(ctx, opts.PostgresURL, opts.Admin, logger)
	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("database.sqlite.path is required for the sqlite backend")
		}
		return NewSQLiteRepository(ctx, SQLiteDSN(opts.SQLitePath), opts.Admin, logger)
	default:
		return nil, fmt.Errorf("unsupported database type %q", opts.Type)
	}
}
