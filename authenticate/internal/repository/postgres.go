package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
	"github.com/hsklearn/vocab-auth/common/database"
)

type PostgresRepository struct {
	pool   *pgxpool.Pool
	admin  AdminSeed
	logger *slog.Logger
}

// NewPostgresRepository migrates the database at databaseURL, validates the
// credential table against CredentialSchema and opens a connection pool.
func NewPostgresRepository(ctx context.Context, databaseURL string, admin AdminSeed, logger *slog.Logger) (*PostgresRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	version, err := migratePostgres(databaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("database migration complete", slog.Uint64("version", uint64(version)))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, admin: admin.orDefault(), logger: logger}
	if err := r.checkSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) columns(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1`, CredentialSchema.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential columns: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PostgresRepository) checkSchema(ctx context.Context) error {
	ctx, cancel := database.MigrateContext(ctx)
	defer cancel()

	present, err := r.columns(ctx)
	if err != nil {
		return err
	}
	missing, err := CredentialSchema.Check(present)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	for _, c := range missing {
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", CredentialSchema.Table, c.Name, c.PostgresType)
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to add column %s: %w", c.Name, err)
		}
		r.logger.Warn("added missing credential column", slog.String("column", c.Name))
	}

	present, err = r.columns(ctx)
	if err != nil {
		return err
	}
	if missing, err = CredentialSchema.Check(present); err != nil {
		return err
	} else if len(missing) > 0 {
		return fmt.Errorf("%w: column %s still missing after repair", ErrSchemaInvalid, missing[0].Name)
	}
	return nil
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) (bool, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO credentials (id, username, secret, failure_count)
		SELECT $1, $2, $3, 0
		WHERE NOT EXISTS (SELECT 1 FROM credentials)
		ON CONFLICT (id) DO NOTHING`,
		AdminID, r.admin.Username, r.admin.Secret)
	if err != nil {
		return false, mapPgError("failed to provision administrator", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.Credential, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var c models.Credential
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, secret, locked_at, failure_count, last_attempt_at
		FROM credentials
		WHERE btrim(username) = $1
		ORDER BY id
		LIMIT 1`, models.NormalizeUsername(username),
	).Scan(&c.ID, &c.Username, &c.Secret, &c.LockedAt, &c.FailureCount, &c.LastAttemptAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, mapPgError("failed to find credential", err)
	}
	return &c, nil
}

func (r *PostgresRepository) CreateCredential(ctx context.Context, username, secret string) (*models.Credential, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	name := models.NormalizeUsername(username)
	if _, err := r.FindByUsername(ctx, name); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	c := models.Credential{Username: name, Secret: secret}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO credentials (username, secret) VALUES ($1, $2) RETURNING id`,
		name, secret).Scan(&c.ID)
	if err != nil {
		return nil, mapPgError("failed to create credential", err)
	}
	return &c, nil
}

func (r *PostgresRepository) UpdateLockState(ctx context.Context, id int64, lockedAt *time.Time) error {
	return r.exec(ctx, `UPDATE credentials SET locked_at = $2 WHERE id = $1`, id, lockedAt)
}

func (r *PostgresRepository) UpdateFailureCount(ctx context.Context, id int64, count int) error {
	return r.exec(ctx, `UPDATE credentials SET failure_count = $2 WHERE id = $1`, id, count)
}

func (r *PostgresRepository) UpdateLastAttempt(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE credentials SET last_attempt_at = $2 WHERE id = $1`, id, at)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapPgError("failed to update credential", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO login_audit (attempted_at, username, success, ip, user_agent, signature)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.Timestamp, entry.Username, entry.Success, entry.IP, entry.UserAgent, entry.Signature,
	).Scan(&entry.ID)
	if err != nil {
		return mapPgError("failed to append audit entry", err)
	}
	return nil
}

func (r *PostgresRepository) RecentAudit(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		return []*models.AuditEntry{}, nil
	}
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id, attempted_at, username, success, ip, user_agent, signature
		FROM login_audit
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, mapPgError("failed to read audit entries", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0, limit)
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Username, &e.Success, &e.IP, &e.UserAgent, &e.Signature); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}
	return entries, nil
}

// mapPgError turns undefined table/column errors into ErrSchemaInvalid so a
// table altered after startup is reported as a configuration problem.
func mapPgError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42703", "42P01": // undefined_column, undefined_table
			return fmt.Errorf("%s: %w: %s", msg, ErrSchemaInvalid, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
