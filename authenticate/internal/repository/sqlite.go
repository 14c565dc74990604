package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
	"github.com/hsklearn/vocab-auth/common/database"
)

// SQLiteRepository stores credentials in a single SQLite file. Writes go
// through a one-connection pool to avoid "database is locked" errors.
type SQLiteRepository struct {
	writer *sql.DB
	reader *sql.DB
	admin  AdminSeed
	logger *slog.Logger
}

// SQLiteDSN builds a DSN for path with WAL, a busy timeout and NORMAL sync.
func SQLiteDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		path,
	)
}

// NewSQLiteRepository opens dsn, applies migrations and validates the
// credential table against CredentialSchema.
func NewSQLiteRepository(ctx context.Context, dsn string, admin AdminSeed, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(ctx); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	r := &SQLiteRepository{writer: writer, reader: reader, admin: admin.orDefault(), logger: logger}

	version, err := migrateSQLite(writer)
	if err != nil {
		r.Close()
		return nil, err
	}
	logger.Info("database migration complete", slog.Uint64("version", uint64(version)))

	if err := r.checkSchema(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Close closes both connections. Returns the first error encountered.
func (r *SQLiteRepository) Close() error {
	var firstErr error
	if err := r.reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := r.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}

func (r *SQLiteRepository) columns(ctx context.Context) ([]string, error) {
	rows, err := r.writer.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, CredentialSchema.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to read credential columns: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func (r *SQLiteRepository) checkSchema(ctx context.Context) error {
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
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", CredentialSchema.Table, c.Name, c.SQLiteType)
		// SQLite has no ADD COLUMN IF NOT EXISTS; another opener may have won.
		if _, err := r.writer.ExecContext(ctx, ddl); err != nil && !strings.Contains(err.Error(), "duplicate column") {
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

func (r *SQLiteRepository) EnsureSchema(ctx context.Context) (bool, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	res, err := r.writer.ExecContext(ctx, `
		INSERT INTO credentials (id, username, secret, failure_count)
		SELECT ?, ?, ?, 0
		WHERE NOT EXISTS (SELECT 1 FROM credentials)
		ON CONFLICT (id) DO NOTHING`,
		AdminID, r.admin.Username, r.admin.Secret)
	if err != nil {
		return false, mapSQLiteError("failed to provision administrator", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to provision administrator: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) FindByUsername(ctx context.Context, username string) (*models.Credential, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var (
		c           models.Credential
		lockedAt    sql.NullInt64
		lastAttempt sql.NullInt64
	)
	err := r.reader.QueryRowContext(ctx, `
		SELECT id, username, secret, locked_at, failure_count, last_attempt_at
		FROM credentials
		WHERE trim(username) = ?
		ORDER BY id
		LIMIT 1`, models.NormalizeUsername(username),
	).Scan(&c.ID, &c.Username, &c.Secret, &lockedAt, &c.FailureCount, &lastAttempt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, mapSQLiteError("failed to find credential", err)
	}
	c.LockedAt = fromMillis(lockedAt)
	c.LastAttemptAt = fromMillis(lastAttempt)
	return &c, nil
}

func (r *SQLiteRepository) CreateCredential(ctx context.Context, username, secret string) (*models.Credential, error) {
	name := models.NormalizeUsername(username)
	if _, err := r.FindByUsername(ctx, name); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	// Keep id 1 free for the administrator, matching the postgres identity.
	res, err := r.writer.ExecContext(ctx, `
		INSERT INTO credentials (id, username, secret)
		VALUES (max(2, (SELECT coalesce(max(id), 0) + 1 FROM credentials)), ?, ?)`,
		name, secret)
	if err != nil {
		return nil, mapSQLiteError("failed to create credential", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	return &models.Credential{ID: id, Username: name, Secret: secret}, nil
}

func (r *SQLiteRepository) UpdateLockState(ctx context.Context, id int64, lockedAt *time.Time) error {
	var v any
	if lockedAt != nil {
		v = lockedAt.UnixMilli()
	}
	return r.exec(ctx, `UPDATE credentials SET locked_at = ? WHERE id = ?`, v, id)
}

func (r *SQLiteRepository) UpdateFailureCount(ctx context.Context, id int64, count int) error {
	return r.exec(ctx, `UPDATE credentials SET failure_count = ? WHERE id = ?`, count, id)
}

func (r *SQLiteRepository) UpdateLastAttempt(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE credentials SET last_attempt_at = ? WHERE id = ?`, at.UnixMilli(), id)
}

func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	res, err := r.writer.ExecContext(ctx, query, args...)
	if err != nil {
		return mapSQLiteError("failed to update credential", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *SQLiteRepository) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	res, err := r.writer.ExecContext(ctx, `
		INSERT INTO login_audit (attempted_at, username, success, ip, user_agent, signature)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UnixMilli(), entry.Username, entry.Success, entry.IP, entry.UserAgent, entry.Signature)
	if err != nil {
		return mapSQLiteError("failed to append audit entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	entry.ID = id
	return nil
}

func (r *SQLiteRepository) RecentAudit(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		return []*models.AuditEntry{}, nil
	}
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.reader.QueryContext(ctx, `
		SELECT id, attempted_at, username, success, ip, user_agent, signature
		FROM login_audit
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, mapSQLiteError("failed to read audit entries", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e  models.AuditEntry
			ms int64
		)
		if err := rows.Scan(&e.ID, &ms, &e.Username, &e.Success, &e.IP, &e.UserAgent, &e.Signature); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(ms).UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}
	return entries, nil
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func mapSQLiteError(msg string, err error) error {
	s := err.Error()
	if strings.Contains(s, "no such column") || strings.Contains(s, "no such table") {
		return fmt.Errorf("%s: %w: %s", msg, ErrSchemaInvalid, s)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
