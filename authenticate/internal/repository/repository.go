package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")

	// ErrSchemaInvalid means the credential table lacks a required column.
	ErrSchemaInvalid = errors.New("credential store schema invalid")

	// ErrSchemaDirty means a previous migration failed half way.
	ErrSchemaDirty = errors.New("credential store migration state is dirty")
)

// CredentialStore holds one record per user. Field updates are addressed by
// record id and applied independently.
type CredentialStore interface {
	// EnsureSchema seeds the administrator record when the table is empty.
	// provisioned is true only for the call that inserted it.
	EnsureSchema(ctx context.Context) (provisioned bool, err error)

	// FindByUsername returns the lowest-id record whose trimmed username
	// equals the trimmed input.
	FindByUsername(ctx context.Context, username string) (*models.Credential, error)

	CreateCredential(ctx context.Context, username, secret string) (*models.Credential, error)

	UpdateLockState(ctx context.Context, id int64, lockedAt *time.Time) error
	UpdateFailureCount(ctx context.Context, id int64, count int) error
	UpdateLastAttempt(ctx context.Context, id int64, at time.Time) error
}

// AuditStore persists login attempts. AppendAudit assigns entry.ID from a
// monotonically increasing sequence owned by the store.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error

	// RecentAudit returns at most limit entries, newest first.
	RecentAudit(ctx context.Context, limit int) ([]*models.AuditEntry, error)
}

type Repository interface {
	CredentialStore
	AuditStore
	Close() error
}

// AdminSeed is the record provisioned into an empty credential table.
type AdminSeed struct {
	Username string
	Secret   string
}

// AdminID is the id of the provisioned administrator record.
const AdminID int64 = 1

// DefaultAdmin returns admin / admin123.
func DefaultAdmin() AdminSeed {
	return AdminSeed{Username: "admin", Secret: "admin123"}
}

func (s AdminSeed) orDefault() AdminSeed {
	d := DefaultAdmin()
	if s.Username == "" {
		s.Username = d.Username
	}
	if s.Secret == "" {
		s.Secret = d.Secret
	}
	return s
}
