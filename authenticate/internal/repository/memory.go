package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
)

// InMemoryRepository keeps credentials and audit entries in process memory.
// Used for development and tests.
type InMemoryRepository struct {
	admin AdminSeed

	mu          sync.RWMutex
	credentials []*models.Credential
	nextCredID  int64
	audit       []*models.AuditEntry

	auditSeq atomic.Int64
}

func NewInMemoryRepository(admin AdminSeed) *InMemoryRepository {
	return &InMemoryRepository{
		admin:      admin.orDefault(),
		nextCredID: AdminID + 1,
	}
}

func (r *InMemoryRepository) Close() error { return nil }

func (r *InMemoryRepository) EnsureSchema(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.credentials) > 0 {
		return false, nil
	}
	r.credentials = append(r.credentials, &models.Credential{
		ID:       AdminID,
		Username: r.admin.Username,
		Secret:   r.admin.Secret,
	})
	return true, nil
}

func (r *InMemoryRepository) FindByUsername(ctx context.Context, username string) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := models.NormalizeUsername(username)
	var found *models.Credential
	for _, c := range r.credentials {
		if models.NormalizeUsername(c.Username) != want {
			continue
		}
		if found == nil || c.ID < found.ID {
			found = c
		}
	}
	if found == nil {
		return nil, ErrUserNotFound
	}
	cp := copyCredential(found)
	return &cp, nil
}

func (r *InMemoryRepository) CreateCredential(ctx context.Context, username, secret string) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := models.NormalizeUsername(username)
	for _, c := range r.credentials {
		if models.NormalizeUsername(c.Username) == name {
			return nil, ErrUserExists
		}
	}
	c := &models.Credential{ID: r.nextCredID, Username: name, Secret: secret}
	r.nextCredID++
	r.credentials = append(r.credentials, c)

	cp := copyCredential(c)
	return &cp, nil
}

func (r *InMemoryRepository) UpdateLockState(ctx context.Context, id int64, lockedAt *time.Time) error {
	return r.update(id, func(c *models.Credential) {
		if lockedAt == nil {
			c.LockedAt = nil
			return
		}
		t := *lockedAt
		c.LockedAt = &t
	})
}

func (r *InMemoryRepository) UpdateFailureCount(ctx context.Context, id int64, count int) error {
	return r.update(id, func(c *models.Credential) { c.FailureCount = count })
}

func (r *InMemoryRepository) UpdateLastAttempt(ctx context.Context, id int64, at time.Time) error {
	return r.update(id, func(c *models.Credential) { c.LastAttemptAt = &at })
}

func (r *InMemoryRepository) update(id int64, fn func(*models.Credential)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.credentials {
		if c.ID == id {
			fn(c)
			return nil
		}
	}
	return ErrUserNotFound
}

func (r *InMemoryRepository) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	entry.ID = r.auditSeq.Add(1)
	stored := *entry

	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = append(r.audit, &stored)
	return nil
}

func (r *InMemoryRepository) RecentAudit(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		return []*models.AuditEntry{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.AuditEntry, 0, min(limit, len(r.audit)))
	for _, e := range r.audit {
		cp := *e
		out = append(out, &cp)
	}
	// Concurrent appends may land out of id order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyCredential(c *models.Credential) models.Credential {
	cp := *c
	if c.LockedAt != nil {
		t := *c.LockedAt
		cp.LockedAt = &t
	}
	if c.LastAttemptAt != nil {
		t := *c.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	return cp
}
