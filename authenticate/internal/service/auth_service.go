package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hsklearn/vocab-auth/authenticate/internal/audit"
	"github.com/hsklearn/vocab-auth/authenticate/internal/locker"
	"github.com/hsklearn/vocab-auth/authenticate/internal/lockout"
	"github.com/hsklearn/vocab-auth/authenticate/internal/metrics"
	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
	"github.com/hsklearn/vocab-auth/authenticate/internal/repository"
	"github.com/hsklearn/vocab-auth/common/logging"
)

var (
	// ErrConfiguration means the credential store is malformed.
	ErrConfiguration = errors.New("configuration error")

	ErrUserNotFound = repository.ErrUserNotFound
)

// Outcome classifies a verification result.
type Outcome int

const (
	OutcomeSystemInitialized Outcome = iota + 1
	OutcomeUserNotFound
	OutcomeAlreadyLocked
	OutcomeSuccess
	OutcomeInvalidCredential
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSystemInitialized:
		return "system_initialized"
	case OutcomeUserNotFound:
		return "user_not_found"
	case OutcomeAlreadyLocked:
		return "already_locked"
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCredential:
		return "invalid_credential"
	default:
		return "unknown"
	}
}

// VerifyResult is the structured result of a verification.
type VerifyResult struct {
	Outcome  Outcome
	Username string

	// Locked is true for OutcomeAlreadyLocked and for an invalid credential
	// that reached the threshold. LockedAt is then set.
	Locked   bool
	LockedAt *time.Time

	// Remaining is set for an invalid credential below the threshold.
	Remaining int
}

func (r VerifyResult) Authenticated() bool { return r.Outcome == OutcomeSuccess }

// Meta is what the caller could observe about the client.
type Meta struct {
	IP        string
	UserAgent string
}

type AuthService struct {
	store    repository.CredentialStore
	auditLog *audit.Log
	locks    locker.Locker
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(store repository.CredentialStore, auditLog *audit.Log, locks locker.Locker, logger *slog.Logger) *AuthService {
	if locks == nil {
		locks = locker.NewKeyedMutex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:    store,
		auditLog: auditLog,
		locks:    locks,
		logger:   logger,
		now:      time.Now,
	}
}

// Verify checks username/password and applies the lockout rules. An attempt
// against an already locked account is not audited.
func (s *AuthService) Verify(ctx context.Context, username, password string, meta Meta) (VerifyResult, error) {
	return s.verify(ctx, username, password, meta, false)
}

// VerifyAuditingBlocked is Verify, except that attempts against an already
// locked account are also audited as failures.
func (s *AuthService) VerifyAuditingBlocked(ctx context.Context, username, password string, meta Meta) (VerifyResult, error) {
	return s.verify(ctx, username, password, meta, true)
}

func (s *AuthService) verify(ctx context.Context, username, password string, meta Meta, auditBlocked bool) (VerifyResult, error) {
	start := time.Now()
	defer func() { metrics.VerifyDuration.Observe(time.Since(start).Seconds()) }()

	name := models.NormalizeUsername(username)

	provisioned, err := s.store.EnsureSchema(ctx)
	if err != nil {
		return VerifyResult{}, s.storeError("ensure schema", err)
	}
	if provisioned {
		metrics.ProvisionedTotal.Inc()
		s.logger.InfoContext(ctx, "credential store provisioned with default administrator")
		return s.finish(VerifyResult{Outcome: OutcomeSystemInitialized}), nil
	}

	now := s.now()
	decision, cred, err := s.evaluate(ctx, name, password, now)
	if errors.Is(err, repository.ErrUserNotFound) {
		return s.finish(VerifyResult{Outcome: OutcomeUserNotFound, Username: name}), nil
	}
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{
		Username:  name,
		Locked:    decision.Locked(),
		LockedAt:  decision.LockedAt,
		Remaining: decision.Remaining,
	}
	switch decision.Kind {
	case lockout.AlreadyLocked:
		result.Outcome = OutcomeAlreadyLocked
	case lockout.Success:
		result.Outcome = OutcomeSuccess
	default:
		result.Outcome = OutcomeInvalidCredential
	}

	if decision.Kind != lockout.AlreadyLocked || auditBlocked {
		s.appendAudit(ctx, audit.Attempt{
			Username:  name,
			Success:   decision.Authenticated(),
			Timestamp: &now,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
		})
	}

	if decision.Kind == lockout.FailureLockout {
		metrics.LockoutsTotal.Inc()
		s.logger.WarnContext(ctx, "account locked after repeated failures",
			logging.Username(name),
			slog.Int("failure_count", lockout.MaxFailedAttempts),
			slog.Int64("credential_id", cred.ID),
		)
		s.auditLog.NotifyLocked(ctx, name, *decision.LockedAt)
	}

	return s.finish(result), nil
}

// evaluate runs lookup, decision and write-back under the identity lock.
func (s *AuthService) evaluate(ctx context.Context, name, password string, now time.Time) (lockout.Decision, *models.Credential, error) {
	unlock, err := s.locks.Lock(ctx, name)
	if err != nil {
		return lockout.Decision{}, nil, fmt.Errorf("acquire identity lock: %w", err)
	}
	defer unlock()

	cred, err := s.store.FindByUsername(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return lockout.Decision{}, nil, err
		}
		return lockout.Decision{}, nil, s.storeError("find credential", err)
	}

	decision := lockout.Evaluate(*cred, password, now)
	if err := s.apply(ctx, cred.ID, decision.Mutation); err != nil {
		return lockout.Decision{}, nil, err
	}
	return decision, cred, nil
}

func (s *AuthService) apply(ctx context.Context, id int64, m lockout.Mutation) error {
	if m.FailureCount != nil {
		if err := s.store.UpdateFailureCount(ctx, id, *m.FailureCount); err != nil {
			return s.storeError("update failure count", err)
		}
	}
	if m.LastAttemptAt != nil {
		if err := s.store.UpdateLastAttempt(ctx, id, *m.LastAttemptAt); err != nil {
			return s.storeError("update last attempt", err)
		}
	}
	if m.LockedAt != nil {
		if err := s.store.UpdateLockState(ctx, id, m.LockedAt); err != nil {
			return s.storeError("update lock state", err)
		}
	}
	return nil
}

// appendAudit records an attempt made through Verify. The credential state is
// already durable, so a failed append is logged rather than returned.
func (s *AuthService) appendAudit(ctx context.Context, a audit.Attempt) {
	if _, err := s.auditLog.Append(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to append audit entry",
			logging.Username(a.Username),
			logging.Error(err),
		)
	}
}

func (s *AuthService) finish(r VerifyResult) VerifyResult {
	metrics.VerifyTotal.WithLabelValues(r.Outcome.String()).Inc()
	return r
}

// RecordAttempt appends an externally decided attempt without touching the
// credential store. A nil timestamp means now.
func (s *AuthService) RecordAttempt(ctx context.Context, username string, success bool, timestamp *time.Time, meta Meta) (*models.AuditEntry, error) {
	entry, err := s.auditLog.Append(ctx, audit.Attempt{
		Username:  username,
		Success:   success,
		Timestamp: timestamp,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return entry, nil
}

// ListHistory returns the most recent audit entries, newest first.
func (s *AuthService) ListHistory(ctx context.Context) ([]*models.AuditEntry, error) {
	entries, err := s.auditLog.Recent(ctx, audit.MaxRecent)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// Unlock clears the lock and resets the failure count. Unlocking an account
// that is not locked succeeds.
func (s *AuthService) Unlock(ctx context.Context, username string) error {
	name := models.NormalizeUsername(username)

	unlock, err := s.locks.Lock(ctx, name)
	if err != nil {
		return fmt.Errorf("acquire identity lock: %w", err)
	}
	defer unlock()

	cred, err := s.store.FindByUsername(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return s.storeError("find credential", err)
	}
	if err := s.store.UpdateLockState(ctx, cred.ID, nil); err != nil {
		return s.storeError("clear lock", err)
	}
	if err := s.store.UpdateFailureCount(ctx, cred.ID, 0); err != nil {
		return s.storeError("reset failure count", err)
	}

	metrics.UnlocksTotal.Inc()
	s.logger.InfoContext(ctx, "account unlocked", logging.Username(name), slog.Bool("was_locked", cred.IsLocked()))
	s.auditLog.NotifyUnlocked(ctx, name)
	return nil
}

// CreateUser adds a credential record. Used by operators through the CLI.
func (s *AuthService) CreateUser(ctx context.Context, username, password string) (*models.Credential, error) {
	name := models.NormalizeUsername(username)
	if name == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	if _, err := s.store.EnsureSchema(ctx); err != nil {
		return nil, s.storeError("ensure schema", err)
	}
	cred, err := s.store.CreateCredential(ctx, name, password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, err
		}
		return nil, s.storeError("create credential", err)
	}
	return cred, nil
}

func (s *AuthService) storeError(op string, err error) error {
	if errors.Is(err, repository.ErrSchemaInvalid) {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
