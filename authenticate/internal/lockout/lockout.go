// Package lockout decides the outcome of a single verification attempt.
// It performs no I/O; callers persist the returned Mutation.
package lockout

import (
	"crypto/subtle"
	"time"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
)

// MaxFailedAttempts is the number of consecutive failures that locks an account.
const MaxFailedAttempts = 3

// Kind classifies a Decision.
type Kind int

const (
	AlreadyLocked Kind = iota + 1
	Success
	FailureBelowThreshold
	FailureLockout
)

func (k Kind) String() string {
	switch k {
	case AlreadyLocked:
		return "already_locked"
	case Success:
		return "success"
	case FailureBelowThreshold:
		return "failure"
	case FailureLockout:
		return "lockout"
	default:
		return "unknown"
	}
}

// Mutation lists the field writes a decision requires. A nil pointer means
// "leave unchanged".
type Mutation struct {
	FailureCount  *int
	LastAttemptAt *time.Time
	LockedAt      *time.Time
}

// Empty reports whether the mutation writes nothing.
func (m Mutation) Empty() bool {
	return m.FailureCount == nil && m.LastAttemptAt == nil && m.LockedAt == nil
}

// Apply returns a copy of cred with the mutation applied.
func (m Mutation) Apply(cred models.Credential) models.Credential {
	if m.FailureCount != nil {
		cred.FailureCount = *m.FailureCount
	}
	if m.LastAttemptAt != nil {
		t := *m.LastAttemptAt
		cred.LastAttemptAt = &t
	}
	if m.LockedAt != nil {
		t := *m.LockedAt
		cred.LockedAt = &t
	}
	return cred
}

// Decision is the result of Evaluate.
type Decision struct {
	Kind Kind

	// LockedAt is set for AlreadyLocked (the original lock time) and FailureLockout.
	LockedAt *time.Time

	// Remaining is set for FailureBelowThreshold.
	Remaining int

	Mutation Mutation
}

// Authenticated reports whether the attempt succeeded.
func (d Decision) Authenticated() bool { return d.Kind == Success }

// Locked reports whether the account is locked after this decision.
func (d Decision) Locked() bool { return d.Kind == AlreadyLocked || d.Kind == FailureLockout }

// Evaluate decides the outcome of presenting attempted against cred at now.
func Evaluate(cred models.Credential, attempted string, now time.Time) Decision {
	if cred.LockedAt != nil {
		lockedAt := *cred.LockedAt
		return Decision{Kind: AlreadyLocked, LockedAt: &lockedAt}
	}

	if secretMatches(cred.Secret, attempted) {
		zero := 0
		return Decision{
			Kind:     Success,
			Mutation: Mutation{FailureCount: &zero, LastAttemptAt: &now},
		}
	}

	failures := cred.FailureCount + 1
	if failures >= MaxFailedAttempts {
		return Decision{
			Kind:     FailureLockout,
			LockedAt: &now,
			Mutation: Mutation{FailureCount: &failures, LastAttemptAt: &now, LockedAt: &now},
		}
	}
	return Decision{
		Kind:      FailureBelowThreshold,
		Remaining: MaxFailedAttempts - failures,
		Mutation:  Mutation{FailureCount: &failures, LastAttemptAt: &now},
	}
}

func secretMatches(stored, attempted string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(attempted)) == 1
}
