package models

import (
	"strings"
	"time"
)

// Credential is one row of the credential table.
// LockedAt is the only lock signal: non-nil means locked.
type Credential struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Secret        string     `json:"-"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	FailureCount  int        `json:"failure_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// IsLocked returns true if the account is locked.
func (c *Credential) IsLocked() bool {
	return c.LockedAt != nil
}

// NormalizeUsername trims surrounding whitespace. Usernames are otherwise
// compared exactly, case included.
func NormalizeUsername(name string) string {
	return strings.TrimSpace(name)
}
