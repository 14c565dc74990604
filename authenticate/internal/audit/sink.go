package audit

import (
	"context"
	"time"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
)

type EventKind string

const (
	EventAttempt  EventKind = "login_attempt"
	EventLocked   EventKind = "account_locked"
	EventUnlocked EventKind = "account_unlocked"
)

// Event is what sinks receive. Entry is set only for EventAttempt.
type Event struct {
	Kind      EventKind          `json:"kind"`
	Username  string             `json:"username"`
	At        time.Time          `json:"at"`
	RequestID string             `json:"request_id,omitempty"`
	Entry     *models.AuditEntry `json:"entry,omitempty"`
}

// Sink mirrors audit events to an external system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}
