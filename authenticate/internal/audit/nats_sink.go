package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hsklearn/vocab-auth/common/messaging"
)

// NATSSink publishes audit events on the auth.* subjects.
type NATSSink struct {
	pub messaging.Publisher
}

func NewNATSSink(pub messaging.Publisher) *NATSSink {
	return &NATSSink{pub: pub}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Deliver(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := map[string]string{
		messaging.HeaderEventID:  uuid.NewString(),
		messaging.HeaderUsername: ev.Username,
	}
	if ev.RequestID != "" {
		headers[messaging.HeaderRequestID] = ev.RequestID
	}
	return s.pub.PublishMsg(ctx, messaging.NewMessage(subjectFor(ev.Kind), data, headers))
}

func subjectFor(kind EventKind) string {
	switch kind {
	case EventLocked:
		return messaging.SubjectAccountLocked
	case EventUnlocked:
		return messaging.SubjectAccountUnlocked
	default:
		return messaging.SubjectLoginAttempts
	}
}
