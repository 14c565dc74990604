package messaging

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubPublisher struct{ connected bool }

func (s *stubPublisher) Publish(context.Context, string, []byte) error { return nil }
func (s *stubPublisher) PublishMsg(context.Context, *Message) error    { return nil }
func (s *stubPublisher) IsConnected() bool                             { return s.connected }
func (s *stubPublisher) Close() error                                  { return nil }

func TestNewMessage(t *testing.T) {
	before := time.Now()
	msg := NewMessage(SubjectLoginAttempts, []byte(`{}`), map[string]string{HeaderUsername: "alice"})

	assert.Equal(t, SubjectLoginAttempts, msg.Subject)
	assert.Equal(t, "alice", msg.Metadata[HeaderUsername])
	assert.False(t, msg.Timestamp.Before(before))
}

func TestSubjects_ShareAuthPrefix(t *testing.T) {
	for _, s := range []string{SubjectLoginAttempts, SubjectAccountLocked, SubjectAccountUnlocked} {
		assert.True(t, strings.HasPrefix(s, "auth."), s)
		assert.Len(t, strings.Split(s, "."), 3, s)
	}
}

func TestCheckPublisherHealth(t *testing.T) {
	assert.Equal(t, HealthStatus{}, CheckPublisherHealth(nil))
	assert.Equal(t, HealthStatus{Connected: true}, CheckPublisherHealth(&stubPublisher{connected: true}))

	st := CheckPublisherHealth(&stubPublisher{})
	assert.False(t, st.Connected)
	assert.NotEmpty(t, st.Error)
}
