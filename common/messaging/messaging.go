// Package messaging defines the broker-agnostic publishing surface used to
// fan audit events out to other services.
package messaging

import (
	"context"
	"time"
)

// Message is an outbound message with optional headers.
type Message struct {
	Subject   string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish is fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message with headers.
	PublishMsg(ctx context.Context, msg *Message) error

	// IsConnected returns true if the publisher currently has a broker connection.
	IsConnected() bool

	Close() error
}

// NewMessage builds a Message stamped with the current time.
func NewMessage(subject string, data []byte, headers map[string]string) *Message {
	return &Message{
		Subject:   subject,
		Data:      data,
		Metadata:  headers,
		Timestamp: time.Now(),
	}
}
