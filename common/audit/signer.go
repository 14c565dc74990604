// Package audit signs audit records so tampering with stored history is detectable.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// EventSigner produces HMAC-SHA256 signatures over audit records.
type EventSigner struct {
	secretKey []byte
}

func NewEventSigner(secretKey string) *EventSigner {
	return &EventSigner{
		secretKey: []byte(secretKey),
	}
}

// Sign signs an ordered list of fields. Fields are joined with a unit
// separator so ("ab","c") and ("a","bc") produce different signatures.
func (s *EventSigner) Sign(fields ...string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches fields.
func (s *EventSigner) Verify(signature string, fields ...string) bool {
	expected := s.Sign(fields...)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignAttempt signs a login attempt. The entry id is not part of the payload
// because the store assigns it after the entry is signed.
func (s *EventSigner) SignAttempt(username string, success bool, timestamp time.Time, ip, userAgent string) string {
	return s.Sign(attemptFields(username, success, timestamp, ip, userAgent)...)
}

// VerifyAttempt checks a signature produced by SignAttempt.
func (s *EventSigner) VerifyAttempt(username string, success bool, timestamp time.Time, ip, userAgent, signature string) bool {
	return s.Verify(signature, attemptFields(username, success, timestamp, ip, userAgent)...)
}

func attemptFields(username string, success bool, timestamp time.Time, ip, userAgent string) []string {
	// Stores keep millisecond precision at best.
	ts := timestamp.UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano)
	return []string{username, strconv.FormatBool(success), ts, ip, userAgent}
}
