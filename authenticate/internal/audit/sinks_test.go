package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
	"github.com/hsklearn/vocab-auth/common/messaging"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*messaging.Message
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishMsg(ctx, messaging.NewMessage(subject, data, nil))
}

func (p *fakePublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) IsConnected() bool { return true }
func (p *fakePublisher) Close() error      { return nil }

func TestNATSSink_Subjects(t *testing.T) {
	tests := []struct {
		kind    EventKind
		subject string
	}{
		{EventAttempt, messaging.SubjectLoginAttempts},
		{EventLocked, messaging.SubjectAccountLocked},
		{EventUnlocked, messaging.SubjectAccountUnlocked},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			pub := &fakePublisher{}
			sink := NewNATSSink(pub)

			ev := Event{Kind: tt.kind, Username: "alice", At: time.Now().UTC(), RequestID: "req-1"}
			require.NoError(t, sink.Deliver(context.Background(), ev))

			require.Len(t, pub.msgs, 1)
			msg := pub.msgs[0]
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Equal(t, "alice", msg.Metadata[messaging.HeaderUsername])
			assert.Equal(t, "req-1", msg.Metadata[messaging.HeaderRequestID])
			assert.NotEmpty(t, msg.Metadata[messaging.HeaderEventID])

			var decoded Event
			require.NoError(t, json.Unmarshal(msg.Data, &decoded))
			assert.Equal(t, tt.kind, decoded.Kind)
		})
	}
}

func TestOpenSearchSink_IndexesAttempts(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	sink, err := NewOpenSearchSink(OpenSearchConfig{URL: srv.URL, Index: "history"})
	require.NoError(t, err)

	entry := &models.AuditEntry{
		ID:        42,
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Username:  "alice",
		Success:   true,
	}
	require.NoError(t, sink.Deliver(context.Background(), Event{Kind: EventAttempt, Entry: entry}))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/history/_doc/42", gotPath)
	assert.Equal(t, "alice", gotBody["username"])
	assert.Equal(t, "2024-01-02T03:04:05.000Z", gotBody["@timestamp"])
	assert.Equal(t, true, gotBody["success"])
}

func TestOpenSearchSink_SkipsStateEvents(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	sink, err := NewOpenSearchSink(OpenSearchConfig{URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(context.Background(), Event{Kind: EventLocked, Username: "alice"}))
	assert.False(t, called)
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	}))
	defer srv.Close()

	sink, err := NewOpenSearchSink(OpenSearchConfig{URL: srv.URL})
	require.NoError(t, err)

	err = sink.Deliver(context.Background(), Event{Kind: EventAttempt, Entry: &models.AuditEntry{ID: 1, Timestamp: time.Now()}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

type statsCall struct {
	username string
	success  bool
	ip       string
	at       time.Time
}

type fakeRecorder struct {
	calls []statsCall
}

func (r *fakeRecorder) Record(username string, success bool, ip string, at time.Time) {
	r.calls = append(r.calls, statsCall{username, success, ip, at})
}

func TestStatsSink(t *testing.T) {
	rec := &fakeRecorder{}
	sink := NewStatsSink(rec)
	assert.Equal(t, "stats", sink.Name())

	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	entry := &models.AuditEntry{ID: 7, Timestamp: at, Username: " alice ", Success: false, IP: "198.51.100.4"}

	require.NoError(t, sink.Deliver(context.Background(), Event{Kind: EventAttempt, Username: entry.Username, Entry: entry}))
	require.NoError(t, sink.Deliver(context.Background(), Event{Kind: EventLocked, Username: "alice", At: at}))

	require.Len(t, rec.calls, 1, "only attempts are counted")
	assert.Equal(t, statsCall{"alice", false, "198.51.100.4", at}, rec.calls[0])
}
