// Package audit owns the append-only login history: signing entries,
// persisting them and fanning them out to optional sinks.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hsklearn/vocab-auth/authenticate/internal/metrics"
	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
	"github.com/hsklearn/vocab-auth/authenticate/internal/repository"
	commonaudit "github.com/hsklearn/vocab-auth/common/audit"
	"github.com/hsklearn/vocab-auth/common/logging"
	"github.com/hsklearn/vocab-auth/common/middleware"
)

// MaxRecent caps how many entries Recent returns.
const MaxRecent = 100

const sinkTimeout = 5 * time.Second

// Attempt is one login attempt to record.
type Attempt struct {
	Username string
	Success  bool

	// Timestamp defaults to now when nil.
	Timestamp *time.Time

	IP        string
	UserAgent string
}

type Log struct {
	store  repository.AuditStore
	signer *commonaudit.EventSigner
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

func NewLog(store repository.AuditStore, secret string, logger *slog.Logger, sinks ...Sink) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		store:  store,
		signer: commonaudit.NewEventSigner(secret),
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
	}
}

// Append signs and stores one entry. The store assigns its id.
func (l *Log) Append(ctx context.Context, a Attempt) (*models.AuditEntry, error) {
	ts := l.now()
	if a.Timestamp != nil {
		ts = *a.Timestamp
	}
	ts = ts.UTC().Truncate(time.Millisecond)

	entry := &models.AuditEntry{
		Timestamp: ts,
		Username:  a.Username,
		Success:   a.Success,
		IP:        a.IP,
		UserAgent: a.UserAgent,
	}
	entry.Signature = l.signer.SignAttempt(entry.Username, entry.Success, entry.Timestamp, entry.IP, entry.UserAgent)

	if err := l.store.AppendAudit(ctx, entry); err != nil {
		metrics.AuditAppendFailures.Inc()
		return nil, err
	}

	l.publish(ctx, Event{Kind: EventAttempt, Username: entry.Username, At: entry.Timestamp, Entry: entry})
	return entry, nil
}

// Recent returns up to limit entries, newest first. limit outside 1..MaxRecent
// means MaxRecent. The result is never nil.
func (l *Log) Recent(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	entries, err := l.store.RecentAudit(ctx, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	return entries, nil
}

// VerifyEntry reports whether entry still carries a valid signature.
func (l *Log) VerifyEntry(entry *models.AuditEntry) bool {
	return l.signer.VerifyAttempt(entry.Username, entry.Success, entry.Timestamp, entry.IP, entry.UserAgent, entry.Signature)
}

// NotifyLocked tells the sinks that username was locked at at.
func (l *Log) NotifyLocked(ctx context.Context, username string, at time.Time) {
	l.publish(ctx, Event{Kind: EventLocked, Username: username, At: at})
}

// NotifyUnlocked tells the sinks that username was unlocked.
func (l *Log) NotifyUnlocked(ctx context.Context, username string) {
	l.publish(ctx, Event{Kind: EventUnlocked, Username: username, At: l.now().UTC()})
}

// publish delivers ev to every sink in the background. Sink failures are
// logged and counted, never returned.
func (l *Log) publish(ctx context.Context, ev Event) {
	if len(l.sinks) == 0 {
		return
	}
	ev.RequestID = middleware.GetRequestID(ctx)
	base := context.WithoutCancel(ctx)

	for _, s := range l.sinks {
		l.wg.Add(1)
		go func(s Sink) {
			defer l.wg.Done()
			ctx, cancel := context.WithTimeout(base, sinkTimeout)
			defer cancel()

			if err := s.Deliver(ctx, ev); err != nil {
				metrics.SinkFailures.WithLabelValues(s.Name()).Inc()
				l.logger.WarnContext(ctx, "audit sink delivery failed",
					slog.String("sink", s.Name()),
					slog.String("event", string(ev.Kind)),
					logging.Username(ev.Username),
					logging.Error(err),
				)
			}
		}(s)
	}
}

// Close waits for in-flight sink deliveries.
func (l *Log) Close() {
	l.wg.Wait()
}
