package audit

import (
	"context"
	"time"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
)

// StatsRecorder is satisfied by loginstats.Collector.
type StatsRecorder interface {
	Record(username string, success bool, ip string, at time.Time)
}

// StatsSink feeds login attempts into per-account statistics. Lock and unlock
// events are ignored.
type StatsSink struct {
	rec StatsRecorder
}

func NewStatsSink(rec StatsRecorder) *StatsSink {
	return &StatsSink{rec: rec}
}

func (s *StatsSink) Name() string { return "stats" }

func (s *StatsSink) Deliver(_ context.Context, ev Event) error {
	if ev.Kind != EventAttempt || ev.Entry == nil {
		return nil
	}
	e := ev.Entry
	s.rec.Record(models.NormalizeUsername(e.Username), e.Success, e.IP, e.Timestamp)
	return nil
}
