package loginstats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, now time.Time) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewClientFromRedis(rdb, "replica-a")
	c.now = func() time.Time { return now }
	return c, mr
}

func TestRecordAttemptAndGetStats(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	c, mr := newTestClient(t, now)
	ctx := context.Background()

	require.NoError(t, c.RecordAttempt(ctx, "alice", false, "10.0.0.1"))
	require.NoError(t, c.RecordAttempt(ctx, "alice", false, "10.0.0.2"))
	require.NoError(t, c.RecordAttempt(ctx, "alice", true, "10.0.0.1"))

	stats, err := c.GetStats(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalAttempts)
	assert.Equal(t, int64(2), stats.TotalFailures)
	assert.Equal(t, int64(3), stats.AttemptsLastHour)
	assert.Equal(t, int64(3), stats.AttemptsLast24h)
	assert.Equal(t, int64(2), stats.FailuresLast24h)
	assert.Equal(t, int64(2), stats.UniqueIPsToday)
	assert.Equal(t, "10.0.0.1", stats.LastIP)
	require.NotNil(t, stats.LastAttemptAt)
	assert.True(t, now.Equal(*stats.LastAttemptAt))
	assert.Contains(t, stats.Instances, "replica-a")

	assert.True(t, mr.Exists("vocab-auth:stats:alice"))
	assert.True(t, mr.TTL("vocab-auth:hourly:alice:2024060112") > 0)
}

func TestGetStats_RollingWindow(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, base)
	ctx := context.Background()

	require.NoError(t, c.RecordAttempt(ctx, "bob", false, ""))

	c.now = func() time.Time { return base.Add(3 * time.Hour) }
	require.NoError(t, c.RecordAttempt(ctx, "bob", true, ""))

	stats, err := c.GetStats(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.AttemptsLastHour)
	assert.Equal(t, int64(2), stats.AttemptsLast24h)
	assert.Equal(t, int64(1), stats.FailuresLast24h)
	assert.Equal(t, int64(0), stats.UniqueIPsToday, "empty IPs are not counted")

	c.now = func() time.Time { return base.Add(30 * time.Hour) }
	stats, err = c.GetStats(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.AttemptsLast24h)
	assert.Equal(t, int64(2), stats.TotalAttempts, "totals never roll off")
}

func TestGetStats_UnknownAccount(t *testing.T) {
	c, _ := newTestClient(t, time.Now())

	stats, err := c.GetStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalAttempts)
	assert.Nil(t, stats.LastAttemptAt)
	assert.Empty(t, stats.Instances)
}

func TestListActive(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, base)
	ctx := context.Background()

	b := NewBatchUpdate("old")
	b.Add(true, "", base.Add(-2*time.Hour))
	require.NoError(t, c.FlushBatch(ctx, b))

	b = NewBatchUpdate("recent")
	b.Add(false, "", base.Add(-5*time.Minute))
	require.NoError(t, c.FlushBatch(ctx, b))

	active, err := c.ListActive(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, active)
}

func TestFlushBatch_Empty(t *testing.T) {
	c, mr := newTestClient(t, time.Now())
	require.NoError(t, c.FlushBatch(context.Background(), NewBatchUpdate("x")))
	assert.Empty(t, mr.Keys())
}

func TestCollector(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, now)
	col := NewCollector(c, time.Hour, nil)

	col.Record("carol", false, "192.0.2.1", now)
	col.Record("carol", true, "192.0.2.1", now)
	col.Record("dave", false, "", now)
	assert.Equal(t, map[string]int64{"carol": 2, "dave": 1}, col.Pending())

	col.FlushNow()
	assert.Empty(t, col.Pending())

	stats, err := c.GetStats(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalAttempts)
	assert.Equal(t, int64(1), stats.TotalFailures)

	col.Record("dave", true, "", now)
	col.Stop()

	stats, err = c.GetStats(context.Background(), "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalAttempts, "Stop flushes what is pending")
}

func TestCollector_RetriesFailedFlush(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c, mr := newTestClient(t, now)
	col := NewCollector(c, time.Hour, nil)
	defer col.Stop()

	col.Record("erin", false, "", now)
	mr.SetError("server unavailable")
	col.FlushNow()
	assert.Equal(t, map[string]int64{"erin": 1}, col.Pending(), "failed batch is kept")

	mr.SetError("")
	col.FlushNow()
	assert.Empty(t, col.Pending())
}
