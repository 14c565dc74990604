// Package loginstats keeps Redis-backed per-account login statistics.
//
// Written by every service replica, readable by any of them.
//
// Redis key structure (prefix defaults to "vocab-auth:"):
//
//	{prefix}stats:{username}               - Hash with running totals
//	{prefix}hourly:{username}:{YYYYMMDDHH} - Hash of attempts/failures in that hour (expires 48h)
//	{prefix}ips:{username}:{YYYYMMDD}      - Set of client IPs seen that day (expires 7d)
//	{prefix}instances:{username}           - Hash of replica -> last seen unix time (expires 24h)
package loginstats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "vocab-auth:"

const (
	hourlyTTL    = 48 * time.Hour
	ipsTTL       = 7 * 24 * time.Hour
	instancesTTL = 24 * time.Hour
)

// Stats is the current view of one account's login activity.
type Stats struct {
	Username         string            `json:"username" yaml:"username"`
	LastAttemptAt    *time.Time        `json:"last_attempt_at,omitempty" yaml:"last_attempt_at,omitempty"`
	LastIP           string            `json:"last_ip,omitempty" yaml:"last_ip,omitempty"`
	TotalAttempts    int64             `json:"total_attempts" yaml:"total_attempts"`
	TotalFailures    int64             `json:"total_failures" yaml:"total_failures"`
	AttemptsLastHour int64             `json:"attempts_last_hour" yaml:"attempts_last_hour"`
	AttemptsLast24h  int64             `json:"attempts_last_24h" yaml:"attempts_last_24h"`
	FailuresLast24h  int64             `json:"failures_last_24h" yaml:"failures_last_24h"`
	UniqueIPsToday   int64             `json:"unique_ips_today" yaml:"unique_ips_today"`
	Instances        map[string]string `json:"instances,omitempty" yaml:"instances,omitempty"`
	RetrievedAt      time.Time         `json:"retrieved_at" yaml:"retrieved_at"`
}

// Client records and reads statistics.
type Client struct {
	redis      *redis.Client
	instanceID string
	prefix     string
	now        func() time.Time
}

// NewClient connects to redisURL. instanceID should be unique per replica
// (hostname, pod name).
func NewClient(ctx context.Context, redisURL, instanceID string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewClientFromRedis(client, instanceID), nil
}

// NewClientFromRedis wraps an existing connection.
func NewClientFromRedis(client *redis.Client, instanceID string) *Client {
	return &Client{
		redis:      client,
		instanceID: instanceID,
		prefix:     DefaultPrefix,
		now:        time.Now,
	}
}

func (c *Client) statsKey(username string) string {
	return c.prefix + "stats:" + username
}

func (c *Client) hourlyKey(username string, t time.Time) string {
	return fmt.Sprintf("%shourly:%s:%s", c.prefix, username, t.UTC().Format("2006010215"))
}

func (c *Client) ipsKey(username string, t time.Time) string {
	return fmt.Sprintf("%sips:%s:%s", c.prefix, username, t.UTC().Format("20060102"))
}

func (c *Client) instancesKey(username string) string {
	return c.prefix + "instances:" + username
}

// RecordAttempt records a single attempt immediately. Prefer Collector on
// hot paths.
func (c *Client) RecordAttempt(ctx context.Context, username string, success bool, ip string) error {
	b := NewBatchUpdate(username)
	b.Add(success, ip, c.now())
	return c.FlushBatch(ctx, b)
}

// BatchUpdate accumulates attempts for one account between flushes.
type BatchUpdate struct {
	Username string
	Attempts int64
	Failures int64
	IPs      map[string]struct{}
	LastIP   string
	LastAt   time.Time
}

func NewBatchUpdate(username string) *BatchUpdate {
	return &BatchUpdate{Username: username, IPs: make(map[string]struct{})}
}

func (b *BatchUpdate) Add(success bool, ip string, at time.Time) {
	b.Attempts++
	if !success {
		b.Failures++
	}
	if ip != "" {
		b.IPs[ip] = struct{}{}
		b.LastIP = ip
	}
	if at.After(b.LastAt) {
		b.LastAt = at
	}
}

func (b *BatchUpdate) merge(other *BatchUpdate) {
	b.Attempts += other.Attempts
	b.Failures += other.Failures
	for ip := range other.IPs {
		b.IPs[ip] = struct{}{}
	}
	if other.LastIP != "" {
		b.LastIP = other.LastIP
	}
	if other.LastAt.After(b.LastAt) {
		b.LastAt = other.LastAt
	}
}

// FlushBatch writes one batch in a single pipeline. Counters are bucketed by
// flush time.
func (c *Client) FlushBatch(ctx context.Context, batch *BatchUpdate) error {
	if batch.Attempts == 0 {
		return nil
	}

	now := c.now()
	nowUnix := strconv.FormatInt(now.Unix(), 10)
	pipe := c.redis.Pipeline()

	statsKey := c.statsKey(batch.Username)
	fields := map[string]any{"last_attempt_at": strconv.FormatInt(batch.LastAt.Unix(), 10)}
	if batch.LastIP != "" {
		fields["last_ip"] = batch.LastIP
	}
	pipe.HSet(ctx, statsKey, fields)
	pipe.HIncrBy(ctx, statsKey, "total_attempts", batch.Attempts)
	pipe.HIncrBy(ctx, statsKey, "total_failures", batch.Failures)

	hourlyKey := c.hourlyKey(batch.Username, now)
	pipe.HIncrBy(ctx, hourlyKey, "attempts", batch.Attempts)
	pipe.HIncrBy(ctx, hourlyKey, "failures", batch.Failures)
	pipe.Expire(ctx, hourlyKey, hourlyTTL)

	if len(batch.IPs) > 0 {
		ipsKey := c.ipsKey(batch.Username, now)
		ips := make([]any, 0, len(batch.IPs))
		for ip := range batch.IPs {
			ips = append(ips, ip)
		}
		pipe.SAdd(ctx, ipsKey, ips...)
		pipe.Expire(ctx, ipsKey, ipsTTL)
	}

	instancesKey := c.instancesKey(batch.Username)
	pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)
	pipe.Expire(ctx, instancesKey, instancesTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush login stats: %w", err)
	}
	return nil
}

// GetStats reads the statistics of one account. An account never seen
// yields zero counters.
func (c *Client) GetStats(ctx context.Context, username string) (*Stats, error) {
	now := c.now()

	pipe := c.redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, c.statsKey(username))

	hourly := make([]*redis.MapStringStringCmd, 24)
	for i := range hourly {
		hourly[i] = pipe.HGetAll(ctx, c.hourlyKey(username, now.Add(-time.Duration(i)*time.Hour)))
	}
	uniqueIPsCmd := pipe.SCard(ctx, c.ipsKey(username, now))
	instancesCmd := pipe.HGetAll(ctx, c.instancesKey(username))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get login stats: %w", err)
	}

	stats := &Stats{
		Username:    username,
		RetrievedAt: now,
		Instances:   make(map[string]string),
	}

	if m, err := statsCmd.Result(); err == nil {
		if raw, ok := m["last_attempt_at"]; ok {
			if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
				t := time.Unix(unix, 0).UTC()
				stats.LastAttemptAt = &t
			}
		}
		stats.LastIP = m["last_ip"]
		stats.TotalAttempts, _ = strconv.ParseInt(m["total_attempts"], 10, 64)
		stats.TotalFailures, _ = strconv.ParseInt(m["total_failures"], 10, 64)
	}

	for i, cmd := range hourly {
		m, err := cmd.Result()
		if err != nil {
			continue
		}
		attempts, _ := strconv.ParseInt(m["attempts"], 10, 64)
		failures, _ := strconv.ParseInt(m["failures"], 10, 64)
		if i == 0 {
			stats.AttemptsLastHour = attempts
		}
		stats.AttemptsLast24h += attempts
		stats.FailuresLast24h += failures
	}

	if n, err := uniqueIPsCmd.Result(); err == nil {
		stats.UniqueIPsToday = n
	}

	if instances, err := instancesCmd.Result(); err == nil {
		for id, lastSeen := range instances {
			if unix, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
				stats.Instances[id] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}
	return stats, nil
}

// ListActive returns usernames with an attempt within since.
func (c *Client) ListActive(ctx context.Context, since time.Duration) ([]string, error) {
	var usernames []string
	cutoff := c.now().Add(-since).Unix()
	prefix := c.prefix + "stats:"

	iter := c.redis.Scan(ctx, 0, prefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		username := strings.TrimPrefix(key, prefix)
		last, err := c.redis.HGet(ctx, key, "last_attempt_at").Int64()
		if err == nil && last >= cutoff {
			usernames = append(usernames, username)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan login stats: %w", err)
	}
	return usernames, nil
}

func (c *Client) Close() error {
	return c.redis.Close()
}
