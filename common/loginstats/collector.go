package loginstats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Collector accumulates attempts and flushes them to Redis periodically.
// Safe for concurrent use.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	batches map[string]*BatchUpdate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCollector(client *Client, flushInterval time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logger,
		batches:       make(map[string]*BatchUpdate),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()
	return c
}

// Record accumulates one attempt for the next flush.
func (c *Collector) Record(username string, success bool, ip string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.batches[username]
	if !ok {
		batch = NewBatchUpdate(username)
		c.batches[username] = batch
	}
	batch.Add(success, ip, at)
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batches := c.batches
	c.batches = make(map[string]*BatchUpdate)
	c.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var flushed int
	var attempts int64
	for _, batch := range batches {
		if err := c.client.FlushBatch(ctx, batch); err != nil {
			c.logger.Error("failed to flush login stats batch",
				slog.String("username", batch.Username),
				slog.Int64("attempts", batch.Attempts),
				slog.String("error", err.Error()),
			)
			// merge back for the next tick
			c.mu.Lock()
			if existing, ok := c.batches[batch.Username]; ok {
				existing.merge(batch)
			} else {
				c.batches[batch.Username] = batch
			}
			c.mu.Unlock()
			continue
		}
		flushed++
		attempts += batch.Attempts
	}

	if flushed > 0 {
		c.logger.Debug("flushed login stats",
			slog.Int("accounts", flushed),
			slog.Int64("attempts", attempts),
		)
	}
}

// FlushNow forces an immediate flush.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop ends the flush loop after a final flush.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Pending returns unflushed attempt counts per account.
func (c *Collector) Pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]int64, len(c.batches))
	for username, batch := range c.batches {
		pending[username] = batch.Attempts
	}
	return pending
}
