package outbox

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines the interface for collecting relay metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordEventDropped(eventType string)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordEventDropped(eventType string)                                        {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool)          {}

// Counters keeps running totals, exposed on the health endpoint.
type Counters struct {
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	attempts  atomic.Uint64
	lastNanos atomic.Int64
}

type CounterSnapshot struct {
	Published     uint64    `json:"published"`
	Failed        uint64    `json:"failed"`
	Dropped       uint64    `json:"dropped"`
	Attempts      uint64    `json:"attempts"`
	LastPublished time.Time `json:"last_published,omitempty"`
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	if !success {
		c.failed.Add(1)
		return
	}
	c.published.Add(1)
	c.lastNanos.Store(time.Now().UnixNano())
}

func (c *Counters) RecordEventDropped(eventType string) {
	c.dropped.Add(1)
}

func (c *Counters) RecordPublishAttempt(eventType string, attempt int, success bool) {
	c.attempts.Add(1)
}

func (c *Counters) Snapshot() CounterSnapshot {
	s := CounterSnapshot{
		Published: c.published.Load(),
		Failed:    c.failed.Load(),
		Dropped:   c.dropped.Load(),
		Attempts:  c.attempts.Load(),
	}
	if n := c.lastNanos.Load(); n != 0 {
		s.LastPublished = time.Unix(0, n).UTC()
	}
	return s
}
