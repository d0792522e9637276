package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/arena/go/internal/match/events"
	"github.com/rs/zerolog/log"
)

type Config struct {
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Relay forwards bus notifications to a Publisher off the match thread.
type Relay struct {
	cfg       Config
	publisher Publisher
	metrics   MetricsCollector
	queue     chan events.Notification
}

func NewRelay(cfg Config, publisher Publisher, metrics MetricsCollector) *Relay {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Relay{
		cfg:       cfg,
		publisher: publisher,
		metrics:   metrics,
		queue:     make(chan events.Notification, cfg.BufferSize),
	}
}

// Observe queues n for publishing. It never blocks; a full buffer drops n.
func (r *Relay) Observe(n events.Notification) {
	select {
	case r.queue <- n:
	default:
		r.metrics.RecordEventDropped(string(n.Type))
		log.Warn().
			Str("event_id", n.ID.String()).
			Str("event_type", string(n.Type)).
			Msg("relay buffer full, dropping notification")
	}
}

// Run publishes queued notifications until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Int("buffer_size", r.cfg.BufferSize).Msg("starting notification relay")
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("pending", len(r.queue)).Msg("notification relay stopped")
			return nil
		case n := <-r.queue:
			start := time.Now()
			err := r.publishWithRetry(ctx, n)
			r.metrics.RecordEventProcessed(string(n.Type), err == nil, time.Since(start))
			if err != nil {
				log.Error().Err(err).Str("event_id", n.ID.String()).Msg("failed to publish notification")
			}
		}
	}
}

// publishWithRetry attempts to publish a notification with a linear retry delay.
func (r *Relay) publishWithRetry(ctx context.Context, n events.Notification) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := r.publisher.Publish(ctx, n); err != nil {
			lastErr = err
			r.metrics.RecordPublishAttempt(string(n.Type), attempt+1, false)
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", n.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		r.metrics.RecordPublishAttempt(string(n.Type), attempt+1, true)
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
