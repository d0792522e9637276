package host

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/match/submission"
	"github.com/rs/zerolog/log"
)

// Replayer resubmits queued score entries.
type Replayer interface {
	ReplayPending(ctx context.Context) (submission.ReplayStats, error)
}

// ReplayScheduler periodically drains the pending score queue.
type ReplayScheduler struct {
	scheduler gocron.Scheduler
	replayer  Replayer
	interval  time.Duration
}

func NewReplayScheduler(replayer Replayer, clock clockwork.Clock, interval time.Duration) (*ReplayScheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("replay interval must be positive, got %s", interval)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &ReplayScheduler{scheduler: s, replayer: replayer, interval: interval}, nil
}

// Start registers the replay job and starts the scheduler. Runs never overlap.
func (r *ReplayScheduler) Start(ctx context.Context) error {
	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if _, err := r.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("pending score replay failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule replay job: %w", err)
	}

	r.scheduler.Start()
	log.Info().Dur("interval", r.interval).Msg("pending score replay scheduled")
	return nil
}

// RunOnce performs a single replay pass.
func (r *ReplayScheduler) RunOnce(ctx context.Context) (submission.ReplayStats, error) {
	stats, err := r.replayer.ReplayPending(ctx)
	if err != nil {
		return stats, fmt.Errorf("replay pending scores: %w", err)
	}
	log.Debug().
		Int("delivered", stats.Delivered).
		Int("dropped", stats.Dropped).
		Int("remaining", stats.Remaining).
		Msg("replay pass complete")
	return stats, nil
}

func (r *ReplayScheduler) Shutdown() error {
	return r.scheduler.Shutdown()
}
