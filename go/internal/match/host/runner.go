package host

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/match/connectivity"
	"github.com/mcdev12/arena/go/internal/match/lifecycle"
	"github.com/rs/zerolog/log"
)

const DefaultTickInterval = 100 * time.Millisecond

// ErrRunnerStopped is returned by Do once Run has exited.
var ErrRunnerStopped = errors.New("match runner stopped")

// Command runs on the runner goroutine with exclusive access to the controller.
type Command func(ctx context.Context, c *lifecycle.Controller) error

type request struct {
	fn    Command
	reply chan error
}

// Runner owns a lifecycle.Controller. It ticks it from a clock, feeds it
// connectivity signals and serialises commands from other goroutines.
type Runner struct {
	controller *lifecycle.Controller
	clock      clockwork.Clock
	interval   time.Duration
	signals    <-chan connectivity.State

	requests chan request
	stopped  chan struct{}
}

func NewRunner(controller *lifecycle.Controller, clock clockwork.Clock, interval time.Duration, signals <-chan connectivity.State) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Runner{
		controller: controller,
		clock:      clock,
		interval:   interval,
		signals:    signals,
		requests:   make(chan request),
		stopped:    make(chan struct{}),
	}
}

// Run drives the controller until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	last := r.clock.Now()

	log.Info().Dur("tick_interval", r.interval).Msg("match runner started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("match runner shutting down")
			return nil

		case now := <-ticker.Chan():
			delta := now.Sub(last).Seconds()
			last = now
			r.controller.Tick(ctx, delta)

		case s := <-r.signals:
			r.controller.HandleConnectivity(s)
			r.controller.Tick(ctx, 0)

		case req := <-r.requests:
			err := req.fn(ctx, r.controller)
			r.controller.Tick(ctx, 0)
			req.reply <- err
		}
	}
}

// Do runs fn on the runner goroutine and returns its error. ctx bounds the
// wait only; fn itself receives the runner's context.
func (r *Runner) Do(ctx context.Context, fn Command) error {
	req := request{fn: fn, reply: make(chan error, 1)}

	select {
	case r.requests <- req:
	case <-r.stopped:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot reads the controller state on the runner goroutine.
func (r *Runner) Snapshot(ctx context.Context) (lifecycle.Snapshot, error) {
	var snap lifecycle.Snapshot
	err := r.Do(ctx, func(_ context.Context, c *lifecycle.Controller) error {
		snap = c.Snapshot()
		return nil
	})
	return snap, err
}
