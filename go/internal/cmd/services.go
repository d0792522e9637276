package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/clients/reporter"
	"github.com/mcdev12/arena/go/internal/config"
	"github.com/mcdev12/arena/go/internal/match/connectivity"
	"github.com/mcdev12/arena/go/internal/match/gateway"
	"github.com/mcdev12/arena/go/internal/match/host"
	"github.com/mcdev12/arena/go/internal/match/lifecycle"
	"github.com/mcdev12/arena/go/internal/match/outbox"
	"github.com/mcdev12/arena/go/internal/match/store"
	"github.com/mcdev12/arena/go/internal/match/submission"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Store      store.KV
	Pipeline   *submission.Pipeline
	Controller *lifecycle.Controller
	Runner     *host.Runner
	Monitor    *connectivity.Monitor
	Gateway    *gateway.ConnectionManager
	Publisher  *outbox.JetStreamPublisher
	Relay      *outbox.Relay
	Counters   *outbox.Counters
	Replay     *host.ReplayScheduler

	closers []func()
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Store → Reporter → Pipeline → Controller → Runner, with the
	// gateway and relay subscribed to the controller's bus.
	clock := clockwork.NewRealClock()
	s := &Services{Monitor: connectivity.NewMonitor()}

	kv, closeStore, err := setupStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.Store = kv
	s.closers = append(s.closers, closeStore)

	client := reporter.NewClient(cfg.Reporter.BaseURL, cfg.Reporter.APIKey, cfg.Reporter.Timeout)
	s.Pipeline = submission.NewPipeline(client, kv, clock, cfg.Submission())
	s.Controller = lifecycle.NewController(cfg.Lifecycle(), s.Pipeline, clock)
	s.Runner = host.NewRunner(s.Controller, clock, cfg.Engine.TickRate, s.Monitor.Updates())

	s.Gateway = gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	s.Controller.Bus().Subscribe(s.Gateway.Observe)

	if jsCfg, ok := cfg.JetStream(); ok {
		publisher, err := outbox.NewJetStreamPublisher(ctx, jsCfg, s.Monitor.NATSOptions()...)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set up notification relay: %w", err)
		}
		s.Publisher = publisher
		s.closers = append(s.closers, func() { publisher.Close() })

		s.Counters = outbox.NewCounters()
		s.Relay = outbox.NewRelay(outbox.DefaultConfig(), publisher, s.Counters)
		s.Controller.Bus().Subscribe(s.Relay.Observe)

		log.Info().
			Str("url", jsCfg.URL).
			Str("stream", jsCfg.StreamName).
			Msg("notification relay enabled")
	}

	s.Replay, err = host.NewReplayScheduler(s.Pipeline, clock, cfg.Replay.Interval)
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
