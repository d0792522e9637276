package lifecycle

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/match/events"
	"github.com/mcdev12/arena/go/internal/match/rounds"
	"github.com/mcdev12/arena/go/internal/match/state"
	"github.com/mcdev12/arena/go/internal/match/submission"
	"github.com/mcdev12/arena/go/internal/match/timer"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNilSession         = errors.New("match session is nil")
	ErrMatchActive        = errors.New("a match is already active")
	ErrNotActive          = errors.New("match is not active")
	ErrInvalidState       = errors.New("operation not valid in current match status")
	ErrNoMatch            = errors.New("no match initialized")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrSubmissionFailed   = errors.New("final score submission failed")
)

// Submitter is the part of the submission pipeline the controller drives.
type Submitter interface {
	SubmitCheckpoint(ctx context.Context, sub models.ScoreSubmission) submission.Result
	SubmitFinal(ctx context.Context, sub models.ScoreSubmission) submission.Result
	Reset(matchID uuid.UUID)
}

// Config holds engine timing settings.
type Config struct {
	CountdownSeconds        int
	GracePeriodSeconds      float64
	WarningThresholdSeconds float64
	RoundTransitionSeconds  float64
	FinalSubmitTimeout      time.Duration
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		CountdownSeconds:        3,
		GracePeriodSeconds:      5,
		WarningThresholdSeconds: timer.DefaultWarningThreshold,
		RoundTransitionSeconds:  2,
		FinalSubmitTimeout:      5 * time.Second,
	}
}

type checkpointDone struct {
	generation uint64
	result     submission.Result
}

// Controller owns one match at a time: its session, status, timer, rounds
// and score. It is not safe for concurrent use; a single owner drives it and
// calls Tick once per scheduling frame. Notifications are queued on the Bus
// and delivered from Tick or Settle.
type Controller struct {
	config   Config
	clock    clockwork.Clock
	logger   zerolog.Logger
	pipeline Submitter
	bus      *events.Bus

	machine *state.Machine
	timer   *timer.Timer
	rounds  *rounds.Tracker

	session        *models.MatchSession
	generation     uint64
	score          int64
	maxScore       int64
	opponentScores map[string]int64

	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	autoPaused  bool

	inCountdown        bool
	countdownRemaining float64

	inTransition        bool
	transitionRemaining float64

	expiryPending bool
	ending        bool
	lastResult    *models.MatchResult

	inflight    sync.WaitGroup
	doneMu      sync.Mutex
	completions []checkpointDone
}

// NewController creates an idle controller and queues an EngineReady notification.
func NewController(config Config, pipeline Submitter, clock clockwork.Clock) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Controller{
		config:         config,
		clock:          clock,
		logger:         log.With().Str("component", "lifecycle").Logger(),
		pipeline:       pipeline,
		bus:            events.NewBus(clock),
		opponentScores: make(map[string]int64),
	}

	c.machine = state.NewMachine(clock, state.Hooks{
		OnStateChanged:      c.onStateChanged,
		OnInvalidTransition: c.onInvalidTransition,
	})
	c.timer = timer.New(0, config.GracePeriodSeconds, timer.Hooks{
		OnTick:     c.onTimerTick,
		OnWarning:  c.onTimeWarning,
		OnExpired:  c.onTimeExpired,
		OnGraceEnd: c.onGraceEnd,
	})
	c.timer.SetWarningThreshold(config.WarningThresholdSeconds)
	c.rounds = rounds.NewTracker(clock, rounds.Hooks{
		OnRoundStarted:   c.onRoundStarted,
		OnRoundCompleted: c.onRoundCompleted,
	})

	c.publish(events.EventTypeEngineReady, nil)
	return c
}

// Tick advances countdowns, the inter-round transition and the match timer by
// deltaSeconds, applies finished checkpoint submissions and dispatches every
// queued notification.
func (c *Controller) Tick(ctx context.Context, deltaSeconds float64) {
	c.applyCompletions()

	if deltaSeconds > 0 {
		switch c.machine.Current() {
		case models.MatchStatusCountdown:
			c.advanceCountdown(deltaSeconds)
		case models.MatchStatusInProgress:
			if c.inTransition {
				c.advanceTransition(deltaSeconds)
			} else {
				c.timer.Advance(deltaSeconds)
			}
		}
	}

	if c.expiryPending {
		c.expiryPending = false
		if err := c.EndMatch(ctx); err != nil {
			c.logger.Error().Err(err).Str("match_id", c.matchID().String()).Msg("end match on time expiry failed")
		}
	}

	c.bus.Dispatch()
}

// Settle waits for in-flight checkpoint submissions, applies their results and
// dispatches queued notifications.
func (c *Controller) Settle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.applyCompletions()
	c.bus.Dispatch()
	return err
}

func (c *Controller) advanceCountdown(delta float64) {
	before := int(math.Ceil(c.countdownRemaining))
	c.countdownRemaining -= delta
	if c.countdownRemaining < 0 {
		c.countdownRemaining = 0
	}
	after := int(math.Ceil(c.countdownRemaining))

	for s := before - 1; s >= after; s-- {
		c.publish(events.EventTypeCountdownTick, events.CountdownTickPayload{SecondsRemaining: s})
	}

	if c.countdownRemaining <= 0 {
		c.inCountdown = false
		if err := c.beginPlay(); err != nil {
			c.logger.Error().Err(err).Str("match_id", c.matchID().String()).Msg("failed to start match after countdown")
		}
	}
}

func (c *Controller) advanceTransition(delta float64) {
	c.transitionRemaining -= delta
	if c.transitionRemaining <= 0 {
		c.startNextRound()
	}
}

func (c *Controller) startNextRound() {
	c.inTransition = false
	c.transitionRemaining = 0

	if err := c.rounds.StartNextRound(); err != nil {
		c.logger.Warn().Err(err).Str("match_id", c.matchID().String()).Msg("could not start next round")
		return
	}
	if !c.timer.IsUntimed() {
		c.timer.Reset()
	}
	c.timer.Start()
}

func (c *Controller) matchID() uuid.UUID {
	if c.session == nil {
		return uuid.Nil
	}
	return c.session.ID
}

func (c *Controller) publish(eventType events.EventType, payload interface{}) {
	if err := c.bus.Publish(c.matchID(), eventType, payload); err != nil {
		c.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish notification")
	}
}

// hooks

func (c *Controller) onStateChanged(from, to models.MatchStatus) {
	c.publish(events.EventTypeStateChanged, events.StateChangedPayload{From: from, To: to})
}

func (c *Controller) onInvalidTransition(from, to models.MatchStatus) {
	c.publish(events.EventTypeInvalidTransition, events.InvalidTransitionPayload{From: from, To: to})
}

func (c *Controller) onTimerTick(remaining, elapsed float64) {
	c.publish(events.EventTypeTimerTick, events.TimerTickPayload{
		RemainingSec: remaining,
		ElapsedSec:   elapsed,
		Untimed:      c.timer.IsUntimed(),
	})
}

func (c *Controller) onTimeWarning(remaining float64) {
	c.publish(events.EventTypeTimeWarning, events.TimeWarningPayload{RemainingSec: remaining})
}

func (c *Controller) onTimeExpired() {
	c.publish(events.EventTypeTimeExpired, events.TimeExpiredPayload{GracePeriodSec: c.timer.GracePeriod()})
}

func (c *Controller) onGraceEnd() {
	if c.machine.IsActive() && !c.ending {
		c.expiryPending = true
	}
}

func (c *Controller) onRoundStarted(round int) {
	c.publish(events.EventTypeRoundStarted, events.RoundStartedPayload{
		Round:       round,
		TotalRounds: c.rounds.TotalRounds(),
	})
}

func (c *Controller) onRoundCompleted(round int, score int64) {
	c.publish(events.EventTypeRoundCompleted, events.RoundCompletedPayload{
		Round:       round,
		Score:       score,
		TotalScore:  c.rounds.TotalScore(),
		TotalRounds: c.rounds.TotalRounds(),
	})
}

// Snapshot is a read-only view of the controller for status endpoints.
type Snapshot struct {
	MatchID       uuid.UUID           `json:"match_id"`
	Status        models.MatchStatus  `json:"status"`
	Score         int64               `json:"score"`
	MaxScore      int64               `json:"max_score"`
	Round         int                 `json:"round"`
	TotalRounds   int                 `json:"total_rounds"`
	RemainingSec  float64             `json:"remaining_sec"`
	ElapsedSec    float64             `json:"elapsed_sec"`
	InGrace       bool                `json:"in_grace"`
	CountdownSec  int                 `json:"countdown_sec,omitempty"`
	BetweenRounds bool                `json:"between_rounds"`
	AutoPaused    bool                `json:"auto_paused"`
	LastResult    *models.MatchResult `json:"last_result,omitempty"`
}

// Snapshot returns the current view of the match.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		MatchID:       c.matchID(),
		Status:        c.machine.Current(),
		Score:         c.score,
		MaxScore:      c.maxScore,
		Round:         c.rounds.CurrentRound(),
		TotalRounds:   c.rounds.TotalRounds(),
		RemainingSec:  -1,
		ElapsedSec:    c.timer.Elapsed(),
		InGrace:       c.timer.IsInGrace(),
		BetweenRounds: c.inTransition,
		AutoPaused:    c.autoPaused,
		LastResult:    c.lastResult,
	}
	if !c.timer.IsUntimed() {
		s.RemainingSec = c.timer.Remaining()
	}
	if c.inCountdown {
		s.CountdownSec = int(math.Ceil(c.countdownRemaining))
	}
	return s
}

func (c *Controller) Bus() *events.Bus                { return c.bus }
func (c *Controller) Status() models.MatchStatus      { return c.machine.Current() }
func (c *Controller) Session() *models.MatchSession   { return c.session }
func (c *Controller) Score() int64                    { return c.score }
func (c *Controller) MaxScore() int64                 { return c.maxScore }
func (c *Controller) LastResult() *models.MatchResult { return c.lastResult }
func (c *Controller) History() []state.Transition     { return c.machine.History() }
func (c *Controller) Rounds() []models.RoundRecord    { return c.rounds.Rounds() }
