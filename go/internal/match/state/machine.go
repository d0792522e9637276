package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog/log"
)

// HistoryLimit bounds the retained transition history.
const HistoryLimit = 50

// ErrInvalidTransition is returned when a target is not a legal successor of the current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// Transition records one status change for diagnostics.
type Transition struct {
	From   models.MatchStatus `json:"from"`
	To     models.MatchStatus `json:"to"`
	At     time.Time          `json:"at"`
	Forced bool               `json:"forced"`
}

// Hooks receives machine notifications. Nil hooks are skipped.
type Hooks struct {
	OnStateChanged      func(from, to models.MatchStatus)
	OnInvalidTransition func(from, to models.MatchStatus)
}

// Machine holds the authoritative match status and enforces the transition table.
type Machine struct {
	clock     clockwork.Clock
	hooks     Hooks
	current   models.MatchStatus
	previous  models.MatchStatus
	enteredAt time.Time
	history   []Transition
}

// NewMachine creates a machine in the NONE status.
func NewMachine(clock clockwork.Clock, hooks Hooks) *Machine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Machine{
		clock:     clock,
		hooks:     hooks,
		current:   models.MatchStatusNone,
		previous:  models.MatchStatusNone,
		enteredAt: clock.Now(),
	}
}

// SetHooks replaces the notification hooks.
func (m *Machine) SetHooks(h Hooks) {
	m.hooks = h
}

// LegalTargets returns the statuses reachable from s.
func LegalTargets(s models.MatchStatus) []models.MatchStatus {
	switch s {
	case models.MatchStatusNone:
		return []models.MatchStatus{models.MatchStatusPending}
	case models.MatchStatusPending:
		return []models.MatchStatus{
			models.MatchStatusCountdown,
			models.MatchStatusInProgress,
			models.MatchStatusCancelled,
			models.MatchStatusForfeited,
		}
	case models.MatchStatusCountdown:
		return []models.MatchStatus{models.MatchStatusInProgress, models.MatchStatusCancelled}
	case models.MatchStatusInProgress:
		return []models.MatchStatus{
			models.MatchStatusPaused,
			models.MatchStatusProcessing,
			models.MatchStatusForfeited,
			models.MatchStatusCancelled,
		}
	case models.MatchStatusPaused:
		return []models.MatchStatus{
			models.MatchStatusInProgress,
			models.MatchStatusProcessing,
			models.MatchStatusForfeited,
			models.MatchStatusCancelled,
		}
	case models.MatchStatusProcessing:
		return []models.MatchStatus{models.MatchStatusCompleted, models.MatchStatusCancelled}
	case models.MatchStatusCompleted, models.MatchStatusCancelled, models.MatchStatusForfeited:
		return []models.MatchStatus{models.MatchStatusNone}
	default:
		return nil
	}
}

// CanTransition reports whether from -> to is legal. Same-status is always allowed.
func CanTransition(from, to models.MatchStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range LegalTargets(from) {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo moves to target if the table allows it. Same-status is a no-op.
func (m *Machine) TransitionTo(target models.MatchStatus) error {
	if target == m.current {
		return nil
	}
	if !CanTransition(m.current, target) {
		log.Warn().
			Str("from_status", string(m.current)).
			Str("to_status", string(target)).
			Msg("rejected invalid status transition")
		if m.hooks.OnInvalidTransition != nil {
			m.hooks.OnInvalidTransition(m.current, target)
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current, target)
	}
	m.apply(target, false)
	return nil
}

// ForceState bypasses validation. Only error-recovery paths may use it.
func (m *Machine) ForceState(target models.MatchStatus) {
	log.Warn().
		Str("from_status", string(m.current)).
		Str("to_status", string(target)).
		Bool("forced", true).
		Msg("forcing status transition")
	m.apply(target, true)
}

func (m *Machine) apply(target models.MatchStatus, forced bool) {
	from := m.current
	now := m.clock.Now()

	m.previous = from
	m.current = target
	m.enteredAt = now

	m.history = append(m.history, Transition{From: from, To: target, At: now, Forced: forced})
	if len(m.history) > HistoryLimit {
		m.history = append(m.history[:0:0], m.history[len(m.history)-HistoryLimit:]...)
	}

	log.Debug().
		Str("from_status", string(from)).
		Str("to_status", string(target)).
		Msg("status changed")

	if m.hooks.OnStateChanged != nil {
		m.hooks.OnStateChanged(from, target)
	}
}

// History returns a copy of the retained transitions, oldest first.
func (m *Machine) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// TimeInState is how long the machine has held the current status.
func (m *Machine) TimeInState() time.Duration {
	return m.clock.Since(m.enteredAt)
}

func (m *Machine) Current() models.MatchStatus  { return m.current }
func (m *Machine) Previous() models.MatchStatus { return m.previous }

// IsActive reports IN_PROGRESS or PAUSED.
func (m *Machine) IsActive() bool {
	return m.current == models.MatchStatusInProgress || m.current == models.MatchStatusPaused
}

// IsTerminal reports COMPLETED, CANCELLED or FORFEITED.
func (m *Machine) IsTerminal() bool {
	switch m.current {
	case models.MatchStatusCompleted, models.MatchStatusCancelled, models.MatchStatusForfeited:
		return true
	}
	return false
}

// HasStarted reports whether play has begun at some point.
func (m *Machine) HasStarted() bool {
	switch m.current {
	case models.MatchStatusNone, models.MatchStatusPending, models.MatchStatusCountdown:
		return false
	}
	return true
}

func (m *Machine) CanPause() bool  { return m.current == models.MatchStatusInProgress }
func (m *Machine) CanResume() bool { return m.current == models.MatchStatusPaused }

// CanForfeit reports PENDING, IN_PROGRESS or PAUSED.
func (m *Machine) CanForfeit() bool {
	return m.current == models.MatchStatusPending || m.IsActive()
}
