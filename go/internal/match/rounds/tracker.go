package rounds

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyComplete       = errors.New("all rounds already complete")
	ErrLastRound             = errors.New("already at the last round")
	ErrRoundNotStarted       = errors.New("current round has not started")
	ErrRoundAlreadyCompleted = errors.New("current round already completed")
	ErrRoundInProgress       = errors.New("current round still in progress")
)

// Hooks receives round notifications. Nil hooks are skipped.
type Hooks struct {
	OnRoundStarted      func(round int)
	OnRoundCompleted    func(round int, score int64)
	OnAllRoundsComplete func(totalScore int64)
}

// Tracker owns the RoundRecords of one match and mutates them strictly in round order.
type Tracker struct {
	clock    clockwork.Clock
	hooks    Hooks
	rounds   []models.RoundRecord
	current  int // 1-indexed
	complete bool
}

// NewTracker creates a tracker configured for a single round.
func NewTracker(clock clockwork.Clock, hooks Hooks) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Tracker{clock: clock, hooks: hooks}
	t.Configure(1)
	return t
}

// SetHooks replaces the notification hooks.
func (t *Tracker) SetHooks(h Hooks) {
	t.hooks = h
}

// Configure re-initializes totalRounds records and resets the current round to 1.
func (t *Tracker) Configure(totalRounds int) {
	if totalRounds < 1 {
		totalRounds = 1
	}
	t.rounds = make([]models.RoundRecord, totalRounds)
	for i := range t.rounds {
		t.rounds[i] = models.RoundRecord{Number: i + 1}
	}
	t.current = 1
	t.complete = false
}

// StartFirstRound stamps the start time of round 1.
func (t *Tracker) StartFirstRound() error {
	if t.complete {
		return ErrAlreadyComplete
	}
	first := &t.rounds[0]
	if first.StartedAt != nil {
		return nil
	}
	t.current = 1
	now := t.clock.Now()
	first.StartedAt = &now
	if t.hooks.OnRoundStarted != nil {
		t.hooks.OnRoundStarted(1)
	}
	return nil
}

// StartNextRound advances to the next round once the current one is completed.
func (t *Tracker) StartNextRound() error {
	if t.complete {
		log.Warn().Int("round", t.current).Msg("start next round rejected: all rounds complete")
		return ErrAlreadyComplete
	}
	if t.current >= len(t.rounds) {
		log.Warn().Int("round", t.current).Msg("start next round rejected: last round")
		return ErrLastRound
	}
	if !t.rounds[t.current-1].Completed {
		return ErrRoundInProgress
	}

	t.current++
	now := t.clock.Now()
	t.rounds[t.current-1].StartedAt = &now
	if t.hooks.OnRoundStarted != nil {
		t.hooks.OnRoundStarted(t.current)
	}
	return nil
}

// CompleteRound records the score of the current round and marks it complete.
func (t *Tracker) CompleteRound(score int64) error {
	if t.complete {
		return ErrAlreadyComplete
	}
	r := &t.rounds[t.current-1]
	if r.StartedAt == nil {
		return fmt.Errorf("round %d: %w", r.Number, ErrRoundNotStarted)
	}
	if r.Completed {
		return fmt.Errorf("round %d: %w", r.Number, ErrRoundAlreadyCompleted)
	}

	now := t.clock.Now()
	r.Score = score
	r.EndedAt = &now
	r.Completed = true

	if t.hooks.OnRoundCompleted != nil {
		t.hooks.OnRoundCompleted(r.Number, score)
	}

	if t.current == len(t.rounds) {
		t.complete = true
		if t.hooks.OnAllRoundsComplete != nil {
			t.hooks.OnAllRoundsComplete(t.TotalScore())
		}
	}
	return nil
}

// UpdateCurrentRoundScore overwrites the running score of the in-progress round.
func (t *Tracker) UpdateCurrentRoundScore(score int64) error {
	r, err := t.inProgress()
	if err != nil {
		return err
	}
	r.Score = score
	return nil
}

// AddToCurrentRoundScore adds points to the in-progress round.
func (t *Tracker) AddToCurrentRoundScore(points int64) error {
	r, err := t.inProgress()
	if err != nil {
		return err
	}
	r.Score += points
	return nil
}

func (t *Tracker) inProgress() (*models.RoundRecord, error) {
	if t.complete {
		return nil, ErrAlreadyComplete
	}
	r := &t.rounds[t.current-1]
	if r.StartedAt == nil {
		return nil, ErrRoundNotStarted
	}
	if r.Completed {
		return nil, ErrRoundAlreadyCompleted
	}
	return r, nil
}

// TotalScore sums the scores of completed rounds.
func (t *Tracker) TotalScore() int64 {
	var total int64
	for _, r := range t.rounds {
		if r.Completed {
			total += r.Score
		}
	}
	return total
}

// AverageScore is the mean over completed rounds, 0 when none completed.
func (t *Tracker) AverageScore() float64 {
	n := t.CompletedRounds()
	if n == 0 {
		return 0
	}
	return float64(t.TotalScore()) / float64(n)
}

// BestRound returns the completed round with the highest score.
func (t *Tracker) BestRound() (models.RoundRecord, bool) {
	var best models.RoundRecord
	found := false
	for _, r := range t.rounds {
		if !r.Completed {
			continue
		}
		if !found || r.Score > best.Score {
			best = r
			found = true
		}
	}
	return best, found
}

// ScoreImprovement is the last completed round's score minus the first's.
func (t *Tracker) ScoreImprovement() int64 {
	var first, last *models.RoundRecord
	for i := range t.rounds {
		if !t.rounds[i].Completed {
			continue
		}
		if first == nil {
			first = &t.rounds[i]
		}
		last = &t.rounds[i]
	}
	if first == nil {
		return 0
	}
	return last.Score - first.Score
}

// RoundDuration returns how long round n took; in-progress rounds are measured up to now.
func (t *Tracker) RoundDuration(n int) time.Duration {
	if n < 1 || n > len(t.rounds) {
		return 0
	}
	r := t.rounds[n-1]
	if r.StartedAt == nil {
		return 0
	}
	end := t.clock.Now()
	if r.EndedAt != nil {
		end = *r.EndedAt
	}
	return end.Sub(*r.StartedAt)
}

func (t *Tracker) CompletedRounds() int {
	n := 0
	for _, r := range t.rounds {
		if r.Completed {
			n++
		}
	}
	return n
}

// Rounds returns a copy of all round records.
func (t *Tracker) Rounds() []models.RoundRecord {
	out := make([]models.RoundRecord, len(t.rounds))
	copy(out, t.rounds)
	return out
}

func (t *Tracker) CurrentRound() int { return t.current }
func (t *Tracker) TotalRounds() int  { return len(t.rounds) }
func (t *Tracker) IsComplete() bool  { return t.complete }
func (t *Tracker) IsLastRound() bool { return t.current == len(t.rounds) }
