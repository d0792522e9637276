package lifecycle

import (
	"context"
	"fmt"

	"github.com/mcdev12/arena/go/internal/match/events"
	"github.com/mcdev12/arena/go/internal/match/submission"
	"github.com/mcdev12/arena/go/internal/models"
)

// InitializeMatch loads session as the current match and moves to PENDING.
// It is rejected while another match is running.
func (c *Controller) InitializeMatch(session *models.MatchSession) error {
	if session == nil {
		return ErrNilSession
	}
	switch c.machine.Current() {
	case models.MatchStatusCountdown, models.MatchStatusInProgress,
		models.MatchStatusPaused, models.MatchStatusProcessing:
		c.logger.Warn().
			Str("match_id", c.matchID().String()).
			Str("status", string(c.machine.Current())).
			Msg("initialize rejected: match already active")
		return ErrMatchActive
	}
	if c.machine.IsTerminal() {
		if err := c.machine.TransitionTo(models.MatchStatusNone); err != nil {
			return err
		}
	}

	c.generation++
	c.session = session
	c.lastResult = nil
	c.publish(events.EventTypeInitializing, nil)

	c.score = 0
	c.maxScore = 0
	c.opponentScores = make(map[string]int64)
	c.startedAt = c.clock.Now()
	c.pausedAt = c.startedAt
	c.pausedTotal = 0
	c.autoPaused = false
	c.inCountdown = false
	c.inTransition = false
	c.expiryPending = false
	c.ending = false

	c.timer.Configure(float64(session.TimeLimitSeconds), c.config.GracePeriodSeconds)
	totalRounds := session.Rounds
	if totalRounds < 1 {
		totalRounds = 1
	}
	c.rounds.Configure(totalRounds)
	if c.pipeline != nil {
		c.pipeline.Reset(session.ID)
	}

	if err := c.machine.TransitionTo(models.MatchStatusPending); err != nil {
		return err
	}

	c.logger.Info().
		Str("match_id", session.ID.String()).
		Str("mode", string(session.Mode)).
		Int("time_limit_seconds", session.TimeLimitSeconds).
		Int("rounds", totalRounds).
		Int("participants", len(session.Participants)).
		Msg("match initialized")

	c.publish(events.EventTypeMatchReady, events.MatchReadyPayload{
		Mode:             session.Mode,
		TimeLimitSeconds: session.TimeLimitSeconds,
		Rounds:           totalRounds,
		Participants:     session.Participants,
	})
	return nil
}

// StartMatch leaves PENDING, either through a countdown driven by Tick or
// straight into play.
func (c *Controller) StartMatch(withCountdown bool) error {
	if c.machine.Current() != models.MatchStatusPending {
		return c.rejectTransition("start match", models.MatchStatusInProgress)
	}

	if withCountdown && c.config.CountdownSeconds > 0 {
		if err := c.machine.TransitionTo(models.MatchStatusCountdown); err != nil {
			return err
		}
		c.inCountdown = true
		c.countdownRemaining = float64(c.config.CountdownSeconds)
		c.publish(events.EventTypeCountdownTick, events.CountdownTickPayload{SecondsRemaining: c.config.CountdownSeconds})
		return nil
	}
	return c.beginPlay()
}

func (c *Controller) beginPlay() error {
	if err := c.machine.TransitionTo(models.MatchStatusInProgress); err != nil {
		return err
	}
	c.startedAt = c.clock.Now()
	c.timer.Start()
	if err := c.rounds.StartFirstRound(); err != nil {
		return err
	}

	c.logger.Info().Str("match_id", c.matchID().String()).Msg("match started")
	c.publish(events.EventTypeMatchStarted, events.MatchStartedPayload{
		StartedAt:        c.startedAt,
		TimeLimitSeconds: c.session.TimeLimitSeconds,
		Round:            c.rounds.CurrentRound(),
	})
	return nil
}

// PauseMatch pauses an in-progress match.
func (c *Controller) PauseMatch() error {
	return c.pause("manual", false)
}

// ResumeMatch resumes a paused match.
func (c *Controller) ResumeMatch() error {
	return c.resume(false)
}

func (c *Controller) pause(reason string, auto bool) error {
	if !c.machine.CanPause() {
		return c.rejectTransition("pause", models.MatchStatusPaused)
	}
	if err := c.machine.TransitionTo(models.MatchStatusPaused); err != nil {
		return err
	}
	c.timer.Pause()
	c.pausedAt = c.clock.Now()
	c.autoPaused = auto

	c.logger.Info().
		Str("match_id", c.matchID().String()).
		Str("reason", reason).
		Bool("auto", auto).
		Msg("match paused")
	c.publish(events.EventTypeMatchPaused, events.MatchPausedPayload{PausedAt: c.pausedAt, Reason: reason})
	return nil
}

func (c *Controller) resume(auto bool) error {
	if !c.machine.CanResume() {
		return c.rejectTransition("resume", models.MatchStatusInProgress)
	}
	if err := c.machine.TransitionTo(models.MatchStatusInProgress); err != nil {
		return err
	}
	pausedFor := c.clock.Since(c.pausedAt)
	c.pausedTotal += pausedFor
	c.timer.Resume()
	c.autoPaused = false

	c.logger.Info().
		Str("match_id", c.matchID().String()).
		Dur("paused_for", pausedFor).
		Bool("auto", auto).
		Msg("match resumed")
	c.publish(events.EventTypeMatchResumed, events.MatchResumedPayload{
		ResumedAt:   c.clock.Now(),
		PausedFor:   pausedFor,
		AutoResumed: auto,
	})
	return nil
}

// UpdateScore sets the running score of the current round.
func (c *Controller) UpdateScore(score int64) error {
	if !c.machine.IsActive() {
		c.logger.Warn().Int64("score", score).Msg("score update rejected: match not active")
		return ErrNotActive
	}
	if err := c.rounds.UpdateCurrentRoundScore(score); err != nil {
		return err
	}
	c.setScore(c.runningScore())
	return nil
}

// AddScore adds points to the running score of the current round.
func (c *Controller) AddScore(points int64) error {
	if !c.machine.IsActive() {
		c.logger.Warn().Int64("points", points).Msg("score update rejected: match not active")
		return ErrNotActive
	}
	if err := c.rounds.AddToCurrentRoundScore(points); err != nil {
		return err
	}
	c.setScore(c.runningScore())
	return nil
}

// runningScore is the total of completed rounds plus the round in play.
func (c *Controller) runningScore() int64 {
	total := c.rounds.TotalScore()
	for _, r := range c.rounds.Rounds() {
		if r.Number == c.rounds.CurrentRound() && r.StartedAt != nil && !r.Completed {
			total += r.Score
		}
	}
	return total
}

func (c *Controller) setScore(score int64) {
	delta := score - c.score
	c.score = score
	if score > c.maxScore {
		c.maxScore = score
	}
	c.publish(events.EventTypeLocalScoreUpdated, events.LocalScoreUpdatedPayload{
		Score:    c.score,
		MaxScore: c.maxScore,
		Delta:    delta,
	})
}

// AddTime extends the match time limit.
func (c *Controller) AddTime(seconds float64) error {
	if !c.machine.IsActive() {
		return ErrNotActive
	}
	c.timer.AddTime(seconds)
	return nil
}

// RemoveTime shortens the match time limit. Expiry it causes is handled on the next Tick.
func (c *Controller) RemoveTime(seconds float64) error {
	if !c.machine.IsActive() {
		return ErrNotActive
	}
	c.timer.RemoveTime(seconds)
	return nil
}

// CompleteRound records score for the current round. The last round ends the
// match; earlier rounds start the inter-round transition.
func (c *Controller) CompleteRound(ctx context.Context, score int64) error {
	if !c.machine.IsActive() {
		return ErrNotActive
	}
	if err := c.rounds.CompleteRound(score); err != nil {
		c.logger.Warn().Err(err).Str("match_id", c.matchID().String()).Msg("complete round rejected")
		return err
	}
	c.setScore(c.rounds.TotalScore())

	if c.rounds.IsComplete() {
		return c.EndMatch(ctx)
	}

	c.timer.Stop()
	if c.config.RoundTransitionSeconds <= 0 {
		c.startNextRound()
		return nil
	}
	c.inTransition = true
	c.transitionRemaining = c.config.RoundTransitionSeconds
	return nil
}

// EndMatch stops play, submits the final score and records the result. It
// runs at most once per match; a second call while ending is ignored.
func (c *Controller) EndMatch(ctx context.Context) error {
	if c.ending {
		return nil
	}
	current := c.machine.Current()
	if current != models.MatchStatusPending && !c.machine.IsActive() {
		return c.rejectTransition("end match", models.MatchStatusProcessing)
	}
	c.ending = true
	c.expiryPending = false

	if current == models.MatchStatusPending {
		if err := c.machine.TransitionTo(models.MatchStatusInProgress); err != nil {
			return err
		}
		c.startedAt = c.clock.Now()
	}
	c.stopPlay()

	matchID := c.matchID()
	c.publish(events.EventTypeMatchEnding, events.MatchEndingPayload{FinalScore: c.score, Reason: "ended"})
	if err := c.machine.TransitionTo(models.MatchStatusProcessing); err != nil {
		return err
	}

	sub := models.ScoreSubmission{
		MatchID:   matchID,
		Score:     c.score,
		Round:     c.rounds.CurrentRound(),
		Timestamp: c.clock.Now(),
	}

	confirmed := false
	if c.pipeline != nil {
		submitCtx, cancel := context.WithTimeout(ctx, c.config.FinalSubmitTimeout)
		res := c.pipeline.SubmitFinal(submitCtx, sub)
		cancel()

		switch res.Outcome {
		case submission.OutcomeDelivered:
			confirmed = true
			c.publish(events.EventTypeScoreSubmitted, events.ScoreSubmittedPayload{
				Score: sub.Score,
				Round: sub.Round,
			})
		case submission.OutcomeQueued:
			c.logger.Warn().
				Str("match_id", matchID.String()).
				Msg("final score unconfirmed, completing with local result")
		default:
			return c.failFinalSubmission(sub, res.Err)
		}
	}

	result := c.buildResult(c.determineOutcome(), confirmed)
	if err := c.machine.TransitionTo(models.MatchStatusCompleted); err != nil {
		return err
	}
	c.lastResult = result

	c.logger.Info().
		Str("match_id", matchID.String()).
		Str("outcome", string(result.Outcome)).
		Int64("final_score", result.FinalScore).
		Bool("confirmed", confirmed).
		Msg("match completed")
	c.publish(events.EventTypeMatchCompleted, events.MatchCompletedPayload{Result: *result})
	c.finish()
	return nil
}

func (c *Controller) failFinalSubmission(sub models.ScoreSubmission, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	c.publish(events.EventTypeScoreSubmissionFailed, events.ScoreSubmissionFailedPayload{
		Score: sub.Score,
		Error: msg,
	})
	if err := c.machine.TransitionTo(models.MatchStatusCancelled); err != nil {
		return err
	}
	c.logger.Error().
		Err(cause).
		Str("match_id", sub.MatchID.String()).
		Msg("match cancelled: final score could not be confirmed")
	c.publish(events.EventTypeMatchCancelled, events.MatchCancelledPayload{Reason: "final score submission failed"})
	c.finish()
	return fmt.Errorf("%w: %v", ErrSubmissionFailed, cause)
}

// ForfeitMatch concedes the match without submitting a score.
func (c *Controller) ForfeitMatch() error {
	if !c.machine.CanForfeit() || c.ending {
		return c.rejectTransition("forfeit", models.MatchStatusForfeited)
	}
	c.ending = true
	c.stopPlay()

	if err := c.machine.TransitionTo(models.MatchStatusForfeited); err != nil {
		return err
	}
	result := c.buildResult(models.OutcomeForfeit, false)
	c.lastResult = result

	c.logger.Info().Str("match_id", c.matchID().String()).Msg("match forfeited")
	c.publish(events.EventTypeMatchForfeited, events.MatchCompletedPayload{Result: *result})
	c.finish()
	return nil
}

// CancelMatch aborts the match from any non-terminal status.
func (c *Controller) CancelMatch(reason string) error {
	current := c.machine.Current()
	if current == models.MatchStatusNone || c.machine.IsTerminal() {
		return c.rejectTransition("cancel", models.MatchStatusCancelled)
	}
	c.stopPlay()
	if err := c.machine.TransitionTo(models.MatchStatusCancelled); err != nil {
		return err
	}

	c.logger.Info().
		Str("match_id", c.matchID().String()).
		Str("reason", reason).
		Msg("match cancelled")
	c.publish(events.EventTypeMatchCancelled, events.MatchCancelledPayload{Reason: reason})
	c.finish()
	return nil
}

// stopPlay halts every clock the match runs on and closes an open pause.
func (c *Controller) stopPlay() {
	c.timer.Stop()
	c.inCountdown = false
	c.inTransition = false
	if c.machine.Current() == models.MatchStatusPaused {
		c.pausedTotal += c.clock.Since(c.pausedAt)
		c.pausedAt = c.clock.Now()
	}
}

// finish clears the session once the terminal status has been reported.
// Checkpoint results still in flight belong to an old generation and are dropped.
func (c *Controller) finish() {
	if c.pipeline != nil && c.session != nil {
		c.pipeline.Reset(c.session.ID)
	}
	c.generation++
	c.session = nil
	c.autoPaused = false
	c.ending = false
}

// rejectTransition reports an operation whose target status is not reachable
// from the current one.
func (c *Controller) rejectTransition(op string, target models.MatchStatus) error {
	current := c.machine.Current()
	c.logger.Warn().
		Str("match_id", c.matchID().String()).
		Str("from_status", string(current)).
		Str("to_status", string(target)).
		Str("op", op).
		Msg("operation rejected")
	c.onInvalidTransition(current, target)
	return fmt.Errorf("%s from %s: %w", op, current, ErrInvalidState)
}
