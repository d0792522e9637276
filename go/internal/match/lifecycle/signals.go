package lifecycle

import (
	"context"
	"fmt"

	"github.com/mcdev12/arena/go/internal/match/connectivity"
	"github.com/mcdev12/arena/go/internal/match/events"
	"github.com/mcdev12/arena/go/internal/match/submission"
	"github.com/mcdev12/arena/go/internal/models"
)

// SubmitScoreCheckpoint sends the running score as a checkpoint without
// blocking the caller. The result is applied on a later Tick or Settle.
func (c *Controller) SubmitScoreCheckpoint(ctx context.Context) error {
	if !c.machine.IsActive() {
		return ErrNotActive
	}
	if c.pipeline == nil {
		return nil
	}

	sub := models.ScoreSubmission{
		MatchID:      c.session.ID,
		Score:        c.score,
		Round:        c.rounds.CurrentRound(),
		Timestamp:    c.clock.Now(),
		IsCheckpoint: true,
	}
	generation := c.generation
	submitCtx := context.WithoutCancel(ctx)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		res := c.pipeline.SubmitCheckpoint(submitCtx, sub)
		c.doneMu.Lock()
		c.completions = append(c.completions, checkpointDone{generation: generation, result: res})
		c.doneMu.Unlock()
	}()
	return nil
}

func (c *Controller) applyCompletions() {
	c.doneMu.Lock()
	done := c.completions
	c.completions = nil
	c.doneMu.Unlock()

	for _, d := range done {
		res := d.result
		if d.generation != c.generation || c.session == nil {
			c.logger.Debug().
				Str("match_id", res.Submission.MatchID.String()).
				Str("outcome", string(res.Outcome)).
				Msg("discarding checkpoint result for a finished match")
			continue
		}
		switch res.Outcome {
		case submission.OutcomeDelivered:
			c.publish(events.EventTypeScoreSubmitted, events.ScoreSubmittedPayload{
				Score:        res.Submission.Score,
				Round:        res.Submission.Round,
				IsCheckpoint: true,
			})
		case submission.OutcomeQueued, submission.OutcomeFailed:
			c.logger.Warn().
				Err(res.Err).
				Str("match_id", res.Submission.MatchID.String()).
				Str("outcome", string(res.Outcome)).
				Msg("checkpoint not delivered")
		}
	}
}

// HandleConnectivity reacts to a connection state change. Real-time matches
// pause when the link drops and resume when it returns, unless the player
// paused manually.
func (c *Controller) HandleConnectivity(s connectivity.State) {
	c.publish(events.EventTypeConnectivityChanged, events.ConnectivityChangedPayload{State: string(s)})
	if c.session == nil || !c.session.Mode.IsRealtime() {
		return
	}

	switch {
	case s.IsDown() && c.machine.CanPause():
		if err := c.pause(string(s), true); err != nil {
			c.logger.Error().Err(err).Msg("auto pause failed")
		}
	case s == connectivity.StateConnected && c.autoPaused && c.machine.CanResume():
		if err := c.resume(true); err != nil {
			c.logger.Error().Err(err).Msg("auto resume failed")
		}
	}
}

// RecordOpponentScore stores the latest known score for an opponent.
func (c *Controller) RecordOpponentScore(participantID string, score int64) error {
	if c.session == nil {
		return ErrNoMatch
	}
	p, ok := c.participant(participantID)
	if !ok || p.IsLocal {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	c.opponentScores[participantID] = score
	return nil
}

// OpponentScore returns the recorded score for participantID.
func (c *Controller) OpponentScore(participantID string) (int64, bool) {
	s, ok := c.opponentScores[participantID]
	return s, ok
}

// SetParticipantConnected updates the connected flag of a participant.
func (c *Controller) SetParticipantConnected(participantID string, connected bool) error {
	if c.session == nil {
		return ErrNoMatch
	}
	for i := range c.session.Participants {
		if c.session.Participants[i].ID == participantID {
			c.session.Participants[i].Connected = connected
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
}

func (c *Controller) participant(id string) (models.Participant, bool) {
	for _, p := range c.session.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return models.Participant{}, false
}
