package submission

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Reporter delivers scores to the backend.
type Reporter interface {
	SubmitScore(ctx context.Context, matchID uuid.UUID, score int64, round int, isCheckpoint bool) error
	SubmitMatchEnd(ctx context.Context, matchID uuid.UUID, finalScore int64) (*models.MatchResult, error)
}

// Outcome describes what happened to one submission.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeQueued    Outcome = "queued"
	OutcomeFailed    Outcome = "failed"
)

// Result is returned by every pipeline submission.
type Result struct {
	Submission models.ScoreSubmission
	Outcome    Outcome
	Attempts   int
	Err        error
	// Server is the backend's result for a delivered final submission, if it sent one.
	Server *models.MatchResult
}

// Config holds pipeline limits.
type Config struct {
	MaxCheckpoints int
	QueueLimit     int
	Retry          RetryPolicy
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MaxCheckpoints: 10,
		QueueLimit:     DefaultQueueLimit,
		Retry:          DefaultRetryPolicy(),
	}
}

// Pipeline submits scores through a Reporter and falls back to the pending queue.
type Pipeline struct {
	reporter Reporter
	queue    *PendingQueue
	clock    clockwork.Clock
	config   Config

	mu          sync.Mutex
	checkpoints map[uuid.UUID]int
}

// NewPipeline wires a pipeline over reporter and store.
func NewPipeline(reporter Reporter, store Store, clock clockwork.Clock, config Config) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		reporter:    reporter,
		queue:       NewPendingQueue(store, config.QueueLimit),
		clock:       clock,
		config:      config,
		checkpoints: make(map[uuid.UUID]int),
	}
}

// Queue exposes the pending queue.
func (p *Pipeline) Queue() *PendingQueue {
	return p.queue
}

// CheckpointCount returns how many checkpoint submissions matchID has used.
func (p *Pipeline) CheckpointCount(matchID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpoints[matchID]
}

// Reset forgets the checkpoint count for matchID.
func (p *Pipeline) Reset(matchID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.checkpoints, matchID)
}

func (p *Pipeline) reserveCheckpoint(matchID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checkpoints[matchID] >= p.config.MaxCheckpoints {
		return false
	}
	p.checkpoints[matchID]++
	return true
}

// SubmitCheckpoint delivers a checkpoint. Past the per-match cap it is skipped
// without touching the reporter. A recoverable failure that survives every
// retry is queued for replay.
func (p *Pipeline) SubmitCheckpoint(ctx context.Context, sub models.ScoreSubmission) Result {
	sub.IsCheckpoint = true
	if !p.reserveCheckpoint(sub.MatchID) {
		log.Debug().
			Str("match_id", sub.MatchID.String()).
			Int("max_checkpoints", p.config.MaxCheckpoints).
			Msg("checkpoint cap reached, skipping")
		return Result{Submission: sub, Outcome: OutcomeSkipped}
	}

	attempts, err := p.config.Retry.Do(ctx, p.clock, "submit_checkpoint", func(ctx context.Context) error {
		return p.reporter.SubmitScore(ctx, sub.MatchID, sub.Score, sub.Round, true)
	})
	if err == nil {
		return Result{Submission: sub, Outcome: OutcomeDelivered, Attempts: attempts}
	}

	if !IsRecoverable(err) && !errors.Is(err, ErrRetriesExhausted) {
		log.Error().
			Err(err).
			Str("match_id", sub.MatchID.String()).
			Int64("score", sub.Score).
			Msg("checkpoint rejected")
		return Result{Submission: sub, Outcome: OutcomeFailed, Attempts: attempts, Err: err}
	}

	if qerr := p.enqueue(context.WithoutCancel(ctx), sub, false); qerr != nil {
		return Result{Submission: sub, Outcome: OutcomeFailed, Attempts: attempts, Err: errors.Join(err, qerr)}
	}
	return Result{Submission: sub, Outcome: OutcomeQueued, Attempts: attempts, Err: err}
}

// SubmitFinal delivers the match-ending score. If ctx expires before the
// backend confirms, the score is queued and the result is OutcomeQueued.
// Any other failure is OutcomeFailed and nothing is queued.
func (p *Pipeline) SubmitFinal(ctx context.Context, sub models.ScoreSubmission) Result {
	sub.IsCheckpoint = false

	var server *models.MatchResult
	attempts, err := p.config.Retry.Do(ctx, p.clock, "submit_final", func(ctx context.Context) error {
		res, err := p.reporter.SubmitMatchEnd(ctx, sub.MatchID, sub.Score)
		if err != nil {
			return err
		}
		server = res
		return nil
	})
	if err == nil {
		return Result{Submission: sub, Outcome: OutcomeDelivered, Attempts: attempts, Server: server}
	}

	if ctx.Err() != nil {
		log.Warn().
			Err(err).
			Str("match_id", sub.MatchID.String()).
			Msg("final submission unconfirmed before timeout, queueing")
		if qerr := p.enqueue(context.WithoutCancel(ctx), sub, true); qerr != nil {
			return Result{Submission: sub, Outcome: OutcomeFailed, Attempts: attempts, Err: errors.Join(err, qerr)}
		}
		return Result{Submission: sub, Outcome: OutcomeQueued, Attempts: attempts, Err: err}
	}

	log.Error().
		Err(err).
		Str("match_id", sub.MatchID.String()).
		Int64("score", sub.Score).
		Int("attempts", attempts).
		Msg("final submission failed")
	return Result{Submission: sub, Outcome: OutcomeFailed, Attempts: attempts, Err: err}
}

func (p *Pipeline) enqueue(ctx context.Context, sub models.ScoreSubmission, final bool) error {
	entry := models.PendingScoreEntry{
		ID:        uuid.New(),
		MatchID:   sub.MatchID,
		Score:     sub.Score,
		Round:     sub.Round,
		IsFinal:   final,
		Timestamp: sub.Timestamp,
	}
	if err := p.queue.Append(ctx, entry); err != nil {
		log.Error().
			Err(err).
			Str("match_id", sub.MatchID.String()).
			Msg("failed to queue score submission")
		return err
	}
	log.Info().
		Str("match_id", sub.MatchID.String()).
		Str("entry_id", entry.ID.String()).
		Bool("is_final", final).
		Msg("score submission queued for replay")
	return nil
}

// ReplayStats summarises one ReplayPending pass.
type ReplayStats struct {
	Delivered int
	Dropped   int
	Remaining int
}

// ReplayPending resubmits queued entries oldest first. Delivered entries and
// entries the backend rejects outright are removed; the pass stops at the
// first recoverable failure so ordering is preserved.
func (p *Pipeline) ReplayPending(ctx context.Context) (ReplayStats, error) {
	var stats ReplayStats

	entries, err := p.queue.List(ctx)
	if err != nil {
		return stats, err
	}

	for i, e := range entries {
		if ctx.Err() != nil {
			stats.Remaining = len(entries) - i
			return stats, ctx.Err()
		}

		err := p.replayOne(ctx, e)
		if err != nil && IsRecoverable(err) {
			stats.Remaining = len(entries) - i
			log.Warn().
				Err(err).
				Str("entry_id", e.ID.String()).
				Int("remaining", stats.Remaining).
				Msg("replay paused on recoverable failure")
			return stats, nil
		}

		if err != nil {
			stats.Dropped++
			log.Error().
				Err(err).
				Str("entry_id", e.ID.String()).
				Str("match_id", e.MatchID.String()).
				Msg("dropping pending score rejected by backend")
		} else {
			stats.Delivered++
		}
		if rerr := p.queue.Remove(ctx, e.ID); rerr != nil {
			stats.Remaining = len(entries) - i
			return stats, rerr
		}
	}

	if stats.Delivered > 0 || stats.Dropped > 0 {
		log.Info().
			Int("delivered", stats.Delivered).
			Int("dropped", stats.Dropped).
			Msg("pending score replay finished")
	}
	return stats, nil
}

func (p *Pipeline) replayOne(ctx context.Context, e models.PendingScoreEntry) error {
	if e.IsFinal {
		_, err := p.reporter.SubmitMatchEnd(ctx, e.MatchID, e.Score)
		return err
	}
	return p.reporter.SubmitScore(ctx, e.MatchID, e.Score, e.Round, true)
}
