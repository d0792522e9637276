package events

import (
	"time"

	"github.com/mcdev12/arena/go/internal/models"
)

// Event payload types shared by the lifecycle, outbox and gateway packages

// MatchReadyPayload is the payload for a MatchReady event
type MatchReadyPayload struct {
	Mode             models.MatchMode     `json:"mode"`
	TimeLimitSeconds int                  `json:"time_limit_seconds"`
	Rounds           int                  `json:"rounds"`
	Participants     []models.Participant `json:"participants"`
}

// CountdownTickPayload is the payload for a CountdownTick event
type CountdownTickPayload struct {
	SecondsRemaining int `json:"seconds_remaining"`
}

// MatchStartedPayload is the payload for a MatchStarted event
type MatchStartedPayload struct {
	StartedAt        time.Time `json:"started_at"`
	TimeLimitSeconds int       `json:"time_limit_seconds"`
	Round            int       `json:"round"`
}

// MatchPausedPayload is the payload for a MatchPaused event
type MatchPausedPayload struct {
	PausedAt time.Time `json:"paused_at"`
	Reason   string    `json:"reason"`
}

// MatchResumedPayload is the payload for a MatchResumed event
type MatchResumedPayload struct {
	ResumedAt   time.Time     `json:"resumed_at"`
	PausedFor   time.Duration `json:"paused_for"`
	AutoResumed bool          `json:"auto_resumed"`
}

// MatchEndingPayload is the payload for a MatchEnding event
type MatchEndingPayload struct {
	FinalScore int64  `json:"final_score"`
	Reason     string `json:"reason"`
}

// MatchCompletedPayload is the payload for MatchCompleted and MatchForfeited events
type MatchCompletedPayload struct {
	Result models.MatchResult `json:"result"`
}

// MatchCancelledPayload is the payload for a MatchCancelled event
type MatchCancelledPayload struct {
	Reason string `json:"reason"`
}

// LocalScoreUpdatedPayload is the payload for a LocalScoreUpdated event
type LocalScoreUpdatedPayload struct {
	Score    int64 `json:"score"`
	MaxScore int64 `json:"max_score"`
	Delta    int64 `json:"delta"`
}

// ScoreSubmittedPayload is the payload for a ScoreSubmitted event
type ScoreSubmittedPayload struct {
	Score        int64 `json:"score"`
	Round        int   `json:"round"`
	IsCheckpoint bool  `json:"is_checkpoint"`
}

// ScoreSubmissionFailedPayload is the payload for a ScoreSubmissionFailed event
type ScoreSubmissionFailedPayload struct {
	Score        int64  `json:"score"`
	IsCheckpoint bool   `json:"is_checkpoint"`
	Error        string `json:"error"`
}

// TimerTickPayload is the payload for a TimerTick event
type TimerTickPayload struct {
	RemainingSec float64 `json:"remaining_sec"`
	ElapsedSec   float64 `json:"elapsed_sec"`
	Untimed      bool    `json:"untimed"`
}

// TimeWarningPayload is the payload for a TimeWarning event
type TimeWarningPayload struct {
	RemainingSec float64 `json:"remaining_sec"`
}

// TimeExpiredPayload is the payload for a TimeExpired event
type TimeExpiredPayload struct {
	GracePeriodSec float64 `json:"grace_period_sec"`
}

// RoundStartedPayload is the payload for a RoundStarted event
type RoundStartedPayload struct {
	Round       int `json:"round"`
	TotalRounds int `json:"total_rounds"`
}

// RoundCompletedPayload is the payload for a RoundCompleted event
type RoundCompletedPayload struct {
	Round       int   `json:"round"`
	Score       int64 `json:"score"`
	TotalScore  int64 `json:"total_score"`
	TotalRounds int   `json:"total_rounds"`
}

// StateChangedPayload is the payload for a StateChanged event
type StateChangedPayload struct {
	From models.MatchStatus `json:"from"`
	To   models.MatchStatus `json:"to"`
}

// InvalidTransitionPayload is the payload for an InvalidTransition event
type InvalidTransitionPayload struct {
	From models.MatchStatus `json:"from"`
	To   models.MatchStatus `json:"to"`
}

// ConnectivityChangedPayload is the payload for a ConnectivityChanged event
type ConnectivityChangedPayload struct {
	State string `json:"state"`
}
