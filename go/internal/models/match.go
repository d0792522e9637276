package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchMode defines how opponents play against each other.
type MatchMode string

const (
	MatchModeAsync       MatchMode = "ASYNC"
	MatchModeSync        MatchMode = "SYNC"
	MatchModeCustomStage MatchMode = "CUSTOM_STAGE"
)

// IsRealtime reports whether opponents play at the same time and scores are compared locally.
func (m MatchMode) IsRealtime() bool {
	return m == MatchModeSync || m == MatchModeCustomStage
}

// ScoreRule defines how two scores are compared.
type ScoreRule string

const (
	ScoreRuleHigherIsBetter ScoreRule = "HIGHER_IS_BETTER"
	ScoreRuleLowerIsBetter  ScoreRule = "LOWER_IS_BETTER"
)

// Better reports whether score a beats score b under the rule.
func (r ScoreRule) Better(a, b int64) bool {
	if r == ScoreRuleLowerIsBetter {
		return a < b
	}
	return a > b
}

// MatchStatus defines the lifecycle status of a match.
type MatchStatus string

const (
	MatchStatusNone       MatchStatus = "NONE"
	MatchStatusPending    MatchStatus = "PENDING"
	MatchStatusCountdown  MatchStatus = "COUNTDOWN"
	MatchStatusInProgress MatchStatus = "IN_PROGRESS"
	MatchStatusPaused     MatchStatus = "PAUSED"
	MatchStatusProcessing MatchStatus = "PROCESSING"
	MatchStatusCompleted  MatchStatus = "COMPLETED"
	MatchStatusCancelled  MatchStatus = "CANCELLED"
	MatchStatusForfeited  MatchStatus = "FORFEITED"
)

// AllMatchStatuses lists every status in lifecycle order.
var AllMatchStatuses = []MatchStatus{
	MatchStatusNone,
	MatchStatusPending,
	MatchStatusCountdown,
	MatchStatusInProgress,
	MatchStatusPaused,
	MatchStatusProcessing,
	MatchStatusCompleted,
	MatchStatusCancelled,
	MatchStatusForfeited,
}

// Outcome is the adjudicated result for the local participant.
type Outcome string

const (
	OutcomeWin       Outcome = "WIN"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeTie       Outcome = "TIE"
	OutcomeForfeit   Outcome = "FORFEIT"
	OutcomeCancelled Outcome = "CANCELLED"
	OutcomePending   Outcome = "PENDING"
)

// Participant is a player summary attached to a match offer.
type Participant struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
	IsLocal   bool   `json:"is_local"`
}

// MatchSession identifies one match.
type MatchSession struct {
	ID               uuid.UUID       `json:"id"`
	Mode             MatchMode       `json:"mode"`
	TimeLimitSeconds int             `json:"time_limit_seconds"` // 0 = unlimited
	Rounds           int             `json:"rounds"`
	ScoreRule        ScoreRule       `json:"score_rule"`
	Currency         string          `json:"currency"`
	EntryFee         decimal.Decimal `json:"entry_fee"`
	PrizePool        decimal.Decimal `json:"prize_pool"`
	Participants     []Participant   `json:"participants"`
}

// LocalPlayer returns the local participant, if the offer names one.
func (s *MatchSession) LocalPlayer() (Participant, bool) {
	for _, p := range s.Participants {
		if p.IsLocal {
			return p, true
		}
	}
	return Participant{}, false
}

// Opponents returns every non-local participant.
func (s *MatchSession) Opponents() []Participant {
	var out []Participant
	for _, p := range s.Participants {
		if !p.IsLocal {
			out = append(out, p)
		}
	}
	return out
}

// RoundRecord holds one round of a multi-round match.
type RoundRecord struct {
	Number    int        `json:"number"` // 1-indexed
	Score     int64      `json:"score"`
	Completed bool       `json:"completed"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// ScoreSubmission is a score report handed to the submission pipeline.
type ScoreSubmission struct {
	MatchID      uuid.UUID `json:"match_id"`
	Score        int64     `json:"score"`
	Round        int       `json:"round"`
	Timestamp    time.Time `json:"timestamp"`
	IsCheckpoint bool      `json:"is_checkpoint"`
}

// PendingScoreEntry is a durable record of an undelivered score.
type PendingScoreEntry struct {
	ID        uuid.UUID `json:"id"`
	MatchID   uuid.UUID `json:"match_id"`
	Score     int64     `json:"score"`
	Round     int       `json:"round"`
	IsFinal   bool      `json:"is_final"`
	Timestamp time.Time `json:"timestamp"`
}

// Standing is one participant's final placement.
type Standing struct {
	ParticipantID string `json:"participant_id"`
	Username      string `json:"username"`
	Score         int64  `json:"score"`
	Rank          int    `json:"rank"`
	IsLocal       bool   `json:"is_local"`
}

// MatchResult is the final record of a match, built once at Completed or Forfeited.
type MatchResult struct {
	MatchID        uuid.UUID       `json:"match_id"`
	Outcome        Outcome         `json:"outcome"`
	FinalScore     int64           `json:"final_score"`
	FinalRank      int             `json:"final_rank"`
	PrizeWon       decimal.Decimal `json:"prize_won"`
	Currency       string          `json:"currency"`
	Duration       time.Duration   `json:"duration"`
	ActiveDuration time.Duration   `json:"active_duration"`
	XPEarned       int             `json:"xp_earned"`
	Standings      []Standing      `json:"standings"`
	Confirmed      bool            `json:"confirmed"`
	CompletedAt    time.Time       `json:"completed_at"`
}
