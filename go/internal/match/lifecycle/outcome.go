package lifecycle

import (
	"sort"

	"github.com/mcdev12/arena/go/internal/models"
	"github.com/shopspring/decimal"
)

// PrizeShare is the part of the prize pool paid to a winner after the platform fee.
var PrizeShare = decimal.RequireFromString("0.95")

// XP awarded per outcome.
const (
	XPWin     = 100
	XPTie     = 50
	XPLoss    = 25
	XPForfeit = 0
	XPOther   = 10
)

// XPFor returns the experience awarded for outcome.
func XPFor(outcome models.Outcome) int {
	switch outcome {
	case models.OutcomeWin:
		return XPWin
	case models.OutcomeTie:
		return XPTie
	case models.OutcomeLoss:
		return XPLoss
	case models.OutcomeForfeit:
		return XPForfeit
	default:
		return XPOther
	}
}

// PrizeFor returns the prize for outcome given the match prize pool.
func PrizeFor(outcome models.Outcome, pool decimal.Decimal) decimal.Decimal {
	if outcome != models.OutcomeWin {
		return decimal.Zero
	}
	return pool.Mul(PrizeShare)
}

// DetermineOutcome adjudicates a real-time match. The local score wins when
// no opponent score beats or equals it, ties when the best opponent score
// equals it, and loses otherwise. With no opponent scores it is a win.
func DetermineOutcome(rule models.ScoreRule, local int64, opponents []int64) models.Outcome {
	tied := false
	for _, s := range opponents {
		if rule.Better(s, local) {
			return models.OutcomeLoss
		}
		if s == local {
			tied = true
		}
	}
	if tied {
		return models.OutcomeTie
	}
	return models.OutcomeWin
}

func (c *Controller) determineOutcome() models.Outcome {
	if !c.session.Mode.IsRealtime() {
		return models.OutcomePending
	}
	scores := make([]int64, 0, len(c.opponentScores))
	for _, s := range c.opponentScores {
		scores = append(scores, s)
	}
	return DetermineOutcome(c.session.ScoreRule, c.score, scores)
}

// Standings ranks every participant by the rule using competition ranking
// (1, 1, 3). Participants without a known score are placed last.
func Standings(rule models.ScoreRule, participants []models.Participant, scores map[string]int64) []models.Standing {
	known := make([]models.Standing, 0, len(participants))
	var unknown []models.Standing
	for _, p := range participants {
		st := models.Standing{ParticipantID: p.ID, Username: p.Username, IsLocal: p.IsLocal}
		if s, ok := scores[p.ID]; ok {
			st.Score = s
			known = append(known, st)
		} else {
			unknown = append(unknown, st)
		}
	}

	sort.SliceStable(known, func(i, j int) bool {
		return rule.Better(known[i].Score, known[j].Score)
	})
	for i := range known {
		if i > 0 && known[i].Score == known[i-1].Score {
			known[i].Rank = known[i-1].Rank
		} else {
			known[i].Rank = i + 1
		}
	}
	for i := range unknown {
		unknown[i].Rank = len(known) + 1
	}
	return append(known, unknown...)
}

func (c *Controller) standings() []models.Standing {
	participants := c.session.Participants
	scores := make(map[string]int64, len(c.opponentScores)+1)
	for id, s := range c.opponentScores {
		scores[id] = s
	}

	local, ok := c.session.LocalPlayer()
	if !ok {
		local = models.Participant{ID: "local", IsLocal: true}
		participants = append(append([]models.Participant(nil), participants...), local)
	}
	scores[local.ID] = c.score
	return Standings(c.session.ScoreRule, participants, scores)
}

func (c *Controller) buildResult(outcome models.Outcome, confirmed bool) *models.MatchResult {
	now := c.clock.Now()
	duration := now.Sub(c.startedAt)
	if duration < 0 {
		duration = 0
	}
	active := duration - c.pausedTotal
	if active < 0 {
		active = 0
	}

	standings := c.standings()
	rank := 0
	for _, st := range standings {
		if st.IsLocal {
			rank = st.Rank
			break
		}
	}

	return &models.MatchResult{
		MatchID:        c.session.ID,
		Outcome:        outcome,
		FinalScore:     c.score,
		FinalRank:      rank,
		PrizeWon:       PrizeFor(outcome, c.session.PrizePool),
		Currency:       c.session.Currency,
		Duration:       duration,
		ActiveDuration: active,
		XPEarned:       XPFor(outcome),
		Standings:      standings,
		Confirmed:      confirmed,
		CompletedAt:    now,
	}
}
