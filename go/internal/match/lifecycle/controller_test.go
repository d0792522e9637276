package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/match/connectivity"
	"github.com/mcdev12/arena/go/internal/match/events"
	"github.com/mcdev12/arena/go/internal/match/store"
	"github.com/mcdev12/arena/go/internal/match/submission"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/shopspring/decimal"
)

type stubReporter struct {
	mu         sync.Mutex
	scoreCalls int
	endCalls   int
	endErr     error
	blockEnd   bool
	release    chan struct{}
}

func (r *stubReporter) SubmitScore(ctx context.Context, _ uuid.UUID, _ int64, _ int, _ bool) error {
	r.mu.Lock()
	r.scoreCalls++
	release := r.release
	r.mu.Unlock()
	if release != nil {
		<-release
	}
	return nil
}

func (r *stubReporter) SubmitMatchEnd(ctx context.Context, matchID uuid.UUID, score int64) (*models.MatchResult, error) {
	r.mu.Lock()
	r.endCalls++
	block, err := r.blockEnd, r.endErr
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &models.MatchResult{MatchID: matchID, FinalScore: score}, nil
}

func (r *stubReporter) calls() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scoreCalls, r.endCalls
}

type harness struct {
	c        *Controller
	clock    *clockwork.FakeClock
	reporter *stubReporter
	pipeline *submission.Pipeline
	seen     []events.Notification
}

func newHarness(t *testing.T, mutate func(*Config, *submission.Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CountdownSeconds = 3
	cfg.GracePeriodSeconds = 0
	cfg.RoundTransitionSeconds = 1
	cfg.FinalSubmitTimeout = time.Second
	pcfg := submission.DefaultConfig()
	pcfg.Retry.BaseDelay = 0
	if mutate != nil {
		mutate(&cfg, &pcfg)
	}

	h := &harness{clock: clockwork.NewFakeClock(), reporter: &stubReporter{}}
	h.pipeline = submission.NewPipeline(h.reporter, store.NewMemoryStore(), h.clock, pcfg)
	h.c = NewController(cfg, h.pipeline, h.clock)
	h.c.Bus().Subscribe(func(n events.Notification) { h.seen = append(h.seen, n) })
	return h
}

func (h *harness) dispatch() { h.c.Bus().Dispatch() }

func (h *harness) count(eventType events.EventType) int {
	n := 0
	for _, e := range h.seen {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (h *harness) last(eventType events.EventType) (events.Notification, bool) {
	for i := len(h.seen) - 1; i >= 0; i-- {
		if h.seen[i].Type == eventType {
			return h.seen[i], true
		}
	}
	return events.Notification{}, false
}

func newSession(mode models.MatchMode, limit, rounds int, opponents ...string) *models.MatchSession {
	s := &models.MatchSession{
		ID:               uuid.New(),
		Mode:             mode,
		TimeLimitSeconds: limit,
		Rounds:           rounds,
		ScoreRule:        models.ScoreRuleHigherIsBetter,
		Currency:         "USD",
		EntryFee:         decimal.NewFromInt(50),
		PrizePool:        decimal.NewFromInt(100),
		Participants:     []models.Participant{{ID: "me", Username: "me", Connected: true, IsLocal: true}},
	}
	for _, id := range opponents {
		s.Participants = append(s.Participants, models.Participant{ID: id, Username: id, Connected: true})
	}
	return s
}

func (h *harness) startPlaying(t *testing.T, session *models.MatchSession) {
	t.Helper()
	if err := h.c.InitializeMatch(session); err != nil {
		t.Fatalf("InitializeMatch: %v", err)
	}
	if err := h.c.StartMatch(false); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
}

func TestController_WinScenario(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1, "opp"))

	if err := h.c.RecordOpponentScore("opp", 40); err != nil {
		t.Fatalf("RecordOpponentScore: %v", err)
	}
	if err := h.c.UpdateScore(55); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}
	if err := h.c.EndMatch(context.Background()); err != nil {
		t.Fatalf("EndMatch: %v", err)
	}
	h.dispatch()

	res := h.c.LastResult()
	if res == nil {
		t.Fatalf("LastResult = nil")
	}
	if res.Outcome != models.OutcomeWin {
		t.Errorf("Outcome = %s, want WIN", res.Outcome)
	}
	if res.FinalScore != 55 {
		t.Errorf("FinalScore = %d, want 55", res.FinalScore)
	}
	if !res.PrizeWon.Equal(decimal.NewFromInt(95)) {
		t.Errorf("PrizeWon = %s, want 95", res.PrizeWon)
	}
	if res.XPEarned != 100 {
		t.Errorf("XPEarned = %d, want 100", res.XPEarned)
	}
	if res.FinalRank != 1 || len(res.Standings) != 2 {
		t.Errorf("FinalRank = %d standings = %+v", res.FinalRank, res.Standings)
	}
	if !res.Confirmed {
		t.Errorf("Confirmed = false, want true")
	}
	if h.c.Status() != models.MatchStatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", h.c.Status())
	}
	if h.c.Session() != nil {
		t.Errorf("session not cleared after completion")
	}
	if h.count(events.EventTypeMatchCompleted) != 1 || h.count(events.EventTypeScoreSubmitted) != 1 {
		t.Errorf("completed=%d submitted=%d, want 1 each",
			h.count(events.EventTypeMatchCompleted), h.count(events.EventTypeScoreSubmitted))
	}
}

func TestController_OutcomeTable(t *testing.T) {
	tests := []struct {
		name     string
		rule     models.ScoreRule
		local    int64
		opponent int64
		want     models.Outcome
		prize    int64
		xp       int
	}{
		{"higher wins", models.ScoreRuleHigherIsBetter, 50, 40, models.OutcomeWin, 95, 100},
		{"higher loses", models.ScoreRuleHigherIsBetter, 30, 40, models.OutcomeLoss, 0, 25},
		{"higher ties", models.ScoreRuleHigherIsBetter, 40, 40, models.OutcomeTie, 0, 50},
		{"lower wins", models.ScoreRuleLowerIsBetter, 30, 40, models.OutcomeWin, 95, 100},
		{"lower loses", models.ScoreRuleLowerIsBetter, 50, 40, models.OutcomeLoss, 0, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			s := newSession(models.MatchModeSync, 0, 1, "opp")
			s.ScoreRule = tt.rule
			h.startPlaying(t, s)
			_ = h.c.RecordOpponentScore("opp", tt.opponent)
			_ = h.c.UpdateScore(tt.local)

			if err := h.c.EndMatch(context.Background()); err != nil {
				t.Fatalf("EndMatch: %v", err)
			}
			res := h.c.LastResult()
			if res.Outcome != tt.want {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.want)
			}
			if !res.PrizeWon.Equal(decimal.NewFromInt(tt.prize)) {
				t.Errorf("PrizeWon = %s, want %d", res.PrizeWon, tt.prize)
			}
			if res.XPEarned != tt.xp {
				t.Errorf("XPEarned = %d, want %d", res.XPEarned, tt.xp)
			}
		})
	}
}

func TestController_SoloAndAsyncOutcomes(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	_ = h.c.UpdateScore(10)
	_ = h.c.EndMatch(context.Background())
	if got := h.c.LastResult().Outcome; got != models.OutcomeWin {
		t.Errorf("solo Outcome = %s, want WIN", got)
	}

	h.startPlaying(t, newSession(models.MatchModeAsync, 0, 1, "opp"))
	_ = h.c.RecordOpponentScore("opp", 5)
	_ = h.c.UpdateScore(10)
	_ = h.c.EndMatch(context.Background())
	res := h.c.LastResult()
	if res.Outcome != models.OutcomePending {
		t.Errorf("async Outcome = %s, want PENDING", res.Outcome)
	}
	if !res.PrizeWon.IsZero() || res.XPEarned != 10 {
		t.Errorf("async prize = %s xp = %d, want 0 and 10", res.PrizeWon, res.XPEarned)
	}
}

func TestController_MultipleOpponents(t *testing.T) {
	tests := []struct {
		local int64
		want  models.Outcome
		rank  int
	}{
		{70, models.OutcomeWin, 1},
		{60, models.OutcomeTie, 1},
		{50, models.OutcomeLoss, 2},
		{10, models.OutcomeLoss, 3},
	}
	for _, tt := range tests {
		h := newHarness(t, nil)
		h.startPlaying(t, newSession(models.MatchModeSync, 0, 1, "a", "b", "c"))
		_ = h.c.RecordOpponentScore("a", 40)
		_ = h.c.RecordOpponentScore("b", 60)
		_ = h.c.UpdateScore(tt.local)
		_ = h.c.EndMatch(context.Background())

		res := h.c.LastResult()
		if res.Outcome != tt.want || res.FinalRank != tt.rank {
			t.Errorf("local %d: outcome %s rank %d, want %s rank %d", tt.local, res.Outcome, res.FinalRank, tt.want, tt.rank)
		}
		if len(res.Standings) != 4 {
			t.Fatalf("standings = %+v, want 4 entries", res.Standings)
		}
		if last := res.Standings[3]; last.ParticipantID != "c" || last.Rank != 4 {
			t.Errorf("participant without score = %+v, want c ranked 4", last)
		}
	}
}

func TestController_FinalSubmissionFailureCancels(t *testing.T) {
	h := newHarness(t, nil)
	h.reporter.endErr = &submission.ReportError{Op: "end", StatusCode: 422, Err: errors.New("score rejected")}
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1, "opp"))
	_ = h.c.UpdateScore(55)

	err := h.c.EndMatch(context.Background())
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Errorf("EndMatch err = %v, want ErrSubmissionFailed", err)
	}
	h.dispatch()

	if h.c.Status() != models.MatchStatusCancelled {
		t.Errorf("Status = %s, want CANCELLED", h.c.Status())
	}
	if h.c.LastResult() != nil {
		t.Errorf("LastResult = %+v, want nil", h.c.LastResult())
	}
	if h.count(events.EventTypeScoreSubmissionFailed) != 1 || h.count(events.EventTypeMatchCancelled) != 1 {
		t.Errorf("failed=%d cancelled=%d, want 1 each",
			h.count(events.EventTypeScoreSubmissionFailed), h.count(events.EventTypeMatchCancelled))
	}
	if h.count(events.EventTypeMatchCompleted) != 0 {
		t.Errorf("MatchCompleted emitted after failed final submission")
	}
}

func TestController_FinalSubmissionTimeoutQueues(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *submission.Config) {
		c.FinalSubmitTimeout = 20 * time.Millisecond
	})
	h.reporter.blockEnd = true
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	_ = h.c.UpdateScore(12)

	if err := h.c.EndMatch(context.Background()); err != nil {
		t.Fatalf("EndMatch: %v", err)
	}
	if h.c.Status() != models.MatchStatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", h.c.Status())
	}
	if h.c.LastResult().Confirmed {
		t.Errorf("Confirmed = true, want false")
	}
	entries, _ := h.pipeline.Queue().List(context.Background())
	if len(entries) != 1 || !entries[0].IsFinal || entries[0].Score != 12 {
		t.Errorf("queue = %+v, want the unconfirmed final score", entries)
	}
}

func TestController_Forfeit(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1, "opp"))
	_ = h.c.UpdateScore(99)

	if err := h.c.ForfeitMatch(); err != nil {
		t.Fatalf("ForfeitMatch: %v", err)
	}
	h.dispatch()

	res := h.c.LastResult()
	if res.Outcome != models.OutcomeForfeit || !res.PrizeWon.IsZero() || res.XPEarned != 0 {
		t.Errorf("result = %+v, want forfeit with no prize or XP", res)
	}
	if _, ends := h.reporter.calls(); ends != 0 {
		t.Errorf("final submissions = %d, want 0", ends)
	}
	if h.c.Status() != models.MatchStatusForfeited {
		t.Errorf("Status = %s, want FORFEITED", h.c.Status())
	}
	if err := h.c.ForfeitMatch(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second ForfeitMatch err = %v, want ErrInvalidState", err)
	}
}

func TestController_Cancel(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 60, 1))

	if err := h.c.CancelMatch("opponent left"); err != nil {
		t.Fatalf("CancelMatch: %v", err)
	}
	h.dispatch()

	n, ok := h.last(events.EventTypeMatchCancelled)
	if !ok {
		t.Fatalf("no MatchCancelled notification")
	}
	var p events.MatchCancelledPayload
	_ = n.Decode(&p)
	if p.Reason != "opponent left" {
		t.Errorf("reason = %q, want %q", p.Reason, "opponent left")
	}
	if h.c.Session() != nil || h.c.LastResult() != nil {
		t.Errorf("cancel left session or result behind")
	}
	if err := h.c.CancelMatch("again"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second CancelMatch err = %v, want ErrInvalidState", err)
	}
}

func TestController_Countdown(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.c.InitializeMatch(newSession(models.MatchModeSync, 30, 1)); err != nil {
		t.Fatalf("InitializeMatch: %v", err)
	}
	if err := h.c.StartMatch(true); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if h.c.Status() != models.MatchStatusCountdown {
		t.Fatalf("Status = %s, want COUNTDOWN", h.c.Status())
	}

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		h.c.Tick(ctx, 0.5)
	}

	var ticks []int
	for _, n := range h.seen {
		if n.Type == events.EventTypeCountdownTick {
			var p events.CountdownTickPayload
			_ = n.Decode(&p)
			ticks = append(ticks, p.SecondsRemaining)
		}
	}
	want := []int{3, 2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("countdown ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Errorf("countdown ticks = %v, want %v", ticks, want)
			break
		}
	}
	if h.c.Status() != models.MatchStatusInProgress {
		t.Errorf("Status = %s, want IN_PROGRESS", h.c.Status())
	}
	if h.count(events.EventTypeMatchStarted) != 1 {
		t.Errorf("MatchStarted = %d, want 1", h.count(events.EventTypeMatchStarted))
	}
}

func TestController_PauseTracksActiveDuration(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))

	h.clock.Advance(10 * time.Second)
	if err := h.c.PauseMatch(); err != nil {
		t.Fatalf("PauseMatch: %v", err)
	}
	if err := h.c.PauseMatch(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second PauseMatch err = %v, want ErrInvalidState", err)
	}
	h.clock.Advance(5 * time.Second)
	if err := h.c.ResumeMatch(); err != nil {
		t.Fatalf("ResumeMatch: %v", err)
	}
	h.clock.Advance(5 * time.Second)
	_ = h.c.EndMatch(context.Background())

	res := h.c.LastResult()
	if res.Duration != 20*time.Second {
		t.Errorf("Duration = %v, want 20s", res.Duration)
	}
	if res.ActiveDuration != 15*time.Second {
		t.Errorf("ActiveDuration = %v, want 15s", res.ActiveDuration)
	}
}

func TestController_PauseFreezesTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 10, 1))
	ctx := context.Background()

	h.c.Tick(ctx, 2)
	_ = h.c.PauseMatch()
	h.c.Tick(ctx, 20)
	if got := h.c.Snapshot().ElapsedSec; got != 2 {
		t.Errorf("elapsed while paused = %v, want 2", got)
	}
	if h.c.Status() != models.MatchStatusPaused {
		t.Errorf("Status = %s, want PAUSED", h.c.Status())
	}
}

func TestController_TimeExpiryEndsOnce(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *submission.Config) {
		c.GracePeriodSeconds = 1
	})
	h.startPlaying(t, newSession(models.MatchModeSync, 2, 1))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		h.c.Tick(ctx, 0.5)
	}

	if h.c.Status() != models.MatchStatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", h.c.Status())
	}
	if _, ends := h.reporter.calls(); ends != 1 {
		t.Errorf("final submissions = %d, want 1", ends)
	}
	if h.count(events.EventTypeTimeExpired) != 1 || h.count(events.EventTypeMatchCompleted) != 1 {
		t.Errorf("expired=%d completed=%d, want 1 each",
			h.count(events.EventTypeTimeExpired), h.count(events.EventTypeMatchCompleted))
	}
}

func TestController_MultiRound(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 30, 2))
	ctx := context.Background()

	_ = h.c.UpdateScore(12)
	if err := h.c.CompleteRound(ctx, 30); err != nil {
		t.Fatalf("CompleteRound(1): %v", err)
	}
	if h.c.Score() != 30 {
		t.Errorf("Score after round 1 = %d, want 30", h.c.Score())
	}
	if !h.c.Snapshot().BetweenRounds {
		t.Fatalf("expected inter-round transition")
	}
	if err := h.c.UpdateScore(5); err == nil {
		t.Errorf("UpdateScore between rounds succeeded, want error")
	}

	h.c.Tick(ctx, 0.5)
	h.c.Tick(ctx, 0.5)
	if h.c.Snapshot().Round != 2 || h.c.Snapshot().BetweenRounds {
		t.Fatalf("round = %d between = %v, want round 2 in play", h.c.Snapshot().Round, h.c.Snapshot().BetweenRounds)
	}
	if got := h.c.Snapshot().RemainingSec; got != 30 {
		t.Errorf("timer not reset for round 2: remaining %v", got)
	}

	_ = h.c.UpdateScore(8)
	if h.c.Score() != 38 {
		t.Errorf("running score in round 2 = %d, want 38", h.c.Score())
	}
	if err := h.c.CompleteRound(ctx, 20); err != nil {
		t.Fatalf("CompleteRound(2): %v", err)
	}
	h.dispatch()

	if h.c.Status() != models.MatchStatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", h.c.Status())
	}
	if got := h.c.LastResult().FinalScore; got != 50 {
		t.Errorf("FinalScore = %d, want 50", got)
	}
	if h.count(events.EventTypeRoundCompleted) != 2 || h.count(events.EventTypeRoundStarted) != 2 {
		t.Errorf("round completed=%d started=%d, want 2 each",
			h.count(events.EventTypeRoundCompleted), h.count(events.EventTypeRoundStarted))
	}
}

func TestController_InitializeGuards(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.c.InitializeMatch(nil); !errors.Is(err, ErrNilSession) {
		t.Errorf("InitializeMatch(nil) err = %v, want ErrNilSession", err)
	}
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	if err := h.c.InitializeMatch(newSession(models.MatchModeSync, 0, 1)); !errors.Is(err, ErrMatchActive) {
		t.Errorf("re-initialize err = %v, want ErrMatchActive", err)
	}
	if err := h.c.StartMatch(false); !errors.Is(err, ErrInvalidState) {
		t.Errorf("StartMatch while playing err = %v, want ErrInvalidState", err)
	}
}

func TestController_ScoreRequiresActiveMatch(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.c.InitializeMatch(newSession(models.MatchModeSync, 0, 1))
	h.dispatch()
	before := h.count(events.EventTypeLocalScoreUpdated)

	if err := h.c.UpdateScore(10); !errors.Is(err, ErrNotActive) {
		t.Errorf("UpdateScore err = %v, want ErrNotActive", err)
	}
	if err := h.c.AddScore(10); !errors.Is(err, ErrNotActive) {
		t.Errorf("AddScore err = %v, want ErrNotActive", err)
	}
	if err := h.c.SubmitScoreCheckpoint(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Errorf("SubmitScoreCheckpoint err = %v, want ErrNotActive", err)
	}
	h.dispatch()
	if h.count(events.EventTypeLocalScoreUpdated) != before || h.c.Score() != 0 {
		t.Errorf("rejected update changed score or notified")
	}
}

func TestController_AddScoreTracksMax(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	_ = h.c.AddScore(10)
	_ = h.c.AddScore(15)
	_ = h.c.AddScore(-20)

	if h.c.Score() != 5 || h.c.MaxScore() != 25 {
		t.Errorf("score = %d max = %d, want 5 and 25", h.c.Score(), h.c.MaxScore())
	}
}

func TestController_CheckpointCap(t *testing.T) {
	h := newHarness(t, func(_ *Config, p *submission.Config) {
		p.MaxCheckpoints = 2
	})
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = h.c.AddScore(1)
		if err := h.c.SubmitScoreCheckpoint(ctx); err != nil {
			t.Fatalf("SubmitScoreCheckpoint: %v", err)
		}
	}
	if err := h.c.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if scores, _ := h.reporter.calls(); scores != 2 {
		t.Errorf("checkpoint submissions = %d, want 2", scores)
	}
	if h.count(events.EventTypeScoreSubmitted) != 2 {
		t.Errorf("ScoreSubmitted = %d, want 2", h.count(events.EventTypeScoreSubmitted))
	}
}

func TestController_StaleCheckpointAfterCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.reporter.release = make(chan struct{})
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	ctx := context.Background()

	_ = h.c.UpdateScore(7)
	_ = h.c.SubmitScoreCheckpoint(ctx)
	_ = h.c.CancelMatch("quit")
	close(h.reporter.release)

	if err := h.c.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if h.count(events.EventTypeScoreSubmitted) != 0 {
		t.Errorf("ScoreSubmitted raised for a cancelled match")
	}
	if h.c.Status() != models.MatchStatusCancelled {
		t.Errorf("Status = %s, want CANCELLED", h.c.Status())
	}
}

func TestController_CheckpointDuringPauseCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.reporter.release = make(chan struct{})
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	ctx := context.Background()

	_ = h.c.SubmitScoreCheckpoint(ctx)
	_ = h.c.PauseMatch()
	close(h.reporter.release)
	_ = h.c.Settle(ctx)

	if h.count(events.EventTypeScoreSubmitted) != 1 {
		t.Errorf("ScoreSubmitted = %d, want 1", h.count(events.EventTypeScoreSubmitted))
	}
}

func TestController_Connectivity(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1, "opp"))

	h.c.HandleConnectivity(connectivity.StateDisconnected)
	if h.c.Status() != models.MatchStatusPaused {
		t.Fatalf("Status after disconnect = %s, want PAUSED", h.c.Status())
	}
	h.c.HandleConnectivity(connectivity.StateConnected)
	if h.c.Status() != models.MatchStatusInProgress {
		t.Fatalf("Status after reconnect = %s, want IN_PROGRESS", h.c.Status())
	}

	_ = h.c.PauseMatch()
	h.c.HandleConnectivity(connectivity.StateConnected)
	if h.c.Status() != models.MatchStatusPaused {
		t.Errorf("manual pause auto-resumed")
	}

	_ = h.c.ResumeMatch()
	h.c.HandleConnectivity(connectivity.StateFailed)
	if h.c.Status() != models.MatchStatusPaused {
		t.Errorf("Status after failure = %s, want PAUSED", h.c.Status())
	}
}

func TestController_ConnectivityIgnoredForAsync(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeAsync, 0, 1))
	h.c.HandleConnectivity(connectivity.StateDisconnected)
	if h.c.Status() != models.MatchStatusInProgress {
		t.Errorf("async match paused on disconnect")
	}
}

func TestController_UnknownParticipant(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.c.RecordOpponentScore("x", 1); !errors.Is(err, ErrNoMatch) {
		t.Errorf("err = %v, want ErrNoMatch", err)
	}
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1, "opp"))
	if err := h.c.RecordOpponentScore("ghost", 1); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("err = %v, want ErrUnknownParticipant", err)
	}
	if err := h.c.RecordOpponentScore("me", 1); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("recording the local player err = %v, want ErrUnknownParticipant", err)
	}
	if err := h.c.SetParticipantConnected("opp", false); err != nil {
		t.Errorf("SetParticipantConnected: %v", err)
	}
	if h.c.Session().Participants[1].Connected {
		t.Errorf("opponent still connected")
	}
}

func TestController_EndMatchFromPending(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.c.InitializeMatch(newSession(models.MatchModeSync, 0, 1))
	if err := h.c.EndMatch(context.Background()); err != nil {
		t.Fatalf("EndMatch: %v", err)
	}
	if h.c.Status() != models.MatchStatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", h.c.Status())
	}
	if err := h.c.EndMatch(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("EndMatch after completion err = %v, want ErrInvalidState", err)
	}
}

func TestController_ReinitializeAfterTerminal(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	_ = h.c.EndMatch(context.Background())
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	if h.c.Status() != models.MatchStatusInProgress || h.c.Score() != 0 {
		t.Errorf("Status = %s score = %d after re-initialize", h.c.Status(), h.c.Score())
	}
}

func TestController_EngineReady(t *testing.T) {
	h := newHarness(t, nil)
	h.dispatch()
	if h.count(events.EventTypeEngineReady) != 1 {
		t.Errorf("EngineReady = %d, want 1", h.count(events.EventTypeEngineReady))
	}
}

func TestController_InvalidTransitionNotified(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))

	if err := h.c.ResumeMatch(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ResumeMatch while playing err = %v, want ErrInvalidState", err)
	}
	if err := h.c.machine.TransitionTo(models.MatchStatusCompleted); err == nil {
		t.Fatalf("InProgress -> Completed succeeded")
	}
	h.dispatch()

	if got := h.count(events.EventTypeInvalidTransition); got != 2 {
		t.Fatalf("InvalidTransition notifications = %d, want 2", got)
	}
	n, _ := h.last(events.EventTypeInvalidTransition)
	var payload events.InvalidTransitionPayload
	if err := n.Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.From != models.MatchStatusInProgress || payload.To != models.MatchStatusCompleted {
		t.Errorf("payload = %+v, want IN_PROGRESS -> COMPLETED", payload)
	}
	if h.c.Status() != models.MatchStatusInProgress {
		t.Errorf("Status = %s, want unchanged", h.c.Status())
	}
}

func TestController_InitializeClearsLastResult(t *testing.T) {
	h := newHarness(t, nil)
	h.startPlaying(t, newSession(models.MatchModeSync, 0, 1))
	if err := h.c.EndMatch(context.Background()); err != nil {
		t.Fatalf("EndMatch: %v", err)
	}
	if h.c.LastResult() == nil {
		t.Fatalf("LastResult = nil after completion")
	}

	if err := h.c.InitializeMatch(newSession(models.MatchModeSync, 0, 1)); err != nil {
		t.Fatalf("InitializeMatch: %v", err)
	}
	if h.c.LastResult() != nil || h.c.Snapshot().LastResult != nil {
		t.Errorf("LastResult carried over into the next match")
	}
	if err := h.c.CancelMatch("abandoned"); err != nil {
		t.Fatalf("CancelMatch: %v", err)
	}
	if h.c.LastResult() != nil {
		t.Errorf("cancelled match reports a result: %+v", h.c.LastResult())
	}
}
