package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/match/host"
	"github.com/mcdev12/arena/go/internal/match/lifecycle"
	"github.com/mcdev12/arena/go/internal/match/state"
	"github.com/mcdev12/arena/go/internal/match/store"
	"github.com/mcdev12/arena/go/internal/match/submission"
	"github.com/mcdev12/arena/go/internal/models"
)

type okReporter struct{}

func (okReporter) SubmitScore(context.Context, uuid.UUID, int64, int, bool) error { return nil }

func (okReporter) SubmitMatchEnd(_ context.Context, matchID uuid.UUID, score int64) (*models.MatchResult, error) {
	return &models.MatchResult{MatchID: matchID, FinalScore: score}, nil
}

// syncExec runs commands inline the way host.Runner does on its goroutine.
type syncExec struct {
	c *lifecycle.Controller
}

func (e syncExec) Do(ctx context.Context, fn host.Command) error {
	err := fn(ctx, e.c)
	e.c.Tick(ctx, 0)
	return err
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	clock := clockwork.NewFakeClock()
	pcfg := submission.DefaultConfig()
	pcfg.Retry.BaseDelay = 0
	pipeline := submission.NewPipeline(okReporter{}, store.NewMemoryStore(), clock, pcfg)
	controller := lifecycle.NewController(lifecycle.DefaultConfig(), pipeline, clock)

	mux := http.NewServeMux()
	newMatchAPI(syncExec{c: controller}).RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func snapshotOf(t *testing.T, rec *httptest.ResponseRecorder) lifecycle.Snapshot {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var snap lifecycle.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

const sessionJSON = `{
	"mode": "SYNC",
	"time_limit_seconds": 60,
	"rounds": 1,
	"score_rule": "HIGHER_IS_BETTER",
	"currency": "USD",
	"entry_fee": "5",
	"prize_pool": "10",
	"participants": [
		{"id": "me", "username": "me", "connected": true, "is_local": true},
		{"id": "rival", "username": "rival", "connected": true}
	]
}`

func TestMatchAPI_FullMatch(t *testing.T) {
	mux := newTestMux(t)

	snap := snapshotOf(t, do(t, mux, http.MethodPost, "/matches", sessionJSON))
	if snap.Status != models.MatchStatusPending || snap.MatchID == uuid.Nil {
		t.Fatalf("after init: %+v", snap)
	}

	snap = snapshotOf(t, do(t, mux, http.MethodPost, "/matches/current/start", ""))
	if snap.Status != models.MatchStatusInProgress {
		t.Fatalf("after start: status %s", snap.Status)
	}

	snapshotOf(t, do(t, mux, http.MethodPost, "/matches/current/score", `{"score": 120}`))
	snap = snapshotOf(t, do(t, mux, http.MethodPost, "/matches/current/score/add", `{"points": 30}`))
	if snap.Score != 150 {
		t.Errorf("score = %d, want 150", snap.Score)
	}

	snapshotOf(t, do(t, mux, http.MethodPost, "/matches/current/participants/rival/score", `{"score": 90}`))

	snap = snapshotOf(t, do(t, mux, http.MethodPost, "/matches/current/end", ""))
	if snap.Status != models.MatchStatusCompleted {
		t.Fatalf("after end: status %s", snap.Status)
	}
	if snap.LastResult == nil || snap.LastResult.Outcome != models.OutcomeWin {
		t.Errorf("result = %+v, want WIN", snap.LastResult)
	}

	rec := do(t, mux, http.MethodGet, "/matches/current/history", "")
	var history []state.Transition
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) == 0 || history[len(history)-1].To != models.MatchStatusCompleted {
		t.Errorf("history = %+v", history)
	}
}

func TestMatchAPI_Errors(t *testing.T) {
	tests := []struct {
		name   string
		setup  []string
		method string
		path   string
		body   string
		want   int
	}{
		{"pause without match", nil, http.MethodPost, "/matches/current/pause", "", http.StatusConflict},
		{"score without match", nil, http.MethodPost, "/matches/current/score", `{"score": 1}`, http.StatusConflict},
		{"bad json", nil, http.MethodPost, "/matches", `{`, http.StatusBadRequest},
		{"opponent without match", nil, http.MethodPost, "/matches/current/participants/x/score", `{"score": 1}`, http.StatusNotFound},
		{"unknown opponent", []string{"/matches"}, http.MethodPost, "/matches/current/participants/ghost/score", `{"score": 1}`, http.StatusNotFound},
		{"double init", []string{"/matches", "/matches/current/start"}, http.MethodPost, "/matches", sessionJSON, http.StatusConflict},
		{"wrong method", nil, http.MethodGet, "/matches/current/end", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(t)
			for _, path := range tt.setup {
				body := ""
				if path == "/matches" {
					body = sessionJSON
				}
				snapshotOf(t, do(t, mux, http.MethodPost, path, body))
			}

			rec := do(t, mux, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestMatchAPI_AdjustTime(t *testing.T) {
	mux := newTestMux(t)
	snapshotOf(t, do(t, mux, http.MethodPost, "/matches", sessionJSON))
	snapshotOf(t, do(t, mux, http.MethodPost, "/matches/current/start", `{"countdown": false}`))

	snap := snapshotOf(t, do(t, mux, http.MethodPost, "/matches/current/time", `{"seconds": 15}`))
	if snap.RemainingSec != 75 {
		t.Errorf("remaining after add = %v, want 75", snap.RemainingSec)
	}
	snap = snapshotOf(t, do(t, mux, http.MethodPost, "/matches/current/time", `{"seconds": -5}`))
	if snap.RemainingSec != 70 {
		t.Errorf("remaining after remove = %v, want 70", snap.RemainingSec)
	}
}

func TestMatchAPI_Cancel(t *testing.T) {
	mux := newTestMux(t)
	snapshotOf(t, do(t, mux, http.MethodPost, "/matches", sessionJSON))

	snap := snapshotOf(t, do(t, mux, http.MethodPost, "/matches/current/cancel", ""))
	if snap.Status != models.MatchStatusCancelled {
		t.Errorf("status = %s, want %s", snap.Status, models.MatchStatusCancelled)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{lifecycle.ErrNilSession, http.StatusBadRequest},
		{fmt.Errorf("start: %w", lifecycle.ErrInvalidState), http.StatusConflict},
		{lifecycle.ErrSubmissionFailed, http.StatusBadGateway},
		{host.ErrRunnerStopped, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
