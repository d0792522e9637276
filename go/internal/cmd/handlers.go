package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/match/host"
	"github.com/mcdev12/arena/go/internal/match/lifecycle"
	"github.com/mcdev12/arena/go/internal/match/rounds"
	"github.com/mcdev12/arena/go/internal/match/state"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog/log"
)

const maxRequestBody = 1 << 16 // 64 KB

// Executor runs a command against the match controller.
type Executor interface {
	Do(ctx context.Context, fn host.Command) error
}

type matchAPI struct {
	exec Executor
}

func newMatchAPI(exec Executor) *matchAPI {
	return &matchAPI{exec: exec}
}

type startRequest struct {
	Countdown bool `json:"countdown"`
}

type scoreRequest struct {
	Score int64 `json:"score"`
}

type pointsRequest struct {
	Points int64 `json:"points"`
}

type timeRequest struct {
	Seconds float64 `json:"seconds"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type connectionRequest struct {
	Connected bool `json:"connected"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *matchAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /matches", a.initialize)
	mux.HandleFunc("GET /matches/current", a.snapshot)
	mux.HandleFunc("GET /matches/current/history", a.history)
	mux.HandleFunc("POST /matches/current/start", a.start)
	mux.HandleFunc("POST /matches/current/pause", a.command(func(_ context.Context, c *lifecycle.Controller) error {
		return c.PauseMatch()
	}))
	mux.HandleFunc("POST /matches/current/resume", a.command(func(_ context.Context, c *lifecycle.Controller) error {
		return c.ResumeMatch()
	}))
	mux.HandleFunc("POST /matches/current/score", a.updateScore)
	mux.HandleFunc("POST /matches/current/score/add", a.addScore)
	mux.HandleFunc("POST /matches/current/checkpoint", a.command(func(ctx context.Context, c *lifecycle.Controller) error {
		return c.SubmitScoreCheckpoint(ctx)
	}))
	mux.HandleFunc("POST /matches/current/rounds/complete", a.completeRound)
	mux.HandleFunc("POST /matches/current/time", a.adjustTime)
	mux.HandleFunc("POST /matches/current/end", a.command(func(ctx context.Context, c *lifecycle.Controller) error {
		return c.EndMatch(ctx)
	}))
	mux.HandleFunc("POST /matches/current/forfeit", a.command(func(_ context.Context, c *lifecycle.Controller) error {
		return c.ForfeitMatch()
	}))
	mux.HandleFunc("POST /matches/current/cancel", a.cancel)
	mux.HandleFunc("POST /matches/current/participants/{id}/score", a.opponentScore)
	mux.HandleFunc("POST /matches/current/participants/{id}/connection", a.participantConnection)
}

func (a *matchAPI) initialize(w http.ResponseWriter, r *http.Request) {
	var session models.MatchSession
	if !decode(w, r, &session) {
		return
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	a.run(w, r, func(_ context.Context, c *lifecycle.Controller) error {
		return c.InitializeMatch(&session)
	})
}

func (a *matchAPI) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	a.run(w, r, func(_ context.Context, c *lifecycle.Controller) error {
		return c.StartMatch(req.Countdown)
	})
}

func (a *matchAPI) updateScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decode(w, r, &req) {
		return
	}
	a.run(w, r, func(_ context.Context, c *lifecycle.Controller) error {
		return c.UpdateScore(req.Score)
	})
}

func (a *matchAPI) addScore(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if !decode(w, r, &req) {
		return
	}
	a.run(w, r, func(_ context.Context, c *lifecycle.Controller) error {
		return c.AddScore(req.Points)
	})
}

func (a *matchAPI) completeRound(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decode(w, r, &req) {
		return
	}
	a.run(w, r, func(ctx context.Context, c *lifecycle.Controller) error {
		return c.CompleteRound(ctx, req.Score)
	})
}

// adjustTime adds positive seconds and removes negative ones.
func (a *matchAPI) adjustTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if !decode(w, r, &req) {
		return
	}
	a.run(w, r, func(_ context.Context, c *lifecycle.Controller) error {
		if req.Seconds < 0 {
			return c.RemoveTime(-req.Seconds)
		}
		return c.AddTime(req.Seconds)
	})
}

func (a *matchAPI) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by host"
	}
	a.run(w, r, func(_ context.Context, c *lifecycle.Controller) error {
		return c.CancelMatch(req.Reason)
	})
}

func (a *matchAPI) opponentScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	a.run(w, r, func(_ context.Context, c *lifecycle.Controller) error {
		return c.RecordOpponentScore(id, req.Score)
	})
}

func (a *matchAPI) participantConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	a.run(w, r, func(_ context.Context, c *lifecycle.Controller) error {
		return c.SetParticipantConnected(id, req.Connected)
	})
}

func (a *matchAPI) history(w http.ResponseWriter, r *http.Request) {
	var history []state.Transition
	err := a.exec.Do(r.Context(), func(_ context.Context, c *lifecycle.Controller) error {
		history = c.History()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *matchAPI) snapshot(w http.ResponseWriter, r *http.Request) {
	a.run(w, r, func(context.Context, *lifecycle.Controller) error { return nil })
}

func (a *matchAPI) command(fn host.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.run(w, r, fn)
	}
}

// run executes fn and answers with the resulting snapshot.
func (a *matchAPI) run(w http.ResponseWriter, r *http.Request, fn host.Command) {
	var snap lifecycle.Snapshot
	err := a.exec.Do(r.Context(), func(ctx context.Context, c *lifecycle.Controller) error {
		err := fn(ctx, c)
		snap = c.Snapshot()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptional accepts an empty body and leaves v at its zero value.
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("match command failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrNilSession):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrNoMatch), errors.Is(err, lifecycle.ErrUnknownParticipant):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrMatchActive),
		errors.Is(err, lifecycle.ErrNotActive),
		errors.Is(err, lifecycle.ErrInvalidState),
		errors.Is(err, state.ErrInvalidTransition),
		errors.Is(err, rounds.ErrAlreadyComplete),
		errors.Is(err, rounds.ErrLastRound),
		errors.Is(err, rounds.ErrRoundNotStarted),
		errors.Is(err, rounds.ErrRoundAlreadyCompleted),
		errors.Is(err, rounds.ErrRoundInProgress):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, host.ErrRunnerStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
