package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/clients"
	"github.com/mcdev12/arena/go/internal/match/submission"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Client reports match scores to the backend over HTTP.
type Client struct {
	*clients.BaseClient
}

// NewClient creates a reporter for baseURL. apiKey is sent as a bearer token when set.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	base := clients.NewBaseClient(baseURL)
	base.SetHeader("Content-Type", "application/json")
	base.SetHeader("Accept", "application/json")
	if apiKey != "" {
		base.SetHeader("Authorization", "Bearer "+apiKey)
	}
	if timeout > 0 {
		base.SetTimeout(timeout)
	}
	return &Client{BaseClient: base}
}

type scoreRequest struct {
	Score        int64 `json:"score"`
	Round        int   `json:"round"`
	IsCheckpoint bool  `json:"is_checkpoint"`
}

type matchEndRequest struct {
	FinalScore int64 `json:"final_score"`
}

// SubmitScore posts a score report for matchID.
func (c *Client) SubmitScore(ctx context.Context, matchID uuid.UUID, score int64, round int, isCheckpoint bool) error {
	body, err := json.Marshal(scoreRequest{Score: score, Round: round, IsCheckpoint: isCheckpoint})
	if err != nil {
		return fmt.Errorf("marshal score request: %w", err)
	}

	endpoint := fmt.Sprintf(EndpointScores, matchID)
	if _, err := c.Post(ctx, endpoint, bytes.NewReader(body)); err != nil {
		return classify("submit_score", err)
	}

	log.Debug().
		Str("match_id", matchID.String()).
		Int64("score", score).
		Bool("is_checkpoint", isCheckpoint).
		Msg("score reported")
	return nil
}

// SubmitMatchEnd posts the final score and returns the backend's result, if any.
func (c *Client) SubmitMatchEnd(ctx context.Context, matchID uuid.UUID, finalScore int64) (*models.MatchResult, error) {
	body, err := json.Marshal(matchEndRequest{FinalScore: finalScore})
	if err != nil {
		return nil, fmt.Errorf("marshal match end request: %w", err)
	}

	endpoint := fmt.Sprintf(EndpointMatchEnd, matchID)
	resp, err := c.Post(ctx, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, classify("submit_match_end", err)
	}
	if len(bytes.TrimSpace(resp)) == 0 {
		return nil, nil
	}

	var result models.MatchResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, &submission.ReportError{Op: "submit_match_end", Recoverable: false, Err: fmt.Errorf("decode result: %w", err)}
	}
	return &result, nil
}

// classify marks server errors, throttling and transport failures as recoverable.
func classify(op string, err error) error {
	var se *clients.StatusError
	if errors.As(err, &se) {
		return &submission.ReportError{
			Op:          op,
			StatusCode:  se.StatusCode,
			Recoverable: recoverableStatus(se.StatusCode),
			Err:         err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &submission.ReportError{Op: op, Recoverable: false, Err: err}
	}

	var ne net.Error
	recoverable := errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded)
	return &submission.ReportError{Op: op, Recoverable: recoverable, Err: err}
}

func recoverableStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	}
	return false
}
