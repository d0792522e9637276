package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification is the envelope for every outbound match event.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	MatchID   uuid.UUID       `json:"match_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType represents the type of match event
type EventType string

const (
	EventTypeEngineReady           EventType = "EngineReady"
	EventTypeInitializing          EventType = "Initializing"
	EventTypeMatchReady            EventType = "MatchReady"
	EventTypeCountdownTick         EventType = "CountdownTick"
	EventTypeMatchStarted          EventType = "MatchStarted"
	EventTypeMatchPaused           EventType = "MatchPaused"
	EventTypeMatchResumed          EventType = "MatchResumed"
	EventTypeMatchEnding           EventType = "MatchEnding"
	EventTypeMatchCompleted        EventType = "MatchCompleted"
	EventTypeMatchCancelled        EventType = "MatchCancelled"
	EventTypeMatchForfeited        EventType = "MatchForfeited"
	EventTypeLocalScoreUpdated     EventType = "LocalScoreUpdated"
	EventTypeScoreSubmitted        EventType = "ScoreSubmitted"
	EventTypeScoreSubmissionFailed EventType = "ScoreSubmissionFailed"
	EventTypeTimerTick             EventType = "TimerTick"
	EventTypeTimeWarning           EventType = "TimeWarning"
	EventTypeTimeExpired           EventType = "TimeExpired"
	EventTypeRoundStarted          EventType = "RoundStarted"
	EventTypeRoundCompleted        EventType = "RoundCompleted"
	EventTypeStateChanged          EventType = "StateChanged"
	EventTypeInvalidTransition     EventType = "InvalidTransition"
	EventTypeConnectivityChanged   EventType = "ConnectivityChanged"
)

// Decode unmarshals the notification data into v.
func (n Notification) Decode(v interface{}) error {
	return json.Unmarshal(n.Data, v)
}
