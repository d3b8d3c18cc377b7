package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies one message in the live-reporting catalog.
type MessageType string

// Client to server commands.
const (
	TypeJoinMatch         MessageType = "join_match"
	TypeLeaveMatch        MessageType = "leave_match"
	TypeUpdateScore       MessageType = "update_score"
	TypeUpdateTimer       MessageType = "update_timer"
	TypeAddEvent          MessageType = "add_event"
	TypeUpdatePlayerShift MessageType = "update_player_shift"
	TypeSubmitReport      MessageType = "submit_report"
	TypeTyping            MessageType = "typing"
)

// Server to client broadcasts.
const (
	TypeMatchState            MessageType = "match_state"
	TypeActiveReporters       MessageType = "active_reporters"
	TypePlayerShifts          MessageType = "player_shifts"
	TypeReporterJoined        MessageType = "reporter_joined"
	TypeReporterLeft          MessageType = "reporter_left"
	TypeScoreUpdated          MessageType = "score_updated"
	TypeTimerUpdated          MessageType = "timer_updated"
	TypeEventAdded            MessageType = "event_added"
	TypePlayerShiftUpdated    MessageType = "player_shift_updated"
	TypeReportSubmitted       MessageType = "report_submitted"
	TypeReportSubmissionError MessageType = "report_submission_error"
	TypeReporterTyping        MessageType = "reporter_typing"
)

// Mutating reports whether t changes match state when accepted by the
// server. Join/leave, typing and the broadcasts themselves are not
// mutating; the terminal report flag only blocks mutating commands.
func (t MessageType) Mutating() bool {
	switch t {
	case TypeUpdateScore, TypeUpdateTimer, TypeAddEvent, TypeUpdatePlayerShift, TypeSubmitReport:
		return true
	}
	return false
}

// Envelope is the base structure for every message in both directions:
// a typed header plus a raw payload decoded by DecodePayload at the
// transport boundary.
type Envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	MatchID   string          `json:"match_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope with a fresh ID around the given
// payload.
func NewEnvelope(t MessageType, matchID string, payload any) (Envelope, error) {
	env := Envelope{
		ID:        uuid.New().String(),
		Type:      t,
		MatchID:   matchID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Data = data
	}
	return env, nil
}

// Validate checks the envelope header. Payload shape is checked by
// DecodePayload.
func (e *Envelope) Validate() error {
	if e.Type == "" {
		return errors.New("envelope missing type")
	}
	if e.MatchID == "" {
		return fmt.Errorf("%s envelope missing match_id", e.Type)
	}
	return nil
}

// Handler consumes one decoded-at-the-boundary inbound envelope.
// Handlers run sequentially in arrival order on a single dispatch
// goroutine.
type Handler func(Envelope)
