package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pitchside/livematch/internal/live/state"
)

// JoinMatchPayload asks the room service to add this reporter to a
// match room. TeamName is optional display context supplied by the
// caller; identity itself comes from the connection.
type JoinMatchPayload struct {
	MatchID  string `json:"match_id"`
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name,omitempty"`
}

func (p *JoinMatchPayload) Validate() error {
	if p.MatchID == "" || p.TeamID == "" {
		return errors.New("join_match requires match_id and team_id")
	}
	return nil
}

// LeaveMatchPayload removes this reporter from a match room.
type LeaveMatchPayload struct {
	MatchID string `json:"match_id"`
}

// UpdateScorePayload overwrites both scores.
type UpdateScorePayload struct {
	MatchID   string `json:"match_id"`
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
}

func (p *UpdateScorePayload) Validate() error {
	if p.HomeScore < 0 || p.AwayScore < 0 {
		return errors.New("update_score requires non-negative scores")
	}
	return nil
}

// UpdateTimerPayload overwrites the match clock. Period changes share
// this message: an empty period means "unchanged".
type UpdateTimerPayload struct {
	MatchID        string `json:"match_id"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	IsRunning      bool   `json:"is_running"`
	Period         string `json:"period,omitempty"`
}

func (p *UpdateTimerPayload) Validate() error {
	if p.ElapsedSeconds < 0 {
		return errors.New("update_timer requires non-negative elapsed_seconds")
	}
	return nil
}

// EventDescriptor is the caller-supplied part of a new match event.
// Player and minute are optional depending on the event type; that
// conditional requirement lives in the UI layer, but event_type and
// team_id are required here so they can never be dropped silently.
type EventDescriptor struct {
	EventType  string `json:"event_type"`
	TeamID     string `json:"team_id"`
	PlayerID   string `json:"player_id,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
	Minute     int    `json:"minute,omitempty"`
	Period     string `json:"period,omitempty"`
}

func (d *EventDescriptor) Validate() error {
	if d.EventType == "" || d.TeamID == "" {
		return errors.New("event must include event_type and team_id")
	}
	return nil
}

// AddEventPayload appends one event to the match log.
type AddEventPayload struct {
	MatchID string          `json:"match_id"`
	Event   EventDescriptor `json:"event"`
}

func (p *AddEventPayload) Validate() error {
	return p.Event.Validate()
}

// UpdatePlayerShiftPayload toggles one player's on-field flag, scoped to
// the reporter's own team.
type UpdatePlayerShiftPayload struct {
	MatchID    string `json:"match_id"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
	IsActive   bool   `json:"is_active"`
	TeamID     string `json:"team_id"`
}

func (p *UpdatePlayerShiftPayload) Validate() error {
	if p.PlayerID == "" || p.TeamID == "" {
		return errors.New("update_player_shift requires player_id and team_id")
	}
	return nil
}

// ReportData carries the free-text part of a final report.
type ReportData struct {
	Notes string `json:"notes,omitempty"`
}

// SubmitReportPayload finalizes the match. First submission wins;
// everything after it is rejected by the server.
type SubmitReportPayload struct {
	MatchID    string     `json:"match_id"`
	ReportData ReportData `json:"report_data"`
}

// TypingPayload is the ephemeral typing signal, relayed to the other
// room members and never stored.
type TypingPayload struct {
	MatchID  string `json:"match_id"`
	IsTyping bool   `json:"is_typing"`
}

// ActiveReportersPayload is the full roster snapshot sent on join.
type ActiveReportersPayload struct {
	Reporters []state.ReporterPresence `json:"reporters"`
}

// PlayerShiftsPayload is the full shift-list snapshot for the joining
// reporter's team.
type PlayerShiftsPayload struct {
	Shifts []state.PlayerShift `json:"shifts"`
}

// ReporterJoinedPayload announces a new room member.
type ReporterJoinedPayload struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	TeamID   string    `json:"team_id"`
	TeamName string    `json:"team_name,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// ReporterLeftPayload announces a departed room member.
type ReporterLeftPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	TeamID   string `json:"team_id,omitempty"`
}

// ScoreUpdatedPayload broadcasts the new score with attribution.
type ScoreUpdatedPayload struct {
	HomeScore     int    `json:"home_score"`
	AwayScore     int    `json:"away_score"`
	UpdatedBy     string `json:"updated_by,omitempty"`
	UpdatedByName string `json:"updated_by_name,omitempty"`
}

// TimerUpdatedPayload broadcasts the new clock with attribution.
type TimerUpdatedPayload struct {
	ElapsedSeconds int    `json:"elapsed_seconds"`
	IsRunning      bool   `json:"is_running"`
	Period         string `json:"period,omitempty"`
	UpdatedBy      string `json:"updated_by,omitempty"`
	UpdatedByName  string `json:"updated_by_name,omitempty"`
}

// EventAddedPayload broadcasts one appended event with attribution.
type EventAddedPayload struct {
	Event          state.MatchEvent `json:"event"`
	ReportedBy     string           `json:"reported_by,omitempty"`
	ReportedByName string           `json:"reported_by_name,omitempty"`
}

// PlayerShiftUpdatedPayload broadcasts one shift change to same-team
// reporters.
type PlayerShiftUpdatedPayload struct {
	MatchID       string    `json:"match_id"`
	PlayerID      string    `json:"player_id"`
	PlayerName    string    `json:"player_name,omitempty"`
	IsActive      bool      `json:"is_active"`
	TeamID        string    `json:"team_id"`
	UpdatedBy     string    `json:"updated_by,omitempty"`
	UpdatedByName string    `json:"updated_by_name,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ReportSubmittedPayload broadcasts the terminal flag with the final
// score.
type ReportSubmittedPayload struct {
	SubmittedBy     string `json:"submitted_by"`
	SubmittedByName string `json:"submitted_by_name,omitempty"`
	HomeScore       int    `json:"home_score"`
	AwayScore       int    `json:"away_score"`
}

// ReportSubmissionErrorPayload rejects a command, delivered only to the
// offending reporter.
type ReportSubmissionErrorPayload struct {
	Message string `json:"message"`
}

// ReporterTypingPayload relays an ephemeral typing signal.
type ReporterTypingPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

// DecodePayload decodes the envelope data into the payload struct for
// its type. Unknown types and malformed payloads return an error; the
// caller drops the message and keeps the connection up.
func DecodePayload(env *Envelope) (any, error) {
	switch env.Type {
	case TypeJoinMatch:
		return decodeAs[JoinMatchPayload](env)
	case TypeLeaveMatch:
		return decodeAs[LeaveMatchPayload](env)
	case TypeUpdateScore:
		return decodeAs[UpdateScorePayload](env)
	case TypeUpdateTimer:
		return decodeAs[UpdateTimerPayload](env)
	case TypeAddEvent:
		return decodeAs[AddEventPayload](env)
	case TypeUpdatePlayerShift:
		return decodeAs[UpdatePlayerShiftPayload](env)
	case TypeSubmitReport:
		return decodeAs[SubmitReportPayload](env)
	case TypeTyping:
		return decodeAs[TypingPayload](env)
	case TypeMatchState:
		return decodeAs[state.MatchState](env)
	case TypeActiveReporters:
		return decodeAs[ActiveReportersPayload](env)
	case TypePlayerShifts:
		return decodeAs[PlayerShiftsPayload](env)
	case TypeReporterJoined:
		return decodeAs[ReporterJoinedPayload](env)
	case TypeReporterLeft:
		return decodeAs[ReporterLeftPayload](env)
	case TypeScoreUpdated:
		return decodeAs[ScoreUpdatedPayload](env)
	case TypeTimerUpdated:
		return decodeAs[TimerUpdatedPayload](env)
	case TypeEventAdded:
		return decodeAs[EventAddedPayload](env)
	case TypePlayerShiftUpdated:
		return decodeAs[PlayerShiftUpdatedPayload](env)
	case TypeReportSubmitted:
		return decodeAs[ReportSubmittedPayload](env)
	case TypeReportSubmissionError:
		return decodeAs[ReportSubmissionErrorPayload](env)
	case TypeReporterTyping:
		return decodeAs[ReporterTypingPayload](env)
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

func decodeAs[T any](env *Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return payload, nil
}
