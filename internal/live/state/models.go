package state

import "time"

// Event types with score bookkeeping or roster side effects. Free-text
// event types are allowed on the wire; these are the ones the room
// service treats specially.
const (
	EventTypeGoal         = "GOAL"
	EventTypeYellowCard   = "YELLOW_CARD"
	EventTypeRedCard      = "RED_CARD"
	EventTypeSubstitution = "SUBSTITUTION"
)

// MatchState is the shared mutable state of one live-reported match.
// The room service owns the authoritative copy; clients hold a cache of
// the last broadcast snapshot.
type MatchState struct {
	MatchID           string       `json:"match_id"`
	HomeTeamID        string       `json:"home_team_id,omitempty"`
	AwayTeamID        string       `json:"away_team_id,omitempty"`
	HomeScore         int          `json:"home_score"`
	AwayScore         int          `json:"away_score"`
	ElapsedSeconds    int          `json:"elapsed_seconds"`
	TimerRunning      bool         `json:"timer_running"`
	Period            string       `json:"period,omitempty"`
	ReportSubmitted   bool         `json:"report_submitted"`
	ReportSubmittedBy string       `json:"report_submitted_by,omitempty"`
	Events            []MatchEvent `json:"events"`
}

// Clone returns a deep copy, including the event log.
func (s MatchState) Clone() MatchState {
	out := s
	if s.Events != nil {
		out.Events = make([]MatchEvent, len(s.Events))
		copy(out.Events, s.Events)
	}
	return out
}

// MatchEvent is one immutable fact in the match log. The log is
// append-only from the client's perspective; the server may retract an
// event, which clients observe as a diff on the next full snapshot.
type MatchEvent struct {
	ID         string    `json:"id"`
	MatchID    string    `json:"match_id"`
	EventType  string    `json:"event_type"`
	TeamID     string    `json:"team_id"`
	PlayerID   string    `json:"player_id,omitempty"`
	PlayerName string    `json:"player_name,omitempty"`
	Minute     int       `json:"minute,omitempty"`
	Period     string    `json:"period,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	ReportedBy string    `json:"reported_by,omitempty"`
}

// PlayerShift is the per-player on/off-field flag used for substitution
// tracking. Shifts are scoped to one team; reconciliation is
// last-writer-wins on the incoming broadcast.
type PlayerShift struct {
	PlayerID    string    `json:"player_id"`
	PlayerName  string    `json:"player_name,omitempty"`
	TeamID      string    `json:"team_id"`
	IsActive    bool      `json:"is_active"`
	LastUpdated time.Time `json:"last_updated"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
}

// ReporterPresence is one member of a match room's live roster. Entries
// are created and removed purely by server-pushed join/leave events and
// are never persisted.
type ReporterPresence struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	TeamID     string    `json:"team_id"`
	TeamName   string    `json:"team_name,omitempty"`
	JoinedAt   time.Time `json:"joined_at,omitempty"`
	LastActive time.Time `json:"last_active,omitempty"`
}
