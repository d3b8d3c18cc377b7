package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pitchside/livematch/internal/live/state"
)

// RoomDirectory is the room-manager surface the REST handlers need.
type RoomDirectory interface {
	Snapshot(matchID string) (state.MatchState, []state.ReporterPresence, []state.PlayerShift, error)
	ActiveMatches() []MatchSummary
	EnsureMatch(matchID string, seed MatchSeed) (state.MatchState, error)
	RetractEvent(matchID, eventID string) (state.MatchEvent, error)
}

// MatchStateResponse is the complete REST view of one match room.
type MatchStateResponse struct {
	Match     state.MatchState         `json:"match"`
	Reporters []state.ReporterPresence `json:"reporters"`
	Shifts    []state.PlayerShift      `json:"shifts"`
}

// MatchSummary is one row in the active match listing.
type MatchSummary struct {
	MatchID         string    `json:"match_id"`
	HomeScore       int       `json:"home_score"`
	AwayScore       int       `json:"away_score"`
	Period          string    `json:"period,omitempty"`
	TimerRunning    bool      `json:"timer_running"`
	ReportSubmitted bool      `json:"report_submitted"`
	Reporters       int       `json:"reporters"`
	CreatedAt       time.Time `json:"created_at"`
}

// StateHandler handles HTTP requests for match room state
type StateHandler struct {
	rooms RoomDirectory
}

// NewStateHandler creates a new state handler
func NewStateHandler(rooms RoomDirectory) *StateHandler {
	return &StateHandler{
		rooms: rooms,
	}
}

// HandleGetMatchState handles GET /api/matches/{id}/state
func (h *StateHandler) HandleGetMatchState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	matchID := extractMatchIDFromPath(r.URL.Path)
	if matchID == "" {
		http.Error(w, "Match ID is required", http.StatusBadRequest)
		return
	}

	match, reporters, shifts, err := h.rooms.Snapshot(matchID)
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			http.Error(w, "Match not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to get match state")
		http.Error(w, "Failed to get match state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, MatchStateResponse{
		Match:     match,
		Reporters: reporters,
		Shifts:    shifts,
	})
}

// HandleGetActiveMatches handles GET /api/matches/active
func (h *StateHandler) HandleGetActiveMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.rooms.ActiveMatches())
}

// HandleSeedMatch handles POST /api/matches/{id}. The body carries the
// optional seed: team IDs for goal auto-scoring, an initial period or
// score. Seeding is how the league system hands a scheduled match to
// the live gateway before kickoff.
func (h *StateHandler) HandleSeedMatch(w http.ResponseWriter, r *http.Request, matchID string) {
	// An empty body is a valid seed: it just materializes the room.
	var seed MatchSeed
	if err := json.NewDecoder(r.Body).Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid seed body", http.StatusBadRequest)
		return
	}

	st, err := h.rooms.EnsureMatch(matchID, seed)
	if err != nil {
		if errors.Is(err, ErrReportAlreadySubmitted) {
			http.Error(w, "Report already submitted", http.StatusConflict)
			return
		}
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to seed match")
		http.Error(w, "Failed to seed match", http.StatusInternalServerError)
		return
	}

	writeJSON(w, st)
}

// HandleRetractEvent handles DELETE /api/matches/{id}/events/{eventId}.
func (h *StateHandler) HandleRetractEvent(w http.ResponseWriter, r *http.Request, matchID, eventID string) {
	ev, err := h.rooms.RetractEvent(matchID, eventID)
	if err != nil {
		switch {
		case errors.Is(err, ErrMatchNotFound):
			http.Error(w, "Match not found", http.StatusNotFound)
		case errors.Is(err, ErrEventNotFound):
			http.Error(w, "Event not found", http.StatusNotFound)
		case errors.Is(err, ErrReportAlreadySubmitted):
			http.Error(w, "Report already submitted", http.StatusConflict)
		default:
			log.Error().Err(err).Str("match_id", matchID).Str("event_id", eventID).Msg("failed to retract event")
			http.Error(w, "Failed to retract event", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, ev)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	// Register specific routes
	mux.HandleFunc("/api/matches/active", h.HandleGetActiveMatches)

	// Register pattern for per-match operations - note the trailing slash
	mux.HandleFunc("/api/matches/", func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("path", r.URL.Path).Str("method", r.Method).Msg("state handler received request")

		if strings.HasSuffix(r.URL.Path, "/state") {
			h.HandleGetMatchState(w, r)
			return
		}

		if matchID, eventID, ok := extractEventPath(r.URL.Path); ok {
			if r.Method != http.MethodDelete {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.HandleRetractEvent(w, r, matchID, eventID)
			return
		}

		if matchID := strings.TrimPrefix(r.URL.Path, "/api/matches/"); matchID != "" && !strings.Contains(matchID, "/") {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.HandleSeedMatch(w, r, matchID)
			return
		}

		http.NotFound(w, r)
	})
}

// extractMatchIDFromPath extracts match ID from path like /api/matches/{id}/state
func extractMatchIDFromPath(path string) string {
	// Remove prefix and suffix
	const prefix = "/api/matches/"
	const suffix = "/state"

	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}

	if path[:len(prefix)] != prefix || path[len(path)-len(suffix):] != suffix {
		return ""
	}

	id := path[len(prefix) : len(path)-len(suffix)]
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}

// extractEventPath splits a path like /api/matches/{id}/events/{eventId}
func extractEventPath(path string) (matchID, eventID string, ok bool) {
	const prefix = "/api/matches/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "events" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
