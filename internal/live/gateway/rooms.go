package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/pitchside/livematch/internal/live/protocol"
	"github.com/pitchside/livematch/internal/live/state"
)

// EventSink receives every accepted state-changing message for
// publication beyond the gateway process. Enqueue must not block.
type EventSink interface {
	Enqueue(env protocol.Envelope)
}

// NoopSink discards everything; used when no broker is configured.
type NoopSink struct{}

func (NoopSink) Enqueue(protocol.Envelope) {}

// matchRoom is the authoritative state of one live match plus the
// roster of reporters currently in the room. One mutex serializes all
// commands against a room, which is what makes broadcast order equal
// mutation order.
type matchRoom struct {
	mu        sync.Mutex
	rec       *state.Reconciler
	roster    *state.Roster
	createdAt time.Time
}

// RoomManager owns every match room and implements CommandRouter: all
// decoded client commands land here, mutate room state, and fan back
// out as broadcasts through the connection manager.
type RoomManager struct {
	manager *ConnectionManager
	sink    EventSink
	metrics MetricsCollector
	clock   clockwork.Clock

	mu    sync.RWMutex
	rooms map[string]*matchRoom
}

// NewRoomManager creates a room manager broadcasting through cm and
// publishing accepted mutations to sink.
func NewRoomManager(cm *ConnectionManager, sink EventSink, metrics MetricsCollector, clock clockwork.Clock) *RoomManager {
	if sink == nil {
		sink = NoopSink{}
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoomManager{
		manager: cm,
		sink:    sink,
		metrics: metrics,
		clock:   clock,
		rooms:   make(map[string]*matchRoom),
	}
}

// HandleCommand routes one decoded client command to its room
// operation. Commands that fail to decode or validate are logged and
// dropped; the connection stays up.
func (rm *RoomManager) HandleCommand(conn *Connection, env protocol.Envelope) {
	payload, err := protocol.DecodePayload(&env)
	if err != nil {
		rm.metrics.RecordCommandRejected(string(env.Type), "malformed")
		log.Warn().
			Err(err).
			Str("user_id", conn.UserID).
			Str("match_id", env.MatchID).
			Msg("dropping malformed command payload")
		return
	}

	switch p := payload.(type) {
	case protocol.JoinMatchPayload:
		p.MatchID = env.MatchID
		rm.join(conn, p)
	case protocol.LeaveMatchPayload:
		rm.leave(conn, env.MatchID)
	case protocol.UpdateScorePayload:
		rm.updateScore(conn, env.MatchID, p)
	case protocol.UpdateTimerPayload:
		rm.updateTimer(conn, env.MatchID, p)
	case protocol.AddEventPayload:
		rm.addEvent(conn, env.MatchID, p)
	case protocol.UpdatePlayerShiftPayload:
		rm.updatePlayerShift(conn, env.MatchID, p)
	case protocol.SubmitReportPayload:
		rm.submitReport(conn, env.MatchID, env)
	case protocol.TypingPayload:
		rm.typing(conn, env.MatchID, p)
	default:
		rm.metrics.RecordCommandRejected(string(env.Type), "not_a_command")
		log.Warn().
			Str("type", string(env.Type)).
			Str("user_id", conn.UserID).
			Msg("dropping non-command message from client")
	}
}

// HandleDisconnect removes a dropped connection's reporter from every
// room it had joined, exactly as if it had sent leave_match. Reporters
// that vanish without leaving are noticed through the ping/pong read
// deadline, which funnels into this path.
func (rm *RoomManager) HandleDisconnect(conn *Connection, matchIDs []string) {
	for _, matchID := range matchIDs {
		rm.removeReporter(conn, matchID)
	}
}

func (rm *RoomManager) join(conn *Connection, p protocol.JoinMatchPayload) {
	if err := p.Validate(); err != nil {
		rm.metrics.RecordCommandRejected(string(protocol.TypeJoinMatch), "invalid")
		log.Warn().Err(err).Str("user_id", conn.UserID).Msg("dropping invalid join_match")
		return
	}

	room := rm.getOrCreate(p.MatchID)
	room.mu.Lock()
	defer room.mu.Unlock()

	now := rm.clock.Now().UTC()
	room.roster.Add(state.ReporterPresence{
		UserID:     conn.UserID,
		Username:   conn.Username,
		TeamID:     p.TeamID,
		TeamName:   p.TeamName,
		JoinedAt:   now,
		LastActive: now,
	})
	if !rm.manager.JoinRoom(conn, p.MatchID, p.TeamID) {
		// Connection lost the race with its own teardown.
		room.roster.Remove(conn.UserID)
		return
	}

	rm.metrics.RecordRoomJoin(p.MatchID)
	log.Info().
		Str("match_id", p.MatchID).
		Str("user_id", conn.UserID).
		Str("team_id", p.TeamID).
		Int("reporters", room.roster.Len()).
		Msg("reporter joined match room")

	// Announce to the whole room first, then hand the joiner its full
	// sync bundle: state snapshot, roster, shifts. A rejoin after
	// reconnect goes through this same path, which is what makes the
	// bundle a complete resynchronization.
	rm.broadcast(p.MatchID, protocol.TypeReporterJoined, protocol.ReporterJoinedPayload{
		UserID:   conn.UserID,
		Username: conn.Username,
		TeamID:   p.TeamID,
		TeamName: p.TeamName,
		JoinedAt: now,
	}, BroadcastMessage{})

	rm.broadcast(p.MatchID, protocol.TypeMatchState, room.rec.State(), BroadcastMessage{UserID: conn.UserID})
	rm.broadcast(p.MatchID, protocol.TypeActiveReporters, protocol.ActiveReportersPayload{
		Reporters: room.roster.Snapshot(),
	}, BroadcastMessage{UserID: conn.UserID})
	rm.broadcast(p.MatchID, protocol.TypePlayerShifts, protocol.PlayerShiftsPayload{
		Shifts: room.rec.Shifts(),
	}, BroadcastMessage{UserID: conn.UserID})
}

func (rm *RoomManager) leave(conn *Connection, matchID string) {
	rm.manager.LeaveRoom(conn, matchID)
	rm.removeReporter(conn, matchID)
}

// removeReporter drops the reporter from the room roster and tells the
// survivors. Shared by explicit leave and disconnect cleanup; removing
// an absent reporter is a no-op, so the two paths cannot double-fire.
func (rm *RoomManager) removeReporter(conn *Connection, matchID string) {
	room := rm.get(matchID)
	if room == nil {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	prev, removed := room.roster.Remove(conn.UserID)
	if !removed {
		return
	}

	rm.metrics.RecordRoomLeave(matchID)
	log.Info().
		Str("match_id", matchID).
		Str("user_id", conn.UserID).
		Int("reporters", room.roster.Len()).
		Msg("reporter left match room")

	rm.broadcast(matchID, protocol.TypeReporterLeft, protocol.ReporterLeftPayload{
		UserID:   conn.UserID,
		Username: conn.Username,
		TeamID:   prev.TeamID,
	}, BroadcastMessage{})
}

func (rm *RoomManager) updateScore(conn *Connection, matchID string, p protocol.UpdateScorePayload) {
	if err := p.Validate(); err != nil {
		rm.metrics.RecordCommandRejected(string(protocol.TypeUpdateScore), "invalid")
		log.Warn().Err(err).Str("user_id", conn.UserID).Msg("dropping invalid update_score")
		return
	}

	room := rm.getOrCreate(matchID)
	room.mu.Lock()
	defer room.mu.Unlock()

	if rm.rejectIfSubmitted(room, conn, matchID, protocol.TypeUpdateScore) {
		return
	}

	room.rec.ApplyScore(p.HomeScore, p.AwayScore)
	room.roster.Touch(conn.UserID, rm.clock.Now().UTC())

	rm.broadcastScore(room, matchID, conn)
}

func (rm *RoomManager) updateTimer(conn *Connection, matchID string, p protocol.UpdateTimerPayload) {
	if err := p.Validate(); err != nil {
		rm.metrics.RecordCommandRejected(string(protocol.TypeUpdateTimer), "invalid")
		log.Warn().Err(err).Str("user_id", conn.UserID).Msg("dropping invalid update_timer")
		return
	}

	room := rm.getOrCreate(matchID)
	room.mu.Lock()
	defer room.mu.Unlock()

	if rm.rejectIfSubmitted(room, conn, matchID, protocol.TypeUpdateTimer) {
		return
	}

	room.rec.ApplyTimer(p.ElapsedSeconds, p.IsRunning, p.Period)
	room.roster.Touch(conn.UserID, rm.clock.Now().UTC())

	st := room.rec.State()
	rm.broadcastAndPublish(matchID, protocol.TypeTimerUpdated, protocol.TimerUpdatedPayload{
		ElapsedSeconds: st.ElapsedSeconds,
		IsRunning:      st.TimerRunning,
		Period:         st.Period,
		UpdatedBy:      conn.UserID,
		UpdatedByName:  conn.Username,
	}, BroadcastMessage{})
}

func (rm *RoomManager) addEvent(conn *Connection, matchID string, p protocol.AddEventPayload) {
	if err := p.Validate(); err != nil {
		rm.metrics.RecordCommandRejected(string(protocol.TypeAddEvent), "invalid")
		log.Warn().Err(err).Str("user_id", conn.UserID).Msg("dropping invalid add_event")
		return
	}

	room := rm.getOrCreate(matchID)
	room.mu.Lock()
	defer room.mu.Unlock()

	if rm.rejectIfSubmitted(room, conn, matchID, protocol.TypeAddEvent) {
		return
	}

	now := rm.clock.Now().UTC()
	st := room.rec.State()

	ev := state.MatchEvent{
		ID:         uuid.New().String(),
		MatchID:    matchID,
		EventType:  p.Event.EventType,
		TeamID:     p.Event.TeamID,
		PlayerID:   p.Event.PlayerID,
		PlayerName: p.Event.PlayerName,
		Minute:     p.Event.Minute,
		Period:     p.Event.Period,
		Timestamp:  now,
		ReportedBy: conn.UserID,
	}
	if ev.Period == "" {
		ev.Period = st.Period
	}
	if ev.Minute == 0 {
		ev.Minute = st.ElapsedSeconds/60 + 1
	}

	room.rec.ApplyEvent(ev)
	room.roster.Touch(conn.UserID, now)
	rm.metrics.RecordMatchEvent(ev.EventType)

	rm.broadcastAndPublish(matchID, protocol.TypeEventAdded, protocol.EventAddedPayload{
		Event:          ev,
		ReportedBy:     conn.UserID,
		ReportedByName: conn.Username,
	}, BroadcastMessage{})

	// A goal moves the score on its own; reporters should never have to
	// follow up with a manual update_score for it.
	if ev.EventType == state.EventTypeGoal {
		rm.bumpScoreForGoal(room, matchID, conn, ev.TeamID)
	}
}

// bumpScoreForGoal increments the side that scored and broadcasts the
// new score. Requires the room to know its team IDs; a goal for an
// unseeded match is logged and left to a manual score update.
func (rm *RoomManager) bumpScoreForGoal(room *matchRoom, matchID string, conn *Connection, teamID string) {
	st := room.rec.State()
	switch {
	case st.HomeTeamID != "" && teamID == st.HomeTeamID:
		room.rec.ApplyScore(st.HomeScore+1, st.AwayScore)
	case st.AwayTeamID != "" && teamID == st.AwayTeamID:
		room.rec.ApplyScore(st.HomeScore, st.AwayScore+1)
	default:
		log.Warn().
			Str("match_id", matchID).
			Str("team_id", teamID).
			Msg("goal for unrecognized team, score unchanged")
		return
	}
	rm.broadcastScore(room, matchID, conn)
}

func (rm *RoomManager) updatePlayerShift(conn *Connection, matchID string, p protocol.UpdatePlayerShiftPayload) {
	if err := p.Validate(); err != nil {
		rm.metrics.RecordCommandRejected(string(protocol.TypeUpdatePlayerShift), "invalid")
		log.Warn().Err(err).Str("user_id", conn.UserID).Msg("dropping invalid update_player_shift")
		return
	}

	room := rm.getOrCreate(matchID)
	room.mu.Lock()
	defer room.mu.Unlock()

	if rm.rejectIfSubmitted(room, conn, matchID, protocol.TypeUpdatePlayerShift) {
		return
	}

	now := rm.clock.Now().UTC()
	sh := state.PlayerShift{
		PlayerID:    p.PlayerID,
		PlayerName:  p.PlayerName,
		TeamID:      p.TeamID,
		IsActive:    p.IsActive,
		LastUpdated: now,
		UpdatedBy:   conn.UserID,
	}
	if sh.PlayerName == "" {
		if prev, ok := room.rec.Shift(sh.PlayerID); ok {
			sh.PlayerName = prev.PlayerName
		}
	}

	room.rec.ApplyShift(sh)
	room.roster.Touch(conn.UserID, now)

	// Shift changes only matter to the reporter's own bench, so the
	// fan-out is scoped to reporters who joined for the same team.
	rm.broadcastAndPublish(matchID, protocol.TypePlayerShiftUpdated, protocol.PlayerShiftUpdatedPayload{
		MatchID:       matchID,
		PlayerID:      sh.PlayerID,
		PlayerName:    sh.PlayerName,
		IsActive:      sh.IsActive,
		TeamID:        sh.TeamID,
		UpdatedBy:     conn.UserID,
		UpdatedByName: conn.Username,
		UpdatedAt:     now,
	}, BroadcastMessage{TeamID: sh.TeamID})
}

func (rm *RoomManager) submitReport(conn *Connection, matchID string, env protocol.Envelope) {
	room := rm.getOrCreate(matchID)
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.rec.State().ReportSubmitted {
		rm.metrics.RecordCommandRejected(string(protocol.TypeSubmitReport), "report_submitted")
		rm.broadcast(matchID, protocol.TypeReportSubmissionError, protocol.ReportSubmissionErrorPayload{
			Message: "Report has already been submitted for this match",
		}, BroadcastMessage{UserID: conn.UserID})
		return
	}

	room.rec.ApplyReportSubmitted(conn.UserID)
	room.roster.Touch(conn.UserID, rm.clock.Now().UTC())
	rm.metrics.RecordReportSubmitted(matchID)

	st := room.rec.State()
	log.Info().
		Str("match_id", matchID).
		Str("user_id", conn.UserID).
		Int("home_score", st.HomeScore).
		Int("away_score", st.AwayScore).
		Msg("final report submitted")

	rm.broadcastAndPublish(matchID, protocol.TypeReportSubmitted, protocol.ReportSubmittedPayload{
		SubmittedBy:     conn.UserID,
		SubmittedByName: conn.Username,
		HomeScore:       st.HomeScore,
		AwayScore:       st.AwayScore,
	}, BroadcastMessage{})

	// The command envelope carries the report body itself; downstream
	// consumers persist it, the gateway only flips the terminal flag.
	rm.sink.Enqueue(env)
}

func (rm *RoomManager) typing(conn *Connection, matchID string, p protocol.TypingPayload) {
	room := rm.get(matchID)
	if room == nil {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	room.roster.Touch(conn.UserID, rm.clock.Now().UTC())

	rm.broadcast(matchID, protocol.TypeReporterTyping, protocol.ReporterTypingPayload{
		UserID:   conn.UserID,
		Username: conn.Username,
		IsTyping: p.IsTyping,
	}, BroadcastMessage{ExcludeUserID: conn.UserID})
}

// rejectIfSubmitted enforces the terminal report flag: any mutating
// command after submission is answered with report_submission_error to
// the offending reporter only. Caller must hold room.mu.
func (rm *RoomManager) rejectIfSubmitted(room *matchRoom, conn *Connection, matchID string, t protocol.MessageType) bool {
	if !room.rec.State().ReportSubmitted {
		return false
	}
	rm.metrics.RecordCommandRejected(string(t), "report_submitted")
	log.Warn().
		Str("match_id", matchID).
		Str("user_id", conn.UserID).
		Str("type", string(t)).
		Msg("rejecting mutating command after report submission")
	rm.broadcast(matchID, protocol.TypeReportSubmissionError, protocol.ReportSubmissionErrorPayload{
		Message: "Report has already been submitted for this match",
	}, BroadcastMessage{UserID: conn.UserID})
	return true
}

// broadcastScore emits the current score with attribution and publishes
// it. Caller must hold room.mu.
func (rm *RoomManager) broadcastScore(room *matchRoom, matchID string, conn *Connection) {
	st := room.rec.State()
	rm.broadcastAndPublish(matchID, protocol.TypeScoreUpdated, protocol.ScoreUpdatedPayload{
		HomeScore:     st.HomeScore,
		AwayScore:     st.AwayScore,
		UpdatedBy:     conn.UserID,
		UpdatedByName: conn.Username,
	}, BroadcastMessage{})
}

// broadcast builds an envelope and queues it for fan-out. The target
// argument supplies optional user, team, or exclusion scoping.
func (rm *RoomManager) broadcast(matchID string, t protocol.MessageType, payload any, target BroadcastMessage) {
	env, err := protocol.NewEnvelope(t, matchID, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to build broadcast envelope")
		return
	}
	target.MatchID = matchID
	target.Env = env
	rm.manager.Broadcast(target)
}

// broadcastAndPublish additionally hands the envelope to the event sink
// so downstream consumers see every accepted mutation exactly as the
// room broadcast it.
func (rm *RoomManager) broadcastAndPublish(matchID string, t protocol.MessageType, payload any, target BroadcastMessage) {
	env, err := protocol.NewEnvelope(t, matchID, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to build broadcast envelope")
		return
	}
	target.MatchID = matchID
	target.Env = env
	rm.manager.Broadcast(target)
	rm.sink.Enqueue(env)
}

func (rm *RoomManager) get(matchID string) *matchRoom {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.rooms[matchID]
}

func (rm *RoomManager) getOrCreate(matchID string) *matchRoom {
	rm.mu.RLock()
	room := rm.rooms[matchID]
	rm.mu.RUnlock()
	if room != nil {
		return room
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if room = rm.rooms[matchID]; room == nil {
		room = &matchRoom{
			rec:       state.NewReconciler(matchID),
			roster:    state.NewRoster(),
			createdAt: rm.clock.Now().UTC(),
		}
		rm.rooms[matchID] = room
		log.Info().Str("match_id", matchID).Msg("match room created")
	}
	return room
}

// MatchSeed carries optional initial fields for a match room. Team IDs
// are what the goal auto-score needs; everything else defaults to the
// zero state.
type MatchSeed struct {
	HomeTeamID string `json:"home_team_id,omitempty"`
	AwayTeamID string `json:"away_team_id,omitempty"`
	Period     string `json:"period,omitempty"`
	HomeScore  *int   `json:"home_score,omitempty"`
	AwayScore  *int   `json:"away_score,omitempty"`
}

// EnsureMatch creates the room if needed and merges the seed into its
// state, then re-broadcasts the snapshot so connected reporters pick up
// the change. Seeding an already-submitted match is rejected.
func (rm *RoomManager) EnsureMatch(matchID string, seed MatchSeed) (state.MatchState, error) {
	room := rm.getOrCreate(matchID)
	room.mu.Lock()
	defer room.mu.Unlock()

	st := room.rec.State()
	if st.ReportSubmitted {
		return st, ErrReportAlreadySubmitted
	}
	if seed.HomeTeamID != "" {
		st.HomeTeamID = seed.HomeTeamID
	}
	if seed.AwayTeamID != "" {
		st.AwayTeamID = seed.AwayTeamID
	}
	if seed.Period != "" {
		st.Period = seed.Period
	}
	if seed.HomeScore != nil {
		st.HomeScore = *seed.HomeScore
	}
	if seed.AwayScore != nil {
		st.AwayScore = *seed.AwayScore
	}
	room.rec.ApplyMatchState(st)

	log.Info().
		Str("match_id", matchID).
		Str("home_team_id", st.HomeTeamID).
		Str("away_team_id", st.AwayTeamID).
		Msg("match room seeded")

	st = room.rec.State()
	rm.broadcast(matchID, protocol.TypeMatchState, st, BroadcastMessage{})
	return st, nil
}

// RetractEvent removes one event from the match log, the correction
// path for a mis-reported event. A retracted goal takes its score bump
// back with it. Clients are resynchronized with a full snapshot rather
// than a dedicated message, so their pure-overwrite reconciliation
// needs no removal case.
func (rm *RoomManager) RetractEvent(matchID, eventID string) (state.MatchEvent, error) {
	room := rm.get(matchID)
	if room == nil {
		return state.MatchEvent{}, ErrMatchNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.rec.State().ReportSubmitted {
		return state.MatchEvent{}, ErrReportAlreadySubmitted
	}

	ev, ok := room.rec.RemoveEvent(eventID)
	if !ok {
		return state.MatchEvent{}, ErrEventNotFound
	}

	if ev.EventType == state.EventTypeGoal {
		st := room.rec.State()
		switch {
		case st.HomeTeamID != "" && ev.TeamID == st.HomeTeamID && st.HomeScore > 0:
			room.rec.ApplyScore(st.HomeScore-1, st.AwayScore)
		case st.AwayTeamID != "" && ev.TeamID == st.AwayTeamID && st.AwayScore > 0:
			room.rec.ApplyScore(st.HomeScore, st.AwayScore-1)
		}
	}

	log.Info().
		Str("match_id", matchID).
		Str("event_id", eventID).
		Str("event_type", ev.EventType).
		Msg("event retracted")

	rm.broadcastAndPublish(matchID, protocol.TypeMatchState, room.rec.State(), BroadcastMessage{})
	return ev, nil
}

// Snapshot returns the full room view for the REST surface.
func (rm *RoomManager) Snapshot(matchID string) (state.MatchState, []state.ReporterPresence, []state.PlayerShift, error) {
	room := rm.get(matchID)
	if room == nil {
		return state.MatchState{}, nil, nil, ErrMatchNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.rec.State(), room.roster.Snapshot(), room.rec.Shifts(), nil
}

// ActiveMatches lists every room ordered by match ID.
func (rm *RoomManager) ActiveMatches() []MatchSummary {
	rm.mu.RLock()
	rooms := make(map[string]*matchRoom, len(rm.rooms))
	for id, room := range rm.rooms {
		rooms[id] = room
	}
	rm.mu.RUnlock()

	out := make([]MatchSummary, 0, len(rooms))
	for id, room := range rooms {
		room.mu.Lock()
		st := room.rec.State()
		out = append(out, MatchSummary{
			MatchID:         id,
			HomeScore:       st.HomeScore,
			AwayScore:       st.AwayScore,
			Period:          st.Period,
			TimerRunning:    st.TimerRunning,
			ReportSubmitted: st.ReportSubmitted,
			Reporters:       room.roster.Len(),
			CreatedAt:       room.createdAt,
		})
		room.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

// RoomCount returns the number of live match rooms.
func (rm *RoomManager) RoomCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}
