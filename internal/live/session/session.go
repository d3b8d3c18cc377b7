package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pitchside/livematch/internal/live/notify"
	"github.com/pitchside/livematch/internal/live/protocol"
	"github.com/pitchside/livematch/internal/live/state"
)

// Conn is the transport surface a session drives. *client.Client
// satisfies it; tests substitute an in-memory fake.
type Conn interface {
	Send(env protocol.Envelope) error
	Handle(t protocol.MessageType, fn protocol.Handler)
	OnConnect(fn func())
	OnDisconnect(fn func(error))
}

// Config carries the per-match identity for a session.
type Config struct {
	// MatchID is the room to join. Required.
	MatchID string
	// TeamID scopes player shift commands and join presence. Required.
	TeamID string
	// TeamName is the display name attached to presence. Optional.
	TeamName string
	// UserID, when set, suppresses notifications echoing the session's
	// own join. It should match the transport's reporter identity.
	UserID string

	// Notifier receives user-facing toasts. Defaults to notify.Noop.
	Notifier notify.Notifier
	// Clock drives the optimistic 1Hz timer tick. Defaults to the real
	// clock; tests inject a fake.
	Clock clockwork.Clock
	// OnTyping, when set, is invoked for reporter_typing relays.
	OnTyping func(userID, username string, isTyping bool)
}

// Session is one reporter's view of a single match room. It owns the
// reconciled MatchState, the presence roster, and the command
// dispatcher. All mutation, whether from inbound broadcasts, dispatched
// commands, or the timer tick, is serialized behind one mutex.
type Session struct {
	matchID  string
	teamID   string
	teamName string
	userID   string

	conn     Conn
	notifier notify.Notifier
	clock    clockwork.Clock
	onTyping func(userID, username string, isTyping bool)
	log      zerolog.Logger

	mu       sync.Mutex
	rec      *state.Reconciler
	roster   *state.Roster
	wantJoin bool // join intent issued and not withdrawn
	joined   bool // first match_state snapshot received since join
	ticking  chan struct{}

	connectedOnce bool
}

// New builds a session over conn and registers its broadcast handlers.
// The caller connects the transport and then calls Join.
func New(conn Conn, cfg Config) (*Session, error) {
	if cfg.MatchID == "" {
		return nil, fmt.Errorf("session: match id is required")
	}
	if cfg.TeamID == "" {
		return nil, fmt.Errorf("session: team id is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	s := &Session{
		matchID:  cfg.MatchID,
		teamID:   cfg.TeamID,
		teamName: cfg.TeamName,
		userID:   cfg.UserID,
		conn:     conn,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		onTyping: cfg.OnTyping,
		log: log.With().
			Str("component", "live_session").
			Str("match_id", cfg.MatchID).
			Logger(),
		rec:    state.NewReconciler(cfg.MatchID),
		roster: state.NewRoster(),
	}
	s.register()
	return s, nil
}

// Join declares intent to report on the match and emits the join
// command. Joining completes when the first match_state snapshot
// arrives; until then mutating commands fail with ErrNotJoined. If the
// transport is still dialing, the join is replayed once it connects.
func (s *Session) Join() error {
	s.mu.Lock()
	s.wantJoin = true
	s.mu.Unlock()
	return s.sendJoin()
}

// Leave withdraws from the room. Leaving a room the session never
// joined is a no-op. The leave command is best effort; server-side
// disconnect handling covers the case where it never arrives.
func (s *Session) Leave() error {
	s.mu.Lock()
	if !s.wantJoin && !s.joined {
		s.mu.Unlock()
		return nil
	}
	s.wantJoin = false
	s.joined = false
	s.mu.Unlock()
	s.setTicking(false)

	env, err := protocol.NewEnvelope(protocol.TypeLeaveMatch, s.matchID, protocol.LeaveMatchPayload{MatchID: s.matchID})
	if err != nil {
		return err
	}
	if err := s.conn.Send(env); err != nil {
		s.log.Warn().Err(err).Msg("leave command not delivered")
		return err
	}
	return nil
}

// Joined reports whether the initial state snapshot has been received
// since the last Join.
func (s *Session) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

func (s *Session) sendJoin() error {
	env, err := protocol.NewEnvelope(protocol.TypeJoinMatch, s.matchID, protocol.JoinMatchPayload{
		MatchID:  s.matchID,
		TeamID:   s.teamID,
		TeamName: s.teamName,
	})
	if err != nil {
		return err
	}
	return s.conn.Send(env)
}

// UpdateScore submits a full score overwrite. The local state is not
// touched; it converges when the score_updated broadcast returns.
func (s *Session) UpdateScore(homeScore, awayScore int) error {
	if err := s.guardMutating(); err != nil {
		return err
	}
	p := protocol.UpdateScorePayload{MatchID: s.matchID, HomeScore: homeScore, AwayScore: awayScore}
	if err := p.Validate(); err != nil {
		return err
	}
	return s.send(protocol.TypeUpdateScore, p)
}

// ToggleTimer starts or stops the shared match timer at the current
// local elapsed time. The 1Hz optimistic tick starts or stops
// immediately as a visual aid; the authoritative value still arrives
// with the timer_updated broadcast and overwrites whatever the tick
// produced in the meantime.
func (s *Session) ToggleTimer(running bool) error {
	if err := s.guardMutating(); err != nil {
		return err
	}
	s.mu.Lock()
	st := s.rec.State()
	s.rec.ApplyTimer(st.ElapsedSeconds, running, "")
	s.mu.Unlock()
	s.setTicking(running)

	p := protocol.UpdateTimerPayload{
		MatchID:        s.matchID,
		ElapsedSeconds: st.ElapsedSeconds,
		IsRunning:      running,
		Period:         st.Period,
	}
	return s.send(protocol.TypeUpdateTimer, p)
}

// UpdatePeriod advances the match to a new period. It rides the timer
// channel, carrying the current elapsed time unchanged.
func (s *Session) UpdatePeriod(period string) error {
	if err := s.guardMutating(); err != nil {
		return err
	}
	if strings.TrimSpace(period) == "" {
		return fmt.Errorf("session: period is required")
	}
	s.mu.Lock()
	st := s.rec.State()
	s.mu.Unlock()

	p := protocol.UpdateTimerPayload{
		MatchID:        s.matchID,
		ElapsedSeconds: st.ElapsedSeconds,
		IsRunning:      st.TimerRunning,
		Period:         period,
	}
	return s.send(protocol.TypeUpdateTimer, p)
}

// AddEvent reports a discrete match event. The event id is minted
// server side; the local log converges on the event_added broadcast.
// An empty period defaults to the current one.
func (s *Session) AddEvent(desc protocol.EventDescriptor) error {
	if err := s.guardMutating(); err != nil {
		return err
	}
	if desc.Period == "" {
		s.mu.Lock()
		desc.Period = s.rec.State().Period
		s.mu.Unlock()
	}
	p := protocol.AddEventPayload{MatchID: s.matchID, Event: desc}
	if err := p.Validate(); err != nil {
		return err
	}
	return s.send(protocol.TypeAddEvent, p)
}

// TogglePlayerShift flips a player's on-field status for the session's
// own team. The display name is carried over from the last known shift
// so receivers keep rendering it.
func (s *Session) TogglePlayerShift(playerID string, active bool) error {
	if err := s.guardMutating(); err != nil {
		return err
	}
	if strings.TrimSpace(playerID) == "" {
		return fmt.Errorf("session: player id is required")
	}
	var name string
	s.mu.Lock()
	if sh, ok := s.rec.Shift(playerID); ok {
		name = sh.PlayerName
	}
	s.mu.Unlock()

	p := protocol.UpdatePlayerShiftPayload{
		MatchID:    s.matchID,
		PlayerID:   playerID,
		PlayerName: name,
		TeamID:     s.teamID,
		IsActive:   active,
	}
	return s.send(protocol.TypeUpdatePlayerShift, p)
}

// SubmitReport finalizes the match report. Once the command is sent the
// session refuses every further mutating command, regardless of whether
// the server accepts it: either way the match is terminal.
func (s *Session) SubmitReport(report protocol.ReportData) error {
	if err := s.guardMutating(); err != nil {
		return err
	}
	p := protocol.SubmitReportPayload{MatchID: s.matchID, ReportData: report}
	if err := s.send(protocol.TypeSubmitReport, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.rec.ApplyReportSubmitted(s.userID)
	s.mu.Unlock()
	s.setTicking(false)
	return nil
}

// SetTyping relays a typing indicator to the other reporters in the
// room. It is not a mutating command and stays available after the
// report is submitted.
func (s *Session) SetTyping(isTyping bool) error {
	s.mu.Lock()
	joined := s.joined
	s.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}
	return s.send(protocol.TypeTyping, protocol.TypingPayload{MatchID: s.matchID, IsTyping: isTyping})
}

// State returns a copy of the reconciled match state.
func (s *Session) State() state.MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.State()
}

// Reporters returns the presence roster ordered by user id.
func (s *Session) Reporters() []state.ReporterPresence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Snapshot()
}

// Shifts returns the known player shifts ordered by player id.
func (s *Session) Shifts() []state.PlayerShift {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Shifts()
}

// Events returns the event log ordered newest first, the way the
// reporting view renders it.
func (s *Session) Events() []state.MatchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.EventsNewestFirst()
}

func (s *Session) guardMutating() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return ErrNotJoined
	}
	if s.rec.State().ReportSubmitted {
		return ErrReportSubmitted
	}
	return nil
}

func (s *Session) send(t protocol.MessageType, payload any) error {
	env, err := protocol.NewEnvelope(t, s.matchID, payload)
	if err != nil {
		return err
	}
	return s.conn.Send(env)
}

// register wires every broadcast the room can emit plus the transport
// lifecycle hooks. Handlers run one at a time on the transport's read
// goroutine; a payload that fails to decode is logged and dropped
// without disturbing the session.
func (s *Session) register() {
	s.handle(protocol.TypeMatchState, s.onMatchState)
	s.handle(protocol.TypeActiveReporters, s.onActiveReporters)
	s.handle(protocol.TypePlayerShifts, s.onPlayerShifts)
	s.handle(protocol.TypeReporterJoined, s.onReporterJoined)
	s.handle(protocol.TypeReporterLeft, s.onReporterLeft)
	s.handle(protocol.TypeScoreUpdated, s.onScoreUpdated)
	s.handle(protocol.TypeTimerUpdated, s.onTimerUpdated)
	s.handle(protocol.TypeEventAdded, s.onEventAdded)
	s.handle(protocol.TypePlayerShiftUpdated, s.onPlayerShiftUpdated)
	s.handle(protocol.TypeReportSubmitted, s.onReportSubmitted)
	s.handle(protocol.TypeReportSubmissionError, s.onReportSubmissionError)
	s.handle(protocol.TypeReporterTyping, s.onReporterTyping)

	s.conn.OnConnect(s.onConnect)
	s.conn.OnDisconnect(s.onDisconnect)
}

func (s *Session) handle(t protocol.MessageType, fn func(payload any)) {
	s.conn.Handle(t, func(env protocol.Envelope) {
		if env.MatchID != "" && env.MatchID != s.matchID {
			return
		}
		payload, err := protocol.DecodePayload(&env)
		if err != nil {
			s.log.Warn().Err(err).Str("type", string(t)).Msg("dropping malformed broadcast")
			return
		}
		fn(payload)
	})
}

func (s *Session) onMatchState(payload any) {
	st := payload.(state.MatchState)

	s.mu.Lock()
	firstSync := s.wantJoin && !s.joined
	s.rec.ApplyMatchState(st)
	if s.wantJoin {
		s.joined = true
	}
	running := st.TimerRunning && !st.ReportSubmitted
	s.mu.Unlock()

	s.setTicking(running)
	if firstSync {
		s.notifier.Success(fmt.Sprintf("Joined live reporting for match %s", s.matchID))
	}
}

func (s *Session) onActiveReporters(payload any) {
	p := payload.(protocol.ActiveReportersPayload)
	s.mu.Lock()
	s.roster.Replace(p.Reporters)
	n := s.roster.Len()
	s.mu.Unlock()
	s.notifier.Info(fmt.Sprintf("%d reporter(s) active", n))
}

func (s *Session) onPlayerShifts(payload any) {
	p := payload.(protocol.PlayerShiftsPayload)
	s.mu.Lock()
	s.rec.ApplyShifts(p.Shifts)
	s.mu.Unlock()
}

func (s *Session) onReporterJoined(payload any) {
	p := payload.(protocol.ReporterJoinedPayload)
	s.mu.Lock()
	added := s.roster.Add(state.ReporterPresence{
		UserID:     p.UserID,
		Username:   p.Username,
		TeamID:     p.TeamID,
		TeamName:   p.TeamName,
		JoinedAt:   p.JoinedAt,
		LastActive: s.clock.Now().UTC(),
	})
	s.mu.Unlock()

	if added && p.UserID != s.userID {
		who := p.Username
		if who == "" {
			who = p.UserID
		}
		s.notifier.Info(fmt.Sprintf("%s joined live reporting", who))
	}
}

func (s *Session) onReporterLeft(payload any) {
	p := payload.(protocol.ReporterLeftPayload)
	s.mu.Lock()
	prev, removed := s.roster.Remove(p.UserID)
	s.mu.Unlock()

	if removed && p.UserID != s.userID {
		who := p.Username
		if who == "" {
			who = prev.Username
		}
		if who == "" {
			who = p.UserID
		}
		s.notifier.Info(fmt.Sprintf("%s left live reporting", who))
	}
}

func (s *Session) onScoreUpdated(payload any) {
	p := payload.(protocol.ScoreUpdatedPayload)
	s.mu.Lock()
	s.rec.ApplyScore(p.HomeScore, p.AwayScore)
	s.roster.Touch(p.UpdatedBy, s.clock.Now().UTC())
	s.mu.Unlock()

	s.notifier.Success(fmt.Sprintf("Score updated to %d-%d by %s", p.HomeScore, p.AwayScore, displayName(p.UpdatedByName, p.UpdatedBy)))
}

func (s *Session) onTimerUpdated(payload any) {
	p := payload.(protocol.TimerUpdatedPayload)
	s.mu.Lock()
	s.rec.ApplyTimer(p.ElapsedSeconds, p.IsRunning, p.Period)
	s.roster.Touch(p.UpdatedBy, s.clock.Now().UTC())
	submitted := s.rec.State().ReportSubmitted
	s.mu.Unlock()

	s.setTicking(p.IsRunning && !submitted)

	verb := "stopped"
	if p.IsRunning {
		verb = "running"
	}
	s.notifier.Info(fmt.Sprintf("Timer %s at %s by %s", verb, formatClock(p.ElapsedSeconds), displayName(p.UpdatedByName, p.UpdatedBy)))
}

func (s *Session) onEventAdded(payload any) {
	p := payload.(protocol.EventAddedPayload)
	s.mu.Lock()
	added := s.rec.ApplyEvent(p.Event)
	s.roster.Touch(p.ReportedBy, s.clock.Now().UTC())
	s.mu.Unlock()

	if added {
		s.notifier.Success(fmt.Sprintf("%s recorded by %s", p.Event.EventType, displayName(p.ReportedByName, p.ReportedBy)))
	}
}

func (s *Session) onPlayerShiftUpdated(payload any) {
	p := payload.(protocol.PlayerShiftUpdatedPayload)
	sh := state.PlayerShift{
		PlayerID:    p.PlayerID,
		PlayerName:  p.PlayerName,
		TeamID:      p.TeamID,
		IsActive:    p.IsActive,
		LastUpdated: p.UpdatedAt,
		UpdatedBy:   p.UpdatedBy,
	}
	s.mu.Lock()
	s.rec.ApplyShift(sh)
	s.roster.Touch(p.UpdatedBy, s.clock.Now().UTC())
	s.mu.Unlock()

	status := "off the field"
	if p.IsActive {
		status = "on the field"
	}
	s.notifier.Info(fmt.Sprintf("%s is %s", displayName(p.PlayerName, p.PlayerID), status))
}

func (s *Session) onReportSubmitted(payload any) {
	p := payload.(protocol.ReportSubmittedPayload)
	s.mu.Lock()
	s.rec.ApplyScore(p.HomeScore, p.AwayScore)
	s.rec.ApplyReportSubmitted(p.SubmittedBy)
	s.mu.Unlock()

	s.setTicking(false)
	s.notifier.Success(fmt.Sprintf("Final report submitted by %s. Reporting is closed.", displayName(p.SubmittedByName, p.SubmittedBy)))
}

func (s *Session) onReportSubmissionError(payload any) {
	p := payload.(protocol.ReportSubmissionErrorPayload)
	msg := p.Message
	if msg == "" {
		msg = "Report submission failed"
	}
	s.notifier.Error(msg)
}

func (s *Session) onReporterTyping(payload any) {
	p := payload.(protocol.ReporterTypingPayload)
	s.mu.Lock()
	s.roster.Touch(p.UserID, s.clock.Now().UTC())
	fn := s.onTyping
	s.mu.Unlock()

	if fn != nil {
		fn(p.UserID, p.Username, p.IsTyping)
	}
}

// onConnect fires on every successful dial, including reconnects. A
// session with standing join intent rejoins the room, which makes the
// server replay the full grant bundle and resynchronize all state.
func (s *Session) onConnect() {
	s.mu.Lock()
	rejoin := s.wantJoin
	first := !s.connectedOnce
	s.connectedOnce = true
	s.mu.Unlock()

	if !first {
		s.notifier.Success("Connection restored, resynchronizing match state")
	}
	if rejoin {
		if err := s.sendJoin(); err != nil {
			s.log.Warn().Err(err).Msg("rejoin not delivered, waiting for next connect")
		}
	}
}

func (s *Session) onDisconnect(err error) {
	s.mu.Lock()
	s.joined = false
	s.mu.Unlock()
	s.setTicking(false)

	s.log.Warn().Err(err).Msg("transport dropped")
	s.notifier.Error("Connection lost, reconnecting")
}

// setTicking starts or stops the optimistic 1Hz tick goroutine. Must
// not be called with the session mutex held.
func (s *Session) setTicking(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		if s.ticking != nil {
			return
		}
		stop := make(chan struct{})
		s.ticking = stop
		go s.tickLoop(stop)
		return
	}
	if s.ticking != nil {
		close(s.ticking)
		s.ticking = nil
	}
}

func (s *Session) tickLoop(stop <-chan struct{}) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			s.mu.Lock()
			s.rec.Tick()
			s.mu.Unlock()
		}
	}
}

func displayName(name, fallback string) string {
	if name != "" {
		return name
	}
	if fallback != "" {
		return fallback
	}
	return "another reporter"
}

// formatClock renders elapsed seconds as m:ss match time.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
