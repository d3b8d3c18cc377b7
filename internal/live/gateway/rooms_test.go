package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pitchside/livematch/internal/live/protocol"
	"github.com/pitchside/livematch/internal/live/state"
)

// captureSink records every envelope handed to the event sink.
type captureSink struct {
	mu   sync.Mutex
	envs []protocol.Envelope
}

func (s *captureSink) Enqueue(env protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
}

func (s *captureSink) types() []protocol.MessageType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.MessageType, 0, len(s.envs))
	for _, env := range s.envs {
		out = append(out, env.Type)
	}
	return out
}

func (s *captureSink) countOf(typ protocol.MessageType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := 0
	for _, env := range s.envs {
		if env.Type == typ {
			c++
		}
	}
	return c
}

// countingMetrics tallies rejected commands by type and reason.
type countingMetrics struct {
	NoOpMetricsCollector
	mu       sync.Mutex
	rejected map[string]int
}

func (m *countingMetrics) RecordCommandRejected(commandType, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejected == nil {
		m.rejected = make(map[string]int)
	}
	m.rejected[commandType+"/"+reason]++
}

func (m *countingMetrics) rejections(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected[key]
}

type roomHarness struct {
	cm      *ConnectionManager
	rm      *RoomManager
	sink    *captureSink
	metrics *countingMetrics
	clock   *clockwork.FakeClock
}

func newRoomHarness(t *testing.T) *roomHarness {
	t.Helper()
	metrics := &countingMetrics{}
	cm := NewConnectionManager(DefaultConnectionConfig(), metrics)
	sink := &captureSink{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC))
	rm := NewRoomManager(cm, sink, metrics, clock)
	cm.SetRouter(rm)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)
	t.Cleanup(cancel)

	return &roomHarness{cm: cm, rm: rm, sink: sink, metrics: metrics, clock: clock}
}

// connect registers a connection without a real socket behind it; the
// send channel stands in for the write pump.
func (h *roomHarness) connect(userID, username string) *Connection {
	conn := &Connection{
		ID:       uuid.New().String(),
		UserID:   userID,
		Username: username,
		Send:     make(chan []byte, 64),
		Manager:  h.cm,
		stop:     make(chan struct{}),
	}
	h.cm.registerConnection(conn)
	return conn
}

func (h *roomHarness) command(t *testing.T, conn *Connection, typ protocol.MessageType, matchID string, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, matchID, payload)
	if err != nil {
		t.Fatalf("build %s command: %v", typ, err)
	}
	h.rm.HandleCommand(conn, env)
}

func (h *roomHarness) join(t *testing.T, conn *Connection, matchID, teamID string) {
	t.Helper()
	h.command(t, conn, protocol.TypeJoinMatch, matchID, protocol.JoinMatchPayload{MatchID: matchID, TeamID: teamID})
}

// joinAndDrain joins and consumes the four-message grant bundle.
func (h *roomHarness) joinAndDrain(t *testing.T, conn *Connection, matchID, teamID string) {
	t.Helper()
	h.join(t, conn, matchID, teamID)
	expectType(t, conn, protocol.TypeReporterJoined)
	expectType(t, conn, protocol.TypeMatchState)
	expectType(t, conn, protocol.TypeActiveReporters)
	expectType(t, conn, protocol.TypePlayerShifts)
}

func recvEnvelope(t *testing.T, conn *Connection) protocol.Envelope {
	t.Helper()
	select {
	case data := <-conn.Send:
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for broadcast")
		return protocol.Envelope{}
	}
}

func expectType(t *testing.T, conn *Connection, want protocol.MessageType) protocol.Envelope {
	t.Helper()
	env := recvEnvelope(t, conn)
	if env.Type != want {
		t.Fatalf("expected %s, got %s", want, env.Type)
	}
	return env
}

func expectSilence(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case data := <-conn.Send:
		var env protocol.Envelope
		_ = json.Unmarshal(data, &env)
		t.Fatalf("unexpected %s broadcast", env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func decodeAs[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	payload, err := protocol.DecodePayload(&env)
	if err != nil {
		t.Fatalf("decode %s payload: %v", env.Type, err)
	}
	typed, ok := payload.(T)
	if !ok {
		t.Fatalf("expected %T, got %T", typed, payload)
	}
	return typed
}

func TestJoinDeliversGrantBundle(t *testing.T) {
	h := newRoomHarness(t)
	conn := h.connect("u1", "Alice")

	h.join(t, conn, "m1", "t1")

	// Room-wide announcement first, then the joiner's private sync
	// bundle, in one deterministic order.
	joined := decodeAs[protocol.ReporterJoinedPayload](t, expectType(t, conn, protocol.TypeReporterJoined))
	if joined.UserID != "u1" || joined.Username != "Alice" || joined.TeamID != "t1" {
		t.Fatalf("unexpected join announcement: %+v", joined)
	}
	if joined.JoinedAt.IsZero() {
		t.Fatalf("expected join timestamp")
	}

	st := decodeAs[state.MatchState](t, expectType(t, conn, protocol.TypeMatchState))
	if st.MatchID != "m1" || st.HomeScore != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", st)
	}

	roster := decodeAs[protocol.ActiveReportersPayload](t, expectType(t, conn, protocol.TypeActiveReporters))
	if len(roster.Reporters) != 1 || roster.Reporters[0].UserID != "u1" {
		t.Fatalf("unexpected roster: %+v", roster.Reporters)
	}

	expectType(t, conn, protocol.TypePlayerShifts)
	expectSilence(t, conn)
}

func TestJoinAnnouncedToExistingReporters(t *testing.T) {
	h := newRoomHarness(t)
	alice := h.connect("u1", "Alice")
	bob := h.connect("u2", "Bob")

	h.joinAndDrain(t, alice, "m1", "t1")

	h.join(t, bob, "m1", "t2")

	// Alice sees only the announcement; the sync bundle goes to Bob.
	joined := decodeAs[protocol.ReporterJoinedPayload](t, expectType(t, alice, protocol.TypeReporterJoined))
	if joined.UserID != "u2" {
		t.Fatalf("expected announcement for u2, got %+v", joined)
	}
	expectSilence(t, alice)

	expectType(t, bob, protocol.TypeReporterJoined)
	expectType(t, bob, protocol.TypeMatchState)
	roster := decodeAs[protocol.ActiveReportersPayload](t, expectType(t, bob, protocol.TypeActiveReporters))
	if len(roster.Reporters) != 2 {
		t.Fatalf("expected 2 reporters in roster, got %d", len(roster.Reporters))
	}
	expectType(t, bob, protocol.TypePlayerShifts)
}

func TestScoreUpdateBroadcastsToRoom(t *testing.T) {
	h := newRoomHarness(t)
	alice := h.connect("u1", "Alice")
	bob := h.connect("u2", "Bob")
	h.joinAndDrain(t, alice, "m1", "t1")
	h.joinAndDrain(t, bob, "m1", "t2")
	expectType(t, alice, protocol.TypeReporterJoined) // bob's announcement

	h.command(t, alice, protocol.TypeUpdateScore, "m1", protocol.UpdateScorePayload{MatchID: "m1", HomeScore: 1, AwayScore: 0})

	for _, conn := range []*Connection{alice, bob} {
		score := decodeAs[protocol.ScoreUpdatedPayload](t, expectType(t, conn, protocol.TypeScoreUpdated))
		if score.HomeScore != 1 || score.AwayScore != 0 || score.UpdatedBy != "u1" || score.UpdatedByName != "Alice" {
			t.Fatalf("unexpected score broadcast: %+v", score)
		}
	}

	if h.sink.countOf(protocol.TypeScoreUpdated) != 1 {
		t.Fatalf("expected score mutation published, got %v", h.sink.types())
	}
}

func TestGoalBumpsScoreForSeededTeams(t *testing.T) {
	h := newRoomHarness(t)
	if _, err := h.rm.EnsureMatch("m1", MatchSeed{HomeTeamID: "home", AwayTeamID: "away"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "home")

	h.command(t, conn, protocol.TypeAddEvent, "m1", protocol.AddEventPayload{
		MatchID: "m1",
		Event:   protocol.EventDescriptor{EventType: state.EventTypeGoal, TeamID: "home", PlayerName: "Alma"},
	})

	added := decodeAs[protocol.EventAddedPayload](t, expectType(t, conn, protocol.TypeEventAdded))
	if added.Event.ID == "" {
		t.Fatalf("expected server-minted event id")
	}
	if added.Event.EventType != state.EventTypeGoal || added.ReportedBy != "u1" {
		t.Fatalf("unexpected event broadcast: %+v", added)
	}

	score := decodeAs[protocol.ScoreUpdatedPayload](t, expectType(t, conn, protocol.TypeScoreUpdated))
	if score.HomeScore != 1 || score.AwayScore != 0 {
		t.Fatalf("expected goal to bump home score, got %d-%d", score.HomeScore, score.AwayScore)
	}

	st, _, _, err := h.rm.Snapshot("m1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if st.HomeScore != 1 || len(st.Events) != 1 {
		t.Fatalf("unexpected room state: %+v", st)
	}
}

func TestGoalForUnseededMatchLeavesScoreAlone(t *testing.T) {
	h := newRoomHarness(t)
	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "t1")

	h.command(t, conn, protocol.TypeAddEvent, "m1", protocol.AddEventPayload{
		MatchID: "m1",
		Event:   protocol.EventDescriptor{EventType: state.EventTypeGoal, TeamID: "t1"},
	})

	expectType(t, conn, protocol.TypeEventAdded)
	expectSilence(t, conn) // no automatic score change

	st, _, _, _ := h.rm.Snapshot("m1")
	if st.HomeScore != 0 || st.AwayScore != 0 {
		t.Fatalf("expected score unchanged, got %d-%d", st.HomeScore, st.AwayScore)
	}
}

func TestEventDefaultsMinuteAndPeriod(t *testing.T) {
	h := newRoomHarness(t)
	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "t1")

	h.command(t, conn, protocol.TypeUpdateTimer, "m1", protocol.UpdateTimerPayload{
		MatchID: "m1", ElapsedSeconds: 600, IsRunning: true, Period: "2",
	})
	expectType(t, conn, protocol.TypeTimerUpdated)

	h.command(t, conn, protocol.TypeAddEvent, "m1", protocol.AddEventPayload{
		MatchID: "m1",
		Event:   protocol.EventDescriptor{EventType: state.EventTypeYellowCard, TeamID: "t1"},
	})

	added := decodeAs[protocol.EventAddedPayload](t, expectType(t, conn, protocol.TypeEventAdded))
	if added.Event.Minute != 11 {
		t.Fatalf("expected minute derived from clock, got %d", added.Event.Minute)
	}
	if added.Event.Period != "2" {
		t.Fatalf("expected period carried from match state, got %q", added.Event.Period)
	}
}

func TestShiftBroadcastScopedToTeam(t *testing.T) {
	h := newRoomHarness(t)
	alice := h.connect("u1", "Alice")
	bob := h.connect("u2", "Bob")
	h.joinAndDrain(t, alice, "m1", "t1")
	h.joinAndDrain(t, bob, "m1", "t2")
	expectType(t, alice, protocol.TypeReporterJoined)

	h.command(t, alice, protocol.TypeUpdatePlayerShift, "m1", protocol.UpdatePlayerShiftPayload{
		MatchID: "m1", PlayerID: "p1", PlayerName: "Alma", IsActive: true, TeamID: "t1",
	})

	shift := decodeAs[protocol.PlayerShiftUpdatedPayload](t, expectType(t, alice, protocol.TypePlayerShiftUpdated))
	if shift.PlayerID != "p1" || !shift.IsActive || shift.UpdatedBy != "u1" {
		t.Fatalf("unexpected shift broadcast: %+v", shift)
	}
	// The opposing bench never sees it.
	expectSilence(t, bob)

	if h.sink.countOf(protocol.TypePlayerShiftUpdated) != 1 {
		t.Fatalf("expected shift mutation published")
	}
}

func TestSubmitReportFirstWins(t *testing.T) {
	h := newRoomHarness(t)
	alice := h.connect("u1", "Alice")
	bob := h.connect("u2", "Bob")
	h.joinAndDrain(t, alice, "m1", "t1")
	h.joinAndDrain(t, bob, "m1", "t2")
	expectType(t, alice, protocol.TypeReporterJoined)

	h.command(t, alice, protocol.TypeSubmitReport, "m1", protocol.SubmitReportPayload{MatchID: "m1"})

	for _, conn := range []*Connection{alice, bob} {
		submitted := decodeAs[protocol.ReportSubmittedPayload](t, expectType(t, conn, protocol.TypeReportSubmitted))
		if submitted.SubmittedBy != "u1" || submitted.SubmittedByName != "Alice" {
			t.Fatalf("unexpected submission broadcast: %+v", submitted)
		}
	}

	// The accepted submission publishes both the broadcast and the
	// original command, which carries the report body downstream.
	if h.sink.countOf(protocol.TypeReportSubmitted) != 1 || h.sink.countOf(protocol.TypeSubmitReport) != 1 {
		t.Fatalf("expected submission published, got %v", h.sink.types())
	}

	// The second submission bounces, and only the offender hears it.
	h.command(t, bob, protocol.TypeSubmitReport, "m1", protocol.SubmitReportPayload{MatchID: "m1"})
	rejection := decodeAs[protocol.ReportSubmissionErrorPayload](t, expectType(t, bob, protocol.TypeReportSubmissionError))
	if rejection.Message != "Report has already been submitted for this match" {
		t.Fatalf("unexpected rejection message: %q", rejection.Message)
	}
	expectSilence(t, alice)

	if got := h.metrics.rejections("submit_report/report_submitted"); got != 1 {
		t.Fatalf("expected 1 rejected submission recorded, got %d", got)
	}
}

func TestMutatingCommandsRejectedAfterSubmission(t *testing.T) {
	h := newRoomHarness(t)
	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "t1")
	h.command(t, conn, protocol.TypeSubmitReport, "m1", protocol.SubmitReportPayload{MatchID: "m1"})
	expectType(t, conn, protocol.TypeReportSubmitted)

	h.command(t, conn, protocol.TypeUpdateScore, "m1", protocol.UpdateScorePayload{MatchID: "m1", HomeScore: 5})
	expectType(t, conn, protocol.TypeReportSubmissionError)

	st, _, _, _ := h.rm.Snapshot("m1")
	if st.HomeScore != 0 {
		t.Fatalf("expected score frozen after submission, got %d", st.HomeScore)
	}
	if h.sink.countOf(protocol.TypeScoreUpdated) != 0 {
		t.Fatalf("expected no score mutation published after submission")
	}

	// Typing is passive and still relays.
	h.command(t, conn, protocol.TypeTyping, "m1", protocol.TypingPayload{MatchID: "m1", IsTyping: true})
	expectSilence(t, conn) // relay excludes the sender; no error either
}

func TestTypingRelayExcludesSender(t *testing.T) {
	h := newRoomHarness(t)
	alice := h.connect("u1", "Alice")
	bob := h.connect("u2", "Bob")
	h.joinAndDrain(t, alice, "m1", "t1")
	h.joinAndDrain(t, bob, "m1", "t1")
	expectType(t, alice, protocol.TypeReporterJoined)

	h.command(t, alice, protocol.TypeTyping, "m1", protocol.TypingPayload{MatchID: "m1", IsTyping: true})

	typing := decodeAs[protocol.ReporterTypingPayload](t, expectType(t, bob, protocol.TypeReporterTyping))
	if typing.UserID != "u1" || !typing.IsTyping {
		t.Fatalf("unexpected typing relay: %+v", typing)
	}
	expectSilence(t, alice)

	// Typing never reaches the event sink; it is ephemeral.
	if h.sink.countOf(protocol.TypeReporterTyping) != 0 {
		t.Fatalf("expected typing unpublished")
	}
}

func TestDisconnectRemovesReporterFromRoom(t *testing.T) {
	h := newRoomHarness(t)
	alice := h.connect("u1", "Alice")
	bob := h.connect("u2", "Bob")
	h.joinAndDrain(t, alice, "m1", "t1")
	h.joinAndDrain(t, bob, "m1", "t2")
	expectType(t, alice, protocol.TypeReporterJoined)

	h.cm.unregisterConnection(alice)

	left := decodeAs[protocol.ReporterLeftPayload](t, expectType(t, bob, protocol.TypeReporterLeft))
	if left.UserID != "u1" || left.TeamID != "t1" {
		t.Fatalf("unexpected departure broadcast: %+v", left)
	}

	_, reporters, _, err := h.rm.Snapshot("m1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(reporters) != 1 || reporters[0].UserID != "u2" {
		t.Fatalf("expected only u2 left, got %+v", reporters)
	}
}

func TestLeaveMatchBroadcastsDeparture(t *testing.T) {
	h := newRoomHarness(t)
	alice := h.connect("u1", "Alice")
	bob := h.connect("u2", "Bob")
	h.joinAndDrain(t, alice, "m1", "t1")
	h.joinAndDrain(t, bob, "m1", "t2")
	expectType(t, alice, protocol.TypeReporterJoined)

	h.command(t, alice, protocol.TypeLeaveMatch, "m1", protocol.LeaveMatchPayload{MatchID: "m1"})

	left := decodeAs[protocol.ReporterLeftPayload](t, expectType(t, bob, protocol.TypeReporterLeft))
	if left.UserID != "u1" {
		t.Fatalf("expected u1 departure, got %+v", left)
	}

	// The departed reporter no longer receives room traffic.
	h.command(t, bob, protocol.TypeUpdateScore, "m1", protocol.UpdateScorePayload{MatchID: "m1", HomeScore: 1})
	expectType(t, bob, protocol.TypeScoreUpdated)
	expectSilence(t, alice)
}

func TestRetractGoalRestoresScore(t *testing.T) {
	h := newRoomHarness(t)
	if _, err := h.rm.EnsureMatch("m1", MatchSeed{HomeTeamID: "home", AwayTeamID: "away"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "home")

	h.command(t, conn, protocol.TypeAddEvent, "m1", protocol.AddEventPayload{
		MatchID: "m1",
		Event:   protocol.EventDescriptor{EventType: state.EventTypeGoal, TeamID: "home"},
	})
	added := decodeAs[protocol.EventAddedPayload](t, expectType(t, conn, protocol.TypeEventAdded))
	expectType(t, conn, protocol.TypeScoreUpdated)

	ev, err := h.rm.RetractEvent("m1", added.Event.ID)
	if err != nil {
		t.Fatalf("retract: %v", err)
	}
	if ev.ID != added.Event.ID {
		t.Fatalf("expected retracted event returned, got %+v", ev)
	}

	// Clients resynchronize from a full snapshot with the bump undone.
	st := decodeAs[state.MatchState](t, expectType(t, conn, protocol.TypeMatchState))
	if st.HomeScore != 0 || len(st.Events) != 0 {
		t.Fatalf("expected clean snapshot after retraction, got %+v", st)
	}

	if _, err := h.rm.RetractEvent("m1", added.Event.ID); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound on double retraction, got %v", err)
	}
	if _, err := h.rm.RetractEvent("ghost", "x"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestRetractEventRejectedAfterSubmission(t *testing.T) {
	h := newRoomHarness(t)
	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "t1")

	h.command(t, conn, protocol.TypeAddEvent, "m1", protocol.AddEventPayload{
		MatchID: "m1",
		Event:   protocol.EventDescriptor{EventType: state.EventTypeRedCard, TeamID: "t1"},
	})
	added := decodeAs[protocol.EventAddedPayload](t, expectType(t, conn, protocol.TypeEventAdded))

	h.command(t, conn, protocol.TypeSubmitReport, "m1", protocol.SubmitReportPayload{MatchID: "m1"})
	expectType(t, conn, protocol.TypeReportSubmitted)

	if _, err := h.rm.RetractEvent("m1", added.Event.ID); !errors.Is(err, ErrReportAlreadySubmitted) {
		t.Fatalf("expected ErrReportAlreadySubmitted, got %v", err)
	}
}

func TestEnsureMatchMergesSeed(t *testing.T) {
	h := newRoomHarness(t)

	st, err := h.rm.EnsureMatch("m1", MatchSeed{HomeTeamID: "home", Period: "1"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if st.HomeTeamID != "home" || st.Period != "1" {
		t.Fatalf("unexpected seeded state: %+v", st)
	}

	two := 2
	st, err = h.rm.EnsureMatch("m1", MatchSeed{AwayTeamID: "away", HomeScore: &two})
	if err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	if st.HomeTeamID != "home" || st.AwayTeamID != "away" || st.HomeScore != 2 || st.Period != "1" {
		t.Fatalf("expected merged seed, got %+v", st)
	}

	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "home")
	h.command(t, conn, protocol.TypeSubmitReport, "m1", protocol.SubmitReportPayload{MatchID: "m1"})
	expectType(t, conn, protocol.TypeReportSubmitted)

	if _, err := h.rm.EnsureMatch("m1", MatchSeed{Period: "2"}); !errors.Is(err, ErrReportAlreadySubmitted) {
		t.Fatalf("expected ErrReportAlreadySubmitted, got %v", err)
	}
}

func TestTimerUpdateKeepsPeriodWhenOmitted(t *testing.T) {
	h := newRoomHarness(t)
	if _, err := h.rm.EnsureMatch("m1", MatchSeed{Period: "1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "t1")

	h.command(t, conn, protocol.TypeUpdateTimer, "m1", protocol.UpdateTimerPayload{
		MatchID: "m1", ElapsedSeconds: 30, IsRunning: true,
	})

	timer := decodeAs[protocol.TimerUpdatedPayload](t, expectType(t, conn, protocol.TypeTimerUpdated))
	if timer.Period != "1" {
		t.Fatalf("expected period carried through, got %q", timer.Period)
	}
	if timer.ElapsedSeconds != 30 || !timer.IsRunning {
		t.Fatalf("unexpected timer broadcast: %+v", timer)
	}
}

func TestInvalidCommandsDropped(t *testing.T) {
	h := newRoomHarness(t)
	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "t1")

	// Fails validation: negative score.
	h.command(t, conn, protocol.TypeUpdateScore, "m1", protocol.UpdateScorePayload{MatchID: "m1", HomeScore: -1})
	expectSilence(t, conn)
	if got := h.metrics.rejections("update_score/invalid"); got != 1 {
		t.Fatalf("expected invalid update_score recorded, got %d", got)
	}

	// Fails decoding: wrong payload shape.
	env := protocol.Envelope{
		ID:      uuid.New().String(),
		Type:    protocol.TypeUpdateScore,
		MatchID: "m1",
		Data:    json.RawMessage(`{"home_score":"two"}`),
	}
	h.rm.HandleCommand(conn, env)
	expectSilence(t, conn)
	if got := h.metrics.rejections("update_score/malformed"); got != 1 {
		t.Fatalf("expected malformed command recorded, got %d", got)
	}

	// A broadcast type arriving as a command is refused.
	h.command(t, conn, protocol.TypeScoreUpdated, "m1", protocol.ScoreUpdatedPayload{HomeScore: 3})
	expectSilence(t, conn)
	if got := h.metrics.rejections("score_updated/not_a_command"); got != 1 {
		t.Fatalf("expected non-command recorded, got %d", got)
	}

	st, _, _, _ := h.rm.Snapshot("m1")
	if st.HomeScore != 0 {
		t.Fatalf("expected state untouched by dropped commands, got %+v", st)
	}
}

func TestActiveMatchesSummaries(t *testing.T) {
	h := newRoomHarness(t)
	if _, err := h.rm.EnsureMatch("m2", MatchSeed{Period: "2"}); err != nil {
		t.Fatalf("seed m2: %v", err)
	}
	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "t1")

	matches := h.rm.ActiveMatches()
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].MatchID != "m1" || matches[1].MatchID != "m2" {
		t.Fatalf("expected matches ordered by id, got %+v", matches)
	}
	if matches[0].Reporters != 1 || matches[1].Reporters != 0 {
		t.Fatalf("unexpected reporter counts: %+v", matches)
	}
	if matches[1].Period != "2" {
		t.Fatalf("expected seeded period on summary, got %+v", matches[1])
	}
	if h.rm.RoomCount() != 2 {
		t.Fatalf("expected 2 rooms, got %d", h.rm.RoomCount())
	}
}

func TestDuplicateJoinKeepsSingleRosterEntry(t *testing.T) {
	h := newRoomHarness(t)
	conn := h.connect("u1", "Alice")
	h.joinAndDrain(t, conn, "m1", "t1")

	// A rejoin, as after a reconnect, replays the bundle but never
	// duplicates presence.
	h.joinAndDrain(t, conn, "m1", "t1")

	_, reporters, _, err := h.rm.Snapshot("m1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(reporters) != 1 {
		t.Fatalf("expected single roster entry, got %+v", reporters)
	}
}
