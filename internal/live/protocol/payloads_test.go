package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pitchside/livematch/internal/live/state"
)

func TestDecodePayloadCommand(t *testing.T) {
	env, err := NewEnvelope(TypeJoinMatch, "m1", JoinMatchPayload{MatchID: "m1", TeamID: "t1", TeamName: "Rovers"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}

	payload, err := DecodePayload(&env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p, ok := payload.(JoinMatchPayload)
	if !ok {
		t.Fatalf("expected JoinMatchPayload, got %T", payload)
	}
	if p.TeamID != "t1" || p.TeamName != "Rovers" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodePayloadBroadcast(t *testing.T) {
	env, err := NewEnvelope(TypeMatchState, "m1", state.MatchState{
		MatchID:   "m1",
		HomeScore: 2,
		Events:    []state.MatchEvent{{ID: "ev-1", EventType: state.EventTypeGoal, TeamID: "t1"}},
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}

	payload, err := DecodePayload(&env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	st, ok := payload.(state.MatchState)
	if !ok {
		t.Fatalf("expected MatchState, got %T", payload)
	}
	if st.HomeScore != 2 || len(st.Events) != 1 || st.Events[0].ID != "ev-1" {
		t.Fatalf("unexpected snapshot: %+v", st)
	}
}

func TestDecodePayloadUnknownType(t *testing.T) {
	env := Envelope{Type: "warp_drive", MatchID: "m1"}
	if _, err := DecodePayload(&env); err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestDecodePayloadEmptyData(t *testing.T) {
	// leave_match legitimately travels with no payload body.
	env := Envelope{Type: TypeLeaveMatch, MatchID: "m1"}
	payload, err := DecodePayload(&env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := payload.(LeaveMatchPayload); !ok {
		t.Fatalf("expected zero LeaveMatchPayload, got %T", payload)
	}
}

func TestDecodePayloadMalformedData(t *testing.T) {
	env := Envelope{Type: TypeUpdateScore, MatchID: "m1", Data: json.RawMessage(`{"home_score":"two"}`)}
	if _, err := DecodePayload(&env); err == nil {
		t.Fatalf("expected decode error for malformed payload")
	}
}

func TestPayloadValidation(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"join ok", (&JoinMatchPayload{MatchID: "m1", TeamID: "t1"}).Validate(), false},
		{"join missing team", (&JoinMatchPayload{MatchID: "m1"}).Validate(), true},
		{"score ok", (&UpdateScorePayload{MatchID: "m1", HomeScore: 0, AwayScore: 3}).Validate(), false},
		{"score negative", (&UpdateScorePayload{MatchID: "m1", HomeScore: -1}).Validate(), true},
		{"timer ok", (&UpdateTimerPayload{MatchID: "m1", ElapsedSeconds: 90}).Validate(), false},
		{"timer negative", (&UpdateTimerPayload{MatchID: "m1", ElapsedSeconds: -5}).Validate(), true},
		{"event ok", (&EventDescriptor{EventType: state.EventTypeGoal, TeamID: "t1"}).Validate(), false},
		{"event missing team", (&EventDescriptor{EventType: state.EventTypeGoal}).Validate(), true},
		{"shift ok", (&UpdatePlayerShiftPayload{MatchID: "m1", PlayerID: "p1", TeamID: "t1"}).Validate(), false},
		{"shift missing player", (&UpdatePlayerShiftPayload{MatchID: "m1", TeamID: "t1"}).Validate(), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.wantErr && tc.err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && tc.err != nil {
				t.Fatalf("unexpected error: %v", tc.err)
			}
		})
	}
}
