package state

import (
	"testing"
	"time"
)

func TestReconcilerAppliesScoreAsOverwrite(t *testing.T) {
	r := NewReconciler("m1")

	r.ApplyScore(2, 1)
	if st := r.State(); st.HomeScore != 2 || st.AwayScore != 1 {
		t.Fatalf("expected 2-1, got %d-%d", st.HomeScore, st.AwayScore)
	}

	// A correction downward is a valid server action and must be taken
	// as-is, not maxed against the cached value.
	r.ApplyScore(1, 1)
	if st := r.State(); st.HomeScore != 1 || st.AwayScore != 1 {
		t.Fatalf("expected correction to 1-1, got %d-%d", st.HomeScore, st.AwayScore)
	}
}

func TestReconcilerDuplicateEventAppliedOnce(t *testing.T) {
	r := NewReconciler("m1")
	ev := MatchEvent{ID: "ev-1", MatchID: "m1", EventType: EventTypeGoal, TeamID: "t1"}

	if !r.ApplyEvent(ev) {
		t.Fatalf("expected first apply to report new")
	}
	if r.ApplyEvent(ev) {
		t.Fatalf("expected duplicate apply to report seen")
	}
	if got := len(r.State().Events); got != 1 {
		t.Fatalf("expected 1 event after redelivery, got %d", got)
	}
}

func TestReconcilerTimerSnapDiscardsLocalTicks(t *testing.T) {
	r := NewReconciler("m1")
	r.ApplyTimer(600, true, "1")

	for i := 0; i < 5; i++ {
		r.Tick()
	}
	if got := r.State().ElapsedSeconds; got != 605 {
		t.Fatalf("expected locally ticked 605, got %d", got)
	}

	// The authoritative broadcast overwrites whatever the local tick
	// produced, even when it is behind.
	r.ApplyTimer(600, true, "")
	if got := r.State().ElapsedSeconds; got != 600 {
		t.Fatalf("expected snap back to 600, got %d", got)
	}
	if got := r.State().Period; got != "1" {
		t.Fatalf("expected empty period to leave %q, got %q", "1", got)
	}
}

func TestReconcilerTickOnlyWhileRunning(t *testing.T) {
	r := NewReconciler("m1")
	r.ApplyTimer(100, false, "")

	if got := r.Tick(); got != 100 {
		t.Fatalf("expected stopped timer to stay at 100, got %d", got)
	}

	r.ApplyTimer(100, true, "")
	if got := r.Tick(); got != 101 {
		t.Fatalf("expected running timer to advance to 101, got %d", got)
	}
}

func TestReconcilerSnapshotReplacesEverything(t *testing.T) {
	r := NewReconciler("m1")
	r.ApplyScore(3, 0)
	r.ApplyEvent(MatchEvent{ID: "stale", EventType: EventTypeGoal, TeamID: "t1"})

	snap := MatchState{
		MatchID:   "m1",
		HomeScore: 1,
		AwayScore: 1,
		Period:    "2",
		Events:    []MatchEvent{{ID: "kept", EventType: EventTypeYellowCard, TeamID: "t2"}},
	}
	r.ApplyMatchState(snap)

	st := r.State()
	if st.HomeScore != 1 || st.AwayScore != 1 || st.Period != "2" {
		t.Fatalf("expected snapshot state, got %+v", st)
	}
	if len(st.Events) != 1 || st.Events[0].ID != "kept" {
		t.Fatalf("expected stale events dropped, got %+v", st.Events)
	}

	// Dedup tracking follows the snapshot: an ID absent from it is new
	// again, an ID present in it is a duplicate.
	if !r.ApplyEvent(MatchEvent{ID: "stale", EventType: EventTypeGoal, TeamID: "t1"}) {
		t.Fatalf("expected event dropped by snapshot to apply as new")
	}
	if r.ApplyEvent(MatchEvent{ID: "kept", EventType: EventTypeYellowCard, TeamID: "t2"}) {
		t.Fatalf("expected event carried by snapshot to count as seen")
	}
}

func TestReconcilerRemoveEvent(t *testing.T) {
	r := NewReconciler("m1")
	r.ApplyEvent(MatchEvent{ID: "ev-1", EventType: EventTypeGoal, TeamID: "t1"})
	r.ApplyEvent(MatchEvent{ID: "ev-2", EventType: EventTypeRedCard, TeamID: "t2"})

	ev, ok := r.RemoveEvent("ev-1")
	if !ok || ev.EventType != EventTypeGoal {
		t.Fatalf("expected removed goal event, got %+v ok=%v", ev, ok)
	}
	if got := len(r.State().Events); got != 1 {
		t.Fatalf("expected 1 event left, got %d", got)
	}
	if _, ok := r.RemoveEvent("ev-1"); ok {
		t.Fatalf("expected second removal to miss")
	}
	// A retracted ID may legitimately reappear, e.g. a corrected re-add.
	if !r.ApplyEvent(MatchEvent{ID: "ev-1", EventType: EventTypeGoal, TeamID: "t1"}) {
		t.Fatalf("expected removed id to be appliable again")
	}
}

func TestReconcilerReportSubmittedStopsTimer(t *testing.T) {
	r := NewReconciler("m1")
	r.ApplyTimer(300, true, "")

	r.ApplyReportSubmitted("u1")

	st := r.State()
	if !st.ReportSubmitted || st.ReportSubmittedBy != "u1" {
		t.Fatalf("expected terminal flag by u1, got %+v", st)
	}
	if st.TimerRunning {
		t.Fatalf("expected timer stopped by submission")
	}
	if got := r.Tick(); got != 300 {
		t.Fatalf("expected tick to be inert after submission, got %d", got)
	}
}

func TestReconcilerShiftsUpsertAndSort(t *testing.T) {
	r := NewReconciler("m1")
	r.ApplyShifts([]PlayerShift{
		{PlayerID: "p2", PlayerName: "Beth", TeamID: "t1", IsActive: true},
		{PlayerID: "p1", PlayerName: "Alma", TeamID: "t1", IsActive: false},
	})

	r.ApplyShift(PlayerShift{PlayerID: "p1", PlayerName: "Alma", TeamID: "t1", IsActive: true})

	shifts := r.Shifts()
	if len(shifts) != 2 {
		t.Fatalf("expected 2 shifts, got %d", len(shifts))
	}
	if shifts[0].PlayerID != "p1" || shifts[1].PlayerID != "p2" {
		t.Fatalf("expected shifts sorted by player id, got %+v", shifts)
	}
	if !shifts[0].IsActive {
		t.Fatalf("expected upsert to flip p1 active")
	}

	sh, ok := r.Shift("p2")
	if !ok || sh.PlayerName != "Beth" {
		t.Fatalf("expected p2 lookup, got %+v ok=%v", sh, ok)
	}
}

func TestReconcilerEventsNewestFirst(t *testing.T) {
	r := NewReconciler("m1")
	base := time.Date(2025, 5, 1, 19, 0, 0, 0, time.UTC)
	r.ApplyEvent(MatchEvent{ID: "a", Timestamp: base})
	r.ApplyEvent(MatchEvent{ID: "b", Timestamp: base.Add(time.Minute)})
	r.ApplyEvent(MatchEvent{ID: "c", Timestamp: base.Add(time.Minute)})

	got := r.EventsNewestFirst()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	// b and c share a timestamp; the sort is stable, so arrival order
	// holds between them and both precede the older a.
	if got[0].ID != "b" || got[1].ID != "c" || got[2].ID != "a" {
		t.Fatalf("expected order b,c,a got %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestReconcilerStateIsACopy(t *testing.T) {
	r := NewReconciler("m1")
	r.ApplyEvent(MatchEvent{ID: "ev-1", EventType: EventTypeGoal, TeamID: "t1"})

	st := r.State()
	st.Events[0].EventType = "TAMPERED"
	st.HomeScore = 99

	fresh := r.State()
	if fresh.Events[0].EventType != EventTypeGoal {
		t.Fatalf("expected internal event log untouched, got %q", fresh.Events[0].EventType)
	}
	if fresh.HomeScore != 0 {
		t.Fatalf("expected internal score untouched, got %d", fresh.HomeScore)
	}
}
