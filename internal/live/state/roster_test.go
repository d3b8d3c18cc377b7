package state

import (
	"testing"
	"time"
)

func TestRosterAddIsIdempotent(t *testing.T) {
	r := NewRoster()
	joined := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)

	if !r.Add(ReporterPresence{UserID: "u1", Username: "Alice", JoinedAt: joined}) {
		t.Fatalf("expected first add to report new")
	}
	// A rejoin refreshes the entry without growing the roster, and keeps
	// the original join time when the refresh does not carry one.
	if r.Add(ReporterPresence{UserID: "u1", Username: "Alice A."}) {
		t.Fatalf("expected re-add to report existing")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 reporter, got %d", r.Len())
	}

	p, ok := r.Get("u1")
	if !ok {
		t.Fatalf("expected u1 present")
	}
	if p.Username != "Alice A." {
		t.Fatalf("expected refreshed username, got %q", p.Username)
	}
	if !p.JoinedAt.Equal(joined) {
		t.Fatalf("expected original join time kept, got %v", p.JoinedAt)
	}
}

func TestRosterRemove(t *testing.T) {
	r := NewRoster()
	r.Add(ReporterPresence{UserID: "u1", Username: "Alice", TeamID: "t1"})

	prev, removed := r.Remove("u1")
	if !removed || prev.TeamID != "t1" {
		t.Fatalf("expected removal to return prior entry, got %+v removed=%v", prev, removed)
	}
	if _, removed := r.Remove("u1"); removed {
		t.Fatalf("expected second remove to be a no-op")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty roster, got %d", r.Len())
	}
}

func TestRosterTouch(t *testing.T) {
	r := NewRoster()
	r.Add(ReporterPresence{UserID: "u1"})
	at := time.Date(2025, 5, 1, 19, 30, 0, 0, time.UTC)

	if !r.Touch("u1", at) {
		t.Fatalf("expected touch to find u1")
	}
	p, _ := r.Get("u1")
	if !p.LastActive.Equal(at) {
		t.Fatalf("expected last active %v, got %v", at, p.LastActive)
	}

	if r.Touch("ghost", at) {
		t.Fatalf("expected touch on absent reporter to report false")
	}
}

func TestRosterSnapshotSortedByUserID(t *testing.T) {
	r := NewRoster()
	r.Add(ReporterPresence{UserID: "u3"})
	r.Add(ReporterPresence{UserID: "u1"})
	r.Add(ReporterPresence{UserID: "u2"})

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	for i, want := range []string{"u1", "u2", "u3"} {
		if snap[i].UserID != want {
			t.Fatalf("expected %s at %d, got %s", want, i, snap[i].UserID)
		}
	}
}

func TestRosterReplace(t *testing.T) {
	r := NewRoster()
	r.Add(ReporterPresence{UserID: "old"})

	r.Replace([]ReporterPresence{{UserID: "u1"}, {UserID: "u2"}})

	if r.Len() != 2 {
		t.Fatalf("expected 2 reporters after replace, got %d", r.Len())
	}
	if _, ok := r.Get("old"); ok {
		t.Fatalf("expected pre-replace entry gone")
	}
}
