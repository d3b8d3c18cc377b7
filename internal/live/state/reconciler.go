package state

import "sort"

// Reconciler holds one copy of match state and applies changes to it
// last-write-wins: every apply is a pure overwrite of the corresponding
// fields, never an increment relative to the held state, so replaying a
// duplicate message leaves the copy unchanged. The client session uses
// it as the reconciled cache of the last-known-good server state; the
// room service uses it as the authoritative copy itself. The only
// locally driven mutation is Tick, a visual aid that the next
// authoritative timer value always supersedes.
//
// Reconciler does no locking of its own; each owner serializes access.
type Reconciler struct {
	state    MatchState
	shifts   map[string]PlayerShift
	eventIDs map[string]struct{}
}

// NewReconciler returns a reconciler with an empty cache for matchID.
func NewReconciler(matchID string) *Reconciler {
	return &Reconciler{
		state:    MatchState{MatchID: matchID},
		shifts:   make(map[string]PlayerShift),
		eventIDs: make(map[string]struct{}),
	}
}

// ApplyMatchState replaces the whole cache with a full snapshot. Stale
// local state never survives a snapshot; this is what makes a rejoin
// after reconnect a true resync.
func (r *Reconciler) ApplyMatchState(s MatchState) {
	r.state = s.Clone()
	r.eventIDs = make(map[string]struct{}, len(s.Events))
	for _, ev := range s.Events {
		r.eventIDs[ev.ID] = struct{}{}
	}
}

// ApplyScore overwrites both scores. A score lower than the cached one
// is accepted as-is: corrections are a valid server action.
func (r *Reconciler) ApplyScore(home, away int) {
	r.state.HomeScore = home
	r.state.AwayScore = away
}

// ApplyTimer snaps the elapsed clock and running flag to the server
// values, discarding any locally ticked progress. An empty period leaves
// the current period unchanged.
func (r *Reconciler) ApplyTimer(elapsedSeconds int, running bool, period string) {
	r.state.ElapsedSeconds = elapsedSeconds
	r.state.TimerRunning = running
	if period != "" {
		r.state.Period = period
	}
}

// ApplyEvent appends one event to the log, deduplicating by event ID so
// an at-least-once redelivery cannot double-append. It reports whether
// the event was new.
func (r *Reconciler) ApplyEvent(ev MatchEvent) bool {
	if ev.ID != "" {
		if _, seen := r.eventIDs[ev.ID]; seen {
			return false
		}
		r.eventIDs[ev.ID] = struct{}{}
	}
	r.state.Events = append(r.state.Events, ev)
	return true
}

// RemoveEvent deletes one event from the log by ID and returns it.
// Removing an unknown ID is a no-op.
func (r *Reconciler) RemoveEvent(eventID string) (MatchEvent, bool) {
	if eventID == "" {
		return MatchEvent{}, false
	}
	for i, ev := range r.state.Events {
		if ev.ID == eventID {
			r.state.Events = append(r.state.Events[:i], r.state.Events[i+1:]...)
			delete(r.eventIDs, eventID)
			return ev, true
		}
	}
	return MatchEvent{}, false
}

// ApplyShifts replaces the whole shift list with a snapshot.
func (r *Reconciler) ApplyShifts(shifts []PlayerShift) {
	r.shifts = make(map[string]PlayerShift, len(shifts))
	for _, s := range shifts {
		r.shifts[s.PlayerID] = s
	}
}

// ApplyShift upserts one shift entry, last writer wins.
func (r *Reconciler) ApplyShift(s PlayerShift) {
	r.shifts[s.PlayerID] = s
}

// ApplyReportSubmitted sets the terminal flag. There is no un-submit
// path; the flag survives for the remainder of the session.
func (r *Reconciler) ApplyReportSubmitted(byUserID string) {
	r.state.ReportSubmitted = true
	r.state.ReportSubmittedBy = byUserID
	r.state.TimerRunning = false
}

// Tick advances the elapsed clock by one second while the timer runs.
// It exists purely for UI smoothness between broadcasts and returns the
// new elapsed value.
func (r *Reconciler) Tick() int {
	if r.state.TimerRunning {
		r.state.ElapsedSeconds++
	}
	return r.state.ElapsedSeconds
}

// State returns a deep copy of the cached match state.
func (r *Reconciler) State() MatchState {
	return r.state.Clone()
}

// Shift returns the cached shift for playerID.
func (r *Reconciler) Shift(playerID string) (PlayerShift, bool) {
	s, ok := r.shifts[playerID]
	return s, ok
}

// Shifts returns the cached shift list sorted by player ID.
func (r *Reconciler) Shifts() []PlayerShift {
	out := make([]PlayerShift, 0, len(r.shifts))
	for _, s := range r.shifts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// EventsNewestFirst returns the event log in display order, most recent
// timestamp first. The underlying log keeps arrival order; the sort is
// stable so same-timestamp events keep their arrival order too.
func (r *Reconciler) EventsNewestFirst() []MatchEvent {
	out := make([]MatchEvent, len(r.state.Events))
	copy(out, r.state.Events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}
