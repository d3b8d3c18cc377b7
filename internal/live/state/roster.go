package state

import (
	"sort"
	"time"
)

// Roster is the set of reporters currently joined to a match room, keyed
// by user ID. Add and Remove are idempotent so duplicate join or leave
// notifications cannot corrupt the set.
//
// Roster does no locking of its own; the session and the room each
// mutate their roster from a single writer.
type Roster struct {
	reporters map[string]ReporterPresence
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{reporters: make(map[string]ReporterPresence)}
}

// Add inserts or refreshes a presence entry and reports whether the
// reporter was newly added. A refresh keeps the original join time when
// the incoming entry does not carry one.
func (r *Roster) Add(p ReporterPresence) bool {
	prev, exists := r.reporters[p.UserID]
	if exists && p.JoinedAt.IsZero() {
		p.JoinedAt = prev.JoinedAt
	}
	r.reporters[p.UserID] = p
	return !exists
}

// Remove deletes the entry for userID and reports whether it was present.
func (r *Roster) Remove(userID string) (ReporterPresence, bool) {
	p, exists := r.reporters[userID]
	if exists {
		delete(r.reporters, userID)
	}
	return p, exists
}

// Get returns the entry for userID.
func (r *Roster) Get(userID string) (ReporterPresence, bool) {
	p, ok := r.reporters[userID]
	return p, ok
}

// Touch refreshes the last-active stamp for userID and reports whether
// the reporter is in the roster.
func (r *Roster) Touch(userID string, at time.Time) bool {
	existing, ok := r.reporters[userID]
	if !ok {
		return false
	}
	existing.LastActive = at
	r.reporters[userID] = existing
	return true
}

// Replace swaps the whole roster for the given snapshot.
func (r *Roster) Replace(reporters []ReporterPresence) {
	r.reporters = make(map[string]ReporterPresence, len(reporters))
	for _, p := range reporters {
		r.reporters[p.UserID] = p
	}
}

// Snapshot returns a copy of the roster sorted by user ID.
func (r *Roster) Snapshot() []ReporterPresence {
	out := make([]ReporterPresence, 0, len(r.reporters))
	for _, p := range r.reporters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of reporters in the roster.
func (r *Roster) Len() int {
	return len(r.reporters)
}
