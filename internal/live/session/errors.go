package session

import "errors"

// ErrNotJoined is returned when a command is dispatched before the room
// join has completed. Commands are never queued; the caller must wait
// for the first match_state snapshot.
var ErrNotJoined = errors.New("not joined to a match room")

// ErrReportSubmitted is returned for any mutating command after the
// final report went out. The flag is terminal for the session.
var ErrReportSubmitted = errors.New("report already submitted")
