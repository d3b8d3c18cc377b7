package gateway

import "errors"

var (
	// ErrMatchNotFound indicates no room state exists for the match ID.
	ErrMatchNotFound = errors.New("match not found")

	// ErrEventNotFound indicates the event ID is not in the match log.
	ErrEventNotFound = errors.New("event not found")

	// ErrReportAlreadySubmitted indicates the match report is final and
	// the room no longer accepts mutating commands.
	ErrReportAlreadySubmitted = errors.New("report already submitted")
)
