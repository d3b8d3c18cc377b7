// Package notify fans out human-readable session feedback to a UI
// collaborator, such as a toast renderer. Every call is fire-and-forget
// and must never block the session's handler thread.
package notify

import "github.com/rs/zerolog"

// Severity classifies a notification for rendering.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notifier receives one message per user-visible state transition or
// error. Implementations must not block.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string)
}

// Func adapts a plain function to the Notifier interface.
type Func func(severity Severity, msg string)

func (f Func) Info(msg string)    { f(SeverityInfo, msg) }
func (f Func) Success(msg string) { f(SeveritySuccess, msg) }
func (f Func) Error(msg string)   { f(SeverityError, msg) }

// LogNotifier writes notifications to a zerolog logger. It stands in
// for the toast renderer in headless callers like the observer CLI.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier returns a notifier writing to logger with a component
// field attached.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Info(msg string)    { n.log.Info().Msg(msg) }
func (n *LogNotifier) Success(msg string) { n.log.Info().Str("severity", string(SeveritySuccess)).Msg(msg) }
func (n *LogNotifier) Error(msg string)   { n.log.Error().Msg(msg) }

// Noop discards every notification. It is the default when no sink is
// wired.
type Noop struct{}

func (Noop) Info(string)    {}
func (Noop) Success(string) {}
func (Noop) Error(string)   {}
