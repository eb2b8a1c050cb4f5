// Package console is the operator-facing text UI: it renders received
// entries and forwards typed command lines to the dispatcher.
package console

import (
	"fmt"
	"time"
)

// Severity ranks an entry for display.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Entry is one line of console history.
type Entry struct {
	Time     time.Time
	Title    string
	Text     string
	Severity Severity
}

// Sink receives entries for display.
type Sink interface {
	OnReceivedEntry(title, text string, sev Severity)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(title, text string, sev Severity)

func (f SinkFunc) OnReceivedEntry(title, text string, sev Severity) { f(title, text, sev) }

// Multi fans an entry out to every non-nil sink, in order.
type Multi []Sink

func (m Multi) OnReceivedEntry(title, text string, sev Severity) {
	for _, s := range m {
		if s != nil {
			s.OnReceivedEntry(title, text, sev)
		}
	}
}
