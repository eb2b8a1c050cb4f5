// Package monitor drains the inbound queue and turns each received block into
// one console entry.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/zynqctl/internal/console"
	"github.com/1ureka/zynqctl/internal/protocol"
	"github.com/1ureka/zynqctl/internal/util"
)

// DefaultInterval is the wait after finding the queue empty.
const DefaultInterval = 500 * time.Millisecond

// Source yields received blocks, oldest first.
type Source interface {
	Pop() ([]byte, bool)
}

// Monitor is the decode/display loop.
type Monitor struct {
	src      Source
	sink     console.Sink
	interval time.Duration
}

// New creates a monitor. A non-positive interval takes DefaultInterval.
func New(src Source, sink console.Sink, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{src: src, sink: sink, interval: interval}
}

// Run drains the source until ctx is cancelled. Blocks are handled back to
// back; the loop only sleeps when the source is empty.
func (m *Monitor) Run(ctx context.Context) {
	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		block, ok := m.src.Pop()
		if ok {
			m.Handle(block)
			continue
		}

		timer.Reset(m.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// Handle classifies block and emits it. Empty blocks are ignored.
func (m *Monitor) Handle(block []byte) {
	r, ok := Classify(block)
	if !ok {
		return
	}
	util.LogDebug("received %s: %s", r.Title, r.Text)
	m.sink.OnReceivedEntry(r.Title, r.Text, r.Severity)
}

// Reading is a decoded inbound block.
type Reading struct {
	Frame    protocol.Frame
	Title    string
	Text     string
	Severity console.Severity
}

// Classify decodes block into a displayable reading. Acknowledgements whose
// payload is a non-zero number are reported as errors carrying that code.
func Classify(block []byte) (Reading, bool) {
	f, ok := protocol.Decode(block)
	if !ok {
		return Reading{}, false
	}
	r := Reading{Frame: f, Text: f.PayloadString(), Severity: console.Info}

	name := f.Name()
	switch name {
	case "":
		r.Title = "received"
		r.Text = fmt.Sprintf("unrecognized command target:%d cmd:%d", f.Target, f.Command)
		if len(f.Payload) > 0 {
			r.Text += " " + f.PayloadString()
		}
		r.Severity = console.Warning
		return r, true
	case "route", "load", "rstptr":
		r.Title = fmt.Sprintf("%s %d", name, f.Info)
	default:
		r.Title = name
	}

	if name == "id" {
		return r, true
	}
	if code, ok := f.ErrorCode(); ok {
		if code != 0 {
			r.Text = fmt.Sprintf("ERROR %d", code)
			r.Severity = console.Error
		} else {
			r.Severity = console.Success
		}
	}
	return r, true
}
