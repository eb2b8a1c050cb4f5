package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/zynqctl/internal/dispatch"
	"github.com/1ureka/zynqctl/internal/transport"
)

// MaxHistory bounds the number of entries kept in memory.
const MaxHistory = 1000

// Submitter runs one operator command.
type Submitter interface {
	Dispatch(name string, args ...string) dispatch.Result
}

// Status reports the peer shown in the header.
type Status interface {
	Peer() (transport.PeerInfo, bool)
}

// Console reads command lines from in and renders history entries to out.
// OnReceivedEntry may be called from any goroutine.
type Console struct {
	in     io.Reader
	out    io.Writer
	submit Submitter
	status Status
	theme  Theme

	mu      sync.Mutex // guards history and writes to out
	history []Entry
}

// New creates a console. status may be nil.
func New(in io.Reader, out io.Writer, submit Submitter, status Status, theme Theme) *Console {
	return &Console{
		in:     in,
		out:    out,
		submit: submit,
		status: status,
		theme:  theme,
	}
}

// OnReceivedEntry appends an entry to the history and prints it.
func (c *Console) OnReceivedEntry(title, text string, sev Severity) {
	c.add(Entry{Time: time.Now(), Title: title, Text: text, Severity: sev})
}

// History returns a copy of the entries, oldest first.
func (c *Console) History() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.history))
	copy(out, c.history)
	return out
}

// HeaderText is the connection status line.
func (c *Console) HeaderText() string {
	if c.status != nil {
		if p, ok := c.status.Peer(); ok {
			return fmt.Sprintf("Connected: %s (%s)", p.Identity, p.RemoteAddr)
		}
	}
	return "Not connected"
}

// Run reads lines until ctx is cancelled, the input ends, or the operator
// runs exit. Each dispatched line yields exactly one history entry.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	c.printHeader()
	c.printPrompt()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				c.printPrompt()
				continue
			}

			res := c.submit.Dispatch(fields[0], fields[1:]...)
			c.add(resultEntry(res))
			if res.Command == "exit" && res.OK {
				return nil
			}
			c.printHeader()
			c.printPrompt()
		}
	}
}

func resultEntry(res dispatch.Result) Entry {
	sev := Success
	if !res.OK {
		sev = Error
	}
	title := strings.TrimSpace(res.Command + " " + strings.Join(res.Args, " "))
	return Entry{Time: time.Now(), Title: title, Text: res.Message, Severity: sev}
}

func (c *Console) add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, e)
	if len(c.history) > MaxHistory {
		c.history = append(c.history[:0:0], c.history[len(c.history)-MaxHistory:]...)
	}
	c.render(e)
}

// render prints e; the caller holds mu.
func (c *Console) render(e Entry) {
	p := c.theme.Printer(e.Severity)
	text := e.Title
	if e.Text != "" {
		text += ": " + e.Text
	}
	p.WithWriter(c.out).Println(e.Time.Format("15:04:05") + " " + text)
}

func (c *Console) printHeader() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.theme.Header(c.HeaderText()))
}

func (c *Console) printPrompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, c.theme.prompt)
}
