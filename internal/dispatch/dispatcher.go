// Package dispatch turns operator command lines into link operations.
package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/1ureka/zynqctl/internal/transport"
	"github.com/1ureka/zynqctl/internal/util"
)

var (
	ErrUnknownCommand = errors.New("command unknown")
	ErrRawDisabled    = errors.New("raw sending is disabled")
)

// Link is the part of the connection manager the dispatcher drives.
type Link interface {
	SendCommand(target, command, info int) error
	SendFile(path string, info int) error
	SendRaw(data []byte) error
	RequestIdentification() error
	Peer() (transport.PeerInfo, bool)
	BufferSize() int
}

// Result is the outcome of one dispatched command, ready for display.
type Result struct {
	Command string
	Args    []string
	OK      bool
	Message string
}

// Options tunes a Dispatcher.
type Options struct {
	AllowRaw bool   // enables the custom command
	OnExit   func() // called by the exit command
}

// Dispatcher validates operator commands and forwards them to a Link.
// It never returns an error or panics; every failure becomes a Result.
type Dispatcher struct {
	link     Link
	opts     Options
	order    []command
	commands map[string]command
}

// New creates a dispatcher bound to link.
func New(link Link, opts Options) *Dispatcher {
	d := &Dispatcher{link: link, opts: opts, order: commandTable}
	d.commands = make(map[string]command, len(commandTable))
	for _, c := range commandTable {
		d.commands[c.name] = c
	}
	return d
}

// Dispatch runs the named command with its arguments.
func (d *Dispatcher) Dispatch(name string, args ...string) (res Result) {
	res = Result{Command: name, Args: args}

	defer func() {
		if r := recover(); r != nil {
			res.OK = false
			res.Message = fmt.Sprintf("could not run the command %s: %v", name, r)
			util.LogError("command %s panicked: %v", name, r)
		}
	}()

	c, ok := d.commands[name]
	if !ok {
		res.Message = fmt.Sprintf("command %q unknown", name)
		util.LogDebug("%s: %v", name, ErrUnknownCommand)
		return res
	}

	msg, err := c.run(d, args)
	if err != nil {
		res.Message = fmt.Sprintf("could not send the command %s: %v", name, err)
		util.LogWarning("could not send the command %s %s: %v", name, strings.Join(args, " "), err)
		return res
	}

	res.OK = true
	res.Message = msg
	util.LogDebug("%s %s command executed", name, strings.Join(args, " "))
	return res
}

// DispatchLine splits line on whitespace and dispatches it. It reports false
// for a blank line, which is not a command.
func (d *Dispatcher) DispatchLine(line string) (Result, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Result{}, false
	}
	return d.Dispatch(fields[0], fields[1:]...), true
}

// Help lists the commands with their usage.
func (d *Dispatcher) Help() string {
	var b strings.Builder
	for i, c := range d.order {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-24s %s", c.usage, c.summary)
	}
	return b.String()
}
