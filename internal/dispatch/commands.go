package dispatch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/1ureka/zynqctl/internal/protocol"
)

type command struct {
	name    string
	usage   string
	summary string
	run     func(d *Dispatcher, args []string) (string, error)
}

// commandTable is in help order.
var commandTable = []command{
	{"id", "id", "ask the board to identify itself", runID},
	{"load", "load <0-7> <path>", "send a file to the board", runLoad},
	{"rstptr", "rstptr <0-8|all>", "reset a memory pointer", runResetPtr},
	{"status", "status", "ask the FPGA for its status", fpgaCommand(protocol.CmdStatus, 0)},
	{"route", "route <0-7>", "select the FPGA route", runRoute},
	{"rstfifo", "rstfifo", "reset the FPGA FIFOs", fpgaCommand(protocol.CmdReset, 0)},
	{"rstfpga", "rstfpga", "reset the FPGA", fpgaCommand(protocol.CmdReset, 1)},
	{"custom", "custom [-b bits] <data>", "send raw data", runCustom},
	{"help", "help", "show this list", runHelp},
	{"exit", "exit", "close the program", runExit},
}

var errMissingArg = errors.New("not enough parameters were given")

// parseInfo reads an integer argument in [0, max].
func parseInfo(arg string, max int) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 || n > max {
		return 0, fmt.Errorf("info has to be in range 0 to %d (got %q)", max, arg)
	}
	return n, nil
}

func runID(d *Dispatcher, _ []string) (string, error) {
	if err := d.link.RequestIdentification(); err != nil {
		return "", err
	}
	if p, ok := d.link.Peer(); ok && p.Identity != "" {
		return fmt.Sprintf("identification requested (current: %s)", p.Identity), nil
	}
	return "identification requested", nil
}

func runLoad(d *Dispatcher, args []string) (string, error) {
	if len(args) < 2 {
		return "", errMissingArg
	}
	info, err := parseInfo(args[0], 7)
	if err != nil {
		return "", err
	}
	path, err := resolvePath(strings.Join(args[1:], " "))
	if err != nil {
		return "", err
	}
	if err := d.link.SendFile(path, info); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s sent to slot %d", filepath.Base(path), info), nil
}

// resolvePath expands a leading ~ and makes path absolute.
func resolvePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}

func runResetPtr(d *Dispatcher, args []string) (string, error) {
	if len(args) == 0 {
		return "", errMissingArg
	}
	info := 8
	if args[0] != "all" {
		var err error
		if info, err = parseInfo(args[0], 8); err != nil {
			return "", err
		}
	}
	if err := d.link.SendCommand(protocol.TargetBoard, protocol.CmdResetPtr, info); err != nil {
		return "", err
	}
	return fmt.Sprintf("rstptr %d sent", info), nil
}

func runRoute(d *Dispatcher, args []string) (string, error) {
	if len(args) == 0 {
		return "", errMissingArg
	}
	info, err := parseInfo(args[0], 7)
	if err != nil {
		return "", err
	}
	if err := d.link.SendCommand(protocol.TargetFPGA, protocol.CmdRoute, info); err != nil {
		return "", err
	}
	return fmt.Sprintf("route %d sent", info), nil
}

// fpgaCommand builds a handler for an argument-less FPGA command.
func fpgaCommand(cmd, info int) func(*Dispatcher, []string) (string, error) {
	return func(d *Dispatcher, _ []string) (string, error) {
		if err := d.link.SendCommand(protocol.TargetFPGA, cmd, info); err != nil {
			return "", err
		}
		name := (protocol.Frame{Target: protocol.TargetFPGA, Command: uint8(cmd), Info: uint8(info)}).Name()
		return name + " sent", nil
	}
}

func runCustom(d *Dispatcher, args []string) (string, error) {
	if !d.opts.AllowRaw {
		return "", ErrRawDisabled
	}
	if len(args) == 0 {
		return "", errMissingArg
	}

	if args[0] != "-b" {
		data := []byte(strings.Join(args, " "))
		if err := d.link.SendRaw(data); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d bytes sent", len(data)), nil
	}

	if len(args) < 2 {
		return "", errMissingArg
	}
	data, err := PackBits(args[1], d.link.BufferSize())
	if err != nil {
		return "", err
	}
	if err := d.link.SendRaw(data); err != nil {
		return "", err
	}
	msg := fmt.Sprintf("%d bytes sent", len(data))
	if len(args) > 2 {
		msg += fmt.Sprintf(" (ignored the parameters after %s)", args[1])
	}
	return msg, nil
}

// PackBits converts a string of 0/1 characters to bytes, most significant
// bit first. The last byte is completed with zero bits and the result is
// padded with zero bytes up to size.
func PackBits(bits string, size int) ([]byte, error) {
	if bits == "" {
		return nil, errors.New("empty bit string")
	}
	out := make([]byte, (len(bits)+7)/8)
	for i, ch := range bits {
		switch ch {
		case '1':
			out[i/8] |= 0x80 >> (i % 8)
		case '0':
		default:
			return nil, fmt.Errorf("%q is not a bit string", bits)
		}
	}
	if len(out) < size {
		out = append(out, bytes.Repeat([]byte{0}, size-len(out))...)
	}
	return out, nil
}

func runHelp(d *Dispatcher, _ []string) (string, error) {
	return d.Help(), nil
}

func runExit(d *Dispatcher, _ []string) (string, error) {
	if d.opts.OnExit != nil {
		d.opts.OnExit()
	}
	return "closing", nil
}
