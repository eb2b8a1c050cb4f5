package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ProtocolError reports a command field outside its wire range.
// Nothing is sent when one is returned.
type ProtocolError struct {
	Field string
	Value int
	Max   int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s has to be an integer between 0 and %d included (got %d)", e.Field, e.Max, e.Value)
}

// Validate checks the three header fields against their bit widths.
func Validate(target, command, info int) error {
	if target < 0 || target > MaxTarget {
		return &ProtocolError{Field: "target", Value: target, Max: MaxTarget}
	}
	if command < 0 || command > MaxCommand {
		return &ProtocolError{Field: "command", Value: command, Max: MaxCommand}
	}
	if info < 0 || info > MaxInfo {
		return &ProtocolError{Field: "info", Value: info, Max: MaxInfo}
	}
	return nil
}

// Encode packs target, command and info into a single header byte.
func Encode(target, command, info int) (byte, error) {
	if err := Validate(target, command, info); err != nil {
		return 0, err
	}
	return byte(target<<7 | command<<4 | info), nil
}

// EncodeFrame returns the header byte padded with zeros to size bytes.
// A size of 1 or less yields the bare header.
func EncodeFrame(target, command, info, size int) ([]byte, error) {
	h, err := Encode(target, command, info)
	if err != nil {
		return nil, err
	}
	if size < HeaderSize {
		size = HeaderSize
	}
	buf := make([]byte, size)
	buf[0] = h
	return buf, nil
}

// EncodeFileChunk prepends the header byte to one chunk of file data.
func EncodeFileChunk(target, command, info int, chunk []byte) ([]byte, error) {
	h, err := Encode(target, command, info)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderSize+len(chunk))
	buf[0] = h
	copy(buf[HeaderSize:], chunk)
	return buf, nil
}

// Decode splits a received block into header fields and payload.
// It returns false for an empty block.
func Decode(block []byte) (Frame, bool) {
	if len(block) == 0 {
		return Frame{}, false
	}
	h := block[0]
	f := Frame{
		Target:  h >> 7,
		Command: (h >> 4) & 0b111,
		Info:    h & 0b1111,
	}
	if len(block) > HeaderSize {
		f.Payload = make([]byte, len(block)-HeaderSize)
		copy(f.Payload, block[HeaderSize:])
	}
	return f, true
}

// IsSentinel reports whether block is the peer's hang-up marker.
func IsSentinel(block []byte) bool {
	return len(block) == 1 && block[0] == Sentinel
}

// Text returns the payload as text when it is valid UTF-8.
func (f Frame) Text() (string, bool) {
	if !utf8.Valid(f.Payload) {
		return "", false
	}
	return string(f.Payload), true
}

// PayloadString renders the payload as text, or as Go-quoted bytes when it
// does not decode.
func (f Frame) PayloadString() string {
	if s, ok := f.Text(); ok {
		return s
	}
	return fmt.Sprintf("%q", f.Payload)
}

// ErrorCode interprets the payload as the numeric status a board appends to
// its acknowledgements. ok is false when the payload is not a number.
func (f Frame) ErrorCode() (code int, ok bool) {
	s, valid := f.Text()
	if !valid {
		return 0, false
	}
	s = strings.TrimRight(strings.TrimSpace(s), "\x00")
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Name returns the operator-facing command name for the frame header, or ""
// when the combination is not part of the command set.
func (f Frame) Name() string {
	switch f.Target {
	case TargetFPGA:
		switch f.Command {
		case CmdStatus:
			return "status"
		case CmdRoute:
			return "route"
		case CmdReset:
			if f.Info != 0 {
				return "rstfpga"
			}
			return "rstfifo"
		}
	case TargetBoard:
		switch f.Command {
		case CmdIdentify:
			return "id"
		case CmdLoad:
			return "load"
		case CmdResetPtr:
			return "rstptr"
		}
	}
	return ""
}

// String renders the header as an 8-digit bit string.
func (f Frame) String() string {
	return fmt.Sprintf("%08b", f.Target<<7|f.Command<<4|f.Info)
}
