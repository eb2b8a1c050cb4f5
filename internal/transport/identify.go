package transport

import (
	"bytes"
	"encoding/hex"
	"time"

	"github.com/1ureka/zynqctl/internal/protocol"
)

// IdentificationPredicate decides whether a freshly connected peer may stay,
// given the bytes it sent back to the identification request.
type IdentificationPredicate interface {
	Identify(reply []byte) bool
}

// PredicateFunc adapts a plain function to IdentificationPredicate.
type PredicateFunc func(reply []byte) bool

func (f PredicateFunc) Identify(reply []byte) bool { return f(reply) }

// AllowList accepts a reply whose trailing bytes match one of the known
// device identifiers.
type AllowList [][]byte

// NewAllowList copies ids into an AllowList.
func NewAllowList(ids ...[]byte) AllowList {
	out := make(AllowList, 0, len(ids))
	for _, id := range ids {
		if len(id) == 0 {
			continue
		}
		out = append(out, bytes.Clone(id))
	}
	return out
}

func (l AllowList) Identify(reply []byte) bool {
	for _, id := range l {
		if bytes.HasSuffix(reply, id) {
			return true
		}
	}
	return false
}

// AcceptAny accepts any non-empty reply.
var AcceptAny = PredicateFunc(func(reply []byte) bool { return len(reply) > 0 })

// safeIdentify runs the predicate; a panic counts as rejection.
func safeIdentify(p IdentificationPredicate, reply []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return p.Identify(reply)
}

// identityString renders an identification reply for display: the payload
// after the header when it is printable text, hex otherwise.
func identityString(reply []byte) string {
	f, ok := protocol.Decode(reply)
	if !ok {
		return ""
	}
	payload := f.Payload
	if len(payload) == 0 {
		payload = reply
	}
	if s, ok := (protocol.Frame{Payload: payload}).Text(); ok && isPrintable(s) {
		return s
	}
	return hex.EncodeToString(payload)
}

func isPrintable(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// awaitReply blocks until the peer sends a non-empty block. It polls with
// short read deadlines so that a stop request or the overall timeout is
// noticed between attempts.
func (m *Manager) awaitReply(c *conn) ([]byte, error) {
	deadline := time.Now().Add(m.cfg.IdentifyTimeout)
	for m.running.Load() {
		if time.Now().After(deadline) {
			return nil, errIdentifyTimeout
		}
		block, err := c.read(m.cfg.IdentifyRetry)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return nil, err
		}
		if len(block) > 0 {
			return block, nil
		}
	}
	return nil, ErrClosed
}

// identify runs the identification gate on a new connection. Any failure,
// including a dropped connection, is reported as ErrIdentificationRejected.
func (m *Manager) identify(c *conn) (string, error) {
	frame, err := protocol.EncodeFrame(protocol.TargetBoard, protocol.CmdIdentify, 0, m.frameSize())
	if err != nil {
		return "", err
	}
	if err := c.write(frame); err != nil {
		return "", rejection("request not sent: %v", err)
	}

	reply, err := m.awaitReply(c)
	if err != nil {
		return "", rejection("%v", err)
	}
	if protocol.IsSentinel(reply) {
		return "", rejection("peer hung up")
	}
	if !safeIdentify(m.cfg.Predicate, reply) {
		return "", rejection("reply %x not accepted", reply)
	}
	return identityString(reply), nil
}
