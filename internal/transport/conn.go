package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/zynqctl/internal/util"
)

// continuationWait bounds the follow-up reads that gather a block larger
// than the receive buffer.
const continuationWait = 10 * time.Millisecond

var errIdentifyTimeout = errors.New("no identification reply before timeout")

// PeerInfo is a read-only snapshot of the attached board.
type PeerInfo struct {
	SessionID   string
	RemoteAddr  string
	Identity    string
	ConnectedAt time.Time
}

// conn is the currently accepted peer link. Reads happen only on the
// manager goroutine; writes are serialized by wmu because commands arrive
// from the dispatcher goroutine.
type conn struct {
	raw        net.Conn
	tag        uint32
	session    string
	bufferSize int

	wmu sync.Mutex

	closeOnce sync.Once
}

func newConn(raw net.Conn, bufferSize int) *conn {
	return &conn{
		raw:        raw,
		tag:        util.ConnTag(raw),
		session:    uuid.NewString(),
		bufferSize: bufferSize,
	}
}

// read returns whatever the peer sent within wait. A read that fills the
// buffer is followed by continuation reads, and the pieces form one block.
// A timeout error means nothing arrived this tick.
func (c *conn) read(wait time.Duration) ([]byte, error) {
	buf := make([]byte, c.bufferSize)

	_ = c.raw.SetReadDeadline(time.Now().Add(wait))
	n, err := c.raw.Read(buf)
	if n == 0 {
		return nil, err
	}
	block := append([]byte(nil), buf[:n]...)

	for n == c.bufferSize && err == nil {
		_ = c.raw.SetReadDeadline(time.Now().Add(continuationWait))
		n, err = c.raw.Read(buf)
		block = append(block, buf[:n]...)
	}
	if err != nil && !isTimeout(err) {
		// Deliver what arrived; the error resurfaces on the next read.
		util.LogDebug("[%08x] read ended with %v after %d bytes", c.tag, err, len(block))
	}
	util.Stats.AddRecv(len(block))
	return block, nil
}

// write sends b in full under the write lock.
func (c *conn) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.writeLocked(b)
	return err
}

func (c *conn) writeLocked(b []byte) (int, error) {
	n, err := c.raw.Write(b)
	util.Stats.AddSent(n)
	return n, err
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.raw.Close()
	})
}

func (c *conn) info(identity string) *PeerInfo {
	return &PeerInfo{
		SessionID:   c.session,
		RemoteAddr:  c.raw.RemoteAddr().String(),
		Identity:    identity,
		ConnectedAt: time.Now(),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func rejection(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIdentificationRejected, fmt.Sprintf(format, args...))
}
