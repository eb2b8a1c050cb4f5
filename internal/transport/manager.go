// Package transport owns the TCP link to the board: the listening socket,
// the accept/identify/receive state machine, and the inbound backlog that
// the rest of the program drains.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/zynqctl/internal/protocol"
	"github.com/1ureka/zynqctl/internal/util"
)

// State is the connection manager lifecycle phase.
type State int32

const (
	StateClosed State = iota
	StateListening
	StateAccepting
	StateIdentifying
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateListening:
		return "listening"
	case StateAccepting:
		return "accepting"
	case StateIdentifying:
		return "identifying"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Tuning defaults.
const (
	DefaultBufferSize      = 512
	DefaultPollInterval    = time.Second
	DefaultRecvPoll        = 50 * time.Millisecond
	DefaultIdentifyTimeout = 5 * time.Second
	DefaultIdentifyRetry   = 50 * time.Millisecond
)

// Config configures a Manager. Zero durations and sizes take the defaults.
type Config struct {
	Addr            string        // host:port to listen on
	BufferSize      int           // receive chunk size; file chunks carry BufferSize-1 bytes
	PollInterval    time.Duration // accept timeout between running-flag checks
	RecvPoll        time.Duration // read deadline per receive tick while connected
	IdentifyTimeout time.Duration // upper bound on the identification wait
	IdentifyRetry   time.Duration // read deadline per identification attempt
	PadFrames       bool          // pad command frames with zeros to BufferSize
	LegacyFileTag   bool          // tag file chunks with the board target instead of the FPGA target
	Predicate       IdentificationPredicate
}

func (c Config) withDefaults() Config {
	if c.BufferSize < 2 {
		c.BufferSize = DefaultBufferSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RecvPoll <= 0 {
		c.RecvPoll = DefaultRecvPoll
	}
	if c.IdentifyTimeout <= 0 {
		c.IdentifyTimeout = DefaultIdentifyTimeout
	}
	if c.IdentifyRetry <= 0 {
		c.IdentifyRetry = DefaultIdentifyRetry
	}
	if c.Predicate == nil {
		c.Predicate = AcceptAny
	}
	return c
}

// Manager accepts one board at a time, gates it through identification,
// and feeds everything it sends into the inbound Queue.
//
// The manager goroutine is the only reader of the socket. API callers share
// nothing with it except the queue, the atomic flags, and the per-connection
// write lock.
type Manager struct {
	cfg   Config
	queue *Queue

	running atomic.Bool
	state   atomic.Int32
	peer    atomic.Pointer[PeerInfo]

	mu       sync.Mutex // guards ln, active, started
	ln       *net.TCPListener
	active   *conn
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager in the closed state.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:   cfg.withDefaults(),
		queue: NewQueue(),
		done:  make(chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Start binds the listening socket and launches the accept loop.
// It is idempotent; a bind failure is returned and nothing is started.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	addr, err := net.ResolveTCPAddr("tcp", m.cfg.Addr)
	if err != nil {
		util.LogError("invalid listen address %q: %v", m.cfg.Addr, err)
		return fmt.Errorf("transport: resolve %s: %w", m.cfg.Addr, err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		util.LogError("error while opening the connection on %s: %v", m.cfg.Addr, err)
		return fmt.Errorf("transport: listen on %s: %w", m.cfg.Addr, err)
	}

	m.ln = ln
	m.started = true
	m.running.Store(true)
	m.setState(StateListening)
	util.LogInfo("server listening on %s", ln.Addr())

	go m.run(ln)
	return nil
}

// Stop signals shutdown, closes the active peer and the listener, and waits
// for the accept loop to exit. Safe to call more than once or before Start.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.running.Store(false)

		m.mu.Lock()
		started := m.started
		ln := m.ln
		active := m.active
		m.started = true // a later Start must not bind again
		m.mu.Unlock()

		if active != nil {
			util.LogInfo("[%08x] closing connection with %s", active.tag, active.raw.RemoteAddr())
			active.close()
		}
		if ln != nil {
			ln.Close()
		}

		if !started {
			m.setState(StateClosed)
			close(m.done)
			return
		}
		<-m.done
		util.LogInfo("server closed")
	})
}

// Done is closed once the manager has fully stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Connected reports whether an identified peer is attached.
func (m *Manager) Connected() bool {
	return m.peer.Load() != nil
}

// Peer returns a snapshot of the identified peer, if any.
func (m *Manager) Peer() (PeerInfo, bool) {
	p := m.peer.Load()
	if p == nil {
		return PeerInfo{}, false
	}
	return *p, true
}

// Addr returns the bound listen address, or nil before Start.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// BufferSize returns the effective receive/file chunk size.
func (m *Manager) BufferSize() int {
	return m.cfg.BufferSize
}

// Pop removes the oldest inbound block. The boolean is false when empty.
func (m *Manager) Pop() ([]byte, bool) {
	return m.queue.Pop()
}

// Queue exposes the inbound backlog.
func (m *Manager) Queue() *Queue {
	return m.queue
}

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		util.LogDebug("transport state %s -> %s", old, s)
	}
}

// ---------------------------------------------------------------------------
// Accept / identify / receive loop
// ---------------------------------------------------------------------------

// run is the manager goroutine. One iteration handles one peer from accept
// to disconnect.
func (m *Manager) run(ln *net.TCPListener) {
	defer func() {
		m.setState(StateClosed)
		close(m.done)
	}()

	for m.running.Load() {
		c := m.accept(ln)
		if c == nil {
			continue
		}

		m.setState(StateIdentifying)
		identity, err := m.identify(c)
		if err != nil && !m.running.Load() {
			m.release(c)
			break
		}
		if err != nil {
			util.Stats.AddRejected()
			util.LogInfo("[%08x] the connection with %s was closed: %v", c.tag, c.raw.RemoteAddr(), err)
			m.release(c)
			continue
		}

		util.Stats.AddAccepted()
		m.peer.Store(c.info(identity))
		m.setState(StateConnected)
		util.LogSuccess("[%08x] %s identified as %q (session %s)", c.tag, c.raw.RemoteAddr(), identity, c.session)

		m.serve(c)
		m.release(c)
	}
}

// accept waits for one connection, giving up after PollInterval so that the
// running flag is rechecked. It returns nil on timeout or shutdown.
func (m *Manager) accept(ln *net.TCPListener) *conn {
	m.setState(StateAccepting)
	_ = ln.SetDeadline(time.Now().Add(m.cfg.PollInterval))

	raw, err := ln.AcceptTCP()
	if err != nil {
		if isTimeout(err) || !m.running.Load() {
			return nil
		}
		util.LogWarning("accept error: %v", err)
		time.Sleep(m.cfg.RecvPoll)
		return nil
	}

	c := newConn(raw, m.cfg.BufferSize)
	util.LogInfo("[%08x] accepted connection from %s", c.tag, raw.RemoteAddr())

	m.mu.Lock()
	if !m.running.Load() {
		m.mu.Unlock()
		c.close()
		return nil
	}
	m.active = c
	m.mu.Unlock()
	return c
}

// serve polls the connected peer until it hangs up, fails, or the manager
// stops. A read timeout only means there was nothing to read this tick.
func (m *Manager) serve(c *conn) {
	for m.running.Load() {
		block, err := c.read(m.cfg.RecvPoll)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if !m.running.Load() {
				return
			}
			util.Stats.AddDisconnect()
			if errors.Is(err, io.EOF) {
				util.LogInfo("[%08x] %s closed the connection", c.tag, c.raw.RemoteAddr())
			} else {
				util.LogWarning("[%08x] read error from %s: %v", c.tag, c.raw.RemoteAddr(), err)
			}
			return
		}

		if protocol.IsSentinel(block) {
			util.Stats.AddDisconnect()
			util.LogInfo("[%08x] %s disconnected", c.tag, c.raw.RemoteAddr())
			return
		}
		if len(block) > 0 {
			util.LogDebug("[%08x] received %d bytes", c.tag, len(block))
			m.queue.Push(block)
		}
	}
}

// release closes c and clears the connection state.
func (m *Manager) release(c *conn) {
	m.peer.Store(nil)
	m.mu.Lock()
	if m.active == c {
		m.active = nil
	}
	m.mu.Unlock()
	c.close()
}

// attached returns the identified connection, or ErrNotConnected.
func (m *Manager) attached() (*conn, error) {
	if m.peer.Load() == nil {
		return nil, ErrNotConnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNotConnected
	}
	return m.active, nil
}

// fileTarget is the target bit carried by file chunk headers.
func (m *Manager) fileTarget() int {
	if m.cfg.LegacyFileTag {
		return protocol.TargetBoard
	}
	return protocol.TargetFPGA
}

func (m *Manager) frameSize() int {
	if m.cfg.PadFrames {
		return m.cfg.BufferSize
	}
	return protocol.HeaderSize
}
