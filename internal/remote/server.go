package remote

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/zynqctl/internal/console"
	"github.com/1ureka/zynqctl/internal/util"
)

const (
	pinLength    = 6
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server serves a single remote console client at /ws?pin=NNNNNN.
type Server struct {
	pin    string
	submit console.Submitter
	echo   console.Sink

	mu       sync.Mutex // guards echo, busy, client, srv
	busy     bool
	client   *client
	srv      *http.Server
	listener net.Listener
}

// NewServer creates a server. An empty pin is replaced by a random one.
func NewServer(pin string, submit console.Submitter) *Server {
	if pin == "" {
		pin = generatePIN(pinLength)
	}
	return &Server{pin: pin, submit: submit}
}

// Echo makes the server report every remote command and its result to sink
// as well, so the local console history shows what ran against the board.
func (s *Server) Echo(sink console.Sink) {
	s.mu.Lock()
	s.echo = sink
	s.mu.Unlock()
}

// PIN returns the PIN clients must present.
func (s *Server) PIN() string {
	return s.pin
}

// Handler returns the HTTP handler serving /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start listens on addr and serves in the background. It returns the bound
// address.
func (s *Server) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start remote console: %w", err)
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.srv = srv
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogWarning("remote console stopped: %v", err)
		}
	}()

	util.LogInfo("remote console listening on ws://%s/ws?pin=%s", listener.Addr(), s.pin)
	return listener.Addr(), nil
}

// Close stops the listener and drops the attached client.
func (s *Server) Close() {
	s.mu.Lock()
	srv, c := s.srv, s.client
	s.mu.Unlock()

	if srv != nil {
		srv.Close()
	}
	if c != nil {
		c.close()
	}
}

// Connected reports whether a client is attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// OnReceivedEntry forwards an entry to the attached client, if any.
func (s *Server) OnReceivedEntry(title, text string, sev console.Severity) {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return
	}
	if err := c.sendEntry(title, text, sev); err != nil {
		util.LogDebug("remote console write failed: %v", err)
		c.close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if pin != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	// Reserve the slot before the handshake completes so that a client whose
	// dial has returned is already the attached one.
	s.mu.Lock()
	taken := s.busy
	s.busy = true
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if !taken {
			s.release(nil)
		}
		return
	}

	// Only one client at a time.
	if taken {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
		return
	}

	c := &client{conn: conn}
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
	util.LogInfo("remote console attached from %s", r.RemoteAddr)

	err = c.watch(s.dispatch)
	s.release(c)
	util.LogInfo("remote console detached from %s: %v", r.RemoteAddr, err)
}

// dispatch runs one remote command line and returns the reply entry.
func (s *Server) dispatch(line string) console.Entry {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return console.Entry{}
	}
	if fields[0] == "exit" {
		return console.Entry{Title: "exit", Text: "exit is only available on the local console", Severity: console.Warning}
	}

	res := s.submit.Dispatch(fields[0], fields[1:]...)
	sev := console.Success
	if !res.OK {
		sev = console.Error
	}
	title := strings.Join(fields, " ")
	s.mu.Lock()
	echo := s.echo
	s.mu.Unlock()
	if echo != nil {
		echo.OnReceivedEntry("remote "+title, res.Message, sev)
	}
	return console.Entry{Title: title, Text: res.Message, Severity: sev}
}

func (s *Server) release(c *client) {
	s.mu.Lock()
	if s.client == c {
		s.client = nil
	}
	s.busy = false
	s.mu.Unlock()
	if c != nil {
		c.close()
	}
}

// generatePIN returns a random numeric PIN of the specified length.
func generatePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
