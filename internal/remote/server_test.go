package remote

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/zynqctl/internal/console"
	"github.com/1ureka/zynqctl/internal/dispatch"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeSubmitter) Dispatch(name string, args ...string) dispatch.Result {
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
	if name == "status" {
		return dispatch.Result{Command: name, OK: true, Message: "status sent"}
	}
	return dispatch.Result{Command: name, Message: "command unknown"}
}

func newTestServer(t *testing.T, sub console.Submitter) (*Server, string) {
	t.Helper()
	s := NewServer("1234", sub)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?pin=1234", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEntry(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != MsgTypeEntry {
		t.Fatalf("message type = %q, want entry", msg.Type)
	}
	return msg
}

func TestRemoteRejectsBadPIN(t *testing.T) {
	_, url := newTestServer(t, &fakeSubmitter{})

	_, resp, err := websocket.DefaultDialer.Dial(url+"?pin=0000", nil)
	if err == nil {
		t.Fatal("dial with a wrong PIN succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}
}

func TestRemoteCommand(t *testing.T) {
	sub := &fakeSubmitter{}
	_, url := newTestServer(t, sub)
	conn := dial(t, url)

	if err := conn.WriteJSON(Message{Type: MsgTypeCommand, Line: "status"}); err != nil {
		t.Fatal(err)
	}
	msg := readEntry(t, conn)
	if msg.Title != "status" || msg.Text != "status sent" || msg.Severity != "success" {
		t.Fatalf("reply = %+v", msg)
	}

	if err := conn.WriteJSON(Message{Type: MsgTypeCommand, Line: "reboot"}); err != nil {
		t.Fatal(err)
	}
	if msg := readEntry(t, conn); msg.Severity != "error" {
		t.Fatalf("reply = %+v", msg)
	}
}

func TestRemoteCommandEchoesLocally(t *testing.T) {
	s, url := newTestServer(t, &fakeSubmitter{})

	type echoed struct {
		title, text string
		sev         console.Severity
	}
	got := make(chan echoed, 4)
	s.Echo(console.SinkFunc(func(title, text string, sev console.Severity) {
		got <- echoed{title, text, sev}
	}))

	conn := dial(t, url)
	if err := conn.WriteJSON(Message{Type: MsgTypeCommand, Line: "status  now"}); err != nil {
		t.Fatal(err)
	}
	if msg := readEntry(t, conn); msg.Title != "status now" {
		t.Fatalf("reply = %+v", msg)
	}

	select {
	case e := <-got:
		want := echoed{"remote status now", "status sent", console.Success}
		if e != want {
			t.Fatalf("echoed entry = %+v, want %+v", e, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote command was not echoed")
	}
	if len(got) != 0 {
		t.Fatalf("%d extra echoed entries", len(got))
	}
}

func TestRemoteRefusesExit(t *testing.T) {
	sub := &fakeSubmitter{}
	_, url := newTestServer(t, sub)
	conn := dial(t, url)

	if err := conn.WriteJSON(Message{Type: MsgTypeCommand, Line: "exit"}); err != nil {
		t.Fatal(err)
	}
	if msg := readEntry(t, conn); msg.Severity != "warning" {
		t.Fatalf("reply = %+v", msg)
	}
	if len(sub.names) != 0 {
		t.Fatalf("exit was dispatched: %v", sub.names)
	}
}

func TestRemoteForwardsEntries(t *testing.T) {
	s, url := newTestServer(t, &fakeSubmitter{})

	s.OnReceivedEntry("status", "dropped", console.Info)

	conn := dial(t, url)
	deadline := time.Now().Add(2 * time.Second)
	for !s.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("client never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.OnReceivedEntry("route 3", "ERROR 4", console.Error)
	msg := readEntry(t, conn)
	if msg.Title != "route 3" || msg.Text != "ERROR 4" || msg.Severity != "error" || msg.Time == "" {
		t.Fatalf("entry = %+v", msg)
	}
}

func TestRemoteSingleClient(t *testing.T) {
	_, url := newTestServer(t, &fakeSubmitter{})
	dial(t, url)

	second := dial(t, url)
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("second client read error = %v, want policy violation", err)
	}
}

func TestRemoteSlotFreedOnDisconnect(t *testing.T) {
	s, url := newTestServer(t, &fakeSubmitter{})

	first := dial(t, url)
	waitAttached(t, s, true)
	first.Close()
	waitAttached(t, s, false)

	next := dial(t, url)
	if err := next.WriteJSON(Message{Type: MsgTypeCommand, Line: "status"}); err != nil {
		t.Fatal(err)
	}
	if msg := readEntry(t, next); msg.Text != "status sent" {
		t.Fatalf("reply = %+v", msg)
	}
}

func waitAttached(t *testing.T, s *Server, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Connected() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Connected() never became %v", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGeneratePIN(t *testing.T) {
	pin := generatePIN(6)
	if len(pin) != 6 || strings.Trim(pin, "0123456789") != "" {
		t.Fatalf("generatePIN(6) = %q", pin)
	}
	if NewServer("", nil).PIN() == "" {
		t.Fatal("empty PIN not replaced")
	}
}
