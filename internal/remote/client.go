package remote

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/zynqctl/internal/console"
)

// client is the attached WebSocket peer. Writes come from the monitor and
// from the read loop, so they share a mutex.
type client struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *client) sendEntry(title, text string, sev console.Severity) error {
	return c.send(Message{
		Type:     MsgTypeEntry,
		Time:     time.Now().Format(time.RFC3339),
		Title:    title,
		Text:     text,
		Severity: sev.String(),
	})
}

// watch reads command messages until the connection fails and answers each
// one with the entry returned by run.
func (c *client) watch(run func(line string) console.Entry) error {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read remote message: %w", err)
		}

		switch msg.Type {
		case MsgTypeCommand:
			e := run(msg.Line)
			if e.Title == "" {
				continue
			}
			if err := c.sendEntry(e.Title, e.Text, e.Severity); err != nil {
				return err
			}
		default:
			if err := c.sendEntry("remote", fmt.Sprintf("unsupported message type %q", msg.Type), console.Warning); err != nil {
				return err
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}
