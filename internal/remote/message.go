// Package remote exposes the operator console over a PIN-protected
// WebSocket so a second machine on the LAN can watch and drive the board.
package remote

// MessageType identifies the kind of remote console message.
type MessageType string

const (
	MsgTypeEntry   MessageType = "entry"   // server → client: one console entry
	MsgTypeCommand MessageType = "command" // client → server: one command line
)

// Message is the JSON structure exchanged over the WebSocket.
type Message struct {
	Type     MessageType `json:"type"`
	Time     string      `json:"time,omitempty"` // RFC 3339
	Title    string      `json:"title,omitempty"`
	Text     string      `json:"text,omitempty"`
	Severity string      `json:"severity,omitempty"`
	Line     string      `json:"line,omitempty"`
}
