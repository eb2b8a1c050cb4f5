// Package protocol defines the one-byte command frame exchanged with the board.
//
//	bit 7     : target   (0 = board/CPU, 1 = FPGA)
//	bits 6-4  : command  (0..7, meaning depends on target)
//	bits 3-0  : info     (0..15)
//
// A frame may be followed by a payload (file chunks, replies).
package protocol

// Targets.
const (
	TargetBoard = 0
	TargetFPGA  = 1
)

// Board-side commands (target 0).
const (
	CmdIdentify = 0 // identification request / reply
	CmdLoad     = 1 // file chunk
	CmdResetPtr = 2 // reset CPU pointer, info 8 = all
)

// FPGA-side commands (target 1).
const (
	CmdStatus = 0
	CmdRoute  = 1 // configure data block output, info = route
	CmdReset  = 2 // info 0 = fifo, info 1 = whole fabric
)

// Field limits.
const (
	MaxTarget  = 1
	MaxCommand = 7
	MaxInfo    = 15
)

// Sentinel is the single-byte block a peer sends before hanging up.
const Sentinel byte = 0xFF

// HeaderSize is the size of the command header in bytes.
const HeaderSize = 1

// Frame is one decoded protocol unit.
type Frame struct {
	Target  uint8
	Command uint8
	Info    uint8
	Payload []byte
}
