// Package board emulates the Zynq side of the link: it dials the server,
// answers identification, and acknowledges commands and file transfers the
// way the firmware does.
//
// The stream carries no frame lengths. A file-tagged header followed by
// more data before the stream goes idle starts a chunk of BufferSize-1
// bytes, and a transfer ends when the stream goes idle. With padded frames
// and the FPGA file tag a route command cannot be told apart from a file
// chunk, so use LegacyFileTag there.
package board

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/1ureka/zynqctl/internal/protocol"
	"github.com/1ureka/zynqctl/internal/util"
)

const (
	DefaultBufferSize = 512
	DefaultIdle       = 100 * time.Millisecond
)

// Options configures the emulator. It must mirror the server settings.
type Options struct {
	Identity      []byte
	BufferSize    int
	PadFrames     bool
	LegacyFileTag bool
	Idle          time.Duration // quiet period that ends a file transfer
}

// Stats counts what the emulator has received.
type Stats struct {
	Commands  int
	Chunks    int
	FileBytes int64
	Transfers int
}

// Board is one emulated device connection.
type Board struct {
	conn net.Conn
	opts Options

	wmu sync.Mutex

	mu    sync.Mutex // guards stats
	stats Stats

	// parser state, owned by Run
	cur     protocol.Frame
	need    int
	got     int
	file    bool
	held    bool // file-tagged header seen at the end of a read
	loading bool
	loadTo  uint8
}

// Dial connects to a server at addr.
func Dial(ctx context.Context, addr string, opts Options) (*Board, error) {
	if opts.BufferSize < 2 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Idle <= 0 {
		opts.Idle = DefaultIdle
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("board: dial %s: %w", addr, err)
	}
	util.LogInfo("[%08x] board connected to %s", util.ConnTag(conn), addr)
	return &Board{conn: conn, opts: opts}, nil
}

// Run reads and answers frames until ctx is cancelled or the server closes
// the connection. A closed connection is not an error.
func (b *Board) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { b.conn.Close() })
	defer stop()

	buf := make([]byte, b.opts.BufferSize)
	for {
		_ = b.conn.SetReadDeadline(time.Now().Add(b.opts.Idle))
		n, err := b.conn.Read(buf)
		if n > 0 {
			if werr := b.feed(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if werr := b.idle(); werr != nil {
				return werr
			}
			continue
		}
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			return nil
		}
		util.LogInfo("board: server closed the connection: %v", err)
		return nil
	}
}

// Hangup sends the disconnect sentinel and closes the connection.
func (b *Board) Hangup() error {
	b.wmu.Lock()
	_, err := b.conn.Write([]byte{protocol.Sentinel})
	b.wmu.Unlock()
	b.conn.Close()
	return err
}

// Close drops the connection without the sentinel.
func (b *Board) Close() error {
	return b.conn.Close()
}

// Send writes raw bytes to the server, for unsolicited telemetry.
func (b *Board) Send(data []byte) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	_, err := b.conn.Write(data)
	return err
}

// Stats returns a snapshot of the counters.
func (b *Board) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// feed runs the frame parser over one read.
func (b *Board) feed(buf []byte) error {
	if b.held {
		b.held = false
		b.file, b.need = true, b.opts.BufferSize-protocol.HeaderSize
	}
	for len(buf) > 0 {
		if b.need > 0 {
			n := min(b.need, len(buf))
			b.need -= n
			b.got += n
			buf = buf[n:]
			if b.need == 0 {
				if err := b.endFrame(); err != nil {
					return err
				}
			}
			continue
		}

		f, _ := protocol.Decode(buf[:1])
		buf = buf[1:]
		b.cur, b.got = f, 0

		switch {
		case b.isFileHeader(f) && len(buf) == 0 && !b.opts.PadFrames:
			b.held = true
		case b.isFileHeader(f):
			b.file, b.need = true, b.opts.BufferSize-protocol.HeaderSize
		case b.opts.PadFrames:
			b.file, b.need = false, b.opts.BufferSize-protocol.HeaderSize
		default:
			b.file = false
			if err := b.command(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Board) endFrame() error {
	if !b.file {
		return b.command(b.cur)
	}
	b.mu.Lock()
	b.stats.Chunks++
	b.stats.FileBytes += int64(b.got)
	b.mu.Unlock()
	b.loading, b.loadTo = true, b.cur.Info
	return nil
}

// idle closes a short trailing chunk and acknowledges a finished transfer.
func (b *Board) idle() error {
	if b.held {
		b.held = false
		if err := b.command(b.cur); err != nil {
			return err
		}
	}
	if b.need > 0 && b.file {
		b.need = 0
		if err := b.endFrame(); err != nil {
			return err
		}
	}
	return b.finishTransfer()
}

func (b *Board) finishTransfer() error {
	if !b.loading {
		return nil
	}
	b.loading = false
	b.mu.Lock()
	b.stats.Transfers++
	b.mu.Unlock()
	return b.reply(protocol.TargetBoard, protocol.CmdLoad, int(b.loadTo), []byte("0"))
}

// command answers one complete command frame.
func (b *Board) command(f protocol.Frame) error {
	if err := b.finishTransfer(); err != nil {
		return err
	}
	b.mu.Lock()
	b.stats.Commands++
	b.mu.Unlock()

	t, c, i := int(f.Target), int(f.Command), int(f.Info)
	switch {
	case f.Target == protocol.TargetBoard && f.Command == protocol.CmdIdentify:
		return b.reply(t, c, i, b.opts.Identity)
	case f.Name() != "":
		return b.reply(t, c, i, []byte("0"))
	default:
		return b.reply(t, c, i, []byte("1"))
	}
}

func (b *Board) reply(target, command, info int, payload []byte) error {
	frame, err := protocol.EncodeFileChunk(target, command, info, payload)
	if err != nil {
		return err
	}
	return b.Send(frame)
}

func (b *Board) isFileHeader(f protocol.Frame) bool {
	if f.Command != protocol.CmdLoad {
		return false
	}
	if b.opts.LegacyFileTag {
		return f.Target == protocol.TargetBoard
	}
	return f.Target == protocol.TargetFPGA
}
