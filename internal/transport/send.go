package transport

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/1ureka/zynqctl/internal/protocol"
	"github.com/1ureka/zynqctl/internal/util"
)

// SendCommand encodes one command frame and writes it to the peer.
// Field validation happens before anything touches the socket.
func (m *Manager) SendCommand(target, command, info int) error {
	frame, err := protocol.EncodeFrame(target, command, info, m.frameSize())
	if err != nil {
		util.LogError("error while sending command (%d %d %d): %v", target, command, info, err)
		return err
	}

	c, err := m.attached()
	if err != nil {
		return err
	}

	c.wmu.Lock()
	n, err := c.writeLocked(frame)
	c.wmu.Unlock()
	if err != nil {
		util.LogError("[%08x] error while sending command (%d %d %d): %v", c.tag, target, command, info, err)
		return &TransmissionError{Op: "send command", Sent: int64(n), Err: err}
	}

	util.LogInfo("[%08x] command %08b sent", c.tag, frame[0])
	return nil
}

// RequestIdentification sends the identification frame to the attached
// peer. The reply arrives through the inbound queue like any other block.
func (m *Manager) RequestIdentification() error {
	return m.SendCommand(protocol.TargetBoard, protocol.CmdIdentify, 0)
}

// SendRaw writes data to the peer without any framing.
func (m *Manager) SendRaw(data []byte) error {
	c, err := m.attached()
	if err != nil {
		return err
	}

	c.wmu.Lock()
	n, err := c.writeLocked(data)
	c.wmu.Unlock()
	if err != nil {
		util.LogError("[%08x] error while sending raw data (%d bytes sent): %v", c.tag, n, err)
		return &TransmissionError{Op: "send raw", Sent: int64(n), Err: err}
	}

	util.LogInfo("[%08x] raw data sent (%d bytes)", c.tag, n)
	return nil
}

// SendFile streams the file at path as consecutive file frames, each holding
// up to BufferSize-1 bytes after the header. The write lock is held for the
// whole transfer, so no other command interleaves with the chunks. There is
// no way to cancel a transfer once it has started.
func (m *Manager) SendFile(path string, info int) error {
	if _, err := protocol.Encode(m.fileTarget(), protocol.CmdLoad, info); err != nil {
		return err
	}

	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		util.LogError("%s is not a file. Nothing was sent", path)
		return fmt.Errorf("%w: %s is not a file", ErrFileNotFound, path)
	}

	c, err := m.attached()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileNotFound, err)
	}
	defer f.Close()

	util.LogInfo("[%08x] sending file %s", c.tag, path)

	c.wmu.Lock()
	defer c.wmu.Unlock()

	var sent int64
	chunk := make([]byte, m.cfg.BufferSize-protocol.HeaderSize)
	for {
		n, rerr := io.ReadFull(f, chunk)
		if n > 0 {
			frame, err := protocol.EncodeFileChunk(m.fileTarget(), protocol.CmdLoad, info, chunk[:n])
			if err != nil {
				return err
			}
			if _, err := c.writeLocked(frame); err != nil {
				util.LogError("[%08x] error while sending data (still %d bytes sent): %v", c.tag, sent, err)
				return &TransmissionError{Op: "send file", Sent: sent, Err: err}
			}
			sent += int64(n)
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				break
			}
			util.LogError("[%08x] error while reading %s (still %d bytes sent): %v", c.tag, path, sent, rerr)
			return &TransmissionError{Op: "read file", Sent: sent, Err: rerr}
		}
	}

	util.LogInfo("[%08x] data sent (%d bytes)", c.tag, sent)
	return nil
}
