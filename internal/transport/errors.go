package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected           = errors.New("transport: no client is connected")
	ErrFileNotFound           = errors.New("transport: file not found")
	ErrIdentificationRejected = errors.New("transport: peer failed identification")
	ErrClosed                 = errors.New("transport: manager closed")
)

// TransmissionError reports an I/O failure in the middle of a send.
// Sent is the number of payload bytes written before the failure.
type TransmissionError struct {
	Op   string
	Sent int64
	Err  error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("transport: %s failed after %d bytes: %v", e.Op, e.Sent, e.Err)
}

func (e *TransmissionError) Unwrap() error {
	return e.Err
}
