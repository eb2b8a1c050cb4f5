// Package config holds the server configuration: defaults, the TOML file
// overlay, and validation.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid config")

// Address is where the server listens for the board.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Remote configures the optional WebSocket console.
type Remote struct {
	Enabled bool
	Addr    string
	PIN     string // random when empty
}

// Config stores every runtime parameter.
type Config struct {
	Address         Address
	BufferSize      int
	PollInterval    time.Duration
	RecvPoll        time.Duration
	IdentifyTimeout time.Duration
	IdentifyRetry   time.Duration
	DrainInterval   time.Duration
	PadFrames       bool
	LegacyFileTag   bool
	AllowedIDs      [][]byte
	AllowRaw        bool
	LogFile         string // DefaultLogFile when empty
	Debug           bool
	Remote          Remote
}

// Default returns the settings used by the lab board.
func Default() Config {
	return Config{
		Address:         Address{Host: "192.168.1.1", Port: 16384},
		BufferSize:      512,
		PollInterval:    time.Second,
		RecvPoll:        50 * time.Millisecond,
		IdentifyTimeout: 5 * time.Second,
		IdentifyRetry:   50 * time.Millisecond,
		DrainInterval:   500 * time.Millisecond,
		AllowRaw:        true,
		Remote:          Remote{Addr: "127.0.0.1:8765"},
	}
}

// DefaultLogFile is the per-day log path under logs/.
func DefaultLogFile(now time.Time) string {
	return filepath.Join("logs", fmt.Sprintf("zynqctl_%s.log", now.Format("02-01-2006")))
}

// Validate checks ranges that would make the server misbehave.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Address.Host) == "":
		return fmt.Errorf("%w: host is empty", ErrInvalidConfig)
	case c.Address.Port < 0 || c.Address.Port > 65535:
		return fmt.Errorf("%w: port %d out of range 0~65535", ErrInvalidConfig, c.Address.Port)
	case c.BufferSize < 2:
		return fmt.Errorf("%w: buffer_size must be at least 2 (got %d)", ErrInvalidConfig, c.BufferSize)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"poll_interval", c.PollInterval},
		{"recv_poll", c.RecvPoll},
		{"identify_timeout", c.IdentifyTimeout},
		{"identify_retry", c.IdentifyRetry},
		{"drain_interval", c.DrainInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%w: %s must be positive (got %v)", ErrInvalidConfig, d.name, d.d)
		}
	}

	if c.Remote.Enabled {
		if _, _, err := net.SplitHostPort(c.Remote.Addr); err != nil {
			return fmt.Errorf("%w: remote addr %q: %v", ErrInvalidConfig, c.Remote.Addr, err)
		}
		if strings.Trim(c.Remote.PIN, "0123456789") != "" {
			return fmt.Errorf("%w: remote pin must be numeric", ErrInvalidConfig)
		}
	}
	return nil
}

// ParseID decodes a device identifier written as hex. A 0x prefix and
// ':', '-' or space separators are accepted.
func ParseID(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty device id", ErrInvalidConfig)
	}
	id, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: device id %q: %v", ErrInvalidConfig, s, err)
	}
	return id, nil
}

// ParseIDs decodes a list of identifiers with ParseID.
func ParseIDs(in []string) ([][]byte, error) {
	out := make([][]byte, 0, len(in))
	for _, s := range in {
		id, err := ParseID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
