package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zynqctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Address.String() != "192.168.1.1:16384" {
		t.Fatalf("default address = %s", cfg.Address)
	}
	if cfg.BufferSize != 512 || !cfg.AllowRaw || cfg.PadFrames {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
host = "0.0.0.0"
port = 9000
buffer_size = 1024
identify_timeout = "2s"
drain_interval = "100ms"
pad_frames = true
allowed_ids = ["01:23:45:67:89:ab", "0xDEAD"]
allow_raw = false

[remote]
enabled = true
addr = "0.0.0.0:8765"
pin = "4321"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Address.String() != "0.0.0.0:9000" {
		t.Fatalf("unexpected address: %s", cfg.Address)
	}
	if cfg.BufferSize != 1024 {
		t.Fatalf("unexpected buffer size: %d", cfg.BufferSize)
	}
	if cfg.IdentifyTimeout != 2*time.Second || cfg.DrainInterval != 100*time.Millisecond {
		t.Fatalf("unexpected durations: %v %v", cfg.IdentifyTimeout, cfg.DrainInterval)
	}
	if cfg.RecvPoll != 50*time.Millisecond {
		t.Fatalf("unset recv_poll lost its default: %v", cfg.RecvPoll)
	}
	if !cfg.PadFrames || cfg.AllowRaw {
		t.Fatalf("unexpected flags: pad %v raw %v", cfg.PadFrames, cfg.AllowRaw)
	}
	if len(cfg.AllowedIDs) != 2 || !bytes.Equal(cfg.AllowedIDs[0], []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab}) || !bytes.Equal(cfg.AllowedIDs[1], []byte{0xde, 0xad}) {
		t.Fatalf("unexpected ids: %x", cfg.AllowedIDs)
	}
	if !cfg.Remote.Enabled || cfg.Remote.Addr != "0.0.0.0:8765" || cfg.Remote.PIN != "4321" {
		t.Fatalf("unexpected remote: %+v", cfg.Remote)
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"bad duration", `poll_interval = "soon"`},
		{"bad id", `allowed_ids = ["xyz"]`},
		{"unknown key", `hots = "10.0.0.1"`},
		{"small buffer", `buffer_size = 1`},
		{"bad port", `port = 70000`},
		{"bad pin", "[remote]\nenabled = true\npin = \"abcd\""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Load() of a missing file succeeded")
	}
}

func TestParseID(t *testing.T) {
	testCases := []struct {
		in   string
		want []byte
	}{
		{"0123456789ab", []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab}},
		{"0x01-23", []byte{0x01, 0x23}},
		{" ff ee ", []byte{0xff, 0xee}},
	}
	for _, tc := range testCases {
		got, err := ParseID(tc.in)
		if err != nil || !bytes.Equal(got, tc.want) {
			t.Errorf("ParseID(%q) = %x, %v, want %x", tc.in, got, err, tc.want)
		}
	}

	for _, in := range []string{"", "0x", "abc"} {
		if _, err := ParseID(in); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("ParseID(%q) error = %v", in, err)
		}
	}
}

func TestDefaultLogFile(t *testing.T) {
	now := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	if got := DefaultLogFile(now); got != filepath.Join("logs", "zynqctl_07-03-2024.log") {
		t.Fatalf("DefaultLogFile() = %q", got)
	}
}
