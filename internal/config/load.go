package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	BufferSize      int      `toml:"buffer_size"`
	PollInterval    string   `toml:"poll_interval"`
	RecvPoll        string   `toml:"recv_poll"`
	IdentifyTimeout string   `toml:"identify_timeout"`
	IdentifyRetry   string   `toml:"identify_retry"`
	DrainInterval   string   `toml:"drain_interval"`
	PadFrames       bool     `toml:"pad_frames"`
	LegacyFileTag   bool     `toml:"legacy_file_tag"`
	AllowedIDs      []string `toml:"allowed_ids"`
	AllowRaw        bool     `toml:"allow_raw"`
	LogFile         string   `toml:"log_file"`
	Debug           bool     `toml:"debug"`
	Remote          struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
		PIN     string `toml:"pin"`
	} `toml:"remote"`
}

// Load reads a TOML file over Default. Keys absent from the file keep their
// default value. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	if meta.IsDefined("host") {
		cfg.Address.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Address.Port = raw.Port
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"recv_poll", raw.RecvPoll, &cfg.RecvPoll},
		{"identify_timeout", raw.IdentifyTimeout, &cfg.IdentifyTimeout},
		{"identify_retry", raw.IdentifyRetry, &cfg.IdentifyRetry},
		{"drain_interval", raw.DrainInterval, &cfg.DrainInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("pad_frames") {
		cfg.PadFrames = raw.PadFrames
	}
	if meta.IsDefined("legacy_file_tag") {
		cfg.LegacyFileTag = raw.LegacyFileTag
	}
	if meta.IsDefined("allowed_ids") {
		ids, err := ParseIDs(raw.AllowedIDs)
		if err != nil {
			return Config{}, err
		}
		cfg.AllowedIDs = ids
	}
	if meta.IsDefined("allow_raw") {
		cfg.AllowRaw = raw.AllowRaw
	}
	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}

	if meta.IsDefined("remote", "enabled") {
		cfg.Remote.Enabled = raw.Remote.Enabled
	}
	if meta.IsDefined("remote", "addr") {
		cfg.Remote.Addr = strings.TrimSpace(raw.Remote.Addr)
	}
	if meta.IsDefined("remote", "pin") {
		cfg.Remote.PIN = strings.TrimSpace(raw.Remote.PIN)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
