package main

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/thainguyen06/pmc/internal/config"
	"github.com/thainguyen06/pmc/internal/peer"
)

// fileConfig is the on-disk TOML shape (spec §6 "config file, parsed by the
// collaborator"). Durations are seconds in the file (except the watch
// debounce window, in milliseconds), converted to time.Duration once
// parsed; this keeps the file human-editable without
// pulling a duration-string parser into the config layer.
type fileConfig struct {
	Role                     string        `toml:"role"`
	SocketPath               string        `toml:"socket_path"`
	Shell                    string        `toml:"shell"`
	SampleIntervalSeconds    float64       `toml:"sample_interval_seconds"`
	WatchDebounceMillis      int           `toml:"watch_debounce_millis"`
	TerminateGraceSeconds    float64       `toml:"terminate_grace_seconds"`
	MinUptimeForResetSeconds float64       `toml:"min_uptime_for_backoff_reset_seconds"`
	DefaultCrashLimit        int           `toml:"default_crash_limit"`
	PeerTimeoutSeconds       float64       `toml:"peer_timeout_seconds"`
	AuthToken                string        `toml:"auth_token"`
	HTTPAddr                 string        `toml:"http_addr"`
	Servers                  []peer.Server `toml:"servers"`
}

// loadConfig reads path (if it exists) over config.Default(stateDir). A
// missing config file is not an error: every field has a sensible default
// (spec §1 "Configuration file parsing ... optional").
func loadConfig(path, stateDir string) (config.Config, []peer.Server, error) {
	cfg := config.Default(stateDir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil, nil
		}
		return cfg, nil, err
	}

	var fc fileConfig
	if _, err := toml.Decode(string(data), &fc); err != nil {
		return cfg, nil, err
	}

	if fc.Role == string(config.RoleAgent) {
		cfg.Role = config.RoleAgent
	}
	if fc.SocketPath != "" {
		cfg.SocketPath = fc.SocketPath
	}
	if fc.Shell != "" {
		cfg.Shell = fc.Shell
	}
	if fc.SampleIntervalSeconds > 0 {
		cfg.SampleInterval = time.Duration(fc.SampleIntervalSeconds * float64(time.Second))
	}
	if fc.WatchDebounceMillis > 0 {
		cfg.WatchDebounce = time.Duration(fc.WatchDebounceMillis) * time.Millisecond
	}
	if fc.TerminateGraceSeconds > 0 {
		cfg.TerminateGrace = time.Duration(fc.TerminateGraceSeconds * float64(time.Second))
	}
	if fc.MinUptimeForResetSeconds > 0 {
		cfg.MinUptimeForBackoffReset = time.Duration(fc.MinUptimeForResetSeconds * float64(time.Second))
	}
	if fc.DefaultCrashLimit > 0 {
		cfg.DefaultCrashLimit = fc.DefaultCrashLimit
	}
	if fc.PeerTimeoutSeconds > 0 {
		cfg.PeerTimeout = time.Duration(fc.PeerTimeoutSeconds * float64(time.Second))
	}
	if fc.AuthToken != "" {
		cfg.AuthToken = fc.AuthToken
	}
	if fc.HTTPAddr != "" {
		cfg.HTTPAddr = fc.HTTPAddr
	}
	return cfg, fc.Servers, nil
}
