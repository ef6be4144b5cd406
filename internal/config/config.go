// Package config loads the optional YAML file backing the server's tunables,
// layered under whatever flags the caller supplies on top.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File mirrors server.Config, but the address and duration fields are
// strings so durations can be written the way a human would ("10s", "2s")
// rather than as raw nanosecond integers.
type File struct {
	ControlAddr string `yaml:"control_addr,omitempty"`
	RelayAddr   string `yaml:"relay_addr,omitempty"`

	PingInterval string `yaml:"ping_interval,omitempty"`
	PongTimeout  string `yaml:"pong_timeout,omitempty"`
	RelayTTL     string `yaml:"relay_deadline,omitempty"`

	RateLimit float64 `yaml:"rate_limit,omitempty"`
	RateBurst int     `yaml:"rate_burst,omitempty"`
}

// Load reads path as YAML. A missing file is not an error — callers run on
// defaults plus flags alone.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// Duration parses s, returning fallback for an empty string.
func Duration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
