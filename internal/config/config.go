package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config aggregates every setting the service reads from the environment.
type Config struct {
	Server ServerConfig
	Chat   ChatConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
}

// Addr normalizes PORT into a listen address. Both "8080" and ":8080" (or a
// full "127.0.0.1:8080") are accepted.
func (c ServerConfig) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// ChatConfig tunes the chat engine's housekeeping and the vehicle boundary.
type ChatConfig struct {
	// SweepInterval is how often the background sweep closes expired
	// sessions. Expiry itself is enforced on every append regardless.
	SweepInterval time.Duration `env:"CHAT_SWEEP_INTERVAL" envDefault:"1m"`

	// VehicleRefs optionally pins the set of known vehicle tags. Empty means
	// the upstream registry is trusted and any non-empty ref is accepted.
	VehicleRefs []string `env:"VEHICLE_REFS" envSeparator:","`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	port := strings.TrimSpace(cfg.Server.Port)
	if port == "" || strings.Contains(port, " ") {
		return nil, fmt.Errorf("invalid PORT value: %q", cfg.Server.Port)
	}
	cfg.Server.Port = port

	refs := cfg.Chat.VehicleRefs[:0]
	for _, ref := range cfg.Chat.VehicleRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	cfg.Chat.VehicleRefs = refs

	return cfg, nil
}
