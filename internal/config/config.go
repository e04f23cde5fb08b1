// Package config loads service configuration from the environment and an
// optional YAML file. Environment variables use the CHRONO_ prefix with
// underscores mapping to nesting (CHRONO_SERVER_PORT -> server.port).
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPort is the network listener default.
const DefaultPort = 8765

// Config is the full service configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Watch  WatchConfig  `koanf:"watch"`
	Store  StoreConfig  `koanf:"store"`
	Stream StreamConfig `koanf:"stream"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// WatchConfig configures the progress-log tail. An empty Dir disables the
// watcher entirely; lifecycle-event tracking continues without it.
type WatchConfig struct {
	Dir    string        `koanf:"dir"`
	Rescan time.Duration `koanf:"rescan"`
}

// StoreConfig configures the event store.
type StoreConfig struct {
	Capacity int `koanf:"capacity"`
	// Grace is how long a non-terminal agent may go silent before it is
	// surfaced as orphaned. Zero disables the sweep.
	Grace time.Duration `koanf:"grace"`
}

// StreamConfig configures live delivery.
type StreamConfig struct {
	Queue int `koanf:"queue"`
}

// Load reads configuration from the optional YAML file at path (skipped when
// empty or missing) and then the environment, which takes precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("CHRONO_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CHRONO_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]any{
		"server.port":    DefaultPort,
		"watch.rescan":   "2s",
		"store.capacity": 10_000,
		"store.grace":    "15m",
		"stream.queue":   256,
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
