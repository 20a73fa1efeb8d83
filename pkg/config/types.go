package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent ragchat configuration stored as
// config.toml in the .ragchat/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Backend   BackendConfig   `toml:"backend"`
	Storage   StorageConfig   `toml:"storage"`
	Publisher PublisherConfig `toml:"publisher"`
	Chat      ChatConfig      `toml:"chat"`
	Mock      MockConfig      `toml:"mock"`
}

// BackendConfig holds settings for reaching the answer backend. Target is a
// full URL (scheme + host + port).
type BackendConfig struct {
	Target     string `toml:"target,omitempty"`
	StreamPath string `toml:"stream_path,omitempty"`
	TopK       uint   `toml:"top_k,omitempty"`

	// IdleTimeout is a Go duration string, e.g. "30s". "0" disables it.
	IdleTimeout string `toml:"idle_timeout,omitempty"`
}

// IdleTimeoutDuration parses IdleTimeout. An empty value disables the timeout.
func (b BackendConfig) IdleTimeoutDuration() (time.Duration, error) {
	if b.IdleTimeout == "" || b.IdleTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid backend.idle_timeout: %w", err)
	}
	return d, nil
}

// StorageConfig selects where finished exchanges are persisted.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// PublisherConfig selects where finalized-turn events are published.
type PublisherConfig struct {
	// Provider is "none" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// ChatConfig holds settings for the interactive chat commands.
type ChatConfig struct {
	// BusyPolicy is "reject" or "cancel".
	BusyPolicy string `toml:"busy_policy,omitempty"`

	// RecordDir, when set, receives a raw copy of every answer stream.
	RecordDir string `toml:"record_dir,omitempty"`
}

// MockConfig holds settings for the development backend.
type MockConfig struct {
	Listen     string `toml:"listen,omitempty"`
	TokenDelay string `toml:"token_delay,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"backend.target": {
		get: func(c *Config) string { return c.Backend.Target },
		set: func(c *Config, v string) error { c.Backend.Target = v; return nil },
	},
	"backend.stream_path": {
		get: func(c *Config) string { return c.Backend.StreamPath },
		set: func(c *Config, v string) error { c.Backend.StreamPath = v; return nil },
	},
	"backend.top_k": {
		get: func(c *Config) string {
			if c.Backend.TopK == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Backend.TopK), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for backend.top_k: %w", err)
			}
			c.Backend.TopK = uint(n)
			return nil
		},
	},
	"backend.idle_timeout": {
		get: func(c *Config) string { return c.Backend.IdleTimeout },
		set: func(c *Config, v string) error {
			if v != "0" {
				if _, err := time.ParseDuration(v); err != nil {
					return fmt.Errorf("invalid value for backend.idle_timeout: %w", err)
				}
			}
			c.Backend.IdleTimeout = v
			return nil
		},
	},
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case "memory", "sqlite", "postgres":
				c.Storage.Driver = v
				return nil
			default:
				return fmt.Errorf("invalid value for storage.driver: %q (available: memory, sqlite, postgres)", v)
			}
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"publisher.provider": {
		get: func(c *Config) string { return c.Publisher.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case "none", "kafka":
				c.Publisher.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for publisher.provider: %q (available: none, kafka)", v)
			}
		},
	},
	"publisher.brokers": {
		get: func(c *Config) string { return strings.Join(c.Publisher.Brokers, ",") },
		set: func(c *Config, v string) error { c.Publisher.Brokers = splitList(v); return nil },
	},
	"publisher.topic": {
		get: func(c *Config) string { return c.Publisher.Topic },
		set: func(c *Config, v string) error { c.Publisher.Topic = v; return nil },
	},
	"chat.busy_policy": {
		get: func(c *Config) string { return c.Chat.BusyPolicy },
		set: func(c *Config, v string) error {
			switch v {
			case "reject", "cancel":
				c.Chat.BusyPolicy = v
				return nil
			default:
				return fmt.Errorf("invalid value for chat.busy_policy: %q (available: reject, cancel)", v)
			}
		},
	},
	"chat.record_dir": {
		get: func(c *Config) string { return c.Chat.RecordDir },
		set: func(c *Config, v string) error { c.Chat.RecordDir = v; return nil },
	},
	"mock.listen": {
		get: func(c *Config) string { return c.Mock.Listen },
		set: func(c *Config, v string) error { c.Mock.Listen = v; return nil },
	},
	"mock.token_delay": {
		get: func(c *Config) string { return c.Mock.TokenDelay },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for mock.token_delay: %w", err)
			}
			c.Mock.TokenDelay = v
			return nil
		},
	},
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
