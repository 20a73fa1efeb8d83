package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/papercomputeco/ragchat/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the RAGCHAT_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (RAGCHAT_BACKEND_TARGET, RAGCHAT_BACKEND_TOP_K, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: RAGCHAT_BACKEND_TARGET, RAGCHAT_STORAGE_DRIVER, etc.
	v.SetEnvPrefix("RAGCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// WatchViper re-reads config.toml whenever it changes on disk and calls fn
// with the event. It is a no-op when no config file was loaded, since there
// is nothing to watch.
func WatchViper(v *viper.Viper, fn func(fsnotify.Event)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}

	v.OnConfigChange(fn)
	v.WatchConfig()
	return true
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Backend
	v.SetDefault("backend.target", d.Backend.Target)
	v.SetDefault("backend.stream_path", d.Backend.StreamPath)
	v.SetDefault("backend.top_k", d.Backend.TopK)
	v.SetDefault("backend.idle_timeout", d.Backend.IdleTimeout)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Publisher
	v.SetDefault("publisher.provider", d.Publisher.Provider)
	v.SetDefault("publisher.brokers", d.Publisher.Brokers)
	v.SetDefault("publisher.topic", d.Publisher.Topic)

	// Chat
	v.SetDefault("chat.busy_policy", d.Chat.BusyPolicy)
	v.SetDefault("chat.record_dir", d.Chat.RecordDir)

	// Mock backend
	v.SetDefault("mock.listen", d.Mock.Listen)
	v.SetDefault("mock.token_delay", d.Mock.TokenDelay)
}
