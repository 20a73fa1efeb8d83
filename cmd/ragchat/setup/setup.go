// Package setup turns the resolved configuration of a ragchat command into
// the components it runs with: the stream client, transcript storage, the
// turn event publisher, and the worker pool between them.
package setup

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/config"
)

// Settings are the values a command runs with after flags, environment,
// config file and defaults have been merged.
type Settings struct {
	ConfigDir string

	Target      string
	StreamPath  string
	TopK        int
	IdleTimeout time.Duration

	StorageDriver string
	SQLitePath    string
	PostgresDSN   string

	Publisher string
	Brokers   []string
	Topic     string

	BusyPolicy client.BusyPolicy
	RecordDir  string

	MockListen string
	TokenDelay time.Duration
}

// Viper initializes viper for cmd's --config-dir and binds every flag of
// the given sets that cmd registered.
func Viper(cmd *cobra.Command, sets ...config.FlagSet) (*viper.Viper, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}

	for _, fs := range sets {
		config.BindRegisteredFlags(v, cmd, fs, slices.Sorted(maps.Keys(fs)))
	}

	return v, nil
}

// Load reads and validates Settings from v.
func Load(v *viper.Viper, configDir string) (*Settings, error) {
	s := &Settings{
		ConfigDir:     configDir,
		Target:        strings.TrimSpace(v.GetString("backend.target")),
		StreamPath:    v.GetString("backend.stream_path"),
		TopK:          v.GetInt("backend.top_k"),
		StorageDriver: strings.ToLower(v.GetString("storage.driver")),
		SQLitePath:    v.GetString("storage.sqlite_path"),
		PostgresDSN:   v.GetString("storage.postgres_dsn"),
		Publisher:     strings.ToLower(v.GetString("publisher.provider")),
		Brokers:       brokers(v.GetStringSlice("publisher.brokers")),
		Topic:         v.GetString("publisher.topic"),
		RecordDir:     v.GetString("chat.record_dir"),
		MockListen:    v.GetString("mock.listen"),
	}

	if s.Target == "" {
		return nil, errors.New("backend.target is not set")
	}
	if s.TopK < 0 {
		return nil, fmt.Errorf("invalid backend.top_k %d", s.TopK)
	}

	var err error
	backend := config.BackendConfig{IdleTimeout: v.GetString("backend.idle_timeout")}
	if s.IdleTimeout, err = backend.IdleTimeoutDuration(); err != nil {
		return nil, err
	}

	if s.TokenDelay, err = parseDelay(v.GetString("mock.token_delay")); err != nil {
		return nil, fmt.Errorf("invalid mock.token_delay: %w", err)
	}

	policy, ok := client.ParseBusyPolicy(strings.ToLower(v.GetString("chat.busy_policy")))
	if !ok {
		return nil, fmt.Errorf("invalid chat.busy_policy %q: must be reject or cancel", v.GetString("chat.busy_policy"))
	}
	s.BusyPolicy = policy

	return s, nil
}

// NewClient builds the stream client for s.
func NewClient(s *Settings, logger *zap.Logger) *client.Client {
	return client.New(client.Config{
		BaseURL:     s.Target,
		StreamPath:  s.StreamPath,
		IdleTimeout: s.IdleTimeout,
	}, logger)
}

func parseDelay(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// brokers flattens comma-separated entries, as given by env vars or a single
// flag value.
func brokers(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, b := range strings.Split(entry, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
