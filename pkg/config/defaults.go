package config

const (
	defaultBackendTarget = "http://localhost:8000"
	defaultStreamPath    = "/query-stream"
	defaultTopK          = 5
	defaultIdleTimeout   = "60s"

	defaultStorageDriver = "sqlite"
	defaultSQLitePath    = "ragchat.sqlite"

	defaultPublisherProvider = "none"
	defaultPublisherTopic    = "ragchat.turns"

	defaultBusyPolicy = "reject"

	defaultMockListen     = ":8000"
	defaultMockTokenDelay = "40ms"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Backend: BackendConfig{
			Target:      defaultBackendTarget,
			StreamPath:  defaultStreamPath,
			TopK:        defaultTopK,
			IdleTimeout: defaultIdleTimeout,
		},
		Storage: StorageConfig{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		Publisher: PublisherConfig{
			Provider: defaultPublisherProvider,
			Topic:    defaultPublisherTopic,
		},
		Chat: ChatConfig{
			BusyPolicy: defaultBusyPolicy,
		},
		Mock: MockConfig{
			Listen:     defaultMockListen,
			TokenDelay: defaultMockTokenDelay,
		},
	}
}
