package domain

import "time"

// Config holds the complete Lanemeter configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Profile determines which backing services are wired
	Profile Profile `json:"profile"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Profile represents the deployment profile.
type Profile string

const (
	// ProfileStandalone runs on SQLite, an in-process LRU cache and a
	// channel bus; no external services needed.
	ProfileStandalone Profile = "standalone"

	// ProfileCluster runs on PostgreSQL, Redis and NATS.
	ProfileCluster Profile = "cluster"
)

// DefaultConfig returns a default configuration for the standalone
// profile.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Profile: ProfileStandalone,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./lanemeter.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			RuleTTL:      time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "lanemeter",
		},
	}
}

// ClusterConfig returns a configuration for the cluster profile.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileCluster
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "lanemeter",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		RuleTTL:        time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
