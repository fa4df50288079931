// Package backend provides the physical storage implementations behind the
// knowledge graph Store: a Neo4j-backed native engine and a SQLite-backed
// local fallback, selected once at engine construction by a bounded
// availability probe.
package backend

import (
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
)

// Config contains configuration for backend selection and both engines.
type Config struct {
	// ProbeTimeout bounds the native-engine availability probe. On probe
	// failure the engine uses the local store for its whole lifetime.
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`

	Neo4j Neo4jConfig `yaml:"neo4j" mapstructure:"neo4j"`
	Local LocalConfig `yaml:"local" mapstructure:"local"`
}

// Neo4jConfig contains the native graph engine connection settings.
type Neo4jConfig struct {
	// URI is the connection URI, e.g. "bolt://localhost:7687" or
	// "neo4j+s://host" for routed TLS connections.
	URI      string `yaml:"uri" mapstructure:"uri"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	// Database selects the Neo4j database; empty uses the default.
	Database string `yaml:"database" mapstructure:"database"`
	// PoolSize limits driver connections; zero uses the driver default.
	PoolSize int `yaml:"pool_size" mapstructure:"pool_size"`
	// ConnectionTimeout is the maximum time to wait for a connection.
	ConnectionTimeout time.Duration `yaml:"connection_timeout" mapstructure:"connection_timeout"`
	// MaxTransactionRetryTime is the maximum time to retry failed transactions.
	MaxTransactionRetryTime time.Duration `yaml:"max_transaction_retry_time" mapstructure:"max_transaction_retry_time"`
}

// LocalConfig contains the local fallback store settings.
type LocalConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`
	// BusyTimeout is the SQLite busy timeout.
	BusyTimeout  time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout: 3 * time.Second,
		Neo4j: Neo4jConfig{
			URI:                     "bolt://localhost:7687",
			Username:                "neo4j",
			Password:                "password",
			PoolSize:                50,
			ConnectionTimeout:       30 * time.Second,
			MaxTransactionRetryTime: 30 * time.Second,
		},
		Local: LocalConfig{
			Path:         "warp-ckg.db",
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.ProbeTimeout <= 0 {
		return ckg.NewConfigError("probe_timeout must be positive", nil)
	}
	if c.Neo4j.URI == "" {
		return ckg.NewConfigError("neo4j.uri cannot be empty", nil)
	}
	if c.Neo4j.ConnectionTimeout <= 0 {
		return ckg.NewConfigError("neo4j.connection_timeout must be positive", nil)
	}
	if c.Local.Path == "" {
		return ckg.NewConfigError("local.path cannot be empty", nil)
	}
	return nil
}
