// Package config loads and validates the Warp configuration file.
package config

import (
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg/backend"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg/cache"
)

// Config is the root configuration for the Warp knowledge core.
type Config struct {
	Core    CoreConfig     `mapstructure:"core" yaml:"core"`
	Backend backend.Config `mapstructure:"backend" yaml:"backend"`
	Cache   CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Logging LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Tracing TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

// CoreConfig holds paths the process writes under.
type CoreConfig struct {
	// HomeDir is the base directory for Warp state. Supports ${VAR}
	// interpolation from the environment.
	HomeDir string `mapstructure:"home_dir" yaml:"home_dir" validate:"required"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// CacheConfig configures the read-through result cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Kind selects the cache implementation.
	Kind string `mapstructure:"kind" yaml:"kind" validate:"omitempty,oneof=memory redis"`
	// DefaultTTL applies when a caller enables caching without a TTL.
	DefaultTTL time.Duration      `mapstructure:"default_ttl" yaml:"default_ttl"`
	Redis      cache.RedisOptions `mapstructure:"redis" yaml:"redis"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			HomeDir: "${HOME}/.warp",
			DataDir: "${HOME}/.warp/data",
		},
		Backend: backend.DefaultConfig(),
		Cache: CacheConfig{
			Enabled:    true,
			Kind:       "memory",
			DefaultTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			SampleRate: 1.0,
		},
	}
}
