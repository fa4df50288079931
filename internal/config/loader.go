package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Loader handles loading configuration from files.
type Loader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperLoader implements Loader using Viper.
type viperLoader struct {
	validator Validator
}

// NewLoader creates a new Loader instance.
func NewLoader(validator Validator) Loader {
	return &viperLoader{validator: validator}
}

// Load loads configuration from the specified file path. Settings the
// file omits keep their defaults.
// Returns an error if the file doesn't exist or cannot be parsed.
func (l *viperLoader) Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, types.WrapError(types.CONFIG_NOT_FOUND, "config file not found: "+path, err)
		}
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read config file", err)
	}

	cfg := *DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "failed to unmarshal config", err)
	}

	applyInterpolation(&cfg)

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED, "configuration rejected", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads configuration from the specified file path.
// If the file doesn't exist, returns the default configuration.
func (l *viperLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		applyInterpolation(cfg)
		if err := l.validator.Validate(cfg); err != nil {
			return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED, "default configuration rejected", err)
		}
		return cfg, nil
	}
	return l.Load(path)
}

// applyInterpolation expands ${VAR} references in every string setting
// that may carry secrets or machine-local paths.
func applyInterpolation(cfg *Config) {
	cfg.Core.HomeDir = interpolateString(cfg.Core.HomeDir)
	cfg.Core.DataDir = interpolateString(cfg.Core.DataDir)
	cfg.Backend.Neo4j.URI = interpolateString(cfg.Backend.Neo4j.URI)
	cfg.Backend.Neo4j.Username = interpolateString(cfg.Backend.Neo4j.Username)
	cfg.Backend.Neo4j.Password = interpolateString(cfg.Backend.Neo4j.Password)
	cfg.Backend.Local.Path = interpolateString(cfg.Backend.Local.Path)
	cfg.Cache.Redis.Addr = interpolateString(cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = interpolateString(cfg.Cache.Redis.Password)
	cfg.Logging.Level = interpolateString(cfg.Logging.Level)
	cfg.Logging.Output = interpolateString(cfg.Logging.Output)
	cfg.Tracing.Endpoint = interpolateString(cfg.Tracing.Endpoint)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateString replaces ${VAR_NAME} with environment variable values.
// Unset variables leave the reference in place.
func interpolateString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		return match
	})
}
