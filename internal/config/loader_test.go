package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithDefaults_MissingFile(t *testing.T) {
	loader := NewLoader(NewValidator())

	cfg, err := loader.LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Kind)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	// The ${HOME} default is expanded before use.
	assert.NotContains(t, cfg.Core.HomeDir, "${")
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
core:
  home_dir: /var/lib/warp
backend:
  neo4j:
    uri: bolt://graph:7687
    username: neo4j
    password: secret
logging:
  level: debug
  format: json
cache:
  enabled: true
  kind: memory
  default_ttl: 90s
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/warp", cfg.Core.HomeDir)
	assert.Equal(t, "bolt://graph:7687", cfg.Backend.Neo4j.URI)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
}

func TestLoad_EnvInterpolation(t *testing.T) {
	t.Setenv("WARP_TEST_NEO4J_PASSWORD", "hunter2")
	t.Setenv("WARP_TEST_HOME", "/srv/warp")

	path := writeConfig(t, `
core:
  home_dir: ${WARP_TEST_HOME}
backend:
  neo4j:
    uri: bolt://localhost:7687
    username: neo4j
    password: ${WARP_TEST_NEO4J_PASSWORD}
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/warp", cfg.Core.HomeDir)
	assert.Equal(t, "hunter2", cfg.Backend.Neo4j.Password)
}

func TestLoad_UnsetEnvVarLeftInPlace(t *testing.T) {
	path := writeConfig(t, `
core:
  home_dir: ${WARP_TEST_UNSET_DIR}
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${WARP_TEST_UNSET_DIR}", cfg.Core.HomeDir)
}

func TestLoad_ValidationFailures(t *testing.T) {
	loader := NewLoader(NewValidator())

	t.Run("explicitly empty home dir", func(t *testing.T) {
		_, err := loader.Load(writeConfig(t, `
core:
  home_dir: ""
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "home_dir")
	})

	t.Run("bad log level", func(t *testing.T) {
		_, err := loader.Load(writeConfig(t, `
core:
  home_dir: /tmp/warp
logging:
  level: loud
`))
		require.Error(t, err)
	})

	t.Run("bad cache kind", func(t *testing.T) {
		_, err := loader.Load(writeConfig(t, `
core:
  home_dir: /tmp/warp
cache:
  kind: memcached
`))
		require.Error(t, err)
	})

	t.Run("redis kind requires an address", func(t *testing.T) {
		_, err := loader.Load(writeConfig(t, `
core:
  home_dir: /tmp/warp
cache:
  enabled: true
  kind: redis
`))
		require.Error(t, err)
	})

	t.Run("sample rate out of range", func(t *testing.T) {
		_, err := loader.Load(writeConfig(t, `
core:
  home_dir: /tmp/warp
tracing:
  enabled: true
  sample_rate: 1.5
`))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := loader.Load(writeConfig(t, "core: [unclosed"))
		require.Error(t, err)
	})
}

func TestLoad_ErrorsCarryCodes(t *testing.T) {
	loader := NewLoader(NewValidator())

	assertCode := func(t *testing.T, err error, code types.ErrorCode) {
		t.Helper()
		var werr *types.WarpError
		require.True(t, errors.As(err, &werr))
		assert.Equal(t, code, werr.Code)
		assert.False(t, werr.Retryable)
		assert.NotNil(t, werr.Unwrap())
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := loader.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assertCode(t, err, types.CONFIG_NOT_FOUND)
	})

	t.Run("unreadable yaml", func(t *testing.T) {
		_, err := loader.Load(writeConfig(t, "core: [unclosed"))
		assertCode(t, err, types.CONFIG_LOAD_FAILED)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := loader.Load(writeConfig(t, `
core:
  home_dir: /tmp/warp
cache:
  default_ttl: [not, a, duration]
`))
		assertCode(t, err, types.CONFIG_PARSE_FAILED)
	})

	t.Run("rejected by validation", func(t *testing.T) {
		_, err := loader.Load(writeConfig(t, `
core:
  home_dir: ""
`))
		assertCode(t, err, types.CONFIG_VALIDATION_FAILED)
	})
}
