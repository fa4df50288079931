package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeProps_PrimitivesPassThrough(t *testing.T) {
	encoded, err := encodeProps(map[string]any{
		"title":  "fix login bug",
		"active": true,
		"order":  3,
		"score":  0.5,
		"tags":   []string{"auth", "backend"},
	})
	require.NoError(t, err)

	assert.Equal(t, "fix login bug", encoded["title"])
	assert.Equal(t, true, encoded["active"])
	assert.Equal(t, 3, encoded["order"])
	assert.NotContains(t, encoded, jsonKeysProp)
}

func TestEncodeDecodeProps_CompositeRoundTrip(t *testing.T) {
	original := map[string]any{
		"title": "composite",
		"metadata": map[string]any{
			"retries": float64(2),
			"nested":  map[string]any{"deep": "value"},
		},
		"steps": []any{map[string]any{"order": float64(1)}},
	}

	encoded, err := encodeProps(original)
	require.NoError(t, err)

	// Composites are stored as JSON strings and tracked.
	assert.IsType(t, "", encoded["metadata"])
	assert.IsType(t, "", encoded["steps"])
	assert.ElementsMatch(t, []string{"metadata", "steps"}, encoded[jsonKeysProp])

	decoded, err := decodeProps(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
	assert.NotContains(t, decoded, jsonKeysProp)
}

func TestDecodeProps_JSONKeysFromDriverSlice(t *testing.T) {
	// Drivers hand list properties back as []any, not []string.
	decoded, err := decodeProps(map[string]any{
		"metadata":   `{"a":1}`,
		jsonKeysProp: []any{"metadata"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, decoded["metadata"])
}

func TestDecodeProps_CorruptEncodedProperty(t *testing.T) {
	_, err := decodeProps(map[string]any{
		"metadata":   "{not json",
		jsonKeysProp: []string{"metadata"},
	})
	require.Error(t, err)
}

func TestProjectProps(t *testing.T) {
	props := map[string]any{"title": "t", "status": "TODO", "description": "d"}

	t.Run("empty projection returns everything", func(t *testing.T) {
		assert.Equal(t, props, projectProps(props, nil))
	})

	t.Run("projection keeps only requested keys", func(t *testing.T) {
		out := projectProps(props, []string{"title", "missing"})
		assert.Equal(t, map[string]any{"title": "t"}, out)
	})
}

func TestMillisRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	assert.Equal(t, ts, fromMillis(millis(ts)))
}

func TestAsInt64(t *testing.T) {
	assert.Equal(t, int64(42), asInt64(int64(42)))
	assert.Equal(t, int64(42), asInt64(42))
	assert.Equal(t, int64(42), asInt64(float64(42)))
	assert.Equal(t, int64(0), asInt64("42"))
}
