package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

func TestKey_ParameterOrderIndependent(t *testing.T) {
	a, err := Key("getNodeById", map[string]any{"nodeType": "Task", "id": "abc"}, nil)
	require.NoError(t, err)
	b, err := Key("getNodeById", map[string]any{"id": "abc", "nodeType": "Task"}, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKey_NestedParametersCanonicalized(t *testing.T) {
	a, err := Key("resolveConfigByScope", map[string]any{
		"context":    map[string]any{"userId": "u1", "projectId": "p1"},
		"categories": []string{"rules"},
	}, nil)
	require.NoError(t, err)
	b, err := Key("resolveConfigByScope", map[string]any{
		"categories": []string{"rules"},
		"context":    map[string]any{"projectId": "p1", "userId": "u1"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKey_DistinguishesRequests(t *testing.T) {
	base, err := Key("getNodeById", map[string]any{"id": "abc"}, nil)
	require.NoError(t, err)

	t.Run("different operation", func(t *testing.T) {
		other, err := Key("findNodesByLabel", map[string]any{"id": "abc"}, nil)
		require.NoError(t, err)
		assert.NotEqual(t, base, other)
	})

	t.Run("different parameters", func(t *testing.T) {
		other, err := Key("getNodeById", map[string]any{"id": "def"}, nil)
		require.NoError(t, err)
		assert.NotEqual(t, base, other)
	})

	t.Run("different projection", func(t *testing.T) {
		other, err := Key("getNodeById", map[string]any{"id": "abc"}, []string{"title"})
		require.NoError(t, err)
		assert.NotEqual(t, base, other)
	})
}

func TestKey_UnencodableParameters(t *testing.T) {
	_, err := Key("getNodeById", map[string]any{"ch": make(chan int)}, nil)
	require.Error(t, err)

	var werr *types.WarpError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, types.CACHE_ENCODE_FAILED, werr.Code)
	assert.False(t, werr.Retryable)
}

func TestKey_ProjectionOrderIndependent(t *testing.T) {
	a, err := Key("getNodeById", map[string]any{"id": "abc"}, []string{"title", "status"})
	require.NoError(t, err)
	b, err := Key("getNodeById", map[string]any{"id": "abc"}, []string{"status", "title"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	payload, ok := c.Get(ctx, "missing")
	assert.False(t, ok)
	assert.Nil(t, payload)

	c.Set(ctx, "k", []byte(`{"hit":true}`), time.Minute)
	payload, ok = c.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"hit":true}`, string(payload))
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	c.Set(ctx, "short", []byte("v"), 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
}

func TestMemoryCache_NonPositiveTTLStoresNothing(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	c.Set(ctx, "zero", []byte("v"), 0)
	_, ok := c.Get(ctx, "zero")
	assert.False(t, ok)
}

func TestMemoryCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)
	require.NoError(t, c.Clear(ctx))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
}
