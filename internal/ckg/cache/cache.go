// Package cache provides the optional read-through result cache placed in
// front of knowledge graph query operations. Entries expire by TTL only;
// there is no write-triggered invalidation, so a read immediately following
// a write may observe stale data until the TTL lapses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Cache stores serialized query results keyed by the request shape.
// Implementations must be safe for concurrent access by design — the
// store layer adds no locking around them.
type Cache interface {
	// Get retrieves a cached payload. Returns (nil, false) on a miss or
	// after expiry.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a payload under the key for the given TTL.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Health reports whether the cache backing store is reachable.
	Health(ctx context.Context) types.HealthStatus
}

// Key derives a deterministic cache key from the operation name, its
// parameters, and the requested property projection. Parameters are
// canonicalized (sorted keys) so logically identical requests share a key.
func Key(operation string, parameters any, requiredProps []string) (string, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return "", types.WrapError(types.CACHE_ENCODE_FAILED, "failed to encode cache key parameters", err)
	}

	canonical, err := canonicalize(raw)
	if err != nil {
		return "", err
	}

	props := append([]string(nil), requiredProps...)
	sort.Strings(props)

	sum := sha256.Sum256([]byte(operation + "|" + canonical + "|" + strings.Join(props, ",")))
	return operation + ":" + hex.EncodeToString(sum[:16]), nil
}

// canonicalize re-encodes a JSON document with object keys sorted, so map
// iteration order cannot produce distinct keys for the same request.
func canonicalize(raw []byte) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", types.WrapError(types.CACHE_ENCODE_FAILED, "failed to canonicalize cache key", err)
	}
	out, err := json.Marshal(sortValue(v))
	if err != nil {
		return "", types.WrapError(types.CACHE_ENCODE_FAILED, "failed to canonicalize cache key", err)
	}
	return string(out), nil
}

// sortValue rebuilds maps as sorted-key slices of [key, value] pairs.
func sortValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([][2]any, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, [2]any{k, sortValue(t[k])})
		}
		return pairs
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortValue(e)
		}
		return out
	default:
		return v
	}
}
