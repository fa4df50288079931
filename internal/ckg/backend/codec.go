package backend

import (
	"encoding/json"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
)

// jsonKeysProp records which stored property values are JSON-encoded
// composites. Graph engines only hold primitive property values, so maps
// and heterogeneous slices round-trip through JSON strings.
const jsonKeysProp = "_jsonKeys"

// encodeProps flattens a property map for storage: primitives and string
// slices pass through, composite values are JSON-encoded with their keys
// recorded under jsonKeysProp.
func encodeProps(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props)+1)
	var jsonKeys []string

	for key, value := range props {
		switch value.(type) {
		case nil, string, bool, int, int32, int64, float32, float64, []string:
			out[key] = value
		default:
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, ckg.NewSerializationError("failed to encode property "+key, err)
			}
			out[key] = string(raw)
			jsonKeys = append(jsonKeys, key)
		}
	}

	if len(jsonKeys) > 0 {
		out[jsonKeysProp] = jsonKeys
	}
	return out, nil
}

// decodeProps reverses encodeProps, restoring composite values recorded
// under jsonKeysProp.
func decodeProps(stored map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(stored))
	jsonKeys := make(map[string]struct{})

	switch keys := stored[jsonKeysProp].(type) {
	case []string:
		for _, k := range keys {
			jsonKeys[k] = struct{}{}
		}
	case []any:
		for _, k := range keys {
			if s, ok := k.(string); ok {
				jsonKeys[s] = struct{}{}
			}
		}
	}

	for key, value := range stored {
		if key == jsonKeysProp {
			continue
		}
		if _, encoded := jsonKeys[key]; encoded {
			raw, ok := value.(string)
			if !ok {
				return nil, ckg.NewSerializationError("corrupt encoded property "+key, nil)
			}
			var decoded any
			if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
				return nil, ckg.NewSerializationError("failed to decode property "+key, err)
			}
			out[key] = decoded
			continue
		}
		out[key] = value
	}
	return out, nil
}

// projectProps restricts a property map to the requested projection.
// An empty projection returns the map unchanged.
func projectProps(props map[string]any, requiredProps []string) map[string]any {
	if len(requiredProps) == 0 {
		return props
	}
	out := make(map[string]any, len(requiredProps))
	for _, key := range requiredProps {
		if v, ok := props[key]; ok {
			out[key] = v
		}
	}
	return out
}

// millis converts a time to the unix-millisecond representation used for
// stored timestamps.
func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// fromMillis converts a stored unix-millisecond timestamp back to a time.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// asInt64 coerces the numeric types a driver may hand back for a stored
// millisecond timestamp.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
