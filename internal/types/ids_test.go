package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_Lifecycle(t *testing.T) {
	id := NewID()
	require.NoError(t, id.Validate())
	assert.False(t, id.IsZero())

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseID("not-a-uuid")
	assert.Error(t, err)
}

func TestID_JSONRoundTrip(t *testing.T) {
	id := NewID()
	raw, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded ID
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, id, decoded)

	var bad ID
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &bad))
}

func TestSortIDs(t *testing.T) {
	ids := []ID{"c", "a", "b"}
	SortIDs(ids)
	assert.Equal(t, []ID{"a", "b", "c"}, ids)
}

func TestScopeContext_EntityID(t *testing.T) {
	userID := NewID()
	sc := ScopeContext{UserID: userID}

	id, ok := sc.EntityID(ScopeUser)
	assert.True(t, ok)
	assert.Equal(t, userID, id)

	_, ok = sc.EntityID(ScopeProject)
	assert.False(t, ok)

	id, ok = sc.EntityID(ScopeDefault)
	assert.True(t, ok)
	assert.True(t, id.IsZero())
}
