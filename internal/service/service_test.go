package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg/backend"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg/cache"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/plan"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/scope"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, ckg.Store) {
	t.Helper()
	be := backend.NewMemoryBackend()
	require.NoError(t, be.Connect(context.Background()))
	store := ckg.NewStore(be)
	resolver := scope.NewResolver(store)
	planner := plan.NewPlanner(store, resolver)
	return NewService(store, resolver, planner, opts...), store
}

func createTask(t *testing.T, store ckg.Store, title string) *ckg.Node {
	t.Helper()
	node, err := store.CreateNode(context.Background(), ckg.NodeTypeTask, map[string]any{
		"title": title, "taskLevel": "TASK",
	})
	require.NoError(t, err)
	return node
}

func TestQuery_RequestValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	t.Run("unknown query type", func(t *testing.T) {
		result := svc.Query(ctx, QueryRequest{
			QueryType:  "teleport",
			Parameters: map[string]any{},
		})
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
	})

	t.Run("missing parameters", func(t *testing.T) {
		result := svc.Query(ctx, QueryRequest{QueryType: QueryGetNodeByID})
		assert.False(t, result.Success)
	})
}

func TestQuery_GetNodeByID(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	task := createTask(t, store, "envelope task")

	t.Run("found", func(t *testing.T) {
		result := svc.Query(ctx, QueryRequest{
			QueryType:  QueryGetNodeByID,
			Parameters: map[string]any{"nodeType": "Task", "id": task.ID.String()},
		})
		require.True(t, result.Success, result.Error)
		assert.Equal(t, string(ckg.SourceLocal), result.Source)
		require.NotNil(t, result.Timing)

		node, ok := result.Data.(*ckg.Node)
		require.True(t, ok)
		assert.Equal(t, task.ID, node.ID)
	})

	t.Run("absence is success with null data", func(t *testing.T) {
		result := svc.Query(ctx, QueryRequest{
			QueryType:  QueryGetNodeByID,
			Parameters: map[string]any{"nodeType": "Task", "id": types.NewID().String()},
		})
		require.True(t, result.Success, result.Error)

		node, ok := result.Data.(*ckg.Node)
		require.True(t, ok)
		assert.Nil(t, node)
	})

	t.Run("malformed id is an error envelope", func(t *testing.T) {
		result := svc.Query(ctx, QueryRequest{
			QueryType:  QueryGetNodeByID,
			Parameters: map[string]any{"nodeType": "Task", "id": "nope"},
		})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "id")
	})
}

func TestQuery_FindNodesByLabel(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	createTask(t, store, "one")
	createTask(t, store, "two")

	result := svc.Query(ctx, QueryRequest{
		QueryType:  QueryFindNodesByLabel,
		Parameters: map[string]any{"nodeType": "Task"},
	})
	require.True(t, result.Success, result.Error)

	nodes, ok := result.Results.([]ckg.Node)
	require.True(t, ok)
	assert.Len(t, nodes, 2)
}

func TestQuery_CacheReadThrough(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, WithCache(cache.NewMemoryCache()))
	task := createTask(t, store, "cached task")

	req := QueryRequest{
		QueryType:    QueryGetNodeByID,
		Parameters:   map[string]any{"nodeType": "Task", "id": task.ID.String()},
		CacheOptions: &CacheOptions{UseCache: true, TTLSeconds: 60},
	}

	first := svc.Query(ctx, req)
	require.True(t, first.Success, first.Error)
	assert.Equal(t, string(ckg.SourceLocal), first.Source)

	second := svc.Query(ctx, req)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, string(ckg.SourceCache), second.Source)

	// The cached payload is the same document the first call produced.
	firstJSON, err := json.Marshal(first.Data)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second.Data)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))
}

func TestQuery_CacheRespectsOptIn(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, WithCache(cache.NewMemoryCache()))
	task := createTask(t, store, "uncached task")

	req := QueryRequest{
		QueryType:  QueryGetNodeByID,
		Parameters: map[string]any{"nodeType": "Task", "id": task.ID.String()},
	}

	first := svc.Query(ctx, req)
	require.True(t, first.Success, first.Error)
	second := svc.Query(ctx, req)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, string(ckg.SourceLocal), second.Source)
}

func TestQuery_ResolveConfigByScope(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	projectID := types.NewID()

	_, err := scope.CreateScopedConfig(ctx, store, scope.ScopedConfig{
		Kind: scope.KindRule,
		Rule: &scope.Rule{
			Name: "CommitMessageFormat", Scope: "PROJECT", ScopeEntityID: projectID.String(),
			Content: "conventional commits", IsActive: true,
		},
	})
	require.NoError(t, err)

	result := svc.Query(ctx, QueryRequest{
		QueryType: QueryResolveConfigByScope,
		Parameters: map[string]any{
			"context":    map[string]any{"projectId": projectID.String()},
			"categories": []string{"rules"},
		},
	})
	require.True(t, result.Success, result.Error)

	resolved, ok := result.Data.(*scope.Resolved)
	require.True(t, ok)
	assert.Contains(t, resolved.OverrideRules, "CommitMessageFormat")
}

func TestQuery_EntityHistory(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	task := createTask(t, store, "historic")

	_, err := store.UpdateNodeProperties(ctx, ckg.NodeTypeTask, task.ID, map[string]any{"status": "DONE"})
	require.NoError(t, err)

	result := svc.Query(ctx, QueryRequest{
		QueryType:  QueryGetEntityHistory,
		Parameters: map[string]any{"entityType": "Task", "entityId": task.ID.String()},
	})
	require.True(t, result.Success, result.Error)

	history, ok := result.Data.(*ckg.EntityHistory)
	require.True(t, ok)
	require.NotNil(t, history.Entity)
	assert.Len(t, history.Events, 2)
}

func TestUpdate_CreateAndMutate(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	created := svc.Update(ctx, UpdateRequest{
		UpdateType: UpdateCreateNode,
		Parameters: map[string]any{
			"nodeType":   "Task",
			"properties": map[string]any{"title": "via contract", "taskLevel": "TASK"},
		},
	})
	require.True(t, created.Success, created.Error)

	node, ok := created.Data.(*ckg.Node)
	require.True(t, ok)

	updated := svc.Update(ctx, UpdateRequest{
		UpdateType: UpdateUpdateNodeProperties,
		Parameters: map[string]any{
			"nodeType":   "Task",
			"id":         node.ID.String(),
			"properties": map[string]any{"status": "IN_PROGRESS"},
		},
	})
	require.True(t, updated.Success, updated.Error)

	stored, err := store.GetNodeByID(ctx, *ckg.NewGetQuery(ckg.NodeTypeTask, node.ID))
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", stored.GetStringProperty("status"))

	t.Run("validation failure envelope", func(t *testing.T) {
		result := svc.Update(ctx, UpdateRequest{
			UpdateType: UpdateCreateNode,
			Parameters: map[string]any{
				"nodeType":   "Task",
				"properties": map[string]any{"title": "missing level"},
			},
		})
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
	})
}

func TestUpdate_BatchEnvelope(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	result := svc.Update(ctx, UpdateRequest{
		UpdateType: UpdateBatchUpdate,
		Parameters: map[string]any{
			"operations": []map[string]any{
				{"kind": "createNode", "nodeType": "Task",
					"properties": map[string]any{"title": "ok", "taskLevel": "TASK"}},
				{"kind": "createNode", "nodeType": "Task",
					"properties": map[string]any{"title": "broken"}},
			},
		},
	})

	// One operation failed, so the envelope reports failure while still
	// carrying every per-operation outcome.
	assert.False(t, result.Success)
	results, ok := result.Results.([]ckg.BatchResult)
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
}

func TestAnalyzeDependencies_Envelope(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	parent := createTask(t, store, "parent")
	child := createTask(t, store, "child")
	require.NoError(t, store.CreateRelationship(ctx, ckg.Relationship{
		Type:       ckg.RelationChildTasks,
		SourceType: ckg.NodeTypeTask,
		SourceID:   parent.ID,
		TargetType: ckg.NodeTypeTask,
		TargetID:   child.ID,
	}))

	result := svc.AnalyzeDependencies(ctx, AnalysisRequest{ParentTaskID: parent.ID.String()})
	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Timing)

	analysis, ok := result.Data.(*plan.Analysis)
	require.True(t, ok)
	assert.Equal(t, []types.ID{child.ID}, analysis.RunnableTasks)

	t.Run("invalid parent id fails validation", func(t *testing.T) {
		result := svc.AnalyzeDependencies(ctx, AnalysisRequest{ParentTaskID: "nope"})
		assert.False(t, result.Success)
	})
}

func TestHealth_ReportsComponents(t *testing.T) {
	ctx := context.Background()

	t.Run("store only", func(t *testing.T) {
		svc, _ := newTestService(t)
		health := svc.Health(ctx)
		assert.Contains(t, health, "store")
		assert.NotContains(t, health, "cache")
	})

	t.Run("with cache", func(t *testing.T) {
		svc, _ := newTestService(t, WithCache(cache.NewMemoryCache()))
		health := svc.Health(ctx)
		assert.Contains(t, health, "store")
		assert.Equal(t, types.HealthStateHealthy, health["cache"].State)
	})
}
