package plan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg/backend"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/scope"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

func newTestStore(t *testing.T) ckg.Store {
	t.Helper()
	be := backend.NewMemoryBackend()
	require.NoError(t, be.Connect(context.Background()))
	return ckg.NewStore(be)
}

func createParent(t *testing.T, store ckg.Store, extra map[string]any) types.ID {
	t.Helper()
	props := map[string]any{"title": "milestone", "taskLevel": "MILESTONE"}
	for k, v := range extra {
		props[k] = v
	}
	node, err := store.CreateNode(context.Background(), ckg.NodeTypeTask, props)
	require.NoError(t, err)
	return node.ID
}

func createChild(t *testing.T, store ckg.Store, parentID types.ID, props map[string]any) types.ID {
	t.Helper()
	ctx := context.Background()
	base := map[string]any{"taskLevel": "TASK"}
	for k, v := range props {
		base[k] = v
	}
	node, err := store.CreateNode(ctx, ckg.NodeTypeTask, base)
	require.NoError(t, err)

	err = store.CreateRelationship(ctx, ckg.Relationship{
		Type:       ckg.RelationChildTasks,
		SourceType: ckg.NodeTypeTask,
		SourceID:   parentID,
		TargetType: ckg.NodeTypeTask,
		TargetID:   node.ID,
	})
	require.NoError(t, err)
	return node.ID
}

func TestAnalyze_ParentValidation(t *testing.T) {
	ctx := context.Background()
	planner := NewPlanner(newTestStore(t), nil)

	t.Run("malformed parent ID", func(t *testing.T) {
		_, err := planner.Analyze(ctx, types.ID("not-a-uuid"))
		require.Error(t, err)

		var ckgErr *ckg.CKGError
		require.True(t, errors.As(err, &ckgErr))
		assert.Equal(t, ckg.ErrCodeValidationFailed, ckgErr.Code)
	})

	t.Run("missing parent", func(t *testing.T) {
		_, err := planner.Analyze(ctx, types.NewID())
		require.Error(t, err)

		var ckgErr *ckg.CKGError
		require.True(t, errors.As(err, &ckgErr))
		assert.Equal(t, ckg.ErrCodeNodeNotFound, ckgErr.Code)
	})
}

func TestAnalyze_NoChildren(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	parentID := createParent(t, store, nil)

	analysis, err := NewPlanner(store, nil).Analyze(ctx, parentID)
	require.NoError(t, err)

	assert.Equal(t, parentID, analysis.TaskID)
	assert.Empty(t, analysis.RunnableTasks)
	assert.Empty(t, analysis.BlockedTasks)
	assert.Empty(t, analysis.ExecutionPlan)
}

func TestAnalyze_ExplicitDependencyChain(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	parentID := createParent(t, store, nil)

	t1 := createChild(t, store, parentID, map[string]any{"title": "T1"})
	t2 := createChild(t, store, parentID, map[string]any{
		"title": "T2", "dependencies": []string{t1.String()},
	})

	analysis, err := NewPlanner(store, nil).Analyze(ctx, parentID)
	require.NoError(t, err)

	assert.Equal(t, []types.ID{t1}, analysis.RunnableTasks)
	require.Len(t, analysis.BlockedTasks, 1)
	assert.Equal(t, t2, analysis.BlockedTasks[0].ID)
	assert.Equal(t, []types.ID{t1}, analysis.BlockedTasks[0].BlockedBy)

	assert.Equal(t, [][]types.ID{{t1}, {t2}}, analysis.ExecutionPlan)
	assert.Equal(t, []types.ID{t1}, analysis.DependencyGraph[t2])
	assert.Empty(t, analysis.DependencyGraph[t1])
}

func TestAnalyze_DiamondPlan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	parentID := createParent(t, store, nil)

	a := createChild(t, store, parentID, map[string]any{"title": "A"})
	b := createChild(t, store, parentID, map[string]any{
		"title": "B", "dependencies": []string{a.String()},
	})
	c := createChild(t, store, parentID, map[string]any{
		"title": "C", "dependencies": []string{a.String()},
	})
	d := createChild(t, store, parentID, map[string]any{
		"title": "D", "dependencies": []string{b.String(), c.String()},
	})

	analysis, err := NewPlanner(store, nil).Analyze(ctx, parentID)
	require.NoError(t, err)

	require.Len(t, analysis.ExecutionPlan, 3)
	assert.Equal(t, []types.ID{a}, analysis.ExecutionPlan[0])
	middle := []types.ID{b, c}
	types.SortIDs(middle)
	assert.Equal(t, middle, analysis.ExecutionPlan[1])
	assert.Equal(t, []types.ID{d}, analysis.ExecutionPlan[2])
}

func TestAnalyze_DeterministicAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	parentID := createParent(t, store, nil)

	for i := 0; i < 6; i++ {
		createChild(t, store, parentID, map[string]any{"title": fmt.Sprintf("T%d", i)})
	}

	planner := NewPlanner(store, nil)
	first, err := planner.Analyze(ctx, parentID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := planner.Analyze(ctx, parentID)
		require.NoError(t, err)
		assert.Equal(t, first.RunnableTasks, again.RunnableTasks)
		assert.Equal(t, first.ExecutionPlan, again.ExecutionPlan)
	}
}

func TestAnalyze_OutsideDependencyIgnored(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	parentID := createParent(t, store, nil)

	stranger, err := store.CreateNode(ctx, ckg.NodeTypeTask, map[string]any{
		"title": "unrelated", "taskLevel": "TASK",
	})
	require.NoError(t, err)

	child := createChild(t, store, parentID, map[string]any{
		"title": "T1", "dependencies": []string{stranger.ID.String()},
	})

	analysis, err := NewPlanner(store, nil).Analyze(ctx, parentID)
	require.NoError(t, err)

	assert.Equal(t, []types.ID{child}, analysis.RunnableTasks)
	assert.Empty(t, analysis.BlockedTasks)
}

func TestAnalyze_CycleDetected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	parentID := createParent(t, store, nil)

	// Two children that will depend on each other.
	t1 := createChild(t, store, parentID, map[string]any{"title": "T1"})
	t2 := createChild(t, store, parentID, map[string]any{
		"title": "T2", "dependencies": []string{t1.String()},
	})
	_, err := store.UpdateNodeProperties(ctx, ckg.NodeTypeTask, t1, map[string]any{
		"dependencies": []string{t2.String()},
	})
	require.NoError(t, err)

	_, err = NewPlanner(store, nil).Analyze(ctx, parentID)
	require.Error(t, err)

	members := ckg.CycleMembers(err)
	require.NotNil(t, members)
	expected := []types.ID{t1, t2}
	types.SortIDs(expected)
	assert.Equal(t, expected, members)
}

func TestAnalyze_WorkflowStepOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	projectID := types.NewID()

	_, err := scope.CreateScopedConfig(ctx, store, scope.ScopedConfig{
		Kind: scope.KindWorkflow,
		Workflow: &scope.Workflow{
			Name: "DevFlow", Scope: "PROJECT", ScopeEntityID: projectID.String(), IsActive: true,
			Steps: []scope.WorkflowStep{
				{StepOrder: 1, RequiredRole: "architect", Name: "design"},
				{StepOrder: 2, RequiredRole: "developer", Name: "implement"},
			},
		},
	})
	require.NoError(t, err)

	parentID := createParent(t, store, map[string]any{
		"scopeContext": map[string]any{"projectId": projectID.String()},
	})
	design := createChild(t, store, parentID, map[string]any{
		"title": "design the feature", "guidedByStep": "design",
	})
	implement := createChild(t, store, parentID, map[string]any{
		"title": "implement the feature", "guidedByStep": "implement",
	})

	resolver := scope.NewResolver(store)
	analysis, err := NewPlanner(store, resolver).Analyze(ctx, parentID)
	require.NoError(t, err)

	assert.Equal(t, []types.ID{design}, analysis.RunnableTasks)
	require.Len(t, analysis.BlockedTasks, 1)
	assert.Equal(t, implement, analysis.BlockedTasks[0].ID)
	assert.Equal(t, []types.ID{design}, analysis.BlockedTasks[0].BlockedBy)
	assert.Equal(t, [][]types.ID{{design}, {implement}}, analysis.ExecutionPlan)
	assert.False(t, analysis.Partial)
}

func TestAnalyze_UnboundChildrenSkipWorkflowLookup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	parentID := createParent(t, store, nil)
	createChild(t, store, parentID, map[string]any{"title": "loose"})

	// A resolver over an empty store would find no workflow anyway; the
	// point is that plain children stay runnable without step bindings.
	analysis, err := NewPlanner(store, scope.NewResolver(store)).Analyze(ctx, parentID)
	require.NoError(t, err)
	assert.Len(t, analysis.RunnableTasks, 1)
	assert.Empty(t, analysis.BlockedTasks)
}
