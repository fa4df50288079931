package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg/backend"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

func newTestStore(t *testing.T) ckg.Store {
	t.Helper()
	be := backend.NewMemoryBackend()
	require.NoError(t, be.Connect(context.Background()))
	return ckg.NewStore(be)
}

func seedRule(t *testing.T, store ckg.Store, rule Rule) {
	t.Helper()
	_, err := CreateScopedConfig(context.Background(), store, ScopedConfig{Kind: KindRule, Rule: &rule})
	require.NoError(t, err)
}

func TestResolve_RequiresCategories(t *testing.T) {
	resolver := NewResolver(newTestStore(t))
	_, err := resolver.Resolve(context.Background(), Request{})
	require.Error(t, err)
}

func TestResolve_OverrideMostSpecificWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	projectID := types.NewID()

	seedRule(t, store, Rule{
		Name: "CommitMessageFormat", Scope: "DEFAULT",
		Content: "50 char subject", IsActive: true,
	})
	seedRule(t, store, Rule{
		Name: "CommitMessageFormat", Scope: "PROJECT", ScopeEntityID: projectID.String(),
		Content: "conventional commits", IsActive: true,
	})

	resolver := NewResolver(store)
	resolved, err := resolver.Resolve(ctx, Request{
		Context:    types.ScopeContext{ProjectID: projectID},
		Categories: []Category{CategoryRules},
	})
	require.NoError(t, err)
	assert.False(t, resolved.Partial)

	winner, ok := resolved.OverrideRules["CommitMessageFormat"]
	require.True(t, ok)
	assert.Equal(t, "conventional commits", winner.Content)
	assert.Equal(t, "PROJECT", winner.Scope)
}

func TestResolve_IneligibleLevelsAndInactiveRulesSkipped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	otherProject := types.NewID()

	// Bound at a project the context does not carry.
	seedRule(t, store, Rule{
		Name: "Linting", Scope: "PROJECT", ScopeEntityID: otherProject.String(),
		Content: "eslint strict", IsActive: true,
	})
	// Inactive at DEFAULT.
	seedRule(t, store, Rule{
		Name: "Linting", Scope: "DEFAULT", Content: "retired", IsActive: false,
	})

	resolver := NewResolver(store)
	resolved, err := resolver.Resolve(ctx, Request{
		Context:    types.ScopeContext{UserID: types.NewID()},
		Categories: []Category{CategoryRules},
	})
	require.NoError(t, err)
	assert.Empty(t, resolved.OverrideRules)
}

func TestResolve_CompositionalCollectsAllLevels(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	projectID := types.NewID()
	orgID := types.NewID()

	seedRule(t, store, Rule{
		Name: "NoSecretsInCode", Scope: "ORG", ScopeEntityID: orgID.String(),
		Category: "SECURITY", Content: "no plaintext secrets", IsActive: true,
	})
	seedRule(t, store, Rule{
		Name: "InputValidation", Scope: "PROJECT", ScopeEntityID: projectID.String(),
		Category: "SECURITY", Content: "validate all inputs", IsActive: true,
	})

	resolver := NewResolver(store)
	resolved, err := resolver.Resolve(ctx, Request{
		Context:    types.ScopeContext{ProjectID: projectID, OrgID: orgID},
		Categories: []Category{CategoryRules},
	})
	require.NoError(t, err)

	require.Len(t, resolved.CompositionalRules["SECURITY"], 2)
	// Merge order follows the hierarchy: PROJECT before ORG.
	assert.Equal(t, "InputValidation", resolved.CompositionalRules["SECURITY"][0].Name)
	assert.Equal(t, "NoSecretsInCode", resolved.CompositionalRules["SECURITY"][1].Name)

	// Composed rules also participate in override by name.
	assert.Len(t, resolved.OverrideRules, 2)
}

func TestResolve_CodeSnippetsRouteSeparately(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	userID := types.NewID()

	seedRule(t, store, Rule{
		Name: "RetryHelper", Scope: "USER", ScopeEntityID: userID.String(),
		Category: "CODE_SNIPPET", Content: "func retry(...)", IsActive: true,
	})
	seedRule(t, store, Rule{
		Name: "ErrorWrapping", Scope: "DEFAULT",
		Category: "CODE_SNIPPET", Content: "fmt.Errorf(\"%w\", err)", IsActive: true,
	})

	resolver := NewResolver(store)
	resolved, err := resolver.Resolve(ctx, Request{
		Context:    types.ScopeContext{UserID: userID},
		Categories: []Category{CategoryRules, CategoryCodeSnippets},
	})
	require.NoError(t, err)

	require.Len(t, resolved.CodeSnippets, 2)
	assert.Equal(t, "RetryHelper", resolved.CodeSnippets[0].Name)
	// Snippets never leak into the rule maps.
	assert.Empty(t, resolved.OverrideRules)
}

func TestResolve_WorkflowShortCircuitWithLinkedSteps(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	projectID := types.NewID()

	_, err := CreateScopedConfig(ctx, store, ScopedConfig{Kind: KindWorkflow, Workflow: &Workflow{
		Name: "StandardDevFlow", Scope: "DEFAULT", IsActive: true,
		Steps: []WorkflowStep{
			{StepOrder: 1, RequiredRole: "architect", Name: "design"},
			{StepOrder: 2, RequiredRole: "developer", Name: "implement"},
		},
	}})
	require.NoError(t, err)

	_, err = CreateScopedConfig(ctx, store, ScopedConfig{Kind: KindWorkflow, Workflow: &Workflow{
		Name: "StandardDevFlow", Scope: "PROJECT", ScopeEntityID: projectID.String(), IsActive: true,
		Steps: []WorkflowStep{
			{StepOrder: 1, RequiredRole: "developer", Name: "implement"},
			{StepOrder: 2, RequiredRole: "reviewer", Name: "review"},
			{StepOrder: 3, RequiredRole: "tester", Name: "verify"},
		},
	}})
	require.NoError(t, err)

	resolver := NewResolver(store)
	resolved, err := resolver.Resolve(ctx, Request{
		Context:      types.ScopeContext{ProjectID: projectID},
		Categories:   []Category{CategoryWorkflow},
		WorkflowName: "StandardDevFlow",
	})
	require.NoError(t, err)

	require.NotNil(t, resolved.Workflow)
	assert.Equal(t, "PROJECT", resolved.Workflow.Scope)
	require.Len(t, resolved.Workflow.Steps, 3)
	// Steps come back sorted by stepOrder regardless of storage order.
	assert.Equal(t, []int{1, 2, 3}, []int{
		resolved.Workflow.Steps[0].StepOrder,
		resolved.Workflow.Steps[1].StepOrder,
		resolved.Workflow.Steps[2].StepOrder,
	})
	assert.Equal(t, "reviewer", resolved.Workflow.Steps[1].RequiredRole)
}

func TestResolve_WorkflowInlineYAMLSteps(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateNode(ctx, ckg.NodeTypeWorkflow, map[string]any{
		"name": "InlineFlow", "scope": "DEFAULT", "isActive": true,
		"content": "steps:\n  - stepOrder: 2\n    requiredRole: reviewer\n  - stepOrder: 1\n    requiredRole: developer\n",
	})
	require.NoError(t, err)

	resolver := NewResolver(store)
	workflow, partial, err := resolver.ResolveWorkflowForContext(ctx, types.ScopeContext{})
	require.NoError(t, err)
	assert.False(t, partial)

	require.NotNil(t, workflow)
	require.Len(t, workflow.Steps, 2)
	assert.Equal(t, "developer", workflow.Steps[0].RequiredRole)
	assert.Equal(t, "reviewer", workflow.Steps[1].RequiredRole)
}

func TestResolve_PersonaByRole(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	teamID := types.NewID()

	_, err := CreateScopedConfig(ctx, store, ScopedConfig{Kind: KindPersona, Persona: &Persona{
		Name: "BackendDev", Scope: "TEAM", ScopeEntityID: teamID.String(),
		Role: "developer", Content: "pragmatic backend engineer", IsActive: true,
	}})
	require.NoError(t, err)
	_, err = CreateScopedConfig(ctx, store, ScopedConfig{Kind: KindPersona, Persona: &Persona{
		Name: "Reviewer", Scope: "DEFAULT", Role: "reviewer",
		Content: "thorough code reviewer", IsActive: true,
	}})
	require.NoError(t, err)

	resolver := NewResolver(store)
	resolved, err := resolver.Resolve(ctx, Request{
		Context:     types.ScopeContext{TeamID: teamID},
		Categories:  []Category{CategoryPersona},
		PersonaRole: "reviewer",
	})
	require.NoError(t, err)

	require.NotNil(t, resolved.Persona)
	assert.Equal(t, "Reviewer", resolved.Persona.Name)
	assert.Equal(t, "DEFAULT", resolved.Persona.Scope)
}

func TestResolve_UnrequestedCategoriesStayNil(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedRule(t, store, Rule{Name: "R", Scope: "DEFAULT", Content: "c", IsActive: true})

	resolver := NewResolver(store)
	resolved, err := resolver.Resolve(ctx, Request{
		Context:    types.ScopeContext{},
		Categories: []Category{CategoryRules},
	})
	require.NoError(t, err)

	assert.Nil(t, resolved.Workflow)
	assert.Nil(t, resolved.Persona)
	assert.Nil(t, resolved.CodeSnippets)
	assert.Len(t, resolved.OverrideRules, 1)
}

// flakyStore fails FindNodesByLabel for a chosen scope level so the
// degraded-level path can be exercised against an otherwise real store.
type flakyStore struct {
	ckg.Store
	failScope string
}

func (f *flakyStore) FindNodesByLabel(ctx context.Context, query ckg.NodeQuery) ([]ckg.Node, error) {
	if query.Filter["scope"] == f.failScope {
		return nil, ckg.NewQueryError("level unavailable", nil)
	}
	return f.Store.FindNodesByLabel(ctx, query)
}

func TestResolve_LevelFailureMarksPartial(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	userID := types.NewID()

	seedRule(t, store, Rule{
		Name: "Fallback", Scope: "DEFAULT", Content: "still here", IsActive: true,
	})

	resolver := NewResolver(&flakyStore{Store: store, failScope: "USER"})
	resolved, err := resolver.Resolve(ctx, Request{
		Context:    types.ScopeContext{UserID: userID},
		Categories: []Category{CategoryRules},
	})
	require.NoError(t, err)

	assert.True(t, resolved.Partial)
	assert.Contains(t, resolved.OverrideRules, "Fallback")
}

func TestCreateScopedConfig_ScopeValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	t.Run("DEFAULT must not carry an entity id", func(t *testing.T) {
		_, err := CreateScopedConfig(ctx, store, ScopedConfig{Kind: KindRule, Rule: &Rule{
			Name: "x", Scope: "DEFAULT", ScopeEntityID: types.NewID().String(),
			Content: "c", IsActive: true,
		}})
		require.Error(t, err)
	})

	t.Run("bound levels require an entity id", func(t *testing.T) {
		_, err := CreateScopedConfig(ctx, store, ScopedConfig{Kind: KindRule, Rule: &Rule{
			Name: "x", Scope: "PROJECT", Content: "c", IsActive: true,
		}})
		require.Error(t, err)
	})

	t.Run("unknown scope level", func(t *testing.T) {
		_, err := CreateScopedConfig(ctx, store, ScopedConfig{Kind: KindRule, Rule: &Rule{
			Name: "x", Scope: "GALAXY", Content: "c", IsActive: true,
		}})
		require.Error(t, err)
	})

	t.Run("missing payload", func(t *testing.T) {
		_, err := CreateScopedConfig(ctx, store, ScopedConfig{Kind: KindWorkflow})
		require.Error(t, err)
	})
}
