package scope

import (
	"context"
	"fmt"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// validScopes holds the scope values accepted on a configuration node.
var validScopes = func() map[string]bool {
	set := make(map[string]bool, len(types.ScopeOrder))
	for _, level := range types.ScopeOrder {
		set[string(level)] = true
	}
	return set
}()

// CreateScopedConfig persists one Rule, Workflow, or Persona at a scope
// level. Workflow steps, when present, become WorkflowStep nodes linked
// by a bidirectional hasStep/stepOf pair.
func CreateScopedConfig(ctx context.Context, store ckg.Store, cfg ScopedConfig) (*ckg.Node, error) {
	switch cfg.Kind {
	case KindRule:
		if cfg.Rule == nil {
			return nil, ckg.NewValidationError("rule payload is required for kind rule")
		}
		return createRule(ctx, store, cfg.Rule)
	case KindWorkflow:
		if cfg.Workflow == nil {
			return nil, ckg.NewValidationError("workflow payload is required for kind workflow")
		}
		return createWorkflow(ctx, store, cfg.Workflow)
	case KindPersona:
		if cfg.Persona == nil {
			return nil, ckg.NewValidationError("persona payload is required for kind persona")
		}
		return createPersona(ctx, store, cfg.Persona)
	default:
		return nil, ckg.NewValidationError(fmt.Sprintf("unknown scoped config kind: %q", cfg.Kind))
	}
}

// validateScope checks the scope level and the entity binding rule:
// DEFAULT never carries an entity ID, every other level must.
func validateScope(scope, scopeEntityID string) error {
	if !validScopes[scope] {
		return ckg.NewValidationError(fmt.Sprintf("invalid scope level: %q", scope))
	}
	if scope == string(types.ScopeDefault) {
		if scopeEntityID != "" {
			return ckg.NewValidationError("DEFAULT scope cannot carry a scope entity ID")
		}
		return nil
	}
	if scopeEntityID == "" {
		return ckg.NewValidationError(fmt.Sprintf("scope %s requires a scope entity ID", scope))
	}
	return nil
}

func createRule(ctx context.Context, store ckg.Store, rule *Rule) (*ckg.Node, error) {
	if err := validateScope(rule.Scope, rule.ScopeEntityID); err != nil {
		return nil, err
	}

	props := map[string]any{
		"name":     rule.Name,
		"scope":    rule.Scope,
		"content":  rule.Content,
		"isActive": rule.IsActive,
	}
	if rule.ScopeEntityID != "" {
		props["scopeEntityId"] = rule.ScopeEntityID
	}
	if rule.Category != "" {
		props["category"] = rule.Category
	}
	if rule.Description != "" {
		props["description"] = rule.Description
	}
	return store.CreateNode(ctx, ckg.NodeTypeRule, props)
}

func createPersona(ctx context.Context, store ckg.Store, persona *Persona) (*ckg.Node, error) {
	if err := validateScope(persona.Scope, persona.ScopeEntityID); err != nil {
		return nil, err
	}

	props := map[string]any{
		"name":     persona.Name,
		"scope":    persona.Scope,
		"content":  persona.Content,
		"isActive": persona.IsActive,
	}
	if persona.ScopeEntityID != "" {
		props["scopeEntityId"] = persona.ScopeEntityID
	}
	if persona.Role != "" {
		props["role"] = persona.Role
	}
	if persona.Description != "" {
		props["description"] = persona.Description
	}
	return store.CreateNode(ctx, ckg.NodeTypePersona, props)
}

func createWorkflow(ctx context.Context, store ckg.Store, workflow *Workflow) (*ckg.Node, error) {
	if err := validateScope(workflow.Scope, workflow.ScopeEntityID); err != nil {
		return nil, err
	}

	props := map[string]any{
		"name":     workflow.Name,
		"scope":    workflow.Scope,
		"isActive": workflow.IsActive,
	}
	if workflow.ScopeEntityID != "" {
		props["scopeEntityId"] = workflow.ScopeEntityID
	}
	if workflow.AppliesTo != "" {
		props["appliesTo"] = workflow.AppliesTo
	}
	if workflow.Description != "" {
		props["description"] = workflow.Description
	}

	node, err := store.CreateNode(ctx, ckg.NodeTypeWorkflow, props)
	if err != nil {
		return nil, err
	}

	for _, step := range workflow.Steps {
		stepProps := map[string]any{
			"stepOrder":    step.StepOrder,
			"requiredRole": step.RequiredRole,
		}
		if step.Name != "" {
			stepProps["name"] = step.Name
		}
		if step.ExpectedSubTaskType != "" {
			stepProps["expectedSubTaskType"] = step.ExpectedSubTaskType
		}
		if step.IsOptional {
			stepProps["isOptional"] = true
		}

		stepNode, err := store.CreateNode(ctx, ckg.NodeTypeWorkflowStep, stepProps)
		if err != nil {
			return nil, err
		}

		forward := ckg.Relationship{
			Type:       ckg.RelationHasStep,
			SourceType: ckg.NodeTypeWorkflow,
			SourceID:   node.ID,
			TargetType: ckg.NodeTypeWorkflowStep,
			TargetID:   stepNode.ID,
		}
		if err := store.CreateRelationship(ctx, forward); err != nil {
			return nil, err
		}
		backward := ckg.Relationship{
			Type:       ckg.RelationStepOf,
			SourceType: ckg.NodeTypeWorkflowStep,
			SourceID:   stepNode.ID,
			TargetType: ckg.NodeTypeWorkflow,
			TargetID:   node.ID,
		}
		if err := store.CreateRelationship(ctx, backward); err != nil {
			return nil, err
		}
	}
	return node, nil
}
