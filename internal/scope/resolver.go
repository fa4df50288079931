package scope

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Resolver computes effective scoped configuration from the knowledge
// graph. It is a pure consumer of the store's query surface; a level
// whose lookup fails contributes nothing and marks the result Partial.
type Resolver struct {
	store  ckg.Store
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store ckg.Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// scopeLevel pairs one eligible hierarchy level with its entity ID.
// DEFAULT carries a zero ID.
type scopeLevel struct {
	level    types.ScopeLevel
	entityID types.ID
}

// eligibleLevels returns the context's levels most to least specific.
// Levels without an ID in the context are skipped; DEFAULT always stays.
func eligibleLevels(sc types.ScopeContext) []scopeLevel {
	var levels []scopeLevel
	for _, level := range types.ScopeOrder {
		if id, ok := sc.EntityID(level); ok {
			levels = append(levels, scopeLevel{level: level, entityID: id})
		}
	}
	return levels
}

// Resolve walks the scope hierarchy and assembles the requested
// configuration categories for the context.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolved, error) {
	if len(req.Categories) == 0 {
		return nil, ckg.NewValidationError("scope resolution requires at least one category")
	}

	levels := eligibleLevels(req.Context)
	resolved := &Resolved{ResolvedAt: time.Now().UTC()}

	if req.wants(CategoryRules) || req.wants(CategoryCodeSnippets) {
		r.resolveRules(ctx, req, levels, resolved)
	}
	if req.wants(CategoryWorkflow) {
		resolved.Workflow = r.resolveWorkflow(ctx, req, levels, resolved)
	}
	if req.wants(CategoryPersona) {
		resolved.Persona = r.resolvePersona(ctx, req, levels, resolved)
	}

	return resolved, nil
}

// ResolveWorkflowForContext resolves only the workflow category. Used by
// the execution planner, which needs workflow step ordering and nothing
// else from the bundle.
func (r *Resolver) ResolveWorkflowForContext(ctx context.Context, sc types.ScopeContext) (*Workflow, bool, error) {
	resolved, err := r.Resolve(ctx, Request{
		Context:    sc,
		Categories: []Category{CategoryWorkflow},
	})
	if err != nil {
		return nil, false, err
	}
	return resolved.Workflow, resolved.Partial, nil
}

// resolveRules applies both merge policies in one pass over all levels.
// Level lookups run concurrently; the merge respects hierarchy order.
// Override binds the most specific rule per name; compositional collects
// every active rule of a composed category at every level.
func (r *Resolver) resolveRules(ctx context.Context, req Request, levels []scopeLevel, resolved *Resolved) {
	type levelResult struct {
		rules  []Rule
		failed bool
	}
	perLevel := make([]levelResult, len(levels))

	g, gctx := errgroup.WithContext(ctx)
	for i, lv := range levels {
		i, lv := i, lv
		g.Go(func() error {
			rules, err := r.fetchRules(gctx, lv)
			if err != nil {
				r.logger.Warn("rule lookup failed at scope level, treating as empty",
					"level", lv.level,
					"error", err,
				)
				perLevel[i] = levelResult{failed: true}
				return nil
			}
			perLevel[i] = levelResult{rules: rules}
			return nil
		})
	}
	g.Wait()

	composed := req.composedSet()
	wantRules := req.wants(CategoryRules)
	wantSnippets := req.wants(CategoryCodeSnippets)

	if wantRules {
		resolved.OverrideRules = make(map[string]Rule)
		resolved.CompositionalRules = make(map[string][]Rule)
	}

	// Every level is visited even after an override winner is bound,
	// because compositional collection needs the broader levels too.
	for i := range levels {
		if perLevel[i].failed {
			resolved.Partial = true
			continue
		}
		for _, rule := range perLevel[i].rules {
			if rule.Category == snippetCategory {
				if wantSnippets {
					resolved.CodeSnippets = append(resolved.CodeSnippets, rule)
				}
				continue
			}
			if !wantRules {
				continue
			}
			if _, bound := resolved.OverrideRules[rule.Name]; !bound {
				resolved.OverrideRules[rule.Name] = rule
			}
			if composed[rule.Category] {
				resolved.CompositionalRules[rule.Category] = append(
					resolved.CompositionalRules[rule.Category], rule)
			}
		}
	}
}

// fetchRules loads the active rules at one scope level, sorted by name
// for a stable merge.
func (r *Resolver) fetchRules(ctx context.Context, lv scopeLevel) ([]Rule, error) {
	query := ckg.NewNodeQuery(ckg.NodeTypeRule).
		WithFilter("scope", string(lv.level)).
		WithFilter("isActive", true)
	if lv.level != types.ScopeDefault {
		query = query.WithFilter("scopeEntityId", lv.entityID.String())
	}

	nodes, err := r.store.FindNodesByLabel(ctx, *query)
	if err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(nodes))
	for i := range nodes {
		rule, err := ruleFromNode(&nodes[i])
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules, nil
}

// resolveWorkflow is a single-winner walk: the first level with any
// active matching workflow wins and the walk stops.
func (r *Resolver) resolveWorkflow(ctx context.Context, req Request, levels []scopeLevel, resolved *Resolved) *Workflow {
	for _, lv := range levels {
		query := ckg.NewNodeQuery(ckg.NodeTypeWorkflow).
			WithFilter("scope", string(lv.level)).
			WithFilter("isActive", true)
		if lv.level != types.ScopeDefault {
			query = query.WithFilter("scopeEntityId", lv.entityID.String())
		}
		if req.WorkflowName != "" {
			query = query.WithFilter("name", req.WorkflowName)
		}

		nodes, err := r.store.FindNodesByLabel(ctx, *query)
		if err != nil {
			r.logger.Warn("workflow lookup failed at scope level, treating as empty",
				"level", lv.level,
				"error", err,
			)
			resolved.Partial = true
			continue
		}
		if len(nodes) == 0 {
			continue
		}

		workflow, err := workflowFromNode(&nodes[0])
		if err != nil {
			r.logger.Warn("workflow node could not be decoded",
				"level", lv.level,
				"nodeId", nodes[0].ID,
				"error", err,
			)
			resolved.Partial = true
			continue
		}

		steps, err := r.loadSteps(ctx, &nodes[0], &workflow)
		if err != nil {
			r.logger.Warn("workflow steps could not be loaded",
				"workflowId", workflow.ID,
				"error", err,
			)
			resolved.Partial = true
		}
		workflow.Steps = steps
		return &workflow
	}
	return nil
}

// loadSteps prefers linked WorkflowStep nodes and falls back to the
// workflow node's inline YAML content.
func (r *Resolver) loadSteps(ctx context.Context, node *ckg.Node, workflow *Workflow) ([]WorkflowStep, error) {
	related, err := r.store.FindRelatedNodes(ctx, *ckg.NewRelatedQuery(
		ckg.NodeTypeWorkflow, workflow.ID, ckg.RelationHasStep).
		WithTargetType(ckg.NodeTypeWorkflowStep))
	if err != nil {
		return nil, err
	}

	if len(related) > 0 {
		steps := make([]WorkflowStep, 0, len(related))
		for i := range related {
			step, err := stepFromNode(&related[i])
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)
		}
		return sortSteps(steps), nil
	}

	if content := node.GetStringProperty("content"); content != "" {
		return parseInlineSteps(content)
	}
	return nil, nil
}

// resolvePersona mirrors the workflow walk for Persona nodes.
func (r *Resolver) resolvePersona(ctx context.Context, req Request, levels []scopeLevel, resolved *Resolved) *Persona {
	for _, lv := range levels {
		query := ckg.NewNodeQuery(ckg.NodeTypePersona).
			WithFilter("scope", string(lv.level)).
			WithFilter("isActive", true)
		if lv.level != types.ScopeDefault {
			query = query.WithFilter("scopeEntityId", lv.entityID.String())
		}
		if req.PersonaRole != "" {
			query = query.WithFilter("role", req.PersonaRole)
		}

		nodes, err := r.store.FindNodesByLabel(ctx, *query)
		if err != nil {
			r.logger.Warn("persona lookup failed at scope level, treating as empty",
				"level", lv.level,
				"error", err,
			)
			resolved.Partial = true
			continue
		}
		if len(nodes) == 0 {
			continue
		}

		persona, err := personaFromNode(&nodes[0])
		if err != nil {
			r.logger.Warn("persona node could not be decoded",
				"level", lv.level,
				"nodeId", nodes[0].ID,
				"error", err,
			)
			resolved.Partial = true
			continue
		}
		return &persona
	}
	return nil
}
