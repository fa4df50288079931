// Package plan computes dependency graphs and maximally parallel
// execution plans for the direct children of a parent task.
package plan

import (
	"context"
	"log/slog"

	"github.com/mitchellh/mapstructure"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/scope"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Task is the slice of a Task node the planner needs.
type Task struct {
	ID           types.ID `mapstructure:"-"`
	Title        string   `mapstructure:"title"`
	Status       string   `mapstructure:"status"`
	Dependencies []string `mapstructure:"dependencies"`
	GuidedByStep string   `mapstructure:"guidedByStep"`
}

// BlockedTask names one blocked child and its blockers.
type BlockedTask struct {
	ID        types.ID   `json:"id"`
	BlockedBy []types.ID `json:"blocked_by"`
}

// Analysis is the full dependency-analysis result for one parent task.
// DependencyGraph maps each child to its blockers; ExecutionPlan is a
// sequence of batches where every batch's blockers are scheduled by the
// batches before it.
type Analysis struct {
	TaskID          types.ID                `json:"task_id"`
	RunnableTasks   []types.ID              `json:"runnable_tasks"`
	BlockedTasks    []BlockedTask           `json:"blocked_tasks"`
	DependencyGraph map[types.ID][]types.ID `json:"dependency_graph"`
	ExecutionPlan   [][]types.ID            `json:"execution_plan"`
	Partial         bool                    `json:"partial,omitempty"`
}

// Planner builds execution plans from the knowledge graph. Workflow
// step ordering is resolved through the scope engine when children are
// bound to steps.
type Planner struct {
	store    ckg.Store
	resolver *scope.Resolver
	logger   *slog.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithLogger sets the planner's logger.
func WithLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPlanner creates a Planner. The resolver may be nil, in which case
// workflow-derived dependencies are skipped.
func NewPlanner(store ckg.Store, resolver *scope.Resolver, opts ...PlannerOption) *Planner {
	p := &Planner{store: store, resolver: resolver, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyze computes the dependency graph and execution plan for the
// direct children of parentID. A dependency cycle fails the analysis
// with a CYCLE_DETECTED error naming the tasks that could not be
// scheduled.
func (p *Planner) Analyze(ctx context.Context, parentID types.ID) (*Analysis, error) {
	if err := parentID.Validate(); err != nil {
		return nil, ckg.NewValidationError("invalid parent task ID: " + err.Error())
	}

	parent, err := p.store.GetNodeByID(ctx, *ckg.NewGetQuery(ckg.NodeTypeTask, parentID))
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ckg.NewNodeNotFoundError(ckg.NodeTypeTask, parentID)
	}

	children, err := p.loadChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		TaskID:          parentID,
		RunnableTasks:   []types.ID{},
		BlockedTasks:    []BlockedTask{},
		DependencyGraph: make(map[types.ID][]types.ID, len(children)),
		ExecutionPlan:   [][]types.ID{},
	}
	if len(children) == 0 {
		return analysis, nil
	}

	blockers := p.buildBlockers(ctx, parent, children, analysis)

	// Runnable/blocked split.
	ordered := make([]types.ID, 0, len(children))
	for _, child := range children {
		ordered = append(ordered, child.ID)
	}
	types.SortIDs(ordered)

	for _, id := range ordered {
		blockedBy := sortedMembers(blockers[id])
		analysis.DependencyGraph[id] = blockedBy
		if len(blockedBy) == 0 {
			analysis.RunnableTasks = append(analysis.RunnableTasks, id)
		} else {
			analysis.BlockedTasks = append(analysis.BlockedTasks, BlockedTask{ID: id, BlockedBy: blockedBy})
		}
	}

	planBatches, err := layerPlan(ordered, blockers)
	if err != nil {
		return nil, err
	}
	analysis.ExecutionPlan = planBatches
	return analysis, nil
}

// loadChildren fetches and decodes the direct child tasks.
func (p *Planner) loadChildren(ctx context.Context, parentID types.ID) ([]Task, error) {
	nodes, err := p.store.FindRelatedNodes(ctx, *ckg.NewRelatedQuery(
		ckg.NodeTypeTask, parentID, ckg.RelationChildTasks).
		WithTargetType(ckg.NodeTypeTask))
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(nodes))
	for i := range nodes {
		var task Task
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &task,
			WeaklyTypedInput: true,
			TagName:          "mapstructure",
		})
		if err != nil {
			return nil, ckg.NewSerializationError("failed to build task decoder", err)
		}
		if err := decoder.Decode(nodes[i].Properties); err != nil {
			return nil, ckg.NewSerializationError("failed to decode task node", err)
		}
		task.ID = nodes[i].ID
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// buildBlockers assembles each child's blocker set from explicit
// dependencies and workflow step ordering.
func (p *Planner) buildBlockers(ctx context.Context, parent *ckg.Node, children []Task, analysis *Analysis) map[types.ID]map[types.ID]bool {
	siblings := make(map[types.ID]bool, len(children))
	for _, child := range children {
		siblings[child.ID] = true
	}

	blockers := make(map[types.ID]map[types.ID]bool, len(children))
	for _, child := range children {
		blockers[child.ID] = make(map[types.ID]bool)
	}

	// Explicit blockers. Dependencies pointing outside the sibling set
	// cannot be scheduled within this plan and are skipped.
	for _, child := range children {
		for _, dep := range child.Dependencies {
			depID := types.ID(dep)
			if !siblings[depID] {
				p.logger.Warn("dependency outside sibling set ignored",
					"taskId", child.ID,
					"dependencyId", depID,
				)
				continue
			}
			blockers[child.ID][depID] = true
		}
	}

	p.addWorkflowBlockers(ctx, parent, children, blockers, analysis)
	return blockers
}

// addWorkflowBlockers derives ordering edges from the workflow resolved
// for the parent's scope context: a child bound to an earlier step
// blocks every child bound to a later step.
func (p *Planner) addWorkflowBlockers(ctx context.Context, parent *ckg.Node, children []Task, blockers map[types.ID]map[types.ID]bool, analysis *Analysis) {
	if p.resolver == nil {
		return
	}

	bound := false
	for _, child := range children {
		if child.GuidedByStep != "" {
			bound = true
			break
		}
	}
	if !bound {
		return
	}

	sc := scopeContextOf(parent)
	workflow, partial, err := p.resolver.ResolveWorkflowForContext(ctx, sc)
	if partial {
		analysis.Partial = true
	}
	if err != nil {
		p.logger.Warn("workflow resolution failed, skipping step-derived dependencies",
			"parentId", parent.ID,
			"error", err,
		)
		analysis.Partial = true
		return
	}
	if workflow == nil {
		return
	}

	// Steps are addressable by node ID or by name.
	orders := make(map[string]int, len(workflow.Steps)*2)
	for _, step := range workflow.Steps {
		if !step.ID.IsZero() {
			orders[step.ID.String()] = step.StepOrder
		}
		if step.Name != "" {
			orders[step.Name] = step.StepOrder
		}
	}

	for _, a := range children {
		orderA, okA := orders[a.GuidedByStep]
		if a.GuidedByStep == "" || !okA {
			continue
		}
		for _, b := range children {
			if a.ID == b.ID || b.GuidedByStep == "" {
				continue
			}
			orderB, okB := orders[b.GuidedByStep]
			if okB && orderA < orderB {
				blockers[b.ID][a.ID] = true
			}
		}
	}
}

// scopeContextOf decodes the parent task's scopeContext property.
func scopeContextOf(parent *ckg.Node) types.ScopeContext {
	var sc types.ScopeContext
	raw, ok := parent.Properties["scopeContext"].(map[string]any)
	if !ok {
		return sc
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &sc,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return sc
	}
	_ = decoder.Decode(raw)
	return sc
}

// layerPlan runs batched topological layering: each batch is the set of
// unscheduled tasks whose blockers are all scheduled. A pass that
// schedules nothing while tasks remain means the remainder is cyclic.
func layerPlan(ordered []types.ID, blockers map[types.ID]map[types.ID]bool) ([][]types.ID, error) {
	scheduled := make(map[types.ID]bool, len(ordered))
	remaining := len(ordered)
	var batches [][]types.ID

	for remaining > 0 {
		var batch []types.ID
		for _, id := range ordered {
			if scheduled[id] {
				continue
			}
			ready := true
			for blocker := range blockers[id] {
				if !scheduled[blocker] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, id)
			}
		}

		if len(batch) == 0 {
			var stuck []types.ID
			for _, id := range ordered {
				if !scheduled[id] {
					stuck = append(stuck, id)
				}
			}
			return nil, ckg.NewCycleDetectedError(stuck)
		}

		types.SortIDs(batch)
		for _, id := range batch {
			scheduled[id] = true
		}
		remaining -= len(batch)
		batches = append(batches, batch)
	}
	return batches, nil
}

func sortedMembers(set map[types.ID]bool) []types.ID {
	members := make([]types.ID, 0, len(set))
	for id := range set {
		members = append(members, id)
	}
	types.SortIDs(members)
	return members
}
