package service

import (
	"context"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/scope"
)

// Update serves one update-contract request. Mutations never read the
// result cache; stale entries age out by TTL only.
func (s *Service) Update(ctx context.Context, req UpdateRequest) Result {
	started := time.Now()

	if err := s.validate.Struct(req); err != nil {
		return failure(ckg.NewValidationError(err.Error()), started)
	}

	result := s.dispatchUpdate(ctx, req)
	result.Timing = elapsed(started)
	if result.Success && result.Source == "" {
		result.Source = string(s.store.Source())
	}
	return result
}

func (s *Service) dispatchUpdate(ctx context.Context, req UpdateRequest) Result {
	switch req.UpdateType {
	case UpdateCreateNode:
		return s.updateCreateNode(ctx, req)
	case UpdateUpdateNodeProperties:
		return s.updateNodeProperties(ctx, req)
	case UpdateCreateRelationship:
		return s.updateRelationship(ctx, req, s.store.CreateRelationship)
	case UpdateDeleteRelationship:
		return s.updateRelationship(ctx, req, s.store.DeleteRelationship)
	case UpdateDeleteNode:
		return s.updateDeleteNode(ctx, req)
	case UpdateCreateScopedConfig:
		return s.updateCreateScopedConfig(ctx, req)
	case UpdateCreateTimePoint:
		return s.updateCreateTimePoint(ctx, req)
	case UpdateBatchUpdate:
		return s.updateBatch(ctx, req)
	default:
		return Result{Success: false, Error: "unknown update type: " + req.UpdateType}
	}
}

func (s *Service) updateCreateNode(ctx context.Context, req UpdateRequest) Result {
	var params struct {
		NodeType   string         `mapstructure:"nodeType"`
		Properties map[string]any `mapstructure:"properties"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}

	node, err := s.store.CreateNode(ctx, ckg.NodeType(params.NodeType), params.Properties)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Data: node}
}

func (s *Service) updateNodeProperties(ctx context.Context, req UpdateRequest) Result {
	var params struct {
		NodeType   string         `mapstructure:"nodeType"`
		ID         string         `mapstructure:"id"`
		Properties map[string]any `mapstructure:"properties"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}
	id, err := parseID(params.ID, "id")
	if err != nil {
		return errResult(err)
	}

	node, err := s.store.UpdateNodeProperties(ctx, ckg.NodeType(params.NodeType), id, params.Properties)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Data: node}
}

// relationshipParams is shared by create and delete edge operations.
type relationshipParams struct {
	SourceType   string `mapstructure:"sourceType"`
	SourceID     string `mapstructure:"sourceId"`
	RelationType string `mapstructure:"relationType"`
	TargetType   string `mapstructure:"targetType"`
	TargetID     string `mapstructure:"targetId"`
}

func (s *Service) updateRelationship(ctx context.Context, req UpdateRequest, apply func(context.Context, ckg.Relationship) error) Result {
	var params relationshipParams
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}
	sourceID, err := parseID(params.SourceID, "sourceId")
	if err != nil {
		return errResult(err)
	}
	targetID, err := parseID(params.TargetID, "targetId")
	if err != nil {
		return errResult(err)
	}

	rel := ckg.Relationship{
		Type:       ckg.RelationType(params.RelationType),
		SourceType: ckg.NodeType(params.SourceType),
		SourceID:   sourceID,
		TargetType: ckg.NodeType(params.TargetType),
		TargetID:   targetID,
	}
	if err := apply(ctx, rel); err != nil {
		return errResult(err)
	}
	return Result{Success: true}
}

func (s *Service) updateDeleteNode(ctx context.Context, req UpdateRequest) Result {
	var params struct {
		NodeType string `mapstructure:"nodeType"`
		ID       string `mapstructure:"id"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}
	id, err := parseID(params.ID, "id")
	if err != nil {
		return errResult(err)
	}

	if err := s.store.DeleteNode(ctx, ckg.NodeType(params.NodeType), id); err != nil {
		return errResult(err)
	}
	return Result{Success: true}
}

func (s *Service) updateCreateScopedConfig(ctx context.Context, req UpdateRequest) Result {
	var cfg scope.ScopedConfig
	if err := decodeParams(req.Parameters, &cfg); err != nil {
		return errResult(err)
	}

	node, err := scope.CreateScopedConfig(ctx, s.store, cfg)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Data: node}
}

func (s *Service) updateCreateTimePoint(ctx context.Context, req UpdateRequest) Result {
	var params struct {
		EntityID   string         `mapstructure:"entityId"`
		EntityType string         `mapstructure:"entityType"`
		EventType  string         `mapstructure:"eventType"`
		Timestamp  time.Time      `mapstructure:"timestamp"`
		Metadata   map[string]any `mapstructure:"metadata"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}
	entityID, err := parseID(params.EntityID, "entityId")
	if err != nil {
		return errResult(err)
	}

	tp, err := s.store.CreateTimePoint(ctx, ckg.TimePoint{
		EntityID:   entityID,
		EntityType: ckg.NodeType(params.EntityType),
		EventType:  ckg.EventType(params.EventType),
		Timestamp:  params.Timestamp,
		Metadata:   params.Metadata,
	})
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Data: tp}
}

func (s *Service) updateBatch(ctx context.Context, req UpdateRequest) Result {
	var params struct {
		Operations []ckg.BatchOperation `mapstructure:"operations"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}
	if len(params.Operations) == 0 {
		return errResult(ckg.NewValidationError("batch requires at least one operation"))
	}

	results := s.store.BatchUpdate(ctx, params.Operations)

	// The batch envelope succeeds when every operation did; the caller
	// inspects the per-operation array either way.
	success := true
	for _, r := range results {
		if r.Err != nil {
			success = false
			break
		}
	}
	return Result{Success: success, Results: results}
}

// AnalyzeDependencies serves the dependency-analysis contract.
func (s *Service) AnalyzeDependencies(ctx context.Context, req AnalysisRequest) Result {
	started := time.Now()

	if err := s.validate.Struct(req); err != nil {
		return failure(ckg.NewValidationError(err.Error()), started)
	}

	parentID, err := parseID(req.ParentTaskID, "parent_task_id")
	if err != nil {
		return failure(err, started)
	}

	analysis, err := s.planner.Analyze(ctx, parentID)
	if err != nil {
		return failure(err, started)
	}

	return Result{
		Success: true,
		Data:    analysis,
		Source:  string(s.store.Source()),
		Timing:  elapsed(started),
	}
}
