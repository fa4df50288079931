package service

import (
	"context"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/scope"
)

// Query serves one query-contract request. Failures become error
// envelopes; absence is success with null data.
func (s *Service) Query(ctx context.Context, req QueryRequest) Result {
	started := time.Now()

	if err := s.validate.Struct(req); err != nil {
		return failure(ckg.NewValidationError(err.Error()), started)
	}

	cached, key, hit := s.cacheLookup(ctx, req, started)
	if hit {
		return cached
	}

	result := s.dispatchQuery(ctx, req)
	result.Timing = elapsed(started)
	if result.Success {
		if result.Source == "" {
			result.Source = string(s.store.Source())
		}
		s.cacheStore(ctx, key, req, result)
	}
	return result
}

func (s *Service) dispatchQuery(ctx context.Context, req QueryRequest) Result {
	switch req.QueryType {
	case QueryGetNodeByID:
		return s.queryGetNodeByID(ctx, req)
	case QueryFindNodesByLabel:
		return s.queryFindNodesByLabel(ctx, req)
	case QueryFindRelatedNodes:
		return s.queryFindRelatedNodes(ctx, req)
	case QueryKeywordSearch:
		return s.queryKeywordSearch(ctx, req)
	case QueryVectorSearch:
		return s.queryVectorSearch(ctx, req)
	case QueryTraversePath:
		return s.queryTraversePath(ctx, req)
	case QueryAggregateData:
		return s.queryAggregateData(ctx, req)
	case QueryResolveConfigByScope:
		return s.queryResolveConfig(ctx, req)
	case QueryFindTimeRelatedEvents:
		return s.queryFindEvents(ctx, req)
	case QueryGetEntityHistory:
		return s.queryEntityHistory(ctx, req)
	default:
		return Result{Success: false, Error: "unknown query type: " + req.QueryType}
	}
}

func errResult(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

func (s *Service) queryGetNodeByID(ctx context.Context, req QueryRequest) Result {
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

	query := ckg.NewGetQuery(ckg.NodeType(params.NodeType), id).
		WithRequiredProps(req.RequiredProperties...)
	node, err := s.store.GetNodeByID(ctx, *query)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Data: node}
}

func (s *Service) queryFindNodesByLabel(ctx context.Context, req QueryRequest) Result {
	var params struct {
		NodeType string         `mapstructure:"nodeType"`
		Filter   map[string]any `mapstructure:"filter"`
		Limit    int            `mapstructure:"limit"`
		Offset   int            `mapstructure:"offset"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}

	query := ckg.NewNodeQuery(ckg.NodeType(params.NodeType))
	for key, value := range params.Filter {
		query = query.WithFilter(key, value)
	}
	if params.Limit > 0 {
		query = query.WithLimit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.WithOffset(params.Offset)
	}

	nodes, err := s.store.FindNodesByLabel(ctx, *query)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Results: nodes}
}

func (s *Service) queryFindRelatedNodes(ctx context.Context, req QueryRequest) Result {
	var params struct {
		NodeType     string `mapstructure:"nodeType"`
		ID           string `mapstructure:"id"`
		RelationType string `mapstructure:"relationType"`
		TargetType   string `mapstructure:"targetType"`
		Limit        int    `mapstructure:"limit"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}
	id, err := parseID(params.ID, "id")
	if err != nil {
		return errResult(err)
	}

	query := ckg.NewRelatedQuery(ckg.NodeType(params.NodeType), id, ckg.RelationType(params.RelationType))
	if params.TargetType != "" {
		query = query.WithTargetType(ckg.NodeType(params.TargetType))
	}
	if params.Limit > 0 {
		query = query.WithLimit(params.Limit)
	}

	nodes, err := s.store.FindRelatedNodes(ctx, *query)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Results: nodes}
}

func (s *Service) queryKeywordSearch(ctx context.Context, req QueryRequest) Result {
	var params struct {
		Keyword   string   `mapstructure:"keyword"`
		NodeTypes []string `mapstructure:"nodeTypes"`
		Limit     int      `mapstructure:"limit"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}

	query := ckg.NewKeywordQuery(params.Keyword, toNodeTypes(params.NodeTypes)...)
	if params.Limit > 0 {
		query = query.WithLimit(params.Limit)
	}

	nodes, err := s.store.KeywordSearch(ctx, *query)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Results: nodes}
}

func (s *Service) queryVectorSearch(ctx context.Context, req QueryRequest) Result {
	var params struct {
		Vector    []float64 `mapstructure:"vector"`
		Field     string    `mapstructure:"field"`
		NodeTypes []string  `mapstructure:"nodeTypes"`
		Limit     int       `mapstructure:"limit"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}

	query := ckg.NewVectorQuery(params.Vector, params.Field).
		WithTypes(toNodeTypes(params.NodeTypes)...)
	if params.Limit > 0 {
		query = query.WithLimit(params.Limit)
	}

	nodes, err := s.store.VectorSearch(ctx, *query)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Results: nodes}
}

func (s *Service) queryTraversePath(ctx context.Context, req QueryRequest) Result {
	var params struct {
		NodeType      string   `mapstructure:"nodeType"`
		ID            string   `mapstructure:"id"`
		RelationTypes []string `mapstructure:"relationTypes"`
		MaxDepth      int      `mapstructure:"maxDepth"`
		Limit         int      `mapstructure:"limit"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}
	id, err := parseID(params.ID, "id")
	if err != nil {
		return errResult(err)
	}

	relTypes := make([]ckg.RelationType, len(params.RelationTypes))
	for i, rt := range params.RelationTypes {
		relTypes[i] = ckg.RelationType(rt)
	}

	query := ckg.NewTraverseQuery(ckg.NodeType(params.NodeType), id).
		WithRelationTypes(relTypes...)
	if params.MaxDepth > 0 {
		query = query.WithMaxDepth(params.MaxDepth)
	}
	if params.Limit > 0 {
		query.Limit = params.Limit
	}

	nodes, err := s.store.TraversePath(ctx, *query)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Results: nodes}
}

func (s *Service) queryAggregateData(ctx context.Context, req QueryRequest) Result {
	var params struct {
		NodeType string `mapstructure:"nodeType"`
		GroupBy  string `mapstructure:"groupBy"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}

	counts, err := s.store.AggregateData(ctx, *ckg.NewAggregateQuery(ckg.NodeType(params.NodeType), params.GroupBy))
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Data: counts}
}

func (s *Service) queryResolveConfig(ctx context.Context, req QueryRequest) Result {
	var scopeReq scope.Request
	if err := decodeParams(req.Parameters, &scopeReq); err != nil {
		return errResult(err)
	}

	resolved, err := s.resolver.Resolve(ctx, scopeReq)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Data: resolved}
}

func (s *Service) queryFindEvents(ctx context.Context, req QueryRequest) Result {
	var params struct {
		StartTime   time.Time `mapstructure:"startTime"`
		EndTime     time.Time `mapstructure:"endTime"`
		EventTypes  []string  `mapstructure:"eventTypes"`
		EntityTypes []string  `mapstructure:"entityTypes"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}

	eventTypes := make([]ckg.EventType, len(params.EventTypes))
	for i, et := range params.EventTypes {
		eventTypes[i] = ckg.EventType(et)
	}

	query := ckg.NewTimeQuery(params.StartTime, params.EndTime).
		WithEventTypes(eventTypes...).
		WithEntityTypes(toNodeTypes(params.EntityTypes)...)

	events, err := s.store.FindTimeRelatedEvents(ctx, *query)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Results: events}
}

func (s *Service) queryEntityHistory(ctx context.Context, req QueryRequest) Result {
	var params struct {
		EntityID   string     `mapstructure:"entityId"`
		EntityType string     `mapstructure:"entityType"`
		StartTime  *time.Time `mapstructure:"startTime"`
		EndTime    *time.Time `mapstructure:"endTime"`
	}
	if err := decodeParams(req.Parameters, &params); err != nil {
		return errResult(err)
	}
	id, err := parseID(params.EntityID, "entityId")
	if err != nil {
		return errResult(err)
	}

	query := ckg.NewHistoryQuery(id, ckg.NodeType(params.EntityType))
	if params.StartTime != nil && params.EndTime != nil {
		query = query.WithWindow(*params.StartTime, *params.EndTime)
	} else {
		query.Start = params.StartTime
		query.End = params.EndTime
	}

	history, err := s.store.GetEntityHistory(ctx, *query)
	if err != nil {
		return errResult(err)
	}
	return Result{Success: true, Data: history}
}

func toNodeTypes(names []string) []ckg.NodeType {
	nodeTypes := make([]ckg.NodeType, len(names))
	for i, n := range names {
		nodeTypes[i] = ckg.NodeType(n)
	}
	return nodeTypes
}
