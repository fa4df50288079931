package ckg

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// TracedStore wraps a Store with OpenTelemetry tracing. Every operation
// gets a span named "warp.ckg.<operation>" carrying the backend source
// and the node label involved.
//
// Thread-safety: safe for concurrent access (delegates to inner store).
type TracedStore struct {
	inner  Store
	tracer trace.Tracer
}

// NewTracedStore wraps a store with tracing.
func NewTracedStore(inner Store, tracer trace.Tracer) *TracedStore {
	return &TracedStore{inner: inner, tracer: tracer}
}

func (s *TracedStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "warp.ckg."+op)
	span.SetAttributes(attribute.String("ckg.source", string(s.inner.Source())))
	span.SetAttributes(attrs...)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (s *TracedStore) CreateNode(ctx context.Context, nodeType NodeType, props map[string]any) (*Node, error) {
	ctx, span := s.start(ctx, "create_node", attribute.String("ckg.node_type", nodeType.String()))
	defer span.End()

	node, err := s.inner.CreateNode(ctx, nodeType, props)
	finishSpan(span, err)
	if node != nil {
		span.SetAttributes(attribute.String("ckg.node_id", node.ID.String()))
	}
	return node, err
}

func (s *TracedStore) UpdateNodeProperties(ctx context.Context, nodeType NodeType, id types.ID, props map[string]any) (*Node, error) {
	ctx, span := s.start(ctx, "update_node",
		attribute.String("ckg.node_type", nodeType.String()),
		attribute.String("ckg.node_id", id.String()),
		attribute.Int("ckg.property_count", len(props)),
	)
	defer span.End()

	node, err := s.inner.UpdateNodeProperties(ctx, nodeType, id, props)
	finishSpan(span, err)
	return node, err
}

func (s *TracedStore) DeleteNode(ctx context.Context, nodeType NodeType, id types.ID) error {
	ctx, span := s.start(ctx, "delete_node",
		attribute.String("ckg.node_type", nodeType.String()),
		attribute.String("ckg.node_id", id.String()),
	)
	defer span.End()

	err := s.inner.DeleteNode(ctx, nodeType, id)
	finishSpan(span, err)
	return err
}

func (s *TracedStore) CreateRelationship(ctx context.Context, rel Relationship) error {
	ctx, span := s.start(ctx, "create_relationship",
		attribute.String("ckg.relation_type", rel.Type.String()),
	)
	defer span.End()

	err := s.inner.CreateRelationship(ctx, rel)
	finishSpan(span, err)
	return err
}

func (s *TracedStore) DeleteRelationship(ctx context.Context, rel Relationship) error {
	ctx, span := s.start(ctx, "delete_relationship",
		attribute.String("ckg.relation_type", rel.Type.String()),
	)
	defer span.End()

	err := s.inner.DeleteRelationship(ctx, rel)
	finishSpan(span, err)
	return err
}

func (s *TracedStore) BatchUpdate(ctx context.Context, ops []BatchOperation) []BatchResult {
	ctx, span := s.start(ctx, "batch_update", attribute.Int("ckg.batch_size", len(ops)))
	defer span.End()

	results := s.inner.BatchUpdate(ctx, ops)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("ckg.batch_failures", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, "batch had failures")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return results
}

func (s *TracedStore) CreateTimePoint(ctx context.Context, tp TimePoint) (*TimePoint, error) {
	ctx, span := s.start(ctx, "create_timepoint",
		attribute.String("ckg.event_type", tp.EventType.String()),
	)
	defer span.End()

	created, err := s.inner.CreateTimePoint(ctx, tp)
	finishSpan(span, err)
	return created, err
}

func (s *TracedStore) GetNodeByID(ctx context.Context, query GetQuery) (*Node, error) {
	ctx, span := s.start(ctx, "get_node",
		attribute.String("ckg.node_type", query.Type.String()),
		attribute.String("ckg.node_id", query.ID.String()),
	)
	defer span.End()

	node, err := s.inner.GetNodeByID(ctx, query)
	finishSpan(span, err)
	span.SetAttributes(attribute.Bool("ckg.found", node != nil))
	return node, err
}

func (s *TracedStore) FindNodesByLabel(ctx context.Context, query NodeQuery) ([]Node, error) {
	ctx, span := s.start(ctx, "find_nodes",
		attribute.String("ckg.node_type", query.Type.String()),
	)
	defer span.End()

	nodes, err := s.inner.FindNodesByLabel(ctx, query)
	finishSpan(span, err)
	span.SetAttributes(attribute.Int("ckg.result_count", len(nodes)))
	return nodes, err
}

func (s *TracedStore) FindRelatedNodes(ctx context.Context, query RelatedQuery) ([]Node, error) {
	ctx, span := s.start(ctx, "find_related",
		attribute.String("ckg.node_type", query.Type.String()),
		attribute.String("ckg.relation_type", query.RelationType.String()),
	)
	defer span.End()

	nodes, err := s.inner.FindRelatedNodes(ctx, query)
	finishSpan(span, err)
	span.SetAttributes(attribute.Int("ckg.result_count", len(nodes)))
	return nodes, err
}

func (s *TracedStore) KeywordSearch(ctx context.Context, query KeywordQuery) ([]Node, error) {
	ctx, span := s.start(ctx, "keyword_search")
	defer span.End()

	nodes, err := s.inner.KeywordSearch(ctx, query)
	finishSpan(span, err)
	span.SetAttributes(attribute.Int("ckg.result_count", len(nodes)))
	return nodes, err
}

func (s *TracedStore) VectorSearch(ctx context.Context, query VectorQuery) ([]Node, error) {
	ctx, span := s.start(ctx, "vector_search",
		attribute.Int("ckg.vector_dimensions", len(query.Vector)),
	)
	defer span.End()

	nodes, err := s.inner.VectorSearch(ctx, query)
	finishSpan(span, err)
	span.SetAttributes(attribute.Int("ckg.result_count", len(nodes)))
	return nodes, err
}

func (s *TracedStore) TraversePath(ctx context.Context, query TraverseQuery) ([]Node, error) {
	ctx, span := s.start(ctx, "traverse",
		attribute.String("ckg.node_type", query.Type.String()),
		attribute.Int("ckg.max_depth", query.MaxDepth),
	)
	defer span.End()

	nodes, err := s.inner.TraversePath(ctx, query)
	finishSpan(span, err)
	span.SetAttributes(attribute.Int("ckg.result_count", len(nodes)))
	return nodes, err
}

func (s *TracedStore) AggregateData(ctx context.Context, query AggregateQuery) (map[string]int, error) {
	ctx, span := s.start(ctx, "aggregate",
		attribute.String("ckg.node_type", query.Type.String()),
		attribute.String("ckg.group_by", query.GroupBy),
	)
	defer span.End()

	counts, err := s.inner.AggregateData(ctx, query)
	finishSpan(span, err)
	return counts, err
}

func (s *TracedStore) FindTimeRelatedEvents(ctx context.Context, query TimeQuery) ([]TimePoint, error) {
	ctx, span := s.start(ctx, "find_events")
	defer span.End()

	events, err := s.inner.FindTimeRelatedEvents(ctx, query)
	finishSpan(span, err)
	span.SetAttributes(attribute.Int("ckg.result_count", len(events)))
	return events, err
}

func (s *TracedStore) GetEntityHistory(ctx context.Context, query HistoryQuery) (*EntityHistory, error) {
	ctx, span := s.start(ctx, "entity_history",
		attribute.String("ckg.node_type", query.EntityType.String()),
		attribute.String("ckg.node_id", query.EntityID.String()),
	)
	defer span.End()

	history, err := s.inner.GetEntityHistory(ctx, query)
	finishSpan(span, err)
	if history != nil {
		span.SetAttributes(attribute.Int("ckg.event_count", len(history.Events)))
	}
	return history, err
}

func (s *TracedStore) Health(ctx context.Context) types.HealthStatus {
	ctx, span := s.start(ctx, "health")
	defer span.End()
	return s.inner.Health(ctx)
}

func (s *TracedStore) Source() Source {
	return s.inner.Source()
}

func (s *TracedStore) Close(ctx context.Context) error {
	ctx, span := s.start(ctx, "close")
	defer span.End()

	err := s.inner.Close(ctx)
	finishSpan(span, err)
	return err
}
