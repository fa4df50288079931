package ckg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Store is the knowledge-coordination surface the rest of the system
// talks to. It validates every request against the node schemas, assigns
// IDs and timestamps, appends lifecycle events alongside mutations, and
// delegates physical storage to a Backend.
type Store interface {
	// CreateNode validates properties against the label's schema, assigns
	// an ID and timestamps, persists the node, and appends a CREATION
	// lifecycle event.
	CreateNode(ctx context.Context, nodeType NodeType, props map[string]any) (*Node, error)

	// UpdateNodeProperties merges properties into an existing node. A
	// change to the "status" property appends a STATUS_CHANGE event
	// carrying the previous status; any other change appends a
	// MODIFICATION event. Exactly one event is appended per update.
	UpdateNodeProperties(ctx context.Context, nodeType NodeType, id types.ID, props map[string]any) (*Node, error)

	// DeleteNode removes a node and appends a TERMINATION event so the
	// entity's history outlives the entity. Relationships and earlier
	// TimePoints are not cascaded.
	DeleteNode(ctx context.Context, nodeType NodeType, id types.ID) error

	// CreateRelationship adds one directed edge. Writers maintaining a
	// bidirectional pair issue two calls.
	CreateRelationship(ctx context.Context, rel Relationship) error

	// DeleteRelationship removes one directed edge.
	DeleteRelationship(ctx context.Context, rel Relationship) error

	// BatchUpdate executes operations strictly in order. The batch is not
	// atomic: a failed operation is recorded and execution continues.
	BatchUpdate(ctx context.Context, ops []BatchOperation) []BatchResult

	// CreateTimePoint appends an explicit lifecycle event, for callers
	// recording activity the store cannot observe (agent heartbeats,
	// approvals, HITL responses).
	CreateTimePoint(ctx context.Context, tp TimePoint) (*TimePoint, error)

	// GetNodeByID fetches one node. Absence is (nil, nil), not an error.
	GetNodeByID(ctx context.Context, query GetQuery) (*Node, error)

	FindNodesByLabel(ctx context.Context, query NodeQuery) ([]Node, error)
	FindRelatedNodes(ctx context.Context, query RelatedQuery) ([]Node, error)
	KeywordSearch(ctx context.Context, query KeywordQuery) ([]Node, error)
	VectorSearch(ctx context.Context, query VectorQuery) ([]Node, error)
	TraversePath(ctx context.Context, query TraverseQuery) ([]Node, error)
	AggregateData(ctx context.Context, query AggregateQuery) (map[string]int, error)

	// FindTimeRelatedEvents scans lifecycle events in a window across all
	// entities, ascending by timestamp.
	FindTimeRelatedEvents(ctx context.Context, query TimeQuery) ([]TimePoint, error)

	// GetEntityHistory returns an entity and its ascending event trail.
	// The entity pointer is nil when the node has been deleted; the trail
	// is returned regardless.
	GetEntityHistory(ctx context.Context, query HistoryQuery) (*EntityHistory, error)

	// Health reports the health of the underlying backend.
	Health(ctx context.Context) types.HealthStatus

	// Source reports which physical layer answered (native or local).
	Source() Source

	// Close releases the backend connection.
	Close(ctx context.Context) error
}

// BatchOpKind names one mutation kind inside a batch.
type BatchOpKind string

const (
	BatchCreateNode         BatchOpKind = "createNode"
	BatchUpdateNode         BatchOpKind = "updateNode"
	BatchDeleteNode         BatchOpKind = "deleteNode"
	BatchCreateRelationship BatchOpKind = "createRelationship"
	BatchDeleteRelationship BatchOpKind = "deleteRelationship"
)

// BatchOperation is one mutation inside an ordered batch. The fields
// used depend on Kind; Relationship is only read for the edge kinds.
type BatchOperation struct {
	Kind         BatchOpKind    `json:"kind" mapstructure:"kind"`
	NodeType     NodeType       `json:"nodeType,omitempty" mapstructure:"nodeType"`
	NodeID       types.ID       `json:"nodeId,omitempty" mapstructure:"nodeId"`
	Properties   map[string]any `json:"properties,omitempty" mapstructure:"properties"`
	Relationship *Relationship  `json:"relationship,omitempty" mapstructure:"relationship"`
}

// BatchResult reports the outcome of one batch operation.
type BatchResult struct {
	Index int    `json:"index"`
	Node  *Node  `json:"node,omitempty"`
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// DefaultStore implements Store over a single Backend chosen at startup.
type DefaultStore struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

// StoreOption configures a DefaultStore.
type StoreOption func(*DefaultStore)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *DefaultStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the store's time source. Used by tests that need
// deterministic timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *DefaultStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a Store over the given backend.
func NewStore(backend Backend, opts ...StoreOption) *DefaultStore {
	s := &DefaultStore{
		backend: backend,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DefaultStore) CreateNode(ctx context.Context, nodeType NodeType, props map[string]any) (*Node, error) {
	if err := ValidateCreate(nodeType, props); err != nil {
		return nil, err
	}

	node := NewNode(nodeType, props)
	node.CreatedAt = s.now()
	node.ModifiedAt = node.CreatedAt

	if err := s.backend.InsertNode(ctx, *node); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, node.ID, nodeType, EventCreation, node.CreatedAt, nil)

	s.logger.Debug("node created",
		"nodeType", nodeType,
		"nodeId", node.ID,
	)
	return node, nil
}

func (s *DefaultStore) UpdateNodeProperties(ctx context.Context, nodeType NodeType, id types.ID, props map[string]any) (*Node, error) {
	if err := id.Validate(); err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid node ID: %v", err))
	}
	if len(props) == 0 {
		return nil, NewValidationError("update requires at least one property")
	}
	if err := ValidateProperties(nodeType, props); err != nil {
		return nil, err
	}

	// The previous status must be read before the merge so a STATUS_CHANGE
	// event can carry it.
	before, err := s.backend.GetNodeByID(ctx, GetQuery{Type: nodeType, ID: id})
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, NewNodeNotFoundError(nodeType, id)
	}

	modifiedAt := s.now()
	node, err := s.backend.UpdateNodeProperties(ctx, nodeType, id, props, modifiedAt)
	if err != nil {
		return nil, err
	}

	newStatus, statusSet := props["status"]
	oldStatus := before.GetProperty("status")
	if statusSet {
		s.appendEvent(ctx, id, nodeType, EventStatusChange, modifiedAt, map[string]any{
			"oldStatus": oldStatus,
			"newStatus": newStatus,
		})
	} else {
		s.appendEvent(ctx, id, nodeType, EventModification, modifiedAt, nil)
	}

	return node, nil
}

func (s *DefaultStore) DeleteNode(ctx context.Context, nodeType NodeType, id types.ID) error {
	if err := id.Validate(); err != nil {
		return NewValidationError(fmt.Sprintf("invalid node ID: %v", err))
	}
	if err := s.backend.DeleteNode(ctx, nodeType, id); err != nil {
		return err
	}
	s.appendEvent(ctx, id, nodeType, EventTermination, s.now(), nil)
	return nil
}

func (s *DefaultStore) CreateRelationship(ctx context.Context, rel Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	return s.backend.CreateRelationship(ctx, rel)
}

func (s *DefaultStore) DeleteRelationship(ctx context.Context, rel Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	return s.backend.DeleteRelationship(ctx, rel)
}

func (s *DefaultStore) BatchUpdate(ctx context.Context, ops []BatchOperation) []BatchResult {
	results := make([]BatchResult, len(ops))
	for i, op := range ops {
		result := BatchResult{Index: i}

		switch op.Kind {
		case BatchCreateNode:
			result.Node, result.Err = s.CreateNode(ctx, op.NodeType, op.Properties)
		case BatchUpdateNode:
			result.Node, result.Err = s.UpdateNodeProperties(ctx, op.NodeType, op.NodeID, op.Properties)
		case BatchDeleteNode:
			result.Err = s.DeleteNode(ctx, op.NodeType, op.NodeID)
		case BatchCreateRelationship:
			if op.Relationship == nil {
				result.Err = NewValidationError("createRelationship operation requires a relationship")
			} else {
				result.Err = s.CreateRelationship(ctx, *op.Relationship)
			}
		case BatchDeleteRelationship:
			if op.Relationship == nil {
				result.Err = NewValidationError("deleteRelationship operation requires a relationship")
			} else {
				result.Err = s.DeleteRelationship(ctx, *op.Relationship)
			}
		default:
			result.Err = NewValidationError(fmt.Sprintf("unknown batch operation kind: %q", op.Kind))
		}

		if result.Err != nil {
			result.Error = result.Err.Error()
			s.logger.Warn("batch operation failed",
				"index", i,
				"kind", op.Kind,
				"error", result.Err,
			)
		}
		results[i] = result
	}
	return results
}

func (s *DefaultStore) CreateTimePoint(ctx context.Context, tp TimePoint) (*TimePoint, error) {
	if tp.ID.IsZero() {
		tp.ID = types.NewID()
	}
	if tp.Timestamp.IsZero() {
		tp.Timestamp = s.now()
	}
	if err := tp.Validate(); err != nil {
		return nil, err
	}
	if err := s.backend.InsertTimePoint(ctx, tp); err != nil {
		return nil, err
	}
	return &tp, nil
}

// appendEvent records a lifecycle event alongside a successful mutation.
// Event loss does not fail the mutation; the gap is logged instead.
func (s *DefaultStore) appendEvent(ctx context.Context, entityID types.ID, entityType NodeType, eventType EventType, at time.Time, metadata map[string]any) {
	tp := TimePoint{
		ID:         types.NewID(),
		EntityID:   entityID,
		EntityType: entityType,
		EventType:  eventType,
		Timestamp:  at,
		Metadata:   metadata,
	}
	if err := s.backend.InsertTimePoint(ctx, tp); err != nil {
		s.logger.Warn("lifecycle event not recorded",
			"entityId", entityID,
			"entityType", entityType,
			"eventType", eventType,
			"error", err,
		)
	}
}

func (s *DefaultStore) GetNodeByID(ctx context.Context, query GetQuery) (*Node, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return s.backend.GetNodeByID(ctx, query)
}

func (s *DefaultStore) FindNodesByLabel(ctx context.Context, query NodeQuery) ([]Node, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return s.backend.FindNodesByLabel(ctx, query)
}

func (s *DefaultStore) FindRelatedNodes(ctx context.Context, query RelatedQuery) ([]Node, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return s.backend.FindRelatedNodes(ctx, query)
}

func (s *DefaultStore) KeywordSearch(ctx context.Context, query KeywordQuery) ([]Node, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return s.backend.KeywordSearch(ctx, query)
}

func (s *DefaultStore) VectorSearch(ctx context.Context, query VectorQuery) ([]Node, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return s.backend.VectorSearch(ctx, query)
}

func (s *DefaultStore) TraversePath(ctx context.Context, query TraverseQuery) ([]Node, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return s.backend.TraversePath(ctx, query)
}

func (s *DefaultStore) AggregateData(ctx context.Context, query AggregateQuery) (map[string]int, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return s.backend.AggregateData(ctx, query)
}

func (s *DefaultStore) FindTimeRelatedEvents(ctx context.Context, query TimeQuery) ([]TimePoint, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return s.backend.FindTimePoints(ctx, query)
}

func (s *DefaultStore) GetEntityHistory(ctx context.Context, query HistoryQuery) (*EntityHistory, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	node, err := s.backend.GetNodeByID(ctx, GetQuery{Type: query.EntityType, ID: query.EntityID})
	if err != nil {
		return nil, err
	}

	events, err := s.backend.EntityTimePoints(ctx, query)
	if err != nil {
		return nil, err
	}

	return &EntityHistory{Entity: node, Events: events}, nil
}

func (s *DefaultStore) Health(ctx context.Context) types.HealthStatus {
	return s.backend.Health(ctx)
}

func (s *DefaultStore) Source() Source {
	return s.backend.Kind()
}

func (s *DefaultStore) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}
