package ckg

import (
	"context"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Backend defines the physical storage interface the Store delegates to.
// Two implementations exist: the native graph engine (Neo4j) and the local
// fallback store (SQLite). The Store chooses one at construction and never
// switches afterwards; higher layers depend only on this interface.
//
// Absence semantics: GetNodeByID returns (nil, nil) when the node does not
// exist — absence is not an error anywhere in the storage layer.
//
// Thread-safety: All implementations must be safe for concurrent access.
type Backend interface {
	// Connect establishes the connection to the underlying engine.
	// Must be called before any other operation.
	Connect(ctx context.Context) error

	// Close releases all resources and closes the connection.
	Close(ctx context.Context) error

	// Health returns the current health status of the backend.
	Health(ctx context.Context) types.HealthStatus

	// Kind reports which physical layer this backend is (native or local).
	// Diagnostic only; results never change meaning based on it.
	Kind() Source

	// GetNodeByID fetches a single node by label and ID.
	// Returns (nil, nil) when the node does not exist.
	GetNodeByID(ctx context.Context, query GetQuery) (*Node, error)

	// FindNodesByLabel returns nodes of one label matching an exact-value
	// property filter, paginated by limit/offset.
	FindNodesByLabel(ctx context.Context, query NodeQuery) ([]Node, error)

	// FindRelatedNodes returns nodes connected to the start node over one
	// relation type, optionally restricted to a target label.
	FindRelatedNodes(ctx context.Context, query RelatedQuery) ([]Node, error)

	// KeywordSearch searches text properties across labels. Backends
	// without full-text capability return BACKEND_UNAVAILABLE.
	KeywordSearch(ctx context.Context, query KeywordQuery) ([]Node, error)

	// VectorSearch finds nodes by embedding similarity. Backends without
	// vector indices return BACKEND_UNAVAILABLE.
	VectorSearch(ctx context.Context, query VectorQuery) ([]Node, error)

	// TraversePath walks relationships from a start node up to MaxDepth
	// hops and returns the distinct nodes reached, nearest first.
	TraversePath(ctx context.Context, query TraverseQuery) ([]Node, error)

	// AggregateData counts nodes of one label grouped by a property value.
	AggregateData(ctx context.Context, query AggregateQuery) (map[string]int, error)

	// InsertNode persists a fully-formed node (ID and timestamps already
	// assigned by the Store).
	InsertNode(ctx context.Context, node Node) error

	// UpdateNodeProperties merges the given properties into the node and
	// sets its modifiedAt timestamp. Returns the updated node, or a
	// NODE_NOT_FOUND error if the node does not exist.
	UpdateNodeProperties(ctx context.Context, nodeType NodeType, id types.ID, props map[string]any, modifiedAt time.Time) (*Node, error)

	// DeleteNode removes a node. Relationships and TimePoints referring to
	// it are NOT cascaded; orphans may remain.
	DeleteNode(ctx context.Context, nodeType NodeType, id types.ID) error

	// CreateRelationship creates one directed edge. The inverse direction
	// is a separate call by the writer.
	CreateRelationship(ctx context.Context, rel Relationship) error

	// DeleteRelationship removes one directed edge.
	DeleteRelationship(ctx context.Context, rel Relationship) error

	// InsertTimePoint appends one immutable lifecycle event.
	InsertTimePoint(ctx context.Context, tp TimePoint) error

	// FindTimePoints scans lifecycle events in a time window across all
	// entities, optionally filtered by event and entity types. Results are
	// sorted ascending by timestamp.
	FindTimePoints(ctx context.Context, query TimeQuery) ([]TimePoint, error)

	// EntityTimePoints returns one entity's lifecycle events sorted
	// ascending by timestamp, optionally windowed.
	EntityTimePoints(ctx context.Context, query HistoryQuery) ([]TimePoint, error)
}
