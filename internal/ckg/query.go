package ckg

import (
	"fmt"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// GetQuery looks up a single node by label and ID.
// Absence is not an error: the store returns a nil node.
type GetQuery struct {
	Type          NodeType `json:"type"`
	ID            types.ID `json:"id"`
	RequiredProps []string `json:"requiredProperties,omitempty"`
}

// NewGetQuery creates a GetQuery for the given label and ID.
func NewGetQuery(nodeType NodeType, id types.ID) *GetQuery {
	return &GetQuery{Type: nodeType, ID: id}
}

// WithRequiredProps restricts the returned property set.
func (q *GetQuery) WithRequiredProps(props ...string) *GetQuery {
	q.RequiredProps = props
	return q
}

// Validate validates the GetQuery fields.
func (q *GetQuery) Validate() error {
	if !q.Type.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid node label: %s", q.Type))
	}
	if err := q.ID.Validate(); err != nil {
		return NewValidationError(fmt.Sprintf("invalid node id: %v", err))
	}
	return nil
}

// NodeQuery finds nodes of one label matching an exact-value property filter.
type NodeQuery struct {
	Type   NodeType       `json:"type"`
	Filter map[string]any `json:"filter,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

// NewNodeQuery creates a NodeQuery for the given label.
func NewNodeQuery(nodeType NodeType) *NodeQuery {
	return &NodeQuery{
		Type:   nodeType,
		Filter: make(map[string]any),
		Limit:  100,
	}
}

// WithFilter adds an exact-match property filter.
func (q *NodeQuery) WithFilter(key string, value any) *NodeQuery {
	q.Filter[key] = value
	return q
}

// WithLimit sets the maximum number of results.
func (q *NodeQuery) WithLimit(limit int) *NodeQuery {
	q.Limit = limit
	return q
}

// WithOffset sets the result offset for pagination.
func (q *NodeQuery) WithOffset(offset int) *NodeQuery {
	q.Offset = offset
	return q
}

// Validate validates the NodeQuery fields.
func (q *NodeQuery) Validate() error {
	if !q.Type.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid node label: %s", q.Type))
	}
	if err := ValidateProperties(q.Type, q.Filter); err != nil {
		return NewValidationError(fmt.Sprintf("invalid filter: %v", err))
	}
	if q.Limit < 0 {
		return NewValidationError(fmt.Sprintf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Offset < 0 {
		return NewValidationError(fmt.Sprintf("offset must be >= 0, got %d", q.Offset))
	}
	return nil
}

// RelatedQuery finds nodes connected to a start node over one relation type.
// TargetType, when set, restricts results to a single label.
type RelatedQuery struct {
	Type         NodeType     `json:"type"`
	ID           types.ID     `json:"id"`
	RelationType RelationType `json:"relationType"`
	TargetType   *NodeType    `json:"targetType,omitempty"`
	Limit        int          `json:"limit,omitempty"`
}

// NewRelatedQuery creates a RelatedQuery from the given start node.
func NewRelatedQuery(nodeType NodeType, id types.ID, relType RelationType) *RelatedQuery {
	return &RelatedQuery{
		Type:         nodeType,
		ID:           id,
		RelationType: relType,
		Limit:        100,
	}
}

// WithTargetType restricts related nodes to a single label.
func (q *RelatedQuery) WithTargetType(targetType NodeType) *RelatedQuery {
	q.TargetType = &targetType
	return q
}

// WithLimit sets the maximum number of results.
func (q *RelatedQuery) WithLimit(limit int) *RelatedQuery {
	q.Limit = limit
	return q
}

// Validate validates the RelatedQuery fields.
func (q *RelatedQuery) Validate() error {
	if !q.Type.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid node label: %s", q.Type))
	}
	if err := q.ID.Validate(); err != nil {
		return NewValidationError(fmt.Sprintf("invalid node id: %v", err))
	}
	if !q.RelationType.IsWellFormed() {
		return NewValidationError(fmt.Sprintf("malformed relation type: %q", q.RelationType))
	}
	if q.TargetType != nil && !q.TargetType.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid target label: %s", *q.TargetType))
	}
	return nil
}

// KeywordQuery searches node text properties for a keyword across labels.
// Best-effort: a backend without full-text capability may refuse it.
type KeywordQuery struct {
	Types   []NodeType `json:"types"`
	Keyword string     `json:"keyword"`
	Limit   int        `json:"limit,omitempty"`
}

// NewKeywordQuery creates a KeywordQuery.
func NewKeywordQuery(keyword string, nodeTypes ...NodeType) *KeywordQuery {
	return &KeywordQuery{Types: nodeTypes, Keyword: keyword, Limit: 50}
}

// WithLimit sets the maximum number of results.
func (q *KeywordQuery) WithLimit(limit int) *KeywordQuery {
	q.Limit = limit
	return q
}

// Validate validates the KeywordQuery fields.
func (q *KeywordQuery) Validate() error {
	if q.Keyword == "" {
		return NewValidationError("keyword cannot be empty")
	}
	if len(q.Types) == 0 {
		return NewValidationError("keyword search requires at least one node label")
	}
	for _, nt := range q.Types {
		if !nt.IsValid() {
			return NewValidationError(fmt.Sprintf("invalid node label: %s", nt))
		}
	}
	return nil
}

// VectorQuery searches for nodes whose embedding on one field is nearest
// to the given vector. Best-effort: the local fallback store lacks vector
// indices and refuses this query with BACKEND_UNAVAILABLE.
type VectorQuery struct {
	Vector []float64  `json:"vector"`
	Field  string     `json:"field"`
	Types  []NodeType `json:"types,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

// NewVectorQuery creates a VectorQuery over the given embedding field.
func NewVectorQuery(vector []float64, field string) *VectorQuery {
	return &VectorQuery{Vector: vector, Field: field, Limit: 10}
}

// WithTypes restricts results to the given labels.
func (q *VectorQuery) WithTypes(nodeTypes ...NodeType) *VectorQuery {
	q.Types = nodeTypes
	return q
}

// WithLimit sets the maximum number of results.
func (q *VectorQuery) WithLimit(limit int) *VectorQuery {
	q.Limit = limit
	return q
}

// Validate validates the VectorQuery fields.
func (q *VectorQuery) Validate() error {
	if len(q.Vector) == 0 {
		return NewValidationError("vector cannot be empty")
	}
	if q.Field == "" {
		return NewValidationError("vector field cannot be empty")
	}
	for _, nt := range q.Types {
		if !nt.IsValid() {
			return NewValidationError(fmt.Sprintf("invalid node label: %s", nt))
		}
	}
	return nil
}

// TraverseQuery walks relationships from a start node up to MaxDepth hops,
// returning the distinct nodes reached.
type TraverseQuery struct {
	Type          NodeType       `json:"type"`
	ID            types.ID       `json:"id"`
	RelationTypes []RelationType `json:"relationTypes,omitempty"`
	MaxDepth      int            `json:"maxDepth,omitempty"`
	Limit         int            `json:"limit,omitempty"`
}

// NewTraverseQuery creates a TraverseQuery from the given start node.
func NewTraverseQuery(nodeType NodeType, id types.ID) *TraverseQuery {
	return &TraverseQuery{Type: nodeType, ID: id, MaxDepth: 3, Limit: 100}
}

// WithRelationTypes restricts traversal to the given relation types.
func (q *TraverseQuery) WithRelationTypes(relTypes ...RelationType) *TraverseQuery {
	q.RelationTypes = relTypes
	return q
}

// WithMaxDepth sets the maximum traversal depth.
func (q *TraverseQuery) WithMaxDepth(depth int) *TraverseQuery {
	q.MaxDepth = depth
	return q
}

// Validate validates the TraverseQuery fields.
func (q *TraverseQuery) Validate() error {
	if !q.Type.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid node label: %s", q.Type))
	}
	if err := q.ID.Validate(); err != nil {
		return NewValidationError(fmt.Sprintf("invalid node id: %v", err))
	}
	if q.MaxDepth <= 0 {
		return NewValidationError(fmt.Sprintf("maxDepth must be > 0, got %d", q.MaxDepth))
	}
	for _, rt := range q.RelationTypes {
		if !rt.IsWellFormed() {
			return NewValidationError(fmt.Sprintf("malformed relation type: %q", rt))
		}
	}
	return nil
}

// AggregateQuery counts nodes of one label grouped by a property value.
type AggregateQuery struct {
	Type    NodeType `json:"type"`
	GroupBy string   `json:"groupBy"`
}

// NewAggregateQuery creates an AggregateQuery.
func NewAggregateQuery(nodeType NodeType, groupBy string) *AggregateQuery {
	return &AggregateQuery{Type: nodeType, GroupBy: groupBy}
}

// Validate validates the AggregateQuery fields.
func (q *AggregateQuery) Validate() error {
	if !q.Type.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid node label: %s", q.Type))
	}
	if q.GroupBy == "" {
		return NewValidationError("groupBy property cannot be empty")
	}
	schema := SchemaFor(q.Type)
	if schema != nil && !schema.Allows(q.GroupBy) {
		return NewValidationError(fmt.Sprintf("label %s does not declare property %s", q.Type, q.GroupBy))
	}
	return nil
}

// TimeQuery scans TimePoints in a window across all entities, optionally
// filtered by event and entity types.
type TimeQuery struct {
	Start       time.Time   `json:"startTime"`
	End         time.Time   `json:"endTime"`
	EventTypes  []EventType `json:"eventTypes,omitempty"`
	EntityTypes []NodeType  `json:"entityTypes,omitempty"`
}

// NewTimeQuery creates a TimeQuery over the given window.
func NewTimeQuery(start, end time.Time) *TimeQuery {
	return &TimeQuery{Start: start, End: end}
}

// WithEventTypes filters by event types.
func (q *TimeQuery) WithEventTypes(eventTypes ...EventType) *TimeQuery {
	q.EventTypes = eventTypes
	return q
}

// WithEntityTypes filters by entity labels.
func (q *TimeQuery) WithEntityTypes(entityTypes ...NodeType) *TimeQuery {
	q.EntityTypes = entityTypes
	return q
}

// Validate validates the TimeQuery fields.
func (q *TimeQuery) Validate() error {
	if q.Start.IsZero() || q.End.IsZero() {
		return NewValidationError("time window requires both startTime and endTime")
	}
	if q.End.Before(q.Start) {
		return NewValidationError("endTime must not precede startTime")
	}
	for _, et := range q.EventTypes {
		if !et.IsValid() {
			return NewValidationError(fmt.Sprintf("invalid event type: %s", et))
		}
	}
	for _, nt := range q.EntityTypes {
		if !nt.IsValid() {
			return NewValidationError(fmt.Sprintf("invalid entity label: %s", nt))
		}
	}
	return nil
}

// HistoryQuery fetches one entity's lifecycle events, optionally windowed.
type HistoryQuery struct {
	EntityID   types.ID   `json:"entityId"`
	EntityType NodeType   `json:"entityType"`
	Start      *time.Time `json:"startTime,omitempty"`
	End        *time.Time `json:"endTime,omitempty"`
}

// NewHistoryQuery creates a HistoryQuery for the given entity.
func NewHistoryQuery(entityID types.ID, entityType NodeType) *HistoryQuery {
	return &HistoryQuery{EntityID: entityID, EntityType: entityType}
}

// WithWindow restricts history to the given time window.
func (q *HistoryQuery) WithWindow(start, end time.Time) *HistoryQuery {
	q.Start = &start
	q.End = &end
	return q
}

// Validate validates the HistoryQuery fields.
func (q *HistoryQuery) Validate() error {
	if err := q.EntityID.Validate(); err != nil {
		return NewValidationError(fmt.Sprintf("invalid entityId: %v", err))
	}
	if !q.EntityType.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid entity label: %s", q.EntityType))
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return NewValidationError("endTime must not precede startTime")
	}
	return nil
}
