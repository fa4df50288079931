// Package ckg implements the coordination knowledge graph: a typed
// node/relationship store shared by every agent and the orchestrator,
// with an append-only temporal event index layered on top.
//
// The package defines the storage-neutral data model (Node, Relationship,
// TimePoint), the typed query builders, and the Store that validates
// requests, delegates them to a pluggable Backend, and emits TimePoints
// as a side effect of mutations. Physical storage lives in the backend
// subpackage (Neo4j for the native engine, SQLite for the local fallback).
package ckg

import (
	"fmt"
	"regexp"
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// NodeType represents the label of a node in the coordination knowledge
// graph. The vocabulary is closed: writes with an unknown label fail
// validation before any backend is touched.
type NodeType string

const (
	NodeTypeProject         NodeType = "Project"
	NodeTypeTask            NodeType = "Task"
	NodeTypeSubTask         NodeType = "SubTask"
	NodeTypeAgentInstance   NodeType = "AgentInstance"
	NodeTypeRule            NodeType = "Rule"
	NodeTypePersona         NodeType = "Persona"
	NodeTypeWorkflow        NodeType = "Workflow"
	NodeTypeWorkflowStep    NodeType = "WorkflowStep"
	NodeTypeRequirement     NodeType = "Requirement"
	NodeTypeDesignSpec      NodeType = "DesignSpec"
	NodeTypeArchDecision    NodeType = "ArchDecision"
	NodeTypeFile            NodeType = "File"
	NodeTypeFunction        NodeType = "Function"
	NodeTypeClass           NodeType = "Class"
	NodeTypeInterface       NodeType = "Interface"
	NodeTypeTestPlan        NodeType = "TestPlan"
	NodeTypeTestCase        NodeType = "TestCase"
	NodeTypeBugReport       NodeType = "BugReport"
	NodeTypeCodeChange      NodeType = "CodeChange"
	NodeTypeHITLInteraction NodeType = "HITLInteraction"
	NodeTypeTimePoint       NodeType = "TimePoint"
	NodeTypeOrganization    NodeType = "Organization"
	NodeTypeTeam            NodeType = "Team"
	NodeTypeUser            NodeType = "User"
	NodeTypeActivity        NodeType = "Activity"
	NodeTypeActivityGroup   NodeType = "ActivityGroup"
)

// AllNodeTypes lists every label in the closed vocabulary.
var AllNodeTypes = []NodeType{
	NodeTypeProject, NodeTypeTask, NodeTypeSubTask, NodeTypeAgentInstance,
	NodeTypeRule, NodeTypePersona, NodeTypeWorkflow, NodeTypeWorkflowStep,
	NodeTypeRequirement, NodeTypeDesignSpec, NodeTypeArchDecision,
	NodeTypeFile, NodeTypeFunction, NodeTypeClass, NodeTypeInterface,
	NodeTypeTestPlan, NodeTypeTestCase, NodeTypeBugReport, NodeTypeCodeChange,
	NodeTypeHITLInteraction, NodeTypeTimePoint, NodeTypeOrganization,
	NodeTypeTeam, NodeTypeUser, NodeTypeActivity, NodeTypeActivityGroup,
}

var nodeTypeSet = func() map[NodeType]struct{} {
	m := make(map[NodeType]struct{}, len(AllNodeTypes))
	for _, nt := range AllNodeTypes {
		m[nt] = struct{}{}
	}
	return m
}()

// String returns the string representation of NodeType.
func (nt NodeType) String() string {
	return string(nt)
}

// IsValid checks if the NodeType is part of the closed vocabulary.
func (nt NodeType) IsValid() bool {
	_, ok := nodeTypeSet[nt]
	return ok
}

// RelationType represents the type of a directed edge between two nodes.
// Most relationships are written in forward/inverse pairs by convention;
// each direction is a separate write.
type RelationType string

const (
	RelationChildTasks    RelationType = "childTasks"
	RelationParentTask    RelationType = "parentTask"
	RelationHasStep       RelationType = "hasStep"
	RelationStepOf        RelationType = "stepOf"
	RelationAssignedTo    RelationType = "assignedTo"
	RelationWorksOn       RelationType = "worksOn"
	RelationMemberOf      RelationType = "memberOf"
	RelationHasMember     RelationType = "hasMember"
	RelationBelongsTo     RelationType = "belongsTo"
	RelationContains      RelationType = "contains"
	RelationPartOfGroup   RelationType = "partOfGroup"
	RelationHasActivity   RelationType = "hasActivity"
	RelationModifies      RelationType = "modifies"
	RelationModifiedBy    RelationType = "modifiedBy"
	RelationVerifies      RelationType = "verifies"
	RelationVerifiedBy    RelationType = "verifiedBy"
	RelationImplements    RelationType = "implements"
	RelationImplementedBy RelationType = "implementedBy"
)

// String returns the string representation of RelationType.
func (rt RelationType) String() string {
	return string(rt)
}

// relIdent constrains relation types to plain identifiers. The vocabulary
// is open, but backends interpolate relation types into query text, so
// only well-formed identifiers pass validation.
var relIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsWellFormed reports whether the relation type is a plain identifier.
func (rt RelationType) IsWellFormed() bool {
	return relIdent.MatchString(string(rt))
}

// Inverse returns the conventional inverse relation type and whether one
// is defined. Callers wanting bidirectional traversal create both edges.
func (rt RelationType) Inverse() (RelationType, bool) {
	pairs := map[RelationType]RelationType{
		RelationChildTasks:    RelationParentTask,
		RelationParentTask:    RelationChildTasks,
		RelationHasStep:       RelationStepOf,
		RelationStepOf:        RelationHasStep,
		RelationAssignedTo:    RelationWorksOn,
		RelationWorksOn:       RelationAssignedTo,
		RelationMemberOf:      RelationHasMember,
		RelationHasMember:     RelationMemberOf,
		RelationBelongsTo:     RelationContains,
		RelationContains:      RelationBelongsTo,
		RelationModifies:      RelationModifiedBy,
		RelationModifiedBy:    RelationModifies,
		RelationVerifies:      RelationVerifiedBy,
		RelationVerifiedBy:    RelationVerifies,
		RelationImplements:    RelationImplementedBy,
		RelationImplementedBy: RelationImplements,
	}
	inv, ok := pairs[rt]
	return inv, ok
}

// EventType classifies a TimePoint lifecycle event.
type EventType string

const (
	EventCreation      EventType = "CREATION"
	EventModification  EventType = "MODIFICATION"
	EventStatusChange  EventType = "STATUS_CHANGE"
	EventApproval      EventType = "APPROVAL"
	EventRejection     EventType = "REJECTION"
	EventCompletion    EventType = "COMPLETION"
	EventResolution    EventType = "RESOLUTION"
	EventAgentActivity EventType = "AGENT_ACTIVITY"
	EventTermination   EventType = "TERMINATION"
	EventResponse      EventType = "RESPONSE"
)

// AllEventTypes lists every TimePoint event type.
var AllEventTypes = []EventType{
	EventCreation, EventModification, EventStatusChange, EventApproval,
	EventRejection, EventCompletion, EventResolution, EventAgentActivity,
	EventTermination, EventResponse,
}

// String returns the string representation of EventType.
func (et EventType) String() string {
	return string(et)
}

// IsValid checks if the EventType is a valid value.
func (et EventType) IsValid() bool {
	for _, v := range AllEventTypes {
		if et == v {
			return true
		}
	}
	return false
}

// Source identifies which physical layer answered a request. It is a
// diagnostic tag only and never changes a result's meaning.
type Source string

const (
	SourceNative Source = "native"
	SourceLocal  Source = "local"
	SourceCache  Source = "cache"
)

// Node represents a typed node in the coordination knowledge graph.
// The ID is globally unique and immutable once assigned; the property
// set a node may carry is fixed per label (see schema.go).
type Node struct {
	ID         types.ID       `json:"id"`
	Type       NodeType       `json:"type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"createdAt"`
	ModifiedAt time.Time      `json:"modifiedAt"`
}

// NewNode creates a new Node with a fresh ID and both timestamps set to now.
func NewNode(nodeType NodeType, props map[string]any) *Node {
	now := time.Now().UTC()
	if props == nil {
		props = make(map[string]any)
	}
	return &Node{
		ID:         types.NewID(),
		Type:       nodeType,
		Properties: props,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// GetProperty retrieves a property value by key.
// Returns nil if the property doesn't exist.
func (n *Node) GetProperty(key string) any {
	return n.Properties[key]
}

// GetStringProperty retrieves a string property value by key.
// Returns empty string if the property doesn't exist or isn't a string.
func (n *Node) GetStringProperty(key string) string {
	if val, ok := n.Properties[key].(string); ok {
		return val
	}
	return ""
}

// GetIntProperty retrieves an integer property value by key.
// Handles both int and float64 for JSON round-trip compatibility.
func (n *Node) GetIntProperty(key string) int {
	switch v := n.Properties[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// GetBoolProperty retrieves a boolean property value by key.
func (n *Node) GetBoolProperty(key string) bool {
	if v, ok := n.Properties[key].(bool); ok {
		return v
	}
	return false
}

// Validate validates the Node fields against the closed label vocabulary
// and the label's declared property schema.
func (n *Node) Validate() error {
	if err := n.ID.Validate(); err != nil {
		return NewValidationError("invalid node ID: " + err.Error())
	}
	if !n.Type.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid node label: %s", n.Type))
	}
	return ValidateProperties(n.Type, n.Properties)
}

// Relationship represents a typed, directed edge between two nodes.
// Creating the inverse direction is the writer's responsibility.
type Relationship struct {
	Type       RelationType `json:"type"`
	SourceType NodeType     `json:"sourceType"`
	SourceID   types.ID     `json:"sourceId"`
	TargetType NodeType     `json:"targetType"`
	TargetID   types.ID     `json:"targetId"`
}

// Validate validates the Relationship fields.
func (r *Relationship) Validate() error {
	if !r.Type.IsWellFormed() {
		return NewValidationError(fmt.Sprintf("malformed relationship type: %q", r.Type))
	}
	if !r.SourceType.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid source label: %s", r.SourceType))
	}
	if !r.TargetType.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid target label: %s", r.TargetType))
	}
	if err := r.SourceID.Validate(); err != nil {
		return NewValidationError("invalid sourceId: " + err.Error())
	}
	if err := r.TargetID.Validate(); err != nil {
		return NewValidationError("invalid targetId: " + err.Error())
	}
	return nil
}

// TimePoint is an immutable record of one lifecycle event on one entity.
// TimePoints are written after the primary mutation succeeds and are
// ordered by Timestamp, not by write sequence.
type TimePoint struct {
	ID         types.ID       `json:"id"`
	EntityID   types.ID       `json:"entityId"`
	EntityType NodeType       `json:"entityType"`
	EventType  EventType      `json:"eventType"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewTimePoint creates a TimePoint for the given entity and event with a
// fresh ID. A zero timestamp is replaced with the current time.
func NewTimePoint(entityID types.ID, entityType NodeType, eventType EventType, ts time.Time, metadata map[string]any) *TimePoint {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &TimePoint{
		ID:         types.NewID(),
		EntityID:   entityID,
		EntityType: entityType,
		EventType:  eventType,
		Timestamp:  ts,
		Metadata:   metadata,
	}
}

// Validate validates the TimePoint fields.
func (tp *TimePoint) Validate() error {
	if err := tp.ID.Validate(); err != nil {
		return NewValidationError("invalid timepoint ID: " + err.Error())
	}
	if err := tp.EntityID.Validate(); err != nil {
		return NewValidationError("invalid entityId: " + err.Error())
	}
	if !tp.EntityType.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid entity label: %s", tp.EntityType))
	}
	if !tp.EventType.IsValid() {
		return NewValidationError(fmt.Sprintf("invalid event type: %s", tp.EventType))
	}
	return nil
}

// EntityHistory bundles an entity's current node state with its lifecycle
// events sorted ascending by timestamp.
type EntityHistory struct {
	Entity *Node       `json:"entity"`
	Events []TimePoint `json:"events"`
}
