package ckg

import (
	"fmt"
	"sort"
	"strings"
)

// NodeSchema declares the property contract for one node label.
// Required properties must be present when a node is created; a write
// carrying a property outside the declared set fails validation.
type NodeSchema struct {
	Required []string
	Optional []string

	allowed map[string]struct{}
}

func newSchema(required []string, optional ...string) *NodeSchema {
	s := &NodeSchema{Required: required, Optional: optional}
	s.allowed = make(map[string]struct{}, len(required)+len(optional))
	for _, k := range required {
		s.allowed[k] = struct{}{}
	}
	for _, k := range optional {
		s.allowed[k] = struct{}{}
	}
	return s
}

// Allows reports whether the schema declares the given property key.
func (s *NodeSchema) Allows(key string) bool {
	_, ok := s.allowed[key]
	return ok
}

// nodeSchemas fixes the declared property set per label. The vocabulary
// is closed together with the label set: every label has an entry.
var nodeSchemas = map[NodeType]*NodeSchema{
	NodeTypeProject: newSchema(
		[]string{"name"},
		"description", "status", "orgId", "teamId", "repositoryUrl", "metadata"),
	NodeTypeTask: newSchema(
		[]string{"title", "taskLevel"},
		"description", "status", "dependencies", "guidedByStep", "scopeContext",
		"assignedAgentId", "priority", "estimate", "metadata"),
	NodeTypeSubTask: newSchema(
		[]string{"title"},
		"description", "status", "dependencies", "guidedByStep", "scopeContext",
		"assignedAgentId", "subTaskType", "metadata"),
	NodeTypeAgentInstance: newSchema(
		[]string{"role"},
		"status", "model", "sessionId", "capabilities", "metadata"),
	NodeTypeRule: newSchema(
		[]string{"name", "scope", "content"},
		"scopeEntityId", "isActive", "category", "description", "metadata"),
	NodeTypePersona: newSchema(
		[]string{"name", "scope", "content"},
		"scopeEntityId", "isActive", "role", "description", "metadata"),
	NodeTypeWorkflow: newSchema(
		[]string{"name", "scope"},
		"scopeEntityId", "isActive", "content", "appliesTo", "description", "metadata"),
	NodeTypeWorkflowStep: newSchema(
		[]string{"stepOrder", "requiredRole"},
		"name", "expectedSubTaskType", "isOptional", "nextStep", "description", "metadata"),
	NodeTypeRequirement: newSchema(
		[]string{"title"},
		"description", "status", "priority", "acceptanceCriteria", "metadata"),
	NodeTypeDesignSpec: newSchema(
		[]string{"title"},
		"description", "status", "content", "metadata"),
	NodeTypeArchDecision: newSchema(
		[]string{"title"},
		"description", "status", "context", "decision", "consequences", "metadata"),
	NodeTypeFile: newSchema(
		[]string{"path"},
		"language", "status", "checksum", "metadata"),
	NodeTypeFunction: newSchema(
		[]string{"name"},
		"signature", "filePath", "startLine", "endLine", "metadata"),
	NodeTypeClass: newSchema(
		[]string{"name"},
		"filePath", "startLine", "endLine", "metadata"),
	NodeTypeInterface: newSchema(
		[]string{"name"},
		"filePath", "startLine", "endLine", "metadata"),
	NodeTypeTestPlan: newSchema(
		[]string{"title"},
		"description", "status", "coverageTarget", "metadata"),
	NodeTypeTestCase: newSchema(
		[]string{"title"},
		"description", "status", "filePath", "expectedResult", "metadata"),
	NodeTypeBugReport: newSchema(
		[]string{"title"},
		"description", "status", "severity", "reproduction", "metadata"),
	NodeTypeCodeChange: newSchema(
		[]string{"summary"},
		"status", "diff", "filePaths", "commitSha", "metadata"),
	NodeTypeHITLInteraction: newSchema(
		[]string{"interactionType"},
		"status", "prompt", "response", "requestedBy", "metadata"),
	NodeTypeTimePoint: newSchema(
		[]string{"entityId", "entityType", "eventType", "timestamp"},
		"metadata"),
	NodeTypeOrganization: newSchema(
		[]string{"name"},
		"description", "status", "metadata"),
	NodeTypeTeam: newSchema(
		[]string{"name"},
		"description", "status", "orgId", "metadata"),
	NodeTypeUser: newSchema(
		[]string{"name"},
		"email", "status", "teamId", "orgId", "metadata"),
	NodeTypeActivity: newSchema(
		[]string{"activityType"},
		"status", "agentId", "taskId", "detail", "startedAt", "endedAt", "metadata"),
	NodeTypeActivityGroup: newSchema(
		[]string{"name"},
		"status", "taskId", "detail", "metadata"),
}

// SchemaFor returns the declared property schema for a label.
// Returns nil for labels outside the closed vocabulary.
func SchemaFor(nodeType NodeType) *NodeSchema {
	return nodeSchemas[nodeType]
}

// ValidateProperties checks that every property key is declared for the
// label. It does not check required properties; use ValidateCreate for
// node creation.
func ValidateProperties(nodeType NodeType, props map[string]any) error {
	schema := SchemaFor(nodeType)
	if schema == nil {
		return NewValidationError(fmt.Sprintf("unknown node label: %s", nodeType))
	}

	var undeclared []string
	for key := range props {
		if !schema.Allows(key) {
			undeclared = append(undeclared, key)
		}
	}
	if len(undeclared) > 0 {
		sort.Strings(undeclared)
		return NewValidationError(fmt.Sprintf("undeclared properties for label %s: %s",
			nodeType, strings.Join(undeclared, ", ")))
	}
	return nil
}

// ValidateCreate checks a property map against the label's full creation
// contract: every required property present, no undeclared properties.
func ValidateCreate(nodeType NodeType, props map[string]any) error {
	if err := ValidateProperties(nodeType, props); err != nil {
		return err
	}

	schema := SchemaFor(nodeType)
	var missing []string
	for _, key := range schema.Required {
		if _, ok := props[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return NewValidationError(fmt.Sprintf("missing required properties for label %s: %s",
			nodeType, strings.Join(missing, ", ")))
	}
	return nil
}
