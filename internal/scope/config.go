// Package scope resolves the effective Rule, Workflow, and Persona
// configuration for an execution context by walking the scope hierarchy
// from most to least specific: USER, PROJECT, TEAM, ORG, DEFAULT.
package scope

import (
	"time"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// Category names one slice of configuration a caller can request.
// Unrequested categories are omitted from the resolved bundle.
type Category string

const (
	CategoryRules        Category = "rules"
	CategoryWorkflow     Category = "workflow"
	CategoryPersona      Category = "persona"
	CategoryCodeSnippets Category = "code_snippets"
)

// Rule categories composed across scope levels by default. Any other
// category follows the override policy unless the caller asks for it
// to be composed.
var DefaultComposedCategories = []string{"CODE_STANDARD", "SECURITY"}

// snippetCategory is the Rule category served under code_snippets.
const snippetCategory = "CODE_SNIPPET"

// Rule is a scoped policy statement. Identity for override resolution
// is Name; identity for compositional resolution is Category.
type Rule struct {
	ID            types.ID `mapstructure:"-" json:"id"`
	Name          string   `mapstructure:"name" json:"name"`
	Scope         string   `mapstructure:"scope" json:"scope"`
	ScopeEntityID string   `mapstructure:"scopeEntityId" json:"scopeEntityId,omitempty"`
	Content       string   `mapstructure:"content" json:"content"`
	Category      string   `mapstructure:"category" json:"category,omitempty"`
	Description   string   `mapstructure:"description" json:"description,omitempty"`
	IsActive      bool     `mapstructure:"isActive" json:"isActive"`
}

// WorkflowStep is one ordered stage of a Workflow. StepOrder drives the
// implicit dependency edges the planner derives between sibling tasks.
type WorkflowStep struct {
	ID                  types.ID `mapstructure:"-" json:"id,omitempty"`
	Name                string   `mapstructure:"name" json:"name,omitempty"`
	StepOrder           int      `mapstructure:"stepOrder" json:"stepOrder" yaml:"stepOrder"`
	RequiredRole        string   `mapstructure:"requiredRole" json:"requiredRole" yaml:"requiredRole"`
	ExpectedSubTaskType string   `mapstructure:"expectedSubTaskType" json:"expectedSubTaskType,omitempty" yaml:"expectedSubTaskType"`
	IsOptional          bool     `mapstructure:"isOptional" json:"isOptional,omitempty" yaml:"isOptional"`
}

// Workflow is a scoped, ordered process definition. Steps come either
// from linked WorkflowStep nodes or from the node's inline YAML content.
type Workflow struct {
	ID            types.ID       `mapstructure:"-" json:"id"`
	Name          string         `mapstructure:"name" json:"name"`
	Scope         string         `mapstructure:"scope" json:"scope"`
	ScopeEntityID string         `mapstructure:"scopeEntityId" json:"scopeEntityId,omitempty"`
	AppliesTo     string         `mapstructure:"appliesTo" json:"appliesTo,omitempty"`
	Description   string         `mapstructure:"description" json:"description,omitempty"`
	IsActive      bool           `mapstructure:"isActive" json:"isActive"`
	Steps         []WorkflowStep `mapstructure:"-" json:"steps,omitempty"`
}

// Persona is a scoped agent character definition.
type Persona struct {
	ID            types.ID `mapstructure:"-" json:"id"`
	Name          string   `mapstructure:"name" json:"name"`
	Scope         string   `mapstructure:"scope" json:"scope"`
	ScopeEntityID string   `mapstructure:"scopeEntityId" json:"scopeEntityId,omitempty"`
	Role          string   `mapstructure:"role" json:"role,omitempty"`
	Content       string   `mapstructure:"content" json:"content"`
	Description   string   `mapstructure:"description" json:"description,omitempty"`
	IsActive      bool     `mapstructure:"isActive" json:"isActive"`
}

// ConfigKind tags the variant held by a ScopedConfig.
type ConfigKind string

const (
	KindRule     ConfigKind = "rule"
	KindWorkflow ConfigKind = "workflow"
	KindPersona  ConfigKind = "persona"
)

// ScopedConfig is the sum of the three scoped configuration shapes.
// Exactly one payload field is set, selected by Kind.
type ScopedConfig struct {
	Kind     ConfigKind `json:"kind"`
	Rule     *Rule      `json:"rule,omitempty"`
	Workflow *Workflow  `json:"workflow,omitempty"`
	Persona  *Persona   `json:"persona,omitempty"`
}

// Resolved is the configuration bundle for one execution context.
// Fields for unrequested categories stay nil. Partial is set when any
// scope level's lookup failed and was treated as empty.
type Resolved struct {
	OverrideRules      map[string]Rule   `json:"overrideRules,omitempty"`
	CompositionalRules map[string][]Rule `json:"compositionalRules,omitempty"`
	Workflow           *Workflow         `json:"workflow,omitempty"`
	Persona            *Persona          `json:"persona,omitempty"`
	CodeSnippets       []Rule            `json:"codeSnippets,omitempty"`
	Partial            bool              `json:"partial,omitempty"`
	ResolvedAt         time.Time         `json:"resolvedAt"`
}

// Request asks for specific configuration categories for a context.
type Request struct {
	Context    types.ScopeContext `json:"context" mapstructure:"context"`
	Categories []Category         `json:"categories" mapstructure:"categories"`

	// WorkflowName and PersonaRole narrow the single-winner lookups.
	// Empty values match any active node at a level.
	WorkflowName string `json:"workflowName,omitempty" mapstructure:"workflowName"`
	PersonaRole  string `json:"personaRole,omitempty" mapstructure:"personaRole"`

	// ComposedCategories overrides DefaultComposedCategories.
	ComposedCategories []string `json:"composedCategories,omitempty" mapstructure:"composedCategories"`
}

func (r Request) wants(category Category) bool {
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func (r Request) composedSet() map[string]bool {
	categories := r.ComposedCategories
	if len(categories) == 0 {
		categories = DefaultComposedCategories
	}
	set := make(map[string]bool, len(categories)+1)
	for _, c := range categories {
		set[c] = true
	}
	if r.wants(CategoryCodeSnippets) {
		set[snippetCategory] = true
	}
	return set
}
