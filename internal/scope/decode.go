package scope

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
)

// decodeNode maps a node's property bag onto a config struct.
// Weak typing absorbs backend round-trip drift such as int64 step orders.
func decodeNode(node *ckg.Node, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return ckg.NewSerializationError("failed to build node decoder", err)
	}
	if err := decoder.Decode(node.Properties); err != nil {
		return ckg.NewSerializationError(
			fmt.Sprintf("failed to decode %s node %s", node.Type, node.ID), err)
	}
	return nil
}

func ruleFromNode(node *ckg.Node) (Rule, error) {
	var rule Rule
	if err := decodeNode(node, &rule); err != nil {
		return Rule{}, err
	}
	rule.ID = node.ID
	return rule, nil
}

func personaFromNode(node *ckg.Node) (Persona, error) {
	var persona Persona
	if err := decodeNode(node, &persona); err != nil {
		return Persona{}, err
	}
	persona.ID = node.ID
	return persona, nil
}

func workflowFromNode(node *ckg.Node) (Workflow, error) {
	var workflow Workflow
	if err := decodeNode(node, &workflow); err != nil {
		return Workflow{}, err
	}
	workflow.ID = node.ID
	return workflow, nil
}

func stepFromNode(node *ckg.Node) (WorkflowStep, error) {
	var step WorkflowStep
	if err := decodeNode(node, &step); err != nil {
		return WorkflowStep{}, err
	}
	step.ID = node.ID
	return step, nil
}

// parseInlineSteps reads a Workflow node's YAML content property. The
// document is either a bare step list or a mapping with a "steps" key.
func parseInlineSteps(content string) ([]WorkflowStep, error) {
	var bare []WorkflowStep
	if err := yaml.Unmarshal([]byte(content), &bare); err == nil && len(bare) > 0 {
		return sortSteps(bare), nil
	}

	var doc struct {
		Steps []WorkflowStep `yaml:"steps"`
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, ckg.NewSerializationError("malformed workflow content", err)
	}
	return sortSteps(doc.Steps), nil
}

func sortSteps(steps []WorkflowStep) []WorkflowStep {
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
	return steps
}
