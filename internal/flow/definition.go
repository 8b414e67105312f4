// Package flow implements the conversational flow orchestration engine for
// SupportFlow: flow definition loading, the action registry, and the chat
// orchestrator state machine.
package flow

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/supportflow/supportflow/internal/models"
)

// rawNode is the YAML shape of a single flow node before it is converted into
// its typed variant. The next field is a scalar for trigger/prompt nodes and
// a {success, error, human} mapping for action nodes.
type rawNode struct {
	Type         string    `yaml:"type"`
	MatchPhrases []string  `yaml:"match_phrases"`
	Text         string    `yaml:"text"`
	Expects      string    `yaml:"expects"`
	Function     string    `yaml:"function"`
	Retries      int       `yaml:"retries"`
	Next         yaml.Node `yaml:"next"`
	Reason       string    `yaml:"reason"`
}

// LoadDefinitionFile reads and parses a YAML flow definition from the given
// path. The returned definition is not yet validated against an action
// registry; callers are expected to run Validate before dispatching messages.
func LoadDefinitionFile(path string) (*models.FlowDefinition, error) {
	slog.Debug("flow.LoadDefinitionFile: reading flow definition", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("flow.LoadDefinitionFile: read failed", "error", err, "path", path)
		return nil, fmt.Errorf("failed to read flow definition %s: %w", path, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse flow definition %s: %w", path, err)
	}
	slog.Info("flow.LoadDefinitionFile: flow definition loaded", "path", path, "nodes", def.Len())
	return def, nil
}

// ParseDefinition parses a YAML flow definition. Node declaration order is
// preserved because trigger matching is first-match-wins in that order, so
// the document is walked as a yaml.Node tree rather than decoded into a map.
func ParseDefinition(data []byte) (*models.FlowDefinition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty flow definition document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("flow definition root must be a mapping")
	}

	var nodesNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "nodes" {
			nodesNode = root.Content[i+1]
			break
		}
	}
	if nodesNode == nil {
		return nil, fmt.Errorf("flow definition has no nodes mapping")
	}
	if nodesNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("nodes must be a mapping of node id to node")
	}

	var nodes []*models.FlowNode
	for i := 0; i+1 < len(nodesNode.Content); i += 2 {
		id := nodesNode.Content[i].Value
		var raw rawNode
		if err := nodesNode.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("node %q: %w", id, err)
		}
		node, err := convertNode(id, raw)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return models.NewFlowDefinition(nodes)
}

// convertNode turns a raw YAML node into its typed variant.
func convertNode(id string, raw rawNode) (*models.FlowNode, error) {
	node := &models.FlowNode{ID: id, Type: models.NodeType(raw.Type)}
	switch node.Type {
	case models.NodeTypeTrigger:
		next, err := scalarNext(id, raw.Next)
		if err != nil {
			return nil, err
		}
		node.Trigger = &models.TriggerNode{MatchPhrases: raw.MatchPhrases, Next: next}
	case models.NodeTypePrompt:
		next, err := scalarNext(id, raw.Next)
		if err != nil {
			return nil, err
		}
		node.Prompt = &models.PromptNode{Text: raw.Text, Expects: raw.Expects, Next: next}
	case models.NodeTypeAction:
		if raw.Next.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("action node %q next must be a {success, error, human} mapping", id)
		}
		var next models.ActionNext
		if err := raw.Next.Decode(&next); err != nil {
			return nil, fmt.Errorf("action node %q next: %w", id, err)
		}
		node.Action = &models.ActionNode{Function: raw.Function, Retries: raw.Retries, Next: next}
	case models.NodeTypeExit:
		node.Exit = &models.ExitNode{Reason: raw.Reason}
	default:
		return nil, fmt.Errorf("node %q has unknown type %q", id, raw.Type)
	}
	return node, nil
}

func scalarNext(id string, next yaml.Node) (string, error) {
	if next.Kind == 0 {
		return "", nil
	}
	if next.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("node %q next must be a node id", id)
	}
	return next.Value, nil
}
