// Package models defines the flow graph types for SupportFlow.
package models

import (
	"fmt"
)

// NodeType identifies the variant of a flow node.
type NodeType string

// Node type constants.
const (
	// NodeTypeTrigger is a flow entry point matched by phrase containment.
	NodeTypeTrigger NodeType = "trigger"
	// NodeTypePrompt emits templated text and may capture the next reply.
	NodeTypePrompt NodeType = "prompt"
	// NodeTypeAction invokes a named backend operation.
	NodeTypeAction NodeType = "action"
	// NodeTypeExit terminates a flow with a fixed reason.
	NodeTypeExit NodeType = "exit"
)

// ErrorExitNodeID is the mandatory terminal node used when an action's retry
// budget is exhausted. Every flow definition must contain it.
const ErrorExitNodeID = "error_exit"

// TriggerNode is a flow entry point. A trigger matches when any of its
// phrases is a case-insensitive substring of the inbound text.
type TriggerNode struct {
	MatchPhrases []string `yaml:"match_phrases" json:"match_phrases"`
	Next         string   `yaml:"next" json:"next"`
}

// PromptNode emits templated text to the user. If Expects is set, the next
// inbound message is captured into that variable.
type PromptNode struct {
	Text    string `yaml:"text" json:"text"`
	Expects string `yaml:"expects,omitempty" json:"expects,omitempty"`
	Next    string `yaml:"next" json:"next"`
}

// ActionNext holds the three outcome branches of an action node. Human must
// reference an exit node; Success and Error may reference any node.
type ActionNext struct {
	Success string `yaml:"success" json:"success"`
	Error   string `yaml:"error" json:"error"`
	Human   string `yaml:"human" json:"human"`
}

// ActionNode invokes a named backend operation with the session variables and
// branches on its result. Retries is the number of additional attempts
// allowed after the first failure before the flow falls through to
// ErrorExitNodeID.
type ActionNode struct {
	Function string     `yaml:"function" json:"function"`
	Retries  int        `yaml:"retries" json:"retries"`
	Next     ActionNext `yaml:"next" json:"next"`
}

// ExitNode is a terminal node ending a flow. Reason is returned as the reply.
type ExitNode struct {
	Reason string `yaml:"reason" json:"reason"`
}

// FlowNode is a tagged union over the four node variants. Exactly one of the
// variant pointers is set, matching Type.
type FlowNode struct {
	ID      string
	Type    NodeType
	Trigger *TriggerNode
	Prompt  *PromptNode
	Action  *ActionNode
	Exit    *ExitNode
}

// FlowDefinition is an immutable graph of flow nodes, loaded once per
// process. Node order follows the definition source; trigger matching
// depends on it.
type FlowDefinition struct {
	nodes map[string]*FlowNode
	order []string
}

// NewFlowDefinition builds a definition from nodes in the given order.
func NewFlowDefinition(nodes []*FlowNode) (*FlowDefinition, error) {
	def := &FlowDefinition{nodes: make(map[string]*FlowNode, len(nodes))}
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("flow node with empty id")
		}
		if _, exists := def.nodes[n.ID]; exists {
			return nil, fmt.Errorf("duplicate flow node id %q", n.ID)
		}
		def.nodes[n.ID] = n
		def.order = append(def.order, n.ID)
	}
	return def, nil
}

// Node returns the node with the given id.
func (d *FlowDefinition) Node(id string) (*FlowNode, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// NodeIDs returns all node ids in definition order.
func (d *FlowDefinition) NodeIDs() []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	return ids
}

// Len returns the number of nodes in the definition.
func (d *FlowDefinition) Len() int {
	return len(d.order)
}

// Validate checks the structural invariants of the definition: each node
// carries the variant matching its type, every node reference resolves,
// ErrorExitNodeID exists and is an exit node, action human branches reference
// exit nodes, and every action function is known to actionExists. These are
// configuration errors and must fail at load time, before any message is
// dispatched.
func (d *FlowDefinition) Validate(actionExists func(name string) bool) error {
	errExit, ok := d.nodes[ErrorExitNodeID]
	if !ok {
		return fmt.Errorf("flow definition missing required node %q", ErrorExitNodeID)
	}
	if errExit.Type != NodeTypeExit || errExit.Exit == nil {
		return fmt.Errorf("node %q must be an exit node", ErrorExitNodeID)
	}

	for _, id := range d.order {
		n := d.nodes[id]
		switch n.Type {
		case NodeTypeTrigger:
			if n.Trigger == nil {
				return fmt.Errorf("trigger node %q has no trigger definition", id)
			}
			if len(n.Trigger.MatchPhrases) == 0 {
				return fmt.Errorf("trigger node %q has no match phrases", id)
			}
			if err := d.checkRef(id, "next", n.Trigger.Next); err != nil {
				return err
			}
		case NodeTypePrompt:
			if n.Prompt == nil {
				return fmt.Errorf("prompt node %q has no prompt definition", id)
			}
			if err := d.checkRef(id, "next", n.Prompt.Next); err != nil {
				return err
			}
		case NodeTypeAction:
			if n.Action == nil {
				return fmt.Errorf("action node %q has no action definition", id)
			}
			if n.Action.Function == "" {
				return fmt.Errorf("action node %q has no function name", id)
			}
			if actionExists != nil && !actionExists(n.Action.Function) {
				return fmt.Errorf("action node %q references unknown function %q", id, n.Action.Function)
			}
			if n.Action.Retries < 0 {
				return fmt.Errorf("action node %q has negative retries", id)
			}
			if err := d.checkRef(id, "next.success", n.Action.Next.Success); err != nil {
				return err
			}
			if err := d.checkRef(id, "next.error", n.Action.Next.Error); err != nil {
				return err
			}
			if err := d.checkRef(id, "next.human", n.Action.Next.Human); err != nil {
				return err
			}
			human := d.nodes[n.Action.Next.Human]
			if human.Type != NodeTypeExit || human.Exit == nil {
				return fmt.Errorf("action node %q next.human must reference an exit node, got %q of type %s", id, n.Action.Next.Human, human.Type)
			}
		case NodeTypeExit:
			if n.Exit == nil {
				return fmt.Errorf("exit node %q has no exit definition", id)
			}
		default:
			return fmt.Errorf("node %q has unknown type %q", id, n.Type)
		}
	}
	return nil
}

func (d *FlowDefinition) checkRef(nodeID, field, target string) error {
	if target == "" {
		return fmt.Errorf("node %q has empty %s reference", nodeID, field)
	}
	if _, ok := d.nodes[target]; !ok {
		return fmt.Errorf("node %q %s references unknown node %q", nodeID, field, target)
	}
	return nil
}
