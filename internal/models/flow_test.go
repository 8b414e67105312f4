package models

import (
	"strings"
	"testing"
)

func validNodes() []*FlowNode {
	return []*FlowNode{
		{ID: "greet_trigger", Type: NodeTypeTrigger, Trigger: &TriggerNode{
			MatchPhrases: []string{"hello"},
			Next:         "greet",
		}},
		{ID: "greet", Type: NodeTypePrompt, Prompt: &PromptNode{
			Text: "Hi there!",
			Next: "check",
		}},
		{ID: "check", Type: NodeTypeAction, Action: &ActionNode{
			Function: "check_user",
			Retries:  1,
			Next:     ActionNext{Success: "bye", Error: "greet", Human: "bye"},
		}},
		{ID: "bye", Type: NodeTypeExit, Exit: &ExitNode{Reason: "Bye!"}},
		{ID: ErrorExitNodeID, Type: NodeTypeExit, Exit: &ExitNode{Reason: "Oops."}},
	}
}

func actionKnown(name string) bool { return name == "check_user" }

func TestNewFlowDefinitionRejectsDuplicates(t *testing.T) {
	nodes := validNodes()
	nodes = append(nodes, &FlowNode{ID: "greet", Type: NodeTypeExit, Exit: &ExitNode{}})
	if _, err := NewFlowDefinition(nodes); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestNewFlowDefinitionRejectsEmptyID(t *testing.T) {
	if _, err := NewFlowDefinition([]*FlowNode{{Type: NodeTypeExit, Exit: &ExitNode{}}}); err == nil {
		t.Fatal("expected empty id error")
	}
}

func TestValidateAcceptsValidDefinition(t *testing.T) {
	def, err := NewFlowDefinition(validNodes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := def.Validate(actionKnown); err != nil {
		t.Errorf("expected valid definition, got %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	mutate := func(f func(nodes []*FlowNode) []*FlowNode) []*FlowNode {
		return f(validNodes())
	}

	cases := []struct {
		name  string
		nodes []*FlowNode
		want  string
	}{
		{
			"missing error_exit",
			mutate(func(ns []*FlowNode) []*FlowNode { return ns[:4] }),
			"missing required node",
		},
		{
			"error_exit wrong type",
			mutate(func(ns []*FlowNode) []*FlowNode {
				ns[4] = &FlowNode{ID: ErrorExitNodeID, Type: NodeTypePrompt, Prompt: &PromptNode{Text: "x", Next: "bye"}}
				return ns
			}),
			"must be an exit node",
		},
		{
			"trigger without phrases",
			mutate(func(ns []*FlowNode) []*FlowNode {
				ns[0].Trigger.MatchPhrases = nil
				return ns
			}),
			"no match phrases",
		},
		{
			"dangling reference",
			mutate(func(ns []*FlowNode) []*FlowNode {
				ns[1].Prompt.Next = "nowhere"
				return ns
			}),
			"unknown node",
		},
		{
			"unknown action function",
			mutate(func(ns []*FlowNode) []*FlowNode {
				ns[2].Action.Function = "mystery"
				return ns
			}),
			"unknown function",
		},
		{
			"negative retries",
			mutate(func(ns []*FlowNode) []*FlowNode {
				ns[2].Action.Retries = -1
				return ns
			}),
			"negative retries",
		},
		{
			"human branch not exit",
			mutate(func(ns []*FlowNode) []*FlowNode {
				ns[2].Action.Next.Human = "greet"
				return ns
			}),
			"must reference an exit node",
		},
		{
			"variant mismatch",
			mutate(func(ns []*FlowNode) []*FlowNode {
				ns[1].Prompt = nil
				return ns
			}),
			"no prompt definition",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def, err := NewFlowDefinition(tc.nodes)
			if err != nil {
				t.Fatalf("building definition: %v", err)
			}
			err = def.Validate(actionKnown)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestNodeIDsPreservesOrder(t *testing.T) {
	def, err := NewFlowDefinition(validNodes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := def.NodeIDs()
	want := []string{"greet_trigger", "greet", "check", "bye", ErrorExitNodeID}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}
