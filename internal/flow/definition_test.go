package flow

import (
	"strings"
	"testing"

	"github.com/supportflow/supportflow/internal/models"
)

const sampleFlowYAML = `
nodes:
  zebra_trigger:
    type: trigger
    match_phrases:
      - "track my order"
    next: ask_order_id

  ask_order_id:
    type: prompt
    text: "Please share your order number."
    expects: order_id
    next: lookup_order

  lookup_order:
    type: action
    function: get_order_status
    retries: 1
    next:
      success: report_status
      error: ask_order_id
      human: human_handoff

  report_status:
    type: prompt
    text: "Order {{order_id}} is {{status}}."
    next: done

  done:
    type: exit
    reason: "Glad I could help."

  human_handoff:
    type: exit
    reason: "Connecting you to an agent."

  error_exit:
    type: exit
    reason: "Something went wrong."
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleFlowYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Len() != 7 {
		t.Errorf("expected 7 nodes, got %d", def.Len())
	}

	node, ok := def.Node("lookup_order")
	if !ok {
		t.Fatal("lookup_order node missing")
	}
	if node.Type != models.NodeTypeAction {
		t.Errorf("expected action node, got %s", node.Type)
	}
	if node.Action.Function != "get_order_status" {
		t.Errorf("expected function get_order_status, got %q", node.Action.Function)
	}
	if node.Action.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", node.Action.Retries)
	}
	if node.Action.Next.Human != "human_handoff" {
		t.Errorf("expected human branch human_handoff, got %q", node.Action.Next.Human)
	}

	prompt, _ := def.Node("ask_order_id")
	if prompt.Prompt.Expects != "order_id" {
		t.Errorf("expected prompt to capture order_id, got %q", prompt.Prompt.Expects)
	}
}

func TestParseDefinitionPreservesDeclarationOrder(t *testing.T) {
	// The first node id sorts last alphabetically, so a map-based decode
	// would misorder it.
	def, err := ParseDefinition([]byte(sampleFlowYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := def.NodeIDs()
	if ids[0] != "zebra_trigger" {
		t.Errorf("expected zebra_trigger first, got %q", ids[0])
	}
	if ids[len(ids)-1] != "error_exit" {
		t.Errorf("expected error_exit last, got %q", ids[len(ids)-1])
	}
}

func TestParseDefinitionErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"invalid yaml", "nodes: [", "invalid YAML"},
		{"no nodes", "other: {}", "no nodes mapping"},
		{"unknown type", "nodes:\n  a:\n    type: widget\n", "unknown type"},
		{"action scalar next", "nodes:\n  a:\n    type: action\n    function: f\n    next: b\n", "must be a {success, error, human} mapping"},
		{"prompt mapping next", "nodes:\n  a:\n    type: prompt\n    text: hi\n    next:\n      success: b\n", "must be a node id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadDefinitionFileMissing(t *testing.T) {
	if _, err := LoadDefinitionFile("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
