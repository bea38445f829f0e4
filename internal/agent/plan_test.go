package agent

import (
	"errors"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
)

func TestParsePlan_CleanJSON(t *testing.T) {
	raw := `{"plan": ["search", "answer"], "tool_calls": [{"name": "search_docs", "args": {"query": "q"}}]}`
	plan, err := parsePlan(raw)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}
	if len(plan.Steps) != 2 || len(plan.ToolCalls) != 1 {
		t.Errorf("plan = %+v", plan)
	}
	if plan.ToolCalls[0].Name != "search_docs" {
		t.Errorf("tool call = %+v", plan.ToolCalls[0])
	}
}

func TestParsePlan_ExtractsFromProse(t *testing.T) {
	raw := "Sure! Here is the plan:\n{\"plan\": [\"step\"], \"tool_calls\": []}\nHope that helps."
	plan, err := parsePlan(raw)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0] != "step" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestParsePlan_NoJSON(t *testing.T) {
	_, err := parsePlan("I cannot produce a plan right now.")
	if !errors.Is(err, apperr.ErrPlanParse) {
		t.Errorf("err = %v, want ErrPlanParse", err)
	}
}

func TestParsePlan_MalformedJSON(t *testing.T) {
	_, err := parsePlan(`{"plan": ["unterminated`)
	if !errors.Is(err, apperr.ErrPlanParse) {
		t.Errorf("err = %v, want ErrPlanParse", err)
	}
}

func TestParsePlan_EmptyEnvelope(t *testing.T) {
	// An envelope with empty lists is a valid plan with nothing to do,
	// not a parse failure.
	for _, raw := range []string{`{}`, `{"plan": [], "tool_calls": []}`} {
		plan, err := parsePlan(raw)
		if err != nil {
			t.Errorf("parsePlan(%q) failed: %v", raw, err)
			continue
		}
		if len(plan.Steps) != 0 || len(plan.ToolCalls) != 0 {
			t.Errorf("parsePlan(%q) = %+v, want empty plan", raw, plan)
		}
	}
}

func TestFallbackPlan(t *testing.T) {
	plan := fallbackPlan("what is X", 5)
	if len(plan.Steps) != 2 {
		t.Errorf("steps = %v", plan.Steps)
	}
	if len(plan.ToolCalls) != 1 || plan.ToolCalls[0].Name != ToolSearchDocs {
		t.Fatalf("tool calls = %+v", plan.ToolCalls)
	}
	args := plan.ToolCalls[0].Args
	if args["query"] != "what is X" || args["top_k"] != 5 {
		t.Errorf("args = %+v", args)
	}
}
