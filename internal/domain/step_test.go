package domain

import "testing"

func TestRoutingStepValidate(t *testing.T) {
	if err := (RoutingStep{Kind: "story", Action: ActionGenerate}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (RoutingStep{Kind: ""}).Validate(); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if err := (RoutingStep{Kind: "story", Action: "replay"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestReworkNotesOnlyOnRegenerate(t *testing.T) {
	step := RoutingStep{Kind: "story", Action: ActionGenerate, Reason: "too flat"}
	if notes := step.ReworkNotes(); notes != "" {
		t.Fatalf("generate step leaked rework notes: %q", notes)
	}
	step.Action = ActionRegenerate
	if notes := step.ReworkNotes(); notes != "too flat" {
		t.Fatalf("ReworkNotes = %q, want planner reason", notes)
	}
}

func TestPipelineConfigValidate(t *testing.T) {
	cfg := PipelineConfig{MaxPerAgentRetries: 3, Language: "en"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (PipelineConfig{MaxPerAgentRetries: 0, Language: "en"}).Validate(); err == nil {
		t.Fatalf("expected error for zero retries")
	}
	if err := (PipelineConfig{MaxPerAgentRetries: 1}).Validate(); err == nil {
		t.Fatalf("expected error for missing language")
	}
}
