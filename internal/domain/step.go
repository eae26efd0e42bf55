package domain

import (
	"errors"
	"fmt"
	"strings"
)

// StepAction tells the executor whether a step is a first generation or a
// rework pass requested by the planner.
type StepAction string

const (
	ActionGenerate   StepAction = "generate"
	ActionRegenerate StepAction = "regenerate"
)

// RoutingStep identifies one unit of work handed to the executor by the
// external planner. Immutable; the executor never rewrites it.
type RoutingStep struct {
	Kind   string     `json:"step_kind"`
	Action StepAction `json:"action"`
	Reason string     `json:"reason,omitempty"`
}

func (s RoutingStep) Validate() error {
	if strings.TrimSpace(s.Kind) == "" {
		return errors.New("step kind is required")
	}
	switch s.Action {
	case "", ActionGenerate, ActionRegenerate:
		return nil
	default:
		return fmt.Errorf("unknown step action: %q", s.Action)
	}
}

// ReworkNotes returns the planner's rejection reason, but only on a
// regeneration pass. First generations run without rework guidance.
func (s RoutingStep) ReworkNotes() string {
	if s.Action == ActionRegenerate {
		return strings.TrimSpace(s.Reason)
	}
	return ""
}

// PipelineConfig is run-wide configuration, fixed for the duration of a run.
type PipelineConfig struct {
	// MaxPerAgentRetries is the shared attempt budget across all quality
	// gate layers of a single step.
	MaxPerAgentRetries int    `json:"max_per_agent_retries"`
	Language           string `json:"language"`
}

func (c PipelineConfig) Validate() error {
	if c.MaxPerAgentRetries < 1 {
		return errors.New("max per-agent retries must be >= 1")
	}
	if strings.TrimSpace(c.Language) == "" {
		return errors.New("language is required")
	}
	return nil
}
