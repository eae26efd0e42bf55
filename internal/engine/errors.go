package engine

import (
	"errors"
	"fmt"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
)

// ErrUnknownStepKind reports a descriptor lookup miss. No agent is invoked
// and no retry budget is consumed.
var ErrUnknownStepKind = errors.New("unknown step kind")

// QualityError is the hard-failure outcome: the step exhausted its shared
// retry budget with the quality gate still rejecting. Pipeline-fatal: no
// downstream step may consume this step's asset.
type QualityError struct {
	StepKind string
	Attempts int
	LastEval domain.Evaluation
}

func (e *QualityError) Error() string {
	summary := e.LastEval.Summary
	if summary == "" {
		summary = "no summary"
	}
	return fmt.Sprintf("step %s failed quality gate after %d attempt(s): %s", e.StepKind, e.Attempts, summary)
}
