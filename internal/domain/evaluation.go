package domain

// Evaluation is the quality gate's verdict for one layer of one attempt.
// The executor consumes only OverallPass and Summary; Details carries the
// evaluator's free-form diagnostics for operators.
type Evaluation struct {
	OverallPass bool           `json:"overall_pass"`
	Summary     string         `json:"summary"`
	Details     map[string]any `json:"details,omitempty"`
}

// StepResult is the executor's outcome for one step.
//
// Passed implies the cache holds a fully materialized, persisted record
// under CacheKey. Skipped means the record pre-existed and nothing ran.
type StepResult struct {
	StepKind string      `json:"step_kind"`
	CacheKey string      `json:"cache_key,omitempty"`
	Record   AssetRecord `json:"record,omitempty"`
	Eval     Evaluation  `json:"evaluation"`
	Attempts int         `json:"attempts"`
	Passed   bool        `json:"passed"`
	Skipped  bool        `json:"skipped,omitempty"`
}
