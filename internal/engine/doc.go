// Package engine executes one pipeline step at a time: invoke the step's
// agent, run the layered quality gate under a shared retry budget, persist
// results crash-safely, and materialize any binary media.
//
// Gate layers, unified retry:
//   - layers 1+2, Evaluator.Evaluate: structural + creative checks on raw
//     agent output, before materialization.
//   - layer 3, Evaluator.EvaluateAsset: post-materialization media checks.
//
// All layers share one attempt budget (PipelineConfig.MaxPerAgentRetries).
// Any layer's rejection discards the whole attempt and re-runs the agent
// from scratch, because a materialization failure is often caused by a bad
// upstream generation. Exhausting the budget returns *QualityError.
//
// Persistence ordering per attempt: phase-1 save lands the agent's JSON
// output immediately (crash-recoverable, URIs empty); after materialization
// the filled-in URIs are finalized with a phase-2 save. The engine writes
// durable state only through its AssetStore.
//
// The in-memory cache is shared by reference and mutated in place. It
// carries no locking; callers must run steps serially per cache. A
// populated cache key means the step already completed and is skipped.
package engine
