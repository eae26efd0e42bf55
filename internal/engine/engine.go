package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
	"github.com/storyforge-labs/storyforge-go/internal/registry"
)

// AssetStore is the persistence adapter contract the executor consumes. It
// is the only durable-state mutator; each call is assumed independently
// atomic.
type AssetStore interface {
	// SaveAsset durably saves an asset record. Called after every attempt
	// (phase 1) and again after materialization fills URIs (phase 2).
	SaveAsset(ctx context.Context, projectID, assetID string, record domain.AssetRecord) error
	// SaveBinary durably saves one media blob and returns its location.
	SaveBinary(ctx context.Context, projectID, mediaID string, data []byte, extension string) (string, error)
	// NextVersion allocates the next version number for an asset type.
	NextVersion(ctx context.Context, projectID, assetType string, iteration int) (int, error)
}

// Executor runs the retry/quality-gate/persist/materialize protocol for the
// single step it is handed. Sequencing policy lives in the external planner.
type Executor struct {
	registry *registry.Registry
	store    AssetStore
	meta     *MetaBuilder
	logger   *slog.Logger
}

func New(reg *registry.Registry, store AssetStore, logger *slog.Logger) (*Executor, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if store == nil {
		return nil, errors.New("asset store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	meta, err := NewMetaBuilder(store)
	if err != nil {
		return nil, err
	}
	return &Executor{
		registry: reg,
		store:    store,
		meta:     meta,
		logger:   logger,
	}, nil
}

// ExecuteStep executes a single pipeline step against the shared cache.
//
// Expected evaluation outcomes travel in the returned StepResult; the error
// channel is reserved for unknown step kinds, exhausted retries
// (*QualityError), and infrastructure failures (agent invocation, phase-1
// persistence). Callers must treat a non-nil error as fatal for anything
// depending on this step's asset.
func (e *Executor) ExecuteStep(
	ctx context.Context,
	step domain.RoutingStep,
	cache domain.AssetCache,
	projectID, draftID string,
	iteration int,
	cfg domain.PipelineConfig,
) (domain.StepResult, error) {
	if err := step.Validate(); err != nil {
		return domain.StepResult{StepKind: step.Kind}, err
	}
	if err := cfg.Validate(); err != nil {
		return domain.StepResult{StepKind: step.Kind}, err
	}

	desc, ok := e.registry.Lookup(step.Kind)
	if !ok {
		e.logger.Error("unknown step kind", "step", step.Kind)
		result := domain.StepResult{
			StepKind: step.Kind,
			Eval:     domain.Evaluation{Summary: fmt.Sprintf("unknown step kind: %s", step.Kind)},
		}
		return result, fmt.Errorf("%w: %s", ErrUnknownStepKind, step.Kind)
	}

	key := desc.CacheKey
	if record, ok := cache[key]; ok {
		e.logger.Info("skipping step, asset already exists", "step", step.Kind, "cache_key", key)
		return domain.StepResult{
			StepKind: step.Kind,
			CacheKey: key,
			Record:   record,
			Eval:     domain.Evaluation{OverallPass: true, Summary: "asset already exists"},
			Passed:   true,
			Skipped:  true,
		}, nil
	}

	agent := desc.NewAgent()
	var evaluator registry.Evaluator
	if desc.NewEvaluator != nil {
		evaluator = desc.NewEvaluator()
	}
	var materializer registry.Materializer
	if desc.NewMaterializer != nil {
		materializer = desc.NewMaterializer()
	}

	maxRetries := cfg.MaxPerAgentRetries
	reworkNotes := step.ReworkNotes()

	var eval domain.Evaluation
	for attempt := 1; attempt <= maxRetries; attempt++ {
		e.logger.Info("step attempt", "step", step.Kind, "attempt", attempt, "max", maxRetries)

		input, err := desc.BuildInput(projectID, draftID, cache, cfg)
		if err != nil {
			return domain.StepResult{StepKind: step.Kind, CacheKey: key}, fmt.Errorf("build input for %s: %w", step.Kind, err)
		}
		output, err := agent.Run(ctx, input, reworkNotes)
		if err != nil {
			return domain.StepResult{StepKind: step.Kind, CacheKey: key}, fmt.Errorf("run agent for %s: %w", step.Kind, err)
		}

		// Phase-1 save: the raw output lands on durable storage before any
		// gate runs, so even a rejected attempt is inspectable.
		if _, err := e.persistAttempt(ctx, cache, desc, output, projectID, draftID, step.Kind, iteration, cfg.Language); err != nil {
			return domain.StepResult{StepKind: step.Kind, CacheKey: key}, err
		}

		eval = e.evaluateOutput(ctx, evaluator, step.Kind, attempt, output, desc.Upstream(cache))
		if !eval.OverallPass {
			e.logger.Warn("quality gate rejected output",
				"step", step.Kind, "attempt", attempt, "max", maxRetries, "summary", eval.Summary)
			if attempt < maxRetries {
				delete(cache, key)
			}
			continue
		}

		if materializer != nil {
			if merr := e.materialize(ctx, materializer, cache, key, projectID); merr != nil {
				e.logger.Warn("materialization failed",
					"step", step.Kind, "attempt", attempt, "max", maxRetries, "error", merr)
				eval = domain.Evaluation{
					OverallPass: false,
					Summary:     fmt.Sprintf("materialization error: %v", merr),
				}
				if attempt < maxRetries {
					delete(cache, key)
				}
				continue
			}

			if evaluator != nil {
				assetEval := e.evaluateAsset(ctx, evaluator, step.Kind, cache[key], desc.Upstream(cache))
				if !assetEval.OverallPass {
					e.logger.Warn("asset gate rejected media",
						"step", step.Kind, "attempt", attempt, "max", maxRetries, "summary", assetEval.Summary)
					eval = assetEval
					if attempt < maxRetries {
						delete(cache, key)
					}
					continue
				}
			}
		}

		e.logger.Info("quality gate passed", "step", step.Kind, "attempt", attempt)
		return domain.StepResult{
			StepKind: step.Kind,
			CacheKey: key,
			Record:   cache[key],
			Eval:     eval,
			Attempts: attempt,
			Passed:   true,
		}, nil
	}

	// Budget exhausted. The last attempt's partial record stays in the
	// cache for diagnostics; the error is authoritative over its presence.
	e.logger.Error("retries exhausted", "step", step.Kind, "attempts", maxRetries, "summary", eval.Summary)
	result := domain.StepResult{
		StepKind: step.Kind,
		CacheKey: key,
		Record:   cache[key],
		Eval:     eval,
		Attempts: maxRetries,
	}
	return result, &QualityError{StepKind: step.Kind, Attempts: maxRetries, LastEval: eval}
}

// persistAttempt builds fresh meta, saves the record (phase 1), and installs
// it in the cache so the next step sees current upstream state.
func (e *Executor) persistAttempt(
	ctx context.Context,
	cache domain.AssetCache,
	desc registry.Descriptor,
	output map[string]any,
	projectID, draftID, stepKind string,
	iteration int,
	language string,
) (domain.AssetRecord, error) {
	assetID, meta, err := e.meta.Build(ctx, projectID, draftID, desc.AssetType, stepKind, iteration, language)
	if err != nil {
		return nil, err
	}
	record := domain.NewRecord(output, meta)
	if err := e.store.SaveAsset(ctx, projectID, assetID, record); err != nil {
		return nil, fmt.Errorf("persist asset %s: %w", assetID, err)
	}
	e.logger.Info("persisted asset", "step", stepKind, "asset_id", assetID)
	cache[desc.CacheKey] = record
	return record, nil
}

// evaluateOutput runs gate layers 1+2. A missing evaluator and a harness
// error both become a pass: only an explicit rejection blocks the pipeline.
func (e *Executor) evaluateOutput(
	ctx context.Context,
	evaluator registry.Evaluator,
	stepKind string,
	attempt int,
	output map[string]any,
	upstream map[string]any,
) domain.Evaluation {
	if evaluator == nil {
		return domain.Evaluation{
			OverallPass: true,
			Summary:     fmt.Sprintf("no evaluator registered for %s", stepKind),
		}
	}
	eval, err := evaluator.Evaluate(ctx, output, upstream)
	if err != nil {
		e.logger.Error("evaluation error", "step", stepKind, "attempt", attempt, "error", err)
		return domain.Evaluation{
			OverallPass: true,
			Summary:     fmt.Sprintf("evaluation error: %v", err),
		}
	}
	return eval
}

// evaluateAsset runs gate layer 3 with the same harness-error leniency.
func (e *Executor) evaluateAsset(
	ctx context.Context,
	evaluator registry.Evaluator,
	stepKind string,
	record domain.AssetRecord,
	upstream map[string]any,
) domain.Evaluation {
	eval, err := evaluator.EvaluateAsset(ctx, record, upstream)
	if err != nil {
		e.logger.Error("asset evaluation error", "step", stepKind, "error", err)
		return domain.Evaluation{
			OverallPass: true,
			Summary:     fmt.Sprintf("asset evaluation error: %v", err),
		}
	}
	return eval
}

// materialize produces the binary media, saves each blob, writes locations
// back through the URI holders, and finalizes the record with a phase-2
// save. Any failure here, the phase-2 save included, is reported to the
// retry loop as a materialization error.
func (e *Executor) materialize(
	ctx context.Context,
	materializer registry.Materializer,
	cache domain.AssetCache,
	key, projectID string,
) error {
	record := cache[key]
	media, err := materializer.Materialize(ctx, projectID, record, cache)
	if err != nil {
		return err
	}
	for _, item := range media {
		if err := item.Validate(); err != nil {
			return err
		}
		location, err := e.store.SaveBinary(ctx, projectID, item.SysID, item.Data, item.Extension)
		if err != nil {
			return fmt.Errorf("save binary %s: %w", item.SysID, err)
		}
		item.SetURI(location)
	}
	meta, ok := record.Meta()
	if !ok {
		return errors.New("asset record missing meta")
	}
	if err := e.store.SaveAsset(ctx, projectID, meta.AssetID, record); err != nil {
		return fmt.Errorf("finalize asset %s: %w", meta.AssetID, err)
	}
	return nil
}
