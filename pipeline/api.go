package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/storyforge-labs/storyforge-go/internal/assets"
	"github.com/storyforge-labs/storyforge-go/internal/domain"
	"github.com/storyforge-labs/storyforge-go/internal/engine"
	"github.com/storyforge-labs/storyforge-go/internal/registry"
	"github.com/storyforge-labs/storyforge-go/internal/repo"
)

type pipelineAPI struct {
	logger   *slog.Logger
	executor *engine.Executor
	registry *registry.Registry
	manager  *assets.Manager
	events   repo.StepEventRepository
	cfg      domain.PipelineConfig

	mu     sync.Mutex
	drafts map[string]*draftState
}

// draftState is the per-draft execution cache. Its mutex enforces the
// single-writer rule: one step at a time per draft, while different drafts
// run concurrently.
type draftState struct {
	mu       sync.Mutex
	cache    domain.AssetCache
	hydrated bool
}

func newPipelineAPI(
	logger *slog.Logger,
	executor *engine.Executor,
	reg *registry.Registry,
	manager *assets.Manager,
	events repo.StepEventRepository,
	cfg domain.PipelineConfig,
) *pipelineAPI {
	return &pipelineAPI{
		logger:   logger,
		executor: executor,
		registry: reg,
		manager:  manager,
		events:   events,
		cfg:      cfg,
		drafts:   make(map[string]*draftState),
	}
}

func (api *pipelineAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/steps", api.handleListSteps)
	mux.HandleFunc("POST /v1/projects/{project_id}/drafts/{draft_id}/steps", api.handleExecuteStep)
	mux.HandleFunc("GET /v1/projects/{project_id}/drafts/{draft_id}/assets", api.handleListAssets)
}

type executeStepRequest struct {
	StepKind  string `json:"step_kind"`
	Action    string `json:"action,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Iteration int    `json:"iteration,omitempty"`
	DraftIdea string `json:"draft_idea,omitempty"`
}

func (api *pipelineAPI) handleExecuteStep(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.PathValue("project_id"))
	draftID := strings.TrimSpace(r.PathValue("draft_id"))
	if projectID == "" || draftID == "" {
		api.writeError(w, r, http.StatusBadRequest, "project_and_draft_required")
		return
	}

	var req executeStepRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.StepKind) == "" {
		api.writeError(w, r, http.StatusBadRequest, "step_kind_required")
		return
	}

	action := domain.StepAction(strings.TrimSpace(req.Action))
	if action == "" {
		action = domain.ActionGenerate
	}
	step := domain.RoutingStep{
		Kind:   strings.TrimSpace(req.StepKind),
		Action: action,
		Reason: strings.TrimSpace(req.Reason),
	}
	if err := step.Validate(); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_step")
		return
	}

	iteration := req.Iteration
	if iteration == 0 {
		iteration = 1
	}
	if iteration < 1 {
		api.writeError(w, r, http.StatusBadRequest, "invalid_iteration")
		return
	}

	state := api.draftState(projectID, draftID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.hydrated {
		if err := api.hydrate(r, state, projectID, draftID); err != nil {
			api.logger.Error("cache rehydration failed", "project", projectID, "draft", draftID, "error", err)
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
	}
	if idea := strings.TrimSpace(req.DraftIdea); idea != "" {
		if _, exists := state.cache["draft_idea"]; !exists {
			state.cache["draft_idea"] = domain.AssetRecord{"text": idea}
		}
	}

	result, execErr := api.executor.ExecuteStep(r.Context(), step, state.cache, projectID, draftID, iteration, api.cfg)
	api.recordEvent(r, projectID, draftID, result, execErr)

	if execErr != nil {
		var qualityErr *engine.QualityError
		switch {
		case errors.Is(execErr, engine.ErrUnknownStepKind):
			api.writeError(w, r, http.StatusBadRequest, "unknown_step_kind")
		case errors.As(execErr, &qualityErr):
			api.writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":      "quality_gate_failed",
				"step_kind":  qualityErr.StepKind,
				"attempts":   qualityErr.Attempts,
				"summary":    qualityErr.LastEval.Summary,
				"request_id": r.Header.Get("X-Request-Id"),
			})
		default:
			api.logger.Error("step execution failed", "step", step.Kind, "error", execErr)
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	api.writeJSON(w, http.StatusOK, result)
}

// hydrate rebuilds the execution cache from persisted assets so a restarted
// service resumes instead of regenerating completed steps.
func (api *pipelineAPI) hydrate(r *http.Request, state *draftState, projectID, draftID string) error {
	stored, err := api.manager.LoadDraftAssets(r.Context(), projectID, draftID)
	if err != nil {
		return err
	}
	for _, asset := range stored {
		key := api.registry.CacheKeyFor(asset.StepKind)
		if key == "" {
			continue
		}
		state.cache[key] = asset.Record
	}
	state.hydrated = true
	return nil
}

func (api *pipelineAPI) recordEvent(r *http.Request, projectID, draftID string, result domain.StepResult, execErr error) {
	outcome := "passed"
	summary := result.Eval.Summary
	switch {
	case execErr != nil:
		outcome = "failed"
		if summary == "" {
			summary = execErr.Error()
		}
	case result.Skipped:
		outcome = "skipped"
	}

	err := api.events.InsertStepEvent(r.Context(), repo.StepEvent{
		ProjectID: projectID,
		DraftID:   draftID,
		StepKind:  result.StepKind,
		Attempts:  result.Attempts,
		Outcome:   outcome,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		api.logger.Error("step event insert failed", "step", result.StepKind, "error", err)
	}
}

type assetSummary struct {
	AssetID   string             `json:"asset_id"`
	AssetType string             `json:"asset_type"`
	StepKind  string             `json:"step_kind"`
	Iteration int                `json:"iteration"`
	Version   int                `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	Record    domain.AssetRecord `json:"record"`
}

func (api *pipelineAPI) handleListAssets(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.PathValue("project_id"))
	draftID := strings.TrimSpace(r.PathValue("draft_id"))
	if projectID == "" || draftID == "" {
		api.writeError(w, r, http.StatusBadRequest, "project_and_draft_required")
		return
	}

	stored, err := api.manager.LoadDraftAssets(r.Context(), projectID, draftID)
	if err != nil {
		api.logger.Error("list assets failed", "project", projectID, "draft", draftID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]assetSummary, 0, len(stored))
	for _, asset := range stored {
		out = append(out, assetSummary{
			AssetID:   asset.AssetID,
			AssetType: asset.AssetType,
			StepKind:  asset.StepKind,
			Iteration: asset.Iteration,
			Version:   asset.Version,
			CreatedAt: asset.CreatedAt,
			Record:    asset.Record,
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

type stepInfo struct {
	Kind    string `json:"kind"`
	Catalog string `json:"catalog"`
}

func (api *pipelineAPI) handleListSteps(w http.ResponseWriter, r *http.Request) {
	kinds := api.registry.Kinds()
	out := make([]stepInfo, 0, len(kinds))
	for _, kind := range kinds {
		desc, _ := api.registry.Lookup(kind)
		out = append(out, stepInfo{Kind: kind, Catalog: desc.Catalog})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"steps": out})
}

func (api *pipelineAPI) draftState(projectID, draftID string) *draftState {
	api.mu.Lock()
	defer api.mu.Unlock()
	key := projectID + "/" + draftID
	state, ok := api.drafts[key]
	if !ok {
		state = &draftState{cache: domain.AssetCache{}}
		api.drafts[key] = state
	}
	return state
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *pipelineAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *pipelineAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
