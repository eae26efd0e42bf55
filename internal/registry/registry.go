// Package registry holds the step descriptor table that makes the executor
// agent-agnostic. A descriptor bundles everything the executor needs to run
// one step kind; adding a new kind means registering a descriptor, never
// editing the executor.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
)

// Agent generates one step's output from typed input. Pure with respect to
// persistence: input in, fields out, no storage access.
type Agent interface {
	Run(ctx context.Context, input map[string]any, reworkNotes string) (map[string]any, error)
}

// Evaluator is the three-method quality gate contract.
//
// Evaluate runs structural and creative checks on raw agent output before
// materialization. EvaluateAsset runs post-materialization checks on the
// finalized record (binary presence, format). An error return from either
// method is an evaluation-harness failure, not a rejection; the executor
// converts it to a pass.
type Evaluator interface {
	Evaluate(ctx context.Context, output map[string]any, upstream map[string]any) (domain.Evaluation, error)
	EvaluateAsset(ctx context.Context, record domain.AssetRecord, upstream map[string]any) (domain.Evaluation, error)
}

// Materializer turns a generated asset into zero or more binary media items.
// It may read other assets from the cache for cross-asset context, sets each
// item's URIHolder slot, and never performs storage I/O itself.
type Materializer interface {
	Materialize(ctx context.Context, projectID string, record domain.AssetRecord, cache domain.AssetCache) ([]*domain.MediaAsset, error)
}

// BuildInputFunc constructs the agent's input from the shared cache and the
// run configuration.
type BuildInputFunc func(projectID, draftID string, cache domain.AssetCache, cfg domain.PipelineConfig) (map[string]any, error)

// BuildUpstreamFunc extracts the upstream context the evaluator needs for
// cross-asset checks.
type BuildUpstreamFunc func(cache domain.AssetCache) map[string]any

// Descriptor is the self-describing manifest for one step kind.
type Descriptor struct {
	// Kind is the unique lookup key, matching RoutingStep.Kind.
	Kind string
	// CacheKey is where the step's record lands in the shared cache.
	CacheKey string
	// AssetType scopes version counters in the persistence adapter.
	AssetType string
	// UpstreamKeys lists the cache keys this step's evaluator reads. Used
	// to auto-derive BuildUpstream when none is provided.
	UpstreamKeys []string
	// Catalog is a human-readable purpose line fed to the planner.
	Catalog string

	BuildInput    BuildInputFunc
	BuildUpstream BuildUpstreamFunc

	NewAgent func() Agent
	// NewEvaluator may be nil (non-evaluated step kinds).
	NewEvaluator func() Evaluator
	// NewMaterializer is nil for kinds with no binary output.
	NewMaterializer func() Materializer
}

func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Kind) == "" {
		return errors.New("descriptor kind is required")
	}
	if strings.TrimSpace(d.CacheKey) == "" {
		return fmt.Errorf("descriptor %s: cache key is required", d.Kind)
	}
	if strings.TrimSpace(d.AssetType) == "" {
		return fmt.Errorf("descriptor %s: asset type is required", d.Kind)
	}
	if d.BuildInput == nil {
		return fmt.Errorf("descriptor %s: build input is required", d.Kind)
	}
	if d.NewAgent == nil {
		return fmt.Errorf("descriptor %s: agent factory is required", d.Kind)
	}
	return nil
}

// Upstream resolves the evaluator context. When the descriptor supplies no
// BuildUpstream, it falls back to {key: cache[key]} over UpstreamKeys, with
// missing entries as empty records.
func (d Descriptor) Upstream(cache domain.AssetCache) map[string]any {
	if d.BuildUpstream != nil {
		return d.BuildUpstream(cache)
	}
	if len(d.UpstreamKeys) == 0 {
		return nil
	}
	upstream := make(map[string]any, len(d.UpstreamKeys))
	for _, key := range d.UpstreamKeys {
		if record, ok := cache[key]; ok {
			upstream[key] = record
		} else {
			upstream[key] = domain.AssetRecord{}
		}
	}
	return upstream
}

// Registry is the immutable kind-to-descriptor table, built once at startup
// and injected into the executor.
type Registry struct {
	byKind map[string]Descriptor
}

func New(descs ...Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, errors.New("at least one descriptor is required")
	}
	byKind := make(map[string]Descriptor, len(descs))
	cacheKeys := make(map[string]string, len(descs))
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := byKind[d.Kind]; exists {
			return nil, fmt.Errorf("duplicate descriptor kind: %s", d.Kind)
		}
		if owner, exists := cacheKeys[d.CacheKey]; exists {
			return nil, fmt.Errorf("cache key %q claimed by both %s and %s", d.CacheKey, owner, d.Kind)
		}
		byKind[d.Kind] = d
		cacheKeys[d.CacheKey] = d.Kind
	}
	return &Registry{byKind: byKind}, nil
}

func (r *Registry) Lookup(kind string) (Descriptor, bool) {
	d, ok := r.byKind[kind]
	return d, ok
}

// Kinds returns the registered step kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.byKind))
	for kind := range r.byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// CacheKeyFor maps a step kind to its cache key, or "" when unknown.
func (r *Registry) CacheKeyFor(kind string) string {
	if d, ok := r.byKind[kind]; ok {
		return d.CacheKey
	}
	return ""
}
