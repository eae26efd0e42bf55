// Package steps holds the built-in descriptor set for the draft pipeline.
// Each step file owns its descriptor, evaluator, and (where applicable)
// materializer; the executor stays ignorant of all of them.
package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
	"github.com/storyforge-labs/storyforge-go/internal/inference"
	"github.com/storyforge-labs/storyforge-go/internal/registry"
)

// MediaChecker verifies that a stored media blob exists and is non-empty.
// Asset evaluators use it to confirm URIs point at real objects.
type MediaChecker interface {
	StatMedia(ctx context.Context, location string) error
}

// DefaultRegistry builds the registry with the canonical step set.
func DefaultRegistry(client *inference.Client, media MediaChecker) (*registry.Registry, error) {
	if client == nil {
		return nil, errors.New("inference client is required")
	}
	if media == nil {
		return nil, errors.New("media checker is required")
	}
	return registry.New(
		StoryDescriptor(client),
		StoryboardDescriptor(client),
		NarrationDescriptor(client, media),
	)
}

// generateAgent is the shared thin agent: assemble the request, call the
// backend, hand the decoded document back. All shaping intelligence lives
// server-side behind the task name.
type generateAgent struct {
	client *inference.Client
	task   string
}

func (a *generateAgent) Run(ctx context.Context, input map[string]any, reworkNotes string) (map[string]any, error) {
	language, _ := input["language"].(string)
	return a.client.GenerateJSON(ctx, inference.GenerateRequest{
		Task:        a.task,
		Language:    language,
		Input:       input,
		ReworkNotes: reworkNotes,
	})
}

func baseInput(projectID, draftID string, cfg domain.PipelineConfig) map[string]any {
	return map[string]any{
		"project_id": projectID,
		"draft_id":   draftID,
		"language":   cfg.Language,
	}
}

// listOfMaps normalizes a record field that is a list of objects. Records
// fresh from an agent hold []map[string]any; records decoded from JSON hold
// []any. Entries that are not objects are dropped.
func listOfMaps(v any) []map[string]any {
	switch items := v.(type) {
	case []map[string]any:
		return items
	case []any:
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func nonEmptyString(m map[string]any, key string) bool {
	s, _ := m[key].(string)
	return strings.TrimSpace(s) != ""
}

func rejectAll(problems []string) domain.Evaluation {
	return domain.Evaluation{
		OverallPass: false,
		Summary:     strings.Join(problems, "; "),
		Details:     map[string]any{"problems": problems},
	}
}

func passEvaluation(summary string) domain.Evaluation {
	return domain.Evaluation{OverallPass: true, Summary: summary}
}

func problemf(problems []string, format string, args ...any) []string {
	return append(problems, fmt.Sprintf(format, args...))
}
