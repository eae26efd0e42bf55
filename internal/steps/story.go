package steps

import (
	"context"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
	"github.com/storyforge-labs/storyforge-go/internal/inference"
	"github.com/storyforge-labs/storyforge-go/internal/registry"
)

const storyCatalog = "story\n" +
	"  - Input: draft_idea (text)\n" +
	"  - Output: story package (logline, characters, beats)\n" +
	"  - Purpose: Turn a draft idea into a structured story outline."

func StoryDescriptor(client *inference.Client) registry.Descriptor {
	return registry.Descriptor{
		Kind:         "story",
		CacheKey:     "story",
		AssetType:    "story_package",
		UpstreamKeys: []string{"draft_idea"},
		Catalog:      storyCatalog,
		BuildInput: func(projectID, draftID string, cache domain.AssetCache, cfg domain.PipelineConfig) (map[string]any, error) {
			input := baseInput(projectID, draftID, cfg)
			if idea, ok := cache["draft_idea"]; ok {
				input["draft_idea"] = map[string]any(idea)
			}
			return input, nil
		},
		NewAgent:     func() registry.Agent { return &generateAgent{client: client, task: "story"} },
		NewEvaluator: func() registry.Evaluator { return &storyEvaluator{} },
	}
}

// storyEvaluator runs layer-1 structural checks on the story package. No
// binary assets, so the asset layer always passes.
type storyEvaluator struct{}

func (e *storyEvaluator) Evaluate(ctx context.Context, output map[string]any, upstream map[string]any) (domain.Evaluation, error) {
	var problems []string

	if !nonEmptyString(output, "logline") {
		problems = problemf(problems, "logline is missing or empty")
	}

	beats := listOfMaps(output["beats"])
	if len(beats) == 0 {
		problems = problemf(problems, "beats list is missing or empty")
	}
	for i, beat := range beats {
		if !nonEmptyString(beat, "beat_id") {
			problems = problemf(problems, "beat %d missing beat_id", i)
		}
		if !nonEmptyString(beat, "description") {
			problems = problemf(problems, "beat %d has empty description", i)
		}
	}

	characters := listOfMaps(output["characters"])
	for i, character := range characters {
		if !nonEmptyString(character, "name") {
			problems = problemf(problems, "character %d missing name", i)
		}
	}

	if len(problems) > 0 {
		return rejectAll(problems), nil
	}
	return passEvaluation("story package is structurally sound"), nil
}

func (e *storyEvaluator) EvaluateAsset(ctx context.Context, record domain.AssetRecord, upstream map[string]any) (domain.Evaluation, error) {
	return passEvaluation("no binary assets for story"), nil
}
