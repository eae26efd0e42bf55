package steps

import (
	"context"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
	"github.com/storyforge-labs/storyforge-go/internal/inference"
	"github.com/storyforge-labs/storyforge-go/internal/registry"
)

const storyboardCatalog = "storyboard\n" +
	"  - Input: story package\n" +
	"  - Output: storyboard (scenes with visual goals and shot notes)\n" +
	"  - Purpose: Translate the story outline into scene-by-scene visual planning."

func StoryboardDescriptor(client *inference.Client) registry.Descriptor {
	return registry.Descriptor{
		Kind:         "storyboard",
		CacheKey:     "storyboard",
		AssetType:    "storyboard",
		UpstreamKeys: []string{"story"},
		Catalog:      storyboardCatalog,
		BuildInput: func(projectID, draftID string, cache domain.AssetCache, cfg domain.PipelineConfig) (map[string]any, error) {
			input := baseInput(projectID, draftID, cfg)
			if story, ok := cache["story"]; ok {
				input["story"] = map[string]any(story)
			}
			return input, nil
		},
		NewAgent:     func() registry.Agent { return &generateAgent{client: client, task: "storyboard"} },
		NewEvaluator: func() registry.Evaluator { return &storyboardEvaluator{} },
	}
}

// storyboardEvaluator cross-checks scenes against the upstream story: every
// scene must reference a beat that exists in the story package.
type storyboardEvaluator struct{}

func (e *storyboardEvaluator) Evaluate(ctx context.Context, output map[string]any, upstream map[string]any) (domain.Evaluation, error) {
	var problems []string

	scenes := listOfMaps(output["scenes"])
	if len(scenes) == 0 {
		problems = problemf(problems, "scenes list is missing or empty")
	}

	seen := make(map[string]bool, len(scenes))
	for i, scene := range scenes {
		sceneID, _ := scene["scene_id"].(string)
		if sceneID == "" {
			problems = problemf(problems, "scene %d missing scene_id", i)
		} else if seen[sceneID] {
			problems = problemf(problems, "duplicate scene_id %s", sceneID)
		}
		seen[sceneID] = true

		if !nonEmptyString(scene, "visual_goal") {
			problems = problemf(problems, "scene %d has empty visual_goal", i)
		}
	}

	if beatIDs := upstreamBeatIDs(upstream); len(beatIDs) > 0 {
		for i, scene := range scenes {
			beatID, _ := scene["beat_id"].(string)
			if beatID != "" && !beatIDs[beatID] {
				problems = problemf(problems, "scene %d references unknown beat %s", i, beatID)
			}
		}
	}

	if len(problems) > 0 {
		return rejectAll(problems), nil
	}
	return passEvaluation("storyboard is structurally sound"), nil
}

func (e *storyboardEvaluator) EvaluateAsset(ctx context.Context, record domain.AssetRecord, upstream map[string]any) (domain.Evaluation, error) {
	return passEvaluation("no binary assets for storyboard"), nil
}

func upstreamBeatIDs(upstream map[string]any) map[string]bool {
	story, ok := upstream["story"]
	if !ok {
		return nil
	}
	var fields map[string]any
	switch s := story.(type) {
	case domain.AssetRecord:
		fields = map[string]any(s)
	case map[string]any:
		fields = s
	default:
		return nil
	}
	ids := make(map[string]bool)
	for _, beat := range listOfMaps(fields["beats"]) {
		if id, _ := beat["beat_id"].(string); id != "" {
			ids[id] = true
		}
	}
	return ids
}
