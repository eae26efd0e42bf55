package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
	"github.com/storyforge-labs/storyforge-go/internal/inference"
	"github.com/storyforge-labs/storyforge-go/internal/registry"
)

const narrationCatalog = "narration\n" +
	"  - Input: story package + storyboard\n" +
	"  - Output: narration script (lines with text and voice), one audio clip per line\n" +
	"  - Purpose: Write and synthesize the voice-over narration for the draft."

func NarrationDescriptor(client *inference.Client, media MediaChecker) registry.Descriptor {
	return registry.Descriptor{
		Kind:         "narration",
		CacheKey:     "narration",
		AssetType:    "narration_track",
		UpstreamKeys: []string{"story", "storyboard"},
		Catalog:      narrationCatalog,
		BuildInput: func(projectID, draftID string, cache domain.AssetCache, cfg domain.PipelineConfig) (map[string]any, error) {
			input := baseInput(projectID, draftID, cfg)
			if story, ok := cache["story"]; ok {
				input["story"] = map[string]any(story)
			}
			if storyboard, ok := cache["storyboard"]; ok {
				input["storyboard"] = map[string]any(storyboard)
			}
			return input, nil
		},
		NewAgent:        func() registry.Agent { return &generateAgent{client: client, task: "narration"} },
		NewEvaluator:    func() registry.Evaluator { return &narrationEvaluator{media: media} },
		NewMaterializer: func() registry.Materializer { return &narrationMaterializer{client: client} },
	}
}

// narrationMaterializer synthesizes one audio clip per narration line. Each
// line map doubles as the URI holder, so the executor writes the storage
// location straight into the script.
type narrationMaterializer struct {
	client *inference.Client
}

func (m *narrationMaterializer) Materialize(ctx context.Context, projectID string, record domain.AssetRecord, cache domain.AssetCache) ([]*domain.MediaAsset, error) {
	lines := listOfMaps(record["lines"])
	if len(lines) == 0 {
		return nil, fmt.Errorf("narration record has no lines")
	}

	meta, _ := record.Meta()
	media := make([]*domain.MediaAsset, 0, len(lines))
	for i, line := range lines {
		text, _ := line["text"].(string)
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("narration line %d has empty text", i)
		}
		lineID, _ := line["line_id"].(string)
		if lineID == "" {
			lineID = fmt.Sprintf("line_%02d", i+1)
		}
		voice, _ := line["voice"].(string)

		data, err := m.client.Speech(ctx, inference.SpeechRequest{
			Text:     text,
			Language: meta.Language,
			Voice:    voice,
			Format:   "mp3",
		})
		if err != nil {
			return nil, fmt.Errorf("synthesize line %s: %w", lineID, err)
		}

		sysID := fmt.Sprintf("aud_%s_%s", lineID, uuid.NewString()[:8])
		line["media_id"] = sysID
		media = append(media, &domain.MediaAsset{
			SysID:     sysID,
			Data:      data,
			Extension: "mp3",
			URIHolder: line,
		})
	}
	return media, nil
}

// narrationEvaluator checks the script before synthesis and the stored
// clips after.
type narrationEvaluator struct {
	media MediaChecker
}

func (e *narrationEvaluator) Evaluate(ctx context.Context, output map[string]any, upstream map[string]any) (domain.Evaluation, error) {
	var problems []string

	lines := listOfMaps(output["lines"])
	if len(lines) == 0 {
		problems = problemf(problems, "lines list is missing or empty")
	}
	for i, line := range lines {
		if !nonEmptyString(line, "text") {
			problems = problemf(problems, "line %d has empty text", i)
		}
	}

	if len(problems) > 0 {
		return rejectAll(problems), nil
	}
	return passEvaluation("narration script is structurally sound"), nil
}

// EvaluateAsset verifies every line got a URI and the blob actually exists
// in the object store.
func (e *narrationEvaluator) EvaluateAsset(ctx context.Context, record domain.AssetRecord, upstream map[string]any) (domain.Evaluation, error) {
	var problems []string

	lines := listOfMaps(record["lines"])
	if len(lines) == 0 {
		problems = problemf(problems, "finalized record has no lines")
	}
	for i, line := range lines {
		uri, _ := line["uri"].(string)
		if strings.TrimSpace(uri) == "" {
			problems = problemf(problems, "line %d has no uri", i)
			continue
		}
		if err := e.media.StatMedia(ctx, uri); err != nil {
			problems = problemf(problems, "line %d: %v", i, err)
		}
	}

	if len(problems) > 0 {
		return rejectAll(problems), nil
	}
	return passEvaluation(fmt.Sprintf("all %d narration clips stored", len(lines))), nil
}
