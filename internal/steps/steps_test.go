package steps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
	"github.com/storyforge-labs/storyforge-go/internal/inference"
)

type fakeMediaChecker struct {
	missing map[string]bool
}

func (c *fakeMediaChecker) StatMedia(ctx context.Context, location string) error {
	if c.missing[location] {
		return errors.New("object missing")
	}
	return nil
}

func testClient(t *testing.T, handler http.HandlerFunc) *inference.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := inference.NewClient(inference.Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func nullClient(t *testing.T) *inference.Client {
	t.Helper()
	return testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unexpected call", http.StatusInternalServerError)
	})
}

func TestDefaultRegistryKinds(t *testing.T) {
	reg, err := DefaultRegistry(nullClient(t), &fakeMediaChecker{})
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	kinds := reg.Kinds()
	want := []string{"narration", "story", "storyboard"}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
}

func TestStoryBuildInputCarriesDraftIdea(t *testing.T) {
	desc := StoryDescriptor(nullClient(t))
	cache := domain.AssetCache{
		"draft_idea": domain.AssetRecord{"text": "a lighthouse keeper finds a map"},
	}
	input, err := desc.BuildInput("proj-1", "draft-1", cache, domain.PipelineConfig{MaxPerAgentRetries: 1, Language: "en"})
	if err != nil {
		t.Fatalf("BuildInput: %v", err)
	}
	if input["language"] != "en" {
		t.Fatalf("input = %v", input)
	}
	idea, ok := input["draft_idea"].(map[string]any)
	if !ok || idea["text"] != "a lighthouse keeper finds a map" {
		t.Fatalf("draft_idea = %v", input["draft_idea"])
	}
}

func TestStoryEvaluator(t *testing.T) {
	evaluator := &storyEvaluator{}

	good := map[string]any{
		"logline": "a heist goes wrong",
		"beats": []any{
			map[string]any{"beat_id": "b1", "description": "setup"},
			map[string]any{"beat_id": "b2", "description": "twist"},
		},
		"characters": []any{map[string]any{"name": "Vera"}},
	}
	eval, err := evaluator.Evaluate(context.Background(), good, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !eval.OverallPass {
		t.Fatalf("eval = %+v", eval)
	}

	bad := map[string]any{"logline": " ", "beats": []any{}}
	eval, err = evaluator.Evaluate(context.Background(), bad, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.OverallPass {
		t.Fatalf("expected rejection, got %+v", eval)
	}
	if !strings.Contains(eval.Summary, "logline") || !strings.Contains(eval.Summary, "beats") {
		t.Fatalf("summary = %q", eval.Summary)
	}
}

func TestStoryboardEvaluatorCrossChecksBeats(t *testing.T) {
	evaluator := &storyboardEvaluator{}
	upstream := map[string]any{
		"story": domain.AssetRecord{
			"beats": []any{map[string]any{"beat_id": "b1", "description": "setup"}},
		},
	}

	output := map[string]any{
		"scenes": []any{
			map[string]any{"scene_id": "sc1", "beat_id": "b1", "visual_goal": "wide shot of the bay"},
			map[string]any{"scene_id": "sc2", "beat_id": "b9", "visual_goal": "close-up"},
		},
	}
	eval, err := evaluator.Evaluate(context.Background(), output, upstream)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.OverallPass {
		t.Fatalf("expected rejection for unknown beat, got %+v", eval)
	}
	if !strings.Contains(eval.Summary, "unknown beat b9") {
		t.Fatalf("summary = %q", eval.Summary)
	}
}

func TestStoryboardEvaluatorRejectsDuplicateScenes(t *testing.T) {
	evaluator := &storyboardEvaluator{}
	output := map[string]any{
		"scenes": []any{
			map[string]any{"scene_id": "sc1", "visual_goal": "a"},
			map[string]any{"scene_id": "sc1", "visual_goal": "b"},
		},
	}
	eval, err := evaluator.Evaluate(context.Background(), output, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.OverallPass || !strings.Contains(eval.Summary, "duplicate scene_id") {
		t.Fatalf("eval = %+v", eval)
	}
}

func TestNarrationMaterializerSynthesizesPerLine(t *testing.T) {
	var requests []inference.SpeechRequest
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		var req inference.SpeechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		requests = append(requests, req)
		_, _ = w.Write([]byte{0x49, 0x44, 0x33})
	})

	record := domain.NewRecord(map[string]any{
		"lines": []map[string]any{
			{"line_id": "l1", "text": "The storm arrived at dusk.", "voice": "narrator"},
			{"line_id": "l2", "text": "Nobody saw the ship leave."},
		},
	}, domain.AssetMeta{
		ProjectID: "proj-1", AssetID: "narration_track_iter01_v001",
		AssetType: "narration_track", CreatedAt: time.Now().UTC(), Language: "en",
	})

	materializer := &narrationMaterializer{client: client}
	media, err := materializer.Materialize(context.Background(), "proj-1", record, nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(media) != 2 || len(requests) != 2 {
		t.Fatalf("media = %d, requests = %d", len(media), len(requests))
	}
	if requests[0].Voice != "narrator" || requests[0].Language != "en" {
		t.Fatalf("request = %+v", requests[0])
	}
	if !strings.HasPrefix(media[0].SysID, "aud_l1_") {
		t.Fatalf("sys id = %q", media[0].SysID)
	}

	// Holder slots point back into the record's own lines.
	lines := listOfMaps(record["lines"])
	if lines[0]["media_id"] != media[0].SysID {
		t.Fatalf("line media_id = %v", lines[0]["media_id"])
	}
	media[0].SetURI("projects/proj-1/media/x.mp3")
	if lines[0]["uri"] != "projects/proj-1/media/x.mp3" {
		t.Fatalf("uri holder not wired into record line")
	}
}

func TestNarrationMaterializerRejectsEmptyText(t *testing.T) {
	record := domain.AssetRecord{
		"lines": []map[string]any{{"line_id": "l1", "text": "  "}},
	}
	materializer := &narrationMaterializer{client: nullClient(t)}
	if _, err := materializer.Materialize(context.Background(), "proj-1", record, nil); err == nil {
		t.Fatalf("expected error for empty line text")
	}
}

func TestNarrationAssetEvaluator(t *testing.T) {
	checker := &fakeMediaChecker{missing: map[string]bool{"projects/p/media/b.mp3": true}}
	evaluator := &narrationEvaluator{media: checker}

	record := domain.AssetRecord{
		"lines": []map[string]any{
			{"line_id": "l1", "text": "a", "uri": "projects/p/media/a.mp3"},
			{"line_id": "l2", "text": "b", "uri": "projects/p/media/b.mp3"},
		},
	}
	eval, err := evaluator.EvaluateAsset(context.Background(), record, nil)
	if err != nil {
		t.Fatalf("EvaluateAsset: %v", err)
	}
	if eval.OverallPass {
		t.Fatalf("expected rejection for missing blob, got %+v", eval)
	}

	record = domain.AssetRecord{
		"lines": []map[string]any{
			{"line_id": "l1", "text": "a", "uri": "projects/p/media/a.mp3"},
		},
	}
	eval, err = evaluator.EvaluateAsset(context.Background(), record, nil)
	if err != nil {
		t.Fatalf("EvaluateAsset: %v", err)
	}
	if !eval.OverallPass {
		t.Fatalf("eval = %+v", eval)
	}
}

func TestNarrationAssetEvaluatorRejectsMissingURI(t *testing.T) {
	evaluator := &narrationEvaluator{media: &fakeMediaChecker{}}
	record := domain.AssetRecord{
		"lines": []any{map[string]any{"line_id": "l1", "text": "a"}},
	}
	eval, err := evaluator.EvaluateAsset(context.Background(), record, nil)
	if err != nil {
		t.Fatalf("EvaluateAsset: %v", err)
	}
	if eval.OverallPass || !strings.Contains(eval.Summary, "no uri") {
		t.Fatalf("eval = %+v", eval)
	}
}
