package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubVersions struct {
	next int
	err  error
}

func (s *stubVersions) NextVersion(ctx context.Context, projectID, assetType string, iteration int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	return s.next, nil
}

func TestMetaBuilderBuild(t *testing.T) {
	builder, err := NewMetaBuilder(&stubVersions{})
	if err != nil {
		t.Fatalf("NewMetaBuilder: %v", err)
	}
	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	builder.now = func() time.Time { return fixed }

	assetID, meta, err := builder.Build(context.Background(), "proj-1", "draft-1", "story_package", "story", 2, "en")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if assetID != "story_package_iter02_v001" {
		t.Fatalf("assetID = %q", assetID)
	}
	if meta.AssetID != assetID {
		t.Fatalf("meta.AssetID = %q, want %q", meta.AssetID, assetID)
	}
	if meta.ProjectID != "proj-1" || meta.DraftID != "draft-1" {
		t.Fatalf("meta identity = %+v", meta)
	}
	if meta.CreatedByStep != "story" || meta.Language != "en" {
		t.Fatalf("meta provenance = %+v", meta)
	}
	if !meta.CreatedAt.Equal(fixed) {
		t.Fatalf("meta.CreatedAt = %v", meta.CreatedAt)
	}
}

func TestMetaBuilderVersionsAdvance(t *testing.T) {
	builder, err := NewMetaBuilder(&stubVersions{})
	if err != nil {
		t.Fatalf("NewMetaBuilder: %v", err)
	}

	first, _, err := builder.Build(context.Background(), "p", "d", "story_package", "story", 1, "en")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, _, err := builder.Build(context.Background(), "p", "d", "story_package", "story", 1, "en")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if first == second {
		t.Fatalf("consecutive builds reused asset id %q", first)
	}
}

func TestMetaBuilderVersionError(t *testing.T) {
	builder, err := NewMetaBuilder(&stubVersions{err: errors.New("db down")})
	if err != nil {
		t.Fatalf("NewMetaBuilder: %v", err)
	}
	if _, _, err := builder.Build(context.Background(), "p", "d", "story_package", "story", 1, "en"); err == nil {
		t.Fatalf("expected version allocation error")
	}
}

func TestNewMetaBuilderRequiresSource(t *testing.T) {
	if _, err := NewMetaBuilder(nil); err == nil {
		t.Fatalf("expected error for nil version source")
	}
}
