package postgres

import (
	"strings"
	"testing"

	"github.com/storyforge-labs/storyforge-go/internal/repo"
)

func TestBuildListAssetsQueryProjectOnly(t *testing.T) {
	query, args := buildListAssetsQuery(repo.AssetFilter{ProjectID: "proj-123"})
	if len(args) != 1 || args[0] != "proj-123" {
		t.Fatalf("expected project id as only arg, got %v", args)
	}
	if !strings.Contains(query, "project_id = $1") {
		t.Fatalf("expected project_id predicate in query, got %s", query)
	}
	if !strings.Contains(query, "ORDER BY created_at ASC") {
		t.Fatalf("expected creation-order listing, got %s", query)
	}
}

func TestBuildListAssetsQueryWithDraftAndLimit(t *testing.T) {
	query, args := buildListAssetsQuery(repo.AssetFilter{ProjectID: "proj-123", DraftID: "draft-9", Limit: 25})
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	if !strings.Contains(query, "draft_id = $2") {
		t.Fatalf("expected draft_id predicate in query, got %s", query)
	}
	if !strings.Contains(query, "LIMIT $3") {
		t.Fatalf("expected limit in query, got %s", query)
	}
}

func TestBuildListAssetsQueryWithAssetType(t *testing.T) {
	query, args := buildListAssetsQuery(repo.AssetFilter{ProjectID: "proj-123", AssetType: "story_package"})
	if len(args) != 2 || args[1] != "story_package" {
		t.Fatalf("expected asset type as second arg, got %v", args)
	}
	if !strings.Contains(query, "asset_type = $2") {
		t.Fatalf("expected asset_type predicate in query, got %s", query)
	}
}

func TestUpsertAssetQueryReplacesRecord(t *testing.T) {
	if !strings.Contains(upsertAssetQuery, "ON CONFLICT (project_id, asset_id) DO UPDATE") {
		t.Fatalf("upsert must replace record on conflict, got %s", upsertAssetQuery)
	}
	if !strings.Contains(upsertAssetQuery, "record = EXCLUDED.record") {
		t.Fatalf("upsert must take the new record payload, got %s", upsertAssetQuery)
	}
}

func TestNextVersionQueryStartsAtOne(t *testing.T) {
	if !strings.Contains(nextVersionQuery, "COALESCE(MAX(version), 0) + 1") {
		t.Fatalf("expected first allocation to be 1, got %s", nextVersionQuery)
	}
}
