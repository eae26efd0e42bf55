package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func testMeta() AssetMeta {
	return AssetMeta{
		ProjectID:     "proj-1",
		DraftID:       "draft-1",
		AssetID:       "story_iter01_v001",
		AssetType:     "story",
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		CreatedByStep: "story",
		Language:      "en",
	}
}

func TestNewRecordStripsAgentMeta(t *testing.T) {
	output := map[string]any{
		"logline": "a heist goes sideways",
		"meta":    map[string]any{"asset_id": "forged"},
	}
	record := NewRecord(output, testMeta())

	meta, ok := record.Meta()
	if !ok {
		t.Fatalf("expected meta on record")
	}
	if meta.AssetID != "story_iter01_v001" {
		t.Fatalf("meta.AssetID = %q, want system-built id", meta.AssetID)
	}
	if record["logline"] != "a heist goes sideways" {
		t.Fatalf("agent field lost: %v", record["logline"])
	}
}

func TestNewRecordDoesNotAliasOutput(t *testing.T) {
	output := map[string]any{"logline": "original"}
	record := NewRecord(output, testMeta())
	output["logline"] = "mutated"
	if record["logline"] != "original" {
		t.Fatalf("record aliases agent output map")
	}
}

func TestMetaRoundTripThroughJSON(t *testing.T) {
	record := NewRecord(map[string]any{"logline": "x"}, testMeta())

	raw, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var loaded AssetRecord
	if err := json.Unmarshal(raw, &loaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	meta, ok := loaded.Meta()
	if !ok {
		t.Fatalf("expected meta after round trip")
	}
	want := testMeta()
	if meta.AssetID != want.AssetID || meta.AssetType != want.AssetType {
		t.Fatalf("meta = %+v, want %+v", meta, want)
	}
	if !meta.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("CreatedAt = %v, want %v", meta.CreatedAt, want.CreatedAt)
	}
	if meta.SchemaVersion != SchemaVersion {
		t.Fatalf("SchemaVersion = %q, want %q", meta.SchemaVersion, SchemaVersion)
	}
}

func TestMetaMissing(t *testing.T) {
	record := AssetRecord{"logline": "x"}
	if _, ok := record.Meta(); ok {
		t.Fatalf("expected no meta")
	}
}

func TestFormatAssetID(t *testing.T) {
	got := FormatAssetID("audio_package", 2, 13)
	if got != "audio_package_iter02_v013" {
		t.Fatalf("FormatAssetID = %q", got)
	}
}

func TestParseAssetIDRoundTrip(t *testing.T) {
	id := FormatAssetID("storyboard", 1, 7)
	assetType, iteration, version, err := ParseAssetID(id)
	if err != nil {
		t.Fatalf("ParseAssetID: %v", err)
	}
	if assetType != "storyboard" || iteration != 1 || version != 7 {
		t.Fatalf("ParseAssetID = (%q, %d, %d)", assetType, iteration, version)
	}
}

func TestParseAssetIDMalformed(t *testing.T) {
	for _, id := range []string{"", "story", "_iter01_v001", "story_iterXX_vYYY"} {
		if _, _, _, err := ParseAssetID(id); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
}

func TestMediaAssetSetURI(t *testing.T) {
	holder := map[string]any{"media_id": "aud_001"}
	media := MediaAsset{SysID: "aud_001", Data: []byte{1}, Extension: "mp3", URIHolder: holder}
	media.SetURI("projects/p/media/aud_001.mp3")
	if holder["uri"] != "projects/p/media/aud_001.mp3" {
		t.Fatalf("uri not written into holder: %v", holder)
	}
}

func TestMediaAssetValidate(t *testing.T) {
	media := MediaAsset{SysID: "a", Extension: "mp3", URIHolder: map[string]any{}}
	if err := media.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	media.URIHolder = nil
	if err := media.Validate(); err == nil {
		t.Fatalf("expected error for nil uri holder")
	}
}
