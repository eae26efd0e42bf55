package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion tags every persisted asset record so downstream readers can
// detect incompatible shapes.
const SchemaVersion = "0.3"

// MetaKey is the reserved record key holding the system-authoritative meta
// block. Agents must never produce it.
const MetaKey = "meta"

// AssetCache is the shared in-memory mapping from cache key to the asset a
// completed step produced. It is passed by reference into the executor and
// mutated in place; presence of a key means the step already ran.
//
// Single-writer: the cache carries no locking. Callers must serialize step
// execution per cache.
type AssetCache map[string]AssetRecord

// AssetRecord is one step's persisted output: the agent's raw fields plus
// the injected meta block.
type AssetRecord map[string]any

// AssetMeta is the system-authoritative identity block attached to every
// record at persistence time. Field names are the stable on-disk schema.
type AssetMeta struct {
	ProjectID     string    `json:"project_id"`
	DraftID       string    `json:"draft_id"`
	AssetID       string    `json:"asset_id"`
	AssetType     string    `json:"asset_type"`
	SchemaVersion string    `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedByStep string    `json:"created_by_step"`
	Language      string    `json:"language"`
}

func (m AssetMeta) Validate() error {
	if strings.TrimSpace(m.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(m.AssetID) == "" {
		return errors.New("asset id is required")
	}
	if strings.TrimSpace(m.AssetType) == "" {
		return errors.New("asset type is required")
	}
	if m.CreatedAt.IsZero() {
		return errors.New("created at is required")
	}
	return nil
}

// NewRecord copies the agent's output fields and attaches meta. Any meta the
// agent tried to smuggle in is discarded.
func NewRecord(output map[string]any, meta AssetMeta) AssetRecord {
	record := make(AssetRecord, len(output)+1)
	for k, v := range output {
		if k == MetaKey {
			continue
		}
		record[k] = v
	}
	record[MetaKey] = meta
	return record
}

// Meta extracts the meta block. It accepts both the in-memory form
// (AssetMeta) and the decoded-JSON form (map[string]any) so records loaded
// back from durable storage behave like freshly built ones.
func (r AssetRecord) Meta() (AssetMeta, bool) {
	v, ok := r[MetaKey]
	if !ok {
		return AssetMeta{}, false
	}
	switch meta := v.(type) {
	case AssetMeta:
		return meta, true
	case map[string]any:
		return metaFromMap(meta), true
	default:
		return AssetMeta{}, false
	}
}

func metaFromMap(m map[string]any) AssetMeta {
	meta := AssetMeta{
		ProjectID:     stringField(m, "project_id"),
		DraftID:       stringField(m, "draft_id"),
		AssetID:       stringField(m, "asset_id"),
		AssetType:     stringField(m, "asset_type"),
		SchemaVersion: stringField(m, "schema_version"),
		CreatedByStep: stringField(m, "created_by_step"),
		Language:      stringField(m, "language"),
	}
	if raw := stringField(m, "created_at"); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			meta.CreatedAt = t
		}
	}
	return meta
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// FormatAssetID derives the deterministic asset identifier from the
// versioning triple. The executor's metadata builder is the only producer;
// ParseAssetID is the only consumer of the format.
func FormatAssetID(assetType string, iteration, version int) string {
	return fmt.Sprintf("%s_iter%02d_v%03d", assetType, iteration, version)
}

// ParseAssetID recovers (assetType, iteration, version) from an asset id
// produced by FormatAssetID.
func ParseAssetID(assetID string) (string, int, int, error) {
	idx := strings.LastIndex(assetID, "_iter")
	if idx <= 0 {
		return "", 0, 0, fmt.Errorf("malformed asset id: %q", assetID)
	}
	assetType := assetID[:idx]
	var iteration, version int
	if _, err := fmt.Sscanf(assetID[idx:], "_iter%02d_v%03d", &iteration, &version); err != nil {
		return "", 0, 0, fmt.Errorf("malformed asset id: %q", assetID)
	}
	return assetType, iteration, version, nil
}

// MediaAsset is one binary output of materialization. URIHolder points into
// the owning record's nested structure; the executor writes the storage
// location there after the blob is saved, so materializers stay ignorant of
// where URIs live.
type MediaAsset struct {
	SysID     string
	Data      []byte
	Extension string
	URIHolder map[string]any
}

func (m *MediaAsset) Validate() error {
	if strings.TrimSpace(m.SysID) == "" {
		return errors.New("media sys id is required")
	}
	if strings.TrimSpace(m.Extension) == "" {
		return errors.New("media extension is required")
	}
	if m.URIHolder == nil {
		return errors.New("media uri holder is required")
	}
	return nil
}

// SetURI writes the final storage location into the holder slot.
func (m *MediaAsset) SetURI(location string) {
	if m.URIHolder != nil {
		m.URIHolder["uri"] = location
	}
}
