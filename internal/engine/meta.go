package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
)

// VersionSource allocates the next version number for an asset type,
// monotonically increasing per (project, asset type, iteration).
type VersionSource interface {
	NextVersion(ctx context.Context, projectID, assetType string, iteration int) (int, error)
}

// MetaBuilder derives the system-authoritative identity block for a new
// asset. Agents never produce identity; every attempt gets a fresh asset id
// and version so stale attempts are never silently reused.
type MetaBuilder struct {
	versions VersionSource
	now      func() time.Time
}

func NewMetaBuilder(versions VersionSource) (*MetaBuilder, error) {
	if versions == nil {
		return nil, errors.New("version source is required")
	}
	return &MetaBuilder{versions: versions, now: time.Now}, nil
}

// Build allocates a version, derives the asset id, and assembles meta.
// Safe to call once per attempt; its only side effect is the version read.
func (b *MetaBuilder) Build(ctx context.Context, projectID, draftID, assetType, stepKind string, iteration int, language string) (string, domain.AssetMeta, error) {
	version, err := b.versions.NextVersion(ctx, projectID, assetType, iteration)
	if err != nil {
		return "", domain.AssetMeta{}, fmt.Errorf("next version for %s: %w", assetType, err)
	}
	assetID := domain.FormatAssetID(assetType, iteration, version)
	meta := domain.AssetMeta{
		ProjectID:     projectID,
		DraftID:       draftID,
		AssetID:       assetID,
		AssetType:     assetType,
		SchemaVersion: domain.SchemaVersion,
		CreatedAt:     b.now().UTC(),
		CreatedByStep: stepKind,
		Language:      language,
	}
	return assetID, meta, nil
}
