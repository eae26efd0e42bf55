// Package assets adapts the repositories to the executor's persistence
// contract: JSON records go to Postgres, binary media goes to the object
// store, and asset ids carry the version bookkeeping between the two.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
	"github.com/storyforge-labs/storyforge-go/internal/repo"
	"github.com/storyforge-labs/storyforge-go/internal/storage/objectstore"
)

type Manager struct {
	assets repo.AssetRepository
	blobs  objectstore.Store
	bucket string
}

func NewManager(assets repo.AssetRepository, blobs objectstore.Store, bucket string) (*Manager, error) {
	if assets == nil {
		return nil, errors.New("asset repository is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("media bucket is required")
	}
	return &Manager{assets: assets, blobs: blobs, bucket: bucket}, nil
}

// SaveAsset upserts the record under its stable asset id. Row identity
// fields come from the record's meta block and the asset id itself, never
// from the record payload.
func (m *Manager) SaveAsset(ctx context.Context, projectID, assetID string, record domain.AssetRecord) error {
	meta, ok := record.Meta()
	if !ok {
		return fmt.Errorf("asset %s: record missing meta", assetID)
	}
	assetType, iteration, version, err := domain.ParseAssetID(assetID)
	if err != nil {
		return err
	}
	return m.assets.UpsertAsset(ctx, repo.StoredAsset{
		ProjectID: projectID,
		DraftID:   meta.DraftID,
		AssetID:   assetID,
		AssetType: assetType,
		Iteration: iteration,
		Version:   version,
		StepKind:  meta.CreatedByStep,
		Record:    record,
		CreatedAt: meta.CreatedAt,
	})
}

// SaveBinary writes one media blob and returns its object key, which doubles
// as the URI stored in asset records.
func (m *Manager) SaveBinary(ctx context.Context, projectID, mediaID string, data []byte, extension string) (string, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", errors.New("project id is required")
	}
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return "", errors.New("media id is required")
	}
	extension = strings.TrimPrefix(strings.TrimSpace(extension), ".")
	if extension == "" {
		return "", errors.New("extension is required")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("media %s: empty payload", mediaID)
	}

	key := MediaKey(projectID, mediaID, extension)
	if err := m.blobs.Put(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), contentTypeFor(extension)); err != nil {
		return "", fmt.Errorf("put media %s: %w", key, err)
	}
	return key, nil
}

func (m *Manager) NextVersion(ctx context.Context, projectID, assetType string, iteration int) (int, error) {
	return m.assets.NextVersion(ctx, projectID, assetType, iteration)
}

// StatMedia verifies a stored blob exists and is non-empty. Used by asset
// evaluators to confirm URIs point at real objects.
func (m *Manager) StatMedia(ctx context.Context, location string) error {
	location = strings.TrimSpace(location)
	if location == "" {
		return errors.New("media location is required")
	}
	info, err := m.blobs.Stat(ctx, m.bucket, location)
	if err != nil {
		return fmt.Errorf("stat media %s: %w", location, err)
	}
	if info.Size == 0 {
		return fmt.Errorf("media %s: object is empty", location)
	}
	return nil
}

// LoadDraftAssets returns the draft's stored assets in creation order, the
// latest version winning per asset type. Callers map step kinds onto cache
// keys to rehydrate an execution cache.
func (m *Manager) LoadDraftAssets(ctx context.Context, projectID, draftID string) ([]repo.StoredAsset, error) {
	stored, err := m.assets.ListAssets(ctx, repo.AssetFilter{ProjectID: projectID, DraftID: draftID})
	if err != nil {
		return nil, err
	}

	latest := make(map[string]int, len(stored))
	out := make([]repo.StoredAsset, 0, len(stored))
	for _, asset := range stored {
		idx, seen := latest[asset.AssetType]
		if !seen {
			latest[asset.AssetType] = len(out)
			out = append(out, asset)
			continue
		}
		prev := out[idx]
		if asset.Iteration > prev.Iteration || (asset.Iteration == prev.Iteration && asset.Version > prev.Version) {
			out[idx] = asset
		}
	}
	return out, nil
}

// MediaKey is the canonical object key layout for project media.
func MediaKey(projectID, mediaID, extension string) string {
	return fmt.Sprintf("projects/%s/media/%s.%s", projectID, mediaID, extension)
}

func contentTypeFor(extension string) string {
	switch strings.ToLower(extension) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	case "mp4":
		return "video/mp4"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
