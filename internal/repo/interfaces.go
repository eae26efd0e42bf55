package repo

import (
	"context"
	"errors"
	"time"

	"github.com/storyforge-labs/storyforge-go/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// StoredAsset is one persisted asset record. AssetID is the stable logical
// identity; upserts on (project_id, asset_id) replace the record payload so
// a phase-2 save overwrites the phase-1 row.
type StoredAsset struct {
	ID        string
	ProjectID string
	DraftID   string
	AssetID   string
	AssetType string
	Iteration int
	Version   int
	StepKind  string
	Record    domain.AssetRecord
	CreatedAt time.Time
}

type AssetFilter struct {
	ProjectID string
	DraftID   string
	AssetType string
	Limit     int
}

type StepEventFilter struct {
	ProjectID string
	DraftID   string
	StepKind  string
	Limit     int
}

// StepEvent is one append-only run-log entry for a step execution.
type StepEvent struct {
	EventID   string
	ProjectID string
	DraftID   string
	StepKind  string
	Attempts  int
	Outcome   string
	Summary   string
	CreatedAt time.Time
}

// AssetRepository manages asset records and version allocation.
type AssetRepository interface {
	UpsertAsset(ctx context.Context, asset StoredAsset) error
	GetAsset(ctx context.Context, projectID, assetID string) (StoredAsset, error)
	ListAssets(ctx context.Context, filter AssetFilter) ([]StoredAsset, error)
	NextVersion(ctx context.Context, projectID, assetType string, iteration int) (int, error)
}

// StepEventRepository appends and lists run-log entries.
type StepEventRepository interface {
	InsertStepEvent(ctx context.Context, event StepEvent) error
	ListStepEvents(ctx context.Context, filter StepEventFilter) ([]StepEvent, error)
}
