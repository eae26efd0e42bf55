package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/storyforge-labs/storyforge-go/internal/repo"
)

type AssetStore struct {
	db DB
}

const (
	upsertAssetQuery = `INSERT INTO pipeline_assets (
		id,
		project_id,
		draft_id,
		asset_id,
		asset_type,
		iteration,
		version,
		step_kind,
		record,
		created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (project_id, asset_id) DO UPDATE SET
		record = EXCLUDED.record,
		step_kind = EXCLUDED.step_kind`

	selectAssetQuery = `SELECT id, project_id, draft_id, asset_id, asset_type, iteration, version, step_kind, record, created_at
	 FROM pipeline_assets
	 WHERE project_id = $1 AND asset_id = $2`

	nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1
	 FROM pipeline_assets
	 WHERE project_id = $1 AND asset_type = $2 AND iteration = $3`
)

func NewAssetStore(db DB) *AssetStore {
	if db == nil {
		return nil
	}
	return &AssetStore{db: db}
}

func (s *AssetStore) UpsertAsset(ctx context.Context, asset repo.StoredAsset) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("asset store not initialized")
	}
	projectID := strings.TrimSpace(asset.ProjectID)
	draftID := strings.TrimSpace(asset.DraftID)
	assetID := strings.TrimSpace(asset.AssetID)
	assetType := strings.TrimSpace(asset.AssetType)
	stepKind := strings.TrimSpace(asset.StepKind)

	if projectID == "" {
		return fmt.Errorf("project id is required")
	}
	if draftID == "" {
		return fmt.Errorf("draft id is required")
	}
	if assetID == "" {
		return fmt.Errorf("asset id is required")
	}
	if assetType == "" {
		return fmt.Errorf("asset type is required")
	}
	if asset.Iteration < 1 {
		return fmt.Errorf("iteration must be >= 1")
	}
	if asset.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}

	recordJSON, err := encodeRecord(asset.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	id := strings.TrimSpace(asset.ID)
	if id == "" {
		id = uuid.NewString()
	}

	_, err = s.db.ExecContext(
		ctx,
		upsertAssetQuery,
		id,
		projectID,
		draftID,
		assetID,
		assetType,
		asset.Iteration,
		asset.Version,
		stepKind,
		recordJSON,
		normalizeTime(asset.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

func (s *AssetStore) GetAsset(ctx context.Context, projectID, assetID string) (repo.StoredAsset, error) {
	if s == nil || s.db == nil {
		return repo.StoredAsset{}, fmt.Errorf("asset store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return repo.StoredAsset{}, fmt.Errorf("project id is required")
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return repo.StoredAsset{}, fmt.Errorf("asset id is required")
	}

	row := s.db.QueryRowContext(ctx, selectAssetQuery, projectID, assetID)
	asset, err := scanAsset(row)
	if err != nil {
		return repo.StoredAsset{}, err
	}
	return asset, nil
}

func (s *AssetStore) ListAssets(ctx context.Context, filter repo.AssetFilter) ([]repo.StoredAsset, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("asset store not initialized")
	}
	if strings.TrimSpace(filter.ProjectID) == "" {
		return nil, fmt.Errorf("project id is required")
	}

	query, args := buildListAssetsQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	assets := make([]repo.StoredAsset, 0)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}

// NextVersion allocates the next version for an asset type within one
// iteration. No row lock is taken; concurrent writers for the same draft are
// excluded above this layer.
func (s *AssetStore) NextVersion(ctx context.Context, projectID, assetType string, iteration int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("asset store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return 0, fmt.Errorf("project id is required")
	}
	assetType = strings.TrimSpace(assetType)
	if assetType == "" {
		return 0, fmt.Errorf("asset type is required")
	}
	if iteration < 1 {
		return 0, fmt.Errorf("iteration must be >= 1")
	}

	var version int
	if err := s.db.QueryRowContext(ctx, nextVersionQuery, projectID, assetType, iteration).Scan(&version); err != nil {
		return 0, fmt.Errorf("next version: %w", err)
	}
	return version, nil
}

func buildListAssetsQuery(filter repo.AssetFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)

	args = append(args, strings.TrimSpace(filter.ProjectID))
	clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))

	if strings.TrimSpace(filter.DraftID) != "" {
		args = append(args, strings.TrimSpace(filter.DraftID))
		clauses = append(clauses, fmt.Sprintf("draft_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.AssetType) != "" {
		args = append(args, strings.TrimSpace(filter.AssetType))
		clauses = append(clauses, fmt.Sprintf("asset_type = $%d", len(args)))
	}

	query := `SELECT id, project_id, draft_id, asset_id, asset_type, iteration, version, step_kind, record, created_at FROM pipeline_assets`
	query += " WHERE " + strings.Join(clauses, " AND ")
	query += " ORDER BY created_at ASC, asset_id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

type assetScanner interface {
	Scan(dest ...any) error
}

func scanAsset(scanner assetScanner) (repo.StoredAsset, error) {
	var asset repo.StoredAsset
	var recordJSON []byte
	if err := scanner.Scan(
		&asset.ID,
		&asset.ProjectID,
		&asset.DraftID,
		&asset.AssetID,
		&asset.AssetType,
		&asset.Iteration,
		&asset.Version,
		&asset.StepKind,
		&recordJSON,
		&asset.CreatedAt,
	); err != nil {
		return repo.StoredAsset{}, handleNotFound(err)
	}
	record, err := decodeRecord(recordJSON)
	if err != nil {
		return repo.StoredAsset{}, fmt.Errorf("decode record: %w", err)
	}
	asset.Record = record
	return asset, nil
}
