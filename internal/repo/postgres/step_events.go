package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/storyforge-labs/storyforge-go/internal/repo"
)

// StepEventStore appends run-log rows. The table is append-only; there is no
// update or delete path.
type StepEventStore struct {
	db DB
}

const (
	insertStepEventQuery = `INSERT INTO step_events (
		event_id,
		project_id,
		draft_id,
		step_kind,
		attempts,
		outcome,
		summary,
		created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	listStepEventsQueryBase = `SELECT event_id, project_id, draft_id, step_kind, attempts, outcome, summary, created_at FROM step_events`
)

func NewStepEventStore(db DB) *StepEventStore {
	if db == nil {
		return nil
	}
	return &StepEventStore{db: db}
}

func (s *StepEventStore) InsertStepEvent(ctx context.Context, event repo.StepEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step event store not initialized")
	}
	projectID := strings.TrimSpace(event.ProjectID)
	draftID := strings.TrimSpace(event.DraftID)
	stepKind := strings.TrimSpace(event.StepKind)
	outcome := strings.TrimSpace(event.Outcome)

	if projectID == "" {
		return fmt.Errorf("project id is required")
	}
	if draftID == "" {
		return fmt.Errorf("draft id is required")
	}
	if stepKind == "" {
		return fmt.Errorf("step kind is required")
	}
	if outcome == "" {
		return fmt.Errorf("outcome is required")
	}

	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		eventID = uuid.NewString()
	}

	_, err := s.db.ExecContext(
		ctx,
		insertStepEventQuery,
		eventID,
		projectID,
		draftID,
		stepKind,
		event.Attempts,
		outcome,
		nullIfEmpty(strings.TrimSpace(event.Summary)),
		normalizeTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert step event: %w", err)
	}
	return nil
}

func (s *StepEventStore) ListStepEvents(ctx context.Context, filter repo.StepEventFilter) ([]repo.StepEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("step event store not initialized")
	}
	if strings.TrimSpace(filter.ProjectID) == "" {
		return nil, fmt.Errorf("project id is required")
	}

	query, args := buildListStepEventsQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list step events: %w", err)
	}
	defer rows.Close()

	events := make([]repo.StepEvent, 0)
	for rows.Next() {
		var event repo.StepEvent
		var summary sql.NullString
		if err := rows.Scan(
			&event.EventID,
			&event.ProjectID,
			&event.DraftID,
			&event.StepKind,
			&event.Attempts,
			&event.Outcome,
			&summary,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan step event: %w", err)
		}
		event.Summary = summary.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list step events: %w", err)
	}
	return events, nil
}

func buildListStepEventsQuery(filter repo.StepEventFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)

	args = append(args, strings.TrimSpace(filter.ProjectID))
	clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))

	if strings.TrimSpace(filter.DraftID) != "" {
		args = append(args, strings.TrimSpace(filter.DraftID))
		clauses = append(clauses, fmt.Sprintf("draft_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.StepKind) != "" {
		args = append(args, strings.TrimSpace(filter.StepKind))
		clauses = append(clauses, fmt.Sprintf("step_kind = $%d", len(args)))
	}

	query := listStepEventsQueryBase
	query += " WHERE " + strings.Join(clauses, " AND ")
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}
