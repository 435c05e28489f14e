package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/modpilot/internal/pending"
)

// PostgresStore persists outcomes in the submission_history table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on an open connection; the schema must
// already be applied with database.Migrate
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RecordOutcome implements pending.OutcomeRecorder
func (s *PostgresStore) RecordOutcome(ctx context.Context, outcome *pending.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	var mrURL interface{}
	if mr := outcome.MergeRequest(); mr != nil && mr.WebURL != "" {
		mrURL = mr.WebURL
	}

	query := `
	INSERT INTO submission_history (
		submission_id, project_id, branch_name, partial, merge_request_url, payload, submitted_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (submission_id) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		outcome.SubmissionID, outcome.ProjectID, outcome.BranchName,
		outcome.Partial, mrURL, payload, outcome.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record submission %s: %w", outcome.SubmissionID, err)
	}

	log.Debug().
		Str("submission_id", outcome.SubmissionID).
		Int("project_id", outcome.ProjectID).
		Msg("Recorded submission outcome")
	return nil
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context, projectID int, limit int) ([]*pending.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT payload
	FROM submission_history
	WHERE ($1 = 0 OR project_id = $1)
	ORDER BY submitted_at DESC
	LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query submission history: %w", err)
	}
	defer rows.Close()

	out := make([]*pending.Outcome, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan submission history: %w", err)
		}
		var outcome pending.Outcome
		if err := json.Unmarshal(payload, &outcome); err != nil {
			return nil, fmt.Errorf("failed to decode submission history: %w", err)
		}
		out = append(out, &outcome)
	}
	return out, rows.Err()
}
