package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecordRun stores the outcome of a mirror pass.
func (s *SQLiteStore) RecordRun(ctx context.Context, run SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, board_id, started_at, finished_at,
			group_count, pulse_count, new_pulses, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BoardID, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Groups, run.Pulses, run.NewPulses, run.Error,
	)
	if err != nil {
		return fmt.Errorf("recording sync run for board %s: %w", run.BoardID, err)
	}
	return nil
}

// GetRuns returns the most recent runs for a board, newest first. A
// limit of zero or less returns every run.
func (s *SQLiteStore) GetRuns(
	ctx context.Context,
	boardID string,
	limit int,
) ([]SyncRun, error) {
	query := `
		SELECT id, board_id, started_at, finished_at,
			group_count, pulse_count, new_pulses, error
		FROM sync_runs
		WHERE board_id = ?
		ORDER BY started_at DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, boardID)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs for board %s: %w", boardID, err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var run SyncRun
		if err := rows.Scan(
			&run.ID, &run.BoardID, &run.StartedAt, &run.FinishedAt,
			&run.Groups, &run.Pulses, &run.NewPulses, &run.Error,
		); err != nil {
			return nil, fmt.Errorf("scanning sync run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
