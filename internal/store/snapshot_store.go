package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SaveSnapshots appends a batch of snapshots in one transaction. Missing
// ids are generated and a zero FetchedAt becomes the current time.
// Earlier snapshots of the same objects are kept.
func (s *SQLiteStore) SaveSnapshots(ctx context.Context, snapshots []Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO snapshots (
			id, kind, remote_id, parent_id, raw_json, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, snap := range snapshots {
		if snap.ID == "" {
			snap.ID = uuid.New().String()
		}
		if snap.FetchedAt.IsZero() {
			snap.FetchedAt = now
		}
		_, err = stmt.ExecContext(ctx,
			snap.ID, snap.Kind, snap.RemoteID, snap.ParentID,
			snap.RawJSON, snap.FetchedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("saving %s snapshot %s: %w", snap.Kind, snap.RemoteID, err)
		}
	}

	return tx.Commit()
}

// GetSnapshots returns the most recent snapshot of every object of kind
// under parentID, ordered by remote id.
func (s *SQLiteStore) GetSnapshots(
	ctx context.Context,
	kind string,
	parentID string,
) ([]Snapshot, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, kind, remote_id, parent_id, raw_json, fetched_at
		FROM snapshots
		WHERE rowid IN (
			SELECT MAX(rowid) FROM snapshots
			WHERE kind = ? AND parent_id = ?
			GROUP BY remote_id
		)
		ORDER BY remote_id`, kind, parentID)
	if err != nil {
		return nil, fmt.Errorf("querying %s snapshots: %w", kind, err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// LatestSnapshot returns the most recent snapshot of one object.
func (s *SQLiteStore) LatestSnapshot(
	ctx context.Context,
	kind string,
	remoteID string,
) (*Snapshot, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, kind, remote_id, parent_id, raw_json, fetched_at
		FROM snapshots
		WHERE kind = ? AND remote_id = ?
		ORDER BY rowid DESC
		LIMIT 1`, kind, remoteID)

	var snap Snapshot
	err := row.Scan(
		&snap.ID, &snap.Kind, &snap.RemoteID, &snap.ParentID,
		&snap.RawJSON, &snap.FetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s snapshot %s: %w", kind, remoteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning snapshot row: %w", err)
	}

	return &snap, nil
}

// KnownRemoteIDs returns the set of remote ids of kind with at least one
// snapshot under parentID.
func (s *SQLiteStore) KnownRemoteIDs(
	ctx context.Context,
	kind string,
	parentID string,
) (map[string]bool, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT remote_id FROM snapshots
		WHERE kind = ? AND parent_id = ?`, kind, parentID)
	if err != nil {
		return nil, fmt.Errorf("querying known %s ids: %w", kind, err)
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return known, nil
}

func scanSnapshot(rows *sqlx.Rows) (Snapshot, error) {
	var snap Snapshot
	err := rows.Scan(
		&snap.ID, &snap.Kind, &snap.RemoteID, &snap.ParentID,
		&snap.RawJSON, &snap.FetchedAt,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("scanning snapshot row: %w", err)
	}
	return snap, nil
}
