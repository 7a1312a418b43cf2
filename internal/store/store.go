package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Snapshot kinds.
const (
	KindBoard  = "board"
	KindGroup  = "group"
	KindColumn = "column"
	KindPulse  = "pulse"
	KindUser   = "user"
	KindTag    = "tag"
	KindNote   = "note"
	KindUpdate = "update"
)

// Snapshot is the raw JSON of one remote object as it was at FetchedAt.
// ParentID is the owning board for groups, columns and pulses, and empty
// otherwise.
type Snapshot struct {
	ID        string
	Kind      string
	RemoteID  string
	ParentID  string
	RawJSON   string
	FetchedAt time.Time
}

// SyncRun records the outcome of one mirror pass over a board.
type SyncRun struct {
	ID         string
	BoardID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Groups     int
	Pulses     int
	NewPulses  int
	Error      string
}

// Store defines the persistence interface for mirrored objects.
type Store interface {
	// === Snapshots ===

	SaveSnapshots(ctx context.Context, snapshots []Snapshot) error
	GetSnapshots(ctx context.Context, kind, parentID string) ([]Snapshot, error)
	LatestSnapshot(ctx context.Context, kind, remoteID string) (*Snapshot, error)
	KnownRemoteIDs(ctx context.Context, kind, parentID string) (map[string]bool, error)

	// === Sync runs ===

	RecordRun(ctx context.Context, run SyncRun) error
	GetRuns(ctx context.Context, boardID string, limit int) ([]SyncRun, error)
}
