package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/gopulse/internal/store"
	"github.com/nhle/gopulse/pulse"
)

// State represents the current state of a board mirror.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "syncing"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Status holds the sync state of the mirrored board.
type Status struct {
	BoardID  int64
	State    State
	LastSync time.Time
	Error    error
}

// Result is the outcome of one successful sync.
type Result struct {
	Board  *pulse.Board
	Groups []*pulse.Group
	Pulses []*pulse.Pulse

	// New counts pulses that had never been mirrored before.
	New int
}

// ResultMsg is a tea.Msg sent when a background sync completes.
type ResultMsg struct {
	BoardID int64
	Result  Result
	Err     error
}

// DefaultPageSize is the number of pulses requested per page.
const DefaultPageSize = 25

// maxPages bounds pagination when the remote ignores per_page.
const maxPages = 200

// syncTimeout is the maximum time allowed for a single sync.
const syncTimeout = 30 * time.Second

// Mirror copies a board and its pulses into a snapshot store, once or on
// an interval.
type Mirror struct {
	transport pulse.Transport
	store     store.Store
	logger    *slog.Logger
	pageSize  int

	resultCh  chan ResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      sync.Mutex
	running bool
	status  Status
	seen    map[string]bool
}

// New creates a Mirror. A nil store disables persistence; syncs still
// fetch and report results.
func New(t pulse.Transport, s store.Store, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		transport: t,
		store:     s,
		logger:    logger,
		pageSize:  DefaultPageSize,
		resultCh:  make(chan ResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		seen:      make(map[string]bool),
	}
}

// SetPageSize overrides the number of pulses requested per page.
func (m *Mirror) SetPageSize(n int) {
	if n > 0 {
		m.pageSize = n
	}
}

// Sync fetches the board, all of its groups (archived included) and every
// page of its pulses, then saves one snapshot per object and records the
// run.
func (m *Mirror) Sync(ctx context.Context, boardID int64) (Result, error) {
	started := time.Now()
	m.setStatus(boardID, StateRunning, nil)

	result, err := m.fetch(ctx, boardID)
	if err == nil {
		err = m.persist(ctx, boardID, &result)
	}

	m.recordRun(ctx, boardID, started, result, err)
	if err != nil {
		m.setStatus(boardID, StateError, err)
		m.logger.Warn("mirror sync failed", "board", boardID, "error", err)
		return Result{}, err
	}

	m.setStatus(boardID, StateIdle, nil)
	m.logger.Info("mirror synced",
		"board", boardID,
		"groups", len(result.Groups),
		"pulses", len(result.Pulses),
		"new", result.New,
		"duration", time.Since(started),
	)
	return result, nil
}

func (m *Mirror) fetch(ctx context.Context, boardID int64) (Result, error) {
	board, err := pulse.FetchBoard(ctx, m.transport, boardID)
	if err != nil {
		return Result{}, err
	}
	groups, err := board.Groups(ctx, true)
	if err != nil {
		return Result{}, err
	}

	var pulses []*pulse.Pulse
	for page := 1; page <= maxPages; page++ {
		batch, err := board.Pulses(ctx, pulse.PageOptions{Page: page, PerPage: m.pageSize})
		if err != nil {
			return Result{}, err
		}
		pulses = append(pulses, batch...)
		if len(batch) < m.pageSize {
			break
		}
	}

	return Result{Board: board, Groups: groups, Pulses: pulses}, nil
}

func (m *Mirror) persist(ctx context.Context, boardID int64, result *Result) error {
	parent := strconv.FormatInt(boardID, 10)

	known, err := m.knownPulses(ctx, parent)
	if err != nil {
		return err
	}
	for _, p := range result.Pulses {
		id := strconv.FormatInt(p.ID(), 10)
		if !known[id] {
			result.New++
		}
		m.markSeen(id)
	}

	if m.store == nil {
		return nil
	}

	columns, err := result.Board.Columns()
	if err != nil {
		return fmt.Errorf("reading columns of board %d: %w", boardID, err)
	}

	now := time.Now().UTC()
	snapshots := make([]store.Snapshot, 0, 1+len(columns)+len(result.Groups)+len(result.Pulses))
	snapshots = append(snapshots, store.Snapshot{
		Kind:      store.KindBoard,
		RemoteID:  parent,
		RawJSON:   string(result.Board.JSON()),
		FetchedAt: now,
	})
	for _, c := range columns {
		snapshots = append(snapshots, store.Snapshot{
			Kind:      store.KindColumn,
			RemoteID:  c.ID(),
			ParentID:  parent,
			RawJSON:   string(c.JSON()),
			FetchedAt: now,
		})
	}
	for _, g := range result.Groups {
		snapshots = append(snapshots, store.Snapshot{
			Kind:      store.KindGroup,
			RemoteID:  g.ID(),
			ParentID:  parent,
			RawJSON:   string(g.JSON()),
			FetchedAt: now,
		})
	}
	for _, p := range result.Pulses {
		snapshots = append(snapshots, store.Snapshot{
			Kind:      store.KindPulse,
			RemoteID:  strconv.FormatInt(p.ID(), 10),
			ParentID:  parent,
			RawJSON:   string(p.JSON()),
			FetchedAt: now,
		})
	}

	if err := m.store.SaveSnapshots(ctx, snapshots); err != nil {
		return fmt.Errorf("saving snapshots of board %d: %w", boardID, err)
	}
	return nil
}

// knownPulses returns the pulses mirrored before, from the store when
// there is one and from this Mirror's memory otherwise.
func (m *Mirror) knownPulses(ctx context.Context, parent string) (map[string]bool, error) {
	if m.store != nil {
		known, err := m.store.KnownRemoteIDs(ctx, store.KindPulse, parent)
		if err != nil {
			return nil, fmt.Errorf("reading known pulses: %w", err)
		}
		return known, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	known := make(map[string]bool, len(m.seen))
	for id := range m.seen {
		known[id] = true
	}
	return known, nil
}

func (m *Mirror) markSeen(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[id] = true
}

func (m *Mirror) recordRun(
	ctx context.Context,
	boardID int64,
	started time.Time,
	result Result,
	syncErr error,
) {
	if m.store == nil {
		return
	}
	run := store.SyncRun{
		BoardID:    strconv.FormatInt(boardID, 10),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if syncErr != nil {
		run.Error = syncErr.Error()
	} else {
		run.Groups = len(result.Groups)
		run.Pulses = len(result.Pulses)
		run.NewPulses = result.New
	}
	if err := m.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		m.logger.Warn("recording mirror run", "board", boardID, "error", err)
	}
}

// Start returns a tea.Cmd that starts the sync loop for boardID and
// waits for its first result. The loop syncs immediately, then on every
// tick and on every Refresh.
func (m *Mirror) Start(boardID int64, interval time.Duration) tea.Cmd {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stop := m.stopCh
	m.mu.Unlock()

	if interval <= 0 {
		interval = 120 * time.Second
	}
	go m.loop(boardID, interval, stop)

	return m.WaitForResult()
}

// Stop halts the sync loop. A stopped Mirror can be started again.
func (m *Mirror) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	close(m.stopCh)
	m.running = false
}

// Refresh triggers an immediate sync of a running loop.
func (m *Mirror) Refresh() {
	select {
	case m.triggerCh <- struct{}{}:
	default:
		// A sync is already pending.
	}
}

// Status returns the current sync status.
func (m *Mirror) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Results exposes the result channel for callers outside Bubble Tea.
func (m *Mirror) Results() <-chan ResultMsg {
	return m.resultCh
}

// WaitForResult returns a tea.Cmd that waits for the next sync result.
// Call it again after handling each ResultMsg to keep listening.
func (m *Mirror) WaitForResult() tea.Cmd {
	m.mu.Lock()
	stop := m.stopCh
	m.mu.Unlock()

	return func() tea.Msg {
		select {
		case result := <-m.resultCh:
			return result
		case <-stop:
			return nil
		}
	}
}

func (m *Mirror) loop(boardID int64, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.syncAndSend(boardID)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.syncAndSend(boardID)
		case <-m.triggerCh:
			m.syncAndSend(boardID)
		}
	}
}

func (m *Mirror) syncAndSend(boardID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	result, err := m.Sync(ctx, boardID)
	m.sendResult(ResultMsg{BoardID: boardID, Result: result, Err: err})
}

// sendResult sends a ResultMsg on the result channel without blocking.
func (m *Mirror) sendResult(msg ResultMsg) {
	select {
	case m.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the loop
	}
}

func (m *Mirror) setStatus(boardID int64, state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.BoardID = boardID
	m.status.State = state
	m.status.Error = err
	if state == StateIdle && err == nil {
		m.status.LastSync = time.Now()
	}
}
