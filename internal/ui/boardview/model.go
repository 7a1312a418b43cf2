package boardview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/gopulse/internal/keys"
	"github.com/nhle/gopulse/internal/mirror"
	"github.com/nhle/gopulse/internal/theme"
	"github.com/nhle/gopulse/internal/ui/detail"
	"github.com/nhle/gopulse/pulse"
)

// actionTimeout bounds a single write made from the board view.
const actionTimeout = 15 * time.Second

// RowsBuiltMsg carries the rows built from one mirror result.
type RowsBuiltMsg struct {
	Board        *pulse.Board
	Columns      []*pulse.Column
	StatusColumn *pulse.Column
	Items        []PulseItem
	Err          error
}

// SelectedPulseMsg is sent when the user opens a pulse. Guard must be held
// while Pulse is used.
type SelectedPulseMsg struct {
	Pulse      *pulse.Pulse
	Guard      sync.Locker
	Columns    []*pulse.Column
	GroupTitle string
}

// StatusChangedMsg reports the outcome of a status write.
type StatusChangedMsg struct {
	PulseID int64
	Status  int
	Label   string
	Err     error
}

// BuildRows returns a tea.Cmd that turns a mirror result into list rows.
// statusColumnID selects the status column shown as the badge; when empty
// the board's first status column is used.
func BuildRows(result mirror.Result, statusColumnID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return buildRows(ctx, result, statusColumnID)
	}
}

func buildRows(ctx context.Context, result mirror.Result, statusColumnID string) RowsBuiltMsg {
	msg := RowsBuiltMsg{Board: result.Board}

	columns, err := result.Board.Columns()
	if err != nil {
		msg.Err = err
		return msg
	}
	msg.Columns = columns
	msg.StatusColumn, err = findStatusColumn(columns, statusColumnID)
	if err != nil {
		msg.Err = err
		return msg
	}

	groups := make(map[string]*pulse.Group, len(result.Groups))
	for _, g := range result.Groups {
		groups[g.ID()] = g
	}

	msg.Items = make([]PulseItem, 0, len(result.Pulses))
	for _, p := range result.Pulses {
		item := PulseItem{
			Pulse:     p,
			guard:     new(sync.Mutex),
			Name:      p.Name(),
			GroupID:   p.GroupID(),
			UpdatedAt: p.UpdatedAt(),
		}
		if g, ok := groups[p.GroupID()]; ok {
			item.GroupTitle = g.Title()
			item.GroupColor = g.Color()
			item.Archived = g.IsArchived()
		}
		if msg.StatusColumn != nil {
			sv, err := p.StatusColumn(ctx, msg.StatusColumn.ID())
			if err == nil {
				if index, err := sv.Value(); err == nil {
					item.HasStatus = true
					item.Status = index
					item.StatusLabel = detail.StatusLabel(msg.StatusColumn, index)
				}
			}
		}
		msg.Items = append(msg.Items, item)
	}
	return msg
}

// findStatusColumn returns the column named by id, or the first status
// column when id is empty. A board without status columns yields nil.
func findStatusColumn(columns []*pulse.Column, id string) (*pulse.Column, error) {
	for _, c := range columns {
		if id == "" && c.Type() == pulse.ColumnStatus {
			return c, nil
		}
		if id != "" && c.ID() == id {
			if c.Type() != pulse.ColumnStatus {
				return nil, fmt.Errorf("column %q is %s, not a status column", id, c.Type())
			}
			return c, nil
		}
	}
	if id != "" {
		return nil, fmt.Errorf("board has no column %q", id)
	}
	return nil, nil
}

// NextStatus returns the status index following current. Columns with
// labels cycle through their label indices; unlabeled columns cycle
// through every color.
func NextStatus(c *pulse.Column, current int) int {
	indices := c.LabelIndices()
	if len(indices) == 0 {
		return (current + 1) % (pulse.StatusBlack + 1)
	}
	for _, index := range indices {
		if index > current {
			return index
		}
	}
	return indices[0]
}

// Model is the pulse list of one board.
type Model struct {
	list         list.Model
	keys         *keys.KeyMap
	columns      []*pulse.Column
	statusColumn *pulse.Column
	items        []PulseItem
	pending      map[int64]bool // pulses with a status write in flight
	showArchived bool
	loaded       bool
	err          error
	width        int
	height       int
}

// New creates a new board view model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Pulses"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:    l,
		keys:    k,
		pending: make(map[int64]bool),
		width:   width,
		height:  height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the board view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RowsBuiltMsg:
		m.loaded = true
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		if msg.Board != nil {
			m.list.Title = msg.Board.Name()
		}
		m.columns = msg.Columns
		m.statusColumn = msg.StatusColumn
		m.items = msg.Items
		return m, m.applyItems()

	case StatusChangedMsg:
		delete(m.pending, msg.PulseID)
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		for i := range m.items {
			if m.items[i].Pulse.ID() == msg.PulseID {
				m.items[i].Status = msg.Status
				m.items[i].StatusLabel = msg.Label
				m.items[i].HasStatus = true
			}
		}
		return m, m.applyItems()

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Select):
			item, ok := m.list.SelectedItem().(PulseItem)
			if !ok {
				return m, nil
			}
			columns := m.columns
			return m, func() tea.Msg {
				return SelectedPulseMsg{
					Pulse:      item.Pulse,
					Guard:      item.guard,
					Columns:    columns,
					GroupTitle: item.GroupTitle,
				}
			}

		case key.Matches(msg, m.keys.CycleStatus):
			return m, m.cycleStatus()

		case key.Matches(msg, m.keys.ShowArchived):
			m.showArchived = !m.showArchived
			return m, m.applyItems()
		}
	}

	// Delegate to the list for navigation and filtering keys
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// cycleStatus moves the selected pulse to the next status.
func (m Model) cycleStatus() tea.Cmd {
	item, ok := m.list.SelectedItem().(PulseItem)
	if !ok || m.statusColumn == nil || m.pending[item.Pulse.ID()] {
		return nil
	}
	m.pending[item.Pulse.ID()] = true
	column := m.statusColumn
	current := item.Status
	if !item.HasStatus {
		current = pulse.StatusGrey
	}
	next := NextStatus(column, current)

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		item.guard.Lock()
		defer item.guard.Unlock()
		sv, err := item.Pulse.StatusColumn(ctx, column.ID())
		if err == nil {
			err = sv.Update(ctx, next)
		}
		return StatusChangedMsg{
			PulseID: item.Pulse.ID(),
			Status:  next,
			Label:   detail.StatusLabel(column, next),
			Err:     err,
		}
	}
}

// applyItems pushes the visible rows into the list.
func (m *Model) applyItems() tea.Cmd {
	visible := make([]list.Item, 0, len(m.items))
	for _, it := range m.items {
		if it.Archived && !m.showArchived {
			continue
		}
		visible = append(visible, it)
	}
	return m.list.SetItems(visible)
}

// View renders the board view.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.err != nil && len(m.items) == 0 {
		return style.Render(theme.ErrorStyle.Render(m.err.Error()))
	}
	if !m.loaded {
		return style.Render("Loading board...")
	}
	if len(m.list.Items()) == 0 && m.list.FilterState() == list.Unfiltered {
		if len(m.items) > 0 {
			return style.Render("Every pulse is in an archived group.\nPress a to show them.")
		}
		return style.Render("This board has no pulses.")
	}
	return m.list.View()
}

// Err returns the last error from building rows or writing a status.
func (m Model) Err() error { return m.err }

// Filtering reports whether the list is capturing keys for its filter.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// Items returns the rows currently shown.
func (m Model) Items() []PulseItem {
	items := m.list.Items()
	out := make([]PulseItem, 0, len(items))
	for _, it := range items {
		if p, ok := it.(PulseItem); ok {
			out = append(out, p)
		}
	}
	return out
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
