package app

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/gopulse/internal/keys"
	"github.com/nhle/gopulse/internal/mirror"
	"github.com/nhle/gopulse/internal/theme"
	"github.com/nhle/gopulse/internal/ui"
	"github.com/nhle/gopulse/internal/ui/boardview"
	"github.com/nhle/gopulse/internal/ui/detail"
	helpview "github.com/nhle/gopulse/internal/ui/help"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
)

// Options configures the board browser.
type Options struct {
	BoardID int64

	// StatusColumn is the status column shown as each pulse's badge.
	// Empty selects the board's first status column.
	StatusColumn string

	// Interval between background syncs.
	Interval time.Duration
}

// Model is the root Bubble Tea model of the board browser. It routes
// between views and feeds mirror results into the pulse list.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	board        boardview.Model
	detail       detail.Model
	helpView     helpview.Model
	spinner      spinner.Model
	mirror       *mirror.Mirror
	opts         Options
	boardName    string
	lastErr      error
	ready        bool
}

// New creates the root model. The mirror is started by Init and stopped
// when the user quits.
func New(m *mirror.Mirror, opts Options) Model {
	k := keys.DefaultKeyMap()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.HelpStyle

	return Model{
		currentView: ViewList,
		keys:        k,
		board:       boardview.New(k, 80, 22),
		detail:      detail.New(k, 80, 22),
		helpView:    helpview.New(k, 80, 22),
		spinner:     sp,
		mirror:      m,
		opts:        opts,
		boardName:   fmt.Sprintf("Board %d", opts.BoardID),
	}
}

// Init starts the mirror loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.mirror.Start(m.opts.BoardID, m.opts.Interval),
		m.spinner.Tick,
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.board.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		return m, nil

	case mirror.ResultMsg:
		waitCmd := m.mirror.WaitForResult()
		if msg.Err != nil {
			m.lastErr = msg.Err
			return m, waitCmd
		}
		m.lastErr = nil
		if msg.Result.Board != nil {
			m.boardName = msg.Result.Board.Name()
		}
		return m, tea.Batch(
			boardview.BuildRows(msg.Result, m.opts.StatusColumn),
			waitCmd,
		)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case boardview.SelectedPulseMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detail.SetLoading(true)
		return m, detail.Load(msg.Pulse, msg.Guard, msg.Columns, msg.GroupTitle)

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case boardview.RowsBuiltMsg:
		if msg.Err == nil {
			m.helpView.SetStatusColumn(msg.StatusColumn)
		}
		var cmd tea.Cmd
		m.board, cmd = m.board.Update(msg)
		return m, cmd

	case boardview.StatusChangedMsg:
		var cmd tea.Cmd
		m.board, cmd = m.board.Update(msg)
		return m, cmd

	case detail.DetailLoadedMsg:
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		// Keys typed into the list filter belong to the list.
		if m.currentView == ViewList && m.board.Filtering() {
			break
		}

		switch {
		case msg.String() == "ctrl+c":
			m.mirror.Stop()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Quit) && m.currentView == ViewList:
			m.mirror.Stop()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Back) && m.currentView == ViewHelp:
			m.currentView = m.previousView
			return m, nil

		case key.Matches(msg, m.keys.Refresh) && m.currentView == ViewList:
			m.mirror.Refresh()
			return m, nil
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.board, cmd = m.board.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := m.boardName
	status := m.mirror.Status()
	if status.State == mirror.StateRunning {
		title = m.spinner.View() + " " + title
	}

	header := m.layout.RenderHeader(title, status)
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.board.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar. Errors take
// the bar while the list is shown.
func (m Model) keyHints() string {
	if m.currentView == ViewList {
		if m.lastErr != nil {
			return theme.ErrorStyle.Render("sync: " + m.lastErr.Error())
		}
		if err := m.board.Err(); err != nil {
			return theme.ErrorStyle.Render(err.Error())
		}
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | j/k scroll"
	default:
		return "q quit | ? help | enter open | s status | r refresh | a archived | / filter"
	}
}
