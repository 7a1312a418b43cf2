package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/gopulse/internal/keys"
	"github.com/nhle/gopulse/internal/theme"
	"github.com/nhle/gopulse/pulse"
)

// section is one headed block of bindings.
type section struct {
	title    string
	bindings []key.Binding
}

// Model is the help overlay of the board browser. Besides the bindings it
// shows the status legend of the board's status column.
type Model struct {
	keys         *keys.KeyMap
	help         help.Model
	statusColumn *pulse.Column
	width        int
	height       int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// SetStatusColumn sets the column whose labels make up the legend. A nil
// column hides the legend.
func (m *Model) SetStatusColumn(c *pulse.Column) {
	m.statusColumn = c
}

func (m Model) sections() []section {
	k := m.keys
	return []section{
		{"Navigate", []key.Binding{k.Up, k.Down, k.Search, k.Back}},
		{"Pulse", []key.Binding{k.Select, k.CycleStatus}},
		{"Board", []key.Binding{k.Refresh, k.ShowArchived, k.Help, k.Quit}},
	}
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	headingStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorGray)

	blocks := []string{titleStyle.Render("Board Browser Keys")}
	m.help.Width = m.width - 4
	for _, s := range m.sections() {
		blocks = append(blocks,
			headingStyle.Render(s.title),
			m.help.ShortHelpView(s.bindings),
			"",
		)
	}
	if legend := m.legend(); legend != "" {
		blocks = append(blocks, headingStyle.Render("Statuses"), legend)
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, blocks...))
}

// legend lists the labeled statuses in the order s cycles through them.
func (m Model) legend() string {
	if m.statusColumn == nil {
		return ""
	}
	labels := m.statusColumn.Labels()
	lines := make([]string, 0, len(labels))
	for _, index := range m.statusColumn.LabelIndices() {
		badge := theme.StatusStyle(index).Render(fmt.Sprintf("%2d", index))
		lines = append(lines, badge+" "+labels[index])
	}
	return strings.Join(lines, "\n")
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
