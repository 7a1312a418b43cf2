package detail

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/gopulse/internal/keys"
	"github.com/nhle/gopulse/internal/theme"
	"github.com/nhle/gopulse/pulse"
)

// loadTimeout bounds the requests made while loading one pulse.
const loadTimeout = 20 * time.Second

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Field is one rendered column of a pulse.
type Field struct {
	Title string
	Value string
}

// PulseDetail is the display form of a pulse, resolved off the UI loop.
type PulseDetail struct {
	ID        int64
	Name      string
	Group     string
	URL       string
	Updates   int
	UpdatedAt time.Time
	Fields    []Field
	Notes     []string
}

// DetailLoadedMsg carries the loaded pulse detail.
type DetailLoadedMsg struct {
	Detail *PulseDetail
	Err    error
}

// Load returns a tea.Cmd that resolves every column value and the notes
// of p. guard, when set, is held while p is in use.
func Load(p *pulse.Pulse, guard sync.Locker, columns []*pulse.Column, groupTitle string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		if guard != nil {
			guard.Lock()
			defer guard.Unlock()
		}

		d, err := Resolve(ctx, p, columns, groupTitle)
		return DetailLoadedMsg{Detail: d, Err: err}
	}
}

// Resolve builds the PulseDetail of p. Columns whose value cannot be read
// are shown with the error instead of failing the whole pulse.
func Resolve(
	ctx context.Context,
	p *pulse.Pulse,
	columns []*pulse.Column,
	groupTitle string,
) (*PulseDetail, error) {
	d := &PulseDetail{
		ID:        p.ID(),
		Name:      p.Name(),
		Group:     groupTitle,
		URL:       p.URL(),
		Updates:   p.UpdatesCount(),
		UpdatedAt: p.UpdatedAt(),
	}

	for _, c := range columns {
		if _, err := pulse.ParseColumnType(string(c.Type())); err != nil {
			// The name column and other unsupported types.
			continue
		}
		cv, err := p.Column(ctx, c.ID())
		if err != nil {
			d.Fields = append(d.Fields, Field{Title: c.Title(), Value: "error: " + err.Error()})
			continue
		}
		d.Fields = append(d.Fields, Field{Title: c.Title(), Value: Describe(ctx, cv, c)})
	}

	notes, err := p.Notes(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		d.Notes = append(d.Notes, n.Title())
	}
	return d, nil
}

// Describe renders a column value as one line of text.
func Describe(ctx context.Context, cv pulse.ColumnValue, c *pulse.Column) string {
	switch v := cv.(type) {
	case *pulse.TextValue:
		s, err := v.Value()
		return orError(s, err)
	case *pulse.NumericValue:
		n, err := v.Value()
		if err != nil || n == nil {
			return orError("", err)
		}
		return fmt.Sprintf("%g", *n)
	case *pulse.DateValue:
		t, err := v.Value()
		if err != nil || t == nil {
			return orError("", err)
		}
		return t.Format("2006-01-02")
	case *pulse.StatusValue:
		index, err := v.Value()
		if err != nil {
			return orError("", err)
		}
		return StatusLabel(c, index)
	case *pulse.PersonValue:
		u, err := v.Value(ctx)
		if err != nil || u == nil {
			return orError("", err)
		}
		if u.Name() == "" {
			return fmt.Sprintf("user %d", u.ID())
		}
		return u.Name()
	case *pulse.TimelineValue:
		tl, err := v.Value()
		if err != nil || tl == nil {
			return orError("", err)
		}
		return tl.From.Format("2006-01-02") + " → " + tl.To.Format("2006-01-02")
	case *pulse.TagValue:
		tags, err := v.Value(ctx)
		if err != nil {
			return orError("", err)
		}
		names := make([]string, 0, len(tags))
		for _, t := range tags {
			if t.Name() != "" {
				names = append(names, t.Name())
			} else {
				names = append(names, fmt.Sprintf("#%d", t.ID()))
			}
		}
		return strings.Join(names, ", ")
	default:
		return ""
	}
}

// StatusLabel returns the column's label for a status index, or the bare
// index when the column has none.
func StatusLabel(c *pulse.Column, index int) string {
	if c != nil {
		if label, ok := c.Labels()[index]; ok && label != "" {
			return label
		}
	}
	return fmt.Sprintf("status %d", index)
}

func orError(s string, err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	if s == "" {
		return "-"
	}
	return s
}

// Model is the pulse detail view component.
type Model struct {
	pulse    *PulseDetail
	err      error
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case DetailLoadedMsg:
		m.pulse = msg.Detail
		m.err = msg.Err
		m.loading = false
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg {
				return BackMsg{}
			}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	centered := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading:
		return centered.Render("Loading pulse...")
	case m.err != nil:
		return centered.Render(theme.ErrorStyle.Render(m.err.Error()))
	case m.pulse == nil:
		return centered.Render("No pulse selected")
	}
	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.pulse == nil {
		return ""
	}

	p := m.pulse
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(p.Name))
	sections = append(sections, theme.DimmedStyle.Render(fmt.Sprintf("#%d", p.ID)))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	meta := func(label, value string) {
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render(fmt.Sprintf("%-12s", label+":")),
			valStyle.Render(value),
		))
	}

	if p.Group != "" {
		meta("Group", p.Group)
	}
	meta("Updates", fmt.Sprintf("%d", p.Updates))
	if !p.UpdatedAt.IsZero() {
		meta("Updated", p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	if p.URL != "" {
		meta("URL", p.URL)
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite)

	sections = append(sections, headerStyle.Render("Columns"))
	for _, f := range p.Fields {
		meta(f.Title, f.Value)
	}

	if len(p.Notes) > 0 {
		sections = append(sections, "", separator, "")
		sections = append(sections, headerStyle.Render(
			fmt.Sprintf("Notes (%d)", len(p.Notes)),
		))
		for _, n := range p.Notes {
			sections = append(sections, "• "+n)
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}
