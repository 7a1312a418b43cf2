package boardview

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/gopulse/internal/theme"
	"github.com/nhle/gopulse/pulse"
)

// PulseItem is the display row of one pulse. Everything but Pulse is
// resolved when the rows are built so rendering never touches the network.
// Commands that use Pulse hold guard.
type PulseItem struct {
	Pulse *pulse.Pulse
	guard *sync.Mutex

	Name       string
	GroupID    string
	GroupTitle string
	GroupColor string
	Archived   bool

	HasStatus   bool
	Status      int
	StatusLabel string

	UpdatedAt time.Time
}

// FilterValue returns the string used for fuzzy filtering.
func (i PulseItem) FilterValue() string {
	return i.Name + " " + i.GroupTitle + " " + i.StatusLabel
}

// Title returns the pulse name for the list.
func (i PulseItem) Title() string { return i.Name }

// Description returns a short summary line for the list.
func (i PulseItem) Description() string {
	var parts []string
	if i.GroupTitle != "" {
		parts = append(parts, i.GroupTitle)
	}
	if i.HasStatus {
		parts = append(parts, i.StatusLabel)
	}
	if rt := relativeTime(i.UpdatedAt); rt != "" {
		parts = append(parts, rt)
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering pulse rows.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single pulse row: status badge, group, name and age.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(PulseItem)
	if !ok {
		return
	}

	statusBadge := theme.DimmedStyle.Render("·")
	if it.HasStatus {
		statusBadge = theme.StatusStyle(it.Status).Render("● " + it.StatusLabel)
	}

	group := ""
	if it.GroupTitle != "" {
		group = theme.GroupStyle(it.GroupColor).Render("[" + it.GroupTitle + "]")
	}

	timeStr := theme.DimmedStyle.Render(relativeTime(it.UpdatedAt))

	line := fmt.Sprintf("%s %s %s  %s", statusBadge, group, it.Name, timeStr)

	if it.Archived {
		line = theme.DimmedStyle.Render(line)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
