package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/gopulse/internal/mirror"
	"github.com/nhle/gopulse/internal/testutil"
	"github.com/nhle/gopulse/internal/ui/boardview"
)

func newTestModel(t *testing.T) (Model, mirror.Result) {
	t.Helper()
	ft := testutil.NewFakeTransport()
	ft.Respond(http.MethodGet, "/boards/4.json", `{
		"id": 4,
		"name": "Launch",
		"columns": [{"id": "status", "title": "Status", "type": "color", "labels": ["Open", "Done"]}]
	}`)
	ft.Respond(http.MethodGet, "/boards/4/groups.json", `[{"id": "g", "title": "Now"}]`)
	ft.Respond(http.MethodGet, "/boards/4/pulses.json", `[
		{"pulse": {"id": 40, "name": "Press kit"}, "board_meta": {"group_id": "g"},
		 "column_values": [{"cid": "status", "value": {"index": 0}}]}
	]`)

	mr := mirror.New(ft, nil, nil)
	result, err := mr.Sync(context.Background(), 4)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	m := New(mr, Options{BoardID: 4})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model), result
}

func TestResultPopulatesBoard(t *testing.T) {
	m, result := newTestModel(t)

	updated, cmd := m.Update(mirror.ResultMsg{BoardID: 4, Result: result})
	if cmd == nil {
		t.Fatal("ResultMsg returned no command")
	}
	m = updated.(Model)
	if m.boardName != "Launch" {
		t.Errorf("boardName = %q", m.boardName)
	}

	updated, _ = m.Update(boardview.BuildRows(result, "")())
	view := updated.(Model).View()
	if !strings.Contains(view, "Press kit") || !strings.Contains(view, "Open") {
		t.Errorf("view missing pulse row:\n%s", view)
	}
}

func TestSyncErrorShownInStatusBar(t *testing.T) {
	m, _ := newTestModel(t)

	updated, _ := m.Update(mirror.ResultMsg{BoardID: 4, Err: errors.New("connection refused")})
	if view := updated.(Model).View(); !strings.Contains(view, "connection refused") {
		t.Errorf("view missing sync error:\n%s", view)
	}
}

func TestHelpToggle(t *testing.T) {
	m, _ := newTestModel(t)
	help := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")}

	updated, _ := m.Update(help)
	m = updated.(Model)
	if m.currentView != ViewHelp {
		t.Fatalf("view = %v, want help", m.currentView)
	}
	if !strings.Contains(m.View(), "Board Browser Keys") {
		t.Error("help overlay not rendered")
	}

	updated, _ = m.Update(help)
	if updated.(Model).currentView != ViewList {
		t.Error("second ? did not close help")
	}
}

func TestHelpShowsBoardStatuses(t *testing.T) {
	m, result := newTestModel(t)
	updated, _ := m.Update(boardview.BuildRows(result, "")())
	updated, _ = updated.(Model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})

	view := updated.(Model).View()
	for _, want := range []string{"Statuses", "Open", "Done"} {
		if !strings.Contains(view, want) {
			t.Errorf("help view missing %q:\n%s", want, view)
		}
	}
}

func TestQuitStopsMirror(t *testing.T) {
	m, _ := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
