package pulse

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestGroupWithoutBoardIsReadOnly(t *testing.T) {
	ft := newFake()
	g, err := GroupFromJSON(ft, json.RawMessage(`{"id": "g", "title": "Old"}`))
	if err != nil {
		t.Fatalf("GroupFromJSON: %v", err)
	}

	assertInvalidObject(t, g.EditTitle(context.Background(), "New"))
	assertInvalidObject(t, g.Archive(context.Background()))
	_, err = g.Board(context.Background())
	assertInvalidObject(t, err)
	assertCalls(t, ft, 0)
}

func TestGroupArchiveStaysMutable(t *testing.T) {
	ft := newFake().
		respond(http.MethodDelete, "/boards/1/groups/g.json", `{}`).
		respond(http.MethodPut, "/boards/1/groups/g.json", `[{"id": "g", "color": "#037f4c"}, {"id": "other"}]`)
	g, _ := GroupFromJSON(ft, json.RawMessage(`{"id": "g", "title": "Old", "board_id": 1}`))
	ctx := context.Background()

	if err := g.Archive(ctx); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !g.IsArchived() || g.IsDeleted() {
		t.Errorf("archived=%v deleted=%v", g.IsArchived(), g.IsDeleted())
	}
	if ft.last().params["archive"] != true {
		t.Errorf("params = %v", ft.last().params)
	}

	if err := g.EditTitle(ctx, "New"); err != nil {
		t.Fatalf("EditTitle after archive: %v", err)
	}
	if g.Title() != "New" || g.Color() != "#037f4c" {
		t.Errorf("group = %q %q", g.Title(), g.Color())
	}
}

func TestGroupDeleteIsTerminal(t *testing.T) {
	ft := newFake().respond(http.MethodDelete, "/boards/1/groups/g.json", `{}`)
	g, _ := GroupFromJSON(ft, json.RawMessage(`{"id": "g", "board_id": 1}`))
	ctx := context.Background()

	if err := g.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	assertInvalidObject(t, g.Delete(ctx))
	assertInvalidObject(t, g.EditColor(ctx, "red"))
	assertCalls(t, ft, 1)
}

func TestGroupRemotelyDeleted(t *testing.T) {
	g, _ := GroupFromJSON(newFake(), json.RawMessage(`{"id": "g", "board_id": 1, "deleted": true}`))
	if !g.IsDeleted() {
		t.Fatal("remote deleted flag ignored")
	}
	assertInvalidObject(t, g.EditTitle(context.Background(), "x"))
}

func TestColumnEdits(t *testing.T) {
	ft := newFake().
		respond(http.MethodPut, "/boards/1/columns/status.json", `{}`).
		respond(http.MethodDelete, "/boards/1/columns/status.json", `{}`)
	c, _ := ColumnFromJSON(ft, json.RawMessage(`{"id": "status", "title": "Status", "type": "color", "board_id": 1}`))
	ctx := context.Background()

	if err := c.EditTitle(ctx, "Stage"); err != nil {
		t.Fatalf("EditTitle: %v", err)
	}
	if c.Title() != "Stage" {
		t.Errorf("title = %q", c.Title())
	}

	assertInvalidArgument(t, c.EditLabels(ctx, map[int]string{11: "Nope"}))
	if err := c.EditLabels(ctx, map[int]string{0: "Todo", 6: "Done"}); err != nil {
		t.Fatalf("EditLabels: %v", err)
	}
	if got := c.LabelIndices(); len(got) != 2 || got[0] != 0 || got[1] != 6 {
		t.Errorf("label indices = %v", got)
	}

	if err := c.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	assertInvalidObject(t, c.EditTitle(ctx, "Late"))
	assertCalls(t, ft, 3)
}

func TestTextColumnHasNoLabels(t *testing.T) {
	ft := newFake()
	c, _ := ColumnFromJSON(ft, json.RawMessage(`{"id": "notes", "type": "text", "board_id": 1}`))

	assertInvalidArgument(t, c.EditLabels(context.Background(), map[int]string{0: "x"}))
	assertCalls(t, ft, 0)
}

func TestNoteEditAndDelete(t *testing.T) {
	ft := newFake().
		respond(http.MethodGet, "/pulses/2/notes/5.json", `{"id": 5, "title": "Plan", "content": "v1"}`).
		respond(http.MethodPut, "/pulses/2/notes/5.json", `{"id": 5, "content": "v2 (server)"}`).
		respond(http.MethodDelete, "/pulses/2/notes/5.json", `{}`)
	ctx := context.Background()

	n, err := FetchNote(ctx, ft, 2, 5)
	if err != nil {
		t.Fatalf("FetchNote: %v", err)
	}
	if n.PulseID() != 2 {
		t.Errorf("PulseID = %d, want 2", n.PulseID())
	}

	title, content := "Roadmap", "v2"
	if err := n.Edit(ctx, NoteEdit{Title: &title, Content: &content}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if n.Title() != "Roadmap" || n.Content() != "v2 (server)" {
		t.Errorf("note = %q %q", n.Title(), n.Content())
	}

	if err := n.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	assertInvalidObject(t, n.Delete(ctx))
	assertInvalidObject(t, n.Edit(ctx, NoteEdit{Content: &content}))
	assertCalls(t, ft, 3)
}

func TestNoteEditKeepsSnapshotCurrent(t *testing.T) {
	ft := newFake().respond(http.MethodPut, "/pulses/2/notes/5.json", `{}`)
	n, _ := NoteFromJSON(ft, json.RawMessage(`{"id": 5, "project_id": 2, "title": "Plan", "content": "v1"}`))

	title := "Roadmap"
	if err := n.Edit(context.Background(), NoteEdit{Title: &title}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal(n.JSON(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot["title"] != "Roadmap" || snapshot["content"] != "v1" {
		t.Errorf("snapshot = %v", snapshot)
	}
	if n.Title() != "Roadmap" {
		t.Errorf("title = %q", n.Title())
	}
}

func TestNoteWithoutPulseIsReadOnly(t *testing.T) {
	ft := newFake()
	n, _ := NoteFromJSON(ft, json.RawMessage(`{"id": 5, "title": "Orphan"}`))

	assertInvalidObject(t, n.Delete(context.Background()))
	assertCalls(t, ft, 0)
}

func TestUpdateAuthor(t *testing.T) {
	ft := newFake().respond(http.MethodGet, "/users/7.json", `{"id": 7, "name": "Ada"}`)
	ctx := context.Background()

	embedded, _ := UpdateFromJSON(ft, json.RawMessage(`{"id": 1, "user": {"id": 3, "name": "Lin"}}`))
	author, err := embedded.Author(ctx)
	if err != nil || author.Name() != "Lin" {
		t.Fatalf("embedded author = %v, %v", author, err)
	}
	assertCalls(t, ft, 0)

	byID, _ := UpdateFromJSON(ft, json.RawMessage(`{"id": 2, "user": 7}`))
	first, err := byID.Author(ctx)
	if err != nil || first.Name() != "Ada" {
		t.Fatalf("fetched author = %v, %v", first, err)
	}
	second, _ := byID.Author(ctx)
	if second != first {
		t.Error("author resolved twice")
	}
	assertCalls(t, ft, 1)
}

func TestUpdateRepliesAndWatchers(t *testing.T) {
	ft := newFake().respond(http.MethodGet, "/users/8.json", `{"id": 8, "name": "Grace"}`)
	u, err := UpdateFromJSON(ft, json.RawMessage(`{
		"id": 1,
		"body_text": "Kickoff",
		"created_at": "2024-03-05T10:00:00Z",
		"replies": [{"id": 11, "body_text": "first"}, {"id": 12, "body_text": "second"}],
		"watchers": [{"id": 3, "name": "Lin"}, 8]
	}`))
	if err != nil {
		t.Fatalf("UpdateFromJSON: %v", err)
	}

	replies, err := u.Replies()
	if err != nil || len(replies) != 2 || replies[0].BodyText() != "first" || replies[1].ID() != 12 {
		t.Errorf("replies = %v, %v", replies, err)
	}

	ids, err := u.WatcherIDs()
	if err != nil || len(ids) != 2 || ids[0] != 3 || ids[1] != 8 {
		t.Errorf("watcher ids = %v, %v", ids, err)
	}
	assertCalls(t, ft, 0)

	watchers, err := u.Watchers(context.Background())
	if err != nil || len(watchers) != 2 || watchers[1].Name() != "Grace" {
		t.Errorf("watchers = %v, %v", watchers, err)
	}
	assertCalls(t, ft, 1)

	want := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	if !u.CreatedAt().Equal(want) {
		t.Errorf("CreatedAt = %v", u.CreatedAt())
	}
	if !u.UpdatedAt().IsZero() {
		t.Errorf("UpdatedAt = %v, want zero", u.UpdatedAt())
	}
}

func TestUpdateDeleteAndLike(t *testing.T) {
	ft := newFake().
		respond(http.MethodPost, "/updates/1/like.json", `{}`).
		respond(http.MethodDelete, "/updates/1.json", `{}`)
	u, _ := UpdateFromJSON(ft, json.RawMessage(`{"id": 1}`))
	ctx := context.Background()

	assertInvalidArgument(t, u.Like(ctx, 0))
	if err := u.Like(ctx, 7); err != nil {
		t.Fatalf("Like: %v", err)
	}
	if err := u.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	assertInvalidObject(t, u.Delete(ctx))
	assertInvalidObject(t, u.Unlike(ctx, 7))
	assertCalls(t, ft, 2)
}

func TestUserFeeds(t *testing.T) {
	ft := newFake().
		respond(http.MethodGet, "/users/7.json", `{"id": "7", "name": "Ada", "is_guest": false, "skills": ["go"]}`).
		respond(http.MethodGet, "/users/7/unread_feed.json", `[{"id": 1}, {"id": 2}]`)
	ctx := context.Background()

	u, err := FetchUser(ctx, ft, 7)
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if u.ID() != 7 || len(u.Skills()) != 1 {
		t.Errorf("user = %d skills=%v", u.ID(), u.Skills())
	}

	feed, err := u.UnreadFeed(ctx, PageOptions{PerPage: 2})
	if err != nil || len(feed) != 2 {
		t.Fatalf("UnreadFeed = %v, %v", feed, err)
	}
	if ft.last().params["per_page"] != 2 {
		t.Errorf("params = %v", ft.last().params)
	}
}

func TestUserRefreshReplacesState(t *testing.T) {
	ft := newFake().respond(http.MethodGet, "/users/7.json", `{"id": 7, "name": "Ada L."}`)
	u, _ := UserFromJSON(ft, json.RawMessage(`{"id": 7, "name": "Ada", "title": "CTO"}`))

	if err := u.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if u.Name() != "Ada L." {
		t.Errorf("name = %q", u.Name())
	}
	if string(u.JSON()) != `{"id":7,"name":"Ada L."}` {
		t.Errorf("JSON = %s", u.JSON())
	}
}

func TestTagFetch(t *testing.T) {
	ft := newFake().respond(http.MethodGet, "/tags/4.json", `{"id": 4, "name": "urgent", "color": "red"}`)

	tag, err := FetchTag(context.Background(), ft, 4)
	if err != nil {
		t.Fatalf("FetchTag: %v", err)
	}
	if tag.ID() != 4 || tag.Name() != "urgent" || tag.Color() != "red" {
		t.Errorf("tag = %d %q %q", tag.ID(), tag.Name(), tag.Color())
	}
	assertCalls(t, ft, 1)
}
