package pulse

import (
	"context"
	"encoding/json"
	"fmt"
)

// Board is a collection of pulses organized into groups and described by
// an ordered set of columns.
type Board struct {
	entity
	timestamps

	id          int64
	name        string
	description string
	url         string
	columns     lazyList[*Column]

	// groups is filled from the embedded "groups" snippet merged with the
	// dedicated groups endpoint, once.
	groups        lazyList[*Group]
	groupsFetched bool
}

func (b *Board) fields() fieldTable {
	table := fieldTable{
		"id":          idField(&b.id),
		"name":        stringField(&b.name),
		"description": stringField(&b.description),
		"url":         stringField(&b.url),
		"columns":     lazyListField(&b.columns),
		"groups": func(json.RawMessage) error {
			// A new embedded snippet invalidates the merged view.
			b.groups = lazyList[*Group]{}
			b.groupsFetched = false
			return nil
		},
	}
	b.timestamps.fields(table)
	return table
}

// FetchBoard retrieves a board by id.
func FetchBoard(ctx context.Context, t Transport, id int64) (*Board, error) {
	b := &Board{entity: entity{transport: t}}
	if err := b.fetch(ctx, resourcePath("boards", id), b.fields()); err != nil {
		return nil, fmt.Errorf("fetching board %d: %w", id, err)
	}
	return b, nil
}

// BoardFromJSON builds a board from an already-fetched representation.
func BoardFromJSON(t Transport, raw json.RawMessage) (*Board, error) {
	b := &Board{entity: entity{transport: t}}
	if err := b.hydrate(raw, b.fields()); err != nil {
		return nil, fmt.Errorf("hydrating board: %w", err)
	}
	return b, nil
}

// ListBoardsOptions filters the board listing.
type ListBoardsOptions struct {
	PageOptions
	OnlyGlobals   bool
	OrderByLatest bool
}

// ListBoards retrieves one page of boards.
func ListBoards(
	ctx context.Context,
	t Transport,
	opts ListBoardsOptions,
) ([]*Board, error) {
	params := opts.params()
	if opts.OnlyGlobals {
		params["only_globals"] = true
	}
	if opts.OrderByLatest {
		params["order_by_latest"] = true
	}
	raw, err := t.Get(ctx, "/boards.json", params)
	if err != nil {
		return nil, fmt.Errorf("listing boards: %w", err)
	}
	return decodeList(raw, func(elem json.RawMessage) (*Board, error) {
		return BoardFromJSON(t, elem)
	})
}

// CreateBoard creates a board owned by the given user.
func CreateBoard(
	ctx context.Context,
	t Transport,
	userID int64,
	name string,
	description string,
) (*Board, error) {
	if name == "" {
		return nil, &InvalidArgumentError{Argument: "name", Reason: "must not be empty"}
	}
	raw, err := t.Post(ctx, "/boards.json", Params{
		"user_id":     userID,
		"name":        name,
		"description": description,
	})
	if err != nil {
		return nil, fmt.Errorf("creating board %q: %w", name, err)
	}
	return BoardFromJSON(t, raw)
}

func (b *Board) ID() int64           { return b.id }
func (b *Board) Name() string        { return b.name }
func (b *Board) Description() string { return b.description }
func (b *Board) URL() string         { return b.url }

func (b *Board) path() string {
	return resourcePath("boards", b.id)
}

// Columns returns the board's columns in board order. Each column carries
// the board id as its back-reference.
func (b *Board) Columns() ([]*Column, error) {
	if !b.columns.resolved {
		if err := b.columns.inject(map[string]any{"board_id": b.id}); err != nil {
			return nil, err
		}
	}
	return b.columns.load(func(raw json.RawMessage) (*Column, error) {
		return ColumnFromJSON(b.transport, raw)
	})
}

// columnTypes maps column id to column type.
func (b *Board) columnTypes() (map[string]ColumnType, error) {
	columns, err := b.Columns()
	if err != nil {
		return nil, err
	}
	types := make(map[string]ColumnType, len(columns))
	for _, c := range columns {
		types[c.ID()] = c.Type()
	}
	return types, nil
}

// Groups returns the board's groups. The first call merges the groups
// embedded in the board with those from the dedicated groups endpoint,
// the latter winning on conflicting keys; later calls reuse that result.
// Archived groups are included only when showArchived is set.
func (b *Board) Groups(ctx context.Context, showArchived bool) ([]*Group, error) {
	if !b.groupsFetched {
		if err := b.fetchGroups(ctx); err != nil {
			return nil, err
		}
	}

	groups, err := b.groups.load(func(raw json.RawMessage) (*Group, error) {
		return GroupFromJSON(b.transport, raw)
	})
	if err != nil {
		return nil, err
	}
	if showArchived {
		return groups, nil
	}

	visible := make([]*Group, 0, len(groups))
	for _, g := range groups {
		if !g.IsArchived() {
			visible = append(visible, g)
		}
	}
	return visible, nil
}

func (b *Board) fetchGroups(ctx context.Context) error {
	path := fmt.Sprintf("/boards/%d/groups.json", b.id)
	dedicated, err := b.transport.Get(ctx, path, Params{"show_archived": true})
	if err != nil {
		return fmt.Errorf("fetching groups of board %d: %w", b.id, err)
	}

	merged, err := mergeByID(b.field("groups"), dedicated)
	if err != nil {
		return fmt.Errorf("merging groups of board %d: %w", b.id, err)
	}
	b.groups.set(merged)
	if err := b.groups.inject(map[string]any{"board_id": b.id}); err != nil {
		return err
	}
	b.groupsFetched = true
	return nil
}

// mergeByID merges two JSON arrays of objects by their "id" member. Keys
// from the second array overwrite keys from the first; order of first
// appearance is kept.
func mergeByID(first, second json.RawMessage) (json.RawMessage, error) {
	var order []string
	byID := make(map[string]map[string]json.RawMessage)

	for _, raw := range []json.RawMessage{first, second} {
		if isNull(raw) {
			continue
		}
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		for _, obj := range list {
			var id string
			if err := stringField(&id)(obj["id"]); err != nil {
				return nil, err
			}
			existing, ok := byID[id]
			if !ok {
				order = append(order, id)
				byID[id] = obj
				continue
			}
			for k, v := range obj {
				existing[k] = v
			}
		}
	}

	out := make([]map[string]json.RawMessage, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return json.Marshal(out)
}

// Pulses retrieves one page of the board's pulses. Each pulse carries its
// column values together with the board's column types.
func (b *Board) Pulses(ctx context.Context, opts PageOptions) ([]*Pulse, error) {
	types, err := b.columnTypes()
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/boards/%d/pulses.json", b.id)
	raw, err := b.transport.Get(ctx, path, opts.params())
	if err != nil {
		return nil, fmt.Errorf("fetching pulses of board %d: %w", b.id, err)
	}
	var list lazyList[*Pulse]
	list.set(raw)
	if err := list.inject(map[string]any{"board_id": b.id}); err != nil {
		return nil, err
	}
	return list.load(func(elem json.RawMessage) (*Pulse, error) {
		p, err := PulseFromJSON(b.transport, elem)
		if err != nil {
			return nil, err
		}
		p.setColumnTypes(types)
		return p, nil
	})
}

// CreateColumn adds a column to the board. Labels apply to status columns
// only and are assigned indices in order.
func (b *Board) CreateColumn(
	ctx context.Context,
	title string,
	columnType ColumnType,
	labels []string,
) (*Column, error) {
	if err := b.checkLive("board"); err != nil {
		return nil, err
	}
	ct, err := ParseColumnType(string(columnType))
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, &InvalidArgumentError{Argument: "title", Reason: "must not be empty"}
	}
	if len(labels) > 0 && ct != ColumnStatus {
		return nil, &InvalidArgumentError{Argument: "labels", Reason: "only status columns have labels"}
	}

	params := Params{"title": title, "type": string(ct)}
	if len(labels) > 0 {
		params["labels"] = labels
	}
	path := fmt.Sprintf("/boards/%d/columns.json", b.id)
	raw, err := b.transport.Post(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("creating column %q on board %d: %w", title, b.id, err)
	}

	// The API echoes the whole board; pick the new column out of it.
	if err := b.merge(raw, b.fields()); err != nil {
		return nil, err
	}
	columns, err := b.Columns()
	if err != nil {
		return nil, err
	}
	for i := len(columns) - 1; i >= 0; i-- {
		if columns[i].Title() == title {
			return columns[i], nil
		}
	}
	return nil, fmt.Errorf("column %q missing from board %d response", title, b.id)
}

// CreateGroup adds a group to the board.
func (b *Board) CreateGroup(ctx context.Context, title string) (*Group, error) {
	if err := b.checkLive("board"); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, &InvalidArgumentError{Argument: "title", Reason: "must not be empty"}
	}
	path := fmt.Sprintf("/boards/%d/groups.json", b.id)
	raw, err := b.transport.Post(ctx, path, Params{"title": title})
	if err != nil {
		return nil, fmt.Errorf("creating group %q on board %d: %w", title, b.id, err)
	}

	created, err := pickByTitle(raw, title)
	if err != nil {
		return nil, err
	}
	created, err = injectInto(created, map[string]any{"board_id": b.id})
	if err != nil {
		return nil, err
	}
	g, err := GroupFromJSON(b.transport, created)
	if err != nil {
		return nil, err
	}
	if b.groupsFetched && b.groups.resolved {
		b.groups.store(append(b.groups.values, g))
	}
	return g, nil
}

// pickByTitle returns the response object whose title matches, taking the
// last match when the response is a list.
func pickByTitle(raw json.RawMessage, title string) (json.RawMessage, error) {
	if isObject(raw) {
		return raw, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	for i := len(list) - 1; i >= 0; i-- {
		var obj struct {
			Title string `json:"title"`
		}
		if json.Unmarshal(list[i], &obj) == nil && obj.Title == title {
			return list[i], nil
		}
	}
	return nil, fmt.Errorf("%q missing from response", title)
}

// DeleteGroup deletes a group of this board by id.
func (b *Board) DeleteGroup(ctx context.Context, groupID string) error {
	if err := b.checkLive("board"); err != nil {
		return err
	}
	path := fmt.Sprintf("/boards/%d/groups/%s.json", b.id, groupID)
	if _, err := b.transport.Delete(ctx, path, nil); err != nil {
		return fmt.Errorf("deleting group %s of board %d: %w", groupID, b.id, err)
	}

	if b.groupsFetched && b.groups.resolved {
		kept := make([]*Group, 0, len(b.groups.values))
		for _, g := range b.groups.values {
			if g.ID() == groupID {
				g.deleted = true
				continue
			}
			kept = append(kept, g)
		}
		b.groups.store(kept)
	}
	return nil
}

// NewPulse describes a pulse to create.
type NewPulse struct {
	Name     string
	UserID   int64
	GroupID  string
	Update   string
	Announce bool
}

// CreatePulse adds a pulse to the board.
func (b *Board) CreatePulse(ctx context.Context, np NewPulse) (*Pulse, error) {
	if err := b.checkLive("board"); err != nil {
		return nil, err
	}
	if np.Name == "" {
		return nil, &InvalidArgumentError{Argument: "name", Reason: "must not be empty"}
	}
	if np.UserID <= 0 {
		return nil, &InvalidArgumentError{Argument: "userID", Reason: "must be positive"}
	}

	params := Params{
		"user_id": np.UserID,
		"pulse":   Params{"name": np.Name},
	}
	if np.GroupID != "" {
		params["group_id"] = np.GroupID
	}
	if np.Update != "" {
		params["update"] = Params{"text": np.Update}
		params["announcement"] = np.Announce
	}

	path := fmt.Sprintf("/boards/%d/pulses.json", b.id)
	raw, err := b.transport.Post(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("creating pulse %q on board %d: %w", np.Name, b.id, err)
	}
	raw, err = injectInto(raw, map[string]any{"board_id": b.id})
	if err != nil {
		return nil, err
	}
	p, err := PulseFromJSON(b.transport, raw)
	if err != nil {
		return nil, err
	}
	if types, err := b.columnTypes(); err == nil {
		p.setColumnTypes(types)
	}
	return p, nil
}

// BoardEdit holds the board attributes to change. Nil fields are left
// untouched.
type BoardEdit struct {
	UserID      int64
	Name        *string
	Description *string
}

// Edit updates the board and merges the echoed board into local state.
func (b *Board) Edit(ctx context.Context, edit BoardEdit) error {
	if err := b.checkLive("board"); err != nil {
		return err
	}
	params := Params{"user_id": edit.UserID}
	if edit.Name != nil {
		if *edit.Name == "" {
			return &InvalidArgumentError{Argument: "name", Reason: "must not be empty"}
		}
		params["name"] = *edit.Name
	}
	if edit.Description != nil {
		params["description"] = *edit.Description
	}

	raw, err := b.transport.Put(ctx, b.path(), params)
	if err != nil {
		return fmt.Errorf("editing board %d: %w", b.id, err)
	}

	local := map[string]any{}
	if edit.Name != nil {
		local["name"] = *edit.Name
	}
	if edit.Description != nil {
		local["description"] = *edit.Description
	}
	encoded, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("encoding board edit: %w", err)
	}
	if err := b.merge(encoded, b.fields()); err != nil {
		return err
	}
	return b.merge(findEcho(raw, fmt.Sprint(b.id)), b.fields())
}

// Archive archives the board. The handle cannot be used for changes
// afterwards.
func (b *Board) Archive(ctx context.Context, userID int64) error {
	if err := b.checkLive("board"); err != nil {
		return err
	}
	if _, err := b.transport.Delete(ctx, b.path(), Params{"user_id": userID}); err != nil {
		return fmt.Errorf("archiving board %d: %w", b.id, err)
	}
	b.deleted = true
	return nil
}

// Refresh re-fetches the board, discarding resolved columns and groups.
func (b *Board) Refresh(ctx context.Context) error {
	b.columns = lazyList[*Column]{}
	b.groups = lazyList[*Group]{}
	b.groupsFetched = false
	if err := b.fetch(ctx, b.path(), b.fields()); err != nil {
		return fmt.Errorf("refreshing board %d: %w", b.id, err)
	}
	return nil
}
