package pulse

import (
	"context"
	"encoding/json"
	"fmt"
)

// Pulse is a row of a board: the unit of work tracked by the API.
//
// Column values are resolved from two pieces of state: the raw per-column
// values reported for this pulse and the column types of the owning board.
// Each resolved ColumnValue is cached by column id. Replacing the raw
// values wholesale clears the cache; updating one column leaves the other
// cached values alone.
type Pulse struct {
	entity
	timestamps

	id           int64
	name         string
	url          string
	boardID      int64
	groupID      string
	updatesCount int
	subscribers  lazyList[*User]

	columnValues map[string]json.RawMessage
	columnTypes  map[string]ColumnType
	columnCache  map[string]ColumnValue
}

func (p *Pulse) fields() fieldTable {
	table := fieldTable{
		"id":            idField(&p.id),
		"name":          stringField(&p.name),
		"url":           stringField(&p.url),
		"board_id":      idField(&p.boardID),
		"group_id":      stringField(&p.groupID),
		"updates_count": intField(&p.updatesCount),
		"subscribers":   lazyListField(&p.subscribers),
		"column_values": p.decodeColumnValues,
	}
	p.timestamps.fields(table)
	return table
}

// FetchPulse retrieves a pulse by id.
func FetchPulse(ctx context.Context, t Transport, id int64) (*Pulse, error) {
	p := &Pulse{entity: entity{transport: t}}
	if err := p.fetch(ctx, resourcePath("pulses", id), p.fields()); err != nil {
		return nil, fmt.Errorf("fetching pulse %d: %w", id, err)
	}
	return p, nil
}

// PulseFromJSON builds a pulse from an already-fetched representation.
// Both the plain pulse object and the board listing shape
// ({"pulse": {...}, "board_meta": {...}, "column_values": [...]}) are
// accepted.
func PulseFromJSON(t Transport, raw json.RawMessage) (*Pulse, error) {
	flat, err := flattenListing(raw)
	if err != nil {
		return nil, fmt.Errorf("hydrating pulse: %w", err)
	}
	p := &Pulse{entity: entity{transport: t}}
	if err := p.hydrate(flat, p.fields()); err != nil {
		return nil, fmt.Errorf("hydrating pulse: %w", err)
	}
	return p, nil
}

// ListPulses retrieves one page of pulses across all boards.
func ListPulses(ctx context.Context, t Transport, opts PageOptions) ([]*Pulse, error) {
	raw, err := t.Get(ctx, "/pulses.json", opts.params())
	if err != nil {
		return nil, fmt.Errorf("listing pulses: %w", err)
	}
	return decodeList(raw, func(elem json.RawMessage) (*Pulse, error) {
		return PulseFromJSON(t, elem)
	})
}

// flattenListing folds the listing wrapper into a single pulse object.
// Keys of the inner pulse take precedence over the wrapper's.
func flattenListing(raw json.RawMessage) (json.RawMessage, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	inner, ok := obj["pulse"]
	if !ok || !isObject(inner) {
		return raw, nil
	}

	flat, err := decodeObject(inner)
	if err != nil {
		return nil, err
	}
	if meta, ok := obj["board_meta"]; ok && isObject(meta) {
		metaObj, err := decodeObject(meta)
		if err != nil {
			return nil, err
		}
		if groupID, ok := metaObj["group_id"]; ok {
			if _, set := flat["group_id"]; !set {
				flat["group_id"] = groupID
			}
		}
	}
	for k, v := range obj {
		if k == "pulse" || k == "board_meta" {
			continue
		}
		if _, set := flat[k]; !set {
			flat[k] = v
		}
	}
	return json.Marshal(flat)
}

// decodeColumnValues replaces the raw per-column values and clears the
// resolved cache. Values arrive either as a list of objects carrying
// "cid" or as an object keyed by column id.
func (p *Pulse) decodeColumnValues(raw json.RawMessage) error {
	values := make(map[string]json.RawMessage)
	if !isNull(raw) {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err == nil {
			for _, elem := range list {
				var ref struct {
					CID string `json:"cid"`
				}
				if err := json.Unmarshal(elem, &ref); err != nil {
					return err
				}
				values[ref.CID] = elem
			}
		} else {
			var keyed map[string]json.RawMessage
			if err := json.Unmarshal(raw, &keyed); err != nil {
				return err
			}
			for cid, elem := range keyed {
				values[cid] = elem
			}
		}
	}
	p.columnValues = values
	p.columnCache = nil
	return nil
}

func (p *Pulse) setColumnTypes(types map[string]ColumnType) {
	p.columnTypes = types
}

func (p *Pulse) ID() int64         { return p.id }
func (p *Pulse) Name() string      { return p.name }
func (p *Pulse) URL() string       { return p.url }
func (p *Pulse) BoardID() int64    { return p.boardID }
func (p *Pulse) GroupID() string   { return p.groupID }
func (p *Pulse) UpdatesCount() int { return p.updatesCount }

func (p *Pulse) path() string {
	return resourcePath("pulses", p.id)
}

func (p *Pulse) checkBoard() error {
	if p.boardID == 0 {
		return &InvalidObjectError{Object: "pulse", Reason: "no board id"}
	}
	return nil
}

// Board fetches the board this pulse belongs to.
func (p *Pulse) Board(ctx context.Context) (*Board, error) {
	if err := p.checkBoard(); err != nil {
		return nil, err
	}
	return FetchBoard(ctx, p.transport, p.boardID)
}

// Group fetches the group this pulse belongs to.
func (p *Pulse) Group(ctx context.Context) (*Group, error) {
	board, err := p.Board(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := board.Groups(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.ID() == p.groupID {
			return g, nil
		}
	}
	return nil, fmt.Errorf("group %q not found on board %d", p.groupID, p.boardID)
}

// Column resolves the value of a column using the board's column type.
// The board's columns are fetched once when the type is not yet known.
func (p *Pulse) Column(ctx context.Context, columnID string) (ColumnValue, error) {
	if err := p.checkLive("pulse"); err != nil {
		return nil, err
	}
	if cv, ok := p.columnCache[columnID]; ok {
		return cv, nil
	}

	ct, ok := p.columnTypes[columnID]
	if !ok {
		board, err := p.Board(ctx)
		if err != nil {
			return nil, err
		}
		types, err := board.columnTypes()
		if err != nil {
			return nil, err
		}
		p.columnTypes = types
		if ct, ok = types[columnID]; !ok {
			return nil, &InvalidArgumentError{
				Argument: "columnID",
				Reason:   fmt.Sprintf("board %d has no column %q", p.boardID, columnID),
			}
		}
	}
	return p.columnValue(ctx, columnID, ct)
}

// columnValue returns the cached value for a column, building it from the
// raw column data (fetched when absent) on first access.
func (p *Pulse) columnValue(
	ctx context.Context,
	columnID string,
	ct ColumnType,
) (ColumnValue, error) {
	if err := p.checkLive("pulse"); err != nil {
		return nil, err
	}
	if cv, ok := p.columnCache[columnID]; ok {
		if cv.Type() != ct {
			return nil, &InvalidArgumentError{
				Argument: "columnID",
				Reason:   fmt.Sprintf("column %q is %s, not %s", columnID, cv.Type(), ct),
			}
		}
		return cv, nil
	}

	if err := p.checkBoard(); err != nil {
		return nil, err
	}

	raw, ok := p.columnValues[columnID]
	if !ok {
		path := fmt.Sprintf("/boards/%d/columns/%s/value.json", p.boardID, columnID)
		fetched, err := p.transport.Get(ctx, path, Params{"pulse_id": p.id})
		if err != nil {
			return nil, fmt.Errorf(
				"fetching column %s of pulse %d: %w", columnID, p.id, err,
			)
		}
		raw = wrapColumnValue(fetched)
		if p.columnValues == nil {
			p.columnValues = make(map[string]json.RawMessage)
		}
		p.columnValues[columnID] = raw
	}

	if isNull(raw) {
		raw = json.RawMessage("{}")
	}
	raw, err := injectInto(raw, map[string]any{
		"board_id":  p.boardID,
		"pulse_id":  p.id,
		"column_id": columnID,
	})
	if err != nil {
		return nil, err
	}

	cv, err := NewColumnValue(p.transport, ct, raw)
	if err != nil {
		return nil, err
	}
	cv.bindOwner(&p.entity)
	if p.columnCache == nil {
		p.columnCache = make(map[string]ColumnValue)
	}
	p.columnCache[columnID] = cv
	return cv, nil
}

// wrapColumnValue accepts the value endpoint's response either as column
// data carrying "value" or as the bare value, and returns column data.
func wrapColumnValue(raw json.RawMessage) json.RawMessage {
	if isObject(raw) {
		if obj, err := decodeObject(raw); err == nil {
			if _, ok := obj["value"]; ok {
				return raw
			}
		}
	}
	if isNull(raw) {
		return json.RawMessage("{}")
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{"value": raw})
	if err != nil {
		return json.RawMessage("{}")
	}
	return wrapped
}

func typedColumn[T ColumnValue](
	ctx context.Context,
	p *Pulse,
	columnID string,
	ct ColumnType,
) (T, error) {
	var zero T
	cv, err := p.columnValue(ctx, columnID, ct)
	if err != nil {
		return zero, err
	}
	v, ok := cv.(T)
	if !ok {
		return zero, &InvalidArgumentError{
			Argument: "columnID",
			Reason:   fmt.Sprintf("column %q is %s", columnID, cv.Type()),
		}
	}
	return v, nil
}

// TextColumn returns the text column with the given id.
func (p *Pulse) TextColumn(ctx context.Context, columnID string) (*TextValue, error) {
	return typedColumn[*TextValue](ctx, p, columnID, ColumnText)
}

// NumericColumn returns the numeric column with the given id.
func (p *Pulse) NumericColumn(ctx context.Context, columnID string) (*NumericValue, error) {
	return typedColumn[*NumericValue](ctx, p, columnID, ColumnNumeric)
}

// DateColumn returns the date column with the given id.
func (p *Pulse) DateColumn(ctx context.Context, columnID string) (*DateValue, error) {
	return typedColumn[*DateValue](ctx, p, columnID, ColumnDate)
}

// StatusColumn returns the status column with the given id.
func (p *Pulse) StatusColumn(ctx context.Context, columnID string) (*StatusValue, error) {
	return typedColumn[*StatusValue](ctx, p, columnID, ColumnStatus)
}

// PersonColumn returns the person column with the given id.
func (p *Pulse) PersonColumn(ctx context.Context, columnID string) (*PersonValue, error) {
	return typedColumn[*PersonValue](ctx, p, columnID, ColumnPerson)
}

// TimelineColumn returns the timeline column with the given id.
func (p *Pulse) TimelineColumn(ctx context.Context, columnID string) (*TimelineValue, error) {
	return typedColumn[*TimelineValue](ctx, p, columnID, ColumnTimeline)
}

// TagColumn returns the tag column with the given id.
func (p *Pulse) TagColumn(ctx context.Context, columnID string) (*TagValue, error) {
	return typedColumn[*TagValue](ctx, p, columnID, ColumnTag)
}

// EditName renames the pulse.
func (p *Pulse) EditName(ctx context.Context, name string) error {
	if name == "" {
		return &InvalidArgumentError{Argument: "name", Reason: "must not be empty"}
	}
	return p.edit(ctx, Params{"name": name})
}

// MoveToGroup moves the pulse to another group of its board.
func (p *Pulse) MoveToGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return &InvalidArgumentError{Argument: "groupID", Reason: "must not be empty"}
	}
	return p.edit(ctx, Params{"group_id": groupID})
}

func (p *Pulse) edit(ctx context.Context, params Params) error {
	if err := p.checkLive("pulse"); err != nil {
		return err
	}
	raw, err := p.transport.Put(ctx, p.path(), params)
	if err != nil {
		return fmt.Errorf("editing pulse %d: %w", p.id, err)
	}
	local, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding pulse edit: %w", err)
	}
	if err := p.merge(local, p.fields()); err != nil {
		return err
	}
	flat, err := flattenListing(raw)
	if err != nil || !isObject(flat) {
		return nil
	}
	return p.merge(flat, p.fields())
}

// Archive archives the pulse. The handle cannot be used for changes
// afterwards.
func (p *Pulse) Archive(ctx context.Context) error {
	return p.remove(ctx, "archiving", Params{"archive": true})
}

// Delete deletes the pulse. The handle cannot be used for changes
// afterwards.
func (p *Pulse) Delete(ctx context.Context) error {
	return p.remove(ctx, "deleting", nil)
}

func (p *Pulse) remove(ctx context.Context, verb string, params Params) error {
	if err := p.checkLive("pulse"); err != nil {
		return err
	}
	if _, err := p.transport.Delete(ctx, p.path(), params); err != nil {
		return fmt.Errorf("%s pulse %d: %w", verb, p.id, err)
	}
	p.deleted = true
	return nil
}

// Duplicate copies the pulse into a group of the same board. The copy
// shares this pulse's column types.
func (p *Pulse) Duplicate(
	ctx context.Context,
	groupID string,
	ownerID int64,
) (*Pulse, error) {
	if err := p.checkLive("pulse"); err != nil {
		return nil, err
	}
	if err := p.checkBoard(); err != nil {
		return nil, err
	}
	params := Params{}
	if groupID != "" {
		params["group_id"] = groupID
	}
	if ownerID > 0 {
		params["owner_id"] = ownerID
	}
	path := fmt.Sprintf("/boards/%d/pulses/%d/duplicate.json", p.boardID, p.id)
	raw, err := p.transport.Post(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("duplicating pulse %d: %w", p.id, err)
	}
	dup, err := PulseFromJSON(p.transport, raw)
	if err != nil {
		return nil, err
	}
	if dup.boardID == 0 {
		dup.boardID = p.boardID
	}
	dup.setColumnTypes(p.columnTypes)
	return dup, nil
}

// Subscribers returns the users subscribed to the pulse. Subscribers
// embedded in the pulse are used when present; otherwise they are fetched
// once.
func (p *Pulse) Subscribers(ctx context.Context) ([]*User, error) {
	if !p.subscribers.present() {
		path := fmt.Sprintf("/pulses/%d/subscribers.json", p.id)
		raw, err := p.transport.Get(ctx, path, nil)
		if err != nil {
			return nil, fmt.Errorf("fetching subscribers of pulse %d: %w", p.id, err)
		}
		p.subscribers.set(raw)
	}
	return p.subscribers.load(func(raw json.RawMessage) (*User, error) {
		return resolveUser(ctx, p.transport, raw)
	})
}

// AddSubscriber subscribes a user to the pulse.
func (p *Pulse) AddSubscriber(ctx context.Context, userID int64, asAdmin bool) error {
	if err := p.checkLive("pulse"); err != nil {
		return err
	}
	if userID <= 0 {
		return &InvalidArgumentError{Argument: "userID", Reason: "must be positive"}
	}
	path := fmt.Sprintf("/pulses/%d/subscribers.json", p.id)
	raw, err := p.transport.Put(ctx, path, Params{"user_id": userID, "as_admin": asAdmin})
	if err != nil {
		return fmt.Errorf("subscribing user %d to pulse %d: %w", userID, p.id, err)
	}
	if p.subscribers.resolved {
		u := userStub(p.transport, userID)
		if isObject(raw) {
			if echoed, err := UserFromJSON(p.transport, raw); err == nil {
				u = echoed
			}
		}
		p.subscribers.store(append(p.subscribers.values, u))
	}
	return nil
}

// RemoveSubscriber unsubscribes a user from the pulse.
func (p *Pulse) RemoveSubscriber(ctx context.Context, userID int64) error {
	if err := p.checkLive("pulse"); err != nil {
		return err
	}
	path := fmt.Sprintf("/pulses/%d/subscribers/%d.json", p.id, userID)
	if _, err := p.transport.Delete(ctx, path, nil); err != nil {
		return fmt.Errorf("unsubscribing user %d from pulse %d: %w", userID, p.id, err)
	}
	if p.subscribers.resolved {
		kept := make([]*User, 0, len(p.subscribers.values))
		for _, u := range p.subscribers.values {
			if u.ID() != userID {
				kept = append(kept, u)
			}
		}
		p.subscribers.store(kept)
	}
	return nil
}

// Notes returns the notes attached to the pulse.
func (p *Pulse) Notes(ctx context.Context) ([]*Note, error) {
	path := fmt.Sprintf("/pulses/%d/notes.json", p.id)
	raw, err := p.transport.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching notes of pulse %d: %w", p.id, err)
	}
	var list lazyList[*Note]
	list.set(raw)
	if err := list.inject(map[string]any{"project_id": p.id}); err != nil {
		return nil, err
	}
	return list.load(func(elem json.RawMessage) (*Note, error) {
		return NoteFromJSON(p.transport, elem)
	})
}

// AddNote attaches a new note to the pulse.
func (p *Pulse) AddNote(ctx context.Context, nn NewNote) (*Note, error) {
	if err := p.checkLive("pulse"); err != nil {
		return nil, err
	}
	if nn.Title == "" {
		return nil, &InvalidArgumentError{Argument: "title", Reason: "must not be empty"}
	}
	params := Params{
		"title":         nn.Title,
		"content":       nn.Content,
		"owners_only":   nn.OwnersOnly,
		"create_update": nn.CreateUpdate,
	}
	if nn.UserID > 0 {
		params["user_id"] = nn.UserID
	}
	path := fmt.Sprintf("/pulses/%d/notes.json", p.id)
	raw, err := p.transport.Post(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("adding note to pulse %d: %w", p.id, err)
	}
	raw, err = injectInto(raw, map[string]any{"project_id": p.id})
	if err != nil {
		return nil, err
	}
	return NoteFromJSON(p.transport, raw)
}

// Updates returns one page of updates posted on the pulse.
func (p *Pulse) Updates(ctx context.Context, opts PageOptions) ([]*Update, error) {
	path := fmt.Sprintf("/pulses/%d/updates.json", p.id)
	raw, err := p.transport.Get(ctx, path, opts.params())
	if err != nil {
		return nil, fmt.Errorf("fetching updates of pulse %d: %w", p.id, err)
	}
	return decodeList(raw, func(elem json.RawMessage) (*Update, error) {
		return UpdateFromJSON(p.transport, elem)
	})
}

// AddUpdate posts an update on the pulse.
func (p *Pulse) AddUpdate(
	ctx context.Context,
	userID int64,
	text string,
	announce bool,
) (*Update, error) {
	if err := p.checkLive("pulse"); err != nil {
		return nil, err
	}
	u, err := CreateUpdate(ctx, p.transport, NewUpdate{
		UserID:   userID,
		PulseID:  p.id,
		Text:     text,
		Announce: announce,
	})
	if err != nil {
		return nil, err
	}
	p.updatesCount++
	return u, nil
}

// Refresh re-fetches the pulse. The raw column values are replaced
// wholesale, which clears every cached column value.
func (p *Pulse) Refresh(ctx context.Context) error {
	if err := p.fetch(ctx, p.path(), p.fields()); err != nil {
		return fmt.Errorf("refreshing pulse %d: %w", p.id, err)
	}
	if !p.has("column_values") {
		p.columnValues = nil
		p.columnCache = nil
	}
	return nil
}
