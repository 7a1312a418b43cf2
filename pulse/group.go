package pulse

import (
	"context"
	"encoding/json"
	"fmt"
)

// Group is a named section of a board. A group is owned by exactly one
// board; BoardID is a back-reference and may be zero when the group came
// from an archived or deleted context, in which case it cannot be changed.
type Group struct {
	entity

	id            string
	title         string
	color         string
	boardID       int64
	archived      bool
	remoteDeleted bool
}

func (g *Group) fields() fieldTable {
	return fieldTable{
		"id":       stringField(&g.id),
		"title":    stringField(&g.title),
		"color":    stringField(&g.color),
		"board_id": idField(&g.boardID),
		"archived": boolField(&g.archived),
		"deleted":  boolField(&g.remoteDeleted),
	}
}

// GroupFromJSON builds a group from an already-fetched representation.
func GroupFromJSON(t Transport, raw json.RawMessage) (*Group, error) {
	g := &Group{entity: entity{transport: t}}
	if err := g.hydrate(raw, g.fields()); err != nil {
		return nil, fmt.Errorf("hydrating group: %w", err)
	}
	return g, nil
}

func (g *Group) ID() string       { return g.id }
func (g *Group) Title() string    { return g.title }
func (g *Group) Color() string    { return g.color }
func (g *Group) BoardID() int64   { return g.boardID }
func (g *Group) IsArchived() bool { return g.archived }

// IsDeleted reports whether the group was deleted, either through this
// handle or as reported by the API.
func (g *Group) IsDeleted() bool {
	return g.deleted || g.remoteDeleted
}

func (g *Group) path() string {
	return fmt.Sprintf("/boards/%d/groups/%s.json", g.boardID, g.id)
}

func (g *Group) checkMutable() error {
	if g.IsDeleted() {
		return deletedError("group")
	}
	if g.boardID == 0 {
		return &InvalidObjectError{
			Object: "group",
			Reason: "group has no board id and cannot be modified",
		}
	}
	return nil
}

// Board fetches the board owning this group.
func (g *Group) Board(ctx context.Context) (*Board, error) {
	if g.boardID == 0 {
		return nil, &InvalidObjectError{Object: "group", Reason: "no board id"}
	}
	return FetchBoard(ctx, g.transport, g.boardID)
}

// EditTitle renames the group.
func (g *Group) EditTitle(ctx context.Context, title string) error {
	if title == "" {
		return &InvalidArgumentError{Argument: "title", Reason: "must not be empty"}
	}
	return g.edit(ctx, Params{"title": title})
}

// EditColor changes the group color.
func (g *Group) EditColor(ctx context.Context, color string) error {
	if color == "" {
		return &InvalidArgumentError{Argument: "color", Reason: "must not be empty"}
	}
	return g.edit(ctx, Params{"color": color})
}

func (g *Group) edit(ctx context.Context, params Params) error {
	if err := g.checkMutable(); err != nil {
		return err
	}
	raw, err := g.transport.Put(ctx, g.path(), params)
	if err != nil {
		return fmt.Errorf("editing group %s: %w", g.id, err)
	}

	local := make(map[string]any, len(params))
	for k, v := range params {
		local[k] = v
	}
	encoded, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("encoding group edit: %w", err)
	}
	if err := g.merge(encoded, g.fields()); err != nil {
		return err
	}
	return g.merge(findEcho(raw, g.id), g.fields())
}

// Archive hides the group from the board. Archived groups stay mutable.
func (g *Group) Archive(ctx context.Context) error {
	if err := g.checkMutable(); err != nil {
		return err
	}
	if _, err := g.transport.Delete(ctx, g.path(), Params{"archive": true}); err != nil {
		return fmt.Errorf("archiving group %s: %w", g.id, err)
	}
	g.archived = true
	g.raw["archived"] = json.RawMessage("true")
	return nil
}

// Delete removes the group. Any further change through this handle fails.
func (g *Group) Delete(ctx context.Context) error {
	if err := g.checkMutable(); err != nil {
		return err
	}
	if _, err := g.transport.Delete(ctx, g.path(), nil); err != nil {
		return fmt.Errorf("deleting group %s: %w", g.id, err)
	}
	g.deleted = true
	return nil
}
