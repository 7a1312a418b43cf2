package pulse

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tag is a label that can be attached to pulses through tag columns.
type Tag struct {
	entity
	timestamps

	id    int64
	name  string
	color string
}

func (t *Tag) fields() fieldTable {
	table := fieldTable{
		"id":    idField(&t.id),
		"name":  stringField(&t.name),
		"color": stringField(&t.color),
	}
	t.timestamps.fields(table)
	return table
}

// FetchTag retrieves a tag by id.
func FetchTag(ctx context.Context, tr Transport, id int64) (*Tag, error) {
	t := &Tag{entity: entity{transport: tr}}
	if err := t.fetch(ctx, resourcePath("tags", id), t.fields()); err != nil {
		return nil, fmt.Errorf("fetching tag %d: %w", id, err)
	}
	return t, nil
}

// TagFromJSON builds a tag from an already-fetched representation.
func TagFromJSON(tr Transport, raw json.RawMessage) (*Tag, error) {
	t := &Tag{entity: entity{transport: tr}}
	if err := t.hydrate(raw, t.fields()); err != nil {
		return nil, fmt.Errorf("hydrating tag: %w", err)
	}
	return t, nil
}

func tagStub(tr Transport, id int64) *Tag {
	t := &Tag{entity: entity{transport: tr}}
	_ = t.hydrate(stubJSON(id), t.fields())
	return t
}

func (t *Tag) ID() int64     { return t.id }
func (t *Tag) Name() string  { return t.name }
func (t *Tag) Color() string { return t.color }

// Refresh re-fetches the tag and replaces all local state.
func (t *Tag) Refresh(ctx context.Context) error {
	if err := t.fetch(ctx, resourcePath("tags", t.id), t.fields()); err != nil {
		return fmt.Errorf("refreshing tag %d: %w", t.id, err)
	}
	return nil
}
