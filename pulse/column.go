package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Column is a typed field definition shared by all pulses of a board.
type Column struct {
	entity

	id         string
	title      string
	columnType ColumnType
	labels     map[int]string
	boardID    int64
}

func (c *Column) fields() fieldTable {
	return fieldTable{
		"id":       stringField(&c.id),
		"title":    stringField(&c.title),
		"type":     columnTypeField(&c.columnType),
		"labels":   labelsField(&c.labels),
		"board_id": idField(&c.boardID),
	}
}

// ColumnFromJSON builds a column from its embedded board representation.
func ColumnFromJSON(t Transport, raw json.RawMessage) (*Column, error) {
	c := &Column{entity: entity{transport: t}}
	if err := c.hydrate(raw, c.fields()); err != nil {
		return nil, fmt.Errorf("hydrating column: %w", err)
	}
	return c, nil
}

func (c *Column) ID() string       { return c.id }
func (c *Column) Title() string    { return c.title }
func (c *Column) Type() ColumnType { return c.columnType }
func (c *Column) BoardID() int64   { return c.boardID }

// Labels returns the status labels keyed by color index. Only status
// columns carry labels.
func (c *Column) Labels() map[int]string {
	return c.labels
}

func (c *Column) path() string {
	return fmt.Sprintf("/boards/%d/columns/%s.json", c.boardID, c.id)
}

func (c *Column) checkMutable() error {
	if err := c.checkLive("column"); err != nil {
		return err
	}
	if c.boardID == 0 {
		return &InvalidObjectError{Object: "column", Reason: "no board id"}
	}
	return nil
}

// EditTitle renames the column.
func (c *Column) EditTitle(ctx context.Context, title string) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if title == "" {
		return &InvalidArgumentError{Argument: "title", Reason: "must not be empty"}
	}
	raw, err := c.transport.Put(ctx, c.path(), Params{"title": title})
	if err != nil {
		return fmt.Errorf("renaming column %s: %w", c.id, err)
	}
	c.title = title
	c.raw["title"], _ = json.Marshal(title)
	return c.merge(findEcho(raw, c.id), c.fields())
}

// EditLabels replaces the labels of a status column.
func (c *Column) EditLabels(ctx context.Context, labels map[int]string) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if c.columnType != ColumnStatus {
		return &InvalidArgumentError{Argument: "labels", Reason: "only status columns have labels"}
	}
	for index := range labels {
		if index < StatusOrange || index > StatusBlack {
			return &InvalidArgumentError{
				Argument: "labels",
				Reason:   fmt.Sprintf("label index %d outside [0, 10]", index),
			}
		}
	}

	encoded := make(Params, len(labels))
	for index, label := range labels {
		encoded[strconv.Itoa(index)] = label
	}
	raw, err := c.transport.Put(ctx, c.path(), Params{"labels": encoded})
	if err != nil {
		return fmt.Errorf("editing labels of column %s: %w", c.id, err)
	}
	c.labels = labels
	c.raw["labels"], _ = json.Marshal(encoded)
	return c.merge(findEcho(raw, c.id), c.fields())
}

// Delete removes the column from its board.
func (c *Column) Delete(ctx context.Context) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if _, err := c.transport.Delete(ctx, c.path(), nil); err != nil {
		return fmt.Errorf("deleting column %s: %w", c.id, err)
	}
	c.deleted = true
	return nil
}

func columnTypeField(dst *ColumnType) decodeFunc {
	return func(raw json.RawMessage) error {
		var s string
		if err := stringField(&s)(raw); err != nil {
			return err
		}
		if ct, err := ParseColumnType(s); err == nil {
			*dst = ct
			return nil
		}
		// Types this library cannot resolve are kept as reported.
		*dst = ColumnType(s)
		return nil
	}
}

// labelsField accepts labels either as an object keyed by index or as an
// array where the position is the index.
func labelsField(dst *map[int]string) decodeFunc {
	return func(raw json.RawMessage) error {
		*dst = nil
		if isNull(raw) {
			return nil
		}

		var list []string
		if json.Unmarshal(raw, &list) == nil {
			labels := make(map[int]string, len(list))
			for i, label := range list {
				labels[i] = label
			}
			*dst = labels
			return nil
		}

		var keyed map[string]string
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return err
		}
		labels := make(map[int]string, len(keyed))
		for k, label := range keyed {
			index, err := strconv.Atoi(k)
			if err != nil {
				return fmt.Errorf("label key %q: %w", k, err)
			}
			labels[index] = label
		}
		*dst = labels
		return nil
	}
}

// LabelIndices returns the label indices in ascending order.
func (c *Column) LabelIndices() []int {
	indices := make([]int, 0, len(c.labels))
	for index := range c.labels {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}
