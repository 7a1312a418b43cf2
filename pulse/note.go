package pulse

import (
	"context"
	"encoding/json"
	"fmt"
)

// NotePermission controls who may edit a note.
type NotePermission string

const (
	NoteEveryone NotePermission = "everyone"
	NoteOwners   NotePermission = "owners"
)

// Note is a titled document attached to exactly one pulse.
type Note struct {
	entity
	timestamps

	id          int64
	pulseID     int64
	title       string
	content     string
	permissions NotePermission
}

func (n *Note) fields() fieldTable {
	table := fieldTable{
		"id":         idField(&n.id),
		"project_id": idField(&n.pulseID),
		"title":      stringField(&n.title),
		"content":    stringField(&n.content),
		"permissions": func(raw json.RawMessage) error {
			var s string
			if err := stringField(&s)(raw); err != nil {
				return err
			}
			n.permissions = NotePermission(s)
			return nil
		},
	}
	n.timestamps.fields(table)
	return table
}

// FetchNote retrieves a note of a pulse.
func FetchNote(ctx context.Context, t Transport, pulseID, noteID int64) (*Note, error) {
	n := &Note{entity: entity{transport: t}, pulseID: pulseID}
	path := fmt.Sprintf("/pulses/%d/notes/%d.json", pulseID, noteID)
	if err := n.fetch(ctx, path, n.fields()); err != nil {
		return nil, fmt.Errorf("fetching note %d of pulse %d: %w", noteID, pulseID, err)
	}
	if n.pulseID == 0 {
		n.pulseID = pulseID
	}
	return n, nil
}

// NoteFromJSON builds a note from an already-fetched representation. The
// representation must carry "project_id" for the note to be editable.
func NoteFromJSON(t Transport, raw json.RawMessage) (*Note, error) {
	n := &Note{entity: entity{transport: t}}
	if err := n.hydrate(raw, n.fields()); err != nil {
		return nil, fmt.Errorf("hydrating note: %w", err)
	}
	return n, nil
}

func (n *Note) ID() int64                   { return n.id }
func (n *Note) PulseID() int64              { return n.pulseID }
func (n *Note) Title() string               { return n.title }
func (n *Note) Content() string             { return n.content }
func (n *Note) Permissions() NotePermission { return n.permissions }

func (n *Note) path() string {
	return fmt.Sprintf("/pulses/%d/notes/%d.json", n.pulseID, n.id)
}

func (n *Note) checkMutable() error {
	if err := n.checkLive("note"); err != nil {
		return err
	}
	if n.pulseID == 0 {
		return &InvalidObjectError{Object: "note", Reason: "no pulse id"}
	}
	return nil
}

// NewNote describes a note to attach to a pulse.
type NewNote struct {
	Title        string
	Content      string
	OwnersOnly   bool
	UserID       int64
	CreateUpdate bool
}

// NoteEdit holds the note attributes to change. Nil fields are left
// untouched.
type NoteEdit struct {
	Title        *string
	Content      *string
	UserID       int64
	CreateUpdate bool
}

// Edit changes the note and merges the echoed note into local state.
func (n *Note) Edit(ctx context.Context, edit NoteEdit) error {
	if err := n.checkMutable(); err != nil {
		return err
	}
	params := Params{"create_update": edit.CreateUpdate}
	if edit.Title != nil {
		if *edit.Title == "" {
			return &InvalidArgumentError{Argument: "title", Reason: "must not be empty"}
		}
		params["title"] = *edit.Title
	}
	if edit.Content != nil {
		params["content"] = *edit.Content
	}
	if edit.UserID > 0 {
		params["user_id"] = edit.UserID
	}

	raw, err := n.transport.Put(ctx, n.path(), params)
	if err != nil {
		return fmt.Errorf("editing note %d: %w", n.id, err)
	}

	local := map[string]any{}
	if edit.Title != nil {
		local["title"] = *edit.Title
	}
	if edit.Content != nil {
		local["content"] = *edit.Content
	}
	encoded, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("encoding note edit: %w", err)
	}
	if err := n.merge(encoded, n.fields()); err != nil {
		return err
	}
	return n.merge(findEcho(raw, fmt.Sprint(n.id)), n.fields())
}

// Delete removes the note. Deleting twice fails.
func (n *Note) Delete(ctx context.Context) error {
	if err := n.checkMutable(); err != nil {
		return err
	}
	if _, err := n.transport.Delete(ctx, n.path(), nil); err != nil {
		return fmt.Errorf("deleting note %d: %w", n.id, err)
	}
	n.deleted = true
	return nil
}
