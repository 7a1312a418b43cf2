package pulse

import (
	"context"
	"encoding/json"
	"fmt"
)

// Update is a post on a pulse, possibly with replies that are updates
// themselves.
type Update struct {
	entity
	timestamps

	id        int64
	url       string
	body      string
	bodyText  string
	kind      string
	hasAssets bool
	assets    []json.RawMessage
	author    lazy[*User]
	replies   lazyList[*Update]
	watchers  lazyList[*User]
}

func (u *Update) fields() fieldTable {
	table := fieldTable{
		"id":         idField(&u.id),
		"url":        stringField(&u.url),
		"body":       stringField(&u.body),
		"body_text":  stringField(&u.bodyText),
		"kind":       stringField(&u.kind),
		"has_assets": boolField(&u.hasAssets),
		"assets": func(raw json.RawMessage) error {
			u.assets = nil
			if isNull(raw) {
				return nil
			}
			return json.Unmarshal(raw, &u.assets)
		},
		"user":     lazyField(&u.author),
		"replies":  lazyListField(&u.replies),
		"watchers": lazyListField(&u.watchers),
	}
	u.timestamps.fields(table)
	return table
}

// FetchUpdate retrieves an update by id.
func FetchUpdate(ctx context.Context, t Transport, id int64) (*Update, error) {
	u := &Update{entity: entity{transport: t}}
	if err := u.fetch(ctx, resourcePath("updates", id), u.fields()); err != nil {
		return nil, fmt.Errorf("fetching update %d: %w", id, err)
	}
	return u, nil
}

// UpdateFromJSON builds an update from an already-fetched representation.
func UpdateFromJSON(t Transport, raw json.RawMessage) (*Update, error) {
	u := &Update{entity: entity{transport: t}}
	if err := u.hydrate(raw, u.fields()); err != nil {
		return nil, fmt.Errorf("hydrating update: %w", err)
	}
	return u, nil
}

// ListUpdates retrieves one page of updates across the account.
func ListUpdates(ctx context.Context, t Transport, opts PageOptions) ([]*Update, error) {
	raw, err := t.Get(ctx, "/updates.json", opts.params())
	if err != nil {
		return nil, fmt.Errorf("listing updates: %w", err)
	}
	return decodeList(raw, func(elem json.RawMessage) (*Update, error) {
		return UpdateFromJSON(t, elem)
	})
}

// NewUpdate describes an update to post on a pulse.
type NewUpdate struct {
	UserID   int64
	PulseID  int64
	Text     string
	Announce bool
}

// CreateUpdate posts a new update.
func CreateUpdate(ctx context.Context, t Transport, nu NewUpdate) (*Update, error) {
	if nu.UserID <= 0 {
		return nil, &InvalidArgumentError{Argument: "userID", Reason: "must be positive"}
	}
	if nu.PulseID <= 0 {
		return nil, &InvalidArgumentError{Argument: "pulseID", Reason: "must be positive"}
	}
	if nu.Text == "" {
		return nil, &InvalidArgumentError{Argument: "text", Reason: "must not be empty"}
	}
	raw, err := t.Post(ctx, "/updates.json", Params{
		"user":                 nu.UserID,
		"pulse":                nu.PulseID,
		"update_text":          nu.Text,
		"announce_to_everyone": nu.Announce,
	})
	if err != nil {
		return nil, fmt.Errorf("creating update on pulse %d: %w", nu.PulseID, err)
	}
	return UpdateFromJSON(t, raw)
}

func (u *Update) ID() int64        { return u.id }
func (u *Update) URL() string      { return u.url }
func (u *Update) Body() string     { return u.body }
func (u *Update) BodyText() string { return u.bodyText }
func (u *Update) Kind() string     { return u.kind }
func (u *Update) HasAssets() bool  { return u.hasAssets }

// Assets returns the raw asset descriptors attached to the update.
func (u *Update) Assets() []json.RawMessage {
	return u.assets
}

// Author returns the user who posted the update. The embedded user is
// used when present; a bare id is fetched once.
func (u *Update) Author(ctx context.Context) (*User, error) {
	return u.author.load(func(raw json.RawMessage) (*User, error) {
		return resolveUser(ctx, u.transport, raw)
	})
}

// Replies returns the replies in the order they were posted.
func (u *Update) Replies() ([]*Update, error) {
	return u.replies.load(func(raw json.RawMessage) (*Update, error) {
		return UpdateFromJSON(u.transport, raw)
	})
}

// WatcherIDs returns the ids of the users watching the update without
// resolving them.
func (u *Update) WatcherIDs() ([]int64, error) {
	if u.watchers.resolved {
		ids := make([]int64, 0, len(u.watchers.values))
		for _, w := range u.watchers.values {
			ids = append(ids, w.ID())
		}
		return ids, nil
	}
	if isNull(u.watchers.raw) {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(u.watchers.raw, &elems); err != nil {
		return nil, fmt.Errorf("decoding watchers: %w", err)
	}
	ids := make([]int64, 0, len(elems))
	for _, elem := range elems {
		id, err := decodeID(elem)
		if err != nil {
			return nil, fmt.Errorf("decoding watcher id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Watchers returns the users watching the update, fetching those known
// only by id.
func (u *Update) Watchers(ctx context.Context) ([]*User, error) {
	return u.watchers.load(func(raw json.RawMessage) (*User, error) {
		return resolveUser(ctx, u.transport, raw)
	})
}

// Delete removes the update. Deleting twice fails.
func (u *Update) Delete(ctx context.Context) error {
	if err := u.checkLive("update"); err != nil {
		return err
	}
	if _, err := u.transport.Delete(ctx, resourcePath("updates", u.id), nil); err != nil {
		return fmt.Errorf("deleting update %d: %w", u.id, err)
	}
	u.deleted = true
	return nil
}

// Like records a like from the given user.
func (u *Update) Like(ctx context.Context, userID int64) error {
	return u.react(ctx, "like", userID)
}

// Unlike withdraws a like from the given user.
func (u *Update) Unlike(ctx context.Context, userID int64) error {
	return u.react(ctx, "unlike", userID)
}

func (u *Update) react(ctx context.Context, action string, userID int64) error {
	if err := u.checkLive("update"); err != nil {
		return err
	}
	if userID <= 0 {
		return &InvalidArgumentError{Argument: "userID", Reason: "must be positive"}
	}
	path := fmt.Sprintf("/updates/%d/%s.json", u.id, action)
	if _, err := u.transport.Post(ctx, path, Params{"user": userID}); err != nil {
		return fmt.Errorf("%s update %d: %w", action, u.id, err)
	}
	return nil
}
