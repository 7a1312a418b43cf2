package pulse

import (
	"context"
	"encoding/json"
	"fmt"
)

// User is an account on the remote system. Users are referenced by id from
// many other objects and are always independently fetchable.
type User struct {
	entity
	timestamps

	id       int64
	name     string
	email    string
	url      string
	photoURL string
	title    string
	position string
	phone    string
	location string
	status   string
	birthday string
	isGuest  bool
	skills   []string
}

func (u *User) fields() fieldTable {
	table := fieldTable{
		"id":        idField(&u.id),
		"name":      stringField(&u.name),
		"email":     stringField(&u.email),
		"url":       stringField(&u.url),
		"photo_url": stringField(&u.photoURL),
		"title":     stringField(&u.title),
		"position":  stringField(&u.position),
		"phone":     stringField(&u.phone),
		"location":  stringField(&u.location),
		"status":    stringField(&u.status),
		"birthday":  stringField(&u.birthday),
		"is_guest":  boolField(&u.isGuest),
		"skills":    stringsField(&u.skills),
	}
	u.timestamps.fields(table)
	return table
}

// FetchUser retrieves a user by id.
func FetchUser(ctx context.Context, t Transport, id int64) (*User, error) {
	u := &User{entity: entity{transport: t}}
	if err := u.fetch(ctx, resourcePath("users", id), u.fields()); err != nil {
		return nil, fmt.Errorf("fetching user %d: %w", id, err)
	}
	return u, nil
}

// UserFromJSON builds a user from an already-fetched representation.
func UserFromJSON(t Transport, raw json.RawMessage) (*User, error) {
	u := &User{entity: entity{transport: t}}
	if err := u.hydrate(raw, u.fields()); err != nil {
		return nil, fmt.Errorf("hydrating user: %w", err)
	}
	return u, nil
}

// userStub builds a user known only by id, without a request.
func userStub(t Transport, id int64) *User {
	u := &User{entity: entity{transport: t}}
	_ = u.hydrate(stubJSON(id), u.fields())
	return u
}

// ListUsers retrieves one page of users.
func ListUsers(ctx context.Context, t Transport, opts PageOptions) ([]*User, error) {
	raw, err := t.Get(ctx, "/users.json", opts.params())
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return decodeList(raw, func(elem json.RawMessage) (*User, error) {
		return UserFromJSON(t, elem)
	})
}

// resolveUser builds a user from an embedded object, or fetches it when
// only the id is present.
func resolveUser(ctx context.Context, t Transport, raw json.RawMessage) (*User, error) {
	if isObject(raw) {
		return UserFromJSON(t, raw)
	}
	id, err := decodeID(raw)
	if err != nil {
		return nil, err
	}
	return FetchUser(ctx, t, id)
}

func (u *User) ID() int64        { return u.id }
func (u *User) Name() string     { return u.name }
func (u *User) Email() string    { return u.email }
func (u *User) URL() string      { return u.url }
func (u *User) PhotoURL() string { return u.photoURL }
func (u *User) Title() string    { return u.title }
func (u *User) Position() string { return u.position }
func (u *User) Phone() string    { return u.phone }
func (u *User) Location() string { return u.location }
func (u *User) Status() string   { return u.status }
func (u *User) Birthday() string { return u.birthday }
func (u *User) IsGuest() bool    { return u.isGuest }
func (u *User) Skills() []string { return u.skills }

// Refresh re-fetches the user and replaces all local state.
func (u *User) Refresh(ctx context.Context) error {
	if err := u.fetch(ctx, resourcePath("users", u.id), u.fields()); err != nil {
		return fmt.Errorf("refreshing user %d: %w", u.id, err)
	}
	return nil
}

// NewsFeed returns the updates in the user's news feed.
func (u *User) NewsFeed(ctx context.Context, opts PageOptions) ([]*Update, error) {
	return u.feed(ctx, "newsfeed", opts)
}

// Posts returns the updates authored by the user.
func (u *User) Posts(ctx context.Context, opts PageOptions) ([]*Update, error) {
	return u.feed(ctx, "posts", opts)
}

// UnreadFeed returns the updates the user has not read yet.
func (u *User) UnreadFeed(ctx context.Context, opts PageOptions) ([]*Update, error) {
	return u.feed(ctx, "unread_feed", opts)
}

func (u *User) feed(ctx context.Context, kind string, opts PageOptions) ([]*Update, error) {
	path := fmt.Sprintf("/users/%d/%s.json", u.id, kind)
	raw, err := u.transport.Get(ctx, path, opts.params())
	if err != nil {
		return nil, fmt.Errorf("fetching %s for user %d: %w", kind, u.id, err)
	}
	return decodeList(raw, func(elem json.RawMessage) (*Update, error) {
		return UpdateFromJSON(u.transport, elem)
	})
}

// decodeList hydrates every element of a raw JSON array.
func decodeList[T any](
	raw json.RawMessage,
	build func(json.RawMessage) (T, error),
) ([]T, error) {
	var list lazyList[T]
	list.set(raw)
	return list.load(build)
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
