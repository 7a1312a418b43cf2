package pulse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// decodeFunc decodes one raw JSON member into a typed field.
type decodeFunc func(json.RawMessage) error

// fieldTable maps a JSON key to the decoder for the field it populates.
// Keys missing from the table are kept in the raw snapshot only.
type fieldTable map[string]decodeFunc

// entity is the state shared by every API-backed object: the last raw
// snapshot, the transport, and the deleted tombstone.
type entity struct {
	transport Transport
	raw       map[string]json.RawMessage
	deleted   bool
}

// hydrate replaces the raw snapshot with raw and decodes every key that
// appears in both the snapshot and fields.
func (e *entity) hydrate(raw json.RawMessage, fields fieldTable) error {
	obj, err := decodeObject(raw)
	if err != nil {
		return err
	}
	e.raw = obj
	return applyFields(obj, fields)
}

// merge overlays the keys of an echoed response onto the snapshot and
// re-decodes only those keys. Non-object responses are ignored.
func (e *entity) merge(raw json.RawMessage, fields fieldTable) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	obj, err := decodeObject(trimmed)
	if err != nil {
		return err
	}
	if e.raw == nil {
		e.raw = make(map[string]json.RawMessage, len(obj))
	}
	for k, v := range obj {
		e.raw[k] = v
	}
	return applyFields(obj, fields)
}

// JSON returns the last raw snapshot received for this object.
func (e *entity) JSON() json.RawMessage {
	data, err := json.Marshal(e.raw)
	if err != nil {
		return nil
	}
	return data
}

// IsDeleted reports whether the object was deleted through this handle.
func (e *entity) IsDeleted() bool {
	return e.deleted
}

func (e *entity) field(key string) json.RawMessage {
	return e.raw[key]
}

func (e *entity) has(key string) bool {
	_, ok := e.raw[key]
	return ok
}

// checkLive fails with an InvalidObjectError once the object is deleted.
func (e *entity) checkLive(object string) error {
	if e.deleted {
		return deletedError(object)
	}
	return nil
}

// fetch performs the GET for a single resource and hydrates from it.
func (e *entity) fetch(
	ctx context.Context,
	path string,
	fields fieldTable,
) error {
	raw, err := e.transport.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	return e.hydrate(raw, fields)
}

func applyFields(obj map[string]json.RawMessage, fields fieldTable) error {
	for key, decode := range fields {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if err := decode(raw); err != nil {
			return fmt.Errorf("decoding field %q: %w", key, err)
		}
	}
	return nil
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decoding object: %w", err)
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage)
	}
	return obj, nil
}

func resourcePath(prefix string, id int64) string {
	return fmt.Sprintf("/%s/%d.json", prefix, id)
}

// Field decoders. Null leaves the destination at its zero value.

func stringField(dst *string) decodeFunc {
	return func(raw json.RawMessage) error {
		*dst = ""
		if isNull(raw) {
			return nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			*dst = s
			return nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		*dst = n.String()
		return nil
	}
}

func idField(dst *int64) decodeFunc {
	return func(raw json.RawMessage) error {
		*dst = 0
		if isNull(raw) {
			return nil
		}
		id, err := decodeID(raw)
		if err != nil {
			return err
		}
		*dst = id
		return nil
	}
}

func intField(dst *int) decodeFunc {
	return func(raw json.RawMessage) error {
		var id int64
		if err := idField(&id)(raw); err != nil {
			return err
		}
		*dst = int(id)
		return nil
	}
}

func boolField(dst *bool) decodeFunc {
	return func(raw json.RawMessage) error {
		*dst = false
		if isNull(raw) {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}
}

func stringsField(dst *[]string) decodeFunc {
	return func(raw json.RawMessage) error {
		*dst = nil
		if isNull(raw) {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}
}

func lazyField[T any](l *lazy[T]) decodeFunc {
	return func(raw json.RawMessage) error {
		l.set(raw)
		return nil
	}
}

func lazyListField[T any](l *lazyList[T]) decodeFunc {
	return func(raw json.RawMessage) error {
		l.set(raw)
		return nil
	}
}

// decodeID accepts an id encoded either as a JSON number or a string, or
// as an object carrying an "id" member. Null decodes to 0.
func decodeID(raw json.RawMessage) (int64, error) {
	if isNull(raw) {
		return 0, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var ref struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return 0, err
		}
		return decodeID(ref.ID)
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n.Int64()
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return 0, fmt.Errorf("id %s is neither number nor string", trimmed)
	}
	return strconv.ParseInt(s, 10, 64)
}

// stubJSON builds the minimal raw form of an object known only by id.
func stubJSON(id int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%d}`, id))
}

// Timestamps.

const dateLayout = "2006-01-02"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	dateLayout,
}

// parseTime parses an API timestamp, returning the zero time when s is
// empty or in no known layout.
func parseTime(s string) time.Time {
	t, _ := parseTimeStrict(s)
	return t
}

func parseTimeStrict(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// timeResolver decodes a raw JSON string timestamp.
func timeResolver(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, nil
	}
	return parseTime(s), nil
}

// timestamps is embedded by every entity exposing created_at/updated_at.
type timestamps struct {
	createdAt lazy[time.Time]
	updatedAt lazy[time.Time]
}

func (ts *timestamps) fields(table fieldTable) {
	table["created_at"] = lazyField(&ts.createdAt)
	table["updated_at"] = lazyField(&ts.updatedAt)
}

// CreatedAt returns the creation time, or the zero time when unknown.
func (ts *timestamps) CreatedAt() time.Time {
	t, _ := ts.createdAt.load(timeResolver)
	return t
}

// UpdatedAt returns the last modification time, or the zero time when
// unknown.
func (ts *timestamps) UpdatedAt() time.Time {
	t, _ := ts.updatedAt.load(timeResolver)
	return t
}

// findEcho picks the representation of the object with the given id out
// of a mutation response. Responses hold either the object itself or a
// list containing it; nil is returned when there is no match.
func findEcho(raw json.RawMessage, id string) json.RawMessage {
	if isObject(raw) {
		if echoID(raw) == id {
			return raw
		}
		return nil
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) != nil {
		return nil
	}
	for _, elem := range list {
		if isObject(elem) && echoID(elem) == id {
			return elem
		}
	}
	return nil
}

func echoID(raw json.RawMessage) string {
	var ref struct {
		ID json.RawMessage `json:"id"`
	}
	if json.Unmarshal(raw, &ref) != nil {
		return ""
	}
	var id string
	if stringField(&id)(ref.ID) != nil {
		return ""
	}
	return id
}
