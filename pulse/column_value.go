package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the wire tag identifying the kind of a board column.
type ColumnType string

const (
	ColumnText     ColumnType = "text"
	ColumnNumeric  ColumnType = "numeric"
	ColumnDate     ColumnType = "date"
	ColumnStatus   ColumnType = "color"
	ColumnPerson   ColumnType = "person"
	ColumnTimeline ColumnType = "timerange"
	ColumnTag      ColumnType = "tag"
)

// ParseColumnType normalizes a type tag, accepting the descriptive aliases
// "status" and "timeline" alongside the wire tags.
func ParseColumnType(s string) (ColumnType, error) {
	switch ColumnType(strings.ToLower(strings.TrimSpace(s))) {
	case ColumnText:
		return ColumnText, nil
	case ColumnNumeric:
		return ColumnNumeric, nil
	case ColumnDate:
		return ColumnDate, nil
	case ColumnStatus, "status":
		return ColumnStatus, nil
	case ColumnPerson:
		return ColumnPerson, nil
	case ColumnTimeline, "timeline":
		return ColumnTimeline, nil
	case ColumnTag, "tags":
		return ColumnTag, nil
	}
	return "", &InvalidObjectError{
		Object: "column type",
		Reason: fmt.Sprintf("unsupported column type %q", s),
	}
}

// slug is the last path segment of the column write endpoint.
func (ct ColumnType) slug() string {
	switch ct {
	case ColumnStatus:
		return "status"
	case ColumnTimeline:
		return "timeline"
	case ColumnTag:
		return "tags"
	default:
		return string(ct)
	}
}

// Status color indices. StatusGrey is what the API reports for a status
// that was never explicitly set.
const (
	StatusOrange     = 0
	StatusLightGreen = 1
	StatusRed        = 2
	StatusBlue       = 3
	StatusPurple     = 4
	StatusGrey       = 5
	StatusGreen      = 6
	StatusLightBlue  = 7
	StatusGold       = 8
	StatusYellow     = 9
	StatusBlack      = 10
)

// ColumnValue is the value of one column on one pulse. The concrete type
// is one of *TextValue, *NumericValue, *DateValue, *StatusValue,
// *PersonValue, *TimelineValue or *TagValue.
type ColumnValue interface {
	Type() ColumnType
	BoardID() int64
	ColumnID() string
	PulseID() int64
	isColumnValue()
	bindOwner(owner *entity)
}

// columnData is the raw shape a column value is built from.
type columnData struct {
	BoardID  json.RawMessage `json:"board_id"`
	PulseID  json.RawMessage `json:"pulse_id"`
	ColumnID string          `json:"column_id"`
	CID      string          `json:"cid"`
	Value    json.RawMessage `json:"value"`
}

// NewColumnValue builds the variant matching columnType from raw column
// data. Unknown types fail with an InvalidObjectError and build nothing.
func NewColumnValue(
	t Transport,
	columnType ColumnType,
	raw json.RawMessage,
) (ColumnValue, error) {
	ct, err := ParseColumnType(string(columnType))
	if err != nil {
		return nil, err
	}

	var data columnData
	if !isNull(raw) {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decoding column data: %w", err)
		}
	}

	base := columnBase{transport: t, columnType: ct, columnID: data.ColumnID}
	if base.columnID == "" {
		base.columnID = data.CID
	}
	if !isNull(data.BoardID) {
		if base.boardID, err = decodeID(data.BoardID); err != nil {
			return nil, fmt.Errorf("decoding column board_id: %w", err)
		}
	}
	if !isNull(data.PulseID) {
		if base.pulseID, err = decodeID(data.PulseID); err != nil {
			return nil, fmt.Errorf("decoding column pulse_id: %w", err)
		}
	}

	switch ct {
	case ColumnText:
		v := &TextValue{columnBase: base}
		v.value.set(data.Value)
		return v, nil
	case ColumnNumeric:
		v := &NumericValue{columnBase: base}
		v.value.set(data.Value)
		return v, nil
	case ColumnDate:
		v := &DateValue{columnBase: base}
		v.value.set(data.Value)
		return v, nil
	case ColumnStatus:
		v := &StatusValue{columnBase: base}
		v.value.set(data.Value)
		return v, nil
	case ColumnPerson:
		v := &PersonValue{columnBase: base}
		v.value.set(data.Value)
		return v, nil
	case ColumnTimeline:
		v := &TimelineValue{columnBase: base}
		v.value.set(data.Value)
		return v, nil
	case ColumnTag:
		v := &TagValue{columnBase: base}
		v.value.set(memberOf(data.Value, "tag_ids"))
		return v, nil
	}
	return nil, &InvalidObjectError{
		Object: "column type",
		Reason: fmt.Sprintf("unsupported column type %q", ct),
	}
}

// columnBase carries the identifiers every variant needs to build its
// write URL. owner is the pulse the value was resolved from, if any.
type columnBase struct {
	transport  Transport
	columnType ColumnType
	boardID    int64
	columnID   string
	pulseID    int64
	owner      *entity
}

func (c *columnBase) Type() ColumnType { return c.columnType }
func (c *columnBase) BoardID() int64   { return c.boardID }
func (c *columnBase) ColumnID() string { return c.columnID }
func (c *columnBase) PulseID() int64   { return c.pulseID }

func (c *columnBase) isColumnValue() {}

func (c *columnBase) bindOwner(owner *entity) { c.owner = owner }

// write sends the update for this column. The caller commits its cache
// only when write succeeds.
func (c *columnBase) write(ctx context.Context, params Params) error {
	if c.owner != nil {
		if err := c.owner.checkLive("pulse"); err != nil {
			return err
		}
	}
	if c.boardID == 0 || c.pulseID == 0 || c.columnID == "" {
		return &InvalidObjectError{
			Object: "column value",
			Reason: "board, column and pulse ids are required to update a column",
		}
	}
	params["pulse_id"] = c.pulseID
	path := fmt.Sprintf(
		"/boards/%d/columns/%s/%s.json",
		c.boardID, c.columnID, c.columnType.slug(),
	)
	if _, err := c.transport.Put(ctx, path, params); err != nil {
		return fmt.Errorf(
			"updating column %s on pulse %d: %w", c.columnID, c.pulseID, err,
		)
	}
	return nil
}

// TextValue is a free-text column.
type TextValue struct {
	columnBase
	value lazy[string]
}

// Value returns the column text, or "" when unset.
func (v *TextValue) Value() (string, error) {
	return v.value.load(func(raw json.RawMessage) (string, error) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decoding text column: %w", err)
		}
		return s, nil
	})
}

// Update replaces the column text.
func (v *TextValue) Update(ctx context.Context, text string) error {
	if err := v.write(ctx, Params{"text": text}); err != nil {
		return err
	}
	v.value.store(text)
	return nil
}

// NumericValue is a number column. An unset column decodes to nil.
type NumericValue struct {
	columnBase
	value lazy[*float64]
}

func (v *NumericValue) Value() (*float64, error) {
	return v.value.load(func(raw json.RawMessage) (*float64, error) {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil, nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("decoding numeric column: %w", err)
			}
			return &f, nil
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decoding numeric column: %w", err)
		}
		return &f, nil
	})
}

// Update replaces the number stored in the column.
func (v *NumericValue) Update(ctx context.Context, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &InvalidArgumentError{Argument: "value", Reason: "must be a finite number"}
	}
	if err := v.write(ctx, Params{"value": value}); err != nil {
		return err
	}
	v.value.store(&value)
	return nil
}

// DateValue is a calendar date column. An unset column decodes to nil.
type DateValue struct {
	columnBase
	value lazy[*time.Time]
}

func (v *DateValue) Value() (*time.Time, error) {
	return v.value.load(func(raw json.RawMessage) (*time.Time, error) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decoding date column: %w", err)
		}
		if s == "" {
			return nil, nil
		}
		t, err := parseTimeStrict(s)
		if err != nil {
			return nil, fmt.Errorf("decoding date column: %w", err)
		}
		return &t, nil
	})
}

// Update sets the column to the calendar day of date.
func (v *DateValue) Update(ctx context.Context, date time.Time) error {
	if date.IsZero() {
		return &InvalidArgumentError{Argument: "date", Reason: "must be set"}
	}
	if err := v.write(ctx, Params{"date_str": date.Format(dateLayout)}); err != nil {
		return err
	}
	day := calendarDay(date)
	v.value.store(&day)
	return nil
}

// calendarDay is the UTC midnight of t's calendar day.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StatusValue is a status (color) column holding an index in [0, 10].
type StatusValue struct {
	columnBase
	value lazy[int]
}

// Value returns the color index. A status that was never set, or whose
// payload lacks an index, reports StatusGrey.
func (v *StatusValue) Value() (int, error) {
	if !v.value.resolved && isNull(v.value.raw) {
		v.value.store(StatusGrey)
	}
	return v.value.load(func(raw json.RawMessage) (int, error) {
		if !isObject(raw) {
			index, err := decodeID(raw)
			if err != nil {
				return 0, fmt.Errorf("decoding status column: %w", err)
			}
			return int(index), nil
		}
		var payload struct {
			Index json.RawMessage `json:"index"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return 0, fmt.Errorf("decoding status column: %w", err)
		}
		if isNull(payload.Index) || string(payload.Index) == `""` {
			return StatusGrey, nil
		}
		index, err := decodeID(payload.Index)
		if err != nil {
			return 0, fmt.Errorf("decoding status column: %w", err)
		}
		return int(index), nil
	})
}

// Update sets the color index.
func (v *StatusValue) Update(ctx context.Context, index int) error {
	if index < StatusOrange || index > StatusBlack {
		return &InvalidArgumentError{
			Argument: "index",
			Reason:   fmt.Sprintf("status index %d outside [0, 10]", index),
		}
	}
	if err := v.write(ctx, Params{"color_index": index}); err != nil {
		return err
	}
	v.value.store(index)
	return nil
}

// PersonValue is a column assigning one user.
type PersonValue struct {
	columnBase
	value lazy[*User]
}

// Value returns the assigned user, fetching it on first access. An
// unassigned column returns nil.
func (v *PersonValue) Value(ctx context.Context) (*User, error) {
	return v.value.load(func(raw json.RawMessage) (*User, error) {
		id, err := decodeID(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding person column: %w", err)
		}
		if id == 0 {
			return nil, nil
		}
		return FetchUser(ctx, v.transport, id)
	})
}

// Update assigns the user with the given id. The cached value becomes a
// user carrying only that id until refreshed.
func (v *PersonValue) Update(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return &InvalidArgumentError{Argument: "userID", Reason: "must be positive"}
	}
	if err := v.write(ctx, Params{"user_id": userID}); err != nil {
		return err
	}
	v.value.store(userStub(v.transport, userID))
	return nil
}

// Timeline is a closed date range.
type Timeline struct {
	From time.Time
	To   time.Time
}

// TimelineValue is a column holding a date range. An unset column
// decodes to nil.
type TimelineValue struct {
	columnBase
	value lazy[*Timeline]
}

func (v *TimelineValue) Value() (*Timeline, error) {
	return v.value.load(func(raw json.RawMessage) (*Timeline, error) {
		var payload struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decoding timeline column: %w", err)
		}
		if payload.From == "" && payload.To == "" {
			return nil, nil
		}
		from, err := parseTimeStrict(payload.From)
		if err != nil {
			return nil, fmt.Errorf("decoding timeline start: %w", err)
		}
		to, err := parseTimeStrict(payload.To)
		if err != nil {
			return nil, fmt.Errorf("decoding timeline end: %w", err)
		}
		return &Timeline{From: from, To: to}, nil
	})
}

// Update sets the range. Both ends are required and from may not be after
// to.
func (v *TimelineValue) Update(ctx context.Context, from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return &InvalidArgumentError{Argument: "timeline", Reason: "both dates must be set"}
	}
	from, to = calendarDay(from), calendarDay(to)
	if from.After(to) {
		return &InvalidArgumentError{Argument: "timeline", Reason: "start is after end"}
	}
	err := v.write(ctx, Params{
		"from": from.Format(dateLayout),
		"to":   to.Format(dateLayout),
	})
	if err != nil {
		return err
	}
	v.value.store(&Timeline{From: from, To: to})
	return nil
}

// TagValue is a column holding a list of tags.
type TagValue struct {
	columnBase
	value lazyList[*Tag]
}

// Value returns the attached tags, fetching each one on first access. An
// unset column returns an empty slice.
func (v *TagValue) Value(ctx context.Context) ([]*Tag, error) {
	tags, err := v.value.load(func(raw json.RawMessage) (*Tag, error) {
		id, err := decodeID(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding tag id: %w", err)
		}
		return FetchTag(ctx, v.transport, id)
	})
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []*Tag{}
	}
	return tags, nil
}

// Update replaces the attached tags. The cached value becomes tags
// carrying only their ids until refreshed.
func (v *TagValue) Update(ctx context.Context, tagIDs []int64) error {
	for _, id := range tagIDs {
		if id <= 0 {
			return &InvalidArgumentError{
				Argument: "tagIDs",
				Reason:   fmt.Sprintf("tag id %d must be positive", id),
			}
		}
	}
	if err := v.write(ctx, Params{"tag_ids": tagIDs}); err != nil {
		return err
	}
	tags := make([]*Tag, 0, len(tagIDs))
	for _, id := range tagIDs {
		tags = append(tags, tagStub(v.transport, id))
	}
	v.value.store(tags)
	return nil
}

// memberOf returns the named member of a raw JSON object, or nil.
func memberOf(raw json.RawMessage, key string) json.RawMessage {
	if !isObject(raw) {
		return nil
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return nil
	}
	return obj[key]
}
