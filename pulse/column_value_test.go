package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"
)

// columnJSON builds bound column data for board 1, pulse 2.
func columnJSON(columnID, value string) json.RawMessage {
	if value == "" {
		return json.RawMessage(`{"board_id": 1, "pulse_id": 2, "column_id": "` + columnID + `"}`)
	}
	return json.RawMessage(`{"board_id": 1, "pulse_id": 2, "column_id": "` + columnID + `", "value": ` + value + `}`)
}

func TestParseColumnType(t *testing.T) {
	tests := []struct {
		in   string
		want ColumnType
	}{
		{"text", ColumnText},
		{"numeric", ColumnNumeric},
		{"date", ColumnDate},
		{"color", ColumnStatus},
		{"status", ColumnStatus},
		{"Person", ColumnPerson},
		{"timerange", ColumnTimeline},
		{"timeline", ColumnTimeline},
		{"tag", ColumnTag},
	}
	for _, tt := range tests {
		got, err := ParseColumnType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseColumnType(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}

	_, err := ParseColumnType("bogus")
	assertInvalidObject(t, err)
}

func TestNewColumnValueUnknownType(t *testing.T) {
	ft := newFake()
	cv, err := NewColumnValue(ft, ColumnType("bogus"), json.RawMessage(`{}`))
	assertInvalidObject(t, err)
	if cv != nil {
		t.Errorf("built %T for an unknown type", cv)
	}
	assertCalls(t, ft, 0)
}

func TestNewColumnValueVariants(t *testing.T) {
	tests := []struct {
		columnType ColumnType
		want       string
	}{
		{ColumnText, "*pulse.TextValue"},
		{ColumnNumeric, "*pulse.NumericValue"},
		{ColumnDate, "*pulse.DateValue"},
		{ColumnStatus, "*pulse.StatusValue"},
		{ColumnPerson, "*pulse.PersonValue"},
		{ColumnTimeline, "*pulse.TimelineValue"},
		{ColumnTag, "*pulse.TagValue"},
	}
	for _, tt := range tests {
		cv, err := NewColumnValue(newFake(), tt.columnType, columnJSON("c", ""))
		if err != nil {
			t.Errorf("NewColumnValue(%s): %v", tt.columnType, err)
			continue
		}
		if got := fmt.Sprintf("%T", cv); got != tt.want {
			t.Errorf("NewColumnValue(%s) built %s, want %s", tt.columnType, got, tt.want)
		}
		if cv.Type() != tt.columnType || cv.BoardID() != 1 || cv.PulseID() != 2 || cv.ColumnID() != "c" {
			t.Errorf("ids = %s %d %d %q", cv.Type(), cv.BoardID(), cv.PulseID(), cv.ColumnID())
		}
	}
}

func TestStatusDefaultsToGrey(t *testing.T) {
	for _, raw := range []string{"", `{}`, `{"index": null}`} {
		cv, err := NewColumnValue(newFake(), ColumnStatus, columnJSON("s", raw))
		if err != nil {
			t.Fatalf("NewColumnValue: %v", err)
		}
		got, err := cv.(*StatusValue).Value()
		if err != nil || got != StatusGrey {
			t.Errorf("value %q = %d, %v, want grey", raw, got, err)
		}
	}
}

func TestStatusUpdateRoundTrip(t *testing.T) {
	ft := newFake().respond(http.MethodPut, "/boards/1/columns/s/status.json", `{}`)
	cv, _ := NewColumnValue(ft, ColumnStatus, columnJSON("s", `{"index": 0}`))
	status := cv.(*StatusValue)

	if err := status.Update(context.Background(), StatusBlue); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := status.Value()
	if got != StatusBlue {
		t.Errorf("value = %d, want %d", got, StatusBlue)
	}
	assertCalls(t, ft, 1)
	params := ft.last().params
	if params["color_index"] != StatusBlue || params["pulse_id"] != int64(2) {
		t.Errorf("params = %v", params)
	}
}

func TestStatusUpdateRejectsOutOfRange(t *testing.T) {
	ft := newFake()
	cv, _ := NewColumnValue(ft, ColumnStatus, columnJSON("s", `{"index": 3}`))
	status := cv.(*StatusValue)

	for _, index := range []int{-1, 11} {
		assertInvalidArgument(t, status.Update(context.Background(), index))
	}
	assertCalls(t, ft, 0)
	if got, _ := status.Value(); got != StatusBlue {
		t.Errorf("value changed to %d after rejected updates", got)
	}
}

func TestFailedWriteKeepsCache(t *testing.T) {
	ft := newFake()
	cv, _ := NewColumnValue(ft, ColumnText, columnJSON("notes", `"before"`))
	text := cv.(*TextValue)

	if err := text.Update(context.Background(), "after"); !IsNotFound(err) {
		t.Fatalf("Update error = %v, want not found", err)
	}
	if got, _ := text.Value(); got != "before" {
		t.Errorf("value = %q after failed write", got)
	}
}

func TestUnboundColumnCannotWrite(t *testing.T) {
	ft := newFake()
	cv, _ := NewColumnValue(ft, ColumnText, json.RawMessage(`{"value": "x"}`))

	assertInvalidObject(t, cv.(*TextValue).Update(context.Background(), "y"))
	assertCalls(t, ft, 0)
}

func TestNumericValue(t *testing.T) {
	tests := []struct {
		raw  string
		want *float64
	}{
		{`null`, nil},
		{`""`, nil},
		{`"12.5"`, ptr(12.5)},
		{`3`, ptr(3)},
	}
	for _, tt := range tests {
		cv, _ := NewColumnValue(newFake(), ColumnNumeric, columnJSON("n", tt.raw))
		got, err := cv.(*NumericValue).Value()
		if err != nil {
			t.Errorf("Value(%s): %v", tt.raw, err)
			continue
		}
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("Value(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestNumericUpdate(t *testing.T) {
	ft := newFake().respond(http.MethodPut, "/boards/1/columns/n/numeric.json", `{}`)
	cv, _ := NewColumnValue(ft, ColumnNumeric, columnJSON("n", `null`))
	numeric := cv.(*NumericValue)

	if err := numeric.Update(context.Background(), 42); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := numeric.Value(); got == nil || *got != 42 {
		t.Errorf("value = %v", got)
	}
	assertCalls(t, ft, 1)
}

func TestDateValue(t *testing.T) {
	ft := newFake().respond(http.MethodPut, "/boards/1/columns/due/date.json", `{}`)
	cv, _ := NewColumnValue(ft, ColumnDate, columnJSON("due", `"2024-03-05"`))
	date := cv.(*DateValue)

	got, err := date.Value()
	if err != nil || got == nil || got.Format("2006-01-02") != "2024-03-05" {
		t.Fatalf("Value = %v, %v", got, err)
	}

	assertInvalidArgument(t, date.Update(context.Background(), time.Time{}))
	due := time.Date(2024, 4, 1, 18, 30, 0, 0, time.UTC)
	if err := date.Update(context.Background(), due); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ft.last().params["date_str"] != "2024-04-01" {
		t.Errorf("params = %v", ft.last().params)
	}
	got, _ = date.Value()
	if got.Hour() != 0 || got.Day() != 1 {
		t.Errorf("cached date = %v, want the calendar day", got)
	}
	assertCalls(t, ft, 1)
}

func TestPersonValue(t *testing.T) {
	ft := newFake().
		respond(http.MethodGet, "/users/9.json", `{"id": 9, "name": "Grace"}`).
		respond(http.MethodPut, "/boards/1/columns/owner/person.json", `{}`)
	ctx := context.Background()

	cv, _ := NewColumnValue(ft, ColumnPerson, columnJSON("owner", `{"id": 9}`))
	person := cv.(*PersonValue)
	assertCalls(t, ft, 0)

	u, err := person.Value(ctx)
	if err != nil || u.Name() != "Grace" {
		t.Fatalf("Value = %v, %v", u, err)
	}
	again, _ := person.Value(ctx)
	if again != u {
		t.Error("second Value returned a different user")
	}
	if n := ft.count(http.MethodGet, "/users/9.json"); n != 1 {
		t.Errorf("user fetched %d times", n)
	}

	if err := person.Update(ctx, 7); err != nil {
		t.Fatalf("Update: %v", err)
	}
	u, _ = person.Value(ctx)
	if u.ID() != 7 {
		t.Errorf("user after update = %d, want 7", u.ID())
	}
	assertCalls(t, ft, 2)
	assertInvalidArgument(t, person.Update(ctx, 0))
}

func TestPersonUnassigned(t *testing.T) {
	ft := newFake()
	cv, _ := NewColumnValue(ft, ColumnPerson, columnJSON("owner", ""))

	u, err := cv.(*PersonValue).Value(context.Background())
	if err != nil || u != nil {
		t.Errorf("Value = %v, %v, want nil", u, err)
	}
	assertCalls(t, ft, 0)
}

func TestTimelineValue(t *testing.T) {
	ft := newFake().respond(http.MethodPut, "/boards/1/columns/span/timeline.json", `{}`)
	ctx := context.Background()
	cv, _ := NewColumnValue(ft, ColumnTimeline, columnJSON("span", `{"from": "2024-01-01", "to": "2024-01-31"}`))
	timeline := cv.(*TimelineValue)

	got, err := timeline.Value()
	if err != nil || got == nil || got.To.Day() != 31 {
		t.Fatalf("Value = %v, %v", got, err)
	}

	from := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	assertInvalidArgument(t, timeline.Update(ctx, from, to))
	assertCalls(t, ft, 0)

	if err := timeline.Update(ctx, to, from); err != nil {
		t.Fatalf("Update: %v", err)
	}
	params := ft.last().params
	if params["from"] != "2024-02-01" || params["to"] != "2024-02-10" {
		t.Errorf("params = %v", params)
	}
	got, _ = timeline.Value()
	if !got.From.Equal(to) || !got.To.Equal(from) {
		t.Errorf("cached range = %v", got)
	}
}

func TestTimelineUpdateCachesCalendarDays(t *testing.T) {
	ft := newFake().respond(http.MethodPut, "/boards/1/columns/span/timeline.json", `{}`)
	cv, _ := NewColumnValue(ft, ColumnTimeline, columnJSON("span", ""))
	timeline := cv.(*TimelineValue)

	zone := time.FixedZone("UTC+9", 9*60*60)
	from := time.Date(2024, 4, 2, 23, 30, 0, 0, zone)
	to := time.Date(2024, 4, 5, 8, 15, 0, 0, zone)
	if err := timeline.Update(context.Background(), from, to); err != nil {
		t.Fatalf("Update: %v", err)
	}
	params := ft.last().params
	if params["from"] != "2024-04-02" || params["to"] != "2024-04-05" {
		t.Errorf("params = %v", params)
	}

	got, _ := timeline.Value()
	wantFrom := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC)
	if got == nil || !got.From.Equal(wantFrom) || !got.To.Equal(wantTo) || got.From.Location() != time.UTC {
		t.Errorf("cached range = %v, want %v..%v", got, wantFrom, wantTo)
	}
}

func TestTimelineUnset(t *testing.T) {
	cv, _ := NewColumnValue(newFake(), ColumnTimeline, columnJSON("span", `{"from": "", "to": ""}`))
	if got, err := cv.(*TimelineValue).Value(); err != nil || got != nil {
		t.Errorf("Value = %v, %v, want nil", got, err)
	}
}

func TestTagValue(t *testing.T) {
	ft := newFake().
		respond(http.MethodGet, "/tags/4.json", `{"id": 4, "name": "urgent"}`).
		respond(http.MethodPut, "/boards/1/columns/labels/tags.json", `{}`)
	ctx := context.Background()

	cv, _ := NewColumnValue(ft, ColumnTag, columnJSON("labels", `{"tag_ids": [4]}`))
	tags := cv.(*TagValue)

	got, err := tags.Value(ctx)
	if err != nil || len(got) != 1 || got[0].Name() != "urgent" {
		t.Fatalf("Value = %v, %v", got, err)
	}

	assertInvalidArgument(t, tags.Update(ctx, []int64{5, -1}))
	if err := tags.Update(ctx, []int64{5, 6}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = tags.Value(ctx)
	if len(got) != 2 || got[0].ID() != 5 || got[1].ID() != 6 {
		t.Errorf("tags after update = %v", got)
	}
	assertCalls(t, ft, 2)
}

func TestTagUnsetIsEmpty(t *testing.T) {
	cv, _ := NewColumnValue(newFake(), ColumnTag, columnJSON("labels", ""))
	got, err := cv.(*TagValue).Value(context.Background())
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("Value = %#v, %v, want empty slice", got, err)
	}
}

func ptr(f float64) *float64 { return &f }
