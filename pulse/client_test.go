package pulse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

type seenRequest struct {
	method      string
	path        string
	query       url.Values
	form        url.Values
	contentType string
}

// newTestClient serves one canned response and returns a func reporting
// the last request the server saw.
func newTestClient(t *testing.T, status int, body string) (*Client, func() seenRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen seenRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seen.method = r.Method
		seen.path = r.URL.Path
		seen.query = r.URL.Query()
		seen.contentType = r.Header.Get("Content-Type")
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			data, _ := io.ReadAll(r.Body)
			seen.form, _ = url.ParseQuery(string(data))
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{APIKey: "secret", BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, func() seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return seen
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("NewClient without an API key succeeded")
	}
}

func TestClientGetEncodesQuery(t *testing.T) {
	client, lastRequest := newTestClient(t, http.StatusOK, `{"id": 1}`)

	raw, err := client.Get(context.Background(), "/boards.json", Params{
		"page":         2,
		"only_globals": true,
		"skip":         nil,
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(raw) != `{"id": 1}` {
		t.Errorf("body = %s", raw)
	}
	seen := lastRequest()
	if seen.method != http.MethodGet || seen.path != "/v1/boards.json" {
		t.Errorf("request = %s %s", seen.method, seen.path)
	}
	if got := seen.query.Get("api_key"); got != "secret" {
		t.Errorf("api_key = %q", got)
	}
	if seen.query.Get("page") != "2" || seen.query.Get("only_globals") != "true" {
		t.Errorf("query = %v", seen.query)
	}
	if seen.query.Has("skip") {
		t.Errorf("nil param was sent: %v", seen.query)
	}
}

func TestClientPutSendsForm(t *testing.T) {
	client, lastRequest := newTestClient(t, http.StatusCreated, `{}`)

	_, err := client.Put(context.Background(), "/pulses/3.json", Params{
		"pulse": Params{"name": "Ship"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	seen := lastRequest()
	if seen.contentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", seen.contentType)
	}
	if got := seen.form.Get("pulse[name]"); got != "Ship" {
		t.Errorf("pulse[name] = %q, form = %v", got, seen.form)
	}
	if seen.query.Get("api_key") != "secret" {
		t.Errorf("api_key missing from query: %v", seen.query)
	}
}

func TestClientHTTPError(t *testing.T) {
	client, _ := newTestClient(t, http.StatusNotFound, `{"message": "Board not found"}`)

	_, err := client.Get(context.Background(), "/boards/9.json", nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusNotFound || httpErr.Message != "Board not found" {
		t.Errorf("HTTPError = %+v", httpErr)
	}
	if !IsNotFound(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsNotFound did not see through wrapping")
	}
}

func TestClientPlainTextError(t *testing.T) {
	client, _ := newTestClient(t, http.StatusInternalServerError, "upstream exploded\n")

	_, err := client.Get(context.Background(), "/boards.json", nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Message != "upstream exploded" {
		t.Errorf("error = %v", err)
	}
	if IsNotFound(err) {
		t.Error("500 reported as not found")
	}
}

func TestClientEmptyBody(t *testing.T) {
	client, _ := newTestClient(t, http.StatusOK, "")

	raw, err := client.Delete(context.Background(), "/pulses/3.json", nil)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !isNull(raw) {
		t.Errorf("body = %s, want null", raw)
	}
}

func TestClientTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	client, err := NewClient(ClientConfig{APIKey: "k", BaseURL: base})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Get(context.Background(), "/boards.json", nil)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if transportErr.Method != http.MethodGet || transportErr.Path != "/boards.json" {
		t.Errorf("TransportError = %+v", transportErr)
	}
}

func TestEncodeParams(t *testing.T) {
	due := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	values := encodeParams(Params{
		"tag_ids":  []int64{4, 9},
		"labels":   []string{"Open"},
		"due":      due,
		"value":    1.5,
		"owners":   Params{"ids": []int{7}},
		"archived": false,
	})

	want := map[string]string{
		"tag_ids[0]":     "4",
		"tag_ids[1]":     "9",
		"labels[0]":      "Open",
		"due":            "2024-03-05",
		"value":          "1.5",
		"owners[ids][0]": "7",
		"archived":       "false",
	}
	for key, value := range want {
		if got := values.Get(key); got != value {
			t.Errorf("%s = %q, want %q", key, got, value)
		}
	}
	if len(values) != len(want) {
		t.Errorf("encoded %d keys, want %d: %v", len(values), len(want), values)
	}
}

func TestPageOptionsParams(t *testing.T) {
	if p := (PageOptions{}).params(); len(p) != 0 {
		t.Errorf("zero options = %v, want empty", p)
	}
	p := PageOptions{Page: 3, PerPage: 25}.params()
	if p["page"] != 3 || p["per_page"] != 25 {
		t.Errorf("params = %v", p)
	}
}
