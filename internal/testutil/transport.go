package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/nhle/gopulse/pulse"
)

// Call is one request seen by a FakeTransport.
type Call struct {
	Method string
	Path   string
	Params pulse.Params
}

// FakeTransport answers requests from canned JSON bodies keyed by
// "METHOD path". Unknown routes fail with a 404 HTTPError. It is safe for
// concurrent use.
type FakeTransport struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	errors    map[string]error
	calls     []Call
}

// NewFakeTransport returns an empty FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		responses: make(map[string]json.RawMessage),
		errors:    make(map[string]error),
	}
}

// Respond registers the body returned for method and path.
func (f *FakeTransport) Respond(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = json.RawMessage(body)
}

// Fail registers an error returned for method and path.
func (f *FakeTransport) Fail(method, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[method+" "+path] = err
}

// Calls returns a copy of every call made so far.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many calls matched method and path.
func (f *FakeTransport) CallCount(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (f *FakeTransport) Get(ctx context.Context, path string, params pulse.Params) (json.RawMessage, error) {
	return f.do(ctx, http.MethodGet, path, params)
}

func (f *FakeTransport) Post(ctx context.Context, path string, params pulse.Params) (json.RawMessage, error) {
	return f.do(ctx, http.MethodPost, path, params)
}

func (f *FakeTransport) Put(ctx context.Context, path string, params pulse.Params) (json.RawMessage, error) {
	return f.do(ctx, http.MethodPut, path, params)
}

func (f *FakeTransport) Delete(ctx context.Context, path string, params pulse.Params) (json.RawMessage, error) {
	return f.do(ctx, http.MethodDelete, path, params)
}

func (f *FakeTransport) do(
	ctx context.Context,
	method string,
	path string,
	params pulse.Params,
) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &pulse.TransportError{Method: method, Path: path, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Method: method, Path: path, Params: params})
	key := method + " " + path
	if err, ok := f.errors[key]; ok {
		return nil, err
	}
	body, ok := f.responses[key]
	if !ok {
		return nil, &pulse.HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("no route for %s", key),
		}
	}
	return body, nil
}
