package pulse

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

type call struct {
	method string
	path   string
	params Params
}

// fakeTransport answers from canned bodies keyed by "METHOD path" and
// counts every call it sees.
type fakeTransport struct {
	responses map[string]string
	calls     []call
}

func newFake() *fakeTransport {
	return &fakeTransport{responses: make(map[string]string)}
}

func (f *fakeTransport) respond(method, path, body string) *fakeTransport {
	f.responses[method+" "+path] = body
	return f
}

func (f *fakeTransport) count(method, path string) int {
	n := 0
	for _, c := range f.calls {
		if c.method == method && c.path == path {
			n++
		}
	}
	return n
}

func (f *fakeTransport) last() call {
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeTransport) Get(ctx context.Context, path string, params Params) (json.RawMessage, error) {
	return f.do(http.MethodGet, path, params)
}

func (f *fakeTransport) Post(ctx context.Context, path string, params Params) (json.RawMessage, error) {
	return f.do(http.MethodPost, path, params)
}

func (f *fakeTransport) Put(ctx context.Context, path string, params Params) (json.RawMessage, error) {
	return f.do(http.MethodPut, path, params)
}

func (f *fakeTransport) Delete(ctx context.Context, path string, params Params) (json.RawMessage, error) {
	return f.do(http.MethodDelete, path, params)
}

func (f *fakeTransport) do(method, path string, params Params) (json.RawMessage, error) {
	f.calls = append(f.calls, call{method: method, path: path, params: params})
	body, ok := f.responses[method+" "+path]
	if !ok {
		return nil, &HTTPError{StatusCode: http.StatusNotFound, Message: "no route for " + method + " " + path}
	}
	return json.RawMessage(body), nil
}

func assertCalls(t *testing.T, f *fakeTransport, want int) {
	t.Helper()
	if len(f.calls) != want {
		t.Fatalf("transport calls = %d, want %d: %+v", len(f.calls), want, f.calls)
	}
}

func assertInvalidArgument(t *testing.T, err error) {
	t.Helper()
	if !IsInvalidArgument(err) {
		t.Fatalf("error = %v, want InvalidArgumentError", err)
	}
}

func assertInvalidObject(t *testing.T, err error) {
	t.Helper()
	if !IsInvalidObject(err) {
		t.Fatalf("error = %v, want InvalidObjectError", err)
	}
}
