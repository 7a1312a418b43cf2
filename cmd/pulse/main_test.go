package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/99designs/keyring"

	"github.com/nhle/gopulse/internal/config"
	"github.com/nhle/gopulse/internal/credential"
)

// apiServer serves canned JSON by path and records form values of writes.
type apiServer struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]string
	writes []string
	keys   []string
}

func newAPIServer(t *testing.T, routes map[string]string) *apiServer {
	t.Helper()
	s := &apiServer{routes: routes}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.keys = append(s.keys, r.Form.Get("api_key"))
		if r.Method == http.MethodPut || r.Method == http.MethodPost {
			s.writes = append(s.writes, r.Method+" "+r.URL.Path+" "+r.PostForm.Encode())
		}

		body, ok := s.routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message": "not found"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

// setup points the CLI at server and an in-memory keyring, and returns
// the config path to pass with --config.
func setup(t *testing.T, server *apiServer) (string, keyring.Keyring) {
	t.Helper()
	if server != nil {
		t.Setenv("PULSE_BASE_URL", server.URL)
	}
	t.Setenv("PULSE_API_KEY", "")

	ring := keyring.NewArrayKeyring(nil)
	previous := openCredentials
	openCredentials = func() (*credential.Store, error) {
		return credential.New(ring), nil
	}
	t.Cleanup(func() { openCredentials = previous })

	return filepath.Join(t.TempDir(), "config.yaml"), ring
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

const boardJSON = `{
	"id": 3,
	"name": "Roadmap",
	"columns": [
		{"id": "name", "title": "Name", "type": "name"},
		{"id": "status", "title": "Status", "type": "color", "labels": ["Working", "Done"]}
	],
	"groups": [{"id": "topics", "title": "Topics"}]
}`

const pulsesJSON = `[
	{"pulse": {"id": 31, "name": "Ship it"}, "board_meta": {"group_id": "topics"},
	 "column_values": [{"cid": "status", "value": {"index": 1}}]}
]`

func TestUsageErrors(t *testing.T) {
	configPath, _ := setup(t, nil)

	tests := [][]string{
		{},
		{"--config", configPath, "explode"},
		{"--config", configPath, "board"},
		{"--config", configPath, "board", "abc"},
		{"--config", configPath, "set-status", "1", "status", "high"},
	}
	for _, args := range tests {
		_, _, err := runCLI(t, args...)
		var usage *usageError
		if !errors.As(err, &usage) {
			t.Errorf("run(%q) error = %v, want usage error", args, err)
		}
	}
}

func TestHelpListsCommands(t *testing.T) {
	stdout, _, err := runCLI(t, "--help")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for name := range commands {
		if !strings.Contains(stdout, name) {
			t.Errorf("help missing %q", name)
		}
	}
}

func TestBoardsTable(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		"GET /v1/boards.json": `[{"id": 3, "name": "Roadmap", "description": "Plans\nfor Q3"}]`,
	})
	configPath, _ := setup(t, server)

	stdout, _, err := runCLI(t, "--config", configPath, "--api-key", "flag-key", "boards")
	if err != nil {
		t.Fatalf("boards: %v", err)
	}
	if !strings.Contains(stdout, "Roadmap") || !strings.Contains(stdout, "Plans for Q3") {
		t.Errorf("stdout = %q", stdout)
	}
	if server.keys[0] != "flag-key" {
		t.Errorf("api_key = %q, want flag-key", server.keys[0])
	}
}

func TestAPIKeyFromKeyring(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		"GET /v1/boards.json": `[]`,
	})
	configPath, ring := setup(t, server)
	if err := credential.New(ring).SetAPIKey("ring-key"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}

	if _, _, err := runCLI(t, "--config", configPath, "boards"); err != nil {
		t.Fatalf("boards: %v", err)
	}
	if server.keys[0] != "ring-key" {
		t.Errorf("api_key = %q, want ring-key", server.keys[0])
	}

	t.Setenv("PULSE_API_KEY", "env-key")
	if _, _, err := runCLI(t, "--config", configPath, "boards"); err != nil {
		t.Fatalf("boards: %v", err)
	}
	if server.keys[1] != "env-key" {
		t.Errorf("api_key = %q, want env-key over the keyring", server.keys[1])
	}
}

func TestMissingAPIKey(t *testing.T) {
	configPath, _ := setup(t, nil)

	_, _, err := runCLI(t, "--config", configPath, "boards")
	if err == nil || !strings.Contains(err.Error(), "pulse login") {
		t.Errorf("error = %v, want a hint to log in", err)
	}
}

func TestLoginAndLogout(t *testing.T) {
	configPath, ring := setup(t, nil)

	if _, _, err := runCLI(t, "--config", configPath, "login", "--key", " secret ", "--no-verify"); err != nil {
		t.Fatalf("login: %v", err)
	}
	got, err := credential.New(ring).APIKey()
	if err != nil || got != "secret" {
		t.Fatalf("stored key = %q, %v", got, err)
	}

	if _, _, err := runCLI(t, "--config", configPath, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := credential.New(ring).APIKey(); !errors.Is(err, credential.ErrNotFound) {
		t.Errorf("key after logout: %v", err)
	}
}

func TestLoginVerifiesKey(t *testing.T) {
	server := newAPIServer(t, map[string]string{})
	configPath, ring := setup(t, server)

	if _, _, err := runCLI(t, "--config", configPath, "login", "--key", "bad"); err == nil {
		t.Fatal("login with a rejected key succeeded")
	}
	if _, err := credential.New(ring).APIKey(); !errors.Is(err, credential.ErrNotFound) {
		t.Errorf("rejected key was stored: %v", err)
	}
}

func TestPulsesShowsStatusLabel(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		"GET /v1/boards/3.json":        boardJSON,
		"GET /v1/boards/3/pulses.json": pulsesJSON,
	})
	configPath, _ := setup(t, server)

	stdout, _, err := runCLI(t, "--config", configPath, "--api-key", "k", "pulses", "3")
	if err != nil {
		t.Fatalf("pulses: %v", err)
	}
	if !strings.Contains(stdout, "Ship it") || !strings.Contains(stdout, "Done") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestSetStatus(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		"GET /v1/pulses/31.json":                      `{"id": 31, "name": "Ship it", "board_id": 3}`,
		"GET /v1/boards/3.json":                       boardJSON,
		"GET /v1/boards/3/columns/status/value.json":  `{"index": 0}`,
		"PUT /v1/boards/3/columns/status/status.json": `{}`,
	})
	configPath, _ := setup(t, server)

	if _, _, err := runCLI(t, "--config", configPath, "--api-key", "k", "set-status", "31", "status", "1"); err != nil {
		t.Fatalf("set-status: %v", err)
	}
	if len(server.writes) != 1 {
		t.Fatalf("writes = %v", server.writes)
	}
	write := server.writes[0]
	if !strings.Contains(write, "color_index=1") || !strings.Contains(write, "pulse_id=31") {
		t.Errorf("write = %q", write)
	}

	_, _, err := runCLI(t, "--config", configPath, "--api-key", "k", "set-status", "31", "status", "11")
	if err == nil {
		t.Error("out-of-range index accepted")
	}
}

func TestMirrorOnce(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		"GET /v1/boards/3.json":        boardJSON,
		"GET /v1/boards/3/groups.json": `[{"id": "topics", "title": "Topics"}]`,
		"GET /v1/boards/3/pulses.json": pulsesJSON,
	})
	configPath, _ := setup(t, server)
	db := filepath.Join(t.TempDir(), "mirror.db")

	stdout, _, err := runCLI(t, "--config", configPath, "--api-key", "k", "mirror", "3", "--db", db)
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	if !strings.Contains(stdout, "1 pulses (1 new)") {
		t.Errorf("stdout = %q", stdout)
	}

	stdout, _, err = runCLI(t, "--config", configPath, "--api-key", "k", "mirror", "3", "--db", db)
	if err != nil {
		t.Fatalf("second mirror: %v", err)
	}
	if !strings.Contains(stdout, "(0 new)") {
		t.Errorf("second run stdout = %q", stdout)
	}
}

func TestLoginSavesActingUser(t *testing.T) {
	configPath, _ := setup(t, nil)

	if _, _, err := runCLI(t, "--config", configPath, "login", "--key", "k", "--no-verify", "--user", "7"); err != nil {
		t.Fatalf("login: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UserID != 7 {
		t.Errorf("UserID = %d, want 7", cfg.UserID)
	}
	if cfg.APIKey != "" {
		t.Error("API key written to the config file")
	}
}

func TestCommentUsesConfiguredUser(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		"GET /v1/pulses/31.json": `{"id": 31, "name": "Ship it", "board_id": 3}`,
		"POST /v1/updates.json":  `{"id": 90, "body": "<p>Shipped</p>"}`,
	})
	configPath, _ := setup(t, server)

	_, _, err := runCLI(t, "--config", configPath, "--api-key", "k", "comment", "31", "Shipped")
	var usage *usageError
	if !errors.As(err, &usage) {
		t.Fatalf("comment without a user: %v, want usage error", err)
	}

	t.Setenv("PULSE_USER_ID", "7")
	stdout, _, err := runCLI(t, "--config", configPath, "--api-key", "k", "comment", "31", "Shipped")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if !strings.Contains(stdout, "Update 90") {
		t.Errorf("stdout = %q", stdout)
	}
	if len(server.writes) != 1 {
		t.Fatalf("writes = %v", server.writes)
	}
	write := server.writes[0]
	if !strings.Contains(write, "user=7") || !strings.Contains(write, "update_text=Shipped") {
		t.Errorf("write = %q", write)
	}
}

func TestRunsListsMirrorHistory(t *testing.T) {
	server := newAPIServer(t, map[string]string{
		"GET /v1/boards/3.json":        boardJSON,
		"GET /v1/boards/3/groups.json": `[]`,
		"GET /v1/boards/3/pulses.json": pulsesJSON,
	})
	configPath, _ := setup(t, server)
	db := filepath.Join(t.TempDir(), "mirror.db")

	if _, _, err := runCLI(t, "--config", configPath, "--api-key", "k", "mirror", "3", "--db", db); err != nil {
		t.Fatalf("mirror: %v", err)
	}

	stdout, _, err := runCLI(t, "--config", configPath, "runs", "3", "--db", db)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(stdout, "PULSES") || !strings.Contains(stdout, "ok") {
		t.Errorf("stdout = %q", stdout)
	}

	_, stderr, err := runCLI(t, "--config", configPath, "runs", "4", "--db", db)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(stderr, "has not been mirrored") {
		t.Errorf("stderr = %q", stderr)
	}
}
