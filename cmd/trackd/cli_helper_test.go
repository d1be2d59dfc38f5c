package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// restoreLogger puts the default logger back once the test is done
func restoreLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

// execute runs a fresh command tree with args and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	restoreLogger(t)
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stripANSI(out.String()), err
}

type testEnv struct {
	server       *httptest.Server
	unauthorized atomic.Bool
	meRequests   atomic.Int32
	pushed       atomic.Int32

	configPath string
	dataDir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}
	tmp := t.TempDir()
	env.configPath = filepath.Join(tmp, "config.json")
	env.dataDir = filepath.Join(tmp, "data")

	me := map[string]any{"id": 1, "email": "alice@example.com", "api_token": "alice-token"}
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		loginOK := user == "alice@example.com" && pass == "secret"
		tokenOK := user == "alice-token" && pass == "api_token"
		if env.unauthorized.Load() || !(loginOK || tokenOK) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/v9/me":
			env.meRequests.Add(1)
			_ = json.NewEncoder(w).Encode(me)
		case r.URL.Path == "/api/v9/me/time_entries":
			_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 30, "workspace_id": 1, "description": "review", "duration": 60}})
		case strings.HasPrefix(r.URL.Path, "/api/v9/me/"):
			_ = json.NewEncoder(w).Encode([]any{})
		case strings.HasPrefix(r.URL.Path, "/api/v9/workspaces/") && (r.Method == http.MethodPost || r.Method == http.MethodPut):
			env.pushed.Add(1)
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if r.Method == http.MethodPost {
				body["id"] = 31
			}
			_ = json.NewEncoder(w).Encode(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(env.server.Close)
	return env
}

// run executes a command against the env's config, data dir and server
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append(args,
		"--config", e.configPath,
		"--datadir", e.dataDir,
		"--server", e.server.URL,
	)...)
}
