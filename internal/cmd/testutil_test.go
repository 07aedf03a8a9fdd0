package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
)

// restPath prefixes an FME Flow REST path.
func restPath(p string) string {
	return "/fmerest/v3" + p
}

// captureStdout executes fn and returns what it wrote to stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stdout = old
	return <-done
}

// captureStderr executes fn and returns what it wrote to stderr.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stderr = old
	return <-done
}

// captureOutput returns stdout and stderr of fn.
func captureOutput(t *testing.T, fn func()) (stdout, stderr string) {
	t.Helper()
	stderr = captureStderr(t, func() {
		stdout = captureStdout(t, fn)
	})
	return stdout, stderr
}

// testEnv holds the mock server the environment points at.
type testEnv struct {
	server   *httptest.Server
	cacheDir string
}

// setupTestEnvWithHandler starts handler on an httptest server and points the
// FMEFLOW_* environment at it. Loopback URLs are allowed, 5xx retries are
// off and the cache lives in a temp directory.
func setupTestEnvWithHandler(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	env := &testEnv{server: server, cacheDir: t.TempDir()}

	t.Setenv("HOME", t.TempDir())
	t.Setenv("FMEFLOW_SERVER_URL", server.URL)
	t.Setenv("FMEFLOW_TOKEN", "test-token")
	t.Setenv("FMEFLOW_REPOSITORY", "Samples")
	t.Setenv("FMEFLOW_ALLOW_PRIVATE", "1")
	t.Setenv("FMEFLOW_OUTPUT", "text")
	t.Setenv("FMEFLOW_MAX_5XX_RETRIES", "0")
	t.Setenv("FMEFLOW_MAX_RATE_LIMIT_RETRIES", "0")
	t.Setenv("FMEFLOW_CACHE_DIR", env.cacheDir)
	t.Setenv("FMEFLOW_GEOMETRY_SERVICE_URL", "")
	t.Setenv("FMEFLOW_TIMEOUT_MS", "")
	return env
}

// setupNoServerEnv clears the connection environment for commands that must
// not find any configuration.
func setupNoServerEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FMEFLOW_SERVER_URL", "")
	t.Setenv("FMEFLOW_TOKEN", "")
	t.Setenv("FMEFLOW_REPOSITORY", "")
	t.Setenv("FMEFLOW_GEOMETRY_SERVICE_URL", "")
	t.Setenv("FMEFLOW_TIMEOUT_MS", "")
	t.Setenv("FMEFLOW_ALLOW_PRIVATE", "")
	t.Setenv("FMEFLOW_CACHE_DIR", t.TempDir())
	resetKeyring(t)
}

// jsonResponse returns a handler writing body with the given status.
func jsonResponse(statusCode int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}
}

// routeHandler routes requests by exact "METHOD PATH" and records every
// request it sees. Unknown routes answer 404.
type routeHandler struct {
	routes map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

func newRouteHandler() *routeHandler {
	return &routeHandler{routes: make(map[string]http.HandlerFunc)}
}

// On registers handler for method and path.
func (h *routeHandler) On(method, path string, handler http.HandlerFunc) *routeHandler {
	h.routes[method+" "+path] = handler
	return h
}

func (h *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	h.mu.Lock()
	h.requests = append(h.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	h.mu.Unlock()

	if handler, ok := h.routes[r.Method+" "+r.URL.Path]; ok {
		handler(w, r)
		return
	}
	http.NotFound(w, r)
}

// count returns how many requests hit method and path.
func (h *routeHandler) count(method, path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// total returns how many requests the handler saw.
func (h *routeHandler) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

// last returns the most recent request to method and path.
func (h *routeHandler) last(method, path string) (recordedRequest, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.requests) - 1; i >= 0; i-- {
		if r := h.requests[i]; r.Method == method && r.Path == path {
			return r, true
		}
	}
	return recordedRequest{}, false
}

// unwrapHandled returns the command error behind a handledError.
func unwrapHandled(err error) error {
	var h *handledError
	if errors.As(err, &h) {
		return h.err
	}
	return err
}

// decodeJSON unmarshals output into a map, failing the test on error.
func decodeJSON(t *testing.T, output string) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal([]byte(output), &v); err != nil {
		t.Fatalf("output is not a JSON object: %v\n%s", err, output)
	}
	return v
}

// decodeItems returns the "items" array of a list payload.
func decodeItems(t *testing.T, output string) []map[string]any {
	t.Helper()
	var payload struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal([]byte(output), &payload); err != nil {
		t.Fatalf("output is not a list payload: %v\n%s", err, output)
	}
	return payload.Items
}
