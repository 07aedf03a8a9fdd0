package cmd

import (
	"context"
	"strings"
	"testing"
)

const reposBody = `{
	"items": [
		{"name": "Samples", "owner": "admin", "description": "Sample workspaces"},
		{"name": "Dashboards", "owner": "admin", "description": ""}
	],
	"totalCount": 2
}`

func TestReposList(t *testing.T) {
	handler := newRouteHandler().
		On("GET", restPath("/repositories"), jsonResponse(200, reposBody))
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"repos", "list"}); err != nil {
			t.Fatalf("repos list failed: %v", err)
		}
	})

	for _, want := range []string{"NAME", "OWNER", "Samples", "Dashboards", "Sample workspaces"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	req, ok := handler.last("GET", restPath("/repositories"))
	if !ok {
		t.Fatal("repositories endpoint was not called")
	}
	if !strings.Contains(req.Query, "limit=-1") {
		t.Errorf("expected unpaged request, got query %q", req.Query)
	}
	if got := req.Header.Get("Authorization"); !strings.Contains(got, "test-token") {
		t.Errorf("expected token in Authorization header, got %q", got)
	}
}

func TestReposListJSON(t *testing.T) {
	handler := newRouteHandler().
		On("GET", restPath("/repositories"), jsonResponse(200, reposBody))
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"repos", "ls", "-o", "json"}); err != nil {
			t.Fatalf("repos list failed: %v", err)
		}
	})

	items := decodeItems(t, output)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0]["name"] != "Samples" {
		t.Errorf("expected first repo Samples, got %v", items[0]["name"])
	}
	payload := decodeJSON(t, output)
	if _, ok := payload["meta"]; ok {
		t.Error("unpaged list should not carry pagination meta")
	}
}

func TestReposListQuery(t *testing.T) {
	handler := newRouteHandler().
		On("GET", restPath("/repositories"), jsonResponse(200, reposBody))
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"repos", "list", "--query", ".items[].name"}); err != nil {
			t.Fatalf("repos list failed: %v", err)
		}
	})
	if !strings.Contains(output, `"Samples"`) || !strings.Contains(output, `"Dashboards"`) {
		t.Errorf("expected filtered names, got:\n%s", output)
	}
	if strings.Contains(output, "owner") {
		t.Errorf("query should drop other fields, got:\n%s", output)
	}
}

func TestReposListEmpty(t *testing.T) {
	handler := newRouteHandler().
		On("GET", restPath("/repositories"), jsonResponse(200, `{"items": [], "totalCount": 0}`))
	setupTestEnvWithHandler(t, handler)

	stderr := captureStderr(t, func() {
		if err := Execute(context.Background(), []string{"repos", "list"}); err != nil {
			t.Fatalf("repos list failed: %v", err)
		}
	})
	if !strings.Contains(stderr, "No repositories found") {
		t.Errorf("expected empty message, got:\n%s", stderr)
	}
}

func TestReposListUnauthorized(t *testing.T) {
	handler := newRouteHandler().
		On("GET", restPath("/repositories"), jsonResponse(401, `{"message": "Invalid token"}`))
	setupTestEnvWithHandler(t, handler)

	var err error
	stderr := captureStderr(t, func() {
		err = Execute(context.Background(), []string{"repos", "list"})
	})
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if code := ExitCode(err); code != exitAuth {
		t.Errorf("expected exit code %d, got %d", exitAuth, code)
	}
	if !strings.Contains(stderr, "HTTP 401") {
		t.Errorf("expected HTTP status in error output, got:\n%s", stderr)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"much longer text", 10, "much lo..."},
		{"tiny", 2, "tiny"},
		{"åäöåäöåäö", 6, "åäö..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
