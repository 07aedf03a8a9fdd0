package cmd

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/fmeflow/fmeflow-cli/internal/update"
)

func stubUpdateCheck(t *testing.T, result *update.CheckResult) *int {
	t.Helper()
	calls := 0
	orig := checkForUpdate
	checkForUpdate = func(ctx context.Context, client *http.Client, current string) *update.CheckResult {
		calls++
		return result
	}
	t.Cleanup(func() { checkForUpdate = orig })
	t.Setenv(update.EnvNoUpdateCheck, "")
	return &calls
}

func TestVersion(t *testing.T) {
	setupNoServerEnv(t)
	calls := stubUpdateCheck(t, nil)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"version"}); err != nil {
			t.Fatalf("version failed: %v", err)
		}
	})
	if !strings.Contains(output, "fmeflow-cli version "+version) {
		t.Errorf("unexpected output %q", output)
	}
	if *calls != 1 {
		t.Errorf("expected one update check, got %d", *calls)
	}
}

func TestVersionUpdateAvailable(t *testing.T) {
	setupNoServerEnv(t)
	stubUpdateCheck(t, &update.CheckResult{
		CurrentVersion:  "v1.0.0",
		LatestVersion:   "v1.2.0",
		UpdateURL:       "https://github.com/fmeflow/fmeflow-cli/releases/tag/v1.2.0",
		UpdateAvailable: true,
	})

	_, stderr := captureOutput(t, func() {
		if err := Execute(context.Background(), []string{"version"}); err != nil {
			t.Fatalf("version failed: %v", err)
		}
	})
	if !strings.Contains(stderr, "Update available: v1.0.0 -> v1.2.0") || !strings.Contains(stderr, "releases/tag/v1.2.0") {
		t.Errorf("expected update notice on stderr, got:\n%s", stderr)
	}
}

func TestVersionJSON(t *testing.T) {
	setupNoServerEnv(t)
	stubUpdateCheck(t, &update.CheckResult{CurrentVersion: "v1.0.0", LatestVersion: "v1.0.0"})

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"version", "-o", "json"}); err != nil {
			t.Fatalf("version failed: %v", err)
		}
	})
	payload := decodeJSON(t, output)
	if payload["version"] != version || payload["go_version"] == "" {
		t.Errorf("unexpected payload %v", payload)
	}
	upd, _ := payload["update"].(map[string]any)
	if upd["update_available"] != false {
		t.Errorf("expected update info, got %v", payload["update"])
	}
}

func TestVersionSkipsUpdateCheck(t *testing.T) {
	setupNoServerEnv(t)
	calls := stubUpdateCheck(t, nil)
	t.Setenv(update.EnvNoUpdateCheck, "1")

	captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"version"}); err != nil {
			t.Fatalf("version failed: %v", err)
		}
	})
	if *calls != 0 {
		t.Errorf("update check should be skipped, got %d calls", *calls)
	}
}
