package cmd

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmeflow/fmeflow-cli/internal/api"
)

const downloadSuccessBody = `{
	"serviceResponse": {
		"statusInfo": {"status": "success", "mode": "sync"},
		"jobID": 77,
		"url": "https://fme.example.com/fmedatadownload/results/clip_77.zip"
	}
}`

func streamResponse(body, contentType, fileName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		if fileName != "" {
			w.Header().Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

func TestRunDownload(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/fmedatadownload/Samples/clip.fmw", jsonResponse(200, downloadSuccessBody))
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"run", "clip.fmw", "-p", "FORMAT=SHAPE"}); err != nil {
			t.Fatalf("run failed: %v", err)
		}
	})
	for _, want := range []string{"SUCCESS", "77", "clip_77.zip"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	req, ok := handler.last("GET", "/fmedatadownload/Samples/clip.fmw")
	if !ok {
		t.Fatal("data download webhook was not called")
	}
	for _, want := range []string{"FORMAT=SHAPE", "token=test-token"} {
		if !strings.Contains(req.Query, want) {
			t.Errorf("query %q missing %q", req.Query, want)
		}
	}
}

func TestRunDownloadFailure(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/fmedatadownload/Samples/clip.fmw", jsonResponse(200, `{
			"serviceResponse": {"statusInfo": {"status": "failure", "message": "Translation failed"}}
		}`))
	setupTestEnvWithHandler(t, handler)

	var err error
	stderr := captureStderr(t, func() {
		err = Execute(context.Background(), []string{"run", "clip.fmw"})
	})
	if err == nil {
		t.Fatal("expected error for failed run")
	}
	if !strings.Contains(stderr, "Translation failed") {
		t.Errorf("expected server message on stderr:\n%s", stderr)
	}
}

func TestRunDownloadHTMLLogin(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/fmedatadownload/Samples/clip.fmw", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<!DOCTYPE html><html><body>Sign in</body></html>"))
		})
	setupTestEnvWithHandler(t, handler)

	var err error
	captureStderr(t, func() {
		err = Execute(context.Background(), []string{"run", "clip.fmw"})
	})
	if !api.IsCode(unwrapHandled(err), api.CodeWebhookAuth) {
		t.Fatalf("expected webhook auth error, got %v", err)
	}
	if code := ExitCode(err); code != exitAuth {
		t.Errorf("expected exit code %d, got %d", exitAuth, code)
	}
}

func TestRunStreamingToFile(t *testing.T) {
	handler := newRouteHandler().
		On("POST", "/fmedatastreaming/Samples/export.fmw", streamResponse("id,name\n1,Parcel A\n", "text/csv", "parcels.csv"))
	setupTestEnvWithHandler(t, handler)

	outFile := filepath.Join(t.TempDir(), "out.csv")
	output := captureStdout(t, func() {
		err := Execute(context.Background(), []string{"run", "export.fmw", "--service", "streaming", "--output-file", outFile, "-p", "LAYER=parcels"})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	})

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("output file not written: %v", err)
	}
	if string(data) != "id,name\n1,Parcel A\n" {
		t.Errorf("unexpected file content %q", data)
	}
	if !strings.Contains(output, "Wrote output "+outFile) || !strings.Contains(output, "text/csv") {
		t.Errorf("unexpected output:\n%s", output)
	}

	req, _ := handler.last("POST", "/fmedatastreaming/Samples/export.fmw")
	if !strings.Contains(string(req.Body), "LAYER=parcels") {
		t.Errorf("expected form-encoded parameters, got %q", req.Body)
	}
	if got := req.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected content type %q", got)
	}
}

func TestRunStreamingStdout(t *testing.T) {
	handler := newRouteHandler().
		On("POST", "/fmedatastreaming/Samples/export.fmw", streamResponse("raw-bytes", "application/octet-stream", "result.bin"))
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"run", "export.fmw", "-s", "stream", "--output-file", "-"}); err != nil {
			t.Fatalf("run failed: %v", err)
		}
	})
	if output != "raw-bytes" {
		t.Errorf("expected raw payload on stdout, got %q", output)
	}
}

func TestRunStreamingDefaultFileName(t *testing.T) {
	handler := newRouteHandler().
		On("POST", "/fmedatastreaming/Samples/export.fmw", streamResponse("zipdata", "application/zip", "export.zip"))
	setupTestEnvWithHandler(t, handler)
	dir := t.TempDir()
	t.Chdir(dir)

	captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"run", "export.fmw", "--service", "streaming"}); err != nil {
			t.Fatalf("run failed: %v", err)
		}
	})
	data, err := os.ReadFile(filepath.Join(dir, "export.zip"))
	if err != nil || string(data) != "zipdata" {
		t.Errorf("expected export.zip from Content-Disposition, got %q (%v)", data, err)
	}
}

func TestRunStreamingJSON(t *testing.T) {
	handler := newRouteHandler().
		On("POST", "/fmedatastreaming/Samples/export.fmw", streamResponse("12345", "text/plain", ""))
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"run", "export.fmw", "--service", "streaming", "-o", "json"}); err != nil {
			t.Fatalf("run failed: %v", err)
		}
	})
	payload := decodeJSON(t, output)
	stream, _ := payload["stream"].(map[string]any)
	if payload["service"] != "streaming" || stream["size"] != float64(5) || stream["contentType"] != "text/plain" {
		t.Errorf("unexpected payload: %v", payload)
	}
	if _, ok := payload["path"]; ok {
		t.Error("no file should be written without --output-file in JSON mode")
	}
}

func TestRunScheduleService(t *testing.T) {
	handler := newRouteHandler().
		On("POST", restPath("/transformations/submit/Samples/report.fmw"), jsonResponse(202, `{"id": 501}`))
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"run", "report.fmw", "--service", "schedule"}); err != nil {
			t.Fatalf("run failed: %v", err)
		}
	})
	if !strings.Contains(output, "Submitted job 501") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestRunScheduleModeOverridesService(t *testing.T) {
	handler := newRouteHandler().
		On("POST", restPath("/transformations/submit/Samples/report.fmw"), jsonResponse(202, `{"id": 502}`))
	setupTestEnvWithHandler(t, handler)

	captureStdout(t, func() {
		err := Execute(context.Background(), []string{"run", "report.fmw", "--service", "streaming", "-p", "opt_servicemode=schedule"})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	})
	if handler.count("POST", restPath("/transformations/submit/Samples/report.fmw")) != 1 {
		t.Error("schedule parameters should route through job submission")
	}
	if handler.count("POST", "/fmedatastreaming/Samples/report.fmw") != 0 {
		t.Error("streaming webhook must not be called in schedule mode")
	}
}

func TestRunDryRun(t *testing.T) {
	handler := newRouteHandler()
	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"run", "clip.fmw", "--dry-run"}); err != nil {
			t.Fatalf("dry run failed: %v", err)
		}
	})
	if !strings.Contains(output, "[DRY-RUN] Would run workspace") || !strings.Contains(output, "GET ") || !strings.Contains(output, "/fmedatadownload/Samples/clip.fmw") {
		t.Errorf("unexpected preview:\n%s", output)
	}
	if handler.total() != 0 {
		t.Errorf("dry run must not send requests, got %d", handler.total())
	}
}

func TestRunInvalidService(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler())

	var err error
	captureStderr(t, func() {
		err = Execute(context.Background(), []string{"run", "clip.fmw", "--service", "ftp"})
	})
	if err == nil {
		t.Fatal("expected error for unknown service")
	}
	if code := ExitCode(err); code != exitUsage {
		t.Errorf("expected usage exit code, got %d", code)
	}
}

func TestParseService(t *testing.T) {
	tests := []struct {
		in      string
		want    api.Service
		wantErr bool
	}{
		{"", api.ServiceDownload, false},
		{"download", api.ServiceDownload, false},
		{"DataDownload", api.ServiceDownload, false},
		{"streaming", api.ServiceStreaming, false},
		{" stream ", api.ServiceStreaming, false},
		{"schedule", api.ServiceSchedule, false},
		{"submit", api.ServiceSchedule, false},
		{"ftp", "", true},
	}
	for _, tt := range tests {
		got, err := parseService(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseService(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseService(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
