package dryrun

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestDryRunContext(t *testing.T) {
	if IsEnabled(context.Background()) {
		t.Error("IsEnabled should return false by default")
	}
	if !IsEnabled(WithDryRun(context.Background(), true)) {
		t.Error("IsEnabled should return true when enabled")
	}
	if IsEnabled(WithDryRun(context.Background(), false)) {
		t.Error("IsEnabled should return false when explicitly disabled")
	}
}

func TestPreview_Write(t *testing.T) {
	p := NewPreview("submit", "job clip.fmw")
	p.Method = "POST"
	p.URL = "https://fme.example.com/fmeapiv4/transformations/submit"
	p.Description = "Submit to repository Samples"
	p.Details = map[string]any{"MINX": 10.5, "AREA": 1234.0, "FORMAT": "GPKG"}
	p.Warn("area %s exceeds the workspace limit", "1 km²")

	var buf bytes.Buffer
	p.Write(&buf)
	out := buf.String()

	for _, want := range []string{
		"[DRY-RUN] Would submit job clip.fmw",
		"POST https://fme.example.com/fmeapiv4/transformations/submit",
		"Submit to repository Samples",
		"! area 1 km² exceeds the workspace limit",
		"Nothing sent (dry-run mode)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	area := strings.Index(out, "AREA:")
	format := strings.Index(out, "FORMAT:")
	minx := strings.Index(out, "MINX:")
	if area >= format || format >= minx {
		t.Errorf("details should be sorted:\n%s", out)
	}
}

func TestPreview_Minimal(t *testing.T) {
	var buf bytes.Buffer
	NewPreview("upload", "file a.geojson").Write(&buf)
	if strings.Contains(buf.String(), "Warnings:") {
		t.Error("no warnings section expected")
	}
}

func TestPreview_JSON(t *testing.T) {
	data, err := json.Marshal(NewPreview("cancel", "job 42"))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	if m["dry_run"] != true || m["operation"] != "cancel" {
		t.Errorf("unexpected %s", data)
	}
	if _, ok := m["details"]; ok {
		t.Error("empty details should be omitted")
	}
}
