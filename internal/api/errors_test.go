package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Code: CodeURLTooLong}, "URL_TOO_LONG"},
		{&Error{Code: CodeRepositories, Message: "Authentication failed", Status: 401}, "Authentication failed (status 401)"},
		{&Error{Code: CodeConnection, Message: "CONNECTION_ERROR", Err: inner}, "CONNECTION_ERROR: dial tcp: refused"},
		{&Error{Code: CodeRequestTimeout, Message: "REQUEST_TIMEOUT", Status: 408, Err: inner}, "REQUEST_TIMEOUT (status 408): dial tcp: refused"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("running job: %w", newError(CodeWebhookAuth, 401, "", nil))
	if !IsCode(wrapped, CodeWebhookAuth) {
		t.Error("IsCode should see through wrapping")
	}
	if CodeOf(wrapped) != CodeWebhookAuth || StatusOf(wrapped) != 401 {
		t.Errorf("CodeOf/StatusOf = %s/%d", CodeOf(wrapped), StatusOf(wrapped))
	}
	if !IsAuthError(wrapped) {
		t.Error("IsAuthError")
	}
	if !IsAuthError(newError(CodeRepositories, 403, "", nil)) {
		t.Error("403 is an auth error")
	}
	if IsAuthError(errors.New("plain")) || CodeOf(errors.New("plain")) != CodeUnknown {
		t.Error("plain errors carry no code")
	}
	if !IsNotFoundError(newError(CodeWorkspaceItem, 404, "", nil)) {
		t.Error("IsNotFoundError")
	}

	inner := errors.New("inner")
	if !errors.Is(newError(CodeUpload, 0, "x", inner), inner) {
		t.Error("Unwrap")
	}
}

func TestErrorCode_IsRetryable(t *testing.T) {
	for _, c := range []ErrorCode{CodeRequestTimeout, CodeRequestFailed, CodeCircuitOpen} {
		if !c.IsRetryable() {
			t.Errorf("%s should be retryable", c)
		}
	}
	for _, c := range []ErrorCode{CodeInvalidConfig, CodeWebhookAuth, CodeURLTooLong, CodeGeometryInvalid} {
		if c.IsRetryable() {
			t.Errorf("%s should not be retryable", c)
		}
	}
}

func TestStructuredErrorFromError(t *testing.T) {
	se := StructuredErrorFromError(newError(CodeURLTooLong, 0, "webhook URL is 5000 characters, limit is 4000", nil))
	if se.Code != CodeURLTooLong || !strings.Contains(se.Suggestion, "streaming") {
		t.Errorf("unexpected %+v", se)
	}
	data, err := json.Marshal(se)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["code"] != "URL_TOO_LONG" {
		t.Errorf("code = %v", decoded["code"])
	}

	if StructuredErrorFromError(nil) != nil {
		t.Error("nil in, nil out")
	}
	plain := StructuredErrorFromError(errors.New("boom"))
	if plain.Code != CodeUnknown || plain.Message != "boom" {
		t.Errorf("plain = %+v", plain)
	}
}

func TestNewValidationError(t *testing.T) {
	se := NewValidationError("service", "ftp", []string{"download", "streaming"})
	if se.Code != CodeInvalidConfig {
		t.Errorf("code = %s", se.Code)
	}
	if !strings.Contains(se.Message, `"ftp"`) || se.Context["field"] != "service" {
		t.Errorf("unexpected %+v", se)
	}
}

func TestSanitizeErrorBody(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"message":"Not found"}`, "Not found"},
		{`{"message":"Bad request","reason":"invalid parameter"}`, "Bad request (invalid parameter)"},
		{`{"reason":"only reason"}`, "only reason"},
		{`{"error":"forbidden"}`, "forbidden"},
		{`{"message":"Invalid","details":{"limit":"must be positive","offset":["too big","negative"]}}`,
			"Invalid\n  limit: must be positive\n  offset: negative\n  offset: too big"},
		{`<html>stack trace</html>`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		if got := sanitizeErrorBody([]byte(tt.body)); got != tt.want {
			t.Errorf("sanitizeErrorBody(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestLooksLikeHTML(t *testing.T) {
	tests := map[string]bool{
		"<!DOCTYPE html><html></html>": true,
		"  <html><body>login":          true,
		`{"a":1}`:                      false,
		"<xml/>":                       false,
		"":                             false,
	}
	for body, want := range tests {
		if got := looksLikeHTML([]byte(body)); got != want {
			t.Errorf("looksLikeHTML(%q) = %v, want %v", body, got, want)
		}
	}
}

func TestAttachmentName(t *testing.T) {
	tests := map[string]string{
		`attachment; filename="result.zip"`: "result.zip",
		`inline`:                            "",
		``:                                  "",
		`attachment; filename="dir/x.gpkg"`: "x.gpkg",
	}
	for in, want := range tests {
		if got := attachmentName(in); got != want {
			t.Errorf("attachmentName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestServerInfo_Release(t *testing.T) {
	tests := []struct {
		info ServerInfo
		want string
	}{
		{ServerInfo{Build: "FME Flow 2024.1 - Build 24612", Version: "FME Flow"}, "v2024.1.0"},
		{ServerInfo{Version: "2023.2.1"}, "v2023.2.1"},
		{ServerInfo{Build: "(2022.0)"}, "v2022.0.0"},
		{ServerInfo{Build: "unknown"}, ""},
	}
	for _, tt := range tests {
		if got := tt.info.Release(); got != tt.want {
			t.Errorf("Release(%+v) = %q, want %q", tt.info, got, tt.want)
		}
	}
	info := ServerInfo{Version: "2024.1"}
	if !info.AtLeast("2023.0") || info.AtLeast("v2025") {
		t.Error("AtLeast comparison wrong")
	}
	if (ServerInfo{}).AtLeast("2020") {
		t.Error("unknown release is never at least anything")
	}
}

func TestJob_Finished(t *testing.T) {
	for status, want := range map[string]bool{
		"SUCCESS": true, "fme_failure": true, "ABORTED": true,
		"QUEUED": false, "RUNNING": false, "": false,
	} {
		if got := (Job{Status: status}).Finished(); got != want {
			t.Errorf("Finished(%q) = %v, want %v", status, got, want)
		}
	}
}
