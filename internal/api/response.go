package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// decodeJSON unmarshals a success body into a Response.
func decodeJSON[T any](resp *RawResponse, code ErrorCode) (Response[T], error) {
	out := Response[T]{Status: resp.Status, StatusText: resp.StatusText, Header: resp.Header}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp.Body, &out.Data); err != nil {
		return Response[T]{}, newError(CodeInvalidResponseFormat, resp.Status,
			fmt.Sprintf("%s: unexpected response format", code), err)
	}
	return out, nil
}

// looksLikeHTML reports whether body is an HTML page, which FME Flow serves
// instead of JSON when a token is rejected by the login filter.
func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	head := strings.ToLower(string(trimmed[:min(len(trimmed), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype")
}

// sanitizeErrorBody extracts a safe message from an error response without
// echoing arbitrary server output.
func sanitizeErrorBody(body []byte) string {
	var errResp struct {
		Message string         `json:"message"`
		Reason  string         `json:"reason"`
		Error   string         `json:"error"`
		Details map[string]any `json:"details"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}

	var result string
	switch {
	case errResp.Message != "":
		result = errResp.Message
	case errResp.Error != "":
		result = errResp.Error
	}
	if errResp.Reason != "" && errResp.Reason != result {
		if result != "" {
			result += " (" + errResp.Reason + ")"
		} else {
			result = errResp.Reason
		}
	}
	if details := formatDetails(errResp.Details); details != "" {
		if result != "" {
			return result + "\n" + details
		}
		return details
	}
	return result
}

func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	var lines []string
	for field, value := range details {
		switch v := value.(type) {
		case string:
			lines = append(lines, fmt.Sprintf("  %s: %s", field, v))
		case []any:
			for _, msg := range v {
				if s, ok := msg.(string); ok {
					lines = append(lines, fmt.Sprintf("  %s: %s", field, s))
				}
			}
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
