package validation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Input limits for values sent to FME Flow.
const (
	MaxNameLength       = 255
	MaxParamValueLength = 100000
	MaxJSONPayload      = 1048576
)

// ValidateName checks a repository or workspace name: non-empty, bounded
// and free of path separators, since it becomes a URL path segment.
func ValidateName(kind, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return fmt.Errorf("%s name exceeds maximum length of %d characters (got %d)", kind, MaxNameLength, n)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%s name %q is not a valid path segment", kind, name)
	}
	return nil
}

// ParseParam splits a "KEY=value" flag into its parts. The key must be
// non-empty and must not contain whitespace.
func ParseParam(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, "=")
	if !ok {
		return "", "", fmt.Errorf("invalid parameter %q: expected KEY=value", raw)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", fmt.Errorf("invalid parameter %q: key cannot be empty", raw)
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return "", "", fmt.Errorf("invalid parameter key %q: contains whitespace", key)
	}
	if len(value) > MaxParamValueLength {
		return "", "", fmt.Errorf("parameter %s exceeds maximum size of %d bytes (got %d)", key, MaxParamValueLength, len(value))
	}
	return key, value, nil
}

// ValidateJSONPayload checks the size of a JSON document read from a file or stdin.
func ValidateJSONPayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("JSON payload cannot be empty")
	}
	if len(payload) > MaxJSONPayload {
		return fmt.Errorf("JSON payload exceeds maximum size of %d bytes (got %d)", MaxJSONPayload, len(payload))
	}
	return nil
}

// ParsePositiveInt parses a positive integer ID such as a job ID. A leading
// '#' is accepted.
func ParsePositiveInt(s string, fieldName string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	id64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", fieldName, err)
	}
	if id64 <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", fieldName)
	}
	return int(id64), nil
}
