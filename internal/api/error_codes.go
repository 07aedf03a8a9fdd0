package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a stable machine-readable error token. Callers switch on the
// code, never on message text.
type ErrorCode string

const (
	CodeInvalidConfig         ErrorCode = "INVALID_CONFIG"
	CodeURLTooLong            ErrorCode = "URL_TOO_LONG"
	CodeWebhookAuth           ErrorCode = "WEBHOOK_AUTH_ERROR"
	CodeWebhookNonJSON        ErrorCode = "WEBHOOK_NON_JSON"
	CodeInvalidResponseFormat ErrorCode = "INVALID_RESPONSE_FORMAT"
	CodeArcGISModule          ErrorCode = "ARCGIS_MODULE_ERROR"
	CodeClientDisposed        ErrorCode = "CLIENT_DISPOSED"
	CodeRequestTimeout        ErrorCode = "REQUEST_TIMEOUT"
	CodeRequestFailed         ErrorCode = "REQUEST_FAILED"
	CodeCircuitOpen           ErrorCode = "CIRCUIT_OPEN"
	CodeInvalidPathSegment    ErrorCode = "INVALID_PATH_SEGMENT"
	CodeGeometryInvalid       ErrorCode = "GEOMETRY_INVALID"

	CodeConnection          ErrorCode = "CONNECTION_ERROR"
	CodeRepositories        ErrorCode = "REPOSITORIES_ERROR"
	CodeRepositoryItems     ErrorCode = "REPOSITORY_ITEMS_ERROR"
	CodeWorkspaceItem       ErrorCode = "WORKSPACE_ITEM_ERROR"
	CodeWorkspaceParameters ErrorCode = "WORKSPACE_PARAMETERS_ERROR"
	CodeJobSubmission       ErrorCode = "JOB_SUBMISSION_ERROR"
	CodeJobStatus           ErrorCode = "JOB_STATUS_ERROR"
	CodeJobCancel           ErrorCode = "JOB_CANCEL_ERROR"
	CodeDataDownload        ErrorCode = "DATA_DOWNLOAD_ERROR"
	CodeDataStreaming       ErrorCode = "DATA_STREAMING_ERROR"
	CodeUpload              ErrorCode = "UPLOAD_ERROR"

	CodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// IsRetryable reports whether a call failing with this code may succeed if
// repeated unchanged.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case CodeRequestTimeout, CodeRequestFailed, CodeCircuitOpen:
		return true
	default:
		return false
	}
}

// Suggestion returns a short hint for resolving the error.
func (c ErrorCode) Suggestion() string {
	switch c {
	case CodeInvalidConfig:
		return "Run 'fmeflow auth login' or set FMEFLOW_SERVER_URL, FMEFLOW_TOKEN and FMEFLOW_REPOSITORY"
	case CodeWebhookAuth:
		return "Check that the token is valid and has run permission on the workspace"
	case CodeURLTooLong:
		return "Use --service streaming or 'fmeflow jobs submit' for large parameter sets"
	case CodeRequestTimeout:
		return "Increase --timeout or check server load"
	case CodeRequestFailed:
		return "Check network connectivity and retry"
	case CodeCircuitOpen:
		return "Too many recent server failures; wait before retrying"
	case CodeInvalidPathSegment:
		return "Repository and workspace names cannot be empty, '.' or '..'"
	case CodeGeometryInvalid:
		return "Check that the AOI is a closed, non-self-intersecting polygon"
	case CodeWebhookNonJSON, CodeInvalidResponseFormat:
		return "The server returned an unexpected response; check the server URL"
	case CodeClientDisposed:
		return "Create a new client"
	default:
		return ""
	}
}

// StructuredError is the JSON error shape printed by the CLI.
type StructuredError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Status     int            `json:"status,omitempty"`
	Retryable  bool           `json:"retryable"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// MarshalJSON implements json.Marshaler.
func (e *StructuredError) MarshalJSON() ([]byte, error) {
	type alias StructuredError
	return json.Marshal((*alias)(e))
}

// NewStructuredError creates a StructuredError for code.
func NewStructuredError(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:       code,
		Message:    message,
		Retryable:  code.IsRetryable(),
		Suggestion: code.Suggestion(),
	}
}

// NewValidationError reports a flag value outside its allowed set.
func NewValidationError(field, got string, allowed []string) *StructuredError {
	return &StructuredError{
		Code:       CodeInvalidConfig,
		Message:    fmt.Sprintf("invalid %s %q: must be one of %s", field, got, strings.Join(allowed, ", ")),
		Suggestion: fmt.Sprintf("Use one of: %s", strings.Join(allowed, ", ")),
		Context:    map[string]any{"field": field, "got": got, "allowed_values": allowed},
	}
}

// StructuredErrorFromError converts any error to a StructuredError.
func StructuredErrorFromError(err error) *StructuredError {
	if err == nil {
		return nil
	}

	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		out := NewStructuredError(apiErr.Code, apiErr.Error())
		out.Status = apiErr.Status
		if apiErr.Status == 429 || apiErr.Status >= 500 {
			out.Retryable = true
		}
		return out
	}

	return &StructuredError{Code: CodeUnknown, Message: err.Error()}
}
