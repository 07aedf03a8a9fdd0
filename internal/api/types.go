package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/mod/semver"
)

// StatusRequestAborted is the StatusText of a response cancelled by the caller.
const StatusRequestAborted = "requestAborted"

// Response is a normalized result. A Status of 0 with StatusText
// "requestAborted" means the caller cancelled; it is not an error.
type Response[T any] struct {
	Data       T
	Status     int
	StatusText string
	Header     http.Header
}

// Aborted reports whether the caller cancelled the request.
func (r Response[T]) Aborted() bool {
	return r.Status == 0 && r.StatusText == StatusRequestAborted
}

func aborted[T any]() Response[T] {
	return Response[T]{StatusText: StatusRequestAborted}
}

// ServerInfo is returned by GET /info.
type ServerInfo struct {
	Build   string `json:"build"`
	Version string `json:"version"`
}

// Release returns the server version as a canonical semver string
// ("v2024.1.0"), or "" when the version is unparseable.
func (s ServerInfo) Release() string {
	for _, field := range strings.Fields(s.Version + " " + s.Build) {
		v := strings.Trim(field, "()")
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if semver.IsValid(v) {
			return semver.Canonical(v)
		}
	}
	return ""
}

// AtLeast reports whether the server release is at least minVersion ("2023.0").
func (s ServerInfo) AtLeast(minVersion string) bool {
	rel := s.Release()
	if rel == "" {
		return false
	}
	if !strings.HasPrefix(minVersion, "v") {
		minVersion = "v" + minVersion
	}
	return semver.Compare(rel, minVersion) >= 0
}

// Repository is an FME Flow repository.
type Repository struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Sharable    bool   `json:"sharable,omitempty"`
}

// List is a paged REST collection.
type List[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
}

// RepositoryItem is a workspace or other file in a repository.
type RepositoryItem struct {
	Name         string `json:"name"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Type         string `json:"type"`
	LastSaveDate string `json:"lastSaveDate,omitempty"`
	FileSize     int64  `json:"fileSize,omitempty"`
}

// WorkspaceItem is the detail view of a workspace.
type WorkspaceItem struct {
	RepositoryItem
	BuildNumber     int                  `json:"buildNumber,omitempty"`
	LastPublishDate string               `json:"lastPublishDate,omitempty"`
	Services        []WorkspaceService   `json:"services,omitempty"`
	Parameters      []WorkspaceParameter `json:"parameters,omitempty"`
}

// WorkspaceService is a service a workspace is registered with.
type WorkspaceService struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

// HasService reports whether the workspace is registered with service.
func (w WorkspaceItem) HasService(service string) bool {
	for _, s := range w.Services {
		if strings.EqualFold(s.Name, service) {
			return true
		}
	}
	return false
}

// ListOption is one choice of a choice parameter.
type ListOption struct {
	Caption string `json:"caption,omitempty"`
	Value   any    `json:"value"`
}

// WorkspaceParameter is a published parameter definition.
type WorkspaceParameter struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Type         string       `json:"type"`
	Model        string       `json:"model,omitempty"`
	DefaultValue any          `json:"defaultValue,omitempty"`
	Optional     bool         `json:"optional"`
	ListOptions  []ListOption `json:"listOptions,omitempty"`
}

// SubmitResult is returned by an asynchronous submit.
type SubmitResult struct {
	ID int `json:"id"`
}

// JobResult is the outcome of a finished job.
type JobResult struct {
	ID                int    `json:"id"`
	Status            string `json:"status"`
	StatusMessage     string `json:"statusMessage,omitempty"`
	NumFeaturesOutput int    `json:"numFeaturesOutput,omitempty"`
	TimeRequested     string `json:"timeRequested,omitempty"`
	TimeStarted       string `json:"timeStarted,omitempty"`
	TimeFinished      string `json:"timeFinished,omitempty"`
	RequesterHost     string `json:"requesterHost,omitempty"`
}

// Job is a job record from the jobs endpoint.
type Job struct {
	ID            int             `json:"id"`
	Status        string          `json:"status"`
	Priority      int             `json:"priority,omitempty"`
	EngineHost    string          `json:"engineHost,omitempty"`
	EngineName    string          `json:"engineName,omitempty"`
	TimeDelivered string          `json:"timeDelivered,omitempty"`
	Request       json.RawMessage `json:"request,omitempty"`
	Result        *JobResult      `json:"result,omitempty"`
}

// Finished reports whether the job reached a terminal status.
func (j Job) Finished() bool {
	switch strings.ToUpper(j.Status) {
	case "SUCCESS", "FME_FAILURE", "JOB_FAILURE", "ABORTED", "CANCELLED":
		return true
	default:
		return false
	}
}

// WebhookStatusInfo is the status block of a data download response.
type WebhookStatusInfo struct {
	Status  string `json:"status"`
	Mode    string `json:"mode,omitempty"`
	Message string `json:"message,omitempty"`
}

// WebhookServiceResponse is the body of a data download response.
type WebhookServiceResponse struct {
	StatusInfo WebhookStatusInfo `json:"statusInfo"`
	JobID      int               `json:"jobID,omitempty"`
	URL        string            `json:"url,omitempty"`
	Result     json.RawMessage   `json:"fmeTransformationResult,omitempty"`
}

// WebhookResult wraps a data download response.
type WebhookResult struct {
	ServiceResponse WebhookServiceResponse `json:"serviceResponse"`
}

// Succeeded reports whether the server reported success.
func (r WebhookResult) Succeeded() bool {
	return strings.EqualFold(r.ServiceResponse.StatusInfo.Status, "success")
}

// StreamResult is a data streaming payload.
type StreamResult struct {
	Data        []byte `json:"-"`
	ContentType string `json:"contentType"`
	FileName    string `json:"fileName,omitempty"`
	Size        int    `json:"size"`
}

// UploadOptions configures UploadToTemp.
type UploadOptions struct {
	// Subfolder under the temp resource; a random one when empty.
	Subfolder string
}

// UploadResult locates an uploaded file on the server.
type UploadResult struct {
	Path      string `json:"path"`
	Subfolder string `json:"subfolder"`
	Name      string `json:"name"`
}

// Service selects how RunWorkspace invokes a workspace.
type Service string

const (
	ServiceDownload  Service = "download"
	ServiceStreaming Service = "streaming"
	ServiceSchedule  Service = "schedule"
)

// RunResult is the outcome of RunWorkspace; exactly one field is set.
type RunResult struct {
	Service  Service        `json:"service"`
	Submit   *SubmitResult  `json:"submit,omitempty"`
	Download *WebhookResult `json:"download,omitempty"`
	Stream   *StreamResult  `json:"stream,omitempty"`
}
