package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// restRequest builds a JSON REST request under /fmerest/v3.
func restRequest(cfg ClientConfig, method string, body any, segments ...string) (*Request, error) {
	target, err := buildRESTURL(cfg.ServerURL, segments...)
	if err != nil {
		return nil, err
	}
	req := &Request{Method: method, URL: target, ResponseType: ResponseJSON, Query: url.Values{}}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		req.Body = data
		req.ContentType = "application/json"
	}
	return req, nil
}

// TestConnection fetches server build information.
func (c *Client) TestConnection(ctx context.Context) (Response[ServerInfo], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[ServerInfo](), err
	}
	req, err := restRequest(cfg, http.MethodGet, nil, "info")
	if err != nil {
		return Response[ServerInfo]{}, err
	}
	return fetchJSON[ServerInfo](ctx, c, CodeConnection, req)
}

// GetRepositories lists every repository the token can read.
func (c *Client) GetRepositories(ctx context.Context) (Response[List[Repository]], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[List[Repository]](), err
	}
	req, err := restRequest(cfg, http.MethodGet, nil, "repositories")
	if err != nil {
		return Response[List[Repository]]{}, err
	}
	req.Query.Set("limit", "-1")
	req.Query.Set("offset", "-1")
	return fetchJSON[List[Repository]](ctx, c, CodeRepositories, req)
}

// GetRepositoryItems lists items in a repository. An empty itemType lists
// every type; limit < 0 returns everything.
func (c *Client) GetRepositoryItems(ctx context.Context, repository, itemType string, limit, offset int) (Response[List[RepositoryItem]], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[List[RepositoryItem]](), err
	}
	req, err := restRequest(cfg, http.MethodGet, nil, "repositories", repositoryOr(cfg, repository), "items")
	if err != nil {
		return Response[List[RepositoryItem]]{}, err
	}
	if itemType != "" {
		req.Query.Set("type", itemType)
	}
	req.Query.Set("limit", strconv.Itoa(limit))
	req.Query.Set("offset", strconv.Itoa(max(offset, 0)))
	return fetchJSON[List[RepositoryItem]](ctx, c, CodeRepositoryItems, req)
}

// GetWorkspaceItem fetches a workspace with its services and parameters.
func (c *Client) GetWorkspaceItem(ctx context.Context, workspace, repository string) (Response[WorkspaceItem], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[WorkspaceItem](), err
	}
	req, err := restRequest(cfg, http.MethodGet, nil, "repositories", repositoryOr(cfg, repository), "items", workspace)
	if err != nil {
		return Response[WorkspaceItem]{}, err
	}
	return fetchJSON[WorkspaceItem](ctx, c, CodeWorkspaceItem, req)
}

// GetWorkspaceParameters fetches the published parameters of a workspace.
func (c *Client) GetWorkspaceParameters(ctx context.Context, workspace, repository string) (Response[[]WorkspaceParameter], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[[]WorkspaceParameter](), err
	}
	req, err := restRequest(cfg, http.MethodGet, nil, "repositories", repositoryOr(cfg, repository), "items", workspace, "parameters")
	if err != nil {
		return Response[[]WorkspaceParameter]{}, err
	}
	return fetchJSON[[]WorkspaceParameter](ctx, c, CodeWorkspaceParameters, req)
}

// SubmitJob queues a workspace run and returns its job ID.
func (c *Client) SubmitJob(ctx context.Context, workspace string, params map[string]any, repository string) (Response[SubmitResult], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[SubmitResult](), err
	}
	req, err := restRequest(cfg, http.MethodPost, FormatJobParams(params),
		"transformations", "submit", repositoryOr(cfg, repository), workspace)
	if err != nil {
		return Response[SubmitResult]{}, err
	}
	return fetchJSON[SubmitResult](ctx, c, CodeJobSubmission, req)
}

// SubmitSyncJob runs a workspace and waits for it to finish.
func (c *Client) SubmitSyncJob(ctx context.Context, workspace string, params map[string]any, repository string) (Response[JobResult], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[JobResult](), err
	}
	req, err := restRequest(cfg, http.MethodPost, FormatJobParams(params),
		"transformations", "transact", repositoryOr(cfg, repository), workspace)
	if err != nil {
		return Response[JobResult]{}, err
	}
	return fetchJSON[JobResult](ctx, c, CodeJobSubmission, req)
}

// GetJobStatus fetches a job record.
func (c *Client) GetJobStatus(ctx context.Context, jobID int) (Response[Job], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[Job](), err
	}
	req, err := restRequest(cfg, http.MethodGet, nil, "transformations", "jobs", "id", strconv.Itoa(jobID))
	if err != nil {
		return Response[Job]{}, err
	}
	return fetchJSON[Job](ctx, c, CodeJobStatus, req)
}

// CancelJob asks the server to abort a queued or running job.
func (c *Client) CancelJob(ctx context.Context, jobID int) (Response[struct{}], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[struct{}](), err
	}
	req, err := restRequest(cfg, http.MethodPost, nil, "transformations", "jobs", "id", strconv.Itoa(jobID), "cancel")
	if err != nil {
		return Response[struct{}]{}, err
	}
	return fetchJSON[struct{}](ctx, c, CodeJobCancel, req)
}

// Raw sends an arbitrary REST call relative to /fmerest/v3 and returns the
// JSON body undecoded.
func (c *Client) Raw(ctx context.Context, method, path string, query url.Values, body []byte) (Response[json.RawMessage], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[json.RawMessage](), err
	}
	var segments []string
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	req, err := restRequest(cfg, strings.ToUpper(method), nil, segments...)
	if err != nil {
		return Response[json.RawMessage]{}, err
	}
	for k, v := range query {
		req.Query[k] = v
	}
	if len(body) > 0 {
		req.Body = body
		req.ContentType = "application/json"
	}
	return fetchJSON[json.RawMessage](ctx, c, CodeRequestFailed, req)
}
