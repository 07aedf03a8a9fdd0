package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
)

// RunWorkspace runs a workspace through the service it was asked for.
// Parameters requesting schedule mode always go through SubmitJob.
func (c *Client) RunWorkspace(ctx context.Context, workspace string, params map[string]any, repository string, service Service) (Response[RunResult], error) {
	switch {
	case IsScheduleMode(params) || service == ServiceSchedule:
		resp, err := c.SubmitJob(ctx, workspace, params, repository)
		return runResult(resp, err, func(r *RunResult) { r.Service = ServiceSchedule; r.Submit = &resp.Data })
	case service == ServiceStreaming:
		resp, err := c.RunDataStreaming(ctx, workspace, params, repository)
		return runResult(resp, err, func(r *RunResult) { r.Service = ServiceStreaming; r.Stream = &resp.Data })
	default:
		resp, err := c.RunDataDownload(ctx, workspace, params, repository)
		return runResult(resp, err, func(r *RunResult) { r.Service = ServiceDownload; r.Download = &resp.Data })
	}
}

func runResult[T any](resp Response[T], err error, fill func(*RunResult)) (Response[RunResult], error) {
	if err != nil {
		return Response[RunResult]{}, err
	}
	if resp.Aborted() {
		return aborted[RunResult](), nil
	}
	out := Response[RunResult]{Status: resp.Status, StatusText: resp.StatusText, Header: resp.Header}
	fill(&out.Data)
	return out, nil
}

// RunDataDownload invokes the data download webhook with parameters in the
// query string. The URL is checked against the configured budget before
// anything is sent.
func (c *Client) RunDataDownload(ctx context.Context, workspace string, params map[string]any, repository string) (Response[WebhookResult], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[WebhookResult](), err
	}
	target, err := webhookRequestURL(cfg.ServerURL, ServiceDataDownload, repositoryOr(cfg, repository), workspace, params, cfg.Token)
	if err != nil {
		return Response[WebhookResult]{}, err
	}
	if maxLen := c.registry.Config().MaxURLLength(); len(target) > maxLen {
		return Response[WebhookResult]{}, newError(CodeURLTooLong, 0,
			fmt.Sprintf("webhook URL is %d characters, limit is %d", len(target), maxLen), nil)
	}

	raw, err := c.exchange(ctx, CodeDataDownload, &Request{
		Method:       http.MethodGet,
		URL:          target,
		ResponseType: ResponseJSON,
		Timeout:      cfg.Timeout(),
	})
	if err != nil {
		if errors.Is(err, errAborted) {
			return aborted[WebhookResult](), nil
		}
		return Response[WebhookResult]{}, err
	}

	if isAuthStatus(raw.Status) || looksLikeHTML(raw.Body) {
		return Response[WebhookResult]{}, newError(CodeWebhookAuth, raw.Status, string(CodeWebhookAuth), nil)
	}
	if raw.Status >= 400 {
		return Response[WebhookResult]{}, statusError(CodeDataDownload, raw)
	}

	var result WebhookResult
	if err := json.Unmarshal(raw.Body, &result); err != nil {
		return Response[WebhookResult]{}, newError(CodeWebhookNonJSON, raw.Status, string(CodeWebhookNonJSON), err)
	}
	info := result.ServiceResponse.StatusInfo
	if info.Status != "" && !result.Succeeded() {
		msg := info.Message
		if msg == "" {
			msg = string(CodeDataDownload)
		}
		return Response[WebhookResult]{}, newError(CodeDataDownload, raw.Status, msg, nil)
	}
	return Response[WebhookResult]{Data: result, Status: raw.Status, StatusText: raw.StatusText, Header: raw.Header}, nil
}

// RunDataStreaming posts parameters to the data streaming webhook and
// returns the raw payload.
func (c *Client) RunDataStreaming(ctx context.Context, workspace string, params map[string]any, repository string) (Response[StreamResult], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[StreamResult](), err
	}
	endpoint, err := BuildWebhookURL(cfg.ServerURL, ServiceDataStreaming, repositoryOr(cfg, repository), workspace)
	if err != nil {
		return Response[StreamResult]{}, err
	}
	form := BuildParams(params, webhookExcludeKeys, false)

	raw, err := c.exchange(ctx, CodeDataStreaming, &Request{
		Method:       http.MethodPost,
		URL:          endpoint,
		Body:         []byte(form.Encode()),
		ContentType:  "application/x-www-form-urlencoded",
		ResponseType: ResponseBlob,
		Timeout:      cfg.Timeout(),
		QueryAuth:    true,
	})
	if err != nil {
		if errors.Is(err, errAborted) {
			return aborted[StreamResult](), nil
		}
		return Response[StreamResult]{}, err
	}

	if isAuthStatus(raw.Status) {
		return Response[StreamResult]{}, newError(CodeWebhookAuth, raw.Status, string(CodeWebhookAuth), nil)
	}
	if raw.Status >= 400 {
		return Response[StreamResult]{}, statusError(CodeDataStreaming, raw)
	}

	contentType := raw.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Response[StreamResult]{
		Data: StreamResult{
			Data:        raw.Body,
			ContentType: contentType,
			FileName:    attachmentName(raw.Header.Get("Content-Disposition")),
			Size:        len(raw.Body),
		},
		Status:     raw.Status,
		StatusText: raw.StatusText,
		Header:     raw.Header,
	}, nil
}

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// attachmentName returns the base file name from a Content-Disposition header.
func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if name == "" {
		return ""
	}
	return path.Base(name)
}
