package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

// TempResource is the shared resource uploads are written to.
const TempResource = "FME_SHAREDRESOURCE_TEMP"

// UploadToTemp writes the content of r to the temp shared resource under
// opts.Subfolder, or a random subfolder when none is given.
func (c *Client) UploadToTemp(ctx context.Context, name string, r io.Reader, opts UploadOptions) (Response[UploadResult], error) {
	cfg, ok, err := c.begin(ctx)
	if !ok {
		return aborted[UploadResult](), err
	}
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return Response[UploadResult]{}, newError(CodeUpload, 0, "upload needs a file name", nil)
	}
	sub := strings.Trim(strings.TrimSpace(opts.Subfolder), "/")
	if sub == "" {
		sub = uuid.NewString()
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Response[UploadResult]{}, newError(CodeUpload, 0, "failed to read upload", err)
	}
	target, err := buildRESTURL(cfg.ServerURL, "resources", "connections", TempResource, "filesys", sub)
	if err != nil {
		return Response[UploadResult]{}, err
	}
	req := &Request{
		Method:       http.MethodPost,
		URL:          target,
		Body:         data,
		ContentType:  "application/octet-stream",
		ResponseType: ResponseJSON,
		Header:       http.Header{},
		Query:        map[string][]string{"createDirectories": {"true"}, "overwrite": {"true"}},
	}
	req.Header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	raw, err := c.exchange(ctx, CodeUpload, req)
	if err != nil {
		if errors.Is(err, errAborted) {
			return aborted[UploadResult](), nil
		}
		return Response[UploadResult]{}, err
	}
	if raw.Status < 200 || raw.Status >= 300 {
		return Response[UploadResult]{}, statusError(CodeUpload, raw)
	}

	result := UploadResult{Subfolder: sub, Name: name, Path: uploadedPath(raw.Body)}
	if result.Path == "" {
		result.Path = fmt.Sprintf("$(%s)/%s/%s", TempResource, sub, name)
	}
	return Response[UploadResult]{Data: result, Status: raw.Status, StatusText: raw.StatusText, Header: raw.Header}, nil
}

// uploadedPath finds the stored path in the shapes FME Flow versions return:
// {"path"}, {"fullpath"}, {"file":{"path"}}, {"files":[{"path"}]} or {"name"}.
func uploadedPath(body []byte) string {
	var resp struct {
		Path     string `json:"path"`
		FullPath string `json:"fullpath"`
		File     *struct {
			Path string `json:"path"`
		} `json:"file"`
		Files []struct {
			Path string `json:"path"`
		} `json:"files"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	switch {
	case resp.Path != "":
		return resp.Path
	case resp.FullPath != "":
		return resp.FullPath
	case resp.File != nil && resp.File.Path != "":
		return resp.File.Path
	case len(resp.Files) > 0 && resp.Files[0].Path != "":
		return resp.Files[0].Path
	default:
		return resp.Name
	}
}
