package aoi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultGeometryServiceTimeout bounds a single areasAndLengths call.
const DefaultGeometryServiceTimeout = 15 * time.Second

// GeometryServiceClient calls an ArcGIS GeometryServer areasAndLengths operation.
type GeometryServiceClient struct {
	BaseURL string
	HTTP    *http.Client
}

var _ AreaService = (*GeometryServiceClient)(nil)

// NewGeometryServiceClient returns a client for the GeometryServer at baseURL.
func NewGeometryServiceClient(baseURL string, httpClient *http.Client) *GeometryServiceClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultGeometryServiceTimeout}
	}
	return &GeometryServiceClient{
		BaseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		HTTP:    httpClient,
	}
}

type areasAndLengthsResponse struct {
	Areas   []float64 `json:"areas"`
	Lengths []float64 `json:"lengths"`
	Error   *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// AreasAndLengths returns geodesic areas in square meters, one per polygon.
func (c *GeometryServiceClient) AreasAndLengths(ctx context.Context, g Geometry) ([]float64, error) {
	if c == nil || c.BaseURL == "" {
		return nil, fmt.Errorf("geometry service not configured")
	}
	native, err := ToNativeJSON(g)
	if err != nil {
		return nil, err
	}

	sr := g.SpatialReference.WKID
	if sr == 0 {
		sr = g.SpatialReference.LatestWKID
	}
	form := url.Values{}
	form.Set("polygons", "["+string(native)+"]")
	if sr != 0 {
		form.Set("sr", strconv.Itoa(sr))
	}
	form.Set("lengthUnit", "9001")
	form.Set("areaUnit", `{"areaUnit":"esriSquareMeters"}`)
	form.Set("calculationType", "geodesic")
	form.Set("f", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/areasAndLengths", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geometry service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("geometry service error (status %d)", resp.StatusCode)
	}

	var out areasAndLengthsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unexpected geometry service response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("geometry service error %d: %s", out.Error.Code, out.Error.Message)
	}
	return out.Areas, nil
}
