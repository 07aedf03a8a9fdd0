package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/fmeflow/fmeflow-cli/internal/aoi"
)

// Parameters derived from an area of interest.
const (
	ParamMinX           = "MINX"
	ParamMinY           = "MINY"
	ParamMaxX           = "MAXX"
	ParamMaxY           = "MAXY"
	ParamArea           = "AREA"
	ParamAreaOfInterest = "AreaOfInterest"
	ParamExtentGeoJSON  = "ExtentGeoJson"
)

// AOIParams converts g into job parameters. g is reprojected to WGS84 and
// validated first; a polygon that fails validation is GEOMETRY_INVALID.
func AOIParams(ctx context.Context, g aoi.Geometry, engines aoi.Engines) (map[string]any, error) {
	wgs := aoi.ReprojectToWGS84(ctx, g, engines)
	res := aoi.ValidatePolygon(ctx, wgs, engines)
	if !res.Valid {
		return nil, newError(CodeGeometryInvalid, 0, res.Code, res.Err)
	}
	if res.Simplified != nil {
		wgs = *res.Simplified
	}

	out := aoi.Serialize(wgs)
	area := res.Area
	if area <= 0 {
		area = aoi.ComputeArea(ctx, wgs, engines)
	}
	b := aoi.Extent(wgs)

	params := map[string]any{
		ParamMinX: b.Min[0],
		ParamMinY: b.Min[1],
		ParamMaxX: b.Max[0],
		ParamMaxY: b.Max[1],
		ParamArea: area,
	}
	if s := geoJSONString(out.GeoJSON); s != "" {
		params[ParamAreaOfInterest] = s
	}
	if s := geoJSONString(aoi.ExtentGeoJSON(wgs)); s != "" {
		params[ParamExtentGeoJSON] = s
	}
	return params, nil
}

func geoJSONString(g *geojson.Geometry) string {
	if g == nil {
		return ""
	}
	data, err := json.Marshal(g)
	if err != nil {
		return ""
	}
	return string(data)
}

// MergeAOIParams overlays caller parameters on derived ones. For the derived
// keys a caller value counts only when it is set: not nil and not blank.
func MergeAOIParams(derived, params map[string]any) map[string]any {
	merged := make(map[string]any, len(derived)+len(params))
	for k, v := range derived {
		merged[k] = v
	}
	for k, v := range params {
		if _, isDerived := derived[k]; isDerived && !explicitlySet(v) {
			continue
		}
		merged[k] = v
	}
	return merged
}

func explicitlySet(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	default:
		return true
	}
}

// SubmitGeometryJob derives AOI parameters from g, merges them with params
// and submits the job.
func (c *Client) SubmitGeometryJob(ctx context.Context, workspace string, g aoi.Geometry, params map[string]any, repository string) (Response[SubmitResult], error) {
	if ctx.Err() != nil {
		return aborted[SubmitResult](), nil
	}
	derived, err := AOIParams(ctx, g, c.engines)
	if err != nil {
		return Response[SubmitResult]{}, err
	}
	return c.SubmitJob(ctx, workspace, MergeAOIParams(derived, params), repository)
}
