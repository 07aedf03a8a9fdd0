package aoi

import (
	"context"
	"log/slog"

	"github.com/fmeflow/fmeflow-cli/internal/debug"
)

// ReprojectToWGS84 returns g expressed in WGS84. It tries the projection
// engine, then the web Mercator helper, and otherwise returns g unchanged.
// It never fails: downstream area and validity checks report the degraded
// result.
func ReprojectToWGS84(ctx context.Context, g Geometry, engines Engines) Geometry {
	if g.SpatialReference.IsWGS84() {
		return g
	}

	if engines.Projector != nil {
		if out, ok := projectWGS84(ctx, g, engines.Projector); ok {
			return out
		}
	}

	if engines.WebMercator != nil {
		if out, ok := convertWebMercator(ctx, g, engines.WebMercator); ok {
			return out
		}
	}

	return g
}

func projectWGS84(ctx context.Context, g Geometry, p Projector) (out Geometry, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logTier(ctx, "project", r)
			ok = false
		}
	}()
	results, err := p.Project(ctx, g, WGS84)
	if err != nil {
		logTier(ctx, "project", err)
		return Geometry{}, false
	}
	for _, r := range results {
		if len(r.Rings) == 0 {
			continue
		}
		if r.SpatialReference == (SpatialReference{}) {
			r.SpatialReference = WGS84
		}
		if r.Type == "" {
			r.Type = g.Type
		}
		return r, true
	}
	return Geometry{}, false
}

func convertWebMercator(ctx context.Context, g Geometry, c WebMercatorConverter) (out Geometry, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logTier(ctx, "web mercator", r)
			ok = false
		}
	}()
	out, ok = c.ToGeographic(g)
	if !ok || len(out.Rings) == 0 {
		return Geometry{}, false
	}
	return out, true
}

func logTier(ctx context.Context, tier string, cause any) {
	if debug.IsEnabled(ctx) {
		slog.Debug("geometry engine step failed", "step", tier, "error", cause)
	}
}
