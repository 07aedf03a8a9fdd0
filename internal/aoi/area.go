package aoi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/fmeflow/fmeflow-cli/internal/debug"
)

var errNoEngine = errors.New("engine unavailable")

type areaStrategy struct {
	name    string
	measure func(ctx context.Context, g Geometry) (float64, error)
}

// ComputeArea returns the polygon's area in square meters, or 0 when no
// strategy could measure it. The result is never negative or non-finite.
//
// Strategies run in order until one yields a strictly positive value:
// geodesic then planar on the primary engine, geodesic then planar on the
// fallback engine, the remote geometry service, and finally the extent.
func ComputeArea(ctx context.Context, g Geometry, engines Engines) float64 {
	if !g.IsPolygon() {
		return 0
	}

	input := g
	if engines.Normalizer != nil {
		if normalized, err := normalizeMeridian(ctx, g, engines.Normalizer); err == nil {
			input = normalized
		} else {
			logTier(ctx, "normalize", err)
		}
	}

	var lastErr error
	for _, s := range areaStrategies(engines) {
		v, err := runStrategy(ctx, s, input)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", s.name, err)
			continue
		}
		if usableArea(v) {
			if debug.IsEnabled(ctx) {
				slog.Debug("area computed", "strategy", s.name, "area", v)
			}
			return v
		}
	}

	if lastErr != nil && debug.IsEnabled(ctx) {
		slog.Debug("area could not be measured", "last_error", lastErr)
	}
	return 0
}

func areaStrategies(engines Engines) []areaStrategy {
	var out []areaStrategy
	if op := engines.Operator; op != nil {
		out = append(out,
			areaStrategy{name: "geodesic", measure: op.GeodesicArea},
			areaStrategy{name: "planar", measure: op.PlanarArea},
		)
	}
	if fb := engines.Fallback; fb != nil {
		out = append(out,
			areaStrategy{name: "fallback geodesic", measure: fb.GeodesicArea},
			areaStrategy{name: "fallback planar", measure: fb.PlanarArea},
		)
	}
	if svc := engines.GeometryService; svc != nil {
		out = append(out, areaStrategy{name: "geometry service", measure: func(ctx context.Context, g Geometry) (float64, error) {
			areas, err := svc.AreasAndLengths(ctx, g)
			if err != nil {
				return 0, err
			}
			if len(areas) == 0 {
				return 0, errors.New("empty result")
			}
			return math.Abs(areas[0]), nil
		}})
	}
	return append(out, areaStrategy{name: "extent", measure: extentArea})
}

func runStrategy(ctx context.Context, s areaStrategy, g Geometry) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()
	if s.measure == nil {
		return 0, errNoEngine
	}
	return s.measure(ctx, g)
}

func normalizeMeridian(ctx context.Context, g Geometry, n MeridianNormalizer) (out Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = n.NormalizeCentralMeridian(ctx, g)
	if err == nil && len(out.Rings) == 0 {
		err = errors.New("empty result")
	}
	return out, err
}

func extentArea(_ context.Context, g Geometry) (float64, error) {
	b := Extent(g)
	return math.Abs(b.Right()-b.Left()) * math.Abs(b.Top()-b.Bottom()), nil
}

func usableArea(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
