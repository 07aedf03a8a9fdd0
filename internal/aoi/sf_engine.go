package aoi

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb/geojson"
	"github.com/peterstace/simplefeatures/geom"
)

// SimpleFeaturesEngine is the second local engine, backed by
// peterstace/simplefeatures. It checks simplicity and provides a planar
// fallback area for when the primary engine yields nothing.
type SimpleFeaturesEngine struct {
	// Tolerance passed to Simplify, in coordinate units. Zero keeps every vertex.
	Tolerance float64
}

var (
	_ Simplifier   = SimpleFeaturesEngine{}
	_ AreaOperator = SimpleFeaturesEngine{}
)

// Simplify removes redundant vertices and returns the simplified polygon.
// Polygons the library cannot construct are returned unchanged so IsSimple
// can reject them.
func (e SimpleFeaturesEngine) Simplify(ctx context.Context, g Geometry) (Geometry, error) {
	if err := ctx.Err(); err != nil {
		return Geometry{}, err
	}
	sg, err := toSimpleFeatures(g)
	if err != nil {
		return g, nil
	}
	simplified, err := sg.Simplify(e.Tolerance)
	if err != nil {
		return Geometry{}, fmt.Errorf("simplify: %w", err)
	}
	data, err := simplified.MarshalJSON()
	if err != nil {
		return Geometry{}, fmt.Errorf("simplify: %w", err)
	}
	back, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return Geometry{}, fmt.Errorf("simplify: %w", err)
	}
	out, err := fromOrb(back.Geometry())
	if err != nil {
		return Geometry{}, fmt.Errorf("simplify: %w", err)
	}
	out.Type = g.Type
	out.SpatialReference = g.SpatialReference
	return out, nil
}

// IsSimple reports whether the polygon has no self-intersections. Rings that
// the library refuses to construct are reported as not simple.
func (SimpleFeaturesEngine) IsSimple(ctx context.Context, g Geometry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sg, err := toSimpleFeatures(g)
	if err != nil {
		return false, nil
	}
	simple, defined := sg.IsSimple()
	if !defined {
		return false, fmt.Errorf("simplicity is not defined for %s", sg.Type())
	}
	return simple, nil
}

// GeodesicArea is not supported by this engine.
func (SimpleFeaturesEngine) GeodesicArea(context.Context, Geometry) (float64, error) {
	return 0, fmt.Errorf("%w: simplefeatures has no geodesic area", ErrUnsupportedProjection)
}

// PlanarArea returns the area in the geometry's own coordinate units, which
// are square meters only for projected references.
func (SimpleFeaturesEngine) PlanarArea(ctx context.Context, g Geometry) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if g.SpatialReference.IsWGS84() {
		return 0, fmt.Errorf("%w: planar area of geographic coordinates", ErrUnsupportedProjection)
	}
	sg, err := toSimpleFeatures(g)
	if err != nil {
		return 0, err
	}
	return math.Abs(sg.Area()), nil
}

func toSimpleFeatures(g Geometry) (geom.Geometry, error) {
	wkt := ToWKT(g)
	if wkt == wktEmpty {
		return geom.Geometry{}, fmt.Errorf("no usable rings")
	}
	sg, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("parse polygon: %w", err)
	}
	return sg, nil
}
