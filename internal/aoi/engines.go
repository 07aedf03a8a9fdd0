package aoi

import (
	"context"
	"net/http"
)

// Projector reprojects a geometry to another spatial reference. Engines may
// return several candidates; the first usable one is taken.
type Projector interface {
	Project(ctx context.Context, g Geometry, to SpatialReference) ([]Geometry, error)
}

// WebMercatorConverter converts web Mercator coordinates to geographic ones.
// ok is false when the geometry is not in web Mercator.
type WebMercatorConverter interface {
	ToGeographic(g Geometry) (out Geometry, ok bool)
}

// MeridianNormalizer rewrites a polygon so it does not wrap across the antimeridian.
type MeridianNormalizer interface {
	NormalizeCentralMeridian(ctx context.Context, g Geometry) (Geometry, error)
}

// AreaOperator measures polygons in square meters.
type AreaOperator interface {
	GeodesicArea(ctx context.Context, g Geometry) (float64, error)
	PlanarArea(ctx context.Context, g Geometry) (float64, error)
}

// AreaService is a remote geometry service computing areas server-side.
type AreaService interface {
	AreasAndLengths(ctx context.Context, g Geometry) ([]float64, error)
}

// Simplifier repairs ring orientation and checks topological simplicity.
type Simplifier interface {
	Simplify(ctx context.Context, g Geometry) (Geometry, error)
	IsSimple(ctx context.Context, g Geometry) (bool, error)
}

// Engines is the set of geometry capabilities available to the pipeline.
// Every field is optional; a nil field means the capability is absent.
type Engines struct {
	Projector       Projector
	WebMercator     WebMercatorConverter
	Normalizer      MeridianNormalizer
	Operator        AreaOperator
	Fallback        AreaOperator
	GeometryService AreaService
	Simplifier      Simplifier
}

// Empty reports whether no capability at all is available.
func (e Engines) Empty() bool {
	return e.Projector == nil && e.WebMercator == nil && e.Normalizer == nil &&
		e.Operator == nil && e.Fallback == nil && e.GeometryService == nil && e.Simplifier == nil
}

// DefaultEngines wires the local orb and simplefeatures engines. When
// geometryServiceURL is non-empty a remote GeometryServer is added as the last
// area tier.
func DefaultEngines(geometryServiceURL string, httpClient *http.Client) Engines {
	local := OrbEngine{}
	e := Engines{
		Projector:   local,
		WebMercator: local,
		Normalizer:  local,
		Operator:    local,
		Fallback:    SimpleFeaturesEngine{},
		Simplifier:  SimpleFeaturesEngine{},
	}
	if geometryServiceURL != "" {
		e.GeometryService = NewGeometryServiceClient(geometryServiceURL, httpClient)
	}
	return e
}
