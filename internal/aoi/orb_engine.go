package aoi

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// ErrUnsupportedProjection is returned when an engine cannot convert between
// the requested references.
var ErrUnsupportedProjection = errors.New("unsupported projection")

// OrbEngine is the local geometry engine backed by paulmach/orb. It projects
// between WGS84 and web Mercator and measures areas on the sphere or the plane.
type OrbEngine struct{}

var (
	_ Projector            = OrbEngine{}
	_ WebMercatorConverter = OrbEngine{}
	_ MeridianNormalizer   = OrbEngine{}
	_ AreaOperator         = OrbEngine{}
)

// Project converts between WGS84 and web Mercator.
func (OrbEngine) Project(ctx context.Context, g Geometry, to SpatialReference) ([]Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from := g.SpatialReference
	switch {
	case to.IsWGS84() && from.IsWGS84():
		return []Geometry{g.Clone()}, nil
	case to.IsWGS84() && from.IsWebMercator():
		return []Geometry{reproject(g, project.Mercator.ToWGS84, WGS84)}, nil
	case to.IsWebMercator() && from.IsWGS84():
		return []Geometry{reproject(g, project.WGS84.ToMercator, SpatialReference{WKID: WKIDWebMercatorEsri, LatestWKID: WKIDWebMercator})}, nil
	default:
		return nil, fmt.Errorf("%w: wkid %d to wkid %d", ErrUnsupportedProjection, from.WKID, to.WKID)
	}
}

// ToGeographic converts a web Mercator geometry to WGS84.
func (OrbEngine) ToGeographic(g Geometry) (Geometry, bool) {
	if !g.SpatialReference.IsWebMercator() {
		return Geometry{}, false
	}
	return reproject(g, project.Mercator.ToWGS84, WGS84), true
}

// NormalizeCentralMeridian shifts western longitudes of rings that cross the
// antimeridian east by 360 degrees so each ring is continuous. Rings without
// a crossing edge are left as they are, however wide.
func (OrbEngine) NormalizeCentralMeridian(ctx context.Context, g Geometry) (Geometry, error) {
	if err := ctx.Err(); err != nil {
		return Geometry{}, err
	}
	if !g.SpatialReference.IsWGS84() {
		return g, nil
	}
	out := g.Clone()
	for _, ring := range out.Rings {
		if len(ring) == 0 {
			continue
		}
		if !crossesAntimeridian(ring) {
			continue
		}
		for i := range ring {
			if ring[i][0] < 0 {
				ring[i][0] += 360
			}
		}
	}
	return out, nil
}

// crossesAntimeridian reports whether some edge of ring jumps more than 180
// degrees of longitude.
func crossesAntimeridian(ring orb.Ring) bool {
	for i := 1; i < len(ring); i++ {
		if math.Abs(ring[i][0]-ring[i-1][0]) > 180 {
			return true
		}
	}
	return false
}

// GeodesicArea returns the area on the WGS84 sphere in square meters.
func (e OrbEngine) GeodesicArea(ctx context.Context, g Geometry) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	geographic, err := e.asGeographic(g)
	if err != nil {
		return 0, err
	}
	return math.Abs(geo.Area(geographic.Rings)), nil
}

// PlanarArea returns the area in web Mercator square meters.
func (OrbEngine) PlanarArea(ctx context.Context, g Geometry) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	switch {
	case g.SpatialReference.IsWebMercator():
		return math.Abs(planar.Area(g.Rings)), nil
	case g.SpatialReference.IsWGS84():
		projected := reproject(g, project.WGS84.ToMercator, SpatialReference{WKID: WKIDWebMercator})
		return math.Abs(planar.Area(projected.Rings)), nil
	default:
		return 0, fmt.Errorf("%w: planar area for wkid %d", ErrUnsupportedProjection, g.SpatialReference.WKID)
	}
}

func (OrbEngine) asGeographic(g Geometry) (Geometry, error) {
	switch {
	case g.SpatialReference.IsWGS84():
		return g, nil
	case g.SpatialReference.IsWebMercator():
		return reproject(g, project.Mercator.ToWGS84, WGS84), nil
	default:
		return Geometry{}, fmt.Errorf("%w: geodesic area for wkid %d", ErrUnsupportedProjection, g.SpatialReference.WKID)
	}
}

// reproject projects a copy of g; orb projects in place.
func reproject(g Geometry, proj orb.Projection, sr SpatialReference) Geometry {
	out := g.Clone()
	out.Rings = project.Polygon(out.Rings, proj)
	out.SpatialReference = sr
	return out
}
