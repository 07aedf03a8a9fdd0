// Package aoi turns a drawn area of interest into job parameters.
//
// The pipeline reprojects the polygon to WGS84, validates it, measures its
// area through a ranked list of engines and serializes it to GeoJSON, WKT and
// Esri JSON. Every step degrades instead of failing: missing engines, engine
// errors and bad coordinates produce sentinel values (0 area, nil GeoJSON,
// "POLYGON EMPTY") rather than errors that would abort a job submission.
package aoi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Kind is the shape of a geometry as drawn.
type Kind string

const (
	KindPolygon  Kind = "polygon"
	KindPolyline Kind = "polyline"
	KindPoint    Kind = "point"
	KindExtent   Kind = "extent"
)

// Well-known spatial reference IDs.
const (
	WKIDWGS84       = 4326
	WKIDWebMercator = 3857
	// Esri's legacy alias for web Mercator.
	WKIDWebMercatorEsri = 102100
)

// SpatialReference identifies the coordinate system of a geometry.
type SpatialReference struct {
	WKID       int `json:"wkid,omitempty"`
	LatestWKID int `json:"latestWkid,omitempty"`
}

// WGS84 is the geographic reference every job parameter is expressed in.
var WGS84 = SpatialReference{WKID: WKIDWGS84}

// IsWGS84 reports whether the reference is geographic WGS84.
func (sr SpatialReference) IsWGS84() bool {
	return sr.WKID == WKIDWGS84 || sr.LatestWKID == WKIDWGS84
}

// IsWebMercator reports whether the reference is one of the web Mercator IDs.
func (sr SpatialReference) IsWebMercator() bool {
	for _, id := range []int{sr.WKID, sr.LatestWKID} {
		switch id {
		case WKIDWebMercator, WKIDWebMercatorEsri, 102113, 900913:
			return true
		}
	}
	return false
}

// Geometry is an area of interest together with its spatial reference.
// Polylines keep their paths in Rings; points are a single one-point ring.
type Geometry struct {
	Type             Kind
	Rings            orb.Polygon
	SpatialReference SpatialReference
}

// NewPolygon builds a polygon geometry from rings of [x, y] pairs.
func NewPolygon(sr SpatialReference, rings ...[][2]float64) Geometry {
	poly := make(orb.Polygon, 0, len(rings))
	for _, r := range rings {
		ring := make(orb.Ring, len(r))
		for i, p := range r {
			ring[i] = orb.Point(p)
		}
		poly = append(poly, ring)
	}
	return Geometry{Type: KindPolygon, Rings: poly, SpatialReference: sr}
}

// IsPolygon reports whether the geometry can be measured as an area.
func (g Geometry) IsPolygon() bool {
	return (g.Type == KindPolygon || g.Type == KindExtent) && len(g.Rings) > 0
}

// IsZero reports whether the geometry is absent.
func (g Geometry) IsZero() bool {
	return g.Type == "" && len(g.Rings) == 0
}

// Clone returns a deep copy so engines that project in place cannot alias the input.
func (g Geometry) Clone() Geometry {
	out := g
	if g.Rings != nil {
		out.Rings = g.Rings.Clone()
	}
	return out
}

// Extent returns the bounding box of the geometry.
func Extent(g Geometry) orb.Bound {
	if len(g.Rings) == 0 {
		return orb.Bound{}
	}
	return g.Rings.Bound()
}

// ExtentGeoJSON returns the bounding box of the geometry as a GeoJSON polygon.
func ExtentGeoJSON(g Geometry) *geojson.Geometry {
	if len(g.Rings) == 0 {
		return nil
	}
	b := Extent(g)
	if !finite(b.Min[0], b.Min[1], b.Max[0], b.Max[1]) {
		return nil
	}
	return geojson.NewGeometry(b.ToPolygon())
}

// ErrUnsupportedGeometry is returned by ParseGeometry for documents it cannot read.
var ErrUnsupportedGeometry = errors.New("unsupported geometry document")

// esriGeometry is the native JSON shape used by ArcGIS engines.
type esriGeometry struct {
	Rings            [][][]float64     `json:"rings,omitempty"`
	Paths            [][][]float64     `json:"paths,omitempty"`
	X                *float64          `json:"x,omitempty"`
	Y                *float64          `json:"y,omitempty"`
	XMin             *float64          `json:"xmin,omitempty"`
	YMin             *float64          `json:"ymin,omitempty"`
	XMax             *float64          `json:"xmax,omitempty"`
	YMax             *float64          `json:"ymax,omitempty"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

type documentShape struct {
	Type  string          `json:"type"`
	Rings json.RawMessage `json:"rings"`
	Paths json.RawMessage `json:"paths"`
	X     json.RawMessage `json:"x"`
	XMin  json.RawMessage `json:"xmin"`
}

// ParseGeometry reads a GeoJSON (Geometry, Feature or FeatureCollection) or
// Esri JSON document. GeoJSON input is taken to be WGS84.
func ParseGeometry(data []byte) (Geometry, error) {
	var shape documentShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return Geometry{}, fmt.Errorf("invalid geometry JSON: %w", err)
	}

	if shape.Rings != nil || shape.Paths != nil || shape.X != nil || shape.XMin != nil {
		return parseEsri(data)
	}

	switch strings.ToLower(shape.Type) {
	case "":
		return Geometry{}, ErrUnsupportedGeometry
	case "feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Geometry{}, fmt.Errorf("invalid GeoJSON feature: %w", err)
		}
		return fromOrb(f.Geometry)
	case "featurecollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Geometry{}, fmt.Errorf("invalid GeoJSON feature collection: %w", err)
		}
		if len(fc.Features) == 0 {
			return Geometry{}, fmt.Errorf("%w: feature collection is empty", ErrUnsupportedGeometry)
		}
		return fromOrb(fc.Features[0].Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Geometry{}, fmt.Errorf("invalid GeoJSON geometry: %w", err)
		}
		return fromOrb(g.Geometry())
	}
}

func fromOrb(g orb.Geometry) (Geometry, error) {
	out := Geometry{SpatialReference: WGS84}
	switch v := g.(type) {
	case orb.Polygon:
		out.Type = KindPolygon
		out.Rings = v
	case orb.MultiPolygon:
		if len(v) == 0 {
			return Geometry{}, fmt.Errorf("%w: empty multipolygon", ErrUnsupportedGeometry)
		}
		out.Type = KindPolygon
		out.Rings = v[0]
	case orb.Bound:
		out.Type = KindExtent
		out.Rings = v.ToPolygon()
	case orb.LineString:
		out.Type = KindPolyline
		out.Rings = orb.Polygon{orb.Ring(v)}
	case orb.Point:
		out.Type = KindPoint
		out.Rings = orb.Polygon{orb.Ring{v}}
	default:
		return Geometry{}, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
	return out, nil
}

func parseEsri(data []byte) (Geometry, error) {
	var e esriGeometry
	if err := json.Unmarshal(data, &e); err != nil {
		return Geometry{}, fmt.Errorf("invalid Esri geometry: %w", err)
	}
	var out Geometry
	if e.SpatialReference != nil {
		out.SpatialReference = *e.SpatialReference
	}

	switch {
	case e.Rings != nil:
		out.Type = KindPolygon
		out.Rings = ringsFromArrays(e.Rings)
	case e.Paths != nil:
		out.Type = KindPolyline
		out.Rings = ringsFromArrays(e.Paths)
	case e.XMin != nil && e.YMin != nil && e.XMax != nil && e.YMax != nil:
		out.Type = KindExtent
		out.Rings = orb.Bound{
			Min: orb.Point{*e.XMin, *e.YMin},
			Max: orb.Point{*e.XMax, *e.YMax},
		}.ToPolygon()
	case e.X != nil && e.Y != nil:
		out.Type = KindPoint
		out.Rings = orb.Polygon{orb.Ring{{*e.X, *e.Y}}}
	default:
		return Geometry{}, ErrUnsupportedGeometry
	}
	return out, nil
}

func ringsFromArrays(in [][][]float64) orb.Polygon {
	poly := make(orb.Polygon, 0, len(in))
	for _, r := range in {
		ring := make(orb.Ring, 0, len(r))
		for _, c := range r {
			if len(c) < 2 {
				continue
			}
			ring = append(ring, orb.Point{c[0], c[1]})
		}
		poly = append(poly, ring)
	}
	return poly
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
