package aoi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const wktEmpty = "POLYGON EMPTY"

// Outputs holds every representation of an AOI. Each one is produced
// independently; Err records the first conversion that failed.
type Outputs struct {
	GeoJSON *geojson.Geometry
	WKT     string
	Native  json.RawMessage
	Err     error
}

// Serialize converts g to GeoJSON, WKT and Esri JSON. It never fails as a
// whole: a failed conversion leaves its field at the sentinel value (nil,
// "POLYGON EMPTY", nil) and sets Err.
func Serialize(g Geometry) Outputs {
	var out Outputs
	record := func(err error) {
		if err != nil && out.Err == nil {
			out.Err = err
		}
	}

	out.GeoJSON = safeGeoJSON(g, record)
	out.WKT = safeWKT(g, record)
	native, err := ToNativeJSON(g)
	record(err)
	out.Native = native
	return out
}

func safeGeoJSON(g Geometry, record func(error)) (gj *geojson.Geometry) {
	defer func() {
		if r := recover(); r != nil {
			record(fmt.Errorf("geojson: %v", r))
			gj = nil
		}
	}()
	gj = ToGeoJSON(g)
	if gj == nil {
		record(errors.New("geojson: no usable rings"))
	}
	return gj
}

func safeWKT(g Geometry, record func(error)) (s string) {
	defer func() {
		if r := recover(); r != nil {
			record(fmt.Errorf("wkt: %v", r))
			s = wktEmpty
		}
	}()
	return ToWKT(g)
}

// ToGeoJSON returns g as a GeoJSON polygon with every ring closed and
// non-finite coordinates dropped, or nil when no ring survives.
func ToGeoJSON(g Geometry) *geojson.Geometry {
	rings := cleanRings(g.Rings)
	if len(rings) == 0 {
		return nil
	}
	return geojson.NewGeometry(orb.Polygon(rings))
}

// ToWKT returns g as a WKT polygon, or "POLYGON EMPTY" when no ring survives.
func ToWKT(g Geometry) string {
	rings := cleanRings(g.Rings)
	if len(rings) == 0 {
		return wktEmpty
	}
	var b strings.Builder
	b.WriteString("POLYGON(")
	for i, ring := range rings {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, p := range ring {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatCoord(p[0]))
			b.WriteByte(' ')
			b.WriteString(formatCoord(p[1]))
		}
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

type nativeGeometry struct {
	Rings            [][][2]float64    `json:"rings,omitempty"`
	Paths            [][][2]float64    `json:"paths,omitempty"`
	X                *float64          `json:"x,omitempty"`
	Y                *float64          `json:"y,omitempty"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

// ToNativeJSON returns g as Esri JSON carrying its spatial reference.
func ToNativeJSON(g Geometry) (json.RawMessage, error) {
	if len(g.Rings) == 0 {
		return nil, errors.New("native json: no geometry")
	}
	n := nativeGeometry{}
	if g.SpatialReference != (SpatialReference{}) {
		sr := g.SpatialReference
		n.SpatialReference = &sr
	}

	switch g.Type {
	case KindPoint:
		if len(g.Rings[0]) == 0 {
			return nil, errors.New("native json: empty point")
		}
		x, y := g.Rings[0][0][0], g.Rings[0][0][1]
		n.X, n.Y = &x, &y
	case KindPolyline:
		n.Paths = pairs(g.Rings)
	default:
		n.Rings = pairs(g.Rings)
	}

	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("native json: %w", err)
	}
	return data, nil
}

func pairs(poly orb.Polygon) [][][2]float64 {
	out := make([][][2]float64, len(poly))
	for i, ring := range poly {
		out[i] = make([][2]float64, len(ring))
		for j, p := range ring {
			out[i][j] = [2]float64(p)
		}
	}
	return out
}

// cleanRings drops non-finite points, discards rings with fewer than three
// points and closes the rest.
func cleanRings(poly orb.Polygon) []orb.Ring {
	var out []orb.Ring
	for _, ring := range poly {
		clean := make(orb.Ring, 0, len(ring)+1)
		for _, p := range ring {
			if finite(p[0], p[1]) {
				clean = append(clean, p)
			}
		}
		if len(clean) < 3 {
			continue
		}
		if !clean.Closed() {
			clean = append(clean, clean[0])
		}
		out = append(out, clean)
	}
	return out
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
