package aoi

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

func TestToWKT(t *testing.T) {
	tests := []struct {
		name string
		in   Geometry
		want string
	}{
		{"square", unitSquare(WGS84), "POLYGON((0 0, 0 1, 1 1, 1 0, 0 0))"},
		{"closes ring", NewPolygon(WGS84, [][2]float64{{0, 0}, {0, 2}, {2, 2}}), "POLYGON((0 0, 0 2, 2 2, 0 0))"},
		{"decimals", NewPolygon(WGS84, [][2]float64{{-1.5, 2.25}, {3, 4}, {5.125, -6}, {-1.5, 2.25}}), "POLYGON((-1.5 2.25, 3 4, 5.125 -6, -1.5 2.25))"},
		{"hole", NewPolygon(WGS84,
			[][2]float64{{0, 0}, {0, 4}, {4, 4}, {4, 0}, {0, 0}},
			[][2]float64{{1, 1}, {2, 1}, {2, 2}, {1, 1}},
		), "POLYGON((0 0, 0 4, 4 4, 4 0, 0 0), (1 1, 2 1, 2 2, 1 1))"},
		{"empty", Geometry{Type: KindPolygon}, "POLYGON EMPTY"},
		{"all NaN", NewPolygon(WGS84, [][2]float64{{math.NaN(), 0}, {0, math.NaN()}, {math.NaN(), math.NaN()}}), "POLYGON EMPTY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToWKT(tt.in); got != tt.want {
				t.Errorf("ToWKT = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToGeoJSON_ClosesRings(t *testing.T) {
	gj := ToGeoJSON(NewPolygon(WGS84, [][2]float64{{0, 0}, {0, 2}, {2, 2}}))
	if gj == nil {
		t.Fatal("expected geometry")
	}
	poly, ok := gj.Geometry().(orb.Polygon)
	if !ok {
		t.Fatalf("geometry type = %T, want orb.Polygon", gj.Geometry())
	}
	ring := poly[0]
	if len(ring) != 4 {
		t.Fatalf("ring has %d points, want 4", len(ring))
	}
	if ring[3] != (orb.Point{0, 0}) {
		t.Errorf("last point = %v, want [0 0]", ring[3])
	}
}

func TestToGeoJSON_DropsNonFinitePoints(t *testing.T) {
	in := NewPolygon(WGS84, [][2]float64{{0, 0}, {math.Inf(1), 5}, {0, 1}, {1, 1}, {1, math.NaN()}, {1, 0}, {0, 0}})
	gj := ToGeoJSON(in)
	if gj == nil {
		t.Fatal("expected geometry")
	}
	ring := gj.Geometry().(orb.Polygon)[0]
	if len(ring) != 5 {
		t.Errorf("ring has %d points, want 5", len(ring))
	}
	for _, p := range ring {
		if !finite(p[0], p[1]) {
			t.Errorf("non-finite point %v survived", p)
		}
	}
}

func TestSerialize_Sentinels(t *testing.T) {
	nan := math.NaN()
	out := Serialize(NewPolygon(WGS84, [][2]float64{{nan, nan}, {nan, 1}, {1, nan}}))
	if out.GeoJSON != nil {
		t.Errorf("GeoJSON = %v, want nil", out.GeoJSON)
	}
	if out.WKT != "POLYGON EMPTY" {
		t.Errorf("WKT = %q, want POLYGON EMPTY", out.WKT)
	}
	if out.Err == nil {
		t.Error("expected Err to record the failed conversion")
	}
}

func TestSerialize_Square(t *testing.T) {
	out := Serialize(unitSquare(WGS84))
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.GeoJSON == nil || out.GeoJSON.Type != "Polygon" {
		t.Errorf("GeoJSON = %+v, want a Polygon", out.GeoJSON)
	}
	if out.WKT != "POLYGON((0 0, 0 1, 1 1, 1 0, 0 0))" {
		t.Errorf("WKT = %q", out.WKT)
	}

	var native struct {
		Rings            [][][2]float64 `json:"rings"`
		SpatialReference struct {
			WKID int `json:"wkid"`
		} `json:"spatialReference"`
	}
	if err := json.Unmarshal(out.Native, &native); err != nil {
		t.Fatalf("native JSON does not decode: %v", err)
	}
	if native.SpatialReference.WKID != 4326 {
		t.Errorf("wkid = %d, want 4326", native.SpatialReference.WKID)
	}
	if len(native.Rings) != 1 || len(native.Rings[0]) != 5 {
		t.Errorf("rings = %v, want one ring of 5 points", native.Rings)
	}
}

func TestToNativeJSON_Shapes(t *testing.T) {
	line := Geometry{Type: KindPolyline, Rings: orb.Polygon{{{0, 0}, {1, 1}}}, SpatialReference: SpatialReference{WKID: 3857}}
	data, err := ToNativeJSON(line)
	if err != nil {
		t.Fatalf("ToNativeJSON(polyline) error: %v", err)
	}
	if !strings.Contains(string(data), `"paths"`) || strings.Contains(string(data), `"rings"`) {
		t.Errorf("polyline JSON = %s", data)
	}

	point := Geometry{Type: KindPoint, Rings: orb.Polygon{{{7, 8}}}}
	data, err = ToNativeJSON(point)
	if err != nil {
		t.Fatalf("ToNativeJSON(point) error: %v", err)
	}
	if string(data) != `{"x":7,"y":8}` {
		t.Errorf("point JSON = %s", data)
	}

	if _, err := ToNativeJSON(Geometry{}); err == nil {
		t.Error("expected error for empty geometry")
	}
}
