package aoi

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

func TestParseGeometry(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType Kind
		wantSR   SpatialReference
		rings    int
	}{
		{
			name:     "esri polygon",
			input:    `{"rings":[[[0,0],[0,1],[1,1],[1,0],[0,0]]],"spatialReference":{"wkid":102100,"latestWkid":3857}}`,
			wantType: KindPolygon,
			wantSR:   SpatialReference{WKID: 102100, LatestWKID: 3857},
			rings:    1,
		},
		{
			name:     "esri extent",
			input:    `{"xmin":0,"ymin":0,"xmax":2,"ymax":1,"spatialReference":{"wkid":4326}}`,
			wantType: KindExtent,
			wantSR:   WGS84,
			rings:    1,
		},
		{
			name:     "esri polyline",
			input:    `{"paths":[[[0,0],[1,1]]]}`,
			wantType: KindPolyline,
			rings:    1,
		},
		{
			name:     "esri point",
			input:    `{"x":1,"y":2,"spatialReference":{"wkid":4326}}`,
			wantType: KindPoint,
			wantSR:   WGS84,
			rings:    1,
		},
		{
			name:     "geojson polygon",
			input:    `{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[1,0],[0,0]]]}`,
			wantType: KindPolygon,
			wantSR:   WGS84,
			rings:    1,
		},
		{
			name:     "geojson feature",
			input:    `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[0,0]]]}}`,
			wantType: KindPolygon,
			wantSR:   WGS84,
			rings:    1,
		},
		{
			name:     "geojson collection takes first multipolygon member",
			input:    `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"MultiPolygon","coordinates":[[[[0,0],[0,1],[1,1],[0,0]],[[0.2,0.2],[0.3,0.2],[0.3,0.3],[0.2,0.2]]],[[[5,5],[5,6],[6,6],[5,5]]]]}}]}`,
			wantType: KindPolygon,
			wantSR:   WGS84,
			rings:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseGeometry([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseGeometry error: %v", err)
			}
			if g.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", g.Type, tt.wantType)
			}
			if g.SpatialReference != tt.wantSR {
				t.Errorf("SpatialReference = %+v, want %+v", g.SpatialReference, tt.wantSR)
			}
			if len(g.Rings) != tt.rings {
				t.Errorf("rings = %d, want %d", len(g.Rings), tt.rings)
			}
		})
	}
}

func TestParseGeometry_Errors(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		unsupported bool
	}{
		{"not json", `nope`, false},
		{"no type", `{"foo":1}`, true},
		{"empty collection", `{"type":"FeatureCollection","features":[]}`, true},
		{"geometry collection", `{"type":"GeometryCollection","geometries":[]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGeometry([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUnsupportedGeometry); got != tt.unsupported {
				t.Errorf("errors.Is(err, ErrUnsupportedGeometry) = %v, want %v (%v)", got, tt.unsupported, err)
			}
		})
	}
}

func TestSpatialReference(t *testing.T) {
	tests := []struct {
		sr       SpatialReference
		wgs84    bool
		mercator bool
	}{
		{SpatialReference{WKID: 4326}, true, false},
		{SpatialReference{LatestWKID: 4326}, true, false},
		{SpatialReference{WKID: 3857}, false, true},
		{SpatialReference{WKID: 102100, LatestWKID: 3857}, false, true},
		{SpatialReference{WKID: 900913}, false, true},
		{SpatialReference{WKID: 2056}, false, false},
	}
	for _, tt := range tests {
		if got := tt.sr.IsWGS84(); got != tt.wgs84 {
			t.Errorf("%+v.IsWGS84() = %v, want %v", tt.sr, got, tt.wgs84)
		}
		if got := tt.sr.IsWebMercator(); got != tt.mercator {
			t.Errorf("%+v.IsWebMercator() = %v, want %v", tt.sr, got, tt.mercator)
		}
	}
}

func TestExtentGeoJSON(t *testing.T) {
	g := NewPolygon(WGS84, [][2]float64{{-2, 1}, {3, 1}, {3, 4}, {-2, 1}})
	gj := ExtentGeoJSON(g)
	if gj == nil {
		t.Fatal("expected extent")
	}
	b := gj.Geometry().Bound()
	want := orb.Bound{Min: orb.Point{-2, 1}, Max: orb.Point{3, 4}}
	if b != want {
		t.Errorf("extent = %v, want %v", b, want)
	}
	if ExtentGeoJSON(Geometry{}) != nil {
		t.Error("expected nil extent for empty geometry")
	}
}

func TestGeometry_CloneDoesNotAlias(t *testing.T) {
	g := unitSquare(WGS84)
	c := g.Clone()
	c.Rings[0][1] = orb.Point{9, 9}
	if g.Rings[0][1] != (orb.Point{0, 1}) {
		t.Error("Clone shares ring storage with the original")
	}
}
