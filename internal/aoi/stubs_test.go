package aoi

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
)

var errStub = errors.New("stub failure")

// unitSquare is the closed ring [[0,0],[0,1],[1,1],[1,0],[0,0]].
func unitSquare(sr SpatialReference) Geometry {
	return NewPolygon(sr, [][2]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}})
}

type countingProjector struct {
	calls  atomic.Int32
	result []Geometry
	err    error
	panics bool
}

func (p *countingProjector) Project(_ context.Context, g Geometry, _ SpatialReference) ([]Geometry, error) {
	p.calls.Add(1)
	if p.panics {
		panic("projector exploded")
	}
	return p.result, p.err
}

type countingMercator struct {
	calls  atomic.Int32
	result Geometry
	ok     bool
	panics bool
}

func (m *countingMercator) ToGeographic(Geometry) (Geometry, bool) {
	m.calls.Add(1)
	if m.panics {
		panic("mercator exploded")
	}
	return m.result, m.ok
}

type stubOperator struct {
	geodesic    float64
	planar      float64
	geodesicErr error
	planarErr   error
	panics      bool
	calls       atomic.Int32
}

func (o *stubOperator) GeodesicArea(context.Context, Geometry) (float64, error) {
	o.calls.Add(1)
	if o.panics {
		panic("geodesic exploded")
	}
	return o.geodesic, o.geodesicErr
}

func (o *stubOperator) PlanarArea(context.Context, Geometry) (float64, error) {
	o.calls.Add(1)
	if o.panics {
		panic("planar exploded")
	}
	return o.planar, o.planarErr
}

type stubService struct {
	areas []float64
	err   error
	calls atomic.Int32
}

func (s *stubService) AreasAndLengths(context.Context, Geometry) ([]float64, error) {
	s.calls.Add(1)
	return s.areas, s.err
}

type stubNormalizer struct {
	err    error
	panics bool
}

func (n stubNormalizer) NormalizeCentralMeridian(_ context.Context, g Geometry) (Geometry, error) {
	if n.panics {
		panic("normalizer exploded")
	}
	return g, n.err
}

type stubSimplifier struct {
	simplifyErr error
	simple      bool
	simpleErr   error
}

func (s stubSimplifier) Simplify(_ context.Context, g Geometry) (Geometry, error) {
	if s.simplifyErr != nil {
		return Geometry{}, s.simplifyErr
	}
	return g, nil
}

func (s stubSimplifier) IsSimple(context.Context, Geometry) (bool, error) {
	return s.simple, s.simpleErr
}

func failingEngines() Engines {
	return Engines{
		Projector:       &countingProjector{panics: true},
		WebMercator:     &countingMercator{panics: true},
		Normalizer:      stubNormalizer{panics: true},
		Operator:        &stubOperator{panics: true},
		Fallback:        &stubOperator{geodesic: math.NaN(), planar: -12, geodesicErr: nil},
		GeometryService: &stubService{err: errStub},
	}
}
