package aoi

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
)

// Validation failure codes.
const (
	CodeNoGeometry              = "NO_GEOMETRY"
	CodeInvalidGeometryType     = "INVALID_GEOMETRY_TYPE"
	CodeGeometryInvalid         = "GEOMETRY_INVALID"
	CodeGeometryValidationError = "GEOMETRY_VALIDATION_ERROR"
)

// MinRingPoints is the smallest closed ring: a triangle plus its closing point.
const MinRingPoints = 4

// ValidationResult describes the outcome of ValidatePolygon.
type ValidationResult struct {
	Valid      bool
	Simplified *Geometry
	// Area of the validated polygon in square meters, 0 when not measured.
	Area float64
	Code string
	Err  error
}

func invalid(code string, err error) ValidationResult {
	return ValidationResult{Code: code, Err: err}
}

// ValidatePolygon checks that g is a well-formed polygon with a measurable area.
//
// Without any engine only the ring structure is checked and the polygon is
// reported valid. With a simplifier the polygon is simplified and must be
// topologically simple. A polygon whose area measures as 0 is degenerate.
// Without a simplifier the extent tier of ComputeArea still measures a
// collinear ring by its bounding box, so such a ring passes when it is not
// axis-aligned.
func ValidatePolygon(ctx context.Context, g Geometry, engines Engines) ValidationResult {
	if g.IsZero() || len(g.Rings) == 0 {
		return invalid(CodeNoGeometry, fmt.Errorf("no geometry"))
	}
	if g.Type != KindPolygon && g.Type != KindExtent {
		return invalid(CodeInvalidGeometryType, fmt.Errorf("expected a polygon, got %s", g.Type))
	}
	for i, ring := range g.Rings {
		if err := checkRing(ring); err != nil {
			return invalid(CodeGeometryInvalid, fmt.Errorf("ring %d: %w", i, err))
		}
	}

	if engines.Empty() {
		return ValidationResult{Valid: true}
	}

	candidate := g
	var simplified *Geometry
	if s := engines.Simplifier; s != nil {
		out, err := simplify(ctx, s, g)
		if err != nil {
			return invalid(CodeGeometryValidationError, fmt.Errorf("simplify: %w", err))
		}
		simple, err := isSimple(ctx, s, out)
		if err != nil {
			return invalid(CodeGeometryValidationError, fmt.Errorf("simplicity check: %w", err))
		}
		if !simple {
			return invalid(CodeGeometryInvalid, fmt.Errorf("polygon is self-intersecting"))
		}
		candidate = out
		simplified = &out
	}

	area := ComputeArea(ctx, candidate, engines)
	if area == 0 {
		return invalid(CodeGeometryInvalid, fmt.Errorf("polygon has no measurable area"))
	}
	return ValidationResult{Valid: true, Simplified: simplified, Area: area}
}

func checkRing(ring orb.Ring) error {
	if len(ring) < MinRingPoints {
		return fmt.Errorf("has %d points, need at least %d", len(ring), MinRingPoints)
	}
	for _, p := range ring {
		if !finite(p[0], p[1]) {
			return fmt.Errorf("has non-finite coordinates")
		}
	}
	if !ring.Closed() {
		return fmt.Errorf("is not closed")
	}
	return nil
}

func simplify(ctx context.Context, s Simplifier, g Geometry) (out Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = s.Simplify(ctx, g)
	if err == nil && len(out.Rings) == 0 {
		out = g
	}
	return out, err
}

func isSimple(ctx context.Context, s Simplifier, g Geometry) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.IsSimple(ctx, g)
}
