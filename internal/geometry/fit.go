package geometry

import (
	"math"

	appErr "github.com/panelproof/engine/pkg/errors"
)

// Anchor is a user-supplied correspondence between a plan-space landmark
// and the matching layout-space point.
type Anchor struct {
	Plan   Point `json:"plan_point"`
	Layout Point `json:"layout_point"`
}

// FitResult is the outcome of a registration fit.
type FitResult struct {
	Transform     Affine
	ResidualRMS   float64
	ResidualMax   float64
	AnchorsUsed   int
	DegreesSolved bool // false for boundary fits, which never solve rotation
}

// FitSimilarity computes the closed-form least-squares similarity
// transform (uniform scale, rotation, translation) mapping anchor plan
// points onto their layout points. At least two anchors are required, and
// the plan points must not be coincident.
func FitSimilarity(anchors []Anchor) (FitResult, error) {
	if len(anchors) < 2 {
		return FitResult{}, appErr.New(appErr.CodeInsufficientAnchors, "anchor registration requires at least 2 anchor pairs").
			WithMeta("anchors", len(anchors))
	}

	n := float64(len(anchors))
	var pcx, pcy, lcx, lcy float64
	for _, a := range anchors {
		pcx += a.Plan.X
		pcy += a.Plan.Y
		lcx += a.Layout.X
		lcy += a.Layout.Y
	}
	pcx /= n
	pcy /= n
	lcx /= n
	lcy /= n

	// Cross sums over demeaned coordinates.
	var dot, cross, norm float64
	for _, a := range anchors {
		px := a.Plan.X - pcx
		py := a.Plan.Y - pcy
		lx := a.Layout.X - lcx
		ly := a.Layout.Y - lcy
		dot += px*lx + py*ly
		cross += px*ly - py*lx
		norm += px*px + py*py
	}
	if norm < 1e-12 {
		return FitResult{}, appErr.New(appErr.CodeInsufficientAnchors, "anchor plan points are coincident")
	}

	theta := math.Atan2(cross, dot)
	scale := math.Hypot(dot, cross) / norm
	sin, cos := math.Sincos(theta)

	t := Affine{
		RotationDegrees: theta * 180 / math.Pi,
		ScaleX:          scale,
		ScaleY:          scale,
		TranslateX:      lcx - scale*(cos*pcx-sin*pcy),
		TranslateY:      lcy - scale*(sin*pcx+cos*pcy),
	}

	rms, max := Residuals(t, anchors)
	return FitResult{
		Transform:     t,
		ResidualRMS:   rms,
		ResidualMax:   max,
		AnchorsUsed:   len(anchors),
		DegreesSolved: true,
	}, nil
}

// Residuals reports the RMS and maximum Euclidean error between each
// anchor's transformed plan point and its recorded layout point.
func Residuals(t Affine, anchors []Anchor) (rms, max float64) {
	if len(anchors) == 0 {
		return 0, 0
	}
	var sum float64
	for _, a := range anchors {
		d := t.Apply(a.Plan).Distance(a.Layout)
		sum += d * d
		if d > max {
			max = d
		}
	}
	return math.Sqrt(sum / float64(len(anchors))), max
}

// FitBounds derives the transform that maps the plan extents box onto the
// layout bounding box: independent per-axis scale, min corners aligned,
// rotation and skew zero.
func FitBounds(layout, plan Bounds) (FitResult, error) {
	if plan.Width() <= 0 || plan.Height() <= 0 {
		return FitResult{}, appErr.New(appErr.CodeInvalid, "plan extents are degenerate")
	}
	sx := 1.0
	sy := 1.0
	if layout.Width() > 0 {
		sx = layout.Width() / plan.Width()
	}
	if layout.Height() > 0 {
		sy = layout.Height() / plan.Height()
	}
	t := Affine{
		ScaleX:     sx,
		ScaleY:     sy,
		TranslateX: layout.MinX - sx*plan.MinX,
		TranslateY: layout.MinY - sy*plan.MinY,
	}
	return FitResult{Transform: t}, nil
}

// AnchorSpread is the bounding-box diagonal of the layout-side anchor
// points, used to express residual error relative to the working area.
func AnchorSpread(anchors []Anchor) float64 {
	pts := make([]Point, len(anchors))
	for i, a := range anchors {
		pts[i] = a.Layout
	}
	b, ok := BoundsOfPoints(pts)
	if !ok {
		return 0
	}
	return math.Hypot(b.Width(), b.Height())
}
