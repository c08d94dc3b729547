package geometry

import (
	"math"

	appErr "github.com/panelproof/engine/pkg/errors"
)

// Affine maps plan-space coordinates into layout-space coordinates. The
// linear part is scale-then-rotate with additive skew terms:
//
//	x' = tx + sx*(cos*x - sin*y) + kx*y
//	y' = ty + sy*(sin*x + cos*y) + ky*x
type Affine struct {
	TranslateX      float64
	TranslateY      float64
	RotationDegrees float64
	ScaleX          float64
	ScaleY          float64
	SkewX           float64
	SkewY           float64
}

// Identity returns the do-nothing transform.
func Identity() Affine {
	return Affine{ScaleX: 1, ScaleY: 1}
}

func (t Affine) matrix() (a11, a12, a21, a22 float64) {
	rad := t.RotationDegrees * math.Pi / 180
	sin, cos := math.Sincos(rad)
	a11 = t.ScaleX * cos
	a12 = -t.ScaleX*sin + t.SkewX
	a21 = t.ScaleY*sin + t.SkewY
	a22 = t.ScaleY * cos
	return
}

// Apply maps a plan-space point into layout space.
func (t Affine) Apply(p Point) Point {
	a11, a12, a21, a22 := t.matrix()
	return Point{
		X: t.TranslateX + a11*p.X + a12*p.Y,
		Y: t.TranslateY + a21*p.X + a22*p.Y,
	}
}

// ApplyAll maps a slice of points, returning a new slice.
func (t Affine) ApplyAll(pts []Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = t.Apply(p)
	}
	return out
}

// ApplyInverse maps a layout-space point back into plan space without
// materializing the inverse transform.
func (t Affine) ApplyInverse(p Point) (Point, error) {
	a11, a12, a21, a22 := t.matrix()
	det := a11*a22 - a12*a21
	if math.Abs(det) < 1e-12 {
		return Point{}, appErr.New(appErr.CodeInvalid, "transform is not invertible")
	}
	dx := p.X - t.TranslateX
	dy := p.Y - t.TranslateY
	return Point{
		X: (a22*dx - a12*dy) / det,
		Y: (-a21*dx + a11*dy) / det,
	}, nil
}

// IsUniformScale reports whether X and Y scale agree within the tolerance
// used by the scale validator.
func (t Affine) IsUniformScale() bool {
	return math.Abs(t.ScaleX-t.ScaleY) <= 0.001
}

// AverageScale returns the mean of the two scale factors.
func (t Affine) AverageScale() float64 {
	return (t.ScaleX + t.ScaleY) / 2
}
