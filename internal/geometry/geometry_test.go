package geometry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoundsContainsAndIntersects(t *testing.T) {
	site := Bounds{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 800}

	inside := RectBounds(100, 100, 40, 100)
	require.True(t, site.Contains(inside))

	sticking := RectBounds(1100, 50, 40, 100)
	require.False(t, site.Contains(sticking))
	require.False(t, site.Intersects(sticking))

	overlapping := RectBounds(980, 50, 40, 100)
	require.False(t, site.Contains(overlapping))
	require.True(t, site.Intersects(overlapping))
}

func TestSquareBounds(t *testing.T) {
	b := SquareBounds(50, 50, 10)
	require.Equal(t, Bounds{MinX: 40, MinY: 40, MaxX: 60, MaxY: 60}, b)
}

func TestPolygonContainsPoint(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

	require.True(t, square.ContainsPoint(Point{5, 5}))
	require.False(t, square.ContainsPoint(Point{15, 5}))
	require.False(t, square.ContainsPoint(Point{-1, -1}))
	// Edge points count as inside.
	require.True(t, square.ContainsPoint(Point{10, 5}))
	require.True(t, square.ContainsPoint(Point{0, 0}))
}

func TestPolygonContainsPointConcave(t *testing.T) {
	// L-shaped ring with a notch in the upper right.
	l := Polygon{{0, 0}, {10, 0}, {10, 5}, {5, 5}, {5, 10}, {0, 10}}

	require.True(t, l.ContainsPoint(Point{2, 8}))
	require.True(t, l.ContainsPoint(Point{8, 2}))
	require.False(t, l.ContainsPoint(Point{8, 8}))
}

func TestRotatedRectCorners(t *testing.T) {
	// 90 degrees about the center swaps the footprint's axes.
	corners := RotatedRectCorners(0, 0, 4, 2, 90)
	b, ok := BoundsOfPoints(corners)
	require.True(t, ok)
	require.InDelta(t, 1, b.MinX, 1e-9)
	require.InDelta(t, 3, b.MaxX, 1e-9)
	require.InDelta(t, -1, b.MinY, 1e-9)
	require.InDelta(t, 3, b.MaxY, 1e-9)
}

func TestConvexOverlap(t *testing.T) {
	a := Polygon{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
	b := Polygon{{2, 2}, {6, 2}, {6, 6}, {2, 6}}
	c := Polygon{{10, 10}, {12, 10}, {12, 12}, {10, 12}}

	require.True(t, ConvexOverlap(a, b))
	require.False(t, ConvexOverlap(a, c))

	// Diamond whose bounding box overlaps the square but whose footprint
	// does not: the separating-axis test must see through the bbox.
	diamond := Polygon{{6, -5}, {9, -2}, {6, 1}, {3, -2}}
	bbox, ok := diamond.Bounds()
	require.True(t, ok)
	sq, _ := a.Bounds()
	require.True(t, sq.Intersects(bbox))
	require.False(t, ConvexOverlap(a, diamond))
}

func TestAffineApplyAndInverse(t *testing.T) {
	tr := Affine{TranslateX: 10, TranslateY: -5, RotationDegrees: 30, ScaleX: 2, ScaleY: 2}

	p := Point{3, 7}
	mapped := tr.Apply(p)
	back, err := tr.ApplyInverse(mapped)
	require.NoError(t, err)
	require.InDelta(t, p.X, back.X, 1e-9)
	require.InDelta(t, p.Y, back.Y, 1e-9)
}

func TestAffineRotation(t *testing.T) {
	tr := Affine{RotationDegrees: 90, ScaleX: 1, ScaleY: 1}
	got := tr.Apply(Point{1, 0})
	require.InDelta(t, 0, got.X, 1e-9)
	require.InDelta(t, 1, got.Y, 1e-9)
}

func TestAffineUniformScale(t *testing.T) {
	require.True(t, Affine{ScaleX: 1.2, ScaleY: 1.2}.IsUniformScale())
	require.True(t, Affine{ScaleX: 1.2, ScaleY: 1.2005}.IsUniformScale())
	require.False(t, Affine{ScaleX: 1.2, ScaleY: 1.3}.IsUniformScale())
	require.InDelta(t, 1.25, Affine{ScaleX: 1.2, ScaleY: 1.3}.AverageScale(), 1e-9)
}
