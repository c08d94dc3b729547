// Package geometry implements the 2D primitives behind plan registration
// and compliance checking: bounds extraction, polygon containment,
// rotated-rectangle overlap, and affine transforms between layout space
// and plan space.
package geometry

import "math"

// Point is a position in either layout or plan coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the horizontal extent.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Contains reports whether other lies entirely within b.
func (b Bounds) Contains(other Bounds) bool {
	return other.MinX >= b.MinX && other.MaxX <= b.MaxX &&
		other.MinY >= b.MinY && other.MaxY <= b.MaxY
}

// Intersects reports whether b and other overlap.
func (b Bounds) Intersects(other Bounds) bool {
	return b.MinX < other.MaxX && b.MaxX > other.MinX &&
		b.MinY < other.MaxY && b.MaxY > other.MinY
}

// RectBounds returns the bounds of an unrotated rectangle with min corner
// (x, y).
func RectBounds(x, y, w, h float64) Bounds {
	return Bounds{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}
}

// SquareBounds returns the bounds of the radius-derived square centered on
// (x, y). Circular patches are approximated this way.
func SquareBounds(x, y, r float64) Bounds {
	return Bounds{MinX: x - r, MinY: y - r, MaxX: x + r, MaxY: y + r}
}

// BoundsOfPoints returns the bounding box of pts. ok is false when pts is
// empty.
func BoundsOfPoints(pts []Point) (Bounds, bool) {
	if len(pts) == 0 {
		return Bounds{}, false
	}
	b := Bounds{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b, true
}

// Union merges two bounding boxes.
func Union(a, b Bounds) Bounds {
	return Bounds{
		MinX: math.Min(a.MinX, b.MinX),
		MinY: math.Min(a.MinY, b.MinY),
		MaxX: math.Max(a.MaxX, b.MaxX),
		MaxY: math.Max(a.MaxY, b.MaxY),
	}
}

// RotatedRectCorners returns the four corners of a rectangle with min
// corner (x, y), rotated by deg degrees about its center.
func RotatedRectCorners(x, y, w, h, deg float64) []Point {
	cx := x + w/2
	cy := y + h/2
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	corners := []Point{
		{X: x, Y: y},
		{X: x + w, Y: y},
		{X: x + w, Y: y + h},
		{X: x, Y: y + h},
	}
	for i, c := range corners {
		dx := c.X - cx
		dy := c.Y - cy
		corners[i] = Point{
			X: cx + dx*cos - dy*sin,
			Y: cy + dx*sin + dy*cos,
		}
	}
	return corners
}
