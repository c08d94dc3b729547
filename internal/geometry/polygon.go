package geometry

// Polygon is an ordered ring of vertices. The closing edge from the last
// vertex back to the first is implicit.
type Polygon []Point

// Bounds returns the polygon's bounding box. ok is false for an empty
// polygon.
func (pg Polygon) Bounds() (Bounds, bool) {
	return BoundsOfPoints(pg)
}

// ContainsPoint runs a ray-casting test. Points exactly on an edge count
// as inside.
func (pg Polygon) ContainsPoint(p Point) bool {
	n := len(pg)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		a := pg[i]
		b := pg[j]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xi := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xi {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// ContainsAll reports whether every point lies inside the polygon.
func (pg Polygon) ContainsAll(pts []Point) bool {
	for _, p := range pts {
		if !pg.ContainsPoint(p) {
			return false
		}
	}
	return true
}

const edgeEpsilon = 1e-9

func onSegment(p, a, b Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross > edgeEpsilon || cross < -edgeEpsilon {
		return false
	}
	dot := (p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)
	if dot < -edgeEpsilon {
		return false
	}
	sq := (b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y)
	return dot <= sq+edgeEpsilon
}

// ConvexOverlap runs a separating-axis test between two polygons. It is
// exact for convex rings; concave no-go zones are treated by their convex
// hull behavior, which errs toward reporting overlap.
func ConvexOverlap(a, b Polygon) bool {
	if len(a) < 3 || len(b) < 3 {
		return false
	}
	return !hasSeparatingAxis(a, b) && !hasSeparatingAxis(b, a)
}

func hasSeparatingAxis(edges, other Polygon) bool {
	n := len(edges)
	for i := 0; i < n; i++ {
		p1 := edges[i]
		p2 := edges[(i+1)%n]
		// Axis normal to the edge.
		axisX := p2.Y - p1.Y
		axisY := p1.X - p2.X
		minA, maxA := project(edges, axisX, axisY)
		minB, maxB := project(other, axisX, axisY)
		if maxA < minB || maxB < minA {
			return true
		}
	}
	return false
}

func project(pg Polygon, axisX, axisY float64) (min, max float64) {
	min = pg[0].X*axisX + pg[0].Y*axisY
	max = min
	for _, p := range pg[1:] {
		d := p.X*axisX + p.Y*axisY
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}
