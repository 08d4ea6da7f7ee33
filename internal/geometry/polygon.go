// Package geometry holds the pure 2D math of the layout engine: affine
// matrices, polygons, bounding boxes and polygon overlap tests.
package geometry

import (
	"image"
	"math"

	polyclip "github.com/ctessum/polyclip-go"
)

// Point is a 2D coordinate in board space (y grows downwards).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Polygon is a closed polygon; the last vertex connects to the first.
type Polygon []Point

// FromBoundary converts traced pixel-corner points to a polygon.
func FromBoundary(points []image.Point) Polygon {
	poly := make(Polygon, len(points))
	for i, p := range points {
		poly[i] = Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return poly
}

// Clone returns a copy that shares no memory with p.
func (p Polygon) Clone() Polygon {
	if p == nil {
		return nil
	}
	return append(Polygon(nil), p...)
}

// Apply maps every vertex through m.
func (p Polygon) Apply(m Matrix2D) Polygon {
	out := make(Polygon, len(p))
	for i, v := range p {
		out[i] = m.Apply(v)
	}
	return out
}

// Area returns the unsigned area enclosed by the polygon (shoelace formula).
func (p Polygon) Area() float64 {
	return math.Abs(signedArea(p))
}

func signedArea(p []Point) float64 {
	var sum float64
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		sum += p[j].X*p[i].Y - p[i].X*p[j].Y
	}
	return sum / 2
}

// Contains reports whether pt lies inside the polygon (even-odd rule).
func (p Polygon) Contains(pt Point) bool {
	in := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		a, b := p[i], p[j]
		if (a.Y > pt.Y) != (b.Y > pt.Y) &&
			pt.X < (b.X-a.X)*(pt.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

// BoundingBox returns the axis-aligned min/max box over the vertices.
// An empty polygon has a zero Rect.
func BoundingBox(p Polygon) Rect {
	if len(p) == 0 {
		return Rect{}
	}
	minX, minY := p[0].X, p[0].Y
	maxX, maxY := minX, minY
	for _, v := range p[1:] {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
		maxX = max(maxX, v.X)
		maxY = max(maxY, v.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Transform places a raw (local) polygon on the board. The shape is rotated
// about the center of its own bounding box and translated so that its
// pre-rotation top-left corner sits at position.
func Transform(raw Polygon, position Point, degrees float64) Polygon {
	if len(raw) == 0 {
		return nil
	}
	return raw.Apply(Placement(BoundingBox(raw), position, degrees))
}

// Intersects reports whether two world-space polygons overlap: their areas
// intersect or their boundaries touch. A bounding box test rejects disjoint
// pairs before the exact test runs.
func Intersects(a, b Polygon) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if !BoundingBox(a).Overlaps(BoundingBox(b)) {
		return false
	}
	if IntersectionArea(a, b) > areaEpsilon {
		return true
	}
	// Zero shared area: only contact along an edge or at a corner counts.
	return boundariesTouch(a, b)
}

const areaEpsilon = 1e-9

// IntersectionArea returns the area of a∩b.
func IntersectionArea(a, b Polygon) float64 {
	clipped := toClip(a).Construct(polyclip.INTERSECTION, toClip(b))
	var area float64
	for _, c := range clipped {
		pts := make([]Point, len(c))
		for i, v := range c {
			pts[i] = Point{X: v.X, Y: v.Y}
		}
		area += math.Abs(signedArea(pts))
	}
	return area
}

func toClip(p Polygon) polyclip.Polygon {
	c := make(polyclip.Contour, len(p))
	for i, v := range p {
		c[i] = polyclip.Point{X: v.X, Y: v.Y}
	}
	return polyclip.Polygon{c}
}

// boundariesTouch reports whether any edge of a meets any edge of b.
func boundariesTouch(a, b Polygon) bool {
	for i, j := 0, len(a)-1; i < len(a); j, i = i, i+1 {
		ea := segmentBox(a[j], a[i])
		for k, l := 0, len(b)-1; k < len(b); l, k = k, k+1 {
			if !ea.Overlaps(segmentBox(b[l], b[k])) {
				continue
			}
			if segmentsIntersect(a[j], a[i], b[l], b[k]) {
				return true
			}
		}
	}
	return false
}

func segmentBox(p, q Point) Rect {
	return Rect{
		X:      min(p.X, q.X),
		Y:      min(p.Y, q.Y),
		Width:  math.Abs(p.X - q.X),
		Height: math.Abs(p.Y - q.Y),
	}
}

// segmentsIntersect reports whether segments p1p2 and q1q2 share a point,
// endpoints and collinear overlap included.
func segmentsIntersect(p1, p2, q1, q2 Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

// orientation is the sign of the cross product (b-a)x(c-a).
func orientation(a, b, c Point) int {
	v := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment reports whether c, known to be collinear with ab, lies within it.
func onSegment(a, b, c Point) bool {
	return c.X >= min(a.X, b.X) && c.X <= max(a.X, b.X) &&
		c.Y >= min(a.Y, b.Y) && c.Y <= max(a.Y, b.Y)
}
