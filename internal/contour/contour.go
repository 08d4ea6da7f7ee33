// Package contour traces the outer boundary of the opaque region of a mask
// using a marching squares walk.
//
// Boundary points are pixel corner coordinates: a single opaque pixel at
// (x, y) traces to the unit square (x,y) (x,y+1) (x+1,y+1) (x+1,y).
package contour

import (
	"errors"
	"image"
)

var (
	// ErrNoOpaquePixels is returned when the mask has no opaque pixel to start from.
	ErrNoOpaquePixels = errors.New("image has no visible content")

	// ErrOpenContour is returned when the walk cannot close its loop.
	ErrOpenContour = errors.New("contour walk did not close")
)

// OpaqueFunc reports whether the pixel at (x, y) is opaque.
// Coordinates outside the mask must report false.
type OpaqueFunc func(x, y int) bool

// Direction lookup indexed by the 2x2 neighborhood value.
// Entries 0 and 15 have no direction; 6 and 9 are saddles resolved in step.
var (
	stepDX = [16]int{1, 0, 1, 1, -1, 0, -1, 1, 0, 0, 0, 0, -1, 0, -1, 0}
	stepDY = [16]int{0, -1, 0, 0, 0, -1, 0, 0, 1, -1, 1, 1, 0, -1, 0, 0}
)

// Trace walks the boundary of the opaque region containing the first opaque
// pixel found by Start and returns its vertices in trace order. Only points
// where the walk changes direction are emitted.
func Trace(width, height int, opaque OpaqueFunc) ([]image.Point, error) {
	start, err := Start(width, height, opaque)
	if err != nil {
		return nil, err
	}

	var (
		points   []image.Point
		x, y     = start.X, start.Y
		pdx, pdy int
		first    = true
	)

	maxSteps := 4 * (width + 2) * (height + 2)
	for steps := 0; ; steps++ {
		if steps > maxSteps {
			return nil, ErrOpenContour
		}

		i := index(opaque, x, y)

		var dx, dy int
		switch i {
		case 0, 15:
			return nil, ErrOpenContour
		case 6:
			dx, dy = 1, 0
			if !first && pdy == -1 {
				dx = -1
			}
		case 9:
			dx, dy = 0, 1
			if !first && pdx == 1 {
				dy = -1
			}
		default:
			dx, dy = stepDX[i], stepDY[i]
		}

		// Unit steps never reverse along an edge, so a turn changes both components.
		if first || (dx != pdx && dy != pdy) {
			points = append(points, image.Pt(x, y))
			pdx, pdy = dx, dy
			first = false
		}

		x += dx
		y += dy
		if x == start.X && y == start.Y {
			return points, nil
		}
	}
}

// Start returns the first opaque pixel, scanning outward-expanding diagonals
// from the origin: (0,0), (1,0), (0,1), (2,0), (1,1), (0,2), ...
func Start(width, height int, opaque OpaqueFunc) (image.Point, error) {
	if width <= 0 || height <= 0 {
		return image.Point{}, ErrNoOpaquePixels
	}
	for d := 0; d <= width+height-2; d++ {
		for x := d; x >= 0; x-- {
			y := d - x
			if x >= width || y >= height {
				continue
			}
			if opaque(x, y) {
				return image.Pt(x, y), nil
			}
		}
	}
	return image.Point{}, ErrNoOpaquePixels
}

// index builds the marching squares value of the 2x2 neighborhood whose
// lower-right pixel is (x, y).
func index(opaque OpaqueFunc, x, y int) int {
	i := 0
	if opaque(x-1, y-1) {
		i |= 1
	}
	if opaque(x, y-1) {
		i |= 2
	}
	if opaque(x-1, y) {
		i |= 4
	}
	if opaque(x, y) {
		i |= 8
	}
	return i
}

// Grid adapts a row-major boolean slice to an OpaqueFunc.
func Grid(width, height int, cells []bool) OpaqueFunc {
	return func(x, y int) bool {
		if x < 0 || y < 0 || x >= width || y >= height {
			return false
		}
		return cells[y*width+x]
	}
}
