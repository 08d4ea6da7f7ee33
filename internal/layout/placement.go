package layout

import (
	"errors"

	"github.com/collagist/collagist/backend-go/internal/geometry"
)

var (
	ErrNotFound = errors.New("image not found")
	ErrInactive = errors.New("image is not active")
)

// Direction selects which way Reorder scans for a pivot.
type Direction int

const (
	Forward Direction = iota + 1
	Back
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Back:
		return "back"
	default:
		return "unknown"
	}
}

// ParseDirection maps "forward" and "back" to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "forward":
		return Forward, true
	case "back", "backward":
		return Back, true
	default:
		return 0, false
	}
}

// Entry seeds one stack slot. Entries are given bottom first.
type Entry struct {
	ID       string         `json:"id"`
	Active   bool           `json:"active"`
	Position geometry.Point `json:"position"`
	Rotation float64        `json:"rotationDegrees"`
}

// Placement is a value snapshot of one stack slot.
type Placement struct {
	ID       string            `json:"id"`
	Index    int               `json:"index"`
	Active   bool              `json:"active"`
	Position geometry.Point    `json:"position"`
	Rotation float64           `json:"rotationDegrees"`
	Bounds   geometry.Rect     `json:"bounds"`
	Matrix   geometry.Matrix2D `json:"matrix"`
	Polygon  geometry.Polygon  `json:"polygon,omitempty"`
}

// Entry returns the seed that recreates p.
func (p Placement) Entry() Entry {
	return Entry{ID: p.ID, Active: p.Active, Position: p.Position, Rotation: p.Rotation}
}

// EventKind names a layout change.
type EventKind string

const (
	EventActivated  EventKind = "image.activated"
	EventDeselected EventKind = "image.deselected"
	EventMoved      EventKind = "image.moved"
	EventRotated    EventKind = "image.rotated"
	EventReordered  EventKind = "image.reordered"
	EventShaped     EventKind = "image.shaped"
	EventCleared    EventKind = "workshop.cleared"
)

// Event describes one change. From is the previous stack index for
// EventReordered and EventActivated, Index the index after the change.
type Event struct {
	Kind    EventKind `json:"kind"`
	ImageID string    `json:"imageId,omitempty"`
	Index   int       `json:"index"`
	From    int       `json:"from"`
}

// placed is the engine-owned state of one stack slot.
type placed struct {
	id       string
	active   bool
	position geometry.Point
	rotation float64

	raw    geometry.Polygon
	world  geometry.Polygon
	bounds geometry.Rect
	matrix geometry.Matrix2D
}

// recompute refreshes the derived fields from raw, position and rotation.
// It is the only writer of world, bounds and matrix.
func (p *placed) recompute() {
	p.world = geometry.Transform(p.raw, p.position, p.rotation)
	p.bounds = geometry.BoundingBox(p.world)
	p.matrix = geometry.Placement(geometry.BoundingBox(p.raw), p.position, p.rotation)
}

func (p *placed) snapshot(index int) Placement {
	return Placement{
		ID:       p.id,
		Index:    index,
		Active:   p.active,
		Position: p.position,
		Rotation: p.rotation,
		Bounds:   p.bounds,
		Matrix:   p.matrix,
		Polygon:  p.world.Clone(),
	}
}
