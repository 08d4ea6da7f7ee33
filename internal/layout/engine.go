// Package layout owns the z-ordered stack of placed images on a board.
//
// The Engine keeps each image's transform and its derived world polygon,
// answers overlap and hit queries, and implements "bring forward / send back
// past the next overlapping image". Index 0 is the bottom of the stack.
// Every mutation holds the engine lock until derived geometry is current.
package layout

import (
	"fmt"
	"sync"

	"github.com/collagist/collagist/backend-go/internal/geometry"
)

// Observer receives layout events. It is called with the engine lock held
// and must not call back into the Engine.
type Observer func(Event)

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers fn to receive every layout event.
func WithObserver(fn Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// Engine is the layout state of one board.
type Engine struct {
	mu        sync.RWMutex
	stack     []*placed
	byID      map[string]*placed
	observers []Observer
}

// New builds an engine from entries given bottom first. Duplicate ids keep
// their first occurrence. Images without a shape get an empty polygon, which
// never overlaps and is never hit, until SetShape attaches one.
func New(entries []Entry, shapes map[string]geometry.Polygon, opts ...Option) *Engine {
	e := &Engine{
		stack: make([]*placed, 0, len(entries)),
		byID:  make(map[string]*placed, len(entries)),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, entry := range entries {
		if _, dup := e.byID[entry.ID]; dup {
			continue
		}
		p := &placed{
			id:       entry.ID,
			active:   entry.Active,
			position: entry.Position,
			rotation: entry.Rotation,
			raw:      shapes[entry.ID],
		}
		p.recompute()
		e.stack = append(e.stack, p)
		e.byID[entry.ID] = p
	}
	return e
}

// --- Mutations ---

// SetShape attaches the untransformed outline of id and recomputes its
// world polygon.
func (e *Engine) SetShape(id string, raw geometry.Polygon) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, idx, err := e.findLocked(id)
	if err != nil {
		return err
	}
	p.raw = raw.Clone()
	p.recompute()
	e.emit(Event{Kind: EventShaped, ImageID: id, Index: idx, From: idx})
	return nil
}

// ToggleActive moves id to the target membership. Activation puts the entry
// on top of the stack; deactivation keeps its index. It reports whether
// anything changed.
func (e *Engine) ToggleActive(id string, active bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, idx, err := e.findLocked(id)
	if err != nil {
		return false, err
	}
	if p.active == active {
		return false, nil
	}

	p.active = active
	if !active {
		e.emit(Event{Kind: EventDeselected, ImageID: id, Index: idx, From: idx})
		return true, nil
	}

	top := len(e.stack) - 1
	e.relocateLocked(idx, top)
	p.recompute()
	e.emit(Event{Kind: EventActivated, ImageID: id, Index: top, From: idx})
	return true, nil
}

// Move sets the position of an active image. Stack order is unchanged.
func (e *Engine) Move(id string, pos geometry.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, idx, err := e.findActiveLocked(id)
	if err != nil {
		return err
	}
	p.position = pos
	p.recompute()
	e.emit(Event{Kind: EventMoved, ImageID: id, Index: idx, From: idx})
	return nil
}

// Rotate sets the rotation of an active image in degrees.
func (e *Engine) Rotate(id string, degrees float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, idx, err := e.findActiveLocked(id)
	if err != nil {
		return err
	}
	p.rotation = degrees
	p.recompute()
	e.emit(Event{Kind: EventRotated, ImageID: id, Index: idx, From: idx})
	return nil
}

// Reorder moves id one visual layer in dir: past the first active image in
// that direction whose world polygon intersects its own. It returns the new
// index. When nothing ahead overlaps, the stack is left unchanged.
func (e *Engine) Reorder(id string, dir Direction) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, idx, err := e.findActiveLocked(id)
	if err != nil {
		return 0, err
	}

	dest := idx
	switch dir {
	case Forward:
		for j := idx + 1; j < len(e.stack); j++ {
			if e.overlapsLocked(p, e.stack[j]) {
				// After removal the pivot sits at j-1; land just above it.
				dest = j
				break
			}
		}
	case Back:
		for j := idx - 1; j >= 0; j-- {
			if e.overlapsLocked(p, e.stack[j]) {
				dest = j
				break
			}
		}
	default:
		return idx, fmt.Errorf("unknown direction %d", dir)
	}

	if dest == idx {
		return idx, nil
	}
	e.relocateLocked(idx, dest)
	e.emit(Event{Kind: EventReordered, ImageID: id, Index: dest, From: idx})
	return dest, nil
}

// DeleteAll deactivates every image in place and returns how many changed.
func (e *Engine) DeleteAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := 0
	for i, p := range e.stack {
		if !p.active {
			continue
		}
		p.active = false
		changed++
		e.emit(Event{Kind: EventDeselected, ImageID: p.id, Index: i, From: i})
	}
	if changed > 0 {
		e.emit(Event{Kind: EventCleared})
	}
	return changed
}

// --- Queries ---

// Len returns the number of stack slots, active or not.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.stack)
}

// Snapshot returns every slot bottom first.
func (e *Engine) Snapshot() []Placement {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Placement, len(e.stack))
	for i, p := range e.stack {
		out[i] = p.snapshot(i)
	}
	return out
}

// Get returns the slot for id.
func (e *Engine) Get(id string) (Placement, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, idx, err := e.findLocked(id)
	if err != nil {
		return Placement{}, err
	}
	return p.snapshot(idx), nil
}

// Overlapping returns the ids of active images whose world polygon
// intersects that of id, in stack order. An inactive id overlaps nothing.
func (e *Engine) Overlapping(id string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, _, err := e.findLocked(id)
	if err != nil {
		return nil, err
	}
	var ids []string
	if !p.active {
		return ids, nil
	}
	for _, other := range e.stack {
		if other != p && e.overlapsLocked(p, other) {
			ids = append(ids, other.id)
		}
	}
	return ids, nil
}

// HitTest returns the topmost active image whose outline contains (x, y).
func (e *Engine) HitTest(x, y float64) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pt := geometry.Pt(x, y)
	for i := len(e.stack) - 1; i >= 0; i-- {
		p := e.stack[i]
		if !p.active || len(p.raw) == 0 || !p.bounds.Contains(x, y) {
			continue
		}
		// Test in image space against the untransformed outline.
		inv, ok := p.matrix.Inverse()
		if ok && p.raw.Contains(inv.Apply(pt)) {
			return p.id, true
		}
	}
	return "", false
}

// --- Internal helpers (caller holds the lock) ---

func (e *Engine) findLocked(id string) (*placed, int, error) {
	p, ok := e.byID[id]
	if !ok {
		return nil, -1, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for i, q := range e.stack {
		if q == p {
			return p, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (e *Engine) findActiveLocked(id string) (*placed, int, error) {
	p, idx, err := e.findLocked(id)
	if err != nil {
		return nil, -1, err
	}
	if !p.active {
		return nil, -1, fmt.Errorf("%w: %s", ErrInactive, id)
	}
	return p, idx, nil
}

func (e *Engine) overlapsLocked(p, other *placed) bool {
	return other.active && geometry.Intersects(p.world, other.world)
}

// relocateLocked moves the slot at from so that it ends up at index to.
func (e *Engine) relocateLocked(from, to int) {
	if from == to {
		return
	}
	p := e.stack[from]
	if from < to {
		copy(e.stack[from:to], e.stack[from+1:to+1])
	} else {
		copy(e.stack[to+1:from+1], e.stack[to:from])
	}
	e.stack[to] = p
}

func (e *Engine) emit(ev Event) {
	for _, fn := range e.observers {
		fn(ev)
	}
}
