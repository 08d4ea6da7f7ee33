package workshop

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/collagist/collagist/backend-go/internal/geometry"
	"github.com/collagist/collagist/backend-go/internal/layout"
	"github.com/collagist/collagist/backend-go/internal/store"
)

// Change kinds published for a board. Layout changes reuse layout.EventKind.
const ChangeBackground = "workshop.background"

// Change is one published board change.
type Change struct {
	Kind       string            `json:"kind"`
	ImageID    string            `json:"imageId,omitempty"`
	Index      int               `json:"index"`
	From       int               `json:"from"`
	Placement  *layout.Placement `json:"placement,omitempty"`
	Background string            `json:"background,omitempty"`
}

// Publisher fans board changes out to listeners.
type Publisher interface {
	Publish(key string, changes []Change)
}

// State is a point-in-time view of a board.
type State struct {
	Key          string             `json:"key"`
	Name         string             `json:"name"`
	Background   string             `json:"backgroundColor"`
	Images       []layout.Placement `json:"images"`
	LoadFailures map[string]string  `json:"loadFailures,omitempty"`
}

// Session is one live board. Every mutation runs to completion, including
// persistence, before the next one starts.
type Session struct {
	key  string
	name string

	kv          store.KV
	publisher   Publisher
	silhouettes Silhouettes
	logger      *slog.Logger

	mu         sync.Mutex
	engine     *layout.Engine
	background string
	failures   map[string]string
	pending    []layout.Event
	dirty      bool
}

func newSession(key, name string, kv store.KV, publisher Publisher, silhouettes Silhouettes, logger *slog.Logger) *Session {
	return &Session{
		key:         key,
		name:        name,
		kv:          kv,
		publisher:   publisher,
		silhouettes: silhouettes,
		logger:      logger.With("workshop", key),
		background:  DefaultBackground,
		failures:    make(map[string]string),
	}
}

// observe collects engine events. It runs under the engine lock, inside a
// Session mutation that already holds s.mu.
func (s *Session) observe(ev layout.Event) {
	s.pending = append(s.pending, ev)
}

// Key returns the workshop key.
func (s *Session) Key() string { return s.key }

// Name returns the display name from the catalog.
func (s *Session) Name() string { return s.name }

// State returns a snapshot of the board.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Key:          s.key,
		Name:         s.name,
		Background:   s.background,
		Images:       s.engine.Snapshot(),
		LoadFailures: maps.Clone(s.failures),
	}
}

// Background returns the board color.
func (s *Session) Background() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

// Placements returns the stack bottom first.
func (s *Session) Placements() []layout.Placement {
	return s.engine.Snapshot()
}

// Overlapping lists the active images intersecting id. Outlines that failed
// to load for id or any active image are requested again first.
func (s *Session) Overlapping(ctx context.Context, id string) ([]string, error) {
	if err := s.mutate(ctx, func() error {
		s.retryShapesLocked(ctx, s.retryCandidatesLocked(id))
		return nil
	}); err != nil {
		return nil, err
	}
	return s.engine.Overlapping(id)
}

// HitTest returns the topmost active image at (x, y).
func (s *Session) HitTest(x, y float64) (string, bool) {
	return s.engine.HitTest(x, y)
}

// --- Mutations ---

// Activate places id on top of the board.
func (s *Session) Activate(ctx context.Context, id string) error {
	return s.mutate(ctx, func() error {
		s.retryShapesLocked(ctx, []string{id})
		_, err := s.engine.ToggleActive(id, true)
		return err
	})
}

// Deactivate removes id from the board, keeping its transform.
func (s *Session) Deactivate(ctx context.Context, id string) error {
	return s.mutate(ctx, func() error {
		_, err := s.engine.ToggleActive(id, false)
		return err
	})
}

// Move sets the position of an active image.
func (s *Session) Move(ctx context.Context, id string, pos geometry.Point) error {
	return s.mutate(ctx, func() error {
		return s.engine.Move(id, pos)
	})
}

// Rotate sets the rotation of an active image.
func (s *Session) Rotate(ctx context.Context, id string, degrees float64) error {
	return s.mutate(ctx, func() error {
		return s.engine.Rotate(id, degrees)
	})
}

// Reorder moves id past the next overlapping image and returns its index.
func (s *Session) Reorder(ctx context.Context, id string, dir layout.Direction) (int, error) {
	var idx int
	err := s.mutate(ctx, func() error {
		s.retryShapesLocked(ctx, s.retryCandidatesLocked(id))
		var err error
		idx, err = s.engine.Reorder(id, dir)
		return err
	})
	return idx, err
}

// Clear deactivates every image and returns how many were active.
func (s *Session) Clear(ctx context.Context) (int, error) {
	var n int
	err := s.mutate(ctx, func() error {
		n = s.engine.DeleteAll()
		return nil
	})
	return n, err
}

// SetBackground changes the board color.
func (s *Session) SetBackground(ctx context.Context, color string) error {
	bg, err := NormalizeColor(color)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if bg == s.background {
		return nil
	}
	s.background = bg
	s.persistLocked(ctx)
	s.publish([]Change{{Kind: ChangeBackground, Background: bg}})
	return nil
}

// Flush persists the board if an earlier write failed.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.persistLocked(ctx)
}

// mutate runs fn under the session lock, then persists and publishes the
// engine events it produced.
func (s *Session) mutate(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = s.pending[:0]
	if err := fn(); err != nil {
		s.logger.Debug("layout mutation rejected", "error", err)
		return err
	}
	if len(s.pending) == 0 {
		return nil
	}

	s.persistLocked(ctx)

	changes := make([]Change, 0, len(s.pending))
	for _, ev := range s.pending {
		c := Change{Kind: string(ev.Kind), ImageID: ev.ImageID, Index: ev.Index, From: ev.From}
		if ev.ImageID != "" {
			if p, err := s.engine.Get(ev.ImageID); err == nil {
				p.Polygon = nil
				c.Placement = &p
			}
		}
		changes = append(changes, c)
	}
	s.publish(changes)
	return nil
}

// retryShapesLocked requests the outlines of the failed images among ids
// again. A recovered outline is installed in the engine, which reports it as
// an EventShaped change.
func (s *Session) retryShapesLocked(ctx context.Context, ids []string) {
	if s.silhouettes == nil {
		return
	}
	for _, id := range ids {
		if _, failed := s.failures[id]; !failed {
			continue
		}
		data, err := s.silhouettes.Get(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				s.failures[id] = err.Error()
			}
			s.logger.Debug("silhouette still unavailable", "image", id, "error", err)
			continue
		}
		if err := s.engine.SetShape(id, data.Polygon); err != nil {
			continue
		}
		delete(s.failures, id)
		s.logger.Info("silhouette recovered", "image", id)
	}
}

// retryCandidatesLocked returns id plus every active image still missing
// its outline.
func (s *Session) retryCandidatesLocked(id string) []string {
	ids := []string{id}
	for failed := range s.failures {
		if failed == id {
			continue
		}
		if p, err := s.engine.Get(failed); err == nil && p.Active {
			ids = append(ids, failed)
		}
	}
	return ids
}

// persistLocked writes the board. A failed write is logged and retried by
// the next mutation or Flush; the in-memory board stays authoritative.
func (s *Session) persistLocked(ctx context.Context) error {
	data, err := Encode(Serialize(s.background, s.engine.Snapshot()))
	if err == nil {
		err = s.kv.Put(context.WithoutCancel(ctx), s.key, data)
	}
	if err != nil {
		s.dirty = true
		s.logger.Error("persist workshop", "error", err)
		return fmt.Errorf("persist workshop %s: %w", s.key, err)
	}
	s.dirty = false
	return nil
}

func (s *Session) publish(changes []Change) {
	if s.publisher != nil && len(changes) > 0 {
		s.publisher.Publish(s.key, changes)
	}
}
