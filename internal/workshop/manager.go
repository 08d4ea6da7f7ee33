package workshop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/collagist/collagist/backend-go/internal/catalog"
	"github.com/collagist/collagist/backend-go/internal/geometry"
	"github.com/collagist/collagist/backend-go/internal/layout"
	"github.com/collagist/collagist/backend-go/internal/silhouette"
	"github.com/collagist/collagist/backend-go/internal/store"
)

// Silhouettes resolves image outlines by id.
type Silhouettes interface {
	Get(ctx context.Context, id string) (*silhouette.Data, error)
}

// Manager opens workshop boards on demand and keeps them for the process
// lifetime.
type Manager struct {
	catalog     catalog.Loader
	silhouettes Silhouettes
	kv          store.KV
	publisher   Publisher
	workers     int
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	group    singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPublisher sets where board changes are published.
func WithPublisher(p Publisher) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

// WithWorkers bounds how many silhouettes one board load computes at once.
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager.
func NewManager(loader catalog.Loader, silhouettes Silhouettes, kv store.KV, opts ...ManagerOption) *Manager {
	m := &Manager{
		catalog:     loader,
		silhouettes: silhouettes,
		kv:          kv,
		workers:     4,
		logger:      slog.Default(),
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns the live board for key, loading it on first use.
// Concurrent first opens of one key share a single load.
func (m *Manager) Open(ctx context.Context, key string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		m.mu.Lock()
		s, ok := m.sessions[key]
		m.mu.Unlock()
		if ok {
			return s, nil
		}

		s, err := m.load(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.sessions[key] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Lookup returns an already open board.
func (m *Manager) Lookup(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Close flushes every board with an unsaved change.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) load(ctx context.Context, key string) (*Session, error) {
	start := time.Now()

	cat, err := m.catalog.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	persisted := m.readPersisted(ctx, key)
	entries := Reconcile(cat.Images, persisted)

	s := newSession(key, cat.Name, m.kv, m.publisher, m.silhouettes, m.logger)
	if persisted != nil {
		s.background = persisted.BackgroundColor
	}

	shapes := m.traceAll(ctx, s, cat.Images)
	s.engine = layout.New(entries, shapes, layout.WithObserver(s.observe))

	m.logger.Info("workshop opened",
		"workshop", key,
		"images", len(entries),
		"failures", len(s.failures),
		"restored", persisted != nil,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return s, nil
}

// readPersisted returns nil when there is no usable stored board.
func (m *Manager) readPersisted(ctx context.Context, key string) *Persisted {
	data, ok, err := m.kv.Get(ctx, key)
	if err != nil {
		m.logger.Error("read workshop state", "workshop", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	p, err := Decode(data)
	if err != nil {
		m.logger.Warn("ignoring stored workshop state", "workshop", key, "error", err)
		return nil
	}
	return p
}

// traceAll computes every silhouette with bounded concurrency. Failures are
// recorded on the session; those images keep an empty outline until a later
// request for them succeeds.
func (m *Manager) traceAll(ctx context.Context, s *Session, ids []string) map[string]geometry.Polygon {
	var (
		mu     sync.Mutex
		shapes = make(map[string]geometry.Polygon, len(ids))
	)

	var g errgroup.Group
	g.SetLimit(m.workers)
	for _, id := range ids {
		g.Go(func() error {
			data, err := m.silhouettes.Get(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.failures[id] = err.Error()
				m.logger.Warn("image failed to load", "workshop", s.key, "image", id, "error", err)
				return nil
			}
			shapes[id] = data.Polygon
			return nil
		})
	}
	_ = g.Wait()
	return shapes
}
