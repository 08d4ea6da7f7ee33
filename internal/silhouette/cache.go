// Package silhouette derives and memoizes the traced outline of source images.
//
// A silhouette is computed once per image id and shared by every placement of
// that image. Concurrent requests for the same id collapse into a single
// decode and trace; requests for different ids proceed independently.
package silhouette

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/collagist/collagist/backend-go/internal/contour"
	"github.com/collagist/collagist/backend-go/internal/geometry"
)

// DefaultThreshold is the alpha cutoff used when none is configured.
// Pixels with alpha strictly greater than the threshold are opaque.
const DefaultThreshold uint8 = 99

// ErrDecodeFailure is returned when the decoder could not produce a bitmap.
// Failures are not cached, so a later call retries.
var ErrDecodeFailure = errors.New("decode failure")

// Cache memoizes silhouettes by image id for the lifetime of the process.
type Cache struct {
	decoder   Decoder
	threshold uint8
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Data
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithThreshold sets the alpha cutoff.
func WithThreshold(t uint8) Option {
	return func(c *Cache) { c.threshold = t }
}

// WithLogger sets the logger used for trace timings and failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// NewCache creates a cache backed by decoder.
func NewCache(decoder Decoder, opts ...Option) *Cache {
	c := &Cache{
		decoder:   decoder,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
		entries:   make(map[string]*Data),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Threshold returns the configured alpha cutoff.
func (c *Cache) Threshold() uint8 { return c.threshold }

// Get returns the silhouette for id, computing it on first use.
//
// If ctx ends while the computation is running, Get returns ctx.Err() but the
// computation still completes and fills the cache for later callers.
func (c *Cache) Get(ctx context.Context, id string) (*Data, error) {
	if d, ok := c.lookup(id); ok {
		return d, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (interface{}, error) {
		if d, ok := c.lookup(id); ok {
			return d, nil
		}
		d, err := c.compute(detached, id)
		if err != nil {
			c.logger.Warn("silhouette failed", "image", id, "error", err)
			return nil, err
		}
		c.mu.Lock()
		c.entries[id] = d
		c.mu.Unlock()
		return d, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Data), nil
	}
}

// Peek returns a cached silhouette without computing it.
func (c *Cache) Peek(id string) (*Data, bool) {
	return c.lookup(id)
}

// Len returns the number of cached silhouettes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(id string) (*Data, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[id]
	return d, ok
}

func (c *Cache) compute(ctx context.Context, id string) (*Data, error) {
	start := time.Now()

	bm, err := c.decoder.Decode(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailure, id, err)
	}
	if bm == nil || bm.Width <= 0 || bm.Height <= 0 {
		return nil, fmt.Errorf("%w: %s: empty bitmap", ErrDecodeFailure, id)
	}

	points, err := contour.Trace(bm.Width, bm.Height, bm.Opaque(c.threshold))
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", id, err)
	}

	c.logger.Debug("silhouette traced",
		"image", id,
		"width", bm.Width,
		"height", bm.Height,
		"vertices", len(points),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &Data{
		ID:       id,
		Width:    bm.Width,
		Height:   bm.Height,
		Boundary: points,
		Polygon:  geometry.FromBoundary(points),
		Image:    bm.Image,
	}, nil
}
