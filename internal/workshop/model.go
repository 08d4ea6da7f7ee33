// Package workshop ties a catalog of images to a persisted board layout.
//
// model.go holds the persisted shape and the pure functions that project a
// layout into it and reconcile it back against the current catalog.
// session.go and manager.go run live boards on top of them.
package workshop

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/collagist/collagist/backend-go/internal/geometry"
	"github.com/collagist/collagist/backend-go/internal/layout"
)

// Version is the persisted format version written by Encode.
const Version = 1

// DefaultBackground is used when no background color was ever chosen.
const DefaultBackground = "#ffffff"

// ErrMalformedState is returned by Decode for data it cannot trust.
// Callers treat it as "no persisted state".
var ErrMalformedState = errors.New("malformed workshop state")

// Persisted is the durable shape of one workshop board.
type Persisted struct {
	Version         int           `json:"version"`
	BackgroundColor string        `json:"backgroundColor"`
	Images          []ImageRecord `json:"images"`
}

// ImageRecord is the persisted state of one stack slot.
type ImageRecord struct {
	ID              string  `json:"id"`
	Active          bool    `json:"active"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	RotationDegrees float64 `json:"rotationDegrees"`
}

// Serialize projects a stack, bottom first, into its persisted shape.
func Serialize(background string, stack []layout.Placement) Persisted {
	images := make([]ImageRecord, len(stack))
	for i, p := range stack {
		images[i] = ImageRecord{
			ID:              p.ID,
			Active:          p.Active,
			X:               p.Position.X,
			Y:               p.Position.Y,
			RotationDegrees: p.Rotation,
		}
	}
	return Persisted{
		Version:         Version,
		BackgroundColor: background,
		Images:          images,
	}
}

// Reconcile builds the seed stack for a board. Persisted order and
// transforms win for images still in the catalog; catalog images the
// persisted data does not know are appended inactive at the origin. A nil
// persisted value yields the catalog order, all inactive.
func Reconcile(catalog []string, persisted *Persisted) []layout.Entry {
	known := make(map[string]bool, len(catalog))
	for _, id := range catalog {
		known[id] = true
	}

	entries := make([]layout.Entry, 0, len(catalog))
	seen := make(map[string]bool, len(catalog))

	if persisted != nil {
		for _, rec := range persisted.Images {
			if !known[rec.ID] || seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			entries = append(entries, layout.Entry{
				ID:       rec.ID,
				Active:   rec.Active,
				Position: geometry.Pt(rec.X, rec.Y),
				Rotation: rec.RotationDegrees,
			})
		}
	}

	for _, id := range catalog {
		if seen[id] {
			continue
		}
		seen[id] = true
		entries = append(entries, layout.Entry{ID: id})
	}
	return entries
}

// Encode renders p as JSON.
func Encode(p Persisted) ([]byte, error) {
	if p.Version == 0 {
		p.Version = Version
	}
	if p.Images == nil {
		p.Images = []ImageRecord{}
	}
	return json.Marshal(p)
}

// Decode parses and validates persisted JSON. Any problem is reported as
// ErrMalformedState.
func Decode(data []byte) (*Persisted, error) {
	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedState, err)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedState, p.Version)
	}

	if p.BackgroundColor == "" {
		p.BackgroundColor = DefaultBackground
	}
	bg, err := NormalizeColor(p.BackgroundColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedState, err)
	}
	p.BackgroundColor = bg

	seen := make(map[string]bool, len(p.Images))
	for i, rec := range p.Images {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: image %d has no id", ErrMalformedState, i)
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("%w: duplicate image %q", ErrMalformedState, rec.ID)
		}
		seen[rec.ID] = true
	}
	return &p, nil
}

// NormalizeColor validates a CSS hex color and returns it as #rrggbb.
func NormalizeColor(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 7 {
		return "", fmt.Errorf("invalid color %q", s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return "", fmt.Errorf("invalid color %q", s)
	}
	return c.Hex(), nil
}
