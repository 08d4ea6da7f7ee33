// Package export renders a workshop board as a standalone SVG document.
package export

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/collagist/collagist/backend-go/internal/geometry"
	"github.com/collagist/collagist/backend-go/internal/layout"
	"github.com/collagist/collagist/backend-go/internal/silhouette"
)

// Silhouettes resolves image outlines and pixels by id.
type Silhouettes interface {
	Get(ctx context.Context, id string) (*silhouette.Data, error)
}

// Board is what gets rendered: a background and the stack, bottom first.
type Board struct {
	Background string
	Placements []layout.Placement
}

// Canvas returns the area the export covers: the board origin plus every
// active image.
func (b Board) Canvas() geometry.Rect {
	canvas := geometry.Rect{}
	for _, p := range b.Placements {
		if !p.Active {
			continue
		}
		canvas = canvas.Union(p.Bounds)
	}
	x := math.Floor(math.Min(canvas.X, 0))
	y := math.Floor(math.Min(canvas.Y, 0))
	w := math.Max(math.Ceil(canvas.Right()-x), 1)
	h := math.Max(math.Ceil(canvas.Bottom()-y), 1)
	return geometry.Rect{X: x, Y: y, Width: w, Height: h}
}

// Render writes b as SVG. Active images are drawn in stack order, each
// clipped to its silhouette and placed by its transform. Images whose
// silhouette cannot be resolved are skipped and logged.
func Render(ctx context.Context, w io.Writer, b Board, silhouettes Silhouettes) error {
	canvas := b.Canvas()

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="%s %s %s %s">`,
		num(canvas.Width), num(canvas.Height),
		num(canvas.X), num(canvas.Y), num(canvas.Width), num(canvas.Height))
	fmt.Fprintf(&sb, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s"/>`,
		num(canvas.X), num(canvas.Y), num(canvas.Width), num(canvas.Height), html.EscapeString(b.Background))

	drawn := 0
	for _, p := range b.Placements {
		if !p.Active {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := silhouettes.Get(ctx, p.ID)
		if err != nil {
			slog.Warn("export: skipping image", "image", p.ID, "error", err)
			continue
		}
		href, err := data.DataURL()
		if err != nil {
			slog.Warn("export: skipping image", "image", p.ID, "error", err)
			continue
		}

		clipID := "clip-" + strconv.Itoa(p.Index)
		fmt.Fprintf(&sb, `<g data-image="%s" transform="%s">`, html.EscapeString(p.ID), matrix(p.Matrix))
		fmt.Fprintf(&sb, `<clipPath id="%s"><polygon points="%s"/></clipPath>`, clipID, data.PolygonPoints())
		fmt.Fprintf(&sb, `<image href="%s" width="%d" height="%d" clip-path="url(#%s)"/>`,
			href, data.Width, data.Height, clipID)
		sb.WriteString(`</g>`)
		drawn++
	}
	sb.WriteString(`</svg>`)

	slog.Debug("export rendered", "images", drawn)

	_, err := io.WriteString(w, sb.String())
	return err
}

func matrix(m geometry.Matrix2D) string {
	parts := make([]string, 0, 6)
	for _, v := range m.ToSlice() {
		parts = append(parts, num(v))
	}
	return "matrix(" + strings.Join(parts, " ") + ")"
}

func num(v float64) string {
	if math.Abs(v) < 1e-9 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
