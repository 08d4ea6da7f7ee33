package silhouette

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"

	"github.com/collagist/collagist/backend-go/internal/geometry"
)

// Data is the immutable silhouette of one source image. It is shared by
// reference; callers must not modify its slices.
type Data struct {
	ID       string
	Width    int
	Height   int
	Boundary []image.Point
	Polygon  geometry.Polygon
	Image    image.Image // pixel source, nil when the decoder kept no pixels
}

// ClipPath renders the boundary as a CSS polygon() argument list.
func (d *Data) ClipPath() string {
	var b strings.Builder
	for i, p := range d.Boundary {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(p.X))
		b.WriteString("px ")
		b.WriteString(strconv.Itoa(p.Y))
		b.WriteString("px")
	}
	return b.String()
}

// PolygonPoints renders the boundary as an SVG points attribute.
func (d *Data) PolygonPoints() string {
	var b strings.Builder
	for i, p := range d.Boundary {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(p.X))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(p.Y))
	}
	return b.String()
}

// DataURL encodes the pixel source as a PNG data URL.
func (d *Data) DataURL() (string, error) {
	if d.Image == nil {
		return "", errors.New("silhouette has no pixel source")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, d.Image); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SVG renders the standalone outline document: the image clipped to its
// silhouette, with the outline polygon kept for highlighting.
func (d *Data) SVG() (string, error) {
	href, err := d.DataURL()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" style="clip-path: polygon(%s);">`,
		d.Width, d.Height, d.ClipPath())
	fmt.Fprintf(&b, `<polygon class="img-border" points="%s"></polygon>`, d.PolygonPoints())
	fmt.Fprintf(&b, `<image href="%s"></image>`, href)
	b.WriteString(`</svg>`)
	return b.String(), nil
}
