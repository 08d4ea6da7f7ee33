package silhouette

import (
	"context"
	"image"

	"github.com/collagist/collagist/backend-go/internal/contour"
)

// Decoder produces the decoded bitmap for an image id.
type Decoder interface {
	Decode(ctx context.Context, id string) (*Bitmap, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, id string) (*Bitmap, error)

// Decode calls f(ctx, id).
func (f DecoderFunc) Decode(ctx context.Context, id string) (*Bitmap, error) {
	return f(ctx, id)
}

// Bitmap is a decoded image with its alpha channel extracted.
// Alpha values range from 0 (fully transparent) to 255 (fully opaque).
type Bitmap struct {
	Width  int
	Height int
	Alpha  []uint8 // row-major, Width*Height
	Image  image.Image
}

// NewBitmap extracts the alpha channel of img.
func NewBitmap(img image.Image) *Bitmap {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	bm := &Bitmap{
		Width:  w,
		Height: h,
		Alpha:  make([]uint8, w*h),
		Image:  img,
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			_, _, _, a := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// a is 0-65535, shift by 8 to get 0-255
			bm.Alpha[y*w+x] = uint8(a >> 8)
		}
	}

	return bm
}

// AlphaAt returns the alpha at (x, y), or 0 outside the bitmap.
func (b *Bitmap) AlphaAt(x, y int) uint8 {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return 0
	}
	return b.Alpha[y*b.Width+x]
}

// Opaque returns the tracing predicate: alpha strictly above threshold.
func (b *Bitmap) Opaque(threshold uint8) contour.OpaqueFunc {
	return func(x, y int) bool {
		return b.AlphaAt(x, y) > threshold
	}
}
