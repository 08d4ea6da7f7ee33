package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/collagist/collagist/backend-go/internal/silhouette"
)

// DefaultMaxPixels caps the decoded size of a single image.
const DefaultMaxPixels = 40_000_000

var (
	ErrInvalidID = errors.New("invalid asset id")
	ErrTooLarge  = errors.New("image too large")
)

// FileDecoder decodes images stored under an asset root. Image ids are
// slash-separated paths relative to the root.
type FileDecoder struct {
	fsys      fs.FS
	maxPixels int
}

// NewFileDecoder creates a decoder over fsys, usually os.DirFS(assetDir).
func NewFileDecoder(fsys fs.FS) *FileDecoder {
	return &FileDecoder{fsys: fsys, maxPixels: DefaultMaxPixels}
}

// Decode reads and decodes the image id and extracts its alpha channel.
func (d *FileDecoder) Decode(ctx context.Context, id string) (*silhouette.Bitmap, error) {
	if !fs.ValidPath(id) || id == "." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	f, err := d.fsys.Open(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := decodeLimited(f, d.maxPixels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return silhouette.NewBitmap(img), nil
}

// decodeLimited checks the header dimensions before decoding pixels.
func decodeLimited(r io.Reader, maxPixels int) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, format, fmt.Errorf("%w: %s %dx%d", ErrTooLarge, format, cfg.Width, cfg.Height)
	}

	return image.Decode(bytes.NewReader(data))
}

var _ silhouette.Decoder = (*FileDecoder)(nil)
