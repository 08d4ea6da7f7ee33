package asset

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/collagist/collagist/backend-go/internal/contour"
	"github.com/collagist/collagist/backend-go/internal/silhouette"
	"github.com/collagist/collagist/backend-go/internal/typeid"
)

const maxUploadSize = 10 << 20 // 10MB

// UploadDir is the asset-root folder that receives uploaded images.
const UploadDir = "uploads"

var supportedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp", "image/bmp"}

// Tracer computes the silhouette of a stored image.
type Tracer interface {
	Get(ctx context.Context, id string) (*silhouette.Data, error)
}

// UploadResponse is returned from the upload endpoint.
type UploadResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Vertices int    `json:"vertices"`
}

// Handler serves asset upload and retrieval endpoints.
type Handler struct {
	dir       string // asset root
	tracer    Tracer
	maxPixels int
	logger    *slog.Logger
}

// NewHandler creates a new asset handler rooted at dir. Uploads are traced
// with tracer so images without visible content are rejected up front.
func NewHandler(dir string, tracer Tracer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, UploadDir), 0755); err != nil {
		logger.Error("create asset dir", "error", err, "dir", dir)
	}
	return &Handler{dir: dir, tracer: tracer, maxPixels: DefaultMaxPixels, logger: logger}
}

// Upload handles POST /assets/upload (multipart form with "file" field).
// The image is stored as PNG so its alpha channel survives.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "file too large (max 10MB)", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !supported(contentType) {
		http.Error(w, "only PNG, JPEG, GIF, WebP and BMP images are supported", http.StatusBadRequest)
		return
	}

	img, format, err := decodeLimited(file, h.maxPixels)
	if errors.Is(err, ErrTooLarge) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		http.Error(w, "invalid image: "+err.Error(), http.StatusBadRequest)
		return
	}

	bounds := img.Bounds()
	assetID := typeid.NewAssetID()
	id := path.Join(UploadDir, assetID+".png")
	filePath := filepath.Join(h.dir, filepath.FromSlash(id))

	if err := writePNG(filePath, img); err != nil {
		h.logger.Error("save asset", "error", err)
		http.Error(w, "failed to save file", http.StatusInternalServerError)
		return
	}

	resp := UploadResponse{
		ID:     id,
		URL:    "/assets/" + id,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Type:   format,
		Name:   header.Filename,
	}

	if h.tracer != nil {
		data, err := h.tracer.Get(r.Context(), id)
		if err != nil {
			os.Remove(filePath)
			if errors.Is(err, contour.ErrNoOpaquePixels) {
				http.Error(w, "image has no visible content", http.StatusUnprocessableEntity)
				return
			}
			h.logger.Error("trace upload", "asset", id, "error", err)
			http.Error(w, "failed to trace image", http.StatusInternalServerError)
			return
		}
		resp.Vertices = len(data.Boundary)
	}

	h.logger.Info("asset uploaded", "asset", id, "name", header.Filename, "vertices", resp.Vertices)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// Serve returns an http.Handler that serves files under the asset root.
// Uploads have unique ids, so they are cached as immutable.
func (h *Handler) Serve() http.Handler {
	fs := http.FileServer(http.Dir(h.dir))
	return http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, UploadDir+"/") {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		}
		fs.ServeHTTP(w, r)
	}))
}

func supported(contentType string) bool {
	for _, t := range supportedTypes {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

func writePNG(filePath string, img image.Image) error {
	out, err := os.Create(filePath)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(filePath)
		return err
	}
	return out.Close()
}
