package asset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/collagist/collagist/backend-go/internal/silhouette"
)

func encodePNG(t *testing.T, w, h int, opaque image.Rectangle) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := opaque.Min.Y; y < opaque.Max.Y; y++ {
		for x := opaque.Min.X; x < opaque.Max.X; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 30, G: 90, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFileDecoder(t *testing.T) {
	fsys := fstest.MapFS{
		"spring/cat.png": {Data: encodePNG(t, 8, 6, image.Rect(2, 1, 5, 4))},
		"spring/bad.png": {Data: []byte("not an image")},
	}
	dec := NewFileDecoder(fsys)
	ctx := context.Background()

	bm, err := dec.Decode(ctx, "spring/cat.png")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if bm.Width != 8 || bm.Height != 6 {
		t.Errorf("size = %dx%d, want 8x6", bm.Width, bm.Height)
	}
	if bm.AlphaAt(2, 1) != 255 || bm.AlphaAt(0, 0) != 0 {
		t.Errorf("alpha not extracted: %d %d", bm.AlphaAt(2, 1), bm.AlphaAt(0, 0))
	}

	tests := []struct {
		id      string
		wantErr error
	}{
		{"../secret.png", ErrInvalidID},
		{"/etc/passwd", ErrInvalidID},
		{".", ErrInvalidID},
		{"spring/missing.png", fs.ErrNotExist},
		{"spring/bad.png", image.ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if _, err := dec.Decode(ctx, tt.id); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode(%q) error = %v, want %v", tt.id, err, tt.wantErr)
			}
		})
	}

	small := &FileDecoder{fsys: fsys, maxPixels: 10}
	if _, err := small.Decode(ctx, "spring/cat.png"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Decode() over the pixel cap error = %v, want ErrTooLarge", err)
	}
}

func uploadRequest(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="photo.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	cache := silhouette.NewCache(NewFileDecoder(os.DirFS(dir)))
	h := NewHandler(dir, cache, nil)

	tests := []struct {
		name        string
		contentType string
		data        []byte
		wantStatus  int
	}{
		{"png with content", "image/png", encodePNG(t, 10, 10, image.Rect(2, 2, 6, 6)), http.StatusOK},
		{"fully transparent", "image/png", encodePNG(t, 10, 10, image.Rectangle{}), http.StatusUnprocessableEntity},
		{"unsupported type", "image/tiff", []byte("II*"), http.StatusBadRequest},
		{"garbage", "image/png", []byte("garbage"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Upload(rec, uploadRequest(t, tt.contentType, tt.data))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}

			var resp UploadResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Width != 10 || resp.Height != 10 || resp.Vertices != 4 || resp.Type != "png" {
				t.Errorf("response = %+v", resp)
			}
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(resp.ID))); err != nil {
				t.Errorf("uploaded file missing: %v", err)
			}

			srv := httptest.NewRecorder()
			h.Serve().ServeHTTP(srv, httptest.NewRequest(http.MethodGet, resp.URL, nil))
			if srv.Code != http.StatusOK || srv.Header().Get("Cache-Control") == "" {
				t.Errorf("serve %s: status %d, cache %q", resp.URL, srv.Code, srv.Header().Get("Cache-Control"))
			}
		})
	}

	entries, _ := os.ReadDir(filepath.Join(dir, UploadDir))
	if len(entries) != 1 {
		t.Errorf("upload dir has %d files, want 1 (rejected uploads removed)", len(entries))
	}
}

func TestUploadRejectsOversizedImage(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, nil)
	h.maxPixels = 50

	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "image/png", encodePNG(t, 10, 10, image.Rect(2, 2, 6, 6))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413 (%s)", rec.Code, rec.Body.String())
	}

	entries, _ := os.ReadDir(filepath.Join(dir, UploadDir))
	if len(entries) != 0 {
		t.Errorf("upload dir has %d files, want none", len(entries))
	}
}
