// Package catalog loads the list of images that make up a workshop.
//
// A workshop is a folder under the asset root holding a workshop.json (or
// workshop.toml) manifest:
//
//	{"name": "Spring fair", "images": ["cat.png", "../shared/tree.webp"]}
//
// Image references are resolved against the workshop folder the way a
// browser resolves relative URLs, giving asset-root relative image ids.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
)

var (
	ErrNotFound       = errors.New("workshop not found")
	ErrInvalidCatalog = errors.New("workshop data is not correctly formatted")
)

// Catalog is the resolved manifest of one workshop.
type Catalog struct {
	Key    string   `json:"key"`
	Name   string   `json:"name"`
	Images []string `json:"images"`
}

// Loader fetches workshop catalogs by key.
type Loader interface {
	Load(ctx context.Context, key string) (*Catalog, error)
}

type manifest struct {
	Name   string   `json:"name" toml:"name"`
	Images []string `json:"images" toml:"images"`
}

// DirLoader reads manifests from a directory tree.
type DirLoader struct {
	fsys fs.FS
}

// NewDirLoader creates a loader over fsys, usually os.DirFS(assetDir).
func NewDirLoader(fsys fs.FS) *DirLoader {
	return &DirLoader{fsys: fsys}
}

// Load reads <key>/workshop.json, falling back to <key>/workshop.toml.
func (l *DirLoader) Load(ctx context.Context, key string) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}

	m, err := l.readManifest(key)
	if err != nil {
		return nil, err
	}
	if m.Name == "" || m.Images == nil {
		return nil, fmt.Errorf("%w: %s needs a name and an images list", ErrInvalidCatalog, key)
	}

	images := make([]string, 0, len(m.Images))
	for _, ref := range m.Images {
		id, err := Resolve(key, ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, key, err)
		}
		images = append(images, id)
	}

	return &Catalog{Key: key, Name: m.Name, Images: images}, nil
}

func (l *DirLoader) readManifest(key string) (*manifest, error) {
	var m manifest

	data, err := fs.ReadFile(l.fsys, path.Join(key, "workshop.json"))
	if err == nil {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, key, err)
		}
		return &m, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read workshop %s: %w", key, err)
	}

	data, err = fs.ReadFile(l.fsys, path.Join(key, "workshop.toml"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read workshop %s: %w", key, err)
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, key, err)
	}
	return &m, nil
}

// ValidKey reports whether key names a folder inside the asset root.
func ValidKey(key string) bool {
	return key != "" && key != "." && fs.ValidPath(key)
}

// Resolve turns an image reference from the manifest of workshop key into
// an asset-root relative id. References may be relative to the workshop
// folder or rooted at the asset root with a leading slash. Remote URLs and
// references escaping the asset root are rejected.
func Resolve(key, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("image %q: %w", ref, err)
	}
	if r.Scheme != "" || r.Host != "" {
		return "", fmt.Errorf("image %q: remote images are not supported", ref)
	}
	if r.Path == "" {
		return "", fmt.Errorf("image %q: empty path", ref)
	}

	var id string
	if strings.HasPrefix(r.Path, "/") {
		id = strings.TrimPrefix(path.Clean(r.Path), "/")
	} else {
		id = path.Join(key, r.Path)
	}
	if id == "." || !fs.ValidPath(id) {
		return "", fmt.Errorf("image %q: outside the asset root", ref)
	}
	return id, nil
}
