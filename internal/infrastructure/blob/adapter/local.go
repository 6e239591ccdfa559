package adapter

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"chatgate/internal/infrastructure/blob/port"
)

const thumbnailMaxDim = 480

// LocalStore keeps blobs on the local filesystem and serves them under a
// static URL prefix. It is the default adapter for single-node deployments;
// object-storage adapters satisfy the same port.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStoreFromEnv uses UPLOAD_DIR (default "./uploads") and serves files
// under "/media".
func NewLocalStoreFromEnv() (*LocalStore, error) {
	dir := strings.TrimSpace(os.Getenv("UPLOAD_DIR"))
	if dir == "" {
		dir = "./uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: "/media"}, nil
}

// Dir exposes the storage root so the HTTP layer can mount a static route.
func (s *LocalStore) Dir() string { return s.dir }

var _ port.Store = (*LocalStore)(nil)

func (s *LocalStore) Save(_ context.Context, key string, r io.Reader) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.ContainsRune(key, os.PathSeparator) {
		return "", errors.New("blob: invalid key")
	}
	f, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return s.URL(key), nil
}

func (s *LocalStore) Thumbnail(_ context.Context, key string) (string, error) {
	src, err := os.Open(filepath.Join(s.dir, key))
	if err != nil {
		return "", err
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		return "", fmt.Errorf("blob: decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > thumbnailMaxDim || h > thumbnailMaxDim {
		scale := float64(thumbnailMaxDim) / float64(max(w, h))
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	thumbKey := "thumb_" + strings.TrimSuffix(key, filepath.Ext(key)) + ".jpg"
	out, err := os.Create(filepath.Join(s.dir, thumbKey))
	if err != nil {
		return "", err
	}
	defer out.Close()
	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: 85}); err != nil {
		return "", err
	}
	return thumbKey, nil
}

func (s *LocalStore) URL(key string) string {
	if key == "" {
		return ""
	}
	return s.baseURL + "/" + key
}
