package port

import (
	"context"
	"io"
)

// Store is the contract over attachment blob storage. The chat layer only
// ever deals in opaque keys and public URLs; where bytes actually live (and
// how thumbnails get made) is the adapter's business.
type Store interface {
	// Save persists the blob under key and returns its public URL.
	Save(ctx context.Context, key string, r io.Reader) (string, error)

	// Thumbnail derives a small preview for an image blob and returns the
	// thumbnail's key. Best-effort: callers tolerate failure.
	Thumbnail(ctx context.Context, key string) (string, error)

	// URL resolves a stored key to its public URL.
	URL(key string) string
}
