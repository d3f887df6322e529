package multivec

import (
	"context"
	"time"
)

// BlobObjectInfo describes one stored artifact object.
type BlobObjectInfo struct {
	Key       string
	Version   string
	UpdatedAt time.Time
	Size      int64
}

// BlobStore is the storage abstraction for published model artifacts.
// Versions are opaque strings; UploadIfMatch with a non-empty expected
// version fails with ErrBlobVersionMismatch when the object changed since
// the version was read, and an empty expected version uploads
// unconditionally.
type BlobStore interface {
	Head(ctx context.Context, key string) (*BlobObjectInfo, error)
	Download(ctx context.Context, key string, dest string) error
	UploadIfMatch(ctx context.Context, key string, src string, expectedVersion string) (*BlobObjectInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]BlobObjectInfo, error)
}
