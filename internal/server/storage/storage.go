// Package storage holds the blob backends that keep message attachments.
package storage

import (
	"context"
	"io"
	"time"
)

// BlobStore persists opaque blobs under slash-separated keys.
// Delete of a missing key is not an error.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by backends that can hand out time-limited
// direct download links instead of streaming through the server.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
