package domain

import (
	"context"
	"io"
)

// BlobWriter uploads settled-market archives to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
