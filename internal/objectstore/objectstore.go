// Package objectstore writes export snapshots to object storage.
package objectstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotConfigured is returned when no bucket has been configured.
var ErrNotConfigured = errors.New("object storage not configured")

// Store puts whole objects under a key and reports where they landed.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}
