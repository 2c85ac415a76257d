// Package storage persists audio blobs. Locations returned by Save are
// opaque to callers and are stored alongside the audio metadata.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
)

// Storage is a flat namespace of blobs.
type Storage interface {
	// Save writes r under name and returns its location and size in bytes.
	Save(ctx context.Context, name string, r io.Reader) (string, int64, error)
	// Open returns the blob at location or common.ErrorNotFound.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	// Remove deletes the blob. A missing blob is not an error.
	Remove(ctx context.Context, location string) error
	// EnsureReady prepares the backend (directory, bucket).
	EnsureReady(ctx context.Context) error
}

// validName rejects names that would escape the storage root.
func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || path.Clean(name) != name {
		return fmt.Errorf("%w: invalid blob name %q", common.ErrorBadRequest, name)
	}
	return nil
}
