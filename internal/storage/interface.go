// Package storage persists finished month artifacts (mosaics, COGs,
// provenance, reports, the manifest) either on the local filesystem or in a
// GCS bucket. Tile intermediates never pass through here; they live in the
// pipeline's scratch directory and are deleted after finalization.
package storage

import (
	"context"
)

// Client is the artifact store. Object paths are forward-slash relative
// paths like "2024_07/mosaic_2024_07_COG.tif".
type Client interface {
	// Close releases any underlying connections.
	Close() error

	// Store writes an object, replacing any previous version.
	Store(ctx context.Context, objectPath string, data []byte) error

	// StoreFile streams a local file into an object, for rasters too large
	// to hold in memory comfortably.
	StoreFile(ctx context.Context, objectPath, localPath string) error

	// Get reads an object in full.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns object paths under a prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
}
