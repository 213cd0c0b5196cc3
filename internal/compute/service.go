package compute

import (
	"context"
	"errors"
)

// Service errors mapped from the remote side. Callers branch on these to
// decide between retrying, downgrading the composite method, or splitting
// tiles.
var (
	// ErrTileTooLarge means the rendered payload would exceed the service
	// cap. Retrying the identical request can never succeed.
	ErrTileTooLarge = errors.New("requested raster exceeds download size limit")
	// ErrUnsupportedOp means the service rejected the composite method.
	// The caller downgrades quality_mosaic to median to mean.
	ErrUnsupportedOp = errors.New("composite method not supported by service")
	// ErrNoImages means the expression matched no images at all.
	ErrNoImages = errors.New("expression matched no images")
)

// Service is the remote image-compute interface. Implementations must be
// safe for concurrent use; the orchestrator shares one instance across
// tile workers.
type Service interface {
	// Catalog lists images matching a query, best-first when SortBy is set.
	Catalog(ctx context.Context, q CatalogQuery) ([]CatalogEntry, error)
	// RegionStats reduces one band of one prepared image over a region.
	RegionStats(ctx context.Context, req StatsRequest) (Stats, error)
	// DownloadURL renders an expression and returns a short-lived URL for
	// its raster payload.
	DownloadURL(ctx context.Context, expr Expression) (string, error)
	// Download fetches a rendered payload. The returned bytes are either a
	// GeoTIFF or a ZIP of single-band GeoTIFFs; the caller sniffs which.
	Download(ctx context.Context, url string) ([]byte, error)
}
