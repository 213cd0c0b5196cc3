package config

import "time"

// Quality score weights. They sum to 1. Resolution is weighted heaviest so
// that a 30m image with some clouds outranks a 400m image with none.
const (
	WeightCloudFraction   = 0.25
	WeightSolarZenith     = 0.15
	WeightViewZenith      = 0.10
	WeightValidPixels     = 0.15
	WeightTemporalRecency = 0.05
	WeightResolution      = 0.30
)

// Download limits imposed by the image-compute service.
const (
	// MaxDownloadSizeBytes is the service's hard cap on a single download.
	MaxDownloadSizeBytes = 50331648 // 50 MiB
	// SafeDownloadSizeBytes is the limit tile sizing targets (80% of the cap).
	SafeDownloadSizeBytes = 41943040 // 40 MiB
	// MinTilePixels is the smallest tile side the service will render.
	MinTilePixels = 256
)

// Retry configuration for tile downloads.
const (
	DownloadRetries    = 3
	DownloadRetryDelay = 2 * time.Second // doubled on each attempt
)

// Candidate filtering thresholds.
const (
	// MetadataCloudGate rejects a candidate on catalog metadata alone.
	MetadataCloudGate = 0.50
	// PreciseCloudGate rejects after the precise per-region computation.
	PreciseCloudGate = 0.60
	// MinQualityScore is the floor for standard sources.
	MinQualityScore = 0.3
	// MinQualityScoreLastResort is the lower floor for the coarse
	// last-resort source, which already carries a heavy penalty.
	MinQualityScoreLastResort = 0.2
	// DegradedPenalty halves the score of degraded-mode imagery (Landsat 7
	// after the SLC failure) and of the last-resort source.
	DegradedPenalty = 0.5
	// MaxCandidatesPerSource caps per-source processing per tile.
	MaxCandidatesPerSource = 20
	// MaxCandidatesLastResort caps the last-resort source harder.
	MaxCandidatesLastResort = 5
)

// Stitching and post-processing.
const (
	// FeatherMarginPx is the edge width over which tile weights decay.
	FeatherMarginPx = 80
	// MinWaterAreaPx is the smallest connected water component kept.
	MinWaterAreaPx = 40
)

// COGOverviews lists the overview decimation factors of the final artifact.
var COGOverviews = []int{2, 4, 8, 16, 32}

// Orchestration limits.
const (
	// MaxConcurrentTiles is the hard ceiling on tile workers.
	MaxConcurrentTiles = 10
	// TileTimeout bounds a single tile end to end.
	TileTimeout = time.Hour
)

// HarmonizationCoeff is a linear cross-sensor radiometric transform,
// out = A*value + B, applied to visible and IR bands only.
type HarmonizationCoeff struct {
	A float64
	B float64
}

// HarmonizationCoeffs maps transform names to their coefficients.
var HarmonizationCoeffs = map[string]HarmonizationCoeff{
	"S2_to_LS": {A: 0.98, B: 0.01},
	"LS_to_S2": {A: 1.02, B: -0.01},
}
