package models

// Unified band names shared by every satellite source after preparation.
// Visible bands use the Sentinel-2 convention; other sensors are renamed
// into this scheme by their source profile.
const (
	BandRed   = "B4"
	BandGreen = "B3"
	BandBlue  = "B2"
	BandNIR   = "B8"
	BandSWIR1 = "B11"
	BandSWIR2 = "B12"

	BandMNDWI = "MNDWI"
	BandNDWI  = "NDWI"

	BandNDVI = "NDVI"
	BandEVI  = "EVI"
	BandSAVI = "SAVI"
	BandAVI  = "AVI"
	BandFVI  = "FVI"

	// BandQuality is the constant-valued score band used as the per-pixel
	// selection key by the quality mosaic.
	BandQuality = "quality"
)

// VisibleBands in download order.
var VisibleBands = []string{BandRed, BandGreen, BandBlue}

// InfraredBands in download order.
var InfraredBands = []string{BandNIR, BandSWIR1, BandSWIR2}

// VegetationBands in download order.
var VegetationBands = []string{BandNDVI, BandEVI, BandSAVI, BandAVI, BandFVI}

// DownloadBandOrder is the expected band sequence of a downloaded tile
// raster. ZIP reassembly matches single-band filenames against this list.
var DownloadBandOrder = []string{
	BandRed, BandGreen, BandBlue,
	BandNIR, BandSWIR1, BandSWIR2,
	BandMNDWI, BandNDWI,
	BandNDVI, BandEVI, BandSAVI, BandAVI, BandFVI,
}
