package raster

import (
	"fmt"
	"os"

	"skymosaic/internal/logger"
)

// minPlausibleSize is the smallest byte count a real tile raster can have.
// Anything below it is a truncated download or an error body saved to disk.
const minPlausibleSize = 1024

// ValidateFile checks the structural integrity of a raster file: it must
// exist, be plausibly sized, decode, and have nonzero dimensions and at
// least one readable band. A missing CRS is logged as a warning but does
// not reject the file.
func ValidateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("raster missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("raster %s is empty", path)
	}
	if info.Size() < minPlausibleSize {
		return fmt.Errorf("raster %s implausibly small (%d bytes)", path, info.Size())
	}

	g, err := ReadGeoTIFF(path)
	if err != nil {
		return err
	}
	return validateGrid(path, g)
}

func validateGrid(path string, g *Grid) error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("raster %s has zero dimensions %dx%d", path, g.Width, g.Height)
	}
	if len(g.Bands) == 0 {
		return fmt.Errorf("raster %s has no bands", path)
	}
	for i, band := range g.Bands {
		px := g.BandAt(i)
		if len(px) != g.Width*g.Height {
			return fmt.Errorf("raster %s band %s failed to read", path, band)
		}
		// Touch first and last sample so a short buffer cannot hide.
		_ = px[0]
		_ = px[len(px)-1]
	}
	if g.EPSG == 0 {
		logger.Warnf("Raster %s has no CRS, continuing", path)
	}
	return nil
}
