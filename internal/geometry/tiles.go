package geometry

import (
	"fmt"
	"math"
	"time"

	"skymosaic/internal/config"
	"skymosaic/internal/models"
)

const (
	metersPerDegLat = 111000.0
	metersPerDegLon = 111320.0 // at the equator, scaled by cos(lat)
)

// MaxTilePixels returns the largest per-tile pixel count whose download of
// bandCount float32 bands stays under the service's safe payload size.
func MaxTilePixels(bandCount int) int {
	if bandCount < 1 {
		bandCount = 1
	}
	return config.SafeDownloadSizeBytes / (bandCount * 4)
}

// PlanTiles derives the tile grid for a bounding box at the given target
// resolution. Tiles are sized at the service's minimum pixel count, which
// maximizes the grid density while keeping every download well under the
// payload cap. bandCount is the number of float32 bands per download.
func PlanTiles(bbox models.BoundingBox, resolutionM float64, bandCount int) ([]models.Tile, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	if resolutionM <= 0 {
		return nil, fmt.Errorf("invalid target resolution %.2fm", resolutionM)
	}

	pixelsPerTile := config.MinTilePixels * config.MinTilePixels
	if budget := MaxTilePixels(bandCount); pixelsPerTile > budget {
		return nil, fmt.Errorf("minimum tile of %d pixels exceeds download budget of %d pixels for %d bands",
			pixelsPerTile, budget, bandCount)
	}

	_, centerLat := bbox.Center()
	widthM := (bbox.LonMax - bbox.LonMin) * metersPerDegLon * math.Cos(centerLat*math.Pi/180)
	heightM := (bbox.LatMax - bbox.LatMin) * metersPerDegLat

	totalPixels := int(widthM/resolutionM) * int(heightM/resolutionM)
	needed := int(math.Ceil(float64(totalPixels) / float64(pixelsPerTile)))
	if needed < 1 {
		needed = 1
	}

	aspect := 1.0
	if heightM > 0 {
		aspect = widthM / heightM
	}
	perRow := int(math.Ceil(math.Sqrt(float64(needed) * aspect)))
	if perRow < 1 {
		perRow = 1
	}
	perCol := int(math.Ceil(float64(needed) / float64(perRow)))

	return MakeTiles(bbox, 0, perRow*perCol)
}

// MakeTiles subdivides a bounding box into a grid of tiles. Exactly one of
// tileSideM (target tile edge in meters) or maxTiles (target tile count)
// must be positive. The box is projected into its local UTM zone, split
// there into equal cells, and the cell corners are reprojected back so the
// returned tiles are geographic.
func MakeTiles(bbox models.BoundingBox, tileSideM float64, maxTiles int) ([]models.Tile, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	if tileSideM <= 0 && maxTiles <= 0 {
		return nil, fmt.Errorf("either tile side or tile count must be positive")
	}

	centerLon, centerLat := bbox.Center()
	proj := NewProjection(centerLon, centerLat)

	minX, minY := proj.Forward(bbox.LonMin, bbox.LatMin)
	maxX, maxY := proj.Forward(bbox.LonMax, bbox.LatMax)
	widthM := maxX - minX
	heightM := maxY - minY
	if widthM <= 0 || heightM <= 0 {
		return nil, fmt.Errorf("degenerate projected extent %.1fx%.1fm for %+v", widthM, heightM, bbox)
	}

	var nx, ny int
	if maxTiles > 0 {
		aspect := widthM / heightM
		nx = max(1, int(math.Round(math.Sqrt(float64(maxTiles)*aspect))))
		ny = max(1, int(math.Round(math.Sqrt(float64(maxTiles)/aspect))))
		// Grow toward the requested count, allowing at most 10% overshoot.
		// Counts like 5 stay short of the request on near-square regions:
		// one more row or column would blow past the cap. maxTiles is a
		// target, not a floor.
		limit := float64(maxTiles) * 1.1
		for nx*ny < maxTiles && float64((nx+1)*ny) <= limit {
			nx++
		}
		for nx*ny < maxTiles && float64(nx*(ny+1)) <= limit {
			ny++
		}
	} else {
		nx = max(1, int(math.Ceil(widthM/tileSideM)))
		ny = max(1, int(math.Ceil(heightM/tileSideM)))
	}

	tiles := make([]models.Tile, 0, nx*ny)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			x0 := minX + float64(i)*widthM/float64(nx)
			x1 := minX + float64(i+1)*widthM/float64(nx)
			y0 := minY + float64(j)*heightM/float64(ny)
			y1 := minY + float64(j+1)*heightM/float64(ny)

			lon0, lat0 := proj.Inverse(x0, y0)
			lon1, lat1 := proj.Inverse(x1, y1)

			tiles = append(tiles, models.Tile{
				Index: len(tiles),
				Bounds: models.BoundingBox{
					LonMin: math.Min(lon0, lon1),
					LatMin: math.Min(lat0, lat1),
					LonMax: math.Max(lon0, lon1),
					LatMax: math.Max(lat0, lat1),
				},
			})
		}
	}
	return tiles, nil
}

// MonthRanges expands [start, end] into calendar-month windows. Partial
// months at either edge are expanded to full months so every window is a
// whole [1st, 1st-of-next) interval.
func MonthRanges(start, end time.Time) []models.TimeWindow {
	var windows []models.TimeWindow
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(last) {
		next := cur.AddDate(0, 1, 0)
		windows = append(windows, models.TimeWindow{Start: cur, End: next})
		cur = next
	}
	return windows
}
