package storage

import (
	"fmt"
	"strings"
)

// MonthFolder is the per-month artifact folder, e.g. "2024_07".
func MonthFolder(year, month int) string {
	return fmt.Sprintf("%04d_%02d", year, month)
}

// MosaicObject is the blended mosaic's object path for one month.
func MosaicObject(prefix string, year, month int) string {
	return fmt.Sprintf("%s/%s_%04d_%02d_mosaic.tif", MonthFolder(year, month), prefix, year, month)
}

// COGObject is the final cloud-optimized artifact's object path.
func COGObject(prefix string, year, month int) string {
	return fmt.Sprintf("%s/%s_%04d_%02d_COG.tif", MonthFolder(year, month), prefix, year, month)
}

// ProvenanceObject is the per-month provenance document's object path.
func ProvenanceObject(year, month int) string {
	return MonthFolder(year, month) + "/provenance.json"
}

// ReportObject is the per-month HTML report's object path.
func ReportObject(year, month int) string {
	return MonthFolder(year, month) + "/report.html"
}

// ContentType maps a file name to its MIME type for stores that serve
// objects over HTTP.
func ContentType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".tif"), strings.HasSuffix(filename, ".tiff"):
		return "image/tiff"
	case strings.HasSuffix(filename, ".json"):
		return "application/json"
	case strings.HasSuffix(filename, ".csv"):
		return "text/csv"
	case strings.HasSuffix(filename, ".html"):
		return "text/html"
	case strings.HasSuffix(filename, ".md"):
		return "text/markdown"
	case strings.HasSuffix(filename, ".png"):
		return "image/png"
	case strings.HasSuffix(filename, ".txt"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
