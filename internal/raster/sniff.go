package raster

import "bytes"

// Format classifies a downloaded payload by its leading bytes.
type Format int

const (
	FormatUnknown Format = iota
	FormatGeoTIFF
	FormatZIP
	FormatErrorPage
)

func (f Format) String() string {
	switch f {
	case FormatGeoTIFF:
		return "geotiff"
	case FormatZIP:
		return "zip"
	case FormatErrorPage:
		return "error_page"
	default:
		return "unknown"
	}
}

var (
	tiffLittle = []byte{0x49, 0x49, 0x2A, 0x00}
	tiffBig    = []byte{0x4D, 0x4D, 0x00, 0x2A}
	zipMagic   = []byte{0x50, 0x4B, 0x03, 0x04}
)

// DetectFormat sniffs the payload kind. HTML and JSON bodies are flagged as
// error pages so the fetcher can log them and retry.
func DetectFormat(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}
	switch {
	case bytes.HasPrefix(data, tiffLittle) || bytes.HasPrefix(data, tiffBig):
		return FormatGeoTIFF
	case bytes.HasPrefix(data, zipMagic):
		return FormatZIP
	}
	head := bytes.TrimLeft(data[:min(len(data), 64)], " \t\r\n")
	if len(head) > 0 {
		switch head[0] {
		case '<', '{', '[':
			return FormatErrorPage
		}
	}
	return FormatUnknown
}
