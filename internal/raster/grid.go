// Package raster holds the in-memory grid model and the GeoTIFF codec the
// pipeline uses for tile payloads, water masks, and the final mosaic.
package raster

import (
	"fmt"
	"math"
)

// Grid is a north-up, multi-band float32 raster in one coordinate system.
// Row 0 is the top of the image; the geographic Y of a row decreases as the
// row index grows.
type Grid struct {
	Width  int
	Height int
	Bands  []string

	// OriginX/OriginY locate the outer corner of the top-left pixel.
	OriginX float64
	OriginY float64
	// PixelW/PixelH are the pixel sizes in CRS units, both positive.
	PixelW float64
	PixelH float64

	// EPSG identifies the CRS. Zero means unknown.
	EPSG int

	// NoData is the sentinel marking missing pixels.
	NoData float64

	data [][]float32
}

// DefaultNoData is the sentinel written into produced rasters.
const DefaultNoData = -9999.0

// NewGrid allocates a zeroed grid with the given bands.
func NewGrid(width, height int, bands []string) *Grid {
	g := &Grid{
		Width:  width,
		Height: height,
		Bands:  append([]string(nil), bands...),
		PixelW: 1,
		PixelH: 1,
		NoData: DefaultNoData,
		data:   make([][]float32, len(bands)),
	}
	for i := range g.data {
		g.data[i] = make([]float32, width*height)
	}
	return g
}

// BandIndex returns the index of a named band, or -1.
func (g *Grid) BandIndex(name string) int {
	for i, b := range g.Bands {
		if b == name {
			return i
		}
	}
	return -1
}

// Band returns the raw pixel slice of a named band, row-major.
func (g *Grid) Band(name string) []float32 {
	if i := g.BandIndex(name); i >= 0 {
		return g.data[i]
	}
	return nil
}

// BandAt returns the raw pixel slice of the i-th band.
func (g *Grid) BandAt(i int) []float32 { return g.data[i] }

// At reads one pixel of one band.
func (g *Grid) At(band, col, row int) float32 {
	return g.data[band][row*g.Width+col]
}

// Set writes one pixel of one band.
func (g *Grid) Set(band, col, row int, v float32) {
	g.data[band][row*g.Width+col] = v
}

// Fill sets every pixel of every band to v.
func (g *Grid) Fill(v float32) {
	for _, px := range g.data {
		for i := range px {
			px[i] = v
		}
	}
}

// Bounds returns the outer extent (minX, minY, maxX, maxY) in CRS units.
func (g *Grid) Bounds() (minX, minY, maxX, maxY float64) {
	minX = g.OriginX
	maxY = g.OriginY
	maxX = g.OriginX + float64(g.Width)*g.PixelW
	minY = g.OriginY - float64(g.Height)*g.PixelH
	return
}

// XY returns the center coordinates of a pixel.
func (g *Grid) XY(col, row int) (x, y float64) {
	x = g.OriginX + (float64(col)+0.5)*g.PixelW
	y = g.OriginY - (float64(row)+0.5)*g.PixelH
	return
}

// ColRow returns the pixel containing a point, which may fall outside the
// grid.
func (g *Grid) ColRow(x, y float64) (col, row int) {
	col = int(math.Floor((x - g.OriginX) / g.PixelW))
	row = int(math.Floor((g.OriginY - y) / g.PixelH))
	return
}

// Contains reports whether a pixel index is inside the grid.
func (g *Grid) Contains(col, row int) bool {
	return col >= 0 && col < g.Width && row >= 0 && row < g.Height
}

// IsNoData reports whether a value counts as missing: the exact sentinel,
// exactly zero, or not finite.
func (g *Grid) IsNoData(v float32) bool {
	f := float64(v)
	return f == g.NoData || f == 0 || math.IsNaN(f) || math.IsInf(f, 0)
}

// Validate checks structural sanity of the in-memory grid.
func (g *Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid has zero dimensions %dx%d", g.Width, g.Height)
	}
	if len(g.Bands) == 0 {
		return fmt.Errorf("grid has no bands")
	}
	if len(g.data) != len(g.Bands) {
		return fmt.Errorf("grid has %d band buffers for %d bands", len(g.data), len(g.Bands))
	}
	for i, px := range g.data {
		if len(px) != g.Width*g.Height {
			return fmt.Errorf("band %s buffer holds %d pixels, want %d", g.Bands[i], len(px), g.Width*g.Height)
		}
	}
	return nil
}
