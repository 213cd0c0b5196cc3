// Package stitch merges validated per-tile rasters into one seamless mosaic
// and derives the cloud-optimized final artifact from it.
package stitch

import (
	"fmt"
	"math"

	"skymosaic/internal/config"
	"skymosaic/internal/geometry"
	"skymosaic/internal/logger"
	"skymosaic/internal/raster"
)

// metersPerDegree at the equator, used to convert a metric resolution into
// degrees when the common grid is geographic.
const metersPerDegree = 111320.0

// crs converts between a grid's coordinate system and lon/lat.
type crs struct {
	geographic bool
	proj       geometry.Projection
}

func crsFor(epsg int) (crs, error) {
	switch {
	case epsg == 4326:
		return crs{geographic: true}, nil
	case epsg >= 32601 && epsg <= 32660:
		return crs{proj: geometry.Projection{Zone: epsg - 32600, North: true}}, nil
	case epsg >= 32701 && epsg <= 32760:
		return crs{proj: geometry.Projection{Zone: epsg - 32700, North: false}}, nil
	default:
		return crs{}, fmt.Errorf("unsupported CRS EPSG:%d", epsg)
	}
}

func (c crs) toLonLat(x, y float64) (lon, lat float64) {
	if c.geographic {
		return x, y
	}
	return c.proj.Inverse(x, y)
}

func (c crs) fromLonLat(lon, lat float64) (x, y float64) {
	if c.geographic {
		return lon, lat
	}
	return c.proj.Forward(lon, lat)
}

// Blend reprojects every tile onto a common grid in the first tile's CRS and
// feather-blends overlaps. Each tile contributes with a weight of 1.0 in its
// interior, easing down to 0 within FeatherMarginPx of its edges, and 0
// wherever its pixel is no-data. The blended value is the weighted mean;
// pixels reached only by zero-weight edge rings keep their unweighted mean so
// a lone tile survives the round trip unchanged.
func Blend(tiles []*raster.Grid, targetResM float64) (*raster.Grid, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("no tiles to stitch")
	}
	if targetResM <= 0 {
		return nil, fmt.Errorf("invalid target resolution %.2f", targetResM)
	}
	bands := tiles[0].Bands
	for i, t := range tiles[1:] {
		if err := sameBands(bands, t.Bands); err != nil {
			return nil, fmt.Errorf("tile %d: %w", i+1, err)
		}
	}

	out, err := CommonGrid(tiles, targetResM)
	if err != nil {
		return nil, err
	}
	logger.Infof("Stitching %d tiles onto a %dx%d grid (EPSG:%d)", len(tiles), out.Width, out.Height, out.EPSG)

	n := out.Width * out.Height
	num := make([]float64, n)
	den := make([]float64, n)
	flat := make([]float64, n)
	flatN := make([]int32, n)

	// One band at a time to bound peak memory.
	for b := range bands {
		for i := range num {
			num[i], den[i], flat[i], flatN[i] = 0, 0, 0, 0
		}
		for ti, t := range tiles {
			if err := accumulate(out, t, b, num, den, flat, flatN); err != nil {
				return nil, fmt.Errorf("tile %d band %s: %w", ti, bands[b], err)
			}
		}
		px := out.BandAt(b)
		for i := range px {
			switch {
			case den[i] > 0:
				px[i] = float32(num[i] / den[i])
			case flatN[i] > 0:
				px[i] = float32(flat[i] / float64(flatN[i]))
			default:
				px[i] = float32(out.NoData)
			}
		}
	}
	return out, nil
}

// CommonGrid computes the union extent of all tiles in the first tile's CRS
// at the target resolution. A geographic CRS converts the metric resolution
// to degrees with a latitude-adjusted meters-per-degree factor.
func CommonGrid(tiles []*raster.Grid, targetResM float64) (*raster.Grid, error) {
	dstCRS, err := crsFor(tiles[0].EPSG)
	if err != nil {
		return nil, err
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, t := range tiles {
		bMinX, bMinY, bMaxX, bMaxY := t.Bounds()
		if t.EPSG != tiles[0].EPSG {
			srcCRS, err := crsFor(t.EPSG)
			if err != nil {
				return nil, err
			}
			bMinX, bMinY, bMaxX, bMaxY = transformBounds(srcCRS, dstCRS, bMinX, bMinY, bMaxX, bMaxY)
		}
		minX = math.Min(minX, bMinX)
		minY = math.Min(minY, bMinY)
		maxX = math.Max(maxX, bMaxX)
		maxY = math.Max(maxY, bMaxY)
	}

	res := targetResM
	if dstCRS.geographic {
		centerLat := (minY + maxY) / 2
		res = targetResM / (metersPerDegree * math.Cos(centerLat*math.Pi/180))
	}
	width := int(math.Ceil((maxX - minX) / res))
	height := int(math.Ceil((maxY - minY) / res))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("degenerate common grid %dx%d", width, height)
	}

	g := raster.NewGrid(width, height, tiles[0].Bands)
	g.OriginX = minX
	g.OriginY = maxY
	g.PixelW = res
	g.PixelH = res
	g.EPSG = tiles[0].EPSG
	g.NoData = tiles[0].NoData
	return g, nil
}

// accumulate resamples one band of one tile onto the output grid, adding
// feather-weighted values into num/den and zero-weight valid values into
// flat/flatN.
func accumulate(dst, src *raster.Grid, band int, num, den, flat []float64, flatN []int32) error {
	dstCRS, err := crsFor(dst.EPSG)
	if err != nil {
		return err
	}
	srcCRS, err := crsFor(src.EPSG)
	if err != nil {
		return err
	}
	samePlane := src.EPSG == dst.EPSG

	// Clip the loop to the tile's footprint on the output grid.
	sMinX, sMinY, sMaxX, sMaxY := src.Bounds()
	if !samePlane {
		sMinX, sMinY, sMaxX, sMaxY = transformBounds(srcCRS, dstCRS, sMinX, sMinY, sMaxX, sMaxY)
	}
	c0, r0 := dst.ColRow(sMinX, sMaxY)
	c1, r1 := dst.ColRow(sMaxX, sMinY)
	c0, r0 = max(c0-2, 0), max(r0-2, 0)
	c1, r1 = min(c1+2, dst.Width-1), min(r1+2, dst.Height-1)

	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			x, y := dst.XY(col, row)
			sx, sy := x, y
			if !samePlane {
				lon, lat := dstCRS.toLonLat(x, y)
				sx, sy = srcCRS.fromLonLat(lon, lat)
			}
			fx := snap((sx-src.OriginX)/src.PixelW - 0.5)
			fy := snap((src.OriginY-sy)/src.PixelH - 0.5)

			v, ok := sample(src, band, fx, fy)
			if !ok {
				continue
			}
			i := row*dst.Width + col
			if w := featherWeight(fx, fy, src.Width, src.Height); w > 0 {
				num[i] += v * w
				den[i] += w
			} else {
				flat[i] += v
				flatN[i]++
			}
		}
	}
	return nil
}

// featherWeight eases a tile's contribution from 0 at its edge up to 1 at
// the feather margin. Tiles not larger than twice the margin in either
// dimension keep full weight everywhere.
func featherWeight(fx, fy float64, width, height int) float64 {
	margin := float64(config.FeatherMarginPx)
	if float64(width) <= 2*margin || float64(height) <= 2*margin {
		return 1
	}
	d := math.Min(math.Min(fx, float64(width-1)-fx), math.Min(fy, float64(height-1)-fy))
	if d <= 0 {
		return 0
	}
	if d >= margin {
		return 1
	}
	return 0.5 * (1 - math.Cos(math.Pi*d/margin))
}

// sample interpolates one band at fractional pixel coordinates. It prefers a
// cubic kernel and falls back to bilinear when the 4x4 neighborhood is
// incomplete or touches no-data.
func sample(g *raster.Grid, band int, fx, fy float64) (float64, bool) {
	if v, ok := sampleCubic(g, band, fx, fy); ok {
		return v, true
	}
	return sampleBilinear(g, band, fx, fy)
}

func sampleCubic(g *raster.Grid, band int, fx, fy float64) (float64, bool) {
	c0 := int(math.Floor(fx)) - 1
	r0 := int(math.Floor(fy)) - 1
	if c0 < 0 || r0 < 0 || c0+3 >= g.Width || r0+3 >= g.Height {
		return 0, false
	}
	var sum, wsum float64
	for dr := 0; dr < 4; dr++ {
		wy := cubicKernel(fy - float64(r0+dr))
		for dc := 0; dc < 4; dc++ {
			v := g.At(band, c0+dc, r0+dr)
			if g.IsNoData(v) {
				return 0, false
			}
			w := wy * cubicKernel(fx-float64(c0+dc))
			sum += w * float64(v)
			wsum += w
		}
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

func sampleBilinear(g *raster.Grid, band int, fx, fy float64) (float64, bool) {
	c0 := int(math.Floor(fx))
	r0 := int(math.Floor(fy))
	dx := fx - float64(c0)
	dy := fy - float64(r0)
	var sum, wsum float64
	for dr := 0; dr < 2; dr++ {
		for dc := 0; dc < 2; dc++ {
			col, row := c0+dc, r0+dr
			if !g.Contains(col, row) {
				continue
			}
			v := g.At(band, col, row)
			if g.IsNoData(v) {
				continue
			}
			w := (1 - math.Abs(dx-float64(dc))) * (1 - math.Abs(dy-float64(dr)))
			sum += w * float64(v)
			wsum += w
		}
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

// cubicKernel is the Catmull-Rom interpolation kernel.
func cubicKernel(t float64) float64 {
	t = math.Abs(t)
	switch {
	case t < 1:
		return 1.5*t*t*t - 2.5*t*t + 1
	case t < 2:
		return -0.5*t*t*t + 2.5*t*t - 4*t + 2
	default:
		return 0
	}
}

// snap rounds coordinates that are a hair off an exact pixel center, so an
// aligned resample reproduces source values bit for bit.
func snap(f float64) float64 {
	if r := math.Round(f); math.Abs(f-r) < 1e-6 {
		return r
	}
	return f
}

func transformBounds(from, to crs, minX, minY, maxX, maxY float64) (float64, float64, float64, float64) {
	corners := [4][2]float64{{minX, minY}, {minX, maxY}, {maxX, minY}, {maxX, maxY}}
	oMinX, oMinY := math.Inf(1), math.Inf(1)
	oMaxX, oMaxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		lon, lat := from.toLonLat(c[0], c[1])
		x, y := to.fromLonLat(lon, lat)
		oMinX = math.Min(oMinX, x)
		oMinY = math.Min(oMinY, y)
		oMaxX = math.Max(oMaxX, x)
		oMaxY = math.Max(oMaxY, y)
	}
	return oMinX, oMinY, oMaxX, oMaxY
}

func sameBands(a, b []string) error {
	if len(a) != len(b) {
		return fmt.Errorf("band count mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			return fmt.Errorf("band %d mismatch: %s vs %s", i, a[i], b[i])
		}
	}
	return nil
}
