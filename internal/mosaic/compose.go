package mosaic

import (
	"fmt"
	"sort"

	"skymosaic/internal/models"
	"skymosaic/internal/raster"
)

// Candidate is one downloaded, aligned candidate grid for local
// composition. The grid must carry the quality band.
type Candidate struct {
	SourceID string
	Grid     *raster.Grid
}

// Compose merges aligned candidate grids into one composite per the given
// method. quality_mosaic picks, per pixel, the full band stack of the
// candidate with the highest quality-band value among candidates valid at
// that pixel; ties go to the earliest candidate. median and mean aggregate
// per band across valid candidates. The second return value is the
// dominant source: the one contributing the most pixels.
func Compose(cands []Candidate, method models.CompositeMethod) (*raster.Grid, string, error) {
	if len(cands) == 0 {
		return nil, "", fmt.Errorf("no candidates to compose")
	}

	ref := cands[0].Grid
	bands := dataBands(ref)
	if len(bands) == 0 {
		return nil, "", fmt.Errorf("candidates carry no data bands")
	}
	for _, c := range cands[1:] {
		if c.Grid.Width != ref.Width || c.Grid.Height != ref.Height {
			return nil, "", fmt.Errorf("candidate %s is %dx%d, want %dx%d",
				c.SourceID, c.Grid.Width, c.Grid.Height, ref.Width, ref.Height)
		}
	}

	out := raster.NewGrid(ref.Width, ref.Height, bands)
	out.OriginX, out.OriginY = ref.OriginX, ref.OriginY
	out.PixelW, out.PixelH = ref.PixelW, ref.PixelH
	out.EPSG = ref.EPSG
	out.NoData = raster.DefaultNoData
	out.Fill(float32(out.NoData))

	contribution := make(map[string]int, len(cands))

	switch method {
	case models.MethodQualityMosaic:
		composeArgmax(out, cands, bands, contribution)
	case models.MethodMedian, models.MethodMean:
		composeAggregate(out, cands, bands, method, contribution)
	default:
		return nil, "", fmt.Errorf("unknown composite method %q", method)
	}

	maskNonPositiveFirstBand(out, bands)
	return out, dominantSource(contribution), nil
}

// dataBands returns the reference band list minus the quality band.
func dataBands(g *raster.Grid) []string {
	var bands []string
	for _, b := range g.Bands {
		if b != models.BandQuality {
			bands = append(bands, b)
		}
	}
	return bands
}

// composeArgmax is the quality mosaic: per pixel, the whole stack of the
// best-scoring valid candidate. A later candidate wins only with a
// strictly higher quality value, so ties stay with the first seen.
func composeArgmax(out *raster.Grid, cands []Candidate, bands []string, contribution map[string]int) {
	n := out.Width * out.Height
	for i := 0; i < n; i++ {
		winner := -1
		var best float32
		for ci, c := range cands {
			if !candidateValid(c.Grid, i) {
				continue
			}
			q := qualityAt(c.Grid, i)
			if winner < 0 || q > best {
				winner = ci
				best = q
			}
		}
		if winner < 0 {
			continue
		}
		src := cands[winner]
		for bi, band := range bands {
			px := src.Grid.Band(band)
			if px == nil {
				out.BandAt(bi)[i] = float32(out.NoData)
				continue
			}
			out.BandAt(bi)[i] = px[i]
		}
		contribution[src.SourceID]++
	}
}

// composeAggregate is the median/mean fallback, aggregated independently
// per band over valid candidates.
func composeAggregate(out *raster.Grid, cands []Candidate, bands []string, method models.CompositeMethod, contribution map[string]int) {
	n := out.Width * out.Height
	vals := make([]float32, 0, len(cands))
	for i := 0; i < n; i++ {
		anyValid := false
		for _, c := range cands {
			if candidateValid(c.Grid, i) {
				contribution[c.SourceID]++
				anyValid = true
			}
		}
		if !anyValid {
			continue
		}
		for bi, band := range bands {
			vals = vals[:0]
			for _, c := range cands {
				if !candidateValid(c.Grid, i) {
					continue
				}
				if px := c.Grid.Band(band); px != nil {
					vals = append(vals, px[i])
				}
			}
			if len(vals) == 0 {
				continue
			}
			if method == models.MethodMedian {
				out.BandAt(bi)[i] = median(vals)
			} else {
				var sum float64
				for _, v := range vals {
					sum += float64(v)
				}
				out.BandAt(bi)[i] = float32(sum / float64(len(vals)))
			}
		}
	}
}

// candidateValid reports whether a candidate has usable data at a pixel:
// its first data band is not no-data.
func candidateValid(g *raster.Grid, i int) bool {
	for _, band := range g.Bands {
		if band == models.BandQuality {
			continue
		}
		return !g.IsNoData(g.Band(band)[i])
	}
	return false
}

func qualityAt(g *raster.Grid, i int) float32 {
	if px := g.Band(models.BandQuality); px != nil {
		return px[i]
	}
	return 0
}

// maskNonPositiveFirstBand applies the final no-data rule: wherever the
// first band is not positive, the whole pixel is no-data.
func maskNonPositiveFirstBand(g *raster.Grid, bands []string) {
	first := g.Band(bands[0])
	nd := float32(g.NoData)
	for i, v := range first {
		if v <= 0 || g.IsNoData(v) {
			for bi := range bands {
				g.BandAt(bi)[i] = nd
			}
		}
	}
}

func median(vals []float32) float32 {
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

func dominantSource(contribution map[string]int) string {
	best, bestCount := "", -1
	ids := make([]string, 0, len(contribution))
	for id := range contribution {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if contribution[id] > bestCount {
			best, bestCount = id, contribution[id]
		}
	}
	return best
}
