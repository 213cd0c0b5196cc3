package raster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Mask is a binary raster aligned with a source grid. 1 marks water.
type Mask struct {
	Width  int
	Height int
	Pixels []uint8
}

// NewMask allocates a zeroed mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pixels: make([]uint8, width*height)}
}

// At reads one mask pixel; out-of-range reads return 0.
func (m *Mask) At(col, row int) uint8 {
	if col < 0 || col >= m.Width || row < 0 || row >= m.Height {
		return 0
	}
	return m.Pixels[row*m.Width+col]
}

// Set writes one mask pixel.
func (m *Mask) Set(col, row int, v uint8) {
	m.Pixels[row*m.Width+col] = v
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pixels {
		if v != 0 {
			n++
		}
	}
	return n
}

// Grid converts the mask to a single-band grid for writing to disk,
// copying the georeferencing of the source raster.
func (m *Mask) Grid(src *Grid) *Grid {
	g := NewGrid(m.Width, m.Height, []string{"water_mask"})
	g.OriginX, g.OriginY = src.OriginX, src.OriginY
	g.PixelW, g.PixelH = src.PixelW, src.PixelH
	g.EPSG = src.EPSG
	g.NoData = DefaultNoData
	px := g.BandAt(0)
	for i, v := range m.Pixels {
		px[i] = float32(v)
	}
	return g
}

// WaterMask derives a binary water mask from a water-index band: threshold
// the index with Otsu's method, drop connected components below minAreaPx,
// and close tiny gaps with a 3x3 morphological closing.
func WaterMask(g *Grid, indexBand string, minAreaPx int) (*Mask, error) {
	px := g.Band(indexBand)
	if px == nil {
		return nil, fmt.Errorf("water index band %s not present", indexBand)
	}

	finite := make([]float64, 0, len(px))
	for _, v := range px {
		if f := float64(v); !math.IsNaN(f) && !math.IsInf(f, 0) && f != g.NoData {
			finite = append(finite, f)
		}
	}
	if len(finite) == 0 {
		return NewMask(g.Width, g.Height), nil
	}

	threshold := otsuThreshold(finite)

	mask := NewMask(g.Width, g.Height)
	for i, v := range px {
		f := float64(v)
		if !math.IsNaN(f) && !math.IsInf(f, 0) && f != g.NoData && f > threshold {
			mask.Pixels[i] = 1
		}
	}

	removeSmallObjects(mask, minAreaPx)
	closeMask(mask)
	return mask, nil
}

const otsuBins = 256

// otsuThreshold finds the value maximizing between-class variance over a
// 256-bin histogram of the samples.
func otsuThreshold(samples []float64) float64 {
	lo, hi := floats.Min(samples), floats.Max(samples)
	if hi <= lo {
		return lo
	}

	hist := make([]int, otsuBins)
	scale := float64(otsuBins-1) / (hi - lo)
	for _, v := range samples {
		hist[int((v-lo)*scale)]++
	}

	total := len(samples)
	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i) * float64(n)
	}

	var sumBg, wBg float64
	bestVar, bestBin := -1.0, 0
	for i, n := range hist {
		wBg += float64(n)
		if wBg == 0 {
			continue
		}
		wFg := float64(total) - wBg
		if wFg == 0 {
			break
		}
		sumBg += float64(i) * float64(n)
		meanBg := sumBg / wBg
		meanFg := (sumAll - sumBg) / wFg
		between := wBg * wFg * (meanBg - meanFg) * (meanBg - meanFg)
		if between > bestVar {
			bestVar = between
			bestBin = i
		}
	}
	return lo + float64(bestBin)/scale
}

// removeSmallObjects clears 4-connected components smaller than minArea.
func removeSmallObjects(m *Mask, minArea int) {
	if minArea <= 1 {
		return
	}
	visited := make([]bool, len(m.Pixels))
	var stack []int

	for start, v := range m.Pixels {
		if v == 0 || visited[start] {
			continue
		}
		component := []int{start}
		visited[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			col, row := idx%m.Width, idx/m.Width
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				c, r := col+d[0], row+d[1]
				if c < 0 || c >= m.Width || r < 0 || r >= m.Height {
					continue
				}
				n := r*m.Width + c
				if m.Pixels[n] != 0 && !visited[n] {
					visited[n] = true
					component = append(component, n)
					stack = append(stack, n)
				}
			}
		}
		if len(component) < minArea {
			for _, idx := range component {
				m.Pixels[idx] = 0
			}
		}
	}
}

// closeMask performs a binary closing (dilate then erode) with a 3x3
// structuring element.
func closeMask(m *Mask) {
	dilated := morph(m, func(hit, total int) uint8 {
		if hit > 0 {
			return 1
		}
		return 0
	})
	eroded := morph(dilated, func(hit, total int) uint8 {
		if hit == total {
			return 1
		}
		return 0
	})
	copy(m.Pixels, eroded.Pixels)
}

// morph applies a 3x3 neighborhood rule. Neighbors outside the image
// reflect the edge pixel so the border is not eroded artificially.
func morph(m *Mask, rule func(hit, total int) uint8) *Mask {
	out := NewMask(m.Width, m.Height)
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			hit, total := 0, 0
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					c, r := col+dc, row+dr
					if c < 0 {
						c = 0
					} else if c >= m.Width {
						c = m.Width - 1
					}
					if r < 0 {
						r = 0
					} else if r >= m.Height {
						r = m.Height - 1
					}
					total++
					if m.At(c, r) != 0 {
						hit++
					}
				}
			}
			out.Set(col, row, rule(hit, total))
		}
	}
	return out
}
