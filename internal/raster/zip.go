package raster

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// ReassembleZIP merges an archive of single-band GeoTIFFs into one
// multi-band grid. The remote service exports one file per band with the
// band name embedded in the filename; files are ordered by matching those
// fragments against bandOrder, and unmatched files fall back to
// alphabetical order after the matched ones.
func ReassembleZIP(data []byte, bandOrder []string) (*Grid, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open band archive: %w", err)
	}

	type bandFile struct {
		name string
		band string
		rank int
	}
	var files []bandFile
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".tif") {
			continue
		}
		bf := bandFile{name: f.Name, rank: len(bandOrder)}
		base := path.Base(f.Name)
		for i, band := range bandOrder {
			if matchesBand(base, band) {
				bf.band = band
				bf.rank = i
				break
			}
		}
		files = append(files, bf)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("band archive holds no rasters")
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].rank != files[j].rank {
			return files[i].rank < files[j].rank
		}
		return files[i].name < files[j].name
	})

	var out *Grid
	for slot, bf := range files {
		rc, err := openZipFile(zr, bf.name)
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from archive: %w", bf.name, err)
		}
		g, err := DecodeGeoTIFF(raw)
		if err != nil {
			return nil, fmt.Errorf("band file %s: %w", bf.name, err)
		}
		if len(g.Bands) != 1 {
			return nil, fmt.Errorf("band file %s holds %d bands, want 1", bf.name, len(g.Bands))
		}

		name := bf.band
		if name == "" {
			name = strings.TrimSuffix(path.Base(bf.name), path.Ext(bf.name))
		}
		if out == nil {
			names := make([]string, len(files))
			out = NewGrid(g.Width, g.Height, names)
			out.OriginX, out.OriginY = g.OriginX, g.OriginY
			out.PixelW, out.PixelH = g.PixelW, g.PixelH
			out.EPSG = g.EPSG
			out.NoData = g.NoData
		} else if g.Width != out.Width || g.Height != out.Height {
			return nil, fmt.Errorf("band file %s is %dx%d, want %dx%d",
				bf.name, g.Width, g.Height, out.Width, out.Height)
		}
		out.Bands[slot] = name
		copy(out.BandAt(slot), g.BandAt(0))
	}
	return out, nil
}

// matchesBand reports whether a filename carries a band name as a separate
// fragment, e.g. "tile_3.B11.tif" matches B11 but "tile.B1.tif" must not
// match B11.
func matchesBand(filename, band string) bool {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	for _, frag := range strings.FieldsFunc(base, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	}) {
		if strings.EqualFold(frag, band) {
			return true
		}
	}
	return false
}

func openZipFile(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open %s in archive: %w", name, err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("file %s vanished from archive", name)
}
