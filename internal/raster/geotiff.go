package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// The codec reads and writes the narrow GeoTIFF profile the pipeline
// produces and consumes: float32 samples, chunky interleave, strip layout,
// no compression or Deflate, with ModelPixelScale/ModelTiepoint geo tags
// and the EPSG code in the GeoKey directory. Band names travel in the
// ImageDescription tag, comma separated, matching how the remote service
// labels its exports.

const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagGeoKeyDirectory  = 34735
	tagGDALNoData       = 42113

	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12

	compressionNone    = 1
	compressionDeflate = 8

	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyGeographicType = 2048
	geoKeyProjectedType  = 3072

	rowsPerStrip = 64
)

// WriteGeoTIFF encodes a grid to a GeoTIFF file. Deflate compression is
// applied when compress is true.
func WriteGeoTIFF(path string, g *Grid, compress bool) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid grid: %w", err)
	}
	data, err := EncodeGeoTIFF(g, compress)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write raster %s: %w", path, err)
	}
	return nil
}

// EncodeGeoTIFF encodes a grid to GeoTIFF bytes.
func EncodeGeoTIFF(g *Grid, compress bool) ([]byte, error) {
	samples := len(g.Bands)
	nStrips := (g.Height + rowsPerStrip - 1) / rowsPerStrip

	strips := make([][]byte, nStrips)
	for s := 0; s < nStrips; s++ {
		rowStart := s * rowsPerStrip
		rowEnd := min(rowStart+rowsPerStrip, g.Height)
		raw := make([]byte, (rowEnd-rowStart)*g.Width*samples*4)
		off := 0
		for row := rowStart; row < rowEnd; row++ {
			for col := 0; col < g.Width; col++ {
				for b := 0; b < samples; b++ {
					binary.LittleEndian.PutUint32(raw[off:], math.Float32bits(g.At(b, col, row)))
					off += 4
				}
			}
		}
		if compress {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			if _, err := zw.Write(raw); err != nil {
				return nil, fmt.Errorf("deflate strip %d: %w", s, err)
			}
			if err := zw.Close(); err != nil {
				return nil, fmt.Errorf("deflate strip %d: %w", s, err)
			}
			strips[s] = buf.Bytes()
		} else {
			strips[s] = raw
		}
	}

	// Strip data sits right after the 8-byte header.
	stripOffsets := make([]uint32, nStrips)
	stripCounts := make([]uint32, nStrips)
	offset := uint32(8)
	for s, strip := range strips {
		stripOffsets[s] = offset
		stripCounts[s] = uint32(len(strip))
		offset += uint32(len(strip))
	}
	if offset%2 == 1 {
		offset++
	}
	ifdOffset := offset

	compression := uint16(compressionNone)
	if compress {
		compression = compressionDeflate
	}

	var entries []ifdEntry
	entries = append(entries,
		longEntry(tagImageWidth, uint32(g.Width)),
		longEntry(tagImageLength, uint32(g.Height)),
		shortsEntry(tagBitsPerSample, repeatShort(32, samples)),
		shortsEntry(tagCompression, []uint16{compression}),
		shortsEntry(tagPhotometric, []uint16{1}),
		asciiEntry(tagImageDescription, strings.Join(g.Bands, ",")),
		longsEntry(tagStripOffsets, stripOffsets),
		shortsEntry(tagSamplesPerPixel, []uint16{uint16(samples)}),
		longEntry(tagRowsPerStrip, rowsPerStrip),
		longsEntry(tagStripByteCounts, stripCounts),
		shortsEntry(tagPlanarConfig, []uint16{1}),
		shortsEntry(tagSampleFormat, repeatShort(3, samples)),
		doublesEntry(tagModelPixelScale, []float64{g.PixelW, g.PixelH, 0}),
		doublesEntry(tagModelTiepoint, []float64{0, 0, 0, g.OriginX, g.OriginY, 0}),
	)
	if g.EPSG != 0 {
		entries = append(entries, shortsEntry(tagGeoKeyDirectory, geoKeys(g.EPSG)))
	}
	entries = append(entries, asciiEntry(tagGDALNoData, strconv.FormatFloat(g.NoData, 'f', -1, 64)))

	// Out-of-line tag data follows the IFD.
	extraOffset := ifdOffset + 2 + uint32(len(entries))*12 + 4
	var extra bytes.Buffer
	for i := range entries {
		if len(entries[i].value) > 4 {
			entries[i].offset = extraOffset + uint32(extra.Len())
			extra.Write(entries[i].value)
			if extra.Len()%2 == 1 {
				extra.WriteByte(0)
			}
		}
	}

	var buf bytes.Buffer
	buf.Write([]byte{0x49, 0x49, 0x2A, 0x00})
	binary.Write(&buf, binary.LittleEndian, ifdOffset)
	for _, strip := range strips {
		buf.Write(strip)
	}
	for buf.Len() < int(ifdOffset) {
		buf.WriteByte(0)
	}
	binary.Write(&buf, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e.tag)
		binary.Write(&buf, binary.LittleEndian, e.typ)
		binary.Write(&buf, binary.LittleEndian, e.count)
		if len(e.value) > 4 {
			binary.Write(&buf, binary.LittleEndian, e.offset)
		} else {
			var inline [4]byte
			copy(inline[:], e.value)
			buf.Write(inline[:])
		}
	}
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // no next IFD
	buf.Write(extra.Bytes())
	return buf.Bytes(), nil
}

type ifdEntry struct {
	tag    uint16
	typ    uint16
	count  uint32
	value  []byte
	offset uint32
}

func longEntry(tag uint16, v uint32) ifdEntry {
	return longsEntry(tag, []uint32{v})
}

func longsEntry(tag uint16, vs []uint32) ifdEntry {
	value := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(value[i*4:], v)
	}
	return ifdEntry{tag: tag, typ: typeLong, count: uint32(len(vs)), value: value}
}

func shortsEntry(tag uint16, vs []uint16) ifdEntry {
	value := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(value[i*2:], v)
	}
	return ifdEntry{tag: tag, typ: typeShort, count: uint32(len(vs)), value: value}
}

func doublesEntry(tag uint16, vs []float64) ifdEntry {
	value := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(value[i*8:], math.Float64bits(v))
	}
	return ifdEntry{tag: tag, typ: typeDouble, count: uint32(len(vs)), value: value}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	value := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(value)), value: value}
}

func repeatShort(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// geoKeys builds a minimal GeoKey directory declaring the CRS. Geographic
// systems (EPSG 4xxx) use the geographic key, everything else the
// projected one.
func geoKeys(epsg int) []uint16 {
	modelType := uint16(1) // projected
	crsKey := uint16(geoKeyProjectedType)
	if epsg == 4326 || (epsg >= 4000 && epsg < 5000) {
		modelType = 2
		crsKey = geoKeyGeographicType
	}
	return []uint16{
		1, 1, 0, 3,
		geoKeyModelType, 0, 1, modelType,
		geoKeyRasterType, 0, 1, 1, // pixel-is-area
		crsKey, 0, 1, uint16(epsg),
	}
}

// ReadGeoTIFF decodes a GeoTIFF file into a grid.
func ReadGeoTIFF(path string) (*Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raster %s: %w", path, err)
	}
	g, err := DecodeGeoTIFF(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster %s: %w", path, err)
	}
	return g, nil
}

// DecodeGeoTIFF decodes GeoTIFF bytes into a grid.
func DecodeGeoTIFF(data []byte) (*Grid, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("file too small to be a TIFF (%d bytes)", len(data))
	}
	var order binary.ByteOrder
	switch {
	case bytes.HasPrefix(data, tiffLittle):
		order = binary.LittleEndian
	case bytes.HasPrefix(data, tiffBig):
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a TIFF: bad magic %x", data[:4])
	}

	ifdOffset := order.Uint32(data[4:8])
	tags, err := parseIFD(data, ifdOffset, order)
	if err != nil {
		return nil, err
	}

	width := int(tags.firstUint(tagImageWidth))
	height := int(tags.firstUint(tagImageLength))
	samples := int(tags.firstUintDefault(tagSamplesPerPixel, 1))
	if width <= 0 || height <= 0 || samples <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%dx%d", width, height, samples)
	}
	for _, bits := range tags.uints(tagBitsPerSample) {
		if bits != 32 {
			return nil, fmt.Errorf("unsupported sample size %d bits", bits)
		}
	}
	if planar := tags.firstUintDefault(tagPlanarConfig, 1); planar != 1 {
		return nil, fmt.Errorf("unsupported planar configuration %d", planar)
	}
	compression := tags.firstUintDefault(tagCompression, compressionNone)
	if compression != compressionNone && compression != compressionDeflate {
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}

	bands := splitBandNames(tags.ascii(tagImageDescription), samples)
	g := NewGrid(width, height, bands)

	if scale := tags.doubles(tagModelPixelScale); len(scale) >= 2 {
		g.PixelW = scale[0]
		g.PixelH = scale[1]
	}
	if tie := tags.doubles(tagModelTiepoint); len(tie) >= 6 {
		g.OriginX = tie[3] - tie[0]*g.PixelW
		g.OriginY = tie[4] + tie[1]*g.PixelH
	}
	g.EPSG = epsgFromGeoKeys(tags.uints(tagGeoKeyDirectory))
	if nd := tags.ascii(tagGDALNoData); nd != "" {
		if v, err := strconv.ParseFloat(strings.TrimSpace(nd), 64); err == nil {
			g.NoData = v
		}
	}

	rows := int(tags.firstUintDefault(tagRowsPerStrip, uint64(height)))
	offsets := tags.uints(tagStripOffsets)
	counts := tags.uints(tagStripByteCounts)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("malformed strip layout: %d offsets, %d counts", len(offsets), len(counts))
	}

	row := 0
	for s := range offsets {
		off, cnt := int(offsets[s]), int(counts[s])
		if off+cnt > len(data) {
			return nil, fmt.Errorf("strip %d extends past end of file", s)
		}
		raw := data[off : off+cnt]
		if compression == compressionDeflate {
			zr, err := zlib.NewReader(bytes.NewReader(raw))
			if err != nil {
				return nil, fmt.Errorf("inflate strip %d: %w", s, err)
			}
			raw, err = io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("inflate strip %d: %w", s, err)
			}
		}

		stripRows := min(rows, height-row)
		want := stripRows * width * samples * 4
		if len(raw) < want {
			return nil, fmt.Errorf("strip %d holds %d bytes, want %d", s, len(raw), want)
		}
		p := 0
		for r := 0; r < stripRows; r++ {
			for col := 0; col < width; col++ {
				for b := 0; b < samples; b++ {
					g.Set(b, col, row+r, math.Float32frombits(order.Uint32(raw[p:])))
					p += 4
				}
			}
		}
		row += stripRows
	}
	if row < height {
		return nil, fmt.Errorf("strips cover %d of %d rows", row, height)
	}
	return g, nil
}

// tagSet is the decoded IFD: raw values per tag.
type tagSet struct {
	uintVals   map[uint16][]uint64
	doubleVals map[uint16][]float64
	asciiVals  map[uint16]string
}

func (t *tagSet) uints(tag uint16) []uint64    { return t.uintVals[tag] }
func (t *tagSet) doubles(tag uint16) []float64 { return t.doubleVals[tag] }
func (t *tagSet) ascii(tag uint16) string      { return t.asciiVals[tag] }

func (t *tagSet) firstUint(tag uint16) uint64 {
	if vs := t.uintVals[tag]; len(vs) > 0 {
		return vs[0]
	}
	return 0
}

func (t *tagSet) firstUintDefault(tag uint16, def uint64) uint64 {
	if vs := t.uintVals[tag]; len(vs) > 0 {
		return vs[0]
	}
	return def
}

func parseIFD(data []byte, offset uint32, order binary.ByteOrder) (*tagSet, error) {
	if int(offset)+2 > len(data) {
		return nil, fmt.Errorf("IFD offset %d past end of file", offset)
	}
	n := int(order.Uint16(data[offset : offset+2]))
	tags := &tagSet{
		uintVals:   map[uint16][]uint64{},
		doubleVals: map[uint16][]float64{},
		asciiVals:  map[uint16]string{},
	}
	typeSizes := map[uint16]int{1: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeDouble: 8}

	for i := 0; i < n; i++ {
		entry := int(offset) + 2 + i*12
		if entry+12 > len(data) {
			return nil, fmt.Errorf("IFD entry %d truncated", i)
		}
		tag := order.Uint16(data[entry:])
		typ := order.Uint16(data[entry+2:])
		count := int(order.Uint32(data[entry+4:]))
		size, ok := typeSizes[typ]
		if !ok {
			continue // skip tag types we do not use
		}
		total := size * count
		var raw []byte
		if total <= 4 {
			raw = data[entry+8 : entry+8+total]
		} else {
			valOff := int(order.Uint32(data[entry+8:]))
			if valOff+total > len(data) {
				return nil, fmt.Errorf("tag %d value past end of file", tag)
			}
			raw = data[valOff : valOff+total]
		}

		switch typ {
		case typeASCII:
			tags.asciiVals[tag] = strings.TrimRight(string(raw), "\x00")
		case typeShort:
			vs := make([]uint64, count)
			for j := 0; j < count; j++ {
				vs[j] = uint64(order.Uint16(raw[j*2:]))
			}
			tags.uintVals[tag] = vs
		case typeLong:
			vs := make([]uint64, count)
			for j := 0; j < count; j++ {
				vs[j] = uint64(order.Uint32(raw[j*4:]))
			}
			tags.uintVals[tag] = vs
		case typeDouble:
			vs := make([]float64, count)
			for j := 0; j < count; j++ {
				vs[j] = math.Float64frombits(order.Uint64(raw[j*8:]))
			}
			tags.doubleVals[tag] = vs
		case 1:
			vs := make([]uint64, count)
			for j := 0; j < count; j++ {
				vs[j] = uint64(raw[j])
			}
			tags.uintVals[tag] = vs
		}
	}
	return tags, nil
}

func splitBandNames(description string, samples int) []string {
	names := []string{}
	if description != "" {
		for _, n := range strings.Split(description, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	if len(names) != samples {
		names = make([]string, samples)
		for i := range names {
			names[i] = fmt.Sprintf("band_%d", i+1)
		}
	}
	return names
}

func epsgFromGeoKeys(dir []uint64) int {
	// Entries are quads: key, location, count, value. Header quad first.
	for i := 4; i+3 < len(dir); i += 4 {
		switch dir[i] {
		case geoKeyProjectedType, geoKeyGeographicType:
			if dir[i+1] == 0 {
				return int(dir[i+3])
			}
		}
	}
	return 0
}
