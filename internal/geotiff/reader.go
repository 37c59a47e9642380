package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TIFF tags used by the reader.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagModelTransform  = 34264
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113
)

// Compression schemes.
const (
	compNone        = 1
	compLZW         = 5
	compDeflate     = 8
	compPackBits    = 32773
	compDeflateOld  = 32946
	sampleFmtInt    = 2
	sampleFmtFloat  = 3
	geoKeyModelType = 1024
	geoKeyGeodetic  = 2048
	geoKeyProjected = 3072
)

var typeSizes = map[uint16]uint32{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

// entry is one resolved IFD entry with its value bytes.
type entry struct {
	typ   uint16
	count uint32
	data  []byte
	bo    binary.ByteOrder
}

func (e entry) uints() []uint64 {
	size := typeSizes[e.typ]
	out := make([]uint64, 0, e.count)
	for i := uint32(0); i < e.count; i++ {
		b := e.data[i*size:]
		switch size {
		case 1:
			out = append(out, uint64(b[0]))
		case 2:
			out = append(out, uint64(e.bo.Uint16(b)))
		case 4:
			out = append(out, uint64(e.bo.Uint32(b)))
		default:
			out = append(out, uint64(e.bo.Uint64(b)))
		}
	}
	return out
}

func (e entry) uint() uint64 { return e.uints()[0] }

func (e entry) doubles() []float64 {
	out := make([]float64, 0, e.count)
	switch e.typ {
	case 11: // FLOAT
		for i := uint32(0); i < e.count; i++ {
			out = append(out, float64(math.Float32frombits(e.bo.Uint32(e.data[i*4:]))))
		}
	case 12: // DOUBLE
		for i := uint32(0); i < e.count; i++ {
			out = append(out, math.Float64frombits(e.bo.Uint64(e.data[i*8:])))
		}
	}
	return out
}

func (e entry) ascii() string {
	return strings.TrimRight(string(e.data), "\x00")
}

// Read decodes band 1 of the GeoTIFF at path into memory.
func Read(path string) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geotiff: read %s", path)
	}
	r, err := decode(data)
	if err != nil {
		return nil, eris.Wrapf(err, "geotiff: %s", path)
	}
	return r, nil
}

func decode(data []byte) (*Raster, error) {
	if len(data) < 8 {
		return nil, ErrNotTIFF
	}

	var bo binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		bo = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, ErrNotTIFF
	}

	switch bo.Uint16(data[2:]) {
	case 42:
	case 43:
		return nil, eris.Wrap(ErrNotTIFF, "BigTIFF is not supported")
	default:
		return nil, ErrNotTIFF
	}

	entries, err := readIFD(data, bo, bo.Uint32(data[4:]))
	if err != nil {
		return nil, err
	}

	width, ok := entryUint(entries, tagImageWidth)
	if !ok {
		return nil, eris.New("missing ImageWidth")
	}
	height, ok := entryUint(entries, tagImageLength)
	if !ok {
		return nil, eris.New("missing ImageLength")
	}

	bits := uint64(1)
	if e, ok := entries[tagBitsPerSample]; ok {
		bits = e.uints()[0] // sample 1 only
	}
	switch bits {
	case 8, 16, 32, 64:
	default:
		return nil, eris.Errorf("unsupported bits per sample %d", bits)
	}

	format := uint64(1)
	if e, ok := entries[tagSampleFormat]; ok {
		format = e.uints()[0]
	}
	spp := uint64(1)
	if e, ok := entries[tagSamplesPerPixel]; ok {
		spp = e.uint()
	}
	planar := uint64(1)
	if e, ok := entries[tagPlanarConfig]; ok {
		planar = e.uint()
	}
	comp := uint64(compNone)
	if e, ok := entries[tagCompression]; ok {
		comp = e.uint()
	}

	rast := &Raster{
		Width:     int(width),
		Height:    int(height),
		Transform: Affine{A: 1, E: 1},
		Values:    make([]float64, width*height),
		Valid:     make([]bool, width*height),
	}

	if err := readGrid(data, bo, entries, rast, int(bits), int(format), int(spp), planar == 1, uint16(comp)); err != nil {
		return nil, err
	}

	readGeo(entries, rast)

	for i := range rast.Valid {
		rast.Valid[i] = true
	}
	if rast.NoData != nil {
		nd := *rast.NoData
		for i, v := range rast.Values {
			if v == nd || (math.IsNaN(nd) && math.IsNaN(v)) {
				rast.Valid[i] = false
			}
		}
	}

	return rast, nil
}

func readIFD(data []byte, bo binary.ByteOrder, offset uint32) (map[uint16]entry, error) {
	if uint64(offset)+2 > uint64(len(data)) {
		return nil, eris.New("IFD offset out of range")
	}
	count := bo.Uint16(data[offset:])
	entries := make(map[uint16]entry, count)

	for i := uint16(0); i < count; i++ {
		base := uint64(offset) + 2 + uint64(i)*12
		if base+12 > uint64(len(data)) {
			return nil, eris.New("truncated IFD")
		}
		tag := bo.Uint16(data[base:])
		typ := bo.Uint16(data[base+2:])
		n := bo.Uint32(data[base+4:])

		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		total := uint64(size) * uint64(n)

		var value []byte
		if total <= 4 {
			value = data[base+8 : base+8+total]
		} else {
			off := uint64(bo.Uint32(data[base+8:]))
			if off+total > uint64(len(data)) {
				return nil, eris.Errorf("tag %d value out of range", tag)
			}
			value = data[off : off+total]
		}
		entries[tag] = entry{typ: typ, count: n, data: value, bo: bo}
	}
	return entries, nil
}

func entryUint(entries map[uint16]entry, tag uint16) (uint64, bool) {
	e, ok := entries[tag]
	if !ok {
		return 0, false
	}
	return e.uint(), true
}

// readGrid fills rast.Values from the strip or tile layout.
func readGrid(data []byte, bo binary.ByteOrder, entries map[uint16]entry, rast *Raster, bits, format, spp int, chunky bool, comp uint16) error {
	bps := bits / 8

	// Sample stride and offset within a decoded row: band 1 is the first
	// sample of each pixel when chunky, the whole row when planar.
	stride := bps
	if chunky {
		stride = bps * spp
	}

	if _, tiled := entries[tagTileOffsets]; tiled {
		return readTiles(data, bo, entries, rast, bps, format, stride, chunky, spp, comp)
	}
	return readStrips(data, bo, entries, rast, bps, format, stride, chunky, spp, comp)
}

func readStrips(data []byte, bo binary.ByteOrder, entries map[uint16]entry, rast *Raster, bps, format, stride int, chunky bool, spp int, comp uint16) error {
	offsetsE, ok := entries[tagStripOffsets]
	if !ok {
		return eris.New("missing strip offsets")
	}
	countsE, ok := entries[tagStripByteCounts]
	if !ok {
		return eris.New("missing strip byte counts")
	}
	offsets := offsetsE.uints()
	counts := countsE.uints()

	rps := uint64(rast.Height)
	if e, ok := entries[tagRowsPerStrip]; ok && e.uint() > 0 {
		rps = e.uint()
	}
	stripsPerBand := (uint64(rast.Height) + rps - 1) / rps

	// With planar storage each band has its own run of strips; band 1 is
	// the first run.
	limit := stripsPerBand
	if chunky {
		limit = uint64(len(offsets))
	}
	if limit > uint64(len(offsets)) || limit > uint64(len(counts)) {
		return eris.New("strip table shorter than expected")
	}

	rowBytes := rast.Width * stride

	for s := uint64(0); s < limit; s++ {
		raw, err := blockData(data, offsets[s], counts[s], comp)
		if err != nil {
			return err
		}
		startRow := int(s * rps)
		rows := min(int(rps), rast.Height-startRow)
		if len(raw) < rows*rowBytes {
			return eris.Errorf("strip %d truncated", s)
		}
		for r := 0; r < rows; r++ {
			row := startRow + r
			for c := 0; c < rast.Width; c++ {
				sample := raw[r*rowBytes+c*stride:]
				rast.Values[row*rast.Width+c] = decodeSample(bo, sample, bps, format)
			}
		}
	}
	return nil
}

func readTiles(data []byte, bo binary.ByteOrder, entries map[uint16]entry, rast *Raster, bps, format, stride int, chunky bool, spp int, comp uint16) error {
	tw, ok := entryUint(entries, tagTileWidth)
	if !ok {
		return eris.New("missing tile width")
	}
	th, ok := entryUint(entries, tagTileLength)
	if !ok {
		return eris.New("missing tile length")
	}
	offsets := entries[tagTileOffsets].uints()
	countsE, ok := entries[tagTileByteCounts]
	if !ok {
		return eris.New("missing tile byte counts")
	}
	counts := countsE.uints()

	tilesAcross := (uint64(rast.Width) + tw - 1) / tw
	tilesDown := (uint64(rast.Height) + th - 1) / th
	perBand := tilesAcross * tilesDown
	if perBand > uint64(len(offsets)) || perBand > uint64(len(counts)) {
		return eris.New("tile table shorter than expected")
	}

	tileRowBytes := int(tw) * stride

	// Band 1 is the first tile run for planar storage, interleaved otherwise.
	for ty := uint64(0); ty < tilesDown; ty++ {
		for tx := uint64(0); tx < tilesAcross; tx++ {
			idx := ty*tilesAcross + tx
			raw, err := blockData(data, offsets[idx], counts[idx], comp)
			if err != nil {
				return err
			}
			if len(raw) < int(th)*tileRowBytes {
				return eris.Errorf("tile %d truncated", idx)
			}
			for r := 0; r < int(th); r++ {
				row := int(ty)*int(th) + r
				if row >= rast.Height {
					break
				}
				for c := 0; c < int(tw); c++ {
					col := int(tx)*int(tw) + c
					if col >= rast.Width {
						break
					}
					sample := raw[r*tileRowBytes+c*stride:]
					rast.Values[row*rast.Width+col] = decodeSample(bo, sample, bps, format)
				}
			}
		}
	}
	return nil
}

func blockData(data []byte, offset, count uint64, comp uint16) ([]byte, error) {
	if offset+count > uint64(len(data)) {
		return nil, eris.New("block out of range")
	}
	raw := data[offset : offset+count]

	switch comp {
	case compNone:
		return raw, nil
	case compDeflate, compDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, eris.Wrap(err, "open deflate block")
		}
		defer zr.Close() //nolint:errcheck
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, eris.Wrap(err, "inflate block")
		}
		return out, nil
	case compPackBits:
		return unpackBits(raw), nil
	case compLZW:
		return nil, eris.Wrap(ErrUnsupportedCompression, "LZW")
	default:
		return nil, eris.Wrapf(ErrUnsupportedCompression, "scheme %d", comp)
	}
}

// unpackBits decodes the TIFF PackBits run-length scheme.
func unpackBits(raw []byte) []byte {
	var out []byte
	for i := 0; i < len(raw); {
		n := int8(raw[i])
		i++
		switch {
		case n >= 0:
			end := min(i+int(n)+1, len(raw))
			out = append(out, raw[i:end]...)
			i = end
		case n == -128:
			// no-op
		default:
			if i < len(raw) {
				for j := 0; j < 1-int(n); j++ {
					out = append(out, raw[i])
				}
				i++
			}
		}
	}
	return out
}

func decodeSample(bo binary.ByteOrder, b []byte, bps, format int) float64 {
	switch bps {
	case 1:
		if format == sampleFmtInt {
			return float64(int8(b[0]))
		}
		return float64(b[0])
	case 2:
		u := bo.Uint16(b)
		if format == sampleFmtInt {
			return float64(int16(u))
		}
		return float64(u)
	case 4:
		u := bo.Uint32(b)
		switch format {
		case sampleFmtFloat:
			return float64(math.Float32frombits(u))
		case sampleFmtInt:
			return float64(int32(u))
		default:
			return float64(u)
		}
	default:
		u := bo.Uint64(b)
		switch format {
		case sampleFmtFloat:
			return math.Float64frombits(u)
		case sampleFmtInt:
			return float64(int64(u))
		default:
			return float64(u)
		}
	}
}

// readGeo extracts the affine transform, CRS code, and nodata value.
func readGeo(entries map[uint16]entry, rast *Raster) {
	if e, ok := entries[tagModelTransform]; ok && e.count >= 8 {
		m := e.doubles()
		rast.Transform = Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}
	} else if scaleE, ok := entries[tagModelPixelScale]; ok {
		if tieE, ok := entries[tagModelTiepoint]; ok && scaleE.count >= 2 && tieE.count >= 6 {
			scale := scaleE.doubles()
			tie := tieE.doubles()
			rast.Transform = Affine{
				A: scale[0],
				C: tie[3] - tie[0]*scale[0],
				E: -scale[1],
				F: tie[4] + tie[1]*scale[1],
			}
		}
	} else {
		zap.L().Warn("geotiff: no georeferencing tags, using identity transform",
			zap.String("component", "geotiff"))
	}

	if e, ok := entries[tagGeoKeyDirectory]; ok {
		rast.EPSG = parseGeoKeys(e.uints())
	}

	if e, ok := entries[tagGDALNoData]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(e.ascii()), 64); err == nil {
			rast.NoData = &v
		}
	}
}

// parseGeoKeys returns the CRS code, preferring the projected key over the
// geographic one.
func parseGeoKeys(shorts []uint64) int {
	if len(shorts) < 4 {
		return 0
	}
	numKeys := int(shorts[3])
	geographic := 0
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(shorts) {
			break
		}
		keyID := shorts[base]
		tagLoc := shorts[base+1]
		value := int(shorts[base+3])
		if tagLoc != 0 {
			continue // value stored in another tag, not a bare code
		}
		switch keyID {
		case geoKeyProjected:
			return value
		case geoKeyGeodetic:
			geographic = value
		}
	}
	return geographic
}
