package geotiff

import (
	"encoding/binary"
	"math"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
)

// Encode serializes a Raster as an uncompressed little-endian float64
// GeoTIFF with a single strip. It exists for tests and for dumping
// intermediate grids while debugging; the pipeline itself never writes
// rasters.
func Encode(r *Raster) ([]byte, error) {
	if r.Transform.B != 0 || r.Transform.D != 0 {
		return nil, eris.New("geotiff: cannot encode rotated transforms")
	}
	if r.Transform.E >= 0 {
		return nil, eris.New("geotiff: encode expects a north-up transform (E < 0)")
	}

	dataLen := r.Width * r.Height * 8
	pixels := make([]byte, dataLen)
	for i, v := range r.Values {
		binary.LittleEndian.PutUint64(pixels[i*8:], math.Float64bits(v))
	}

	type tagValue struct {
		tag, typ uint16
		count    uint32
		data     []byte
	}

	short := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}
	long := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	doubles := func(vs ...float64) []byte {
		b := make([]byte, 8*len(vs))
		for i, v := range vs {
			binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
		}
		return b
	}
	shorts := func(vs ...uint16) []byte {
		b := make([]byte, 2*len(vs))
		for i, v := range vs {
			binary.LittleEndian.PutUint16(b[i*2:], v)
		}
		return b
	}

	const dataOffset = 8
	tags := []tagValue{
		{tagImageWidth, 4, 1, long(uint32(r.Width))},
		{tagImageLength, 4, 1, long(uint32(r.Height))},
		{tagBitsPerSample, 3, 1, short(64)},
		{tagCompression, 3, 1, short(compNone)},
		{262, 3, 1, short(1)}, // PhotometricInterpretation: BlackIsZero
		{tagStripOffsets, 4, 1, long(dataOffset)},
		{tagSamplesPerPixel, 3, 1, short(1)},
		{tagRowsPerStrip, 4, 1, long(uint32(r.Height))},
		{tagStripByteCounts, 4, 1, long(uint32(dataLen))},
		{tagPlanarConfig, 3, 1, short(1)},
		{tagSampleFormat, 3, 1, short(sampleFmtFloat)},
		{tagModelPixelScale, 12, 3, doubles(r.Transform.A, -r.Transform.E, 0)},
		{tagModelTiepoint, 12, 6, doubles(0, 0, 0, r.Transform.C, r.Transform.F, 0)},
	}

	if r.EPSG != 0 {
		modelType, crsKey := uint16(1), uint16(geoKeyProjected)
		if r.EPSG == 4326 || (r.EPSG >= 4000 && r.EPSG < 5000) {
			modelType, crsKey = 2, geoKeyGeodetic
		}
		keys := shorts(
			1, 1, 0, 2, // directory header, two keys
			geoKeyModelType, 0, 1, modelType,
			crsKey, 0, 1, uint16(r.EPSG),
		)
		tags = append(tags, tagValue{tagGeoKeyDirectory, 3, uint32(len(keys) / 2), keys})
	}
	if r.NoData != nil {
		ascii := append([]byte(strconv.FormatFloat(*r.NoData, 'g', -1, 64)), 0)
		tags = append(tags, tagValue{tagGDALNoData, 2, uint32(len(ascii)), ascii})
	}

	// Values wider than 4 bytes live in an aux region between the pixel
	// data and the IFD.
	auxStart := dataOffset + dataLen
	var aux []byte
	type rawEntry struct {
		tag, typ uint16
		count    uint32
		inline   [4]byte
	}
	rawEntries := make([]rawEntry, 0, len(tags))
	for _, tv := range tags {
		re := rawEntry{tag: tv.tag, typ: tv.typ, count: tv.count}
		if len(tv.data) <= 4 {
			copy(re.inline[:], tv.data)
		} else {
			binary.LittleEndian.PutUint32(re.inline[:], uint32(auxStart+len(aux)))
			aux = append(aux, tv.data...)
		}
		rawEntries = append(rawEntries, re)
	}
	ifdOffset := auxStart + len(aux)

	out := make([]byte, 0, ifdOffset+2+len(rawEntries)*12+4)
	out = append(out, 'I', 'I')
	out = append(out, short(42)...)
	out = append(out, long(uint32(ifdOffset))...)
	out = append(out, pixels...)
	out = append(out, aux...)
	out = append(out, short(uint16(len(rawEntries)))...)
	for _, re := range rawEntries {
		out = append(out, short(re.tag)...)
		out = append(out, short(re.typ)...)
		out = append(out, long(re.count)...)
		out = append(out, re.inline[:]...)
	}
	out = append(out, long(0)...) // no next IFD

	return out, nil
}

// WriteFile encodes the raster and writes it to path.
func WriteFile(path string, r *Raster) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "geotiff: write %s", path)
}
