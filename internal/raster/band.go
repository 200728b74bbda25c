package raster

import (
	"bytes"
	"encoding/binary"
)

// SampleFormat names the per-cell numeric type of a single-band raster.
type SampleFormat string

const (
	FormatInt16   SampleFormat = "int16"
	FormatFloat32 SampleFormat = "float32"
)

// BandMeta describes a single-band binary raster: the band payload of a
// GeoTIFF download or a raw DEM dump. Values are little-endian, row-major,
// row 0 northernmost.
type BandMeta struct {
	Cols, Rows     int
	OriginLon      float64 // west edge of the top-left cell
	OriginLat      float64 // north edge of the top-left cell
	CellSizeLonDeg float64
	CellSizeLatDeg float64
	NoData         float64 // the source's declared NoData sentinel
	Format         SampleFormat
}

// DecodeBand reads a single-band raster into samples at cell centers.
// Cells equal to the NoData sentinel, and cells outside the plausible
// elevation range, become NoData samples.
func DecodeBand(data []byte, meta BandMeta) ([]Sample, error) {
	if meta.Cols <= 0 || meta.Rows <= 0 {
		return nil, decodeErrorf("band", "non-positive dimensions %dx%d", meta.Cols, meta.Rows)
	}

	n := meta.Cols * meta.Rows
	values, err := readBandValues(data, n, meta.Format)
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, n)
	for r := 0; r < meta.Rows; r++ {
		lat := meta.OriginLat - (float64(r)+0.5)*meta.CellSizeLatDeg
		for c := 0; c < meta.Cols; c++ {
			lon := meta.OriginLon + (float64(c)+0.5)*meta.CellSizeLonDeg
			v := values[r*meta.Cols+c]

			s := Sample{Lon: lon, Lat: lat, Elevation: v}
			if v == meta.NoData || !plausible(v) {
				s.Elevation = 0
				s.NoData = true
			}
			samples = append(samples, s)
		}
	}
	return samples, nil
}

func readBandValues(data []byte, n int, format SampleFormat) ([]float64, error) {
	values := make([]float64, n)

	switch format {
	case FormatInt16:
		if len(data) != n*2 {
			return nil, decodeErrorf("band", "int16 band is %d bytes, want %d", len(data), n*2)
		}
		raw := make([]int16, n)
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, raw); err != nil {
			return nil, &DecodeError{Format: "band", Reason: "read int16 values", Err: err}
		}
		for i, v := range raw {
			values[i] = float64(v)
		}

	case FormatFloat32:
		if len(data) != n*4 {
			return nil, decodeErrorf("band", "float32 band is %d bytes, want %d", len(data), n*4)
		}
		raw := make([]float32, n)
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, raw); err != nil {
			return nil, &DecodeError{Format: "band", Reason: "read float32 values", Err: err}
		}
		for i, v := range raw {
			values[i] = float64(v)
		}

	default:
		return nil, decodeErrorf("band", "unknown sample format %q", format)
	}

	return values, nil
}
