package raster

import (
	"bytes"
	"image"
	"image/color"
	_ "image/png" // tile services deliver PNG payloads
	"math"

	"github.com/reliefcraft/terrain-service/internal/geo"
)

// TileDecodeFunc turns one raw tile payload into elevation samples spread
// over the tile's geographic bounds. tileSize is the side length declared
// by the source; a payload with different dimensions is malformed.
type TileDecodeFunc func(data []byte, bounds geo.BoundingBox, tileSize int) ([]Sample, error)

// TileDecoder returns the decode function for a declared tile encoding.
func TileDecoder(enc Encoding) (TileDecodeFunc, error) {
	switch enc {
	case EncodingTerrarium:
		return DecodeTerrarium, nil
	case EncodingMapboxRGB:
		return DecodeMapboxRGB, nil
	case EncodingRawGrayscale:
		return DecodeRawGrayscale, nil
	default:
		return nil, decodeErrorf(string(enc), "unknown tile encoding")
	}
}

// TerrariumElevation decodes one Terrarium-encoded pixel.
func TerrariumElevation(r, g, b uint8) float64 {
	return float64(r)*256 + float64(g) + float64(b)/256 - 32768
}

// MapboxElevation decodes one Mapbox Terrain-RGB pixel.
func MapboxElevation(r, g, b uint8) float64 {
	return -10000 + (float64(r)*65536+float64(g)*256+float64(b))*0.1
}

// EncodeTerrarium is the inverse of TerrariumElevation, used by tests and
// fixture generation. Quantization step is 1/256 m.
func EncodeTerrarium(elevation float64) (r, g, b uint8) {
	v := int(math.Round((elevation + 32768) * 256))
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// EncodeMapboxRGB is the inverse of MapboxElevation. Quantization step is
// 0.1 m.
func EncodeMapboxRGB(elevation float64) (r, g, b uint8) {
	v := int(math.Round((elevation + 10000) * 10))
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// DecodeTerrarium decodes a Terrarium-encoded PNG tile.
func DecodeTerrarium(data []byte, bounds geo.BoundingBox, tileSize int) ([]Sample, error) {
	return decodeRGBTile(string(EncodingTerrarium), data, bounds, tileSize, TerrariumElevation)
}

// DecodeMapboxRGB decodes a Mapbox Terrain-RGB PNG tile.
func DecodeMapboxRGB(data []byte, bounds geo.BoundingBox, tileSize int) ([]Sample, error) {
	return decodeRGBTile(string(EncodingMapboxRGB), data, bounds, tileSize, MapboxElevation)
}

// DecodeRawGrayscale decodes a grayscale PNG tile whose gray value is the
// elevation in whole meters: the full 16-bit value for 16-bit payloads,
// the single byte for 8-bit ones.
func DecodeRawGrayscale(data []byte, bounds geo.BoundingBox, tileSize int) ([]Sample, error) {
	img, err := decodeTileImage(string(EncodingRawGrayscale), data, tileSize)
	if err != nil {
		return nil, err
	}

	_, deep := img.(*image.Gray16)
	return pixelSamples(img, bounds, func(c color.Color) float64 {
		if deep {
			return float64(color.Gray16Model.Convert(c).(color.Gray16).Y)
		}
		return float64(color.GrayModel.Convert(c).(color.Gray).Y)
	}), nil
}

func decodeRGBTile(format string, data []byte, bounds geo.BoundingBox, tileSize int, elev func(r, g, b uint8) float64) ([]Sample, error) {
	img, err := decodeTileImage(format, data, tileSize)
	if err != nil {
		return nil, err
	}
	return pixelSamples(img, bounds, func(c color.Color) float64 {
		r, g, b, _ := c.RGBA()
		return elev(uint8(r>>8), uint8(g>>8), uint8(b>>8))
	}), nil
}

func decodeTileImage(format string, data []byte, tileSize int) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: format, Reason: "not a decodable image", Err: err}
	}
	b := img.Bounds()
	if b.Dx() != tileSize || b.Dy() != tileSize {
		return nil, decodeErrorf(format, "tile is %dx%d, source declares %dx%d",
			b.Dx(), b.Dy(), tileSize, tileSize)
	}
	return img, nil
}

// pixelSamples maps every pixel center into the tile's bounds, row 0 at
// the northern edge. Implausible elevations become NoData samples.
func pixelSamples(img image.Image, bounds geo.BoundingBox, elev func(color.Color) float64) []Sample {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	lonStep := (bounds.East - bounds.West) / float64(w)
	latStep := (bounds.North - bounds.South) / float64(h)

	samples := make([]Sample, 0, w*h)
	for py := 0; py < h; py++ {
		lat := bounds.North - (float64(py)+0.5)*latStep
		for px := 0; px < w; px++ {
			lon := bounds.West + (float64(px)+0.5)*lonStep
			v := elev(img.At(b.Min.X+px, b.Min.Y+py))

			s := Sample{Lon: lon, Lat: lat, Elevation: v}
			if !plausible(v) {
				s.Elevation = 0
				s.NoData = true
			}
			samples = append(samples, s)
		}
	}
	return samples
}
