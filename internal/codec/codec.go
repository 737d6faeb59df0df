// Package codec detects, decodes and encodes image byte streams.
//
// Each supported format is a Codec value. A Codec always knows how to
// recognize its own signature; decoding and encoding are optional capability
// interfaces so that decode-only formats (webp) fit the same registry.
//
// # Registry
//
// Codecs are assembled once into an immutable Registry in a fixed probe
// order. Detection, decode and encode all go through the registry, which maps
// low-level failures onto the engine error taxonomy in internal/fault.
//
// # Memory
//
// Decoders read the image header first, enforce Limits, and only then
// acquire a destination buffer from the caller's pixel.Pool. A failed decode
// releases anything it acquired.
package codec

import (
	"context"
	"io"

	"github.com/ironsheep/imgengine/internal/pixel"
)

// Format tags for the built-in codecs.
const (
	PNG  = "png"
	JPEG = "jpeg"
	GIF  = "gif"
	WebP = "webp"
	BMP  = "bmp"
	TIFF = "tiff"
	ZPix = "zpix"
)

// Codec identifies one image format.
type Codec interface {
	// Format returns the short format tag, e.g. "png".
	Format() string

	// Probe reports whether data starts with this format's signature.
	Probe(data []byte) bool

	// NearMatch reports whether data looks like a damaged or truncated
	// signature of this format.
	NearMatch(data []byte) bool
}

// Decoder is implemented by codecs that can produce pixels.
type Decoder interface {
	Codec

	// Inspect reads the header only.
	Inspect(data []byte) (Descriptor, error)

	// Decode fills a buffer acquired from p. The caller owns the result.
	Decode(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error)
}

// Encoder is implemented by codecs that can serialize pixels.
type Encoder interface {
	Codec
	Encode(w io.Writer, buf *pixel.Buffer, opts EncodeOptions) error
}

// Descriptor describes an encoded image without its pixels.
type Descriptor struct {
	// Format is the codec tag the data was detected as.
	Format string `json:"format"`

	Width  int `json:"width"`
	Height int `json:"height"`

	// PixelFormat is the buffer format Decode produces.
	PixelFormat pixel.Format `json:"pixel_format"`

	// ColorModel is one of "rgb", "rgba", "gray", "ycbcr", "paletted", "cmyk".
	ColorModel string `json:"color_model"`

	// ColorProfile is "icc" when an embedded ICC profile was found and
	// "sRGB" otherwise.
	ColorProfile string `json:"color_profile"`

	HasAlpha bool `json:"has_alpha"`

	// BitDepth is bits per channel.
	BitDepth int `json:"bit_depth"`

	// Orientation is the EXIF orientation tag, or Unspecified.
	Orientation pixel.Orientation `json:"orientation"`
}

// Limits bound what a decoder will accept. Zero fields are unlimited.
type Limits struct {
	MaxInputBytes int64
	MaxDimension  int
}

// Default limits applied when decoding untrusted input.
const (
	DefaultMaxInputBytes = 30 << 20
	DefaultMaxDimension  = 8000
)

// DefaultLimits returns the default decode limits.
func DefaultLimits() Limits {
	return Limits{MaxInputBytes: DefaultMaxInputBytes, MaxDimension: DefaultMaxDimension}
}

// PNGCompression selects the PNG deflate effort.
type PNGCompression int

const (
	PNGDefault PNGCompression = iota
	PNGNone
	PNGSpeed
	PNGBest
)

// DefaultQuality is the JPEG quality used when EncodeOptions.Quality is zero.
const DefaultQuality = 80

// EncodeOptions tune encoders. The zero value selects defaults for every
// codec.
type EncodeOptions struct {
	// Quality is the JPEG quality, 1-100. Zero means DefaultQuality.
	Quality int `json:"quality" yaml:"quality"`

	PNGCompression PNGCompression `json:"png_compression" yaml:"png_compression"`

	// GIFColors is the palette size, 1-256. Zero means 256.
	GIFColors int `json:"gif_colors" yaml:"gif_colors"`

	// ZstdLevel is the zpix compression level, 1 (fastest) to 4 (best).
	// Zero means the zstd default.
	ZstdLevel int `json:"zstd_level" yaml:"zstd_level"`
}
