package pixel

import (
	"fmt"
	"math"
	"strings"

	"github.com/ironsheep/imgengine/internal/fault"
)

// Format tags the memory layout of a Buffer.
type Format uint8

const (
	Invalid Format = iota
	// RGBA8 is 4 interleaved bytes per pixel, non-premultiplied.
	RGBA8
	// BGRA8 is RGBA8 with red and blue swapped.
	BGRA8
	// Gray8 is one luma byte per pixel.
	Gray8
	// YUV420 is planar BT.601 full-range YCbCr with 2x2 chroma subsampling.
	YUV420
)

func (f Format) String() string {
	switch f {
	case RGBA8:
		return "rgba8"
	case BGRA8:
		return "bgra8"
	case Gray8:
		return "gray8"
	case YUV420:
		return "yuv420"
	default:
		return "invalid"
	}
}

// ParseFormat accepts the names produced by Format.String, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "rgba8", "rgba":
		return RGBA8, nil
	case "bgra8", "bgra":
		return BGRA8, nil
	case "gray8", "gray", "grey":
		return Gray8, nil
	case "yuv420", "i420":
		return YUV420, nil
	default:
		return Invalid, fmt.Errorf("unknown pixel format: %q", s)
	}
}

// Valid reports whether f is one of the defined formats.
func (f Format) Valid() bool { return f >= RGBA8 && f <= YUV420 }

// BytesPerPixel is the packed pixel size; for YUV420 it is the luma sample size.
func (f Format) BytesPerPixel() int {
	switch f {
	case RGBA8, BGRA8:
		return 4
	case Gray8, YUV420:
		return 1
	default:
		return 0
	}
}

// Planar reports whether the format stores separate planes.
func (f Format) Planar() bool { return f == YUV420 }

// HasAlpha reports whether the format carries an alpha channel.
func (f Format) HasAlpha() bool { return f == RGBA8 || f == BGRA8 }

// Orientation is the EXIF orientation tag (1-8). Zero means unspecified and
// is treated as Normal.
type Orientation uint8

const (
	OrientationUnspecified Orientation = iota
	OrientationNormal
	OrientationFlipH
	OrientationRotate180
	OrientationFlipV
	OrientationTranspose
	OrientationRotate270
	OrientationTransverse
	OrientationRotate90
)

// NeedsCorrection reports whether pixels must be transformed to display upright.
func (o Orientation) NeedsCorrection() bool {
	return o > OrientationNormal && o <= OrientationRotate90
}

// SwapsAxes reports whether correcting o exchanges width and height.
func (o Orientation) SwapsAxes() bool {
	return o >= OrientationTranspose && o <= OrientationRotate90
}

// rowAlign is the byte multiple every row (and chroma row) is padded to.
const rowAlign = 16

// maxSide bounds each dimension so size arithmetic cannot overflow.
const maxSide = 1 << 20

func align(n int) int {
	return (n + rowAlign - 1) / rowAlign * rowAlign
}

// Layout is the geometry of a Buffer without its memory.
type Layout struct {
	Width  int
	Height int
	Stride int
	Format Format
}

// NewLayout computes the aligned layout for the given dimensions.
//
// Returns a TransformError(InvalidParameters) for non-positive dimensions or an
// invalid format, and a ResourceError(OutOfMemory) when the frame cannot be
// addressed.
func NewLayout(width, height int, f Format) (Layout, error) {
	if !f.Valid() {
		return Layout{}, fault.Transformf(fault.InvalidParameters, "layout", "invalid pixel format %d", f)
	}
	if width <= 0 || height <= 0 {
		return Layout{}, fault.Transformf(fault.InvalidParameters, "layout", "dimensions must be positive, got %dx%d", width, height)
	}
	if width > maxSide || height > maxSide {
		return Layout{}, fault.Resourcef(fault.OutOfMemory, "layout", "dimensions %dx%d exceed %d per side", width, height, maxSide)
	}
	l := Layout{Width: width, Height: height, Stride: align(width * f.BytesPerPixel()), Format: f}
	if l.frameSize64() > math.MaxInt {
		return Layout{}, fault.Resourcef(fault.OutOfMemory, "layout", "frame of %dx%d %s is not addressable", width, height, f)
	}
	return l, nil
}

// ChromaWidth is the number of chroma samples per row for planar formats.
func (l Layout) ChromaWidth() int { return (l.Width + 1) / 2 }

// ChromaHeight is the number of chroma rows for planar formats.
func (l Layout) ChromaHeight() int { return (l.Height + 1) / 2 }

// ChromaStride is the byte distance between chroma rows for planar formats.
func (l Layout) ChromaStride() int {
	if !l.Format.Planar() {
		return 0
	}
	return align(l.ChromaWidth())
}

// RowBytes is the number of visible bytes in one packed (or luma) row.
func (l Layout) RowBytes() int { return l.Width * l.Format.BytesPerPixel() }

// FrameSize is the total number of bytes the layout occupies.
func (l Layout) FrameSize() int { return int(l.frameSize64()) }

func (l Layout) frameSize64() int64 {
	size := int64(l.Stride) * int64(l.Height)
	if l.Format.Planar() {
		size += 2 * int64(l.ChromaStride()) * int64(l.ChromaHeight())
	}
	return size
}

// Validate checks the stride invariant.
func (l Layout) Validate() error {
	if !l.Format.Valid() || l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("invalid layout %dx%d %s", l.Width, l.Height, l.Format)
	}
	if l.Stride < l.RowBytes() {
		return fmt.Errorf("stride %d < %d bytes per row", l.Stride, l.RowBytes())
	}
	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("%dx%d %s", l.Width, l.Height, l.Format)
}
