package imgengine

import (
	"image"

	"github.com/ironsheep/imgengine/internal/codec"
	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/imaging"
	"github.com/ironsheep/imgengine/internal/pixel"
	"github.com/ironsheep/imgengine/internal/scheduler"
)

// Buffers and metadata.
type (
	PixelBuffer   = pixel.Buffer
	PixelFormat   = pixel.Format
	Layout        = pixel.Layout
	BufferPool    = pixel.Pool
	Orientation   = pixel.Orientation
	PoolStats     = pixel.PoolStats
	Descriptor    = codec.Descriptor
	ImageInfo     = codec.ImageInfo
	EncodeOptions = codec.EncodeOptions
)

// Pixel formats.
const (
	RGBA8  = pixel.RGBA8
	BGRA8  = pixel.BGRA8
	Gray8  = pixel.Gray8
	YUV420 = pixel.YUV420
)

// Output format tags. WebP is decode-only.
const (
	PNG  = codec.PNG
	JPEG = codec.JPEG
	GIF  = codec.GIF
	WebP = codec.WebP
	BMP  = codec.BMP
	TIFF = codec.TIFF
	ZPix = codec.ZPix
)

// Jobs.
type (
	Request      = scheduler.Request
	Result       = scheduler.Result
	Handle       = scheduler.Handle
	JobState     = scheduler.State
	Stats        = scheduler.Stats
	OrientPolicy = scheduler.OrientPolicy
	ShutdownMode = scheduler.ShutdownMode
)

const (
	Queued       = scheduler.Queued
	Decoding     = scheduler.Decoding
	Transforming = scheduler.Transforming
	Encoding     = scheduler.Encoding
	Completed    = scheduler.Completed
	Failed       = scheduler.Failed
	Cancelled    = scheduler.Cancelled

	OrientDefault  = scheduler.OrientDefault
	OrientAuto     = scheduler.OrientAuto
	OrientPreserve = scheduler.OrientPreserve

	ShutdownDrain  = scheduler.ShutdownDrain
	ShutdownCancel = scheduler.ShutdownCancel
)

// Pipelines and operations.
type (
	Pipeline  = imaging.Pipeline
	Operation = imaging.Operation
	Kernel    = imaging.Kernel

	Resize     = imaging.Resize
	Crop       = imaging.Crop
	Region     = imaging.Region
	Rotate     = imaging.Rotate
	Flip       = imaging.Flip
	AutoOrient = imaging.AutoOrient
	Convert    = imaging.Convert
	Tint       = imaging.Tint
	Adjust     = imaging.Adjust
	Invert     = imaging.Invert
	Convolve   = imaging.Convolve
	Blur       = imaging.Blur
	BoxBlur    = imaging.BoxBlur
	Sharpen    = imaging.Sharpen
	Median     = imaging.Median
	EdgeDetect = imaging.EdgeDetect
	Grid       = imaging.Grid
	Composite  = imaging.Composite
)

// Resampling kernels.
const (
	Nearest  = imaging.Nearest
	Bilinear = imaging.Bilinear
	Bicubic  = imaging.Bicubic
	Lanczos  = imaging.Lanczos
)

// NewPipeline returns a pipeline running ops in order.
func NewPipeline(ops ...Operation) *Pipeline { return imaging.NewPipeline(ops...) }

// ParsePipeline builds a pipeline from its JSON description, an array of
// {"op": name, ...parameters} objects.
func ParsePipeline(data []byte) (*Pipeline, error) { return imaging.ParsePipeline(data) }

// NewComposite returns an operation pasting overlay at (x, y). It keeps a
// share of overlay until closed, directly or through Pipeline.Close.
func NewComposite(overlay *PixelBuffer, x, y int) *Composite {
	return imaging.NewComposite(overlay, x, y)
}

// CropRect is a convenience for Crop{Rect: image.Rect(x0, y0, x1, y1)}.
func CropRect(x0, y0, x1, y1 int) Crop {
	return Crop{Rect: image.Rect(x0, y0, x1, y1)}
}

// Errors. Match them with errors.Is; class errors match any code of their
// class.
type Error = fault.Error

var (
	ErrDecode    = fault.ErrDecode
	ErrTransform = fault.ErrTransform
	ErrEncode    = fault.ErrEncode
	ErrResource  = fault.ErrResource
	ErrCancelled = fault.ErrCancelled

	ErrUnsupportedFormat = fault.ErrDecodeUnsupported
	ErrCorruptData       = fault.ErrCorruptData
	ErrTruncated         = fault.ErrTruncated
	ErrInvalidParameters = fault.ErrInvalidParameters
	ErrOutOfBounds       = fault.ErrOutOfBounds
	ErrEncodeUnsupported = fault.ErrEncodeUnsupported
	ErrEncodingFailure   = fault.ErrEncodingFailure
	ErrOutOfMemory       = fault.ErrOutOfMemory
	ErrPoolExhausted     = fault.ErrPoolExhausted

	ErrWouldBlock = fault.ErrWouldBlock
	ErrClosed     = fault.ErrClosed
)
