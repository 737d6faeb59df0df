// Package imaging implements the transform pipeline: operations over
// pixel.Buffer values and the Pipeline that chains them.
//
// Every operation implements Operation. Geometric operations (Resize, Crop,
// Region, Rotate, Flip, AutoOrient), color operations (Convert, Tint,
// Adjust, Invert), filters (Convolve, Blur, BoxBlur, Sharpen, Median,
// EdgeDetect) and drawing (Composite, Grid) can be mixed freely in one
// Pipeline.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For rectangles, Min is inclusive (top-left) and Max is exclusive
//     (bottom-right)
//
// # Buffer Ownership
//
// An operation never releases its input. It either returns the input,
// modified in place only when the caller holds the sole handle, or a new
// buffer from the pool that the caller owns. Shared buffers are never
// written; see pixel.Buffer.Unique.
//
// # Formats
//
// Operations built on library filters read the buffer through an
// image.Image view and write the result back in the input's pixel format.
// Resize, Crop and the orientation operations work on raw rows, so Crop and
// the orientation operations also handle planar YUV420 directly. EdgeDetect
// always produces Gray8.
//
// # Error Handling
//
// Parameter problems are reported by Validate as TransformError values
// (InvalidParameters or OutOfBounds) before any pixel is touched. A
// cancelled context surfaces as a Cancelled error.
//
// # Thread Safety
//
// Operations are immutable values (Composite guards its overlay with a
// mutex), so one Pipeline can run concurrently on different buffers.
package imaging
