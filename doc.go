// Package imgengine is an in-memory image processing engine.
//
// Callers hand the engine encoded bytes (or an already decoded PixelBuffer),
// an ordered Pipeline of operations and a target format. A worker detects
// the input format, decodes it into a pooled buffer, runs the pipeline and
// encodes the result. Nothing touches the file system or the network.
//
// # Jobs
//
// Submit queues a job and returns a Handle; Await, Handle.Done or
// Request.OnComplete deliver its single terminal Result. The queue is
// bounded: Submit blocks while it is full and TrySubmit returns
// ErrWouldBlock. Cancel stops a job cooperatively; a job cancelled while
// still queued is never decoded.
//
// # Formats
//
// png, jpeg, gif, bmp and tiff decode and encode; webp decodes only. zpix is
// a lossless zstd-compressed raw frame that round-trips any PixelFormat,
// including YUV420, byte for byte.
//
// # Errors
//
// Every failure is an *Error with a class (decode, transform, encode,
// resource, cancelled) and a code. Compare with errors.Is against the
// exported sentinels:
//
//	res, err := eng.Process(ctx, req)
//	switch {
//	case errors.Is(err, imgengine.ErrCorruptData):
//	case errors.Is(err, imgengine.ErrOutOfBounds):
//	case errors.Is(err, imgengine.ErrCancelled):
//	}
//
// # Configuration
//
// Config can be built in code, parsed from YAML or JSON with ParseConfig and
// overridden from IMGENGINE_* environment variables with ApplyEnv. Set
// IMGENGINE_LOG_LEVEL=debug to log every job stage.
package imgengine
