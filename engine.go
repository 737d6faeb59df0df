package imgengine

import (
	"context"
	"sync"

	"github.com/ironsheep/imgengine/internal/codec"
	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
	"github.com/ironsheep/imgengine/internal/scheduler"
)

// Version is the engine release.
const Version = "0.3.0"

// Engine decodes, transforms and encodes images on a pool of workers.
//
// An Engine owns its codec registry, buffer pool and scheduler; engines do
// not share state, so several may run in one process. All methods are safe
// for concurrent use.
type Engine struct {
	cfg   Config
	reg   *codec.Registry
	pool  *pixel.Pool
	sched *scheduler.Scheduler

	mu     sync.Mutex
	closed bool
}

// New builds an engine and starts its workers.
//
// Parameters:
//   - cfg: Engine options. Zero Workers, QueueCapacity and JobTimeout select
//     the defaults.
//
// Returns:
//   - *Engine: A running engine. Call Shutdown when done.
//   - error: cfg failed validation.
//
// # Example
//
//	eng, err := imgengine.New(imgengine.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Shutdown(context.Background(), imgengine.ShutdownDrain)
//
//	res, err := eng.Process(ctx, imgengine.Request{
//	    Data:     input,
//	    Pipeline: imgengine.NewPipeline(imgengine.Resize{Width: 320, Height: 240}),
//	    Format:   "jpeg",
//	})
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.Workers == 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = 4 * cfg.Workers
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.DefaultQuality == 0 {
		cfg.DefaultQuality = def.DefaultQuality
	}
	logger := cfg.logger()
	debug := cfg.LogLevel == "debug"

	e := &Engine{
		cfg: cfg,
		reg: codec.Default(),
		pool: pixel.NewPool(pixel.PoolConfig{
			Capacity:       cfg.PoolCapacity,
			MaxBufferBytes: cfg.MaxBufferBytes,
			MaxOutstanding: cfg.MaxOutstandingBuffers,
		}),
	}
	e.sched = scheduler.New(scheduler.Config{
		Workers:       cfg.Workers,
		QueueCapacity: cfg.QueueCapacity,
		JobTimeout:    cfg.JobTimeout,
		AutoOrient:    cfg.AutoOrient,
		Limits:        cfg.limits(),
		Logger:        logger,
		Debug:         debug,
	}, e.reg, e.pool)

	if debug {
		logger.Printf("imgengine %s: %d workers, queue %d, pool %d, formats %v",
			Version, cfg.Workers, cfg.QueueCapacity, cfg.PoolCapacity, e.reg.Formats())
	}
	return e, nil
}

// Submit queues a job, blocking while the queue is full until ctx ends.
//
// The returned handle is used with Await and Cancel. Requests that can never
// succeed (no input, unknown output format) fail here rather than as a job.
func (e *Engine) Submit(ctx context.Context, req Request) (*Handle, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	return e.sched.Submit(ctx, e.prepare(req))
}

// TrySubmit queues a job without waiting. A full queue gives
// ResourceError(PoolExhausted) wrapping ErrWouldBlock.
func (e *Engine) TrySubmit(req Request) (*Handle, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	return e.sched.TrySubmit(e.prepare(req))
}

func (e *Engine) prepare(req Request) Request {
	if req.Encode.Quality == 0 {
		req.Encode.Quality = e.cfg.DefaultQuality
	}
	return req
}

// Cancel asks a job to stop. Queued jobs end immediately without being
// decoded; running jobs stop at their next stage boundary. It reports false
// if the job had already finished.
func (e *Engine) Cancel(h *Handle) bool {
	return e.sched.Cancel(h)
}

// Await waits for h's job to finish. See Handle.Await.
func (e *Engine) Await(ctx context.Context, h *Handle) (Result, error) {
	return h.Await(ctx)
}

// Process submits req and waits for its result. If ctx ends while waiting,
// the job is cancelled.
func (e *Engine) Process(ctx context.Context, req Request) (Result, error) {
	h, err := e.Submit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	res, err := h.Await(ctx)
	if ctx.Err() != nil && !res.State.Terminal() {
		e.Cancel(h)
		<-h.Done()
		return h.Await(context.Background())
	}
	return res, err
}

// Shutdown stops the engine.
//
// Parameters:
//   - ctx: Bounds how long ShutdownDrain waits; when it ends, remaining jobs
//     are cancelled.
//   - mode: ShutdownDrain finishes outstanding jobs, ShutdownCancel cancels
//     them.
//
// Returns:
//   - error: ctx.Err() if draining was cut short, ErrClosed if the engine was
//     already shut down.
//
// Pooled buffers are dropped afterwards. Buffers still held by callers stay
// valid and can be released as usual.
func (e *Engine) Shutdown(ctx context.Context, mode ShutdownMode) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	e.mu.Unlock()

	err := e.sched.Shutdown(ctx, mode)
	e.pool.Drain()
	return err
}

func (e *Engine) live() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// Inspect detects the format of data and reads its header.
func (e *Engine) Inspect(data []byte) (Descriptor, error) {
	return e.reg.Inspect(data)
}

// Info returns the descriptor of data plus its encoded size and display
// dimensions after orientation.
func (e *Engine) Info(data []byte) (*ImageInfo, error) {
	return e.reg.Info(data)
}

// Dimensions returns the stored width and height of data.
func (e *Engine) Dimensions(data []byte) (width, height int, err error) {
	return e.reg.Dimensions(data)
}

// Decode decodes data synchronously into a buffer from the engine's pool.
// The caller must release the buffer. Orientation is not applied; the
// buffer carries it in its Orientation field.
func (e *Engine) Decode(ctx context.Context, data []byte) (*PixelBuffer, Descriptor, error) {
	if err := e.live(); err != nil {
		return nil, Descriptor{}, err
	}
	return e.reg.Decode(ctx, data, e.pool, e.cfg.limits())
}

// Encode serializes buf synchronously.
func (e *Engine) Encode(buf *PixelBuffer, format string, opts EncodeOptions) ([]byte, error) {
	if opts.Quality == 0 {
		opts.Quality = e.cfg.DefaultQuality
	}
	return e.reg.Encode(buf, format, opts)
}

// NewBuffer acquires a zeroed buffer from the engine's pool.
func (e *Engine) NewBuffer(width, height int, format PixelFormat) (*PixelBuffer, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	return e.pool.Acquire(width, height, format)
}

// Formats lists the registered codecs in probe order.
func (e *Engine) Formats() []string {
	return e.reg.Formats()
}

// CanEncode reports whether format can be used as a job's output.
func (e *Engine) CanEncode(format string) bool {
	return e.reg.CanEncode(format)
}

// PoolStats returns the buffer pool counters.
func (e *Engine) PoolStats() PoolStats {
	return e.pool.Stats()
}

// Stats returns the job counters.
func (e *Engine) Stats() Stats {
	return e.sched.Stats()
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// IsRetryable reports whether err is a transient condition (a full queue or
// an exhausted buffer pool) that may succeed if tried again later.
func IsRetryable(err error) bool {
	return fault.CodeOf(err) == fault.PoolExhausted
}
