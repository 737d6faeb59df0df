// Package scheduler runs image jobs on a fixed pool of workers.
//
// A job is the full decode, transform, encode sequence for one input. Each
// worker takes one job at a time and runs all of its stages before taking the
// next, so stages of different jobs never interleave on a worker.
//
// # Backpressure
//
// Jobs wait in a bounded priority queue. Submit blocks while the queue is
// full; TrySubmit returns ResourceError(PoolExhausted) wrapping
// fault.ErrWouldBlock instead.
//
// When the buffer pool caps outstanding buffers, a worker waits for a free
// slot only before decoding, while it holds nothing. Allocations later in a
// job do not wait; at the cap the job fails with ResourceError(PoolExhausted).
//
// # Cancellation
//
// Cancellation is cooperative. A job still in the queue is removed and
// reported Cancelled without decoding anything. A running job has its
// context cancelled; the worker notices at the next stage boundary or
// between pipeline steps, releases the buffers it holds and reports
// Cancelled.
//
// # Failure Isolation
//
// A stage that fails or panics ends only its own job. Panics are reported as
// that job's error, except invariant violations from internal/fault, which
// are re-raised.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/imgengine/internal/codec"
	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/imaging"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// DefaultJobTimeout bounds a job's processing time unless configured
// otherwise.
const DefaultJobTimeout = 30 * time.Second

// Config sizes a Scheduler.
type Config struct {
	// Workers is the number of concurrent jobs. Zero means GOMAXPROCS.
	Workers int

	// QueueCapacity is the number of jobs that may wait for a worker.
	// Zero means four per worker.
	QueueCapacity int

	// JobTimeout bounds processing time per job. Zero means
	// DefaultJobTimeout; negative disables the limit.
	JobTimeout time.Duration

	// AutoOrient applies embedded orientation for requests using
	// OrientDefault.
	AutoOrient bool

	Limits codec.Limits

	// Logger receives failure reports and, with Debug, stage transitions.
	// Nil uses the standard logger.
	Logger *log.Logger
	Debug  bool
}

// ShutdownMode selects what happens to outstanding jobs on Shutdown.
type ShutdownMode uint8

const (
	// ShutdownDrain lets queued and running jobs finish.
	ShutdownDrain ShutdownMode = iota
	// ShutdownCancel cancels queued and running jobs.
	ShutdownCancel
)

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Queued    int    `json:"queued"`
	Running   int    `json:"running"`
}

// Scheduler owns the job queue and the workers draining it.
type Scheduler struct {
	cfg    Config
	reg    *codec.Registry
	pool   *pixel.Pool
	logger *log.Logger

	queue   *jobQueue
	workers errgroup.Group

	// base parents every running job's context; Shutdown cancels it.
	base context.Context
	stop context.CancelFunc

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	running   atomic.Int64
}

// New starts a scheduler with cfg.Workers workers.
//
// Parameters:
//   - cfg: Sizing and policy. Zero values select defaults.
//   - reg: Codecs used to decode inputs and encode outputs.
//   - pool: Source of every buffer the jobs allocate. Nil allocates
//     unpooled memory.
//
// Returns:
//   - *Scheduler: A running scheduler. Call Shutdown to stop the workers.
func New(cfg Config, reg *codec.Registry, pool *pixel.Pool) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 4 * cfg.Workers
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Scheduler{
		cfg:    cfg,
		reg:    reg,
		pool:   pool,
		logger: logger,
		queue:  newJobQueue(cfg.QueueCapacity),
	}
	s.base, s.stop = context.WithCancel(context.Background())

	for i := 0; i < cfg.Workers; i++ {
		s.workers.Go(s.work)
	}
	s.debugf("started %d workers, queue capacity %d", cfg.Workers, cfg.QueueCapacity)
	return s
}

// Submit queues req, waiting for a free queue slot until ctx ends.
//
// Returns:
//   - *Handle: The job's handle.
//   - error: An invalid request fails immediately with the matching engine
//     error; ctx ending first gives a Cancelled error; fault.ErrClosed after
//     Shutdown.
func (s *Scheduler) Submit(ctx context.Context, req Request) (*Handle, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.queue.reserve(ctx); err != nil {
		return nil, err
	}
	return s.enqueue(req)
}

// TrySubmit queues req only if a slot is free right now.
func (s *Scheduler) TrySubmit(req Request) (*Handle, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if !s.queue.tryReserve() {
		return nil, fault.Resourcef(fault.PoolExhausted, "submit", "queue full (%d jobs): %w", s.cfg.QueueCapacity, fault.ErrWouldBlock)
	}
	return s.enqueue(req)
}

// check rejects requests that could never succeed.
func (s *Scheduler) check(req Request) error {
	if s.queue.isClosed() {
		return fault.ErrClosed
	}
	switch {
	case req.Data == nil && req.Buffer == nil:
		return fault.Transformf(fault.InvalidParameters, "submit", "request has no input")
	case req.Data != nil && req.Buffer != nil:
		return fault.Transformf(fault.InvalidParameters, "submit", "request has both data and buffer input")
	case req.Buffer != nil && req.Buffer.Released():
		return fault.Transformf(fault.InvalidParameters, "submit", "input buffer already released")
	}
	if req.Format != "" && !s.reg.CanEncode(req.Format) {
		return fault.Encodef(fault.UnsupportedFormat, "submit", "no encoder for %q", req.Format)
	}
	return nil
}

// enqueue pushes a job into an already reserved slot.
func (s *Scheduler) enqueue(req Request) (*Handle, error) {
	if req.Buffer != nil {
		req.Buffer = req.Buffer.Share()
	}
	j := newJob(req)
	if err := s.queue.push(j); err != nil {
		if req.Buffer != nil {
			req.Buffer.Release()
		}
		return nil, err
	}
	s.submitted.Add(1)
	s.debugf("job %s queued (priority %d)", j.id, req.Priority)
	return &Handle{j: j}, nil
}

// Cancel asks h's job to stop. It reports false if the job had already
// finished.
func (s *Scheduler) Cancel(h *Handle) bool {
	j := h.j
	if s.queue.remove(j) {
		s.finishUnstarted(j, context.Canceled)
		return true
	}
	return j.requestCancel()
}

// Shutdown stops accepting jobs and waits for the workers to exit.
//
// With ShutdownDrain, outstanding jobs run to completion; if ctx ends first
// the remaining jobs are cancelled and ctx.Err() is returned once the
// workers have exited. With ShutdownCancel, outstanding jobs are cancelled
// right away. Calling Shutdown again waits for the same workers.
func (s *Scheduler) Shutdown(ctx context.Context, mode ShutdownMode) error {
	s.queue.close()
	defer s.stop()
	if mode == ShutdownCancel {
		s.cancelAll()
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.debugf("shut down")
		return nil
	case <-ctx.Done():
		s.cancelAll()
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) cancelAll() {
	for _, j := range s.queue.removeAll() {
		s.finishUnstarted(j, context.Canceled)
	}
	s.stop()
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Cancelled: s.cancelled.Load(),
		Queued:    s.queue.size(),
		Running:   int(s.running.Load()),
	}
}

func (s *Scheduler) work() error {
	for {
		j := s.queue.pop()
		if j == nil {
			return nil
		}
		s.running.Add(1)
		s.run(j)
		s.running.Add(-1)
	}
}

// jobContext derives the running context for j. It returns nil if j was
// cancelled between leaving the queue and starting.
func (s *Scheduler) jobContext(j *job) (context.Context, context.CancelFunc) {
	timeout := s.cfg.JobTimeout
	if j.req.Timeout > 0 {
		timeout = j.req.Timeout
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(s.base, timeout)
	} else {
		ctx, cancel = context.WithCancel(s.base)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelAsked {
		cancel()
		return nil, nil
	}
	j.cancel = cancel
	return ctx, cancel
}

func (s *Scheduler) run(j *job) {
	ctx, cancel := s.jobContext(j)
	if ctx == nil {
		s.finishUnstarted(j, context.Canceled)
		return
	}
	defer cancel()

	start := time.Now()
	res := s.execute(ctx, j)
	res.Elapsed = time.Since(start)
	s.finish(j, res)
}

// execute runs the stages of j in order. Every buffer it acquires is either
// released or handed over in the result.
func (s *Scheduler) execute(ctx context.Context, j *job) Result {
	req := j.req
	res := Result{Format: req.Format}

	var buf *pixel.Buffer
	defer func() {
		if buf != nil {
			buf.Release()
		}
	}()

	// The job owns the share taken at submission from here on.
	if req.Buffer != nil {
		buf = req.Buffer
		j.req.Buffer = nil
	}

	err := s.stage(ctx, j, Decoding, func() error {
		if buf != nil {
			res.Descriptor = codec.Descriptor{
				Width:       buf.Width,
				Height:      buf.Height,
				PixelFormat: buf.Format,
				Orientation: buf.Orientation,
			}
			return nil
		}
		// No buffers are held yet; later allocations never wait.
		if s.pool != nil {
			if err := s.pool.Wait(ctx); err != nil {
				return err
			}
		}
		var err error
		buf, res.Descriptor, err = s.reg.Decode(ctx, req.Data, s.pool, s.cfg.Limits)
		return err
	})
	if err != nil {
		return s.failure(res, err)
	}

	err = s.stage(ctx, j, Transforming, func() error {
		p := s.pipelineFor(req, buf)
		if p == nil {
			return nil
		}
		out, err := p.Run(ctx, buf, s.pool)
		if err != nil {
			return err
		}
		if out != buf {
			buf.Release()
			buf = out
		}
		return nil
	})
	if err != nil {
		return s.failure(res, err)
	}

	res.Width, res.Height, res.PixelFormat = buf.Width, buf.Height, buf.Format

	err = s.stage(ctx, j, Encoding, func() error {
		if req.Format == "" {
			return nil
		}
		data, err := s.reg.Encode(buf, req.Format, req.Encode)
		if err != nil {
			return err
		}
		res.Data = data
		return nil
	})
	if err != nil {
		return s.failure(res, err)
	}

	res.State = Completed
	if req.Format == "" {
		res.Buffer, buf = buf, nil
	}
	return res
}

// pipelineFor returns the steps to run on buf, with orientation correction
// in front when the policy asks for it.
func (s *Scheduler) pipelineFor(req Request, buf *pixel.Buffer) *imaging.Pipeline {
	orient := req.Orient == OrientAuto || (req.Orient == OrientDefault && s.cfg.AutoOrient)
	orient = orient && buf.Orientation.NeedsCorrection()

	switch {
	case req.Pipeline == nil && !orient:
		return nil
	case req.Pipeline == nil:
		return imaging.NewPipeline(imaging.AutoOrient{})
	case orient:
		return req.Pipeline.Prepend(imaging.AutoOrient{})
	default:
		return req.Pipeline
	}
}

// stage runs fn as stage st of j. A cancelled context stops the job before
// the stage starts. A panic in fn becomes the job's error unless it is an
// invariant violation.
func (s *Scheduler) stage(ctx context.Context, j *job, st State, fn func() error) (err error) {
	if err := ctx.Err(); err != nil {
		return fault.Cancelled(st.String(), err)
	}
	j.setState(st)
	s.debugf("job %s %s", j.id, st)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if fault.IsInvariant(r) {
			panic(r)
		}
		s.logger.Printf("job %s: panic while %s: %v", j.id, st, r)
		err = panicError(st, r)
	}()
	return fn()
}

func panicError(st State, r any) error {
	switch st {
	case Decoding:
		return fault.Decodef(fault.CorruptData, "decode", "panic: %v", r)
	case Encoding:
		return fault.Encodef(fault.EncodingFailure, "encode", "panic: %v", r)
	default:
		return fault.Transformf(fault.InvalidParameters, "transform", "panic: %v", r)
	}
}

func (s *Scheduler) failure(res Result, err error) Result {
	res.State = Failed
	if errors.Is(err, fault.ErrCancelled) {
		res.State = Cancelled
	}
	res.Err = err
	return res
}

// finishUnstarted ends a job that never reached a worker stage.
func (s *Scheduler) finishUnstarted(j *job, cause error) {
	if j.req.Buffer != nil {
		j.req.Buffer.Release()
		j.req.Buffer = nil
	}
	s.finish(j, Result{State: Cancelled, Format: j.req.Format, Err: fault.Cancelled("queued", cause)})
}

// finish delivers the terminal result. Only the first call has an effect.
func (s *Scheduler) finish(j *job, res Result) {
	j.once.Do(func() {
		res.JobID = j.id
		j.res = res
		j.setState(res.State)

		switch res.State {
		case Completed:
			s.completed.Add(1)
		case Cancelled:
			s.cancelled.Add(1)
		default:
			s.failed.Add(1)
		}
		if res.Err != nil && res.State == Failed {
			s.logger.Printf("job %s failed: %v", j.id, res.Err)
		} else {
			s.debugf("job %s %s in %v", j.id, res.State, res.Elapsed)
		}

		if j.req.OnComplete != nil {
			s.notify(j, res)
		}
		close(j.done)
	})
}

// notify runs the completion callback, containing its panics.
func (s *Scheduler) notify(j *job, res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("job %s: completion callback panicked: %v", j.id, r)
		}
	}()
	j.req.OnComplete(res)
}

func (s *Scheduler) debugf(format string, args ...any) {
	if s.cfg.Debug {
		s.logger.Output(2, fmt.Sprintf("DEBUG: "+format, args...))
	}
}
