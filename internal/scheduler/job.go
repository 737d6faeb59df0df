package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/imgengine/internal/codec"
	"github.com/ironsheep/imgengine/internal/imaging"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// State is a job's position in its lifecycle.
type State int32

const (
	Queued State = iota
	Decoding
	Transforming
	Encoding
	Completed
	Failed
	Cancelled
)

var stateNames = [...]string{
	Queued:       "queued",
	Decoding:     "decoding",
	Transforming: "transforming",
	Encoding:     "encoding",
	Completed:    "completed",
	Failed:       "failed",
	Cancelled:    "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s >= Completed }

// OrientPolicy controls whether the embedded orientation is applied before
// the caller's pipeline.
type OrientPolicy uint8

const (
	// OrientDefault follows Config.AutoOrient.
	OrientDefault OrientPolicy = iota
	// OrientAuto always applies the embedded orientation.
	OrientAuto
	// OrientPreserve leaves pixels as stored; the orientation tag travels
	// with the buffer.
	OrientPreserve
)

// Request describes one decode, transform, encode job.
type Request struct {
	// Data is the encoded input. Exactly one of Data and Buffer is set.
	Data []byte

	// Buffer is an already decoded input. The scheduler takes its own share
	// at submission, so the caller may release Buffer right after Submit
	// returns. The caller's pixels are never modified.
	Buffer *pixel.Buffer

	// Pipeline is applied after decoding. Nil means no transforms. The
	// scheduler does not close it.
	Pipeline *imaging.Pipeline

	// Format is the codec tag to encode to. Empty returns the final buffer
	// in Result.Buffer instead.
	Format string

	Encode codec.EncodeOptions

	// Priority orders the queue: higher runs first, equal priorities run in
	// submission order.
	Priority int

	// Timeout overrides Config.JobTimeout when positive.
	Timeout time.Duration

	Orient OrientPolicy

	// OnComplete, when set, is called once with the terminal result from the
	// goroutine that finished the job, before Done is closed. It must not
	// wait on the job's own handle.
	OnComplete func(Result)
}

// Result is the terminal outcome of a job.
type Result struct {
	JobID uuid.UUID
	State State

	// Data holds the encoded output when Request.Format was set.
	Data []byte

	// Buffer holds the final pixels when Request.Format was empty. The
	// receiver owns it and must release it.
	Buffer *pixel.Buffer

	// Descriptor describes the input as decoded.
	Descriptor codec.Descriptor

	// Width, Height and PixelFormat describe the output.
	Width       int
	Height      int
	PixelFormat pixel.Format

	// Format is the output codec tag, empty for buffer results.
	Format string

	// Elapsed is the time spent processing, excluding time in the queue.
	Elapsed time.Duration

	Err error
}

// job is the scheduler-owned state behind a Handle.
type job struct {
	id  uuid.UUID
	req Request
	seq uint64

	// index is the heap position, -1 once the job has left the queue.
	// Guarded by the queue mutex.
	index int

	state atomic.Int32
	done  chan struct{}
	once  sync.Once
	res   Result

	mu          sync.Mutex
	cancelAsked bool
	cancel      context.CancelFunc
}

func newJob(req Request) *job {
	return &job{
		id:    uuid.New(),
		req:   req,
		index: -1,
		done:  make(chan struct{}),
	}
}

func (j *job) setState(s State) { j.state.Store(int32(s)) }

// requestCancel records a cancellation and stops the running context, if
// any. It reports false when the job already finished.
func (j *job) requestCancel() bool {
	if State(j.state.Load()).Terminal() {
		return false
	}
	j.mu.Lock()
	j.cancelAsked = true
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// Handle is the caller's reference to a submitted job.
type Handle struct {
	j *job
}

// ID returns the job identifier.
func (h *Handle) ID() uuid.UUID { return h.j.id }

// State returns the current state.
func (h *Handle) State() State { return State(h.j.state.Load()) }

// Done is closed when the job reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.j.done }

// Await blocks until the job finishes or ctx is done.
//
// Returns:
//   - Result: The terminal result. When the job finished, the error returned
//     is Result.Err.
//   - error: ctx.Err() if ctx ended first. Giving up on waiting does not
//     cancel the job.
func (h *Handle) Await(ctx context.Context) (Result, error) {
	select {
	case <-h.j.done:
		return h.j.res, h.j.res.Err
	case <-ctx.Done():
		return Result{JobID: h.j.id, State: h.State()}, ctx.Err()
	}
}
