package pixel

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ironsheep/imgengine/internal/fault"
)

// PoolConfig bounds a Pool.
type PoolConfig struct {
	// Capacity is the maximum number of released buffers kept for reuse.
	// Buffers released while the pool is full are left to the GC.
	Capacity int

	// MaxBufferBytes rejects single frames larger than this many bytes with
	// ResourceError(OutOfMemory). Zero means no limit.
	MaxBufferBytes int64

	// MaxOutstanding limits how many buffers may be acquired and not yet
	// released at once. Zero means no limit.
	MaxOutstanding int
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Pooled      int    `json:"pooled"`
	PeakPooled  int    `json:"peak_pooled"`
	Outstanding int    `json:"outstanding"`
	Allocated   uint64 `json:"allocated"`
	Reused      uint64 `json:"reused"`
	Discarded   uint64 `json:"discarded"`
}

// Pool recycles pixel memory keyed by frame size.
//
// Pool is safe for concurrent use. The free lists are the only mutable state
// and are guarded by a mutex; the optional outstanding-buffer limit is a
// weighted semaphore so waiters can honor context cancellation.
type Pool struct {
	cfg   PoolConfig
	slots *semaphore.Weighted

	mu          sync.Mutex
	free        map[int][][]byte
	pooled      int
	peak        int
	outstanding int
	allocated   uint64
	reused      uint64
	discarded   uint64
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig) *Pool {
	p := &Pool{
		cfg:  cfg,
		free: make(map[int][][]byte),
	}
	if cfg.MaxOutstanding > 0 {
		p.slots = semaphore.NewWeighted(int64(cfg.MaxOutstanding))
	}
	return p
}

// Acquire returns a zeroed buffer without waiting. When the outstanding limit
// is reached it fails with ResourceError(PoolExhausted).
func (p *Pool) Acquire(width, height int, f Format) (*Buffer, error) {
	return p.acquire(context.Background(), false, width, height, f)
}

// AcquireContext is Acquire but waits for a free outstanding slot until ctx
// is done.
func (p *Pool) AcquireContext(ctx context.Context, width, height int, f Format) (*Buffer, error) {
	return p.acquire(ctx, true, width, height, f)
}

func (p *Pool) acquire(ctx context.Context, wait bool, width, height int, f Format) (*Buffer, error) {
	l, err := NewLayout(width, height, f)
	if err != nil {
		return nil, err
	}
	size := l.FrameSize()
	if p.cfg.MaxBufferBytes > 0 && int64(size) > p.cfg.MaxBufferBytes {
		return nil, fault.Resourcef(fault.OutOfMemory, "pool", "%s needs %d bytes, limit is %d", l, size, p.cfg.MaxBufferBytes)
	}

	if p.slots != nil {
		if wait {
			if err := p.slots.Acquire(ctx, 1); err != nil {
				return nil, fault.Cancelled("pool", err)
			}
		} else if !p.slots.TryAcquire(1) {
			return nil, fault.Resourcef(fault.PoolExhausted, "pool", "%d buffers outstanding", p.cfg.MaxOutstanding)
		}
	}

	p.mu.Lock()
	var pix []byte
	if list := p.free[size]; len(list) > 0 {
		pix = list[len(list)-1]
		p.free[size] = list[:len(list)-1]
		p.pooled--
		p.reused++
	} else {
		p.allocated++
	}
	p.outstanding++
	p.mu.Unlock()

	if pix == nil {
		pix = make([]byte, size)
	} else {
		clear(pix)
	}
	return newBuffer(l, pix, p), nil
}

// Wait blocks until an outstanding slot is free or ctx is done. It does not
// take the slot, so a following Acquire may still fail if another goroutine
// wins it. Callers wait here only while they hold no buffers.
func (p *Pool) Wait(ctx context.Context) error {
	if p.slots == nil {
		return nil
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return fault.Cancelled("pool", err)
	}
	p.slots.Release(1)
	return nil
}

// put takes back the memory of a fully released buffer.
func (p *Pool) put(pix []byte) {
	p.mu.Lock()
	p.outstanding--
	if p.pooled >= p.cfg.Capacity {
		p.discarded++
	} else {
		p.free[len(pix)] = append(p.free[len(pix)], pix)
		p.pooled++
		if p.pooled > p.peak {
			p.peak = p.pooled
		}
	}
	p.mu.Unlock()

	if p.slots != nil {
		p.slots.Release(1)
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Pooled:      p.pooled,
		PeakPooled:  p.peak,
		Outstanding: p.outstanding,
		Allocated:   p.allocated,
		Reused:      p.reused,
		Discarded:   p.discarded,
	}
}

// Capacity returns the configured free-list capacity.
func (p *Pool) Capacity() int { return p.cfg.Capacity }

// Drain drops every pooled buffer. Outstanding buffers are unaffected and
// still return to the (now empty) free lists when released.
func (p *Pool) Drain() {
	p.mu.Lock()
	p.free = make(map[int][][]byte)
	p.pooled = 0
	p.mu.Unlock()
}
