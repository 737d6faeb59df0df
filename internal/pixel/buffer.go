package pixel

import (
	"context"
	"sync/atomic"

	"github.com/ironsheep/imgengine/internal/fault"
)

// shared is the state common to every handle onto the same pixel memory.
type shared struct {
	refs atomic.Int32
	pool *Pool
}

// Buffer is a handle onto owned, contiguous pixel memory plus its layout.
//
// A Buffer is either exclusively owned (one handle) or shared between several
// handles created with Share. Shared memory is treated as read-only: code that
// wants to write calls Unique first, which copies when other handles exist.
//
// # Lifecycle
//
// Every handle must be released exactly once. When the last handle is
// released the memory goes back to the Pool it came from (or to the garbage
// collector for unpooled buffers). Releasing a handle twice aborts with an
// invariant violation.
//
// # Layout
//
// Packed formats hold Height rows of Stride bytes. YUV420 holds the luma plane
// (Stride x Height) followed by the Cb and Cr planes, each
// ChromaStride x ChromaHeight bytes.
type Buffer struct {
	Width  int
	Height int
	Stride int
	Format Format
	// Orientation is the display orientation of the pixels, carried from
	// the decoder until a transform applies it.
	Orientation Orientation
	Pix         []byte

	state    *shared
	released atomic.Bool
}

// New allocates an unpooled buffer.
func New(width, height int, f Format) (*Buffer, error) {
	l, err := NewLayout(width, height, f)
	if err != nil {
		return nil, err
	}
	return newBuffer(l, make([]byte, l.FrameSize()), nil), nil
}

func newBuffer(l Layout, pix []byte, p *Pool) *Buffer {
	b := &Buffer{
		Width:  l.Width,
		Height: l.Height,
		Stride: l.Stride,
		Format: l.Format,
		Pix:    pix,
		state:  &shared{pool: p},
	}
	b.state.refs.Store(1)
	return b
}

// Layout returns the buffer geometry.
func (b *Buffer) Layout() Layout {
	return Layout{Width: b.Width, Height: b.Height, Stride: b.Stride, Format: b.Format}
}

// CheckInvariant aborts if the memory length disagrees with the layout.
func (b *Buffer) CheckInvariant() {
	l := b.Layout()
	if err := l.Validate(); err != nil {
		fault.Invariant("buffer %s: %v", l, err)
	}
	if len(b.Pix) != l.FrameSize() {
		fault.Invariant("buffer %s: memory length %d != frame size %d", l, len(b.Pix), l.FrameSize())
	}
}

// Share returns a new handle onto the same memory.
func (b *Buffer) Share() *Buffer {
	b.mustBeLive("share")
	b.state.refs.Add(1)
	return &Buffer{
		Width:       b.Width,
		Height:      b.Height,
		Stride:      b.Stride,
		Format:      b.Format,
		Orientation: b.Orientation,
		Pix:         b.Pix,
		state:       b.state,
	}
}

// Refs is the number of live handles onto this memory.
func (b *Buffer) Refs() int { return int(b.state.refs.Load()) }

// Exclusive reports whether this handle is the sole owner of its memory.
func (b *Buffer) Exclusive() bool { return b.Refs() == 1 && !b.released.Load() }

// Released reports whether this handle has been released.
func (b *Buffer) Released() bool { return b.released.Load() }

// Unique returns a buffer that may be written: b itself when exclusive,
// otherwise a private copy acquired from p. b stays valid either way.
func (b *Buffer) Unique(ctx context.Context, p *Pool) (*Buffer, error) {
	b.mustBeLive("unique")
	if b.Exclusive() {
		return b, nil
	}
	return b.Clone(ctx, p)
}

// Clone copies the visible pixels into a new buffer from p. A nil p uses the
// pool b came from, and unpooled memory if there is none.
func (b *Buffer) Clone(ctx context.Context, p *Pool) (*Buffer, error) {
	b.mustBeLive("clone")
	if p == nil {
		p = b.state.pool
	}
	dst, err := Alloc(ctx, p, b.Width, b.Height, b.Format)
	if err != nil {
		return nil, err
	}
	dst.Orientation = b.Orientation
	copyPixels(dst, b)
	return dst, nil
}

// Release drops this handle. The last release returns memory to the pool.
func (b *Buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		fault.Invariant("buffer %s released twice", b.Layout())
	}
	pix := b.Pix
	b.Pix = nil
	if b.state.refs.Add(-1) == 0 && b.state.pool != nil {
		b.state.pool.put(pix)
	}
}

// ReleaseOnPanic releases *b when the deferring function panics, then
// re-raises the panic. A nil or already released *b is left alone.
//
//	buf, err := pixel.Alloc(ctx, p, w, h, f)
//	if err != nil {
//	    return nil, err
//	}
//	defer pixel.ReleaseOnPanic(&buf)
func ReleaseOnPanic(b **Buffer) {
	r := recover()
	if r == nil {
		return
	}
	if *b != nil && !(*b).Released() {
		(*b).Release()
	}
	panic(r)
}

func (b *Buffer) mustBeLive(op string) {
	if b.released.Load() {
		fault.Invariant("%s on released buffer", op)
	}
}

// Row returns the visible bytes of packed row y (the luma row for YUV420).
func (b *Buffer) Row(y int) []byte {
	off := y * b.Stride
	return b.Pix[off : off+b.Width*b.Format.BytesPerPixel()]
}

// Planes returns the Y, Cb and Cr planes of a YUV420 buffer.
func (b *Buffer) Planes() (y, cb, cr []byte) {
	l := b.Layout()
	ySize := l.Stride * l.Height
	cSize := l.ChromaStride() * l.ChromaHeight()
	return b.Pix[:ySize], b.Pix[ySize : ySize+cSize], b.Pix[ySize+cSize : ySize+2*cSize]
}

// copyPixels copies visible rows between buffers of identical layout.
func copyPixels(dst, src *Buffer) {
	for y := 0; y < src.Height; y++ {
		copy(dst.Row(y), src.Row(y))
	}
	if src.Format.Planar() {
		l := src.Layout()
		_, scb, scr := src.Planes()
		_, dcb, dcr := dst.Planes()
		cs, cw := l.ChromaStride(), l.ChromaWidth()
		for y := 0; y < l.ChromaHeight(); y++ {
			copy(dcb[y*cs:y*cs+cw], scb[y*cs:y*cs+cw])
			copy(dcr[y*cs:y*cs+cw], scr[y*cs:y*cs+cw])
		}
	}
}

// Equal reports whether two buffers hold the same format, size and visible
// pixels. Stride padding is ignored.
func Equal(a, b *Buffer) bool {
	if a.Width != b.Width || a.Height != b.Height || a.Format != b.Format {
		return false
	}
	for y := 0; y < a.Height; y++ {
		if string(a.Row(y)) != string(b.Row(y)) {
			return false
		}
	}
	if a.Format.Planar() {
		l := a.Layout()
		_, acb, acr := a.Planes()
		_, bcb, bcr := b.Planes()
		cs, cw := l.ChromaStride(), l.ChromaWidth()
		for y := 0; y < l.ChromaHeight(); y++ {
			if string(acb[y*cs:y*cs+cw]) != string(bcb[y*cs:y*cs+cw]) ||
				string(acr[y*cs:y*cs+cw]) != string(bcr[y*cs:y*cs+cw]) {
				return false
			}
		}
	}
	return true
}
