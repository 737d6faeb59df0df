package imaging

import (
	"context"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/ironsheep/imgengine/internal/pixel"
)

// plane is one independently addressed pixel grid of a buffer.
type plane struct {
	pix    []byte
	stride int
	w, h   int
	bpp    int
}

// planesOf splits a buffer into its planes: one for packed formats, Y/Cb/Cr
// for YUV420.
func planesOf(b *pixel.Buffer) []plane {
	if !b.Format.Planar() {
		return []plane{{pix: b.Pix, stride: b.Stride, w: b.Width, h: b.Height, bpp: b.Format.BytesPerPixel()}}
	}
	l := b.Layout()
	y, cb, cr := b.Planes()
	cw, chh, cs := l.ChromaWidth(), l.ChromaHeight(), l.ChromaStride()
	return []plane{
		{pix: y, stride: b.Stride, w: b.Width, h: b.Height, bpp: 1},
		{pix: cb, stride: cs, w: cw, h: chh, bpp: 1},
		{pix: cr, stride: cs, w: cw, h: chh, bpp: 1},
	}
}

// orientPlane writes src transformed by EXIF orientation o into dst, whose
// dimensions must already be swapped for orientations 5-8.
func orientPlane(dst, src plane, o pixel.Orientation) {
	bpp := src.bpp
	w, h := src.w, src.h
	parallel.Line(dst.h, func(start, end int) {
		for dy := start; dy < end; dy++ {
			drow := dst.pix[dy*dst.stride:]
			for dx := 0; dx < dst.w; dx++ {
				var sx, sy int
				switch o {
				case pixel.OrientationFlipH:
					sx, sy = w-1-dx, dy
				case pixel.OrientationRotate180:
					sx, sy = w-1-dx, h-1-dy
				case pixel.OrientationFlipV:
					sx, sy = dx, h-1-dy
				case pixel.OrientationTranspose:
					sx, sy = dy, dx
				case pixel.OrientationRotate270:
					// display = stored rotated 90 degrees clockwise
					sx, sy = dy, h-1-dx
				case pixel.OrientationTransverse:
					sx, sy = w-1-dy, h-1-dx
				case pixel.OrientationRotate90:
					// display = stored rotated 90 degrees counter-clockwise
					sx, sy = w-1-dy, dx
				default:
					sx, sy = dx, dy
				}
				so := sy*src.stride + sx*bpp
				copy(drow[dx*bpp:dx*bpp+bpp], src.pix[so:so+bpp])
			}
		}
	})
}

// flipInPlace mirrors a plane horizontally and/or vertically without
// allocating.
func flipInPlace(p plane, horizontal, vertical bool) {
	bpp := p.bpp
	if horizontal {
		for y := 0; y < p.h; y++ {
			row := p.pix[y*p.stride : y*p.stride+p.w*bpp]
			for l, r := 0, p.w-1; l < r; l, r = l+1, r-1 {
				for i := 0; i < bpp; i++ {
					row[l*bpp+i], row[r*bpp+i] = row[r*bpp+i], row[l*bpp+i]
				}
			}
		}
	}
	if vertical {
		n := p.w * bpp
		tmp := make([]byte, n)
		for t, b := 0, p.h-1; t < b; t, b = t+1, b-1 {
			top := p.pix[t*p.stride : t*p.stride+n]
			bot := p.pix[b*p.stride : b*p.stride+n]
			copy(tmp, top)
			copy(top, bot)
			copy(bot, tmp)
		}
	}
}

// orient applies o to src. Orientations that keep the axes are done in
// place on an exclusive buffer; the rest go to a new buffer.
func orient(ctx context.Context, src *pixel.Buffer, p *pixel.Pool, o pixel.Orientation) (*pixel.Buffer, error) {
	var horizontal, vertical bool
	switch o {
	case pixel.OrientationFlipH:
		horizontal = true
	case pixel.OrientationFlipV:
		vertical = true
	case pixel.OrientationRotate180:
		horizontal, vertical = true, true
	}

	if horizontal || vertical {
		dst, err := src.Unique(ctx, p)
		if err != nil {
			return nil, err
		}
		if dst != src {
			defer pixel.ReleaseOnPanic(&dst)
		}
		for _, pl := range planesOf(dst) {
			flipInPlace(pl, horizontal, vertical)
		}
		return dst, nil
	}

	w, h := src.Width, src.Height
	if o.SwapsAxes() {
		w, h = h, w
	}
	dst, err := pixel.Alloc(ctx, p, w, h, src.Format)
	if err != nil {
		return nil, err
	}
	defer pixel.ReleaseOnPanic(&dst)
	dst.Orientation = src.Orientation
	sp, dp := planesOf(src), planesOf(dst)
	for i := range sp {
		orientPlane(dp[i], sp[i], o)
	}
	return dst, nil
}

// Rotate turns the image clockwise by a multiple of 90 degrees. Negative
// angles rotate counter-clockwise.
type Rotate struct {
	Degrees int
}

func (r Rotate) Name() string { return "rotate" }

func (r Rotate) Validate(l pixel.Layout) error {
	if r.Degrees%90 != 0 {
		return invalidf("rotate", "angle %d is not a multiple of 90", r.Degrees)
	}
	return nil
}

func (r Rotate) normalized() int {
	d := r.Degrees % 360
	if d < 0 {
		d += 360
	}
	return d
}

func (r Rotate) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	switch r.normalized() {
	case 90:
		return orient(ctx, src, p, pixel.OrientationRotate270)
	case 180:
		return orient(ctx, src, p, pixel.OrientationRotate180)
	case 270:
		return orient(ctx, src, p, pixel.OrientationRotate90)
	default:
		return src, nil
	}
}

// Flip mirrors the image. Both flags together equal a 180 degree rotation.
type Flip struct {
	Horizontal bool
	Vertical   bool
}

func (f Flip) Name() string { return "flip" }

func (f Flip) Validate(pixel.Layout) error { return nil }

func (f Flip) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	switch {
	case f.Horizontal && f.Vertical:
		return orient(ctx, src, p, pixel.OrientationRotate180)
	case f.Horizontal:
		return orient(ctx, src, p, pixel.OrientationFlipH)
	case f.Vertical:
		return orient(ctx, src, p, pixel.OrientationFlipV)
	default:
		return src, nil
	}
}

// AutoOrient applies the buffer's EXIF orientation so the pixels are stored
// the way they should be displayed, then marks the result Normal. Buffers
// with no or normal orientation pass through untouched.
type AutoOrient struct{}

func (AutoOrient) Name() string { return "auto-orient" }

func (AutoOrient) Validate(pixel.Layout) error { return nil }

func (AutoOrient) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	if !src.Orientation.NeedsCorrection() {
		return src, nil
	}
	dst, err := orient(ctx, src, p, src.Orientation)
	if err != nil {
		return nil, err
	}
	dst.Orientation = pixel.OrientationNormal
	return dst, nil
}
