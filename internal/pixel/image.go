package pixel

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/ironsheep/imgengine/internal/fault"
)

// Image returns an image.Image over the buffer.
//
// RGBA8, Gray8 and YUV420 buffers are wrapped without copying, so the view
// aliases the buffer memory and must not outlive the handle. BGRA8 has no
// standard library equivalent and is returned as a converted *image.NRGBA.
func (b *Buffer) Image() image.Image {
	b.mustBeLive("image")
	rect := image.Rect(0, 0, b.Width, b.Height)
	switch b.Format {
	case RGBA8:
		return &image.NRGBA{Pix: b.Pix, Stride: b.Stride, Rect: rect}
	case Gray8:
		return &image.Gray{Pix: b.Pix, Stride: b.Stride, Rect: rect}
	case YUV420:
		y, cb, cr := b.Planes()
		return &image.YCbCr{
			Y:              y,
			Cb:             cb,
			Cr:             cr,
			YStride:        b.Stride,
			CStride:        b.Layout().ChromaStride(),
			SubsampleRatio: image.YCbCrSubsampleRatio420,
			Rect:           rect,
		}
	case BGRA8:
		out := image.NewNRGBA(rect)
		for y := 0; y < b.Height; y++ {
			s := b.Row(y)
			d := out.Pix[y*out.Stride:]
			for i := 0; i+3 < len(s); i += 4 {
				d[i+0], d[i+1], d[i+2], d[i+3] = s[i+2], s[i+1], s[i+0], s[i+3]
			}
		}
		return out
	default:
		return nil
	}
}

// FromImage acquires a buffer of format f sized like img and copies img into it.
func FromImage(ctx context.Context, p *Pool, img image.Image, f Format) (*Buffer, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	target := f
	if f == YUV420 {
		if ycc, ok := img.(*image.YCbCr); !ok || ycc.SubsampleRatio != image.YCbCrSubsampleRatio420 {
			target = RGBA8
		}
	}

	buf, err := Alloc(ctx, p, w, h, target)
	if err != nil {
		return nil, err
	}
	defer ReleaseOnPanic(&buf)
	if err := buf.CopyFrom(img); err != nil {
		buf.Release()
		return nil, err
	}
	if target == f {
		return buf, nil
	}

	out, err := Alloc(ctx, p, w, h, f)
	if err != nil {
		buf.Release()
		return nil, err
	}
	defer ReleaseOnPanic(&out)
	err = Convert(out, buf)
	buf.Release()
	if err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// Alloc acquires a buffer from p for a stage that may already hold others.
// It never waits for an outstanding slot: at the limit it fails with
// ResourceError(PoolExhausted). A nil pool allocates unpooled memory.
func Alloc(ctx context.Context, p *Pool, w, h int, f Format) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Cancelled("pool", err)
	}
	if p == nil {
		return New(w, h, f)
	}
	return p.Acquire(w, h, f)
}

// CopyFrom overwrites the buffer with img, which must have the same size.
// Formats other than YUV420 accept any image; YUV420 requires a 4:2:0
// *image.YCbCr source.
func (b *Buffer) CopyFrom(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() != b.Width || bounds.Dy() != b.Height {
		return fmt.Errorf("copy: image is %dx%d, buffer is %dx%d", bounds.Dx(), bounds.Dy(), b.Width, b.Height)
	}

	switch b.Format {
	case RGBA8:
		copyToNRGBA(b, img)
	case BGRA8:
		copyToNRGBA(b, img)
		swapRB(b, b)
	case Gray8:
		if src, ok := img.(*image.Gray); ok {
			for y := 0; y < b.Height; y++ {
				off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
				copy(b.Row(y), src.Pix[off:off+b.Width])
			}
			return nil
		}
		dst := &image.Gray{Pix: b.Pix, Stride: b.Stride, Rect: image.Rect(0, 0, b.Width, b.Height)}
		draw.Draw(dst, dst.Rect, img, bounds.Min, draw.Src)
	case YUV420:
		src, ok := img.(*image.YCbCr)
		if !ok || src.SubsampleRatio != image.YCbCrSubsampleRatio420 {
			return fmt.Errorf("copy: yuv420 buffer needs a 4:2:0 YCbCr source, got %T", img)
		}
		l := b.Layout()
		_, cb, cr := b.Planes()
		for y := 0; y < b.Height; y++ {
			off := src.YOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(b.Row(y), src.Y[off:off+b.Width])
		}
		cs, cw := l.ChromaStride(), l.ChromaWidth()
		for y := 0; y < l.ChromaHeight(); y++ {
			off := src.COffset(bounds.Min.X, bounds.Min.Y+2*y)
			copy(cb[y*cs:y*cs+cw], src.Cb[off:off+cw])
			copy(cr[y*cs:y*cs+cw], src.Cr[off:off+cw])
		}
	default:
		return fmt.Errorf("copy: invalid buffer format %s", b.Format)
	}
	return nil
}

// copyToNRGBA fills a 4-byte-per-pixel buffer with non-premultiplied RGBA.
func copyToNRGBA(b *Buffer, img image.Image) {
	bounds := img.Bounds()
	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(b.Row(y), src.Pix[off:off+b.Width*4])
		}
	case *image.RGBA:
		for y := 0; y < b.Height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			s, d := src.Pix[off:off+b.Width*4], b.Row(y)
			for i := 0; i < len(s); i += 4 {
				unpremultiply(d[i:i+4], s[i:i+4])
			}
		}
	case *image.Gray:
		for y := 0; y < b.Height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			d := b.Row(y)
			for x, v := range src.Pix[off : off+b.Width] {
				d[x*4+0], d[x*4+1], d[x*4+2], d[x*4+3] = v, v, v, 0xff
			}
		}
	case *image.YCbCr:
		for y := 0; y < b.Height; y++ {
			d := b.Row(y)
			for x := 0; x < b.Width; x++ {
				yi := src.YOffset(bounds.Min.X+x, bounds.Min.Y+y)
				ci := src.COffset(bounds.Min.X+x, bounds.Min.Y+y)
				r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				d[x*4+0], d[x*4+1], d[x*4+2], d[x*4+3] = r, g, bl, 0xff
			}
		}
	default:
		dst := &image.NRGBA{Pix: b.Pix, Stride: b.Stride, Rect: image.Rect(0, 0, b.Width, b.Height)}
		draw.Draw(dst, dst.Rect, img, bounds.Min, draw.Src)
	}
}

// unpremultiply mirrors color.NRGBAModel for 8-bit samples. Channels larger
// than alpha (not valid premultiplied color) saturate at 0xff.
func unpremultiply(d, s []byte) {
	a := uint32(s[3])
	switch a {
	case 0xff:
		copy(d, s)
	case 0:
		d[0], d[1], d[2], d[3] = 0, 0, 0, 0
	default:
		a16 := a * 0x101
		for i := 0; i < 3; i++ {
			c := uint32(s[i]) * 0x101
			v := (c * 0xffff / a16) >> 8
			if v > 0xff {
				v = 0xff
			}
			d[i] = uint8(v)
		}
		d[3] = s[3]
	}
}
