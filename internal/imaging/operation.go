package imaging

import (
	"context"
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// Operation is one step of a transform pipeline.
//
// Validate checks the operation's parameters against the layout of the buffer
// it is about to receive. Apply assumes Validate succeeded.
//
// # Ownership
//
// Apply never releases src. It returns either src itself, modified in place
// (allowed only when src.Exclusive()), or a new buffer acquired from p that
// the caller owns. A shared src is never written.
type Operation interface {
	Name() string
	Validate(l pixel.Layout) error
	Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error)
}

// Apply validates op against src and runs it.
func Apply(ctx context.Context, op Operation, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	if err := op.Validate(src.Layout()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fault.Cancelled(op.Name(), err)
	}
	return op.Apply(ctx, src, p)
}

func invalidf(op, format string, args ...any) error {
	return fault.Transformf(fault.InvalidParameters, op, format, args...)
}

// requireFormats rejects layouts whose format is not listed.
func requireFormats(op string, l pixel.Layout, formats ...pixel.Format) error {
	for _, f := range formats {
		if l.Format == f {
			return nil
		}
	}
	return invalidf(op, "%s input not supported", l.Format)
}

// requirePacked rejects planar layouts.
func requirePacked(op string, l pixel.Layout) error {
	if l.Format.Planar() {
		return invalidf(op, "%s input not supported, convert to a packed format first", l.Format)
	}
	return nil
}

// viaNRGBA runs fn on an editable *image.NRGBA holding src's pixels and
// returns the result in src's format. RGBA8 input is edited in place when
// src is exclusive.
func viaNRGBA(ctx context.Context, src *pixel.Buffer, p *pixel.Pool, fn func(img *image.NRGBA)) (*pixel.Buffer, error) {
	if src.Format == pixel.RGBA8 {
		dst, err := src.Unique(ctx, p)
		if err != nil {
			return nil, err
		}
		if dst != src {
			defer pixel.ReleaseOnPanic(&dst)
		}
		fn(dst.Image().(*image.NRGBA))
		return dst, nil
	}
	img := imaging.Clone(src.Image())
	fn(img)
	return fromImage(ctx, p, img, src)
}

// viaImage runs a library filter over src's pixels and stores the result
// in a new buffer of src's format.
func viaImage(ctx context.Context, src *pixel.Buffer, p *pixel.Pool, fn func(img image.Image) image.Image) (*pixel.Buffer, error) {
	return fromImage(ctx, p, fn(src.Image()), src)
}

func fromImage(ctx context.Context, p *pixel.Pool, img image.Image, like *pixel.Buffer) (*pixel.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Cancelled("transform", err)
	}
	out, err := pixel.FromImage(ctx, p, img, like.Format)
	if err != nil {
		return nil, err
	}
	out.Orientation = like.Orientation
	return out, nil
}
