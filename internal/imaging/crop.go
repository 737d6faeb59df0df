package imaging

import (
	"context"
	"image"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// Crop extracts a rectangular region into a new buffer.
//
// Rect uses the package coordinate convention: Min is inclusive, Max is
// exclusive. The rectangle must lie entirely inside the source; a partially
// outside rectangle fails with OutOfBounds and the source is left untouched.
// YUV420 crops must start on even coordinates so chroma stays aligned.
type Crop struct {
	Rect image.Rectangle
}

func (c Crop) Name() string { return "crop" }

func (c Crop) Validate(l pixel.Layout) error {
	r := c.Rect
	if r.Empty() {
		return invalidf("crop", "empty region %v", r)
	}
	if !r.In(image.Rect(0, 0, l.Width, l.Height)) {
		return fault.Transformf(fault.OutOfBounds, "crop",
			"region (%d,%d)-(%d,%d) outside image bounds (0,0)-(%d,%d)",
			r.Min.X, r.Min.Y, r.Max.X, r.Max.Y, l.Width, l.Height)
	}
	if l.Format.Planar() && (r.Min.X%2 != 0 || r.Min.Y%2 != 0) {
		return invalidf("crop", "%s crop must start on even coordinates, got (%d,%d)", l.Format, r.Min.X, r.Min.Y)
	}
	return nil
}

func (c Crop) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	r := c.Rect
	dst, err := pixel.Alloc(ctx, p, r.Dx(), r.Dy(), src.Format)
	if err != nil {
		return nil, err
	}
	defer pixel.ReleaseOnPanic(&dst)
	dst.Orientation = src.Orientation

	bpp := src.Format.BytesPerPixel()
	for y := 0; y < dst.Height; y++ {
		off := (r.Min.Y+y)*src.Stride + r.Min.X*bpp
		copy(dst.Row(y), src.Pix[off:off+dst.Width*bpp])
	}

	if src.Format.Planar() {
		sl, dl := src.Layout(), dst.Layout()
		_, scb, scr := src.Planes()
		_, dcb, dcr := dst.Planes()
		ss, ds, w := sl.ChromaStride(), dl.ChromaStride(), dl.ChromaWidth()
		x0, y0 := r.Min.X/2, r.Min.Y/2
		for y := 0; y < dl.ChromaHeight(); y++ {
			off := (y0+y)*ss + x0
			copy(dcb[y*ds:y*ds+w], scb[off:off+w])
			copy(dcr[y*ds:y*ds+w], scr[off:off+w])
		}
	}
	return dst, nil
}

// Region crops a named part of the image.
//
// Supported areas:
//   - "top-left", "top-right", "bottom-left", "bottom-right": quadrants
//   - "top-half", "bottom-half", "left-half", "right-half"
//   - "center": the middle 50% in each dimension
//
// Scale, when positive and not 1, resizes the extracted region with the
// Lanczos kernel.
type Region struct {
	Area  string
	Scale float64
}

func (r Region) Name() string { return "region" }

// regionRect maps a region name onto a rectangle of a w x h image.
func regionRect(name string, w, h int) (image.Rectangle, bool) {
	midX := w / 2
	midY := h / 2

	var x1, y1, x2, y2 int

	switch name {
	case "top-left":
		x1, y1, x2, y2 = 0, 0, midX, midY
	case "top-right":
		x1, y1, x2, y2 = midX, 0, w, midY
	case "bottom-left":
		x1, y1, x2, y2 = 0, midY, midX, h
	case "bottom-right":
		x1, y1, x2, y2 = midX, midY, w, h
	case "top-half":
		x1, y1, x2, y2 = 0, 0, w, midY
	case "bottom-half":
		x1, y1, x2, y2 = 0, midY, w, h
	case "left-half":
		x1, y1, x2, y2 = 0, 0, midX, h
	case "right-half":
		x1, y1, x2, y2 = midX, 0, w, h
	case "center":
		// Center 50% of the image
		qW := w / 4
		qH := h / 4
		x1, y1, x2, y2 = qW, qH, w-qW, h-qH
	default:
		return image.Rectangle{}, false
	}
	return image.Rect(x1, y1, x2, y2), true
}

// steps expands the region into concrete crop and resize steps for l.
func (r Region) steps(l pixel.Layout) ([]Operation, error) {
	rect, ok := regionRect(r.Area, l.Width, l.Height)
	if !ok {
		return nil, invalidf("region", "unknown region: %s", r.Area)
	}
	if l.Format.Planar() {
		// keep the origin even for chroma alignment
		rect.Min.X &^= 1
		rect.Min.Y &^= 1
	}
	ops := []Operation{Crop{Rect: rect}}
	if r.Scale < 0 {
		return nil, invalidf("region", "negative scale %g", r.Scale)
	}
	if r.Scale > 0 && r.Scale != 1 {
		w := int(float64(rect.Dx()) * r.Scale)
		h := int(float64(rect.Dy()) * r.Scale)
		ops = append(ops, Resize{Width: w, Height: h, Kernel: Lanczos})
	}
	return ops, nil
}

func (r Region) Validate(l pixel.Layout) error {
	ops, err := r.steps(l)
	if err != nil {
		return err
	}
	cur := l
	for _, op := range ops {
		if err := op.Validate(cur); err != nil {
			return err
		}
		if rs, ok := op.(Resize); ok {
			cur.Width, cur.Height = rs.Width, rs.Height
		} else {
			rect := op.(Crop).Rect
			cur.Width, cur.Height = rect.Dx(), rect.Dy()
		}
	}
	return nil
}

func (r Region) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	ops, err := r.steps(src.Layout())
	if err != nil {
		return nil, err
	}
	return NewPipeline(ops...).Run(ctx, src, p)
}
