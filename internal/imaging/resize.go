package imaging

import (
	"context"
	"fmt"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// Kernel selects the resampling filter.
type Kernel int

const (
	Nearest Kernel = iota
	Bilinear
	Bicubic
	Lanczos
)

var kernelNames = map[Kernel]string{
	Nearest:  "nearest",
	Bilinear: "bilinear",
	Bicubic:  "bicubic",
	Lanczos:  "lanczos",
}

func (k Kernel) String() string {
	if s, ok := kernelNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kernel(%d)", int(k))
}

// ParseKernel maps a kernel name to its value.
func ParseKernel(s string) (Kernel, error) {
	for k, name := range kernelNames {
		if name == s {
			return k, nil
		}
	}
	return 0, invalidf("resize", "unknown kernel %q", s)
}

func (k Kernel) filter() imaging.ResampleFilter {
	switch k {
	case Bilinear:
		return imaging.Linear
	case Bicubic:
		return imaging.CatmullRom
	case Lanczos:
		return imaging.Lanczos
	default:
		return imaging.NearestNeighbor
	}
}

// Resize scales the buffer to Width x Height.
//
// Resampling is separable: a horizontal pass into a float intermediate, then
// a vertical pass. Sample positions use pixel centers and taps outside the
// source are clamped to the nearest edge sample. When shrinking, the kernel is widened by the scale
// factor to avoid aliasing. Four-channel formats are filtered on
// alpha-premultiplied values so transparent pixels do not bleed color.
//
// Only packed formats are supported.
type Resize struct {
	Width  int
	Height int
	Kernel Kernel
}

func (r Resize) Name() string { return "resize" }

func (r Resize) Validate(l pixel.Layout) error {
	if r.Width <= 0 || r.Height <= 0 {
		return invalidf("resize", "target size %dx%d must be positive", r.Width, r.Height)
	}
	if _, ok := kernelNames[r.Kernel]; !ok {
		return invalidf("resize", "unknown kernel %d", int(r.Kernel))
	}
	if _, err := pixel.NewLayout(r.Width, r.Height, l.Format); err != nil {
		return err
	}
	return requirePacked("resize", l)
}

func (r Resize) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	if r.Width == src.Width && r.Height == src.Height {
		return src, nil
	}
	dst, err := pixel.Alloc(ctx, p, r.Width, r.Height, src.Format)
	if err != nil {
		return nil, err
	}
	defer pixel.ReleaseOnPanic(&dst)
	dst.Orientation = src.Orientation

	if r.Kernel == Nearest {
		resizeNearest(dst, src)
		return dst, nil
	}

	f := r.Kernel.filter()
	xw := resampleWeights(r.Width, src.Width, f)
	yw := resampleWeights(r.Height, src.Height, f)
	ch := src.Format.BytesPerPixel()
	alpha := src.Format.HasAlpha()

	// Horizontal pass: src.Height rows of r.Width pixels.
	tmp := make([]float32, src.Height*r.Width*ch)
	parallel.Line(src.Height, func(start, end int) {
		for y := start; y < end; y++ {
			resampleRow(tmp[y*r.Width*ch:(y+1)*r.Width*ch], src.Row(y), xw, ch, alpha)
		}
	})

	if err := ctx.Err(); err != nil {
		dst.Release()
		return nil, fault.Cancelled("resize", err)
	}

	// Vertical pass.
	rowLen := r.Width * ch
	parallel.Line(r.Height, func(start, end int) {
		acc := make([]float32, rowLen)
		for y := start; y < end; y++ {
			clear(acc)
			for _, c := range yw[y] {
				row := tmp[c.index*rowLen : (c.index+1)*rowLen]
				for i, v := range row {
					acc[i] += v * c.weight
				}
			}
			storeRow(dst.Row(y), acc, ch, alpha)
		}
	})
	return dst, nil
}

type contrib struct {
	index  int
	weight float32
}

// resampleWeights computes, for every destination sample, the source taps
// and their normalized weights. Taps past either edge read the edge sample.
func resampleWeights(dstSize, srcSize int, f imaging.ResampleFilter) [][]contrib {
	du := float64(srcSize) / float64(dstSize)
	scale := math.Max(du, 1)
	radius := math.Ceil(scale * f.Support)

	out := make([][]contrib, dstSize)
	for v := 0; v < dstSize; v++ {
		center := (float64(v)+0.5)*du - 0.5
		begin := int(math.Ceil(center - radius))
		end := int(math.Floor(center + radius))

		var sum float64
		taps := make([]contrib, 0, end-begin+1)
		for u := begin; u <= end; u++ {
			w := f.Kernel((float64(u) - center) / scale)
			if w == 0 {
				continue
			}
			sum += w
			i := clamp(u, 0, srcSize-1)
			if n := len(taps); n > 0 && taps[n-1].index == i {
				taps[n-1].weight += float32(w)
				continue
			}
			taps = append(taps, contrib{index: i, weight: float32(w)})
		}
		if sum == 0 {
			u := clamp(int(math.Round(center)), 0, srcSize-1)
			taps = append(taps[:0], contrib{index: u, weight: 1})
			sum = 1
		}
		for i := range taps {
			taps[i].weight /= float32(sum)
		}
		out[v] = taps
	}
	return out
}

func resampleRow(dst []float32, src []byte, taps [][]contrib, ch int, alpha bool) {
	for x, cs := range taps {
		d := dst[x*ch : x*ch+ch]
		for _, c := range cs {
			s := src[c.index*ch : c.index*ch+ch]
			if alpha {
				a := float32(s[3]) / 255 * c.weight
				d[0] += float32(s[0]) * a
				d[1] += float32(s[1]) * a
				d[2] += float32(s[2]) * a
				d[3] += float32(s[3]) * c.weight
				continue
			}
			for i := range d {
				d[i] += float32(s[i]) * c.weight
			}
		}
	}
}

func storeRow(dst []byte, acc []float32, ch int, alpha bool) {
	if !alpha {
		for i, v := range acc {
			dst[i] = clampUint8(v)
		}
		return
	}
	for i := 0; i < len(acc); i += ch {
		a := acc[i+3]
		if a <= 0.5 {
			dst[i+0], dst[i+1], dst[i+2], dst[i+3] = 0, 0, 0, 0
			continue
		}
		k := 255 / a
		dst[i+0] = clampUint8(acc[i+0] * k)
		dst[i+1] = clampUint8(acc[i+1] * k)
		dst[i+2] = clampUint8(acc[i+2] * k)
		dst[i+3] = clampUint8(a)
	}
}

func resizeNearest(dst, src *pixel.Buffer) {
	ch := src.Format.BytesPerPixel()
	xs := make([]int, dst.Width)
	for x := range xs {
		xs[x] = min(int((float64(x)+0.5)*float64(src.Width)/float64(dst.Width)), src.Width-1)
	}
	parallel.Line(dst.Height, func(start, end int) {
		for y := start; y < end; y++ {
			sy := min(int((float64(y)+0.5)*float64(src.Height)/float64(dst.Height)), src.Height-1)
			s, d := src.Row(sy), dst.Row(y)
			for x, sx := range xs {
				copy(d[x*ch:x*ch+ch], s[sx*ch:sx*ch+ch])
			}
		}
	})
}

func clampUint8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
