package imaging

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/imgengine/internal/pixel"
)

// Convert changes the pixel format of the buffer.
//
// Conversions use BT.601 luma weights for gray and the JFIF YCbCr matrices
// for YUV420, with every channel clamped to 0-255. Alpha is dropped when the
// target has none and set opaque when the source has none.
type Convert struct {
	To pixel.Format
}

func (c Convert) Name() string { return "convert" }

func (c Convert) Validate(pixel.Layout) error {
	if !c.To.Valid() {
		return invalidf("convert", "unknown target format %d", int(c.To))
	}
	return nil
}

func (c Convert) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	if src.Format == c.To {
		return src, nil
	}
	dst, err := pixel.Alloc(ctx, p, src.Width, src.Height, c.To)
	if err != nil {
		return nil, err
	}
	defer pixel.ReleaseOnPanic(&dst)
	if err := pixel.Convert(dst, src); err != nil {
		dst.Release()
		return nil, invalidf("convert", "%v", err)
	}
	dst.Orientation = src.Orientation
	return dst, nil
}

// Tint blends every pixel toward a color in CIE Lab space.
//
// Color is a hex string: "#rgb", "#rrggbb" or "#rrggbbaa". An alpha byte
// scales Amount. Amount runs from 0 (unchanged) to 1 (solid color); the
// source alpha channel is kept.
type Tint struct {
	Color  string
	Amount float64
}

func (t Tint) Name() string { return "tint" }

func (t Tint) Validate(pixel.Layout) error {
	if _, _, err := parseColor(t.Color); err != nil {
		return invalidf("tint", "%v", err)
	}
	if t.Amount < 0 || t.Amount > 1 {
		return invalidf("tint", "amount %.2f out of range 0-1", t.Amount)
	}
	return nil
}

func (t Tint) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	target, alpha, err := parseColor(t.Color)
	if err != nil {
		return nil, invalidf("tint", "%v", err)
	}
	amount := t.Amount * alpha
	if amount == 0 {
		return src, nil
	}

	return viaNRGBA(ctx, src, p, func(img *image.NRGBA) {
		w, h := img.Rect.Dx(), img.Rect.Dy()
		parallel.Line(h, func(start, end int) {
			for y := start; y < end; y++ {
				row := img.Pix[y*img.Stride : y*img.Stride+w*4]
				for i := 0; i < len(row); i += 4 {
					c := colorful.Color{
						R: float64(row[i+0]) / 255,
						G: float64(row[i+1]) / 255,
						B: float64(row[i+2]) / 255,
					}
					row[i+0], row[i+1], row[i+2] = c.BlendLab(target, amount).Clamped().RGB255()
				}
			}
		})
	})
}

// parseColor parses a hex color string like "#FF0000" or "#FF000080". The
// returned alpha is in 0-1.
func parseColor(hex string) (colorful.Color, float64, error) {
	if hex == "" {
		return colorful.Color{}, 0, fmt.Errorf("empty color string")
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}

	alpha := 1.0
	if len(hex) == 9 {
		a, err := strconv.ParseUint(hex[7:], 16, 8)
		if err != nil {
			return colorful.Color{}, 0, fmt.Errorf("invalid alpha in %q", hex)
		}
		alpha = float64(a) / 255
		hex = hex[:7]
	}

	if len(hex) != 4 && len(hex) != 7 {
		return colorful.Color{}, 0, fmt.Errorf("invalid hex color length %q", hex)
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}, 0, fmt.Errorf("invalid hex color %q", hex)
	}
	return c, alpha, nil
}
