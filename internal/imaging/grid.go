package imaging

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/ironsheep/imgengine/internal/pixel"
)

// DefaultGridColor is semi-transparent red.
const DefaultGridColor = "#FF000080"

// Grid draws a coordinate grid every Spacing pixels, optionally labelling
// each intersection with its "x,y" position.
type Grid struct {
	Spacing int

	// Color is a hex color; empty means DefaultGridColor.
	Color string

	Labels bool
}

func (g Grid) Name() string { return "grid" }

func (g Grid) color() (color.NRGBA, error) {
	hex := g.Color
	if hex == "" {
		hex = DefaultGridColor
	}
	c, alpha, err := parseColor(hex)
	if err != nil {
		return color.NRGBA{}, err
	}
	r, gr, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: gr, B: b, A: uint8(alpha*255 + 0.5)}, nil
}

func (g Grid) Validate(pixel.Layout) error {
	if g.Spacing <= 0 {
		return invalidf("grid", "spacing must be positive, got %d", g.Spacing)
	}
	if _, err := g.color(); err != nil {
		return invalidf("grid", "%v", err)
	}
	return nil
}

func (g Grid) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	gridColor, err := g.color()
	if err != nil {
		return nil, invalidf("grid", "%v", err)
	}
	line := image.NewUniform(gridColor)

	return viaNRGBA(ctx, src, p, func(img *image.NRGBA) {
		bounds := img.Bounds()
		width, height := bounds.Dx(), bounds.Dy()

		// Vertical lines
		for x := g.Spacing; x < width; x += g.Spacing {
			draw.Draw(img, image.Rect(x, 0, x+1, height), line, image.Point{}, draw.Over)
		}
		// Horizontal lines
		for y := g.Spacing; y < height; y += g.Spacing {
			draw.Draw(img, image.Rect(0, y, width, y+1), line, image.Point{}, draw.Over)
		}

		if g.Labels {
			labelColor := color.NRGBA{255, 255, 255, 255}
			bgColor := color.NRGBA{0, 0, 0, 180}
			for y := g.Spacing; y < height; y += g.Spacing {
				for x := g.Spacing; x < width; x += g.Spacing {
					drawLabel(img, x+2, y+2, fmt.Sprintf("%d,%d", x, y), labelColor, bgColor)
				}
			}
		}
	})
}

// glyphs is a 3x5 pixel font for digits and comma.
var glyphs = map[rune][5]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
	',': {"000", "000", "000", "010", "010"},
}

// drawLabel draws text on a blended background box at (x, y), clipped to
// the image.
func drawLabel(img *image.NRGBA, x, y int, text string, fg, bg color.NRGBA) {
	const (
		charWidth   = 4
		labelHeight = 7
	)
	box := image.Rect(x-1, y-1, x+len(text)*charWidth, y+labelHeight).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Over)

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, bits := range glyph {
			for col, bit := range bits {
				px, py := cx+col, y+row
				if bit == '1' && image.Pt(px, py).In(img.Bounds()) {
					img.SetNRGBA(px, py, fg)
				}
			}
		}
		cx += charWidth
	}
}
