package imaging

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

func TestComposite(t *testing.T) {
	src := createSolidBuffer(t, 20, 20, pixel.RGBA8, color.NRGBA{255, 255, 255, 255})
	defer src.Release()
	overlay := createSolidBuffer(t, 5, 5, pixel.RGBA8, color.NRGBA{255, 0, 0, 255})

	c := NewComposite(overlay, 10, 10)
	overlay.Release()
	defer c.Close()

	out, err := Apply(context.Background(), c, src, nil)
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	defer out.Release()

	tests := []struct {
		x, y int
		want color.NRGBA
	}{
		{12, 12, color.NRGBA{255, 0, 0, 255}},
		{10, 10, color.NRGBA{255, 0, 0, 255}},
		{9, 9, color.NRGBA{255, 255, 255, 255}},
		{15, 15, color.NRGBA{255, 255, 255, 255}},
	}
	for _, tt := range tests {
		if got := pixelAt(out, tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d): got %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestComposite_OpacityAndResize(t *testing.T) {
	src := createSolidBuffer(t, 20, 20, pixel.RGBA8, color.NRGBA{0, 0, 0, 255})
	defer src.Release()
	overlay := createSolidBuffer(t, 4, 4, pixel.RGBA8, color.NRGBA{255, 255, 255, 255})
	defer overlay.Release()

	c := NewComposite(overlay, 15, -2)
	c.Width, c.Height = 8, 8
	c.Opacity = 0.5
	defer c.Close()

	out, err := Apply(context.Background(), c, src, nil)
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	defer out.Release()

	if got := pixelAt(out, 19, 5); absDiff(got.R, 128) > 2 {
		t.Errorf("half-opaque white over black: got %v", got)
	}
	if got := pixelAt(out, 19, 6); got.R != 0 {
		t.Errorf("resized overlay should end at y=5, got %v at y=6", got)
	}
	if got := pixelAt(out, 14, 0); got.R != 0 {
		t.Errorf("overlay drawn left of its origin: %v", got)
	}
}

func TestComposite_Invalid(t *testing.T) {
	l, _ := pixel.NewLayout(10, 10, pixel.RGBA8)
	overlay := createSolidBuffer(t, 2, 2, pixel.RGBA8, color.NRGBA{0, 0, 0, 255})
	defer overlay.Release()

	c := NewComposite(overlay, 0, 0)
	defer c.Close()

	c.Opacity = 1.5
	if err := c.Validate(l); !errors.Is(err, fault.ErrInvalidParameters) {
		t.Errorf("opacity 1.5: expected InvalidParameters, got %v", err)
	}
	c.Opacity = 1
	c.Width = -3
	if err := c.Validate(l); !errors.Is(err, fault.ErrInvalidParameters) {
		t.Errorf("negative width: expected InvalidParameters, got %v", err)
	}
}

func TestGrid(t *testing.T) {
	src := createSolidBuffer(t, 50, 50, pixel.RGBA8, color.NRGBA{0, 0, 0, 255})
	defer src.Release()

	out, err := Apply(context.Background(), Grid{Spacing: 10, Color: "#00FF00"}, src, nil)
	if err != nil {
		t.Fatalf("Grid failed: %v", err)
	}
	if out != src {
		t.Error("grid on an exclusive buffer should draw in place")
	}

	if c := pixelAt(out, 10, 3); c != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("vertical line at x=10: got %v", c)
	}
	if c := pixelAt(out, 3, 20); c != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("horizontal line at y=20: got %v", c)
	}
	if c := pixelAt(out, 5, 5); c != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("cell interior changed: %v", c)
	}
}

func TestGrid_DefaultColorBlends(t *testing.T) {
	src := createSolidBuffer(t, 30, 30, pixel.RGBA8, color.NRGBA{0, 0, 255, 255})
	defer src.Release()

	out, err := Apply(context.Background(), Grid{Spacing: 10}, src, nil)
	if err != nil {
		t.Fatalf("Grid failed: %v", err)
	}

	c := pixelAt(out, 10, 5)
	if c.R == 0 || c.B == 0 || c.A != 255 {
		t.Errorf("semi-transparent red over blue: got %v", c)
	}
}

func TestGrid_Labels(t *testing.T) {
	src := createSolidBuffer(t, 60, 60, pixel.Gray8, color.NRGBA{128, 128, 128, 255})
	defer src.Release()

	out, err := Apply(context.Background(), Grid{Spacing: 30, Labels: true}, src, nil)
	if err != nil {
		t.Fatalf("Grid failed: %v", err)
	}
	defer out.Release()

	if out.Format != pixel.Gray8 {
		t.Fatalf("format changed to %s", out.Format)
	}
	// The first glyph of "30,30" starts at (32,32); its top row is lit.
	if v := out.Row(32)[32]; v < 200 {
		t.Errorf("label glyph not drawn, got %d", v)
	}
}

func TestGrid_Invalid(t *testing.T) {
	l, _ := pixel.NewLayout(10, 10, pixel.RGBA8)
	for _, g := range []Grid{{Spacing: 0}, {Spacing: -5}, {Spacing: 10, Color: "red"}} {
		if err := g.Validate(l); !errors.Is(err, fault.ErrInvalidParameters) {
			t.Errorf("Grid%+v: expected InvalidParameters, got %v", g, err)
		}
	}
}
