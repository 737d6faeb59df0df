package imaging

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

func TestFilters_PreserveLayout(t *testing.T) {
	ops := []Operation{
		Convolve{Kernel: []float64{0, -1, 0, -1, 5, -1, 0, -1, 0}},
		Convolve{Kernel: make([]float64, 25), Bias: 10},
		Blur{Sigma: 1.5},
		BoxBlur{Radius: 2},
		Sharpen{Sigma: 1},
		Median{Radius: 1},
		Invert{},
		Adjust{Brightness: 0.2, Contrast: -0.1, Gamma: 1.2, Saturation: 0.3, Hue: 40},
	}

	for _, op := range ops {
		for _, f := range []pixel.Format{pixel.RGBA8, pixel.BGRA8, pixel.Gray8, pixel.YUV420} {
			t.Run(op.Name()+"/"+f.String(), func(t *testing.T) {
				src := createSolidBuffer(t, 16, 12, f, color.NRGBA{120, 60, 200, 255})
				defer src.Release()
				src.Orientation = pixel.OrientationFlipV

				out, err := Apply(context.Background(), op, src, nil)
				if err != nil {
					t.Fatalf("%s failed: %v", op.Name(), err)
				}
				defer out.Release()

				if out.Format != f || out.Width != 16 || out.Height != 12 {
					t.Errorf("got %s, want 16x12 %s", out.Layout(), f)
				}
				if out.Orientation != pixel.OrientationFlipV {
					t.Errorf("orientation lost: %d", out.Orientation)
				}
				out.CheckInvariant()
			})
		}
	}
}

func TestConvolve_Identity(t *testing.T) {
	src := createPatternBuffer(t, 20, 20)
	defer src.Release()

	out, err := Apply(context.Background(), Convolve{Kernel: []float64{0, 0, 0, 0, 1, 0, 0, 0, 0}}, src, nil)
	if err != nil {
		t.Fatalf("Convolve failed: %v", err)
	}
	defer out.Release()

	if !pixel.Equal(out, src) {
		t.Error("identity kernel changed the image")
	}
}

func TestBlur_ConstantColor(t *testing.T) {
	want := color.NRGBA{40, 80, 160, 255}
	src := createSolidBuffer(t, 24, 24, pixel.RGBA8, want)
	defer src.Release()

	for _, op := range []Operation{Blur{Sigma: 2}, BoxBlur{Radius: 3}, Median{Radius: 2}} {
		out, err := Apply(context.Background(), op, src, nil)
		if err != nil {
			t.Fatalf("%s failed: %v", op.Name(), err)
		}
		c := pixelAt(out, 12, 12)
		if absDiff(c.R, want.R) > 1 || absDiff(c.G, want.G) > 1 || absDiff(c.B, want.B) > 1 {
			t.Errorf("%s of constant color: got %v, want %v", op.Name(), c, want)
		}
		out.Release()
	}
}

func TestInvert(t *testing.T) {
	src := createPatternBuffer(t, 10, 10)
	defer src.Release()

	out, err := Apply(context.Background(), Invert{}, src, nil)
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}
	defer out.Release()

	tests := []struct {
		x, y int
		want color.NRGBA
	}{
		{0, 0, color.NRGBA{0, 255, 255, 255}}, // red -> cyan
		{9, 0, color.NRGBA{255, 0, 255, 255}}, // green -> magenta
		{0, 9, color.NRGBA{255, 255, 0, 255}}, // blue -> yellow
		{9, 9, color.NRGBA{0, 0, 0, 255}},     // white -> black
	}
	for _, tt := range tests {
		if c := pixelAt(out, tt.x, tt.y); c != tt.want {
			t.Errorf("pixel (%d,%d): got %v, want %v", tt.x, tt.y, c, tt.want)
		}
	}
}

func TestAdjust_Brightness(t *testing.T) {
	src := createSolidBuffer(t, 8, 8, pixel.RGBA8, color.NRGBA{100, 100, 100, 255})
	defer src.Release()

	brighter, err := Apply(context.Background(), Adjust{Brightness: 0.5}, src, nil)
	if err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}
	defer brighter.Release()
	if c := pixelAt(brighter, 4, 4); c.R <= 100 {
		t.Errorf("brightness +0.5 gave %v", c)
	}

	darker, err := Apply(context.Background(), Adjust{Brightness: -0.5}, src, nil)
	if err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}
	defer darker.Release()
	if c := pixelAt(darker, 4, 4); c.R >= 100 {
		t.Errorf("brightness -0.5 gave %v", c)
	}
}

func TestAdjust_IdentityReturnsSource(t *testing.T) {
	src := createPatternBuffer(t, 4, 4)
	defer src.Release()

	out, err := Apply(context.Background(), Adjust{}, src, nil)
	if err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}
	if out != src {
		t.Error("zero adjustment should return the source")
	}
}

func TestFilters_InvalidParameters(t *testing.T) {
	l, _ := pixel.NewLayout(8, 8, pixel.RGBA8)
	tests := []struct {
		name string
		op   Operation
	}{
		{"convolve 4 weights", Convolve{Kernel: []float64{1, 1, 1, 1}}},
		{"convolve empty", Convolve{}},
		{"blur zero sigma", Blur{}},
		{"blur huge sigma", Blur{Sigma: 1000}},
		{"box blur negative", BoxBlur{Radius: -1}},
		{"sharpen zero", Sharpen{}},
		{"median zero", Median{}},
		{"brightness", Adjust{Brightness: 2}},
		{"contrast", Adjust{Contrast: -1.5}},
		{"saturation", Adjust{Saturation: 3}},
		{"gamma", Adjust{Gamma: -1}},
		{"hue", Adjust{Hue: 400}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op.Validate(l); !errors.Is(err, fault.ErrInvalidParameters) {
				t.Errorf("expected InvalidParameters, got %v", err)
			}
		})
	}
}
