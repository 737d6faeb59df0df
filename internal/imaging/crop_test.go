package imaging

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

func TestCrop(t *testing.T) {
	src := createPatternBuffer(t, 100, 100)
	defer src.Release()

	out, err := Apply(context.Background(), Crop{Rect: image.Rect(50, 0, 100, 50)}, src, nil)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	defer out.Release()

	if out.Width != 50 || out.Height != 50 {
		t.Errorf("dimensions: got %dx%d, want 50x50", out.Width, out.Height)
	}
	for _, pt := range []image.Point{{0, 0}, {49, 0}, {0, 49}, {49, 49}} {
		if c := pixelAt(out, pt.X, pt.Y); c != (color.NRGBA{0, 255, 0, 255}) {
			t.Errorf("pixel %v: got %v, want green", pt, c)
		}
	}
	out.CheckInvariant()
}

func TestCrop_OutOfBoundsLeavesSourceUntouched(t *testing.T) {
	pool := pixel.NewPool(pixel.PoolConfig{Capacity: 2})
	src := createPatternBuffer(t, 100, 100)
	defer src.Release()
	want := snapshot(t, src)
	defer want.Release()

	out, err := Apply(context.Background(), Crop{Rect: image.Rect(50, 50, 150, 150)}, src, pool)
	if out != nil {
		t.Error("expected no result for an out-of-bounds crop")
	}
	if !errors.Is(err, fault.ErrOutOfBounds) {
		t.Fatalf("expected OutOfBounds, got %v", err)
	}
	if !strings.Contains(err.Error(), "outside image bounds") {
		t.Errorf("error message: %v", err)
	}
	if !pixel.Equal(src, want) {
		t.Error("source changed after failed crop")
	}
	if s := pool.Stats(); s.Outstanding != 0 || s.Allocated != 0 {
		t.Errorf("failed crop touched the pool: %+v", s)
	}
}

func TestCrop_InvalidRegions(t *testing.T) {
	tests := []struct {
		name   string
		rect   image.Rectangle
		format pixel.Format
		target error
	}{
		{"empty", image.Rect(10, 10, 10, 20), pixel.RGBA8, fault.ErrInvalidParameters},
		{"negative origin", image.Rect(-1, 0, 10, 10), pixel.RGBA8, fault.ErrOutOfBounds},
		{"past right edge", image.Rect(0, 0, 41, 10), pixel.Gray8, fault.ErrOutOfBounds},
		{"odd yuv origin", image.Rect(1, 2, 11, 12), pixel.YUV420, fault.ErrInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := pixel.NewLayout(40, 30, tt.format)
			if err != nil {
				t.Fatalf("NewLayout failed: %v", err)
			}
			if err := (Crop{Rect: tt.rect}).Validate(l); !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestCrop_YUV420(t *testing.T) {
	src := createSolidBuffer(t, 40, 30, pixel.YUV420, color.NRGBA{200, 100, 50, 255})
	defer src.Release()

	out, err := Apply(context.Background(), Crop{Rect: image.Rect(4, 6, 19, 21)}, src, nil)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	defer out.Release()

	if out.Width != 15 || out.Height != 15 || out.Format != pixel.YUV420 {
		t.Fatalf("got %s", out.Layout())
	}
	out.CheckInvariant()

	_, scb, scr := src.Planes()
	_, cb, cr := out.Planes()
	if cb[0] != scb[0] || cr[0] != scr[0] {
		t.Error("chroma not carried into the crop")
	}
}

func TestRegion(t *testing.T) {
	tests := []struct {
		area          string
		scale         float64
		width, height int
		want          color.NRGBA
	}{
		{"top-left", 0, 50, 40, color.NRGBA{255, 0, 0, 255}},
		{"top-right", 0, 50, 40, color.NRGBA{0, 255, 0, 255}},
		{"bottom-left", 0, 50, 40, color.NRGBA{0, 0, 255, 255}},
		{"bottom-right", 0, 50, 40, color.NRGBA{255, 255, 255, 255}},
		{"top-half", 0, 100, 40, color.NRGBA{255, 0, 0, 255}},
		{"bottom-half", 0, 100, 40, color.NRGBA{0, 0, 255, 255}},
		{"left-half", 0, 50, 80, color.NRGBA{255, 0, 0, 255}},
		{"right-half", 0, 50, 80, color.NRGBA{0, 255, 0, 255}},
		{"center", 0, 50, 40, color.NRGBA{255, 0, 0, 255}},
		{"top-left", 2, 100, 80, color.NRGBA{255, 0, 0, 255}},
		{"bottom-right", 0.5, 25, 20, color.NRGBA{255, 255, 255, 255}},
	}

	src := createPatternBuffer(t, 100, 80)
	defer src.Release()

	for _, tt := range tests {
		t.Run(tt.area, func(t *testing.T) {
			out, err := Apply(context.Background(), Region{Area: tt.area, Scale: tt.scale}, src, nil)
			if err != nil {
				t.Fatalf("Region failed: %v", err)
			}
			defer out.Release()

			if out.Width != tt.width || out.Height != tt.height {
				t.Errorf("dimensions: got %dx%d, want %dx%d", out.Width, out.Height, tt.width, tt.height)
			}
			if c := pixelAt(out, 0, 0); c != tt.want {
				t.Errorf("top-left pixel: got %v, want %v", c, tt.want)
			}
		})
	}
}

func TestRegion_Invalid(t *testing.T) {
	l, _ := pixel.NewLayout(100, 80, pixel.RGBA8)
	if err := (Region{Area: "middle"}).Validate(l); !errors.Is(err, fault.ErrInvalidParameters) {
		t.Errorf("unknown region: expected InvalidParameters, got %v", err)
	}
	if err := (Region{Area: "center", Scale: -1}).Validate(l); !errors.Is(err, fault.ErrInvalidParameters) {
		t.Errorf("negative scale: expected InvalidParameters, got %v", err)
	}
}
