package imaging

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

func TestParsePipeline(t *testing.T) {
	doc := `[
		{"op": "auto-orient"},
		{"op": "crop", "x1": 10, "y1": 0, "x2": 60, "y2": 40},
		{"op": "resize", "width": 25, "height": 20},
		{"op": "rotate", "degrees": 90},
		{"op": "flip", "horizontal": true},
		{"op": "convert", "to": "gray8"},
		{"op": "adjust", "brightness": 0.1, "hue": 30},
		{"op": "tint", "color": "#336699", "amount": 0.25},
		{"op": "convolve", "kernel": [0, 0, 0, 0, 1, 0, 0, 0, 0], "normalize": true},
		{"op": "blur", "sigma": 1.5},
		{"op": "region", "area": "center", "scale": 2},
		{"op": "edge-detect"},
		{"op": "grid"}
	]`

	p, err := ParsePipeline([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	ops := p.Ops()
	if len(ops) != 13 {
		t.Fatalf("got %d steps, want 13", len(ops))
	}

	if got := ops[1].(Crop).Rect; got != image.Rect(10, 0, 60, 40) {
		t.Errorf("crop rect = %v", got)
	}
	if got := ops[2].(Resize); got.Width != 25 || got.Height != 20 || got.Kernel != Lanczos {
		t.Errorf("resize = %+v", got)
	}
	if got := ops[3].(Rotate); got.Degrees != 90 {
		t.Errorf("rotate = %+v", got)
	}
	if got := ops[4].(Flip); !got.Horizontal || got.Vertical {
		t.Errorf("flip = %+v", got)
	}
	if got := ops[5].(Convert); got.To != pixel.Gray8 {
		t.Errorf("convert = %+v", got)
	}
	if got := ops[6].(Adjust); got.Brightness != 0.1 || got.Hue != 30 {
		t.Errorf("adjust = %+v", got)
	}
	if got := ops[7].(Tint); got.Color != "#336699" || got.Amount != 0.25 {
		t.Errorf("tint = %+v", got)
	}
	if got := ops[8].(Convolve); len(got.Kernel) != 9 || !got.Normalize {
		t.Errorf("convolve = %+v", got)
	}
	if got := ops[10].(Region); got.Area != "center" || got.Scale != 2 {
		t.Errorf("region = %+v", got)
	}
	if got := ops[11].(EdgeDetect); got.Low != 50 || got.High != 150 {
		t.Errorf("edge-detect defaults = %+v", got)
	}
	if got := ops[12].(Grid); got.Spacing != 50 || got.Color != DefaultGridColor {
		t.Errorf("grid defaults = %+v", got)
	}
}

func TestParsePipeline_Runs(t *testing.T) {
	src := createPatternBuffer(t, 100, 80)
	defer src.Release()

	p, err := ParsePipeline([]byte(`[{"op":"region","area":"top-right"},{"op":"resize","width":10,"height":8,"kernel":"bilinear"}]`))
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	out, err := p.Run(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer out.Release()

	if out.Width != 10 || out.Height != 8 {
		t.Errorf("dimensions: got %dx%d, want 10x8", out.Width, out.Height)
	}
}

func TestParsePipeline_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not an array", `{"op":"blur"}`, "JSON array"},
		{"missing op", `[{"sigma": 1}]`, "missing"},
		{"unknown op", `[{"op":"sepia"}]`, "unknown operation: sepia"},
		{"bad kernel", `[{"op":"resize","width":1,"height":1,"kernel":"box"}]`, "unknown kernel"},
		{"bad format", `[{"op":"convert","to":"cmyk"}]`, "step 0 (convert)"},
		{"composite", `[{"op":"blur","sigma":1},{"op":"composite"}]`, "step 1 (composite)"},
		{"wrong type", `[{"op":"rotate","degrees":"ninety"}]`, "step 0 (rotate)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePipeline([]byte(tt.doc))
			if !errors.Is(err, fault.ErrInvalidParameters) {
				t.Fatalf("expected InvalidParameters, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}
