package imaging

import (
	"context"
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/imgengine/internal/pixel"
)

// maxRadius bounds neighborhood filters.
const maxRadius = 64

// Convolve applies a 3x3 (9 weights) or 5x5 (25 weights) kernel in row-major
// order. Samples past the border repeat the edge pixel.
type Convolve struct {
	Kernel []float64

	// Normalize divides the kernel by the sum of its weights.
	Normalize bool

	// Bias is added to every channel after convolution.
	Bias int
}

func (c Convolve) Name() string { return "convolve" }

func (c Convolve) Validate(pixel.Layout) error {
	if n := len(c.Kernel); n != 9 && n != 25 {
		return invalidf("convolve", "kernel has %d weights, want 9 or 25", n)
	}
	return nil
}

func (c Convolve) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	opts := &imaging.ConvolveOptions{Normalize: c.Normalize, Bias: c.Bias}
	return viaImage(ctx, src, p, func(img image.Image) image.Image {
		if len(c.Kernel) == 9 {
			var k [9]float64
			copy(k[:], c.Kernel)
			return imaging.Convolve3x3(img, k, opts)
		}
		var k [25]float64
		copy(k[:], c.Kernel)
		return imaging.Convolve5x5(img, k, opts)
	})
}

// Blur is a gaussian blur with standard deviation Sigma.
type Blur struct {
	Sigma float64
}

func (b Blur) Name() string { return "blur" }

func (b Blur) Validate(pixel.Layout) error {
	if b.Sigma <= 0 || b.Sigma > maxRadius {
		return invalidf("blur", "sigma %.2f out of range (0, %d]", b.Sigma, maxRadius)
	}
	return nil
}

func (b Blur) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	return viaImage(ctx, src, p, func(img image.Image) image.Image {
		return imaging.Blur(img, b.Sigma)
	})
}

// BoxBlur averages each pixel with its neighbors within Radius.
type BoxBlur struct {
	Radius float64
}

func (b BoxBlur) Name() string { return "box-blur" }

func (b BoxBlur) Validate(pixel.Layout) error {
	if b.Radius <= 0 || b.Radius > maxRadius {
		return invalidf("box-blur", "radius %.2f out of range (0, %d]", b.Radius, maxRadius)
	}
	return nil
}

func (b BoxBlur) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	return viaImage(ctx, src, p, func(img image.Image) image.Image {
		return blur.Box(img, b.Radius)
	})
}

// Sharpen is an unsharp mask with gaussian standard deviation Sigma.
type Sharpen struct {
	Sigma float64
}

func (s Sharpen) Name() string { return "sharpen" }

func (s Sharpen) Validate(pixel.Layout) error {
	if s.Sigma <= 0 || s.Sigma > maxRadius {
		return invalidf("sharpen", "sigma %.2f out of range (0, %d]", s.Sigma, maxRadius)
	}
	return nil
}

func (s Sharpen) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	return viaImage(ctx, src, p, func(img image.Image) image.Image {
		return imaging.Sharpen(img, s.Sigma)
	})
}

// Median replaces each pixel with the median of its neighborhood.
type Median struct {
	Radius float64
}

func (m Median) Name() string { return "median" }

func (m Median) Validate(pixel.Layout) error {
	if m.Radius <= 0 || m.Radius > maxRadius {
		return invalidf("median", "radius %.2f out of range (0, %d]", m.Radius, maxRadius)
	}
	return nil
}

func (m Median) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	return viaImage(ctx, src, p, func(img image.Image) image.Image {
		return effect.Median(img, m.Radius)
	})
}

// Invert negates the color channels.
type Invert struct{}

func (Invert) Name() string { return "invert" }

func (Invert) Validate(pixel.Layout) error { return nil }

func (Invert) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	return viaImage(ctx, src, p, func(img image.Image) image.Image {
		return effect.Invert(img)
	})
}

// Adjust applies tonal corrections in a fixed order: brightness, contrast,
// gamma, saturation, hue. Zero fields are skipped.
type Adjust struct {
	// Brightness, Contrast and Saturation are relative changes in -1..1.
	Brightness float64
	Contrast   float64
	Saturation float64

	// Gamma is the gamma correction exponent; values below 1 darken.
	Gamma float64

	// Hue rotates the hue by degrees in -360..360.
	Hue int
}

func (a Adjust) Name() string { return "adjust" }

func (a Adjust) Validate(pixel.Layout) error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"brightness", a.Brightness},
		{"contrast", a.Contrast},
		{"saturation", a.Saturation},
	} {
		if f.v < -1 || f.v > 1 {
			return invalidf("adjust", "%s %.2f out of range -1..1", f.name, f.v)
		}
	}
	if a.Gamma < 0 {
		return invalidf("adjust", "gamma %.2f must not be negative", a.Gamma)
	}
	if a.Hue < -360 || a.Hue > 360 {
		return invalidf("adjust", "hue %d out of range -360..360", a.Hue)
	}
	return nil
}

func (a Adjust) identity() bool {
	return a.Brightness == 0 && a.Contrast == 0 && a.Saturation == 0 && a.Gamma == 0 && a.Hue == 0
}

func (a Adjust) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	if a.identity() {
		return src, nil
	}
	return viaImage(ctx, src, p, func(img image.Image) image.Image {
		if a.Brightness != 0 {
			img = adjust.Brightness(img, a.Brightness)
		}
		if a.Contrast != 0 {
			img = adjust.Contrast(img, a.Contrast)
		}
		if a.Gamma != 0 {
			img = adjust.Gamma(img, a.Gamma)
		}
		if a.Saturation != 0 {
			img = adjust.Saturation(img, a.Saturation)
		}
		if a.Hue != 0 {
			img = adjust.Hue(img, a.Hue)
		}
		return img
	})
}
