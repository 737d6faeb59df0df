package imaging

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/imgengine/internal/pixel"
)

// Composite draws an overlay buffer onto the image.
//
// The overlay's top-left corner lands at (X, Y); parts falling outside the
// image are clipped. When Width or Height is set the overlay is first
// resized with the Lanczos filter (a zero side keeps the aspect ratio).
// Opacity runs from 0 (invisible) to 1, and the overlay's own alpha is
// respected.
//
// A Composite holds a share of the overlay until Close is called, so the
// caller may release its own handle right after NewComposite.
type Composite struct {
	X, Y          int
	Width, Height int
	Opacity       float64

	mu      sync.Mutex
	overlay *pixel.Buffer
}

// NewComposite returns a composite of overlay at (x, y) with full opacity.
func NewComposite(overlay *pixel.Buffer, x, y int) *Composite {
	return &Composite{X: x, Y: y, Opacity: 1, overlay: overlay.Share()}
}

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Validate(pixel.Layout) error {
	if c.Opacity < 0 || c.Opacity > 1 {
		return invalidf("composite", "opacity %.2f out of range 0-1", c.Opacity)
	}
	if c.Width < 0 || c.Height < 0 {
		return invalidf("composite", "negative overlay size %dx%d", c.Width, c.Height)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overlay == nil {
		return invalidf("composite", "overlay already closed")
	}
	return nil
}

func (c *Composite) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overlay == nil {
		return nil, invalidf("composite", "overlay already closed")
	}
	if c.Opacity == 0 {
		return src, nil
	}

	var ov image.Image = c.overlay.Image()
	if c.Width > 0 || c.Height > 0 {
		ov = imaging.Resize(ov, c.Width, c.Height, imaging.Lanczos)
	}
	return viaImage(ctx, src, p, func(img image.Image) image.Image {
		return imaging.Overlay(img, ov, image.Pt(c.X, c.Y), c.Opacity)
	})
}

// Close releases the overlay share. It is safe to call more than once.
func (c *Composite) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overlay != nil {
		c.overlay.Release()
		c.overlay = nil
	}
	return nil
}
