package codec

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// stdFormat adapts an image.Decode-style package to the Decoder interface.
type stdFormat struct {
	format string
	config func(io.Reader) (image.Config, error)
	decode func(io.Reader) (image.Image, error)
	// meta fills format-specific descriptor fields (orientation, profile).
	meta func(data []byte, d *Descriptor)
}

func (s stdFormat) inspect(data []byte) (Descriptor, error) {
	cfg, err := s.config(bytes.NewReader(data))
	if err != nil {
		return Descriptor{}, decodeError(s.format, err)
	}
	d := describe(s.format, cfg)
	if s.meta != nil {
		s.meta(data, &d)
	}
	return d, nil
}

func (s stdFormat) decodeInto(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error) {
	desc, err := s.inspect(data)
	if err != nil {
		return nil, Descriptor{}, err
	}
	if err := lim.check(s.format, desc.Width, desc.Height); err != nil {
		return nil, Descriptor{}, err
	}

	img, err := s.decode(bytes.NewReader(data))
	if err != nil {
		return nil, Descriptor{}, decodeError(s.format, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, Descriptor{}, fault.Cancelled(s.format, err)
	}

	buf, err := pixel.FromImage(ctx, p, img, desc.PixelFormat)
	if err != nil {
		return nil, Descriptor{}, err
	}
	return buf, desc, nil
}

// check enforces the dimension limit before any pixel memory is committed.
func (l Limits) check(op string, w, h int) error {
	if w <= 0 || h <= 0 {
		return fault.Decodef(fault.CorruptData, op, "invalid dimensions %dx%d", w, h)
	}
	if l.MaxDimension > 0 && (w > l.MaxDimension || h > l.MaxDimension) {
		return fault.Resourcef(fault.OutOfMemory, op, "%dx%d exceeds maximum dimension %d", w, h, l.MaxDimension)
	}
	return nil
}

// describe derives descriptor fields from a decoded header.
func describe(format string, cfg image.Config) Descriptor {
	d := Descriptor{
		Format:       format,
		Width:        cfg.Width,
		Height:       cfg.Height,
		PixelFormat:  pixel.RGBA8,
		ColorModel:   "rgb",
		ColorProfile: "sRGB",
		BitDepth:     8,
	}

	switch m := cfg.ColorModel; m {
	case color.RGBAModel, color.NRGBAModel:
		d.ColorModel, d.HasAlpha = "rgba", true
	case color.RGBA64Model, color.NRGBA64Model:
		d.ColorModel, d.HasAlpha, d.BitDepth = "rgba", true, 16
	case color.GrayModel:
		d.ColorModel, d.PixelFormat = "gray", pixel.Gray8
	case color.Gray16Model:
		d.ColorModel, d.PixelFormat, d.BitDepth = "gray", pixel.Gray8, 16
	case color.YCbCrModel:
		d.ColorModel = "ycbcr"
	case color.NYCbCrAModel:
		d.ColorModel, d.HasAlpha = "ycbcr", true
	case color.CMYKModel:
		d.ColorModel = "cmyk"
	default:
		if pal, ok := m.(color.Palette); ok {
			d.ColorModel = "paletted"
			for _, c := range pal {
				if _, _, _, a := c.RGBA(); a != 0xffff {
					d.HasAlpha = true
					break
				}
			}
		}
	}
	return d
}

// errPNGShort is how image/png reports an IDAT stream cut short.
var errPNGShort = png.FormatError("not enough pixel data")

// decodeError maps a library error onto the decode taxonomy.
func decodeError(format string, err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, errPNGShort) {
		return fault.Decodef(fault.Truncated, format, "%w", err)
	}

	var (
		pngUnsupported  png.UnsupportedError
		jpegUnsupported jpeg.UnsupportedError
		tiffUnsupported tiff.UnsupportedError
	)
	switch {
	case errors.As(err, &pngUnsupported),
		errors.As(err, &jpegUnsupported),
		errors.As(err, &tiffUnsupported),
		errors.Is(err, bmp.ErrUnsupported),
		errors.Is(err, image.ErrFormat):
		return fault.Decodef(fault.UnsupportedFormat, format, "%w", err)
	}
	return fault.Decodef(fault.CorruptData, format, "%w", err)
}

// encodeStd writes buf through imaging.Encode.
func encodeStd(w io.Writer, buf *pixel.Buffer, f imaging.Format, opts ...imaging.EncodeOption) error {
	if buf.Released() {
		return fault.Encodef(fault.EncodingFailure, f.String(), "buffer already released")
	}
	return imaging.Encode(w, buf.Image(), f, opts...)
}
