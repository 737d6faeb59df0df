package pixel

import (
	"fmt"
	"image/color"
)

// Convert writes src into dst, converting between pixel formats. Both buffers
// must have the same dimensions.
//
// # Conversions
//
//   - RGBA8 <-> BGRA8: channel swap.
//   - RGBA8/BGRA8 -> Gray8: BT.601 luma (the weights of color.GrayModel);
//     alpha is dropped.
//   - Gray8 -> RGBA8/BGRA8: replicated luma, opaque alpha.
//   - RGB -> YUV420: JFIF full-range matrix, chroma averaged over each 2x2
//     block; alpha is dropped.
//   - YUV420 -> RGB: JFIF inverse matrix, nearest chroma sample.
//
// All outputs are clamped to 0-255 by construction.
func Convert(dst, src *Buffer) error {
	if dst.Width != src.Width || dst.Height != src.Height {
		return fmt.Errorf("convert: size mismatch %dx%d vs %dx%d", dst.Width, dst.Height, src.Width, src.Height)
	}
	switch {
	case dst.Format == src.Format:
		copyPixels(dst, src)
	case src.Format == RGBA8 && dst.Format == BGRA8, src.Format == BGRA8 && dst.Format == RGBA8:
		swapRB(dst, src)
	case src.Format.HasAlpha() && dst.Format == Gray8:
		rgbToGray(dst, src)
	case src.Format == Gray8 && dst.Format.HasAlpha():
		grayToRGB(dst, src)
	case src.Format.HasAlpha() && dst.Format == YUV420:
		rgbToYUV420(dst, src)
	case src.Format == YUV420 && dst.Format.HasAlpha():
		yuv420ToRGB(dst, src)
	case src.Format == Gray8 && dst.Format == YUV420:
		y, cb, cr := dst.Planes()
		for row := 0; row < src.Height; row++ {
			copy(y[row*dst.Stride:], src.Row(row))
		}
		fill(cb, 128)
		fill(cr, 128)
	case src.Format == YUV420 && dst.Format == Gray8:
		for row := 0; row < src.Height; row++ {
			copy(dst.Row(row), src.Row(row))
		}
	default:
		return fmt.Errorf("convert: no conversion from %s to %s", src.Format, dst.Format)
	}
	return nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// rgbOffsets returns the byte offsets of red and blue in a 4-byte pixel.
func rgbOffsets(f Format) (r, b int) {
	if f == BGRA8 {
		return 2, 0
	}
	return 0, 2
}

func swapRB(dst, src *Buffer) {
	for y := 0; y < src.Height; y++ {
		s, d := src.Row(y), dst.Row(y)
		for i := 0; i+3 < len(s); i += 4 {
			d[i+0], d[i+1], d[i+2], d[i+3] = s[i+2], s[i+1], s[i+0], s[i+3]
		}
	}
}

func luma(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

func rgbToGray(dst, src *Buffer) {
	ro, bo := rgbOffsets(src.Format)
	for y := 0; y < src.Height; y++ {
		s, d := src.Row(y), dst.Row(y)
		for x := range d {
			p := s[x*4:]
			d[x] = luma(p[ro], p[1], p[bo])
		}
	}
}

func grayToRGB(dst, src *Buffer) {
	for y := 0; y < src.Height; y++ {
		s, d := src.Row(y), dst.Row(y)
		for x, v := range s {
			d[x*4+0], d[x*4+1], d[x*4+2], d[x*4+3] = v, v, v, 0xff
		}
	}
}

func rgbToYUV420(dst, src *Buffer) {
	ro, bo := rgbOffsets(src.Format)
	l := dst.Layout()
	yp, cbp, crp := dst.Planes()
	cs := l.ChromaStride()

	for y := 0; y < src.Height; y++ {
		s := src.Row(y)
		yr := yp[y*dst.Stride:]
		for x := 0; x < src.Width; x++ {
			p := s[x*4:]
			yy, _, _ := color.RGBToYCbCr(p[ro], p[1], p[bo])
			yr[x] = yy
		}
	}

	for cy := 0; cy < l.ChromaHeight(); cy++ {
		for cx := 0; cx < l.ChromaWidth(); cx++ {
			var sumCb, sumCr, n int
			for dy := 0; dy < 2; dy++ {
				y := cy*2 + dy
				if y >= src.Height {
					continue
				}
				s := src.Row(y)
				for dx := 0; dx < 2; dx++ {
					x := cx*2 + dx
					if x >= src.Width {
						continue
					}
					p := s[x*4:]
					_, cb, cr := color.RGBToYCbCr(p[ro], p[1], p[bo])
					sumCb += int(cb)
					sumCr += int(cr)
					n++
				}
			}
			cbp[cy*cs+cx] = uint8((sumCb + n/2) / n)
			crp[cy*cs+cx] = uint8((sumCr + n/2) / n)
		}
	}
}

func yuv420ToRGB(dst, src *Buffer) {
	ro, bo := rgbOffsets(dst.Format)
	l := src.Layout()
	yp, cbp, crp := src.Planes()
	cs := l.ChromaStride()

	for y := 0; y < src.Height; y++ {
		d := dst.Row(y)
		yr := yp[y*src.Stride:]
		crow := (y / 2) * cs
		for x := 0; x < src.Width; x++ {
			r, g, b := color.YCbCrToRGB(yr[x], cbp[crow+x/2], crp[crow+x/2])
			p := d[x*4:]
			p[ro], p[1], p[bo], p[3] = r, g, b, 0xff
		}
	}
}
