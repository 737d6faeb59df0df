package imaging

import (
	"context"
	"math"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// EdgeDetect performs Canny-style edge detection.
//
// The output is a Gray8 buffer of the same size where white pixels (255)
// are edges and black pixels (0) are not. Any input format is accepted.
//
// Parameters:
//   - Low: Low threshold (0-255). Gradients below it are discarded.
//     Typical value: 50.
//   - High: High threshold (0-255). Gradients above it are always kept.
//     Typical value: 150.
//
// # Algorithm
//
//  1. Grayscale conversion: RGB -> luminance using ITU-R BT.601 weights
//     (0.299*R + 0.587*G + 0.114*B); gray and YUV input use their luma
//     directly
//
//  2. Gaussian blur: 5x5 kernel to reduce noise
//
//  3. Gradient computation: Sobel operators for X and Y gradients
//     magnitude = sqrt(Gx² + Gy²)
//     direction = atan2(Gy, Gx)
//
//  4. Non-maximum suppression: Thin edges to 1-pixel width by keeping only
//     local maxima in the gradient direction
//
//  5. Hysteresis thresholding:
//     - Pixels above High are strong edges (always kept)
//     - Pixels between Low and High are weak edges
//     (kept only if connected to strong edges)
//     - Pixels below Low are discarded
//
// # Threshold Selection
//
// Recommended starting points:
//   - Clean diagrams: Low=50, High=150
//   - Photographs: Low=100, High=200
//   - Noisy images: Low=75, High=175
type EdgeDetect struct {
	Low  int
	High int
}

func (e EdgeDetect) Name() string { return "edge-detect" }

func (e EdgeDetect) Validate(pixel.Layout) error {
	if e.Low < 0 || e.High > 255 || e.Low > e.High {
		return invalidf("edge-detect", "thresholds %d/%d must satisfy 0 <= low <= high <= 255", e.Low, e.High)
	}
	return nil
}

// gradientEpsilon is the magnitude below which a Sobel response is rounding
// residue rather than an intensity change. One luma step is 1/255.
const gradientEpsilon = 1e-9

func (e EdgeDetect) Apply(ctx context.Context, src *pixel.Buffer, p *pixel.Pool) (*pixel.Buffer, error) {
	width, height := src.Width, src.Height
	gray := lumaPlane(src)

	// Apply Gaussian blur to reduce noise
	blurred := gaussianBlur(gray, width, height)

	// Compute gradients using Sobel operator
	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)

	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < width; x++ {
				var gx, gy float64
				for ky := -1; ky <= 1; ky++ {
					for kx := -1; kx <= 1; kx++ {
						py := clamp(y+ky, 0, height-1)
						px := clamp(x+kx, 0, width-1)
						v := blurred[py*width+px]
						gx += v * sobelX[ky+1][kx+1]
						gy += v * sobelY[ky+1][kx+1]
					}
				}
				m := math.Sqrt(gx*gx + gy*gy)
				if m < gradientEpsilon {
					m = 0
				}
				magnitude[y*width+x] = m
				direction[y*width+x] = math.Atan2(gy, gx)
			}
		}
	})

	if err := ctx.Err(); err != nil {
		return nil, fault.Cancelled(e.Name(), err)
	}

	// Non-maximum suppression
	suppressed := make([]float64, width*height)
	mag := func(x, y int) float64 { return magnitude[y*width+x] }
	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			if y == 0 || y == height-1 {
				continue
			}
			for x := 1; x < width-1; x++ {
				angle := direction[y*width+x]
				m := mag(x, y)

				// Determine neighbors to compare based on gradient direction
				var n1, n2 float64
				if (angle >= -math.Pi/8 && angle < math.Pi/8) || (angle >= 7*math.Pi/8 || angle < -7*math.Pi/8) {
					n1, n2 = mag(x-1, y), mag(x+1, y)
				} else if (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8) {
					n1, n2 = mag(x+1, y-1), mag(x-1, y+1)
				} else if (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8) {
					n1, n2 = mag(x, y-1), mag(x, y+1)
				} else {
					n1, n2 = mag(x-1, y-1), mag(x+1, y+1)
				}

				if m >= n1 && m >= n2 {
					suppressed[y*width+x] = m
				}
			}
		}
	})

	dst, err := pixel.Alloc(ctx, p, width, height, pixel.Gray8)
	if err != nil {
		return nil, err
	}
	defer pixel.ReleaseOnPanic(&dst)
	dst.Orientation = src.Orientation

	// Double threshold and edge tracking by hysteresis
	lowThresh := float64(e.Low) / 255.0
	highThresh := float64(e.High) / 255.0
	for y := 0; y < height; y++ {
		row := dst.Row(y)
		for x := 0; x < width; x++ {
			row[x] = 0
			val := suppressed[y*width+x]
			if val >= highThresh && val > 0 {
				row[x] = 255
			} else if val >= lowThresh && val > 0 {
				// Check if connected to a strong edge
				strong := false
				for ky := -1; ky <= 1 && !strong; ky++ {
					for kx := -1; kx <= 1 && !strong; kx++ {
						py := clamp(y+ky, 0, height-1)
						px := clamp(x+kx, 0, width-1)
						strong = suppressed[py*width+px] >= highThresh && suppressed[py*width+px] > 0
					}
				}
				if strong {
					row[x] = 255
				}
			}
		}
	}
	return dst, nil
}

// lumaPlane returns the buffer's luminance scaled to 0-1.
func lumaPlane(b *pixel.Buffer) []float64 {
	out := make([]float64, b.Width*b.Height)
	for y := 0; y < b.Height; y++ {
		row := b.Row(y)
		o := out[y*b.Width : (y+1)*b.Width]
		switch b.Format {
		case pixel.RGBA8, pixel.BGRA8:
			ri, bi := 0, 2
			if b.Format == pixel.BGRA8 {
				ri, bi = 2, 0
			}
			for x := range o {
				px := row[x*4 : x*4+4]
				o[x] = (0.299*float64(px[ri]) + 0.587*float64(px[1]) + 0.114*float64(px[bi])) / 255.0
			}
		default:
			// Gray8 and the YUV420 Y plane are already luma.
			for x := range o {
				o[x] = float64(row[x]) / 255.0
			}
		}
	}
	return out
}

// gaussianBlur applies a 5x5 Gaussian blur to reduce noise before edge detection.
//
// Uses a standard 5x5 Gaussian kernel with sigma ≈ 1.4:
//
//	1  4  7  4  1
//	4 16 26 16  4
//	7 26 41 26  7
//	4 16 26 16  4
//	1  4  7  4  1
//
// Total kernel sum = 273, used for normalization.
// Border pixels use clamped (replicated) edge values.
func gaussianBlur(img []float64, width, height int) []float64 {
	kernel := [5][5]float64{
		{1, 4, 7, 4, 1},
		{4, 16, 26, 16, 4},
		{7, 26, 41, 26, 7},
		{4, 16, 26, 16, 4},
		{1, 4, 7, 4, 1},
	}
	kernelSum := 273.0

	result := make([]float64, width*height)
	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < width; x++ {
				var sum float64
				for ky := -2; ky <= 2; ky++ {
					for kx := -2; kx <= 2; kx++ {
						py := clamp(y+ky, 0, height-1)
						px := clamp(x+kx, 0, width-1)
						sum += img[py*width+px] * kernel[ky+2][kx+2]
					}
				}
				result[y*width+x] = sum / kernelSum
			}
		}
	})
	return result
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
