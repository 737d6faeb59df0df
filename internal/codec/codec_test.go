package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// createPatternBuffer creates a buffer with a smooth gradient and, for RGBA,
// an opaque or graded alpha channel.
func createPatternBuffer(t *testing.T, width, height int, f pixel.Format, opaque bool) *pixel.Buffer {
	t.Helper()
	buf, err := pixel.New(width, height, f)
	if err != nil {
		t.Fatalf("pixel.New failed: %v", err)
	}
	for y := 0; y < height; y++ {
		row := buf.Row(y)
		switch f {
		case pixel.RGBA8, pixel.BGRA8:
			for x := 0; x < width; x++ {
				a := uint8(255)
				if !opaque {
					a = uint8(64 + (x*191)/width)
				}
				row[x*4+0] = uint8(x * 255 / width)
				row[x*4+1] = uint8(y * 255 / height)
				row[x*4+2] = uint8((x + y) * 127 / (width + height))
				row[x*4+3] = a
			}
		default:
			for x := range row {
				row[x] = uint8((x + y) * 255 / (width + height))
			}
		}
	}
	if f.Planar() {
		_, cb, cr := buf.Planes()
		for i := range cb {
			cb[i] = uint8(100 + i%50)
			cr[i] = uint8(150 - i%50)
		}
	}
	return buf
}

func encodeBuffer(t *testing.T, r *Registry, buf *pixel.Buffer, format string, opts EncodeOptions) []byte {
	t.Helper()
	data, err := r.Encode(buf, format, opts)
	if err != nil {
		t.Fatalf("Encode(%s) failed: %v", format, err)
	}
	return data
}

func psnr(a, b *pixel.Buffer) float64 {
	var sum float64
	var n int
	for y := 0; y < a.Height; y++ {
		ra, rb := a.Row(y), b.Row(y)
		for i := range ra {
			if i%4 == 3 {
				continue
			}
			d := float64(ra[i]) - float64(rb[i])
			sum += d * d
			n++
		}
	}
	if sum == 0 {
		return math.Inf(1)
	}
	mse := sum / float64(n)
	return 10 * math.Log10(255*255/mse)
}

func TestDefaultRegistryOrder(t *testing.T) {
	got := Default().Formats()
	want := []string{ZPix, PNG, JPEG, GIF, WebP, BMP, TIFF}
	if len(got) != len(want) {
		t.Fatalf("Formats() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Formats()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	r := Default()
	if r.CanEncode(WebP) {
		t.Error("webp should be decode-only")
	}
	if !r.CanEncode(PNG) || !r.CanEncode(ZPix) {
		t.Error("png and zpix should be encodable")
	}
}

func TestNewRegistryKeepsFirstDuplicate(t *testing.T) {
	first := NewZPix()
	r := NewRegistry(first, pngCodec{}, NewZPix())
	if len(r.Formats()) != 2 {
		t.Fatalf("expected 2 formats, got %v", r.Formats())
	}
	c, _ := r.Lookup(ZPix)
	if c != Codec(first) {
		t.Error("duplicate registration replaced the first codec")
	}
}

func TestLosslessRoundTrip(t *testing.T) {
	r := Default()
	ctx := context.Background()

	tests := []struct {
		format string
		pix    pixel.Format
		opaque bool
	}{
		{PNG, pixel.RGBA8, true},
		{PNG, pixel.RGBA8, false},
		{PNG, pixel.Gray8, true},
		{BMP, pixel.RGBA8, true},
		{TIFF, pixel.RGBA8, true},
		{TIFF, pixel.RGBA8, false},
		{ZPix, pixel.RGBA8, false},
		{ZPix, pixel.BGRA8, false},
		{ZPix, pixel.Gray8, true},
		{ZPix, pixel.YUV420, true},
	}

	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.pix.String(), func(t *testing.T) {
			pool := pixel.NewPool(pixel.PoolConfig{Capacity: 4})
			src := createPatternBuffer(t, 37, 23, tt.pix, tt.opaque)

			data := encodeBuffer(t, r, src, tt.format, EncodeOptions{})
			out, desc, err := r.Decode(ctx, data, pool, DefaultLimits())
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			defer out.Release()

			if desc.Format != tt.format {
				t.Errorf("detected %q, want %q", desc.Format, tt.format)
			}
			if out.Format != tt.pix {
				t.Fatalf("decoded format %s, want %s", out.Format, tt.pix)
			}
			if !pixel.Equal(out, src) {
				t.Error("pixels changed in lossless round trip")
			}
			out.CheckInvariant()
		})
	}
}

func TestZPixLevelsAndOrientation(t *testing.T) {
	r := Default()
	src := createPatternBuffer(t, 16, 9, pixel.RGBA8, false)
	src.Orientation = pixel.OrientationRotate90

	for level := 0; level <= 4; level++ {
		data := encodeBuffer(t, r, src, ZPix, EncodeOptions{ZstdLevel: level})
		out, desc, err := r.Decode(context.Background(), data, nil, Limits{})
		if err != nil {
			t.Fatalf("level %d: Decode failed: %v", level, err)
		}
		if desc.Orientation != pixel.OrientationRotate90 || out.Orientation != pixel.OrientationRotate90 {
			t.Errorf("level %d: orientation %d/%d, want %d", level, desc.Orientation, out.Orientation, pixel.OrientationRotate90)
		}
		if !pixel.Equal(out, src) {
			t.Errorf("level %d: pixels changed", level)
		}
		out.Release()
	}
}

func TestZPixTrailingAndTruncated(t *testing.T) {
	r := Default()
	pool := pixel.NewPool(pixel.PoolConfig{Capacity: 2})
	src := createPatternBuffer(t, 40, 30, pixel.RGBA8, true)
	data := encodeBuffer(t, r, src, ZPix, EncodeOptions{})

	trailing := append(append([]byte{}, data...), []byte("GARBAGE!")...)
	if _, _, err := r.Decode(context.Background(), trailing, pool, Limits{}); !errors.Is(err, fault.ErrCorruptData) {
		t.Errorf("trailing bytes: expected CorruptData, got %v", err)
	}

	cut := data[:zpixHeaderSize+(len(data)-zpixHeaderSize)/2]
	if _, _, err := r.Decode(context.Background(), cut, pool, Limits{}); !errors.Is(err, fault.ErrDecode) {
		t.Errorf("truncated payload: expected a decode error, got %v", err)
	}

	if _, _, err := r.Decode(context.Background(), data[:10], pool, Limits{}); !errors.Is(err, fault.ErrTruncated) {
		t.Errorf("short header: expected Truncated, got %v", err)
	}

	if s := pool.Stats(); s.Outstanding != 0 {
		t.Errorf("failed decodes leaked %d buffers", s.Outstanding)
	}
}

func TestJPEGQuality(t *testing.T) {
	r := Default()
	src := createPatternBuffer(t, 64, 64, pixel.RGBA8, true)

	data := encodeBuffer(t, r, src, JPEG, EncodeOptions{})
	out, desc, err := r.Decode(context.Background(), data, nil, DefaultLimits())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer out.Release()

	if desc.ColorModel != "ycbcr" || desc.PixelFormat != pixel.RGBA8 {
		t.Errorf("descriptor = %+v", desc)
	}
	if p := psnr(src, out); p < 30 {
		t.Errorf("PSNR %.1f dB at default quality, want >= 30", p)
	}

	small := encodeBuffer(t, r, src, JPEG, EncodeOptions{Quality: 10})
	if len(small) >= len(data) {
		t.Errorf("quality 10 (%d bytes) not smaller than quality 80 (%d bytes)", len(small), len(data))
	}
}

func TestDetectErrors(t *testing.T) {
	r := Default()
	pngData := encodeBuffer(t, r, createPatternBuffer(t, 8, 8, pixel.RGBA8, true), PNG, EncodeOptions{})

	corrupted := append([]byte{}, pngData...)
	corrupted[3] = 'X'

	tests := []struct {
		name   string
		data   []byte
		target error
	}{
		{"empty", nil, fault.ErrTruncated},
		{"corrupted png signature", corrupted, fault.ErrCorruptData},
		{"truncated png signature", pngData[:5], fault.ErrCorruptData},
		{"truncated jpeg signature", []byte{0xff, 0xd8}, fault.ErrCorruptData},
		{"gif version", []byte("GIF90a....."), fault.ErrCorruptData},
		{"plain text", []byte("hello, world"), fault.ErrDecodeUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := pixel.NewPool(pixel.PoolConfig{Capacity: 2})
			buf, _, err := r.Decode(context.Background(), tt.data, pool, DefaultLimits())
			if buf != nil {
				t.Fatal("decode returned a buffer on error")
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("got %v, want %v", err, tt.target)
			}
			if s := pool.Stats(); s.Outstanding != 0 || s.Allocated != 0 {
				t.Errorf("pool touched: %+v", s)
			}
		})
	}
}

func TestTruncatedPNG(t *testing.T) {
	r := Default()
	src := createPatternBuffer(t, 64, 64, pixel.RGBA8, false)
	data := encodeBuffer(t, r, src, PNG, EncodeOptions{PNGCompression: PNGNone})
	pool := pixel.NewPool(pixel.PoolConfig{Capacity: 2})

	for _, n := range []int{20, len(data) / 2, len(data) - 13} {
		_, _, err := r.Decode(context.Background(), data[:n], pool, DefaultLimits())
		if !errors.Is(err, fault.ErrTruncated) {
			t.Errorf("cut at %d of %d: expected Truncated, got %v", n, len(data), err)
		}
	}
	if s := pool.Stats(); s.Outstanding != 0 {
		t.Errorf("leaked %d buffers", s.Outstanding)
	}
}

func TestEncodeErrors(t *testing.T) {
	r := Default()
	buf := createPatternBuffer(t, 4, 4, pixel.RGBA8, true)

	tests := []struct {
		name   string
		format string
		opts   EncodeOptions
		target error
	}{
		{"unknown format", "xyz", EncodeOptions{}, fault.ErrEncodeUnsupported},
		{"decode-only format", WebP, EncodeOptions{}, fault.ErrEncodeUnsupported},
		{"quality too high", JPEG, EncodeOptions{Quality: 101}, fault.ErrEncodingFailure},
		{"negative quality", JPEG, EncodeOptions{Quality: -1}, fault.ErrEncodingFailure},
		{"gif colors", GIF, EncodeOptions{GIFColors: 300}, fault.ErrEncodingFailure},
		{"zstd level", ZPix, EncodeOptions{ZstdLevel: 9}, fault.ErrEncodingFailure},
		{"png compression", PNG, EncodeOptions{PNGCompression: 7}, fault.ErrEncodingFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Encode(buf, tt.format, tt.opts); !errors.Is(err, tt.target) {
				t.Errorf("got %v, want %v", err, tt.target)
			}
		})
	}
}

func TestLimits(t *testing.T) {
	r := Default()
	pool := pixel.NewPool(pixel.PoolConfig{Capacity: 2})
	src := createPatternBuffer(t, 32, 32, pixel.RGBA8, true)

	for _, format := range []string{PNG, JPEG, ZPix} {
		data := encodeBuffer(t, r, src, format, EncodeOptions{})

		if _, _, err := r.Decode(context.Background(), data, pool, Limits{MaxDimension: 16}); !errors.Is(err, fault.ErrOutOfMemory) {
			t.Errorf("%s: dimension limit: expected OutOfMemory, got %v", format, err)
		}
		if _, _, err := r.Decode(context.Background(), data, pool, Limits{MaxInputBytes: 10}); !errors.Is(err, fault.ErrOutOfMemory) {
			t.Errorf("%s: input limit: expected OutOfMemory, got %v", format, err)
		}
	}
	if s := pool.Stats(); s.Allocated != 0 {
		t.Errorf("limits must be checked before allocation, got %+v", s)
	}
}

func TestDecodeCancelled(t *testing.T) {
	r := Default()
	data := encodeBuffer(t, r, createPatternBuffer(t, 8, 8, pixel.RGBA8, true), PNG, EncodeOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := r.Decode(ctx, data, nil, Limits{}); !errors.Is(err, fault.ErrCancelled) {
		t.Errorf("expected Cancelled, got %v", err)
	}
}

// exifSegment builds a little-endian APP1 segment carrying one orientation tag.
func exifSegment(orientation uint16) []byte {
	var p bytes.Buffer
	p.WriteString("Exif\x00\x00")
	p.WriteString("II*\x00")
	binary.Write(&p, binary.LittleEndian, uint32(8))
	binary.Write(&p, binary.LittleEndian, uint16(1))
	binary.Write(&p, binary.LittleEndian, uint16(0x0112))
	binary.Write(&p, binary.LittleEndian, uint16(3))
	binary.Write(&p, binary.LittleEndian, uint32(1))
	binary.Write(&p, binary.LittleEndian, orientation)
	binary.Write(&p, binary.LittleEndian, uint16(0))
	binary.Write(&p, binary.LittleEndian, uint32(0))

	seg := []byte{0xff, 0xe1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(p.Len()+2))
	return append(seg, p.Bytes()...)
}

func spliceAfterSOI(data, seg []byte) []byte {
	out := append([]byte{}, data[:2]...)
	out = append(out, seg...)
	return append(out, data[2:]...)
}

func TestJPEGMetadata(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, img, nil); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}

	icc := append([]byte{0xff, 0xe2, 0, 16}, []byte("ICC_PROFILE\x00\x01\x01")...)
	data := spliceAfterSOI(spliceAfterSOI(enc.Bytes(), icc), exifSegment(6))

	r := Default()
	info, err := r.Info(data)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Orientation != pixel.OrientationRotate270 {
		t.Errorf("orientation = %d, want 6", info.Orientation)
	}
	if info.ColorProfile != "icc" {
		t.Errorf("color profile = %q, want icc", info.ColorProfile)
	}
	if info.DisplayWidth != 10 || info.DisplayHeight != 20 {
		t.Errorf("display size %dx%d, want 10x20", info.DisplayWidth, info.DisplayHeight)
	}
	if info.SizeBytes != len(data) || info.ColorDepth != "8-bit" {
		t.Errorf("info = %+v", info)
	}

	buf, _, err := r.Decode(context.Background(), data, nil, DefaultLimits())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer buf.Release()
	if buf.Orientation != pixel.OrientationRotate270 {
		t.Errorf("buffer orientation = %d, want 6", buf.Orientation)
	}
	if buf.Width != 20 || buf.Height != 10 {
		t.Errorf("decoded %dx%d, want stored size 20x10", buf.Width, buf.Height)
	}
}

func TestExifOrientationRejectsGarbage(t *testing.T) {
	tests := [][]byte{
		nil,
		[]byte("Exif\x00\x00XX*\x00\x08\x00\x00\x00"),
		[]byte("Exif\x00\x00II*\x00\xff\x00\x00\x00\x00\x00"),
		exifSegment(9)[4:],
	}
	for i, seg := range tests {
		if o, ok := exifOrientation(seg); ok {
			t.Errorf("case %d: got orientation %d from invalid data", i, o)
		}
	}
	if o, ok := exifOrientation(exifSegment(3)[4:]); !ok || o != pixel.OrientationRotate180 {
		t.Errorf("valid segment: got %d, %v", o, ok)
	}
}

func TestInspectDescriptors(t *testing.T) {
	r := Default()

	gray := createPatternBuffer(t, 12, 7, pixel.Gray8, true)
	d, err := r.Inspect(encodeBuffer(t, r, gray, PNG, EncodeOptions{}))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if d.ColorModel != "gray" || d.PixelFormat != pixel.Gray8 || d.HasAlpha || d.Width != 12 || d.Height != 7 {
		t.Errorf("gray png descriptor = %+v", d)
	}

	rgba := createPatternBuffer(t, 5, 5, pixel.RGBA8, false)
	d, _ = r.Inspect(encodeBuffer(t, r, rgba, PNG, EncodeOptions{}))
	if !d.HasAlpha || d.ColorModel != "rgba" {
		t.Errorf("rgba png descriptor = %+v", d)
	}

	d, _ = r.Inspect(encodeBuffer(t, r, rgba, GIF, EncodeOptions{GIFColors: 16}))
	if d.Format != GIF || d.ColorModel != "paletted" {
		t.Errorf("gif descriptor = %+v", d)
	}

	w, h, err := r.Dimensions(encodeBuffer(t, r, rgba, ZPix, EncodeOptions{}))
	if err != nil || w != 5 || h != 5 {
		t.Errorf("Dimensions = %d, %d, %v", w, h, err)
	}
}

func TestDescribePalette(t *testing.T) {
	d := describe(GIF, image.Config{
		ColorModel: color.Palette{color.Black, color.Transparent},
		Width:      1,
		Height:     1,
	})
	if d.ColorModel != "paletted" || !d.HasAlpha {
		t.Errorf("descriptor = %+v", d)
	}
}
