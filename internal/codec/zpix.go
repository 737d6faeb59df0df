package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// zpix is the engine's native lossless container: a fixed header followed by
// one zstd frame holding the visible rows of every plane, without stride
// padding.
//
//	offset  size  field
//	0       4     "ZPIX"
//	4       1     version (1)
//	5       1     pixel format
//	6       1     orientation
//	7       1     reserved (0)
//	8       4     width, big endian
//	12      4     height, big endian
//	16      -     zstd frame
const (
	zpixMagic      = "ZPIX"
	zpixVersion    = 1
	zpixHeaderSize = 16
)

var zpixSignature = signature{zpixMagic}

// ZPixCodec is the zpix codec. Its zstd encoders and decoders are pooled per
// instance.
type ZPixCodec struct {
	encoders [5]sync.Pool // indexed by level, 0 = default
	decoders sync.Pool
}

// NewZPix returns a zpix codec.
func NewZPix() *ZPixCodec {
	z := &ZPixCodec{}
	for i := range z.encoders {
		level := zstdLevel(i)
		z.encoders[i].New = func() any {
			enc, err := zstd.NewWriter(nil,
				zstd.WithEncoderConcurrency(1),
				zstd.WithEncoderLevel(level),
				zstd.WithLowerEncoderMem(true),
			)
			if err != nil {
				panic(err)
			}
			return enc
		}
	}
	z.decoders.New = func() any {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
		)
		if err != nil {
			panic(err)
		}
		return dec
	}
	return z
}

func zstdLevel(i int) zstd.EncoderLevel {
	switch i {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func (*ZPixCodec) Format() string { return ZPix }

func (*ZPixCodec) Probe(data []byte) bool { return zpixSignature.probe(data) }

func (*ZPixCodec) NearMatch(data []byte) bool { return zpixSignature.nearMatch(data) }

type zpixHeader struct {
	format      pixel.Format
	orientation pixel.Orientation
	width       int
	height      int
}

func readZPixHeader(data []byte) (zpixHeader, error) {
	if len(data) < zpixHeaderSize {
		return zpixHeader{}, fault.Decodef(fault.Truncated, ZPix, "header is %d bytes, need %d", len(data), zpixHeaderSize)
	}
	if v := data[4]; v != zpixVersion {
		return zpixHeader{}, fault.Decodef(fault.UnsupportedFormat, ZPix, "version %d", v)
	}
	h := zpixHeader{
		format:      pixel.Format(data[5]),
		orientation: pixel.Orientation(data[6]),
		width:       int(binary.BigEndian.Uint32(data[8:12])),
		height:      int(binary.BigEndian.Uint32(data[12:16])),
	}
	if !h.format.Valid() {
		return zpixHeader{}, fault.Decodef(fault.CorruptData, ZPix, "unknown pixel format %d", data[5])
	}
	if h.orientation > pixel.OrientationRotate90 {
		return zpixHeader{}, fault.Decodef(fault.CorruptData, ZPix, "orientation %d", data[6])
	}
	return h, nil
}

func (h zpixHeader) descriptor() Descriptor {
	d := Descriptor{
		Format:       ZPix,
		Width:        h.width,
		Height:       h.height,
		PixelFormat:  h.format,
		ColorProfile: "sRGB",
		BitDepth:     8,
		Orientation:  h.orientation,
	}
	switch h.format {
	case pixel.Gray8:
		d.ColorModel = "gray"
	case pixel.YUV420:
		d.ColorModel = "ycbcr"
	default:
		d.ColorModel, d.HasAlpha = "rgba", true
	}
	return d
}

// Inspect reads the fixed header.
func (z *ZPixCodec) Inspect(data []byte) (Descriptor, error) {
	h, err := readZPixHeader(data)
	if err != nil {
		return Descriptor{}, err
	}
	return h.descriptor(), nil
}

// Decode streams the zstd payload row by row into a pooled buffer.
func (z *ZPixCodec) Decode(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error) {
	h, err := readZPixHeader(data)
	if err != nil {
		return nil, Descriptor{}, err
	}
	if err := lim.check(ZPix, h.width, h.height); err != nil {
		return nil, Descriptor{}, err
	}

	buf, err := pixel.Alloc(ctx, p, h.width, h.height, h.format)
	if err != nil {
		return nil, Descriptor{}, err
	}
	defer pixel.ReleaseOnPanic(&buf)

	dec := z.decoders.Get().(*zstd.Decoder)
	defer z.decoders.Put(dec)
	if err := dec.Reset(bytes.NewReader(data[zpixHeaderSize:])); err != nil {
		buf.Release()
		return nil, Descriptor{}, zpixReadError(err)
	}

	err = forEachRow(buf, func(row []byte) error {
		_, err := io.ReadFull(dec, row)
		return err
	})
	if err == nil {
		var extra [1]byte
		if n, rerr := dec.Read(extra[:]); n > 0 {
			err = fault.Decodef(fault.CorruptData, ZPix, "trailing pixel data")
		} else if rerr != nil && !errors.Is(rerr, io.EOF) {
			err = rerr
		}
	}
	if err != nil {
		buf.Release()
		return nil, Descriptor{}, zpixReadError(err)
	}
	return buf, h.descriptor(), nil
}

func zpixReadError(err error) error {
	var fe *fault.Error
	switch {
	case errors.As(err, &fe):
		return err
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return fault.Decodef(fault.Truncated, ZPix, "%w", err)
	default:
		return fault.Decodef(fault.CorruptData, ZPix, "%w", err)
	}
}

// Encode writes the header and one zstd frame.
func (z *ZPixCodec) Encode(w io.Writer, buf *pixel.Buffer, opts EncodeOptions) error {
	if buf.Released() {
		return fault.Encodef(fault.EncodingFailure, ZPix, "buffer already released")
	}
	if opts.ZstdLevel < 0 || opts.ZstdLevel >= len(z.encoders) {
		return fault.Encodef(fault.EncodingFailure, ZPix, "zstd level %d out of range 1-4", opts.ZstdLevel)
	}

	var hdr [zpixHeaderSize]byte
	copy(hdr[:], zpixMagic)
	hdr[4] = zpixVersion
	hdr[5] = byte(buf.Format)
	hdr[6] = byte(buf.Orientation)
	binary.BigEndian.PutUint32(hdr[8:], uint32(buf.Width))
	binary.BigEndian.PutUint32(hdr[12:], uint32(buf.Height))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	pool := &z.encoders[opts.ZstdLevel]
	enc := pool.Get().(*zstd.Encoder)
	defer pool.Put(enc)
	enc.Reset(w)

	err := forEachRow(buf, func(row []byte) error {
		_, err := enc.Write(row)
		return err
	})
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	return err
}

// forEachRow visits the visible bytes of every row of every plane in
// storage order.
func forEachRow(buf *pixel.Buffer, fn func(row []byte) error) error {
	for y := 0; y < buf.Height; y++ {
		if err := fn(buf.Row(y)); err != nil {
			return err
		}
	}
	if !buf.Format.Planar() {
		return nil
	}
	l := buf.Layout()
	_, cb, cr := buf.Planes()
	cs, cw := l.ChromaStride(), l.ChromaWidth()
	for _, plane := range [][]byte{cb, cr} {
		for y := 0; y < l.ChromaHeight(); y++ {
			if err := fn(plane[y*cs : y*cs+cw]); err != nil {
				return err
			}
		}
	}
	return nil
}
