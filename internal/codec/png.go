package codec

import (
	"context"
	"encoding/binary"
	"image/png"
	"io"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/imgengine/internal/pixel"
)

var pngSignature = signature{"\x89PNG\r\n\x1a\n"}

var pngFormat = stdFormat{
	format: PNG,
	config: png.DecodeConfig,
	decode: png.Decode,
	meta: func(data []byte, d *Descriptor) {
		if pngHasICC(data) {
			d.ColorProfile = "icc"
		}
	},
}

type pngCodec struct{}

func (pngCodec) Format() string { return PNG }
func (pngCodec) Probe(data []byte) bool { return pngSignature.probe(data) }
func (pngCodec) NearMatch(data []byte) bool { return pngSignature.nearMatch(data) }
func (pngCodec) Inspect(data []byte) (Descriptor, error) { return pngFormat.inspect(data) }

func (pngCodec) Decode(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error) {
	return pngFormat.decodeInto(ctx, data, p, lim)
}

func (pngCodec) Encode(w io.Writer, buf *pixel.Buffer, opts EncodeOptions) error {
	level := png.DefaultCompression
	switch opts.PNGCompression {
	case PNGNone:
		level = png.NoCompression
	case PNGSpeed:
		level = png.BestSpeed
	case PNGBest:
		level = png.BestCompression
	}
	return encodeStd(w, buf, imaging.PNG, imaging.PNGCompressionLevel(level))
}

// pngHasICC walks the chunk list up to the first IDAT looking for iCCP.
func pngHasICC(data []byte) bool {
	off := len(pngSignature[0])
	for off+8 <= len(data) {
		n := int(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		switch typ {
		case "iCCP":
			return true
		case "IDAT", "IEND":
			return false
		}
		off += 12 + n
		if n < 0 || off < 0 {
			return false
		}
	}
	return false
}
