package codec

import (
	"context"
	"image/gif"
	"io"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/imgengine/internal/pixel"
)

var gifSignature = signature{"GIF87a", "GIF89a"}

// Only the first frame of an animation is decoded.
var gifFormat = stdFormat{
	format: GIF,
	config: gif.DecodeConfig,
	decode: gif.Decode,
}

type gifCodec struct{}

func (gifCodec) Format() string { return GIF }
func (gifCodec) Probe(data []byte) bool { return gifSignature.probe(data) }
func (gifCodec) NearMatch(data []byte) bool { return gifSignature.nearMatch(data) }
func (gifCodec) Inspect(data []byte) (Descriptor, error) { return gifFormat.inspect(data) }

func (gifCodec) Decode(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error) {
	return gifFormat.decodeInto(ctx, data, p, lim)
}

func (gifCodec) Encode(w io.Writer, buf *pixel.Buffer, opts EncodeOptions) error {
	n := opts.GIFColors
	if n == 0 {
		n = 256
	}
	return encodeStd(w, buf, imaging.GIF, imaging.GIFNumColors(n))
}
