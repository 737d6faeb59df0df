package codec

import (
	"context"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"

	"github.com/ironsheep/imgengine/internal/pixel"
)

var tiffSignature = signature{"II*\x00", "MM\x00*"}

var tiffFormat = stdFormat{
	format: TIFF,
	config: tiff.DecodeConfig,
	decode: tiff.Decode,
}

type tiffCodec struct{}

func (tiffCodec) Format() string { return TIFF }
func (tiffCodec) Probe(data []byte) bool { return tiffSignature.probe(data) }
func (tiffCodec) NearMatch(data []byte) bool { return tiffSignature.nearMatch(data) }
func (tiffCodec) Inspect(data []byte) (Descriptor, error) { return tiffFormat.inspect(data) }

func (tiffCodec) Decode(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error) {
	return tiffFormat.decodeInto(ctx, data, p, lim)
}

// Encode writes deflate-compressed TIFF.
func (tiffCodec) Encode(w io.Writer, buf *pixel.Buffer, _ EncodeOptions) error {
	return encodeStd(w, buf, imaging.TIFF)
}
