package codec

import (
	"context"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"

	"github.com/ironsheep/imgengine/internal/pixel"
)

var bmpSignature = signature{"BM"}

var bmpFormat = stdFormat{
	format: BMP,
	config: bmp.DecodeConfig,
	decode: bmp.Decode,
}

type bmpCodec struct{}

func (bmpCodec) Format() string { return BMP }
func (bmpCodec) Probe(data []byte) bool { return bmpSignature.probe(data) }
func (bmpCodec) NearMatch(data []byte) bool { return bmpSignature.nearMatch(data) }
func (bmpCodec) Inspect(data []byte) (Descriptor, error) { return bmpFormat.inspect(data) }

func (bmpCodec) Decode(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error) {
	return bmpFormat.decodeInto(ctx, data, p, lim)
}

func (bmpCodec) Encode(w io.Writer, buf *pixel.Buffer, _ EncodeOptions) error {
	return encodeStd(w, buf, imaging.BMP)
}
