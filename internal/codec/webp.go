package codec

import (
	"context"

	"golang.org/x/image/webp"

	"github.com/ironsheep/imgengine/internal/pixel"
)

var webpSignature = signature{"RIFF????WEBP"}

var webpFormat = stdFormat{
	format: WebP,
	config: webp.DecodeConfig,
	decode: webp.Decode,
}

// webpCodec is decode-only; it does not implement Encoder.
type webpCodec struct{}

func (webpCodec) Format() string { return WebP }
func (webpCodec) Probe(data []byte) bool { return webpSignature.probe(data) }
func (webpCodec) NearMatch(data []byte) bool { return webpSignature.nearMatch(data) }
func (webpCodec) Inspect(data []byte) (Descriptor, error) { return webpFormat.inspect(data) }

func (webpCodec) Decode(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error) {
	return webpFormat.decodeInto(ctx, data, p, lim)
}
