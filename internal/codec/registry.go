package codec

import (
	"bytes"
	"context"
	"errors"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// Registry is an ordered, immutable set of codecs.
//
// A Registry is safe for concurrent use once constructed; nothing mutates it
// afterwards.
type Registry struct {
	codecs   []Codec
	byFormat map[string]Codec
}

// NewRegistry builds a registry probing codecs in the given order. A format
// registered twice keeps its first entry.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{byFormat: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		if _, dup := r.byFormat[c.Format()]; dup {
			continue
		}
		r.codecs = append(r.codecs, c)
		r.byFormat[c.Format()] = c
	}
	return r
}

// Default returns a new registry with every built-in codec in probe order:
// zpix, png, jpeg, gif, webp, bmp, tiff.
func Default() *Registry {
	return NewRegistry(
		NewZPix(),
		pngCodec{},
		jpegCodec{},
		gifCodec{},
		webpCodec{},
		bmpCodec{},
		tiffCodec{},
	)
}

// Formats lists the registered format tags in probe order.
func (r *Registry) Formats() []string {
	out := make([]string, len(r.codecs))
	for i, c := range r.codecs {
		out[i] = c.Format()
	}
	return out
}

// Lookup returns the codec registered for format.
func (r *Registry) Lookup(format string) (Codec, bool) {
	c, ok := r.byFormat[format]
	return c, ok
}

// CanEncode reports whether format has an encoder.
func (r *Registry) CanEncode(format string) bool {
	_, ok := r.byFormat[format].(Encoder)
	return ok
}

// Detect returns the first codec whose signature matches data.
//
// # Errors
//
//   - DecodeError(Truncated) for empty input
//   - DecodeError(CorruptData) when a codec reports a near match
//   - DecodeError(UnsupportedFormat) otherwise
func (r *Registry) Detect(data []byte) (Codec, error) {
	if len(data) == 0 {
		return nil, fault.Decodef(fault.Truncated, "detect", "empty input")
	}
	for _, c := range r.codecs {
		if c.Probe(data) {
			return c, nil
		}
	}
	for _, c := range r.codecs {
		if c.NearMatch(data) {
			return nil, fault.Decodef(fault.CorruptData, "detect", "damaged %s signature", c.Format())
		}
	}
	return nil, fault.Decodef(fault.UnsupportedFormat, "detect", "unrecognized signature % x", head(data, 8))
}

func (r *Registry) decoder(data []byte) (Decoder, error) {
	c, err := r.Detect(data)
	if err != nil {
		return nil, err
	}
	d, ok := c.(Decoder)
	if !ok {
		return nil, fault.Decodef(fault.UnsupportedFormat, "detect", "%s has no decoder", c.Format())
	}
	return d, nil
}

// Inspect returns the descriptor of data without decoding pixels.
func (r *Registry) Inspect(data []byte) (Descriptor, error) {
	d, err := r.decoder(data)
	if err != nil {
		return Descriptor{}, err
	}
	desc, err := d.Inspect(data)
	if err != nil {
		return Descriptor{}, fault.Wrap(err, "inspect", fault.ClassDecode, fault.CorruptData)
	}
	return desc, nil
}

// Decode detects the format of data and decodes it into a buffer from p.
// The returned buffer carries the stream's EXIF orientation.
func (r *Registry) Decode(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error) {
	if lim.MaxInputBytes > 0 && int64(len(data)) > lim.MaxInputBytes {
		return nil, Descriptor{}, fault.Resourcef(fault.OutOfMemory, "decode", "input is %d bytes, limit is %d", len(data), lim.MaxInputBytes)
	}
	d, err := r.decoder(data)
	if err != nil {
		return nil, Descriptor{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Descriptor{}, fault.Cancelled("decode", err)
	}
	buf, desc, err := d.Decode(ctx, data, p, lim)
	if err != nil {
		return nil, Descriptor{}, fault.Wrap(err, "decode "+d.Format(), fault.ClassDecode, fault.CorruptData)
	}
	buf.Orientation = desc.Orientation
	return buf, desc, nil
}

// Encode serializes buf as format.
func (r *Registry) Encode(buf *pixel.Buffer, format string, opts EncodeOptions) ([]byte, error) {
	c, ok := r.byFormat[format]
	if !ok {
		return nil, fault.Encodef(fault.UnsupportedFormat, "encode", "unknown format %q", format)
	}
	e, ok := c.(Encoder)
	if !ok {
		return nil, fault.Encodef(fault.UnsupportedFormat, "encode", "%s is decode-only", format)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Grow(buf.Width * buf.Height)
	if err := e.Encode(&out, buf, opts); err != nil {
		return nil, fault.Wrap(err, "encode "+format, fault.ClassEncode, fault.EncodingFailure)
	}
	return out.Bytes(), nil
}

func (o EncodeOptions) validate() error {
	var errs []error
	if o.Quality < 0 || o.Quality > 100 {
		errs = append(errs, fault.Encodef(fault.EncodingFailure, "options", "quality %d out of range 1-100", o.Quality))
	}
	if o.PNGCompression < PNGDefault || o.PNGCompression > PNGBest {
		errs = append(errs, fault.Encodef(fault.EncodingFailure, "options", "unknown png compression %d", o.PNGCompression))
	}
	if o.GIFColors < 0 || o.GIFColors > 256 {
		errs = append(errs, fault.Encodef(fault.EncodingFailure, "options", "gif colors %d out of range 1-256", o.GIFColors))
	}
	if o.ZstdLevel < 0 || o.ZstdLevel > 4 {
		errs = append(errs, fault.Encodef(fault.EncodingFailure, "options", "zstd level %d out of range 1-4", o.ZstdLevel))
	}
	return errors.Join(errs...)
}

func head(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
