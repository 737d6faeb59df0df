package codec

import (
	"context"
	"encoding/binary"
	"image/jpeg"
	"io"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/imgengine/internal/pixel"
)

var jpegSignature = signature{"\xff\xd8\xff"}

var jpegFormat = stdFormat{
	format: JPEG,
	config: jpeg.DecodeConfig,
	decode: jpeg.Decode,
	meta: func(data []byte, d *Descriptor) {
		m := readJPEGMeta(data)
		d.Orientation = m.orientation
		if m.icc {
			d.ColorProfile = "icc"
		}
	},
}

type jpegCodec struct{}

func (jpegCodec) Format() string { return JPEG }
func (jpegCodec) Probe(data []byte) bool { return jpegSignature.probe(data) }
func (jpegCodec) NearMatch(data []byte) bool { return jpegSignature.nearMatch(data) }
func (jpegCodec) Inspect(data []byte) (Descriptor, error) { return jpegFormat.inspect(data) }

func (jpegCodec) Decode(ctx context.Context, data []byte, p *pixel.Pool, lim Limits) (*pixel.Buffer, Descriptor, error) {
	return jpegFormat.decodeInto(ctx, data, p, lim)
}

func (jpegCodec) Encode(w io.Writer, buf *pixel.Buffer, opts EncodeOptions) error {
	q := opts.Quality
	if q == 0 {
		q = DefaultQuality
	}
	return encodeStd(w, buf, imaging.JPEG, imaging.JPEGQuality(q))
}

type jpegMeta struct {
	orientation pixel.Orientation
	icc         bool
}

// readJPEGMeta walks the marker segments before the first scan, picking up
// the EXIF orientation from APP1 and an ICC profile from APP2. Malformed
// metadata is ignored.
func readJPEGMeta(data []byte) jpegMeta {
	const (
		markerAPP1 = 0xe1
		markerAPP2 = 0xe2
		markerSOS  = 0xda
	)

	var m jpegMeta
	off := 2
	for off+4 <= len(data) {
		if data[off] != 0xff {
			return m
		}
		marker := data[off+1]
		if marker == 0xff {
			off++ // fill byte
			continue
		}
		if marker == markerSOS {
			return m
		}
		size := int(binary.BigEndian.Uint16(data[off+2:]))
		if size < 2 || off+2+size > len(data) {
			return m
		}
		seg := data[off+4 : off+2+size]
		switch marker {
		case markerAPP1:
			if o, ok := exifOrientation(seg); ok {
				m.orientation = o
			}
		case markerAPP2:
			if len(seg) >= 12 && string(seg[:12]) == "ICC_PROFILE\x00" {
				m.icc = true
			}
		}
		off += 2 + size
	}
	return m
}

// exifOrientation reads tag 0x0112 from IFD0 of an APP1 payload.
func exifOrientation(seg []byte) (pixel.Orientation, bool) {
	const orientationTag = 0x0112

	if len(seg) < 14 || string(seg[:6]) != "Exif\x00\x00" {
		return 0, false
	}
	tiffData := seg[6:]

	var order binary.ByteOrder
	switch string(tiffData[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, false
	}

	ifd := int(order.Uint32(tiffData[4:8]))
	if ifd < 8 || ifd+2 > len(tiffData) {
		return 0, false
	}
	n := int(order.Uint16(tiffData[ifd:]))
	for i := 0; i < n; i++ {
		e := ifd + 2 + i*12
		if e+12 > len(tiffData) {
			return 0, false
		}
		if order.Uint16(tiffData[e:]) != orientationTag {
			continue
		}
		v := order.Uint16(tiffData[e+8:])
		if v < 1 || v > 8 {
			return 0, false
		}
		return pixel.Orientation(v), true
	}
	return 0, false
}
