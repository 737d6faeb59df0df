package codec

import "fmt"

// ImageInfo contains summary metadata about an encoded image.
//
// This struct provides essential information about an image without requiring
// the caller to decode pixel data. It embeds the full Descriptor and adds the
// presentation fields callers usually want to log or report.
type ImageInfo struct {
	Descriptor

	// ColorDepth is the bit depth per channel: "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth"`

	// SizeBytes is the length of the encoded input.
	SizeBytes int `json:"size_bytes"`

	// DisplayWidth and DisplayHeight are the dimensions after the EXIF
	// orientation is applied.
	DisplayWidth  int `json:"display_width"`
	DisplayHeight int `json:"display_height"`
}

// Info inspects data and returns comprehensive metadata about it.
//
// Parameters:
//   - data: The encoded image bytes.
//
// Returns:
//   - *ImageInfo: Metadata about the image.
//   - error: Non-nil if the format is not recognized or the header is invalid.
//
// # Format Detection
//
// The format is determined by content signature, never by name, in registry
// probe order.
//
// # Color Depth Detection
//
// Color depth follows the header color model: 16-bit PNG and TIFF models
// report "16-bit", everything else "8-bit".
func (r *Registry) Info(data []byte) (*ImageInfo, error) {
	desc, err := r.Inspect(data)
	if err != nil {
		return nil, err
	}

	info := &ImageInfo{
		Descriptor:    desc,
		ColorDepth:    fmt.Sprintf("%d-bit", desc.BitDepth),
		SizeBytes:     len(data),
		DisplayWidth:  desc.Width,
		DisplayHeight: desc.Height,
	}
	if desc.Orientation.SwapsAxes() {
		info.DisplayWidth, info.DisplayHeight = desc.Height, desc.Width
	}
	return info, nil
}

// Dimensions returns the stored width and height of an encoded image.
//
// This is a lightweight alternative to Info when only the size is needed.
func (r *Registry) Dimensions(data []byte) (width, height int, err error) {
	desc, err := r.Inspect(data)
	if err != nil {
		return 0, 0, err
	}
	return desc.Width, desc.Height, nil
}
