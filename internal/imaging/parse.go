package imaging

import (
	"fmt"
	"image"

	"github.com/goccy/go-json"

	"github.com/ironsheep/imgengine/internal/pixel"
)

// stepHeader selects the operation of one pipeline description entry.
type stepHeader struct {
	Op string `json:"op"`
}

// ParsePipeline builds a pipeline from a JSON description.
//
// The description is an array of objects, each naming its operation in
// "op" and carrying that operation's parameters alongside:
//
//	[
//	  {"op": "auto-orient"},
//	  {"op": "crop", "x1": 0, "y1": 0, "x2": 640, "y2": 480},
//	  {"op": "resize", "width": 320, "height": 240, "kernel": "lanczos"},
//	  {"op": "adjust", "brightness": 0.1}
//	]
//
// Parameters:
//   - data: The JSON document.
//
// Returns:
//   - *Pipeline: The described steps in order.
//   - error: A TransformError(InvalidParameters) naming the offending entry
//     when the document is malformed or an operation is unknown.
//
// # Defaults
//
// Optional parameters follow the operation defaults: grid spacing 50 and
// color "#FF000080", edge thresholds 50/150, resize kernel lanczos. Composite
// steps cannot be described this way because they need an overlay buffer.
//
// Parameters are only parsed here; range checks happen in each step's
// Validate when the pipeline runs.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, invalidf("parse", "pipeline must be a JSON array: %v", err)
	}

	ops := make([]Operation, 0, len(entries))
	for i, raw := range entries {
		var h stepHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, invalidf("parse", "step %d: %v", i, err)
		}
		op, err := parseStep(h.Op, raw)
		if err != nil {
			return nil, invalidf("parse", "step %d (%s): %v", i, h.Op, err)
		}
		ops = append(ops, op)
	}
	return NewPipeline(ops...), nil
}

// parseStep dispatches one entry to its argument decoder.
func parseStep(name string, args json.RawMessage) (Operation, error) {
	switch name {
	// Geometry
	case "resize":
		return parseResize(args)
	case "crop":
		return parseCrop(args)
	case "region":
		return decodeInto(args, &Region{})
	case "rotate":
		return decodeInto(args, &Rotate{})
	case "flip":
		return decodeInto(args, &Flip{})
	case "auto-orient":
		return AutoOrient{}, nil

	// Color
	case "convert":
		return parseConvert(args)
	case "tint":
		return decodeInto(args, &Tint{})
	case "adjust":
		return decodeInto(args, &Adjust{})
	case "invert":
		return Invert{}, nil

	// Filters
	case "convolve":
		return decodeInto(args, &Convolve{})
	case "blur":
		return decodeInto(args, &Blur{})
	case "box-blur":
		return decodeInto(args, &BoxBlur{})
	case "sharpen":
		return decodeInto(args, &Sharpen{})
	case "median":
		return decodeInto(args, &Median{})
	case "edge-detect":
		return parseEdgeDetect(args)

	// Drawing
	case "grid":
		return parseGrid(args)
	case "composite":
		return nil, fmt.Errorf("composite needs an overlay buffer and cannot be described")

	case "":
		return nil, fmt.Errorf("missing \"op\"")
	default:
		return nil, fmt.Errorf("unknown operation: %s", name)
	}
}

// decodeInto unmarshals args into an operation value. Field names match
// case-insensitively, so {"degrees": 90} fills Rotate.Degrees.
func decodeInto[T Operation](args json.RawMessage, op *T) (Operation, error) {
	if err := json.Unmarshal(args, op); err != nil {
		return nil, err
	}
	return *op, nil
}

type resizeArgs struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Kernel string `json:"kernel"`
}

func parseResize(args json.RawMessage) (Operation, error) {
	var a resizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Kernel == "" {
		a.Kernel = "lanczos"
	}
	k, err := ParseKernel(a.Kernel)
	if err != nil {
		return nil, err
	}
	return Resize{Width: a.Width, Height: a.Height, Kernel: k}, nil
}

type cropArgs struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func parseCrop(args json.RawMessage) (Operation, error) {
	var a cropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	// image.Rect would canonicalize swapped corners; keep them as given so
	// Validate reports an empty region.
	return Crop{Rect: image.Rectangle{Min: image.Pt(a.X1, a.Y1), Max: image.Pt(a.X2, a.Y2)}}, nil
}

type convertArgs struct {
	To string `json:"to"`
}

func parseConvert(args json.RawMessage) (Operation, error) {
	var a convertArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	f, err := pixel.ParseFormat(a.To)
	if err != nil {
		return nil, err
	}
	return Convert{To: f}, nil
}

type edgeDetectArgs struct {
	ThresholdLow  int `json:"threshold_low"`
	ThresholdHigh int `json:"threshold_high"`
}

func parseEdgeDetect(args json.RawMessage) (Operation, error) {
	var a edgeDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.ThresholdLow == 0 {
		a.ThresholdLow = 50
	}
	if a.ThresholdHigh == 0 {
		a.ThresholdHigh = 150
	}
	return EdgeDetect{Low: a.ThresholdLow, High: a.ThresholdHigh}, nil
}

type gridArgs struct {
	GridSpacing     int    `json:"grid_spacing"`
	ShowCoordinates bool   `json:"show_coordinates"`
	GridColor       string `json:"grid_color"`
}

func parseGrid(args json.RawMessage) (Operation, error) {
	var a gridArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.GridSpacing == 0 {
		a.GridSpacing = 50
	}
	if a.GridColor == "" {
		a.GridColor = DefaultGridColor
	}
	return Grid{Spacing: a.GridSpacing, Color: a.GridColor, Labels: a.ShowCoordinates}, nil
}
