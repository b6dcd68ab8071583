package camera

import (
	"math"

	"github.com/pkg/errors"
)

// AspectRatio is the capture aspect ratio requested from the pipeline.
type AspectRatio int

const (
	Ratio4x3 AspectRatio = iota
	Ratio16x9
)

// String returns the ratio in "w:h" form.
func (r AspectRatio) String() string {
	if r == Ratio16x9 {
		return "16:9"
	}
	return "4:3"
}

// Value returns width divided by height.
func (r AspectRatio) Value() float64 {
	if r == Ratio16x9 {
		return 16.0 / 9.0
	}
	return 4.0 / 3.0
}

// Width returns the capture width matching height for this ratio, rounded
// down to an even number as most encoders require.
func (r AspectRatio) Width(height int) int {
	w := int(float64(height) * r.Value())
	return w &^ 1
}

// AspectRatioFor picks the supported ratio closest to a w x h display.
// Portrait dimensions are compared as their landscape equivalent.
func AspectRatioFor(w, h int) AspectRatio {
	if w <= 0 || h <= 0 {
		return Ratio4x3
	}
	long, short := float64(w), float64(h)
	if short > long {
		long, short = short, long
	}
	preview := long / short
	if math.Abs(preview-Ratio4x3.Value()) <= math.Abs(preview-Ratio16x9.Value()) {
		return Ratio4x3
	}
	return Ratio16x9
}

// ParseAspectRatio parses "4:3" or "16:9". "auto" and "" resolve against
// the given display size.
func ParseAspectRatio(s string, displayW, displayH int) (AspectRatio, error) {
	switch s {
	case "4:3":
		return Ratio4x3, nil
	case "16:9":
		return Ratio16x9, nil
	case "", "auto":
		return AspectRatioFor(displayW, displayH), nil
	default:
		return Ratio4x3, errors.Errorf("invalid aspect ratio %q", s)
	}
}
