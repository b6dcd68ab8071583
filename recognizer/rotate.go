package recognizer

import (
	"image"

	"github.com/fogleman/gg"
)

// Upright rotates img clockwise by degrees so codes are decoded in display
// orientation. Only multiples of 90 are applied.
func Upright(img image.Image, degrees int) image.Image {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 || degrees%90 != 0 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if degrees != 180 {
		w, h = h, w
	}

	dc := gg.NewContext(w, h)
	dc.Translate(float64(w)/2, float64(h)/2)
	dc.Rotate(gg.Radians(float64(degrees)))
	dc.DrawImageAnchored(img, 0, 0, 0.5, 0.5)
	return dc.Image()
}
