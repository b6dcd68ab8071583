package video

import (
	"encoding/binary"
	"image"
)

// packRGB565 writes img into dst as little-endian RGB565 rows of stride
// bytes. Pixels that do not fit in dst are skipped.
func packRGB565(img *image.RGBA, dst []byte, stride int) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			i := x * 4
			fbIdx := y*stride + x*2
			if fbIdx+1 >= len(dst) {
				return
			}
			binary.LittleEndian.PutUint16(dst[fbIdx:], rgb565(row[i], row[i+1], row[i+2]))
		}
	}
}

func rgb565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// fit returns the largest rectangle with the aspect of src that fits in
// dst, centered.
func fit(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 || dw == 0 || dh == 0 {
		return image.Rectangle{}
	}
	w, h := dw, dw*sh/sw
	if h > dh {
		w, h = dh*sw/sh, dh
	}
	x := dst.Min.X + (dw-w)/2
	y := dst.Min.Y + (dh-h)/2
	return image.Rect(x, y, x+w, y+h)
}
