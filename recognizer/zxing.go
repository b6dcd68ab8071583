package recognizer

import (
	"context"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/pkg/errors"

	"scanbox/camera"
)

var readers = map[string]func() gozxing.Reader{
	"qr_code":  qrcode.NewQRCodeReader,
	"code_128": oned.NewCode128Reader,
	"ean_13":   oned.NewEAN13Reader,
	"data_matrix": func() gozxing.Reader { return datamatrix.NewDataMatrixReader() },
}

// DefaultFormats are tried in this order when none are configured.
var DefaultFormats = []string{"qr_code", "data_matrix", "code_128", "ean_13"}

type reader struct {
	format string
	r      gozxing.Reader
}

// ZXing tries each configured format in turn. Results come back in format
// order, at most one per format.
type ZXing struct {
	readers []reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZXing creates a ZXing recognizer.
func NewZXing(cfg Config) (*ZXing, error) {
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = DefaultFormats
	}

	z := &ZXing{}
	for _, f := range formats {
		mk, ok := readers[f]
		if !ok {
			return nil, errors.Errorf("unsupported format %q", f)
		}
		z.readers = append(z.readers, reader{format: f, r: mk()})
	}
	if cfg.TryHarder {
		z.hints = map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		}
	}
	return z, nil
}

// Process implements Recognizer.Process.
func (z *ZXing) Process(ctx context.Context, f *camera.Frame) ([]Payload, error) {
	if f == nil || f.Image == nil {
		return nil, errors.Wrap(ErrRecognition, "empty frame")
	}
	return z.Decode(ctx, Upright(f.Image, f.Rotation))
}

// Decode runs every reader against img.
func (z *ZXing) Decode(ctx context.Context, img image.Image) ([]Payload, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, errors.Wrapf(ErrRecognition, "binarize: %v", err)
	}

	var out []Payload
	for _, rd := range z.readers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := rd.r.Decode(bmp, z.hints)
		rd.r.Reset()
		if err != nil {
			var re gozxing.ReaderException
			if errors.As(err, &re) {
				continue // nothing of this format
			}
			return nil, errors.Wrapf(ErrRecognition, "%s: %v", rd.format, err)
		}
		out = append(out, Payload{Text: res.GetText(), Format: rd.format})
	}
	return out, nil
}
