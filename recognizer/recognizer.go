// Package recognizer decodes machine-readable codes from camera frames.
package recognizer

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"scanbox/camera"
)

// ErrRecognition wraps failures of the decoding backend.
var ErrRecognition = errors.New("recognition failed")

// Payload is one decoded code.
type Payload struct {
	Text   string
	Format string
}

func (p Payload) String() string {
	return fmt.Sprintf("%s:%q", p.Format, p.Text)
}

// Recognizer finds codes in a frame. It must not close the frame; the
// caller owns it. An empty result means nothing was found.
type Recognizer interface {
	Process(ctx context.Context, f *camera.Frame) ([]Payload, error)
}

// Config holds configuration for the recognizer.
type Config struct {
	Formats   []string `yaml:"formats" validate:"dive,oneof=qr_code code_128 ean_13 data_matrix"`
	TryHarder bool     `yaml:"try_harder"`
}

// New creates the configured Recognizer.
func New(cfg Config) (Recognizer, error) {
	return NewZXing(cfg)
}
