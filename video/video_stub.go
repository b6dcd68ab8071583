//go:build !screen

package video

import (
	"image"

	"scanbox/presenter"
	"scanbox/recognizer"
)

// ScreenSupported returns whether screen support is compiled in.
func ScreenSupported() bool {
	return false
}

// Config holds video display configuration.
type Config struct {
	Device string `yaml:"device"`
}

// Video is a stub when screen support is not compiled in.
type Video struct{}

// New returns an error when screen support is not compiled in.
func New(cfg Config) (*Video, error) {
	return nil, ErrScreenNotCompiled
}

func (v *Video) Width() int                                           { return 0 }
func (v *Video) Height() int                                          { return 0 }
func (v *Video) Render(img image.Image)                               {}
func (v *Video) ShowPayload(p recognizer.Payload, l []presenter.Link) {}
func (v *Video) ShowMessage(kind presenter.MessageKind, msg string)   {}
func (v *Video) Clear()                                               {}
func (v *Video) Idle()                                                {}
func (v *Video) Scanning()                                            {}
func (v *Video) Found()                                               {}
func (v *Video) Denied()                                              {}
func (v *Video) Shutdown()                                            {}
func (v *Video) Release() error                                       { return nil }
