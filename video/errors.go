package video

import "github.com/pkg/errors"

var (
	// ErrScreenNotCompiled is returned by New in builds without -tags=screen.
	ErrScreenNotCompiled = errors.New("video: screen support not compiled in")

	// ErrPixelFormat is returned when the framebuffer is not RGB565.
	ErrPixelFormat = errors.New("video: framebuffer is not 16 bpp")
)
