//go:build !gst

package camera

// GStreamerSupported reports whether the GStreamer source is compiled in.
func GStreamerSupported() bool {
	return false
}

// GStreamer is a stub when GStreamer support is not compiled in.
type GStreamer struct{}

// NewGStreamer returns ErrNotCompiled; build with -tags=gst.
func NewGStreamer(cfg Config, light Light) (*GStreamer, error) {
	return nil, ErrNotCompiled
}

func (g *GStreamer) Name() string                              { return "gst" }
func (g *GStreamer) Start(Target, Consumer) (*Session, error) { return nil, ErrNotCompiled }
func (g *GStreamer) Stop(s *Session) error                     { return nil }
