// Package camera owns the camera hardware claim and turns captures into a
// backpressured stream of frames for a single consumer.
//
// A Source is started against a Target and a Consumer. While the returned
// Session is active, at most one Frame is in flight: if the consumer has not
// released the previous frame, the next capture is dropped, never queued.
package camera

import (
	"image"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrHardwareUnavailable is returned by Start when the device cannot be claimed.
	ErrHardwareUnavailable = errors.New("camera hardware unavailable")

	// ErrSessionClosed is returned when a stopped session is used.
	ErrSessionClosed = errors.New("camera session closed")

	// ErrNotCompiled is returned when a source type was not compiled in.
	ErrNotCompiled = errors.New("camera source not compiled in")
)

var droppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "scanbox_frames_dropped_total",
	Help: "Captures dropped because the previous frame was still in flight.",
})

// Collectors returns the metrics maintained by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{droppedFrames}
}

// Surface receives every capture for live preview. Rendering is the
// surface owner's business; Render must not retain img.
type Surface interface {
	Render(img image.Image)
}

// Consumer receives frames from an active session. The consumer owns the
// frame and must Close it exactly once.
type Consumer func(f *Frame)

// Target describes where a session is bound: the preview surface plus the
// geometry hints the capture pipeline should honor.
type Target struct {
	Surface     Surface
	AspectRatio AspectRatio
	Rotation    int // degrees, one of 0, 90, 180, 270
}

// Light is the hardware behind the torch of a session.
type Light interface {
	Set(on bool) error
}

// Source is the camera provider.
//
// Start claims the hardware and begins delivering frames to consumer.
// Stop releases the claim; once it returns, Start may be called again.
// Stop on an already stopped session is a no-op.
type Source interface {
	Start(target Target, consumer Consumer) (*Session, error)
	Stop(s *Session) error
	Name() string
}

// Config selects and configures a Source.
type Config struct {
	Type        string  `yaml:"type" validate:"omitempty,oneof=files gst"` // "files" (default) or "gst"
	Device      string  `yaml:"device"`                                     // video node, or image directory for "files"
	AspectRatio string  `yaml:"aspect_ratio"`                               // "4:3", "16:9" or "auto"
	Height      int     `yaml:"height" validate:"gte=0"`                    // capture height in pixels ("gst")
	FPS         float64 `yaml:"fps" validate:"gte=0,lte=60"`
	Rotation    int     `yaml:"rotation" validate:"oneof=0 90 180 270"`
	Loop        bool    `yaml:"loop"` // replay the directory forever ("files")
}

// New creates a Source from cfg. The hardware is not claimed until Start.
func New(cfg Config, light Light) (Source, error) {
	if light == nil {
		light = noLight{}
	}
	switch cfg.Type {
	case "gst":
		g, err := NewGStreamer(cfg, light)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "files", "":
		f, err := NewFiles(cfg, light)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, errors.Errorf("unknown camera type %q", cfg.Type)
	}
}

type noLight struct{}

func (noLight) Set(bool) error { return nil }
