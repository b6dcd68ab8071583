//go:build gst

package camera

import (
	"fmt"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"scanbox/logging"
)

// GStreamerSupported reports whether the GStreamer source is compiled in.
func GStreamerSupported() bool {
	return true
}

// GStreamer captures from a V4L2 device through a GStreamer pipeline:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter(RGBA) → appsink
type GStreamer struct {
	device   string
	height   int
	fps      int
	rotation int
	light    Light
	log      zerolog.Logger

	mu       sync.Mutex
	current  *Session
	pipeline *gst.Pipeline
}

// NewGStreamer creates a V4L2 source. The device is opened on Start.
func NewGStreamer(cfg Config, light Light) (*GStreamer, error) {
	gst.Init(nil)

	device := cfg.Device
	if device == "" {
		device = "/dev/video0"
	}
	height := cfg.Height
	if height == 0 {
		height = 480
	}
	fps := int(cfg.FPS)
	if fps <= 0 {
		fps = 15
	}
	if light == nil {
		light = noLight{}
	}
	return &GStreamer{
		device:   device,
		height:   height,
		fps:      fps,
		rotation: cfg.Rotation,
		light:    light,
		log:      logging.WithComponent("camera.gst"),
	}, nil
}

// Name implements Source.
func (g *GStreamer) Name() string {
	return "gst:" + g.device
}

// Start implements Source.
func (g *GStreamer) Start(target Target, consumer Consumer) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != nil && g.current.Active() {
		return nil, errors.Wrapf(ErrHardwareUnavailable, "%s busy", g.device)
	}

	width := target.AspectRatio.Width(g.height)
	pipeline, sink, err := g.buildPipeline(width, g.height)
	if err != nil {
		return nil, errors.Wrapf(ErrHardwareUnavailable, "build pipeline: %v", err)
	}

	var sess *Session
	sess = NewSession(target, consumer, g.light, func() error {
		if err := pipeline.SetState(gst.StateNull); err != nil {
			return errors.Wrap(err, "stop pipeline")
		}
		return nil
	})

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			img := pullImage(s, width, g.height)
			if img != nil {
				sess.Offer(img, g.rotation, nil)
			}
			return gst.FlowOK
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, errors.Wrapf(ErrHardwareUnavailable, "start %s: %v", g.device, err)
	}

	g.current = sess
	g.pipeline = pipeline
	g.log.Info().
		Str("device", g.device).
		Str("resolution", fmt.Sprintf("%dx%d", width, g.height)).
		Str("aspect_ratio", target.AspectRatio.String()).
		Msg("session started")
	return sess, nil
}

// Stop implements Source.
func (g *GStreamer) Stop(s *Session) error {
	if s == nil {
		return nil
	}
	err := s.Stop()

	g.mu.Lock()
	if g.current == s {
		g.current = nil
		g.pipeline = nil
	}
	g.mu.Unlock()
	return err
}

func (g *GStreamer) buildPipeline(width, height int) (*gst.Pipeline, *app.Sink, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, nil, fmt.Errorf("create v4l2src: %w", err)
	}
	src.SetProperty("device", g.device)

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, fmt.Errorf("create videoscale: %w", err)
	}
	rate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, nil, fmt.Errorf("create videorate: %w", err)
	}
	filter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("create capsfilter: %w", err)
	}
	filter.SetProperty("caps", gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1", width, height, g.fps)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	pipeline.AddMany(src, convert, scale, rate, filter, sink.Element)
	if err := gst.ElementLinkMany(src, convert, scale, rate, filter, sink.Element); err != nil {
		return nil, nil, fmt.Errorf("link pipeline: %w", err)
	}
	return pipeline, sink, nil
}

// pullImage copies the next sample into an RGBA image. GStreamer reuses
// its buffers, so the pixels must be copied before returning.
func pullImage(sink *app.Sink, width, height int) image.Image {
	sample := sink.PullSample()
	if sample == nil {
		return nil
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	defer buffer.Unmap()
	if len(data) < width*height*4 {
		return nil
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data[:width*height*4])
	return img
}
