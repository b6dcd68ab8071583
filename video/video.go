//go:build screen

package video

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"sync"

	"github.com/d21d3q/framebuffer"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"scanbox/logging"
	"scanbox/presenter"
	"scanbox/recognizer"
)

const fontPath = "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"

var (
	colorScanning = color.RGBA{0, 0, 0, 255}
	colorFound    = color.RGBA{0, 110, 40, 255}
	colorDenied   = color.RGBA{180, 0, 0, 255}
	colorWaiting  = color.RGBA{90, 60, 0, 255}
)

// ScreenSupported returns whether screen support is compiled in.
func ScreenSupported() bool {
	return true
}

// Config holds video display configuration.
type Config struct {
	Device string `yaml:"device"` // framebuffer device, default /dev/fb0
}

// Video draws the camera preview, scan results and status on a 16 bpp
// framebuffer. It is a camera.Surface, a presenter.Display and an indicator.
type Video struct {
	log zerolog.Logger

	mu              sync.Mutex // Protects everything below
	dc              *gg.Context
	pixBuffer       []byte
	backBuffer      []byte
	rgbaImage       *image.RGBA
	width           int
	height          int
	lineLengthBytes int
	initialized     bool
	preview         bool // live frames may be drawn
}

// New opens the framebuffer.
func New(cfg Config) (*Video, error) {
	v := &Video{log: logging.WithComponent("video")}
	if err := v.init(cfg.Device); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Video) init(device string) error {
	if device == "" {
		device = "/dev/fb0"
	}
	fbLowLevel, err := framebuffer.OpenFrameBuffer(device, os.O_RDWR)
	if err != nil {
		return errors.Wrap(err, "open framebuffer")
	}

	varInfo, err := fbLowLevel.VarScreenInfo()
	if err != nil {
		return errors.Wrap(err, "get variable screen info")
	}
	fixedInfo, err := fbLowLevel.FixScreenInfo()
	if err != nil {
		return errors.Wrap(err, "get fixed screen info")
	}
	if varInfo.BitsPerPixel != 16 {
		return errors.Wrapf(ErrPixelFormat, "%s has %d bpp", device, varInfo.BitsPerPixel)
	}

	v.pixBuffer, err = fbLowLevel.Pixels()
	if err != nil {
		return errors.Wrap(err, "get pixel data")
	}

	v.width = int(varInfo.XRes)
	v.height = int(varInfo.YRes)
	v.lineLengthBytes = int(fixedInfo.LineLength)
	v.backBuffer = make([]byte, v.height*v.lineLengthBytes)

	v.log.Info().
		Int("width", v.width).
		Int("height", v.height).
		Int("stride", v.lineLengthBytes).
		Msg("framebuffer opened")

	v.rgbaImage = image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	v.dc = gg.NewContextForRGBA(v.rgbaImage)
	v.initialized = true

	v.clear()
	return nil
}

// Width returns the display width.
func (v *Video) Width() int { return v.width }

// Height returns the display height.
func (v *Video) Height() int { return v.height }

func (v *Video) clear() {
	for i := range v.pixBuffer {
		v.pixBuffer[i] = 0
	}
}

func (v *Video) update() {
	packRGB565(v.rgbaImage, v.backBuffer, v.lineLengthBytes)
	copy(v.pixBuffer, v.backBuffer)
}

func (v *Video) setFontSize(size int) {
	if err := v.dc.LoadFontFace(fontPath, float64(size)); err != nil {
		v.log.Warn().Err(err).Msg("failed to load font")
	}
}

func (v *Video) fill(c color.Color) {
	v.dc.SetColor(c)
	v.dc.DrawRectangle(0, 0, float64(v.width), float64(v.height))
	v.dc.Fill()
}

func (v *Video) banner(bg color.Color, lines ...string) {
	v.preview = false
	v.fill(bg)
	v.setFontSize(48)
	v.dc.SetRGB(1, 1, 1)
	v.dc.DrawStringWrapped(strings.Join(lines, "\n"), float64(v.width)/2, float64(v.height)/2,
		0.5, 0.5, float64(v.width)*0.9, 1.4, gg.AlignCenter)
	v.update()
}

// Render implements camera.Surface.
func (v *Video) Render(img image.Image) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized || !v.preview {
		return
	}
	r := fit(img.Bounds(), v.rgbaImage.Bounds())
	draw.ApproxBiLinear.Scale(v.rgbaImage, r, img, img.Bounds(), draw.Src, nil)
	v.update()
}

// ShowPayload implements presenter.Display.
func (v *Video) ShowPayload(p recognizer.Payload, links []presenter.Link) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.preview = false
	v.fill(colorFound)

	v.setFontSize(32)
	v.dc.SetRGB(1, 1, 1)
	v.dc.DrawStringAnchored(strings.ToUpper(p.Format), float64(v.width)/2, 40, 0.5, 0.5)

	v.setFontSize(40)
	v.dc.DrawStringWrapped(p.Text, float64(v.width)/2, float64(v.height)/2,
		0.5, 0.5, float64(v.width)*0.9, 1.3, gg.AlignCenter)

	if len(links) > 0 {
		v.setFontSize(24)
		v.dc.SetRGB(1, 1, 0)
		v.dc.DrawStringAnchored(fmt.Sprintf("%s: %s", links[0].Kind, links[0].Target),
			float64(v.width)/2, float64(v.height)-40, 0.5, 0.5)
	}
	v.update()
}

// ShowMessage implements presenter.Display.
func (v *Video) ShowMessage(kind presenter.MessageKind, msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	if kind == presenter.MessageDenied {
		v.banner(colorDenied, msg)
		return
	}
	v.banner(colorWaiting, msg)
}

// Clear implements presenter.Display. The preview resumes with the next frame.
func (v *Video) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.fill(colorScanning)
	v.update()
	v.preview = true
}

// Idle shows that the camera is not streaming yet.
func (v *Video) Idle() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.initialized {
		v.banner(colorWaiting, "Waiting for camera")
	}
}

// Scanning hands the screen to the live preview.
func (v *Video) Scanning() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.preview = v.initialized
}

// Found is drawn by ShowPayload.
func (v *Video) Found() {}

// Denied is drawn by ShowMessage.
func (v *Video) Denied() {}

// Shutdown blanks the screen.
func (v *Video) Shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return
	}
	v.preview = false
	v.clear()
}

// Release blanks the screen and stops drawing.
func (v *Video) Release() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clear()
	v.initialized = false
	return nil
}
