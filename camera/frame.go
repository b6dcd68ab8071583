package camera

import (
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is one capture handed to the consumer. Whoever receives a Frame
// must Close it exactly once on every path; Close releases the capture slot
// so the source may deliver the next frame.
type Frame struct {
	Seq       uint64
	Image     image.Image
	Rotation  int // degrees clockwise needed to make Image upright
	Timestamp time.Time
	SessionID uuid.UUID

	once    sync.Once
	release func()
}

// NewFrame wraps img as a Frame. release runs on the first Close.
func NewFrame(img image.Image, rotation int, release func()) *Frame {
	return &Frame{
		Image:     img,
		Rotation:  rotation,
		Timestamp: time.Now(),
		release:   release,
	}
}

// Close releases the frame. Calls after the first are no-ops.
func (f *Frame) Close() {
	f.once.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}
