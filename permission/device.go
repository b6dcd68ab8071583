package permission

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Device checks filesystem access to a video device node, or to a directory
// of images for the file source.
type Device struct {
	path string
}

// NewDevice creates a Device gate for path.
func NewDevice(path string) *Device {
	return &Device{path: path}
}

// Check implements Gate.Check. A missing node counts as granted so that
// binding fails and waits for the device to appear.
func (d *Device) Check() State {
	st, err := os.Stat(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Granted
		}
		return DeniedSoft
	}

	mode := uint32(unix.R_OK | unix.W_OK)
	if st.IsDir() {
		mode = unix.R_OK | unix.X_OK
	}

	switch err := unix.Access(d.path, mode); {
	case err == nil:
		return Granted
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return DeniedSoft
	case errors.Is(err, unix.ENOENT):
		return Granted
	default:
		return DeniedSoft
	}
}

// Request implements Gate.Request. Access is granted out of band (group
// membership, udev rule), so asking again is a re-check.
func (d *Device) Request(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.Check() == Granted, nil
}
