package indicator

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoIdle       = "@2 !150000 001010"
	neoScanning   = "@3 !150000 400000"
	neoFound      = "@1 !50000 8000"
	neoDenied     = "@2 !10000 ff"
	neoTerminated = "@0 010101"
)

// Neopixel implements Indicator using an external neopixel tool via named pipe.
type Neopixel struct {
	pipe io.WriteCloser
}

// NewNeopixel creates a new Neopixel indicator.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open neopixel pipe %s", pipePath)
	}
	return &Neopixel{pipe: f}, nil
}

// Idle implements Indicator.Idle.
func (n *Neopixel) Idle() {
	n.write(neoIdle)
}

// Scanning implements Indicator.Scanning.
func (n *Neopixel) Scanning() {
	n.write(neoScanning)
}

// Found implements Indicator.Found.
func (n *Neopixel) Found() {
	n.write(neoFound)
}

// Denied implements Indicator.Denied.
func (n *Neopixel) Denied() {
	n.write(neoDenied)
}

// Shutdown implements Indicator.Shutdown.
func (n *Neopixel) Shutdown() {
	n.write(neoTerminated)
}

// Release implements Indicator.Release.
func (n *Neopixel) Release() error {
	if n.pipe == nil {
		return nil
	}
	return n.pipe.Close()
}

func (n *Neopixel) write(s string) {
	if n.pipe != nil {
		n.pipe.Write([]byte(s))
	}
}
