//go:build !linux

package input

import "github.com/pkg/errors"

var ErrNotSupported = errors.New("gpio buttons not supported on this platform")

// Buttons is a stub for non-linux platforms.
type Buttons struct{}

// NewButtons returns an error on non-linux platforms.
func NewButtons(chip string, pins map[Action]int, h Handler) (*Buttons, error) {
	if len(pins) == 0 {
		return nil, nil
	}
	return nil, ErrNotSupported
}

func (b *Buttons) Release() error { return nil }
