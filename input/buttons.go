//go:build linux

package input

import (
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const debounceButton = 2 * time.Millisecond

// Buttons delivers an action for each press of a GPIO push button.
type Buttons struct {
	lines []*gpiocdev.Line
}

// NewButtons requests one line per action on chip. Buttons pull up and
// trigger on the falling edge.
func NewButtons(chip string, pins map[Action]int, h Handler) (*Buttons, error) {
	if len(pins) == 0 {
		return nil, nil
	}
	if chip == "" {
		chip = "gpiochip0"
	}

	b := &Buttons{}
	for action, pin := range pins {
		action := action
		line, err := gpiocdev.RequestLine(chip, pin,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithDebounce(debounceButton),
			gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { h(action) }))
		if err != nil {
			b.Release()
			return nil, errors.Wrapf(err, "request %s button on line %d", action, pin)
		}
		b.lines = append(b.lines, line)
	}
	return b, nil
}

// Release releases GPIO resources.
func (b *Buttons) Release() error {
	if b == nil {
		return nil
	}
	for _, l := range b.lines {
		l.Close()
	}
	b.lines = nil
	return nil
}
