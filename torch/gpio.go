package torch

import (
	"github.com/hjkoskel/govattu"
)

// GPIO switches the torch with a single output pin.
type GPIO struct {
	hw       govattu.Vattu
	pin      uint8
	activeHi bool // true = pin high lights the torch
}

// NewGPIO creates a GPIO torch, initially off.
func NewGPIO(hw govattu.Vattu, pin uint8, activeHi bool) *GPIO {
	hw.PinMode(pin, govattu.ALToutput)

	g := &GPIO{
		hw:       hw,
		pin:      pin,
		activeHi: activeHi,
	}
	g.Set(false)
	return g
}

// Set implements camera.Light.Set.
func (g *GPIO) Set(on bool) error {
	if on == g.activeHi {
		g.hw.PinSet(g.pin)
	} else {
		g.hw.PinClear(g.pin)
	}
	return nil
}

// Release turns the torch off and releases the GPIO mapping.
func (g *GPIO) Release() error {
	g.Set(false)
	return g.hw.Close()
}
