package indicator

import (
	"github.com/hjkoskel/govattu"
	"github.com/pkg/errors"
)

// GPIO implements Indicator using discrete GPIO LED pins.
type GPIO struct {
	hw        govattu.Vattu
	greenPin  *uint8
	yellowPin *uint8
	redPin    *uint8
}

// NewGPIO creates a new GPIO-based indicator.
func NewGPIO(greenPin, yellowPin, redPin *uint8) (*GPIO, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open gpio")
	}

	g := &GPIO{
		hw:        hw,
		greenPin:  greenPin,
		yellowPin: yellowPin,
		redPin:    redPin,
	}

	// Initialize all pins as outputs, start off
	for _, pin := range g.pins() {
		hw.PinMode(pin, govattu.ALToutput)
		hw.PinClear(pin)
	}

	return g, nil
}

// Idle implements Indicator.Idle.
func (g *GPIO) Idle() {
	g.only(g.yellowPin)
}

// Scanning implements Indicator.Scanning.
func (g *GPIO) Scanning() {
	g.allOff()
}

// Found implements Indicator.Found.
func (g *GPIO) Found() {
	g.only(g.greenPin)
}

// Denied implements Indicator.Denied.
func (g *GPIO) Denied() {
	g.only(g.redPin)
}

// Shutdown implements Indicator.Shutdown.
func (g *GPIO) Shutdown() {
	g.allOff()
}

// Release implements Indicator.Release.
func (g *GPIO) Release() error {
	g.allOff()
	return g.hw.Close()
}

func (g *GPIO) pins() []uint8 {
	var pins []uint8
	for _, p := range []*uint8{g.greenPin, g.yellowPin, g.redPin} {
		if p != nil {
			pins = append(pins, *p)
		}
	}
	return pins
}

func (g *GPIO) only(pin *uint8) {
	g.allOff()
	if pin != nil {
		g.hw.PinSet(*pin)
	}
}

func (g *GPIO) allOff() {
	for _, pin := range g.pins() {
		g.hw.PinClear(pin)
	}
}
