package indicator

import (
	"scanbox/scanner"
	"scanbox/video"
)

// Indicator is the interface for status indicator implementations (LEDs, neopixels, screen).
type Indicator interface {
	// Idle shows that the scanner is waiting for permission or a camera.
	Idle()

	// Scanning shows that frames are being analysed.
	Scanning()

	// Found shows that a code was read and is being presented.
	Found()

	// Denied shows that camera permission was refused.
	Denied()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for indicator implementations.
type Config struct {
	// GPIO LED pins (nil = not configured)
	GreenPin  *uint8 `yaml:"green_pin"`
	YellowPin *uint8 `yaml:"yellow_pin"`
	RedPin    *uint8 `yaml:"red_pin"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`
}

// New creates an Indicator based on the provided configuration. screen,
// when not nil, is added to the configured hardware.
// Returns a Multi indicator if more than one is configured.
func New(cfg Config, screen *video.Video) (Indicator, error) {
	var indicators []Indicator

	// Add GPIO indicator if any pins configured
	if cfg.GreenPin != nil || cfg.YellowPin != nil || cfg.RedPin != nil {
		gpio, err := NewGPIO(cfg.GreenPin, cfg.YellowPin, cfg.RedPin)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	// Add Neopixel indicator if pipe configured
	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, neo)
	}

	if screen != nil {
		indicators = append(indicators, screen)
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return &Multi{indicators: indicators}, nil
}

// Follow returns a state callback that keeps ind in step with the scanner.
func Follow(ind Indicator) func(scanner.State) {
	return func(s scanner.State) {
		switch s {
		case scanner.Idle, scanner.Binding:
			ind.Idle()
		case scanner.Scanning:
			ind.Scanning()
		case scanner.MatchFound, scanner.Presenting:
			ind.Found()
		case scanner.Closed:
			ind.Denied()
		}
	}
}
