// Package torch drives the light next to the camera lens.
package torch

import (
	"github.com/hjkoskel/govattu"
	"github.com/pkg/errors"

	"scanbox/camera"
)

// Light is a torch that holds hardware resources.
type Light interface {
	camera.Light

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for the torch light.
type Config struct {
	Type string `yaml:"type" validate:"omitempty,oneof=gpio_high gpio_low none"` // "gpio_high", "gpio_low", "none"
	Pin  *int   `yaml:"pin"`                                                      // GPIO pin number
}

// New creates a Light based on the provided configuration.
func New(cfg Config) (Light, error) {
	if cfg.Pin == nil || cfg.Type == "" || cfg.Type == "none" {
		return &Noop{}, nil
	}

	hw, err := govattu.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open gpio")
	}

	switch cfg.Type {
	case "gpio_high":
		return NewGPIO(hw, uint8(*cfg.Pin), true), nil
	case "gpio_low":
		return NewGPIO(hw, uint8(*cfg.Pin), false), nil
	default:
		hw.Close()
		return nil, errors.Errorf("unknown torch type %q", cfg.Type)
	}
}

// Toggle flips the torch of the active session and returns the new state.
// Without an active session it does nothing and reports TorchOff.
func Toggle(s *camera.Session) (camera.TorchState, error) {
	if s == nil || !s.Active() {
		return camera.TorchOff, nil
	}
	next := camera.TorchOn
	if s.Torch() == camera.TorchOn {
		next = camera.TorchOff
	}
	if err := s.SetTorch(next); err != nil {
		if errors.Is(err, camera.ErrSessionClosed) {
			return camera.TorchOff, nil
		}
		return s.Torch(), err
	}
	return next, nil
}
