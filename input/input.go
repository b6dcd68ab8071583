// Package input maps physical controls to scanner actions.
package input

import (
	"github.com/pkg/errors"
)

// Action is something the user asked for.
type Action int

const (
	ActionOK      Action = iota // dismiss a result or take the retry offer
	ActionDismiss               // dismiss a result
	ActionTorch                 // toggle the torch
	ActionRetry                 // ask for camera permission again
	ActionRefresh               // re-announce the camera provider
)

var actionNames = map[Action]string{
	ActionOK:      "ok",
	ActionDismiss: "dismiss",
	ActionTorch:   "torch",
	ActionRetry:   "retry",
	ActionRefresh: "refresh",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// ParseAction parses an action name.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, errors.Errorf("unknown action %q", s)
}

// Handler receives actions. It may be called from any goroutine.
type Handler func(Action)

// Config holds configuration for the physical inputs.
type Config struct {
	Keyboard string         `yaml:"keyboard"` // evdev device, e.g. /dev/input/event0
	Chip     string         `yaml:"chip"`     // gpio chip for buttons, default gpiochip0
	Buttons  map[string]int `yaml:"buttons"`  // action name -> line offset
	Stdin    bool           `yaml:"stdin"`    // read actions from standard input
}

// ButtonMap resolves the configured button names.
func (c Config) ButtonMap() (map[Action]int, error) {
	out := make(map[Action]int, len(c.Buttons))
	for name, pin := range c.Buttons {
		a, err := ParseAction(name)
		if err != nil {
			return nil, err
		}
		out[a] = pin
	}
	return out, nil
}
