package input

import (
	"context"

	"github.com/kenshaw/evdev"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"scanbox/logging"
)

// Linux key codes without a named constant in evdev's generated set.
const (
	keyR       = evdev.KeyType(19)
	keyT       = evdev.KeyType(20)
	keyF       = evdev.KeyType(33)
	keySpace   = evdev.KeyType(57)
	keyF5      = evdev.KeyType(63)
	keyKPEnter = evdev.KeyType(96)
)

func keyAction(k evdev.KeyType) (Action, bool) {
	switch k {
	case evdev.KeyEnter, keyKPEnter, keySpace:
		return ActionOK, true
	case evdev.KeyEscape:
		return ActionDismiss, true
	case keyT, keyF:
		return ActionTorch, true
	case keyR:
		return ActionRetry, true
	case keyF5:
		return ActionRefresh, true
	}
	return 0, false
}

// Keyboard reads key presses from an input device.
type Keyboard struct {
	device *evdev.Evdev
	log    zerolog.Logger
}

// NewKeyboard opens the input device.
func NewKeyboard(device string) (*Keyboard, error) {
	dev, err := evdev.OpenFile(device)
	if err != nil {
		return nil, errors.Wrapf(err, "open evdev %s", device)
	}

	log := logging.WithComponent("input.keyboard")
	log.Info().
		Str("name", dev.Name()).
		Uint16("vendor", dev.ID().Vendor).
		Uint16("product", dev.ID().Product).
		Msg("opened keyboard device")

	return &Keyboard{device: dev, log: log}, nil
}

// Run delivers actions to h until ctx is cancelled or the device goes away.
func (k *Keyboard) Run(ctx context.Context, h Handler) error {
	ch := k.device.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-ch:
			if event == nil {
				return errors.New("keyboard device closed")
			}
			if _, ok := event.Type.(evdev.KeyType); !ok || event.Value != 1 {
				continue
			}
			if a, ok := keyAction(evdev.KeyType(event.Code)); ok {
				k.log.Debug().Stringer("action", a).Msg("key")
				h(a)
			}
		}
	}
}

// Close releases the device.
func (k *Keyboard) Close() error {
	if k.device == nil {
		return nil
	}
	return k.device.Close()
}
