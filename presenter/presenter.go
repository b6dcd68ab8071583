// Package presenter shows decoded payloads and permission messages and
// reports when the user is done with them.
package presenter

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"scanbox/logging"
	"scanbox/recognizer"
)

// Presenter shows a payload. dismissed is called exactly once, when the user
// is done with it.
type Presenter interface {
	Show(p recognizer.Payload, dismissed func())
}

// MessageKind distinguishes permission messages.
type MessageKind int

const (
	MessageRationale MessageKind = iota
	MessageDenied
)

// Display renders what the Dialog decides to show.
type Display interface {
	ShowPayload(p recognizer.Payload, links []Link)
	ShowMessage(kind MessageKind, msg string)
	Clear()
}

// Config holds configuration for the presenter.
type Config struct {
	DismissAfter time.Duration `yaml:"dismiss_after"` // 0 waits for the user
	Hyperlinks   bool          `yaml:"hyperlinks"`    // OSC-8 links on the console
}

// oneShot runs fn at most once.
type oneShot struct {
	once sync.Once
	fn   func()
}

func (o *oneShot) fire() bool {
	fired := false
	o.once.Do(func() {
		fired = true
		if o.fn != nil {
			o.fn()
		}
	})
	return fired
}

// Dialog is the modal shown after a match. Any number of inputs may call
// Dismiss; the dismissal callback of a presentation runs once.
// It also shows permission messages.
type Dialog struct {
	display Display
	after   time.Duration
	log     zerolog.Logger

	mu    sync.Mutex
	shown *oneShot
	timer *time.Timer
	retry *oneShot
}

// NewDialog creates a Dialog rendering on display.
func NewDialog(display Display, cfg Config) *Dialog {
	return &Dialog{
		display: display,
		after:   cfg.DismissAfter,
		log:     logging.WithComponent("presenter"),
	}
}

// Show implements Presenter.Show.
func (d *Dialog) Show(p recognizer.Payload, dismissed func()) {
	links := Linkify(p.Text)

	d.mu.Lock()
	d.stopTimer()
	d.shown = &oneShot{fn: dismissed}
	if d.after > 0 {
		d.timer = time.AfterFunc(d.after, func() { d.Dismiss() })
	}
	d.mu.Unlock()

	d.log.Info().Str("format", p.Format).Int("links", len(links)).Msg("presenting")
	d.display.ShowPayload(p, links)
}

// Dismiss ends the current presentation. It reports whether one was open.
func (d *Dialog) Dismiss() bool {
	d.mu.Lock()
	shown := d.shown
	d.shown = nil
	d.stopTimer()
	d.mu.Unlock()

	if shown == nil {
		return false
	}
	d.display.Clear()
	return shown.fire()
}

// Presenting reports whether a payload is on screen.
func (d *Dialog) Presenting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown != nil
}

// Rationale implements permission.Notifier.Rationale.
func (d *Dialog) Rationale(msg string, retry func()) {
	d.mu.Lock()
	d.retry = &oneShot{fn: retry}
	d.mu.Unlock()

	d.display.ShowMessage(MessageRationale, msg)
}

// Retry takes the retry affordance of the rationale, if one is shown.
func (d *Dialog) Retry() bool {
	d.mu.Lock()
	retry := d.retry
	d.retry = nil
	d.mu.Unlock()

	if retry == nil {
		return false
	}
	d.display.Clear()
	return retry.fire()
}

// Denied implements permission.Notifier.Denied.
func (d *Dialog) Denied(msg string) {
	d.mu.Lock()
	d.retry = nil
	d.mu.Unlock()

	d.display.ShowMessage(MessageDenied, msg)
}

// Acknowledge is the single "ok" button: it dismisses a payload or takes
// the retry affordance, whichever is showing.
func (d *Dialog) Acknowledge() bool {
	return d.Dismiss() || d.Retry()
}

func (d *Dialog) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Multi fans out to several displays.
type Multi []Display

// ShowPayload implements Display.ShowPayload.
func (m Multi) ShowPayload(p recognizer.Payload, links []Link) {
	for _, d := range m {
		d.ShowPayload(p, links)
	}
}

// ShowMessage implements Display.ShowMessage.
func (m Multi) ShowMessage(kind MessageKind, msg string) {
	for _, d := range m {
		d.ShowMessage(kind, msg)
	}
}

// Clear implements Display.Clear.
func (m Multi) Clear() {
	for _, d := range m {
		d.Clear()
	}
}
