package camera

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TorchState is the state of the light attached to a session.
type TorchState int

const (
	TorchOff TorchState = iota
	TorchOn
)

func (t TorchState) String() string {
	if t == TorchOn {
		return "on"
	}
	return "off"
}

// Session is one active binding of a source to a target and consumer.
//
// Sources create sessions with NewSession and push captures through Offer,
// which enforces the single in-flight frame rule.
type Session struct {
	ID      uuid.UUID
	Target  Target
	Started time.Time

	consumer Consumer
	light    Light
	stopFn   func() error

	mu       sync.Mutex // Protects active, inflight, torch
	active   bool
	inflight bool
	torch    TorchState

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewSession creates an active session. stop is called once, by Stop, to
// halt capture; it must not return before the capture loop has exited.
func NewSession(target Target, consumer Consumer, light Light, stop func() error) *Session {
	if light == nil {
		light = noLight{}
	}
	return &Session{
		ID:       uuid.New(),
		Target:   target,
		Started:  time.Now(),
		consumer: consumer,
		light:    light,
		stopFn:   stop,
		active:   true,
	}
}

// Offer hands one capture to the consumer. It returns false, after calling
// release, when the session is stopped or the previous frame has not been
// closed yet.
func (s *Session) Offer(img image.Image, rotation int, release func()) bool {
	if s.Target.Surface != nil {
		s.Target.Surface.Render(img)
	}

	s.mu.Lock()
	if !s.active || s.inflight {
		s.mu.Unlock()
		s.dropped.Add(1)
		droppedFrames.Inc()
		if release != nil {
			release()
		}
		return false
	}
	s.inflight = true
	s.mu.Unlock()

	f := NewFrame(img, rotation, func() {
		s.mu.Lock()
		s.inflight = false
		s.mu.Unlock()
		if release != nil {
			release()
		}
	})
	f.Seq = s.seq.Add(1)
	f.SessionID = s.ID
	s.consumer(f)
	return true
}

// Active reports whether the session has not been stopped.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Delivered returns the number of frames handed to the consumer.
func (s *Session) Delivered() uint64 {
	return s.seq.Load()
}

// Dropped returns the number of captures dropped by the in-flight rule.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Torch returns the torch state; a stopped session always reports TorchOff.
func (s *Session) Torch() TorchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return TorchOff
	}
	return s.torch
}

// SetTorch switches the session light.
func (s *Session) SetTorch(state TorchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrSessionClosed
	}
	if err := s.light.Set(state == TorchOn); err != nil {
		return errors.Wrap(err, "set torch")
	}
	s.torch = state
	return nil
}

// Stop halts capture and releases the light. Stopping a stopped session
// returns nil.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	wasOn := s.torch == TorchOn
	s.torch = TorchOff
	s.mu.Unlock()

	var err error
	if s.stopFn != nil {
		err = s.stopFn()
	}
	if wasOn {
		if lerr := s.light.Set(false); lerr != nil && err == nil {
			err = errors.Wrap(lerr, "torch off")
		}
	}
	return err
}
