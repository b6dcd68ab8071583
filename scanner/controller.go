// Package scanner runs the scan lifecycle: permission, camera binding,
// per-frame recognition, first-match teardown, presentation and rebind.
//
// All transitions happen on the goroutine running Controller.Run. Camera
// callbacks, recognition results, provider readiness and user input are
// posted to it as events. Every session gets a new generation number and
// asynchronous completions carrying an older generation are ignored.
package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"scanbox/camera"
	"scanbox/logging"
	"scanbox/permission"
	"scanbox/presenter"
	"scanbox/recognizer"
	"scanbox/torch"
)

const eventBuffer = 16

// Scan is a presented result.
type Scan struct {
	Payload   recognizer.Payload
	SessionID uuid.UUID
	At        time.Time
}

// Options wires a Controller to its collaborators.
type Options struct {
	Gate       permission.Gate
	Notifier   permission.Notifier // may be nil
	Rationale  string
	Denied     string
	Recognizer recognizer.Recognizer
	Presenter  presenter.Presenter
	Target     camera.Target

	// Acquire obtains the camera provider once permission is granted. When
	// nil, the controller waits for NotifyProviderReady.
	Acquire func(ctx context.Context) (camera.Source, error)

	Logger  *zerolog.Logger
	Metrics *Metrics

	// Called on the controller goroutine; must not block.
	OnState func(State)
	OnScan  func(Scan)
}

// Controller is the scan lifecycle state machine.
type Controller struct {
	opts Options
	log  zerolog.Logger

	events chan any
	done   chan struct{}
	mu     sync.RWMutex // Protects closed
	closed bool
	wg     sync.WaitGroup

	running atomic.Bool
	current atomic.Int32

	// Owned by the Run goroutine.
	ctx        context.Context
	state      State
	flow       permission.Flow
	provider   camera.Source
	session    *camera.Session
	sessionSrc camera.Source
	gen        uint64
	binding    bool
	rebind     bool
	presentID  uint64
	closeErr   error
}

type (
	permissionAnswered struct{ granted bool }
	retryRequested     struct{}
	providerReady      struct{ src camera.Source }
	bound              struct {
		gen  uint64
		src  camera.Source
		sess *camera.Session
		err  error
	}
	frameArrived struct {
		gen uint64
		f   *camera.Frame
	}
	recognized struct {
		gen     uint64
		results []recognizer.Payload
		err     error
	}
	dismissed   struct{ id uint64 }
	torchToggle struct{}
)

// New creates a Controller. It does nothing until Run.
func New(opts Options) (*Controller, error) {
	if opts.Gate == nil {
		return nil, errors.New("scanner: permission gate required")
	}
	if opts.Recognizer == nil {
		return nil, errors.New("scanner: recognizer required")
	}
	if opts.Presenter == nil {
		return nil, errors.New("scanner: presenter required")
	}
	if opts.Notifier == nil {
		opts.Notifier = silentNotifier{}
	}
	if opts.Rationale == "" || opts.Denied == "" {
		r, d := permission.Config{Rationale: opts.Rationale, Denied: opts.Denied}.Messages()
		opts.Rationale, opts.Denied = r, d
	}

	log := logging.WithComponent("scanner")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	return &Controller{
		opts:   opts,
		log:    log,
		events: make(chan any, eventBuffer),
		done:   make(chan struct{}),
	}, nil
}

// State returns the current state. Safe from any goroutine.
func (c *Controller) State() State {
	return State(c.current.Load())
}

// NotifyProviderReady announces that src can be started, for example after
// the camera device appeared. A controller waiting in Binding binds to it.
func (c *Controller) NotifyProviderReady(src camera.Source) {
	c.post(providerReady{src: src})
}

// ToggleTorch flips the torch of the active session, if there is one.
func (c *Controller) ToggleTorch() {
	c.post(torchToggle{})
}

// Run drives the lifecycle until ctx is cancelled or permission is refused
// for good, in which case the returned error matches permission.ErrDenied.
// All sessions are stopped and all frames released before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("scanner: already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer c.shutdown(cancel)
	c.ctx = ctx

	c.log.Info().Msg("starting")
	c.begin()

	for c.state != Closed {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
	return c.closeErr
}

func (c *Controller) handle(ev any) {
	switch ev := ev.(type) {
	case permissionAnswered:
		c.onPermission(ev.granted)
	case retryRequested:
		if c.state == Idle && c.flow.Explained() {
			c.request()
		}
	case providerReady:
		c.onProviderReady(ev.src)
	case bound:
		c.onBound(ev)
	case frameArrived:
		c.onFrame(ev)
	case recognized:
		c.onRecognized(ev)
	case dismissed:
		c.onDismissed(ev.id)
	case torchToggle:
		state, err := torch.Toggle(c.session)
		if err != nil {
			c.log.Error().Err(err).Msg("torch toggle failed")
			return
		}
		c.log.Debug().Stringer("torch", state).Msg("torch")
	}
}

func (c *Controller) begin() {
	c.setState(Idle)
	check := c.opts.Gate.Check()
	c.log.Debug().Stringer("permission", check).Msg("permission checked")
	c.step(c.flow.Begin(check))
}

func (c *Controller) step(s permission.Step) {
	switch s {
	case permission.Proceed:
		c.grant()
	case permission.Ask:
		c.request()
	case permission.Explain:
		c.opts.Notifier.Rationale(c.opts.Rationale, func() { c.post(retryRequested{}) })
	case permission.Close:
		c.close()
	}
}

func (c *Controller) request() {
	ctx := c.ctx
	c.spawn(func() {
		granted, err := c.opts.Gate.Request(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("permission request failed")
		}
		c.post(permissionAnswered{granted: granted && err == nil})
	})
}

func (c *Controller) onPermission(granted bool) {
	if c.state != Idle {
		return
	}
	c.step(c.flow.Answer(granted))
}

func (c *Controller) close() {
	c.setState(Closed)
	c.closeErr = &permission.DeniedError{Hard: true}
	c.log.Error().Msg("camera permission refused, closing")
	c.opts.Notifier.Denied(c.opts.Denied)
}

func (c *Controller) grant() {
	c.setState(Binding)
	if c.provider != nil {
		c.bind()
		return
	}
	if c.opts.Acquire == nil {
		c.log.Info().Msg("waiting for camera provider")
		return
	}

	ctx := c.ctx
	c.spawn(func() {
		src, err := c.opts.Acquire(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("camera provider not ready")
			}
			return
		}
		c.post(providerReady{src: src})
	})
}

func (c *Controller) onProviderReady(src camera.Source) {
	if src == nil {
		return
	}
	c.provider = src
	if c.state != Binding {
		return
	}
	if c.binding {
		c.rebind = true
		return
	}
	c.bind()
}

// bind starts a session on the provider. Completion arrives as a bound event.
func (c *Controller) bind() {
	c.gen++
	gen, src := c.gen, c.provider
	c.binding = true
	c.rebind = false

	c.log.Debug().Str("source", src.Name()).Uint64("gen", gen).Msg("binding")
	c.spawn(func() {
		sess, err := src.Start(c.opts.Target, c.consumer(gen))
		if !c.post(bound{gen: gen, src: src, sess: sess, err: err}) && sess != nil {
			_ = src.Stop(sess)
		}
	})
}

func (c *Controller) onBound(ev bound) {
	if ev.gen != c.gen || c.state != Binding {
		if ev.sess != nil {
			c.stopStale(ev.src, ev.sess)
		}
		return
	}
	c.binding = false
	if ev.err != nil {
		c.opts.Metrics.bindFailure()
		c.log.Error().Err(ev.err).Str("source", ev.src.Name()).Msg("camera claim failed")
		if c.rebind {
			c.bind()
		}
		return
	}

	c.session, c.sessionSrc = ev.sess, ev.src
	c.log.Info().Str("session", ev.sess.ID.String()).Msg("camera bound")
	c.setState(Scanning)
}

func (c *Controller) stopStale(src camera.Source, sess *camera.Session) {
	if err := src.Stop(sess); err != nil {
		c.log.Error().Err(err).Msg("stopping stale session")
	}
}

// consumer runs on the source's capture goroutine and must not block it.
func (c *Controller) consumer(gen uint64) camera.Consumer {
	return func(f *camera.Frame) {
		if !c.tryPost(frameArrived{gen: gen, f: f}) {
			c.opts.Metrics.frame(outcomeSkipped)
			f.Close()
		}
	}
}

func (c *Controller) onFrame(ev frameArrived) {
	if ev.gen != c.gen || c.state != Scanning {
		c.opts.Metrics.frame(outcomeSkipped)
		ev.f.Close()
		return
	}

	f, gen, ctx := ev.f, ev.gen, c.ctx
	c.spawn(func() {
		// The result is queued before the frame is released, so the next
		// frame is never handled ahead of this result.
		defer f.Close()
		results, err := c.opts.Recognizer.Process(ctx, f)
		c.post(recognized{gen: gen, results: results, err: err})
	})
}

func (c *Controller) onRecognized(ev recognized) {
	if ev.gen != c.gen || c.state != Scanning {
		c.opts.Metrics.frame(outcomeSkipped)
		c.log.Debug().Uint64("gen", ev.gen).Int("results", len(ev.results)).AnErr("cause", ev.err).
			Msg("ignoring stale recognition")
		return
	}
	if ev.err != nil {
		c.opts.Metrics.frame(outcomeFailed)
		c.log.Warn().Err(ev.err).Msg("recognition failed")
		return
	}
	c.opts.Metrics.frame(outcomeProcessed)
	if len(ev.results) == 0 {
		return
	}

	first := ev.results[0]
	for _, extra := range ev.results[1:] {
		c.log.Debug().Stringer("payload", extra).Msg("discarding additional detection")
	}

	c.setState(MatchFound)
	sessionID := c.session.ID
	c.stopSession()

	c.setState(Presenting)
	c.presentID++
	id := c.presentID
	c.opts.Metrics.scan()
	c.log.Info().Str("format", first.Format).Str("payload", first.Text).Msg("code found")
	if c.opts.OnScan != nil {
		c.opts.OnScan(Scan{Payload: first, SessionID: sessionID, At: time.Now()})
	}
	c.opts.Presenter.Show(first, func() { c.post(dismissed{id: id}) })
}

func (c *Controller) onDismissed(id uint64) {
	if id != c.presentID || c.state != Presenting {
		return
	}
	c.setState(Binding)
	if c.provider == nil {
		return
	}
	c.bind()
}

// stopSession tears down the active session. Failures are logged only.
func (c *Controller) stopSession() {
	c.gen++
	if c.session == nil {
		return
	}
	if err := c.sessionSrc.Stop(c.session); err != nil {
		c.log.Error().Err(err).Msg("camera teardown failed")
	}
	c.session, c.sessionSrc = nil, nil
}

func (c *Controller) setState(s State) {
	c.log.Debug().Stringer("from", c.state).Stringer("to", s).Msg("transition")
	c.state = s
	c.current.Store(int32(s))
	c.opts.Metrics.state(s)
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

func (c *Controller) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// post delivers ev to the Run goroutine. It reports false once the
// controller has shut down.
func (c *Controller) post(ev any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) tryPost(ev any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

func (c *Controller) shutdown(cancel context.CancelFunc) {
	cancel()
	close(c.done)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.stopSession()
	c.wg.Wait()

	for {
		select {
		case ev := <-c.events:
			switch ev := ev.(type) {
			case frameArrived:
				ev.f.Close()
			case bound:
				if ev.sess != nil {
					c.stopStale(ev.src, ev.sess)
				}
			}
		default:
			c.log.Info().Stringer("state", c.state).Msg("stopped")
			return
		}
	}
}

type silentNotifier struct{}

func (silentNotifier) Rationale(string, func()) {}
func (silentNotifier) Denied(string)            {}
