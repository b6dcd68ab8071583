package scanner

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"scanbox/camera"
	"scanbox/permission"
	"scanbox/recognizer"
)

const wait = 2 * time.Second

// labeled is a frame image that tells the fake recognizer what to return.
type labeled struct {
	image.Image
	results []recognizer.Payload
	err     error
}

func frameOf(payloads ...string) *labeled {
	l := &labeled{Image: image.NewGray(image.Rect(0, 0, 4, 4))}
	for _, p := range payloads {
		l.results = append(l.results, recognizer.Payload{Text: p, Format: "qr_code"})
	}
	return l
}

type fakeRecognizer struct {
	calls atomic.Int32
	block chan struct{} // when set, Process waits for it or ctx
}

func (r *fakeRecognizer) Process(ctx context.Context, f *camera.Frame) ([]recognizer.Payload, error) {
	r.calls.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l := f.Image.(*labeled)
	return l.results, l.err
}

type fakeLight struct{ on atomic.Bool }

func (l *fakeLight) Set(on bool) error {
	l.on.Store(on)
	return nil
}

type fakeSource struct {
	light *fakeLight

	mu       sync.Mutex
	fail     int // Start calls left that fail
	starts   int
	sessions []*camera.Session

	offered  atomic.Int32
	released atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{light: &fakeLight{}}
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Start(target camera.Target, consumer camera.Consumer) (*camera.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.fail > 0 {
		s.fail--
		return nil, errors.Wrap(camera.ErrHardwareUnavailable, "fake busy")
	}
	for _, old := range s.sessions {
		if old.Active() {
			return nil, errors.Wrap(camera.ErrHardwareUnavailable, "already claimed")
		}
	}
	sess := camera.NewSession(target, consumer, s.light, nil)
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

func (s *fakeSource) Stop(sess *camera.Session) error {
	if sess == nil {
		return nil
	}
	return sess.Stop()
}

func (s *fakeSource) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *fakeSource) last() *camera.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		return nil
	}
	return s.sessions[len(s.sessions)-1]
}

// emit offers img to the latest session and waits until the frame is released.
func (s *fakeSource) emit(t *testing.T, img *labeled) {
	t.Helper()
	released := make(chan struct{})
	s.offered.Add(1)
	s.last().Offer(img, 0, func() {
		s.released.Add(1)
		close(released)
	})
	select {
	case <-released:
	case <-time.After(wait):
		t.Fatal("frame not released")
	}
}

type fakePresenter struct {
	mu      sync.Mutex
	shown   []recognizer.Payload
	dismiss func()
}

func (p *fakePresenter) Show(payload recognizer.Payload, dismissed func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, payload)
	p.dismiss = dismissed
}

func (p *fakePresenter) payloads() []recognizer.Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recognizer.Payload(nil), p.shown...)
}

func (p *fakePresenter) done() {
	p.mu.Lock()
	fn := p.dismiss
	p.mu.Unlock()
	fn()
}

type fakeNotifier struct {
	mu         sync.Mutex
	rationales int
	denials    int
	onRetry    func(retry func())
}

func (n *fakeNotifier) Rationale(_ string, retry func()) {
	n.mu.Lock()
	n.rationales++
	onRetry := n.onRetry
	n.mu.Unlock()
	if onRetry != nil {
		onRetry(retry)
	}
}

func (n *fakeNotifier) Denied(string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.denials++
}

func (n *fakeNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rationales, n.denials
}

// scriptedGate returns check from Check and answers Request from answers.
type scriptedGate struct {
	check   permission.State
	answers chan bool
}

func (g *scriptedGate) Check() permission.State { return g.check }

func (g *scriptedGate) Request(ctx context.Context) (bool, error) {
	select {
	case ok := <-g.answers:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type rig struct {
	c    *Controller
	src  *fakeSource
	rec  *fakeRecognizer
	pres *fakePresenter
	note *fakeNotifier
	m    *Metrics
}

func newRig(t *testing.T, gate permission.Gate, acquire bool) *rig {
	t.Helper()
	r := &rig{
		src:  newFakeSource(),
		rec:  &fakeRecognizer{},
		pres: &fakePresenter{},
		note: &fakeNotifier{},
		m:    NewMetrics(),
	}
	opts := Options{
		Gate:       gate,
		Notifier:   r.note,
		Recognizer: r.rec,
		Presenter:  r.pres,
		Metrics:    r.m,
	}
	if acquire {
		opts.Acquire = func(context.Context) (camera.Source, error) { return r.src, nil }
	}
	c, err := New(opts)
	require.NoError(t, err)
	r.c = c
	return r
}

// run starts the controller and returns a function that stops it and
// returns Run's result.
func (r *rig) run(t *testing.T) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.c.Run(ctx) }()

	var once sync.Once
	var err error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-errc:
			case <-time.After(wait):
				t.Fatal("Run did not return")
			}
		})
		return err
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func (r *rig) waitState(t *testing.T, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return r.c.State() == s }, wait, time.Millisecond,
		"want %s, have %s", s, r.c.State())
}

func TestController_GrantedGoesStraightToScanning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), true)
	stop := r.run(t)

	r.waitState(t, Scanning)
	rationales, denials := r.note.counts()
	assert.Zero(t, rationales)
	assert.Zero(t, denials)
	assert.Equal(t, 1, r.src.startCount())

	require.NoError(t, stop())
	assert.False(t, r.src.last().Active(), "session stopped on shutdown")
}

func TestController_RefusalAfterRationaleCloses(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gate := &scriptedGate{check: permission.DeniedSoft, answers: make(chan bool, 1)}
	gate.answers <- false

	r := newRig(t, gate, true)
	r.note.onRetry = func(retry func()) { retry() }

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	err := r.c.Run(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, permission.ErrDenied))
	var de *permission.DeniedError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.Hard)

	rationales, denials := r.note.counts()
	assert.Equal(t, 1, rationales)
	assert.Equal(t, 1, denials)
	assert.Equal(t, Closed, r.c.State())
	assert.Zero(t, r.src.startCount())
}

func TestController_FirstRefusalShowsRationale(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gate := &scriptedGate{check: permission.Unknown, answers: make(chan bool, 2)}
	gate.answers <- false

	retry := make(chan func(), 1)
	r := newRig(t, gate, true)
	r.note.onRetry = func(fn func()) { retry <- fn }
	stop := r.run(t)

	var fn func()
	select {
	case fn = <-retry:
	case <-time.After(wait):
		t.Fatal("no rationale")
	}
	assert.Equal(t, Idle, r.c.State(), "rationale does not close")

	gate.answers <- true
	fn()
	r.waitState(t, Scanning)

	require.NoError(t, stop())
	_, denials := r.note.counts()
	assert.Zero(t, denials)
}

func TestController_HardDenial(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.DeniedHard), true)
	err := r.c.Run(context.Background())
	assert.True(t, errors.Is(err, permission.ErrDenied))
	rationales, denials := r.note.counts()
	assert.Zero(t, rationales)
	assert.Equal(t, 1, denials)
}

func TestController_FirstMatchOnly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), true)
	stop := r.run(t)
	r.waitState(t, Scanning)

	for i := 0; i < 3; i++ {
		r.src.emit(t, frameOf())
		assert.Equal(t, Scanning, r.c.State())
	}
	sess := r.src.last()
	r.src.emit(t, frameOf("ABC123", "XYZ999"))

	r.waitState(t, Presenting)
	assert.Equal(t, []recognizer.Payload{{Text: "ABC123", Format: "qr_code"}}, r.pres.payloads())
	assert.False(t, sess.Active(), "session torn down before presenting")
	assert.EqualValues(t, 4, r.rec.calls.Load())

	require.NoError(t, stop())
	assert.Equal(t, r.src.offered.Load(), r.src.released.Load())
	assert.EqualValues(t, 1, testutil.ToFloat64(r.m.Scans))
	assert.EqualValues(t, 4, testutil.ToFloat64(r.m.Frames.WithLabelValues(outcomeProcessed)))
}

func TestController_StaleRecognitionIgnored(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), true)
	stop := r.run(t)
	r.waitState(t, Scanning)

	r.src.emit(t, frameOf("FIRST"))
	r.waitState(t, Presenting)

	// a completion issued for the torn-down session
	require.True(t, r.c.post(recognized{gen: 1, results: []recognizer.Payload{{Text: "LATE"}}}))

	r.pres.done()
	r.waitState(t, Scanning)

	// and one for the previous session after rebinding
	require.True(t, r.c.post(recognized{gen: 1, results: []recognizer.Payload{{Text: "LATER"}}}))
	r.src.emit(t, frameOf())
	assert.Equal(t, Scanning, r.c.State())

	assert.Len(t, r.pres.payloads(), 1)
	require.NoError(t, stop())
}

func TestController_StaleRecognitionFailureNotCounted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), true)
	stop := r.run(t)
	r.waitState(t, Scanning)

	r.src.emit(t, frameOf("FIRST"))
	r.waitState(t, Presenting)
	r.pres.done()
	r.waitState(t, Scanning)

	// the first session's backend failing after it was torn down
	require.True(t, r.c.post(recognized{gen: 1, err: errors.Wrap(recognizer.ErrRecognition, "late")}))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(r.m.Frames.WithLabelValues(outcomeSkipped)) == 1
	}, wait, time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(r.m.Frames.WithLabelValues(outcomeFailed)))
	assert.Equal(t, Scanning, r.c.State())

	require.NoError(t, stop())
}

func TestController_FrameWhileBindingReleased(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), false)
	stop := r.run(t)
	r.waitState(t, Binding)

	var released atomic.Int32
	f := camera.NewFrame(frameOf("EARLY"), 0, func() { released.Add(1) })
	require.True(t, r.c.post(frameArrived{gen: 1, f: f}))

	require.Eventually(t, func() bool { return released.Load() == 1 }, wait, time.Millisecond)
	assert.EqualValues(t, 1, testutil.ToFloat64(r.m.Frames.WithLabelValues(outcomeSkipped)))
	assert.Zero(t, r.rec.calls.Load())
	assert.Equal(t, Binding, r.c.State())

	require.NoError(t, stop())
	assert.EqualValues(t, 1, released.Load())
}

func TestController_RoundTripResetsTorch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), true)
	stop := r.run(t)
	r.waitState(t, Scanning)

	first := r.src.last()
	r.c.ToggleTorch()
	require.Eventually(t, func() bool { return first.Torch() == camera.TorchOn }, wait, time.Millisecond)
	assert.True(t, r.src.light.on.Load())

	r.src.emit(t, frameOf("ABC123"))
	r.waitState(t, Presenting)
	assert.False(t, r.src.light.on.Load(), "light off after teardown")

	// no session while presenting
	r.c.ToggleTorch()

	r.pres.done()
	r.waitState(t, Scanning)
	second := r.src.last()
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, camera.TorchOff, second.Torch())
	assert.False(t, r.src.light.on.Load())

	// a second dismissal of the same presentation is ignored
	r.pres.done()
	r.src.emit(t, frameOf())
	assert.Equal(t, 2, r.src.startCount())

	require.NoError(t, stop())
}

func TestController_BindFailureWaitsForProvider(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), true)
	r.src.fail = 1
	stop := r.run(t)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(r.m.BindFailures) == 1
	}, wait, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Binding, r.c.State())
	assert.Equal(t, 1, r.src.startCount(), "no retry without a provider notification")

	r.c.NotifyProviderReady(r.src)
	r.waitState(t, Scanning)
	assert.Equal(t, 2, r.src.startCount())

	require.NoError(t, stop())
}

func TestController_WaitsForProviderWithoutAcquire(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), false)
	stop := r.run(t)

	r.waitState(t, Binding)
	r.c.ToggleTorch() // no session yet
	r.c.NotifyProviderReady(nil)
	r.c.NotifyProviderReady(r.src)
	r.waitState(t, Scanning)

	require.NoError(t, stop())
}

func TestController_RecognitionFailureKeepsScanning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), true)
	stop := r.run(t)
	r.waitState(t, Scanning)

	bad := frameOf("IGNORED")
	bad.err = errors.Wrap(recognizer.ErrRecognition, "backend")
	r.src.emit(t, bad)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(r.m.Frames.WithLabelValues(outcomeFailed)) == 1
	}, wait, time.Millisecond)
	assert.Equal(t, Scanning, r.c.State())
	assert.Empty(t, r.pres.payloads())

	r.src.emit(t, frameOf("OK"))
	r.waitState(t, Presenting)
	assert.Equal(t, "OK", r.pres.payloads()[0].Text)

	require.NoError(t, stop())
}

func TestController_ShutdownReleasesInFlightFrame(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), true)
	r.rec.block = make(chan struct{})
	stop := r.run(t)
	r.waitState(t, Scanning)

	sess := r.src.last()
	r.src.offered.Add(1)
	require.True(t, sess.Offer(frameOf("NEVER"), 0, func() { r.src.released.Add(1) }))
	require.Eventually(t, func() bool { return r.rec.calls.Load() == 1 }, wait, time.Millisecond)

	// still in flight, the next capture is dropped and released at once
	r.src.offered.Add(1)
	assert.False(t, sess.Offer(frameOf(), 0, func() { r.src.released.Add(1) }))

	require.NoError(t, stop())
	assert.Equal(t, r.src.offered.Load(), r.src.released.Load())
	assert.False(t, sess.Active())
	assert.Empty(t, r.pres.payloads())
}

func TestController_RunTwice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig(t, permission.Static(permission.Granted), true)
	stop := r.run(t)
	r.waitState(t, Scanning)
	assert.Error(t, r.c.Run(context.Background()))
	require.NoError(t, stop())
}

func TestNew_Requires(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Gate: permission.Static(permission.Granted)})
	assert.Error(t, err)
	_, err = New(Options{Gate: permission.Static(permission.Granted), Recognizer: &fakeRecognizer{}})
	assert.Error(t, err)
}

func TestState_SessionExists(t *testing.T) {
	assert.False(t, Idle.SessionExists())
	assert.True(t, Binding.SessionExists())
	assert.True(t, Presenting.SessionExists())
	assert.False(t, Closed.SessionExists())
	assert.Equal(t, "match_found", MatchFound.String())
}
