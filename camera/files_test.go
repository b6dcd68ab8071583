package camera

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func writeQR(t *testing.T, dir, name, content string) {
	t.Helper()
	png, err := qrcode.Encode(content, qrcode.Medium, 128)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), png, 0o644))
}

func TestListImages_NameOrder(t *testing.T) {
	dir := t.TempDir()
	writeQR(t, dir, "b.png", "second")
	writeQR(t, dir, "a.PNG", "first")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.png"), 0o755))

	paths, err := listImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.PNG"), filepath.Join(dir, "b.png")}, paths)
}

func TestFiles_Replay(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	writeQR(t, dir, "b.png", "second")
	writeQR(t, dir, "a.png", "first")

	src, err := NewFiles(Config{Device: dir, FPS: 100, Rotation: 90, Loop: true}, nil)
	require.NoError(t, err)

	frames := make(chan *Frame, 4)
	sess, err := src.Start(Target{}, func(f *Frame) { frames <- f })
	require.NoError(t, err)

	for i := uint64(1); i <= 2; i++ {
		select {
		case f := <-frames:
			assert.Equal(t, i, f.Seq)
			assert.Equal(t, 90, f.Rotation)
			assert.Equal(t, 128, f.Image.Bounds().Dx())
			f.Close()
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d not delivered", i)
		}
	}

	require.NoError(t, src.Stop(sess))
	require.NoError(t, src.Stop(sess), "stop is idempotent")
	assert.False(t, sess.Active())
}

func TestFiles_ExclusiveClaim(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	writeQR(t, dir, "a.png", "x")

	src, err := NewFiles(Config{Device: dir, FPS: 50}, nil)
	require.NoError(t, err)

	sess, err := src.Start(Target{}, func(f *Frame) { f.Close() })
	require.NoError(t, err)

	_, err = src.Start(Target{}, func(f *Frame) { f.Close() })
	assert.ErrorIs(t, err, ErrHardwareUnavailable)

	require.NoError(t, src.Stop(sess))

	sess, err = src.Start(Target{}, func(f *Frame) { f.Close() })
	require.NoError(t, err, "start is safe right after stop")
	require.NoError(t, src.Stop(sess))
}

func TestFiles_Unavailable(t *testing.T) {
	src, err := NewFiles(Config{Device: filepath.Join(t.TempDir(), "missing")}, nil)
	require.NoError(t, err)
	_, err = src.Start(Target{}, func(*Frame) {})
	assert.ErrorIs(t, err, ErrHardwareUnavailable)

	empty, err := NewFiles(Config{Device: t.TempDir()}, nil)
	require.NoError(t, err)
	_, err = empty.Start(Target{}, func(*Frame) {})
	assert.ErrorIs(t, err, ErrHardwareUnavailable)
}

func TestNew(t *testing.T) {
	src, err := New(Config{Device: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Files{}, src)

	_, err = New(Config{Type: "webcam"}, nil)
	assert.Error(t, err)

	if !GStreamerSupported() {
		_, err = New(Config{Type: "gst"}, nil)
		assert.ErrorIs(t, err, ErrNotCompiled)
	}
}
