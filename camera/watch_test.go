package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestWatcher_DirectoryCreate(t *testing.T) {
	dir := t.TempDir()
	ready := make(chan struct{}, 8)

	w, err := NewWatcher(dir, func() { ready <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame.png"), []byte{}, 0o644))

	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		t.Fatal("no provider notification after file creation")
	}
}

func TestWatcher_DeviceNode(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "video0")
	ready := make(chan struct{}, 8)

	w, err := NewWatcher(node, func() { ready <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "video1"), []byte{}, 0o644))
	require.NoError(t, os.WriteFile(node, []byte{}, 0o644))

	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		t.Fatal("no provider notification after node creation")
	}
}

func TestWatcher_Relevant(t *testing.T) {
	w := &Watcher{path: "/dev/video0"}
	require.True(t, w.relevant(fsnotify.Event{Name: "/dev/video0", Op: fsnotify.Create}))
	require.True(t, w.relevant(fsnotify.Event{Name: "/dev/video0", Op: fsnotify.Chmod}))
	require.False(t, w.relevant(fsnotify.Event{Name: "/dev/video1", Op: fsnotify.Create}))
	require.False(t, w.relevant(fsnotify.Event{Name: "/dev/video0", Op: fsnotify.Remove}))

	w = &Watcher{path: "/srv/frames", dir: true}
	require.True(t, w.relevant(fsnotify.Event{Name: "/srv/frames/x.png", Op: fsnotify.Create}))
	require.False(t, w.relevant(fsnotify.Event{Name: "/srv/frames/x.png", Op: fsnotify.Write}))
}
