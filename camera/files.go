package camera

import (
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"scanbox/logging"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// Files replays the images of a directory as camera captures, in name
// order. It stands in for a camera on development machines and kiosks
// that are fed snapshots by another process.
type Files struct {
	dir      string
	interval time.Duration
	rotation int
	loop     bool
	light    Light
	log      zerolog.Logger

	mu      sync.Mutex
	current *Session
}

// NewFiles creates a directory replay source.
func NewFiles(cfg Config, light Light) (*Files, error) {
	if cfg.Device == "" {
		return nil, errors.New("files camera: device directory is required")
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 10
	}
	if light == nil {
		light = noLight{}
	}
	return &Files{
		dir:      cfg.Device,
		interval: time.Duration(float64(time.Second) / fps),
		rotation: cfg.Rotation,
		loop:     cfg.Loop,
		light:    light,
		log:      logging.WithComponent("camera.files"),
	}, nil
}

// Name implements Source.
func (f *Files) Name() string {
	return "files:" + f.dir
}

// Start implements Source.
func (f *Files) Start(target Target, consumer Consumer) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != nil && f.current.Active() {
		return nil, errors.Wrap(ErrHardwareUnavailable, "files camera busy")
	}

	paths, err := listImages(f.dir)
	if err != nil {
		return nil, errors.Wrapf(ErrHardwareUnavailable, "open %s: %v", f.dir, err)
	}
	if len(paths) == 0 {
		return nil, errors.Wrapf(ErrHardwareUnavailable, "no images in %s", f.dir)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	sess := NewSession(target, consumer, f.light, func() error {
		close(stop)
		wg.Wait()
		return nil
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.replay(sess, paths, stop)
	}()

	f.current = sess
	f.log.Debug().Str("session", sess.ID.String()).Int("images", len(paths)).Msg("session started")
	return sess, nil
}

// Stop implements Source.
func (f *Files) Stop(s *Session) error {
	if s == nil {
		return nil
	}
	err := s.Stop()

	f.mu.Lock()
	if f.current == s {
		f.current = nil
	}
	f.mu.Unlock()
	return err
}

func (f *Files) replay(sess *Session, paths []string, stop <-chan struct{}) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if i >= len(paths) {
			if !f.loop {
				continue
			}
			i = 0
		}

		img, err := decodeImage(paths[i])
		i++
		if err != nil {
			f.log.Warn().Err(err).Msg("skip image")
			continue
		}
		sess.Offer(img, f.rotation, nil)
	}
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func decodeImage(path string) (image.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return img, nil
}
