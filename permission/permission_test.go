package permission

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDeniedError(t *testing.T) {
	var err error = errors.Wrap(&DeniedError{Hard: true}, "scan")
	assert.True(t, errors.Is(err, ErrDenied))

	var de *DeniedError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.Hard)
}

func TestDevice(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, Granted, NewDevice(filepath.Join(dir, "video9")).Check())
	})

	t.Run("readable", func(t *testing.T) {
		path := filepath.Join(dir, "video0")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		d := NewDevice(path)
		assert.Equal(t, Granted, d.Check())
		ok, err := d.Request(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no access", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root bypasses file modes")
		}
		path := filepath.Join(dir, "video1")
		require.NoError(t, os.WriteFile(path, nil, 0o000))
		assert.Equal(t, DeniedSoft, NewDevice(path).Check())
	})

	t.Run("directory", func(t *testing.T) {
		assert.Equal(t, Granted, NewDevice(dir).Check())
	})
}

func TestPrompt(t *testing.T) {
	tests := []struct {
		input string
		want  bool
		state State
	}{
		{"y\n", true, Granted},
		{"YES\n", true, Granted},
		{"n\n", false, DeniedSoft},
		{"\n", false, DeniedSoft},
		{"", false, DeniedSoft},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompt(strings.NewReader(tt.input), &out)
			assert.Equal(t, Unknown, p.Check())

			ok, err := p.Request(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.state, p.Check())
			assert.Contains(t, out.String(), "camera")
		})
	}
}

func TestNew(t *testing.T) {
	g, err := New(Config{Type: "granted"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, Granted, g.Check())

	_, err = New(Config{Type: "prompt"}, "", nil)
	assert.Error(t, err)

	_, err = New(Config{Type: "sms"}, "", nil)
	assert.Error(t, err)

	g, err = New(Config{}, "/dev/video0", nil)
	require.NoError(t, err)
	assert.IsType(t, &Device{}, g)
}

func TestConfig_Messages(t *testing.T) {
	r, d := Config{}.Messages()
	assert.Equal(t, DefaultRationale, r)
	assert.Equal(t, DefaultDenied, d)

	r, _ = Config{Rationale: "why"}.Messages()
	assert.Equal(t, "why", r)
}

func TestPrompt_CancelledRequestKeepsReader(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	in, w := io.Pipe()
	p := NewPrompt(in, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Request(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The line typed after the cancelled prompt answers the next one.
	go func() { _, _ = io.WriteString(w, "y\n") }()
	ok, err := p.Request(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Granted, p.Check())

	// Closing the input ends the reader and later prompts refuse.
	require.NoError(t, w.Close())
	ok, err = p.Request(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, DeniedSoft, p.Check())
}

func TestPrompt_ReadError(t *testing.T) {
	in, w := io.Pipe()
	p := NewPrompt(in, io.Discard)
	w.CloseWithError(errors.New("tty gone"))

	_, err := p.Request(context.Background())
	assert.EqualError(t, err, "tty gone")
}
