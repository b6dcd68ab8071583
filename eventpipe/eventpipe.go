// Package eventpipe accepts scanner commands written to a named pipe.
package eventpipe

import (
	"bufio"
	"context"
	"os"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"scanbox/input"
	"scanbox/logging"
)

// Config holds configuration for the event pipe.
type Config struct {
	Path string `yaml:"path"` // Path to named pipe (e.g., "/tmp/scanbox-events")
}

// EventHandler is called when a command is received from the pipe.
type EventHandler func(input.Action)

// EventPipe listens for commands on a named pipe.
type EventPipe struct {
	path    string
	file    *os.File
	handler EventHandler
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates the named pipe. Returns nil if path is empty.
func New(cfg Config, handler EventHandler) (*EventPipe, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	// Remove existing pipe if it exists
	os.Remove(cfg.Path)

	if err := syscall.Mkfifo(cfg.Path, 0666); err != nil {
		return nil, errors.Wrapf(err, "create named pipe %s", cfg.Path)
	}

	// Read-write so that open does not wait for a writer and the pipe
	// survives writers coming and going.
	f, err := os.OpenFile(cfg.Path, os.O_RDWR, 0)
	if err != nil {
		os.Remove(cfg.Path)
		return nil, errors.Wrapf(err, "open named pipe %s", cfg.Path)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &EventPipe{
		path:    cfg.Path,
		file:    f,
		handler: handler,
		log:     logging.WithComponent("eventpipe"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start reads commands until Close is called.
// This should be called as a goroutine.
func (ep *EventPipe) Start() {
	ep.log.Info().Str("path", ep.path).Msg("event pipe listening")

	scanner := bufio.NewScanner(ep.file)
	for scanner.Scan() {
		if ep.ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		action, err := parseLine(line)
		if err != nil {
			ep.log.Warn().Err(err).Msg("event pipe parse error")
			continue
		}

		if ep.handler != nil {
			ep.handler(action)
		}
	}
	if err := scanner.Err(); err != nil && ep.ctx.Err() == nil {
		ep.log.Error().Err(err).Msg("event pipe read error")
	}
}

// Close stops the listener and removes the pipe.
func (ep *EventPipe) Close() error {
	ep.cancel()
	ep.file.Close()
	return os.Remove(ep.path)
}

// parseLine parses a command line into an Action.
// Command format:
//
//	ok                - Acknowledge (dismiss a result or retry permission)
//	dismiss           - Dismiss the presented result
//	torch             - Toggle the torch
//	retry             - Ask for camera permission again
//	refresh           - Re-announce the camera provider (alias: provider)
//	key <name>        - Same as the bare command, for scripts mimicking keypads
func parseLine(line string) (input.Action, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return 0, errors.New("empty command")
	}

	cmd := strings.ToLower(parts[0])
	if cmd == "key" {
		if len(parts) < 2 {
			return 0, errors.New("key requires a name")
		}
		cmd = strings.ToLower(parts[1])
	}

	switch cmd {
	case "provider":
		return input.ActionRefresh, nil
	case "dismiss", "close":
		return input.ActionDismiss, nil
	}

	action, err := input.ParseAction(cmd)
	if err != nil {
		return 0, errors.Errorf("unknown command: %s", cmd)
	}
	return action, nil
}
