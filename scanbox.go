package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"scanbox/camera"
	"scanbox/eventpipe"
	"scanbox/indicator"
	"scanbox/input"
	"scanbox/logging"
	"scanbox/mqtt"
	"scanbox/permission"
	"scanbox/presenter"
	"scanbox/recognizer"
	"scanbox/scanner"
	"scanbox/torch"
	"scanbox/video"
)

var myBuild string

// App holds the application state and dependencies.
type App struct {
	cfg        *Config
	log        zerolog.Logger
	mqtt       *mqtt.Client
	source     camera.Source
	light      torch.Light
	dialog     *presenter.Dialog
	indicator  indicator.Indicator
	display    *video.Video
	controller *scanner.Controller
	keyboard   *input.Keyboard
	buttons    *input.Buttons
	pipe       *eventpipe.EventPipe
	watcher    *camera.Watcher
	metrics    *http.Server
}

func main() {
	cfgfile := flag.String("cfg", "scanbox.yml", "Config file")
	version := flag.Bool("version", false, "Print build and exit")
	flag.Parse()

	if *version {
		fmt.Printf("scanbox build %s\n", myBuild)
		return
	}

	cfg, err := LoadConfig(*cfgfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scanbox: %v\n", err)
		os.Exit(2)
	}
	if err := logging.Configure(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "scanbox: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *Config) int {
	app := &App{cfg: cfg, log: logging.WithComponent("main")}
	app.log.Info().Str("build", myBuild).Str("client_id", cfg.ClientID).Msg("scanbox starting")
	defer app.release()

	if err := app.init(ctx); err != nil {
		app.log.Error().Err(err).Msg("init failed")
		return 1
	}

	err := app.controller.Run(ctx)
	switch {
	case errors.Is(err, permission.ErrDenied):
		app.log.Error().Msg("camera permission refused, exiting")
		return 1
	case err != nil:
		app.log.Error().Err(err).Msg("scanner stopped")
		return 1
	}
	app.log.Info().Msg("shutting down")
	return 0
}

func (app *App) init(ctx context.Context) error {
	cfg := app.cfg
	var err error

	// Initialize display if enabled
	if cfg.VideoEnabled {
		if !video.ScreenSupported() {
			return video.ErrScreenNotCompiled
		}
		app.display, err = video.New(cfg.Video)
		if err != nil {
			return errors.Wrap(err, "init display")
		}
	}

	app.indicator, err = indicator.New(cfg.Indicator, app.display)
	if err != nil {
		return errors.Wrap(err, "init indicator")
	}
	app.indicator.Idle()

	app.light, err = torch.New(cfg.Torch)
	if err != nil {
		return errors.Wrap(err, "init torch")
	}

	app.source, err = camera.New(cfg.Camera, app.light)
	if err != nil {
		return errors.Wrap(err, "init camera")
	}

	target, err := app.target()
	if err != nil {
		return err
	}

	rec, err := recognizer.New(cfg.Recognizer)
	if err != nil {
		return errors.Wrap(err, "init recognizer")
	}

	displays := presenter.Multi{presenter.NewConsole(os.Stdout, cfg.Presenter.Hyperlinks)}
	if app.display != nil {
		displays = append(displays, app.display)
	}
	app.dialog = presenter.NewDialog(displays, cfg.Presenter)

	gate, err := permission.New(cfg.Permission, cfg.Camera.Device, permission.NewPrompt(os.Stdin, os.Stdout))
	if err != nil {
		return errors.Wrap(err, "init permission")
	}
	rationale, denied := cfg.Permission.Messages()

	// Initialize MQTT
	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
		OnMessage:    app.onMQTTMessage,
	})
	if err != nil {
		return errors.Wrap(err, "init MQTT")
	}

	metrics := scanner.NewMetrics()
	if err := app.serveMetrics(metrics); err != nil {
		return err
	}

	follow := indicator.Follow(app.indicator)
	app.controller, err = scanner.New(scanner.Options{
		Gate:       gate,
		Notifier:   app.dialog,
		Rationale:  rationale,
		Denied:     denied,
		Recognizer: rec,
		Presenter:  app.dialog,
		Target:     target,
		Acquire: func(context.Context) (camera.Source, error) {
			return app.source, nil
		},
		Metrics: metrics,
		OnState: func(s scanner.State) {
			follow(s)
			app.mqtt.PublishState(s)
		},
		OnScan: app.mqtt.PublishScan,
	})
	if err != nil {
		return err
	}

	if err := app.initInputs(ctx); err != nil {
		return err
	}

	if cfg.WatchDevice && cfg.Camera.Device != "" {
		app.watcher, err = camera.NewWatcher(cfg.Camera.Device, func() {
			app.controller.NotifyProviderReady(app.source)
		})
		if err != nil {
			return errors.Wrap(err, "watch camera device")
		}
		go app.watcher.Run(ctx)
	}

	// Start background goroutines
	go func() {
		if err := app.mqtt.Connect(); err != nil {
			app.log.Error().Err(err).Msg("MQTT connect")
		}
	}()
	go app.mqtt.PingLoop(ctx, cfg.MQTT.PingEvery)
	return nil
}

// target describes where sessions are bound.
func (app *App) target() (camera.Target, error) {
	var w, h int
	t := camera.Target{Rotation: app.cfg.Camera.Rotation}
	if app.display != nil {
		w, h = app.display.Width(), app.display.Height()
		t.Surface = app.display
	}
	ratio, err := camera.ParseAspectRatio(app.cfg.Camera.AspectRatio, w, h)
	if err != nil {
		return t, errors.Wrap(err, "camera aspect ratio")
	}
	t.AspectRatio = ratio
	return t, nil
}

func (app *App) initInputs(ctx context.Context) error {
	cfg := app.cfg
	var err error

	if cfg.Input.Keyboard != "" {
		app.keyboard, err = input.NewKeyboard(cfg.Input.Keyboard)
		if err != nil {
			return errors.Wrap(err, "init keyboard")
		}
		go func() {
			if err := app.keyboard.Run(ctx, app.handle); err != nil {
				app.log.Error().Err(err).Msg("keyboard")
			}
		}()
	}

	pins, err := cfg.Input.ButtonMap()
	if err != nil {
		return errors.Wrap(err, "input buttons")
	}
	app.buttons, err = input.NewButtons(cfg.Input.Chip, pins, app.handle)
	if err != nil {
		return errors.Wrap(err, "init buttons")
	}

	if cfg.Input.Stdin {
		if cfg.Permission.Type == "prompt" {
			app.log.Warn().Msg("stdin input disabled, the permission prompt reads stdin")
		} else {
			go func() {
				if err := input.ReadLines(ctx, os.Stdin, app.handle); err != nil {
					app.log.Error().Err(err).Msg("stdin")
				}
			}()
		}
	}

	app.pipe, err = eventpipe.New(cfg.EventPipe, app.handle)
	if err != nil {
		return errors.Wrap(err, "init event pipe")
	}
	if app.pipe != nil {
		go app.pipe.Start()
	}
	return nil
}

// handle routes an input action. Called from input goroutines.
func (app *App) handle(a input.Action) {
	app.log.Debug().Stringer("action", a).Msg("input")
	switch a {
	case input.ActionOK:
		app.dialog.Acknowledge()
	case input.ActionDismiss:
		app.dialog.Dismiss()
	case input.ActionTorch:
		if app.controller.State().SessionExists() {
			app.controller.ToggleTorch()
		}
	case input.ActionRetry:
		app.dialog.Retry()
	case input.ActionRefresh:
		app.controller.NotifyProviderReady(app.source)
	}
}

func (app *App) onMQTTConnect() {
	if err := app.mqtt.Subscribe(app.mqtt.ControlTopic()); err != nil {
		app.log.Error().Err(err).Msg("subscribe")
	}
	// State changes made while offline were not sent.
	app.mqtt.PublishState(app.controller.State())
}

func (app *App) onMQTTDisconnect(err error) {
	app.log.Warn().Err(err).Stringer("state", app.controller.State()).
		Msg("broker offline, remote control unavailable until reconnect")
}

func (app *App) onMQTTMessage(topic string, payload []byte) {
	a, ok := app.mqtt.ParseControl(topic)
	if !ok {
		app.log.Debug().Str("topic", topic).Msg("ignoring message")
		return
	}
	app.handle(a)
}

func (app *App) serveMetrics(m *scanner.Metrics) error {
	if app.cfg.Metrics.Listen == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.Collectors()...)
	reg.MustRegister(camera.Collectors()...)
	reg.MustRegister(mqtt.Collectors()...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	app.metrics = &http.Server{
		Addr:              app.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := app.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Error().Err(err).Msg("metrics server")
		}
	}()
	return nil
}

func (app *App) release() {
	if app.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		app.metrics.Shutdown(ctx)
		cancel()
	}
	if app.mqtt != nil {
		app.mqtt.Disconnect()
	}
	if app.pipe != nil {
		app.pipe.Close()
	}
	if app.watcher != nil {
		app.watcher.Close()
	}
	if app.keyboard != nil {
		app.keyboard.Close()
	}
	app.buttons.Release()
	if app.light != nil {
		app.light.Release()
	}
	if app.indicator != nil {
		app.indicator.Shutdown()
		app.indicator.Release()
	}
	app.log.Info().Msg("shutdown complete")
}
