package main

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"scanbox/camera"
	"scanbox/eventpipe"
	"scanbox/indicator"
	"scanbox/input"
	"scanbox/logging"
	"scanbox/mqtt"
	"scanbox/permission"
	"scanbox/presenter"
	"scanbox/recognizer"
	"scanbox/torch"
	"scanbox/video"
)

// Config is the main configuration structure for scanbox.
type Config struct {
	// Camera source and geometry
	Camera camera.Config `yaml:"camera"`

	// How camera permission is decided
	Permission permission.Config `yaml:"permission"`

	Recognizer recognizer.Config `yaml:"recognizer"`
	Presenter  presenter.Config  `yaml:"presenter"`
	Torch      torch.Config      `yaml:"torch"`
	Indicator  indicator.Config  `yaml:"indicator"`
	Input      input.Config      `yaml:"input"`
	EventPipe  eventpipe.Config  `yaml:"event_pipe"`

	// MQTT connection settings
	MQTT mqtt.Config `yaml:"mqtt"`

	Video   video.Config   `yaml:"video"`
	Log     logging.Config `yaml:"log"`
	Metrics MetricsConfig  `yaml:"metrics"`

	// General settings
	ClientID     string `yaml:"client_id" validate:"required"`
	VideoEnabled bool   `yaml:"video_enabled"`
	WatchDevice  bool   `yaml:"watch_device"` // rebind when the camera device appears
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"` // e.g. ":9110", empty disables
}

// LoadConfig reads, defaults and validates the configuration file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.SetStrict(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	cfg.applyDefaults()
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Camera.Type == "" {
		c.Camera.Type = "files"
	}
	if c.Camera.Type == "gst" && c.Camera.Device == "" {
		c.Camera.Device = "/dev/video0"
	}
	if c.Camera.AspectRatio == "" {
		c.Camera.AspectRatio = camera.Ratio4x3.String()
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
