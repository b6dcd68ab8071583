// Package mqtt publishes scan results and lifecycle state to a broker and
// receives remote commands.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"scanbox/logging"
)

var (
	brokerUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanbox_mqtt_connected",
		Help: "1 while the broker connection is up.",
	})
	unsent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scanbox_mqtt_unsent_total",
		Help: "Status messages not sent because the broker was offline.",
	})
)

// Collectors returns the broker metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{brokerUp, unsent}
}

// Client is the scanner's broker connection. A Client built without a host
// is disabled: publishing is a no-op and Connect only runs OnConnect.
type Client struct {
	client   paho.Client
	clientID string
	enabled  bool
	online   atomic.Bool
	log      zerolog.Logger
	handlers Handlers
}

// Config holds MQTT connection settings.
type Config struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port" validate:"gte=0,lte=65535"`
	CACert     string        `yaml:"ca_cert"`
	ClientCert string        `yaml:"client_cert"`
	ClientKey  string        `yaml:"client_key"`
	PingEvery  time.Duration `yaml:"ping_every"` // 0 disables the ping
}

// Handlers are called from paho's goroutines.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnMessage    func(topic string, payload []byte)
}

// New creates a client. Nothing is dialled until Connect.
func New(cfg Config, clientID string, handlers Handlers) (*Client, error) {
	c := &Client{
		clientID: clientID,
		log:      logging.WithComponent("mqtt"),
		handlers: handlers,
	}
	if cfg.Host == "" {
		c.log.Info().Msg("broker disabled, no host configured")
		return c, nil
	}
	c.enabled = true

	opts := paho.NewClientOptions().
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect).
		SetDefaultPublishHandler(c.handleMessage)

	// Last will, so subscribers see the node vanish without a clean shutdown.
	opts.SetWill(c.StatusTopic("state"), `{"state":"offline"}`, 1, true)

	if cfg.CACert != "" || cfg.ClientCert != "" {
		if cfg.Port == 0 {
			cfg.Port = 8883
		}
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "build TLS config")
		}
		opts.AddBroker(fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)).SetTLSConfig(tlsConfig)
	} else {
		if cfg.Port == 0 {
			cfg.Port = 1883
		}
		opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
		c.log.Info().Str("host", cfg.Host).Msg("broker connection is not TLS")
	}

	c.client = paho.NewClient(opts)

	paho.ERROR = pahoLogger{c.log, zerolog.ErrorLevel}
	paho.CRITICAL = pahoLogger{c.log, zerolog.ErrorLevel}
	paho.WARN = pahoLogger{c.log, zerolog.WarnLevel}

	return c, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, errors.Wrap(err, "read CA cert")
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, errors.Errorf("no certificates in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, errors.Wrap(err, "load client cert")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connect dials the broker and blocks until the first attempt finishes.
func (c *Client) Connect() error {
	if !c.enabled {
		if c.handlers.OnConnect != nil {
			c.handlers.OnConnect()
		}
		return nil
	}
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "connect")
	}
	return nil
}

// Disconnect publishes the offline state and closes the connection.
func (c *Client) Disconnect() {
	if !c.enabled || c.client == nil {
		return
	}
	if c.online.Load() {
		c.client.Publish(c.StatusTopic("state"), 1, true, `{"state":"offline"}`).WaitTimeout(250 * time.Millisecond)
	}
	c.client.Disconnect(250)
	c.setOnline(false)
}

// Subscribe subscribes to a topic. No-op if disabled.
func (c *Client) Subscribe(topic string) error {
	if !c.enabled {
		return nil
	}
	if token := c.client.Subscribe(topic, 0, nil); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "subscribe %s", topic)
	}
	return nil
}

// Publish sends payload on topic. While the broker is offline the message
// is counted and dropped; status is republished on reconnect.
func (c *Client) Publish(topic string, payload []byte, retained bool) {
	if !c.enabled {
		return
	}
	if !c.online.Load() {
		unsent.Inc()
		c.log.Debug().Str("topic", topic).Msg("broker offline, not sent")
		return
	}
	c.client.Publish(topic, 0, retained, payload)
}

// IsEnabled returns whether a broker is configured.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// Online reports whether the broker connection is currently up.
func (c *Client) Online() bool {
	return c.online.Load()
}

func (c *Client) setOnline(up bool) {
	c.online.Store(up)
	if up {
		brokerUp.Set(1)
	} else {
		brokerUp.Set(0)
	}
}

func (c *Client) handleConnect(paho.Client) {
	c.setOnline(true)
	c.log.Info().Msg("broker connected")
	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}
}

func (c *Client) handleConnectionLost(_ paho.Client, err error) {
	c.setOnline(false)
	c.log.Warn().Err(err).Msg("broker connection lost")
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(err)
	}
}

func (c *Client) handleMessage(_ paho.Client, msg paho.Message) {
	if c.handlers.OnMessage != nil {
		c.handlers.OnMessage(msg.Topic(), msg.Payload())
	}
}

type pahoLogger struct {
	log   zerolog.Logger
	level zerolog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	l.log.WithLevel(l.level).Msg(fmt.Sprint(v...))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.log.WithLevel(l.level).Msgf(format, v...)
}
