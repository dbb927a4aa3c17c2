// Package env builds the host transport endpoints from configuration.
package env

import (
	"context"
	"flag"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/robotalks/uartbridge/pkg/transport"
	"github.com/robotalks/uartbridge/pkg/transport/mqtt"
	"github.com/robotalks/uartbridge/pkg/transport/stream"
	"github.com/robotalks/uartbridge/pkg/transport/websocket"
)

// Config defines where the host reaches the bridge.
type Config struct {
	// URL selects the transport by scheme, e.g.
	// mqtt://host:1883/uartbridge/, tcp://host:7070, ws://host:8080/acm
	URL         string `yaml:"url"`
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	// Origin is the WebSocket origin used by Dial.
	Origin string `yaml:"origin"`
}

var defaultConfig = Config{
	URL:    "tcp://localhost:7070",
	Origin: "http://localhost/",
}

func init() {
	if val := os.Getenv("UARTBRIDGE_URL"); val != "" {
		defaultConfig.URL = val
	}
	if val := os.Getenv("UARTBRIDGE_ID"); val != "" {
		defaultConfig.ID = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.URL, "url", defaultConfig.URL, "Host transport URL (mqtt://, tcp://, ws://).")
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Bridge ID, defaults to the machine ID.")
	flag.StringVar(&defaultConfig.Description, "desc", defaultConfig.Description, "Bridge description for discovery.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// DeviceID returns ID or the machine ID if not set.
func (c *Config) DeviceID() string {
	if c.ID != "" {
		return c.ID
	}
	return MachineID()
}

func (c *Config) parseURL() (*url.URL, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL %q", c.URL)
	}
	if u.Host == "" {
		return nil, errors.Errorf("URL %q has no host", c.URL)
	}
	return u, nil
}

// NewListener creates the device side transport. serial is published in
// the MQTT presence record.
func (c *Config) NewListener(serial string) (transport.Listener, error) {
	u, err := c.parseURL()
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "mqtt":
		return mqtt.NewListener(c.URL, mqtt.Meta{
			ID:          c.DeviceID(),
			Description: c.Description,
			Serial:      serial,
		})
	case "tcp":
		return stream.Listen(u.Host)
	case "ws":
		path := u.Path
		if path == "" {
			path = "/"
		}
		return websocket.Listen(u.Host, path)
	}
	return nil, errors.Errorf("unknown URL scheme: %q", u.Scheme)
}

// Dial connects to the bridge as the host.
func (c *Config) Dial() (transport.PacketConn, error) {
	u, err := c.parseURL()
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "mqtt":
		if c.ID == "" {
			return nil, errors.New("bridge ID must be specified")
		}
		return mqtt.Dial(c.URL, c.ID)
	case "tcp":
		return stream.Dial(u.Host)
	case "ws":
		return websocket.Dial(c.URL, c.Origin)
	}
	return nil, errors.Errorf("unknown URL scheme: %q", u.Scheme)
}

// Discover lists the bridges present on an MQTT broker.
func (c *Config) Discover(ctx context.Context, timeout time.Duration) ([]mqtt.Meta, error) {
	u, err := c.parseURL()
	if err != nil {
		return nil, err
	}
	if u.Scheme != "mqtt" {
		return nil, errors.Errorf("discovery requires mqtt://, got %q", u.Scheme)
	}
	return mqtt.Discover(ctx, c.URL, timeout)
}

// IsMQTT reports whether URL selects the MQTT transport.
func (c *Config) IsMQTT() bool {
	u, err := url.Parse(c.URL)
	return err == nil && u.Scheme == "mqtt"
}
