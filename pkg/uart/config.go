package uart

import (
	"flag"
	"os"
)

// Config defines the serial device to bridge.
type Config struct {
	Device    string `yaml:"device"`
	ChunkSize int    `yaml:"chunk_size"`
}

var defaultConfig = Config{
	Device:    "/dev/ttyUSB0",
	ChunkSize: DefaultChunkSize,
}

func init() {
	if val := os.Getenv("UARTBRIDGE_SERIAL"); val != "" {
		defaultConfig.Device = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Device, "serial", defaultConfig.Device, "Serial device to bridge.")
	flag.IntVar(&defaultConfig.ChunkSize, "serial-chunk", defaultConfig.ChunkSize, "Bytes per serial read.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewPort creates the Port from config.
func (c *Config) NewPort() *Port {
	p := NewPort(c.Device)
	if c.ChunkSize > 0 {
		p.ChunkSize = c.ChunkSize
	}
	return p
}
