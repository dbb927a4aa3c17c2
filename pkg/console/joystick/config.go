package joystick

import (
	"flag"
)

// Config defines the joystick input.
type Config struct {
	Enabled     bool `yaml:"enabled"`
	DeviceIndex int  `yaml:"device"`
	PotAxis     int  `yaml:"pot_axis"`
}

var defaultConfig = Config{
	DeviceIndex: -1,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.BoolVar(&defaultConfig.Enabled, "joystick", defaultConfig.Enabled, "Drive board buttons and potentiometer from a joystick.")
	flag.IntVar(&defaultConfig.DeviceIndex, "joystick-device", defaultConfig.DeviceIndex, "Joystick index, -1 for auto detection.")
	flag.IntVar(&defaultConfig.PotAxis, "joystick-pot-axis", defaultConfig.PotAxis, "Joystick axis driving the potentiometer.")
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

// NewInput creates the Input from config, nil if disabled.
func (c *Config) NewInput(inputs Inputs) *Input {
	if !c.Enabled {
		return nil
	}
	in := NewInput(inputs)
	in.DeviceIndex = c.DeviceIndex
	in.PotAxis = c.PotAxis
	return in
}
