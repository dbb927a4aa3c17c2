package bridge

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/robotalks/uartbridge/pkg/acm"
	"github.com/robotalks/uartbridge/pkg/ring"
	"github.com/robotalks/uartbridge/pkg/uart"
)

// Mode selects what happens to bytes from the host.
type Mode int

// Modes.
const (
	// ModeCommand frames host bytes into lines for the LineHandler.
	ModeCommand Mode = iota
	// ModeTransparent transmits host bytes on the serial line unchanged.
	ModeTransparent
	// ModeMonitor does both: bytes are framed and, when the transmitter
	// is idle, also transmitted.
	ModeMonitor
)

var modeNames = []string{"command", "transparent", "monitor"}

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Set implements flag.Value.
func (m *Mode) Set(s string) error {
	for n, name := range modeNames {
		if s == name {
			*m = Mode(n)
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}

// Defaults.
const (
	DefaultPumpInterval  = 10 * time.Millisecond
	DefaultTxBufferSize  = 512
	DefaultIntakeSize    = 64
	DefaultMaxLineLength = DefaultIntakeSize - 1
)

// Config defines the bridge parameters.
type Config struct {
	Mode         Mode          `yaml:"mode"`
	PumpInterval time.Duration `yaml:"pump_interval"`

	// Capacity is the ring size, a power of two.
	Capacity     int `yaml:"ring_size"`
	TxBufferSize int `yaml:"tx_buffer_size"`

	// IntakeSize bounds the host bytes read per DataReceived in
	// line-framing modes.
	IntakeSize    int `yaml:"intake"`
	MaxLineLength int `yaml:"max_line"`
}

var defaultConfig = Config{
	Mode:          ModeCommand,
	PumpInterval:  DefaultPumpInterval,
	Capacity:      ring.DefaultCapacity,
	TxBufferSize:  DefaultTxBufferSize,
	IntakeSize:    DefaultIntakeSize,
	MaxLineLength: DefaultMaxLineLength,
}

func init() {
	if val := os.Getenv("UARTBRIDGE_MODE"); val != "" {
		if err := defaultConfig.Mode.Set(val); err != nil {
			fmt.Fprintf(os.Stderr, "UARTBRIDGE_MODE: %v\n", err)
		}
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.Var(&defaultConfig.Mode, "mode", "Host data handling: command, transparent or monitor.")
	flag.DurationVar(&defaultConfig.PumpInterval, "pump-interval", defaultConfig.PumpInterval, "Interval of forwarding serial data to the host.")
	flag.IntVar(&defaultConfig.Capacity, "ring-size", defaultConfig.Capacity, "Serial receive ring size, a power of 2.")
	flag.IntVar(&defaultConfig.TxBufferSize, "tx-buffer", defaultConfig.TxBufferSize, "Largest chunk sent on the serial line at once.")
	flag.IntVar(&defaultConfig.IntakeSize, "intake", defaultConfig.IntakeSize, "Host bytes read per notification when framing lines.")
	flag.IntVar(&defaultConfig.MaxLineLength, "max-line", defaultConfig.MaxLineLength, "Longest accepted command line.")
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

// NewBridge creates a Bridge from config.
func (c *Config) NewBridge(drv uart.Driver, port acm.Port) (*Bridge, error) {
	return New(c, drv, port)
}
