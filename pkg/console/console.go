// Package console interprets the AT command lines received from the host
// and drives the board peripherals.
package console

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// MaxTextLength is the longest text kept by AT+LCD=.
const MaxTextLength = 49

// Panel is the set of board peripherals commands operate on.
type Panel interface {
	// SetLEDs lights LED k iff bit k-1 of leds is set.
	SetLEDs(leds uint8) error
	SetText(text string) error
	// Buttons reports pressed buttons, bit k-1 for button k.
	Buttons() (uint8, error)
	ReadPot() (int32, error)
}

// Transmitter sends replies on the serial line.
type Transmitter interface {
	Transmit(data []byte) bool
}

// Console implements bridge.LineHandler.
type Console struct {
	Panel Panel
	Out   Transmitter
}

// New creates a Console.
func New(panel Panel, out Transmitter) *Console {
	return &Console{Panel: panel, Out: out}
}

type command struct {
	prefix string
	exec   func(c *Console, arg string) (string, error)
}

// Prefixes are matched in order.
var commands = []command{
	{"AT+LED", (*Console).setLEDs},
	{"AT+LCD=", (*Console).setText},
	{"AT+BUTTON", (*Console).readButtons},
	{"AT+POT", (*Console).readPot},
}

// HandleLine implements bridge.LineHandler.
func (c *Console) HandleLine(line []byte) {
	for _, cmd := range commands {
		if !bytes.HasPrefix(line, []byte(cmd.prefix)) {
			continue
		}
		reply, err := cmd.exec(c, string(line[len(cmd.prefix):]))
		if err != nil {
			glog.Warningf("%s error: %v", cmd.prefix, err)
			return
		}
		c.reply(reply)
		return
	}
	glog.V(2).Infof("ignored line %q", line)
}

func (c *Console) reply(msg string) {
	if c.Out == nil {
		return
	}
	if !c.Out.Transmit([]byte(msg + "\r\n")) {
		glog.V(1).Infof("reply dropped: %q", msg)
	}
}

func (c *Console) setLEDs(arg string) (string, error) {
	val := leadingInt(arg)
	if val >= 1 && val <= 8 {
		if err := c.Panel.SetLEDs(LEDPattern(val)); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("LED value set to: %d", val), nil
}

func (c *Console) setText(arg string) (string, error) {
	if len(arg) > MaxTextLength {
		arg = arg[:MaxTextLength]
	}
	if err := c.Panel.SetText(arg); err != nil {
		return "", err
	}
	return "LCD string set to: " + arg, nil
}

func (c *Console) readButtons(string) (string, error) {
	pressed, err := c.Panel.Buttons()
	if err != nil {
		return "", err
	}
	return ButtonsMessage(pressed), nil
}

func (c *Console) readPot(string) (string, error) {
	val, err := c.Panel.ReadPot()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Potentiometer value: %d", val), nil
}

// LEDPattern maps val onto LED1..LED4 most significant bit first:
// LED k is lit iff bit 4-k of val is set. LED5..LED8 stay dark.
func LEDPattern(val int) uint8 {
	var leds uint8
	for k := uint(1); k <= 4; k++ {
		if val&(1<<(4-k)) != 0 {
			leds |= 1 << (k - 1)
		}
	}
	return leds
}

// ButtonsMessage describes buttons 1-4 in pressed.
func ButtonsMessage(pressed uint8) string {
	var names []string
	for k := 1; k <= 4; k++ {
		if pressed&(1<<uint(k-1)) != 0 {
			names = append(names, fmt.Sprintf("Button %d", k))
		}
	}
	switch len(names) {
	case 0:
		return "No button is pressed"
	case 1:
		return names[0] + " is pressed"
	case 4:
		return "All buttons are pressed"
	}
	last := len(names) - 1
	return strings.Join(names[:last], ", ") + " and " + names[last] + " are pressed"
}

// leadingInt parses an optionally signed decimal prefix of s, 0 if none.
func leadingInt(s string) int {
	s = strings.TrimLeft(s, " \t")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	val := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		val = val*10 + int(s[i]-'0')
		if val > 1<<31 {
			break
		}
	}
	if neg {
		return -val
	}
	return val
}
