// Package acm models the host-facing side of a CDC ACM style serial bridge:
// the line coding and control line state negotiated by the host, the
// callbacks a bridge exposes, and the packet port it writes through.
package acm

import (
	"fmt"
	"strconv"
	"strings"
)

// StopBits is the CDC bCharFormat value.
type StopBits uint8

// Stop bits.
const (
	StopBits1   StopBits = 0
	StopBits1_5 StopBits = 1
	StopBits2   StopBits = 2
)

// String implements fmt.Stringer.
func (s StopBits) String() string {
	switch s {
	case StopBits1:
		return "1"
	case StopBits1_5:
		return "1.5"
	case StopBits2:
		return "2"
	}
	return "stop(" + strconv.Itoa(int(s)) + ")"
}

// Parity is the CDC bParityType value.
type Parity uint8

// Parity types.
const (
	ParityNone  Parity = 0
	ParityOdd   Parity = 1
	ParityEven  Parity = 2
	ParityMark  Parity = 3
	ParitySpace Parity = 4
)

var parityLetters = "NOEMS"

// String implements fmt.Stringer.
func (p Parity) String() string {
	if int(p) < len(parityLetters) {
		return parityLetters[p : p+1]
	}
	return "parity(" + strconv.Itoa(int(p)) + ")"
}

// LineCoding is the asynchronous line character format requested by
// the host.
type LineCoding struct {
	DTERate    uint32
	CharFormat StopBits
	ParityType Parity
	DataBits   uint8
}

// String formats as "115200 8N1".
func (c LineCoding) String() string {
	return fmt.Sprintf("%d %d%s%s", c.DTERate, c.DataBits, c.ParityType, c.CharFormat)
}

// ParseLineCoding parses "115200 8N1", "9600 7E2" or "300 5O1.5".
// The rate alone means 8N1.
func ParseLineCoding(s string) (c LineCoding, err error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return c, fmt.Errorf("invalid line coding %q", s)
	}
	rate, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return c, fmt.Errorf("invalid rate %q: %v", fields[0], err)
	}
	c = LineCoding{DTERate: uint32(rate), DataBits: 8}
	if len(fields) == 1 {
		return c, nil
	}
	format := strings.ToUpper(fields[1])
	if len(format) < 3 {
		return c, fmt.Errorf("invalid format %q", fields[1])
	}
	bits, err := strconv.ParseUint(format[:1], 10, 8)
	if err != nil {
		return c, fmt.Errorf("invalid data bits %q", format[:1])
	}
	c.DataBits = uint8(bits)
	p := strings.IndexByte(parityLetters, format[1])
	if p < 0 {
		return c, fmt.Errorf("invalid parity %q", format[1:2])
	}
	c.ParityType = Parity(p)
	switch format[2:] {
	case "1":
		c.CharFormat = StopBits1
	case "1.5":
		c.CharFormat = StopBits1_5
	case "2":
		c.CharFormat = StopBits2
	default:
		return c, fmt.Errorf("invalid stop bits %q", format[2:])
	}
	return c, nil
}

// ControlLineState is the CDC SET_CONTROL_LINE_STATE bitmap.
type ControlLineState uint16

// Control line bits.
const (
	LineStateDTR ControlLineState = 1 << 0
	LineStateRTS ControlLineState = 1 << 1
)

// DTR reports whether the DTE is present.
func (s ControlLineState) DTR() bool { return s&LineStateDTR != 0 }

// RTS reports whether the carrier is activated.
func (s ControlLineState) RTS() bool { return s&LineStateRTS != 0 }

// Handler is implemented by the bridge and invoked by the packet
// transport. Callbacks may come from any goroutine.
type Handler interface {
	Initialize()
	Uninitialize()
	// Reset is called when the host session restarts.
	Reset()
	// DataReceived reports n bytes are queued for ReadData.
	DataReceived(n int)
	// SetLineCoding returns false if the coding is not applied.
	SetLineCoding(LineCoding) bool
	GetLineCoding() LineCoding
	SetControlLineState(ControlLineState) bool
}

// Port is the packet transport as seen by the bridge.
// Both calls are non-blocking and report the bytes actually moved.
type Port interface {
	// ReadData moves queued host bytes into buf.
	ReadData(buf []byte) int
	// WriteData offers data to the host, returning how much was accepted.
	WriteData(data []byte) int
}
