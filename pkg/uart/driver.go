// Package uart defines the serial driver contract used by the bridge and
// an implementation on top of OS serial ports.
package uart

import (
	"errors"
	"fmt"
)

// Event is a bit set of driver events, several may be signaled at once.
type Event uint32

// Events
const (
	// EventSendComplete indicates all data passed to Send was transmitted.
	EventSendComplete Event = 1 << 0
	// EventReceiveComplete indicates the buffer passed to Receive is full.
	EventReceiveComplete Event = 1 << 1
)

// Has checks if ev contains all bits of flag.
func (ev Event) Has(flag Event) bool {
	return ev&flag == flag
}

// String implements fmt.Stringer.
func (ev Event) String() string {
	switch ev {
	case 0:
		return "none"
	case EventSendComplete:
		return "send-complete"
	case EventReceiveComplete:
		return "receive-complete"
	case EventSendComplete | EventReceiveComplete:
		return "send-complete|receive-complete"
	}
	return fmt.Sprintf("event(%#x)", uint32(ev))
}

// EventHandler is invoked by the driver from its own goroutines.
type EventHandler func(Event)

// PowerState is the power state of the driver.
type PowerState int

// Power states
const (
	PowerOff PowerState = iota
	PowerFull
)

// Status reports the activity of the driver.
type Status struct {
	TxBusy bool
	RxBusy bool
}

// Control is the operation code passed to Driver.Control.
// A mode word combines ModeAsynchronous with data bits, parity and
// stop bits and takes the baud rate as argument.
type Control uint32

// Operations
const (
	ModeAsynchronous Control = 0x01

	ControlTx         Control = 0x10 // arg: 0 disables, 1 enables
	ControlRx         Control = 0x11 // arg: 0 disables, 1 enables
	ControlModemLines Control = 0x12 // arg: bit 0 DTR, bit 1 RTS
	AbortSend         Control = 0x13
	AbortReceive      Control = 0x14

	controlOpMask Control = 0xff
)

// Mode word fields
const (
	DataBits5 Control = 5 << 8
	DataBits6 Control = 6 << 8
	DataBits7 Control = 7 << 8
	DataBits8 Control = 8 << 8

	ParityNone Control = 0 << 12
	ParityEven Control = 1 << 12
	ParityOdd  Control = 2 << 12

	StopBits1   Control = 0 << 14
	StopBits2   Control = 1 << 14
	StopBits1_5 Control = 2 << 14

	dataBitsMask Control = 0xf << 8
	parityMask   Control = 3 << 12
	stopBitsMask Control = 3 << 14
)

// Op extracts the operation code.
func (c Control) Op() Control {
	return c & controlOpMask
}

// DataBits extracts the data bits count from a mode word.
func (c Control) DataBits() int {
	return int((c & dataBitsMask) >> 8)
}

// Parity extracts the parity field from a mode word.
func (c Control) Parity() Control {
	return c & parityMask
}

// StopBits extracts the stop bits field from a mode word.
func (c Control) StopBits() Control {
	return c & stopBitsMask
}

// Modem line bits for ControlModemLines.
const (
	LineDTR uint32 = 1 << 0
	LineRTS uint32 = 1 << 1
)

var (
	// ErrBusy indicates a send or receive is already in progress.
	ErrBusy = errors.New("busy")
	// ErrUnsupported indicates the operation is not supported by the driver.
	ErrUnsupported = errors.New("unsupported")
	// ErrParameter indicates an invalid parameter.
	ErrParameter = errors.New("invalid parameter")
	// ErrNotPowered indicates the driver is not powered or not configured.
	ErrNotPowered = errors.New("not powered")
)

// Driver is an asynchronous serial driver.
// Send and Receive return immediately; completion is signaled through the
// EventHandler. Buffers passed in must stay valid until completion or abort.
type Driver interface {
	Initialize(EventHandler) error
	PowerControl(PowerState) error
	Send([]byte) error
	Receive([]byte) error
	Status() Status
	// RxCount returns bytes received so far into the current Receive buffer.
	RxCount() int
	Control(ctl Control, arg uint32) error
	Uninitialize() error
}
