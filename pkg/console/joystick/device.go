// Package joystick drives the console board inputs from a joystick:
// buttons become panel buttons and an axis becomes the potentiometer.
package joystick

import (
	"errors"
	"io"
)

// ErrUnsupported indicates joysticks are not available on this platform.
var ErrUnsupported = errors.New("joystick not supported")

// Event is a single change reported by the device.
type Event struct {
	// Init is set for the synthetic events describing the initial state.
	Init   bool
	Button bool
	Index  int
	Value  int
}

// Pressed reports whether a button event is a press.
func (e Event) Pressed() bool {
	return e.Button && e.Value != 0
}

// Device is an opened joystick.
type Device interface {
	io.Closer
	Index() int
	Name() string
	ReadEvent() (Event, error)
}

// Opener opens the joystick with the index, or the first available one
// when index is negative.
type Opener func(index int) (Device, error)
