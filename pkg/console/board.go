package console

import (
	"sync"

	"github.com/golang/glog"
)

// Board is an in-memory Panel. Inputs are driven with Press, Release and
// SetPot.
type Board struct {
	lock    sync.RWMutex
	leds    uint8
	text    string
	buttons uint8
	pot     int32
}

// NewBoard creates a Board with everything off.
func NewBoard() *Board {
	return &Board{}
}

// SetLEDs implements Panel.
func (b *Board) SetLEDs(leds uint8) error {
	b.lock.Lock()
	b.leds = leds
	b.lock.Unlock()
	glog.V(1).Infof("LEDs %08b", leds)
	return nil
}

// SetText implements Panel.
func (b *Board) SetText(text string) error {
	b.lock.Lock()
	b.text = text
	b.lock.Unlock()
	glog.V(1).Infof("LCD %q", text)
	return nil
}

// Buttons implements Panel.
func (b *Board) Buttons() (uint8, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.buttons, nil
}

// ReadPot implements Panel.
func (b *Board) ReadPot() (int32, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.pot, nil
}

// LEDs returns the current LED bits.
func (b *Board) LEDs() uint8 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.leds
}

// Text returns the displayed text.
func (b *Board) Text() string {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.text
}

// Press marks button k (1-based) pressed.
func (b *Board) Press(k int) {
	b.setButton(k, true)
}

// Release marks button k (1-based) released.
func (b *Board) Release(k int) {
	b.setButton(k, false)
}

func (b *Board) setButton(k int, pressed bool) {
	if k < 1 || k > 8 {
		return
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if pressed {
		b.buttons |= 1 << uint(k-1)
	} else {
		b.buttons &^= 1 << uint(k-1)
	}
}

// SetPot sets the potentiometer reading.
func (b *Board) SetPot(val int32) {
	b.lock.Lock()
	b.pot = val
	b.lock.Unlock()
}
