package bridge

import (
	"github.com/golang/glog"

	"github.com/robotalks/uartbridge/pkg/acm"
	"github.com/robotalks/uartbridge/pkg/uart"
)

// ModeWord maps a line coding to the driver mode word. Mark and space
// parity and 16 data bits are not supported.
func ModeWord(c acm.LineCoding) (uart.Control, bool) {
	ctl := uart.ModeAsynchronous
	switch c.CharFormat {
	case acm.StopBits1:
		ctl |= uart.StopBits1
	case acm.StopBits1_5:
		ctl |= uart.StopBits1_5
	case acm.StopBits2:
		ctl |= uart.StopBits2
	default:
		return 0, false
	}
	switch c.ParityType {
	case acm.ParityNone:
		ctl |= uart.ParityNone
	case acm.ParityOdd:
		ctl |= uart.ParityOdd
	case acm.ParityEven:
		ctl |= uart.ParityEven
	default:
		return 0, false
	}
	switch c.DataBits {
	case 5:
		ctl |= uart.DataBits5
	case 6:
		ctl |= uart.DataBits6
	case 7:
		ctl |= uart.DataBits7
	case 8:
		ctl |= uart.DataBits8
	default:
		return 0, false
	}
	return ctl, true
}

// SetLineCoding implements acm.Handler.
//
// An unsupported coding is rejected before anything is touched. Otherwise
// transfers are aborted and the line disabled before the new mode is
// applied; if the driver refuses it the line stays disabled. On success the
// coding is stored, the ring restarts from zero and reception is armed. In
// transparent mode host bytes waiting for the line are sent right away.
func (b *Bridge) SetLineCoding(c acm.LineCoding) bool {
	ctl, ok := ModeWord(c)
	if !ok {
		glog.V(2).Infof("line coding %s rejected", c)
		return false
	}
	b.ctlLock.Lock()
	defer b.ctlLock.Unlock()
	b.rxLock.Lock()
	defer b.rxLock.Unlock()
	b.drv.Control(uart.AbortSend, 0)
	b.drv.Control(uart.AbortReceive, 0)
	b.rxArmed = false
	b.drv.Control(uart.ControlTx, 0)
	b.drv.Control(uart.ControlRx, 0)
	if err := b.drv.Control(ctl, c.DTERate); err != nil {
		glog.Warningf("apply line coding %s error: %v", c, err)
		return false
	}
	b.coding = c
	b.ring.Reset()
	b.drv.Control(uart.ControlTx, 1)
	b.drv.Control(uart.ControlRx, 1)
	if err := b.armReceiveLocked(); err != nil {
		glog.Warningf("arm receive error: %v", err)
	}
	glog.Infof("line coding %s", c)
	if b.mode == ModeTransparent {
		b.txLock.Lock()
		b.sendNextLocked()
		b.txLock.Unlock()
	}
	return true
}

// GetLineCoding implements acm.Handler.
func (b *Bridge) GetLineCoding() acm.LineCoding {
	b.ctlLock.Lock()
	defer b.ctlLock.Unlock()
	return b.coding
}
