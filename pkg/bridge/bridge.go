// Package bridge moves bytes between a serial driver and a host packet
// port.
//
// Serial input is received into a ring buffer which a periodic pump
// forwards to the host; host input is framed into command lines and/or
// transmitted on the serial line, depending on the Mode.
package bridge

import (
	"errors"
	"sync"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/robotalks/uartbridge/pkg/acm"
	fx "github.com/robotalks/uartbridge/pkg/framework"
	"github.com/robotalks/uartbridge/pkg/ring"
	"github.com/robotalks/uartbridge/pkg/uart"
)

// Stats counts bridge activity.
type Stats struct {
	// Forwarded is bytes handed to the host port.
	Forwarded uint64

	// Overflows is the number of backlog discards and Discarded the bytes
	// thrown away by them.
	Overflows uint64
	Discarded uint64

	// Transmitted is bytes submitted to the serial driver and TxDropped
	// the Transmit calls refused by a busy transmitter.
	Transmitted uint64
	TxDropped   uint64

	LinesDispatched uint64
	LinesRejected   uint64

	// StaleCompletions counts receive completions dropped because the
	// reception was aborted or re-armed before they were handled.
	StaleCompletions uint64
}

// Bridge implements acm.Handler on top of a uart.Driver.
//
// The receive callback commits to the ring's received counter; the requests
// aborting reception and restarting the ring hold rxLock, which the
// callback takes too. A completion is only taken while the bridge's own
// reception is armed and the driver reports it finished, so a completion
// overtaken by an abort or a re-arm is dropped. The pump and the requests
// resetting the ring serialize on ctlLock, so forwarded has a single writer
// at any time. Everything filling the transmit buffer holds txLock.
// Locks are taken in the order ctlLock, rxLock, lineLock, txLock.
type Bridge struct {
	// Lines receives framed lines in command and monitor modes.
	Lines LineHandler

	mode       Mode
	intakeSize int
	drv        uart.Driver
	port       acm.Port
	ring       *ring.Buffer

	ctlLock sync.Mutex
	coding  acm.LineCoding
	state   acm.ControlLineState
	running atomic.Bool

	rxLock  sync.Mutex
	rxArmed bool

	txLock sync.Mutex
	txBuf  []byte
	// txHeld is the length of a chunk read from the host which the driver
	// refused; it is sent before anything else is read.
	txHeld int

	lineLock sync.Mutex
	intake   []byte
	lines    *lineAssembler

	forwarded       atomic.Uint64
	overflows       atomic.Uint64
	discarded       atomic.Uint64
	transmitted     atomic.Uint64
	linesDispatched atomic.Uint64
	linesRejected   atomic.Uint64
	txDropped       atomic.Uint64
	staleRx         atomic.Uint64
}

// New creates a Bridge. Zero values in conf take the defaults.
func New(conf *Config, drv uart.Driver, port acm.Port) (*Bridge, error) {
	capacity := conf.Capacity
	if capacity == 0 {
		capacity = ring.DefaultCapacity
	}
	rb, err := ring.New(capacity)
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		mode:       conf.Mode,
		intakeSize: orDefault(conf.IntakeSize, DefaultIntakeSize),
		drv:        drv,
		port:       port,
		ring:       rb,
		txBuf:      make([]byte, orDefault(conf.TxBufferSize, DefaultTxBufferSize)),
		lines:      newLineAssembler(orDefault(conf.MaxLineLength, DefaultMaxLineLength)),
	}
	b.intake = make([]byte, b.intakeSize)
	return b, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Mode returns the host data mode.
func (b *Bridge) Mode() Mode {
	return b.mode
}

// Ring exposes the receive ring.
func (b *Bridge) Ring() *ring.Buffer {
	return b.ring
}

// Running reports whether the pump is started.
func (b *Bridge) Running() bool {
	return b.running.Load()
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Forwarded:       b.forwarded.Load(),
		Overflows:       b.overflows.Load(),
		Discarded:       b.discarded.Load(),
		Transmitted:     b.transmitted.Load(),
		TxDropped:       b.txDropped.Load(),
		LinesDispatched: b.linesDispatched.Load(),
		LinesRejected:   b.linesRejected.Load(),

		StaleCompletions: b.staleRx.Load(),
	}
}

// Initialize implements acm.Handler. It powers up the driver and starts the
// pump.
func (b *Bridge) Initialize() {
	if err := b.drv.Initialize(b.HandleEvent); err != nil {
		glog.Errorf("serial initialize error: %v", err)
	}
	if err := b.drv.PowerControl(uart.PowerFull); err != nil {
		glog.Errorf("serial power up error: %v", err)
	}
	b.running.Store(true)
	glog.Infof("bridge started in %s mode", b.mode)
}

// Uninitialize implements acm.Handler. It stops the pump, if running, and
// shuts down the driver.
func (b *Bridge) Uninitialize() {
	if b.running.CompareAndSwap(true, false) {
		glog.Info("bridge stopped")
	}
	b.ctlLock.Lock()
	defer b.ctlLock.Unlock()
	b.rxLock.Lock()
	b.drv.Control(uart.AbortReceive, 0)
	b.rxArmed = false
	b.rxLock.Unlock()
	b.drv.PowerControl(uart.PowerOff)
	b.drv.Uninitialize()
}

// Reset implements acm.Handler. In-flight transfers are aborted and the
// ring restarts from zero; reception resumes with the next SetLineCoding.
func (b *Bridge) Reset() {
	b.ctlLock.Lock()
	b.rxLock.Lock()
	b.drv.Control(uart.AbortSend, 0)
	b.drv.Control(uart.AbortReceive, 0)
	b.rxArmed = false
	b.ring.Reset()
	b.rxLock.Unlock()
	b.ctlLock.Unlock()

	b.lineLock.Lock()
	b.lines.reset()
	b.lineLock.Unlock()

	b.txLock.Lock()
	b.txHeld = 0
	b.txLock.Unlock()
	glog.V(1).Info("bridge reset")
}

// SetControlLineState implements acm.Handler. DTR and RTS are forwarded to
// the driver's modem lines when it supports them.
func (b *Bridge) SetControlLineState(s acm.ControlLineState) bool {
	b.ctlLock.Lock()
	defer b.ctlLock.Unlock()
	b.state = s
	var lines uint32
	if s.DTR() {
		lines |= uart.LineDTR
	}
	if s.RTS() {
		lines |= uart.LineRTS
	}
	err := b.drv.Control(uart.ControlModemLines, lines)
	if err != nil && !errors.Is(err, uart.ErrUnsupported) {
		glog.Warningf("set control lines %02b error: %v", lines, err)
		return false
	}
	return true
}

// ControlLineState returns the last state set by the host.
func (b *Bridge) ControlLineState() acm.ControlLineState {
	b.ctlLock.Lock()
	defer b.ctlLock.Unlock()
	return b.state
}

// HandleEvent is the uart.EventHandler. Both events may be set at once.
func (b *Bridge) HandleEvent(ev uart.Event) {
	if ev.Has(uart.EventSendComplete) && b.mode == ModeTransparent {
		b.txLock.Lock()
		b.sendNextLocked()
		b.txLock.Unlock()
	}
	if ev.Has(uart.EventReceiveComplete) {
		b.receiveComplete()
	}
}

func (b *Bridge) receiveComplete() {
	b.rxLock.Lock()
	defer b.rxLock.Unlock()
	if !b.rxArmed || b.drv.Status().RxBusy {
		b.staleRx.Inc()
		glog.V(2).Info("stale receive completion dropped")
		return
	}
	b.ring.Commit(b.ring.Cap())
	if err := b.armReceiveLocked(); err != nil {
		glog.V(3).Infof("re-arm receive error: %v", err)
	}
}

// armReceiveLocked receives into the whole ring storage. rxLock is held.
func (b *Bridge) armReceiveLocked() error {
	err := b.drv.Receive(b.ring.Storage())
	b.rxArmed = err == nil
	return err
}

// AddToLoop implements LoopAdder.
func (b *Bridge) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvPump, b)
}

// Control implements Controller, running one pump step while started.
func (b *Bridge) Control(fx.ControlContext) error {
	if b.running.Load() {
		b.Step()
	}
	return nil
}
