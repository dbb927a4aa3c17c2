package uart

import (
	"io"
	"sync"

	"github.com/golang/glog"
	"go.bug.st/serial"
	"go.uber.org/atomic"
)

// Conn is the subset of serial.Port used by Port.
type Conn interface {
	io.ReadWriteCloser
	SetMode(*serial.Mode) error
	SetDTR(bool) error
	SetRTS(bool) error
}

// Opener opens a serial device with the initial mode.
type Opener func(name string, mode *serial.Mode) (Conn, error)

// OpenSerial is the default Opener using go.bug.st/serial.
func OpenSerial(name string, mode *serial.Mode) (Conn, error) {
	return serial.Open(name, mode)
}

// ListPorts enumerates serial devices on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// DefaultChunkSize is the read size of the receiver goroutine.
const DefaultChunkSize = 64

// Port implements Driver on a serial device.
//
// The device is opened when the first mode word is applied. A reader
// goroutine copies incoming bytes into the buffer armed by Receive and
// signals EventReceiveComplete when it is full; bytes arriving while no
// buffer is armed or reception is disabled are dropped. A writer goroutine
// performs Send and signals EventSendComplete.
type Port struct {
	Name      string
	Opener    Opener
	ChunkSize int

	lock      sync.Mutex
	handler   EventHandler
	conn      Conn
	done      chan struct{}
	powered   bool
	txEnabled bool
	rxEnabled bool

	rxBuf   []byte
	rxBusy  bool
	rxCount atomic.Int32
	dropped atomic.Uint64

	txBusy bool
	txGen  uint64
	txCh   chan txRequest
}

type txRequest struct {
	data []byte
	gen  uint64
}

// NewPort creates a Port for the named device.
func NewPort(name string) *Port {
	return &Port{Name: name, Opener: OpenSerial, ChunkSize: DefaultChunkSize}
}

// Initialize implements Driver.
func (p *Port) Initialize(h EventHandler) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.handler = h
	return nil
}

// Uninitialize implements Driver.
func (p *Port) Uninitialize() error {
	err := p.PowerControl(PowerOff)
	p.lock.Lock()
	p.handler = nil
	p.lock.Unlock()
	return err
}

// PowerControl implements Driver.
func (p *Port) PowerControl(state PowerState) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch state {
	case PowerFull:
		p.powered = true
		return nil
	case PowerOff:
		p.powered, p.txEnabled, p.rxEnabled = false, false, false
		p.abortReceiveLocked()
		p.abortSendLocked()
		return p.closeLocked()
	}
	return ErrParameter
}

// Dropped returns the number of bytes received with no buffer armed.
func (p *Port) Dropped() uint64 {
	return p.dropped.Load()
}

// Status implements Driver.
func (p *Port) Status() Status {
	p.lock.Lock()
	defer p.lock.Unlock()
	return Status{TxBusy: p.txBusy, RxBusy: p.rxBusy}
}

// RxCount implements Driver.
func (p *Port) RxCount() int {
	return int(p.rxCount.Load())
}

// Receive implements Driver.
func (p *Port) Receive(buf []byte) error {
	if len(buf) == 0 {
		return ErrParameter
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.powered {
		return ErrNotPowered
	}
	if p.rxBusy {
		return ErrBusy
	}
	p.rxBuf, p.rxBusy = buf, true
	p.rxCount.Store(0)
	return nil
}

// Send implements Driver.
func (p *Port) Send(data []byte) error {
	if len(data) == 0 {
		return ErrParameter
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.powered || p.conn == nil || !p.txEnabled {
		return ErrNotPowered
	}
	if p.txBusy {
		return ErrBusy
	}
	p.txGen++
	select {
	case p.txCh <- txRequest{data: data, gen: p.txGen}:
		p.txBusy = true
		return nil
	default:
		return ErrBusy
	}
}

// Control implements Driver.
func (p *Port) Control(ctl Control, arg uint32) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch ctl.Op() {
	case ModeAsynchronous:
		mode, err := SerialMode(ctl, arg)
		if err != nil {
			return err
		}
		return p.applyModeLocked(mode)
	case ControlTx:
		p.txEnabled = arg != 0
	case ControlRx:
		p.rxEnabled = arg != 0
	case ControlModemLines:
		if p.conn == nil {
			return ErrNotPowered
		}
		if err := p.conn.SetDTR(arg&LineDTR != 0); err != nil {
			return err
		}
		return p.conn.SetRTS(arg&LineRTS != 0)
	case AbortSend:
		p.abortSendLocked()
	case AbortReceive:
		p.abortReceiveLocked()
	default:
		return ErrUnsupported
	}
	return nil
}

// SerialMode converts a mode word and baud rate into serial.Mode.
func SerialMode(ctl Control, baud uint32) (*serial.Mode, error) {
	if ctl.Op() != ModeAsynchronous || baud == 0 {
		return nil, ErrParameter
	}
	mode := &serial.Mode{BaudRate: int(baud), DataBits: ctl.DataBits()}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, ErrParameter
	}
	switch ctl.Parity() {
	case ParityNone:
		mode.Parity = serial.NoParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	case ParityEven:
		mode.Parity = serial.EvenParity
	default:
		return nil, ErrParameter
	}
	switch ctl.StopBits() {
	case StopBits1:
		mode.StopBits = serial.OneStopBit
	case StopBits1_5:
		mode.StopBits = serial.OnePointFiveStopBits
	case StopBits2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, ErrParameter
	}
	return mode, nil
}

func (p *Port) applyModeLocked(mode *serial.Mode) error {
	if !p.powered {
		return ErrNotPowered
	}
	if p.conn != nil {
		return p.conn.SetMode(mode)
	}
	opener := p.Opener
	if opener == nil {
		opener = OpenSerial
	}
	conn, err := opener(p.Name, mode)
	if err != nil {
		return err
	}
	glog.Infof("serial %s opened: %d baud, %d data bits", p.Name, mode.BaudRate, mode.DataBits)
	p.conn, p.done = conn, make(chan struct{})
	p.txCh = make(chan txRequest, 1)
	go p.readLoop(conn, p.done)
	go p.writeLoop(conn, p.txCh, p.done)
	return nil
}

func (p *Port) closeLocked() error {
	if p.conn == nil {
		return nil
	}
	close(p.done)
	err := p.conn.Close()
	p.conn, p.done, p.txCh = nil, nil, nil
	return err
}

func (p *Port) abortSendLocked() {
	p.txBusy = false
	p.txGen++
}

func (p *Port) abortReceiveLocked() {
	p.rxBuf, p.rxBusy = nil, false
	p.rxCount.Store(0)
}

func (p *Port) readLoop(conn Conn, done <-chan struct{}) {
	size := p.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			p.deliver(buf[:n])
		}
		if err != nil {
			select {
			case <-done:
			default:
				glog.Warningf("serial %s read error: %v", p.Name, err)
			}
			return
		}
	}
}

// deliver copies data into armed buffers, completing them as they fill.
// The in-flight count is cleared before the handler runs so a reader
// that samples the committed count first never sees both.
func (p *Port) deliver(data []byte) {
	for len(data) > 0 {
		p.lock.Lock()
		if !p.rxBusy || !p.rxEnabled {
			p.lock.Unlock()
			p.dropped.Add(uint64(len(data)))
			return
		}
		cnt := int(p.rxCount.Load())
		n := copy(p.rxBuf[cnt:], data)
		data = data[n:]
		cnt += n
		var h EventHandler
		if cnt >= len(p.rxBuf) {
			p.abortReceiveLocked()
			h = p.handler
		} else {
			p.rxCount.Store(int32(cnt))
		}
		p.lock.Unlock()
		if h != nil {
			h(EventReceiveComplete)
		}
	}
}

func (p *Port) writeLoop(conn Conn, ch <-chan txRequest, done <-chan struct{}) {
	for {
		var req txRequest
		select {
		case <-done:
			return
		case req = <-ch:
		}
		_, err := conn.Write(req.data)
		if err != nil {
			glog.Warningf("serial %s write error: %v", p.Name, err)
		}
		p.lock.Lock()
		var h EventHandler
		if p.txBusy && p.txGen == req.gen {
			p.txBusy = false
			h = p.handler
		}
		p.lock.Unlock()
		if h != nil {
			h(EventSendComplete)
		}
	}
}
