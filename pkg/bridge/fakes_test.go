package bridge

import (
	"errors"
	"sync"

	"github.com/robotalks/uartbridge/pkg/uart"
)

type ctlCall struct {
	ctl uart.Control
	arg uint32
}

// fakeDriver completes transfers synchronously on request of the test.
type fakeDriver struct {
	lock        sync.Mutex
	handler     uart.EventHandler
	power       uart.PowerState
	rxBuf       []byte
	rxBusy      bool
	rxCount     int
	txBusy      bool
	sent        [][]byte
	controls    []ctlCall
	modeErr     error
	linesErr    error
	sendErr     error
	uninitCount int
}

func (d *fakeDriver) Initialize(h uart.EventHandler) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.handler = h
	return nil
}

func (d *fakeDriver) PowerControl(state uart.PowerState) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.power = state
	return nil
}

func (d *fakeDriver) Send(data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.sendErr != nil {
		return d.sendErr
	}
	if d.txBusy {
		return uart.ErrBusy
	}
	d.txBusy = true
	d.sent = append(d.sent, append([]byte(nil), data...))
	return nil
}

func (d *fakeDriver) Receive(buf []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.rxBusy {
		return uart.ErrBusy
	}
	d.rxBuf, d.rxBusy, d.rxCount = buf, true, 0
	return nil
}

func (d *fakeDriver) Status() uart.Status {
	d.lock.Lock()
	defer d.lock.Unlock()
	return uart.Status{TxBusy: d.txBusy, RxBusy: d.rxBusy}
}

func (d *fakeDriver) RxCount() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.rxCount
}

func (d *fakeDriver) Control(ctl uart.Control, arg uint32) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.controls = append(d.controls, ctlCall{ctl, arg})
	switch ctl.Op() {
	case uart.ModeAsynchronous:
		return d.modeErr
	case uart.AbortSend:
		d.txBusy = false
	case uart.AbortReceive:
		d.rxBuf, d.rxBusy, d.rxCount = nil, false, 0
	case uart.ControlModemLines:
		return d.linesErr
	}
	return nil
}

func (d *fakeDriver) Uninitialize() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.handler = nil
	d.uninitCount++
	return nil
}

// feed receives data byte by byte, completing and signaling each time the
// armed buffer is full. Bytes are dropped while nothing is armed.
func (d *fakeDriver) feed(data []byte) {
	for _, c := range data {
		d.lock.Lock()
		if !d.rxBusy {
			d.lock.Unlock()
			continue
		}
		d.rxBuf[d.rxCount] = c
		d.rxCount++
		var h uart.EventHandler
		if d.rxCount == len(d.rxBuf) {
			d.rxBuf, d.rxBusy, d.rxCount = nil, false, 0
			h = d.handler
		}
		d.lock.Unlock()
		if h != nil {
			h(uart.EventReceiveComplete)
		}
	}
}

func (d *fakeDriver) sendComplete() {
	d.lock.Lock()
	d.txBusy = false
	h := d.handler
	d.lock.Unlock()
	if h != nil {
		h(uart.EventSendComplete)
	}
}

func (d *fakeDriver) Sent() [][]byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([][]byte(nil), d.sent...)
}

func (d *fakeDriver) Controls() []ctlCall {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]ctlCall(nil), d.controls...)
}

func (d *fakeDriver) clearControls() {
	d.lock.Lock()
	d.controls = nil
	d.lock.Unlock()
}

var errLinesFailed = errors.New("lines failed")

// fakePort is a host port accepting at most accept bytes per WriteData,
// or everything when accept is negative.
type fakePort struct {
	lock    sync.Mutex
	accept  int
	queue   []byte
	offered []int
	written [][]byte
}

func newFakePort() *fakePort {
	return &fakePort{accept: -1}
}

func (p *fakePort) ReadData(buf []byte) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	n := copy(buf, p.queue)
	p.queue = p.queue[n:]
	return n
}

func (p *fakePort) WriteData(data []byte) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.offered = append(p.offered, len(data))
	n := len(data)
	if p.accept >= 0 && n > p.accept {
		n = p.accept
	}
	if n > 0 {
		p.written = append(p.written, append([]byte(nil), data[:n]...))
	}
	return n
}

func (p *fakePort) push(data string) {
	p.lock.Lock()
	p.queue = append(p.queue, data...)
	p.lock.Unlock()
}

func (p *fakePort) Queued() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.queue)
}

func (p *fakePort) Written() []byte {
	p.lock.Lock()
	defer p.lock.Unlock()
	var all []byte
	for _, w := range p.written {
		all = append(all, w...)
	}
	return all
}
