package acm

import (
	"context"
	"io"
	"sync"

	"github.com/robotalks/uartbridge/pkg/transport"
)

type pipeConn struct {
	rx     <-chan []byte
	tx     chan<- []byte
	closed chan struct{}
	once   *sync.Once
}

func newPipe() (*pipeConn, *pipeConn) {
	a2b, b2a := make(chan []byte, 16), make(chan []byte, 16)
	closed, once := make(chan struct{}), &sync.Once{}
	return &pipeConn{rx: b2a, tx: a2b, closed: closed, once: once},
		&pipeConn{rx: a2b, tx: b2a, closed: closed, once: once}
}

func (p *pipeConn) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.rx:
		return pkt, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *pipeConn) WritePacket(pkt []byte) error {
	select {
	case p.tx <- pkt:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

type fakeListener struct {
	connCh chan transport.PacketConn
}

func newFakeListener() *fakeListener {
	return &fakeListener{connCh: make(chan transport.PacketConn, 1)}
}

func (l *fakeListener) Accept(ctx context.Context) (transport.PacketConn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeListener) Close() error { return nil }

type fakeHandler struct {
	port     Port
	readMax  int
	lock     sync.Mutex
	calls    []string
	coding   LineCoding
	state    ControlLineState
	received []byte
	signals  []int
}

func (h *fakeHandler) record(call string) {
	h.lock.Lock()
	h.calls = append(h.calls, call)
	h.lock.Unlock()
}

func (h *fakeHandler) Calls() []string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *fakeHandler) Received() []byte {
	h.lock.Lock()
	defer h.lock.Unlock()
	return append([]byte(nil), h.received...)
}

func (h *fakeHandler) Initialize()   { h.record("init") }
func (h *fakeHandler) Uninitialize() { h.record("uninit") }
func (h *fakeHandler) Reset()        { h.record("reset") }

func (h *fakeHandler) DataReceived(n int) {
	h.lock.Lock()
	h.signals = append(h.signals, n)
	h.lock.Unlock()
	if h.readMax == 0 {
		return
	}
	buf := make([]byte, h.readMax)
	cnt := h.port.ReadData(buf)
	h.lock.Lock()
	h.received = append(h.received, buf[:cnt]...)
	h.lock.Unlock()
}

func (h *fakeHandler) SetLineCoding(c LineCoding) bool {
	if c.DataBits < 5 || c.DataBits > 8 {
		return false
	}
	h.lock.Lock()
	h.coding = c
	h.lock.Unlock()
	return true
}

func (h *fakeHandler) GetLineCoding() LineCoding {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.coding
}

func (h *fakeHandler) SetControlLineState(s ControlLineState) bool {
	h.lock.Lock()
	h.state = s
	h.lock.Unlock()
	return true
}
