package acm

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/uartbridge/pkg/framework"
	"github.com/robotalks/uartbridge/pkg/transport"
)

// DefaultExpiration is the default time to wait for a reply.
const DefaultExpiration = 1 * time.Second

// ErrNotConnected is returned when the host session is gone.
var ErrNotConnected = errors.New("not connected")

// RequestError is returned when the device rejects a request.
type RequestError struct {
	Kind FrameKind
}

// Error implements error.
func (e *RequestError) Error() string {
	return fmt.Sprintf("%s rejected", e.Kind)
}

// Result is the outcome of a request.
type Result struct {
	Frame *Frame
	Err   error
}

// Future is a request waiting for its reply.
type Future struct {
	kind     FrameKind
	seq      uint32
	expireAt time.Time
	elem     *list.Element
	result   chan Result
}

// ResultChan returns the channel receiving exactly one Result.
func (f *Future) ResultChan() <-chan Result {
	return f.result
}

// Wait blocks for the result or ctx.
func (f *Future) Wait(ctx context.Context) (*Frame, error) {
	select {
	case res := <-f.result:
		return res.Frame, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Host is the host side of a Device session.
//
// Requests are matched to replies by sequence number; requests without a
// reply within Expiration fail with context.DeadlineExceeded once the Host
// is added to a running loop.
type Host struct {
	Expiration time.Duration

	conn     transport.PacketConn
	dataCh   chan []byte
	sendLock sync.Mutex

	lock     sync.Mutex
	seq      uint32
	closed   bool
	requests list.List
	seqMap   map[uint32]*Future
}

// NewHost creates a Host on an established connection.
func NewHost(conn transport.PacketConn) *Host {
	return &Host{
		Expiration: DefaultExpiration,
		conn:       conn,
		dataCh:     make(chan []byte, 64),
		seqMap:     make(map[uint32]*Future),
	}
}

// Data returns the channel of bytes from the serial side. It is closed when
// Run returns.
func (h *Host) Data() <-chan []byte {
	return h.dataCh
}

// Write sends bytes to the serial side.
func (h *Host) Write(data []byte) error {
	return h.send(&Frame{Kind: KindData, Data: data})
}

// SetLineCoding requests a new line coding.
func (h *Host) SetLineCoding(c LineCoding) *Future {
	return h.request(&Frame{Kind: KindSetLineCoding, Coding: CodingFrom(c)})
}

// GetLineCoding requests the current line coding.
func (h *Host) GetLineCoding() *Future {
	return h.request(&Frame{Kind: KindGetLineCoding})
}

// SetControlLineState requests DTR/RTS changes.
func (h *Host) SetControlLineState(s ControlLineState) *Future {
	return h.request(&Frame{Kind: KindSetControlLineState, State: uint32(s)})
}

// Reset requests a session reset on the device.
func (h *Host) Reset() *Future {
	return h.request(&Frame{Kind: KindReset})
}

// LineCodingOf extracts the coding from a GetLineCoding reply.
func LineCodingOf(f *Frame) (LineCoding, error) {
	c, ok := f.Coding.LineCoding()
	if !ok {
		return c, fmt.Errorf("reply carries no valid coding")
	}
	return c, nil
}

// AddToLoop implements LoopAdder.
func (h *Host) AddToLoop(l *fx.Loop) {
	l.AddRunnable(fx.NamedRun("acm-host", h))
	l.AddController(fx.PrLvIdle, fx.ControlFunc(h.purgeExpired))
}

// Run implements Runnable. It reads frames until the connection fails or
// ctx is done; outstanding requests then fail with ErrNotConnected.
func (h *Host) Run(ctx context.Context) error {
	defer h.shutdown()
	return fx.RunWithContextCloser(ctx, h.conn, func() error {
		for {
			pkt, err := h.conn.ReadPacket()
			if err != nil {
				return err
			}
			f, err := DecodeFrame(pkt)
			if err != nil {
				glog.Warningf("bad frame: %v", err)
				continue
			}
			glog.V(2).Infof("frame in: %s", f)
			switch f.Kind {
			case KindData:
				select {
				case h.dataCh <- f.Data:
				default:
					glog.Warningf("data channel full, %d bytes dropped", len(f.Data))
				}
			case KindReply:
				h.resolve(f)
			}
		}
	})
}

func (h *Host) send(f *Frame) error {
	pkt, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	h.sendLock.Lock()
	defer h.sendLock.Unlock()
	return h.conn.WritePacket(pkt)
}

func (h *Host) request(f *Frame) *Future {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.seq++
	if h.seq == 0 {
		h.seq++
	}
	fut := &Future{
		kind:     f.Kind,
		seq:      h.seq,
		expireAt: time.Now().Add(h.expiration()),
		result:   make(chan Result, 1),
	}
	if h.closed {
		fut.result <- Result{Err: ErrNotConnected}
		return fut
	}
	f.Seq = fut.seq
	if err := h.send(f); err != nil {
		fut.result <- Result{Err: err}
		return fut
	}
	fut.elem = h.requests.PushBack(fut)
	h.seqMap[fut.seq] = fut
	return fut
}

func (h *Host) resolve(f *Frame) {
	h.lock.Lock()
	defer h.lock.Unlock()
	fut := h.seqMap[f.Seq]
	if fut == nil {
		return
	}
	h.requests.Remove(fut.elem)
	delete(h.seqMap, f.Seq)
	res := Result{Frame: f}
	if !f.Ok {
		res.Err = &RequestError{Kind: fut.kind}
	}
	fut.result <- res
}

func (h *Host) purgeExpired(cc fx.ControlContext) error {
	now := cc.Time()
	h.lock.Lock()
	defer h.lock.Unlock()
	for h.requests.Len() > 0 {
		elem := h.requests.Front()
		fut := elem.Value.(*Future)
		if fut.expireAt.After(now) {
			break
		}
		h.requests.Remove(elem)
		delete(h.seqMap, fut.seq)
		fut.result <- Result{Err: context.DeadlineExceeded}
	}
	return nil
}

func (h *Host) shutdown() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	for elem := h.requests.Front(); elem != nil; elem = elem.Next() {
		fut := elem.Value.(*Future)
		delete(h.seqMap, fut.seq)
		fut.result <- Result{Err: ErrNotConnected}
	}
	h.requests.Init()
	close(h.dataCh)
}

func (h *Host) expiration() time.Duration {
	if h.Expiration > 0 {
		return h.Expiration
	}
	return DefaultExpiration
}
