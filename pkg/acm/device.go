package acm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	fx "github.com/robotalks/uartbridge/pkg/framework"
	"github.com/robotalks/uartbridge/pkg/transport"
)

// Defaults of Device.
const (
	DefaultMaxPacketSize = 64
	DefaultQueueSize     = 4096
)

// DeviceStats counts traffic of a Device.
type DeviceStats struct {
	PacketsIn  uint64
	PacketsOut uint64
	// Dropped is the number of host bytes discarded on a full queue.
	Dropped uint64
}

// Device implements Port on a transport.Listener, serving one host
// session at a time.
//
// Host data is queued up to QueueSize bytes and announced through
// Handler.DataReceived. Data offered by WriteData is sent in packets of at
// most MaxPacketSize bytes with a single packet in flight; while it is in
// flight WriteData accepts nothing. Requests from the host are served on the
// loop the Device is added to, or on the session goroutine otherwise.
type Device struct {
	Listener      transport.Listener
	Handler       Handler
	MaxPacketSize int
	QueueSize     int

	lock    sync.Mutex
	session *session
	queue   []byte

	inBusy     atomic.Bool
	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
	dropped    atomic.Uint64
}

type session struct {
	conn     transport.PacketConn
	sendLock sync.Mutex
	inCh     chan []byte
	done     chan struct{}
}

// Request is a host request posted to the loop.
type Request struct {
	Frame   *Frame
	session *session
}

// NewDevice creates a Device.
func NewDevice(l transport.Listener, h Handler) *Device {
	return &Device{
		Listener:      l,
		Handler:       h,
		MaxPacketSize: DefaultMaxPacketSize,
		QueueSize:     DefaultQueueSize,
	}
}

// Stats returns the traffic counters.
func (d *Device) Stats() DeviceStats {
	return DeviceStats{
		PacketsIn:  d.packetsIn.Load(),
		PacketsOut: d.packetsOut.Load(),
		Dropped:    d.dropped.Load(),
	}
}

// Connected reports whether a host session is active.
func (d *Device) Connected() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.session != nil
}

// Queued returns the number of host bytes waiting for ReadData.
func (d *Device) Queued() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.queue)
}

// ReadData implements Port.
func (d *Device) ReadData(buf []byte) int {
	d.lock.Lock()
	defer d.lock.Unlock()
	n := copy(buf, d.queue)
	d.queue = d.queue[:copy(d.queue, d.queue[n:])]
	return n
}

// WriteData implements Port.
func (d *Device) WriteData(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	d.lock.Lock()
	s := d.session
	d.lock.Unlock()
	if s == nil || !d.inBusy.CompareAndSwap(false, true) {
		return 0
	}
	n := len(data)
	if max := d.maxPacketSize(); n > max {
		n = max
	}
	pkt := append([]byte(nil), data[:n]...)
	select {
	case s.inCh <- pkt:
		return n
	default:
		d.inBusy.Store(false)
		return 0
	}
}

// AddToLoop implements LoopAdder.
func (d *Device) AddToLoop(l *fx.Loop) {
	l.AddRunnable(fx.NamedRun("acm-device", d))
	l.AddController(fx.PrLvRequest, fx.ControlFunc(d.serveRequests))
}

// Run implements Runnable. The handler is initialized for the lifetime of
// Run and reset after each host session.
func (d *Device) Run(ctx context.Context) error {
	d.Handler.Initialize()
	defer d.Handler.Uninitialize()
	defer d.Listener.Close()
	for {
		conn, err := d.Listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			glog.Warningf("accept error: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		glog.Info("host session started")
		err = fx.RunWithContextCloser(ctx, conn, func() error {
			return d.serve(ctx, conn)
		})
		glog.Infof("host session ended: %v", err)
		d.Handler.Reset()
	}
}

func (d *Device) serve(ctx context.Context, conn transport.PacketConn) error {
	s := &session{conn: conn, inCh: make(chan []byte, 1), done: make(chan struct{})}
	d.lock.Lock()
	d.session, d.queue = s, d.queue[:0]
	d.lock.Unlock()
	d.inBusy.Store(false)

	loopCtl := fx.LoopCtlFrom(ctx)
	go d.writeLoop(s, loopCtl)
	defer func() {
		d.lock.Lock()
		d.session, d.queue = nil, d.queue[:0]
		d.lock.Unlock()
		close(s.done)
		d.inBusy.Store(false)
	}()

	for {
		pkt, err := conn.ReadPacket()
		if err != nil {
			return err
		}
		d.packetsIn.Inc()
		f, err := DecodeFrame(pkt)
		if err != nil {
			glog.Warningf("bad frame: %v", err)
			continue
		}
		glog.V(2).Infof("frame in: %s", f)
		switch {
		case f.Kind == KindData:
			d.enqueue(f.Data)
		case f.Kind.IsRequest() && loopCtl != nil:
			loopCtl.PostMessage(&Request{Frame: f, session: s})
			loopCtl.TriggerNext()
		case f.Kind.IsRequest():
			d.serveRequest(&Request{Frame: f, session: s})
		default:
			glog.V(2).Infof("unexpected frame %s", f.Kind)
		}
	}
}

// enqueue queues host bytes and signals the handler until it stops
// consuming or the queue is empty.
func (d *Device) enqueue(data []byte) {
	d.lock.Lock()
	room := d.queueSize() - len(d.queue)
	if room < 0 {
		room = 0
	}
	if len(data) > room {
		d.dropped.Add(uint64(len(data) - room))
		glog.Warningf("host queue full, %d bytes dropped", len(data)-room)
		data = data[:room]
	}
	d.queue = append(d.queue, data...)
	d.lock.Unlock()

	for {
		n := d.Queued()
		if n == 0 {
			return
		}
		d.Handler.DataReceived(n)
		if d.Queued() >= n {
			return
		}
	}
}

// writeLoop sends the packet in flight. Completion wakes the loop so the
// next WriteData does not wait for the pump interval.
func (d *Device) writeLoop(s *session, loopCtl fx.LoopControl) {
	for {
		select {
		case <-s.done:
			return
		case pkt := <-s.inCh:
			err := d.send(s, &Frame{Kind: KindData, Data: pkt})
			d.inBusy.Store(false)
			if err != nil {
				glog.V(3).Infof("send data error: %v", err)
			} else if loopCtl != nil {
				loopCtl.TriggerNext()
			}
		}
	}
}

func (d *Device) send(s *session, f *Frame) error {
	pkt, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	s.sendLock.Lock()
	defer s.sendLock.Unlock()
	if err = s.conn.WritePacket(pkt); err == nil {
		d.packetsOut.Inc()
	}
	return err
}

func (d *Device) serveRequests(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		if req, ok := mc.CurrentMessage().(*Request); ok {
			mc.MessageTaken()
			d.serveRequest(req)
		}
	}))
	return nil
}

func (d *Device) serveRequest(req *Request) {
	f := req.Frame
	reply := &Frame{Kind: KindReply, Seq: f.Seq}
	switch f.Kind {
	case KindSetLineCoding:
		if c, ok := f.Coding.LineCoding(); ok {
			reply.Ok = d.Handler.SetLineCoding(c)
		}
	case KindGetLineCoding:
		reply.Coding, reply.Ok = CodingFrom(d.Handler.GetLineCoding()), true
	case KindSetControlLineState:
		if f.State <= 0xffff {
			reply.Ok = d.Handler.SetControlLineState(ControlLineState(f.State))
		}
	case KindReset:
		d.Handler.Reset()
		reply.Ok = true
	}
	glog.V(2).Infof("%s: ok=%v", f.Kind, reply.Ok)
	select {
	case <-req.session.done:
		return
	default:
	}
	if err := d.send(req.session, reply); err != nil {
		glog.V(3).Infof("send reply error: %v", err)
	}
}

func (d *Device) maxPacketSize() int {
	if d.MaxPacketSize > 0 {
		return d.MaxPacketSize
	}
	return DefaultMaxPacketSize
}

func (d *Device) queueSize() int {
	if d.QueueSize > 0 {
		return d.QueueSize
	}
	return DefaultQueueSize
}
