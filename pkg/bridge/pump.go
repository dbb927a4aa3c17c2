package bridge

import "github.com/golang/glog"

// Step forwards pending serial bytes to the host port once and returns the
// number of bytes accepted.
//
// The committed count is sampled before the in-flight count of the current
// reception. The receive callback may commit in between, which only makes
// the backlog look smaller. A backlog larger than the ring means bytes were
// overwritten: all of it is discarded and forwarding resumes with fresh
// data. A span never crosses the end of the storage, and forwarded only
// advances by what the port accepted.
func (b *Bridge) Step() int {
	b.ctlLock.Lock()
	defer b.ctlLock.Unlock()
	if !b.drv.Status().RxBusy {
		return 0
	}
	received := b.ring.Received()
	pending := b.ring.Pending(received, uint32(b.drv.RxCount()))
	if b.ring.Overflowed(pending) {
		b.ring.Consume(pending)
		b.overflows.Inc()
		b.discarded.Add(uint64(pending))
		glog.V(1).Infof("overflow: %d bytes discarded", pending)
		return 0
	}
	if pending == 0 {
		return 0
	}
	span := b.ring.Span(pending)
	n := b.port.WriteData(span)
	if n > len(span) {
		n = len(span)
	}
	if n <= 0 {
		glog.V(3).Infof("port accepted 0 of %d bytes", len(span))
		return 0
	}
	b.ring.Consume(uint32(n))
	b.forwarded.Add(uint64(n))
	return n
}
