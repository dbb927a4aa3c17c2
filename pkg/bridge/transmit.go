package bridge

import (
	"github.com/golang/glog"
)

// DataReceived implements acm.Handler.
func (b *Bridge) DataReceived(n int) {
	switch b.mode {
	case ModeTransparent:
		b.txLock.Lock()
		b.sendNextLocked()
		b.txLock.Unlock()
	case ModeCommand:
		b.frame(false)
	case ModeMonitor:
		b.frame(true)
	}
}

// frame reads at most one intake of host bytes and dispatches complete
// lines. With echo the same bytes are transmitted if the transmitter is
// idle.
func (b *Bridge) frame(echo bool) {
	b.lineLock.Lock()
	defer b.lineLock.Unlock()
	cnt := b.port.ReadData(b.intake)
	if cnt <= 0 {
		return
	}
	data := b.intake[:cnt]
	if echo {
		b.Transmit(data)
	}
	rejected := b.lines.feed(data, b.dispatch)
	if rejected > 0 {
		b.linesRejected.Add(uint64(rejected))
		glog.V(2).Infof("%d overlong lines rejected", rejected)
	}
}

func (b *Bridge) dispatch(line []byte) {
	b.linesDispatched.Inc()
	glog.V(2).Infof("line: %q", line)
	if h := b.Lines; h != nil {
		h.HandleLine(line)
	}
}

// Transmit sends data on the serial line if the transmitter is idle,
// truncated to the transmit buffer. It returns false if data is dropped.
func (b *Bridge) Transmit(data []byte) bool {
	b.txLock.Lock()
	defer b.txLock.Unlock()
	if b.txHeld > 0 || b.drv.Status().TxBusy {
		b.txDropped.Inc()
		glog.V(2).Infof("transmitter busy, %d bytes dropped", len(data))
		return false
	}
	n := copy(b.txBuf, data)
	if n == 0 {
		return true
	}
	return b.sendLocked(n) == nil
}

// sendNextLocked pulls the next chunk from the host port when the
// transmitter is idle. A chunk the driver refuses is kept and retried
// first on the next call.
func (b *Bridge) sendNextLocked() {
	if b.drv.Status().TxBusy {
		return
	}
	n := b.txHeld
	if n == 0 {
		n = b.port.ReadData(b.txBuf)
	}
	if n <= 0 {
		return
	}
	if err := b.sendLocked(n); err != nil {
		b.txHeld = n
		return
	}
	b.txHeld = 0
}

func (b *Bridge) sendLocked(n int) error {
	if err := b.drv.Send(b.txBuf[:n]); err != nil {
		glog.V(3).Infof("send %d bytes error: %v", n, err)
		return err
	}
	b.transmitted.Add(uint64(n))
	return nil
}
