package bridge

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/uartbridge/pkg/acm"
	fx "github.com/robotalks/uartbridge/pkg/framework"
	"github.com/robotalks/uartbridge/pkg/uart"
)

var coding8N1 = acm.LineCoding{DTERate: 115200, DataBits: 8}

type bridgeTestEnv struct {
	t      *testing.T
	drv    *fakeDriver
	port   *fakePort
	bridge *Bridge
	lines  []string
}

func newBridgeTestEnv(t *testing.T, conf *Config) *bridgeTestEnv {
	env := &bridgeTestEnv{t: t, drv: &fakeDriver{}, port: newFakePort()}
	if conf == nil {
		conf = NewConfig()
	}
	b, err := conf.NewBridge(env.drv, env.port)
	require.NoError(t, err)
	b.Lines = LineHandlerFunc(func(line []byte) {
		env.lines = append(env.lines, string(line))
	})
	env.bridge = b
	b.Initialize()
	return env
}

// open applies 8N1 which arms reception.
func (e *bridgeTestEnv) open() *bridgeTestEnv {
	require.True(e.t, e.bridge.SetLineCoding(coding8N1))
	return e
}

func seq(start, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((start + i) % 251)
	}
	return data
}

func TestModeWord(t *testing.T) {
	testCases := []struct {
		coding acm.LineCoding
		expect uart.Control
		ok     bool
	}{
		{coding8N1, uart.ModeAsynchronous | uart.DataBits8 | uart.ParityNone | uart.StopBits1, true},
		{acm.LineCoding{DataBits: 7, ParityType: acm.ParityEven, CharFormat: acm.StopBits2},
			uart.ModeAsynchronous | uart.DataBits7 | uart.ParityEven | uart.StopBits2, true},
		{acm.LineCoding{DataBits: 5, ParityType: acm.ParityOdd, CharFormat: acm.StopBits1_5},
			uart.ModeAsynchronous | uart.DataBits5 | uart.ParityOdd | uart.StopBits1_5, true},
		{acm.LineCoding{DataBits: 6}, uart.ModeAsynchronous | uart.DataBits6, true},
		{acm.LineCoding{DataBits: 8, CharFormat: 3}, 0, false},
		{acm.LineCoding{DataBits: 8, ParityType: acm.ParityMark}, 0, false},
		{acm.LineCoding{DataBits: 8, ParityType: acm.ParitySpace}, 0, false},
		{acm.LineCoding{DataBits: 4}, 0, false},
		{acm.LineCoding{DataBits: 16}, 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.coding.String(), func(t *testing.T) {
			ctl, ok := ModeWord(tc.coding)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.expect, ctl)
		})
	}
}

func TestNewInvalidCapacity(t *testing.T) {
	conf := NewConfig()
	conf.Capacity = 500
	_, err := New(conf, &fakeDriver{}, newFakePort())
	require.Error(t, err)
}

func TestSetLineCoding(t *testing.T) {
	env := newBridgeTestEnv(t, nil)
	require.Equal(t, acm.LineCoding{}, env.bridge.GetLineCoding())
	env.drv.clearControls()

	c := acm.LineCoding{DTERate: 9600, DataBits: 7, ParityType: acm.ParityOdd, CharFormat: acm.StopBits2}
	require.True(t, env.bridge.SetLineCoding(c))
	require.Equal(t, c, env.bridge.GetLineCoding())
	require.Equal(t, []ctlCall{
		{uart.AbortSend, 0},
		{uart.AbortReceive, 0},
		{uart.ControlTx, 0},
		{uart.ControlRx, 0},
		{uart.ModeAsynchronous | uart.DataBits7 | uart.ParityOdd | uart.StopBits2, 9600},
		{uart.ControlTx, 1},
		{uart.ControlRx, 1},
	}, env.drv.Controls())
	require.True(t, env.drv.Status().RxBusy)
}

func TestSetLineCodingResetsCounters(t *testing.T) {
	env := newBridgeTestEnv(t, nil).open()
	env.drv.feed(seq(0, 512))
	require.Equal(t, 512, env.bridge.Step())
	env.drv.feed(seq(512, 10))
	require.Equal(t, 10, env.bridge.Step())
	require.Equal(t, uint32(512), env.bridge.Ring().Received())

	require.True(t, env.bridge.SetLineCoding(acm.LineCoding{DTERate: 57600, DataBits: 8}))
	require.Zero(t, env.bridge.Ring().Received())
	require.Zero(t, env.bridge.Ring().Forwarded())
	require.Zero(t, env.drv.RxCount())
}

func TestSetLineCodingRejected(t *testing.T) {
	env := newBridgeTestEnv(t, nil).open()
	env.drv.feed(seq(0, 512))
	require.Equal(t, uint32(512), env.bridge.Ring().Received())
	env.drv.clearControls()

	testCases := []acm.LineCoding{
		{DTERate: 9600, DataBits: 8, CharFormat: 3},
		{DTERate: 9600, DataBits: 8, ParityType: 5},
		{DTERate: 9600, DataBits: 9},
	}
	for _, c := range testCases {
		require.False(t, env.bridge.SetLineCoding(c))
		require.Equal(t, coding8N1, env.bridge.GetLineCoding())
		require.Equal(t, uint32(512), env.bridge.Ring().Received())
		require.Zero(t, env.bridge.Ring().Forwarded())
		require.Empty(t, env.drv.Controls(), "rejected coding must not touch the driver")
		require.True(t, env.drv.Status().RxBusy)
	}
}

func TestSetLineCodingDriverFailure(t *testing.T) {
	env := newBridgeTestEnv(t, nil).open()
	env.drv.feed(seq(0, 512))
	env.drv.modeErr = uart.ErrParameter

	require.False(t, env.bridge.SetLineCoding(acm.LineCoding{DTERate: 0, DataBits: 8}))
	require.Equal(t, coding8N1, env.bridge.GetLineCoding())
	require.Equal(t, uint32(512), env.bridge.Ring().Received())
	// left aborted and disabled
	require.False(t, env.drv.Status().RxBusy)
	controls := env.drv.Controls()
	require.Equal(t, ctlCall{uart.ControlRx, 0}, controls[len(controls)-2])
}

func TestStepIdle(t *testing.T) {
	env := newBridgeTestEnv(t, nil)
	require.Zero(t, env.bridge.Step())
	require.Empty(t, env.port.offered)
}

func TestStepOverflowScenario(t *testing.T) {
	env := newBridgeTestEnv(t, nil).open()
	require.Equal(t, uint32(512), env.bridge.Ring().Cap())

	env.drv.feed(seq(0, 1024))
	require.Equal(t, uint32(1024), env.bridge.Ring().Received())

	require.Zero(t, env.bridge.Step())
	require.Equal(t, uint32(1024), env.bridge.Ring().Forwarded())
	require.Empty(t, env.port.offered)
	require.Equal(t, uint64(1), env.bridge.Stats().Overflows)
	require.Equal(t, uint64(1024), env.bridge.Stats().Discarded)

	env.drv.feed(seq(1024, 512))
	require.Equal(t, uint32(1536), env.bridge.Ring().Received())
	require.Equal(t, 512, env.bridge.Step())
	require.Equal(t, seq(1024, 512), env.port.Written())
	require.Equal(t, uint32(1536), env.bridge.Ring().Forwarded())
}

func TestStepPartialAccept(t *testing.T) {
	env := newBridgeTestEnv(t, nil).open()
	env.port.accept = 100
	env.drv.feed(seq(0, 300))

	require.Equal(t, 100, env.bridge.Step())
	require.Equal(t, uint32(100), env.bridge.Ring().Forwarded())
	require.Equal(t, 100, env.bridge.Step())
	require.Equal(t, []int{300, 200}, env.port.offered)
	require.Equal(t, seq(0, 200), env.port.Written())

	env.port.accept = 0
	require.Zero(t, env.bridge.Step())
	require.Equal(t, uint32(200), env.bridge.Ring().Forwarded())
	env.port.accept = -1
	require.Equal(t, 100, env.bridge.Step())
	require.Equal(t, seq(0, 300), env.port.Written())
}

func TestStepSpanStopsAtWrap(t *testing.T) {
	conf := NewConfig()
	conf.Capacity = 16
	env := newBridgeTestEnv(t, conf).open()

	env.drv.feed(seq(0, 10))
	require.Equal(t, 10, env.bridge.Step())
	env.drv.feed(seq(10, 10))
	require.Equal(t, uint32(16), env.bridge.Ring().Received())
	require.Equal(t, 4, env.drv.RxCount())

	require.Equal(t, 6, env.bridge.Step())
	require.Equal(t, 4, env.bridge.Step())
	require.Equal(t, []int{10, 6, 4}, env.port.offered)
	require.Equal(t, seq(0, 20), env.port.Written())
}

// TestStepInterleaved drives random receive/step interleavings and checks
// every forwarded byte is the right one, exactly once.
func TestStepInterleaved(t *testing.T) {
	conf := NewConfig()
	conf.Capacity = 64
	env := newBridgeTestEnv(t, conf).open()
	rnd := rand.New(rand.NewSource(1))

	var fed int
	next := 0
	checkWritten := 0
	for i := 0; i < 2000; i++ {
		if n := rnd.Intn(48); n > 0 {
			env.drv.feed(seq(fed, n))
			fed += n
		}
		env.port.accept = rnd.Intn(40) - 1
		before := env.bridge.Ring().Forwarded()
		overflows := env.bridge.Stats().Overflows
		n := env.bridge.Step()
		after := env.bridge.Ring().Forwarded()
		if env.bridge.Stats().Overflows > overflows {
			require.Zero(t, n)
			next = int(after)
			continue
		}
		require.Equal(t, uint32(n), after-before)
		written := env.port.written
		for ; checkWritten < len(written); checkWritten++ {
			require.Equal(t, seq(next, len(written[checkWritten])), written[checkWritten])
			next += len(written[checkWritten])
		}
		require.Equal(t, int(after), next)
		// bytes of the reception in flight are forwarded before it
		// completes, so forwarded is bounded by what has arrived.
		arrived := int(env.bridge.Ring().Received()) + env.drv.RxCount()
		require.LessOrEqual(t, int(after), arrived, "forwarded passed arrived bytes")
	}
	require.NotZero(t, env.bridge.Stats().Forwarded)
}

func TestStepForwardsInFlight(t *testing.T) {
	env := newBridgeTestEnv(t, nil).open()
	env.drv.feed(seq(0, 300))
	require.Zero(t, env.bridge.Ring().Received())
	require.Equal(t, 300, env.bridge.Step())
	require.Equal(t, uint32(300), env.bridge.Ring().Forwarded())
	require.LessOrEqual(t, env.bridge.Ring().Forwarded(), env.bridge.Ring().Received()+uint32(env.drv.RxCount()))

	env.drv.feed(seq(300, 212))
	require.Equal(t, uint32(512), env.bridge.Ring().Received())
	require.Equal(t, 212, env.bridge.Step())
	require.Equal(t, seq(0, 512), env.port.Written())
	require.Equal(t, env.bridge.Ring().Received(), env.bridge.Ring().Forwarded())
}

func TestLateCompletionAfterLineCoding(t *testing.T) {
	env := newBridgeTestEnv(t, nil).open()
	env.drv.feed(seq(0, 511))
	require.True(t, env.bridge.SetLineCoding(coding8N1))

	// the completion of the aborted reception arrives after the re-arm
	env.bridge.HandleEvent(uart.EventReceiveComplete)
	require.Zero(t, env.bridge.Ring().Received())
	require.True(t, env.drv.Status().RxBusy)
	require.Zero(t, env.bridge.Step())
	require.Empty(t, env.port.Written())
	require.Equal(t, uint64(1), env.bridge.Stats().StaleCompletions)

	env.drv.feed(seq(600, 512))
	require.Equal(t, uint32(512), env.bridge.Ring().Received())
	require.Equal(t, 512, env.bridge.Step())
	require.Equal(t, seq(600, 512), env.port.Written())
}

func TestLateCompletionAfterReset(t *testing.T) {
	env := newBridgeTestEnv(t, nil).open()
	env.drv.feed(seq(0, 100))
	env.bridge.Reset()

	env.bridge.HandleEvent(uart.EventReceiveComplete)
	require.Zero(t, env.bridge.Ring().Received())
	require.False(t, env.drv.Status().RxBusy, "reset must not be re-armed by a late completion")
	require.Equal(t, uint64(1), env.bridge.Stats().StaleCompletions)
}

func TestReset(t *testing.T) {
	env := newBridgeTestEnv(t, nil).open()
	env.drv.feed(seq(0, 600))
	env.port.push("AT")
	env.bridge.DataReceived(2)
	env.bridge.Reset()

	require.False(t, env.drv.Status().RxBusy)
	require.Zero(t, env.bridge.Ring().Received())
	require.Zero(t, env.bridge.Step())

	// the partial line is gone
	env.port.push("+POT\r")
	env.bridge.DataReceived(5)
	require.Equal(t, []string{"+POT"}, env.lines)
}

func TestSetControlLineState(t *testing.T) {
	env := newBridgeTestEnv(t, nil)
	env.drv.clearControls()
	require.True(t, env.bridge.SetControlLineState(acm.LineStateDTR|acm.LineStateRTS))
	require.Equal(t, []ctlCall{{uart.ControlModemLines, uart.LineDTR | uart.LineRTS}}, env.drv.Controls())
	require.Equal(t, acm.LineStateDTR|acm.LineStateRTS, env.bridge.ControlLineState())

	env.drv.linesErr = uart.ErrUnsupported
	require.True(t, env.bridge.SetControlLineState(acm.LineStateRTS))
	env.drv.linesErr = errLinesFailed
	require.False(t, env.bridge.SetControlLineState(0))
}

func TestLifecycle(t *testing.T) {
	drv, port := &fakeDriver{}, newFakePort()
	b, err := New(NewConfig(), drv, port)
	require.NoError(t, err)
	loop := fx.NewLoop().Add(b)

	b.Uninitialize()
	require.False(t, b.Running())

	b.Initialize()
	require.True(t, b.Running())
	require.Equal(t, uart.PowerFull, drv.power)
	require.NotNil(t, drv.handler)
	require.True(t, b.SetLineCoding(coding8N1))
	drv.feed(seq(0, 5))
	loop.RunOnce(context.Background())
	require.Equal(t, seq(0, 5), port.Written())

	b.Uninitialize()
	require.False(t, b.Running())
	require.Equal(t, uart.PowerOff, drv.power)
	require.False(t, drv.Status().RxBusy)
	b.Uninitialize()
	require.Equal(t, 3, drv.uninitCount)

	drv.feed(seq(5, 5))
	loop.RunOnce(context.Background())
	require.Equal(t, seq(0, 5), port.Written())
}
