package joystick

import (
	"context"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/uartbridge/pkg/framework"
)

// Inputs receives the board input changes.
type Inputs interface {
	Press(button int)
	Release(button int)
	SetPot(val int32)
}

// PotMax is the potentiometer reading at the positive axis end. The
// negative end reads 0.
const PotMax = 4095

// RetryInterval is the wait before opening the device again.
const RetryInterval = time.Second

// Input polls a joystick and applies its events to Inputs on the loop.
// Joystick button n drives board button n+1; axis PotAxis drives the
// potentiometer.
type Input struct {
	Inputs      Inputs
	Open        Opener
	DeviceIndex int
	PotAxis     int
	Buttons     int

	retry time.Duration
}

type eventMsg struct {
	event Event
}

// NewInput creates an Input.
func NewInput(inputs Inputs) *Input {
	return &Input{
		Inputs:      inputs,
		Open:        Open,
		DeviceIndex: -1,
		Buttons:     4,
		retry:       RetryInterval,
	}
}

// AddToLoop implements LoopAdder.
func (in *Input) AddToLoop(l *fx.Loop) {
	l.AddRunnable(in)
	l.AddController(fx.PrLvLow, in)
}

// Run implements Runnable.
func (in *Input) Run(ctx context.Context) error {
	loopCtl := fx.LoopCtlFrom(ctx)
	var dev Device
	var eventCh chan Event
	defer func() {
		if dev != nil {
			dev.Close()
		}
	}()
	timer := time.After(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer:
			timer = nil
			var err error
			if dev, err = in.Open(in.DeviceIndex); err != nil {
				if err == ErrUnsupported {
					glog.Warningf("joystick input disabled: %v", err)
					return nil
				}
				glog.V(1).Infof("open joystick %d error: %v", in.DeviceIndex, err)
				dev, timer = nil, time.After(in.retry)
				continue
			}
			glog.Infof("joystick %d %q opened", dev.Index(), dev.Name())
			eventCh = make(chan Event, 1)
			go poll(ctx, dev, eventCh)
		case ev, ok := <-eventCh:
			if !ok {
				dev.Close()
				dev, eventCh = nil, nil
				timer = time.After(in.retry)
				continue
			}
			if loopCtl != nil {
				loopCtl.PostMessage(&eventMsg{event: ev})
				loopCtl.TriggerNext()
			} else {
				in.apply(ev)
			}
		}
	}
}

// Control implements Controller.
func (in *Input) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
		if msg, ok := mctx.CurrentMessage().(*eventMsg); ok {
			mctx.MessageTaken()
			in.apply(msg.event)
		}
	}))
	return nil
}

func (in *Input) apply(ev Event) {
	switch {
	case ev.Button && ev.Index < in.Buttons:
		if ev.Pressed() {
			in.Inputs.Press(ev.Index + 1)
		} else {
			in.Inputs.Release(ev.Index + 1)
		}
	case !ev.Button && ev.Index == in.PotAxis:
		in.Inputs.SetPot(PotValue(ev.Value))
	}
}

// PotValue scales an axis value in [-32767, 32767] to [0, PotMax].
func PotValue(axis int) int32 {
	if axis < -32767 {
		axis = -32767
	}
	return int32((axis + 32767) * PotMax / 65534)
}

func poll(ctx context.Context, dev Device, ch chan<- Event) {
	defer close(ch)
	for {
		ev, err := dev.ReadEvent()
		if err != nil {
			glog.Warningf("joystick read error: %v", err)
			return
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}
