//go:build linux
// +build linux

package joystick

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

const (
	jsIOCGNAME uintptr = 0x80ff6a13

	jsEventButton uint8 = 0x01
	jsEventAxis   uint8 = 0x02
	jsEventInit   uint8 = 0x80

	maxDevices = 32
)

type linuxDevice struct {
	file  *os.File
	index int
	name  string
}

// jsEvent is struct js_event from linux/joystick.h.
type jsEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

// Open implements Opener on /dev/input/jsN.
func Open(index int) (Device, error) {
	if index >= 0 {
		return openIndex(index)
	}
	for n := 0; n < maxDevices; n++ {
		dev, err := openIndex(n)
		if os.IsNotExist(err) {
			continue
		}
		return dev, err
	}
	return nil, os.ErrNotExist
}

func openIndex(index int) (Device, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/input/js%d", index), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	var name [256]byte
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), jsIOCGNAME, uintptr(unsafe.Pointer(&name)))
	if errno != 0 {
		f.Close()
		return nil, errno
	}
	if pos := bytes.IndexByte(name[:], 0); pos >= 0 {
		return &linuxDevice{file: f, index: index, name: string(name[:pos])}, nil
	}
	return &linuxDevice{file: f, index: index, name: string(name[:])}, nil
}

func (d *linuxDevice) Close() error {
	return d.file.Close()
}

func (d *linuxDevice) Index() int {
	return d.index
}

func (d *linuxDevice) Name() string {
	return d.name
}

// ReadEvent blocks for the next button or axis event.
func (d *linuxDevice) ReadEvent() (Event, error) {
	for {
		var ev jsEvent
		if err := binary.Read(d.file, binary.LittleEndian, &ev); err != nil {
			return Event{}, err
		}
		kind := ev.Type &^ jsEventInit
		if kind != jsEventButton && kind != jsEventAxis {
			continue
		}
		return Event{
			Init:   ev.Type&jsEventInit != 0,
			Button: kind == jsEventButton,
			Index:  int(ev.Number),
			Value:  int(ev.Value),
		}, nil
	}
}
