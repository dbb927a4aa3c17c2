// Package transport carries bridge packets between the device and the host.
package transport

import (
	"context"
	"errors"
	"io"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// PacketConn is a PacketReadWriter which can be closed.
type PacketConn interface {
	PacketReadWriter
	io.Closer
}

// Listener accepts host sessions on the device side.
type Listener interface {
	// Accept blocks until a host connects or ctx is done.
	Accept(ctx context.Context) (PacketConn, error)
	io.Closer
}

// ErrClosed is returned by Accept after the Listener is closed.
var ErrClosed = errors.New("listener closed")
