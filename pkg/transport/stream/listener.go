package stream

import (
	"context"
	"net"

	"github.com/robotalks/uartbridge/pkg/transport"
)

// Listener accepts length-prefixed packet sessions over TCP.
type Listener struct {
	net.Listener
}

// Listen listens on a TCP address.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: ln}, nil
}

// Accept implements transport.Listener.
func (l *Listener) Accept(ctx context.Context) (transport.PacketConn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		conn, err := l.Listener.Accept()
		resCh <- result{conn, err}
	}()
	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, res.err
		}
		return New(res.conn), nil
	case <-ctx.Done():
		l.Listener.Close()
		if res := <-resCh; res.conn != nil {
			res.conn.Close()
		}
		return nil, ctx.Err()
	}
}

// Dial connects to a TCP address.
func Dial(addr string) (*ReadWriter, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}
