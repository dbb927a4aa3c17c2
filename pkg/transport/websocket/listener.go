package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/robotalks/uartbridge/pkg/transport"
)

// Listener accepts packet sessions as websocket connections on Path.
type Listener struct {
	Path string

	ln      net.Listener
	server  *http.Server
	connCh  chan *session
	closeMu sync.Once
	closed  chan struct{}
}

type session struct {
	*ReadWriter
	done chan struct{}
	once sync.Once
}

// Close releases the handler goroutine holding the connection.
func (s *session) Close() error {
	err := s.ReadWriter.Close()
	s.once.Do(func() { close(s.done) })
	return err
}

// Listen serves websocket sessions on addr at path.
func Listen(addr, path string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = "/"
	}
	l := &Listener{
		Path:   path,
		ln:     ln,
		connCh: make(chan *session),
		closed: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(path, websocket.Handler(l.serve))
	l.server = &http.Server{Handler: mux}
	go l.server.Serve(ln)
	return l, nil
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) serve(conn *websocket.Conn) {
	s := &session{ReadWriter: New(conn), done: make(chan struct{})}
	select {
	case l.connCh <- s:
	case <-l.closed:
		return
	}
	// the connection is closed when the handler returns.
	select {
	case <-s.done:
	case <-l.closed:
	}
}

// Accept implements transport.Listener.
func (l *Listener) Accept(ctx context.Context) (transport.PacketConn, error) {
	select {
	case s := <-l.connCh:
		return s, nil
	case <-l.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements io.Closer.
func (l *Listener) Close() error {
	var err error
	l.closeMu.Do(func() {
		close(l.closed)
		err = l.server.Close()
	})
	return err
}
