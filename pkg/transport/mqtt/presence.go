package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/uartbridge/pkg/transport"
)

// Meta is the retained presence record of a device.
type Meta struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Serial      string `json:"serial,omitempty"`
}

// Listener implements transport.Listener for a device.
//
// The presence record is published retained on every connect and cleared
// by the will message when the device vanishes. MQTT has no sessions of
// its own: Accept hands out a single ReadWriter and blocks afterwards until
// that ReadWriter is closed.
type Listener struct {
	Queue *Queue
	Meta  Meta

	lock    sync.Mutex
	current *ReadWriter
	closed  chan struct{}
}

// NewListener connects to the broker as the device.
func NewListener(brokerURL string, meta Meta) (*Listener, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	metaTopic := topicPrefix + DeviceTopic(meta.ID, TopicMeta)
	opts.SetBinaryWill(metaTopic, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("uartbridge:" + meta.ID)
	}
	l := &Listener{Meta: meta, closed: make(chan struct{})}
	l.Queue = NewQueue(opts, topicPrefix)
	l.Queue.OnConnect = func(*Queue) { l.publishMeta() }
	if err := l.Queue.Connect(); err != nil {
		return nil, err
	}
	return l, nil
}

// Accept implements transport.Listener.
func (l *Listener) Accept(ctx context.Context) (transport.PacketConn, error) {
	for {
		l.lock.Lock()
		current := l.current
		if current == nil {
			rw := NewPacketReadWriter(l.Queue).ForDevice(l.Meta.ID)
			if err := rw.Open(); err != nil {
				l.lock.Unlock()
				return nil, err
			}
			l.current = rw
			l.lock.Unlock()
			return rw, nil
		}
		l.lock.Unlock()
		select {
		case <-current.done:
			l.lock.Lock()
			if l.current == current {
				l.current = nil
			}
			l.lock.Unlock()
		case <-l.closed:
			return nil, transport.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close clears the presence record and disconnects.
func (l *Listener) Close() error {
	select {
	case <-l.closed:
		return nil
	default:
		close(l.closed)
	}
	l.lock.Lock()
	if l.current != nil {
		l.current.Close()
	}
	l.lock.Unlock()
	token := l.Queue.PubWith(DeviceTopic(l.Meta.ID, TopicMeta), nil, 1, true)
	token.WaitTimeout(time.Second)
	return l.Queue.Close()
}

func (l *Listener) publishMeta() {
	payload, err := json.Marshal(&l.Meta)
	if err != nil {
		glog.Errorf("encode meta error: %v", err)
		return
	}
	l.Queue.PubWith(DeviceTopic(l.Meta.ID, TopicMeta), payload, 1, true)
}

// Dial connects to the device with id as a host.
func Dial(brokerURL, id string) (transport.PacketConn, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if err := q.Connect(); err != nil {
		return nil, err
	}
	rw := NewPacketReadWriter(q).ForHost(id)
	if err := rw.Open(); err != nil {
		q.Close()
		return nil, err
	}
	return &hostConn{ReadWriter: rw}, nil
}

type hostConn struct {
	*ReadWriter
}

func (c *hostConn) Close() error {
	err := c.ReadWriter.Close()
	c.Queue.Close()
	return err
}

// DefaultDiscoverTimeout is how long Discover collects presence records.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Discover collects the presence records of all devices on the broker.
func Discover(ctx context.Context, brokerURL string, timeout time.Duration) ([]Meta, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if err := q.Connect(); err != nil {
		return nil, err
	}
	defer q.Close()

	metaCh := make(chan Meta, 4)
	sub := q.Sub("+/"+TopicMeta, func(topic string, payload []byte) {
		meta, ok := ParseMeta(topic, payload)
		if !ok {
			return
		}
		select {
		case metaCh <- meta:
		case <-time.After(time.Second):
		}
	})
	defer sub.Close()

	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	expire := time.After(timeout)
	var res []Meta
	for {
		select {
		case meta := <-metaCh:
			res = append(res, meta)
		case <-expire:
			return res, nil
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// ParseMeta decodes a presence record. A cleared record is reported as
// not ok.
func ParseMeta(topic string, payload []byte) (meta Meta, ok bool) {
	items := strings.Split(topic, "/")
	if len(items) != 2 || items[1] != TopicMeta || len(payload) == 0 {
		return
	}
	if err := json.Unmarshal(payload, &meta); err != nil {
		glog.V(2).Infof("bad meta on %q: %v", topic, err)
		return
	}
	if meta.ID == "" {
		meta.ID = items[0]
	}
	return meta, true
}
