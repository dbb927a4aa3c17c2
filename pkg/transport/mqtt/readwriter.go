package mqtt

import (
	"io"
	"sync"
)

// Topic suffixes relative to the device ID.
const (
	// TopicIn carries packets from the host to the device.
	TopicIn = "in"
	// TopicOut carries packets from the device to the host.
	TopicOut = "out"
	// TopicMeta holds the retained presence record of the device.
	TopicMeta = "meta"
)

// DeviceTopic builds the topic for a device.
func DeviceTopic(id, suffix string) string {
	return id + "/" + suffix
}

// ReadWriter implements PacketReadWriter on a pair of topics.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh  chan []byte
	closeOnce sync.Once
	done      chan struct{}
	sub       *Subscription
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForDevice subscribes <id>/in and publishes <id>/out.
func (p *ReadWriter) ForDevice(id string) *ReadWriter {
	return p.WithTopics(DeviceTopic(id, TopicIn), DeviceTopic(id, TopicOut))
}

// ForHost subscribes <id>/out and publishes <id>/in.
func (p *ReadWriter) ForHost(id string) *ReadWriter {
	return p.WithTopics(DeviceTopic(id, TopicOut), DeviceTopic(id, TopicIn))
}

// Open subscribes SubTopic. Packets published before Open are not seen.
func (p *ReadWriter) Open() error {
	p.sub = p.Queue.Sub(p.SubTopic, p.handleMsg)
	p.sub.Token.Wait()
	return p.sub.Token.Error()
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.done:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Close implements io.Closer. Pending ReadPacket calls return io.EOF.
// The Queue itself is left connected.
func (p *ReadWriter) Close() (err error) {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.sub != nil {
			err = p.sub.Close()
		}
	})
	return
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	select {
	case p.packetCh <- payload:
	case <-p.done:
	}
}
