package acm

import (
	"fmt"

	"github.com/golang/protobuf/proto"
)

// FrameKind identifies a Frame.
type FrameKind int32

// Frame kinds. KindData carries bytes in either direction, KindReply
// answers the request with the same Seq.
const (
	KindData                FrameKind = 0
	KindSetLineCoding       FrameKind = 1
	KindGetLineCoding       FrameKind = 2
	KindSetControlLineState FrameKind = 3
	KindReset               FrameKind = 4
	KindReply               FrameKind = 5
)

var frameKindNames = map[FrameKind]string{
	KindData:                "data",
	KindSetLineCoding:       "set-line-coding",
	KindGetLineCoding:       "get-line-coding",
	KindSetControlLineState: "set-control-line-state",
	KindReset:               "reset",
	KindReply:               "reply",
}

// String implements fmt.Stringer.
func (k FrameKind) String() string {
	if name, ok := frameKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

// IsRequest reports whether the kind expects a reply.
func (k FrameKind) IsRequest() bool {
	return k >= KindSetLineCoding && k <= KindReset
}

// Frame is the unit exchanged on the packet transport.
type Frame struct {
	Kind   FrameKind `protobuf:"varint,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Seq    uint32    `protobuf:"varint,2,opt,name=seq,proto3" json:"seq,omitempty"`
	Data   []byte    `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
	Coding *Coding   `protobuf:"bytes,4,opt,name=coding,proto3" json:"coding,omitempty"`
	State  uint32    `protobuf:"varint,5,opt,name=state,proto3" json:"state,omitempty"`
	Ok     bool      `protobuf:"varint,6,opt,name=ok,proto3" json:"ok,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Frame) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Frame) Reset() { *m = Frame{} }

// String implements proto.Message.
func (m *Frame) String() string { return proto.CompactTextString(m) }

// Coding is the wire form of LineCoding.
type Coding struct {
	Rate     uint32 `protobuf:"varint,1,opt,name=rate,proto3" json:"rate,omitempty"`
	StopBits uint32 `protobuf:"varint,2,opt,name=stop_bits,proto3" json:"stop_bits,omitempty"`
	Parity   uint32 `protobuf:"varint,3,opt,name=parity,proto3" json:"parity,omitempty"`
	DataBits uint32 `protobuf:"varint,4,opt,name=data_bits,proto3" json:"data_bits,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Coding) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Coding) Reset() { *m = Coding{} }

// String implements proto.Message.
func (m *Coding) String() string { return proto.CompactTextString(m) }

// CodingFrom converts LineCoding to its wire form.
func CodingFrom(c LineCoding) *Coding {
	return &Coding{
		Rate:     c.DTERate,
		StopBits: uint32(c.CharFormat),
		Parity:   uint32(c.ParityType),
		DataBits: uint32(c.DataBits),
	}
}

// LineCoding converts back. ok is false if a field does not fit.
func (m *Coding) LineCoding() (c LineCoding, ok bool) {
	if m == nil || m.StopBits > 0xff || m.Parity > 0xff || m.DataBits > 0xff {
		return c, false
	}
	return LineCoding{
		DTERate:    m.Rate,
		CharFormat: StopBits(m.StopBits),
		ParityType: Parity(m.Parity),
		DataBits:   uint8(m.DataBits),
	}, true
}

// EncodeFrame marshals a Frame into a packet.
func EncodeFrame(f *Frame) ([]byte, error) {
	return proto.Marshal(f)
}

// DecodeFrame unmarshals a packet.
func DecodeFrame(pkt []byte) (*Frame, error) {
	f := &Frame{}
	if err := proto.Unmarshal(pkt, f); err != nil {
		return nil, err
	}
	return f, nil
}
