// Package ring provides the counter-based circular buffer shared by the
// serial receive path and the bridge pump.
package ring

import (
	"errors"

	"go.uber.org/atomic"
)

// DefaultCapacity is the buffer size used when none is configured.
const DefaultCapacity = 512

var (
	// ErrCapacity indicates the capacity is not a power of two.
	ErrCapacity = errors.New("capacity must be a power of two")
)

// Buffer is a fixed-capacity byte ring addressed by two cumulative counters.
//
// The producer always fills the whole storage from its base and commits
// with Commit; the position of a byte is purely an accounting construct:
// logical position p lives at offset p&(capacity-1).
// Received is only written by the producer and Forwarded only by the
// consumer. The pair is never read atomically; a reader may see a stale
// Received, which only understates the backlog.
type Buffer struct {
	data      []byte
	mask      uint32
	received  atomic.Uint32
	forwarded atomic.Uint32
}

// New creates a Buffer with capacity bytes.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 || uint64(capacity) > 1<<31 {
		return nil, ErrCapacity
	}
	return &Buffer{
		data: make([]byte, capacity),
		mask: uint32(capacity - 1),
	}, nil
}

// Storage returns the backing array. The producer receives into it
// starting at the base every time.
func (b *Buffer) Storage() []byte {
	return b.data
}

// Cap returns the capacity.
func (b *Buffer) Cap() uint32 {
	return b.mask + 1
}

// Received returns the cumulative count of bytes committed by the producer.
func (b *Buffer) Received() uint32 {
	return b.received.Load()
}

// Forwarded returns the cumulative count of bytes consumed.
func (b *Buffer) Forwarded() uint32 {
	return b.forwarded.Load()
}

// Commit advances Received by n. Producer side only.
func (b *Buffer) Commit(n uint32) {
	b.received.Add(n)
}

// Pending computes unread bytes from a Received snapshot and inflight,
// the bytes the producer has written past Received but not committed yet.
// received must be sampled before inflight: the producer clears inflight
// before committing, so this order never overstates the backlog.
func (b *Buffer) Pending(received, inflight uint32) uint32 {
	return received + inflight - b.forwarded.Load()
}

// Overflowed reports whether pending bytes have been overwritten.
// A backlog of exactly Cap bytes is still intact: the storage holds the
// last Cap bytes received.
func (b *Buffer) Overflowed(pending uint32) bool {
	return pending > b.Cap()
}

// Span returns the contiguous region starting at Forwarded, at most
// pending bytes long and never crossing the end of the storage.
func (b *Buffer) Span(pending uint32) []byte {
	off := b.forwarded.Load() & b.mask
	n := b.Cap() - off
	if pending < n {
		n = pending
	}
	return b.data[off : off+n]
}

// Consume advances Forwarded by n. Consumer side only.
func (b *Buffer) Consume(n uint32) {
	b.forwarded.Add(n)
}

// Reset zeroes both counters. The caller must make sure neither side is
// active, e.g. reception is aborted and the consumer is excluded.
func (b *Buffer) Reset() {
	b.received.Store(0)
	b.forwarded.Store(0)
}
