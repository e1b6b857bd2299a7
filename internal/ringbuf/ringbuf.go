// Package ringbuf provides the fixed-capacity byte ring used by the terminal
// device for each direction of its channel.
//
// Unlike an overwriting log ring, a Buffer never discards unread data: a
// write that does not fit is truncated to the free space and the caller is
// told how many bytes were stored. Retrying the rest is the caller's job.
//
// A Buffer does no locking of its own that callers may rely on. The owner
// serializes every call.
package ringbuf

import (
	"errors"
	"fmt"

	"github.com/smallnest/ringbuffer"
)

// ErrInvalidCapacity is returned by New for a capacity that cannot hold a
// single byte.
var ErrInvalidCapacity = errors.New("ring buffer capacity must be > 0")

// Buffer is a FIFO byte ring of fixed capacity.
type Buffer struct {
	ring     *ringbuffer.RingBuffer // nil after Destroy
	capacity int
}

// New creates an empty Buffer able to hold exactly capacity bytes.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	return &Buffer{
		ring:     ringbuffer.New(capacity),
		capacity: capacity,
	}, nil
}

// Write stores min(len(p), Free()) bytes from p and returns how many were
// stored. It never blocks and never overwrites unread bytes.
func (b *Buffer) Write(p []byte) int {
	if b.ring == nil || len(p) == 0 {
		return 0
	}

	// smallnest/ringbuffer reports a short write through ErrIsFull or
	// ErrTooMuchDataToWrite; the count alone carries that information here.
	n, _ := b.ring.Write(p)
	return n
}

// Read moves min(len(p), Len()) of the oldest bytes into p and returns how
// many were moved.
func (b *Buffer) Read(p []byte) int {
	if b.ring == nil || len(p) == 0 {
		return 0
	}

	n, err := b.ring.Read(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0
	}
	return n
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	if b.ring == nil {
		return 0
	}
	return b.ring.Length()
}

// Free returns how many bytes a Write could store right now.
func (b *Buffer) Free() int {
	if b.ring == nil {
		return 0
	}
	return b.ring.Free()
}

// Cap returns the fixed capacity the Buffer was created with.
func (b *Buffer) Cap() int {
	return b.capacity
}

func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

func (b *Buffer) IsFull() bool {
	return b.ring != nil && b.ring.IsFull()
}

// Destroy releases the backing storage. A destroyed Buffer is empty, is
// never full and accepts no writes.
func (b *Buffer) Destroy() {
	if b.ring == nil {
		return
	}
	b.ring.Reset()
	b.ring = nil
}

// Destroyed reports whether Destroy has been called.
func (b *Buffer) Destroyed() bool {
	return b.ring == nil
}
