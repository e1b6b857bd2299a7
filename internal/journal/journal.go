// Package journal keeps a bounded log of node lifecycle events. When full,
// the oldest events are overwritten so recording never blocks a node
// operation.
package journal

import (
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/kterm/internal/node"
)

const (
	DefaultSize uint32 = 256

	// MaxSize guards against accidental misconfiguration.
	MaxSize uint32 = 64 * 1024
)

// Metrics are lock-free counters describing journal traffic.
type Metrics struct {
	Recorded    int64 `json:"recorded"`
	Overwritten int64 `json:"overwritten"`
	Errors      int64 `json:"errors"`
}

// Journal is safe for concurrent use by any number of recorders and
// drainers.
type Journal struct {
	buffer mpmc.RichOverlappedRingBuffer[node.Event]

	recorded    atomic.Int64
	overwritten atomic.Int64
	errors      atomic.Int64
}

// New creates a journal holding at least size events. The ring may round
// size up to a power of two.
func New(size uint32) (*Journal, error) {
	if size == 0 {
		return nil, fmt.Errorf("journal size must be > 0")
	}
	if size > MaxSize {
		return nil, fmt.Errorf("journal size %d exceeds maximum %d", size, MaxSize)
	}

	return &Journal{
		buffer: mpmc.NewOverlappedRingBuffer[node.Event](size),
	}, nil
}

// Record appends ev, dropping the oldest entry if the journal is full.
func (j *Journal) Record(ev node.Event) error {
	overwrites, err := j.buffer.EnqueueM(ev)
	if err != nil {
		j.errors.Add(1)
		return fmt.Errorf("failed to record %s event: %w", ev.Type, err)
	}
	j.overwritten.Add(int64(overwrites))
	j.recorded.Add(1)
	return nil
}

// Drain removes and returns every buffered event, oldest first.
func (j *Journal) Drain() []node.Event {
	var events []node.Event
	for !j.buffer.IsEmpty() {
		ev, err := j.buffer.Dequeue()
		if err != nil {
			// a concurrent drainer emptied the ring first
			break
		}
		events = append(events, ev)
	}
	return events
}

// Cap returns the effective capacity after rounding.
func (j *Journal) Cap() uint32 {
	return j.buffer.Cap()
}

func (j *Journal) Recorded() int64    { return j.recorded.Load() }
func (j *Journal) Overwritten() int64 { return j.overwritten.Load() }

// Metrics returns a copy of the current counters.
func (j *Journal) Metrics() Metrics {
	return Metrics{
		Recorded:    j.recorded.Load(),
		Overwritten: j.overwritten.Load(),
		Errors:      j.errors.Load(),
	}
}
