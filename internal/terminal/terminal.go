// Package terminal implements the terminal node device: a bidirectional
// byte channel between a master (the controlling side, e.g. a terminal
// emulator) and any number of slave handles (the controlled program's
// standard I/O), plus the reported window geometry.
//
// Two ring buffers carry the data, one per direction:
//
//	master --write--> masterToSlave --read--> slave
//	master <--read--- slaveToMaster <--write- slave
//
// The device owns no peer bookkeeping. Whether the other side is still there
// is read from the PeerState snapshot the node layer passes with every call.
// It never blocks, never logs and never retries; the node layer serializes
// every call with the node lock.
package terminal

import (
	"fmt"

	"github.com/srg/kterm/internal/iocall"
	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/node"
	"github.com/srg/kterm/internal/ringbuf"
)

const (
	// BufferSize is the capacity of each direction's ring buffer.
	BufferSize = 1024

	DefaultWidth  = 80
	DefaultHeight = 25
)

// Options overrides the creation defaults. Zero fields keep the default, so a
// terminal cannot be created with a 0 width or height; SetSize can set one
// afterwards.
type Options struct {
	Capacity int
	Width    int32
	Height   int32
}

// Terminal is the device behind a terminal node.
type Terminal struct {
	width  int32
	height int32

	masterToSlave *ringbuf.Buffer
	slaveToMaster *ringbuf.Buffer
}

var _ node.Device = (*Terminal)(nil)

// New creates a terminal with BufferSize rings and 80x25 geometry.
func New() *Terminal {
	t, err := NewWithOptions(Options{})
	if err != nil {
		panic(fmt.Sprintf("terminal: default options rejected: %v", err))
	}
	return t
}

// NewWithOptions creates a terminal with the given overrides.
func NewWithOptions(opts Options) (*Terminal, error) {
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = BufferSize
	}
	width, height := opts.Width, opts.Height
	if width == 0 {
		width = DefaultWidth
	}
	if height == 0 {
		height = DefaultHeight
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: geometry %dx%d", kerr.ErrInvalidArgument, width, height)
	}

	m2s, err := ringbuf.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create master-to-slave buffer: %w", err)
	}
	s2m, err := ringbuf.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create slave-to-master buffer: %w", err)
	}

	return &Terminal{
		width:         width,
		height:        height,
		masterToSlave: m2s,
		slaveToMaster: s2m,
	}, nil
}

// inbound returns the buffer a side reads from and whether whoever fills it
// can still write. A master is fed by any write-capable handle; a slave is
// fed only by a master.
func (t *Terminal) inbound(a node.Access) (*ringbuf.Buffer, bool) {
	if a.Side == node.Master {
		return t.slaveToMaster, a.Peers.Writers > 0
	}
	return t.masterToSlave, a.Peers.MasterOpen
}

// outbound returns the buffer a side writes into and whether anyone is left
// to drain it.
func (t *Terminal) outbound(a node.Access) (*ringbuf.Buffer, bool) {
	if a.Side == node.Master {
		return t.masterToSlave, a.Peers.Readers > 0
	}
	return t.slaveToMaster, a.Peers.MasterOpen
}

// CanRead holds when there is data to read or the feeding peer is gone, in
// which case Read reports end of stream instead of blocking forever.
func (t *Terminal) CanRead(a node.Access) bool {
	buf, live := t.inbound(a)
	return !buf.IsEmpty() || !live
}

// CanWrite holds when there is room to write or the draining peer is gone,
// in which case Write fails instead of blocking forever.
func (t *Terminal) CanWrite(a node.Access) bool {
	buf, live := t.outbound(a)
	return !buf.IsFull() || !live
}

// Read drains up to len(p) bytes from the side's inbound buffer. Once the
// feeding peer is gone every read fails with kerr.ErrStreamClosed, even with
// bytes still buffered. An empty read with the peer present returns 0, nil.
func (t *Terminal) Read(a node.Access, p []byte) (int, error) {
	buf, live := t.inbound(a)
	if !live {
		return 0, kerr.ErrStreamClosed
	}
	return buf.Read(p), nil
}

// Write stores as much of p as fits into the side's outbound buffer. A full
// buffer yields a short (possibly zero) count, not an error.
func (t *Terminal) Write(a node.Access, p []byte) (int, error) {
	buf, live := t.outbound(a)
	if !live {
		return 0, kerr.ErrStreamClosed
	}
	return buf.Write(p), nil
}

// Call handles GET_SIZE and SET_SIZE; anything else is refused.
func (t *Terminal) Call(_ node.Access, req iocall.Request) (iocall.Reply, error) {
	switch r := req.(type) {
	case iocall.GetSizeRequest:
		return iocall.Reply{Size: &iocall.SizeArgs{Width: t.width, Height: t.height}}, nil

	case iocall.SetSizeRequest:
		if r.Size.Width < 0 || r.Size.Height < 0 {
			return iocall.Reply{}, fmt.Errorf("%w: geometry %dx%d", kerr.ErrInvalidArgument, r.Size.Width, r.Size.Height)
		}
		t.width = r.Size.Width
		t.height = r.Size.Height
		return iocall.Reply{}, nil

	default:
		return iocall.Reply{}, fmt.Errorf("%w: %s", kerr.ErrInappropriateCall, req.Op())
	}
}

// Size returns the ring capacity so callers can size their transfers.
func (t *Terminal) Size(node.Access) int {
	return t.masterToSlave.Cap()
}

// Destroy releases both ring buffers.
func (t *Terminal) Destroy() {
	t.masterToSlave.Destroy()
	t.slaveToMaster.Destroy()
}

// Snapshot describes the device state for diagnostics.
type Snapshot struct {
	Width         int32 `json:"width"`
	Height        int32 `json:"height"`
	Capacity      int   `json:"capacity"`
	MasterToSlave int   `json:"master_to_slave"`
	SlaveToMaster int   `json:"slave_to_master"`
}

// Snapshot must be called under the node lock, see node.Node.Inspect.
func (t *Terminal) Snapshot() Snapshot {
	return Snapshot{
		Width:         t.width,
		Height:        t.height,
		Capacity:      t.masterToSlave.Cap(),
		MasterToSlave: t.masterToSlave.Len(),
		SlaveToMaster: t.slaveToMaster.Len(),
	}
}
