// Package node is the generic virtual-file-node layer: it owns the per-node
// lock, the peer counters and the open handles, and routes every handle
// operation to whichever Device backs the node.
//
// Devices never see the counters directly. Each call receives an Access
// carrying an immutable PeerState snapshot taken under the node lock, so a
// device is a pure function of that snapshot and its own buffers.
package node

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/kterm/internal/iocall"
	"github.com/srg/kterm/internal/kerr"
)

// Kind tags what a node is.
type Kind int

const (
	KindFile Kind = iota
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Flags are fixed when a handle is opened.
type Flags uint32

const (
	OpenRead Flags = 1 << iota
	OpenWrite
	OpenMaster // controller side of a terminal

	OpenReadWrite = OpenRead | OpenWrite
)

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

func (f Flags) String() string {
	b := []byte("---")
	if f.Has(OpenRead) {
		b[0] = 'r'
	}
	if f.Has(OpenWrite) {
		b[1] = 'w'
	}
	if f.Has(OpenMaster) {
		b[2] = 'm'
	}
	return string(b)
}

// Side says which end of a channel a handle sits on.
type Side int

const (
	Slave Side = iota
	Master
)

func (s Side) String() string {
	if s == Master {
		return "master"
	}
	return "slave"
}

// PeerState is a snapshot of the handles attached to a node.
type PeerState struct {
	Readers    int  `json:"readers"`     // read-capable handles, either side
	Writers    int  `json:"writers"`     // write-capable handles, either side
	MasterOpen bool `json:"master_open"` // at least one master handle open
	Slaves     int  `json:"slaves"`      // handles opened without OpenMaster
}

// Access is what a device learns about the caller of an operation.
type Access struct {
	Side   Side
	Peers  PeerState
	Offset int64
}

// Device is implemented by everything a node can stand for. All methods are
// called with the node lock held and must not block.
type Device interface {
	CanRead(a Access) bool
	CanWrite(a Access) bool
	Read(a Access, p []byte) (int, error)
	Write(a Access, p []byte) (int, error)
	Call(a Access, req iocall.Request) (iocall.Reply, error)
	Size(a Access) int

	// Destroy is called exactly once, after the last handle is closed and
	// the node is no longer linked.
	Destroy()
}

// Options configures a Node.
type Options struct {
	Name    string
	Logger  *logrus.Logger // nil = discard
	OnEvent func(Event)    // called outside the node lock
}

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Node binds a Device to the bookkeeping shared by all its handles.
type Node struct {
	id      uuid.UUID
	name    string
	kind    Kind
	logger  *logrus.Logger
	onEvent func(Event)

	mu        sync.Mutex
	dev       Device
	readers   int
	writers   int
	masters   int
	slaves    int
	refs      int  // open handles
	linked    bool // owner reference, dropped by Unlink
	destroyed bool
	changed   chan struct{} // closed and replaced on every state change
}

// New wraps dev in a linked node. The node lives until Unlink has been
// called and every handle is closed.
func New(kind Kind, dev Device, opts *Options) *Node {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger
	}

	n := &Node{
		id:      uuid.New(),
		name:    opts.Name,
		kind:    kind,
		logger:  logger,
		onEvent: opts.OnEvent,
		dev:     dev,
		linked:  true,
		changed: make(chan struct{}),
	}
	n.emit(Event{Type: EventCreated, Peers: PeerState{}})
	return n
}

func (n *Node) ID() uuid.UUID { return n.id }
func (n *Node) Name() string  { return n.name }
func (n *Node) Kind() Kind    { return n.kind }

// Open attaches a new handle and updates the peer counters.
func (n *Node) Open(flags Flags) (*Handle, error) {
	if !flags.Has(OpenRead) && !flags.Has(OpenWrite) {
		return nil, kerr.ErrInvalidArgument
	}
	if flags.Has(OpenMaster) && n.kind != KindTerminal {
		return nil, kerr.ErrInvalidArgument
	}

	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return nil, kerr.ErrDestroyed
	}

	if flags.Has(OpenRead) {
		n.readers++
	}
	if flags.Has(OpenWrite) {
		n.writers++
	}
	if flags.Has(OpenMaster) {
		n.masters++
	} else {
		n.slaves++
	}
	n.refs++
	n.notifyLocked()
	peers := n.peersLocked()
	n.mu.Unlock()

	h := &Handle{node: n, flags: flags}
	n.logger.WithFields(logrus.Fields{
		"node":  n.name,
		"side":  h.Side(),
		"flags": flags,
	}).Debug("Handle opened")
	n.emit(Event{Type: EventOpened, Side: h.Side(), Peers: peers})

	return h, nil
}

// Unlink drops the owner reference. The device is destroyed now if no
// handle is open, otherwise when the last one closes.
func (n *Node) Unlink() {
	n.mu.Lock()
	if !n.linked {
		n.mu.Unlock()
		return
	}
	n.linked = false
	destroyed := n.maybeDestroyLocked()
	n.mu.Unlock()

	if destroyed {
		n.emit(Event{Type: EventDestroyed})
	}
}

// Peers returns the current peer counters.
func (n *Node) Peers() PeerState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peersLocked()
}

// Destroyed reports whether the device has been torn down.
func (n *Node) Destroyed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.destroyed
}

// Inspect runs fn with the device and a peer snapshot while holding the node
// lock. fn must not call back into the node.
func (n *Node) Inspect(fn func(dev Device, peers PeerState)) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.destroyed {
		return kerr.ErrDestroyed
	}
	fn(n.dev, n.peersLocked())
	return nil
}

// Info is a point-in-time description of a node.
type Info struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	Handles int       `json:"handles"`
	Peers   PeerState `json:"peers"`
	Linked  bool      `json:"linked"`
}

func (n *Node) Info() Info {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Info{
		ID:      n.id.String(),
		Name:    n.name,
		Kind:    n.kind.String(),
		Handles: n.refs,
		Peers:   n.peersLocked(),
		Linked:  n.linked,
	}
}

func (n *Node) peersLocked() PeerState {
	return PeerState{
		Readers:    n.readers,
		Writers:    n.writers,
		MasterOpen: n.masters > 0,
		Slaves:     n.slaves,
	}
}

// detachLocked reverses the counter updates made by Open. It returns true
// when the last master handle went away.
func (n *Node) detachLocked(flags Flags) (masterHungUp bool) {
	if flags.Has(OpenRead) {
		n.readers--
	}
	if flags.Has(OpenWrite) {
		n.writers--
	}
	if flags.Has(OpenMaster) {
		n.masters--
		masterHungUp = n.masters == 0
	} else {
		n.slaves--
	}
	n.refs--
	return masterHungUp
}

func (n *Node) maybeDestroyLocked() bool {
	if n.destroyed || n.linked || n.refs > 0 {
		return false
	}
	n.destroyed = true
	n.dev.Destroy()
	n.notifyLocked()
	n.logger.WithField("node", n.name).Debug("Node destroyed")
	return true
}

// notifyLocked wakes every waiter parked on the current change channel.
func (n *Node) notifyLocked() {
	close(n.changed)
	n.changed = make(chan struct{})
}

func (n *Node) emit(ev Event) {
	if n.onEvent == nil {
		return
	}
	ev.NodeID = n.id
	ev.Name = n.name
	ev.Kind = n.kind
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	n.onEvent(ev)
}
