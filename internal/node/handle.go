package node

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/kterm/internal/iocall"
	"github.com/srg/kterm/internal/kerr"
)

// Handle is one open reference to a node. Its flags, and therefore its side,
// never change after Open.
//
// The Try* methods and Call are non-blocking and map one-to-one onto the
// device contract. Blocking variants live in wait.go.
type Handle struct {
	node   *Node
	flags  Flags
	offset int64 // guarded by node.mu
	closed atomic.Bool
}

func (h *Handle) Node() *Node  { return h.node }
func (h *Handle) Flags() Flags { return h.flags }

// Side returns Master for handles opened with OpenMaster.
func (h *Handle) Side() Side {
	if h.flags.Has(OpenMaster) {
		return Master
	}
	return Slave
}

// withDevice runs fn under the node lock with the caller's Access.
func (h *Handle) withDevice(fn func(dev Device, a Access) error) error {
	if h.closed.Load() {
		return kerr.ErrBadHandle
	}

	n := h.node
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.destroyed {
		return kerr.ErrDestroyed
	}
	return fn(n.dev, n.accessLocked(h))
}

func (n *Node) accessLocked(h *Handle) Access {
	return Access{Side: h.Side(), Peers: n.peersLocked(), Offset: h.offset}
}

// CanRead reports whether TryRead would return data or a definitive error
// right now.
func (h *Handle) CanRead() bool {
	ready := false
	err := h.withDevice(func(dev Device, a Access) error {
		ready = dev.CanRead(a)
		return nil
	})
	// a dead handle never blocks: the next call fails straight away
	return ready || err != nil
}

// CanWrite reports whether TryWrite would store data or fail definitively
// right now.
func (h *Handle) CanWrite() bool {
	ready := false
	err := h.withDevice(func(dev Device, a Access) error {
		ready = dev.CanWrite(a)
		return nil
	})
	return ready || err != nil
}

// TryRead reads whatever the device has available without waiting.
func (h *Handle) TryRead(p []byte) (int, error) {
	if !h.flags.Has(OpenRead) {
		return 0, kerr.ErrAccessDenied
	}

	var n int
	err := h.withDevice(func(dev Device, a Access) error {
		var err error
		n, err = h.readLocked(dev, a, p)
		return err
	})
	return n, err
}

// TryWrite stores as much of p as the device accepts without waiting.
func (h *Handle) TryWrite(p []byte) (int, error) {
	if !h.flags.Has(OpenWrite) {
		return 0, kerr.ErrAccessDenied
	}

	var n int
	err := h.withDevice(func(dev Device, a Access) error {
		var err error
		n, err = h.writeLocked(dev, a, p)
		return err
	})
	return n, err
}

func (h *Handle) readLocked(dev Device, a Access, p []byte) (int, error) {
	n, err := dev.Read(a, p)
	if n > 0 {
		h.offset += int64(n)
		h.node.notifyLocked()
	}
	return n, err
}

func (h *Handle) writeLocked(dev Device, a Access, p []byte) (int, error) {
	n, err := dev.Write(a, p)
	if n > 0 {
		h.offset += int64(n)
		h.node.notifyLocked()
	}
	return n, err
}

// Call sends a decoded control request to the device.
func (h *Handle) Call(req iocall.Request) (iocall.Reply, error) {
	var reply iocall.Reply
	err := h.withDevice(func(dev Device, a Access) error {
		var err error
		reply, err = dev.Call(a, req)
		if err == nil && req.Op() == iocall.OpSetSize {
			h.node.notifyLocked()
		}
		return err
	})
	if err != nil {
		return iocall.Reply{}, err
	}

	if req.Op() == iocall.OpSetSize {
		h.node.emit(Event{Type: EventResized, Side: h.Side(), Peers: h.node.Peers()})
	}
	return reply, nil
}

// CallRaw is the system call entry point: it decodes the raw argument block,
// dispatches the request and encodes the reply.
func (h *Handle) CallRaw(op iocall.Op, payload []byte) ([]byte, error) {
	req, err := iocall.Decode(op, payload)
	if err != nil {
		return nil, err
	}
	reply, err := h.Call(req)
	if err != nil {
		return nil, err
	}
	return reply.Encode(), nil
}

// GetSize is shorthand for a GET_SIZE call.
func (h *Handle) GetSize() (iocall.SizeArgs, error) {
	reply, err := h.Call(iocall.GetSizeRequest{})
	if err != nil {
		return iocall.SizeArgs{}, err
	}
	if reply.Size == nil {
		return iocall.SizeArgs{}, kerr.ErrInappropriateCall
	}
	return *reply.Size, nil
}

// SetSize is shorthand for a SET_SIZE call.
func (h *Handle) SetSize(width, height int32) error {
	_, err := h.Call(iocall.SetSizeRequest{Size: iocall.SizeArgs{Width: width, Height: height}})
	return err
}

// Size returns the device's preferred transfer size.
func (h *Handle) Size() (int, error) {
	var size int
	err := h.withDevice(func(dev Device, a Access) error {
		size = dev.Size(a)
		return nil
	})
	return size, err
}

// Close detaches the handle. Closing twice fails with kerr.ErrBadHandle.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return kerr.ErrBadHandle
	}

	n := h.node
	n.mu.Lock()
	hungUp := n.detachLocked(h.flags)
	n.notifyLocked()
	peers := n.peersLocked()
	destroyed := n.maybeDestroyLocked()
	n.mu.Unlock()

	n.logger.WithFields(logrus.Fields{
		"node": n.name,
		"side": h.Side(),
	}).Debug("Handle closed")

	n.emit(Event{Type: EventClosed, Side: h.Side(), Peers: peers})
	if hungUp && n.kind == KindTerminal {
		n.emit(Event{Type: EventHangUp, Side: Master, Peers: peers})
	}
	if destroyed {
		n.emit(Event{Type: EventDestroyed, Peers: peers})
	}
	return nil
}

// Closed reports whether Close has been called on this handle.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}
