package node

import (
	"context"
	"errors"
	"io"

	"github.com/srg/kterm/internal/kerr"
)

// Blocking I/O on top of the non-blocking device contract. A caller parks on
// the node's change channel until the readiness predicate holds; devices are
// never asked to wait. Cancelling ctx leaves nothing to unwind on the device.

// WaitReadable blocks until CanRead holds or ctx is done.
func (h *Handle) WaitReadable(ctx context.Context) error {
	return h.waitUntil(ctx, func(dev Device, a Access) (bool, error) {
		return dev.CanRead(a), nil
	})
}

// WaitWritable blocks until CanWrite holds or ctx is done.
func (h *Handle) WaitWritable(ctx context.Context) error {
	return h.waitUntil(ctx, func(dev Device, a Access) (bool, error) {
		return dev.CanWrite(a), nil
	})
}

// ReadContext waits until the handle is readable and then reads once. The
// readiness check and the read happen under a single hold of the node lock,
// so a concurrent reader cannot drain the buffer in between.
func (h *Handle) ReadContext(ctx context.Context, p []byte) (int, error) {
	if !h.flags.Has(OpenRead) {
		return 0, kerr.ErrAccessDenied
	}
	if len(p) == 0 {
		return 0, nil
	}

	var n int
	err := h.waitUntil(ctx, func(dev Device, a Access) (bool, error) {
		if !dev.CanRead(a) {
			return false, nil
		}
		var err error
		n, err = h.readLocked(dev, a, p)
		return true, err
	})
	return n, err
}

// WriteContext writes all of p, waiting for buffer space as needed. On
// failure it returns how many bytes were stored before the error.
func (h *Handle) WriteContext(ctx context.Context, p []byte) (int, error) {
	if !h.flags.Has(OpenWrite) {
		return 0, kerr.ErrAccessDenied
	}

	total := 0
	for total < len(p) {
		err := h.waitUntil(ctx, func(dev Device, a Access) (bool, error) {
			if !dev.CanWrite(a) {
				return false, nil
			}
			n, err := h.writeLocked(dev, a, p[total:])
			total += n
			return true, err
		})
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Read implements io.Reader with blocking semantics. End of stream, whether
// reported by the device as kerr.ErrStreamClosed or as an empty read from a
// ready handle, surfaces as io.EOF.
func (h *Handle) Read(p []byte) (int, error) {
	n, err := h.ReadContext(context.Background(), p)
	switch {
	case errors.Is(err, kerr.ErrStreamClosed):
		return n, io.EOF
	case err == nil && n == 0 && len(p) > 0:
		return 0, io.EOF
	}
	return n, err
}

// Write implements io.Writer with blocking semantics.
func (h *Handle) Write(p []byte) (int, error) {
	return h.WriteContext(context.Background(), p)
}

var _ io.ReadWriteCloser = (*Handle)(nil)

// waitUntil evaluates step under the node lock until it reports done, parking
// on the change channel in between.
func (h *Handle) waitUntil(ctx context.Context, step func(dev Device, a Access) (bool, error)) error {
	n := h.node
	for {
		if h.closed.Load() {
			return kerr.ErrBadHandle
		}

		n.mu.Lock()
		if n.destroyed {
			n.mu.Unlock()
			return kerr.ErrDestroyed
		}
		done, err := step(n.dev, n.accessLocked(h))
		changed := n.changed
		n.mu.Unlock()

		if done || err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
