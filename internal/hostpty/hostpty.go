// Package hostpty connects the master side of a terminal node to a real
// pseudo-terminal on the host, so ordinary tools can attach to the node
// through /dev/pts/N.
//
//	host program <-> /dev/pts/N (host slave) <-> host master fd <-> Bridge <-> node master handle
//
// Two pumps move the bytes:
//   - host-to-node reads what the host program typed and writes it into the
//     node with blocking, retried writes, so nothing is dropped while the
//     node buffer is full.
//   - node-to-host reads node output and writes it to the host master.
//
// # Poll Timeout Tuning
//
// The host master fd is non-blocking and polled. The timeout bounds how
// long a pump takes to notice that the bridge is shutting down:
//
//	Interactive use: 10-25ms
//	Default:         50ms
//	Idle bridges:    100-200ms
package hostpty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/srg/kterm/internal/groutine"
	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/node"
)

const DefaultPollTimeout = 50 * time.Millisecond

// ErrNoPTY is returned by Attach when the host cannot allocate a PTY pair.
var ErrNoPTY = errors.New("no host PTY available")

// Options configures Attach. Zero values use defaults.
type Options struct {
	Logger      *logrus.Logger
	PollTimeout time.Duration

	// SyncSize copies the node geometry onto the host PTY at attach time.
	SyncSize bool

	// Chunk is the pump transfer size. 0 = the node's preferred size.
	Chunk int
}

// Stats are byte counters for each direction.
type Stats struct {
	HostToNode uint64 `json:"host_to_node"`
	NodeToHost uint64 `json:"node_to_host"`
}

var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Bridge pumps bytes between a host PTY and a node master handle.
type Bridge struct {
	logger      *logrus.Logger
	handle      *node.Handle
	master      *os.File // host master
	masterFd    int      // raw non-blocking fd of master, pumps use it directly
	slave       *os.File // host slave, kept open for the bridge lifetime
	ttyName     string
	pollTimeout int // milliseconds

	cancel context.CancelFunc
	done   chan struct{}
	err    error // valid after done is closed

	closeOnce sync.Once
	closed    atomic.Bool

	hostToNode atomic.Uint64
	nodeToHost atomic.Uint64
}

// Attach opens a host PTY pair and starts pumping between it and h, which
// must be a read-write master handle. The bridge stops when ctx is
// cancelled, when Close is called, or when the node stream ends.
func Attach(ctx context.Context, h *node.Handle, opts *Options) (*Bridge, error) {
	if opts == nil {
		opts = &Options{}
	}
	if h.Side() != node.Master || !h.Flags().Has(node.OpenReadWrite) {
		return nil, fmt.Errorf("%w: bridge needs a read-write master handle, got %s", kerr.ErrInvalidArgument, h.Flags())
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	chunk := opts.Chunk
	if chunk <= 0 {
		size, err := h.Size()
		if err != nil {
			return nil, fmt.Errorf("failed to query node transfer size: %w", err)
		}
		chunk = size
	}

	master, masterFd, slave, err := createPTY()
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		logger:      logger,
		handle:      h,
		master:      master,
		masterFd:    masterFd,
		slave:       slave,
		ttyName:     slave.Name(),
		pollTimeout: int(pollTimeout / time.Millisecond),
		done:        make(chan struct{}),
	}

	if opts.SyncSize {
		size, err := h.GetSize()
		var ws *pty.Winsize
		if err == nil {
			ws, err = winsize(size.Width, size.Height)
		}
		if err == nil {
			err = pty.Setsize(master, ws)
		}
		if err != nil {
			b.closeFiles()
			return nil, fmt.Errorf("failed to sync PTY size: %w", err)
		}
	}

	ctx, b.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(groutine.Named(gctx, "bridge-host-to-node", func(ctx context.Context) error {
		return b.hostToNodeLoop(ctx, chunk)
	}))
	g.Go(groutine.Named(gctx, "bridge-node-to-host", func(ctx context.Context) error {
		return b.nodeToHostLoop(ctx, chunk)
	}))

	groutine.Go(context.Background(), "bridge-wait", func(context.Context) {
		b.err = g.Wait()
		close(b.done)
	})

	logger.WithFields(logrus.Fields{
		"node": h.Node().Name(),
		"tty":  b.ttyName,
	}).Info("Bridge attached")
	return b, nil
}

// hostToNodeLoop forwards host input into the node. The whole chunk is
// written before more is read, so a full node buffer applies back-pressure
// to the host program instead of dropping bytes.
func (b *Bridge) hostToNodeLoop(ctx context.Context, chunk int) error {
	pollFd := []unix.PollFd{{Fd: int32(b.masterFd), Events: unix.POLLIN}}
	buf := make([]byte, chunk)

	for {
		if ctx.Err() != nil {
			return nil
		}

		nReady, err := unix.Poll(pollFd, b.pollTimeout)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			return fmt.Errorf("host poll failed: %w", err)
		}
		if nReady == 0 {
			continue
		}

		n, err := unix.Read(b.masterFd, buf)
		if n == 0 && err == nil {
			b.logger.Debug("host-to-node exiting: EOF")
			return nil
		}
		if n > 0 {
			written, werr := b.handle.WriteContext(ctx, buf[:n])
			b.hostToNode.Add(uint64(written))
			if werr != nil {
				return b.pumpExit("host-to-node", werr)
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
				continue
			case errors.Is(err, syscall.EBADF), errors.Is(err, syscall.EIO):
				// EIO: the host slave has no more openers
				b.logger.WithError(err).Debug("host-to-node exiting")
				return nil
			default:
				return fmt.Errorf("host read failed: %w", err)
			}
		}
	}
}

// nodeToHostLoop forwards node output to the host. It ends cleanly when the
// node stream closes.
func (b *Bridge) nodeToHostLoop(ctx context.Context, chunk int) error {
	pollFd := []unix.PollFd{{Fd: int32(b.masterFd), Events: unix.POLLOUT}}
	buf := make([]byte, chunk)

	for {
		n, err := b.handle.ReadContext(ctx, buf)
		if err != nil {
			return b.pumpExit("node-to-host", err)
		}

		offset := 0
		for offset < n {
			written, err := unix.Write(b.masterFd, buf[offset:n])
			if written > 0 {
				offset += written
				b.nodeToHost.Add(uint64(written))
			}
			if err == nil {
				continue
			}
			switch {
			case errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				if ctx.Err() != nil {
					return nil
				}
				if _, pollErr := unix.Poll(pollFd, b.pollTimeout); pollErr != nil && !errors.Is(pollErr, syscall.EINTR) {
					return fmt.Errorf("host poll failed: %w", pollErr)
				}
			case errors.Is(err, syscall.EBADF):
				return nil
			default:
				return fmt.Errorf("host write failed: %w", err)
			}
		}
	}
}

// pumpExit turns the expected ways a pump stops into a clean exit.
func (b *Bridge) pumpExit(pump string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	case errors.Is(err, kerr.ErrStreamClosed), errors.Is(err, kerr.ErrBadHandle), errors.Is(err, kerr.ErrDestroyed):
		b.logger.WithFields(logrus.Fields{"pump": pump, "reason": err}).Debug("Node stream ended")
		// the other pump may be parked in poll; stop it too
		b.cancel()
		return nil
	default:
		return fmt.Errorf("%s: %w", pump, err)
	}
}

// TTYName returns the host slave path, e.g. /dev/pts/5.
func (b *Bridge) TTYName() string {
	return b.ttyName
}

func (b *Bridge) Stats() Stats {
	return Stats{
		HostToNode: b.hostToNode.Load(),
		NodeToHost: b.nodeToHost.Load(),
	}
}

// winsize converts node geometry to the host's 16-bit window size. Values a
// host PTY cannot represent are rejected instead of wrapped.
func winsize(width, height int32) (*pty.Winsize, error) {
	if width < 0 || height < 0 || width > math.MaxUint16 || height > math.MaxUint16 {
		return nil, fmt.Errorf("%w: geometry %dx%d does not fit a host PTY", kerr.ErrInvalidArgument, width, height)
	}
	return &pty.Winsize{Cols: uint16(width), Rows: uint16(height)}, nil
}

// Resize applies new geometry to both the host PTY and the node.
func (b *Bridge) Resize(width, height int32) error {
	ws, err := winsize(width, height)
	if err != nil {
		return err
	}
	if b.closed.Load() {
		return os.ErrClosed
	}
	if err := pty.Setsize(b.master, ws); err != nil {
		return fmt.Errorf("failed to resize host PTY: %w", err)
	}
	if err := b.handle.SetSize(width, height); err != nil {
		return fmt.Errorf("failed to resize node: %w", err)
	}
	return nil
}

// HostSize reports the geometry currently set on the host PTY.
func (b *Bridge) HostSize() (width, height int32, err error) {
	ws, err := pty.GetsizeFull(b.master)
	if err != nil {
		return 0, 0, err
	}
	return int32(ws.Cols), int32(ws.Rows), nil
}

// Done is closed once both pumps have stopped.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until both pumps stop and returns the first pump error.
func (b *Bridge) Wait() error {
	<-b.done
	return b.err
}

// Close stops the pumps and closes the host PTY. The node handle is left
// open; it belongs to the caller.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.cancel()

		timeout := time.Duration(b.pollTimeout)*time.Millisecond*3 + time.Second
		select {
		case <-b.done:
			err = b.err
		case <-time.After(timeout):
			err = fmt.Errorf("bridge pumps did not stop within %v", timeout)
			b.logger.WithField("tty", b.ttyName).Warn("Bridge pumps did not stop in time")
		}

		// closing the fds after the pumps stop avoids EBADF races on reused fds
		b.closeFiles()
		b.logger.WithFields(logrus.Fields{
			"tty":          b.ttyName,
			"host_to_node": b.hostToNode.Load(),
			"node_to_host": b.nodeToHost.Load(),
		}).Info("Bridge closed")
	})
	return err
}

func (b *Bridge) closeFiles() {
	if err := b.master.Close(); err != nil {
		b.logger.WithError(err).Warn("Failed to close PTY master")
	}
	if err := b.slave.Close(); err != nil {
		b.logger.WithError(err).Warn("Failed to close PTY slave")
	}
}

// createPTY opens a host PTY pair, puts the slave in raw mode and makes the
// master non-blocking. The raw master fd is returned because File.Fd would
// switch the descriptor back to blocking mode on every call.
func createPTY() (master *os.File, masterFd int, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, -1, nil, fmt.Errorf("%w (check permissions and available PTY devices): %w", ErrNoPTY, err)
	}

	cleanup := func(stage string, cause error) error {
		var errs []error
		if closeErr := master.Close(); closeErr != nil {
			errs = append(errs, fmt.Errorf("close PTY master: %w", closeErr))
		}
		if closeErr := slave.Close(); closeErr != nil {
			errs = append(errs, fmt.Errorf("close PTY slave: %w", closeErr))
		}
		return errors.Join(append([]error{fmt.Errorf("failed to %s on %s: %w", stage, slave.Name(), cause)}, errs...)...)
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return nil, -1, nil, cleanup("set raw mode", err)
	}
	masterFd = int(master.Fd())
	if err := syscall.SetNonblock(masterFd, true); err != nil {
		return nil, -1, nil, cleanup("set non-blocking mode", err)
	}
	return master, masterFd, slave, nil
}
