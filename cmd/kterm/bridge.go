package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/kterm/internal/groutine"
	"github.com/srg/kterm/internal/hostpty"
	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/node"
	"golang.org/x/sync/errgroup"
)

type bridgeOptions struct {
	symlink string
	echo    bool
}

func newBridgeCmd() *cobra.Command {
	opts := &bridgeOptions{}
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Attach a terminal node to a host PTY",
		Long: `Creates a terminal node and attaches its master side to a host
pseudoterminal (e.g. /dev/pts/3). Anything typed into the host PTY reaches the
node's slave side, which echoes it back like a cooked line discipline, so
screen, picocom or minicom can be pointed at the printed device.

Example:
  kterm bridge --symlink /tmp/kterm
  screen /tmp/kterm

Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.symlink, "symlink", "", "Create a symlink to the PTY device (e.g., /tmp/kterm)")
	cmd.Flags().BoolVar(&opts.echo, "echo", true, "Echo slave input back to the host")
	return cmd
}

func runBridge(cmd *cobra.Command, opts *bridgeOptions) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to release bridge session")
		}
	}()

	master, err := s.master()
	if err != nil {
		return err
	}
	slave, err := s.slave()
	if err != nil {
		return err
	}

	b, err := hostpty.Attach(ctx, master, &hostpty.Options{
		Logger:      logger,
		PollTimeout: cfg.PollTimeout,
		SyncSize:    true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close bridge")
		}
	}()

	ttyPath := b.TTYName()
	if opts.symlink != "" {
		if err := os.Symlink(b.TTYName(), opts.symlink); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", opts.symlink, err)
		}
		defer func() {
			if rerr := os.Remove(opts.symlink); rerr != nil {
				logger.WithError(rerr).Warn("Failed to remove symlink")
			}
		}()
		ttyPath = opts.symlink
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Bridge ready: %s -> %s (Ctrl+C to stop)\n", ttyPath, s.node.Name())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	if opts.echo {
		g.Go(groutine.Named(gctx, "bridge-echo", func(ctx context.Context) error {
			return echoLoop(ctx, slave, logger)
		}))
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-b.Done():
			// host side went away; stop the echo loop too
			cancel()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	stats := b.Stats()
	logger.WithFields(logrus.Fields{
		"host_to_node": stats.HostToNode,
		"node_to_host": stats.NodeToHost,
	}).Info("Bridge stopped")

	if err := b.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// echoLoop reads what the host typed on the slave side and writes it back,
// turning carriage returns into CR LF the way a terminal line discipline
// does. It stops when ctx ends or the master hangs up.
func echoLoop(ctx context.Context, slave *node.Handle, logger *logrus.Logger) error {
	size, err := slave.Size()
	if err != nil {
		return err
	}
	buf := make([]byte, size)

	for {
		n, err := slave.ReadContext(ctx, buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kerr.ErrStreamClosed) {
				return nil
			}
			return fmt.Errorf("echo read: %w", err)
		}

		out := bytes.ReplaceAll(buf[:n], []byte{'\r'}, []byte{'\r', '\n'})
		if _, err := slave.WriteContext(ctx, out); err != nil {
			if ctx.Err() != nil || errors.Is(err, kerr.ErrStreamClosed) {
				return nil
			}
			return fmt.Errorf("echo write: %w", err)
		}
		logger.WithField("bytes", n).Debug("Echoed host input")
	}
}
