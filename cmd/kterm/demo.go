package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/node"
	"github.com/srg/kterm/internal/terminal"
)

type demoOptions struct {
	noColor bool
	width   int32
	height  int32
	flood   int
}

func newDemoCmd() *cobra.Command {
	opts := &demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted master/slave exchange on a fresh terminal node",
		Long: `Creates a terminal node, opens a master and a slave handle on it and walks
through a login-style exchange: prompt, reply, resize, an oversized write that
comes back short, and a master hang-up that the slave sees as end of stream
right away, even with bytes still buffered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable coloured output")
	cmd.Flags().Int32Var(&opts.width, "width", 132, "Width to resize the terminal to")
	cmd.Flags().Int32Var(&opts.height, "height", 43, "Height to resize the terminal to")
	cmd.Flags().IntVar(&opts.flood, "flood", 2000, "Size of the oversized master write")
	return cmd
}

// transcript prints one line per step, coloured by the acting side.
type transcript struct {
	out    io.Writer
	master *color.Color
	slave  *color.Color
	event  *color.Color
	fail   *color.Color
}

func newTranscript(out io.Writer, noColor bool) *transcript {
	t := &transcript{
		out:    out,
		master: color.New(color.FgCyan, color.Bold),
		slave:  color.New(color.FgGreen, color.Bold),
		event:  color.New(color.FgMagenta),
		fail:   color.New(color.FgYellow),
	}
	if noColor {
		for _, c := range []*color.Color{t.master, t.slave, t.event, t.fail} {
			c.DisableColor()
		}
	}
	return t
}

func (t *transcript) side(s node.Side) *color.Color {
	if s == node.Master {
		return t.master
	}
	return t.slave
}

func (t *transcript) wrote(s node.Side, data []byte, n int) {
	label := t.side(s).Sprintf("%-6s", s)
	if n < len(data) {
		fmt.Fprintf(t.out, "%s -> %d bytes, %d accepted\n", label, len(data), n)
		return
	}
	fmt.Fprintf(t.out, "%s -> %q\n", label, data)
}

func (t *transcript) read(s node.Side, data []byte) {
	label := t.side(s).Sprintf("%-6s", s)
	if len(data) > 32 {
		fmt.Fprintf(t.out, "%s <- %d bytes\n", label, len(data))
		return
	}
	fmt.Fprintf(t.out, "%s <- %q\n", label, data)
}

func (t *transcript) failed(s node.Side, op string, err error) {
	fmt.Fprintf(t.out, "%s %s: %s\n", t.side(s).Sprintf("%-6s", s), op, t.fail.Sprint(kerr.ResultOf(err)))
}

func (t *transcript) note(format string, args ...interface{}) {
	fmt.Fprintln(t.out, t.event.Sprintf(format, args...))
}

func runDemo(cmd *cobra.Command, opts *demoOptions) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if opts.flood < 0 {
		return fmt.Errorf("%w: flood size %d", kerr.ErrInvalidArgument, opts.flood)
	}

	s, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to release demo session")
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

	t := newTranscript(cmd.OutOrStdout(), opts.noColor)
	size, err := master.GetSize()
	if err != nil {
		return err
	}
	capacity, err := master.Size()
	if err != nil {
		return err
	}
	t.note("%s: %dx%d, %d-byte buffers", s.node.Name(), size.Width, size.Height, capacity)

	buf := make([]byte, capacity)
	exchange := func(from, to *node.Handle, data string) error {
		n, err := from.TryWrite([]byte(data))
		if err != nil {
			return err
		}
		t.wrote(from.Side(), []byte(data), n)

		got, err := to.TryRead(buf)
		if err != nil {
			return err
		}
		t.read(to.Side(), buf[:got])
		return nil
	}

	if err := exchange(slave, master, "login: "); err != nil {
		return err
	}
	if err := exchange(master, slave, "root\n"); err != nil {
		return err
	}

	if err := master.SetSize(opts.width, opts.height); err != nil {
		return err
	}
	if size, err = slave.GetSize(); err != nil {
		return err
	}
	t.note("resized to %dx%d", size.Width, size.Height)

	flood := bytes.Repeat([]byte{'#'}, opts.flood)
	n, err := master.TryWrite(flood)
	if err != nil {
		return err
	}
	t.wrote(node.Master, flood, n)

	if err := s.controller.Close(s.masterFD); err != nil {
		return err
	}
	t.note("master hung up")

	// the flood is still buffered, but the stream is already closed
	if err := s.node.Inspect(func(dev node.Device, _ node.PeerState) {
		if term, ok := dev.(*terminal.Terminal); ok {
			t.note("%d bytes left unread", term.Snapshot().MasterToSlave)
		}
	}); err != nil {
		return err
	}
	if _, err := slave.TryRead(buf); err != nil {
		t.failed(node.Slave, "read", err)
	}
	if _, err := slave.TryWrite([]byte("bye\n")); err != nil {
		t.failed(node.Slave, "write", err)
	}

	var events []string
	for _, ev := range s.journal.Drain() {
		events = append(events, ev.Type.String())
	}
	t.note("journal: %s", strings.Join(events, " "))
	return nil
}
