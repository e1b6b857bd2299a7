// Package namespace is a flat registry mapping names to nodes. There is no
// path resolution: a name is an opaque key.
package namespace

import (
	"fmt"
	"io"
	"sort"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/kterm/internal/journal"
	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/memfile"
	"github.com/srg/kterm/internal/node"
	"github.com/srg/kterm/internal/terminal"
)

// Options configures a Namespace.
type Options struct {
	Logger   *logrus.Logger   // nil = discard
	Journal  *journal.Journal // optional event sink
	Terminal terminal.Options // applied to every CreateTerminal
}

// Namespace is safe for concurrent use.
type Namespace struct {
	nodes    *hashmap.Map[string, *node.Node]
	logger   *logrus.Logger
	journal  *journal.Journal
	termOpts terminal.Options
}

func New(opts Options) *Namespace {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Namespace{
		nodes:    hashmap.New[string, *node.Node](),
		logger:   logger,
		journal:  opts.Journal,
		termOpts: opts.Terminal,
	}
}

// CreateTerminal registers a new terminal node under name.
func (ns *Namespace) CreateTerminal(name string) (*node.Node, error) {
	dev, err := terminal.NewWithOptions(ns.termOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create terminal %q: %w", name, err)
	}
	return ns.create(name, node.KindTerminal, dev)
}

// CreateFile registers a new regular file under name, holding a copy of
// data.
func (ns *Namespace) CreateFile(name string, data []byte) (*node.Node, error) {
	return ns.create(name, node.KindFile, memfile.New(data))
}

func (ns *Namespace) create(name string, kind node.Kind, dev node.Device) (*node.Node, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty node name", kerr.ErrInvalidArgument)
	}
	if _, ok := ns.nodes.Get(name); ok {
		return nil, fmt.Errorf("%w: %s", kerr.ErrExists, name)
	}

	n := node.New(kind, dev, &node.Options{
		Name:    name,
		Logger:  ns.logger,
		OnEvent: ns.observe,
	})
	if !ns.nodes.Insert(name, n) {
		// lost a race with a concurrent create of the same name
		n.Unlink()
		return nil, fmt.Errorf("%w: %s", kerr.ErrExists, name)
	}

	ns.logger.WithFields(logrus.Fields{
		"node": name,
		"kind": kind,
		"id":   n.ID(),
	}).Info("Node created")
	return n, nil
}

// Lookup returns the node registered under name.
func (ns *Namespace) Lookup(name string) (*node.Node, error) {
	n, ok := ns.nodes.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerr.ErrNotFound, name)
	}
	return n, nil
}

// Open looks up name and opens a handle on it.
func (ns *Namespace) Open(name string, flags node.Flags) (*node.Handle, error) {
	n, err := ns.Lookup(name)
	if err != nil {
		return nil, err
	}
	h, err := n.Open(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return h, nil
}

// Unlink removes name from the namespace. Open handles keep the node alive
// until they are closed.
func (ns *Namespace) Unlink(name string) error {
	n, ok := ns.nodes.Get(name)
	if !ok || !ns.nodes.Del(name) {
		return fmt.Errorf("%w: %s", kerr.ErrNotFound, name)
	}
	n.Unlink()

	ns.logger.WithField("node", name).Info("Node unlinked")
	return nil
}

// List returns a description of every registered node, sorted by name.
func (ns *Namespace) List() []node.Info {
	infos := make([]node.Info, 0, ns.nodes.Len())
	ns.nodes.Range(func(_ string, n *node.Node) bool {
		infos = append(infos, n.Info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

func (ns *Namespace) Len() int {
	return ns.nodes.Len()
}

// observe forwards node events to the log and the journal.
func (ns *Namespace) observe(ev node.Event) {
	entry := ns.logger.WithFields(logrus.Fields{
		"node":    ev.Name,
		"event":   ev.Type,
		"readers": ev.Peers.Readers,
		"writers": ev.Peers.Writers,
		"master":  ev.Peers.MasterOpen,
	})
	if ev.Type == node.EventHangUp {
		entry.Info("Terminal hung up")
	} else {
		entry.Debug("Node event")
	}

	if ns.journal == nil {
		return
	}
	if err := ns.journal.Record(ev); err != nil {
		entry.WithError(err).Warn("Failed to journal node event")
	}
}
