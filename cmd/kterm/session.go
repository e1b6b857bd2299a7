package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/kterm/internal/fdtable"
	"github.com/srg/kterm/internal/journal"
	"github.com/srg/kterm/internal/namespace"
	"github.com/srg/kterm/internal/node"
	"github.com/srg/kterm/pkg/config"
)

const sessionNodeName = "tty0"

// session is one terminal node with a controller task and a program task
// attached, each holding its own descriptor table.
type session struct {
	logger  *logrus.Logger
	journal *journal.Journal
	ns      *namespace.Namespace
	node    *node.Node

	controller *fdtable.Table
	program    *fdtable.Table
	masterFD   int
	slaveFD    int
}

func newSession(cfg *config.Config, logger *logrus.Logger) (*session, error) {
	j, err := journal.New(cfg.JournalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}

	ns := namespace.New(namespace.Options{
		Logger:   logger,
		Journal:  j,
		Terminal: cfg.TerminalOptions(),
	})
	n, err := ns.CreateTerminal(sessionNodeName)
	if err != nil {
		return nil, err
	}

	s := &session{
		logger:     logger,
		journal:    j,
		ns:         ns,
		node:       n,
		controller: fdtable.New(),
		program:    fdtable.New(),
	}

	master, err := ns.Open(sessionNodeName, node.OpenReadWrite|node.OpenMaster)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	s.masterFD = s.controller.Install(master)

	slave, err := ns.Open(sessionNodeName, node.OpenReadWrite)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	s.slaveFD = s.program.Install(slave)

	return s, nil
}

func (s *session) master() (*node.Handle, error) { return s.controller.Get(s.masterFD) }
func (s *session) slave() (*node.Handle, error)  { return s.program.Get(s.slaveFD) }

// close releases every descriptor and unlinks the node, which is then
// destroyed.
func (s *session) close() error {
	// a script may have closed a handle itself; drop its stale descriptor
	if h, err := s.master(); err == nil && h.Closed() {
		_ = s.controller.Close(s.masterFD)
	}
	if h, err := s.slave(); err == nil && h.Closed() {
		_ = s.program.Close(s.slaveFD)
	}

	err := errors.Join(s.controller.CloseAll(), s.program.CloseAll())
	if uerr := s.ns.Unlink(sessionNodeName); uerr != nil {
		err = errors.Join(err, uerr)
	}
	return err
}
