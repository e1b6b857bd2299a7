package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/srg/kterm/internal/fdtable"
	"github.com/srg/kterm/internal/journal"
	"github.com/srg/kterm/internal/node"
	"github.com/srg/kterm/internal/terminal"
)

type statOptions struct {
	json       bool
	masterData string
	slaveData  string
}

func newStatCmd() *cobra.Command {
	opts := &statOptions{}
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Print a snapshot of a terminal node",
		Long: `Creates a terminal node, writes the given data from each side without
reading it back, and prints the node's geometry, buffer fill, peer state,
descriptor tables and lifecycle journal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStat(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON (overrides output_format)")
	cmd.Flags().StringVar(&opts.masterData, "master-data", "ls -l\n", "Bytes the master writes before the snapshot")
	cmd.Flags().StringVar(&opts.slaveData, "slave-data", "$ ", "Bytes the slave writes before the snapshot")
	return cmd
}

type journalReport struct {
	Capacity uint32          `json:"capacity"`
	Metrics  journal.Metrics `json:"metrics"`
	Events   []node.Event    `json:"events"`
}

type statReport struct {
	Node        node.Info                  `json:"node"`
	Terminal    terminal.Snapshot          `json:"terminal"`
	Presence    terminal.Presence          `json:"presence"`
	Descriptors map[string][]fdtable.Entry `json:"descriptors"`
	Journal     journalReport              `json:"journal"`
}

func runStat(cmd *cobra.Command, opts *statOptions) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to release stat session")
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
	if _, err := master.TryWrite([]byte(opts.masterData)); err != nil {
		return fmt.Errorf("master write: %w", err)
	}
	if _, err := slave.TryWrite([]byte(opts.slaveData)); err != nil {
		return fmt.Errorf("slave write: %w", err)
	}

	report := statReport{
		Node: s.node.Info(),
		Descriptors: map[string][]fdtable.Entry{
			"controller": s.controller.List(),
			"program":    s.program.List(),
		},
	}
	err = s.node.Inspect(func(dev node.Device, peers node.PeerState) {
		if t, ok := dev.(*terminal.Terminal); ok {
			report.Terminal = t.Snapshot()
		}
		report.Presence = terminal.PresenceOf(peers)
	})
	if err != nil {
		return err
	}
	report.Journal = journalReport{
		Capacity: s.journal.Cap(),
		Metrics:  s.journal.Metrics(),
		Events:   s.journal.Drain(),
	}

	if opts.json || cfg.OutputFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printStat(cmd.OutOrStdout(), &report)
	return nil
}

func printStat(w io.Writer, r *statReport) {
	fmt.Fprintf(w, "Node:      %s (%s, id %s)\n", r.Node.Name, r.Node.Kind, r.Node.ID)
	fmt.Fprintf(w, "Geometry:  %dx%d\n", r.Terminal.Width, r.Terminal.Height)
	fmt.Fprintf(w, "Buffers:   master->slave %d/%d, slave->master %d/%d\n",
		r.Terminal.MasterToSlave, r.Terminal.Capacity, r.Terminal.SlaveToMaster, r.Terminal.Capacity)
	fmt.Fprintf(w, "Peers:     %s readers=%d writers=%d master_open=%t slaves=%d\n",
		r.Presence, r.Node.Peers.Readers, r.Node.Peers.Writers, r.Node.Peers.MasterOpen, r.Node.Peers.Slaves)

	for _, owner := range []string{"controller", "program"} {
		for _, e := range r.Descriptors[owner] {
			fmt.Fprintf(w, "FD:        %s fd=%d %s %s %s\n", owner, e.FD, e.Node, e.Side, e.Flags)
		}
	}

	fmt.Fprintf(w, "Journal:   %d recorded, %d overwritten (capacity %d)\n",
		r.Journal.Metrics.Recorded, r.Journal.Metrics.Overwritten, r.Journal.Capacity)
	for _, ev := range r.Journal.Events {
		fmt.Fprintf(w, "  %-9s readers=%d writers=%d master_open=%t\n",
			ev.Type, ev.Peers.Readers, ev.Peers.Writers, ev.Peers.MasterOpen)
	}
}
