package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/kterm"
	"github.com/srg/kterm/internal/script"
)

func newScriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "script [file.lua]",
		Short: "Run a Lua script against a fresh terminal node",
		Long: `Runs a Lua script with a global "term" table bound to the master and slave
handles of a fresh terminal node:

  term.write(side, data)     term.read(side [, max])    term.wait_read(side, ms)
  term.can_read(side)        term.can_write(side)       term.peers()
  term.size()                term.resize(w, h)          term.close(side)

side is "master" or "slave". Failed calls raise errors that start with the
result code, e.g. ERR_STREAM_CLOSED, so scripts can pcall and match on them.

Without a file the built-in login exchange runs.

Example:
  term.write("slave", "login: ")
  print(term.read("master"))`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScript,
	}
}

func runScript(cmd *cobra.Command, args []string) error {
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
			logger.WithError(cerr).Warn("Failed to release script session")
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

	engine := script.NewEngine(master, slave, script.Options{
		Logger: logger,
		Output: cmd.OutOrStdout(),
	})
	defer engine.Close()

	if len(args) == 0 {
		logger.Info("Running built-in login script")
		return engine.Run(kterm.DefaultLoginLuaScript, "login.lua")
	}
	logger.WithField("file", args[0]).Info("Running script")
	return engine.RunFile(args[0])
}
