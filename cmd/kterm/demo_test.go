package main

import (
	"testing"

	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type DemoCommandTestSuite struct {
	CommandTestSuite
}

func (s *DemoCommandTestSuite) TestTranscript() {
	out, _, err := s.ExecuteCommand("demo", "--no-color")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, `
tty0: 80x25, 1024-byte buffers
slave  -> "login: "
master <- "login: "
master -> "root\n"
slave  <- "root\n"
resized to 132x43
master -> 2000 bytes, 1024 accepted
master hung up
1024 bytes left unread
slave  read: ERR_STREAM_CLOSED
slave  write: ERR_STREAM_CLOSED
journal: created opened opened resized closed hangup
`)
}

func (s *DemoCommandTestSuite) TestSmallFloodFits() {
	out, _, err := s.ExecuteCommand("demo", "--no-color", "--flood", "4", "--width", "100", "--height", "30")
	s.Require().NoError(err)

	s.Contains(out, "resized to 100x30\n")
	s.Contains(out, `master -> "####"`)
	s.Contains(out, "4 bytes left unread\n")
}

func (s *DemoCommandTestSuite) TestConfigFileChangesGeometry() {
	cfg := s.WriteFile("kterm.yaml", "default_width: 120\ndefault_height: 50\nring_capacity: 512\nlog_level: error\n")

	out, _, err := s.ExecuteCommand("demo", "--no-color", "--config", cfg)
	s.Require().NoError(err)

	s.Contains(out, "tty0: 120x50, 512-byte buffers\n")
	s.Contains(out, "master -> 2000 bytes, 512 accepted\n")
}

func (s *DemoCommandTestSuite) TestRejectsBadInput() {
	_, _, err := s.ExecuteCommand("demo", "--flood", "-1")
	s.ErrorIs(err, kerr.ErrInvalidArgument)

	_, _, err = s.ExecuteCommand("demo", "--width", "-5")
	s.ErrorIs(err, kerr.ErrInvalidArgument)

	_, _, err = s.ExecuteCommand("demo", "--log-level", "loud")
	s.ErrorContains(err, "invalid log level")
}

func TestDemoCommandTestSuite(t *testing.T) {
	suite.Run(t, new(DemoCommandTestSuite))
}
