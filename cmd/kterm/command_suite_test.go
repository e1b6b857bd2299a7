package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/srg/kterm/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs kterm commands in-process. All cmd/kterm test suites
// embed it.
type CommandTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
}

func (s *CommandTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
}

// ExecuteCommand runs a fresh command tree with args and returns stdout and
// stderr separately.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd := newRootCmd()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// WriteFile creates a file in a per-test temp directory.
func (s *CommandTestSuite) WriteFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600), "writing %s MUST succeed", name)
	return path
}
