package script

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/srg/kterm/internal/node"
	"github.com/srg/kterm/internal/terminal"
	"github.com/srg/kterm/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type EngineTestSuite struct {
	suite.Suite

	helper *testutils.TestHelper
	node   *node.Node
	master *node.Handle
	slave  *node.Handle
	output *bytes.Buffer
	engine *Engine
}

func (s *EngineTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.node = node.New(node.KindTerminal, terminal.New(), &node.Options{Name: "tty0"})

	var err error
	s.master, err = s.node.Open(node.OpenReadWrite | node.OpenMaster)
	s.Require().NoError(err)
	s.slave, err = s.node.Open(node.OpenReadWrite)
	s.Require().NoError(err)

	s.output = &bytes.Buffer{}
	s.engine = NewEngine(s.master, s.slave, Options{Logger: s.helper.Logger, Output: s.output})
}

func (s *EngineTestSuite) TearDownTest() {
	s.engine.Close()
	for _, h := range []*node.Handle{s.master, s.slave} {
		if !h.Closed() {
			s.NoError(h.Close())
		}
	}
}

func (s *EngineTestSuite) run(code string) {
	s.T().Helper()
	s.Require().NoError(s.engine.Run(code, "test"))
}

func (s *EngineTestSuite) TestPrintGoesToOutput() {
	s.run(`print("hello", 42, true, nil)`)
	s.Equal("hello\t42\ttrue\tnil\n", s.output.String())
}

func (s *EngineTestSuite) TestSlaveToMasterExchange() {
	s.run(`
		n = term.write("slave", "hi")
		ready = term.can_read("master")
		got = term.read("master", 8)
		after = term.can_read("master")
	`)

	s.Equal(float64(2), s.engine.Global("n"))
	s.Equal(true, s.engine.Global("ready"))
	s.Equal("hi", s.engine.Global("got"))
	s.Equal(false, s.engine.Global("after"))
}

func (s *EngineTestSuite) TestShortWriteWhenFull() {
	s.run(`
		n = term.write("master", string.rep("x", 2000))
		writable = term.can_write("master")
	`)
	s.Equal(float64(terminal.BufferSize), s.engine.Global("n"))
	s.Equal(false, s.engine.Global("writable"))
}

func (s *EngineTestSuite) TestResizeRoundTrip() {
	s.run(`
		w0, h0 = term.size()
		term.resize(100, 40)
		w, h = term.size()
	`)
	s.Equal(float64(80), s.engine.Global("w0"))
	s.Equal(float64(25), s.engine.Global("h0"))
	s.Equal(float64(100), s.engine.Global("w"))
	s.Equal(float64(40), s.engine.Global("h"))
}

func (s *EngineTestSuite) TestErrorsCarryResultCodes() {
	s.run(`
		ok, err = pcall(term.resize, -1, 10)
		bad_resize = (not ok) and string.find(err, "ERR_INVALID_ARGUMENT", 1, true) ~= nil
	`)
	s.Equal(true, s.engine.Global("bad_resize"))

	s.run(`
		term.close("master")
		ok, err = pcall(term.read, "slave", 8)
		closed = (not ok) and string.find(err, "ERR_STREAM_CLOSED", 1, true) ~= nil
	`)
	s.Equal(true, s.engine.Global("closed"))
	s.True(s.master.Closed())
}

func (s *EngineTestSuite) TestResizeRejectsOutOfRangeGeometry() {
	s.run(`
		ok, err = pcall(term.resize, 2^32 + 80, 25)
		too_wide = (not ok) and string.find(err, "ERR_INVALID_ARGUMENT", 1, true) ~= nil
		ok, err = pcall(term.resize, 80, -2^31 - 1)
		too_low = (not ok) and string.find(err, "ERR_INVALID_ARGUMENT", 1, true) ~= nil
		w, h = term.size()
	`)
	s.Equal(true, s.engine.Global("too_wide"))
	s.Equal(true, s.engine.Global("too_low"))
	s.Equal(float64(80), s.engine.Global("w"), "geometry must be unchanged")
	s.Equal(float64(25), s.engine.Global("h"))
}

func (s *EngineTestSuite) TestWaitRead() {
	s.run(`
		before = term.wait_read("master", 20)
		term.write("slave", "x")
		after = term.wait_read("master", 1000)
	`)
	s.Equal(false, s.engine.Global("before"))
	s.Equal(true, s.engine.Global("after"))
}

func (s *EngineTestSuite) TestPeers() {
	s.run(`
		p = term.peers()
		readers, master_open, slaves = p.readers, p.master_open, p.slaves
	`)
	s.Equal(float64(2), s.engine.Global("readers"))
	s.Equal(true, s.engine.Global("master_open"))
	s.Equal(float64(1), s.engine.Global("slaves"))
}

func (s *EngineTestSuite) TestBadSideArgument() {
	s.run(`ok, err = pcall(term.read, "console")`)
	s.Equal(false, s.engine.Global("ok"))
	s.Contains(s.engine.Global("err"), `unknown side "console"`)
}

func (s *EngineTestSuite) TestScriptErrors() {
	err := s.engine.Run("this is not lua", "broken.lua")
	s.ErrorIs(err, ErrSyntax)

	err = s.engine.Run("\n\nerror('boom')", "fail.lua")
	s.Require().ErrorIs(err, ErrRuntime)
	luaErr := err.(*LuaError)
	s.Equal(3, luaErr.Line)
	s.Contains(luaErr.Message, "boom")
	s.Equal("fail.lua", luaErr.Source)

	s.Error(s.engine.Run("   ", "empty"))
}

func (s *EngineTestSuite) TestRunFile() {
	path := filepath.Join(s.T().TempDir(), "echo.lua")
	s.Require().NoError(os.WriteFile(path, []byte(`term.write("master", "ls\n") print(term.read("slave"))`), 0o600))

	s.Require().NoError(s.engine.RunFile(path))
	s.Equal("ls\n\n", s.output.String())

	s.Error(s.engine.RunFile(filepath.Join(s.T().TempDir(), "missing.lua")))
}

func (s *EngineTestSuite) TestMissingHandle() {
	e := NewEngine(nil, s.slave, Options{})
	defer e.Close()

	s.Require().NoError(e.Run(`ok, err = pcall(term.write, "master", "x")`, "test"))
	s.Equal(false, e.Global("ok"))
	s.Contains(e.Global("err"), "no master handle bound")
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
