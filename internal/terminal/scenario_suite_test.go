package terminal_test

import (
	"os"
	"strings"
	"testing"

	"github.com/srg/kterm/internal/iocall"
	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/node"
	"github.com/srg/kterm/internal/terminal"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type handleRef struct {
	Handle string `yaml:"handle"`
}

type openStep struct {
	Handle string   `yaml:"handle"`
	Flags  []string `yaml:"flags"`
}

type writeStep struct {
	Handle      string `yaml:"handle"`
	Data        string `yaml:"data"`
	Repeat      int    `yaml:"repeat"`
	ExpectN     *int   `yaml:"expect_n"`
	ExpectError string `yaml:"expect_error"`
}

type readStep struct {
	Handle      string  `yaml:"handle"`
	Max         int     `yaml:"max"`
	ExpectData  *string `yaml:"expect_data"`
	ExpectError string  `yaml:"expect_error"`
}

type readyStep struct {
	Handle string `yaml:"handle"`
	Expect bool   `yaml:"expect"`
}

type sizeStep struct {
	Handle      string `yaml:"handle"`
	Width       int32  `yaml:"width"`
	Height      int32  `yaml:"height"`
	ExpectError string `yaml:"expect_error"`
}

type callStep struct {
	Handle      string `yaml:"handle"`
	Op          uint32 `yaml:"op"`
	Payload     []byte `yaml:"payload"`
	ExpectError string `yaml:"expect_error"`
}

// scenarioStep holds exactly one populated action.
type scenarioStep struct {
	Open      *openStep  `yaml:"open"`
	Close     string     `yaml:"close"`
	Write     *writeStep `yaml:"write"`
	Read      *readStep  `yaml:"read"`
	CanRead   *readyStep `yaml:"can_read"`
	CanWrite  *readyStep `yaml:"can_write"`
	SetSize   *sizeStep  `yaml:"set_size"`
	GetSize   *sizeStep  `yaml:"get_size"`
	Call      *callStep  `yaml:"call"`
	Unlink    bool       `yaml:"unlink"`
	Destroyed *bool      `yaml:"destroyed"`
}

type scenario struct {
	Name  string         `yaml:"name"`
	Steps []scenarioStep `yaml:"steps"`
}

// TerminalScenarioSuite replays the YAML scenarios in testdata against a
// terminal node, one fresh node per scenario.
type TerminalScenarioSuite struct {
	suite.Suite

	scenarios []scenario
	node      *node.Node
	handles   map[string]*node.Handle
}

func (s *TerminalScenarioSuite) SetupSuite() {
	data, err := os.ReadFile("testdata/terminal-scenarios.yaml")
	s.Require().NoError(err)
	s.Require().NoError(yaml.Unmarshal(data, &s.scenarios))
	s.Require().NotEmpty(s.scenarios, "no scenarios loaded")
}

func (s *TerminalScenarioSuite) SetupSubTest() {
	s.node = node.New(node.KindTerminal, terminal.New(), &node.Options{Name: "tty0"})
	s.handles = make(map[string]*node.Handle)
}

func (s *TerminalScenarioSuite) TearDownSubTest() {
	for _, h := range s.handles {
		if !h.Closed() {
			_ = h.Close()
		}
	}
	s.node.Unlink()
	s.True(s.node.Destroyed(), "node must be destroyed once unlinked and closed")
}

func (s *TerminalScenarioSuite) TestScenarios() {
	for _, sc := range s.scenarios {
		s.Run(sc.Name, func() {
			for i, step := range sc.Steps {
				s.runStep(i, step)
			}
		})
	}
}

func (s *TerminalScenarioSuite) handle(name string) *node.Handle {
	h, ok := s.handles[name]
	s.Require().True(ok, "unknown handle %q", name)
	return h
}

func (s *TerminalScenarioSuite) expectResult(step int, want string, err error) {
	if want == "" {
		s.Require().NoError(err, "step %d", step)
		return
	}
	s.Require().Error(err, "step %d: expected %s", step, want)
	s.Equal(want, kerr.ResultOf(err).String(), "step %d", step)
}

func parseFlags(names []string) node.Flags {
	var flags node.Flags
	for _, name := range names {
		switch name {
		case "read":
			flags |= node.OpenRead
		case "write":
			flags |= node.OpenWrite
		case "master":
			flags |= node.OpenMaster
		}
	}
	return flags
}

func (s *TerminalScenarioSuite) runStep(i int, step scenarioStep) {
	switch {
	case step.Open != nil:
		h, err := s.node.Open(parseFlags(step.Open.Flags))
		s.Require().NoError(err, "step %d: open %s", i, step.Open.Handle)
		s.handles[step.Open.Handle] = h

	case step.Close != "":
		s.Require().NoError(s.handle(step.Close).Close(), "step %d: close", i)

	case step.Write != nil:
		w := step.Write
		data := w.Data
		if w.Repeat > 0 {
			data = strings.Repeat(w.Data, w.Repeat)
		}
		n, err := s.handle(w.Handle).TryWrite([]byte(data))
		s.expectResult(i, w.ExpectError, err)
		if w.ExpectN != nil {
			s.Equal(*w.ExpectN, n, "step %d: bytes written", i)
		}

	case step.Read != nil:
		r := step.Read
		buf := make([]byte, r.Max)
		n, err := s.handle(r.Handle).TryRead(buf)
		s.expectResult(i, r.ExpectError, err)
		if r.ExpectData != nil {
			s.Equal(*r.ExpectData, string(buf[:n]), "step %d: bytes read", i)
		}

	case step.CanRead != nil:
		s.Equal(step.CanRead.Expect, s.handle(step.CanRead.Handle).CanRead(), "step %d: can_read", i)

	case step.CanWrite != nil:
		s.Equal(step.CanWrite.Expect, s.handle(step.CanWrite.Handle).CanWrite(), "step %d: can_write", i)

	case step.SetSize != nil:
		err := s.handle(step.SetSize.Handle).SetSize(step.SetSize.Width, step.SetSize.Height)
		s.expectResult(i, step.SetSize.ExpectError, err)

	case step.GetSize != nil:
		size, err := s.handle(step.GetSize.Handle).GetSize()
		s.expectResult(i, step.GetSize.ExpectError, err)
		s.Equal(iocall.SizeArgs{Width: step.GetSize.Width, Height: step.GetSize.Height}, size, "step %d: geometry", i)

	case step.Call != nil:
		_, err := s.handle(step.Call.Handle).CallRaw(iocall.Op(step.Call.Op), step.Call.Payload)
		s.expectResult(i, step.Call.ExpectError, err)

	case step.Unlink:
		s.node.Unlink()

	case step.Destroyed != nil:
		s.Equal(*step.Destroyed, s.node.Destroyed(), "step %d: destroyed", i)

	default:
		s.Failf("empty step", "step %d has no action", i)
	}
}

func TestTerminalScenarioSuite(t *testing.T) {
	suite.Run(t, new(TerminalScenarioSuite))
}
