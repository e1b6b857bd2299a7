// Package script drives terminal node handles from Lua. Scripts see a global
// `term` table bound to one master and one slave handle:
//
//	term.write(side, data)        -> bytes written (short when the buffer fills)
//	term.read(side [, max])       -> string, "" when nothing is pending
//	term.wait_read(side, ms)      -> true when readable before the timeout
//	term.can_read(side)           -> bool
//	term.can_write(side)          -> bool
//	term.size()                   -> width, height
//	term.resize(width, height)
//	term.peers()                  -> {readers, writers, master_open, slaves}
//	term.close(side)
//
// side is "master" or "slave". Failures raise a Lua error whose message
// carries the result code, e.g. "ERR_STREAM_CLOSED: term.read: stream
// closed", so scripts can pcall and match on it.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/kterm/internal/node"
)

// LuaError describes a failed script.
type LuaError struct {
	Type    string // "syntax", "runtime", "api"
	Message string
	Line    int
	Source  string
}

func (e *LuaError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, "in "+e.Source)
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Lua %s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("Lua %s error (%s): %s", e.Type, strings.Join(parts, ", "), e.Message)
}

// Is matches any *LuaError of the same Type.
func (e *LuaError) Is(target error) bool {
	var other *LuaError
	if errors.As(target, &other) {
		return e.Type == other.Type
	}
	return false
}

var (
	ErrSyntax  = &LuaError{Type: "syntax"}
	ErrRuntime = &LuaError{Type: "runtime"}
)

// Options configures an Engine.
type Options struct {
	Logger *logrus.Logger
	Output io.Writer // print() target, nil = io.Discard
}

// Engine owns one Lua state. All methods are safe for concurrent use; scripts
// run one at a time.
type Engine struct {
	mu     sync.Mutex
	state  *lua.State
	logger *logrus.Logger
	output io.Writer

	handles map[node.Side]*node.Handle
}

// NewEngine creates an engine bound to the given master and slave handles.
// Either may be nil; calls on a missing side raise a Lua error.
func NewEngine(master, slave *node.Handle, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	output := opts.Output
	if output == nil {
		output = io.Discard
	}

	e := &Engine{
		logger: logger,
		output: output,
		handles: map[node.Side]*node.Handle{
			node.Master: master,
			node.Slave:  slave,
		},
	}

	e.state = lua.NewState()
	e.state.OpenLibs()
	e.registerPrint()
	e.registerTermAPI()
	return e
}

// Run executes code. name shows up in error messages.
func (e *Engine) Run(code, name string) error {
	if strings.TrimSpace(code) == "" {
		return &LuaError{Type: "api", Message: "empty script", Source: name}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return &LuaError{Type: "api", Message: "engine closed", Source: name}
	}

	L := e.state
	if status := L.LoadString(code); status != 0 {
		return e.popError("syntax", name)
	}
	if err := L.Call(0, 0); err != nil {
		L.SetTop(0)
		return parseError("runtime", name, err.Error())
	}

	e.logger.WithField("script", name).Debug("Script finished")
	return nil
}

// RunFile reads and executes a Lua file.
func (e *Engine) RunFile(path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return e.Run(string(code), path)
}

// Global returns a global as a Go value: string, float64, bool or nil.
func (e *Engine) Global(name string) interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}

	L := e.state
	L.GetGlobal(name)
	defer L.Pop(1)
	switch {
	case L.IsNumber(-1):
		return L.ToNumber(-1)
	case L.IsString(-1):
		return L.ToString(-1)
	case L.IsBoolean(-1):
		return L.ToBoolean(-1)
	default:
		return nil
	}
}

// Close releases the Lua state. Handles are not closed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
}

func (e *Engine) registerPrint() {
	L := e.state
	L.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprint(L.ToBoolean(i)))
			case L.IsNumber(i) || L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}
		if _, err := io.WriteString(e.output, strings.Join(parts, "\t")+"\n"); err != nil {
			e.logger.WithError(err).Warn("Failed to write script output")
		}
		return 0
	})
	L.SetGlobal("print")
}

// popError converts the error message on top of the stack.
func (e *Engine) popError(errType, source string) *LuaError {
	L := e.state
	msg := "unknown Lua error"
	if L.GetTop() > 0 && L.IsString(-1) {
		msg = L.ToString(-1)
	}
	L.SetTop(0)
	return parseError(errType, source, msg)
}

var errorLocation = regexp.MustCompile(`(?s)^(.*?):(\d+): (.*)$`)

// parseError splits `chunk:line: message` into its parts.
func parseError(errType, source, msg string) *LuaError {
	luaErr := &LuaError{Type: errType, Message: msg, Source: source}
	if m := errorLocation.FindStringSubmatch(msg); m != nil {
		luaErr.Line, _ = strconv.Atoi(m[2])
		luaErr.Message = m[3]
	}
	return luaErr
}
