package script

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/node"
)

const defaultReadMax = 4096

func (e *Engine) registerTermAPI() {
	L := e.state
	L.NewTable()

	fns := map[string]lua.LuaGoFunction{
		"write":     e.luaWrite,
		"read":      e.luaRead,
		"wait_read": e.luaWaitRead,
		"can_read":  e.luaCanRead,
		"can_write": e.luaCanWrite,
		"size":      e.luaSize,
		"resize":    e.luaResize,
		"peers":     e.luaPeers,
		"close":     e.luaClose,
	}
	for name, fn := range fns {
		L.PushString(name)
		L.PushGoFunction(fn)
		L.SetTable(-3)
	}

	L.SetGlobal("term")
}

// raise reports err to Lua as "<RESULT CODE>: <message>".
func raise(L *lua.State, fn string, err error) int {
	L.RaiseError(fmt.Sprintf("%s: term.%s: %v", kerr.ResultOf(err), fn, err))
	return 0
}

// sideArg resolves argument i to a bound handle.
func (e *Engine) sideArg(L *lua.State, fn string, i int) *node.Handle {
	if L.Type(i) != lua.LUA_TSTRING {
		L.RaiseError(fmt.Sprintf("term.%s: argument %d must be \"master\" or \"slave\"", fn, i))
		return nil
	}

	var side node.Side
	switch s := L.ToString(i); s {
	case "master":
		side = node.Master
	case "slave":
		side = node.Slave
	default:
		L.RaiseError(fmt.Sprintf("term.%s: unknown side %q", fn, s))
		return nil
	}

	h := e.handles[side]
	if h == nil {
		L.RaiseError(fmt.Sprintf("term.%s: no %s handle bound", fn, side))
		return nil
	}
	return h
}

func intArg(L *lua.State, fn string, i int) int {
	if !L.IsNumber(i) {
		L.RaiseError(fmt.Sprintf("term.%s: argument %d must be a number", fn, i))
		return 0
	}
	return L.ToInteger(i)
}

// int32Arg is intArg for values the node stores as int32. Out-of-range
// numbers are refused rather than truncated.
func int32Arg(L *lua.State, fn string, i int) int32 {
	v := intArg(L, fn, i)
	if v < math.MinInt32 || v > math.MaxInt32 {
		raise(L, fn, fmt.Errorf("%w: argument %d out of range: %d", kerr.ErrInvalidArgument, i, v))
		return 0
	}
	return int32(v)
}

func (e *Engine) luaWrite(L *lua.State) int {
	h := e.sideArg(L, "write", 1)
	if L.Type(2) != lua.LUA_TSTRING {
		L.RaiseError("term.write: argument 2 must be a string")
		return 0
	}

	n, err := h.TryWrite([]byte(L.ToString(2)))
	if err != nil {
		return raise(L, "write", err)
	}
	L.PushInteger(int64(n))
	return 1
}

func (e *Engine) luaRead(L *lua.State) int {
	h := e.sideArg(L, "read", 1)
	max := defaultReadMax
	if L.GetTop() >= 2 {
		max = intArg(L, "read", 2)
	}
	if max < 0 {
		return raise(L, "read", kerr.ErrInvalidArgument)
	}

	buf := make([]byte, max)
	n, err := h.TryRead(buf)
	if err != nil {
		return raise(L, "read", err)
	}
	L.PushString(string(buf[:n]))
	return 1
}

func (e *Engine) luaWaitRead(L *lua.State) int {
	h := e.sideArg(L, "wait_read", 1)
	ms := intArg(L, "wait_read", 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(ms)*time.Millisecond)
	defer cancel()

	err := h.WaitReadable(ctx)
	switch {
	case err == nil:
		L.PushBoolean(true)
	case ctx.Err() != nil:
		L.PushBoolean(false)
	default:
		return raise(L, "wait_read", err)
	}
	return 1
}

func (e *Engine) luaCanRead(L *lua.State) int {
	L.PushBoolean(e.sideArg(L, "can_read", 1).CanRead())
	return 1
}

func (e *Engine) luaCanWrite(L *lua.State) int {
	L.PushBoolean(e.sideArg(L, "can_write", 1).CanWrite())
	return 1
}

// anyHandle returns a live handle for node-wide calls, master first.
func (e *Engine) anyHandle(L *lua.State, fn string) *node.Handle {
	for _, side := range []node.Side{node.Master, node.Slave} {
		if h := e.handles[side]; h != nil && !h.Closed() {
			return h
		}
	}
	L.RaiseError(fmt.Sprintf("%s: term.%s: no open handle", kerr.BadHandle, fn))
	return nil
}

func (e *Engine) luaSize(L *lua.State) int {
	size, err := e.anyHandle(L, "size").GetSize()
	if err != nil {
		return raise(L, "size", err)
	}
	L.PushInteger(int64(size.Width))
	L.PushInteger(int64(size.Height))
	return 2
}

func (e *Engine) luaResize(L *lua.State) int {
	h := e.anyHandle(L, "resize")
	width := int32Arg(L, "resize", 1)
	height := int32Arg(L, "resize", 2)

	if err := h.SetSize(width, height); err != nil {
		return raise(L, "resize", err)
	}
	return 0
}

func (e *Engine) luaPeers(L *lua.State) int {
	var h *node.Handle
	for _, side := range []node.Side{node.Master, node.Slave} {
		if e.handles[side] != nil {
			h = e.handles[side]
			break
		}
	}
	if h == nil {
		L.RaiseError("term.peers: no handle bound")
		return 0
	}

	peers := h.Node().Peers()
	L.NewTable()
	L.PushInteger(int64(peers.Readers))
	L.SetField(-2, "readers")
	L.PushInteger(int64(peers.Writers))
	L.SetField(-2, "writers")
	L.PushBoolean(peers.MasterOpen)
	L.SetField(-2, "master_open")
	L.PushInteger(int64(peers.Slaves))
	L.SetField(-2, "slaves")
	return 1
}

func (e *Engine) luaClose(L *lua.State) int {
	h := e.sideArg(L, "close", 1)
	if err := h.Close(); err != nil {
		return raise(L, "close", err)
	}
	return 0
}
