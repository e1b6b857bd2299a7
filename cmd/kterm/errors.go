package main

import (
	"errors"
	"fmt"

	"github.com/srg/kterm/internal/hostpty"
	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/script"
)

// FormatUserError turns an error chain into a one-line message with a hint
// for the common failure modes.
func FormatUserError(err error) string {
	var luaErr *script.LuaError
	if errors.As(err, &luaErr) {
		return luaErr.Error()
	}
	if errors.Is(err, hostpty.ErrNoPTY) {
		return fmt.Sprintf("%v (is /dev/ptmx accessible?)", err)
	}

	switch kerr.ResultOf(err) {
	case kerr.StreamClosed:
		return fmt.Sprintf("%v (the other side of the terminal is gone)", err)
	case kerr.InvalidArgument:
		return fmt.Sprintf("%v (check sizes and geometry; they must not be negative)", err)
	case kerr.InappropriateCallForDevice:
		return fmt.Sprintf("%v (the node does not support this request)", err)
	case kerr.NotFound, kerr.Exists, kerr.BadHandle, kerr.AccessDenied, kerr.Destroyed:
		return fmt.Sprintf("%v [%s]", err, kerr.ResultOf(err))
	default:
		return err.Error()
	}
}
