package kterm

import _ "embed"

// DefaultLoginLuaScript is run by `kterm script` when no file is given.
//
//go:embed examples/login.lua
var DefaultLoginLuaScript string
