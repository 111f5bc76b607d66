// Package types defines core domain types for the typeset compile engine.
//
//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// Engine identifies one of the supported typesetting engine binaries.
type Engine string

// Supported engines. The string value is the binary name resolved on PATH.
const (
	EnginePDFTeX Engine = "pdflatex"
	EngineXeTeX  Engine = "xelatex"
	EngineLuaTeX Engine = "lualatex"
)

// ParseEngine parses an engine name, accepting both the binary name and
// the short family name used in config files and CLI flags.
func ParseEngine(s string) (Engine, error) {
	switch s {
	case "pdflatex", "pdftex", "pdf":
		return EnginePDFTeX, nil
	case "xelatex", "xetex", "xe":
		return EngineXeTeX, nil
	case "lualatex", "luatex", "lua":
		return EngineLuaTeX, nil
	default:
		return "", fmt.Errorf("unknown engine %q (must be pdflatex, xelatex, or lualatex)", s)
	}
}

// Binary returns the executable name for this engine.
func (e Engine) Binary() string { return string(e) }

// Valid reports whether the engine is one of the supported values.
func (e Engine) Valid() bool {
	switch e {
	case EnginePDFTeX, EngineXeTeX, EngineLuaTeX:
		return true
	}
	return false
}
