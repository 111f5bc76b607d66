// Package main provides the typeset CLI entrypoint.
//
// Usage:
//
//	typeset <command> [options]
//
// Exit codes for `compile`:
//   - 0: success (PDF produced)
//   - 1: compiler failure (syntax error, timeout, attempts exhausted)
//   - 2: toolchain not installed or unusable
//   - 3: missing package or font that could not be auto-installed
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/typecraft-io/typeset/cli/cmd"
	"github.com/typecraft-io/typeset/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "typeset",
		Usage:          "LaTeX compilation engine with automatic dependency repair",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.CompileCommand(),
			cmd.DoctorCommand(),
			cmd.JournalCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit() so the compile
// command's outcome codes reach the caller intact.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
