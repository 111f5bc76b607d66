// Package cmd provides CLI commands for the typeset binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/typecraft-io/typeset/cli/render"
)

// Shared flags available on every command.
var (
	// FormatFlag selects output format: json, text, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, text, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// ConfigFlag points at the YAML config file. When absent the implicit
	// typeset.yaml in the working directory is tried.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./typeset.yaml if present)",
	}
)

// SharedFlags returns the flags common to all commands.
func SharedFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// newRenderer builds a renderer from the shared flags.
func newRenderer(c *cli.Context) (*render.Renderer, error) {
	format, err := render.ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	return render.New(render.DefaultFormat(format), c.Bool("no-color")), nil
}
