package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/typecraft-io/typeset/cli/render"
	"github.com/typecraft-io/typeset/types"
)

// VersionCommand returns the version command. It never touches the
// toolchain.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  SharedFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := newRenderer(c)
		if err != nil {
			return err
		}
		return r.Version(&render.VersionReport{
			Version: types.Version,
			Commit:  commit,
		})
	}
}
