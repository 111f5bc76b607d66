package cmd

import (
	"context"
	"os/exec"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/typecraft-io/typeset/cli/render"
	"github.com/typecraft-io/typeset/installer"
	"github.com/typecraft-io/typeset/log"
	"github.com/typecraft-io/typeset/texproc"
	"github.com/typecraft-io/typeset/types"
)

// doctorProbeTimeout bounds the distribution version probe.
const doctorProbeTimeout = 15 * time.Second

// DoctorCommand returns the doctor command. It inspects the local
// typesetting toolchain without compiling anything.
func DoctorCommand() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check the local TeX toolchain",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "engine",
				Usage: "Compiler engine to check (default pdflatex)",
			},
		}, SharedFlags()...),
		Action: doctorAction,
	}
}

func doctorAction(c *cli.Context) error {
	r, err := newRenderer(c)
	if err != nil {
		return err
	}

	eng := types.EnginePDFTeX
	if s := c.String("engine"); s != "" {
		eng, err = types.ParseEngine(s)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorProbeTimeout)
	defer cancel()

	inst := installer.New(texproc.ExecRunner{}, eng, log.Nop())
	distro := inst.Detect(ctx)

	report := &render.DoctorReport{
		Engine:       eng.Binary(),
		Distribution: string(distro),
		Binaries:     probeBinaries(eng),
	}
	if err := r.Doctor(report); err != nil {
		return err
	}

	// A missing engine binary means no compile can succeed.
	if report.Binaries[eng.Binary()] != "ok" {
		return cli.Exit("", exitToolchainBroken)
	}
	return nil
}

// probeBinaries checks PATH for the binaries a full compile may invoke.
func probeBinaries(eng types.Engine) map[string]string {
	names := []string{eng.Binary(), "bibtex", "tlmgr", "mpm"}
	out := make(map[string]string, len(names))
	for _, name := range names {
		if _, err := exec.LookPath(name); err == nil {
			out[name] = "ok"
		} else {
			out[name] = "missing"
		}
	}
	return out
}
