package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/typecraft-io/typeset/cli/config"
	"github.com/typecraft-io/typeset/cli/render"
	"github.com/typecraft-io/typeset/engine"
	"github.com/typecraft-io/typeset/metrics"
	"github.com/typecraft-io/typeset/progress"
	"github.com/typecraft-io/typeset/types"
)

// Exit codes for compile.
const (
	exitSuccess         = 0
	exitCompileFailed   = 1
	exitToolchainBroken = 2
	exitUnresolvableDep = 3
)

// CompileCommand returns the compile command, the only command that
// executes work.
func CompileCommand() *cli.Command {
	return &cli.Command{
		Name:  "compile",
		Usage: "Compile a LaTeX document to PDF",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Path to the root .tex document",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "engine",
				Usage: "Compiler engine: pdflatex, xelatex, lualatex",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Copy the produced PDF to this path",
			},
			&cli.StringFlag{
				Name:  "journal-dir",
				Usage: "Directory for per-request event journals",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-pass compile timeout (default 120s)",
			},
			&cli.BoolFlag{
				Name:  "log",
				Usage: "Print the full compiler log to stderr on failure",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the result report",
			},
			ConfigFlag,
		}, SharedFlags()...),
		Action: compileAction,
	}
}

// compileChoice holds the merged flag and config file settings.
// Flags win over the config file.
type compileChoice struct {
	engine     types.Engine
	journalDir string
	timeout    time.Duration
}

func resolveChoice(c *cli.Context) (compileChoice, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOptional("typeset.yaml")
	}
	if err != nil {
		return compileChoice{}, err
	}

	choice := compileChoice{
		journalDir: cfg.JournalDir,
		timeout:    cfg.CompileTimeout.Duration,
	}

	if s := c.String("engine"); s != "" {
		choice.engine, err = types.ParseEngine(s)
	} else {
		choice.engine, err = cfg.ResolveEngine()
	}
	if err != nil {
		return compileChoice{}, err
	}

	if dir := c.String("journal-dir"); dir != "" {
		choice.journalDir = dir
	}
	if d := c.Duration("timeout"); d > 0 {
		choice.timeout = d
	}
	return choice, nil
}

func compileAction(c *cli.Context) error {
	r, err := newRenderer(c)
	if err != nil {
		return err
	}

	choice, err := resolveChoice(c)
	if err != nil {
		return cli.Exit(err.Error(), exitToolchainBroken)
	}

	req := &types.CompileRequest{
		DocumentPath: c.String("file"),
		Engine:       choice.engine,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	broadcaster := progress.NewBroadcaster()
	defer broadcaster.Close()
	unsubscribe := broadcaster.Subscribe(func(ev types.ProgressEvent) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Stage, ev.Message)
	})
	defer unsubscribe()

	var snapshot metrics.Snapshot
	coordinator := engine.NewCoordinator(engine.CoordinatorConfig{
		Progress:       broadcaster,
		JournalDir:     choice.journalDir,
		CompileTimeout: choice.timeout,
		OnMetrics:      func(s metrics.Snapshot) { snapshot = s },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	start := time.Now()
	outcome, err := coordinator.Compile(ctx, req)
	if err != nil {
		if errors.Is(err, engine.ErrSuperseded) {
			// One-shot CLI has no concurrent requests; treat as a bug.
			return cli.Exit("internal: request superseded", exitCompileFailed)
		}
		return err
	}
	duration := time.Since(start)

	if outcome.Success {
		if out := c.String("out"); out != "" {
			if err := os.WriteFile(out, outcome.PDF, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
		}
	} else if c.Bool("log") && outcome.Log != "" {
		fmt.Fprintln(os.Stderr, outcome.Log)
	}

	if !c.Bool("quiet") {
		report := buildReport(req, outcome, snapshot, duration)
		if err := r.Compile(report); err != nil {
			return err
		}
	}

	return cli.Exit("", reasonToExitCode(outcome))
}

func buildReport(req *types.CompileRequest, outcome *types.Outcome, snap metrics.Snapshot, duration time.Duration) *render.CompileReport {
	report := &render.CompileReport{
		Success:  outcome.Success,
		Document: req.DocumentPath,
		Engine:   req.Engine.Binary(),
		Reason:   string(outcome.Reason),
		Details:  outcome.Details,
		Attempts: snap.Attempts,
		Installs: snap.PackagesInstalled + snap.FontsInstalled,
		Duration: duration.Round(time.Millisecond).String(),
	}
	if outcome.Success {
		report.Artifact = filepath.Clean(req.ArtifactPath())
		report.PDFBytes = len(outcome.PDF)
	}
	return report
}

func reasonToExitCode(outcome *types.Outcome) int {
	if outcome.Success {
		return exitSuccess
	}
	switch outcome.Reason {
	case types.FailSpawn:
		return exitToolchainBroken
	case types.FailPackageUnresolvable, types.FailFontUnresolvable:
		return exitUnresolvableDep
	default:
		return exitCompileFailed
	}
}
