// Package engine implements compilation orchestration: the bounded
// retry loop around the typesetting engine, dependency self-healing, and
// the per-document single-flight coordinator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/typecraft-io/typeset/classify"
	"github.com/typecraft-io/typeset/installer"
	"github.com/typecraft-io/typeset/iox"
	"github.com/typecraft-io/typeset/journal"
	"github.com/typecraft-io/typeset/log"
	"github.com/typecraft-io/typeset/metrics"
	"github.com/typecraft-io/typeset/progress"
	"github.com/typecraft-io/typeset/texproc"
	"github.com/typecraft-io/typeset/types"
)

// MaxAttempts is the hard ceiling on compiler invocations in the attempt
// loop, regardless of remediation outcomes. Guarantees termination even
// under pathological output.
const MaxAttempts = 5

// PackageInstaller abstracts dependency installation for testing.
type PackageInstaller interface {
	InstallPackage(ctx context.Context, name string) installer.Result
	InstallFallbackFonts(ctx context.Context) installer.Result
}

// InstallerFactory creates a PackageInstaller for one request.
// Used for test injection; nil uses installer.New.
type InstallerFactory func(runner texproc.Runner, engine types.Engine, logger *log.Logger) PackageInstaller

// Config configures one compilation request's orchestration.
type Config struct {
	// Runner runs external processes. Nil uses texproc.ExecRunner.
	Runner texproc.Runner
	// InstallerFactory overrides installer creation (for testing).
	InstallerFactory InstallerFactory
	// Progress receives stage events. Nil discards them.
	Progress *progress.Broadcaster
	// Journal persists events and the outcome. Nil disables journaling.
	Journal *journal.Writer
	// Collector records per-request counters. Nil disables metrics.
	Collector *metrics.Collector
	// Logger is the request logger. Nil uses a nop logger.
	Logger *log.Logger
	// RequestID is the correlation id. Empty generates a UUID.
	RequestID string
	// CompileTimeout overrides texproc.CompileTimeout when positive.
	CompileTimeout time.Duration

	// eventGate, when set by the Coordinator, suppresses progress events
	// from requests that have been superseded.
	eventGate func() bool
}

// attemptState is the orchestrator-internal loop state. Created at the
// start of one request, discarded at its end, never shared.
type attemptState struct {
	n                 int
	remedied          map[string]struct{}
	fontFallbackTried bool
	last              *types.ProcessResult
}

// Orchestrator drives one compilation request end-to-end.
type Orchestrator struct {
	req      *types.CompileRequest
	cfg      Config
	runner   texproc.Runner
	inst     PackageInstaller
	logger   *log.Logger
	eventSeq int64
}

// New creates an orchestrator for one request.
// Returns an error if the request is invalid.
func New(req *types.CompileRequest, cfg Config) (*Orchestrator, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid compile request: %w", err)
	}
	if cfg.RequestID == "" {
		cfg.RequestID = uuid.NewString()
	}
	if cfg.Runner == nil {
		cfg.Runner = texproc.ExecRunner{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	var inst PackageInstaller
	if cfg.InstallerFactory != nil {
		inst = cfg.InstallerFactory(cfg.Runner, req.Engine, logger)
	} else {
		inst = installer.New(cfg.Runner, req.Engine, logger)
	}

	return &Orchestrator{
		req:    req,
		cfg:    cfg,
		runner: cfg.Runner,
		inst:   inst,
		logger: logger,
	}, nil
}

// Compile executes the attempt loop and returns the terminal outcome.
//
// Loop per attempt: run the engine, classify its output, then either
// rerun, remediate and rerun, or terminate. Remediable conditions are
// recovered here and never surface to the caller unless remediation
// itself fails or the attempt budget is exhausted.
func (o *Orchestrator) Compile(ctx context.Context) *types.Outcome {
	state := &attemptState{remedied: make(map[string]struct{})}
	logs := newLogBuilder()

	o.logger.Info("starting compilation", map[string]any{
		"document": o.req.DocumentPath,
		"engine":   o.req.Engine.Binary(),
	})

	for n := 1; n <= MaxAttempts; n++ {
		state.n = n
		o.cfg.Collector.IncAttempt()

		res, err := o.runCompilerPass(ctx, logs)
		if err != nil {
			if errors.Is(err, texproc.ErrSpawn) {
				o.cfg.Collector.IncSpawnFailure()
				return o.fail(logs, types.FailSpawn,
					fmt.Sprintf("typesetting toolchain not installed: %v", err))
			}
			if errors.Is(err, context.Canceled) {
				// Caller abort, not a budget expiry.
				return o.fail(logs, types.FailSyntax, "compilation canceled")
			}
			return o.fail(logs, types.FailSyntax, err.Error())
		}
		state.last = res

		if res.TimedOut() {
			o.cfg.Collector.IncTimeout()
			return o.fail(logs, types.FailTimeout,
				fmt.Sprintf("%s exceeded the %s compile budget", o.req.Engine.Binary(), o.compileTimeout()))
		}

		if res.Ok() {
			c := classify.Classify(res.Combined(), state.remedied)
			if c.Kind == types.ClassNeedsRerun && n < MaxAttempts {
				o.cfg.Collector.IncRerunPass()
				o.logger.Debug("rerun needed", map[string]any{"attempt": n})
				continue
			}
			return o.postProcess(ctx, logs)
		}

		c := classify.ClassifyFailure(res.Combined(), state.remedied)
		o.logger.Info("attempt failed", map[string]any{
			"attempt":        n,
			"classification": string(c.Kind),
			"name":           c.Name,
			"actionable":     c.Actionable,
		})

		outcome, retry := o.remediate(ctx, state, c, logs)
		if !retry {
			return outcome
		}
	}

	return o.fail(logs, types.FailAttemptsExhausted,
		fmt.Sprintf("gave up after %d attempts", MaxAttempts))
}

// remediate decides the next action for a failed attempt. Returns either
// a terminal outcome (retry=false) or retry=true to loop.
func (o *Orchestrator) remediate(ctx context.Context, state *attemptState, c types.Classification, logs *logBuilder) (*types.Outcome, bool) {
	switch c.Kind {
	case types.ClassCitationCorruption:
		// Cleanup deletes auxiliary state, so only the first attempt
		// is eligible; a repeat signal after cleanup is terminal.
		if state.n != 1 {
			return o.fail(logs, types.FailSyntax, "citation state corrupted after cleanup"), false
		}
		o.emit(types.StageCleaning, "cleaning corrupted auxiliary files...")
		removed := iox.RemoveQuiet(o.req.AuxPaths()...)
		o.cfg.Collector.IncAuxCleanup()
		o.logger.Info("cleaned auxiliary files", map[string]any{"removed": removed})
		return nil, true

	case types.ClassMissingFont:
		if c.Name != "" {
			if !c.Actionable {
				return o.fail(logs, types.FailFontUnresolvable,
					fmt.Sprintf("font %q still missing after installation", c.Name)), false
			}
			o.emit(types.StageFontInstall, fmt.Sprintf("installing font %s...", c.Name))
			res := o.inst.InstallPackage(ctx, c.Name)
			if !res.OK {
				o.cfg.Collector.IncInstallFailure()
				return o.fail(logs, types.FailFontUnresolvable, res.Message), false
			}
			state.remedied[c.Name] = struct{}{}
			o.cfg.Collector.IncFontInstalled()
			o.emit(types.StageRetry, "retrying compilation...")
			return nil, true
		}

		if state.fontFallbackTried {
			return o.fail(logs, types.FailFontUnresolvable,
				"font errors persist after installing fallback fonts"), false
		}
		state.fontFallbackTried = true
		o.emit(types.StageFontInstall, "installing fallback fonts...")
		res := o.inst.InstallFallbackFonts(ctx)
		if !res.OK {
			o.cfg.Collector.IncInstallFailure()
			return o.fail(logs, types.FailFontUnresolvable, res.Message), false
		}
		o.cfg.Collector.IncFontInstalled()
		o.emit(types.StageRetry, "retrying compilation...")
		return nil, true

	case types.ClassMissingPackage:
		if !c.Actionable {
			return o.fail(logs, types.FailPackageUnresolvable,
				fmt.Sprintf("package %q still missing after installation", c.Name)), false
		}
		o.emit(types.StagePkgInstall, fmt.Sprintf("installing package %s...", c.Name))
		res := o.inst.InstallPackage(ctx, c.Name)
		if !res.OK {
			o.cfg.Collector.IncInstallFailure()
			return o.fail(logs, types.FailPackageUnresolvable, res.Message), false
		}
		state.remedied[c.Name] = struct{}{}
		o.cfg.Collector.IncPackageInstalled()
		o.emit(types.StageRetry, "retrying compilation...")
		return nil, true

	default:
		return o.fail(logs, types.FailSyntax, errorLine(state.last.Combined())), false
	}
}

// runCompilerPass runs one engine pass and appends its output to logs.
func (o *Orchestrator) runCompilerPass(ctx context.Context, logs *logBuilder) (*types.ProcessResult, error) {
	res, err := o.runner.Run(ctx, texproc.Spec{
		Path: o.req.Engine.Binary(),
		Args: []string{
			"-interaction=nonstopmode",
			"-halt-on-error",
			"-synctex=1",
			"-output-directory=" + o.req.Dir(),
			o.req.DocumentPath,
		},
		Dir:     o.req.Dir(),
		Timeout: o.compileTimeout(),
	})
	if err != nil {
		return nil, err
	}
	logs.add(o.req.Engine.Binary(), res.Combined())
	return res, nil
}

// compileTimeout returns the effective per-pass budget.
func (o *Orchestrator) compileTimeout() time.Duration {
	if o.cfg.CompileTimeout > 0 {
		return o.cfg.CompileTimeout
	}
	return texproc.CompileTimeout
}

// emit dispatches a progress event to the broadcaster and the journal.
// Events from superseded requests are gated out.
func (o *Orchestrator) emit(stage types.ProgressStage, message string) {
	if o.cfg.eventGate != nil && !o.cfg.eventGate() {
		return
	}
	o.eventSeq++
	event := types.ProgressEvent{
		RequestID: o.cfg.RequestID,
		Seq:       o.eventSeq,
		Stage:     stage,
		Message:   message,
		Ts:        time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := o.cfg.Journal.WriteEvent(event); err != nil {
		o.logger.Warn("journal write failed", map[string]any{"error": err.Error()})
	}
	if o.cfg.Progress != nil {
		o.cfg.Progress.Emit(event)
	}
}

// fail builds a terminal failure outcome with the full combined log
// attached. Heuristic classification is incomplete by nature, so the raw
// compiler output is always surfaced on failure.
func (o *Orchestrator) fail(logs *logBuilder, reason types.FailureReason, details string) *types.Outcome {
	o.cfg.Collector.IncFailed()
	outcome := &types.Outcome{
		Success: false,
		Log:     logs.String(),
		Reason:  reason,
		Details: details,
	}
	if err := o.cfg.Journal.WriteOutcome(outcome); err != nil {
		o.logger.Warn("journal write failed", map[string]any{"error": err.Error()})
	}
	o.logger.Error("compilation failed", map[string]any{
		"reason":  string(reason),
		"details": details,
	})
	return outcome
}

// succeed reads the artifact back and builds the success outcome.
// A zero exit code is not trusted on its own: the artifact must exist.
func (o *Orchestrator) succeed(logs *logBuilder) *types.Outcome {
	pdf, err := os.ReadFile(o.req.ArtifactPath())
	if err != nil {
		return o.fail(logs, types.FailArtifactMissing,
			fmt.Sprintf("compilation reported success but artifact missing: %s", o.req.ArtifactPath()))
	}

	o.cfg.Collector.IncSucceeded()
	outcome := &types.Outcome{
		Success: true,
		PDF:     pdf,
		Log:     logs.String(),
	}
	if err := o.cfg.Journal.WriteOutcome(outcome); err != nil {
		o.logger.Warn("journal write failed", map[string]any{"error": err.Error()})
	}
	o.logger.Info("compilation succeeded", map[string]any{
		"artifact": o.req.ArtifactPath(),
		"bytes":    len(pdf),
	})
	return outcome
}

// errorLine extracts the native error message from engine output: the
// first line starting with "! ", or a generic fallback.
func errorLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if len(line) > 2 && line[0] == '!' && line[1] == ' ' {
			return strings.TrimSpace(line)
		}
	}
	return "compilation failed"
}
