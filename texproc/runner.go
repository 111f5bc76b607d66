// Package texproc runs external toolchain processes with bounded capture
// and wall-clock timeouts.
//
// Processes are spawned directly with an argument vector, never through a
// shell, so user-controlled paths and package names cannot be interpreted.
package texproc

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/typecraft-io/typeset/types"
)

// Wall-clock budgets per invocation kind. Timeouts are the only liveness
// guarantee; a hung tool must never stall the orchestrator.
const (
	// CompileTimeout bounds one typesetting engine pass.
	CompileTimeout = 120 * time.Second
	// InstallTimeout bounds package-manager and font operations.
	InstallTimeout = 60 * time.Second
	// BibTimeout bounds one bibliography-resolution pass.
	BibTimeout = 60 * time.Second
)

// killGrace bounds how long Wait may keep collecting output after the
// context expires before abandoning the pipes.
const killGrace = 5 * time.Second

// CaptureLimit caps captured output per stream (10 MiB). When a stream
// exceeds the cap, the OLDEST bytes are dropped and the tail is kept:
// TeX engines report errors at the end of the log, so the tail is the
// diagnostically relevant part.
const CaptureLimit = 10 * 1024 * 1024

// ErrSpawn indicates the executable could not be started at all.
// Distinguished from compiler-reported failures so callers can surface
// "toolchain not installed" instead of a misleading compile error.
var ErrSpawn = errors.New("failed to spawn process")

// Spec describes one process invocation.
type Spec struct {
	// Path is the executable to spawn.
	Path string
	// Args is the argument vector (without the executable name).
	Args []string
	// Dir is the working directory.
	Dir string
	// Timeout is the wall-clock budget. Zero means no timeout; every
	// production call site passes one of the package constants.
	Timeout time.Duration
}

// Runner abstracts process invocation for testing.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*types.ProcessResult, error)
}

// ExecRunner runs processes via os/exec.
type ExecRunner struct{}

// Run spawns the process and blocks until exit or timeout.
//
// Non-zero exit is reported in the result, not as an error; callers must
// branch on exit status explicitly. A nil ExitCode in the result means the
// process was killed by the timeout. The error returns are spawn failures
// (wrapped ErrSpawn), caller cancellation (context.Canceled), and
// wait-level anomalies.
func (ExecRunner) Run(ctx context.Context, spec Spec) (*types.ProcessResult, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir

	// The tool runs in its own process group and the context kill targets
	// the whole group: TeX engines and package managers spawn helpers,
	// and killing only the direct child would leave descendants holding
	// the output pipes, blocking Wait past the budget. WaitDelay bounds
	// the pipe drain for anything the group kill still missed.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killGrace

	stdout := newTailBuffer(CaptureLimit)
	stderr := newTailBuffer(CaptureLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, spec.Path, err)
	}

	waitErr := cmd.Wait()

	result := &types.ProcessResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	// A dead context is either the wall-clock budget or the caller
	// aborting; only the former is the timeout result shape.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return result, nil
		}
		return result, ctxErr
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code := exitErr.ExitCode()
			result.ExitCode = &code
			return result, nil
		}
		return nil, fmt.Errorf("wait failed for %s: %w", spec.Path, waitErr)
	}

	zero := 0
	result.ExitCode = &zero
	return result, nil
}
