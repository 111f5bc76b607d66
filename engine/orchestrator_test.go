package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/typecraft-io/typeset/installer"
	"github.com/typecraft-io/typeset/log"
	"github.com/typecraft-io/typeset/metrics"
	"github.com/typecraft-io/typeset/progress"
	"github.com/typecraft-io/typeset/texproc"
	"github.com/typecraft-io/typeset/types"
)

// scriptedRunner dispatches each invocation to a closure and records the
// call sequence.
type scriptedRunner struct {
	mu    sync.Mutex
	fn    func(call int, spec texproc.Spec) (*types.ProcessResult, error)
	calls []texproc.Spec
}

func (r *scriptedRunner) Run(_ context.Context, spec texproc.Spec) (*types.ProcessResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, spec)
	call := len(r.calls)
	r.mu.Unlock()
	return r.fn(call, spec)
}

func (r *scriptedRunner) compilerCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if strings.HasSuffix(c.Path, "latex") {
			n++
		}
	}
	return n
}

// mockInstaller records installation requests with scripted results.
type mockInstaller struct {
	mu        sync.Mutex
	installed []string
	fallbacks int
	failMsg   string // non-empty makes every install fail
}

func (m *mockInstaller) InstallPackage(_ context.Context, name string) installer.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMsg != "" {
		return installer.Result{Message: m.failMsg}
	}
	m.installed = append(m.installed, name)
	return installer.Result{OK: true, Message: "installed " + name}
}

func (m *mockInstaller) InstallFallbackFonts(_ context.Context) installer.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks++
	if m.failMsg != "" {
		return installer.Result{Message: m.failMsg}
	}
	return installer.Result{OK: true, Message: "installed fallback fonts"}
}

func (m *mockInstaller) installCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.installed {
		if got == name {
			n++
		}
	}
	return n
}

func (m *mockInstaller) factory() InstallerFactory {
	return func(texproc.Runner, types.Engine, *log.Logger) PackageInstaller { return m }
}

func exitRes(code int, output string) (*types.ProcessResult, error) {
	return &types.ProcessResult{Stdout: output, ExitCode: &code}, nil
}

func newTestDoc(t *testing.T) *types.CompileRequest {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.tex")
	src := "\\documentclass{article}\n\\begin{document}\nhello\n\\end{document}\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return &types.CompileRequest{DocumentPath: path, Engine: types.EnginePDFTeX}
}

func writeArtifact(t *testing.T, req *types.CompileRequest) []byte {
	t.Helper()
	pdf := []byte("%PDF-1.5 test artifact")
	if err := os.WriteFile(req.ArtifactPath(), pdf, 0o644); err != nil {
		t.Fatal(err)
	}
	return pdf
}

func collectEvents(b *progress.Broadcaster) *[]types.ProgressEvent {
	var mu sync.Mutex
	events := &[]types.ProgressEvent{}
	b.Subscribe(func(e types.ProgressEvent) {
		mu.Lock()
		*events = append(*events, e)
		mu.Unlock()
	})
	return events
}

func stages(events []types.ProgressEvent) []types.ProgressStage {
	out := make([]types.ProgressStage, len(events))
	for i, e := range events {
		out[i] = e.Stage
	}
	return out
}

func compileWith(t *testing.T, req *types.CompileRequest, cfg Config) *types.Outcome {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	orch, err := New(req, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch.Compile(context.Background())
}

func TestCleanCompile(t *testing.T) {
	req := newTestDoc(t)
	pdf := writeArtifact(t, req)

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return exitRes(0, "Output written on main.pdf (1 page).")
	}}
	inst := &mockInstaller{}
	b := progress.NewBroadcaster()
	events := collectEvents(b)

	outcome := compileWith(t, req, Config{
		Runner:           runner,
		InstallerFactory: inst.factory(),
		Progress:         b,
	})

	if !outcome.Success {
		t.Fatalf("outcome = %+v", outcome)
	}
	if string(outcome.PDF) != string(pdf) {
		t.Error("artifact bytes not returned")
	}
	if got := runner.compilerCalls(); got != 1 {
		t.Errorf("compiler invocations = %d, want 1", got)
	}
	if len(*events) != 0 {
		t.Errorf("clean compile must emit zero stage events, got %v", stages(*events))
	}
}

func TestCompilerArgumentsNonInteractive(t *testing.T) {
	req := newTestDoc(t)
	writeArtifact(t, req)

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return exitRes(0, "ok")
	}}
	compileWith(t, req, Config{Runner: runner, InstallerFactory: (&mockInstaller{}).factory()})

	spec := runner.calls[0]
	if spec.Path != "pdflatex" {
		t.Errorf("path = %q", spec.Path)
	}
	want := []string{
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-synctex=1",
		"-output-directory=" + req.Dir(),
		req.DocumentPath,
	}
	if len(spec.Args) != len(want) {
		t.Fatalf("args = %v", spec.Args)
	}
	for i := range want {
		if spec.Args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, spec.Args[i], want[i])
		}
	}
	if spec.Timeout != texproc.CompileTimeout {
		t.Errorf("timeout = %v", spec.Timeout)
	}
}

func TestMissingPackageAutoResolved(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(call int, _ texproc.Spec) (*types.ProcessResult, error) {
		if call == 1 {
			return exitRes(1, "! LaTeX Error: File `booktabs.sty' not found.")
		}
		writeArtifact(t, req)
		return exitRes(0, "Output written on main.pdf")
	}}
	inst := &mockInstaller{}
	b := progress.NewBroadcaster()
	events := collectEvents(b)

	outcome := compileWith(t, req, Config{
		Runner:           runner,
		InstallerFactory: inst.factory(),
		Progress:         b,
	})

	if !outcome.Success {
		t.Fatalf("outcome = %+v", outcome)
	}
	if got := inst.installCount("booktabs"); got != 1 {
		t.Errorf("booktabs installed %d times, want 1", got)
	}
	got := stages(*events)
	if len(got) != 2 || got[0] != types.StagePkgInstall || got[1] != types.StageRetry {
		t.Errorf("stages = %v, want [package-installation retry]", got)
	}
	if runner.compilerCalls() != 2 {
		t.Errorf("compiler invocations = %d, want 2", runner.compilerCalls())
	}
}

// Remediation for one name happens at most once per request, even when the
// compiler keeps reporting the same missing package.
func TestIdempotentRemediation(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return exitRes(1, "! LaTeX Error: File `foo.sty' not found.")
	}}
	inst := &mockInstaller{}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: inst.factory()})

	if outcome.Success {
		t.Fatal("outcome must be failure")
	}
	if outcome.Reason != types.FailPackageUnresolvable {
		t.Errorf("reason = %q", outcome.Reason)
	}
	if got := inst.installCount("foo"); got != 1 {
		t.Errorf("foo installed %d times, want at most 1", got)
	}
}

// The attempt counter, not just remediation dedup, is the hard ceiling:
// a classifier seeing a fresh missing package every time must still halt.
func TestTerminationUnderFreshNames(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(call int, _ texproc.Spec) (*types.ProcessResult, error) {
		return exitRes(1, fmt.Sprintf("! LaTeX Error: File `pkg%d.sty' not found.", call))
	}}
	inst := &mockInstaller{}
	collector := metrics.NewCollector("req", "pdflatex", req.DocumentPath)

	outcome := compileWith(t, req, Config{
		Runner:           runner,
		InstallerFactory: inst.factory(),
		Collector:        collector,
	})

	if outcome.Success {
		t.Fatal("outcome must be failure")
	}
	if outcome.Reason != types.FailAttemptsExhausted {
		t.Errorf("reason = %q, want attempts_exhausted", outcome.Reason)
	}
	if got := runner.compilerCalls(); got != MaxAttempts {
		t.Errorf("compiler invocations = %d, want %d", got, MaxAttempts)
	}
	if s := collector.Snapshot(); s.Attempts != MaxAttempts {
		t.Errorf("attempts = %d, want %d", s.Attempts, MaxAttempts)
	}
}

// Destructive auxiliary cleanup is eligible on the first attempt only.
func TestCitationCleanupOnlyFirstAttempt(t *testing.T) {
	req := newTestDoc(t)
	for _, aux := range req.AuxPaths() {
		if err := os.WriteFile(aux, []byte("stale"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return exitRes(1, "Runaway argument?\n{Smith2020")
	}}
	collector := metrics.NewCollector("req", "pdflatex", req.DocumentPath)
	b := progress.NewBroadcaster()
	events := collectEvents(b)

	outcome := compileWith(t, req, Config{
		Runner:           runner,
		InstallerFactory: (&mockInstaller{}).factory(),
		Collector:        collector,
		Progress:         b,
	})

	if outcome.Success {
		t.Fatal("outcome must be failure")
	}
	if s := collector.Snapshot(); s.AuxCleanups != 1 {
		t.Errorf("cleanups = %d, want exactly 1", s.AuxCleanups)
	}
	cleaning := 0
	for _, e := range *events {
		if e.Stage == types.StageCleaning {
			cleaning++
		}
	}
	if cleaning != 1 {
		t.Errorf("cleaning events = %d, want 1", cleaning)
	}
	for _, aux := range req.AuxPaths() {
		if _, err := os.Stat(aux); !os.IsNotExist(err) {
			t.Errorf("aux file %s survived cleanup", aux)
		}
	}
	// Second corruption report terminates rather than looping.
	if runner.compilerCalls() != 2 {
		t.Errorf("compiler invocations = %d, want 2", runner.compilerCalls())
	}
}

// Exit code zero is not trusted without the artifact on disk.
func TestArtifactTrustBoundary(t *testing.T) {
	req := newTestDoc(t)
	// No PDF written.

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return exitRes(0, "Output written on main.pdf")
	}}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: (&mockInstaller{}).factory()})

	if outcome.Success {
		t.Fatal("success without artifact must be failure")
	}
	if outcome.Reason != types.FailArtifactMissing {
		t.Errorf("reason = %q, want artifact_missing", outcome.Reason)
	}
}

func TestSpawnFailureDistinguished(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return nil, fmt.Errorf("%w: pdflatex: executable file not found", texproc.ErrSpawn)
	}}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: (&mockInstaller{}).factory()})

	if outcome.Reason != types.FailSpawn {
		t.Errorf("reason = %q, want spawn_failure", outcome.Reason)
	}
	if !strings.Contains(outcome.Details, "toolchain not installed") {
		t.Errorf("details = %q", outcome.Details)
	}
}

// A caller abort mid-pass is not a compiler timeout.
func TestCanceledCompileIsNotTimeout(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return &types.ProcessResult{Stdout: "partial output"}, context.Canceled
	}}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: (&mockInstaller{}).factory()})

	if outcome.Reason == types.FailTimeout {
		t.Fatal("cancellation must not be reported as a timeout")
	}
	if outcome.Reason != types.FailSyntax || outcome.Details != "compilation canceled" {
		t.Errorf("reason = %q, details = %q", outcome.Reason, outcome.Details)
	}
}

func TestTimeoutIsTerminal(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return &types.ProcessResult{Stdout: "partial output"}, nil // nil exit = killed
	}}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: (&mockInstaller{}).factory()})

	if outcome.Reason != types.FailTimeout {
		t.Errorf("reason = %q, want timeout", outcome.Reason)
	}
	if runner.compilerCalls() != 1 {
		t.Errorf("compiler invocations = %d, want 1 (no retry after timeout)", runner.compilerCalls())
	}
}

func TestNeedsRerunLoopsWithoutRemediation(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(call int, _ texproc.Spec) (*types.ProcessResult, error) {
		if call == 1 {
			return exitRes(0, "LaTeX Warning: Rerun to get cross-references right.")
		}
		writeArtifact(t, req)
		return exitRes(0, "Output written on main.pdf")
	}}
	b := progress.NewBroadcaster()
	events := collectEvents(b)

	outcome := compileWith(t, req, Config{
		Runner:           runner,
		InstallerFactory: (&mockInstaller{}).factory(),
		Progress:         b,
	})

	if !outcome.Success {
		t.Fatalf("outcome = %+v", outcome)
	}
	if runner.compilerCalls() != 2 {
		t.Errorf("compiler invocations = %d, want 2", runner.compilerCalls())
	}
	if len(*events) != 0 {
		t.Errorf("rerun must not emit remediation events, got %v", stages(*events))
	}
}

func TestFontInstallWithSpecificName(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(call int, _ texproc.Spec) (*types.ProcessResult, error) {
		if call == 1 {
			return exitRes(1, "! Font `tgtermes' not found.")
		}
		writeArtifact(t, req)
		return exitRes(0, "ok")
	}}
	inst := &mockInstaller{}
	b := progress.NewBroadcaster()
	events := collectEvents(b)

	outcome := compileWith(t, req, Config{
		Runner:           runner,
		InstallerFactory: inst.factory(),
		Progress:         b,
	})

	if !outcome.Success {
		t.Fatalf("outcome = %+v", outcome)
	}
	if inst.installCount("tgtermes") != 1 {
		t.Errorf("tgtermes installs = %d", inst.installCount("tgtermes"))
	}
	got := stages(*events)
	if len(got) != 2 || got[0] != types.StageFontInstall || got[1] != types.StageRetry {
		t.Errorf("stages = %v", got)
	}
}

// The generic fallback font bundle is attempted once per request.
func TestFontFallbackAttemptedOnce(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return exitRes(1, "! Font U/psy/m/n/10=psyr not loadable: Metric (TFM) file not found.")
	}}
	inst := &mockInstaller{}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: inst.factory()})

	if outcome.Success {
		t.Fatal("outcome must be failure")
	}
	if outcome.Reason != types.FailFontUnresolvable {
		t.Errorf("reason = %q", outcome.Reason)
	}
	if inst.fallbacks != 1 {
		t.Errorf("fallback installs = %d, want 1", inst.fallbacks)
	}
}

// Installer failure terminates immediately with the installer's message.
func TestInstallerFailureSurfacesImmediately(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return exitRes(1, "! LaTeX Error: File `siunitx.sty' not found.")
	}}
	inst := &mockInstaller{failMsg: "package manager failed for \"siunitx\""}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: inst.factory()})

	if outcome.Reason != types.FailPackageUnresolvable {
		t.Errorf("reason = %q", outcome.Reason)
	}
	if !strings.Contains(outcome.Details, "siunitx") {
		t.Errorf("details = %q, must carry the dependency name", outcome.Details)
	}
	if runner.compilerCalls() != 1 {
		t.Errorf("compiler invocations = %d, want 1 (no retry after install failure)", runner.compilerCalls())
	}
}

// Unknown distribution: the real installer fails cleanly after its single
// version probe; at most one extra process beyond the failing attempt.
func TestUnresolvableDistribution(t *testing.T) {
	req := newTestDoc(t)

	runner := &scriptedRunner{fn: func(_ int, spec texproc.Spec) (*types.ProcessResult, error) {
		if len(spec.Args) > 0 && spec.Args[0] == "--version" {
			return exitRes(0, "SomeTeX 1.0")
		}
		return exitRes(1, "! LaTeX Error: File `booktabs.sty' not found.")
	}}

	outcome := compileWith(t, req, Config{Runner: runner}) // default installer

	if outcome.Reason != types.FailPackageUnresolvable {
		t.Errorf("reason = %q", outcome.Reason)
	}
	if !strings.Contains(outcome.Details, "not supported") {
		t.Errorf("details = %q", outcome.Details)
	}
	if len(runner.calls) != 2 {
		t.Errorf("process invocations = %d, want 2 (failing attempt + version probe)", len(runner.calls))
	}
}

func TestBibliographyPostProcess(t *testing.T) {
	req := newTestDoc(t)
	aux := req.AuxPaths()[0]
	if err := os.WriteFile(aux, []byte("\\citation{Smith2020}\n\\bibdata{refs}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &scriptedRunner{fn: func(_ int, spec texproc.Spec) (*types.ProcessResult, error) {
		if spec.Path == "bibtex" {
			return exitRes(0, "This is BibTeX")
		}
		writeArtifact(t, req)
		return exitRes(0, "Output written on main.pdf")
	}}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: (&mockInstaller{}).factory()})

	if !outcome.Success {
		t.Fatalf("outcome = %+v", outcome)
	}

	// Exactly: initial compile, bibtex, two stabilization passes.
	var paths []string
	for _, c := range runner.calls {
		paths = append(paths, c.Path)
	}
	want := []string{"pdflatex", "bibtex", "pdflatex", "pdflatex"}
	if len(paths) != len(want) {
		t.Fatalf("invocations = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("invocations = %v, want %v", paths, want)
		}
	}

	// Combined log keeps every sub-pass, delimited, in order.
	for pass, tool := range map[int]string{1: "pdflatex", 2: "bibtex", 3: "pdflatex", 4: "pdflatex"} {
		delim := fmt.Sprintf("=== pass %d: %s ===", pass, tool)
		if !strings.Contains(outcome.Log, delim) {
			t.Errorf("log missing %q", delim)
		}
	}
	if strings.Index(outcome.Log, "=== pass 2: bibtex ===") < strings.Index(outcome.Log, "=== pass 1: pdflatex ===") {
		t.Error("sub-pass logs out of order")
	}
}

func TestNoBibliographySkipsResolver(t *testing.T) {
	req := newTestDoc(t)
	aux := req.AuxPaths()[0]
	if err := os.WriteFile(aux, []byte("\\relax\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		writeArtifact(t, req)
		return exitRes(0, "ok")
	}}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: (&mockInstaller{}).factory()})

	if !outcome.Success {
		t.Fatalf("outcome = %+v", outcome)
	}
	if len(runner.calls) != 1 {
		t.Errorf("invocations = %d, want 1 (no resolver without markers)", len(runner.calls))
	}
}

func TestUnclassifiedFailureCarriesRawLog(t *testing.T) {
	req := newTestDoc(t)

	raw := "! Undefined control sequence.\nl.5 \\frobnicate"
	runner := &scriptedRunner{fn: func(int, texproc.Spec) (*types.ProcessResult, error) {
		return exitRes(1, raw)
	}}

	outcome := compileWith(t, req, Config{Runner: runner, InstallerFactory: (&mockInstaller{}).factory()})

	if outcome.Reason != types.FailSyntax {
		t.Errorf("reason = %q", outcome.Reason)
	}
	if !strings.Contains(outcome.Log, raw) {
		t.Error("raw compiler output must always be attached on failure")
	}
	if outcome.Details != "! Undefined control sequence." {
		t.Errorf("details = %q, want the native error line", outcome.Details)
	}
}
