package cmd

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/typecraft-io/typeset/metrics"
	"github.com/typecraft-io/typeset/types"
)

// chdir changes into dir for the duration of the test, restoring the
// previous working directory on cleanup (equivalent to t.Chdir).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}

func snapshotWith(attempts, packages, fonts int64) metrics.Snapshot {
	return metrics.Snapshot{
		Attempts:          attempts,
		PackagesInstalled: packages,
		FontsInstalled:    fonts,
	}
}

func TestReasonToExitCode(t *testing.T) {
	tests := []struct {
		name    string
		outcome *types.Outcome
		want    int
	}{
		{"success", &types.Outcome{Success: true}, exitSuccess},
		{"syntax error", &types.Outcome{Reason: types.FailSyntax}, exitCompileFailed},
		{"timeout", &types.Outcome{Reason: types.FailTimeout}, exitCompileFailed},
		{"attempts exhausted", &types.Outcome{Reason: types.FailAttemptsExhausted}, exitCompileFailed},
		{"artifact missing", &types.Outcome{Reason: types.FailArtifactMissing}, exitCompileFailed},
		{"spawn failure", &types.Outcome{Reason: types.FailSpawn}, exitToolchainBroken},
		{"package unresolvable", &types.Outcome{Reason: types.FailPackageUnresolvable}, exitUnresolvableDep},
		{"font unresolvable", &types.Outcome{Reason: types.FailFontUnresolvable}, exitUnresolvableDep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reasonToExitCode(tt.outcome); got != tt.want {
				t.Errorf("reasonToExitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

// testContext builds a cli.Context carrying the compile command's flags.
func testContext(t *testing.T, args map[string]string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("config", "", "")
	set.String("engine", "", "")
	set.String("journal-dir", "", "")
	set.Duration("timeout", 0, "")
	for name, value := range args {
		if err := set.Set(name, value); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
	return cli.NewContext(nil, set, nil)
}

func TestResolveChoiceDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	choice, err := resolveChoice(testContext(t, nil))
	if err != nil {
		t.Fatalf("resolveChoice: %v", err)
	}
	if choice.engine != types.EnginePDFTeX {
		t.Errorf("default engine = %v", choice.engine)
	}
	if choice.journalDir != "" || choice.timeout != 0 {
		t.Errorf("unexpected defaults: %+v", choice)
	}
}

func TestResolveChoiceFlagsWinOverConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "typeset.yaml")
	content := "engine: xelatex\njournal_dir: /from/config\ncompile_timeout: 30s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	choice, err := resolveChoice(testContext(t, map[string]string{
		"config":  path,
		"engine":  "lualatex",
		"timeout": "45s",
	}))
	if err != nil {
		t.Fatalf("resolveChoice: %v", err)
	}
	if choice.engine != types.EngineLuaTeX {
		t.Errorf("flag engine must win, got %v", choice.engine)
	}
	if choice.timeout != 45*time.Second {
		t.Errorf("flag timeout must win, got %v", choice.timeout)
	}
	if choice.journalDir != "/from/config" {
		t.Errorf("config journal_dir must apply, got %q", choice.journalDir)
	}
}

func TestResolveChoiceImplicitConfig(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile("typeset.yaml", []byte("engine: xelatex\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	choice, err := resolveChoice(testContext(t, nil))
	if err != nil {
		t.Fatalf("resolveChoice: %v", err)
	}
	if choice.engine != types.EngineXeTeX {
		t.Errorf("implicit config engine = %v", choice.engine)
	}
}

func TestResolveChoiceInvalidEngine(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := resolveChoice(testContext(t, map[string]string{"engine": "latexmk"})); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestBuildReportSuccess(t *testing.T) {
	req := &types.CompileRequest{DocumentPath: "/docs/paper.tex", Engine: types.EnginePDFTeX}
	outcome := &types.Outcome{Success: true, PDF: []byte("%PDF-1.5")}

	report := buildReport(req, outcome, snapshotWith(2, 1, 0), 1500*time.Millisecond)
	if !report.Success {
		t.Error("report.Success = false")
	}
	if report.Artifact != "/docs/paper.pdf" {
		t.Errorf("artifact = %q", report.Artifact)
	}
	if report.PDFBytes != 8 {
		t.Errorf("pdf bytes = %d", report.PDFBytes)
	}
	if report.Attempts != 2 || report.Installs != 1 {
		t.Errorf("counters: attempts=%d installs=%d", report.Attempts, report.Installs)
	}
	if report.Duration != "1.5s" {
		t.Errorf("duration = %q", report.Duration)
	}
}

func TestBuildReportFailure(t *testing.T) {
	req := &types.CompileRequest{DocumentPath: "/docs/paper.tex", Engine: types.EngineXeTeX}
	outcome := &types.Outcome{Reason: types.FailFontUnresolvable, Details: "JetBrainsMono"}

	report := buildReport(req, outcome, snapshotWith(1, 0, 1), time.Second)
	if report.Success {
		t.Error("report.Success = true")
	}
	if report.Artifact != "" {
		t.Errorf("failure report carries artifact %q", report.Artifact)
	}
	if report.Reason != "font_unresolvable" || report.Details != "JetBrainsMono" {
		t.Errorf("reason=%q details=%q", report.Reason, report.Details)
	}
	if report.Installs != 1 {
		t.Errorf("installs = %d", report.Installs)
	}
}
