// Package installer resolves missing TeX packages and fonts by invoking
// the package manager of the detected toolchain distribution.
package installer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/typecraft-io/typeset/log"
	"github.com/typecraft-io/typeset/texproc"
	"github.com/typecraft-io/typeset/types"
)

// Distro identifies a TeX toolchain distribution.
type Distro string

// Supported distributions.
const (
	DistroTeXLive Distro = "texlive"
	DistroMiKTeX  Distro = "miktex"
	DistroUnknown Distro = "unknown"
)

// FallbackFontPackages is the two-package standard font bundle installed
// when a font error carries no extractable package name.
var FallbackFontPackages = [2]string{"cm-super", "lm"}

// namePattern is the restrictive allowlist for package names. Names are
// extracted from compiler output, which can echo attacker-controlled text
// from a malicious document; anything outside the allowlist never reaches
// a process argument.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidName reports whether name passes the package-name allowlist.
func ValidName(name string) bool {
	return name != "" && namePattern.MatchString(name)
}

// Result is the outcome of one installation attempt.
type Result struct {
	OK      bool
	Message string
}

// Installer installs packages for one compilation request. The detected
// distribution is memoized on the value, so detection runs at most once
// per request; it is deliberately not cached across requests since the
// environment can change between them.
type Installer struct {
	runner   texproc.Runner
	engine   types.Engine
	logger   *log.Logger
	distro   Distro
	detected bool
}

// New creates an Installer bound to one compile request's engine.
func New(runner texproc.Runner, engine types.Engine, logger *log.Logger) *Installer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Installer{runner: runner, engine: engine, logger: logger}
}

// Detect determines the toolchain distribution by querying the primary
// engine binary's version banner. Memoized for the Installer's lifetime.
func (i *Installer) Detect(ctx context.Context) Distro {
	if i.detected {
		return i.distro
	}
	i.detected = true
	i.distro = DistroUnknown

	res, err := i.runner.Run(ctx, texproc.Spec{
		Path:    i.engine.Binary(),
		Args:    []string{"--version"},
		Timeout: texproc.InstallTimeout,
	})
	if err != nil {
		i.logger.Warn("distribution detection failed", map[string]any{"error": err.Error()})
		return i.distro
	}

	banner := res.Combined()
	switch {
	case strings.Contains(banner, "TeX Live"):
		i.distro = DistroTeXLive
	case strings.Contains(banner, "MiKTeX"):
		i.distro = DistroMiKTeX
	}

	i.logger.Info("detected distribution", map[string]any{"distro": string(i.distro)})
	return i.distro
}

// InstallPackage installs a single package by name.
// The name is validated against the allowlist before any process argument
// is constructed. Idempotence across a request is the orchestrator's job
// (via its remediation set), not the installer's.
func (i *Installer) InstallPackage(ctx context.Context, name string) Result {
	if !ValidName(name) {
		return Result{Message: fmt.Sprintf("rejected package name %q: not a valid package name", name)}
	}

	switch i.Detect(ctx) {
	case DistroTeXLive:
		return i.runSteps(ctx, name,
			texproc.Spec{Path: "tlmgr", Args: []string{"install", name}, Timeout: texproc.InstallTimeout},
			texproc.Spec{Path: "mktexlsr", Timeout: texproc.InstallTimeout},
		)
	case DistroMiKTeX:
		return i.runSteps(ctx, name,
			texproc.Spec{Path: "mpm", Args: []string{"--install=" + name}, Timeout: texproc.InstallTimeout},
			texproc.Spec{Path: "initexmf", Args: []string{"--update-fndb"}, Timeout: texproc.InstallTimeout},
		)
	default:
		return Result{Message: fmt.Sprintf(
			"cannot install %q: unknown TeX distribution, automatic installation is not supported", name)}
	}
}

// InstallFallbackFonts installs the standard font bundle as one unit.
func (i *Installer) InstallFallbackFonts(ctx context.Context) Result {
	for _, pkg := range FallbackFontPackages {
		if res := i.InstallPackage(ctx, pkg); !res.OK {
			return res
		}
	}
	return Result{OK: true, Message: fmt.Sprintf("installed fallback fonts %s", strings.Join(FallbackFontPackages[:], ", "))}
}

// runSteps runs the install invocation followed by the file-database
// refresh. The refresh failing is tolerated with a warning: the package
// is on disk and the next compile pass usually finds it anyway.
func (i *Installer) runSteps(ctx context.Context, name string, install, refresh texproc.Spec) Result {
	res, err := i.runner.Run(ctx, install)
	if err != nil {
		return Result{Message: fmt.Sprintf("cannot install %q: %v", name, err)}
	}
	if !res.Ok() {
		return Result{Message: fmt.Sprintf("package manager failed for %q: %s", name, tail(res.Combined(), 500))}
	}

	if refreshRes, err := i.runner.Run(ctx, refresh); err != nil || !refreshRes.Ok() {
		i.logger.Warn("file database refresh failed", map[string]any{"package": name})
	}

	i.logger.Info("installed package", map[string]any{"package": name})
	return Result{OK: true, Message: fmt.Sprintf("installed %q", name)}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
