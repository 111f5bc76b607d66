package types

// ProcessResult is the captured result of one external process invocation.
// Ephemeral; produced once per runner call and never persisted.
type ProcessResult struct {
	// Stdout is the captured standard output.
	Stdout string
	// Stderr is the captured standard error.
	Stderr string
	// ExitCode is the process exit status. Nil when the process was
	// killed by the timeout and never reported a status.
	ExitCode *int
}

// Ok reports whether the process exited with status zero.
func (p *ProcessResult) Ok() bool {
	return p.ExitCode != nil && *p.ExitCode == 0
}

// TimedOut reports whether the process was killed before exiting.
func (p *ProcessResult) TimedOut() bool { return p.ExitCode == nil }

// Combined returns stdout followed by stderr, for classification and logs.
// TeX engines write diagnostics to stdout; stderr carries spawn-level noise.
func (p *ProcessResult) Combined() string {
	if p.Stderr == "" {
		return p.Stdout
	}
	if p.Stdout == "" {
		return p.Stderr
	}
	return p.Stdout + "\n" + p.Stderr
}
