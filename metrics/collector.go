// Package metrics provides per-request counters for the compile engine.
//
// The Collector accumulates counters during a single compilation request.
// It is a leaf package with no internal dependencies. All increment methods
// are nil-receiver safe, so call sites never need a nil guard.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Attempt loop
	Attempts    int64
	RerunPasses int64
	BibPasses   int64

	// Remediation
	PackagesInstalled int64
	FontsInstalled    int64
	InstallFailures   int64
	AuxCleanups       int64

	// Process level
	SpawnFailures int64
	Timeouts      int64

	// Terminal outcomes
	Succeeded int64
	Failed    int64

	// Dimensions (informational, set at construction)
	RequestID string
	Engine    string
	Document  string
}

// Collector accumulates counters during a single compilation request.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	attempts    int64
	rerunPasses int64
	bibPasses   int64

	packagesInstalled int64
	fontsInstalled    int64
	installFailures   int64
	auxCleanups       int64

	spawnFailures int64
	timeouts      int64

	succeeded int64
	failed    int64

	requestID string
	engine    string
	document  string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(requestID, engine, document string) *Collector {
	return &Collector{requestID: requestID, engine: engine, document: document}
}

// IncAttempt records one compiler attempt.
func (c *Collector) IncAttempt() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
}

// IncRerunPass records a rerun pass triggered by cross-reference churn.
func (c *Collector) IncRerunPass() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.rerunPasses++
	c.mu.Unlock()
}

// IncBibPass records a bibliography-resolution sub-pass.
func (c *Collector) IncBibPass() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bibPasses++
	c.mu.Unlock()
}

// IncPackageInstalled records a successful package installation.
func (c *Collector) IncPackageInstalled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.packagesInstalled++
	c.mu.Unlock()
}

// IncFontInstalled records a successful font installation.
func (c *Collector) IncFontInstalled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fontsInstalled++
	c.mu.Unlock()
}

// IncInstallFailure records a failed installation attempt.
func (c *Collector) IncInstallFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.installFailures++
	c.mu.Unlock()
}

// IncAuxCleanup records a destructive auxiliary-file cleanup.
func (c *Collector) IncAuxCleanup() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.auxCleanups++
	c.mu.Unlock()
}

// IncSpawnFailure records an executable-not-found spawn failure.
func (c *Collector) IncSpawnFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.spawnFailures++
	c.mu.Unlock()
}

// IncTimeout records a process killed by its wall-clock budget.
func (c *Collector) IncTimeout() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.timeouts++
	c.mu.Unlock()
}

// IncSucceeded records a successful terminal outcome.
func (c *Collector) IncSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.succeeded++
	c.mu.Unlock()
}

// IncFailed records a failed terminal outcome.
func (c *Collector) IncFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

// Snapshot returns an immutable view of all counters.
// Safe to call on a nil Collector (returns the zero Snapshot).
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Attempts:          c.attempts,
		RerunPasses:       c.rerunPasses,
		BibPasses:         c.bibPasses,
		PackagesInstalled: c.packagesInstalled,
		FontsInstalled:    c.fontsInstalled,
		InstallFailures:   c.installFailures,
		AuxCleanups:       c.auxCleanups,
		SpawnFailures:     c.spawnFailures,
		Timeouts:          c.timeouts,
		Succeeded:         c.succeeded,
		Failed:            c.failed,
		RequestID:         c.requestID,
		Engine:            c.engine,
		Document:          c.document,
	}
}
