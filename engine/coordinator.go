package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/typecraft-io/typeset/journal"
	"github.com/typecraft-io/typeset/log"
	"github.com/typecraft-io/typeset/metrics"
	"github.com/typecraft-io/typeset/progress"
	"github.com/typecraft-io/typeset/texproc"
	"github.com/typecraft-io/typeset/types"
)

// ErrSuperseded is returned when a newer compile request for the same
// document replaced this one before it delivered its outcome.
var ErrSuperseded = errors.New("compile request superseded by a newer request for the same document")

// CoordinatorConfig configures the shared coordinator.
type CoordinatorConfig struct {
	// Runner runs external processes. Nil uses texproc.ExecRunner.
	Runner texproc.Runner
	// InstallerFactory overrides installer creation (for testing).
	InstallerFactory InstallerFactory
	// Progress receives stage events from all requests. Nil discards.
	Progress *progress.Broadcaster
	// JournalDir enables per-request journaling when non-empty.
	JournalDir string
	// CompileTimeout overrides the per-pass compile budget when positive.
	CompileTimeout time.Duration
	// NewLogger creates the per-request logger. Nil uses log.New.
	NewLogger func(ctx log.Context) *log.Logger
	// OnMetrics, when set, receives the final counter snapshot of each
	// winning request. Superseded requests never report.
	OnMetrics func(metrics.Snapshot)
}

// Coordinator enforces the single-flight-per-document constraint.
//
// Concurrent compiles of different documents proceed freely; overlapping
// compiles of the same document follow "last request wins": each request
// gets a monotonically increasing sequence per normalized path, a newer
// request marks older in-flight ones stale, and a stale request's outcome
// and progress events are silently dropped. The in-flight map entry is
// cleared when the winning request's outcome is delivered.
//
// The working directory is shared compiler state: two concurrent passes
// over the same document would corrupt each other's auxiliary files,
// which is why the per-path guard exists at all.
type Coordinator struct {
	cfg    CoordinatorConfig
	nextID atomic.Uint64

	mu     sync.Mutex
	latest map[string]uint64
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		latest: make(map[string]uint64),
	}
}

// Compile runs one request under the single-flight guard, blocking until
// the terminal outcome. Callers wanting asynchrony run it in a goroutine.
//
// Returns ErrSuperseded when a newer request for the same document won;
// the stale request's underlying process may have run to completion
// (bounded by its timeout), but nothing of it is delivered.
func (c *Coordinator) Compile(ctx context.Context, req *types.CompileRequest) (*types.Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := filepath.Clean(req.DocumentPath)
	id := c.nextID.Add(1)

	c.mu.Lock()
	c.latest[key] = id
	c.mu.Unlock()

	requestID := uuid.NewString()
	gate := func() bool { return c.isLatest(key, id) }

	logger := c.newLogger(log.Context{
		RequestID: requestID,
		Document:  req.DocumentPath,
		Engine:    req.Engine.Binary(),
	})

	var jw *journal.Writer
	if c.cfg.JournalDir != "" {
		w, err := journal.Create(c.cfg.JournalDir, requestID)
		if err != nil {
			logger.Warn("journal disabled", map[string]any{"error": err.Error()})
		} else {
			jw = w
			defer func() { _ = jw.Close() }()
		}
	}

	collector := metrics.NewCollector(requestID, req.Engine.Binary(), req.DocumentPath)

	orch, err := New(req, Config{
		Runner:           c.cfg.Runner,
		InstallerFactory: c.cfg.InstallerFactory,
		Progress:         c.cfg.Progress,
		Journal:          jw,
		Collector:        collector,
		Logger:           logger,
		RequestID:        requestID,
		CompileTimeout:   c.cfg.CompileTimeout,
		eventGate:        gate,
	})
	if err != nil {
		return nil, err
	}

	outcome := orch.Compile(ctx)

	c.mu.Lock()
	if c.latest[key] != id {
		c.mu.Unlock()
		// A newer request for this document won; drop this result.
		return nil, ErrSuperseded
	}
	delete(c.latest, key)
	c.mu.Unlock()

	if c.cfg.OnMetrics != nil {
		c.cfg.OnMetrics(collector.Snapshot())
	}
	return outcome, nil
}

func (c *Coordinator) isLatest(key string, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest[key] == id
}

func (c *Coordinator) newLogger(ctx log.Context) *log.Logger {
	if c.cfg.NewLogger != nil {
		return c.cfg.NewLogger(ctx)
	}
	return log.New(ctx)
}
