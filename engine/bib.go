package engine

import (
	"context"
	"os"
	"strings"

	"github.com/typecraft-io/typeset/texproc"
	"github.com/typecraft-io/typeset/types"
)

// bibResolver is the bibliography resolution tool.
const bibResolver = "bibtex"

// postProcess runs after a structurally successful final attempt.
//
// When the auxiliary metadata file carries bibliography markers, the
// resolver runs once followed by exactly two more compiler passes:
// bibliography resolution changes cross-reference data that needs two
// further passes to stabilize. Then the artifact-trust check decides the
// outcome.
func (o *Orchestrator) postProcess(ctx context.Context, logs *logBuilder) *types.Outcome {
	if o.usesBibliography() {
		o.logger.Info("bibliography detected, resolving", map[string]any{"tool": bibResolver})

		res, err := o.runner.Run(ctx, texproc.Spec{
			Path:    bibResolver,
			Args:    []string{o.req.Base()},
			Dir:     o.req.Dir(),
			Timeout: texproc.BibTimeout,
		})
		o.cfg.Collector.IncBibPass()
		if err != nil {
			// Resolver unavailable: keep the compile result, note it.
			logs.add(bibResolver, "bibliography resolver unavailable: "+err.Error())
		} else {
			logs.add(bibResolver, res.Combined())
		}

		// Two unconditional passes; their logs are part of the record
		// even when a pass misbehaves. The artifact check is the gate.
		for i := 0; i < 2; i++ {
			o.cfg.Collector.IncBibPass()
			if _, err := o.runCompilerPass(ctx, logs); err != nil {
				logs.add(o.req.Engine.Binary(), "pass failed: "+err.Error())
				break
			}
		}
	}

	return o.succeed(logs)
}

// usesBibliography inspects the auxiliary metadata file for markers
// indicating a bibliography is in use.
func (o *Orchestrator) usesBibliography() bool {
	aux := o.req.AuxPaths()[0]
	data, err := os.ReadFile(aux)
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, `\bibdata`) || strings.Contains(content, `\citation`)
}
