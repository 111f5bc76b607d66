// Package config loads the typeset.yaml configuration file.
//
// All values are optional and act as defaults for CLI flags; flags always
// override config values.
package config

import (
	"fmt"
	"time"

	"github.com/typecraft-io/typeset/types"
)

// Config represents a typeset.yaml configuration file.
type Config struct {
	// Engine is the default typesetting engine (pdflatex, xelatex, lualatex).
	Engine string `yaml:"engine"`
	// JournalDir enables per-request journaling when set.
	JournalDir string `yaml:"journal_dir"`
	// CompileTimeout overrides the per-pass compile budget.
	CompileTimeout Duration `yaml:"compile_timeout"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "120s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "120s" or "2m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ResolveEngine returns the engine from the config, or the package default
// when unset.
func (c *Config) ResolveEngine() (types.Engine, error) {
	if c.Engine == "" {
		return types.EnginePDFTeX, nil
	}
	return types.ParseEngine(c.Engine)
}
