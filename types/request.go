package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// CompileRequest describes one user-triggered compilation.
// Immutable once constructed.
type CompileRequest struct {
	// DocumentPath is the absolute path to the primary source file.
	DocumentPath string
	// Engine selects the typesetting engine binary.
	Engine Engine
}

// Validate checks the request invariants.
func (r *CompileRequest) Validate() error {
	if r.DocumentPath == "" {
		return errors.New("document path is required")
	}
	if !filepath.IsAbs(r.DocumentPath) {
		return fmt.Errorf("document path must be absolute: %q", r.DocumentPath)
	}
	if !r.Engine.Valid() {
		return fmt.Errorf("invalid engine %q", string(r.Engine))
	}
	return nil
}

// Dir returns the directory containing the source document.
// Compiler output is pinned here.
func (r *CompileRequest) Dir() string { return filepath.Dir(r.DocumentPath) }

// Base returns the source filename without its extension, used to derive
// auxiliary and artifact filenames.
func (r *CompileRequest) Base() string {
	name := filepath.Base(r.DocumentPath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ArtifactPath returns the expected PDF output path for this request.
func (r *CompileRequest) ArtifactPath() string {
	return filepath.Join(r.Dir(), r.Base()+".pdf")
}

// AuxPaths returns the known auxiliary artifact paths for this request:
// the cross-reference metadata file (.aux), the bibliography output file
// (.bbl), and the hyperref outline file (.out).
func (r *CompileRequest) AuxPaths() []string {
	dir, base := r.Dir(), r.Base()
	return []string{
		filepath.Join(dir, base+".aux"),
		filepath.Join(dir, base+".bbl"),
		filepath.Join(dir, base+".out"),
	}
}
