// Package render provides centralized output rendering for the typeset CLI.
//
// Format selection rules:
//   - --format flag always wins
//   - otherwise text for a TTY, json for a pipe
//
// --no-color affects text output only.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, text, or yaml)", s)
	}
}

// DefaultFormat applies the TTY rule when no format was requested.
func DefaultFormat(requested Format) Format {
	if requested != "" {
		return requested
	}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return FormatText
	}
	return FormatJSON
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// CompileReport is the CLI-facing summary of one compilation.
// The full log and PDF bytes stay out of the report; the artifact path
// and sizes stand in for them.
type CompileReport struct {
	Success  bool   `json:"success" yaml:"success"`
	Document string `json:"document" yaml:"document"`
	Engine   string `json:"engine" yaml:"engine"`
	Artifact string `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	PDFBytes int    `json:"pdfBytes,omitempty" yaml:"pdf_bytes,omitempty"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Details  string `json:"details,omitempty" yaml:"details,omitempty"`
	Attempts int64  `json:"attempts" yaml:"attempts"`
	Installs int64  `json:"installs" yaml:"installs"`
	Duration string `json:"duration" yaml:"duration"`
}

// VersionReport reports the binary version.
type VersionReport struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
}

// DoctorReport summarizes the toolchain health check.
type DoctorReport struct {
	Engine       string            `json:"engine" yaml:"engine"`
	Distribution string            `json:"distribution" yaml:"distribution"`
	Binaries     map[string]string `json:"binaries" yaml:"binaries"`
}

// JournalEvent is one progress event row of a journal report.
type JournalEvent struct {
	Seq     int64  `json:"seq" yaml:"seq"`
	Stage   string `json:"stage" yaml:"stage"`
	Message string `json:"message" yaml:"message"`
	Ts      string `json:"ts" yaml:"ts"`
}

// JournalOutcome is the terminal frame of a journal report.
type JournalOutcome struct {
	Success  bool   `json:"success" yaml:"success"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Details  string `json:"details,omitempty" yaml:"details,omitempty"`
	PDFBytes int64  `json:"pdfBytes" yaml:"pdf_bytes"`
	Ts       string `json:"ts" yaml:"ts"`
}

// JournalReport is a decoded compile journal.
type JournalReport struct {
	Path    string          `json:"path" yaml:"path"`
	Events  []JournalEvent  `json:"events" yaml:"events"`
	Outcome *JournalOutcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// New creates a renderer writing to stdout.
func New(format Format, noColor bool) *Renderer {
	return NewWithWriter(format, noColor, os.Stdout)
}

// NewWithWriter creates a renderer with a custom writer (for testing).
func NewWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Compile renders a compile report.
func (r *Renderer) Compile(report *CompileReport) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(report)
	case FormatYAML:
		return r.renderYAML(report)
	default:
		return r.renderCompileText(report)
	}
}

// Version renders the version report.
func (r *Renderer) Version(report *VersionReport) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(report)
	case FormatYAML:
		return r.renderYAML(report)
	default:
		_, err := fmt.Fprintf(r.out, "typeset %s (commit: %s)\n", report.Version, report.Commit)
		return err
	}
}

// Doctor renders a toolchain health report.
func (r *Renderer) Doctor(report *DoctorReport) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(report)
	case FormatYAML:
		return r.renderYAML(report)
	default:
		return r.renderDoctorText(report)
	}
}

// Journal renders a decoded compile journal.
func (r *Renderer) Journal(report *JournalReport) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(report)
	case FormatYAML:
		return r.renderYAML(report)
	default:
		return r.renderJournalText(report)
	}
}

func (r *Renderer) renderJournalText(report *JournalReport) error {
	fmt.Fprintln(r.out, r.styled(dimStyle, report.Path))
	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	for _, ev := range report.Events {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", ev.Seq, ev.Ts, ev.Stage, ev.Message)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if o := report.Outcome; o != nil {
		if o.Success {
			fmt.Fprintf(r.out, "%s  %d pdf bytes\n", r.styled(okStyle, "OK"), o.PDFBytes)
		} else {
			fmt.Fprintf(r.out, "%s  %s: %s\n", r.styled(failStyle, "FAILED"), o.Reason, o.Details)
		}
	}
	return nil
}

func (r *Renderer) renderJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) renderYAML(v any) error {
	return yaml.NewEncoder(r.out).Encode(v)
}

func (r *Renderer) renderCompileText(report *CompileReport) error {
	status := "FAILED"
	style := failStyle
	if report.Success {
		status = "OK"
		style = okStyle
	}
	fmt.Fprintf(r.out, "%s  %s\n", r.styled(style, status), report.Document)

	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "  engine\t%s\n", report.Engine)
	fmt.Fprintf(w, "  attempts\t%d\n", report.Attempts)
	if report.Installs > 0 {
		fmt.Fprintf(w, "  installs\t%d\n", report.Installs)
	}
	if report.Success {
		fmt.Fprintf(w, "  artifact\t%s (%d bytes)\n", report.Artifact, report.PDFBytes)
	} else {
		fmt.Fprintf(w, "  reason\t%s\n", report.Reason)
		if report.Details != "" {
			fmt.Fprintf(w, "  details\t%s\n", report.Details)
		}
	}
	fmt.Fprintf(w, "  duration\t%s\n", r.styled(dimStyle, report.Duration))
	return w.Flush()
}

func (r *Renderer) renderDoctorText(report *DoctorReport) error {
	fmt.Fprintf(r.out, "engine: %s\ndistribution: %s\n", report.Engine, report.Distribution)
	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	for name, status := range report.Binaries {
		fmt.Fprintf(w, "  %s\t%s\n", name, status)
	}
	return w.Flush()
}

func (r *Renderer) styled(style lipgloss.Style, s string) string {
	if r.noColor {
		return s
	}
	return style.Render(s)
}
