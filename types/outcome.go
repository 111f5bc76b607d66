package types

import (
	"encoding/base64"
	"encoding/json"
)

// FailureReason categorizes terminal compilation failures.
type FailureReason string

// Failure taxonomy.
const (
	// FailTimeout indicates the compiler exceeded its wall-clock budget.
	FailTimeout FailureReason = "timeout"
	// FailSpawn indicates the engine binary could not be started
	// (toolchain not installed).
	FailSpawn FailureReason = "spawn_failure"
	// FailSyntax is an unclassified compiler error; the raw log carries
	// the real diagnostics.
	FailSyntax FailureReason = "syntax_error"
	// FailPackageUnresolvable indicates package installation failed or
	// the distribution is unknown.
	FailPackageUnresolvable FailureReason = "package_unresolvable"
	// FailFontUnresolvable indicates font installation failed.
	FailFontUnresolvable FailureReason = "font_unresolvable"
	// FailArtifactMissing indicates a zero exit but no PDF on disk.
	FailArtifactMissing FailureReason = "artifact_missing"
	// FailAttemptsExhausted indicates the attempt ceiling was reached.
	FailAttemptsExhausted FailureReason = "attempts_exhausted"
	// FailSuperseded indicates a newer request for the same document
	// replaced this one before it delivered.
	FailSuperseded FailureReason = "superseded"
)

// Outcome is the terminal value of one compilation request.
// Exactly one of the success/failure field groups is populated.
type Outcome struct {
	// Success is true when a PDF was produced and read back.
	Success bool
	// PDF is the artifact bytes on success.
	PDF []byte
	// Log is the concatenated output of every sub-pass, each delimited.
	Log string
	// Reason is the failure category. Empty on success.
	Reason FailureReason
	// Details carries the specific missing-dependency name or native
	// error message for failures.
	Details string
}

// outcomeWire is the cross-boundary transport shape.
type outcomeWire struct {
	Success bool   `json:"success"`
	PDFData string `json:"pdfData,omitempty"`
	Log     string `json:"log,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// MarshalJSON encodes the outcome for cross-boundary transport:
// {success, pdfData (base64), log, error, details}.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	w := outcomeWire{
		Success: o.Success,
		Log:     o.Log,
		Error:   string(o.Reason),
		Details: o.Details,
	}
	if len(o.PDF) > 0 {
		w.PDFData = base64.StdEncoding.EncodeToString(o.PDF)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the cross-boundary transport shape.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var w outcomeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	o.Success = w.Success
	o.Log = w.Log
	o.Reason = FailureReason(w.Error)
	o.Details = w.Details
	o.PDF = nil
	if w.PDFData != "" {
		pdf, err := base64.StdEncoding.DecodeString(w.PDFData)
		if err != nil {
			return err
		}
		o.PDF = pdf
	}
	return nil
}
