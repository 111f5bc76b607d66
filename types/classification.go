package types

// ClassKind discriminates classifier verdicts over compiler output.
type ClassKind string

// Classifier verdicts, in remediation priority order.
const (
	// ClassClean indicates no actionable signal in the output.
	ClassClean ClassKind = "clean"
	// ClassNeedsRerun indicates a structurally successful compile that
	// requires another pass to stabilize cross-references.
	ClassNeedsRerun ClassKind = "needs_rerun"
	// ClassCitationCorruption indicates corrupted citation state in the
	// auxiliary files. Recovery is destructive and only eligible on the
	// first attempt.
	ClassCitationCorruption ClassKind = "citation_corruption"
	// ClassMissingFont indicates a font error, with or without an
	// extractable package name.
	ClassMissingFont ClassKind = "missing_font"
	// ClassMissingPackage indicates a missing .sty file with an
	// extractable package name.
	ClassMissingPackage ClassKind = "missing_package"
	// ClassUnclassified is a failed exit with no recognized signal.
	ClassUnclassified ClassKind = "unclassified"
)

// Classification is the classifier's verdict over combined compiler output.
// It is a hint for the orchestrator, never a source of truth for success.
type Classification struct {
	// Kind is the verdict category.
	Kind ClassKind
	// Name is the extracted package or font package name, when the
	// output embeds one. Empty for generic font errors.
	Name string
	// Actionable is false when the name (or the generic font fallback)
	// was already remedied this request; the category is still reported
	// for logging, but the orchestrator must not act on it again.
	Actionable bool
}
