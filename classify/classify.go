// Package classify inspects combined compiler output and classifies it
// into actionable categories for the orchestrator.
//
// Classification is a best-effort hint derived from text pattern matching,
// never a source of truth for whether compilation actually succeeded; the
// orchestrator trusts only the exit status plus the artifact on disk.
//
// Known limitation: the patterns match English-locale engine output only.
// Localized TeX distributions will fall through to the unclassified
// category, which degrades to surfacing the raw log (never to hiding it).
package classify

import (
	"regexp"
	"strings"

	"github.com/typecraft-io/typeset/types"
)

// Citation corruption signals. Recovery deletes auxiliary files, so the
// orchestrator only acts on this category on the very first attempt.
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Runaway argument\?`),
	regexp.MustCompile(`File ended while scanning use of \\cit`),
	regexp.MustCompile(`Illegal, another \\bibdata command`),
}

// fontNamePattern extracts a specific installable font package name.
var fontNamePattern = regexp.MustCompile("Font `([^']+)' not found")

// Generic font error signals with no extractable name.
var fontGenericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`not loadable: Metric \(TFM\) file`),
	regexp.MustCompile(`Missing character:`),
	regexp.MustCompile(`Font shape .* undefined`),
	regexp.MustCompile(`Encoding scheme .* unknown`),
}

// Missing package signals with name capture. The .sty suffix is stripped
// from the extracted name.
var packagePatterns = []*regexp.Regexp{
	regexp.MustCompile("File `([^'\n]+)\\.sty' not found"),
	regexp.MustCompile(`cannot find (?:file )?([A-Za-z0-9._-]+)\.sty`),
}

// Rerun signals: a structurally successful compile that needs one more
// pass for cross-references to stabilize.
var rerunPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[Rr]erun to get`),
	regexp.MustCompile(`Label\(s\) may have changed`),
	regexp.MustCompile(`There were undefined (?:citations|references)`),
}

// Classify inspects combined compiler output.
//
// Family order matters: citation corruption, then fonts, then missing
// packages, then rerun; first matching family wins. A name already present
// in remedied still classifies into its category (the orchestrator logs
// it), but the classification is marked non-actionable so remediation is
// never repeated for the same name within one request.
func Classify(output string, remedied map[string]struct{}) types.Classification {
	for _, p := range citationPatterns {
		if p.MatchString(output) {
			return types.Classification{Kind: types.ClassCitationCorruption, Actionable: true}
		}
	}

	if m := fontNamePattern.FindStringSubmatch(output); m != nil {
		name := strings.TrimSpace(m[1])
		_, seen := remedied[name]
		return types.Classification{
			Kind:       types.ClassMissingFont,
			Name:       name,
			Actionable: !seen,
		}
	}
	for _, p := range fontGenericPatterns {
		if p.MatchString(output) {
			// No specific name: the fallback bundle applies, guarded
			// once per request by the orchestrator.
			return types.Classification{Kind: types.ClassMissingFont, Actionable: true}
		}
	}

	for _, p := range packagePatterns {
		if m := p.FindStringSubmatch(output); m != nil {
			name := strings.TrimSuffix(strings.TrimSpace(m[1]), ".sty")
			_, seen := remedied[name]
			return types.Classification{
				Kind:       types.ClassMissingPackage,
				Name:       name,
				Actionable: !seen,
			}
		}
	}

	for _, p := range rerunPatterns {
		if p.MatchString(output) {
			return types.Classification{Kind: types.ClassNeedsRerun}
		}
	}

	return types.Classification{Kind: types.ClassClean}
}

// ClassifyFailure is Classify for a non-zero exit: output with no
// recognized signal is unclassified (terminal) rather than clean.
func ClassifyFailure(output string, remedied map[string]struct{}) types.Classification {
	c := Classify(output, remedied)
	if c.Kind == types.ClassClean {
		return types.Classification{Kind: types.ClassUnclassified}
	}
	return c
}
