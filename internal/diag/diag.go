// Package diag defines the diagnostic model shared by every stage of the
// analysis pipeline. File-level and entity-level problems are recorded as
// diagnostics and attached to the final batch instead of failing the job.
package diag

import "fmt"

// Severity orders diagnostics for reporting. Error is worst.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// rank maps severities to a sortable weight.
func rank(s Severity) int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Category identifies the pipeline stage that produced a diagnostic.
type Category string

const (
	CategoryDiscovery    Category = "discovery"
	CategoryWalk         Category = "walk"
	CategoryParse        Category = "parse"
	CategoryFramework    Category = "framework"
	CategoryExtraction   Category = "extraction"
	CategoryGraphEmit    Category = "graph_emit"
	CategoryCancellation Category = "cancellation"
)

// Diagnostic is a single recorded problem or note.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	FilePath string   `json:"file_path,omitempty"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
}

// New builds a diagnostic with a formatted message.
func New(sev Severity, cat Category, filePath string, line int, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Category: cat,
		FilePath: filePath,
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
	}
}

func Infof(cat Category, filePath string, format string, args ...any) Diagnostic {
	return New(SeverityInfo, cat, filePath, 0, format, args...)
}

func Warnf(cat Category, filePath string, format string, args ...any) Diagnostic {
	return New(SeverityWarning, cat, filePath, 0, format, args...)
}

func Errorf(cat Category, filePath string, format string, args ...any) Diagnostic {
	return New(SeverityError, cat, filePath, 0, format, args...)
}

// Report is the user-facing summary of a job's diagnostics: counts by
// severity plus a bounded sample of the worst entries per category.
type Report struct {
	Total            int                       `json:"total"`
	CountsBySeverity map[Severity]int          `json:"counts_by_severity"`
	SampleByCategory map[Category][]Diagnostic `json:"sample_by_category"`
}

// Summarize builds a Report keeping at most sampleN of the worst
// diagnostics per category. Within a category, errors come before
// warnings before infos; ties keep insertion order.
func Summarize(diags []Diagnostic, sampleN int) *Report {
	if sampleN <= 0 {
		sampleN = 5
	}
	r := &Report{
		Total:            len(diags),
		CountsBySeverity: make(map[Severity]int, 3),
		SampleByCategory: make(map[Category][]Diagnostic),
	}
	for _, d := range diags {
		r.CountsBySeverity[d.Severity]++
		sample := r.SampleByCategory[d.Category]
		sample = append(sample, d)
		// Insertion sort by severity rank; sample stays tiny.
		for i := len(sample) - 1; i > 0; i-- {
			if rank(sample[i].Severity) > rank(sample[i-1].Severity) {
				sample[i], sample[i-1] = sample[i-1], sample[i]
			} else {
				break
			}
		}
		if len(sample) > sampleN {
			sample = sample[:sampleN]
		}
		r.SampleByCategory[d.Category] = sample
	}
	return r
}

// CountErrors returns the number of error-severity diagnostics.
func CountErrors(diags []Diagnostic) int {
	n := 0
	for _, d := range diags {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}
