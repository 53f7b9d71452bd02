// Package ingesterr defines the error taxonomy for the ingestion core.
// Every error carries a stable machine-readable code, a tier that decides
// propagation, a human-readable hint, and a redacted evidence sample.
package ingesterr

import (
	"errors"
	"fmt"
	"strings"
)

// Tier classifies how an error propagates through the pipeline.
type Tier string

const (
	// TierValidation errors are client-correctable and rejected before parsing.
	TierValidation Tier = "validation"
	// TierExtraction errors need user action (re-export, unlock, etc.).
	TierExtraction Tier = "extraction"
	// TierReconciliation errors never discard transactions, only flag review.
	TierReconciliation Tier = "reconciliation"
	// TierSystem errors are unexpected and fail the batch.
	TierSystem Tier = "system"
)

// Stable error codes. Callers match on these, never on message text.
const (
	CodeFileTooLarge           = "file_too_large"
	CodeUnsupportedFormat      = "unsupported_format"
	CodeMalformedCSV           = "malformed_csv"
	CodeMissingRequiredColumns = "missing_required_columns"
	CodeNoRowsExtracted        = "no_rows_extracted"
	CodePasswordProtected      = "password_protected"
	CodeUnsupportedArchive     = "unsupported_archive"
	CodeStageTimeout           = "stage_timeout"
	CodeParserFailure          = "parser_failure"
)

// Error is the taxonomy error type.
type Error struct {
	Code     string
	Tier     Tier
	Hint     string
	Location string // file/line/tag context, e.g. "row 14" or "tag :61:"
	Evidence string // redacted sample of the offending input
	Err      error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Location != "" {
		b.WriteString(" at ")
		b.WriteString(e.Location)
	}
	if e.Hint != "" {
		b.WriteString(": ")
		b.WriteString(e.Hint)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a taxonomy error with a redacted evidence sample.
func New(code string, tier Tier, hint string) *Error {
	return &Error{Code: code, Tier: tier, Hint: hint}
}

// Wrap attaches a cause to a taxonomy error.
func Wrap(code string, tier Tier, hint string, err error) *Error {
	return &Error{Code: code, Tier: tier, Hint: hint, Err: err}
}

// WithLocation returns a copy with location context set.
func (e *Error) WithLocation(format string, args ...any) *Error {
	clone := *e
	clone.Location = fmt.Sprintf(format, args...)
	return &clone
}

// WithEvidence returns a copy carrying a redacted sample of the input.
// Digits are masked so account numbers and amounts never leak into logs.
func (e *Error) WithEvidence(sample string) *Error {
	clone := *e
	clone.Evidence = Redact(sample)
	return &clone
}

const maxEvidenceLen = 80

// Redact masks digits and truncates a sample for safe logging.
func Redact(sample string) string {
	masked := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return '#'
		}
		return r
	}, sample)
	if len(masked) > maxEvidenceLen {
		masked = masked[:maxEvidenceLen] + "..."
	}
	return masked
}

// CodeOf extracts the stable code from an error chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// TierOf extracts the tier from an error chain. Unclassified errors are
// treated as system-tier.
func TierOf(err error) Tier {
	var e *Error
	if errors.As(err, &e) {
		return e.Tier
	}
	return TierSystem
}
