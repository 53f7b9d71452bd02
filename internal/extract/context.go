// Package extract turns statement files of many formats into canonical
// transactions. A dispatcher routes each file to the first capable
// extractor; extractors share the sniffer/normalizer plumbing and report
// per-file quality metadata for the confidence scorer.
package extract

import (
	"time"

	"github.com/ledgerlift/ingest/internal/canonical"
)

// Context carries one file through an extraction attempt. It is created
// per call and never outlives it.
type Context struct {
	Data     []byte
	Filename string
	MIMEType string
	Size     int64
	TenantID string

	// AccountHint is used when the file itself carries no account
	// identifier (common for CSV exports).
	AccountHint string
	// CurrencyHint is used when the file carries no currency code.
	CurrencyHint string

	OCREnabled     bool
	MalwareChecked bool
	Metadata       map[string]string
	StartedAt      time.Time
}

// Quality holds extraction-side signals the confidence scorer consumes.
type Quality struct {
	HeaderMatchScore  float64
	TableConfidence   float64
	OCRCharConfidence float64
}

// Result is the outcome of one extraction attempt.
type Result struct {
	Success      bool
	Transactions []*canonical.Transaction

	// Method names the extraction path taken (csv, camt, pdf_template, ...).
	Method     string
	Confidence float64

	PagesProcessed    int
	OCRPagesProcessed int

	DetectedBank    string
	DetectedAccount string
	PeriodStart     *time.Time
	PeriodEnd       *time.Time

	Quality  Quality
	Err      error
	Warnings []string
	Metadata map[string]string
}

// failed builds an unsuccessful result for method with err attached.
func failed(method string, err error) *Result {
	return &Result{Method: method, Err: err}
}

// period computes the batch's first and last post dates.
func period(txs []*canonical.Transaction) (start, end *time.Time) {
	for _, tx := range txs {
		d := tx.PostDate
		if start == nil || d.Before(*start) {
			s := d
			start = &s
		}
		if end == nil || d.After(*end) {
			e := d
			end = &e
		}
	}
	return start, end
}
