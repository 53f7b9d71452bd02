// Package confidence scores how much an extracted transaction can be
// trusted, combining the extraction method's track record, normalization
// quality, reconciliation outcome, and extraction metadata.
package confidence

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlift/ingest/internal/canonical"
)

// Extraction method names shared with the extractors.
const (
	MethodCAMT        = "camt"
	MethodMT940       = "mt940"
	MethodBAI2        = "bai2"
	MethodOFX         = "ofx"
	MethodCSV         = "csv"
	MethodXLSX        = "xlsx"
	MethodPDFTemplate = "pdf_template"
	MethodPDFGeneric  = "pdf_generic"
	MethodOCRLine     = "ocr_line"
)

// methodBase is the fixed per-method base score: how reliable each
// extraction path has proven to be. Structured formats sit high, heuristic
// paths low.
var methodBase = map[string]float64{
	MethodCAMT:        0.95,
	MethodMT940:       0.93,
	MethodBAI2:        0.92,
	MethodOFX:         0.90,
	MethodCSV:         0.88,
	MethodXLSX:        0.88,
	MethodPDFTemplate: 0.82,
	MethodPDFGeneric:  0.50,
	MethodOCRLine:     0.60,
}

const unknownMethodBase = 0.50

// BaseScore returns the fixed base score for an extraction method.
func BaseScore(method string) float64 {
	if base, ok := methodBase[method]; ok {
		return base
	}
	return unknownMethodBase
}

// Component weights of the overall score.
const (
	weightExtraction     = 0.40
	weightNormalization  = 0.30
	weightReconciliation = 0.20
	weightMetadata       = 0.10
)

// Multiplicative penalty fractions, applied as score *= 1 - p.
const (
	penaltyMissingBalance   = 0.05
	penaltyMissingValueDate = 0.03
	penaltyLowOCR           = 0.10
	penaltyAmbiguousDate    = 0.05
	penaltyAssumedPolarity  = 0.08
	penaltyNonASCII         = 0.05
)

const (
	lowOCRThreshold     = 0.75
	nonASCIIMaxFraction = 0.30
	outlierYears        = 10
)

// Config tunes review thresholds and sanity ceilings.
type Config struct {
	ReviewThreshold float64         // overall below this flags review
	AmountCeiling   decimal.Decimal // |amount| above this is an outlier
}

// DefaultConfig matches production defaults.
func DefaultConfig() Config {
	return Config{
		ReviewThreshold: 0.70,
		AmountCeiling:   decimal.New(1_000_000, 0),
	}
}

// Input is one transaction plus everything the extractor and reconciler
// learned about it. Pointer fields are absent when the signal does not apply.
type Input struct {
	Tx     *canonical.Transaction
	Method string

	ReconciliationPassed *bool

	// Optional extraction metadata factors.
	HeaderMatchScore  *float64
	TableConfidence   *float64
	OCRCharConfidence *float64

	// Per-row normalization flags set by the extractor.
	ExpectsBalance   bool
	ExpectsValueDate bool
	AmbiguousDate    bool
	AssumedPolarity  bool
}

// Score is the scored outcome.
type Score struct {
	Overall       float64
	NeedsReview   bool
	Extraction    float64
	Normalization float64
	// Reconciliation is 1 or 0; -1 when no reconciliation result applied.
	Reconciliation float64
	Factors        map[string]float64
	Penalties      []string
}

// Scorer is a pure function object; safe for concurrent use.
type Scorer struct {
	cfg Config
}

// NewScorer builds a scorer with cfg.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the confidence for one transaction.
func (s *Scorer) Score(in Input) Score {
	out := Score{
		Extraction:     BaseScore(in.Method),
		Normalization:  normalizationQuality(in.Tx),
		Reconciliation: -1,
		Factors:        map[string]float64{},
	}

	weightSum := weightExtraction + weightNormalization
	weighted := weightExtraction*out.Extraction + weightNormalization*out.Normalization

	if in.ReconciliationPassed != nil {
		out.Reconciliation = 0
		if *in.ReconciliationPassed {
			out.Reconciliation = 1
		}
		weighted += weightReconciliation * out.Reconciliation
		weightSum += weightReconciliation
	}

	if factor, ok := metadataFactor(in, out.Factors); ok {
		weighted += weightMetadata * factor
		weightSum += weightMetadata
	}

	overall := weighted / weightSum

	overall, out.Penalties = applyPenalties(overall, in)
	out.Overall = clamp01(overall)

	reconFailed := in.ReconciliationPassed != nil && !*in.ReconciliationPassed
	out.NeedsReview = out.Overall < s.cfg.ReviewThreshold || reconFailed || s.isOutlier(in.Tx)

	return out
}

// normalizationQuality scores field completeness and sanity of the
// normalized transaction.
func normalizationQuality(tx *canonical.Transaction) float64 {
	if tx == nil {
		return 0
	}
	q := 0.0

	// Description carries most of the downstream value.
	desc := tx.Description
	switch {
	case len(desc) >= 4:
		q += 0.40
	case len(desc) > 0:
		q += 0.25
	}

	if !tx.PostDate.IsZero() {
		q += 0.20
	}
	if !tx.Amount.IsZero() {
		q += 0.20
	}

	// Optional enrichment fields.
	if tx.ValueDate != nil {
		q += 0.05
	}
	if tx.Balance != nil {
		q += 0.05
	}
	if tx.Reference != "" {
		q += 0.05
	}
	if tx.Category != "" {
		q += 0.05
	}
	return clamp01(q)
}

// metadataFactor averages the present optional factors, recording each in
// factors. ok=false when none are present.
func metadataFactor(in Input, factors map[string]float64) (float64, bool) {
	sum := 0.0
	n := 0
	if in.HeaderMatchScore != nil {
		factors["header_match"] = *in.HeaderMatchScore
		sum += *in.HeaderMatchScore
		n++
	}
	if in.TableConfidence != nil {
		factors["table_confidence"] = *in.TableConfidence
		sum += *in.TableConfidence
		n++
	}
	if in.OCRCharConfidence != nil {
		factors["ocr_char_confidence"] = *in.OCRCharConfidence
		sum += *in.OCRCharConfidence
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func applyPenalties(score float64, in Input) (float64, []string) {
	var applied []string
	apply := func(name string, p float64) {
		score *= 1 - p
		applied = append(applied, name)
	}

	if in.ExpectsBalance && in.Tx != nil && in.Tx.Balance == nil {
		apply("missing_balance", penaltyMissingBalance)
	}
	if in.ExpectsValueDate && in.Tx != nil && in.Tx.ValueDate == nil {
		apply("missing_value_date", penaltyMissingValueDate)
	}
	if in.OCRCharConfidence != nil && *in.OCRCharConfidence < lowOCRThreshold {
		apply("low_ocr_confidence", penaltyLowOCR)
	}
	if in.AmbiguousDate {
		apply("ambiguous_date_format", penaltyAmbiguousDate)
	}
	if in.AssumedPolarity {
		apply("assumed_amount_polarity", penaltyAssumedPolarity)
	}
	if in.Tx != nil && nonASCIIFraction(in.Tx.Description) > nonASCIIMaxFraction {
		apply("non_ascii_description", penaltyNonASCII)
	}
	return score, applied
}

// isOutlier flags sanity-ceiling breaches and implausible posting dates.
func (s *Scorer) isOutlier(tx *canonical.Transaction) bool {
	if tx == nil {
		return false
	}
	if tx.Amount.Abs().GreaterThan(s.cfg.AmountCeiling) {
		return true
	}
	now := time.Now()
	if tx.PostDate.After(now) {
		return true
	}
	if tx.PostDate.Before(now.AddDate(-outlierYears, 0, 0)) {
		return true
	}
	return false
}

func nonASCIIFraction(s string) float64 {
	if s == "" {
		return 0
	}
	total := 0
	nonASCII := 0
	for _, r := range s {
		total++
		if r > 127 {
			nonASCII++
		}
	}
	return float64(nonASCII) / float64(total)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
