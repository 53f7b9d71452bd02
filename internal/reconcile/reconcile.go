// Package reconcile runs consistency checks over an extracted transaction
// batch: running balance, date sequence, period plausibility, and totals
// sanity. Checks never discard transactions; they collect errors and
// warnings that feed the confidence scorer.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlift/ingest/internal/canonical"
)

// Mode selects how check outcomes combine into the overall verdict.
type Mode string

const (
	// ModeStrict fails the batch when any named check fails, including
	// the warning-only checks.
	ModeStrict Mode = "strict"
	// ModeLenient treats only the running-balance check as authoritative.
	ModeLenient Mode = "lenient"
)

// Check names.
const (
	CheckRunningBalance    = "running_balance"
	CheckDateSequence      = "date_sequence"
	CheckPeriodConsistency = "period_consistency"
	CheckTotalsSanity      = "totals_sanity"
)

// Config bounds the individual checks.
type Config struct {
	Mode             Mode
	BalanceTolerance decimal.Decimal
	// MaxGapDays is the largest acceptable gap between consecutive
	// (date-sorted) transactions before a warning is raised.
	MaxGapDays int
	// MaxSpanDays bounds the statement period; ~13 months by default.
	MaxSpanDays int
	// MaxPerDay is the plausibility ceiling on average transactions per
	// day across the period.
	MaxPerDay int
	// MinOneSidedCount is the batch size below which an all-debit or
	// all-credit batch is considered too small to warn about.
	MinOneSidedCount int
	// MaxDebitCreditRatio is the largest acceptable ratio between total
	// debits and total credits (either direction).
	MaxDebitCreditRatio float64
	// TotalCeiling and AverageCeiling bound absolute totals and the mean
	// absolute amount.
	TotalCeiling   decimal.Decimal
	AverageCeiling decimal.Decimal
}

// DefaultConfig returns lenient reconciliation with the standard bounds.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeLenient,
		BalanceTolerance:    decimal.NewFromFloat(0.01),
		MaxGapDays:          90,
		MaxSpanDays:         400,
		MaxPerDay:           200,
		MinOneSidedCount:    5,
		MaxDebitCreditRatio: 100,
		TotalCeiling:        decimal.NewFromInt(10_000_000),
		AverageCeiling:      decimal.NewFromInt(1_000_000),
	}
}

// Check is the outcome of one named check.
type Check struct {
	Passed  bool   `json:"passed"`
	Details string `json:"details,omitempty"`
}

// Result aggregates all checks over one batch.
type Result struct {
	Passed   bool             `json:"passed"`
	Checks   map[string]Check `json:"checks"`
	Errors   []string         `json:"errors,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

const maxTransactionAge = 10 * 365 * 24 * time.Hour

// Reconcile runs every check over the batch and combines their outcomes
// according to cfg.Mode. The batch itself is never modified.
func Reconcile(batch []*canonical.Transaction, cfg Config) Result {
	res := Result{Passed: true, Checks: make(map[string]Check, 4)}
	if len(batch) == 0 {
		for _, name := range []string{CheckRunningBalance, CheckDateSequence, CheckPeriodConsistency, CheckTotalsSanity} {
			res.Checks[name] = Check{Passed: true, Details: "no transactions"}
		}
		return res
	}

	sorted := make([]*canonical.Transaction, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PostDate.Before(sorted[j].PostDate)
	})

	now := time.Now()
	res.Checks[CheckRunningBalance] = checkRunningBalance(sorted, cfg, &res)
	res.Checks[CheckDateSequence] = checkDateSequence(batch, sorted, cfg, now, &res)
	res.Checks[CheckPeriodConsistency] = checkPeriodConsistency(sorted, cfg, &res)
	res.Checks[CheckTotalsSanity] = checkTotalsSanity(sorted, cfg, &res)

	switch cfg.Mode {
	case ModeStrict:
		for _, c := range res.Checks {
			if !c.Passed {
				res.Passed = false
				break
			}
		}
	default:
		res.Passed = res.Checks[CheckRunningBalance].Passed
	}
	return res
}

// checkRunningBalance verifies prior_balance + amount ≈ balance for every
// consecutive pair that both carry a balance. Mismatches are hard errors.
func checkRunningBalance(sorted []*canonical.Transaction, cfg Config, res *Result) Check {
	pairs, mismatches := 0, 0
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Balance == nil || cur.Balance == nil {
			continue
		}
		pairs++
		expected := prev.Balance.Add(cur.Amount)
		if expected.Sub(*cur.Balance).Abs().GreaterThan(cfg.BalanceTolerance) {
			mismatches++
			res.Errors = append(res.Errors, fmt.Sprintf(
				"balance mismatch on %s: expected %s, statement says %s",
				cur.PostDate.Format("2006-01-02"), expected.StringFixed(2), cur.Balance.StringFixed(2)))
		}
	}
	if pairs == 0 {
		return Check{Passed: true, Details: "no consecutive balances to verify"}
	}
	if mismatches > 0 {
		return Check{Passed: false, Details: fmt.Sprintf("%d of %d balance transitions mismatched", mismatches, pairs)}
	}
	return Check{Passed: true, Details: fmt.Sprintf("%d balance transitions verified", pairs)}
}

// checkDateSequence warns on future dates, out-of-order input, oversized
// gaps, and very old dates. Warning-only.
func checkDateSequence(input, sorted []*canonical.Transaction, cfg Config, now time.Time, res *Result) Check {
	var warnings []string

	future, old := 0, 0
	for _, tx := range input {
		if tx.PostDate.After(now) {
			future++
		}
		if now.Sub(tx.PostDate) > maxTransactionAge {
			old++
		}
	}
	if future > 0 {
		warnings = append(warnings, fmt.Sprintf("%d transaction(s) dated in the future", future))
	}
	if old > 0 {
		warnings = append(warnings, fmt.Sprintf("%d transaction(s) older than ten years", old))
	}

	outOfOrder := 0
	for i := 1; i < len(input); i++ {
		if input[i].PostDate.Before(input[i-1].PostDate) {
			outOfOrder++
		}
	}
	if outOfOrder > 0 {
		warnings = append(warnings, fmt.Sprintf("%d transaction(s) out of date order", outOfOrder))
	}

	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].PostDate.Sub(sorted[i-1].PostDate)
		if days := int(gap.Hours() / 24); days > cfg.MaxGapDays {
			warnings = append(warnings, fmt.Sprintf("gap of %d days before %s exceeds %d",
				days, sorted[i].PostDate.Format("2006-01-02"), cfg.MaxGapDays))
		}
	}

	res.Warnings = append(res.Warnings, warnings...)
	if len(warnings) > 0 {
		return Check{Passed: false, Details: fmt.Sprintf("%d date anomalies", len(warnings))}
	}
	return Check{Passed: true}
}

// checkPeriodConsistency warns on implausible density or an oversized
// statement period. Warning-only.
func checkPeriodConsistency(sorted []*canonical.Transaction, cfg Config, res *Result) Check {
	var warnings []string

	span := sorted[len(sorted)-1].PostDate.Sub(sorted[0].PostDate)
	spanDays := int(span.Hours() / 24)
	if spanDays > cfg.MaxSpanDays {
		warnings = append(warnings, fmt.Sprintf("statement spans %d days, beyond %d", spanDays, cfg.MaxSpanDays))
	}

	days := spanDays
	if days < 1 {
		days = 1
	}
	if perDay := len(sorted) / days; perDay > cfg.MaxPerDay {
		warnings = append(warnings, fmt.Sprintf("%d transactions over %d day(s) is implausibly dense", len(sorted), days))
	}

	res.Warnings = append(res.Warnings, warnings...)
	if len(warnings) > 0 {
		return Check{Passed: false, Details: fmt.Sprintf("%d period anomalies", len(warnings))}
	}
	return Check{Passed: true, Details: fmt.Sprintf("period of %d day(s)", spanDays)}
}

// checkTotalsSanity warns on one-sided batches, extreme debit:credit
// ratios, and totals beyond the sanity ceilings. Warning-only.
func checkTotalsSanity(sorted []*canonical.Transaction, cfg Config, res *Result) Check {
	var warnings []string

	debits, credits := decimal.Zero, decimal.Zero
	debitCount, creditCount := 0, 0
	for _, tx := range sorted {
		if tx.Amount.IsNegative() {
			debits = debits.Add(tx.Amount.Abs())
			debitCount++
		} else {
			credits = credits.Add(tx.Amount)
			creditCount++
		}
	}

	if len(sorted) >= cfg.MinOneSidedCount {
		if debitCount == 0 {
			warnings = append(warnings, "batch contains no debits")
		}
		if creditCount == 0 {
			warnings = append(warnings, "batch contains no credits")
		}
	}

	if debitCount > 0 && creditCount > 0 {
		ratio, _ := debits.Div(credits).Float64()
		if ratio > cfg.MaxDebitCreditRatio || (ratio > 0 && 1/ratio > cfg.MaxDebitCreditRatio) {
			warnings = append(warnings, fmt.Sprintf("debit:credit ratio %.1f is extreme", ratio))
		}
	}

	total := debits.Add(credits)
	if total.GreaterThan(cfg.TotalCeiling) {
		warnings = append(warnings, fmt.Sprintf("absolute total %s exceeds ceiling %s",
			total.StringFixed(2), cfg.TotalCeiling.StringFixed(2)))
	}
	if avg := total.Div(decimal.NewFromInt(int64(len(sorted)))); avg.GreaterThan(cfg.AverageCeiling) {
		warnings = append(warnings, fmt.Sprintf("average amount %s exceeds ceiling %s",
			avg.StringFixed(2), cfg.AverageCeiling.StringFixed(2)))
	}

	res.Warnings = append(res.Warnings, warnings...)
	if len(warnings) > 0 {
		return Check{Passed: false, Details: fmt.Sprintf("%d totals anomalies", len(warnings))}
	}
	return Check{Passed: true}
}

// DetectMultiAccount returns the distinct account identifiers in the batch
// when there is more than one. Informational only.
func DetectMultiAccount(batch []*canonical.Transaction) []string {
	seen := make(map[string]struct{})
	var accounts []string
	for _, tx := range batch {
		if tx.AccountID == "" {
			continue
		}
		if _, ok := seen[tx.AccountID]; ok {
			continue
		}
		seen[tx.AccountID] = struct{}{}
		accounts = append(accounts, tx.AccountID)
	}
	if len(accounts) < 2 {
		return nil
	}
	sort.Strings(accounts)
	return accounts
}
