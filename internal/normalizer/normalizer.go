// Package normalizer converts raw statement field values into canonical
// form: locale-ambiguous amounts, flexible dates, and noisy descriptions.
package normalizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// currencyTokens are stripped from amount strings before numeric parsing.
// Multi-rune symbols must come before their prefixes (R$ before $).
var currencyTokens = []string{
	"R$", "US$", "USD", "EUR", "GBP", "BRL", "CHF", "JPY",
	"$", "€", "£", "¥", "₹", "₽",
}

// ParseAmount parses a statement amount with unknown locale. When both '.'
// and ',' are present, the one appearing last is the decimal separator.
// Parenthesized values are negative. Currency symbols are stripped first.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}
	s = strings.TrimPrefix(s, "+")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "") // non-breaking space

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// European: 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			// US: 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if decimalSuffixLen(s, lastComma) > 0 {
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			// Thousands grouping only: 1,234,000
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if decimalSuffixLen(s, lastDot) == 0 {
			// Thousands grouping only: 1.234.000
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// decimalSuffixLen returns the digit count after the separator at idx if it
// plausibly starts a decimal fraction (1-2 digits, nothing else), else 0.
func decimalSuffixLen(s string, idx int) int {
	tail := s[idx+1:]
	if len(tail) == 0 || len(tail) > 2 {
		return 0
	}
	for _, r := range tail {
		if !unicode.IsDigit(r) {
			return 0
		}
	}
	return len(tail)
}

// NormalizeDebitCredit folds separate debit/credit columns into one signed
// amount: debit values are negated, credit values pass through positive.
func NormalizeDebitCredit(debitRaw, creditRaw string) (decimal.Decimal, error) {
	debitRaw = strings.TrimSpace(debitRaw)
	creditRaw = strings.TrimSpace(creditRaw)

	if debitRaw != "" {
		d, err := ParseAmount(debitRaw)
		if err != nil {
			return decimal.Zero, err
		}
		if !d.IsZero() {
			return d.Abs().Neg(), nil
		}
	}
	if creditRaw != "" {
		c, err := ParseAmount(creditRaw)
		if err != nil {
			return decimal.Zero, err
		}
		return c.Abs(), nil
	}
	return decimal.Zero, fmt.Errorf("both debit and credit empty")
}
