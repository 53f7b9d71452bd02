// Package canonical defines the shared transaction contract every stage of
// the ingestion pipeline reads and writes. It is the sole output boundary to
// persistence, categorization, and export consumers.
package canonical

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceKind identifies the extraction path a transaction came from.
type SourceKind string

const (
	SourceCSV   SourceKind = "csv"
	SourceXLSX  SourceKind = "xlsx"
	SourceOFX   SourceKind = "ofx"
	SourceCAMT  SourceKind = "camt"
	SourceMT940 SourceKind = "mt940"
	SourceBAI2  SourceKind = "bai2"
	SourcePDF   SourceKind = "pdf"
	SourceOCR   SourceKind = "ocr"
	SourceImage SourceKind = "image"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceCSV, SourceXLSX, SourceOFX, SourceCAMT, SourceMT940,
		SourceBAI2, SourcePDF, SourceOCR, SourceImage:
		return true
	}
	return false
}

// Transaction is one canonical bank/card movement. Amount is signed:
// negative = debit, positive = credit. Zero amounts are rejected at
// construction.
type Transaction struct {
	ID               uuid.UUID
	AccountID        string
	PostDate         time.Time
	ValueDate        *time.Time
	Description      string
	Amount           decimal.Decimal
	Balance          *decimal.Decimal
	Currency         string // ISO-4217, always uppercase
	Source           SourceKind
	SourceConfidence float64
	Reference        string
	Category         string
	Vendor           string
	Recurring        bool

	// DuplicateOf is set by the deduplicator when this transaction
	// fingerprints to an already-known record. The transaction is kept for
	// traceability rather than discarded.
	DuplicateOf *uuid.UUID
}

// New validates and builds a canonical transaction.
func New(accountID string, postDate time.Time, description string, amount decimal.Decimal, currency string, source SourceKind) (*Transaction, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("canonical: zero-amount transaction rejected (account %s, %s)", accountID, postDate.Format("2006-01-02"))
	}
	if !source.Valid() {
		return nil, fmt.Errorf("canonical: unknown source kind %q", source)
	}
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		PostDate:    postDate,
		Description: strings.TrimSpace(description),
		Amount:      amount,
		Currency:    code,
		Source:      source,
	}, nil
}

// NormalizeCurrency uppercases a currency code and validates it against the
// ISO-4217 table. An empty code is rejected; unknown three-letter codes are
// kept as-is so exotic statement currencies survive ingestion.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("canonical: invalid currency code %q", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("canonical: invalid currency code %q", code)
		}
	}
	if money.GetCurrency(code) == nil {
		// Not in the ISO table; tolerated but flagged by the scorer later.
		return code, nil
	}
	return code, nil
}

// IsDebit reports whether the transaction moves money out of the account.
func (t *Transaction) IsDebit() bool { return t.Amount.IsNegative() }

// IsCredit reports whether the transaction moves money into the account.
func (t *Transaction) IsCredit() bool { return t.Amount.IsPositive() }

// IsDuplicate reports whether the deduplicator matched this transaction to an
// existing record.
func (t *Transaction) IsDuplicate() bool { return t.DuplicateOf != nil }

// CurrencyFraction returns the number of decimal places for the transaction
// currency (2 for most, 0 for JPY-style currencies).
func (t *Transaction) CurrencyFraction() int {
	if c := money.GetCurrency(t.Currency); c != nil {
		return c.Fraction
	}
	return 2
}
