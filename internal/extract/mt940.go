package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/ingesterr"
	"github.com/ledgerlift/ingest/internal/normalizer"
	"github.com/ledgerlift/ingest/internal/sniffer"
)

// MT940Extractor handles SWIFT MT940 customer statement messages.
type MT940Extractor struct {
	logger *slog.Logger
}

// NewMT940Extractor builds the SWIFT MT940 extractor.
func NewMT940Extractor(logger *slog.Logger) *MT940Extractor {
	return &MT940Extractor{logger: logger}
}

func (e *MT940Extractor) Name() string { return confidence.MethodMT940 }

func (e *MT940Extractor) CanExtract(ec *Context) bool {
	switch strings.ToLower(filepath.Ext(ec.Filename)) {
	case ".sta", ".mt940", ".940":
		return true
	}
	head := ec.Data
	if len(head) > 4096 {
		head = head[:4096]
	}
	s := string(head)
	return strings.Contains(s, ":20:") && strings.Contains(s, ":61:")
}

// taggedField is one MT940 field; a tag may repeat, so fields are kept as
// an ordered list rather than a map.
type taggedField struct {
	Tag   string
	Value string
}

var mt940TagRe = regexp.MustCompile(`^:(\d{2}[A-Z]?):(.*)$`)

// scanTaggedFields splits an MT940 message into its ordered field list.
// Lines that do not start a new tag continue the previous field.
func scanTaggedFields(text string) []taggedField {
	var fields []taggedField
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if m := mt940TagRe.FindStringSubmatch(line); m != nil {
			fields = append(fields, taggedField{Tag: m[1], Value: m[2]})
			continue
		}
		if len(fields) > 0 && strings.TrimSpace(line) != "" {
			fields[len(fields)-1].Value += " " + strings.TrimSpace(line)
		}
	}
	return fields
}

// statementLineRe parses a :61: statement line: value date, optional entry
// date, debit/credit indicator (with reversal prefix), optional funds
// code, comma-decimal amount, transaction type, trailing reference.
var statementLineRe = regexp.MustCompile(
	`^(\d{6})(\d{4})?(R?[CD])([A-Z])?(\d+,\d*)((?:N|F|S)[A-Z0-9]{3})?(.*)$`)

// balanceRe parses :60F:/:62F: balances: indicator, date, currency, amount.
var balanceRe = regexp.MustCompile(`^([CD])(\d{6})([A-Z]{3})(\d+,\d*)$`)

type mt940Balance struct {
	Amount   decimal.Decimal
	Currency string
	Date     time.Time
}

func parseBalance(value string) (mt940Balance, error) {
	m := balanceRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return mt940Balance{}, fmt.Errorf("malformed balance field %q", value)
	}
	amount, err := parseCommaDecimal(m[4])
	if err != nil {
		return mt940Balance{}, err
	}
	if m[1] == "D" {
		amount = amount.Neg()
	}
	date, err := time.Parse("060102", m[2])
	if err != nil {
		return mt940Balance{}, err
	}
	return mt940Balance{Amount: amount, Currency: m[3], Date: date}, nil
}

func parseCommaDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Replace(s, ",", ".", 1))
}

func (e *MT940Extractor) Extract(_ context.Context, ec *Context) *Result {
	fields := scanTaggedFields(string(sniffer.DecodeText(ec.Data)))
	if len(fields) == 0 {
		return failed(e.Name(), ingesterr.New(ingesterr.CodeParserFailure, ingesterr.TierExtraction,
			"no MT940 tagged fields found").WithLocation("%s", ec.Filename))
	}

	res := &Result{
		Method:     e.Name(),
		Confidence: confidence.BaseScore(e.Name()),
		Metadata:   map[string]string{},
	}

	account := ec.AccountHint
	currency := ec.CurrencyHint

	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch f.Tag {
		case "25":
			account = strings.TrimSpace(f.Value)
		case "60F", "60M":
			if bal, err := parseBalance(f.Value); err == nil {
				currency = bal.Currency
				if f.Tag == "60F" {
					res.Metadata["opening_balance"] = bal.Amount.StringFixed(2)
				}
			}
		case "62F", "62M":
			if bal, err := parseBalance(f.Value); err == nil {
				currency = bal.Currency
				if f.Tag == "62F" {
					res.Metadata["closing_balance"] = bal.Amount.StringFixed(2)
				}
			}
		case "61":
			desc := ""
			if i+1 < len(fields) && fields[i+1].Tag == "86" {
				desc = fields[i+1].Value
			}
			tx, err := e.convertStatementLine(f.Value, desc, account, currency, ec)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("statement line %q: %v", f.Value, err))
				e.logger.Warn("skipping MT940 statement line", "file", ec.Filename, "reason", err)
				continue
			}
			res.Transactions = append(res.Transactions, tx)
		}
	}

	if len(res.Transactions) == 0 {
		res.Err = ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"no statement lines found in MT940 message").WithLocation("%s", ec.Filename)
		return res
	}

	res.Success = true
	res.DetectedAccount = account
	res.PeriodStart, res.PeriodEnd = period(res.Transactions)
	return res
}

func (e *MT940Extractor) convertStatementLine(line, rawDesc, account, currency string, ec *Context) (*canonical.Transaction, error) {
	m := statementLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, fmt.Errorf("does not match the :61: layout")
	}

	valueDate, err := time.Parse("060102", m[1])
	if err != nil {
		return nil, fmt.Errorf("value date: %w", err)
	}
	// The optional entry date is MMDD in the value date's year.
	postDate := valueDate
	if m[2] != "" {
		if entry, entryErr := time.Parse("20060102", fmt.Sprintf("%04d%s", valueDate.Year(), m[2])); entryErr == nil {
			postDate = entry
		}
	}

	amount, err := parseCommaDecimal(m[5])
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	// C credits, D debits; the reversal forms flip the original sign.
	switch m[3] {
	case "C", "RD":
		amount = amount.Abs()
	case "D", "RC":
		amount = amount.Abs().Neg()
	}

	desc := normalizer.CleanDescription(rawDesc)
	if desc == "" {
		desc = "statement line " + strings.TrimSpace(m[7])
	}

	if currency == "" {
		currency = defaultCurrency
	}

	tx, err := canonical.New(account, postDate, desc, amount, currency, canonical.SourceMT940)
	if err != nil {
		return nil, err
	}
	vd := valueDate
	tx.ValueDate = &vd
	tx.Reference = strings.TrimSpace(m[7])
	return tx, nil
}
