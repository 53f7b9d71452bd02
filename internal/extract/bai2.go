package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/ingesterr"
	"github.com/ledgerlift/ingest/internal/normalizer"
	"github.com/ledgerlift/ingest/internal/sniffer"
)

// BAI2Extractor handles BAI2 cash-management files: a record-type state
// machine over lines prefixed 01/02/03/16/49/98/99, with 88 continuations
// merged into the preceding record.
type BAI2Extractor struct {
	logger *slog.Logger
}

// NewBAI2Extractor builds the BAI2 extractor.
func NewBAI2Extractor(logger *slog.Logger) *BAI2Extractor {
	return &BAI2Extractor{logger: logger}
}

func (e *BAI2Extractor) Name() string { return confidence.MethodBAI2 }

func (e *BAI2Extractor) CanExtract(ec *Context) bool {
	switch strings.ToLower(filepath.Ext(ec.Filename)) {
	case ".bai", ".bai2":
		return true
	}
	head := ec.Data
	if len(head) > 256 {
		head = head[:256]
	}
	return strings.HasPrefix(strings.TrimSpace(string(head)), "01,")
}

// bai2Records merges 88-continuation lines and splits each logical record
// into comma fields, with the record's trailing "/" removed.
func bai2Records(text string) [][]string {
	var logical []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line), "/"))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "88,") && len(logical) > 0 {
			logical[len(logical)-1] += "," + strings.TrimPrefix(line, "88,")
			continue
		}
		logical = append(logical, line)
	}

	records := make([][]string, 0, len(logical))
	for _, rec := range logical {
		records = append(records, strings.Split(rec, ","))
	}
	return records
}

// debit type codes occupy 400–699; everything else is a credit.
func bai2IsDebit(typeCode int) bool {
	return typeCode >= 400 && typeCode <= 699
}

func (e *BAI2Extractor) Extract(_ context.Context, ec *Context) *Result {
	records := bai2Records(string(sniffer.DecodeText(ec.Data)))
	if len(records) == 0 {
		return failed(e.Name(), ingesterr.New(ingesterr.CodeParserFailure, ingesterr.TierExtraction,
			"no BAI2 records found").WithLocation("%s", ec.Filename))
	}

	res := &Result{
		Method:     e.Name(),
		Confidence: confidence.BaseScore(e.Name()),
	}

	var (
		groupDate time.Time
		account   = ec.AccountHint
		currency  = ec.CurrencyHint
	)

	for _, rec := range records {
		switch rec[0] {
		case "01":
			// File header; the group header carries the as-of date.
		case "02":
			if len(rec) > 4 {
				if d, err := time.Parse("060102", rec[4]); err == nil {
					groupDate = d
				}
			}
			if len(rec) > 6 && rec[6] != "" {
				currency = rec[6]
			}
		case "03":
			if len(rec) > 1 && rec[1] != "" {
				account = rec[1]
			}
			if len(rec) > 2 && rec[2] != "" {
				currency = rec[2]
			}
		case "16":
			tx, err := e.convert(rec, groupDate, account, currency)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("record %q: %v", strings.Join(rec, ","), err))
				e.logger.Warn("skipping BAI2 transaction record", "file", ec.Filename, "reason", err)
				continue
			}
			res.Transactions = append(res.Transactions, tx)
		case "49", "98", "99":
			// Trailers carry control totals only.
		}
	}

	if len(res.Transactions) == 0 {
		res.Err = ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"no type-16 transaction records found").WithLocation("%s", ec.Filename)
		return res
	}

	res.Success = true
	res.DetectedAccount = account
	res.PeriodStart, res.PeriodEnd = period(res.Transactions)
	return res
}

// convert maps a type-16 record: fields are type code, amount in integer
// cents, funds type, bank reference, customer reference, then free text.
func (e *BAI2Extractor) convert(rec []string, date time.Time, account, currency string) (*canonical.Transaction, error) {
	if len(rec) < 3 {
		return nil, fmt.Errorf("too few fields")
	}
	if date.IsZero() {
		return nil, fmt.Errorf("no group as-of date seen before transaction record")
	}

	typeCode, err := strconv.Atoi(strings.TrimSpace(rec[1]))
	if err != nil {
		return nil, fmt.Errorf("type code %q: %w", rec[1], err)
	}

	cents, err := strconv.ParseInt(strings.TrimSpace(rec[2]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", rec[2], err)
	}
	amount := decimal.New(cents, -2)
	if bai2IsDebit(typeCode) {
		amount = amount.Neg()
	}

	desc := ""
	if len(rec) > 6 {
		desc = normalizer.CleanDescription(strings.Join(rec[6:], ","))
	}
	if desc == "" {
		desc = fmt.Sprintf("type %d transaction", typeCode)
	}

	if currency == "" {
		currency = defaultCurrency
	}

	tx, err := canonical.New(account, date, desc, amount, currency, canonical.SourceBAI2)
	if err != nil {
		return nil, err
	}
	if len(rec) > 4 {
		tx.Reference = strings.TrimSpace(rec[4])
	}
	tx.Category = strconv.Itoa(typeCode)
	return tx, nil
}
