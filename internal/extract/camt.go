package extract

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/ingesterr"
	"github.com/ledgerlift/ingest/internal/normalizer"
	"github.com/ledgerlift/ingest/internal/sniffer"
)

// CAMTExtractor handles ISO 20022 cash-management statements (camt.053)
// and debit/credit notifications (camt.054).
type CAMTExtractor struct {
	logger *slog.Logger
}

// NewCAMTExtractor builds the ISO 20022 extractor.
func NewCAMTExtractor(logger *slog.Logger) *CAMTExtractor {
	return &CAMTExtractor{logger: logger}
}

func (e *CAMTExtractor) Name() string { return confidence.MethodCAMT }

func (e *CAMTExtractor) CanExtract(ec *Context) bool {
	head := ec.Data
	if len(head) > 4096 {
		head = head[:4096]
	}
	s := string(head)
	return strings.Contains(s, "urn:iso:std:iso:20022:tech:xsd:camt") ||
		strings.Contains(s, "<BkToCstmrStmt>") ||
		strings.Contains(s, "<BkToCstmrDbtCdtNtfctn>")
}

type camtDocument struct {
	XMLName       xml.Name        `xml:"Document"`
	Statements    []camtStatement `xml:"BkToCstmrStmt>Stmt"`
	Notifications []camtStatement `xml:"BkToCstmrDbtCdtNtfctn>Ntfctn"`
}

type camtStatement struct {
	IBAN     string      `xml:"Acct>Id>IBAN"`
	OtherID  string      `xml:"Acct>Id>Othr>Id"`
	Currency string      `xml:"Acct>Ccy"`
	Entries  []camtEntry `xml:"Ntry"`
}

func (s camtStatement) accountID() string {
	if s.IBAN != "" {
		return s.IBAN
	}
	return s.OtherID
}

type camtEntry struct {
	Amount       camtAmount `xml:"Amt"`
	CreditDebit  string     `xml:"CdtDbtInd"`
	BookingDate  camtDate   `xml:"BookgDt"`
	ValueDate    camtDate   `xml:"ValDt"`
	ServicerRef  string     `xml:"AcctSvcrRef"`
	Unstructured []string   `xml:"NtryDtls>TxDtls>RmtInf>Ustrd"`
	AddtlInfo    string     `xml:"AddtlNtryInf"`
}

type camtAmount struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

type camtDate struct {
	Date     string `xml:"Dt"`
	DateTime string `xml:"DtTm"`
}

// parse returns the entry date; camt carries either a plain date or a
// full datetime.
func (d camtDate) parse() (time.Time, bool) {
	if d.Date != "" {
		if t, err := time.Parse("2006-01-02", strings.TrimSpace(d.Date)); err == nil {
			return t, true
		}
	}
	if d.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(d.DateTime)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (e *CAMTExtractor) Extract(_ context.Context, ec *Context) *Result {
	var doc camtDocument
	if err := xml.Unmarshal(sniffer.DecodeText(ec.Data), &doc); err != nil {
		return failed(e.Name(), ingesterr.Wrap(ingesterr.CodeParserFailure, ingesterr.TierExtraction,
			"ISO 20022 document could not be parsed", err).WithLocation("%s", ec.Filename))
	}

	res := &Result{
		Method:     e.Name(),
		Confidence: confidence.BaseScore(e.Name()),
	}

	statements := append(doc.Statements, doc.Notifications...)
	for si, stmt := range statements {
		for ei, entry := range stmt.Entries {
			tx, err := e.convert(entry, stmt, ec)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("statement %d entry %d: %v", si+1, ei+1, err))
				e.logger.Warn("skipping camt entry", "file", ec.Filename, "entry", ei, "reason", err)
				continue
			}
			res.Transactions = append(res.Transactions, tx)
		}
	}

	if len(res.Transactions) == 0 {
		res.Err = ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"no entries found in ISO 20022 document").WithLocation("%s", ec.Filename)
		return res
	}

	res.Success = true
	res.DetectedAccount = firstAccount(res.Transactions)
	res.PeriodStart, res.PeriodEnd = period(res.Transactions)
	return res
}

// convert maps one Ntry to a canonical transaction. The credit/debit
// indicator determines the sign: CRDT positive, DBIT negated. The booking
// date is preferred, falling back to the value date.
func (e *CAMTExtractor) convert(entry camtEntry, stmt camtStatement, ec *Context) (*canonical.Transaction, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(entry.Amount.Value))
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", entry.Amount.Value, err)
	}

	switch strings.ToUpper(strings.TrimSpace(entry.CreditDebit)) {
	case "CRDT":
		amount = amount.Abs()
	case "DBIT":
		amount = amount.Abs().Neg()
	default:
		return nil, fmt.Errorf("unknown credit/debit indicator %q", entry.CreditDebit)
	}

	date, ok := entry.BookingDate.parse()
	if !ok {
		date, ok = entry.ValueDate.parse()
	}
	if !ok {
		return nil, fmt.Errorf("entry has neither booking nor value date")
	}

	desc := normalizer.CleanDescription(strings.Join(entry.Unstructured, " "))
	if desc == "" {
		desc = normalizer.CleanDescription(entry.AddtlInfo)
	}
	if desc == "" {
		return nil, fmt.Errorf("entry has no remittance information")
	}

	account := stmt.accountID()
	if account == "" {
		account = ec.AccountHint
	}
	currency := entry.Amount.Currency
	if currency == "" {
		currency = stmt.Currency
	}
	if currency == "" {
		currency = ec.CurrencyHint
	}
	if currency == "" {
		currency = defaultCurrency
	}

	tx, err := canonical.New(account, date, desc, amount, currency, canonical.SourceCAMT)
	if err != nil {
		return nil, err
	}
	if vd, ok := entry.ValueDate.parse(); ok {
		tx.ValueDate = &vd
	}
	tx.Reference = entry.ServicerRef
	return tx, nil
}
