package extract

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/ingesterr"
	"github.com/ledgerlift/ingest/internal/normalizer"
	"github.com/ledgerlift/ingest/internal/sniffer"
)

// OFXExtractor handles OFX/QFX downloads, both XML (2.x) and SGML (1.x)
// variants. SGML files leave leaf tags unclosed; they are rewritten into
// well-formed XML before decoding.
type OFXExtractor struct {
	logger *slog.Logger
}

// NewOFXExtractor builds the OFX/QFX extractor.
func NewOFXExtractor(logger *slog.Logger) *OFXExtractor {
	return &OFXExtractor{logger: logger}
}

func (e *OFXExtractor) Name() string { return confidence.MethodOFX }

func (e *OFXExtractor) CanExtract(ec *Context) bool {
	switch strings.ToLower(filepath.Ext(ec.Filename)) {
	case ".ofx", ".qfx":
		return true
	}
	head := ec.Data
	if len(head) > 2048 {
		head = head[:2048]
	}
	return strings.Contains(strings.ToUpper(string(head)), "<OFX>")
}

type ofxDocument struct {
	XMLName        xml.Name       `xml:"OFX"`
	BankStatements []ofxStatement `xml:"BANKMSGSRSV1>STMTTRNRS>STMTRS"`
	CardStatements []ofxStatement `xml:"CREDITCARDMSGSRSV1>CCSTMTTRNRS>CCSTMTRS"`
}

type ofxStatement struct {
	Currency      string   `xml:"CURDEF"`
	BankAccountID string   `xml:"BANKACCTFROM>ACCTID"`
	CardAccountID string   `xml:"CCACCTFROM>ACCTID"`
	Transactions  []ofxTxn `xml:"BANKTRANLIST>STMTTRN"`
	LedgerBalance string   `xml:"LEDGERBAL>BALAMT"`
}

func (s ofxStatement) accountID() string {
	if s.BankAccountID != "" {
		return s.BankAccountID
	}
	return s.CardAccountID
}

type ofxTxn struct {
	Type   string `xml:"TRNTYPE"`
	Posted string `xml:"DTPOSTED"`
	Amount string `xml:"TRNAMT"`
	FITID  string `xml:"FITID"`
	Name   string `xml:"NAME"`
	Memo   string `xml:"MEMO"`
}

func (e *OFXExtractor) Extract(_ context.Context, ec *Context) *Result {
	decoded := string(sniffer.DecodeText(ec.Data))

	start := strings.Index(strings.ToUpper(decoded), "<OFX>")
	if start < 0 {
		return failed(e.Name(), ingesterr.New(ingesterr.CodeParserFailure, ingesterr.TierExtraction,
			"no <OFX> document found").WithLocation("%s", ec.Filename))
	}

	normalized := sgmlToXML(decoded[start:])

	var doc ofxDocument
	if err := xml.Unmarshal([]byte(normalized), &doc); err != nil {
		return failed(e.Name(), ingesterr.Wrap(ingesterr.CodeParserFailure, ingesterr.TierExtraction,
			"OFX body could not be parsed", err).WithLocation("%s", ec.Filename))
	}

	res := &Result{
		Method:     e.Name(),
		Confidence: confidence.BaseScore(e.Name()),
	}

	statements := append(doc.BankStatements, doc.CardStatements...)
	for _, stmt := range statements {
		for i, raw := range stmt.Transactions {
			tx, err := e.convert(raw, stmt, ec)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("STMTTRN %d: %v", i+1, err))
				e.logger.Warn("skipping OFX transaction", "file", ec.Filename, "index", i, "reason", err)
				continue
			}
			res.Transactions = append(res.Transactions, tx)
		}
	}

	if len(res.Transactions) == 0 {
		res.Err = ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"no transactions found in OFX document").WithLocation("%s", ec.Filename)
		return res
	}

	res.Success = true
	res.DetectedAccount = firstAccount(res.Transactions)
	res.PeriodStart, res.PeriodEnd = period(res.Transactions)
	return res
}

func (e *OFXExtractor) convert(raw ofxTxn, stmt ofxStatement, ec *Context) (*canonical.Transaction, error) {
	date, err := parseOFXDate(raw.Posted)
	if err != nil {
		return nil, err
	}

	amount, err := normalizer.ParseAmount(raw.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", raw.Amount, err)
	}

	desc := normalizer.CleanDescription(strings.TrimSpace(raw.Name + " " + raw.Memo))
	if desc == "" {
		desc = strings.ToLower(raw.Type)
	}

	account := stmt.accountID()
	if account == "" {
		account = ec.AccountHint
	}
	currency := stmt.Currency
	if currency == "" {
		currency = ec.CurrencyHint
	}
	if currency == "" {
		currency = defaultCurrency
	}

	tx, err := canonical.New(account, date, desc, amount, currency, canonical.SourceOFX)
	if err != nil {
		return nil, err
	}
	tx.Reference = raw.FITID
	return tx, nil
}

// parseOFXDate reads the leading YYYYMMDD of an OFX datetime, ignoring the
// optional time and timezone suffix ("20240115120000[-5:EST]").
func parseOFXDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 8 {
		return time.Time{}, fmt.Errorf("date %q too short", raw)
	}
	return time.Parse("20060102", raw[:8])
}

// sgmlToXML rewrites OFX 1.x SGML into well-formed XML. SGML leaf elements
// carry their value after the open tag with no close tag; an open-tag
// stack auto-closes them when the next tag or a parent close appears.
func sgmlToXML(s string) string {
	var out strings.Builder
	var stack []string
	lastAutoClosed := ""

	pop := func() {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.WriteString("</" + top + ">")
	}

	i := 0
	for i < len(s) {
		lt := strings.IndexByte(s[i:], '<')
		if lt < 0 {
			if text := strings.TrimSpace(s[i:]); text != "" && len(stack) > 0 {
				out.WriteString(escapeOFXText(text))
				lastAutoClosed = stack[len(stack)-1]
				pop()
			}
			break
		}

		gt := strings.IndexByte(s[i+lt:], '>')
		if gt < 0 {
			break
		}

		if text := strings.TrimSpace(s[i : i+lt]); text != "" && len(stack) > 0 {
			out.WriteString(escapeOFXText(text))
			lastAutoClosed = stack[len(stack)-1]
			pop()
		}

		tag := strings.TrimSpace(s[i+lt+1 : i+lt+gt])
		switch {
		case strings.HasPrefix(tag, "/"):
			name := tag[1:]
			if name == lastAutoClosed {
				// The value already closed this leaf.
			} else {
				for len(stack) > 0 {
					top := stack[len(stack)-1]
					pop()
					if top == name {
						break
					}
				}
			}
			lastAutoClosed = ""
		case tag == "" || strings.HasPrefix(tag, "?") || strings.HasPrefix(tag, "!"):
			// Declarations and comments are dropped.
		case strings.HasSuffix(tag, "/"):
			out.WriteString("<" + tag + ">")
			lastAutoClosed = ""
		default:
			out.WriteString("<" + tag + ">")
			stack = append(stack, tag)
			lastAutoClosed = ""
		}
		i += lt + gt + 1
	}

	for len(stack) > 0 {
		pop()
	}
	return out.String()
}

var ofxTextEscaper = strings.NewReplacer("&amp;", "&amp;", "&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeOFXText(text string) string {
	return ofxTextEscaper.Replace(text)
}
