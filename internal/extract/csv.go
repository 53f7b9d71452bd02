package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/ingesterr"
	"github.com/ledgerlift/ingest/internal/normalizer"
	"github.com/ledgerlift/ingest/internal/sniffer"
)

// defaultCurrency applies when neither the file nor the caller provides a
// currency code.
const defaultCurrency = "EUR"

// statementRow is the gocsv fast path for exports with standard headers.
// One field per known synonym; gocsv matches by header name.
type statementRow struct {
	Date      string `csv:"date"`
	Data      string `csv:"data"`
	Fecha     string `csv:"fecha"`
	Datum     string `csv:"datum"`
	ValueDate string `csv:"value date"`

	Description string `csv:"description"`
	Descricao   string `csv:"descrição"`
	Descricao2  string `csv:"descricao"`
	Merchant    string `csv:"merchant"`
	Payee       string `csv:"payee"`
	Memo        string `csv:"memo"`

	Amount  string `csv:"amount"`
	Valor   string `csv:"valor"`
	Importe string `csv:"importe"`

	Debit  string `csv:"debit"`
	Debito string `csv:"débito"`
	Cargo  string `csv:"cargo"`

	Credit  string `csv:"credit"`
	Credito string `csv:"crédito"`
	Abono   string `csv:"abono"`

	Balance string `csv:"balance"`
	Saldo   string `csv:"saldo"`

	Account   string `csv:"account"`
	Reference string `csv:"reference"`
	Category  string `csv:"category"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// rawRow is the format-independent row shape both CSV paths produce.
type rawRow struct {
	Date        string
	ValueDate   string
	Description string
	Amount      string
	Debit       string
	Credit      string
	Balance     string
	Account     string
	Reference   string
	Category    string
}

func (r statementRow) toRaw() rawRow {
	return rawRow{
		Date:        firstNonEmpty(r.Date, r.Data, r.Fecha, r.Datum),
		ValueDate:   r.ValueDate,
		Description: firstNonEmpty(r.Description, r.Descricao, r.Descricao2, r.Merchant, r.Payee, r.Memo),
		Amount:      firstNonEmpty(r.Amount, r.Valor, r.Importe),
		Debit:       firstNonEmpty(r.Debit, r.Debito, r.Cargo),
		Credit:      firstNonEmpty(r.Credit, r.Credito, r.Abono),
		Balance:     firstNonEmpty(r.Balance, r.Saldo),
		Account:     r.Account,
		Reference:   r.Reference,
		Category:    r.Category,
	}
}

// CSVExtractor handles delimited text exports.
type CSVExtractor struct {
	logger *slog.Logger
}

// NewCSVExtractor builds the delimited-text extractor.
func NewCSVExtractor(logger *slog.Logger) *CSVExtractor {
	return &CSVExtractor{logger: logger}
}

func (e *CSVExtractor) Name() string { return confidence.MethodCSV }

// CanExtract accepts delimited-text extensions and MIME types. Plain .txt
// is accepted too; structured-format extractors run earlier in dispatch
// order and claim their own text formats first.
func (e *CSVExtractor) CanExtract(ec *Context) bool {
	switch strings.ToLower(filepath.Ext(ec.Filename)) {
	case ".csv", ".tsv", ".txt":
		return true
	}
	return ec.MIMEType == "text/csv" || ec.MIMEType == "text/tab-separated-values"
}

// Extract sniffs encoding, delimiter, and header layout, then parses rows
// through the gocsv fast path when the headers are standard, or the
// index-mapped fallback otherwise. One bad row is skipped with a warning;
// it never aborts the file.
func (e *CSVExtractor) Extract(_ context.Context, ec *Context) *Result {
	decoded := sniffer.DecodeText(ec.Data)

	cfg, err := sniffer.DetectConfig(decoded)
	if err != nil {
		return failed(e.Name(), ingesterr.Wrap(ingesterr.CodeMalformedCSV, ingesterr.TierValidation,
			"could not detect delimiter and header layout", err).WithLocation("%s", ec.Filename))
	}

	colmap := sniffer.MapColumns(cfg.Headers)
	if missing := requiredColumnsMissing(colmap); len(missing) > 0 {
		return failed(e.Name(), ingesterr.New(ingesterr.CodeMissingRequiredColumns, ingesterr.TierValidation,
			"statement is missing required columns: "+strings.Join(missing, ", ")).
			WithLocation("%s", ec.Filename).
			WithEvidence(strings.Join(cfg.Headers, ",")))
	}

	preferred := e.preferredDateFormat(cfg, colmap)

	rows, err := e.readRows(decoded, cfg, colmap)
	if err != nil {
		return failed(e.Name(), ingesterr.Wrap(ingesterr.CodeMalformedCSV, ingesterr.TierValidation,
			"statement rows could not be parsed", err).WithLocation("%s", ec.Filename))
	}

	res := &Result{
		Method:     e.Name(),
		Confidence: confidence.BaseScore(e.Name()),
		Metadata:   map[string]string{"delimiter": string(cfg.Delimiter)},
	}
	if preferred != "" {
		res.Metadata["date_format"] = preferred
	}

	ambiguous := 0
	for i, raw := range rows {
		rowNum := cfg.SkipLines + i + 2 // 1-indexed, after the header
		tx, amb, rowErr := e.normalizeRow(raw, ec, rowNum, preferred)
		if rowErr != nil {
			res.Warnings = append(res.Warnings, rowErr.Error())
			e.logger.Warn("skipping statement row", "file", ec.Filename, "row", rowNum, "reason", rowErr)
			continue
		}
		if amb {
			ambiguous++
		}
		res.Transactions = append(res.Transactions, tx)
	}

	if len(res.Transactions) == 0 {
		res.Err = ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"no usable transaction rows found").WithLocation("%s", ec.Filename)
		return res
	}

	if ambiguous > 0 {
		res.Metadata["ambiguous_dates"] = fmt.Sprintf("%d", ambiguous)
	}
	res.Success = true
	res.DetectedAccount = firstAccount(res.Transactions)
	res.PeriodStart, res.PeriodEnd = period(res.Transactions)
	return res
}

// requiredColumnsMissing lists the mandatory fields the header row lacks.
func requiredColumnsMissing(m sniffer.ColumnMap) []string {
	var missing []string
	if !m.Has(sniffer.FieldDate) {
		missing = append(missing, string(sniffer.FieldDate))
	}
	if !m.Has(sniffer.FieldDescription) {
		missing = append(missing, string(sniffer.FieldDescription))
	}
	if !m.HasAmount() {
		missing = append(missing, string(sniffer.FieldAmount))
	}
	return missing
}

// preferredDateFormat detects the dominant date format from the sample
// rows so ambiguous day/month values parse consistently across the file.
func (e *CSVExtractor) preferredDateFormat(cfg *sniffer.FileConfig, m sniffer.ColumnMap) string {
	idx, ok := m[sniffer.FieldDate]
	if !ok || idx < 0 {
		return ""
	}
	var samples []string
	for _, row := range cfg.SampleRows {
		if idx < len(row) {
			samples = append(samples, row[idx])
		}
	}
	return normalizer.DetectDateFormat(samples)
}

// readRows parses all data rows, preferring the gocsv struct path when the
// headers use standard names.
func (e *CSVExtractor) readRows(decoded []byte, cfg *sniffer.FileConfig, m sniffer.ColumnMap) ([]rawRow, error) {
	payload, ok := dataPayload(decoded, cfg.SkipLines)
	if !ok {
		return nil, sniffer.ErrEmptyFile
	}

	if gocsvCompatible(cfg.Headers) {
		rows, err := readGocsvRows(payload, cfg.Delimiter)
		if err == nil {
			return rows, nil
		}
		e.logger.Warn("gocsv fast path failed, using index mapping", "reason", err)
	}
	return readIndexedRows(payload, cfg.Delimiter, m)
}

// dataPayload drops the metadata lines preceding the header row and
// lowercases the header line so struct-tag matching is case-insensitive.
func dataPayload(decoded []byte, skipLines int) ([]byte, bool) {
	lines := strings.Split(string(decoded), "\n")
	if skipLines >= len(lines) {
		return nil, false
	}
	lines = lines[skipLines:]
	lines[0] = strings.ToLower(lines[0])
	return []byte(strings.Join(lines, "\n")), true
}

// gocsvTags is the header vocabulary the statementRow fast path covers.
var gocsvTags = map[string]struct{}{
	"date": {}, "data": {}, "fecha": {}, "datum": {}, "value date": {},
	"description": {}, "descrição": {}, "descricao": {}, "merchant": {}, "payee": {}, "memo": {},
	"amount": {}, "valor": {}, "importe": {},
	"debit": {}, "débito": {}, "cargo": {},
	"credit": {}, "crédito": {}, "abono": {},
	"balance": {}, "saldo": {},
	"account": {}, "reference": {}, "category": {},
}

// gocsvCompatible reports whether every header is covered by the fast-path
// struct tags; any unknown header routes to index mapping instead.
func gocsvCompatible(headers []string) bool {
	for _, h := range headers {
		if _, ok := gocsvTags[strings.ToLower(strings.TrimSpace(h))]; !ok {
			return false
		}
	}
	return len(headers) > 0
}

func newCSVReader(r io.Reader, delimiter rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return cr
}

func readGocsvRows(payload []byte, delimiter rune) ([]rawRow, error) {
	var structured []statementRow
	if err := gocsv.UnmarshalCSV(newCSVReader(bytes.NewReader(payload), delimiter), &structured); err != nil {
		return nil, err
	}
	rows := make([]rawRow, 0, len(structured))
	for _, r := range structured {
		rows = append(rows, r.toRaw())
	}
	return rows, nil
}

func readIndexedRows(payload []byte, delimiter rune, m sniffer.ColumnMap) ([]rawRow, error) {
	cr := newCSVReader(bytes.NewReader(payload), delimiter)

	// Header row already consumed by detection; skip it here.
	if _, err := cr.Read(); err != nil {
		return nil, err
	}

	cell := func(record []string, field sniffer.Field) string {
		idx, ok := m[field]
		if !ok || idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []rawRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rawRow{
			Date:        cell(record, sniffer.FieldDate),
			ValueDate:   cell(record, sniffer.FieldValueDate),
			Description: cell(record, sniffer.FieldDescription),
			Amount:      cell(record, sniffer.FieldAmount),
			Debit:       cell(record, sniffer.FieldDebit),
			Credit:      cell(record, sniffer.FieldCredit),
			Balance:     cell(record, sniffer.FieldBalance),
			Account:     cell(record, sniffer.FieldAccount),
			Reference:   cell(record, sniffer.FieldReference),
			Category:    cell(record, sniffer.FieldCategory),
		})
	}
	return rows, nil
}

// normalizeRow converts one raw row into a canonical transaction. The
// returned bool reports whether the row's date was day/month ambiguous.
func (e *CSVExtractor) normalizeRow(raw rawRow, ec *Context, rowNum int, preferred string) (*canonical.Transaction, bool, error) {
	if raw.Date == "" && raw.Description == "" && raw.Amount == "" && raw.Debit == "" && raw.Credit == "" {
		return nil, false, fmt.Errorf("row %d: empty row", rowNum)
	}

	date, ambiguous, err := normalizer.ParseFlexibleDate(raw.Date, preferred)
	if err != nil {
		return nil, false, fmt.Errorf("row %d: %w", rowNum, err)
	}

	desc := normalizer.CleanDescription(raw.Description)
	if desc == "" {
		return nil, false, fmt.Errorf("row %d: missing description", rowNum)
	}

	amount, err := rowAmount(raw)
	if err != nil {
		return nil, false, fmt.Errorf("row %d: %w", rowNum, err)
	}

	account := raw.Account
	if account == "" {
		account = ec.AccountHint
	}
	currency := ec.CurrencyHint
	if currency == "" {
		currency = defaultCurrency
	}

	tx, err := canonical.New(account, date, desc, amount, currency, canonical.SourceCSV)
	if err != nil {
		return nil, false, fmt.Errorf("row %d: %w", rowNum, err)
	}

	if raw.ValueDate != "" {
		if vd, _, vdErr := normalizer.ParseFlexibleDate(raw.ValueDate, preferred); vdErr == nil {
			tx.ValueDate = &vd
		}
	}
	if raw.Balance != "" {
		if bal, balErr := normalizer.ParseAmount(raw.Balance); balErr == nil {
			tx.Balance = &bal
		}
	}
	tx.Reference = raw.Reference
	tx.Category = raw.Category
	return tx, ambiguous, nil
}

func rowAmount(raw rawRow) (decimal.Decimal, error) {
	if raw.Debit != "" || raw.Credit != "" {
		return normalizer.NormalizeDebitCredit(raw.Debit, raw.Credit)
	}
	if raw.Amount == "" {
		return decimal.Zero, fmt.Errorf("no amount value")
	}
	return normalizer.ParseAmount(raw.Amount)
}

func firstAccount(txs []*canonical.Transaction) string {
	for _, tx := range txs {
		if tx.AccountID != "" {
			return tx.AccountID
		}
	}
	return ""
}
