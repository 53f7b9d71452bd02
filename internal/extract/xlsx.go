package extract

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/ingesterr"
	"github.com/ledgerlift/ingest/internal/normalizer"
	"github.com/ledgerlift/ingest/internal/sniffer"
)

// XLSXExtractor handles Excel statement exports. The first sheet's rows go
// through the same header-mapping path as CSV.
type XLSXExtractor struct {
	logger *slog.Logger
}

// NewXLSXExtractor builds the Excel extractor.
func NewXLSXExtractor(logger *slog.Logger) *XLSXExtractor {
	return &XLSXExtractor{logger: logger}
}

func (e *XLSXExtractor) Name() string { return confidence.MethodXLSX }

func (e *XLSXExtractor) CanExtract(ec *Context) bool {
	switch strings.ToLower(filepath.Ext(ec.Filename)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return ec.MIMEType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExtractor) Extract(_ context.Context, ec *Context) *Result {
	f, err := excelize.OpenReader(bytes.NewReader(ec.Data))
	if err != nil {
		return failed(e.Name(), ingesterr.Wrap(ingesterr.CodeParserFailure, ingesterr.TierExtraction,
			"workbook could not be opened", err).WithLocation("%s", ec.Filename))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return failed(e.Name(), ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"workbook has no sheets").WithLocation("%s", ec.Filename))
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return failed(e.Name(), ingesterr.Wrap(ingesterr.CodeParserFailure, ingesterr.TierExtraction,
			"sheet rows could not be read", err).WithLocation("%s!%s", ec.Filename, sheets[0]))
	}

	headerIdx, colmap := locateHeaderRow(cells)
	if headerIdx < 0 {
		return failed(e.Name(), ingesterr.New(ingesterr.CodeMissingRequiredColumns, ingesterr.TierValidation,
			"no header row with date, description, and amount columns found").
			WithLocation("%s!%s", ec.Filename, sheets[0]))
	}

	preferred := e.preferredDateFormat(cells[headerIdx+1:], colmap)

	res := &Result{
		Method:     e.Name(),
		Confidence: confidence.BaseScore(e.Name()),
		Metadata:   map[string]string{"sheet": sheets[0]},
	}

	csvPath := &CSVExtractor{logger: e.logger}
	for i, record := range cells[headerIdx+1:] {
		rowNum := headerIdx + i + 2
		raw := rawRowFromRecord(record, colmap)
		tx, _, rowErr := csvPath.normalizeRow(raw, ec, rowNum, preferred)
		if rowErr != nil {
			res.Warnings = append(res.Warnings, rowErr.Error())
			e.logger.Warn("skipping sheet row", "file", ec.Filename, "row", rowNum, "reason", rowErr)
			continue
		}
		tx.Source = canonical.SourceXLSX
		res.Transactions = append(res.Transactions, tx)
	}

	if len(res.Transactions) == 0 {
		res.Err = ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"no usable transaction rows found").WithLocation("%s!%s", ec.Filename, sheets[0])
		return res
	}

	res.Success = true
	res.DetectedAccount = firstAccount(res.Transactions)
	res.PeriodStart, res.PeriodEnd = period(res.Transactions)
	return res
}

// locateHeaderRow scans the leading sheet rows for the first one whose
// cells map to the required statement columns.
func locateHeaderRow(cells [][]string) (int, sniffer.ColumnMap) {
	limit := len(cells)
	if limit > 20 {
		limit = 20
	}
	for i := 0; i < limit; i++ {
		m := sniffer.MapColumns(cells[i])
		if len(requiredColumnsMissing(m)) == 0 {
			return i, m
		}
	}
	return -1, nil
}

func (e *XLSXExtractor) preferredDateFormat(rows [][]string, m sniffer.ColumnMap) string {
	idx, ok := m[sniffer.FieldDate]
	if !ok || idx < 0 {
		return ""
	}
	var samples []string
	for _, row := range rows {
		if len(samples) == 5 {
			break
		}
		if idx < len(row) {
			samples = append(samples, row[idx])
		}
	}
	return normalizer.DetectDateFormat(samples)
}

func rawRowFromRecord(record []string, m sniffer.ColumnMap) rawRow {
	cell := func(field sniffer.Field) string {
		idx, ok := m[field]
		if !ok || idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	return rawRow{
		Date:        cell(sniffer.FieldDate),
		ValueDate:   cell(sniffer.FieldValueDate),
		Description: cell(sniffer.FieldDescription),
		Amount:      cell(sniffer.FieldAmount),
		Debit:       cell(sniffer.FieldDebit),
		Credit:      cell(sniffer.FieldCredit),
		Balance:     cell(sniffer.FieldBalance),
		Account:     cell(sniffer.FieldAccount),
		Reference:   cell(sniffer.FieldReference),
		Category:    cell(sniffer.FieldCategory),
	}
}
