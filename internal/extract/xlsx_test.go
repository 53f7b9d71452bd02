package extract

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/ingesterr"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestXLSXExtractor(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Account statement export"},
		{},
		{"Date", "Description", "Amount", "Balance"},
		{"2024-01-15", "Coffee Shop", "-4.50", "995.50"},
		{"2024-01-16", "Salary", "2500.00", "3495.50"},
	})

	e := NewXLSXExtractor(testLogger())
	ec := &Context{Data: data, Filename: "statement.xlsx", Size: int64(len(data)), CurrencyHint: "EUR"}

	require.True(t, e.CanExtract(ec))
	res := e.Extract(context.Background(), ec)
	require.True(t, res.Success, "extraction failed: %v", res.Err)

	assert.Equal(t, "xlsx", res.Method)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, canonical.SourceXLSX, res.Transactions[0].Source)
	assert.True(t, res.Transactions[0].Amount.Equal(decimal.RequireFromString("-4.50")))
	require.NotNil(t, res.Transactions[0].Balance)
	assert.True(t, res.Transactions[0].Balance.Equal(decimal.RequireFromString("995.50")))
}

func TestXLSXExtractor_NoHeaderRow(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Just", "some", "cells"},
		{"with", "no", "statement"},
	})

	e := NewXLSXExtractor(testLogger())
	res := e.Extract(context.Background(), &Context{Data: data, Filename: "junk.xlsx"})
	assert.False(t, res.Success)
	assert.Equal(t, ingesterr.CodeMissingRequiredColumns, ingesterr.CodeOf(res.Err))
}

func TestXLSXExtractor_NotAWorkbook(t *testing.T) {
	e := NewXLSXExtractor(testLogger())
	res := e.Extract(context.Background(), fileContext("statement.xlsx", "not a zip"))
	assert.False(t, res.Success)
	assert.Equal(t, ingesterr.CodeParserFailure, ingesterr.CodeOf(res.Err))
}
