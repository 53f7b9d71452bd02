package extract

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlift/ingest/internal/canonical"
)

func camtEntryXML(amount, indicator, date, info string) string {
	return `<Ntry>
		<Amt Ccy="EUR">` + amount + `</Amt>
		<CdtDbtInd>` + indicator + `</CdtDbtInd>
		<BookgDt><Dt>` + date + `</Dt></BookgDt>
		<ValDt><Dt>` + date + `</Dt></ValDt>
		<NtryDtls><TxDtls><RmtInf><Ustrd>` + info + `</Ustrd></RmtInf></TxDtls></NtryDtls>
	</Ntry>`
}

func camtDocumentXML(entries ...string) string {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.053.001.02">
<BkToCstmrStmt><Stmt>
<Acct><Id><IBAN>DE89370400440532013000</IBAN></Id><Ccy>EUR</Ccy></Acct>`
	for _, e := range entries {
		doc += e
	}
	return doc + `</Stmt></BkToCstmrStmt></Document>`
}

func TestCAMTExtractor_NetChange(t *testing.T) {
	e := NewCAMTExtractor(testLogger())
	data := camtDocumentXML(
		camtEntryXML("500.00", "DBIT", "2024-01-10", "Rent January"),
		camtEntryXML("2500.00", "CRDT", "2024-01-12", "Salary"),
		camtEntryXML("150.00", "DBIT", "2024-01-15", "Utilities"),
		camtEntryXML("800.00", "DBIT", "2024-01-20", "Car insurance"),
		camtEntryXML("1200.00", "CRDT", "2024-01-25", "Invoice payment"),
	)

	res := e.Extract(context.Background(), fileContext("camt053.xml", data))
	require.True(t, res.Success, "extraction failed: %v", res.Err)
	require.Len(t, res.Transactions, 5)

	assert.True(t, netAmount(res.Transactions).Equal(decimal.RequireFromString("2250.00")),
		"net = %s", netAmount(res.Transactions))
	assert.Equal(t, "camt", res.Method)
	assert.Equal(t, "DE89370400440532013000", res.DetectedAccount)
	for _, tx := range res.Transactions {
		assert.Equal(t, canonical.SourceCAMT, tx.Source)
		assert.Equal(t, "EUR", tx.Currency)
	}
}

func TestCAMTExtractor_BookingDateFallsBackToValueDate(t *testing.T) {
	e := NewCAMTExtractor(testLogger())
	data := camtDocumentXML(`<Ntry>
		<Amt Ccy="EUR">42.00</Amt>
		<CdtDbtInd>DBIT</CdtDbtInd>
		<ValDt><Dt>2024-02-03</Dt></ValDt>
		<NtryDtls><TxDtls><RmtInf><Ustrd>Card payment</Ustrd></RmtInf></TxDtls></NtryDtls>
	</Ntry>`)

	res := e.Extract(context.Background(), fileContext("camt053.xml", data))
	require.True(t, res.Success)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, 3, res.Transactions[0].PostDate.Day())
}

func TestCAMTExtractor_UnknownIndicatorSkipsEntry(t *testing.T) {
	e := NewCAMTExtractor(testLogger())
	data := camtDocumentXML(
		camtEntryXML("10.00", "XXXX", "2024-01-10", "Bogus"),
		camtEntryXML("20.00", "CRDT", "2024-01-11", "Fine"),
	)

	res := e.Extract(context.Background(), fileContext("camt053.xml", data))
	require.True(t, res.Success)
	assert.Len(t, res.Transactions, 1)
	assert.NotEmpty(t, res.Warnings)
}

func TestCAMTExtractor_CanExtract(t *testing.T) {
	e := NewCAMTExtractor(testLogger())
	assert.True(t, e.CanExtract(fileContext("x.xml", camtDocumentXML())))
	assert.False(t, e.CanExtract(fileContext("x.xml", "<html></html>")))
}
