package canonical

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("valid transaction", func(t *testing.T) {
		tx, err := New("ACC-1", date, "  Coffee Shop  ", decimal.NewFromFloat(-4.50), "eur", SourceCSV)
		require.NoError(t, err)

		assert.Equal(t, "EUR", tx.Currency)
		assert.Equal(t, "Coffee Shop", tx.Description)
		assert.True(t, tx.IsDebit())
		assert.False(t, tx.IsCredit())
		assert.False(t, tx.IsDuplicate())
		assert.NotEqual(t, tx.ID.String(), "00000000-0000-0000-0000-000000000000")
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		_, err := New("ACC-1", date, "fee", decimal.Zero, "EUR", SourceCSV)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "zero-amount")
	})

	t.Run("rejects unknown source kind", func(t *testing.T) {
		_, err := New("ACC-1", date, "fee", decimal.NewFromInt(1), "EUR", SourceKind("fax"))
		require.Error(t, err)
	})

	t.Run("rejects malformed currency", func(t *testing.T) {
		for _, code := range []string{"", "E", "EURO", "E1R"} {
			_, err := New("ACC-1", date, "fee", decimal.NewFromInt(1), code, SourceCSV)
			assert.Error(t, err, "code %q", code)
		}
	})

	t.Run("keeps unknown three-letter codes", func(t *testing.T) {
		tx, err := New("ACC-1", date, "fee", decimal.NewFromInt(1), "xts", SourceCSV)
		require.NoError(t, err)
		assert.Equal(t, "XTS", tx.Currency)
	})
}

func TestSourceKind_Valid(t *testing.T) {
	for _, k := range []SourceKind{SourceCSV, SourceXLSX, SourceOFX, SourceCAMT, SourceMT940, SourceBAI2, SourcePDF, SourceOCR, SourceImage} {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, SourceKind("").Valid())
	assert.False(t, SourceKind("paper").Valid())
}

func TestCurrencyFraction(t *testing.T) {
	date := time.Now()
	eur, err := New("A", date, "x", decimal.NewFromInt(1), "EUR", SourceCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, eur.CurrencyFraction())

	jpy, err := New("A", date, "x", decimal.NewFromInt(1), "JPY", SourceCSV)
	require.NoError(t, err)
	assert.Equal(t, 0, jpy.CurrencyFraction())
}
