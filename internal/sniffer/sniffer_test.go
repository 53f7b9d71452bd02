package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	t.Run("passes valid utf8 through", func(t *testing.T) {
		in := []byte("date,description\n2024-01-01,Café\n")
		assert.Equal(t, in, DecodeText(in))
	})

	t.Run("accented utf8 stays byte identical", func(t *testing.T) {
		// Accent-heavy UTF-8 must never be re-decoded as windows-1252.
		in := []byte("Data;Descrição;Valor\n01/02/2024;Padaria São João café;-3,20\n")
		assert.Equal(t, in, DecodeText(in))
	})

	t.Run("strips BOM", func(t *testing.T) {
		in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("date,amount\n")...)
		assert.Equal(t, []byte("date,amount\n"), DecodeText(in))
	})

	t.Run("recovers latin1 bytes", func(t *testing.T) {
		// "Café" in Latin-1: 0xE9 is invalid as UTF-8.
		in := []byte{'C', 'a', 'f', 0xE9}
		out := DecodeText(in)
		assert.Equal(t, "Café", string(out))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, DecodeText(nil))
	})
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name string
		data string
		want rune
	}{
		{"comma", "date,description,amount\n2024-01-01,Coffee,-4.50\n2024-01-02,Tea,-3.10\n", ','},
		{"semicolon", "data;descrição;valor\n01/02/2024;Café;-4,50\n02/02/2024;Chá;-3,10\n", ';'},
		{"tab", "date\tdescription\tamount\n2024-01-01\tCoffee\t-4.50\n", '\t'},
		{"pipe", "date|description|amount\n2024-01-01|Coffee|-4.50\n", '|'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectDelimiter([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("consistency beats raw count", func(t *testing.T) {
		// Commas appear inside quoted descriptions erratically; semicolons
		// are uniform per line.
		data := "data;descrição;valor\n01/02;a, b, c, d, e;-1\n02/02;x;-2\n03/02;y;-3\n"
		got, err := DetectDelimiter([]byte(data))
		require.NoError(t, err)
		assert.Equal(t, ';', got)
	})

	t.Run("no delimiter", func(t *testing.T) {
		_, err := DetectDelimiter([]byte("just a line\nanother line\n"))
		assert.ErrorIs(t, err, ErrInvalidDelimiter)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := DetectDelimiter([]byte("  \n"))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})
}

func TestDetectConfig(t *testing.T) {
	t.Run("header with leading metadata", func(t *testing.T) {
		data := "Bank Statement\nAccount: PT50\n\ndate,description,amount,balance\n2024-01-01,Coffee,-4.50,995.50\n"
		cfg, err := DetectConfig([]byte(data))
		require.NoError(t, err)
		assert.Equal(t, ',', int32(cfg.Delimiter))
		assert.Equal(t, 3, cfg.SkipLines)
		assert.Equal(t, []string{"date", "description", "amount", "balance"}, cfg.Headers)
		require.Len(t, cfg.SampleRows, 1)
	})

	t.Run("no header row", func(t *testing.T) {
		_, err := DetectConfig([]byte("1,2,3\n4,5,6\n"))
		assert.ErrorIs(t, err, ErrNoHeadersFound)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DetectConfig([]byte(""))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})
}

func TestMapColumns(t *testing.T) {
	t.Run("english single amount", func(t *testing.T) {
		m := MapColumns([]string{"Date", "Description", "Amount", "Balance"})
		assert.Equal(t, 0, m[FieldDate])
		assert.Equal(t, 1, m[FieldDescription])
		assert.Equal(t, 2, m[FieldAmount])
		assert.Equal(t, 3, m[FieldBalance])
		assert.False(t, m.IsDoubleEntry())
		assert.True(t, m.HasAmount())
	})

	t.Run("portuguese debit credit", func(t *testing.T) {
		m := MapColumns([]string{"Data Mov.", "Data Valor", "Descrição", "Débito", "Crédito", "Saldo"})
		assert.Equal(t, 0, m[FieldDate])
		assert.Equal(t, 1, m[FieldValueDate])
		assert.Equal(t, 2, m[FieldDescription])
		assert.Equal(t, 3, m[FieldDebit])
		assert.Equal(t, 4, m[FieldCredit])
		assert.Equal(t, 5, m[FieldBalance])
		assert.True(t, m.IsDoubleEntry())
	})

	t.Run("value date does not steal date column", func(t *testing.T) {
		m := MapColumns([]string{"Value Date", "Date", "Description", "Amount"})
		assert.Equal(t, 0, m[FieldValueDate])
		assert.Equal(t, 1, m[FieldDate])
	})

	t.Run("fuzzy fallback for hyphenated header", func(t *testing.T) {
		m := MapColumns([]string{"transaction-date", "narrative", "importe"})
		assert.Equal(t, 0, m[FieldDate])
		assert.Equal(t, 1, m[FieldDescription])
		assert.Equal(t, 2, m[FieldAmount])
	})

	t.Run("missing amount", func(t *testing.T) {
		m := MapColumns([]string{"Date", "Description"})
		assert.False(t, m.HasAmount())
	})

	t.Run("unmapped fields report absent", func(t *testing.T) {
		m := MapColumns([]string{"Booking Date", "Narrative", "Amount", "Cheque Number"})
		assert.Equal(t, -1, m[FieldBalance])
		assert.False(t, m.Has(FieldBalance))
		assert.False(t, m.Has(FieldValueDate))
		assert.True(t, m.Has(FieldDate))
		assert.True(t, m.Has(FieldReference))
	})
}
