package categorize

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlift/ingest/internal/canonical"
)

func testRules() []Rule {
	return []Rule{
		{Pattern: "starbucks", Vendor: "Starbucks", Category: "coffee"},
		{Pattern: "netflix", Vendor: "Netflix", Category: "entertainment", Recurring: true},
		{Pattern: "lidl", Vendor: "Lidl", Category: "groceries"},
		{Pattern: "continente", Vendor: "Continente", Category: "groceries"},
		// Same keyword twice; the higher priority wins.
		{Pattern: "transfer", Vendor: "", Category: "transfer", Priority: 1},
		{Pattern: "transfer", Vendor: "", Category: "misc"},
	}
}

func TestCategorizer_Match(t *testing.T) {
	c := New(testRules(), 0)

	tests := []struct {
		name        string
		description string
		vendor      string
		category    string
	}{
		{"exact keyword", "STARBUCKS COFFEE 0231 LISBOA", "Starbucks", "coffee"},
		{"case insensitive", "pagamento netflix.com", "Netflix", "entertainment"},
		{"embedded keyword", "COMPRA CONTINENTE BOM DIA", "Continente", "groceries"},
		{"priority breaks ties", "SEPA TRANSFER J SMITH", "", "transfer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := c.Match(tt.description)
			require.NotNil(t, m)
			assert.Equal(t, tt.vendor, m.Rule.Vendor)
			assert.Equal(t, tt.category, m.Rule.Category)
			assert.False(t, m.Fuzzy)
		})
	}

	t.Run("no match", func(t *testing.T) {
		assert.Nil(t, c.Match("UNKNOWN MERCHANT 42"))
	})
}

func TestCategorizer_FuzzyFallback(t *testing.T) {
	c := New([]Rule{
		{Pattern: "starbucks coffee", Vendor: "Starbucks", Category: "coffee"},
	}, 70)

	// One keystroke off; exact matching misses, fuzzy catches it.
	m := c.Match("STARBUCS COFFEE LX")
	require.NotNil(t, m)
	assert.True(t, m.Fuzzy)
	assert.Equal(t, "Starbucks", m.Rule.Vendor)
	assert.GreaterOrEqual(t, m.Score, 70)

	t.Run("threshold zero disables fallback", func(t *testing.T) {
		strict := New([]Rule{{Pattern: "starbucks coffee", Vendor: "Starbucks", Category: "coffee"}}, 0)
		assert.Nil(t, strict.Match("STARBUCS COFFEE LX"))
	})

	t.Run("nothing below threshold", func(t *testing.T) {
		assert.Nil(t, c.Match("COMPLETELY DIFFERENT"))
	})
}

func TestCategorizer_Apply(t *testing.T) {
	c := New(testRules(), 0)

	mk := func(desc string) *canonical.Transaction {
		tx, err := canonical.New("acc-1", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			desc, decimal.NewFromInt(-10), "EUR", canonical.SourceCSV)
		require.NoError(t, err)
		return tx
	}

	txs := []*canonical.Transaction{
		mk("NETFLIX.COM AMSTERDAM"),
		mk("LIDL LOJA 204"),
		mk("UNKNOWN MERCHANT"),
	}
	txs[1].Category = "food" // pre-set by the extractor; must survive

	applied := c.Apply(txs)
	assert.Equal(t, 2, applied)

	assert.Equal(t, "Netflix", txs[0].Vendor)
	assert.Equal(t, "entertainment", txs[0].Category)
	assert.True(t, txs[0].Recurring)

	assert.Equal(t, "Lidl", txs[1].Vendor)
	assert.Equal(t, "food", txs[1].Category, "extracted category is never overwritten")

	assert.Empty(t, txs[2].Vendor)
	assert.Empty(t, txs[2].Category)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - pattern: starbucks
    vendor: Starbucks
    category: coffee
  - pattern: netflix
    vendor: Netflix
    category: entertainment
    recurring: true
    priority: 5
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "Starbucks", rules[0].Vendor)
	assert.True(t, rules[1].Recurring)
	assert.Equal(t, 5, rules[1].Priority)

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRules(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("empty pattern rejected", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("rules:\n  - vendor: X\n"), 0o644))
		_, err := LoadRules(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no pattern")
	})
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  int
	}{
		{"STARBUCKS", "STARBUCKS", 100},
		{"STARBUCKS 0231", "STARBUCKS", 75},
		{"STARBUCS", "STARBUCKS", 80},
	}
	for _, tt := range tests {
		assert.GreaterOrEqual(t, similarity(tt.a, tt.b), tt.min, "%s vs %s", tt.a, tt.b)
	}
	assert.Less(t, similarity("ABCDEF", "ZYXWVU"), 30)
}
