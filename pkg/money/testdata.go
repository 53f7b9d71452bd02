package money

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Generator produces realistic statement rows for tests and benchmarks.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a seeded generator; the same seed yields the same
// sequence.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// StatementRow is one generated bank statement line.
type StatementRow struct {
	Date        time.Time
	Description string
	Amount      *Money
}

// Amount generates a value in the given cent range, inclusive.
func (g *Generator) Amount(currency string, minCents, maxCents int64) *Money {
	if minCents > maxCents {
		minCents, maxCents = maxCents, minCents
	}
	span := maxCents - minCents + 1
	cents := g.faker.Int64() % span
	if cents < 0 {
		cents = -cents
	}
	return New(minCents+cents, currency)
}

// Merchant generates a merchant string the way banks print them:
// uppercase company name with a branch number.
func (g *Generator) Merchant() string {
	return g.faker.Company()
}

// Row generates one statement line within the given period. Roughly four
// out of five rows are debits.
func (g *Generator) Row(currency string, from, to time.Time) StatementRow {
	amount := g.Amount(currency, 100, 50000)
	if g.faker.Number(1, 5) != 5 {
		amount = amount.Negate()
	}
	return StatementRow{
		Date:        g.faker.DateRange(from, to),
		Description: g.Merchant(),
		Amount:      amount,
	}
}

// Rows generates count statement lines sorted order-free.
func (g *Generator) Rows(currency string, from, to time.Time, count int) []StatementRow {
	rows := make([]StatementRow, count)
	for i := range rows {
		rows[i] = g.Row(currency, from, to)
	}
	return rows
}
