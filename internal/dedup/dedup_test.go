package dedup

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlift/ingest/internal/canonical"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func tx(t *testing.T, account, desc string, amount float64, day int) *canonical.Transaction {
	t.Helper()
	date := time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC)
	out, err := canonical.New(account, date, desc, decimal.NewFromFloat(amount), "EUR", canonical.SourceCSV)
	require.NoError(t, err)
	return out
}

func TestFingerprint(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := tx(t, "ACC-1", "Coffee Shop", -4.50, 1)
		b := tx(t, "ACC-1", "Coffee Shop", -4.50, 1)
		assert.Equal(t, Fingerprint(a, DefaultAmountPrecision), Fingerprint(b, DefaultAmountPrecision))
	})

	t.Run("case and whitespace invariant", func(t *testing.T) {
		a := tx(t, "ACC-1", "Coffee Shop", -4.50, 1)
		b := tx(t, "ACC-1", "  COFFEE    shop ", -4.50, 1)
		assert.Equal(t, Fingerprint(a, DefaultAmountPrecision), Fingerprint(b, DefaultAmountPrecision))
	})

	t.Run("amount rounding invariant", func(t *testing.T) {
		a := tx(t, "ACC-1", "Coffee", -4.5, 1)
		b := tx(t, "ACC-1", "Coffee", -4.50, 1)
		assert.Equal(t, Fingerprint(a, DefaultAmountPrecision), Fingerprint(b, DefaultAmountPrecision))
	})

	t.Run("distinct fields change the hash", func(t *testing.T) {
		base := tx(t, "ACC-1", "Coffee", -4.50, 1)
		assert.NotEqual(t, Fingerprint(base, 2), Fingerprint(tx(t, "ACC-2", "Coffee", -4.50, 1), 2))
		assert.NotEqual(t, Fingerprint(base, 2), Fingerprint(tx(t, "ACC-1", "Tea", -4.50, 1), 2))
		assert.NotEqual(t, Fingerprint(base, 2), Fingerprint(tx(t, "ACC-1", "Coffee", -4.51, 1), 2))
		assert.NotEqual(t, Fingerprint(base, 2), Fingerprint(tx(t, "ACC-1", "Coffee", -4.50, 2), 2))
	})
}

// memStore is an in-memory Store used when no database is involved.
type memStore struct {
	byFp map[string]uuid.UUID
}

func newMemStore() *memStore { return &memStore{byFp: map[string]uuid.UUID{}} }

func (m *memStore) Lookup(_ context.Context, _ string, fp string) (uuid.UUID, bool, error) {
	id, ok := m.byFp[fp]
	return id, ok, nil
}

func (m *memStore) Record(_ context.Context, _ string, fp string, txID uuid.UUID) (uuid.UUID, bool, error) {
	if existing, ok := m.byFp[fp]; ok {
		return existing, true, nil
	}
	m.byFp[fp] = txID
	return txID, false, nil
}

func TestDeduplicator_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("batch-internal duplicate flagged not dropped", func(t *testing.T) {
		d := New(nil, DefaultAmountPrecision, testLogger())
		first := tx(t, "ACC-1", "Coffee", -4.50, 1)
		second := tx(t, "ACC-1", "Coffee", -4.50, 1)
		batch := []*canonical.Transaction{first, second}

		res, err := d.Process(ctx, "tenant-1", batch)
		require.NoError(t, err)

		assert.Equal(t, 1, res.Unique)
		assert.Equal(t, 1, res.Duplicates)
		assert.False(t, first.IsDuplicate())
		require.True(t, second.IsDuplicate())
		assert.Equal(t, first.ID, *second.DuplicateOf)
		assert.Len(t, batch, 2)
	})

	t.Run("store hit marks duplicate of existing record", func(t *testing.T) {
		store := newMemStore()
		existingID := uuid.New()
		pre := tx(t, "ACC-1", "Rent", -800, 1)
		store.byFp[Fingerprint(pre, DefaultAmountPrecision)] = existingID

		d := New(store, DefaultAmountPrecision, testLogger())
		incoming := tx(t, "ACC-1", "Rent", -800, 1)
		res, err := d.Process(ctx, "tenant-1", []*canonical.Transaction{incoming})
		require.NoError(t, err)

		assert.Equal(t, 0, res.Unique)
		assert.Equal(t, 1, res.Duplicates)
		require.True(t, incoming.IsDuplicate())
		assert.Equal(t, existingID, *incoming.DuplicateOf)
	})

	t.Run("idempotent re-run yields zero new uniques", func(t *testing.T) {
		store := newMemStore()
		d := New(store, DefaultAmountPrecision, testLogger())

		batch := []*canonical.Transaction{
			tx(t, "ACC-1", "Coffee", -4.50, 1),
			tx(t, "ACC-1", "Salary", 2500, 2),
		}
		first, err := d.Process(ctx, "tenant-1", batch)
		require.NoError(t, err)
		assert.Equal(t, 2, first.Unique)

		rerun := []*canonical.Transaction{
			tx(t, "ACC-1", "Coffee", -4.50, 1),
			tx(t, "ACC-1", "Salary", 2500, 2),
		}
		second, err := d.Process(ctx, "tenant-1", rerun)
		require.NoError(t, err)
		assert.Equal(t, 0, second.Unique)
		assert.Equal(t, 2, second.Duplicates)
	})
}
