package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Record(t *testing.T) {
	ctx := context.Background()
	txID := uuid.New()

	t.Run("clean insert", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO transaction_fingerprints").
			WithArgs("tenant-1", "fp-1", txID).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		store := NewPostgresStore(mock)
		got, duplicate, err := store.Record(ctx, "tenant-1", "fp-1", txID)
		require.NoError(t, err)
		assert.False(t, duplicate)
		assert.Equal(t, txID, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation re-reads existing row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		existingID := uuid.New()
		mock.ExpectExec("INSERT INTO transaction_fingerprints").
			WithArgs("tenant-1", "fp-1", txID).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectQuery("SELECT transaction_id FROM transaction_fingerprints").
			WithArgs("tenant-1", "fp-1").
			WillReturnRows(pgxmock.NewRows([]string{"transaction_id"}).AddRow(existingID))

		store := NewPostgresStore(mock)
		got, duplicate, err := store.Record(ctx, "tenant-1", "fp-1", txID)
		require.NoError(t, err)
		assert.True(t, duplicate)
		assert.Equal(t, existingID, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-conflict errors propagate", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO transaction_fingerprints").
			WithArgs("tenant-1", "fp-1", txID).
			WillReturnError(errors.New("connection refused"))

		store := NewPostgresStore(mock)
		_, _, err = store.Record(ctx, "tenant-1", "fp-1", txID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert fingerprint")
	})
}

func TestPostgresStore_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := uuid.New()
		mock.ExpectQuery("SELECT transaction_id FROM transaction_fingerprints").
			WithArgs("tenant-1", "fp-1").
			WillReturnRows(pgxmock.NewRows([]string{"transaction_id"}).AddRow(id))

		store := NewPostgresStore(mock)
		got, found, err := store.Lookup(ctx, "tenant-1", "fp-1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, id, got)
	})

	t.Run("miss", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT transaction_id FROM transaction_fingerprints").
			WithArgs("tenant-1", "fp-unknown").
			WillReturnRows(pgxmock.NewRows([]string{"transaction_id"}))

		store := NewPostgresStore(mock)
		_, found, err := store.Lookup(ctx, "tenant-1", "fp-unknown")
		require.NoError(t, err)
		assert.False(t, found)
	})
}
