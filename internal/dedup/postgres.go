package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists fingerprints in the transaction_fingerprints table
// owned by the persistence collaborator.
type PostgresStore struct {
	db DB
}

// NewPostgresStore wraps a pgx pool (or mock) as a fingerprint store.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	insertFingerprintSQL = `INSERT INTO transaction_fingerprints (tenant_id, fingerprint, transaction_id) VALUES ($1, $2, $3)`
	selectFingerprintSQL = `SELECT transaction_id FROM transaction_fingerprints WHERE tenant_id = $1 AND fingerprint = $2`
)

// Lookup returns the transaction already recorded under fp.
func (s *PostgresStore) Lookup(ctx context.Context, tenantID, fp string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, selectFingerprintSQL, tenantID, fp).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("dedup: lookup fingerprint: %w", err)
	}
	return id, true, nil
}

// Record inserts the fingerprint. Two concurrent ingestions can compute the
// same fingerprint; the unique constraint decides the winner and the loser
// re-reads the existing row instead of failing.
func (s *PostgresStore) Record(ctx context.Context, tenantID, fp string, txID uuid.UUID) (uuid.UUID, bool, error) {
	_, err := s.db.Exec(ctx, insertFingerprintSQL, tenantID, fp, txID)
	if err == nil {
		return txID, false, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return uuid.Nil, false, fmt.Errorf("dedup: insert fingerprint: %w", err)
	}

	existing, found, lookupErr := s.Lookup(ctx, tenantID, fp)
	if lookupErr != nil {
		return uuid.Nil, false, lookupErr
	}
	if !found {
		// Conflict but no row: the winner rolled back. Surface the original
		// conflict so the caller can retry the batch.
		return uuid.Nil, false, fmt.Errorf("dedup: fingerprint conflict without existing row: %w", err)
	}
	return existing, true, nil
}
