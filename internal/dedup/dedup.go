package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledgerlift/ingest/internal/canonical"
)

// Store is the persisted fingerprint index. Implementations must be safe
// for the concurrent-insert race: Record treats a uniqueness conflict as
// success-with-duplicate, never as a hard failure.
type Store interface {
	// Lookup returns the transaction ID already stored under fp, if any.
	Lookup(ctx context.Context, tenantID, fp string) (uuid.UUID, bool, error)
	// Record stores fp -> txID. When another writer got there first the
	// existing ID is returned with duplicate=true.
	Record(ctx context.Context, tenantID, fp string, txID uuid.UUID) (existing uuid.UUID, duplicate bool, err error)
}

// Deduplicator annotates batch-internal and store-known duplicates.
type Deduplicator struct {
	store           Store // nil = batch-only dedup
	amountPrecision int32
	logger          *slog.Logger
}

// New builds a deduplicator. store may be nil when no persisted history is
// available (batch-internal duplicates are still caught).
func New(store Store, amountPrecision int32, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{store: store, amountPrecision: amountPrecision, logger: logger}
}

// Result summarizes one dedup pass.
type Result struct {
	Unique     int
	Duplicates int
}

// Process fingerprints every transaction, marking later occurrences of a
// fingerprint as duplicates of the first, and checking survivors against
// the store. Duplicates are annotated via DuplicateOf, never dropped.
func (d *Deduplicator) Process(ctx context.Context, tenantID string, batch []*canonical.Transaction) (Result, error) {
	seen := make(map[string]uuid.UUID, len(batch))
	var res Result

	for _, tx := range batch {
		fp := Fingerprint(tx, d.amountPrecision)

		if firstID, ok := seen[fp]; ok {
			id := firstID
			tx.DuplicateOf = &id
			res.Duplicates++
			continue
		}
		seen[fp] = tx.ID

		if d.store != nil {
			existing, duplicate, err := d.store.Record(ctx, tenantID, fp, tx.ID)
			if err != nil {
				return res, fmt.Errorf("dedup: record fingerprint: %w", err)
			}
			if duplicate {
				id := existing
				tx.DuplicateOf = &id
				res.Duplicates++
				d.logger.Debug("persisted duplicate detected", "fingerprint", fp[:12], "existing", existing)
				continue
			}
		}
		res.Unique++
	}
	return res, nil
}
