// Package dedup detects duplicate transactions via content-addressed
// fingerprints, both inside a batch and against persisted history.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ledgerlift/ingest/internal/canonical"
)

// DefaultAmountPrecision is the decimal precision amounts are rounded to
// before hashing, so 4.5 and 4.50 fingerprint identically.
const DefaultAmountPrecision = 2

// Fingerprint computes the content hash identifying a transaction:
// account | post date | rounded amount | normalized description. Case and
// whitespace variation in the description never change the result.
func Fingerprint(tx *canonical.Transaction, amountPrecision int32) string {
	desc := strings.ToLower(strings.Join(strings.Fields(tx.Description), " "))
	payload := strings.Join([]string{
		tx.AccountID,
		tx.PostDate.Format("2006-01-02"),
		tx.Amount.Round(amountPrecision).String(),
		desc,
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
