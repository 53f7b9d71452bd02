package ingest

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/categorize"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/dedup"
	"github.com/ledgerlift/ingest/internal/extract"
	"github.com/ledgerlift/ingest/internal/ingesterr"
	"github.com/ledgerlift/ingest/internal/llm"
	"github.com/ledgerlift/ingest/internal/reconcile"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(validator llm.FieldValidator) *Service {
	logger := testLogger()
	dispatcher := extract.NewDispatcher(
		[]extract.Extractor{extract.NewCSVExtractor(logger)},
		extract.DefaultDispatchConfig(),
		logger,
	)
	return NewService(
		dispatcher,
		dedup.New(nil, dedup.DefaultAmountPrecision, logger),
		confidence.NewScorer(confidence.DefaultConfig()),
		reconcile.DefaultConfig(),
		categorize.New([]categorize.Rule{
			{Pattern: "coffee", Vendor: "Coffee Shop", Category: "coffee"},
		}, 0),
		validator,
		logger,
	)
}

func csvContext(data string) *extract.Context {
	return &extract.Context{
		Data:     []byte(data),
		Filename: "statement.csv",
		Size:     int64(len(data)),
		TenantID: "tenant-1",
	}
}

func TestService_IngestFile(t *testing.T) {
	svc := newTestService(nil)
	data := "Date,Description,Amount\n" +
		"2024-01-15,Coffee Shop,-4.50\n" +
		"2024-01-16,Salary,2500.00\n"

	res, err := svc.IngestFile(context.Background(), csvContext(data))
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "csv", res.Method)
	assert.Equal(t, 2, res.Unique)
	assert.Equal(t, 0, res.Duplicates)
	require.Len(t, res.Scores, 2)
	for i, tx := range res.Transactions {
		assert.Equal(t, res.Scores[i].Overall, tx.SourceConfidence)
		assert.Greater(t, tx.SourceConfidence, 0.0)
	}
	assert.True(t, res.Reconciliation.Passed)
	assert.Positive(t, res.Timings.Total)

	assert.Equal(t, 1, res.Categorized)
	assert.Equal(t, "Coffee Shop", res.Transactions[0].Vendor)
	assert.Equal(t, "coffee", res.Transactions[0].Category)
}

func TestService_BatchInternalDuplicate(t *testing.T) {
	svc := newTestService(nil)
	data := "Date,Description,Amount\n" +
		"2024-01-15,Coffee,-4.50\n" +
		"2024-01-15,Coffee,-4.50\n"

	res, err := svc.IngestFile(context.Background(), csvContext(data))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Unique)
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, res.Transactions, 2, "duplicates are kept, not dropped")
	assert.False(t, res.Transactions[0].IsDuplicate())
	require.True(t, res.Transactions[1].IsDuplicate())
	assert.Equal(t, res.Transactions[0].ID, *res.Transactions[1].DuplicateOf)
}

func TestService_BalanceMismatchFlagsReview(t *testing.T) {
	svc := newTestService(nil)
	// Second balance is off by 0.02 against the 0.01 tolerance.
	data := "Date,Description,Amount,Balance\n" +
		"2024-01-15,Opening purchase,-10.00,990.00\n" +
		"2024-01-16,Second purchase,-20.00,969.98\n"

	res, err := svc.IngestFile(context.Background(), csvContext(data))
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.False(t, res.Reconciliation.Passed)
	assert.NotEmpty(t, res.Reconciliation.Errors)
	require.Len(t, res.Transactions, 2, "reconciliation failures never discard transactions")
	for _, score := range res.Scores {
		assert.True(t, score.NeedsReview)
	}
}

func TestService_UnsupportedFile(t *testing.T) {
	svc := newTestService(nil)
	ec := &extract.Context{Data: []byte{0x00, 0x01}, Filename: "blob.bin", Size: 2}

	res, err := svc.IngestFile(context.Background(), ec)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ingesterr.CodeUnsupportedFormat, ingesterr.CodeOf(err))
}

type recordingValidator struct {
	calls       int
	suggestions []llm.Suggestion
}

func (r *recordingValidator) ValidateFields(_ context.Context, _ *canonical.Transaction) ([]llm.Suggestion, error) {
	r.calls++
	return r.suggestions, nil
}

func TestService_FieldValidatorOnReview(t *testing.T) {
	validator := &recordingValidator{suggestions: []llm.Suggestion{
		{Field: "category", Value: "groceries", Confidence: 0.92},
		{Field: "vendor", Value: "ignored", Confidence: 0.40},
	}}
	svc := newTestService(validator)

	// Balance mismatch forces needs-review, which triggers validation.
	data := "Date,Description,Amount,Balance\n" +
		"2024-01-15,Opening purchase,-10.00,990.00\n" +
		"2024-01-16,Second purchase,-20.00,969.98\n"

	res, err := svc.IngestFile(context.Background(), csvContext(data))
	require.NoError(t, err)

	assert.Equal(t, 2, validator.calls)
	assert.Equal(t, "groceries", res.Transactions[0].Category)
	assert.Empty(t, res.Transactions[0].Vendor, "low-confidence suggestions are discarded")
}
