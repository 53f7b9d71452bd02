package cron

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/dedup"
	"github.com/ledgerlift/ingest/internal/extract"
	"github.com/ledgerlift/ingest/internal/ingest"
	"github.com/ledgerlift/ingest/internal/reconcile"
	"github.com/ledgerlift/ingest/pkg/storage"
)

func testService(t *testing.T) *ingest.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	dispatcher := extract.NewDispatcher(
		[]extract.Extractor{extract.NewCSVExtractor(logger)},
		extract.DefaultDispatchConfig(),
		logger,
	)
	return ingest.NewService(
		dispatcher,
		dedup.New(nil, dedup.DefaultAmountPrecision, logger),
		confidence.NewScorer(confidence.DefaultConfig()),
		reconcile.DefaultConfig(),
		nil,
		nil,
		logger,
	)
}

func TestWatcher_ScanNow(t *testing.T) {
	inbox := t.TempDir()
	arch, err := storage.NewLocalArchive(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	good := filepath.Join(inbox, "jan.csv")
	require.NoError(t, os.WriteFile(good, []byte(
		"Date,Description,Amount\n2024-01-15,Coffee,-4.50\n"), 0o644))
	bad := filepath.Join(inbox, "blob.bin")
	require.NoError(t, os.WriteFile(bad, []byte{0x00, 0x01}, 0o644))

	w := NewWatcher(testService(t), arch, inbox, "tenant-1", logger)
	w.ScanNow(context.Background())

	// Ingested file is archived and gone from the inbox.
	assert.NoFileExists(t, good)
	files, err := arch.List(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "jan.csv", files[0].Name)

	// Unsupported file is parked, not retried in place.
	assert.NoFileExists(t, bad)
	assert.FileExists(t, filepath.Join(inbox, failedDir, "blob.bin"))

	t.Run("second scan is a no-op", func(t *testing.T) {
		w.ScanNow(context.Background())
		files, err := arch.List(context.Background(), "tenant-1")
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})
}
