// Package cron watches an inbox directory for dropped statement files
// and runs them through the ingestion pipeline on a schedule.
package cron

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"

	"github.com/ledgerlift/ingest/internal/extract"
	"github.com/ledgerlift/ingest/internal/ingest"
	"github.com/ledgerlift/ingest/pkg/storage"
)

// failedDir is where files that could not be ingested are parked so the
// next scan does not retry them forever.
const failedDir = "failed"

// Watcher scans an inbox directory on a cron schedule. Successfully
// ingested files are archived and removed from the inbox; failures move
// to the failed subdirectory.
type Watcher struct {
	cron     *cron.Cron
	service  *ingest.Service
	archive  storage.Archive
	inbox    string
	tenantID string
	logger   *slog.Logger
}

// NewWatcher wires an inbox watcher. archive may be nil to skip
// archiving.
func NewWatcher(service *ingest.Service, archive storage.Archive, inbox, tenantID string, logger *slog.Logger) *Watcher {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	return &Watcher{
		cron:     c,
		service:  service,
		archive:  archive,
		inbox:    inbox,
		tenantID: tenantID,
		logger:   logger,
	}
}

// Start begins scanning on the given cron spec, e.g. "@every 1m" or
// "*/5 * * * *".
func (w *Watcher) Start(spec string) error {
	if _, err := w.cron.AddFunc(spec, func() { w.ScanNow(context.Background()) }); err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("inbox watcher started", "inbox", w.inbox, "schedule", spec)
	return nil
}

// Stop halts scheduling. The returned context is done when any running
// scan finishes.
func (w *Watcher) Stop() context.Context {
	w.logger.Info("inbox watcher stopping")
	return w.cron.Stop()
}

// ScanNow processes every file currently in the inbox. Also used as the
// scheduled job body.
func (w *Watcher) ScanNow(ctx context.Context) {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		w.logger.Error("inbox scan failed", "inbox", w.inbox, "err", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		w.processFile(ctx, filepath.Join(w.inbox, entry.Name()))
	}
}

func (w *Watcher) processFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Error("inbox file unreadable", "file", path, "err", err)
		return
	}

	name := filepath.Base(path)
	res, err := w.service.IngestFile(ctx, &extract.Context{
		Data:     data,
		Filename: name,
		MIMEType: mime.TypeByExtension(filepath.Ext(name)),
		Size:     int64(len(data)),
		TenantID: w.tenantID,
	})
	if err != nil {
		w.park(path, name)
		return
	}

	if w.archive != nil {
		if _, _, err := w.archive.Store(ctx, w.tenantID, name, mime.TypeByExtension(filepath.Ext(name)), data); err != nil {
			w.logger.Error("archive failed, leaving file in inbox", "file", name, "err", err)
			return
		}
	}
	if err := os.Remove(path); err != nil {
		w.logger.Warn("could not remove ingested file", "file", path, "err", err)
	}
	w.logger.Info("inbox file ingested", "file", name, "transactions", len(res.Transactions), "duplicates", res.Duplicates)
}

// park moves a failed file aside so it is not retried on every scan.
func (w *Watcher) park(path, name string) {
	dir := filepath.Join(w.inbox, failedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.logger.Error("could not create failed directory", "err", err)
		return
	}
	if err := os.Rename(path, filepath.Join(dir, name)); err != nil {
		w.logger.Error("could not park failed file", "file", name, "err", err)
		return
	}
	w.logger.Warn("inbox file parked after failure", "file", name)
}
