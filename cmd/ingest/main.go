// Command ingest runs statement files through the extraction pipeline
// and prints one JSON result per file. With -watch it stays resident and
// processes files dropped into an inbox directory on a schedule.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/ledgerlift/ingest/internal/extract"
	"github.com/ledgerlift/ingest/internal/ingest"
	"github.com/ledgerlift/ingest/pkg/config"
	"github.com/ledgerlift/ingest/pkg/cron"
	"github.com/ledgerlift/ingest/pkg/money"
)

// categorizeFuzzyThreshold is the similarity floor for the fuzzy
// categorization fallback.
const categorizeFuzzyThreshold = 80

func main() {
	os.Exit(run())
}

// run wraps main so deferred cleanup survives the exit code path.
func run() int {
	var (
		tenantID   = flag.String("tenant", "default", "tenant the ingested transactions belong to")
		rulesPath  = flag.String("rules", "", "categorization rules YAML (optional)")
		archiveDir = flag.String("archive", "", "archive ingested originals into this directory (optional)")
		watchDir   = flag.String("watch", "", "watch this inbox directory instead of reading files from argv")
		schedule   = flag.String("schedule", "@every 1m", "cron schedule for -watch scans")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "err", err)
		return 2
	}

	deps, err := InitDependencies(cfg, logger, Options{RulesPath: *rulesPath, ArchiveDir: *archiveDir})
	if err != nil {
		logger.Error("initialization failed", "err", err)
		return 2
	}
	defer deps.Cleanup()

	if *watchDir != "" {
		return runWatch(deps, *watchDir, *schedule, *tenantID)
	}

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [flags] file.csv [file.pdf ...]   or   ingest -watch <dir>")
		flag.PrintDefaults()
		return 2
	}
	return runFiles(deps, files, *tenantID, cfg)
}

// runFiles processes each argument and prints a JSON result per file.
// The exit code is the number of failed files, capped at 1.
func runFiles(deps *Dependencies, files []string, tenantID string, cfg *config.Config) int {
	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failures := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			deps.Logger.Error("cannot read file", "file", path, "err", err)
			failures++
			continue
		}

		name := filepath.Base(path)
		res, err := deps.Service.IngestFile(ctx, &extract.Context{
			Data:       data,
			Filename:   name,
			MIMEType:   mime.TypeByExtension(filepath.Ext(name)),
			Size:       int64(len(data)),
			TenantID:   tenantID,
			OCREnabled: cfg.OCR.Enabled,
		})
		if err != nil {
			failures++
		} else if deps.Archive != nil {
			if _, _, aerr := deps.Archive.Store(ctx, tenantID, name, mime.TypeByExtension(filepath.Ext(name)), data); aerr != nil {
				deps.Logger.Warn("archive failed", "file", name, "err", aerr)
			}
		}

		if encErr := enc.Encode(res); encErr != nil {
			deps.Logger.Error("cannot encode result", "file", name, "err", encErr)
		}
		logTotals(deps.Logger, res, cfg.Ingest.DefaultCurrency)
	}
	if failures > 0 {
		return 1
	}
	return 0
}

// logTotals summarizes debit/credit movement for the operator log.
func logTotals(logger *slog.Logger, res *ingest.BatchResult, defaultCurrency string) {
	if res == nil || len(res.Transactions) == 0 {
		return
	}
	currency := res.Transactions[0].Currency
	if currency == "" {
		currency = defaultCurrency
	}
	totals := money.NewTotals(currency)
	for _, tx := range res.Transactions {
		if tx.Currency != currency {
			return // mixed currencies, skip the summary
		}
		if err := totals.Accumulate(tx.Amount, currency); err != nil {
			return
		}
	}
	net, err := totals.Net()
	if err != nil {
		return
	}
	logger.Info("statement totals",
		"file", res.Filename,
		"debits", totals.Debits.Display(),
		"credits", totals.Credits.Display(),
		"net", net.Display(),
	)
}

// runWatch blocks scanning the inbox until interrupted.
func runWatch(deps *Dependencies, inbox, schedule, tenantID string) int {
	watcher := cron.NewWatcher(deps.Service, deps.Archive, inbox, tenantID, deps.Logger)
	if err := watcher.Start(schedule); err != nil {
		deps.Logger.Error("invalid schedule", "schedule", schedule, "err", err)
		return 2
	}
	watcher.ScanNow(context.Background())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	<-watcher.Stop().Done()
	return 0
}

// parseTolerance parses the reconciliation tolerance from config.
func parseTolerance(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
