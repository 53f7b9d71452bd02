package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerlift/ingest/internal/categorize"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/dedup"
	"github.com/ledgerlift/ingest/internal/extract"
	"github.com/ledgerlift/ingest/internal/ingest"
	"github.com/ledgerlift/ingest/internal/ocr"
	"github.com/ledgerlift/ingest/internal/reconcile"
	"github.com/ledgerlift/ingest/internal/template"
	"github.com/ledgerlift/ingest/pkg/config"
	"github.com/ledgerlift/ingest/pkg/storage"
)

// Dependencies holds everything the binary wires together.
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	Pool     *pgxpool.Pool
	Registry *template.Registry
	Archive  storage.Archive

	Service *ingest.Service
}

// Options are the command-line knobs that are not environment-driven.
type Options struct {
	RulesPath  string // categorization rules YAML; empty skips the stage
	ArchiveDir string // archive directory; empty disables archiving
}

// InitDependencies builds the full pipeline from config.
func InitDependencies(cfg *config.Config, logger *slog.Logger, opts Options) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: logger}

	store, err := deps.initDatabase()
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	matcher, err := deps.initTemplates()
	if err != nil {
		return nil, fmt.Errorf("init templates: %w", err)
	}
	categorizer, err := initCategorizer(opts.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("init categorizer: %w", err)
	}
	if opts.ArchiveDir != "" {
		deps.Archive, err = storage.NewLocalArchive(opts.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
	}

	dispatcher := extract.NewDispatcher(
		orderedExtractors(matcher, logger),
		extract.DispatchConfig{
			SizeCaps: map[string]int64{
				confidence.MethodPDFTemplate: cfg.Ingest.MaxPDFSizeBytes,
			},
			DefaultSizeCap: cfg.Ingest.MaxFileSizeBytes,
			StageTimeout:   cfg.Ingest.StageTimeout,
		},
		logger,
	)

	reconcileCfg := reconcile.DefaultConfig()
	if cfg.Reconcile.Strict {
		reconcileCfg.Mode = reconcile.ModeStrict
	}
	if tol, err := parseTolerance(cfg.Reconcile.BalanceTolerance); err == nil {
		reconcileCfg.BalanceTolerance = tol
	} else {
		logger.Warn("invalid balance tolerance, using default", "value", cfg.Reconcile.BalanceTolerance)
	}
	reconcileCfg.MaxGapDays = cfg.Reconcile.MaxGapDays

	scorerCfg := confidence.DefaultConfig()
	scorerCfg.ReviewThreshold = cfg.Score.ReviewThreshold

	deps.Service = ingest.NewService(
		dispatcher,
		dedup.New(store, int32(cfg.Dedup.AmountPrecision), logger),
		confidence.NewScorer(scorerCfg),
		reconcileCfg,
		categorizer,
		nil,
		logger,
	)

	logger.Info("pipeline initialized",
		"templates", len(deps.Registry.Templates()),
		"database", cfg.Database.Enabled,
		"archive", opts.ArchiveDir != "",
	)
	return deps, nil
}

// initDatabase connects the fingerprint store when persistence is on.
func (d *Dependencies) initDatabase() (dedup.Store, error) {
	if !d.Config.Database.Enabled {
		return nil, nil
	}
	pool, err := pgxpool.New(context.Background(), d.Config.Database.DSN())
	if err != nil {
		return nil, err
	}
	d.Pool = pool
	d.Logger.Info("fingerprint store connected", "host", d.Config.Database.Host)
	return dedup.NewPostgresStore(pool), nil
}

// initTemplates loads the bank template registry. A missing directory is
// created empty so matching falls back to generic extraction.
func (d *Dependencies) initTemplates() (*template.Matcher, error) {
	if err := os.MkdirAll(d.Config.Templates.Dir, 0o755); err != nil {
		return nil, err
	}
	reg, err := template.NewRegistry(d.Config.Templates.Dir, d.Logger)
	if err != nil {
		return nil, err
	}
	d.Registry = reg
	return template.NewMatcher(reg), nil
}

func initCategorizer(rulesPath string) (*categorize.Categorizer, error) {
	if rulesPath == "" {
		return nil, nil
	}
	rules, err := categorize.LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}
	return categorize.New(rules, categorizeFuzzyThreshold), nil
}

// orderedExtractors probes structured formats before heuristic ones.
func orderedExtractors(matcher *template.Matcher, logger *slog.Logger) []extract.Extractor {
	return []extract.Extractor{
		extract.NewCAMTExtractor(logger),
		extract.NewMT940Extractor(logger),
		extract.NewBAI2Extractor(logger),
		extract.NewOFXExtractor(logger),
		extract.NewCSVExtractor(logger),
		extract.NewXLSXExtractor(logger),
		extract.NewPDFExtractor(matcher, logger),
		extract.NewImageExtractor(ocr.Noop{}, logger),
	}
}

// Cleanup releases held resources.
func (d *Dependencies) Cleanup() {
	if d.Pool != nil {
		d.Pool.Close()
	}
}
