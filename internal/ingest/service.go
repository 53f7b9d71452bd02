// Package ingest orchestrates the statement pipeline: dispatch to an
// extractor, deduplicate, score confidence, reconcile, and hand the
// canonical batch back to the caller. Persistence stays outside.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/categorize"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/dedup"
	"github.com/ledgerlift/ingest/internal/extract"
	"github.com/ledgerlift/ingest/internal/llm"
	"github.com/ledgerlift/ingest/internal/reconcile"
)

// minSuggestionConfidence gates how sure the field validator must be
// before its suggestion overwrites an extracted value.
const minSuggestionConfidence = 0.8

// Service runs the ingestion pipeline. Safe for concurrent use; files are
// independent of each other.
type Service struct {
	dispatcher   *extract.Dispatcher
	deduplicator *dedup.Deduplicator
	scorer       *confidence.Scorer
	reconcileCfg reconcile.Config
	categorizer  *categorize.Categorizer
	validator    llm.FieldValidator
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewService wires the pipeline. categorizer and validator may be nil to
// skip those stages.
func NewService(
	dispatcher *extract.Dispatcher,
	deduplicator *dedup.Deduplicator,
	scorer *confidence.Scorer,
	reconcileCfg reconcile.Config,
	categorizer *categorize.Categorizer,
	validator llm.FieldValidator,
	logger *slog.Logger,
) *Service {
	if validator == nil {
		validator = llm.Noop{}
	}
	return &Service{
		dispatcher:   dispatcher,
		deduplicator: deduplicator,
		scorer:       scorer,
		reconcileCfg: reconcileCfg,
		categorizer:  categorizer,
		validator:    validator,
		logger:       logger,
		tracer:       otel.Tracer("ledgerlift/ingest"),
	}
}

// Timings breaks down where one file's processing time went.
type Timings struct {
	Extract   time.Duration `json:"extract"`
	Dedup     time.Duration `json:"dedup"`
	Score     time.Duration `json:"score"`
	Reconcile time.Duration `json:"reconcile"`
	Total     time.Duration `json:"total"`
}

// BatchResult is one processed statement file.
type BatchResult struct {
	Filename string `json:"filename"`
	Method   string `json:"method"`
	Success  bool   `json:"success"`

	Transactions []*canonical.Transaction `json:"transactions,omitempty"`
	Scores       []confidence.Score       `json:"scores,omitempty"`

	Unique      int `json:"unique"`
	Duplicates  int `json:"duplicates"`
	Categorized int `json:"categorized"`

	Reconciliation reconcile.Result `json:"reconciliation"`
	MultiAccount   []string         `json:"multi_account,omitempty"`

	DetectedBank    string     `json:"detected_bank,omitempty"`
	DetectedAccount string     `json:"detected_account,omitempty"`
	PeriodStart     *time.Time `json:"period_start,omitempty"`
	PeriodEnd       *time.Time `json:"period_end,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Err      error    `json:"-"`
	Error    string   `json:"error,omitempty"`
	Timings  Timings  `json:"timings"`
}

// IngestFile runs one statement file through the whole pipeline. The
// returned error is the file-level failure, if any; row-level issues are
// in Warnings.
func (s *Service) IngestFile(ctx context.Context, ec *extract.Context) (*BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.file", trace.WithAttributes(
		attribute.String("file.name", ec.Filename),
		attribute.Int64("file.size", ec.Size),
	))
	defer span.End()

	started := time.Now()
	if ec.StartedAt.IsZero() {
		ec.StartedAt = started
	}

	out := &BatchResult{Filename: ec.Filename}

	extractStart := time.Now()
	res := s.dispatcher.Dispatch(ctx, ec)
	out.Timings.Extract = time.Since(extractStart)

	out.Method = res.Method
	out.Warnings = res.Warnings
	out.DetectedBank = res.DetectedBank
	out.DetectedAccount = res.DetectedAccount
	out.PeriodStart, out.PeriodEnd = res.PeriodStart, res.PeriodEnd
	rowsSkippedTotal.WithLabelValues(methodLabel(res.Method)).Add(float64(len(res.Warnings)))

	if !res.Success {
		out.Err = res.Err
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		out.Timings.Total = time.Since(started)
		filesTotal.WithLabelValues(methodLabel(res.Method), "failed").Inc()
		span.SetAttributes(attribute.Bool("ingest.success", false))
		s.logger.Error("statement extraction failed", "file", ec.Filename, "method", res.Method, "err", res.Err)
		return out, res.Err
	}
	out.Transactions = res.Transactions

	dedupStart := time.Now()
	dres, err := s.deduplicator.Process(ctx, ec.TenantID, res.Transactions)
	out.Timings.Dedup = time.Since(dedupStart)
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		out.Timings.Total = time.Since(started)
		filesTotal.WithLabelValues(methodLabel(res.Method), "failed").Inc()
		return out, err
	}
	out.Unique, out.Duplicates = dres.Unique, dres.Duplicates
	duplicatesTotal.Add(float64(dres.Duplicates))

	if s.categorizer != nil {
		out.Categorized = s.categorizer.Apply(res.Transactions)
	}

	reconcileStart := time.Now()
	out.Reconciliation = reconcile.Reconcile(res.Transactions, s.reconcileCfg)
	out.MultiAccount = reconcile.DetectMultiAccount(res.Transactions)
	out.Timings.Reconcile = time.Since(reconcileStart)

	scoreStart := time.Now()
	out.Scores = s.scoreBatch(ctx, res, out.Reconciliation.Passed)
	out.Timings.Score = time.Since(scoreStart)

	out.Success = true
	out.Timings.Total = time.Since(started)
	filesTotal.WithLabelValues(methodLabel(res.Method), "ok").Inc()
	fileDuration.WithLabelValues(methodLabel(res.Method)).Observe(out.Timings.Total.Seconds())

	span.SetAttributes(
		attribute.Bool("ingest.success", true),
		attribute.Int("ingest.transactions", len(out.Transactions)),
		attribute.Int("ingest.duplicates", out.Duplicates),
		attribute.Bool("ingest.reconciled", out.Reconciliation.Passed),
	)
	s.logger.Info("statement ingested",
		"file", ec.Filename,
		"method", res.Method,
		"transactions", len(out.Transactions),
		"unique", out.Unique,
		"duplicates", out.Duplicates,
		"reconciled", out.Reconciliation.Passed,
		"duration", out.Timings.Total,
	)
	return out, nil
}

// scoreBatch scores every transaction and runs the field validator over
// the ones flagged for review.
func (s *Service) scoreBatch(ctx context.Context, res *extract.Result, reconciled bool) []confidence.Score {
	expectsBalance := anyBalance(res.Transactions)
	expectsValueDate := anyValueDate(res.Transactions)
	_, ambiguousDates := res.Metadata["ambiguous_dates"]
	assumedPolarity := res.Metadata["assumed_polarity"] == "true"

	scores := make([]confidence.Score, 0, len(res.Transactions))
	for _, tx := range res.Transactions {
		in := confidence.Input{
			Tx:                   tx,
			Method:               res.Method,
			ReconciliationPassed: &reconciled,
			ExpectsBalance:       expectsBalance,
			ExpectsValueDate:     expectsValueDate,
			AmbiguousDate:        ambiguousDates,
			AssumedPolarity:      assumedPolarity,
		}
		switch res.Method {
		case confidence.MethodPDFTemplate:
			h, t := res.Quality.HeaderMatchScore, res.Quality.TableConfidence
			in.HeaderMatchScore, in.TableConfidence = &h, &t
		case confidence.MethodOCRLine:
			c := res.Quality.OCRCharConfidence
			in.OCRCharConfidence = &c
		}

		score := s.scorer.Score(in)
		tx.SourceConfidence = score.Overall
		if score.NeedsReview {
			s.validateFields(ctx, tx)
		}
		scores = append(scores, score)
	}
	return scores
}

// validateFields asks the collaborator for corrections on a low-confidence
// transaction. Validation failures are logged and ignored; they never
// block ingestion.
func (s *Service) validateFields(ctx context.Context, tx *canonical.Transaction) {
	suggestions, err := s.validator.ValidateFields(ctx, tx)
	if err != nil {
		s.logger.Warn("field validation unavailable", "transaction", tx.ID, "err", err)
		return
	}
	for _, sug := range suggestions {
		if sug.Confidence < minSuggestionConfidence {
			continue
		}
		switch sug.Field {
		case "description":
			tx.Description = sug.Value
		case "category":
			tx.Category = sug.Value
		case "vendor":
			tx.Vendor = sug.Value
		}
	}
}

func methodLabel(method string) string {
	if method == "" {
		return "unknown"
	}
	return method
}

func anyBalance(txs []*canonical.Transaction) bool {
	for _, tx := range txs {
		if tx.Balance != nil {
			return true
		}
	}
	return false
}

func anyValueDate(txs []*canonical.Transaction) bool {
	for _, tx := range txs {
		if tx.ValueDate != nil {
			return true
		}
	}
	return false
}
