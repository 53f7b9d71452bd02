package extract

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/ingesterr"
	"github.com/ledgerlift/ingest/internal/ocr"
)

// ImageExtractor feeds photographed or scanned statements to the OCR
// collaborator and parses the recognized text line by line.
type ImageExtractor struct {
	engine ocr.Engine
	logger *slog.Logger
}

// NewImageExtractor builds the OCR-backed image extractor.
func NewImageExtractor(engine ocr.Engine, logger *slog.Logger) *ImageExtractor {
	return &ImageExtractor{engine: engine, logger: logger}
}

func (e *ImageExtractor) Name() string { return confidence.MethodOCRLine }

func (e *ImageExtractor) CanExtract(ec *Context) bool {
	if !ec.OCREnabled {
		return false
	}
	switch strings.ToLower(filepath.Ext(ec.Filename)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp":
		return true
	}
	return strings.HasPrefix(ec.MIMEType, "image/")
}

func (e *ImageExtractor) Extract(ctx context.Context, ec *Context) *Result {
	recognized, err := e.engine.Recognize(ctx, ec.Data)
	if err != nil {
		return failed(e.Name(), ingesterr.Wrap(ingesterr.CodeParserFailure, ingesterr.TierExtraction,
			"optical recognition failed", err).WithLocation("%s", ec.Filename))
	}

	lines := make([]string, 0, len(recognized.Lines))
	for _, l := range recognized.Lines {
		lines = append(lines, l.Text)
	}

	txs, assumed, warnings := linesToTransactions(lines, ec, canonical.SourceOCR, "", signRules{})

	res := &Result{
		Method:            e.Name(),
		Confidence:        confidence.BaseScore(e.Name()),
		Transactions:      txs,
		Warnings:          warnings,
		OCRPagesProcessed: 1,
		PagesProcessed:    1,
		Quality:           Quality{OCRCharConfidence: recognized.MeanConfidence},
	}

	if len(txs) == 0 {
		res.Err = ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"no transaction lines recognized in image").WithLocation("%s", ec.Filename)
		return res
	}

	if assumed {
		res.Metadata = map[string]string{"assumed_polarity": "true"}
	}
	res.Success = true
	res.DetectedAccount = firstAccount(res.Transactions)
	res.PeriodStart, res.PeriodEnd = period(res.Transactions)
	return res
}
