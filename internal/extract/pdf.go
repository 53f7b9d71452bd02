package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/confidence"
	"github.com/ledgerlift/ingest/internal/ingesterr"
	"github.com/ledgerlift/ingest/internal/normalizer"
	"github.com/ledgerlift/ingest/internal/sniffer"
	"github.com/ledgerlift/ingest/internal/template"
)

// pdfGenericConfidence is the fixed confidence of the generic fallback
// when no bank template accepts the document.
const pdfGenericConfidence = 0.5

// PDFExtractor handles PDF statements: text and positions come from the
// PDF content streams, page features are matched against the bank
// template registry, and lines are parsed either template-guided or
// generically.
type PDFExtractor struct {
	matcher *template.Matcher
	logger  *slog.Logger
}

// NewPDFExtractor builds the PDF extractor over a template matcher.
func NewPDFExtractor(matcher *template.Matcher, logger *slog.Logger) *PDFExtractor {
	return &PDFExtractor{matcher: matcher, logger: logger}
}

func (e *PDFExtractor) Name() string { return confidence.MethodPDFTemplate }

func (e *PDFExtractor) CanExtract(ec *Context) bool {
	if strings.ToLower(filepath.Ext(ec.Filename)) == ".pdf" {
		return true
	}
	return bytes.HasPrefix(ec.Data, []byte("%PDF-"))
}

// pdfLine is one reconstructed text line with its vertical position as a
// percentage from the page top.
type pdfLine struct {
	Text       string
	TopPercent float64
}

func (e *PDFExtractor) Extract(_ context.Context, ec *Context) *Result {
	reader, err := pdf.NewReader(bytes.NewReader(ec.Data), int64(len(ec.Data)))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypted") {
			return failed(e.Name(), ingesterr.New(ingesterr.CodePasswordProtected, ingesterr.TierExtraction,
				"PDF is password protected; export an unlocked copy").WithLocation("%s", ec.Filename))
		}
		return failed(e.Name(), ingesterr.Wrap(ingesterr.CodeParserFailure, ingesterr.TierExtraction,
			"PDF could not be opened", err).WithLocation("%s", ec.Filename))
	}

	var lines []pdfLine
	pages := reader.NumPage()
	for p := 1; p <= pages; p++ {
		pageLines, pageErr := extractPageLines(reader.Page(p))
		if pageErr != nil {
			e.logger.Warn("skipping unreadable PDF page", "file", ec.Filename, "page", p, "reason", pageErr)
			continue
		}
		lines = append(lines, pageLines...)
	}
	if len(lines) == 0 {
		return failed(e.Name(), ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"no text found in PDF; the document may be a scan needing OCR").WithLocation("%s", ec.Filename))
	}

	features := buildFeatures(lines)

	var res *Result
	if match, ok := e.matcher.Best(features); ok {
		res = e.extractWithTemplate(ec, lines, match)
	} else {
		res = e.extractGeneric(ec, lines)
	}
	res.PagesProcessed = pages
	return res
}

// extractPageLines reconstructs text lines from one page's positioned
// glyph runs, top to bottom.
func extractPageLines(page pdf.Page) (lines []pdfLine, err error) {
	// The pdf library panics on malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content stream: %v", r)
		}
	}()

	content := page.Content()
	if len(content.Text) == 0 {
		return nil, nil
	}

	minY, maxY := content.Text[0].Y, content.Text[0].Y
	for _, t := range content.Text {
		if t.Y < minY {
			minY = t.Y
		}
		if t.Y > maxY {
			maxY = t.Y
		}
	}
	height := maxY - minY
	if height == 0 {
		height = 1
	}

	// Group runs into lines by rounded Y. PDF Y grows upward.
	type run struct {
		x float64
		s string
	}
	byY := map[int][]run{}
	for _, t := range content.Text {
		key := int(t.Y + 0.5)
		byY[key] = append(byY[key], run{x: t.X, s: t.S})
	}

	keys := make([]int, 0, len(byY))
	for k := range byY {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))

	for _, k := range keys {
		runs := byY[k]
		sort.Slice(runs, func(i, j int) bool { return runs[i].x < runs[j].x })

		var sb strings.Builder
		lastX := 0.0
		for i, r := range runs {
			// A large horizontal jump separates table cells.
			if i > 0 && r.x-lastX > 8 {
				sb.WriteString("  ")
			}
			sb.WriteString(r.s)
			lastX = r.x + float64(len(r.s))
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			continue
		}
		lines = append(lines, pdfLine{
			Text:       text,
			TopPercent: (maxY - float64(k)) / height * 100,
		})
	}
	return lines, nil
}

// buildFeatures derives the match features: header and footer text bands,
// table column header candidates, and vertical band positions.
func buildFeatures(lines []pdfLine) template.Features {
	var f template.Features
	var headerParts, footerParts []string

	for _, l := range lines {
		switch {
		case l.TopPercent <= 20:
			headerParts = append(headerParts, l.Text)
		case l.TopPercent >= 85:
			footerParts = append(footerParts, l.Text)
		}
	}
	f.HeaderText = strings.Join(headerParts, "\n")
	f.FooterText = strings.Join(footerParts, "\n")

	if len(headerParts) > 0 {
		f.HeaderBand = &template.Band{0, 20}
	}

	// The table header is the first line whose cells map to the required
	// statement columns.
	for _, l := range lines {
		cells := splitTableCells(l.Text)
		if len(cells) < 3 {
			continue
		}
		m := sniffer.MapColumns(cells)
		if len(requiredColumnsMissing(m)) == 0 {
			f.ColumnHeaders = cells
			f.TableBand = &template.Band{l.TopPercent, tableBottom(lines, l.TopPercent)}
			break
		}
	}
	return f
}

// splitTableCells splits a rendered line on runs of two or more spaces.
func splitTableCells(line string) []string {
	var cells []string
	for _, cell := range strings.Split(line, "  ") {
		if c := strings.TrimSpace(cell); c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}

// tableBottom finds where transaction-looking lines stop.
func tableBottom(lines []pdfLine, top float64) float64 {
	bottom := top
	for _, l := range lines {
		if l.TopPercent <= top {
			continue
		}
		if _, ok := parseStatementLine(l.Text, signRules{}); ok && l.TopPercent > bottom {
			bottom = l.TopPercent
		}
	}
	if bottom == top {
		return top + 10
	}
	return bottom
}

// extractWithTemplate parses lines under the matched template's guidance:
// its preferred date format and amount sign rules.
func (e *PDFExtractor) extractWithTemplate(ec *Context, lines []pdfLine, match template.MatchResult) *Result {
	tpl := match.Template
	rules := signRulesFromTemplate(tpl.Match.AmountSignRules)
	preferred := tpl.Match.DateFormatPref

	txs, assumed, warnings := linesToTransactions(lineTexts(lines), ec, canonical.SourcePDF, preferred, rules)

	res := &Result{
		Method:       confidence.MethodPDFTemplate,
		Confidence:   confidence.BaseScore(confidence.MethodPDFTemplate),
		Transactions: txs,
		Warnings:     warnings,
		DetectedBank: tpl.Name,
		Quality: Quality{
			HeaderMatchScore: match.Components.Headers,
			TableConfidence:  match.Components.Table,
		},
		Metadata: map[string]string{
			"template":       tpl.Name,
			"template_score": fmt.Sprintf("%.2f", match.Score),
		},
	}
	return e.finishPDFResult(res, ec, assumed)
}

// extractGeneric parses lines with no template guidance at the fixed
// fallback confidence.
func (e *PDFExtractor) extractGeneric(ec *Context, lines []pdfLine) *Result {
	txs, assumed, warnings := linesToTransactions(lineTexts(lines), ec, canonical.SourcePDF, "", signRules{})

	res := &Result{
		Method:       confidence.MethodPDFGeneric,
		Confidence:   pdfGenericConfidence,
		Transactions: txs,
		Warnings:     warnings,
	}
	return e.finishPDFResult(res, ec, assumed)
}

func (e *PDFExtractor) finishPDFResult(res *Result, ec *Context, assumedPolarity bool) *Result {
	if len(res.Transactions) == 0 {
		res.Err = ingesterr.New(ingesterr.CodeNoRowsExtracted, ingesterr.TierExtraction,
			"no transaction lines recognized in PDF text").WithLocation("%s", ec.Filename)
		return res
	}
	if assumedPolarity {
		if res.Metadata == nil {
			res.Metadata = map[string]string{}
		}
		res.Metadata["assumed_polarity"] = "true"
	}
	res.Success = true
	res.DetectedAccount = detectAccountLine(res, ec)
	res.PeriodStart, res.PeriodEnd = period(res.Transactions)
	return res
}

func lineTexts(lines []pdfLine) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Text)
	}
	return out
}

// signRulesFromTemplate maps declarative template sign rules onto the
// parser knobs. Recognized keys: debit_marker, credit_marker,
// trailing_minus.
func signRulesFromTemplate(rules map[string]string) signRules {
	return signRules{
		debitMarker:   rules["debit_marker"],
		creditMarker:  rules["credit_marker"],
		trailingMinus: strings.EqualFold(rules["trailing_minus"], "true"),
	}
}

func detectAccountLine(res *Result, ec *Context) string {
	if acc := firstAccount(res.Transactions); acc != "" {
		return acc
	}
	return normalizer.CleanDescription(ec.AccountHint)
}
