package template

import (
	"math"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Features are the superficial text/layout signals extracted from a PDF,
// the only input the matcher sees.
type Features struct {
	HeaderText    string   // top-of-page text band
	FooterText    string   // bottom-of-page text band
	ColumnHeaders []string // detected table column headers, may be empty
	HeaderBand    *Band    // detected header vertical band, may be nil
	TableBand     *Band    // detected table vertical band, may be nil
}

// ComponentScores break the overall score down per criterion.
type ComponentScores struct {
	Headers  float64
	Table    float64
	Footer   float64
	Geometry float64
}

// MatchResult is one template scored against the features.
type MatchResult struct {
	Template      *Template
	Score         float64
	Components    ComponentScores
	MatchedTokens []string
	Confidence    float64
}

// neutralGeometryScore applies when either expected or detected band is
// missing: geometry neither helps nor hurts.
const neutralGeometryScore = 0.5

// Matcher scores PDF features against a registry's template set.
type Matcher struct {
	registry *Registry
}

// NewMatcher creates a matcher over reg.
func NewMatcher(reg *Registry) *Matcher {
	return &Matcher{registry: reg}
}

// Rank scores every loaded template and returns results ordered by
// descending score.
func (m *Matcher) Rank(f Features) []MatchResult {
	templates := m.registry.Templates()
	results := make([]MatchResult, 0, len(templates))
	for _, t := range templates {
		results = append(results, scoreTemplate(t, f))
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// Best returns the top-ranked template only if its score meets that
// template's own accept threshold. ok=false means the caller must fall back
// to generic extraction rather than fail the file.
func (m *Matcher) Best(f Features) (MatchResult, bool) {
	ranked := m.Rank(f)
	if len(ranked) == 0 {
		return MatchResult{}, false
	}
	top := ranked[0]
	if top.Score < top.Template.AcceptThreshold {
		return MatchResult{}, false
	}
	return top, true
}

func scoreTemplate(t *Template, f Features) MatchResult {
	headers, headerTokens := keywordFraction(t.Match.HeaderKeys, f.HeaderText)
	footer, footerTokens := keywordFraction(t.Match.FooterKeywords, f.FooterText)
	table := tableScore(t, f.ColumnHeaders)
	geometry := geometryScore(t, f)

	w := t.ScoreWeights
	score := w.Headers*headers + w.Table*table + w.Footer*footer + w.Geometry*geometry

	return MatchResult{
		Template: t,
		Score:    score,
		Components: ComponentScores{
			Headers:  headers,
			Table:    table,
			Footer:   footer,
			Geometry: geometry,
		},
		MatchedTokens: append(headerTokens, footerTokens...),
		Confidence:    score,
	}
}

// keywordFraction returns the fraction of keywords found (case-insensitive
// substring) in text, plus the matched tokens. The keyword set is scanned in
// one pass with an Aho-Corasick matcher.
func keywordFraction(keywords []string, text string) (float64, []string) {
	if len(keywords) == 0 {
		return 0, nil
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	matcher := ahocorasick.NewStringMatcher(lowered)
	hits := matcher.Match([]byte(strings.ToLower(text)))

	matched := make([]string, 0, len(hits))
	for _, idx := range hits {
		if idx >= 0 && idx < len(keywords) {
			matched = append(matched, keywords[idx])
		}
	}
	return float64(len(matched)) / float64(len(keywords)), matched
}

// tableScore is the fraction of table-header patterns matching at least one
// detected column header. Required patterns with no detected headers score 0.
func tableScore(t *Template, columnHeaders []string) float64 {
	if len(t.tableHeaderRes) == 0 {
		return 0
	}
	if len(columnHeaders) == 0 {
		return 0
	}
	matched := 0
	for _, re := range t.tableHeaderRes {
		for _, h := range columnHeaders {
			if re.MatchString(h) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(t.tableHeaderRes))
}

func geometryScore(t *Template, f Features) float64 {
	scores := make([]float64, 0, 2)
	scores = append(scores, bandIoU(t.Match.GeometryHints.HeaderBand, f.HeaderBand))
	scores = append(scores, bandIoU(t.Match.GeometryHints.TableBand, f.TableBand))

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// bandIoU is intersection-over-union of two vertical bands: overlap length
// divided by union length, 0 when disjoint, 1 when identical. Missing bands
// score the neutral 0.5.
func bandIoU(expected, actual *Band) float64 {
	if expected == nil || actual == nil {
		return neutralGeometryScore
	}
	lo := math.Max(expected[0], actual[0])
	hi := math.Min(expected[1], actual[1])
	overlap := hi - lo
	if overlap <= 0 {
		return 0
	}
	union := math.Max(expected[1], actual[1]) - math.Min(expected[0], actual[0])
	if union <= 0 {
		return 0
	}
	return overlap / union
}
