// Package template recognizes which known bank statement layout a PDF most
// likely follows, using superficial text and layout features scored against
// declarative template definitions.
package template

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Band is a vertical page region expressed as percentages of page height,
// top-down: [0, 15] is the top 15% of the page.
type Band [2]float64

// Valid reports whether the band is a sane percentage range.
func (b Band) Valid() bool {
	return b[0] >= 0 && b[1] <= 100 && b[0] < b[1]
}

// Match holds the declarative criteria a statement layout is recognized by.
type Match struct {
	HeaderKeys      []string          `yaml:"header_keys"`
	TableHeaders    []string          `yaml:"table_headers"` // regex patterns
	FooterKeywords  []string          `yaml:"footer_keywords"`
	DateFormatPref  string            `yaml:"date_format_pref"`
	AmountSignRules map[string]string `yaml:"amount_sign_rules"`
	GeometryHints   struct {
		HeaderBand *Band `yaml:"header_band"`
		TableBand  *Band `yaml:"table_band"`
	} `yaml:"geometry_hints"`
}

// ScoreWeights distributes the overall score across the four component
// scores. Weights should sum to roughly 1.0.
type ScoreWeights struct {
	Headers  float64 `yaml:"headers"`
	Table    float64 `yaml:"table"`
	Footer   float64 `yaml:"footer"`
	Geometry float64 `yaml:"geometry"`
}

// Template is one known bank statement layout. Immutable after load.
type Template struct {
	Name            string       `yaml:"name"`
	Version         int          `yaml:"version"`
	Match           Match        `yaml:"match"`
	ScoreWeights    ScoreWeights `yaml:"score_weights"`
	AcceptThreshold float64      `yaml:"accept_threshold"`

	tableHeaderRes []*regexp.Regexp
}

const weightSumTolerance = 0.05

// Parse decodes and validates a single YAML template definition.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("template: decode: %w", err)
	}
	if t.Name == "" {
		return nil, fmt.Errorf("template: missing name")
	}
	if t.AcceptThreshold <= 0 || t.AcceptThreshold > 1 {
		return nil, fmt.Errorf("template %s: accept_threshold must be in (0,1], got %v", t.Name, t.AcceptThreshold)
	}
	sum := t.ScoreWeights.Headers + t.ScoreWeights.Table + t.ScoreWeights.Footer + t.ScoreWeights.Geometry
	if sum < 1-weightSumTolerance || sum > 1+weightSumTolerance {
		return nil, fmt.Errorf("template %s: score weights sum to %.3f, want ~1.0", t.Name, sum)
	}
	if b := t.Match.GeometryHints.HeaderBand; b != nil && !b.Valid() {
		return nil, fmt.Errorf("template %s: invalid header band %v", t.Name, *b)
	}
	if b := t.Match.GeometryHints.TableBand; b != nil && !b.Valid() {
		return nil, fmt.Errorf("template %s: invalid table band %v", t.Name, *b)
	}
	for _, pat := range t.Match.TableHeaders {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("template %s: table header pattern %q: %w", t.Name, pat, err)
		}
		t.tableHeaderRes = append(t.tableHeaderRes, re)
	}
	return &t, nil
}
