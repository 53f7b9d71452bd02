// Package sniffer detects the physical shape of delimited statement files:
// text encoding, field delimiter, header row, and column roles.
package sniffer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// encodingSampleSize bounds how many leading bytes feed the charset detector.
const encodingSampleSize = 8 * 1024

// encodingConfidenceThreshold is the minimum chardet confidence before we
// trust a detected charset over the UTF-8 default.
const encodingConfidenceThreshold = 40

// DecodeText converts raw statement bytes to UTF-8. Valid UTF-8 passes
// through untouched; only invalid byte sequences consult the charset
// detector, with Latin-1 as the last resort so no input is ever fatal.
func DecodeText(data []byte) []byte {
	data = stripUTF8BOM(data)
	if len(data) == 0 || utf8.Valid(data) {
		return data
	}

	sample := data
	if len(sample) > encodingSampleSize {
		sample = sample[:encodingSampleSize]
	}

	detector := chardet.NewTextDetector()
	if result, err := detector.DetectBest(sample); err == nil && result.Confidence >= encodingConfidenceThreshold {
		switch result.Charset {
		case "ISO-8859-1", "windows-1252":
			if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
				return decoded
			}
		case "ISO-8859-15":
			if decoded, err := charmap.ISO8859_15.NewDecoder().Bytes(data); err == nil {
				return decoded
			}
		}
	}

	// Last resort: treat as Latin-1, which can never fail.
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

func stripUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// delimiterCandidates in preference order for ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// delimiterSampleLines is how many leading lines feed delimiter statistics.
const delimiterSampleLines = 10

// DetectDelimiter picks the candidate whose per-line occurrence count has the
// highest mean and lowest variance across the first few lines. A consistent
// column count beats a high but erratic one.
func DetectDelimiter(data []byte) (rune, error) {
	lines := leadingLines(data, delimiterSampleLines)
	if len(lines) == 0 {
		return 0, ErrEmptyFile
	}

	best := rune(0)
	bestScore := 0.0
	for _, cand := range delimiterCandidates {
		mean, variance := occurrenceStats(lines, cand)
		if mean < 1 {
			continue
		}
		score := mean / (1.0 + variance)
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	if best == 0 {
		return 0, ErrInvalidDelimiter
	}
	return best, nil
}

func leadingLines(data []byte, n int) []string {
	var lines []string
	for _, raw := range strings.SplitN(string(data), "\n", n+1) {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return lines
}

func occurrenceStats(lines []string, delim rune) (mean, variance float64) {
	counts := make([]float64, len(lines))
	var sum float64
	for i, line := range lines {
		counts[i] = float64(strings.Count(line, string(delim)))
		sum += counts[i]
	}
	mean = sum / float64(len(lines))
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(lines))
	return mean, variance
}

// FileConfig is the detected physical layout of a delimited file.
type FileConfig struct {
	Delimiter  rune
	SkipLines  int // metadata lines before the header row
	Headers    []string
	SampleRows [][]string // first few data rows
}

// headerKeywords mark a line as a plausible header row (multi-language,
// carried over from observed bank exports).
var headerKeywords = []string{
	"date", "data", "fecha", "datum", "booking",
	"description", "descrição", "descricao", "descripción", "memo", "payee", "merchant",
	"amount", "valor", "importe", "montant", "betrag",
	"debit", "débito", "debito", "cargo",
	"credit", "crédito", "credito", "abono",
	"balance", "saldo", "account", "conta", "reference", "referencia", "category", "categoria",
}

// DetectConfig locates the header row and returns delimiter, headers, and
// sample rows. Statement exports often carry metadata lines before the real
// header; the scan prefers keyword-bearing lines with many columns.
func DetectConfig(data []byte) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	delimiter, err := DetectDelimiter(data)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	headerIdx := -1
	bestScore := 0
	for i, raw := range lines {
		if i > 20 {
			break
		}
		line := strings.TrimSpace(strings.TrimRight(raw, "\r"))
		if line == "" {
			continue
		}
		cols := strings.Count(line, string(delimiter)) + 1
		if cols < 2 {
			continue
		}
		lower := strings.ToLower(line)
		matches := 0
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := cols*10 + matches
		if score > bestScore {
			bestScore = score
			headerIdx = i
		}
	}
	if headerIdx < 0 {
		return nil, ErrNoHeadersFound
	}

	headerLine := strings.TrimRight(lines[headerIdx], "\r")
	if headerIdx == 0 {
		headerLine = strings.TrimPrefix(headerLine, "\uFEFF")
	}
	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	return &FileConfig{
		Delimiter:  delimiter,
		SkipLines:  headerIdx,
		Headers:    headers,
		SampleRows: sampleRows(lines[headerIdx+1:], delimiter, 5),
	}, nil
}

// sampleRows parses physical lines one at a time so blank metadata lines
// cannot shift the data offset (encoding/csv silently skips empty lines).
func sampleRows(lines []string, delimiter rune, maxRows int) [][]string {
	var rows [][]string
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		reader := csv.NewReader(strings.NewReader(line))
		reader.Comma = delimiter
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
		record, err := reader.Read()
		if err != nil {
			continue
		}
		rows = append(rows, record)
		if len(rows) >= maxRows {
			break
		}
	}
	return rows
}

// Field is a canonical column role.
type Field string

const (
	FieldDate        Field = "date"
	FieldValueDate   Field = "value_date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
	FieldBalance     Field = "balance"
	FieldAccount     Field = "account"
	FieldReference   Field = "reference"
	FieldCategory    Field = "category"
)

// synonyms maps lowercased header names to canonical fields. Order inside a
// slice is irrelevant; first-wins applies across columns.
var synonyms = map[Field][]string{
	FieldValueDate:   {"value date", "data valor", "fecha valor", "valuta", "wertstellung"},
	FieldDate:        {"date", "data", "data mov", "data mov.", "fecha", "datum", "booking date", "transaction date", "posted"},
	FieldDescription: {"description", "descrição", "descricao", "descripción", "merchant", "payee", "details", "memo", "narrative", "concepto"},
	FieldAmount:      {"amount", "valor", "importe", "value", "montant", "betrag", "montante"},
	FieldDebit:       {"debit", "débito", "debito", "cargo", "withdrawal", "withdrawals", "money out", "soll"},
	FieldCredit:      {"credit", "crédito", "credito", "abono", "deposit", "deposits", "money in", "haben"},
	FieldBalance:     {"balance", "saldo", "running balance", "solde"},
	FieldAccount:     {"account", "account number", "conta", "cuenta", "iban", "konto"},
	FieldReference:   {"reference", "referencia", "ref", "fitid", "transaction id", "cheque number"},
	FieldCategory:    {"category", "categoria", "categoría", "type", "tipo"},
}

// fieldOrder keeps mapping deterministic; value_date before date so the more
// specific synonym claims its column first.
var fieldOrder = []Field{
	FieldValueDate, FieldDate, FieldDescription, FieldAmount,
	FieldDebit, FieldCredit, FieldBalance, FieldAccount,
	FieldReference, FieldCategory,
}

// ColumnMap maps canonical fields to column indices (-1 = absent).
type ColumnMap map[Field]int

// MapColumns assigns a canonical role to each header. Exact (substring)
// synonym matches win; a fuzzy fold match picks up headers like
// "transaction-date" that no synonym covers literally.
func MapColumns(headers []string) ColumnMap {
	m := ColumnMap{}
	for _, f := range fieldOrder {
		m[f] = -1
	}
	claimed := make([]bool, len(headers))

	lowered := make([]string, len(headers))
	for i, h := range headers {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}

	for _, field := range fieldOrder {
		for i, h := range lowered {
			if claimed[i] || h == "" || m[field] >= 0 {
				continue
			}
			for _, syn := range synonyms[field] {
				if h == syn || strings.Contains(h, syn) {
					m[field] = i
					claimed[i] = true
					break
				}
			}
		}
	}

	// Fuzzy fallback for still-unmapped required-ish fields.
	for _, field := range []Field{FieldDate, FieldDescription, FieldAmount} {
		if m[field] >= 0 {
			continue
		}
		for i, h := range lowered {
			if claimed[i] || h == "" {
				continue
			}
			normalized := strings.Map(func(r rune) rune {
				if r == '-' || r == '_' || r == '.' {
					return ' '
				}
				return r
			}, h)
			for _, syn := range synonyms[field] {
				if fuzzy.MatchNormalizedFold(syn, normalized) {
					m[field] = i
					claimed[i] = true
					break
				}
			}
			if m[field] >= 0 {
				break
			}
		}
	}

	return m
}

// Has reports whether the field is mapped to a real column.
func (m ColumnMap) Has(f Field) bool {
	idx, ok := m[f]
	return ok && idx >= 0
}

// HasAmount reports whether the map carries a single amount column or a
// debit/credit pair.
func (m ColumnMap) HasAmount() bool {
	return m[FieldAmount] >= 0 || (m[FieldDebit] >= 0 || m[FieldCredit] >= 0)
}

// IsDoubleEntry reports whether separate debit/credit columns are present
// and no single amount column claims priority.
func (m ColumnMap) IsDoubleEntry() bool {
	return m[FieldAmount] < 0 && (m[FieldDebit] >= 0 || m[FieldCredit] >= 0)
}
