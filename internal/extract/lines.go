package extract

import (
	"regexp"
	"strings"

	"github.com/ledgerlift/ingest/internal/canonical"
	"github.com/ledgerlift/ingest/internal/normalizer"
)

// lineDateRe finds the first date-looking token in a statement line.
var lineDateRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})\b`)

// lineAmountRe finds amount-looking tokens: optional sign or parentheses,
// thousands groups, decimal part. Trailing-minus notation is captured too.
var lineAmountRe = regexp.MustCompile(`[-+(]?(?:[$€£]\s?)?\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?\)?-?`)

// signRules tunes how a parsed line's amount sign is decided. Zero value =
// generic behavior (explicit minus or parentheses only).
type signRules struct {
	// debitMarker / creditMarker are tokens whose presence in the line
	// forces the sign (e.g. "D" / "C" flags printed beside the amount).
	debitMarker  string
	creditMarker string
	// trailingMinus accepts the "123.45-" debit notation.
	trailingMinus bool
}

// parsedLine is one statement line split into its transaction parts.
type parsedLine struct {
	Date        string
	Description string
	Amount      string
	Balance     string
	// AssumedPolarity is set when the amount carried no explicit sign and
	// no rule decided it, so positive was assumed.
	AssumedPolarity bool
	Negate          bool
}

// parseStatementLine splits a free-form statement line into date,
// description, amount, and optional balance. Lines without both a date and
// an amount are not transactions and return ok=false.
func parseStatementLine(line string, rules signRules) (parsedLine, bool) {
	var out parsedLine

	dateLoc := lineDateRe.FindStringIndex(line)
	if dateLoc == nil {
		return out, false
	}
	out.Date = line[dateLoc[0]:dateLoc[1]]

	rest := line[dateLoc[1]:]
	amountLocs := lineAmountRe.FindAllStringIndex(rest, -1)
	// Drop matches that are fragments of longer tokens (e.g. the year
	// inside a second date).
	amountLocs = filterAmountMatches(rest, amountLocs)
	if len(amountLocs) == 0 {
		return out, false
	}

	// The last amount-looking token is the balance when two or more
	// trailing amounts are present; the one before it is the amount.
	amountLoc := amountLocs[len(amountLocs)-1]
	if len(amountLocs) >= 2 {
		prev := amountLocs[len(amountLocs)-2]
		// Only treat the final token as a balance when both sit at the
		// line's tail, separated by whitespace alone.
		between := rest[prev[1]:amountLoc[0]]
		tail := rest[amountLoc[1]:]
		if strings.TrimSpace(tail) == "" && strings.TrimSpace(between) == "" {
			out.Balance = rest[amountLoc[0]:amountLoc[1]]
			amountLoc = prev
		}
	}
	out.Amount = strings.TrimSpace(rest[amountLoc[0]:amountLoc[1]])

	desc := rest[:amountLoc[0]]
	out.Description = normalizer.CleanDescription(stripMarkers(desc, rules))
	if out.Description == "" {
		return out, false
	}

	decideSign(&out, desc, rules)
	return out, true
}

// filterAmountMatches keeps matches that carry a decimal part or explicit
// sign; bare integers inside descriptions are too noisy to trust.
func filterAmountMatches(s string, locs [][]int) [][]int {
	var kept [][]int
	for _, loc := range locs {
		token := s[loc[0]:loc[1]]
		if strings.ContainsAny(token, ".,") || strings.HasPrefix(token, "-") || strings.HasPrefix(token, "(") {
			kept = append(kept, loc)
		}
	}
	return kept
}

func stripMarkers(desc string, rules signRules) string {
	for _, marker := range []string{rules.debitMarker, rules.creditMarker} {
		if marker == "" {
			continue
		}
		desc = strings.ReplaceAll(desc, " "+marker+" ", " ")
	}
	return desc
}

// decideSign applies the sign rules. Explicit notation wins; markers next;
// otherwise the amount stays positive and the assumption is recorded.
func decideSign(out *parsedLine, desc string, rules signRules) {
	amt := out.Amount
	explicit := strings.HasPrefix(amt, "-") || strings.HasPrefix(amt, "(") ||
		(rules.trailingMinus && strings.HasSuffix(amt, "-"))
	if explicit {
		if strings.HasSuffix(amt, "-") && !strings.HasPrefix(amt, "-") {
			out.Amount = "-" + strings.TrimSuffix(amt, "-")
		}
		return
	}

	fields := strings.Fields(desc)
	if rules.debitMarker != "" && containsToken(fields, rules.debitMarker) {
		out.Negate = true
		return
	}
	if rules.creditMarker != "" && containsToken(fields, rules.creditMarker) {
		return
	}
	out.AssumedPolarity = true
}

func containsToken(fields []string, token string) bool {
	for _, f := range fields {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

// linesToTransactions runs the line parser over free-form text lines and
// normalizes the hits into canonical transactions.
func linesToTransactions(lines []string, ec *Context, source canonical.SourceKind, preferredDateFormat string, rules signRules) (txs []*canonical.Transaction, assumedPolarity bool, warnings []string) {
	currency := ec.CurrencyHint
	if currency == "" {
		currency = defaultCurrency
	}

	for _, line := range lines {
		parsed, ok := parseStatementLine(line, rules)
		if !ok {
			continue
		}

		date, _, err := normalizer.ParseFlexibleDate(parsed.Date, preferredDateFormat)
		if err != nil {
			warnings = append(warnings, "unparseable date in line: "+normalizer.CleanDescription(line))
			continue
		}
		amount, err := normalizer.ParseAmount(parsed.Amount)
		if err != nil {
			warnings = append(warnings, "unparseable amount in line: "+normalizer.CleanDescription(line))
			continue
		}
		if parsed.Negate {
			amount = amount.Abs().Neg()
		}

		tx, err := canonical.New(ec.AccountHint, date, parsed.Description, amount, currency, source)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		if parsed.Balance != "" {
			if bal, balErr := normalizer.ParseAmount(parsed.Balance); balErr == nil {
				tx.Balance = &bal
			}
		}
		if parsed.AssumedPolarity {
			assumedPolarity = true
		}
		txs = append(txs, tx)
	}
	return txs, assumedPolarity, warnings
}
