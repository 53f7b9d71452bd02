package categorize

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// fuzzyMatch scans every rule pattern and returns the best one scoring at
// or above the threshold. Callers hold the read lock.
func (c *Categorizer) fuzzyMatch(normalized string) *Match {
	var best *Match
	for idx, pattern := range c.patterns {
		score := similarity(normalized, pattern)
		if score < c.fuzzyThreshold {
			continue
		}
		for _, r := range c.rules[idx] {
			if best == nil || score > best.Score ||
				(score == best.Score && r.Priority > best.Rule.Priority) {
				best = &Match{Rule: r, Fuzzy: true, Score: score}
			}
		}
	}
	return best
}

// similarity scores two uppercased strings 0-100. Containment is the
// common case for merchant variants ("STARBUCKS 0231" vs "STARBUCKS"),
// with edit distance and subsequence ranking covering the rest.
func similarity(a, b string) int {
	if a == b {
		return 100
	}
	if strings.Contains(a, b) {
		return 75 + 25*len(b)/len(a)
	}
	if strings.Contains(b, a) {
		return 75 + 25*len(a)/len(b)
	}

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	editScore := 100 * (maxLen - editDistance(a, b)) / maxLen

	rankScore := 0
	if rank := fuzzy.RankMatch(b, a); rank >= 0 && rank < len(a) {
		rankScore = 60 - rank*40/len(a)
	}

	if editScore > rankScore {
		return editScore
	}
	return rankScore
}

// editDistance is the Levenshtein distance over runes, two-row variant.
func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
