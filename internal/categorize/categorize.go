// Package categorize assigns vendors and categories to extracted
// transactions using multi-pattern keyword matching with a fuzzy
// fallback for merchant-name variations.
package categorize

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	"github.com/ledgerlift/ingest/internal/canonical"
)

// Rule maps a description keyword to a vendor and category.
type Rule struct {
	// Pattern is matched case-insensitively as a substring of the
	// transaction description.
	Pattern string `yaml:"pattern"`
	// Vendor is the clean merchant name to assign.
	Vendor string `yaml:"vendor"`
	// Category is the spending category to assign.
	Category string `yaml:"category"`
	// Recurring marks subscriptions and standing orders.
	Recurring bool `yaml:"recurring"`
	// Priority breaks ties when several patterns hit the same
	// description. Higher wins.
	Priority int `yaml:"priority"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Match is the winning rule for one description.
type Match struct {
	Rule  Rule
	Fuzzy bool
	Score int
}

// Categorizer matches descriptions against a rule set. All patterns are
// scanned in a single pass; the fuzzy fallback only runs when nothing
// matched exactly. Safe for concurrent use.
type Categorizer struct {
	mu       sync.RWMutex
	matcher  *ahocorasick.Matcher
	patterns []string
	rules    [][]Rule // metadata per pattern; duplicates group together

	// fuzzyThreshold is the minimum similarity score (0-100) the
	// fallback accepts. Zero disables the fallback.
	fuzzyThreshold int
}

// New builds a categorizer from a rule set.
func New(rules []Rule, fuzzyThreshold int) *Categorizer {
	c := &Categorizer{fuzzyThreshold: fuzzyThreshold}
	c.Rebuild(rules)
	return c
}

// LoadRules reads a YAML rule file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	for i, r := range rf.Rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, fmt.Errorf("rule file %s: rule %d has no pattern", path, i)
		}
	}
	return rf.Rules, nil
}

// Rebuild swaps the rule set. Existing matches in flight finish against
// the old set.
func (c *Categorizer) Rebuild(rules []Rule) {
	patternIndex := make(map[string]int)
	patterns := make([]string, 0, len(rules))
	grouped := make([][]Rule, 0, len(rules))

	for _, r := range rules {
		p := strings.ToUpper(strings.TrimSpace(r.Pattern))
		if p == "" {
			continue
		}
		if idx, ok := patternIndex[p]; ok {
			grouped[idx] = append(grouped[idx], r)
			continue
		}
		patternIndex[p] = len(patterns)
		patterns = append(patterns, p)
		grouped = append(grouped, []Rule{r})
	}

	var matcher *ahocorasick.Matcher
	if len(patterns) > 0 {
		matcher = ahocorasick.NewStringMatcher(patterns)
	}

	c.mu.Lock()
	c.matcher = matcher
	c.patterns = patterns
	c.rules = grouped
	c.mu.Unlock()
}

// RuleCount reports how many distinct patterns are loaded.
func (c *Categorizer) RuleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.patterns)
}

// Match returns the best rule for a description, or nil when nothing
// matches. Exact keyword hits always beat fuzzy ones.
func (c *Categorizer) Match(description string) *Match {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.patterns) == 0 {
		return nil
	}
	normalized := strings.ToUpper(description)

	if c.matcher != nil {
		hits := c.matcher.Match([]byte(normalized))
		var best *Match
		for _, idx := range hits {
			if idx < 0 || idx >= len(c.rules) {
				continue
			}
			for _, r := range c.rules[idx] {
				if best == nil || r.Priority > best.Rule.Priority {
					best = &Match{Rule: r, Score: 100}
				}
			}
		}
		if best != nil {
			return best
		}
	}

	if c.fuzzyThreshold <= 0 {
		return nil
	}
	return c.fuzzyMatch(normalized)
}

// Apply fills Vendor, Category, and Recurring on transactions that carry
// none yet and returns how many it touched. Extracted values are never
// overwritten.
func (c *Categorizer) Apply(txs []*canonical.Transaction) int {
	applied := 0
	for _, tx := range txs {
		if tx.Vendor != "" && tx.Category != "" {
			continue
		}
		m := c.Match(tx.Description)
		if m == nil {
			continue
		}
		if tx.Vendor == "" {
			tx.Vendor = m.Rule.Vendor
		}
		if tx.Category == "" {
			tx.Category = m.Rule.Category
		}
		if m.Rule.Recurring {
			tx.Recurring = true
		}
		applied++
	}
	return applied
}
