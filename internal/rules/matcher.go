// Package rules implements category suggestion by matching user-authored
// payee patterns against statement candidates.
//
// Patterns are configuration data supplied by users, which makes regex
// rules a denial-of-service surface. Go's regexp package is a linear-time
// (RE2) engine, so catastrophic backtracking cannot occur; a wall-clock
// budget per evaluation is enforced anyway so that no single rule can stall
// a batch regardless of pattern or input size.
package rules

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/restage-dev/restage/internal/model"
)

// DefaultBudget bounds a single pattern evaluation.
const DefaultBudget = 100 * time.Millisecond

// Match is one chosen category suggestion.
type Match struct {
	RuleID   int64  `json:"rule_id"`
	Category string `json:"category"`
}

// Stats summarizes a batch run. Usage counts how many candidates each rule
// won, keyed by rule ID, for persisting usage counters afterwards.
type Stats struct {
	Matched  int
	TimedOut int
	Usage    map[int64]int
}

// Matcher evaluates a fixed rule set against candidate payees. The rule set
// is passed in explicitly per batch; there is no process-wide registry, so
// results are deterministic given the same rules and candidates.
type Matcher struct {
	rules    []model.MatchRule
	recency  []time.Time
	compiled map[int64]*regexp.Regexp
	budget   time.Duration
}

// NewMatcher creates a matcher with the default evaluation budget.
func NewMatcher(ruleSet []model.MatchRule) *Matcher {
	return NewMatcherWithBudget(ruleSet, DefaultBudget)
}

// NewMatcherWithBudget creates a matcher with a custom per-evaluation
// budget. Regex patterns are compiled once, case-insensitively; a pattern
// that fails to compile is logged and never matches.
func NewMatcherWithBudget(ruleSet []model.MatchRule, budget time.Duration) *Matcher {
	m := &Matcher{
		rules:    ruleSet,
		recency:  make([]time.Time, len(ruleSet)),
		compiled: make(map[int64]*regexp.Regexp),
		budget:   budget,
	}

	for i, rule := range ruleSet {
		if rule.LastUsedAt != nil {
			m.recency[i] = *rule.LastUsedAt
		}
		if rule.IsRegex && rule.Pattern != "" {
			re, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				slog.Warn("Skipping rule with invalid regex pattern",
					"rule_id", rule.ID,
					"pattern", rule.Pattern,
					"error", err)
				continue
			}
			m.compiled[rule.ID] = re
		}
	}

	return m
}

// MatchBatch evaluates every rule against every candidate and returns one
// optional suggestion per candidate, in input order (nil where no rule
// matched — not an error condition). Winning rules have their usage
// counters updated; a rule whose evaluation exceeds the budget is treated
// as non-matching for that candidate and counted in Stats.TimedOut.
func (m *Matcher) MatchBatch(ctx context.Context, candidates []model.Candidate) ([]*Match, Stats) {
	results := make([]*Match, len(candidates))
	stats := Stats{Usage: make(map[int64]int)}

	for i, candidate := range candidates {
		best := m.matchOne(ctx, candidate, &stats)
		if best < 0 {
			continue
		}

		rule := &m.rules[best]
		results[i] = &Match{RuleID: rule.ID, Category: rule.Category}

		now := time.Now()
		rule.MatchCount++
		rule.LastUsedAt = &now
		stats.Usage[rule.ID]++
		stats.Matched++
	}

	return results, stats
}

// Rules returns the rule set with usage counters as updated by prior
// MatchBatch calls.
func (m *Matcher) Rules() []model.MatchRule {
	return m.rules
}

// matchOne returns the index of the winning rule for a candidate, or -1.
func (m *Matcher) matchOne(ctx context.Context, candidate model.Candidate, stats *Stats) int {
	payee := strings.ToLower(candidate.Payee)
	best := -1

	for i, rule := range m.rules {
		if rule.Pattern == "" {
			continue
		}

		var matched bool
		if rule.IsRegex {
			re, ok := m.compiled[rule.ID]
			if !ok {
				continue
			}
			var timedOut bool
			matched, timedOut = m.matchBounded(ctx, re, payee)
			if timedOut {
				stats.TimedOut++
				slog.Warn("Pattern evaluation exceeded budget, treating as non-match",
					"rule_id", rule.ID,
					"budget", m.budget,
					"payee_length", len(payee))
				continue
			}
		} else {
			matched = strings.Contains(payee, strings.ToLower(rule.Pattern))
		}

		if matched && m.beats(i, best) {
			best = i
		}
	}

	return best
}

// beats decides precedence between two matching rules: longest pattern
// first (more specific), then most recently used, then lowest ID. Recency
// is snapshotted at matcher construction so results within one batch do not
// depend on match order.
func (m *Matcher) beats(i, best int) bool {
	if best < 0 {
		return true
	}
	a, b := m.rules[i], m.rules[best]
	if len(a.Pattern) != len(b.Pattern) {
		return len(a.Pattern) > len(b.Pattern)
	}
	if !m.recency[i].Equal(m.recency[best]) {
		return m.recency[i].After(m.recency[best])
	}
	return a.ID < b.ID
}

// matchBounded runs one regex evaluation under the wall-clock budget. The
// evaluation goroutine cannot be interrupted mid-match, but RE2 guarantees
// it finishes in time linear in the input, so an abandoned one terminates
// on its own shortly after.
func (m *Matcher) matchBounded(ctx context.Context, re *regexp.Regexp, payee string) (matched, timedOut bool) {
	ctx, cancel := context.WithTimeout(ctx, m.budget)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		done <- re.MatchString(payee)
	}()

	select {
	case ok := <-done:
		return ok, false
	case <-ctx.Done():
		return false, true
	}
}
