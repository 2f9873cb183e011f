// Package trigger implements the trigger matcher of §4.3: a write-through
// cache of a group's triggers plus a pure matching algorithm over them.
// The cache shape is the teacher's pairsBySymbol pattern (sync.Map
// snapshot, writers swap a whole new slice in, readers never lock).
package trigger

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"otcbot/internal/models"
	"otcbot/pkg/utils"
)

// Match is the ephemeral result of evaluating a message against a
// group's trigger set (spec.md's TriggerMatch). It is never persisted.
type Match struct {
	Trigger     *models.Trigger
	MatchedSpan string
	Priority    int
}

// Loader fetches the active triggers for a group, usually backed by
// internal/repository. It is called at most once per cache TTL window
// per group, plus once more on any explicit Invalidate.
type Loader interface {
	LoadTriggers(ctx context.Context, groupID string) ([]*models.Trigger, error)
}

// Metrics receives matcher events for observability wiring; nil is
// replaced with a no-op implementation.
type Metrics interface {
	BudgetExceeded(groupID string)
	CacheRefreshed(groupID string, count int)
}

type noopMetrics struct{}

func (noopMetrics) BudgetExceeded(string)        {}
func (noopMetrics) CacheRefreshed(string, int)    {}

// Config controls cache freshness and the per-match time budget.
type Config struct {
	CacheTTL   time.Duration
	MatchBudget time.Duration
}

// compiled wraps a models.Trigger with its regex pre-compiled (when
// PatternType is "regex"), so every match against the cached snapshot
// skips compilation. Patterns are validated at the API boundary
// (models.Trigger.Validate / repository write path); a trigger whose
// regex fails to compile here is skipped rather than erroring the
// whole group's cache refresh.
type compiled struct {
	trigger *models.Trigger
	regex   *regexp.Regexp
}

type cacheEntry struct {
	triggers  []*compiled
	expiresAt time.Time
}

// Matcher evaluates inbound text against a group's configured
// triggers, backed by a 60s write-through cache (§4.3 algorithm step 1).
type Matcher struct {
	loader  Loader
	cfg     Config
	metrics Metrics

	cache sync.Map // groupID -> *cacheEntry
}

// New creates a Matcher. loader must be non-nil.
func New(loader Loader, cfg Config, metrics Metrics) *Matcher {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}
	if cfg.MatchBudget <= 0 {
		cfg.MatchBudget = 25 * time.Millisecond
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Matcher{loader: loader, cfg: cfg, metrics: metrics}
}

// Invalidate drops the cached snapshot for groupID so the next Match
// call reloads it from the source of truth. Called after any trigger
// mutation (create/update/delete via the dashboard API).
func (m *Matcher) Invalidate(groupID string) {
	m.cache.Delete(groupID)
}

// Match applies §4.3's algorithm: fetch the cached (scope-filtered,
// priority-sorted) trigger set, evaluate in descending priority order,
// and return the highest-priority match — ties broken by longest
// matched span, then earliest creation time.
func (m *Matcher) Match(ctx context.Context, groupID, text string, isControlGroup bool) (*Match, error) {
	triggers, err := m.getTriggers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	normalized := strings.ToLower(text)

	// triggers is sorted by descending priority, so once a match is found
	// at priority P, only further candidates still at priority P can
	// unseat it (on a longer span); anything strictly lower than P
	// cannot, and scanning stops there (§4.3: "stop at the first match
	// unless two candidates share priority").
	var best *Match
	for _, c := range triggers {
		if best != nil && c.trigger.Priority < best.Priority {
			break
		}
		if !scopeApplies(c.trigger.Scope, isControlGroup) {
			continue
		}

		span, ok := m.evaluate(ctx, groupID, c, normalized)
		if !ok {
			continue
		}

		candidate := &Match{Trigger: c.trigger, MatchedSpan: span, Priority: c.trigger.Priority}
		if betterMatch(candidate, best) {
			best = candidate
		}
	}

	return best, nil
}

func scopeApplies(scope string, isControlGroup bool) bool {
	switch scope {
	case models.ScopeControlOnly:
		return isControlGroup
	case models.ScopeGroup:
		return !isControlGroup
	default:
		return false
	}
}

// betterMatch implements the tie-break: higher priority wins; equal
// priority, longer matched span wins; equal span, earlier CreatedAt
// wins.
func betterMatch(candidate, current *Match) bool {
	if current == nil {
		return true
	}
	if candidate.Priority != current.Priority {
		return candidate.Priority > current.Priority
	}
	if len(candidate.MatchedSpan) != len(current.MatchedSpan) {
		return len(candidate.MatchedSpan) > len(current.MatchedSpan)
	}
	return candidate.Trigger.CreatedAt.Before(current.Trigger.CreatedAt)
}

// evaluate runs one trigger's pattern against the normalized text,
// enforcing a per-match time budget for regex patterns (§4.3's
// "exceeding it returns no match and increments a counter").
func (m *Matcher) evaluate(ctx context.Context, groupID string, c *compiled, normalized string) (string, bool) {
	phrase := strings.ToLower(c.trigger.Phrase)

	switch c.trigger.PatternType {
	case models.PatternExact:
		if strings.TrimSpace(normalized) == phrase {
			return c.trigger.Phrase, true
		}
		return "", false

	case models.PatternContains:
		if idx := strings.Index(normalized, phrase); idx >= 0 {
			return normalized[idx : idx+len(phrase)], true
		}
		return "", false

	case models.PatternRegex:
		if c.regex == nil {
			return "", false
		}
		return m.matchRegexWithBudget(ctx, groupID, c.regex, normalized)

	default:
		return "", false
	}
}

// matchRegexWithBudget runs FindString in its own goroutine so a
// pathological pattern can be abandoned at the budget deadline instead
// of blocking the calling worker. RE2 (stdlib regexp) already runs in
// linear time, so this budget is a latency ceiling, not a safety net
// against catastrophic backtracking.
func (m *Matcher) matchRegexWithBudget(ctx context.Context, groupID string, re *regexp.Regexp, text string) (string, bool) {
	type result struct {
		span string
		ok   bool
	}

	done := make(chan result, 1)
	go func() {
		span := re.FindString(text)
		done <- result{span: span, ok: span != ""}
	}()

	budgetCtx, cancel := context.WithTimeout(ctx, m.cfg.MatchBudget)
	defer cancel()

	select {
	case r := <-done:
		return r.span, r.ok
	case <-budgetCtx.Done():
		m.metrics.BudgetExceeded(groupID)
		return "", false
	}
}

// getTriggers returns the cached, priority-sorted trigger snapshot for
// groupID, refreshing it from the loader when absent or stale. Reads
// of a live entry never take a lock: sync.Map.Load is lock-free, and
// the entry itself is an immutable slice swapped in whole by the
// writer, matching the teacher's pairsBySymbol/getPairsForSymbol shape.
func (m *Matcher) getTriggers(ctx context.Context, groupID string) ([]*compiled, error) {
	if v, ok := m.cache.Load(groupID); ok {
		entry := v.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.triggers, nil
		}
	}

	raw, err := m.loader.LoadTriggers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	entry := &cacheEntry{
		triggers:  compileAndSort(raw, groupID),
		expiresAt: time.Now().Add(m.cfg.CacheTTL),
	}
	m.cache.Store(groupID, entry)
	m.metrics.CacheRefreshed(groupID, len(entry.triggers))

	return entry.triggers, nil
}

// compileAndSort filters inactive triggers, compiles regex patterns,
// and sorts the result by descending priority so Match can stop
// scanning as soon as priority drops below an already-found candidate.
func compileAndSort(raw []*models.Trigger, groupID string) []*compiled {
	out := make([]*compiled, 0, len(raw))
	for _, t := range raw {
		if !t.IsActive {
			continue
		}

		c := &compiled{trigger: t}
		if t.PatternType == models.PatternRegex {
			re, err := regexp.Compile(t.Phrase)
			if err != nil {
				utils.L().Warn("trigger: regex failed to compile, skipping",
					utils.Group(groupID),
					utils.TriggerID(t.ID),
					utils.Err(err),
				)
				continue
			}
			c.regex = re
		}
		out = append(out, c)
	}

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].trigger.Priority > out[j-1].trigger.Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	return out
}
