// Package ai implements the AI classifier boundary of §4.11: an optional,
// off-hot-path fallback the router's caller consults only when the
// deterministic trigger matcher returns low confidence on an
// OTC-relevant-looking message. Every guardrail here exists because this
// boundary calls an external, metered, occasionally-down service: rate
// limits (pkg/ratelimit, as used throughout this tree), a circuit breaker
// modeled on the teacher's atomic WSConnectionState enum
// (internal/exchange/ws_reconnect.go), a content filter that never lets
// PII reach the upstream call, and a response cache to avoid paying twice
// for the same question.
package ai

import (
	"container/list"
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"otcbot/internal/apperr"
	"otcbot/pkg/crypto"
	"otcbot/pkg/ratelimit"
	"otcbot/pkg/utils"
)

// CircuitState mirrors the teacher's WSConnectionState: an atomically
// read/written int32 rather than a mutex-guarded field, since every
// classifier call checks it on the hot path of this (already off-hot-path)
// boundary.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
)

func (s CircuitState) String() string {
	if s == CircuitOpen {
		return "open"
	}
	return "closed"
}

// ClassificationResult is the only thing the classifier is allowed to
// produce; nothing here ever writes to a deal directly.
type ClassificationResult struct {
	IsOTCRelevant bool
	Confidence    float64
	SuggestedRule string
}

// Classifier calls the actual upstream model.
type Classifier func(ctx context.Context, groupID, message string) (ClassificationResult, error)

// Config controls guardrail thresholds.
type Config struct {
	PerGroupRateLimit float64 // requests/minute, default 10
	GlobalRateLimit   float64 // requests/hour, default 100
	CircuitThreshold  int     // consecutive failures to open, default 3
	CircuitCooldown   time.Duration
	CacheTTL          time.Duration
	CacheCapacity     int
}

func DefaultConfig() Config {
	return Config{
		PerGroupRateLimit: 10,
		GlobalRateLimit:   100,
		CircuitThreshold:  3,
		CircuitCooldown:   5 * time.Minute,
		CacheTTL:          5 * time.Minute,
		CacheCapacity:     500,
	}
}

// contentFilterPatterns reject messages containing Brazilian PII or
// crypto wallet addresses before they ever leave the process (§4.11).
var contentFilterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}-?\d{2}\b`),             // CPF
	regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}\b`),      // CNPJ
	regexp.MustCompile(`\b\d{4,5}-?\d{1}\b.{0,20}\bag[eê]ncia\b`),      // bank account near "agência"
	regexp.MustCompile(`(?i)\bchave\s*pix\b`),                          // explicit PIX key mention
	regexp.MustCompile(`\bT[A-Za-z1-9]{33}\b`),                         // Tron address
	regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`),                        // Ethereum address
	regexp.MustCompile(`\b(bc1|[13])[a-km-zA-HJ-NP-Z1-9]{25,39}\b`),    // Bitcoin address
}

// containsSensitiveData reports whether text matches any content-filter
// pattern.
func containsSensitiveData(text string) bool {
	for _, p := range contentFilterPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

type cacheEntry struct {
	key       string
	result    ClassificationResult
	expiresAt time.Time
}

// responseCache is a small LRU keyed on (groupId, normalized message
// prefix), capped at Capacity entries. No pack example imports an LRU
// library — container/list plus a map is the standard idiom for a
// bounded cache this small, so this one piece is stdlib-only
// (documented per the grounding ledger's requirement to justify any
// stdlib-only implementation).
type responseCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List // front = most recently used
	items    map[string]*list.Element
}

func newResponseCache(ttl time.Duration, capacity int) *responseCache {
	return &responseCache{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    map[string]*list.Element{},
	}
}

// cacheKey hashes the group id and the normalized message prefix with
// pkg/crypto.CacheKey rather than concatenating them, so a message
// containing a "|" can't collide across groups or truncation boundaries.
func cacheKey(groupID, message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if len(normalized) > 80 {
		normalized = normalized[:80]
	}
	return crypto.CacheKey(groupID, normalized)
}

func (c *responseCache) get(key string, now time.Time) (ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return ClassificationResult{}, false
	}
	entry := el.Value.(*cacheEntry)
	if now.After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return ClassificationResult{}, false
	}
	c.order.MoveToFront(el)
	return entry.result, true
}

func (c *responseCache) put(key string, result ClassificationResult, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).result = result
		el.Value.(*cacheEntry).expiresAt = now.Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, result: result, expiresAt: now.Add(c.ttl)})
	c.items[key] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Boundary guards a Classifier with rate limits, a circuit breaker, a
// content filter, and a response cache.
type Boundary struct {
	cfg        Config
	classify   Classifier
	perGroup   sync.Map // groupID -> *ratelimit.RateLimiter
	global     *ratelimit.RateLimiter
	cache      *responseCache

	circuitState      int32
	consecutiveFails  int32
	circuitOpenedAt   atomic.Value // time.Time
}

func New(cfg Config, classify Classifier) *Boundary {
	if cfg.PerGroupRateLimit <= 0 {
		cfg.PerGroupRateLimit = 10
	}
	if cfg.GlobalRateLimit <= 0 {
		cfg.GlobalRateLimit = 100
	}
	if cfg.CircuitThreshold <= 0 {
		cfg.CircuitThreshold = 3
	}
	if cfg.CircuitCooldown <= 0 {
		cfg.CircuitCooldown = 5 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 500
	}
	return &Boundary{
		cfg:      cfg,
		classify: classify,
		global:   ratelimit.NewRateLimiter(cfg.GlobalRateLimit/3600.0, cfg.GlobalRateLimit),
		cache:    newResponseCache(cfg.CacheTTL, cfg.CacheCapacity),
	}
}

func (b *Boundary) limiterFor(groupID string) *ratelimit.RateLimiter {
	v, _ := b.perGroup.LoadOrStore(groupID, ratelimit.NewRateLimiter(b.cfg.PerGroupRateLimit/60.0, b.cfg.PerGroupRateLimit))
	return v.(*ratelimit.RateLimiter)
}

// circuitIsOpen reports whether the breaker is open, closing it and
// resetting the failure count once the cooldown has elapsed (there is
// no half-open state).
func (b *Boundary) circuitIsOpen(now time.Time) bool {
	if CircuitState(atomic.LoadInt32(&b.circuitState)) == CircuitClosed {
		return false
	}
	openedAt, _ := b.circuitOpenedAt.Load().(time.Time)
	if now.Sub(openedAt) >= b.cfg.CircuitCooldown {
		atomic.StoreInt32(&b.circuitState, int32(CircuitClosed))
		atomic.StoreInt32(&b.consecutiveFails, 0)
		utils.L().Info("ai: circuit breaker closed after cooldown")
		return false
	}
	return true
}

func (b *Boundary) recordFailure(now time.Time) {
	n := atomic.AddInt32(&b.consecutiveFails, 1)
	if int(n) >= b.cfg.CircuitThreshold {
		if atomic.CompareAndSwapInt32(&b.circuitState, int32(CircuitClosed), int32(CircuitOpen)) {
			b.circuitOpenedAt.Store(now)
			utils.L().Warn("ai: circuit breaker opened", utils.Reason("consecutive failures"))
		}
	}
}

func (b *Boundary) recordSuccess() {
	atomic.StoreInt32(&b.consecutiveFails, 0)
}

// Classify runs the full guardrail chain: content filter, circuit
// breaker, cache, rate limits, then (only if all pass) the actual
// upstream call.
func (b *Boundary) Classify(ctx context.Context, groupID, message string) (ClassificationResult, error) {
	if containsSensitiveData(message) {
		return ClassificationResult{}, apperr.New(apperr.KindValidation, "message rejected by content filter")
	}

	now := time.Now()
	if b.circuitIsOpen(now) {
		return ClassificationResult{}, apperr.New(apperr.KindBusy, "ai classifier circuit breaker is open")
	}

	key := cacheKey(groupID, message)
	if cached, ok := b.cache.get(key, now); ok {
		return cached, nil
	}

	if !b.limiterFor(groupID).Allow() {
		return ClassificationResult{}, apperr.New(apperr.KindBusy, "ai classifier per-group rate limit exceeded")
	}
	if !b.global.Allow() {
		return ClassificationResult{}, apperr.New(apperr.KindBusy, "ai classifier global rate limit exceeded")
	}

	result, err := b.classify(ctx, groupID, message)
	if err != nil {
		b.recordFailure(now)
		return ClassificationResult{}, apperr.Wrap(apperr.KindTransient, err, "ai classifier call failed")
	}
	b.recordSuccess()
	b.cache.put(key, result, now)
	return result, nil
}

// CircuitState reports the breaker's current state, for the dashboard.
func (b *Boundary) CircuitState() CircuitState {
	return CircuitState(atomic.LoadInt32(&b.circuitState))
}
