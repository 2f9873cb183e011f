// Package rule implements the time-rule / spread resolver of §4.4: a
// pure, deterministic snapshot of "what pricing policy applies to this
// group right now", backed by the same write-through cache shape as
// internal/trigger.
package rule

import (
	"context"
	"sync"
	"time"

	"otcbot/internal/models"
)

// Resolution is the deterministic snapshot returned by Resolve. It
// never mutates the underlying config or rule.
type Resolution struct {
	PricingSource string
	SpreadMode    string
	SellSpread    float64
	BuySpread     float64
	Language      string
	TTL           time.Duration
	Side          string
	Currency      string
	RuleName      string // empty when no TimeRule is active
}

// Loader fetches a group's base config and its candidate time rules,
// usually backed by internal/repository.
type Loader interface {
	LoadGroupConfig(ctx context.Context, groupID string) (*models.GroupConfig, error)
	LoadTimeRules(ctx context.Context, groupID string) ([]*models.TimeRule, error)
}

// Metrics receives resolver events for observability wiring; nil is
// replaced with a no-op implementation.
type Metrics interface {
	CacheRefreshed(groupID string)
}

type noopMetrics struct{}

func (noopMetrics) CacheRefreshed(string) {}

// Config controls cache freshness and the timezone rules are evaluated in.
type Config struct {
	CacheTTL time.Duration
	Location *time.Location
}

type snapshot struct {
	config    *models.GroupConfig
	rules     []*models.TimeRule
	expiresAt time.Time
}

// Resolver answers "what pricing policy applies to this group right
// now", combining a group's base GroupConfig with any currently active
// TimeRule (§4.4 algorithm). Base config and rules share one
// write-through cache entry per group, 60s TTL, grounded on the same
// pairsBySymbol-style sync.Map snapshot swap used by internal/trigger.
type Resolver struct {
	loader  Loader
	cfg     Config
	metrics Metrics

	cache sync.Map // groupID -> *snapshot
}

// New creates a Resolver. loader must be non-nil.
func New(loader Loader, cfg Config, metrics Metrics) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Resolver{loader: loader, cfg: cfg, metrics: metrics}
}

// Invalidate drops the cached snapshot for groupID, forcing the next
// Resolve to reload config and rules from the source of truth. Called
// after any config or time-rule mutation via the dashboard API.
func (r *Resolver) Invalidate(groupID string) {
	r.cache.Delete(groupID)
}

// Resolve implements §4.4's algorithm: look up the base config, find
// the TimeRule active at now (if any), and let the rule's pricing
// fields override the base config's — everything else (side,
// currency, language, ttl) always comes from the base config.
func (r *Resolver) Resolve(ctx context.Context, groupID string, now time.Time) (*Resolution, error) {
	cfg, rules, err := r.getSnapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		PricingSource: cfg.PricingSource,
		SpreadMode:    cfg.SpreadMode,
		SellSpread:    cfg.SellSpread,
		BuySpread:     cfg.BuySpread,
		Language:      cfg.Language,
		TTL:           time.Duration(cfg.QuoteTTLSeconds) * time.Second,
		Side:          cfg.DefaultSide,
		Currency:      cfg.DefaultCurrency,
	}

	if active := models.ActiveTimeRule(rules, now, r.cfg.Location); active != nil {
		res.PricingSource = active.PricingSource
		res.SpreadMode = active.SpreadMode
		res.SellSpread = active.SellSpread
		res.BuySpread = active.BuySpread
		res.RuleName = active.Name
	}

	return res, nil
}

func (r *Resolver) getSnapshot(ctx context.Context, groupID string) (*models.GroupConfig, []*models.TimeRule, error) {
	if v, ok := r.cache.Load(groupID); ok {
		s := v.(*snapshot)
		if time.Now().Before(s.expiresAt) {
			return s.config, s.rules, nil
		}
	}

	cfg, err := r.loader.LoadGroupConfig(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	rules, err := r.loader.LoadTimeRules(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}

	s := &snapshot{
		config:    cfg,
		rules:     rules,
		expiresAt: time.Now().Add(r.cfg.CacheTTL),
	}
	r.cache.Store(groupID, s)
	r.metrics.CacheRefreshed(groupID)

	return cfg, rules, nil
}
