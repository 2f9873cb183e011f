// Package notifier implements the throttled, deduplicated control-group
// queue of §4.9. Every operator-facing notification (auto-pause,
// recovery, escalated deals) funnels through here rather than calling
// transport.Outbound directly, so rate limiting and dedup apply
// uniformly regardless of which package raised the message.
package notifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"otcbot/internal/transport"
	"otcbot/pkg/ratelimit"
	"otcbot/pkg/utils"
)

// Config controls the rate cap and dedup window.
type Config struct {
	// RatePerMinute bounds sustained throughput to the control group.
	RatePerMinute float64
	// DedupWindow suppresses a repeat of the exact same message text
	// within this window (default 10 minutes, per §4.9's example).
	DedupWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		RatePerMinute: 20,
		DedupWindow:   10 * time.Minute,
	}
}

type dedupEntry struct {
	sentAt time.Time
}

// Notifier pushes messages to the control group through a token-bucket
// limiter (pkg/ratelimit.RateLimiter, reused verbatim from the teacher's
// exchange-API throttling for this new purpose) and a hash-keyed dedup
// cache.
type Notifier struct {
	cfg     Config
	out     transport.Outbound
	limiter *ratelimit.RateLimiter

	dedup sync.Map // sha256 hex -> *dedupEntry

	mu      sync.Mutex
	dropped uint64
	sent    uint64
}

func New(cfg Config, out transport.Outbound) *Notifier {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 20
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 10 * time.Minute
	}
	return &Notifier{
		cfg:     cfg,
		out:     out,
		limiter: ratelimit.NewRateLimiter(cfg.RatePerMinute/60.0, cfg.RatePerMinute),
	}
}

func messageKey(groupID, text string) string {
	sum := sha256.Sum256([]byte(groupID + "|" + text))
	return hex.EncodeToString(sum[:])
}

// NotifyOperator sends text to groupID (typically the control group),
// subject to the rate cap and dedup window. A message suppressed by
// dedup or dropped because the transport is unavailable returns nil —
// it is not a caller-visible error, only observable via Stats().
func (n *Notifier) NotifyOperator(ctx context.Context, groupID, text string) error {
	now := time.Now()
	key := messageKey(groupID, text)

	if v, ok := n.dedup.Load(key); ok {
		if now.Sub(v.(*dedupEntry).sentAt) < n.cfg.DedupWindow {
			utils.L().Debug("notifier: suppressed duplicate", utils.Source(groupID))
			return nil
		}
	}

	if !n.limiter.Allow() {
		n.recordDrop()
		utils.L().Warn("notifier: rate limit exceeded, dropping", utils.Source(groupID))
		return nil
	}

	result, err := n.out.Send(ctx, groupID, text, transport.SendOptions{})
	if err != nil || !result.OK {
		n.recordDrop()
		utils.L().Warn("notifier: send failed, dropping (transport disconnected)", utils.Source(groupID), utils.Err(err))
		return nil
	}

	n.dedup.Store(key, &dedupEntry{sentAt: now})
	n.mu.Lock()
	n.sent++
	n.mu.Unlock()
	return nil
}

func (n *Notifier) recordDrop() {
	n.mu.Lock()
	n.dropped++
	n.mu.Unlock()
}

// Stats reports cumulative sent/dropped counts for the dashboard.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

func (n *Notifier) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{Sent: n.sent, Dropped: n.dropped}
}
