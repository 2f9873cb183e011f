// Package streamb supervises STREAM_B, the commercial USD/BRL page
// scrape refreshed by an embedded browser (§4.5). Grounded on the
// chromedp navigate/wait/evaluate sequence used by the pack's
// documentation scraper (NimbleMarkets-dbn-go's
// cmd/dbn-go-slurp-docs), adapted here to read one page title on a
// fixed interval instead of crawling a sitemap.
package streamb

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"otcbot/internal/models"
	"otcbot/pkg/utils"
)

// Recorder accepts decoded samples; internal/price.Aggregator satisfies it.
type Recorder interface {
	RecordSample(sample models.PriceSample) error
}

// Config controls navigation cadence and the navigation-budget guard.
type Config struct {
	PageURL       string
	RefreshEvery  time.Duration // normal scrape cadence
	FrozenAfter   time.Duration // §4.5: ~90s triggers a soft refresh
	NavTimeout    time.Duration
	MaxNavsPerHour int          // navigation/refresh budget
	BypassCooldown time.Duration // once exhausted: one bypass per 5min
}

func DefaultConfig(pageURL string) Config {
	return Config{
		PageURL:        pageURL,
		RefreshEvery:   30 * time.Second,
		FrozenAfter:    90 * time.Second,
		NavTimeout:     20 * time.Second,
		MaxNavsPerHour: 60,
		BypassCooldown: 5 * time.Minute,
	}
}

// titlePricePattern extracts a decimal number from a page title like
// "Dólar Comercial: R$ 5,32 - Hoje".
var titlePricePattern = regexp.MustCompile(`(\d+[.,]\d+)`)

// ParseTitle extracts a BRL price from a scraped page title, accepting
// both comma and period as the decimal separator.
func ParseTitle(title string) (float64, error) {
	match := titlePricePattern.FindString(title)
	if match == "" {
		return 0, fmt.Errorf("streamb: no numeric price found in title %q", title)
	}
	normalized := strings.Replace(match, ",", ".", 1)
	return strconv.ParseFloat(normalized, 64)
}

// navBudget tracks the rolling-hour navigation count and the
// once-exhausted bypass cooldown (§4.5).
type navBudget struct {
	mu             sync.Mutex
	windowStart    time.Time
	count          int
	maxPerHour     int
	lastBypassAt   time.Time
	bypassCooldown time.Duration
}

func newNavBudget(maxPerHour int, cooldown time.Duration) *navBudget {
	return &navBudget{windowStart: time.Now(), maxPerHour: maxPerHour, bypassCooldown: cooldown}
}

// allow reports whether a navigation may proceed now, resetting the
// rolling window when an hour has elapsed.
func (b *navBudget) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.windowStart) >= time.Hour {
		b.windowStart = now
		b.count = 0
	}
	if b.count < b.maxPerHour {
		b.count++
		return true
	}
	if now.Sub(b.lastBypassAt) >= b.bypassCooldown {
		b.lastBypassAt = now
		return true
	}
	return false
}

// Supervisor owns one headless browser context, navigating on a fixed
// cadence and on watchdog-triggered soft refreshes.
type Supervisor struct {
	cfg      Config
	recorder Recorder
	budget   *navBudget

	allocCtx   context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserCancel context.CancelFunc

	lastSampleAt time.Time
	mu           sync.Mutex

	closeChan chan struct{}
	closeOnce sync.Once
}

// New creates a Supervisor. It does not launch a browser until Start.
func New(cfg Config, recorder Recorder) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		recorder:  recorder,
		budget:    newNavBudget(cfg.MaxNavsPerHour, cfg.BypassCooldown),
		closeChan: make(chan struct{}),
	}
}

// Start launches the browser and begins the refresh/watchdog loop.
func (s *Supervisor) Start() {
	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)
	go s.loop()
}

func (s *Supervisor) loop() {
	ticker := time.NewTicker(s.cfg.RefreshEvery)
	defer ticker.Stop()

	watchdog := time.NewTicker(s.cfg.FrozenAfter / 3)
	defer watchdog.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			s.scrapeOnce(false)
		case <-watchdog.C:
			if s.frozen() {
				utils.L().Warn("streamb: sample frozen, forcing refresh", utils.Source(models.SourceStreamB))
				s.scrapeOnce(true)
			}
		}
	}
}

func (s *Supervisor) frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastSampleAt.IsZero() && time.Since(s.lastSampleAt) > s.cfg.FrozenAfter
}

func (s *Supervisor) scrapeOnce(forced bool) {
	now := time.Now()
	if !s.budget.allow(now) && !forced {
		utils.L().Warn("streamb: navigation budget exhausted, skipping refresh", utils.Source(models.SourceStreamB))
		return
	}

	navCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.NavTimeout)
	defer cancel()

	var title string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(s.cfg.PageURL),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
	)
	if err != nil {
		utils.L().Warn("streamb: navigation failed", utils.Source(models.SourceStreamB), utils.Err(err))
		s.reconnectBrowser()
		return
	}

	priceVal, err := ParseTitle(title)
	if err != nil {
		utils.L().Warn("streamb: title parse failed", utils.Source(models.SourceStreamB), utils.Err(err))
		return
	}

	sample := models.PriceSample{
		Source:     models.SourceStreamB,
		Symbol:     models.SymbolUSDBRL,
		Price:      priceVal,
		CapturedAt: now,
	}
	if err := s.recorder.RecordSample(sample); err != nil {
		utils.L().Warn("streamb: sample rejected", utils.Source(models.SourceStreamB), utils.Err(err))
		return
	}

	s.mu.Lock()
	s.lastSampleAt = now
	s.mu.Unlock()
}

// reconnectBrowser tears down and relaunches the headless browser
// context after a soft refresh (navigation) failure (§4.5's
// soft-refresh-then-full-reconnect escalation).
func (s *Supervisor) reconnectBrowser() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)
}

// Close stops the refresh loop and releases the browser process.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		close(s.closeChan)
		if s.browserCancel != nil {
			s.browserCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
}
