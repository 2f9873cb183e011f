// Command otcbot is the composition root: it wires every package under
// internal/ into one process — config, database, the price feeds, the
// trigger/rule/deal engines, the conversation pipeline, the dispatcher,
// and the dashboard HTTP API — then serves until a signal asks it to
// stop. Grounded on the teacher's cmd/server/main.go: load config,
// open the database, build dependencies top-down, start the server in
// a goroutine, wait on SIGINT/SIGTERM, shut down with a bounded
// timeout.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"otcbot/internal/ai"
	"otcbot/internal/api"
	"otcbot/internal/api/handlers"
	"otcbot/internal/app"
	"otcbot/internal/config"
	"otcbot/internal/deal"
	"otcbot/internal/dispatcher"
	"otcbot/internal/errsvc"
	"otcbot/internal/models"
	"otcbot/internal/notifier"
	"otcbot/internal/observability"
	"otcbot/internal/price"
	"otcbot/internal/price/restfallback"
	"otcbot/internal/price/streama"
	"otcbot/internal/price/streamb"
	"otcbot/internal/pricing"
	"otcbot/internal/repository"
	"otcbot/internal/rule"
	"otcbot/internal/transport"
	"otcbot/internal/trigger"
	"otcbot/internal/wsapi"
	"otcbot/pkg/utils"
)

func main() {
	// Ignored: absence of a .env file is the normal case in production,
	// where configuration comes from the real environment instead.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	utils.InitGlobalLogger(utils.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := utils.L()

	ctx, cancelBoot := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := repository.Open(ctx, cfg.Database)
	cancelBoot()
	if err != nil {
		log.Fatal("main: failed to open database", utils.Err(err))
	}
	defer db.Close()
	log.Info("main: connected to database")

	groups := repository.NewGroupRepository(db)
	triggers := repository.NewTriggerRepository(db)
	timeRules := repository.NewTimeRuleRepository(db)
	deals := repository.NewDealRepository(db)
	dealHistory := repository.NewDealHistoryRepository(db)
	ignoredSenders := repository.NewIgnoredSenderRepository(db)
	bronze := repository.NewBronzeRepository(db)
	eventSink := repository.NewEventSink(bronze, 1000)

	// Only transport.Simulator implements transport.Inbound/Outbound
	// anywhere in this codebase — there is no live WhatsApp-style
	// client to wire here, so the simulator doubles as the production
	// transport for now. Nothing outside tests calls its Inject method:
	// /api/simulator/send|replay evaluate messages on a read-only path
	// and do not feed this transport. Documented in DESIGN.md as a
	// boundary left abstract rather than invented.
	sim := transport.NewSimulator(cfg.Dispatcher.QueueDepthPerGroup)
	var inbound transport.Inbound = sim
	var outbound transport.Outbound = sim

	matcher := trigger.New(triggers, trigger.Config{}, observability.Trigger{})
	resolver := rule.New(struct {
		*repository.GroupRepository
		*repository.TimeRuleRepository
	}{groups, timeRules}, rule.Config{}, observability.Rule{})

	prices := price.New(priceConfigFrom(cfg.Price), observability.Price{})
	go bronze.DrainPriceSink(context.Background(), prices.Sink())
	startPriceFeeds(cfg, prices, log)

	pricingEngine := pricing.New(resolver, prices)

	notify := notifier.New(notifier.DefaultConfig(), outbound)

	errService := errsvc.New(errsvc.Config{
		ControlGroupID: cfg.Router.ControlGroupPattern,
	}, notify)

	var (
		classify   app.Classifier
		aiBoundary *ai.Boundary
	)
	if cfg.AI.Endpoint != "" {
		aiBoundary = ai.New(ai.Config{
			PerGroupRateLimit: float64(cfg.AI.PerGroupRateLimit),
			GlobalRateLimit:   float64(cfg.AI.GlobalRateLimit),
			CircuitThreshold:  cfg.AI.CircuitOpenAfter,
			CircuitCooldown:   cfg.AI.CircuitCooldown,
			CacheTTL:          cfg.AI.CacheTTL,
			CacheCapacity:     cfg.AI.CacheCapacity,
		}, httpClassifier(cfg.AI.Endpoint, cfg.AI.APIKey))
		classify = aiBoundary
	}

	dealEngine := deal.New(
		deals,
		eventSink,
		notify,
		pricingEngine,
		prices,
		observability.Deal{},
		deal.Config{
			DefaultTTL:           time.Duration(cfg.Deal.DefaultQuoteTTLSeconds) * time.Second,
			SweepInterval:        cfg.Deal.SweepInterval,
			LockTimeout:          time.Duration(cfg.Deal.LockTimeoutMs) * time.Millisecond,
			MaxExtendPerCall:     time.Duration(cfg.Deal.MaxExtendSeconds) * time.Second,
			MaxCumulativeExtendX: cfg.Deal.MaxCumulativeExtendX,
		},
		groups.LoadGroupConfig,
	)
	dealEngine.Start(context.Background())
	defer dealEngine.Stop()

	pipeline := app.New(
		app.Config{ControlGroupPattern: cfg.Router.ControlGroupPattern},
		groups,
		ignoredSenders,
		deals,
		matcher,
		dealEngine,
		errService,
		notify,
		outbound,
		classify,
	)

	disp := dispatcher.New(dispatcher.Config{
		MaxConcurrentGroups: cfg.Dispatcher.MaxConcurrentGroups,
		QueueDepthPerGroup:  cfg.Dispatcher.QueueDepthPerGroup,
		WorkerIdleTimeout:   cfg.Dispatcher.WorkerIdleTimeout,
		HandlerTimeout:      cfg.Dispatcher.HandlerTimeout,
	}, pipeline.Handle, observability.Dispatcher{})

	go pumpInbound(inbound, disp)

	hub := wsapi.NewHub()
	go hub.Run()

	deps := &handlers.Dependencies{
		Groups:              groups,
		Triggers:            triggers,
		TimeRules:           timeRules,
		Deals:               deals,
		DealHistory:         dealHistory,
		IgnoredSenders:      ignoredSenders,
		DealEngine:          dealEngine,
		Matcher:             matcher,
		Resolver:            resolver,
		Prices:              prices,
		ErrService:          errService,
		Notifier:            notify,
		AI:                  aiBoundary,
		Hub:                 hub,
		ControlGroupPattern: cfg.Router.ControlGroupPattern,
		StartedAt:           time.Now(),
		TransportConnected:  func() bool { return true },
	}

	router := api.SetupRoutes(deps, api.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		DashboardSecret: cfg.Security.DashboardSecret,
		RateLimitPerMin: cfg.Server.RateLimitPerMin,
		ModeRateLimit:   cfg.Server.ModeRateLimit,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("main: starting server", utils.String("addr", server.Addr))
		var serveErr error
		if cfg.Server.UseHTTPS {
			serveErr = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatal("main: server failed", utils.Err(serveErr))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("main: shutting down")
	_ = inbound.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("main: server forced to shutdown", utils.Err(err))
	}
	log.Info("main: exited")
}

// pumpInbound feeds every message the transport produces into the
// dispatcher's per-group queues, the glue between transport.Inbound and
// dispatcher.Dispatcher neither package depends on the other for.
func pumpInbound(in transport.Inbound, disp *dispatcher.Dispatcher) {
	for msg := range in.Messages() {
		disp.Submit(msg)
	}
}

func priceConfigFrom(cfg config.PriceConfig) price.Config {
	pc := price.DefaultConfig()
	pc.Bands = map[string]price.Band{
		models.SymbolUSDBRL:  {Min: cfg.SanityBandUSDBRLLow, Max: cfg.SanityBandUSDBRLHigh},
		models.SymbolUSDTBRL: {Min: cfg.SanityBandUSDBRLLow, Max: cfg.SanityBandUSDBRLHigh},
	}
	return pc
}

// startPriceFeeds launches whichever price supervisors have a
// configured endpoint. A feed with no URL is simply never started —
// the aggregator reports it absent rather than stale, per §4.5.
func startPriceFeeds(cfg *config.Config, prices *price.Aggregator, log *utils.Logger) {
	if cfg.Price.StreamAURL != "" {
		supCfg := streama.DefaultConfig(cfg.Price.StreamAURL)
		supCfg.InitialDelay = cfg.Price.ReconnectBackoffInitial
		supCfg.MaxDelay = cfg.Price.ReconnectBackoffMax
		sup := streama.New(supCfg, decodeStreamAFrame, prices)
		sup.Start()
		log.Info("main: STREAM_A supervisor started", utils.String("url", cfg.Price.StreamAURL))
	}

	if cfg.Price.TradingViewURL != "" {
		supCfg := streamb.DefaultConfig(cfg.Price.TradingViewURL)
		supCfg.FrozenAfter = time.Duration(cfg.Price.TradingViewFrozenMs) * time.Millisecond
		supCfg.MaxNavsPerHour = cfg.Price.TradingViewMaxNavPerHour
		supCfg.BypassCooldown = cfg.Price.TradingViewBypassCooldown
		sup := streamb.New(supCfg, prices)
		sup.Start()
		log.Info("main: STREAM_B supervisor started", utils.String("url", cfg.Price.TradingViewURL))
	}

	if cfg.Price.RestFallbackURL == "" {
		return
	}
	fbCfg := restfallback.DefaultConfig(cfg.Price.RestFallbackURL)
	fbCfg.RequestTimeout = cfg.Price.RestFallbackTimeout
	client := restfallback.New(fbCfg, restfallback.JSONPriceDecoder)

	// REST_FALLBACK is on-demand by contract (§4.5), but the aggregator
	// only ever serves what was last recorded — so something still has
	// to poll it onto the latest-price view periodically for groups
	// priced off "commercial".
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			sample, err := client.Fetch(context.Background(), models.SymbolUSDBRL)
			if err != nil {
				continue
			}
			_ = prices.RecordSample(sample)
		}
	}()
}

// decodeStreamAFrame decodes one STREAM_A WebSocket frame into a price
// sample. The wire shape is undocumented upstream, so this accepts the
// common {"symbol":"...","price":0.0} tick shape and skips anything it
// can't parse rather than tearing down the connection over it.
func decodeStreamAFrame(frame []byte) (models.PriceSample, bool, error) {
	var tick struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	if err := jsoniter.ConfigFastest.Unmarshal(frame, &tick); err != nil {
		return models.PriceSample{}, false, nil
	}
	if tick.Symbol == "" || tick.Price <= 0 {
		return models.PriceSample{}, false, nil
	}
	return models.PriceSample{
		Source:     models.SourceStreamA,
		Symbol:     tick.Symbol,
		Price:      tick.Price,
		CapturedAt: time.Now().UTC(),
	}, true, nil
}

// httpClassifier builds an ai.Classifier that POSTs the message to an
// external moderation/classification endpoint and decodes its verdict,
// retrying transport failures via go-retryablehttp the same way
// internal/price/restfallback does.
func httpClassifier(endpoint, apiKey string) ai.Classifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	return func(ctx context.Context, groupID, message string) (ai.ClassificationResult, error) {
		body, err := jsoniter.ConfigFastest.Marshal(map[string]string{
			"groupId": groupID,
			"message": message,
		})
		if err != nil {
			return ai.ClassificationResult{}, err
		}

		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return ai.ClassificationResult{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return ai.ClassificationResult{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return ai.ClassificationResult{}, fmt.Errorf("ai: upstream status %d", resp.StatusCode)
		}

		var out ai.ClassificationResult
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return ai.ClassificationResult{}, err
		}
		return out, nil
	}
}
