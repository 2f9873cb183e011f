package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"otcbot/internal/api/handlers"
	"otcbot/internal/api/middleware"
	"otcbot/internal/wsapi"
)

// Options controls middleware behavior that SetupRoutes can't derive
// from handlers.Dependencies alone.
type Options struct {
	AllowedOrigins  []string
	DashboardSecret string // X-Dashboard-Key; empty leaves writes open
	RateLimitPerMin int
	ModeRateLimit   int
	OriginChecker   *wsapi.OriginChecker // for /ws/dashboard; built from AllowedOrigins if nil
}

// SetupRoutes builds the dashboard's mux.Router: global middleware
// (Recovery -> Logging -> CORS), then per-route Auth/RateLimit on write
// methods, then every handler from §6.2, plus /ws/dashboard, /metrics
// and /health.
func SetupRoutes(deps *handlers.Dependencies, opts Options) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(opts.AllowedOrigins))

	writeAuth := middleware.Auth(opts.DashboardSecret)
	generalLimit := middleware.RateLimit(opts.RateLimitPerMin)
	modeLimit := middleware.RateLimit(opts.ModeRateLimit)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(generalLimit)

	status := handlers.NewStatusHandler(deps)
	api.HandleFunc("/status", status.Get).Methods(http.MethodGet)

	groups := handlers.NewGroupHandler(deps)
	api.HandleFunc("/groups", groups.List).Methods(http.MethodGet)
	api.Handle("/groups/{jid}/mode", modeLimit(writeAuth(http.HandlerFunc(groups.SetMode)))).Methods(http.MethodPut)
	api.HandleFunc("/groups/{jid}/volatility", groups.GetVolatility).Methods(http.MethodGet)
	api.Handle("/groups/{jid}/volatility", writeAuth(http.HandlerFunc(groups.SetVolatility))).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/groups/{jid}/spread", groups.GetSpread).Methods(http.MethodGet)
	api.Handle("/groups/{jid}/spread", writeAuth(http.HandlerFunc(groups.SetSpread))).Methods(http.MethodPut)

	triggers := handlers.NewTriggerHandler(deps)
	api.HandleFunc("/groups/{jid}/triggers", triggers.List).Methods(http.MethodGet)
	api.Handle("/groups/{jid}/triggers", writeAuth(http.HandlerFunc(triggers.Create))).Methods(http.MethodPost)
	api.Handle("/groups/{jid}/triggers/{id}", writeAuth(http.HandlerFunc(triggers.Update))).Methods(http.MethodPut)
	api.Handle("/groups/{jid}/triggers/{id}", writeAuth(http.HandlerFunc(triggers.Delete))).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{jid}/triggers/test", triggers.Test).Methods(http.MethodPost)

	rules := handlers.NewRuleHandler(deps)
	api.Handle("/rules", writeAuth(http.HandlerFunc(rules.Create))).Methods(http.MethodPost)
	api.Handle("/rules/{id}", writeAuth(http.HandlerFunc(rules.Update))).Methods(http.MethodPut)
	api.Handle("/rules/{id}", writeAuth(http.HandlerFunc(rules.Delete))).Methods(http.MethodDelete)

	deals := handlers.NewDealHandler(deps)
	api.HandleFunc("/groups/{jid}/deals", deals.ListActive).Methods(http.MethodGet)
	api.HandleFunc("/groups/{jid}/deal-history", deals.ListHistory).Methods(http.MethodGet)
	api.Handle("/groups/{jid}/deals/{dealId}/cancel", writeAuth(http.HandlerFunc(deals.Cancel))).Methods(http.MethodPost)
	api.Handle("/groups/{jid}/deals/{dealId}/extend", writeAuth(http.HandlerFunc(deals.Extend))).Methods(http.MethodPost)
	api.Handle("/groups/{jid}/deals/{dealId}/sweep", writeAuth(http.HandlerFunc(deals.Sweep))).Methods(http.MethodPost)

	sim := handlers.NewSimulatorHandler(deps)
	api.Handle("/simulator/send", writeAuth(http.HandlerFunc(sim.Send))).Methods(http.MethodPost)
	api.Handle("/simulator/replay", writeAuth(http.HandlerFunc(sim.Replay))).Methods(http.MethodPost)

	prices := handlers.NewPriceHandler(deps)
	api.HandleFunc("/prices/{source}/{symbol}", prices.Get).Methods(http.MethodGet)

	if deps.Hub != nil {
		originChecker := opts.OriginChecker
		if originChecker == nil {
			originChecker = wsapi.NewOriginChecker(opts.AllowedOrigins)
		}
		r.HandleFunc("/ws/dashboard", func(w http.ResponseWriter, req *http.Request) {
			wsapi.ServeWS(deps.Hub, originChecker, w, req)
		}).Methods(http.MethodGet)
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	debug := r.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(writeAuth)
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.Handle("/heap", pprof.Handler("heap"))
	debug.Handle("/goroutine", pprof.Handler("goroutine"))
	debug.Handle("/allocs", pprof.Handler("allocs"))

	return r
}
