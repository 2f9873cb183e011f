package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"otcbot/internal/apperr"
)

const priceCacheTTL = 5 * time.Minute

type priceCacheEntry struct {
	payload  priceResponse
	cachedAt time.Time
}

// PriceHandler serves GET /api/prices/*, fronted by a short server-side
// cache so dashboard polling doesn't multiply calls against external
// quote sources beyond internal/price.Aggregator's own sampling (§6.2).
type PriceHandler struct {
	deps  *Dependencies
	mu    sync.Mutex
	cache map[string]priceCacheEntry
}

func NewPriceHandler(deps *Dependencies) *PriceHandler {
	return &PriceHandler{deps: deps, cache: make(map[string]priceCacheEntry)}
}

type priceResponse struct {
	Source string  `json:"source"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	AgeMs  int64   `json:"age_ms"`
	Stale  bool    `json:"stale"`
}

// Get handles GET /api/prices/:source/:symbol.
func (h *PriceHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	source, symbol := vars["source"], vars["symbol"]
	cacheKey := source + "|" + symbol

	h.mu.Lock()
	if entry, ok := h.cache[cacheKey]; ok && time.Since(entry.cachedAt) < priceCacheTTL {
		h.mu.Unlock()
		writeJSON(w, http.StatusOK, entry.payload)
		return
	}
	h.mu.Unlock()

	price, age, stale, ok := h.deps.Prices.GetPrice(source, symbol)
	if !ok {
		writeError(w, apperr.New(apperr.KindNotFound, "no price sample recorded for this source/symbol"))
		return
	}

	payload := priceResponse{Source: source, Symbol: symbol, Price: price, AgeMs: age.Milliseconds(), Stale: stale}

	h.mu.Lock()
	h.cache[cacheKey] = priceCacheEntry{payload: payload, cachedAt: time.Now()}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, payload)
}
