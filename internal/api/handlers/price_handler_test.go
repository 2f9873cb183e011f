package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"otcbot/internal/models"
	"otcbot/internal/price"
)

func withSourceSymbolVars(req *http.Request, source, symbol string) *http.Request {
	return mux.SetURLVars(req, map[string]string{"source": source, "symbol": symbol})
}

func TestPriceHandler_Get_NotFoundWithoutSample(t *testing.T) {
	agg := price.New(price.DefaultConfig(), nil)
	deps := &Dependencies{Prices: agg}
	h := NewPriceHandler(deps)

	req := withSourceSymbolVars(httptest.NewRequest(http.MethodGet, "/api/prices/STREAM_A/USDTBRL", nil), "STREAM_A", "USDTBRL")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", rec.Code, rec.Body.String())
	}
}

func TestPriceHandler_Get_CachesAcrossCalls(t *testing.T) {
	agg := price.New(price.DefaultConfig(), nil)
	if err := agg.RecordSample(models.PriceSample{
		Source: "STREAM_A", Symbol: models.SymbolUSDTBRL, Price: 5.43, CapturedAt: time.Now(),
	}); err != nil {
		t.Fatalf("RecordSample() error = %v", err)
	}

	deps := &Dependencies{Prices: agg}
	h := NewPriceHandler(deps)

	req1 := withSourceSymbolVars(httptest.NewRequest(http.MethodGet, "/api/prices/STREAM_A/"+models.SymbolUSDTBRL, nil), "STREAM_A", models.SymbolUSDTBRL)
	rec1 := httptest.NewRecorder()
	h.Get(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec1.Code, rec1.Body.String())
	}

	req2 := withSourceSymbolVars(httptest.NewRequest(http.MethodGet, "/api/prices/STREAM_A/"+models.SymbolUSDTBRL, nil), "STREAM_A", models.SymbolUSDTBRL)
	rec2 := httptest.NewRecorder()
	h.Get(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (cached), body=%s", rec2.Code, rec2.Body.String())
	}

	if len(h.cache) != 1 {
		t.Errorf("cache entries = %d, want 1", len(h.cache))
	}
}
