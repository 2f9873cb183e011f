package restfallback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"otcbot/internal/models"
)

func TestFetch_DecodesSuccessfulResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": 5.35}`))
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.BusinessRetry.MaxRetries = 1
	client := New(cfg, JSONPriceDecoder)

	sample, err := client.Fetch(context.Background(), models.SymbolUSDTBRL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if sample.Price != 5.35 {
		t.Errorf("Price = %v, want 5.35", sample.Price)
	}
	if sample.Source != models.SourceRESTFallback {
		t.Errorf("Source = %q, want %q", sample.Source, models.SourceRESTFallback)
	}
}

func TestFetch_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"price": 5.40}`))
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.TransportRetries = 0 // exercise pkg/retry's business-level retry, not retryablehttp's
	cfg.BusinessRetry.MaxRetries = 3
	cfg.BusinessRetry.InitialDelay = time.Millisecond
	client := New(cfg, JSONPriceDecoder)

	sample, err := client.Fetch(context.Background(), models.SymbolUSDTBRL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if sample.Price != 5.40 {
		t.Errorf("Price = %v, want 5.40", sample.Price)
	}
}

func TestFetch_DoesNotRetry4xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.TransportRetries = 0
	cfg.BusinessRetry.MaxRetries = 3
	cfg.BusinessRetry.InitialDelay = time.Millisecond
	client := New(cfg, JSONPriceDecoder)

	_, err := client.Fetch(context.Background(), models.SymbolUSDTBRL)
	if err == nil {
		t.Fatal("Fetch() error = nil, want error for a 400 response")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not be retried)", calls)
	}
}

func TestJSONPriceDecoder_SetsSymbol(t *testing.T) {
	sample, err := JSONPriceDecoder(models.SymbolUSDBRL, []byte(`{"price": 5.20}`))
	if err != nil {
		t.Fatalf("JSONPriceDecoder() error = %v", err)
	}
	if sample.Symbol != models.SymbolUSDBRL {
		t.Errorf("Symbol = %q, want %q", sample.Symbol, models.SymbolUSDBRL)
	}
}
