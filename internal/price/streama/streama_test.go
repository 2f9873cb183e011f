package streama

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"otcbot/internal/models"
)

type fakeRecorder struct {
	mu      sync.Mutex
	samples []models.PriceSample
}

func (f *fakeRecorder) RecordSample(s models.PriceSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

type wireTick struct {
	Price float64 `json:"price"`
}

func jsonDecoder(frame []byte) (models.PriceSample, bool, error) {
	var tick wireTick
	if err := json.Unmarshal(frame, &tick); err != nil {
		return models.PriceSample{}, false, err
	}
	return models.PriceSample{Symbol: models.SymbolUSDTBRL, Price: tick.Price, CapturedAt: time.Now()}, true, nil
}

func TestSupervisor_ConnectsAndDecodesSamples(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(wireTick{Price: 5.31})
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	recorder := &fakeRecorder{}
	sup := New(DefaultConfig(url), jsonDecoder, recorder)
	sup.Start()
	defer sup.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if recorder.count() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if recorder.count() == 0 {
		t.Fatal("recorder received no samples from the test server")
	}
}

func TestSupervisor_NextDelayBacksOffAndCaps(t *testing.T) {
	sup := New(Config{InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}, jsonDecoder, &fakeRecorder{})

	first := sup.nextDelay(0)
	if first != 2*time.Second {
		t.Errorf("nextDelay(0) = %v, want 2s", first)
	}
	second := sup.nextDelay(first)
	if second != 4*time.Second {
		t.Errorf("nextDelay(2s) = %v, want 4s", second)
	}
	capped := sup.nextDelay(20 * time.Second)
	if capped != 30*time.Second {
		t.Errorf("nextDelay(20s) = %v, want capped at 30s", capped)
	}
}

func TestSupervisor_CloseStopsReconnecting(t *testing.T) {
	sup := New(DefaultConfig("ws://127.0.0.1:1/nonexistent"), jsonDecoder, &fakeRecorder{})
	sup.Start()
	time.Sleep(10 * time.Millisecond)
	sup.Close()

	if sup.State() != StateClosed {
		t.Errorf("State() = %v, want closed", sup.State())
	}
}
