package models

import "time"

// Price source identifiers (§4.5).
const (
	SourceStreamA      = "STREAM_A"
	SourceStreamB      = "STREAM_B"
	SourceRESTFallback = "REST_FALLBACK"
)

// Symbols the aggregator tracks.
const (
	SymbolUSDTBRL = "USDTBRL"
	SymbolUSDBRL  = "USDBRL"
)

// PriceSample is a single observation from a source, emitted to the bronze
// sink and also kept as the latest-per-source sample in memory.
type PriceSample struct {
	Source     string    `json:"source" db:"source"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Price      float64   `json:"price" db:"price"`
	Bid        *float64  `json:"bid,omitempty" db:"bid"`
	Ask        *float64  `json:"ask,omitempty" db:"ask"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}
