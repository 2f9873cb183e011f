package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestClientBuyRate_Bps(t *testing.T) {
	// Scenario 1: mid 5.20, sellSpread=50bps -> 5.2260
	mid := d("5.20")
	got := ClientBuyRate(mid, "bps", d("50"))
	if !got.Equal(d("5.2260")) {
		t.Errorf("ClientBuyRate = %s, want 5.2260", got)
	}
}

func TestClientSellRate_Bps(t *testing.T) {
	mid := d("5.20")
	got := ClientSellRate(mid, "bps", d("50"))
	if !got.Equal(d("5.174")) {
		t.Errorf("ClientSellRate = %s, want 5.174", got)
	}
}

func TestApplySpread_AbsBRL(t *testing.T) {
	mid := d("5.20")
	if got := ClientBuyRate(mid, "abs_brl", d("0.05")); !got.Equal(d("5.25")) {
		t.Errorf("ClientBuyRate abs_brl = %s, want 5.25", got)
	}
	if got := ClientSellRate(mid, "abs_brl", d("0.05")); !got.Equal(d("5.15")) {
		t.Errorf("ClientSellRate abs_brl = %s, want 5.15", got)
	}
}

func TestApplySpread_Flat(t *testing.T) {
	flatRate := d("5.30")
	if got := ClientBuyRate(d("5.20"), "flat", flatRate); !got.Equal(flatRate) {
		t.Errorf("ClientBuyRate flat = %s, want %s", got, flatRate)
	}
}

// P6: spread round-trip.
func TestSpreadRoundTrip_Bps(t *testing.T) {
	mid := d("5.20")
	spread := d("50")
	quote := ClientBuyRate(mid, "bps", spread)
	recovered := InverseBuyMid(quote, "bps", spread)
	if !recovered.Round(8).Equal(mid.Round(8)) {
		t.Errorf("round-trip: recovered %s, want %s", recovered, mid)
	}
}

func TestSpreadRoundTrip_AbsBRL(t *testing.T) {
	mid := d("5.20")
	spread := d("0.07")
	quote := ClientSellRate(mid, "abs_brl", spread)
	recovered := InverseSellMid(quote, "abs_brl", spread)
	if !recovered.Equal(mid) {
		t.Errorf("round-trip abs_brl: recovered %s, want %s", recovered, mid)
	}
}

// P7: Brazilian number parser.
func TestParseBRLAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"4.479.100,50", "4479100.50", true},
		{"10k", "10000", true},
		{"10 mil", "10000", true},
		{"R$ 5,25", "5.25", true},
		{"US$5.25", "5.25", true},
		{"1000", "1000", true},
		{"", "", false},
		{"abc", "", false},
		{"-1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseBRLAmount(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseBRLAmount(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && !got.Equal(d(tt.want)) {
				t.Errorf("ParseBRLAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

// P8: deal math truncation.
func TestBRLToUSDT_Truncation(t *testing.T) {
	got := BRLToUSDT(d("4479100"), d("5.25"))
	if !got.Equal(d("853161.90")) {
		t.Errorf("BRLToUSDT = %s, want 853161.90", got)
	}
}

func TestUSDTToBRL_Truncation(t *testing.T) {
	got := USDTToBRL(d("853161.90"), d("5.25"))
	if !got.Equal(d("4479099.97")) {
		t.Errorf("USDTToBRL = %s, want 4479099.97", got)
	}
}

func TestDriftBps(t *testing.T) {
	base := d("5.20")
	current := d("5.2208") // 40bps drift
	got := DriftBps(base, current)
	if !got.Round(0).Equal(d("40")) {
		t.Errorf("DriftBps = %s, want ~40", got)
	}
}

func TestDriftBps_ZeroBase(t *testing.T) {
	if got := DriftBps(decimal.Zero, d("5.20")); !got.IsZero() {
		t.Errorf("DriftBps with zero base = %s, want 0", got)
	}
}
