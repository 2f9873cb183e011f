package utils

import (
	"testing"
	"time"
)

func TestGetDayStartFrom(t *testing.T) {
	in := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if got := GetDayStartFrom(in); !got.Equal(want) {
		t.Errorf("GetDayStartFrom(%v) = %v, want %v", in, got, want)
	}
}

func TestGetDayEndFrom(t *testing.T) {
	in := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)
	want := time.Date(2024, 1, 15, 23, 59, 59, 999999999, time.UTC)
	if got := GetDayEndFrom(in); !got.Equal(want) {
		t.Errorf("GetDayEndFrom(%v) = %v, want %v", in, got, want)
	}
}

func TestGetWeekStartFrom(t *testing.T) {
	// Wednesday 2024-01-17 -> Monday 2024-01-15
	in := time.Date(2024, 1, 17, 14, 30, 45, 0, time.UTC)
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if got := GetWeekStartFrom(in); !got.Equal(want) {
		t.Errorf("GetWeekStartFrom(%v) = %v, want %v", in, got, want)
	}
}

func TestGetWeekStartFrom_Sunday(t *testing.T) {
	in := time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC) // Sunday
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if got := GetWeekStartFrom(in); !got.Equal(want) {
		t.Errorf("GetWeekStartFrom(Sunday) = %v, want %v", got, want)
	}
}

func TestGetMonthStartFrom(t *testing.T) {
	in := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := GetMonthStartFrom(in); !got.Equal(want) {
		t.Errorf("GetMonthStartFrom(%v) = %v, want %v", in, got, want)
	}
}

func TestTimeRangeContains(t *testing.T) {
	tr := TimeRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
	}
	if !tr.Contains(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Error("Contains(mid-range) = false, want true")
	}
	if tr.Contains(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("Contains(out-of-range) = true, want false")
	}
}

func TestTimeRangeDuration(t *testing.T) {
	tr := TimeRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	if tr.Duration() != 24*time.Hour {
		t.Errorf("Duration() = %v, want 24h", tr.Duration())
	}
}

func TestGetLastNDays(t *testing.T) {
	tr := GetLastNDays(7)
	if tr.Duration() < 6*24*time.Hour {
		t.Errorf("GetLastNDays(7) duration too short: %v", tr.Duration())
	}
}

func TestGetLastNDays_NonPositive(t *testing.T) {
	tr := GetLastNDays(0)
	if tr.Start.After(tr.End) {
		t.Error("GetLastNDays(0) produced an inverted range")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{2*time.Hour + 15*time.Minute, "2h15m0s"},
		{3*24*time.Hour + 5*time.Hour, "77h0m0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestUnixMillis(t *testing.T) {
	before := time.Now().UnixMilli()
	got := UnixMillis()
	after := time.Now().UnixMilli()
	if got < before || got > after {
		t.Errorf("UnixMillis() = %d, want between %d and %d", got, before, after)
	}
}

func TestFromUnixMillis(t *testing.T) {
	ms := int64(1700000000000)
	got := FromUnixMillis(ms)
	if got.UnixMilli() != ms {
		t.Errorf("FromUnixMillis(%d).UnixMilli() = %d, want %d", ms, got.UnixMilli(), ms)
	}
	if got.Location() != time.UTC {
		t.Error("FromUnixMillis should return UTC time")
	}
}

func TestToLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("America/Sao_Paulo tzdata unavailable")
	}
	in := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	got := ToLocation(in, loc)
	if !got.Equal(in) {
		t.Error("ToLocation should preserve the instant")
	}
	if ToLocation(in, nil) != in {
		t.Error("ToLocation(nil) should return t unchanged")
	}
}

func BenchmarkGetDayStartFrom(b *testing.B) {
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GetDayStartFrom(now)
	}
}

func BenchmarkGetWeekStartFrom(b *testing.B) {
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GetWeekStartFrom(now)
	}
}

func BenchmarkTimeRangeContains(b *testing.B) {
	tr := GetLastNDays(7)
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tr.Contains(now)
	}
}
