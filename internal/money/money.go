// Package money implements the deal engine's decimal arithmetic: spread
// application, BRL/USDT conversion, and Brazilian-format amount parsing.
// All persisted rates and amounts flow through shopspring/decimal; stdlib
// float64 is never used once a number leaves the wire boundary.
package money

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var bpsDivisor = decimal.NewFromInt(10000)

// ClientBuyRate computes the rate at which the client buys USDT (the
// operator sells), applying sellSpread in the given mode on top of mid.
func ClientBuyRate(mid decimal.Decimal, mode string, sellSpread decimal.Decimal) decimal.Decimal {
	switch mode {
	case "bps":
		return mid.Mul(decimal.NewFromInt(1).Add(sellSpread.Div(bpsDivisor)))
	case "abs_brl":
		return mid.Add(sellSpread)
	case "flat":
		return sellSpread
	default:
		return mid
	}
}

// ClientSellRate computes the rate at which the client sells USDT (the
// operator buys), applying buySpread in the given mode against mid.
func ClientSellRate(mid decimal.Decimal, mode string, buySpread decimal.Decimal) decimal.Decimal {
	switch mode {
	case "bps":
		return mid.Mul(decimal.NewFromInt(1).Sub(buySpread.Div(bpsDivisor)))
	case "abs_brl":
		return mid.Sub(buySpread)
	case "flat":
		return buySpread
	default:
		return mid
	}
}

// InverseBuyMid recovers the mid that would have produced quote via
// ClientBuyRate under the same mode/spread (P6). "flat" mode discards mid
// entirely and has no inverse; callers must not rely on round-tripping it.
func InverseBuyMid(quote decimal.Decimal, mode string, sellSpread decimal.Decimal) decimal.Decimal {
	switch mode {
	case "bps":
		return quote.Div(decimal.NewFromInt(1).Add(sellSpread.Div(bpsDivisor)))
	case "abs_brl":
		return quote.Sub(sellSpread)
	default:
		return quote
	}
}

// InverseSellMid recovers the mid that would have produced quote via
// ClientSellRate under the same mode/spread.
func InverseSellMid(quote decimal.Decimal, mode string, buySpread decimal.Decimal) decimal.Decimal {
	switch mode {
	case "bps":
		return quote.Div(decimal.NewFromInt(1).Sub(buySpread.Div(bpsDivisor)))
	case "abs_brl":
		return quote.Add(buySpread)
	default:
		return quote
	}
}

// Truncate2 truncates d to two decimal places without rounding, matching
// operator convention (§9 Money math, P8).
func Truncate2(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(2)
}

// BRLToUSDT converts a BRL amount to USDT at rate, truncated to two
// decimals (never rounded).
func BRLToUSDT(amountBRL, rate decimal.Decimal) decimal.Decimal {
	return Truncate2(amountBRL.Div(rate))
}

// USDTToBRL converts a USDT amount to BRL at rate, truncated to two
// decimals.
func USDTToBRL(amountUSDT, rate decimal.Decimal) decimal.Decimal {
	return Truncate2(amountUSDT.Mul(rate))
}

var (
	currencyPrefix = regexp.MustCompile(`(?i)^\s*(r\$|us\$|usdt)\s*`)
	kSuffix        = regexp.MustCompile(`(?i)\s*(k|mil)\s*$`)
)

// ParseBRLAmount parses a Brazilian-formatted amount string, supporting
// period thousands separators, comma decimals, "k"/"mil" multipliers, and
// "R$"/"US$"/"USDT" prefixes (§4.6.6, P7). Returns false for empty,
// non-numeric, or negative input.
func ParseBRLAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}

	s = currencyPrefix.ReplaceAllString(s, "")

	multiplier := decimal.NewFromInt(1)
	if kSuffix.MatchString(s) {
		multiplier = decimal.NewFromInt(1000)
		s = kSuffix.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	canonical := toCanonicalDecimal(s)
	if canonical == "" {
		return decimal.Zero, false
	}

	n, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Zero, false
	}
	if n.IsNegative() {
		return decimal.Zero, false
	}
	return n.Mul(multiplier), true
}

// toCanonicalDecimal rewrites a Brazilian-formatted number ("4.479.100,50",
// "10", "5,25") into Go/decimal's canonical form ("4479100.50", "10",
// "5.25"). Returns "" if s contains anything but digits, '.', ',' and a
// leading '-'.
func toCanonicalDecimal(s string) string {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' && r != '-' {
			return ""
		}
	}
	if strings.Count(s, ",") > 1 {
		return ""
	}

	if idx := strings.LastIndex(s, ","); idx >= 0 {
		intPart := strings.ReplaceAll(s[:idx], ".", "")
		fracPart := s[idx+1:]
		if !isDigits(intPart) || !isDigits(fracPart) {
			return ""
		}
		return intPart + "." + fracPart
	}

	// No comma: a lone "." is the decimal point only when it looks like a
	// trailing fractional group (<=2 digits after it and a single dot);
	// otherwise every "." is a thousands separator.
	dots := strings.Count(s, ".")
	if dots == 1 {
		parts := strings.SplitN(s, ".", 2)
		if len(parts[1]) <= 2 && isDigits(parts[0]) && isDigits(parts[1]) {
			return s
		}
	}
	stripped := strings.ReplaceAll(s, ".", "")
	if !isDigits(stripped) {
		return ""
	}
	return stripped
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DriftBps computes |current-base|/base expressed in basis points, used by
// the deal engine's volatility-aware reprice (§4.6.4).
func DriftBps(base, current decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	diff := current.Sub(base).Abs()
	return diff.Div(base).Mul(bpsDivisor)
}

// FormatRate renders a quoted/locked rate at four decimal places, "R$
// 5,2260" style (§8's worked examples).
func FormatRate(d decimal.Decimal) string {
	return formatBRL(d.StringFixed(4))
}

// FormatAmount renders a BRL amount at two decimal places, "R$
// 10.000,00" style.
func FormatAmount(d decimal.Decimal) string {
	return formatBRL(d.StringFixed(2))
}

func formatBRL(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	intPart = groupThousands(intPart)
	out := "R$ " + intPart
	if fracPart != "" {
		out += "," + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
