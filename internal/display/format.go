// Package display formats fiat amounts for the enhanced-memo rules in
// internal/forwarding. It is the "external formatter" the memo rules
// call out for non-Bitcoin display_currency values.
package display

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// CurrencyInfo is a currency's display symbol and decimal precision.
type CurrencyInfo struct {
	Symbol   string
	Decimals int
}

var currencies = map[string]CurrencyInfo{
	"USD": {Symbol: "$", Decimals: 2},
	"EUR": {Symbol: "€", Decimals: 2},
	"GBP": {Symbol: "£", Decimals: 2},
	"JPY": {Symbol: "¥", Decimals: 0},
	"CAD": {Symbol: "CA$", Decimals: 2},
	"AUD": {Symbol: "AU$", Decimals: 2},
	"MXN": {Symbol: "MX$", Decimals: 2},
}

// bitcoinCurrencies short-circuits the planner before any amount ever
// reaches this package: BTC/SAT/SATS memos are always plain "N sat".
var bitcoinCurrencies = map[string]bool{"BTC": true, "SAT": true, "SATS": true}

// IsBitcoinCurrency reports whether currency denotes bitcoin itself
// rather than a fiat display currency.
func IsBitcoinCurrency(currency string) bool {
	return bitcoinCurrencies[strings.ToUpper(currency)]
}

func infoFor(currency string) CurrencyInfo {
	if info, ok := currencies[strings.ToUpper(currency)]; ok {
		return info
	}
	return CurrencyInfo{Symbol: strings.ToUpper(currency) + " ", Decimals: 2}
}

// Format renders amount in currency's display convention, e.g.
// Format("USD", 0.08) -> "$0.08".
func Format(currency string, amount float64) string {
	info := infoFor(currency)
	formatted := humanize.FormatFloat(decimalsFormat(info.Decimals), amount)
	return info.Symbol + formatted
}

func decimalsFormat(decimals int) string {
	if decimals <= 0 {
		return "#,##0"
	}
	return "#,##0." + strings.Repeat("0", decimals)
}

// ParseAmount strips a leading currency symbol (if any) and thousands
// separators from s and parses the remaining numeric value. Used to
// recover the raw figure from an already-formatted *_amount_display
// string (e.g. "$0.08" -> 0.08) so per-recipient shares can be
// prorated from it.
func ParseAmount(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimLeft(trimmed, "$€£¥")
	trimmed = strings.TrimPrefix(trimmed, "CA$")
	trimmed = strings.TrimPrefix(trimmed, "AU$")
	trimmed = strings.TrimPrefix(trimmed, "MX$")
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.ReplaceAll(trimmed, ",", "")

	if trimmed == "" {
		return 0, fmt.Errorf("empty display amount")
	}
	return strconv.ParseFloat(trimmed, 64)
}
