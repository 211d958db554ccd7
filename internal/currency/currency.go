// Package currency fetches exchange rates from the Central Bank of Russia,
// caches them, and converts amounts between the supported currencies through
// the ruble.
package currency

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rate is one currency's exchange rate against the ruble.
type Rate struct {
	Name   string  `json:"name"`
	Value  float64 `json:"rate"`
	Symbol string  `json:"symbol"`
}

// Snapshot is a consistent set of rates taken at one point in time.
// IsDefault marks the hardcoded fallback used when the upstream API is
// unreachable and no earlier fetch succeeded.
type Snapshot struct {
	Rates       map[string]Rate `json:"rates"`
	LastUpdated time.Time       `json:"lastUpdated"`
	IsDefault   bool            `json:"isDefault,omitempty"`
}

// Source fetches a fresh snapshot from an upstream provider.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

var fallbackSymbols = map[string]string{
	"RUB": "₽",
	"USD": "$",
	"EUR": "€",
}

// DefaultSnapshot is the hardcoded fallback when no rates are available at
// all. The values are deliberately coarse; they only keep conversions usable
// while the upstream API is down.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Rates: map[string]Rate{
			"RUB": {Name: "Российский рубль", Value: 1, Symbol: "₽"},
			"USD": {Name: "Доллар США", Value: 95.5, Symbol: "$"},
			"EUR": {Name: "Евро", Value: 104.2, Symbol: "€"},
		},
		LastUpdated: time.Now().UTC(),
		IsDefault:   true,
	}
}

// Convert exchanges amount from one currency to another through the ruble,
// rounded to two decimal places. Unknown currencies convert at rate 1; an
// empty snapshot or equal codes return the amount unchanged.
func Convert(amount float64, from, to string, snap Snapshot) float64 {
	if from == to || len(snap.Rates) == 0 {
		return amount
	}

	rubles := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rateOf(from, snap)))
	converted := rubles.Div(decimal.NewFromFloat(rateOf(to, snap)))
	f, _ := converted.Round(2).Float64()
	return f
}

func rateOf(code string, snap Snapshot) float64 {
	if r, ok := snap.Rates[code]; ok && r.Value != 0 {
		return r.Value
	}
	return 1
}

// Symbol returns the display symbol for a currency code, falling back to a
// fixed table and finally to the code itself.
func Symbol(code string, snap Snapshot) string {
	if r, ok := snap.Rates[code]; ok && r.Symbol != "" {
		return r.Symbol
	}
	if s, ok := fallbackSymbols[code]; ok {
		return s
	}
	return code
}

// Available lists the snapshot's currency codes in sorted order.
func Available(snap Snapshot) []string {
	if len(snap.Rates) == 0 {
		return []string{"EUR", "RUB", "USD"}
	}
	codes := make([]string, 0, len(snap.Rates))
	for code := range snap.Rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// FormatAmount renders an amount with Russian digit grouping and the
// currency symbol, e.g. "1 234,56 ₽".
func FormatAmount(amount float64, code string, snap Snapshot) string {
	d := decimal.NewFromFloat(amount).Round(2)
	parts := strings.SplitN(d.StringFixed(2), ".", 2)

	intPart := parts[0]
	negative := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	out := strings.Join(groups, " ") + "," + parts[1]
	if negative {
		out = "-" + out
	}
	return out + " " + Symbol(code, snap)
}
