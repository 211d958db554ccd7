package http

import (
	"net/http"
	"strconv"
	"strings"

	"glaz/internal/currency"
)

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	snap := s.rates.Rates(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"rates":               snap.Rates,
		"availableCurrencies": currency.Available(snap),
		"lastUpdated":         snap.LastUpdated,
		"isDefault":           snap.IsDefault,
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amountStr := strings.TrimSpace(q.Get("amount"))
	from := strings.ToUpper(strings.TrimSpace(q.Get("from")))
	to := strings.ToUpper(strings.TrimSpace(q.Get("to")))

	if amountStr == "" || from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "Amount, from, and to parameters are required")
		return
	}
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	converted, snap := s.rates.Convert(r.Context(), amount, from, to)

	// Rate between the two currencies, both expressed against the ruble.
	fromRate, toRate := 1.0, 1.0
	if rate, ok := snap.Rates[from]; ok && rate.Value != 0 {
		fromRate = rate.Value
	}
	if rate, ok := snap.Rates[to]; ok && rate.Value != 0 {
		toRate = rate.Value
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"originalAmount":   amount,
		"originalCurrency": from,
		"convertedAmount":  converted,
		"targetCurrency":   to,
		"rate":             fromRate / toRate,
		"lastUpdated":      snap.LastUpdated,
	})
}
