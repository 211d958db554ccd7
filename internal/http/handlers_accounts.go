package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"glaz/internal/services"
)

type totalResponse struct {
	TotalBalance  float64   `json:"totalBalance"`
	Currency      string    `json:"currency"`
	AccountsCount int       `json:"accountsCount"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": s.accounts.List(),
	})
}

func (s *Server) handleTotalBalance(w http.ResponseWriter, r *http.Request) {
	target := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))
	if target == "" {
		target = "RUB"
	}

	key := s.totalsKey(target)
	if cached, ok := s.totalsCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	total, snap := s.accounts.TotalBalance(r.Context(), target)
	resp := totalResponse{
		TotalBalance:  total,
		Currency:      target,
		AccountsCount: len(s.accounts.List()),
		LastUpdated:   snap.LastUpdated,
	}
	s.totalsCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	account, err := s.accounts.Get(id)
	if err != nil {
		respondError(w, err, "Failed to get account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account})
}

type accountPayload struct {
	Name        *string  `json:"name"`
	Balance     *float64 `json:"balance"`
	Currency    *string  `json:"currency"`
	Type        *string  `json:"type"`
	Description *string  `json:"description"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var payload accountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	input := services.CreateAccountInput{Balance: payload.Balance}
	if payload.Name != nil {
		input.Name = *payload.Name
	}
	if payload.Currency != nil {
		input.Currency = *payload.Currency
	}
	if payload.Type != nil {
		input.Type = *payload.Type
	}
	if payload.Description != nil {
		input.Description = *payload.Description
	}

	account, err := s.accounts.Create(r.Context(), input)
	if err != nil {
		respondError(w, err, "Failed to save account")
		return
	}

	s.invalidateTotals()
	writeJSON(w, http.StatusCreated, map[string]any{"account": account})
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var payload accountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := s.accounts.Update(r.Context(), id, services.UpdateAccountInput{
		Name:        payload.Name,
		Balance:     payload.Balance,
		Currency:    payload.Currency,
		Type:        payload.Type,
		Description: payload.Description,
	})
	if err != nil {
		respondError(w, err, "Failed to save account changes")
		return
	}

	s.invalidateTotals()
	writeJSON(w, http.StatusOK, map[string]any{"account": account})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	account, err := s.accounts.Delete(r.Context(), id)
	if err != nil {
		respondError(w, err, "Failed to save account deletion")
		return
	}

	s.invalidateTotals()
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Account deleted",
		"account": account,
	})
}

func accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account id")
		return 0, false
	}
	return id, true
}
