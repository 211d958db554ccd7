package http

import (
	"encoding/json"
	"net/http"
	"time"

	"glaz/internal/accounttypes"
	"glaz/internal/core"
)

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"types":      s.registry.All(),
		"usageStats": s.accounts.UsageStats(),
		"timestamp":  time.Now().UTC(),
	})
}

func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	accountType, err := s.registry.Get(id)
	if err != nil {
		respondError(w, err, "Failed to get account type")
		return
	}

	usage, ok := s.accounts.UsageStats()[id]
	if !ok {
		usage = accounttypes.UsageStat{Type: accountType, Accounts: []core.Account{}}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"type":      accountType,
		"usage":     usage,
		"timestamp": time.Now().UTC(),
	})
}

type typePayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var payload typePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accountType, err := s.registry.Add(payload.Name, payload.Description)
	if err != nil {
		if errorStatus(err) == http.StatusBadRequest {
			writeErrorDetails(w, http.StatusBadRequest, "Failed to create account type", err.Error())
			return
		}
		respondError(w, err, "Failed to create account type")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "Account type created successfully",
		"type":      accountType,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Pre-flight failures are request errors, including an unknown type id.
	if err := s.registry.ValidateOperation("update", id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var payload typePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accountType, err := s.registry.Update(id, payload.Name, payload.Description)
	if err != nil {
		if errorStatus(err) == http.StatusBadRequest {
			writeErrorDetails(w, http.StatusBadRequest, "Failed to update account type", err.Error())
			return
		}
		respondError(w, err, "Failed to update account type")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Account type updated successfully",
		"type":      accountType,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.registry.ValidateOperation("delete", id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.accounts.DeleteAccountType(r.Context(), id)
	if err != nil {
		if errorStatus(err) == http.StatusBadRequest {
			writeErrorDetails(w, http.StatusBadRequest, "Failed to delete account type", err.Error())
			return
		}
		respondError(w, err, "Failed to delete account type")
		return
	}

	s.invalidateTotals()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":            "Account type deleted successfully",
		"deletedType":        result.DeletedType,
		"reassignedAccounts": result.ReassignedAccounts,
		"timestamp":          time.Now().UTC(),
	})
}
