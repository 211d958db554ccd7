package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

func (s *Server) requireBackups(w http.ResponseWriter) bool {
	if s.backupMgr == nil {
		writeError(w, http.StatusBadRequest, "File-level backups are not supported by this backend")
		return false
	}
	return true
}

func (s *Server) handleStorageStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackups(w) {
		return
	}

	stats, err := s.backupMgr.Stats()
	if err != nil {
		respondError(w, err, "Failed to get storage stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountsCount": stats.AccountsCount,
		"fileSize":      stats.FileSizeBytes,
		"lastSaved":     stats.LastSaved,
		"version":       stats.Version,
		"nextId":        stats.NextID,
		"uptime":        time.Since(s.startTime).Seconds(),
		"timestamp":     time.Now().UTC(),
	})
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackups(w) {
		return
	}

	name, err := s.backupMgr.CreateFullBackup()
	if err != nil {
		respondError(w, err, "Failed to create backup")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Backup created successfully",
		"backupFile": name,
		"timestamp":  time.Now().UTC(),
	})
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackups(w) {
		return
	}

	backups, err := s.backupMgr.ListBackups()
	if err != nil {
		respondError(w, err, "Failed to get backups list")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"backups":    backups,
		"count":      len(backups),
		"maxBackups": s.retention,
		"timestamp":  time.Now().UTC(),
	})
}

func (s *Server) handleRestoreBody(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Filename == "" {
		writeError(w, http.StatusBadRequest, "Filename is required")
		return
	}
	s.restore(w, r, payload.Filename)
}

func (s *Server) handleRestorePath(w http.ResponseWriter, r *http.Request) {
	s.restore(w, r, r.PathValue("filename"))
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request, filename string) {
	if !s.requireBackups(w) {
		return
	}

	result, err := s.backupMgr.RestoreFromBackup(filename)
	if err != nil {
		respondError(w, err, "Failed to restore data")
		return
	}

	if err := s.accounts.Reload(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Failed to reload accounts after restore",
			"backup_file", filename, "error", err, "component", "http")
		writeError(w, http.StatusInternalServerError, "Failed to reload accounts after restore")
		return
	}
	s.invalidateTotals()

	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Data restored successfully",
		"restoredAccounts": result.RestoredAccounts,
		"safetyBackup":     result.SafetyBackup,
		"restoredAt":       result.RestoredAt,
		"reloadedAccounts": len(s.accounts.List()),
	})
}
