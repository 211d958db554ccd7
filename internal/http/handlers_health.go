package http

import (
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "OK",
		"uptime":    int64(time.Since(s.startTime).Seconds()),
		"timestamp": time.Now().UTC(),
		"port":      s.port,
		"version":   apiVersion,
		"features": []string{
			"accounts",
			"currencies",
			"conversion",
			"persistent_storage",
			"backup_restore",
			"account_types",
		},
	}

	if s.backupMgr != nil {
		if stats, err := s.backupMgr.Stats(); err == nil {
			resp["storage"] = map[string]any{
				"accountsCount": stats.AccountsCount,
				"lastSaved":     stats.LastSaved,
				"fileSize":      stats.FileSizeBytes,
			}
		} else {
			resp["storage"] = map[string]any{"error": "Unable to get storage stats"}
		}
	} else {
		resp["storage"] = map[string]any{"error": "Unable to get storage stats"}
	}

	writeJSON(w, http.StatusOK, resp)
}
