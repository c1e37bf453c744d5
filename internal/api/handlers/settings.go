package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nr2bj/transcribe-server/internal/db"
)

// tunableKeys are the settings an admin may store through this handler,
// persisted in the settings table's key/value store. Nothing else in the
// server reads them: the Model Manager, the retention sweeper and the
// upload limit take their values from the environment at startup, so a
// stored value does not change the server's behaviour, before or after
// a restart.
var tunableKeys = map[string]bool{
	"model_unload_minutes": true,
	"job_retention_days":   true,
	"max_upload_size_mb":   true,
}

// SettingsHandler implements the admin runtime-settings surface.
// Grounded on the teacher's SettingsHandler, trimmed of its secret
// masking (none of this system's settings are credentials) and of the
// translation-provider key catalog, which has no home in this system.
type SettingsHandler struct {
	database *db.Database
}

func NewSettingsHandler(database *db.Database) *SettingsHandler {
	return &SettingsHandler{database: database}
}

// GetSettings returns the current value of every tunable key, falling
// back to "" when unset (the operator-set environment default applies
// in that case).
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	result := make(map[string]string, len(tunableKeys))
	for key := range tunableKeys {
		result[key] = h.database.GetSetting(key, "")
	}
	jsonResponse(w, result, http.StatusOK)
}

// UpdateSettings saves settings from the request body; unknown keys
// are silently ignored rather than rejected, matching the teacher's
// "only allow known settings" filter.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	for key, value := range updates {
		if !tunableKeys[key] {
			continue
		}
		if err := h.database.SetSetting(key, value); err != nil {
			jsonError(w, "failed to save setting: "+key, http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
