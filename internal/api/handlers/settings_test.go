package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nr2bj/transcribe-server/internal/db"
)

func newTestSettingsHandler(t *testing.T) *SettingsHandler {
	t.Helper()
	database, err := db.NewSQLite(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewSettingsHandler(database)
}

func TestGetSettingsReturnsEmptyDefaults(t *testing.T) {
	h := newTestSettingsHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/settings", nil)
	rec := httptest.NewRecorder()
	h.GetSettings(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "", resp["model_unload_minutes"])
	require.Len(t, resp, 3)
}

func TestUpdateSettingsPersistsKnownKeys(t *testing.T) {
	h := newTestSettingsHandler(t)

	body, _ := json.Marshal(map[string]string{"job_retention_days": "14"})
	req := httptest.NewRequest(http.MethodPut, "/api/admin/settings", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/settings", nil)
	rec = httptest.NewRecorder()
	h.GetSettings(rec, req)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "14", resp["job_retention_days"])
}

func TestUpdateSettingsIgnoresUnknownKeys(t *testing.T) {
	h := newTestSettingsHandler(t)

	body, _ := json.Marshal(map[string]string{"not_a_real_setting": "oops"})
	req := httptest.NewRequest(http.MethodPut, "/api/admin/settings", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "", h.database.GetSetting("not_a_real_setting", ""))
}

func TestUpdateSettingsRejectsInvalidBody(t *testing.T) {
	h := newTestSettingsHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/settings", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
