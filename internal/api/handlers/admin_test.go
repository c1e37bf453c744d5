package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/nr2bj/transcribe-server/internal/auth"
	"github.com/nr2bj/transcribe-server/internal/job"
	"github.com/nr2bj/transcribe-server/internal/model"
	"github.com/nr2bj/transcribe-server/internal/transcript"
)

type fakeAdminBackend struct{}

func (fakeAdminBackend) Load(ctx context.Context, modelName string) error { return nil }
func (fakeAdminBackend) Unload(ctx context.Context) error                 { return nil }
func (fakeAdminBackend) Transcribe(ctx context.Context, audioPath string, translate bool, progress func(int)) (*transcript.Transcript, error) {
	return &transcript.Transcript{}, nil
}

func newTestAdminHandler(t *testing.T) *AdminHandler {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := job.NewStore(db)
	require.NoError(t, store.Migrate())

	dataDir := t.TempDir()
	queue := job.NewQueue(8)
	manager := model.NewManager(fakeAdminBackend{}, "large-v3", time.Minute)
	sweeper := job.NewRetentionSweeper(store, dataDir, time.Hour)
	jwtService := auth.NewJWTService("test-secret")

	return NewAdminHandler(store, queue, manager, sweeper, jwtService, "admin-secret", dataDir)
}

func TestAdminLoginIssuesToken(t *testing.T) {
	h := newTestAdminHandler(t)
	body, _ := json.Marshal(adminLoginRequest{Password: "admin-secret"})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp adminLoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims, err := h.JWT.ValidateToken(resp.Token)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Subject)
}

func TestAdminLoginRejectsWrongPassword(t *testing.T) {
	h := newTestAdminHandler(t)
	body, _ := json.Marshal(adminLoginRequest{Password: "wrong"})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminStatsReportsStatusCounts(t *testing.T) {
	h := newTestAdminHandler(t)
	require.NoError(t, h.Store.Insert(newTestJob("JOB-AAAAAA")))
	require.NoError(t, h.Store.Insert(newTestJob("JOB-BBBBBB")))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	counts := resp["status_counts"].(map[string]interface{})
	require.Equal(t, float64(2), counts["queued"])
}

func TestAdminLoadAndUnloadModel(t *testing.T) {
	h := newTestAdminHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/model/load", nil)
	rec := httptest.NewRecorder()
	h.LoadModel(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.StateReady, h.Manager.Status().State)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/model/unload", nil)
	rec = httptest.NewRecorder()
	h.UnloadModel(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.StateUnloaded, h.Manager.Status().State)
}

func TestAdminCleanupReportsSweptCount(t *testing.T) {
	h := newTestAdminHandler(t)
	j := newTestJob("JOB-AAAAAA")
	j.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, h.Store.Insert(j))
	require.NoError(t, os.MkdirAll(filepath.Join(h.DataDir, "jobs", j.ID), 0755))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/cleanup", nil)
	rec := httptest.NewRecorder()
	h.Cleanup(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp["swept"])
}
