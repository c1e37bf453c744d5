package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nr2bj/transcribe-server/internal/job"
	"github.com/nr2bj/transcribe-server/internal/model"
	"github.com/nr2bj/transcribe-server/internal/transcript"
)

type fakeHealthBackend struct{}

func (fakeHealthBackend) Load(ctx context.Context, modelName string) error { return nil }
func (fakeHealthBackend) Unload(ctx context.Context) error                 { return nil }
func (fakeHealthBackend) Transcribe(ctx context.Context, audioPath string, translate bool, progress func(int)) (*transcript.Transcript, error) {
	return &transcript.Transcript{}, nil
}

func TestHealthReportsUnloadedModelAndEmptyQueue(t *testing.T) {
	manager := model.NewManager(fakeHealthBackend{}, "large-v3", time.Minute)
	queue := job.NewQueue(4)
	h := NewHealthHandler(manager, queue)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "unloaded", body.Model.State)
	require.Equal(t, 0, body.QueueDepth)
}

func TestHealthReportsQueueDepth(t *testing.T) {
	manager := model.NewManager(fakeHealthBackend{}, "large-v3", time.Minute)
	queue := job.NewQueue(4)
	require.NoError(t, queue.Enqueue("JOB-AAAAAA"))
	require.NoError(t, queue.Enqueue("JOB-BBBBBB"))
	h := NewHealthHandler(manager, queue)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.QueueDepth)
}
