package handlers

import (
	"net/http"
	"time"

	"github.com/nr2bj/transcribe-server/internal/gpu"
	"github.com/nr2bj/transcribe-server/internal/job"
	"github.com/nr2bj/transcribe-server/internal/model"
)

// HealthHandler implements GET /api/health: process liveness plus
// model state, queue depth, and GPU presence (§4.9). Grounded on the
// teacher's gpu.DetectGPU for the hardware probe, combined here with
// the Model Manager's own Status snapshot.
type HealthHandler struct {
	Manager   *model.Manager
	Queue     *job.Queue
	StartedAt time.Time
}

func NewHealthHandler(manager *model.Manager, queue *job.Queue) *HealthHandler {
	return &HealthHandler{Manager: manager, Queue: queue, StartedAt: time.Now()}
}

type healthResponse struct {
	Status     string       `json:"status"`
	UptimeSecs float64      `json:"uptime_seconds"`
	Model      modelHealth  `json:"model"`
	QueueDepth int          `json:"queue_depth"`
	GPU        *gpu.GPUInfo `json:"gpu,omitempty"`
}

type modelHealth struct {
	State      string    `json:"state"`
	ModelName  string    `json:"model_name,omitempty"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.Manager.Status()
	g := gpu.DetectGPU()
	var gpuInfo *gpu.GPUInfo
	if g.Device != "" {
		gpuInfo = g
	}

	jsonResponse(w, healthResponse{
		Status:     "ok",
		UptimeSecs: time.Since(h.StartedAt).Seconds(),
		Model: modelHealth{
			State:      string(st.State),
			ModelName:  st.ModelName,
			LastUsedAt: st.LastUsedAt,
		},
		QueueDepth: h.Queue.Depth(),
		GPU:        gpuInfo,
	}, http.StatusOK)
}
