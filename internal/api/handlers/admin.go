package handlers

import (
	"encoding/json"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/nr2bj/transcribe-server/internal/apperr"
	"github.com/nr2bj/transcribe-server/internal/auth"
	"github.com/nr2bj/transcribe-server/internal/job"
	"github.com/nr2bj/transcribe-server/internal/model"
)

var startTime = time.Now()

// AdminHandler implements the admin surface of §4.9: login (issuing a
// session JWT over the shared secret), stats, model load/unload, and
// forced retention cleanup. Grounded on the teacher's AuthHandler.Login
// and AdminHandler.DashboardStats, generalized from the multi-user
// dashboard to the single admin principal and job-pipeline metrics
// this system actually has.
type AdminHandler struct {
	Store       *job.Store
	Queue       *job.Queue
	Manager     *model.Manager
	Sweeper     *job.RetentionSweeper
	JWT         *auth.JWTService
	AdminSecret string
	DataDir     string
}

func NewAdminHandler(store *job.Store, queue *job.Queue, manager *model.Manager, sweeper *job.RetentionSweeper, jwt *auth.JWTService, adminSecret, dataDir string) *AdminHandler {
	return &AdminHandler{
		Store: store, Queue: queue, Manager: manager, Sweeper: sweeper,
		JWT: jwt, AdminSecret: adminSecret, DataDir: dataDir,
	}
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

type adminLoginResponse struct {
	Token string `json:"token"`
}

// Login exchanges the admin shared secret for a bearer JWT, so
// operator tooling can avoid sending the raw secret on every request.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !auth.CheckSharedSecret(req.Password, h.AdminSecret) {
		jsonError(w, "invalid admin password", http.StatusUnauthorized)
		return
	}
	token, err := h.JWT.GenerateToken("admin", "admin")
	if err != nil {
		jsonError(w, "failed to generate token", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, adminLoginResponse{Token: token}, http.StatusOK)
}

// Stats reports queue depth, model state, per-status job counts, and
// basic process/disk metrics. Grounded on the teacher's
// AdminHandler.DashboardStats (runtime.MemStats, syscall.Statfs).
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int{}
	for _, st := range []job.Status{
		job.StatusQueued, job.StatusDownloading, job.StatusExtracting,
		job.StatusTranscribing, job.StatusFormatting, job.StatusCompleted, job.StatusFailed,
	} {
		jobs, err := h.Store.List(job.ListFilter{Status: st})
		if err != nil {
			writeAppErr(w, err)
			return
		}
		counts[string(st)] = len(jobs)
	}

	var diskTotal, diskFree, diskUsed uint64
	var stat syscall.Statfs_t
	if err := syscall.Statfs(h.DataDir, &stat); err == nil {
		diskTotal = stat.Blocks * uint64(stat.Bsize)
		diskFree = stat.Bavail * uint64(stat.Bsize)
		diskUsed = diskTotal - diskFree
	}

	var memStat runtime.MemStats
	runtime.ReadMemStats(&memStat)

	jsonResponse(w, map[string]interface{}{
		"queue_depth":   h.Queue.Depth(),
		"model_state":   string(h.Manager.Status().State),
		"status_counts": counts,
		"storage": map[string]uint64{
			"total": diskTotal, "used": diskUsed, "free": diskFree,
		},
		"system": map[string]interface{}{
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": int(time.Since(startTime).Seconds()),
			"mem_alloc":      memStat.Alloc,
			"mem_sys":        memStat.Sys,
		},
	}, http.StatusOK)
}

// LoadModel forces the Model Manager to load on demand, outside of any
// in-flight transcription — useful for pre-warming before a burst.
func (h *AdminHandler) LoadModel(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.Load(r.Context()); err != nil {
		writeAppErr(w, apperr.Wrap(apperr.KindModelUnavailable, "model load failed", err))
		return
	}
	jsonResponse(w, map[string]string{"state": string(h.Manager.Status().State)}, http.StatusOK)
}

// UnloadModel forces an immediate unload, ahead of the idle-unload
// watchdog.
func (h *AdminHandler) UnloadModel(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.Unload(r.Context()); err != nil {
		writeAppErr(w, apperr.Wrap(apperr.KindModelUnavailable, "model unload failed", err))
		return
	}
	jsonResponse(w, map[string]string{"state": string(h.Manager.Status().State)}, http.StatusOK)
}

// Cleanup runs one retention sweep pass immediately rather than
// waiting for the next ticker fire.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	swept := h.Sweeper.SweepNow()
	jsonResponse(w, map[string]int{"swept": swept}, http.StatusOK)
}
