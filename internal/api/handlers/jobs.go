package handlers

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nr2bj/transcribe-server/internal/acquire"
	"github.com/nr2bj/transcribe-server/internal/apperr"
	"github.com/nr2bj/transcribe-server/internal/job"
)

// JobsHandler implements the native Admission API (§4.9): job
// submission, status, download, deletion and listing (process health
// is served by HealthHandler). Grounded on the teacher's JobHandler, generalized from a
// thin read-only wrapper over job.JobQueue into the full admission
// surface — this package owns staging uploaded files to disk and
// enqueueing, which the teacher left to its subtitle/job handlers
// combined.
type JobsHandler struct {
	Store          *job.Store
	Queue          *job.Queue
	DataDir        string
	PublicBase     string
	MaxUploadBytes int64
	RetentionDays  int
}

func NewJobsHandler(store *job.Store, queue *job.Queue, dataDir, publicBase string, maxUploadBytes int64, retentionDays int) *JobsHandler {
	return &JobsHandler{
		Store: store, Queue: queue, DataDir: dataDir, PublicBase: publicBase,
		MaxUploadBytes: maxUploadBytes, RetentionDays: retentionDays,
	}
}

func (h *JobsHandler) jobDir(id string) string {
	return filepath.Join(h.DataDir, "jobs", id)
}

type createJobResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateJob implements POST /api/jobs: form fields `url` xor `file`,
// optional `webhook_url`. Uploads are streamed directly to the job's
// staging directory; URL jobs only record the reference, since the
// actual fetch happens in the Job Processor so that a crash mid-download
// is resumable (§4.8).
func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	id, err := h.newUniqueID()
	if err != nil {
		writeAppErr(w, apperr.Wrap(apperr.KindInternal, "generate job id", err))
		return
	}

	dir := h.jobDir(id)
	for _, sub := range []string{"input", "output", "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			writeAppErr(w, apperr.Wrap(apperr.KindInternal, "create job directories", err))
			return
		}
	}

	// The request body is already wrapped in an http.MaxBytesReader by
	// middleware.MaxBodySize on this route, so maxBytes is 0 here: the
	// "file" part (if any) streams straight into dir/input without a
	// second, separate ParseMultipartForm buffering pass.
	filename, fields, err := acquire.StreamMultipartUpload(w, r, 0, filepath.Join(dir, "input"))
	if err != nil {
		os.RemoveAll(dir)
		writeAppErr(w, err)
		return
	}

	sourceURL := strings.TrimSpace(fields["url"])
	webhookURL := strings.TrimSpace(fields["webhook_url"])
	hasURL := sourceURL != ""
	hasFile := filename != ""

	if hasURL == hasFile {
		os.RemoveAll(dir)
		writeAppErr(w, apperr.New(apperr.KindValidation, "exactly one of url or file is required"))
		return
	}

	kind := job.KindURL
	sourceRef := sourceURL
	if hasFile {
		kind = job.KindUpload
		sourceRef = filepath.Join(dir, "input", filename)
	}

	now := time.Now()
	j := &job.Job{
		ID:         id,
		SourceKind: kind,
		SourceRef:  sourceRef,
		WebhookURL: webhookURL,
		Status:     job.StatusQueued,
		Stage:      string(job.StatusQueued),
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(time.Duration(h.RetentionDays) * 24 * time.Hour),
	}

	if err := h.Store.Insert(j); err != nil {
		os.RemoveAll(dir)
		writeAppErr(w, err)
		return
	}

	if err := h.Queue.Enqueue(id); err != nil {
		os.RemoveAll(dir)
		_ = h.Store.Delete(id)
		writeAppErr(w, apperr.New(apperr.KindQueueFull, "queue is at capacity, try again later"))
		return
	}

	jsonResponse(w, createJobResponse{
		JobID: j.ID, Status: string(j.Status), CreatedAt: j.CreatedAt, ExpiresAt: j.ExpiresAt,
	}, http.StatusAccepted)
}

// newUniqueID generates a job id, retrying on the vanishingly unlikely
// collision (duplicate_id is a reserved, internal-only error kind).
func (h *JobsHandler) newUniqueID() (string, error) {
	for i := 0; i < 5; i++ {
		id, err := job.NewID()
		if err != nil {
			return "", err
		}
		if _, err := h.Store.Get(id); err != nil {
			return id, nil
		}
	}
	return "", apperr.New(apperr.KindInternal, "failed to generate a unique job id")
}

type jobResponse struct {
	JobID           string            `json:"job_id"`
	Status          string            `json:"status"`
	Stage           string            `json:"stage"`
	Progress        int               `json:"progress"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	DurationSeconds *float64          `json:"duration_seconds,omitempty"`
	Error           *job.Error        `json:"error,omitempty"`
	DownloadURLs    map[string]string `json:"download_urls,omitempty"`
}

func (h *JobsHandler) toResponse(j *job.Job) jobResponse {
	resp := jobResponse{
		JobID: j.ID, Status: string(j.Status), Stage: j.Stage, Progress: j.Progress,
		CreatedAt: j.CreatedAt, UpdatedAt: j.UpdatedAt, ExpiresAt: j.ExpiresAt,
		DurationSeconds: j.DurationSeconds, Error: j.Error,
	}
	if j.Status == job.StatusCompleted {
		urls := make(map[string]string, len(j.ResultFormats))
		for _, f := range j.ResultFormats {
			urls[string(f)] = h.PublicBase + "/api/jobs/" + j.ID + "/download?format=" + string(f)
		}
		resp.DownloadURLs = urls
	}
	return resp
}

// GetJob implements GET /api/jobs/{job_id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := h.Store.Get(id)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	jsonResponse(w, h.toResponse(j), http.StatusOK)
}

// artifactFilename maps a requested format to the on-disk filename
// written by the Formatter (internal/format.Generator.FormatAll).
func artifactFilename(f job.Format) string {
	switch f {
	case job.FormatJSON:
		return "transcript.json"
	case job.FormatTXT:
		return "result.txt"
	case job.FormatSRT:
		return "result.srt"
	case job.FormatVTT:
		return "result.vtt"
	case job.FormatMD:
		return "result.md"
	default:
		return ""
	}
}

// DownloadJob implements GET /api/jobs/{job_id}/download?format=...
func (h *JobsHandler) DownloadJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := job.Format(r.URL.Query().Get("format"))

	j, err := h.Store.Get(id)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	if j.Status != job.StatusCompleted {
		writeAppErr(w, apperr.New(apperr.KindNotFound, "job is not completed"))
		return
	}

	name := artifactFilename(format)
	present := false
	for _, f := range j.ResultFormats {
		if f == format {
			present = true
			break
		}
	}
	if name == "" || !present {
		writeAppErr(w, apperr.New(apperr.KindNotFound, "requested format is not available for this job"))
		return
	}

	path := filepath.Join(h.jobDir(id), "output", name)
	f, err := os.Open(path)
	if err != nil {
		writeAppErr(w, apperr.Wrap(apperr.KindNotFound, "artifact missing on disk", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+id+"."+string(format)+`"`)
	w.Header().Set("Content-Type", contentTypeFor(format))
	io.Copy(w, f)
}

func contentTypeFor(f job.Format) string {
	switch f {
	case job.FormatJSON:
		return "application/json"
	case job.FormatSRT:
		return "application/x-subrip"
	case job.FormatVTT:
		return "text/vtt"
	case job.FormatMD:
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// DeleteJob implements DELETE /api/jobs/{job_id}: tears down the
// directory tree then the row, regardless of status (§5 cancellation
// is cooperative — the Processor notices the missing row/directory at
// its next stage boundary and abandons the job).
func (h *JobsHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := os.RemoveAll(h.jobDir(id)); err != nil {
		writeAppErr(w, apperr.Wrap(apperr.KindInternal, "remove job directory", err))
		return
	}
	if err := h.Store.Delete(id); err != nil {
		writeAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListJobs implements GET /api/jobs, paginated via limit/offset query
// params and optionally narrowed by status.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	jobs, err := h.Store.List(job.ListFilter{
		Status: job.Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeAppErr(w, err)
		return
	}

	resp := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = h.toResponse(j)
	}
	jsonResponse(w, resp, http.StatusOK)
}
