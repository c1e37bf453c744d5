package handlers

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nr2bj/transcribe-server/internal/acquire"
	"github.com/nr2bj/transcribe-server/internal/apperr"
	"github.com/nr2bj/transcribe-server/internal/job"
	"github.com/nr2bj/transcribe-server/internal/transcript"
)

// OpenAIHandler implements the OpenAI-compatible inline surface of
// §4.9: transcriptions, translations, and the fixed model list. Both
// endpoints share the native job-creation and queue path, then block
// on the job's completion signal bounded by the request's own
// deadline, rather than running the pipeline in a separate goroutine
// outside of Go's request-scoped cancellation — generalized from the
// teacher's per-job context.CancelFunc map into the
// job.CompletionRegistry one-shot channel.
type OpenAIHandler struct {
	Store       *job.Store
	Queue       *job.Queue
	Completions *job.CompletionRegistry
	DataDir     string
	RetentionDays int
}

func NewOpenAIHandler(store *job.Store, queue *job.Queue, completions *job.CompletionRegistry, dataDir string, retentionDays int) *OpenAIHandler {
	return &OpenAIHandler{Store: store, Queue: queue, Completions: completions, DataDir: dataDir, RetentionDays: retentionDays}
}

func (h *OpenAIHandler) jobDir(id string) string {
	return filepath.Join(h.DataDir, "jobs", id)
}

// Models implements GET /v1/audio/models: a fixed list, since this
// server always transcribes with whatever WHISPER_MODEL is configured
// regardless of the `model` field a client sends.
func (h *OpenAIHandler) Models(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{
		"object": "list",
		"data": []map[string]interface{}{
			{"id": "whisper-1", "object": "model", "owned_by": "local"},
		},
	}, http.StatusOK)
}

// Transcriptions implements POST /v1/audio/transcriptions.
func (h *OpenAIHandler) Transcriptions(w http.ResponseWriter, r *http.Request) {
	h.runInline(w, r, false)
}

// Translations implements POST /v1/audio/translations: identical to
// Transcriptions except the job's translate flag constrains the Model
// Manager's decoding task to English output, not just the response
// shape.
func (h *OpenAIHandler) Translations(w http.ResponseWriter, r *http.Request) {
	h.runInline(w, r, true)
}

// maxInlineUploadBytes caps a /v1/audio/* request body. The native
// /api/jobs route gets its cap from config via middleware.MaxBodySize;
// the OpenAI-compatible surface has no equivalent config knob, so it
// carries a fixed generous cap instead.
const maxInlineUploadBytes = 100 << 20

func (h *OpenAIHandler) runInline(w http.ResponseWriter, r *http.Request, translate bool) {
	id, err := job.NewID()
	if err != nil {
		writeOpenAIErr(w, apperr.Wrap(apperr.KindInternal, "generate job id", err), 0)
		return
	}
	dir := h.jobDir(id)
	for _, sub := range []string{"input", "output", "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			writeOpenAIErr(w, apperr.Wrap(apperr.KindInternal, "create job directories", err), 0)
			return
		}
	}

	filename, fields, err := acquire.StreamMultipartUpload(w, r, maxInlineUploadBytes, filepath.Join(dir, "input"))
	if err != nil {
		os.RemoveAll(dir)
		writeOpenAIErr(w, err, 0)
		return
	}
	if filename == "" {
		os.RemoveAll(dir)
		writeOpenAIErr(w, apperr.New(apperr.KindValidation, "file is required"), http.StatusBadRequest)
		return
	}
	responseFormat := fields["response_format"]
	if responseFormat == "" {
		responseFormat = "json"
	}

	now := time.Now()
	j := &job.Job{
		ID: id, SourceKind: job.KindUpload, SourceRef: filepath.Join(dir, "input", filename), Translate: translate,
		Status: job.StatusQueued, Stage: string(job.StatusQueued),
		CreatedAt: now, UpdatedAt: now,
		ExpiresAt: now.Add(time.Duration(h.RetentionDays) * 24 * time.Hour),
	}
	if err := h.Store.Insert(j); err != nil {
		os.RemoveAll(dir)
		writeOpenAIErr(w, err, 0)
		return
	}

	done := h.Completions.Register(id)
	if err := h.Queue.Enqueue(id); err != nil {
		os.RemoveAll(dir)
		_ = h.Store.Delete(id)
		writeOpenAIErr(w, apperr.New(apperr.KindQueueFull, "queue is at capacity, try again later"), http.StatusTooManyRequests)
		return
	}

	ctx := r.Context()
	select {
	case <-done:
	case <-ctx.Done():
		writeOpenAIErr(w, apperr.New(apperr.KindTimeout, "request deadline exceeded while waiting for transcription"), http.StatusGatewayTimeout)
		return
	}

	final, err := h.Store.Get(id)
	if err != nil {
		writeOpenAIErr(w, err, 0)
		return
	}
	if final.Status != job.StatusCompleted {
		var jobErr *apperr.Error
		if final.Error != nil {
			jobErr = apperr.New(apperr.Kind(final.Error.Type), final.Error.Message)
		} else {
			jobErr = apperr.New(apperr.KindInternal, "transcription failed")
		}
		writeOpenAIErr(w, jobErr, 0)
		return
	}

	h.writeInlineResult(w, dir, responseFormat)
}

func (h *OpenAIHandler) writeInlineResult(w http.ResponseWriter, dir, responseFormat string) {
	transcriptPath := filepath.Join(dir, "output", "transcript.json")

	switch responseFormat {
	case "text":
		t, err := transcript.Load(transcriptPath)
		if err != nil {
			writeOpenAIErr(w, apperr.Wrap(apperr.KindFormat, "load transcript", err), 0)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(strings.TrimRight(t.Text, "\n") + "\n"))
	case "srt":
		h.serveArtifact(w, dir, "result.srt", "application/x-subrip")
	case "vtt":
		h.serveArtifact(w, dir, "result.vtt", "text/vtt")
	case "verbose_json":
		h.serveArtifact(w, dir, "transcript.json", "application/json")
	default: // "json"
		t, err := transcript.Load(transcriptPath)
		if err != nil {
			writeOpenAIErr(w, apperr.Wrap(apperr.KindFormat, "load transcript", err), 0)
			return
		}
		jsonResponse(w, map[string]string{"text": t.Text}, http.StatusOK)
	}
}

func (h *OpenAIHandler) serveArtifact(w http.ResponseWriter, dir, name, contentType string) {
	f, err := os.Open(filepath.Join(dir, "output", name))
	if err != nil {
		writeOpenAIErr(w, apperr.Wrap(apperr.KindFormat, "artifact missing", err), 0)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", contentType)
	io.Copy(w, f)
}
