package job

import (
	"context"
	"log"
	"os"
	"path/filepath"
)

// Acquirer produces a local source file for a URL-kind job. Upload-kind
// jobs are staged directly to disk by the Admission API (§4.3) before
// the job is enqueued, so Acquirer is only consulted for URLs.
type Acquirer interface {
	AcquireURL(ctx context.Context, sourceURL, destDir string) (filename string, err error)
}

// Extractor converts the acquired source to canonical 16kHz mono PCM
// and reports its duration in seconds.
type Extractor interface {
	Extract(ctx context.Context, sourcePath, destPath string) (durationSeconds float64, err error)
}

// Transcriber runs the canonical audio through the model and writes
// transcript.json. progress receives optional 0-100 updates. translate
// constrains decoding to English output, per /v1/audio/translations.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, transcriptPath string, translate bool, progress func(int)) error
}

// Formatter turns transcript.json into the advertised artifacts and
// returns which ones it produced.
type Formatter interface {
	FormatAll(transcriptPath, outputDir string) ([]Format, error)
}

// Notifier delivers terminal-state webhooks. Calls are best-effort and
// must not block the caller for longer than the notifier's own budget.
type Notifier interface {
	NotifyCompleted(webhookURL, jobID string, downloadURLs map[string]string)
	NotifyFailed(webhookURL, jobID string, errType, errMessage string)
}

// Processor is the single worker loop: it drains Queue and drives each
// job through downloading -> extracting -> transcribing -> formatting,
// committing every status transition before doing that stage's work.
// Grounded on the teacher's JobQueue.worker/processJob in
// internal/job/queue.go, generalized from a single dispatched handler
// into the fixed four-stage pipeline.
type Processor struct {
	Store      *Store
	Queue      *Queue
	DataDir    string
	PublicBase string // base URL used to build webhook download_urls

	Acquirer    Acquirer
	Extractor   Extractor
	Transcriber Transcriber
	Formatter   Formatter
	Notifier    Notifier
	Completions *CompletionRegistry

	ctx    context.Context
	cancel context.CancelFunc
}

// NewProcessor wires a processor. Call Run in its own goroutine.
func NewProcessor(store *Store, queue *Queue, dataDir, publicBase string,
	acquirer Acquirer, extractor Extractor, transcriber Transcriber, formatter Formatter, notifier Notifier,
	completions *CompletionRegistry) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		Store: store, Queue: queue, DataDir: dataDir, PublicBase: publicBase,
		Acquirer: acquirer, Extractor: extractor, Transcriber: transcriber,
		Formatter: formatter, Notifier: notifier, Completions: completions,
		ctx: ctx, cancel: cancel,
	}
}

// Stop signals the worker loop to exit after its current job.
func (p *Processor) Stop() { p.cancel() }

// Run drains the queue until Stop is called. Intended to be started as
// a single dedicated goroutine — exactly one Processor may run against
// a given Store.
func (p *Processor) Run() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case jobID := <-p.Queue.Receive():
			p.processJob(jobID)
		}
	}
}

// ResumeOnStartup re-queues every non-terminal job found in the store.
// A job whose on-disk directory is missing is marked
// failed(stale_storage) instead of re-queued, per §4.8. Job ids are
// sent straight onto the queue channel without blocking: once the queue
// is full, each remaining job is logged and left in its current status
// until the next restart.
func (p *Processor) ResumeOnStartup() {
	for _, st := range []Status{StatusQueued, StatusDownloading, StatusExtracting, StatusTranscribing, StatusFormatting} {
		jobs, err := p.Store.List(ListFilter{Status: st})
		if err != nil {
			log.Printf("[job] resume: list %s failed: %v", st, err)
			continue
		}
		for _, j := range jobs {
			if _, err := os.Stat(p.jobDir(j.ID)); os.IsNotExist(err) {
				log.Printf("[job] resume: %s directory missing, marking stale_storage", j.ID)
				_ = p.Store.MarkFailed(j.ID, &Error{Type: "stale_storage", Message: "job directory missing on restart"})
				continue
			}
			select {
			case p.Queue.pending <- j.ID:
				log.Printf("[job] resumed %s from %s", j.ID, j.Status)
			default:
				log.Printf("[job] resume queue full, %s will not be retried until next restart", j.ID)
			}
		}
	}
}

func (p *Processor) jobDir(id string) string {
	return filepath.Join(p.DataDir, "jobs", id)
}

// processJob drives one job through whichever stages remain, starting
// from its currently-committed status. This is what makes resumption
// safe: a job found mid-extracting simply falls through the earlier
// if-blocks and continues from runExtract.
func (p *Processor) processJob(jobID string) {
	j, err := p.Store.Get(jobID)
	if err != nil {
		log.Printf("[job] %s: failed to load: %v", jobID, err)
		return
	}
	if j.Status.IsTerminal() {
		// Restart race, or the job was deleted and re-enqueued under a
		// reused id (never happens in practice, but keep the guard).
		return
	}

	dir := p.jobDir(j.ID)
	ctx := p.ctx

	if j.Status == StatusQueued {
		if !p.advance(j, StatusDownloading, 0) {
			return
		}
	}

	if j.Status == StatusDownloading {
		if err := p.runDownload(ctx, j, dir); err != nil {
			p.fail(j, err)
			return
		}
		if !p.advance(j, StatusExtracting, 0) {
			return
		}
	}

	if j.Status == StatusExtracting {
		if err := p.runExtract(ctx, j, dir); err != nil {
			p.fail(j, err)
			return
		}
		if !p.advance(j, StatusTranscribing, 0) {
			return
		}
	}

	if j.Status == StatusTranscribing {
		// A job resumed here without a usable audio.wav re-extracts it
		// first, per the resume decision in SPEC_FULL.md §4.8.
		if info, err := os.Stat(filepath.Join(dir, "input", "audio.wav")); err != nil || info.Size() == 0 {
			if err := p.runExtract(ctx, j, dir); err != nil {
				p.fail(j, err)
				return
			}
		}
		if err := p.runTranscribe(ctx, j, dir); err != nil {
			p.fail(j, err)
			return
		}
		if !p.advance(j, StatusFormatting, 0) {
			return
		}
	}

	if j.Status == StatusFormatting {
		if err := p.runFormat(ctx, j, dir); err != nil {
			p.fail(j, err)
			return
		}
	}
}

// advance commits a stage transition before work begins, logging and
// aborting the job run on an illegal-transition guard trip (treated as
// a bug, per §7).
func (p *Processor) advance(j *Job, to Status, progress int) bool {
	if err := p.Store.UpdateProgress(j.ID, to, string(to), progress); err != nil {
		log.Printf("[job] %s: illegal_transition %s->%s: %v", j.ID, j.Status, to, err)
		return false
	}
	j.Status = to
	return true
}

func (p *Processor) fail(j *Job, err error) {
	jobErr := classify(err)
	log.Printf("[job] %s: failed: %v", j.ID, jobErr)
	appendProcessLog(p.jobDir(j.ID), "FAILED "+jobErr.Type+": "+jobErr.Message)
	_ = p.Store.MarkFailed(j.ID, jobErr)
	if j.WebhookURL != "" {
		go p.Notifier.NotifyFailed(j.WebhookURL, j.ID, jobErr.Type, jobErr.Message)
	}
	if p.Completions != nil {
		p.Completions.Signal(j.ID)
	}
}
