package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nr2bj/transcribe-server/internal/apperr"
)

func classify(err error) *Error {
	e := apperr.As(err)
	return &Error{Type: string(e.Kind), Message: e.Message, Details: e.Details}
}

// appendProcessLog appends a timestamped line to the job's
// logs/process.log, best-effort — a logging failure must never affect
// the job's terminal status (§7).
func appendProcessLog(dir, line string) {
	f, err := os.OpenFile(filepath.Join(dir, "logs", "process.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s\n", time.Now().Format(time.RFC3339), line)
}

// runDownload produces input/source.{ext}. For upload-kind jobs the
// file was already streamed to disk by the Admission API before the
// job was enqueued (§4.3); here that is verified rather than redone.
// For url-kind jobs the Acquirer is invoked, and is safe to invoke
// again on resume — yt-dlp resumes partial downloads by filename.
func (p *Processor) runDownload(ctx context.Context, j *Job, dir string) error {
	inputDir := filepath.Join(dir, "input")
	appendProcessLog(dir, "stage=downloading start")

	switch j.SourceKind {
	case KindUpload:
		if _, err := findSourceFile(inputDir); err != nil {
			return apperr.New(apperr.KindDownload, "uploaded source file missing")
		}
	case KindURL:
		if _, err := p.Acquirer.AcquireURL(ctx, j.SourceRef, inputDir); err != nil {
			return apperr.Wrap(apperr.KindDownload, "download failed", err)
		}
	default:
		return apperr.New(apperr.KindValidation, "unknown source kind")
	}

	appendProcessLog(dir, "stage=downloading done")
	return p.Store.SetProgress(j.ID, StatusDownloading, 100)
}

func findSourceFile(inputDir string) (string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && len(name) > len("source.") && name[:len("source.")] == "source." {
			return filepath.Join(inputDir, name), nil
		}
	}
	return "", fmt.Errorf("no source.* file in %s", inputDir)
}

// runExtract converts the source to 16kHz mono PCM. If audio.wav is
// already present and non-empty (left by an earlier run of this job),
// extraction is skipped and duration_seconds keeps whatever value was
// recorded before. processJob also calls this for a job resumed in
// transcribing whose audio.wav is missing or empty, per the resume
// decision in SPEC_FULL.md §4.8.
func (p *Processor) runExtract(ctx context.Context, j *Job, dir string) error {
	appendProcessLog(dir, "stage=extracting start")
	audioPath := filepath.Join(dir, "input", "audio.wav")

	if info, err := os.Stat(audioPath); err == nil && info.Size() > 0 {
		appendProcessLog(dir, "stage=extracting skipped, audio.wav already present")
		return p.Store.SetProgress(j.ID, StatusExtracting, 100)
	}

	sourcePath, err := findSourceFile(filepath.Join(dir, "input"))
	if err != nil {
		return apperr.Wrap(apperr.KindExtract, "locate source file", err)
	}

	duration, err := p.Extractor.Extract(ctx, sourcePath, audioPath)
	if err != nil {
		return apperr.Wrap(apperr.KindExtract, "audio extraction failed", err)
	}
	if err := p.Store.SetDuration(j.ID, duration); err != nil {
		return err
	}

	appendProcessLog(dir, "stage=extracting done")
	return p.Store.SetProgress(j.ID, StatusExtracting, 100)
}

func (p *Processor) runTranscribe(ctx context.Context, j *Job, dir string) error {
	appendProcessLog(dir, "stage=transcribing start")
	audioPath := filepath.Join(dir, "input", "audio.wav")
	transcriptPath := filepath.Join(dir, "output", "transcript.json")

	progress := func(pct int) {
		_ = p.Store.SetProgress(j.ID, StatusTranscribing, pct)
	}
	if err := p.Transcriber.Transcribe(ctx, audioPath, transcriptPath, j.Translate, progress); err != nil {
		return apperr.Wrap(apperr.KindTranscription, "transcription failed", err)
	}

	appendProcessLog(dir, "stage=transcribing done")
	return p.Store.SetProgress(j.ID, StatusTranscribing, 100)
}

func (p *Processor) runFormat(ctx context.Context, j *Job, dir string) error {
	appendProcessLog(dir, "stage=formatting start")
	transcriptPath := filepath.Join(dir, "output", "transcript.json")
	outputDir := filepath.Join(dir, "output")

	formats, err := p.Formatter.FormatAll(transcriptPath, outputDir)
	if err != nil {
		return apperr.Wrap(apperr.KindFormat, "formatting failed", err)
	}

	_ = os.Remove(filepath.Join(dir, "input", "audio.wav"))

	if err := p.Store.MarkCompleted(j.ID, formats); err != nil {
		return err
	}
	appendProcessLog(dir, "stage=formatting done, job completed")

	if j.WebhookURL != "" {
		urls := map[string]string{}
		for _, f := range formats {
			urls[string(f)] = fmt.Sprintf("%s/api/jobs/%s/download?format=%s", p.PublicBase, j.ID, f)
		}
		go p.Notifier.NotifyCompleted(j.WebhookURL, j.ID, urls)
	}
	if p.Completions != nil {
		p.Completions.Signal(j.ID)
	}
	return nil
}
