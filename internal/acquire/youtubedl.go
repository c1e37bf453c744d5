// Package acquire produces a local input/source.{ext} file for a job,
// either by fetching a URL with yt-dlp or by streaming an upload body
// to disk.
package acquire

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nr2bj/transcribe-server/internal/apperr"
)

// YTDLP fetches source_kind=url jobs via an external yt-dlp process.
// Grounded on original_source/modules/downloader.py's
// VideoDownloader._get_download_options: the format selector, retry
// count, socket timeout and max_filesize knobs there reappear as Go
// struct fields translated to yt-dlp CLI flags.
type YTDLP struct {
	FormatSelector string // e.g. "best[height<=720]"
	RetryCount     int
	TimeoutSeconds int
	MaxFilesizeMB  int
}

// NewYTDLP builds an acquirer with the reference implementation's
// defaults.
func NewYTDLP() *YTDLP {
	return &YTDLP{
		FormatSelector: "best[height<=720]",
		RetryCount:     3,
		TimeoutSeconds: 3600,
		MaxFilesizeMB:  1000,
	}
}

// AcquireURL downloads sourceURL into destDir as source.{ext}, resuming
// a partial download if one already exists under that name from a
// previous crashed attempt (yt-dlp's --continue behavior, on by
// default). Returns the written filename.
func (y *YTDLP) AcquireURL(ctx context.Context, sourceURL, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", apperr.Wrap(apperr.KindDownload, "create input directory", err)
	}

	outputTemplate := filepath.Join(destDir, "source.%(ext)s")
	args := []string{
		"--format", y.FormatSelector,
		"--output", outputTemplate,
		"--retries", strconv.Itoa(y.RetryCount),
		"--socket-timeout", strconv.Itoa(y.TimeoutSeconds),
		"--max-filesize", fmt.Sprintf("%dM", y.MaxFilesizeMB),
		"--no-playlist",
		"--no-write-subs",
		"--no-write-auto-subs",
		"--continue",
		"--no-progress",
		sourceURL,
	}

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	stderr := newTailBuffer(20)
	cmd.Stdout = nil
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return "", apperr.New(apperr.KindDownload, "yt-dlp failed").WithDetails(stderr.String())
	}

	name, err := findSourceFile(destDir)
	if err != nil {
		return "", apperr.Wrap(apperr.KindDownload, "locate downloaded file", err)
	}
	return name, nil
}

func findSourceFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "source.") {
			return e.Name(), nil
		}
	}
	return "", fmt.Errorf("no source.* file produced in %s", dir)
}

// tailBuffer keeps only the last N non-empty lines written to it,
// matching the teacher's pattern of attaching a bounded stderr tail to
// wrapped subprocess errors (internal/subtitle/whisper, ffmpeg/hwaccel.go).
type tailBuffer struct {
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(p)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t.lines = append(t.lines, line)
		if len(t.lines) > t.max {
			t.lines = t.lines[1:]
		}
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}
