// Package extract converts an acquired source file into the canonical
// audio form the model expects: single channel, 16000Hz, 16-bit signed
// PCM little-endian.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/nr2bj/transcribe-server/internal/apperr"
)

// FFmpeg converts source media to canonical PCM via an ffmpeg
// subprocess, grounded on the teacher's whisper.extractAudio /
// openai.extractAudioMP3 (same fixed argument set, CombinedOutput
// error capture), then reads back the resulting duration via ffprobe,
// grounded on internal/ffmpeg/probe.go's Probe.
type FFmpeg struct{}

// Extract writes 16kHz mono PCM16LE to destPath and returns its
// duration in seconds.
func (FFmpeg) Extract(ctx context.Context, sourcePath, destPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-i", sourcePath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		destPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, apperr.New(apperr.KindExtract, "ffmpeg extraction failed").WithDetails(string(output))
	}

	duration, err := probeDuration(ctx, destPath)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindExtract, "probe extracted audio duration", err)
	}
	return duration, nil
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeResult struct {
	Format probeFormat `json:"format"`
}

// probeDuration shells out to ffprobe -show_format, trimmed from the
// teacher's fuller internal/ffmpeg.Probe to just the duration field
// this pipeline needs.
func probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeDuration(output)
}

func parseProbeDuration(output []byte) (float64, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", result.Format.Duration, err)
	}
	return duration, nil
}
