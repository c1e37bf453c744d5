// Package format turns a canonical transcript.json into the five
// downloadable artifacts: json, txt, srt, vtt, md.
package format

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nr2bj/transcribe-server/internal/apperr"
	"github.com/nr2bj/transcribe-server/internal/job"
	"github.com/nr2bj/transcribe-server/internal/transcript"
)

// Generator writes all five artifacts from a transcript, grounded on
// the teacher's translate.CuesToVTT/formatTimestamp for the VTT cue
// shape and handlers/subtitle.go's srtToVTT timestamp rewrite, inverted
// here to produce SRT from seconds instead of parsing it.
type Generator struct{}

// FormatAll reads transcriptPath and writes result.{txt,srt,vtt,md}
// plus transcript.json itself into outputDir.
func (Generator) FormatAll(transcriptPath, outputDir string) ([]job.Format, error) {
	t, err := transcript.Load(transcriptPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFormat, "load transcript", err)
	}

	written := make([]job.Format, 0, len(job.AllFormats))

	write := func(f job.Format, name string, data []byte) error {
		if err := os.WriteFile(filepath.Join(outputDir, name), data, 0644); err != nil {
			return apperr.Wrap(apperr.KindFormat, fmt.Sprintf("write %s artifact", f), err)
		}
		written = append(written, f)
		return nil
	}

	jsonPath := filepath.Join(outputDir, "transcript.json")
	if jsonPath != transcriptPath {
		if err := t.Save(jsonPath); err != nil {
			return nil, apperr.Wrap(apperr.KindFormat, "write json artifact", err)
		}
	}
	written = append(written, job.FormatJSON)

	if err := write(job.FormatTXT, "result.txt", []byte(toTXT(t))); err != nil {
		return nil, err
	}
	if err := write(job.FormatSRT, "result.srt", []byte(toSRT(t))); err != nil {
		return nil, err
	}
	if err := write(job.FormatVTT, "result.vtt", []byte(toVTT(t))); err != nil {
		return nil, err
	}
	if err := write(job.FormatMD, "result.md", []byte(toMD(t))); err != nil {
		return nil, err
	}

	return written, nil
}

// toTXT concatenates segment texts separated by single newlines, with a
// trailing newline.
func toTXT(t *transcript.Transcript) string {
	var sb strings.Builder
	for _, seg := range t.Segments {
		sb.WriteString(seg.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// toSRT numbers cues 1..N with HH:MM:SS,mmm timecodes, blank-line
// separated.
func toSRT(t *transcript.Transcript) string {
	var sb strings.Builder
	for i, seg := range t.Segments {
		fmt.Fprintf(&sb, "%d\n", i+1)
		fmt.Fprintf(&sb, "%s --> %s\n", formatSRTTimestamp(seg.Start), formatSRTTimestamp(seg.End))
		sb.WriteString(seg.Text)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// toVTT writes a WEBVTT header followed by cues with HH:MM:SS.mmm
// timecodes, grounded on the teacher's translate.CuesToVTT.
func toVTT(t *transcript.Transcript) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	for _, seg := range t.Segments {
		fmt.Fprintf(&sb, "%s --> %s\n", formatVTTTimestamp(seg.Start), formatVTTTimestamp(seg.End))
		sb.WriteString(seg.Text)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// toMD produces a level-1 title, a metadata block, and the full text as
// a single paragraph.
func toMD(t *transcript.Transcript) string {
	var sb strings.Builder
	sb.WriteString("# Transcript\n\n")
	fmt.Fprintf(&sb, "- Duration: %s\n", formatVTTTimestamp(t.Duration))
	fmt.Fprintf(&sb, "- Segments: %d\n\n", len(t.Segments))
	text := t.Text
	if text == "" {
		text = transcript.JoinText(t.Segments)
	}
	sb.WriteString(text)
	sb.WriteString("\n")
	return sb.String()
}

// formatVTTTimestamp renders seconds as HH:MM:SS.mmm, truncating to
// milliseconds rather than rounding.
func formatVTTTimestamp(seconds float64) string {
	totalMs := int64(seconds * 1000)
	h := totalMs / 3600000
	totalMs %= 3600000
	m := totalMs / 60000
	totalMs %= 60000
	s := totalMs / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// formatSRTTimestamp renders seconds as HH:MM:SS,mmm.
func formatSRTTimestamp(seconds float64) string {
	return strings.Replace(formatVTTTimestamp(seconds), ".", ",", 1)
}
