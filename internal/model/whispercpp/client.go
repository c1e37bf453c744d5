// Package whispercpp adapts a whisper.cpp HTTP server (whisper-server)
// into the model.Backend interface.
package whispercpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nr2bj/transcribe-server/internal/apperr"
	"github.com/nr2bj/transcribe-server/internal/transcript"
)

// Client talks to a whisper.cpp HTTP server's /inference endpoint.
// Grounded on the teacher's WhisperCppClient.Transcribe/sendToServer:
// same multipart upload, same 30-minute client timeout. Unlike the
// teacher, this returns the canonical segment/Transcript shape instead
// of raw VTT text, since formatting is owned by internal/format here.
type Client struct {
	baseURL    string
	httpClient *http.Client
	loaded     bool
}

// New creates a Client for the whisper.cpp server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
}

// Load verifies the server is reachable; it does not check which model
// the server holds, and modelName is not sent. whisper-server itself
// loads its model at process start from a command-line flag, so Load
// here is a readiness probe rather than a remote load call.
func (c *Client) Load(ctx context.Context, modelName string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return apperr.Wrap(apperr.KindModelUnavailable, "build health request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindModelUnavailable, "whisper server unreachable", err)
	}
	resp.Body.Close()
	c.loaded = true
	return nil
}

// Unload has nothing to release on this side: the model lives in the
// whisper-server process's VRAM, not this client's. It only clears the
// readiness flag; the Manager calls Load, which probes the server
// again, before the next Transcribe.
func (c *Client) Unload(ctx context.Context) error {
	c.loaded = false
	return nil
}

// inferenceSegment is one row of whisper-server's JSON response format.
type inferenceSegment struct {
	Text      string `json:"text"`
	Timestamps struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"timestamps"`
	Offsets struct {
		From int64 `json:"from"`
		To   int64 `json:"to"`
	} `json:"offsets"`
}

type inferenceResponse struct {
	Text     string             `json:"text"`
	Segments []inferenceSegment `json:"segments"`
}

// Transcribe posts the audio file to whisper-server's /inference
// endpoint with response_format=json and translates its segments into
// the canonical transcript schema. When translate is set, the
// whisper-server decoding task itself is constrained to English output
// (whisper-server's translate field), not just the response shape.
func (c *Client) Transcribe(ctx context.Context, audioPath string, translate bool, progress func(int)) (*transcript.Transcript, error) {
	if progress != nil {
		progress(0)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	audioFile, err := os.Open(audioPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTranscription, "open audio", err)
	}
	defer audioFile.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTranscription, "create form file", err)
	}
	if _, err := io.Copy(part, audioFile); err != nil {
		return nil, apperr.Wrap(apperr.KindTranscription, "copy audio data", err)
	}
	_ = writer.WriteField("response_format", "json")
	_ = writer.WriteField("temperature", "0.0")
	if translate {
		_ = writer.WriteField("translate", "true")
	}
	writer.Close()

	if progress != nil {
		progress(10)
	}

	url := c.baseURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTranscription, "build inference request", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTranscription, "whisper server request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTranscription, "read whisper server response", err)
	}

	if resp.StatusCode != http.StatusOK {
		if isOOMError(string(body)) {
			return nil, apperr.New(apperr.KindModelUnavailable, "whisper server out of memory").WithDetails(string(body))
		}
		return nil, apperr.New(apperr.KindTranscription,
			fmt.Sprintf("whisper server error (status %d)", resp.StatusCode)).WithDetails(string(body))
	}

	if progress != nil {
		progress(90)
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindTranscription, "parse whisper server response", err)
	}

	t := &transcript.Transcript{Text: strings.TrimSpace(parsed.Text)}
	for i, seg := range parsed.Segments {
		t.Segments = append(t.Segments, transcript.Segment{
			ID:    i,
			Start: float64(seg.Offsets.From) / 1000.0,
			End:   float64(seg.Offsets.To) / 1000.0,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	if len(t.Segments) > 0 {
		t.Duration = t.Segments[len(t.Segments)-1].End
	}

	if progress != nil {
		progress(100)
	}
	return t, nil
}

// isOOMError detects GPU out-of-memory responses, grounded on the
// teacher's whisper.isOOMError.
func isOOMError(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "out of memory") ||
		strings.Contains(lower, "allocation") ||
		strings.Contains(lower, "oom") ||
		(strings.Contains(lower, "memory") && strings.Contains(lower, "failed")) ||
		(strings.Contains(lower, "sycl") && strings.Contains(lower, "error"))
}
