package job

import (
	"crypto/rand"
	"time"
)

// Kind is the origin of a job's source media.
type Kind string

const (
	KindURL    Kind = "url"
	KindUpload Kind = "upload"
)

// Status is one node of the job lifecycle DAG (§3).
type Status string

const (
	StatusQueued       Status = "queued"
	StatusDownloading  Status = "downloading"
	StatusExtracting   Status = "extracting"
	StatusTranscribing Status = "transcribing"
	StatusFormatting   Status = "formatting"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// legalNext enumerates, for each non-terminal status, the status it may
// advance to. failed is reachable from every non-terminal status and is
// checked separately in CanTransition.
var legalNext = map[Status]Status{
	StatusQueued:       StatusDownloading,
	StatusDownloading:  StatusExtracting,
	StatusExtracting:   StatusTranscribing,
	StatusTranscribing: StatusFormatting,
	StatusFormatting:   StatusCompleted,
}

// IsTerminal reports whether a status is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal forward move in
// the DAG: the single step named in legalNext, or failed from any
// non-terminal status.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return legalNext[from] == to
}

// Format is one of the five output serializations.
type Format string

const (
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatMD   Format = "md"
)

// AllFormats lists every format the Formatter produces, in a stable
// order used for download_urls and directory-content checks.
var AllFormats = []Format{FormatJSON, FormatTXT, FormatSRT, FormatVTT, FormatMD}

// Error is the structured error attached to a failed job.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Job is the unit of work tracked by the Job Store.
type Job struct {
	ID         string
	SourceKind Kind
	SourceRef  string
	WebhookURL string
	Translate  bool // constrain decoding to English output, per /v1/audio/translations

	Status   Status
	Stage    string
	Progress int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
	ExpiresAt   time.Time

	Error           *Error
	DurationSeconds *float64
	ResultFormats   []Format
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const idSuffixLen = 6

// NewID generates a job id of the form JOB-XXXXXX, six uniformly random
// uppercase alphanumerics.
func NewID() (string, error) {
	b := make([]byte, idSuffixLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	suffix := make([]byte, idSuffixLen)
	for i, v := range b {
		suffix[i] = idAlphabet[int(v)%len(idAlphabet)]
	}
	return "JOB-" + string(suffix), nil
}
