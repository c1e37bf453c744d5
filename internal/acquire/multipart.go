package acquire

import (
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/nr2bj/transcribe-server/internal/apperr"
)

// fieldValueLimit caps how much of a non-file form field this reads
// into memory. url/webhook_url/response_format are all short; anything
// larger is almost certainly a malformed request rather than a
// legitimate field.
const fieldValueLimit = 1 << 20

// StreamMultipartUpload reads a multipart/form-data request part by
// part via r.MultipartReader, so the uploaded file is copied straight
// to destDir without ParseMultipartForm first materializing the whole
// body in memory. The part named "file" (if any) is streamed to disk
// through StreamUpload and its on-disk filename returned; every other
// part is treated as a short form field and collected into the
// returned map. If maxBytes is nonzero, r.Body is wrapped in an
// http.MaxBytesReader first — pass 0 when the caller's middleware
// already enforces a body cap.
func StreamMultipartUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, destDir string) (filename string, fields map[string]string, err error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindValidation, "invalid multipart form", err)
	}

	fields = map[string]string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, partReadErr(err)
		}

		if part.FormName() == "file" {
			ext := filepath.Ext(part.FileName())
			if ext == "" {
				ext = ".bin"
			}
			name, err := StreamUpload(part, destDir, ext)
			part.Close()
			if err != nil {
				return "", nil, err
			}
			filename = name
			continue
		}

		value, err := readField(part)
		part.Close()
		if err != nil {
			return "", nil, err
		}
		fields[part.FormName()] = value
	}

	return filename, fields, nil
}

func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, fieldValueLimit))
	if err != nil {
		return "", partReadErr(err)
	}
	return string(data), nil
}

func partReadErr(err error) error {
	if strings.Contains(err.Error(), "http: request body too large") {
		return apperr.New(apperr.KindPayloadTooLarge, "upload exceeds configured maximum")
	}
	return apperr.Wrap(apperr.KindValidation, "invalid multipart form", err)
}
