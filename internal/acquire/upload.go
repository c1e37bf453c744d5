package acquire

import (
	"io"
	"os"
	"path/filepath"

	"github.com/nr2bj/transcribe-server/internal/apperr"
)

// StreamUpload copies src directly to destDir/source.{ext} without
// buffering the whole payload in memory, grounded on the teacher's
// middleware.MaxBodySize (http.MaxBytesReader) generalized from a JSON
// body cap to a streaming-to-disk copy. The caller is responsible for
// wrapping src in an http.MaxBytesReader before calling this so that
// exceeding the configured maximum upload size fails the copy with the
// underlying "http: request body too large" error rather than writing
// a truncated file.
func StreamUpload(src io.Reader, destDir, ext string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "create input directory", err)
	}

	filename := "source" + ext
	destPath := filepath.Join(destDir, filename)

	f, err := os.Create(destPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "create upload destination", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		_ = os.Remove(destPath)
		if err.Error() == "http: request body too large" {
			return "", apperr.New(apperr.KindPayloadTooLarge, "upload exceeds maximum size")
		}
		return "", apperr.Wrap(apperr.KindDownload, "stream upload to disk", err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "stat uploaded file", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(destPath)
		return "", apperr.New(apperr.KindValidation, "uploaded file is empty")
	}

	return filename, nil
}
