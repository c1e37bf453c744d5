package acquire

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamUploadWritesFile(t *testing.T) {
	dir := t.TempDir()
	name, err := StreamUpload(bytes.NewReader([]byte("video bytes")), dir, ".mp4")
	require.NoError(t, err)
	require.Equal(t, "source.mp4", name)

	data, err := os.ReadFile(filepath.Join(dir, "source.mp4"))
	require.NoError(t, err)
	require.Equal(t, "video bytes", string(data))
}

func TestStreamUploadRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	_, err := StreamUpload(bytes.NewReader(nil), dir, ".mp4")
	require.Error(t, err)
}

func TestTailBufferKeepsOnlyLastNLines(t *testing.T) {
	buf := newTailBuffer(2)
	buf.Write([]byte("line1\nline2\nline3\n"))
	require.Equal(t, "line2\nline3", buf.String())
}
