package whispercpp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientTranscribeParsesSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/inference", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "hello world",
			"segments": [
				{"text": "hello", "offsets": {"from": 0, "to": 1000}},
				{"text": "world", "offsets": {"from": 1000, "to": 2500}}
			]
		}`))
	}))
	defer server.Close()

	c := New(server.URL)
	tmp := t.TempDir() + "/audio.wav"
	require.NoError(t, os.WriteFile(tmp, []byte("pcm"), 0644))

	tr, err := c.Transcribe(context.Background(), tmp, false, nil)
	require.NoError(t, err)
	require.Equal(t, "hello world", tr.Text)
	require.Len(t, tr.Segments, 2)
	require.Equal(t, 0.0, tr.Segments[0].Start)
	require.Equal(t, 1.0, tr.Segments[0].End)
	require.Equal(t, 2.5, tr.Segments[1].End)
	require.Equal(t, 2.5, tr.Duration)
}

func TestClientTranscribeOOMClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("CUDA error: out of memory"))
	}))
	defer server.Close()

	c := New(server.URL)
	tmp := t.TempDir() + "/audio.wav"
	require.NoError(t, os.WriteFile(tmp, []byte("pcm"), 0644))

	_, err := c.Transcribe(context.Background(), tmp, false, nil)
	require.Error(t, err)
}
