package job

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAcquirer struct{ calls int }

func (f *fakeAcquirer) AcquireURL(ctx context.Context, sourceURL, destDir string) (string, error) {
	f.calls++
	return "source.mp4", os.WriteFile(filepath.Join(destDir, "source.mp4"), []byte("video"), 0644)
}

type fakeExtractor struct{ calls int }

func (f *fakeExtractor) Extract(ctx context.Context, sourcePath, destPath string) (float64, error) {
	f.calls++
	return 12.5, os.WriteFile(destPath, []byte("pcm"), 0644)
}

type fakeTranscriber struct {
	calls         int
	lastTranslate bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, transcriptPath string, translate bool, progress func(int)) error {
	f.calls++
	f.lastTranslate = translate
	progress(50)
	return os.WriteFile(transcriptPath, []byte(`{"segments":[]}`), 0644)
}

type fakeFormatter struct{ calls int }

func (f *fakeFormatter) FormatAll(transcriptPath, outputDir string) ([]Format, error) {
	f.calls++
	return AllFormats, nil
}

type fakeNotifier struct {
	completed int
	failed    int
}

func (f *fakeNotifier) NotifyCompleted(webhookURL, jobID string, downloadURLs map[string]string) {
	f.completed++
}
func (f *fakeNotifier) NotifyFailed(webhookURL, jobID, errType, errMessage string) {
	f.failed++
}

func newTestProcessor(t *testing.T) (*Processor, *Store, string) {
	t.Helper()
	s := newTestStore(t)
	dataDir := t.TempDir()
	q := NewQueue(4)
	p := NewProcessor(s, q, dataDir, "http://localhost:8080",
		&fakeAcquirer{}, &fakeExtractor{}, &fakeTranscriber{}, &fakeFormatter{}, &fakeNotifier{},
		NewCompletionRegistry())
	return p, s, dataDir
}

func makeJobDirs(t *testing.T, dataDir, id string) {
	t.Helper()
	dir := filepath.Join(dataDir, "jobs", id)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "input"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "output"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0755))
}

func TestProcessorHappyPathURL(t *testing.T) {
	p, s, dataDir := newTestProcessor(t)
	j := newTestJob("JOB-AAAAAA")
	j.SourceKind = KindURL
	j.SourceRef = "https://example.com/v.mp4"
	require.NoError(t, s.Insert(j))
	makeJobDirs(t, dataDir, j.ID)

	p.processJob(j.ID)

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.ElementsMatch(t, AllFormats, got.ResultFormats)

	acquirer := p.Acquirer.(*fakeAcquirer)
	require.Equal(t, 1, acquirer.calls, "the download stage must run exactly once per job")
}

func TestProcessorThreadsTranslateFlagToTranscriber(t *testing.T) {
	p, s, dataDir := newTestProcessor(t)
	j := newTestJob("JOB-TTTTTT")
	j.Translate = true
	require.NoError(t, s.Insert(j))
	makeJobDirs(t, dataDir, j.ID)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "jobs", j.ID, "input", "source.mp4"), []byte("video"), 0644))

	p.processJob(j.ID)

	transcriber := p.Transcriber.(*fakeTranscriber)
	require.True(t, transcriber.lastTranslate, "translate flag on the job must reach the transcriber")
}

func TestProcessorHappyPathUpload(t *testing.T) {
	p, s, dataDir := newTestProcessor(t)
	j := newTestJob("JOB-BBBBBB")
	require.NoError(t, s.Insert(j))
	makeJobDirs(t, dataDir, j.ID)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "jobs", j.ID, "input", "source.mp4"), []byte("video"), 0644))

	p.processJob(j.ID)

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestProcessorResumesFromExtracting(t *testing.T) {
	p, s, dataDir := newTestProcessor(t)
	j := newTestJob("JOB-CCCCCC")
	require.NoError(t, s.Insert(j))
	makeJobDirs(t, dataDir, j.ID)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "jobs", j.ID, "input", "source.mp4"), []byte("video"), 0644))
	require.NoError(t, s.UpdateProgress(j.ID, StatusDownloading, string(StatusDownloading), 100))
	require.NoError(t, s.UpdateProgress(j.ID, StatusExtracting, string(StatusExtracting), 0))

	extractor := p.Extractor.(*fakeExtractor)
	acquirer := p.Acquirer.(*fakeAcquirer)

	p.processJob(j.ID)

	require.Equal(t, 0, acquirer.calls, "acquirer should not be invoked for an upload-kind job resuming past download")
	require.Equal(t, 1, extractor.calls)

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestProcessorSkipsExtractionWhenAudioAlreadyPresent(t *testing.T) {
	p, s, dataDir := newTestProcessor(t)
	j := newTestJob("JOB-DDDDDD")
	require.NoError(t, s.Insert(j))
	makeJobDirs(t, dataDir, j.ID)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "jobs", j.ID, "input", "source.mp4"), []byte("video"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "jobs", j.ID, "input", "audio.wav"), []byte("pcm-already-here"), 0644))
	require.NoError(t, s.UpdateProgress(j.ID, StatusDownloading, string(StatusDownloading), 100))
	require.NoError(t, s.UpdateProgress(j.ID, StatusExtracting, string(StatusExtracting), 0))

	p.processJob(j.ID)

	extractor := p.Extractor.(*fakeExtractor)
	require.Equal(t, 0, extractor.calls, "extraction must be skipped when audio.wav is already present on resume")
}

func TestProcessorFailurePropagatesToStore(t *testing.T) {
	p, s, dataDir := newTestProcessor(t)
	j := newTestJob("JOB-EEEEEE")
	j.WebhookURL = "https://hooks.example.com/x"
	require.NoError(t, s.Insert(j))
	makeJobDirs(t, dataDir, j.ID)
	// no source.* file staged: download must fail

	p.processJob(j.ID)

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	require.Equal(t, "download_error", got.Error.Type)

	require.Eventually(t, func() bool {
		return p.Notifier.(*fakeNotifier).failed == 1
	}, time.Second, 10*time.Millisecond)
}

func TestProcessorTerminalJobIsNotReprocessed(t *testing.T) {
	p, s, dataDir := newTestProcessor(t)
	j := newTestJob("JOB-FFFFFF")
	require.NoError(t, s.Insert(j))
	makeJobDirs(t, dataDir, j.ID)
	require.NoError(t, s.MarkFailed(j.ID, &Error{Type: "internal_error", Message: "x"}))

	p.processJob(j.ID) // must be a no-op, not panic or re-dispatch

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
}

func TestResumeOnStartupMarksMissingDirStale(t *testing.T) {
	p, s, _ := newTestProcessor(t)
	j := newTestJob("JOB-GGGGGG")
	require.NoError(t, s.Insert(j))
	// deliberately no on-disk directory created

	p.ResumeOnStartup()

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "stale_storage", got.Error.Type)
}

func TestResumeOnStartupRequeuesExistingDir(t *testing.T) {
	p, s, dataDir := newTestProcessor(t)
	j := newTestJob("JOB-HHHHHH")
	require.NoError(t, s.Insert(j))
	makeJobDirs(t, dataDir, j.ID)

	p.ResumeOnStartup()

	select {
	case id := <-p.Queue.Receive():
		require.Equal(t, j.ID, id)
	default:
		t.Fatal("expected job to be re-enqueued")
	}
}
