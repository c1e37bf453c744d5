// Package transcribe adapts the Model Manager to the Job Processor's
// Transcriber interface: it calls the manager, then persists the
// result as transcript.json.
package transcribe

import (
	"context"

	"github.com/nr2bj/transcribe-server/internal/apperr"
	"github.com/nr2bj/transcribe-server/internal/transcript"
)

// ModelManager is the subset of model.Manager this adapter depends on.
type ModelManager interface {
	Transcribe(ctx context.Context, audioPath string, translate bool, progress func(int)) (*transcript.Transcript, error)
}

// Adapter implements job.Transcriber over a ModelManager. Grounded on
// the teacher's whisper.Service.HandleJob shape: resolve a path, call
// the engine, persist the result.
type Adapter struct {
	Manager ModelManager
}

// New constructs an Adapter.
func New(manager ModelManager) *Adapter {
	return &Adapter{Manager: manager}
}

// Transcribe runs audioPath through the Model Manager and writes the
// canonical transcript to transcriptPath.
func (a *Adapter) Transcribe(ctx context.Context, audioPath, transcriptPath string, translate bool, progress func(int)) error {
	t, err := a.Manager.Transcribe(ctx, audioPath, translate, progress)
	if err != nil {
		return err
	}
	if err := t.Save(transcriptPath); err != nil {
		return apperr.Wrap(apperr.KindTranscription, "persist transcript", err)
	}
	return nil
}
