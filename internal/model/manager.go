// Package model implements the single-slot GPU model lifecycle: at most
// one transcription backend instance is held in memory at a time,
// inference is serialized, and VRAM is released after an idle window.
package model

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nr2bj/transcribe-server/internal/apperr"
	"github.com/nr2bj/transcribe-server/internal/transcript"
)

// State is one node of the model lifecycle state machine.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateBusy      State = "busy"
	StateUnloading State = "unloading"
)

// Backend performs the actual inference call against a loaded model.
// Load/Unload bracket the lifetime of whatever process or connection the
// backend needs (a subprocess, a warmed HTTP client, ...); Transcribe
// assumes the backend is already loaded. Grounded on the teacher's
// whisper.Transcriber interface, generalized to separate load from
// inference so the Manager can own the idle-unload policy.
type Backend interface {
	Load(ctx context.Context, modelName string) error
	Unload(ctx context.Context) error
	Transcribe(ctx context.Context, audioPath string, translate bool, progress func(int)) (*transcript.Transcript, error)
}

// Status is a point-in-time snapshot of the manager for /api/health and
// the admin surface.
type Status struct {
	State      State
	ModelName  string
	LastUsedAt time.Time
}

// Manager serializes access to a single Backend instance and unloads it
// after IdleThreshold of inactivity. Grounded on the concurrency idiom
// of the teacher's job.JobQueue (context-cancellable background
// goroutine over a mutex-guarded struct), generalized from a work queue
// into a 5-state machine with a waiter broadcast for concurrent
// on-demand loads.
type Manager struct {
	backend       Backend
	modelName     string
	idleThreshold time.Duration

	mu         sync.Mutex
	state      State
	lastUsedAt time.Time
	loadErr    error
	loadDone   chan struct{} // closed when an in-flight load finishes; nil when not loading

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager constructs a Manager in the unloaded state. Call Run in its
// own goroutine to start the idle-unload watchdog.
func NewManager(backend Backend, modelName string, idleThreshold time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		backend:       backend,
		modelName:     modelName,
		idleThreshold: idleThreshold,
		state:         StateUnloaded,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Stop ends the idle-unload watchdog. Does not unload the model.
func (m *Manager) Stop() { m.cancel() }

// Run ticks the idle-unload watchdog until Stop is called.
func (m *Manager) Run() {
	interval := m.idleThreshold / 2
	if m.idleThreshold <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.maybeIdleUnload()
		}
	}
}

func (m *Manager) maybeIdleUnload() {
	m.mu.Lock()
	shouldUnload := m.state == StateReady && time.Since(m.lastUsedAt) > m.idleThreshold
	m.mu.Unlock()
	if !shouldUnload {
		return
	}
	if err := m.Unload(m.ctx); err != nil {
		// busy: another caller grabbed the model between the check and
		// the attempt. Reschedule on the next tick rather than retry
		// immediately.
		log.Printf("[model] idle unload deferred: %v", err)
	}
}

// Load explicitly loads the model. Idempotent when already ready or
// loading (the caller joins the in-flight load). A failed load returns
// to unloaded.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateReady:
		m.mu.Unlock()
		return nil
	case StateLoading:
		done := m.loadDone
		m.mu.Unlock()
		select {
		case <-done:
			return m.loadResult()
		case <-ctx.Done():
			return ctx.Err()
		}
	case StateUnloading, StateBusy:
		m.mu.Unlock()
		return apperr.New(apperr.KindModelUnavailable, "model busy, cannot load")
	}

	m.state = StateLoading
	done := make(chan struct{})
	m.loadDone = done
	m.mu.Unlock()

	err := m.backend.Load(ctx, m.modelName)

	m.mu.Lock()
	m.loadErr = err
	if err != nil {
		m.state = StateUnloaded
	} else {
		m.state = StateReady
		m.lastUsedAt = time.Now()
	}
	m.loadDone = nil
	m.mu.Unlock()
	close(done)

	return err
}

func (m *Manager) loadResult() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadErr
}

// Unload releases the backend. Fails with model_unavailable if the
// model is currently busy serving a transcription.
func (m *Manager) Unload(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateUnloaded:
		m.mu.Unlock()
		return nil
	case StateBusy, StateLoading:
		m.mu.Unlock()
		return apperr.New(apperr.KindModelUnavailable, "model busy")
	}
	m.state = StateUnloading
	m.mu.Unlock()

	err := m.backend.Unload(ctx)

	m.mu.Lock()
	m.state = StateUnloaded
	m.mu.Unlock()
	return err
}

// Transcribe waits for the model to be ready (loading it on demand),
// marks it busy for the duration of the call, and returns it to ready
// on completion, updating LastUsedAt. Concurrent callers during an
// in-flight load wait on the same load rather than triggering redundant
// loads; once ready, the first caller marks the model busy and any
// other caller re-checks every 100ms until it is ready again, so only
// one inference runs at a time.
func (m *Manager) Transcribe(ctx context.Context, audioPath string, translate bool, progress func(int)) (*transcript.Transcript, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	t, err := m.backend.Transcribe(ctx, audioPath, translate, progress)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTranscription, "backend transcription failed", err)
	}
	return t, nil
}

// acquire blocks until the model is ready and claims it for this caller,
// loading it first if necessary.
func (m *Manager) acquire(ctx context.Context) error {
	for {
		m.mu.Lock()
		switch m.state {
		case StateReady:
			m.state = StateBusy
			m.mu.Unlock()
			return nil
		case StateUnloaded:
			m.mu.Unlock()
			if err := m.Load(ctx); err != nil {
				return apperr.New(apperr.KindModelUnavailable, "model load failed")
			}
			continue
		case StateLoading:
			done := m.loadDone
			m.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		case StateBusy, StateUnloading:
			m.mu.Unlock()
			// Single-worker Job Processor never contends with itself;
			// this path is only reached by admin/OpenAI-inline callers
			// racing the processor. Back off briefly and retry.
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (m *Manager) release() {
	m.mu.Lock()
	m.state = StateReady
	m.lastUsedAt = time.Now()
	m.mu.Unlock()
}

// Status returns a snapshot for /api/health and the admin surface.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, ModelName: m.modelName, LastUsedAt: m.lastUsedAt}
}
