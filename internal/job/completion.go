package job

import "sync"

// CompletionRegistry lets a caller block until a specific job reaches a
// terminal state, without polling the Store. Grounded on the teacher's
// per-job context.CancelFunc map (JobQueue.cancels in
// internal/job/queue.go), generalized from a cancellation handle to a
// one-shot completion signal consumed by the OpenAI-compatible inline
// endpoints (§4.9), which must block the HTTP request until the job
// they just enqueued finishes.
type CompletionRegistry struct {
	mu      sync.Mutex
	waiters map[string]chan struct{}
}

// NewCompletionRegistry creates an empty registry.
func NewCompletionRegistry() *CompletionRegistry {
	return &CompletionRegistry{waiters: make(map[string]chan struct{})}
}

// Register returns a channel that is closed exactly once, the next
// time Signal(jobID) is called. Must be called before the job can
// possibly reach a terminal state (i.e. before or immediately after
// enqueueing), or the signal may be missed.
func (c *CompletionRegistry) Register(jobID string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.waiters[jobID]
	if !ok {
		ch = make(chan struct{})
		c.waiters[jobID] = ch
	}
	return ch
}

// Signal closes jobID's channel, if one is registered, and removes it
// from the registry. Safe to call even if nothing is registered, so
// the Job Processor can call it unconditionally on every terminal
// transition.
func (c *CompletionRegistry) Signal(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.waiters[jobID]; ok {
		close(ch)
		delete(c.waiters, jobID)
	}
}
