package job

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

// RetentionSweeper periodically deletes job rows and directories past
// their retention horizon. Grounded on the teacher's RateLimiter
// cleanup ticker (internal/api/middleware/ratelimit.go), generalized
// from an in-memory map sweep to a Store.Expired + directory removal
// sweep. Idempotent: a failure partway through a row's cleanup is
// retried wholesale on the next tick.
type RetentionSweeper struct {
	Store    *Store
	DataDir  string
	Interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRetentionSweeper creates a sweeper. Call Run in its own goroutine.
func NewRetentionSweeper(store *Store, dataDir string, interval time.Duration) *RetentionSweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &RetentionSweeper{Store: store, DataDir: dataDir, Interval: interval, ctx: ctx, cancel: cancel}
}

// Stop ends the sweep loop.
func (r *RetentionSweeper) Stop() { r.cancel() }

// Run ticks forever until Stop is called.
func (r *RetentionSweeper) Run() {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// SweepNow runs one sweep pass immediately and reports how many expired
// jobs were swept (directory removed or already absent, row deleted). Exposed for the admin "forced cleanup"
// operation (§4.9) as well as the background ticker in Run.
func (r *RetentionSweeper) SweepNow() int {
	return r.sweep()
}

func (r *RetentionSweeper) sweep() int {
	ids, err := r.Store.Expired(time.Now())
	if err != nil {
		log.Printf("[retention] list expired: %v", err)
		return 0
	}
	swept := 0
	for _, id := range ids {
		dir := filepath.Join(r.DataDir, "jobs", id)
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[retention] %s: remove directory: %v", id, err)
			continue
		}
		if err := r.Store.Delete(id); err != nil {
			log.Printf("[retention] %s: delete row: %v", id, err)
			continue
		}
		log.Printf("[retention] swept %s", id)
		swept++
	}
	return swept
}
