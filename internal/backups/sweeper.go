package backups

import (
	"context"
	"time"
)

// SweepPolicy controls how the tracker reconciles a completed live
// operation with the daemon listing. The listing can lag the write path, so
// completed backups are polled for until the record shows up or the attempt
// budget runs out.
type SweepPolicy struct {
	// PollInterval is the delay between listing re-fetches
	PollInterval time.Duration
	// MaxAttempts bounds the polling loop; when exhausted the live entry is
	// evicted anyway so the view never shows a stuck in-flight operation
	MaxAttempts int
	// DeletionDelay is how long a finished deletion lingers before its live
	// entry is evicted. Deletions propagate by omission from the listing,
	// so no polling is needed.
	DeletionDelay time.Duration
}

// DefaultSweepPolicy returns the sweep timings used when none are configured
func DefaultSweepPolicy() SweepPolicy {
	return SweepPolicy{
		PollInterval:  time.Second,
		MaxAttempts:   10,
		DeletionDelay: 500 * time.Millisecond,
	}
}

// sweep runs after a live entry reports completion. It refreshes the
// snapshot and evicts the live entry once the authoritative record arrived
// (or, for deletions, after a short delay). Runs on its own goroutine;
// ctx is the tracker's lifetime.
func (t *Tracker) sweep(ctx context.Context, uuid string, isDeletion bool) {
	defer t.wg.Done()

	// Always refresh once so the listing reflects the finished operation
	t.Refresh(ctx)

	if isDeletion {
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.policy.DeletionDelay):
		}
		t.evict(uuid)
		return
	}

	for attempt := 0; attempt < t.policy.MaxAttempts; attempt++ {
		if t.snapshotContains(uuid) {
			t.evict(uuid)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.policy.PollInterval):
		}
		t.Refresh(ctx)
	}

	// The record never showed up. Evict anyway and give up silently rather
	// than leaving a phantom in-flight operation on screen.
	t.evict(uuid)
}
