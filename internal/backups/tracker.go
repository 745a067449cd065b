package backups

import (
	"context"
	"sync"
	"time"
)

// API is the slice of the node daemon backup API the tracker depends on
type API interface {
	ListBackups(ctx context.Context, page int) (*Snapshot, error)
	CreateBackup(ctx context.Context, req CreateRequest) (*Record, error)
	DeleteBackup(ctx context.Context, backupUUID string) error
	RetryBackup(ctx context.Context, backupUUID string) error
	RestoreBackup(ctx context.Context, backupUUID string) error
	RenameBackup(ctx context.Context, backupUUID, name string) error
	ToggleBackupLock(ctx context.Context, backupUUID string) error
}

// Tracker reconciles a server's backup state from two independent feeds:
// the daemon's paginated listing (persisted records) and its websocket
// progress events (in-flight operations). All mutation funnels through the
// tracker mutex; reads produce a consistent view at any time.
type Tracker struct {
	api    API
	policy SweepPolicy
	now    func() time.Time

	mu         sync.RWMutex
	snapshot   *Snapshot
	refreshErr error
	validating bool
	live       map[string]ProgressEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker creates a tracker for one server's backups
func NewTracker(api API, policy SweepPolicy) *Tracker {
	if policy.PollInterval <= 0 {
		policy = DefaultSweepPolicy()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		api:    api,
		policy: policy,
		now:    time.Now,
		live:   make(map[string]ProgressEntry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops in-flight sweeps and waits for them to finish
func (t *Tracker) Close() {
	t.cancel()
	t.wg.Wait()
}

// Refresh re-fetches the first listing page from the daemon. On failure the
// last-known-good snapshot is kept and the error is retained for Err().
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	t.validating = true
	t.mu.Unlock()

	snap, err := t.api.ListBackups(ctx, 1)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.validating = false
	if err != nil {
		t.refreshErr = err
		return err
	}
	t.snapshot = snap
	t.refreshErr = nil
	return nil
}

// HandleEvent processes one raw frame from the daemon event feed. Frames
// from other channels, malformed frames and frames without a backup uuid
// are dropped without side effect. An accepted completion starts a sweep.
func (t *Tracker) HandleEvent(channel string, payload []byte) {
	if channel != ChannelBackupStatus {
		return
	}

	ev, err := ParseStatusEvent(payload)
	if err != nil {
		return
	}

	next := ev.normalize(t.now())

	t.mu.Lock()
	var prev *ProgressEntry
	if existing, ok := t.live[next.UUID]; ok {
		prev = &existing
	}
	entry, accepted := merge(prev, next)
	if accepted {
		t.live[entry.UUID] = entry
	}
	t.mu.Unlock()

	if accepted && entry.Completed {
		t.wg.Add(1)
		go t.sweep(t.ctx, entry.UUID, entry.IsDeletion)
	}
}

// Backups returns the reconciled, newest-first backup list
func (t *Tracker) Backups() []Unified {
	t.mu.RLock()
	snap := t.snapshot
	live := make(map[string]ProgressEntry, len(t.live))
	for k, v := range t.live {
		live[k] = v
	}
	t.mu.RUnlock()

	return BuildView(snap, live, t.now())
}

// Count returns the total number of persisted backups
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snapshot == nil {
		return 0
	}
	return t.snapshot.BackupCount
}

// Storage returns the server's backup storage usage, if known
func (t *Tracker) Storage() *StorageUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snapshot == nil {
		return nil
	}
	return t.snapshot.Storage
}

// Err returns the error from the last failed refresh, or nil after a
// successful one
func (t *Tracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refreshErr
}

// IsValidating reports whether a refresh is currently in flight
func (t *Tracker) IsValidating() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.validating
}

// Progress returns the live entry for a backup, if one exists
func (t *Tracker) Progress(backupUUID string) (ProgressEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.live[backupUUID]
	return entry, ok
}

func (t *Tracker) evict(uuid string) {
	t.mu.Lock()
	delete(t.live, uuid)
	t.mu.Unlock()
}

func (t *Tracker) snapshotContains(uuid string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot.Contains(uuid)
}

// The action methods call the daemon and refresh the listing on success.
// Errors are propagated to the caller unchanged; progress for the triggered
// operation arrives asynchronously over the event feed.

// Create requests a new backup
func (t *Tracker) Create(ctx context.Context, req CreateRequest) (*Record, error) {
	rec, err := t.api.CreateBackup(ctx, req)
	if err != nil {
		return nil, err
	}
	t.Refresh(ctx)
	return rec, nil
}

// Delete removes a backup
func (t *Tracker) Delete(ctx context.Context, backupUUID string) error {
	if err := t.api.DeleteBackup(ctx, backupUUID); err != nil {
		return err
	}
	t.Refresh(ctx)
	return nil
}

// Retry re-runs a failed backup
func (t *Tracker) Retry(ctx context.Context, backupUUID string) error {
	if err := t.api.RetryBackup(ctx, backupUUID); err != nil {
		return err
	}
	t.Refresh(ctx)
	return nil
}

// Restore restores the server from a backup
func (t *Tracker) Restore(ctx context.Context, backupUUID string) error {
	if err := t.api.RestoreBackup(ctx, backupUUID); err != nil {
		return err
	}
	t.Refresh(ctx)
	return nil
}

// Rename changes a backup's display name
func (t *Tracker) Rename(ctx context.Context, backupUUID, name string) error {
	if err := t.api.RenameBackup(ctx, backupUUID, name); err != nil {
		return err
	}
	t.Refresh(ctx)
	return nil
}

// ToggleLock flips a backup's deletion protection
func (t *Tracker) ToggleLock(ctx context.Context, backupUUID string) error {
	if err := t.api.ToggleBackupLock(ctx, backupUUID); err != nil {
		return err
	}
	t.Refresh(ctx)
	return nil
}
