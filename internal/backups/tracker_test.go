package backups

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory stand-in for a node daemon
type fakeAPI struct {
	mu        sync.Mutex
	snapshot  *Snapshot
	listErr   error
	listCalls int

	createErr error
	actionErr error
	lastReq   CreateRequest
}

func (f *fakeAPI) ListBackups(ctx context.Context, page int) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.snapshot == nil {
		return &Snapshot{}, nil
	}
	return f.snapshot, nil
}

func (f *fakeAPI) CreateBackup(ctx context.Context, req CreateRequest) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &Record{UUID: "created", Name: req.Name}, nil
}

func (f *fakeAPI) DeleteBackup(ctx context.Context, backupUUID string) error  { return f.actionErr }
func (f *fakeAPI) RetryBackup(ctx context.Context, backupUUID string) error   { return f.actionErr }
func (f *fakeAPI) RestoreBackup(ctx context.Context, backupUUID string) error { return f.actionErr }
func (f *fakeAPI) RenameBackup(ctx context.Context, backupUUID, name string) error {
	return f.actionErr
}
func (f *fakeAPI) ToggleBackupLock(ctx context.Context, backupUUID string) error { return f.actionErr }

func (f *fakeAPI) setSnapshot(s *Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = s
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func fastPolicy() SweepPolicy {
	return SweepPolicy{
		PollInterval:  5 * time.Millisecond,
		MaxAttempts:   3,
		DeletionDelay: 5 * time.Millisecond,
	}
}

func statusFrame(t *testing.T, ev StatusEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return data
}

func TestTrackerRefreshKeepsLastKnownGood(t *testing.T) {
	api := &fakeAPI{snapshot: testSnapshot(Record{UUID: "b1", IsSuccessful: true})}
	tracker := NewTracker(api, fastPolicy())
	defer tracker.Close()

	require.NoError(t, tracker.Refresh(context.Background()))
	assert.Equal(t, 1, tracker.Count())
	assert.NoError(t, tracker.Err())

	api.mu.Lock()
	api.listErr = errors.New("daemon unreachable")
	api.mu.Unlock()

	err := tracker.Refresh(context.Background())
	require.Error(t, err)

	// The previous snapshot still serves reads, the error is exposed
	assert.Equal(t, 1, tracker.Count())
	assert.EqualError(t, tracker.Err(), "daemon unreachable")
	assert.Len(t, tracker.Backups(), 1)
}

func TestTrackerHandleEventFiltering(t *testing.T) {
	api := &fakeAPI{}
	tracker := NewTracker(api, fastPolicy())
	defer tracker.Close()

	// Wrong channel
	tracker.HandleEvent("server_status", statusFrame(t, StatusEvent{BackupUUID: "b1", Status: StatusRunning}))
	_, ok := tracker.Progress("b1")
	assert.False(t, ok)

	// Malformed payload
	tracker.HandleEvent(ChannelBackupStatus, []byte(`{broken`))

	// Missing uuid
	tracker.HandleEvent(ChannelBackupStatus, statusFrame(t, StatusEvent{Status: StatusRunning}))

	// Valid frame lands in the live table
	tracker.HandleEvent(ChannelBackupStatus, statusFrame(t, StatusEvent{BackupUUID: "b1", Status: StatusRunning, Progress: 30}))
	entry, ok := tracker.Progress("b1")
	require.True(t, ok)
	assert.Equal(t, 30, entry.Progress)
}

func TestTrackerSweepEvictsWhenRecordArrives(t *testing.T) {
	api := &fakeAPI{}
	tracker := NewTracker(api, fastPolicy())
	defer tracker.Close()

	tracker.HandleEvent(ChannelBackupStatus, statusFrame(t, StatusEvent{
		BackupUUID: "b1", Status: StatusRunning, Progress: 90, Timestamp: 100,
	}))

	// The record shows up in the listing right as the backup completes
	api.setSnapshot(testSnapshot(Record{UUID: "b1", IsSuccessful: true}))
	tracker.HandleEvent(ChannelBackupStatus, statusFrame(t, StatusEvent{
		BackupUUID: "b1", Status: StatusCompleted, Progress: 100, Timestamp: 101,
	}))

	assert.Eventually(t, func() bool {
		_, ok := tracker.Progress("b1")
		return !ok
	}, time.Second, 5*time.Millisecond, "live entry should be evicted once the record is listed")

	// The reconciled view now serves the persisted record
	out := tracker.Backups()
	require.Len(t, out, 1)
	assert.False(t, out[0].IsLiveOnly)
	assert.Equal(t, StatusCompleted, out[0].Status)
}

func TestTrackerSweepFailsOpenAfterExhaustion(t *testing.T) {
	// Listing never catches up
	api := &fakeAPI{snapshot: testSnapshot()}
	tracker := NewTracker(api, fastPolicy())
	defer tracker.Close()

	tracker.HandleEvent(ChannelBackupStatus, statusFrame(t, StatusEvent{
		BackupUUID: "missing", Status: StatusCompleted, Progress: 100,
	}))

	assert.Eventually(t, func() bool {
		_, ok := tracker.Progress("missing")
		return !ok
	}, time.Second, 5*time.Millisecond, "live entry should be evicted after the attempt budget")
}

func TestTrackerSweepDeletion(t *testing.T) {
	api := &fakeAPI{snapshot: testSnapshot(Record{UUID: "b1", IsSuccessful: true})}
	tracker := NewTracker(api, fastPolicy())
	defer tracker.Close()

	require.NoError(t, tracker.Refresh(context.Background()))

	// Deletion completes; the record is gone from the next listing
	api.setSnapshot(testSnapshot())
	before := api.calls()
	tracker.HandleEvent(ChannelBackupStatus, statusFrame(t, StatusEvent{
		BackupUUID: "b1", Status: StatusCompleted, Progress: 100, Operation: OperationDelete,
	}))

	assert.Eventually(t, func() bool {
		_, ok := tracker.Progress("b1")
		return !ok
	}, time.Second, 5*time.Millisecond)

	// Deletions refresh once, no polling loop
	assert.Equal(t, before+1, api.calls())
	assert.Empty(t, tracker.Backups())
}

func TestTrackerCloseStopsSweeps(t *testing.T) {
	api := &fakeAPI{snapshot: testSnapshot()}
	tracker := NewTracker(api, SweepPolicy{
		PollInterval:  time.Hour, // would block forever without cancellation
		MaxAttempts:   10,
		DeletionDelay: time.Hour,
	})

	tracker.HandleEvent(ChannelBackupStatus, statusFrame(t, StatusEvent{
		BackupUUID: "b1", Status: StatusCompleted, Progress: 100,
	}))

	done := make(chan struct{})
	go func() {
		tracker.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the in-flight sweep")
	}
}

func TestTrackerActions(t *testing.T) {
	t.Run("create passes request and refreshes", func(t *testing.T) {
		api := &fakeAPI{}
		tracker := NewTracker(api, fastPolicy())
		defer tracker.Close()

		before := api.calls()
		rec, err := tracker.Create(context.Background(), CreateRequest{Name: "nightly", IsLocked: true})
		require.NoError(t, err)
		assert.Equal(t, "created", rec.UUID)
		assert.Equal(t, "nightly", api.lastReq.Name)
		assert.True(t, api.lastReq.IsLocked)
		assert.Equal(t, before+1, api.calls())
	})

	t.Run("errors propagate unchanged", func(t *testing.T) {
		daemonErr := errors.New("423 backup is locked")
		api := &fakeAPI{actionErr: daemonErr, createErr: daemonErr}
		tracker := NewTracker(api, fastPolicy())
		defer tracker.Close()

		before := api.calls()
		_, err := tracker.Create(context.Background(), CreateRequest{})
		assert.ErrorIs(t, err, daemonErr)
		assert.ErrorIs(t, tracker.Delete(context.Background(), "b1"), daemonErr)
		assert.ErrorIs(t, tracker.Retry(context.Background(), "b1"), daemonErr)
		assert.ErrorIs(t, tracker.Restore(context.Background(), "b1"), daemonErr)
		assert.ErrorIs(t, tracker.Rename(context.Background(), "b1", "x"), daemonErr)
		assert.ErrorIs(t, tracker.ToggleLock(context.Background(), "b1"), daemonErr)

		// No refresh on failure
		assert.Equal(t, before, api.calls())
	})
}

func TestManagerRegisterAndUnregister(t *testing.T) {
	api := &fakeAPI{snapshot: testSnapshot(Record{UUID: "b1", IsSuccessful: true})}
	m := NewManager(fastPolicy())
	defer m.Close()

	tracker := m.Register("srv-1", api, nil)
	require.NotNil(t, tracker)

	// Registration primes the snapshot
	assert.Equal(t, 1, tracker.Count())

	// Re-registering returns the same tracker
	again := m.Register("srv-1", api, nil)
	assert.Same(t, tracker, again)

	got, ok := m.Get("srv-1")
	require.True(t, ok)
	assert.Same(t, tracker, got)

	m.Unregister("srv-1")
	_, ok = m.Get("srv-1")
	assert.False(t, ok)
}

type fakeEvents struct {
	frames chan []byte
}

func (f *fakeEvents) StreamEvents(ctx context.Context, handler func(channel string, payload []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-f.frames:
			if !ok {
				return errors.New("feed closed")
			}
			handler(ChannelBackupStatus, frame)
		}
	}
}

func TestManagerFeedsEventsToTracker(t *testing.T) {
	api := &fakeAPI{}
	events := &fakeEvents{frames: make(chan []byte, 1)}
	m := NewManager(fastPolicy())
	defer m.Close()

	tracker := m.Register("srv-1", api, events)

	events.frames <- statusFrame(t, StatusEvent{BackupUUID: "b1", Status: StatusRunning, Progress: 25})

	assert.Eventually(t, func() bool {
		entry, ok := tracker.Progress("b1")
		return ok && entry.Progress == 25
	}, time.Second, 5*time.Millisecond)
}
