package backups

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(records ...Record) *Snapshot {
	return &Snapshot{
		Items:       records,
		BackupCount: len(records),
	}
}

func TestBuildViewSnapshotOnly(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := testSnapshot(
		Record{UUID: "old", Name: "old backup", IsSuccessful: true, CreatedAt: now.Add(-2 * time.Hour)},
		Record{UUID: "new", Name: "new backup", IsSuccessful: false, CreatedAt: now.Add(-time.Hour)},
	)

	out := BuildView(snap, nil, now)
	require.Len(t, out, 2)

	// Newest first
	assert.Equal(t, "new", out[0].UUID)
	assert.Equal(t, "old", out[1].UUID)

	// Failed record
	assert.Equal(t, StatusFailed, out[0].Status)
	assert.True(t, out[0].CanDelete)
	assert.False(t, out[0].CanDownload)
	assert.False(t, out[0].CanRestore)

	// Successful record
	assert.Equal(t, StatusCompleted, out[1].Status)
	assert.Equal(t, 100, out[1].Progress)
	assert.True(t, out[1].CanDownload)
	assert.True(t, out[1].CanRestore)
}

func TestBuildViewLiveOverridesRecord(t *testing.T) {
	now := time.Now().UTC()
	snap := testSnapshot(
		Record{UUID: "b1", Name: "stored name", IsSuccessful: true, CreatedAt: now.Add(-time.Hour)},
	)
	live := map[string]ProgressEntry{
		"b1": {UUID: "b1", Status: StatusRunning, Progress: 55, Message: "Restoring files", BackupName: "live name"},
	}

	out := BuildView(snap, live, now)
	require.Len(t, out, 1)

	u := out[0]
	assert.Equal(t, StatusRunning, u.Status)
	assert.Equal(t, 55, u.Progress)
	assert.Equal(t, "Restoring files", u.Message)
	assert.Equal(t, "live name", u.Name)
	assert.False(t, u.IsLiveOnly)

	// In-flight operations block every action
	assert.False(t, u.CanDelete)
	assert.False(t, u.CanDownload)
	assert.False(t, u.CanRestore)
}

func TestBuildViewLiveOnly(t *testing.T) {
	now := time.Now().UTC()
	snap := testSnapshot(
		Record{UUID: "stored", Name: "stored", IsSuccessful: true, CreatedAt: now.Add(-time.Hour)},
	)
	live := map[string]ProgressEntry{
		"fresh": {UUID: "fresh", Status: StatusRunning, Progress: 10, BackupName: "nightly"},
	}

	out := BuildView(snap, live, now)
	require.Len(t, out, 2)

	// Live-only rows are dated now, so they sort first
	assert.Equal(t, "fresh", out[0].UUID)
	assert.True(t, out[0].IsLiveOnly)
	assert.Equal(t, "nightly", out[0].Name)
	assert.Equal(t, now, out[0].CreatedAt)
}

func TestBuildViewLiveOnlyNameFallback(t *testing.T) {
	now := time.Now().UTC()

	withMessage := map[string]ProgressEntry{
		"b1": {UUID: "b1", Status: StatusPending, Message: "Starting backup"},
	}
	out := BuildView(nil, withMessage, now)
	require.Len(t, out, 1)
	assert.Equal(t, "Starting backup", out[0].Name)

	bare := map[string]ProgressEntry{
		"b2": {UUID: "b2", Status: StatusPending},
	}
	out = BuildView(nil, bare, now)
	require.Len(t, out, 1)
	assert.Equal(t, "Processing...", out[0].Name)
}

func TestBuildViewSuppressesLiveOnlyDeletions(t *testing.T) {
	now := time.Now().UTC()
	live := map[string]ProgressEntry{
		"gone": {UUID: "gone", Status: StatusRunning, IsDeletion: true},
	}

	out := BuildView(nil, live, now)
	assert.Empty(t, out)
}

func TestBuildViewDeletionOfListedRecordStillShown(t *testing.T) {
	now := time.Now().UTC()
	snap := testSnapshot(
		Record{UUID: "b1", Name: "doomed", IsSuccessful: true, CreatedAt: now.Add(-time.Hour)},
	)
	live := map[string]ProgressEntry{
		"b1": {UUID: "b1", Status: StatusRunning, Progress: 50, IsDeletion: true},
	}

	out := BuildView(snap, live, now)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsDeletion)
	assert.False(t, out[0].CanDelete)
}

func TestBuildViewNoDuplicateUUIDs(t *testing.T) {
	now := time.Now().UTC()
	snap := testSnapshot(
		Record{UUID: "b1", CreatedAt: now.Add(-time.Hour)},
		Record{UUID: "b2", CreatedAt: now.Add(-2 * time.Hour)},
	)
	live := map[string]ProgressEntry{
		"b1": {UUID: "b1", Status: StatusRunning},
		"b3": {UUID: "b3", Status: StatusPending},
	}

	out := BuildView(snap, live, now)
	seen := make(map[string]bool)
	for _, u := range out {
		assert.False(t, seen[u.UUID], "duplicate uuid %s", u.UUID)
		seen[u.UUID] = true
	}
	assert.Len(t, out, 3)
}

func TestBuildViewIsPure(t *testing.T) {
	now := time.Now().UTC()
	snap := testSnapshot(
		Record{UUID: "b1", IsSuccessful: true, CreatedAt: now.Add(-time.Hour)},
	)
	live := map[string]ProgressEntry{
		"b2": {UUID: "b2", Status: StatusRunning, Progress: 30},
	}

	first := BuildView(snap, live, now)
	second := BuildView(snap, live, now)
	assert.Equal(t, first, second)
}

func TestBuildViewOrderStableWithManyLiveOnly(t *testing.T) {
	now := time.Now().UTC()
	live := map[string]ProgressEntry{
		"e": {UUID: "e", Status: StatusRunning, Progress: 5},
		"a": {UUID: "a", Status: StatusRunning, Progress: 10},
		"d": {UUID: "d", Status: StatusPending},
		"b": {UUID: "b", Status: StatusRunning, Progress: 80},
		"c": {UUID: "c", Status: StatusPending},
	}

	first := BuildView(nil, live, now)
	require.Len(t, first, 5)
	for i := 0; i < 200; i++ {
		assert.Equal(t, first, BuildView(nil, live, now))
	}
}

func TestBuildViewNilSnapshot(t *testing.T) {
	out := BuildView(nil, nil, time.Now())
	assert.Empty(t, out)
}
