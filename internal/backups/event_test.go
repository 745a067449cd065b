package backups

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusEvent(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		ev, err := ParseStatusEvent([]byte(`{"backup_uuid":"b1","status":"running","progress":42}`))
		require.NoError(t, err)
		assert.Equal(t, "b1", ev.BackupUUID)
		assert.Equal(t, StatusRunning, ev.Status)
		assert.Equal(t, 42, ev.Progress)
	})

	t.Run("double encoded string payload", func(t *testing.T) {
		ev, err := ParseStatusEvent([]byte(`"{\"backup_uuid\":\"b2\",\"status\":\"completed\",\"progress\":100}"`))
		require.NoError(t, err)
		assert.Equal(t, "b2", ev.BackupUUID)
		assert.True(t, ev.IsCompleted())
	})

	t.Run("missing backup uuid", func(t *testing.T) {
		_, err := ParseStatusEvent([]byte(`{"status":"running","progress":10}`))
		assert.ErrorIs(t, err, ErrMissingUUID)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseStatusEvent([]byte(`{not json`))
		assert.Error(t, err)
	})

	t.Run("malformed inner payload", func(t *testing.T) {
		_, err := ParseStatusEvent([]byte(`"{broken"`))
		assert.Error(t, err)
	})
}

func TestStatusEventNormalize(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("timestamp used when present", func(t *testing.T) {
		ev := &StatusEvent{BackupUUID: "b1", Timestamp: 1700000000}
		entry := ev.normalize(now)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), entry.LastUpdated)
	})

	t.Run("wall clock used without timestamp", func(t *testing.T) {
		ev := &StatusEvent{BackupUUID: "b1"}
		entry := ev.normalize(now)
		assert.Equal(t, now, entry.LastUpdated)
	})

	t.Run("error appended to message", func(t *testing.T) {
		ev := &StatusEvent{BackupUUID: "b1", Message: "Archiving", Error: "disk full"}
		assert.Equal(t, "Archiving: disk full", ev.normalize(now).Message)
	})

	t.Run("error without message gets fallback", func(t *testing.T) {
		ev := &StatusEvent{BackupUUID: "b1", Error: "disk full"}
		assert.Equal(t, "Operation failed: disk full", ev.normalize(now).Message)
	})

	t.Run("retry only for failed creates", func(t *testing.T) {
		failedCreate := &StatusEvent{BackupUUID: "b1", Status: StatusFailed, Operation: OperationCreate}
		assert.True(t, failedCreate.normalize(now).CanRetry)

		failedRestore := &StatusEvent{BackupUUID: "b1", Status: StatusFailed, Operation: OperationRestore}
		assert.False(t, failedRestore.normalize(now).CanRetry)
	})

	t.Run("completed requires full progress", func(t *testing.T) {
		partial := &StatusEvent{BackupUUID: "b1", Status: StatusCompleted, Progress: 99}
		assert.False(t, partial.normalize(now).Completed)

		full := &StatusEvent{BackupUUID: "b1", Status: StatusCompleted, Progress: 100}
		assert.True(t, full.normalize(now).Completed)
	})

	t.Run("deletion from operation or deleted flag", func(t *testing.T) {
		byOp := &StatusEvent{BackupUUID: "b1", Operation: OperationDelete}
		assert.True(t, byOp.normalize(now).IsDeletion)

		byFlag := &StatusEvent{BackupUUID: "b1", Deleted: true}
		assert.True(t, byFlag.normalize(now).IsDeletion)
	})
}

func TestMerge(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first entry accepted", func(t *testing.T) {
		next := ProgressEntry{UUID: "b1", Progress: 10, LastUpdated: base}
		got, accepted := merge(nil, next)
		assert.True(t, accepted)
		assert.Equal(t, next, got)
	})

	t.Run("completed latch rejects regressions", func(t *testing.T) {
		prev := ProgressEntry{UUID: "b1", Status: StatusCompleted, Progress: 100, Completed: true, LastUpdated: base}
		next := ProgressEntry{UUID: "b1", Status: StatusRunning, Progress: 80, LastUpdated: base.Add(time.Second)}
		got, accepted := merge(&prev, next)
		assert.False(t, accepted)
		assert.Equal(t, prev, got)
	})

	t.Run("stale when timestamp and progress both not newer", func(t *testing.T) {
		prev := ProgressEntry{UUID: "b1", Progress: 50, LastUpdated: base}
		next := ProgressEntry{UUID: "b1", Progress: 40, LastUpdated: base}
		_, accepted := merge(&prev, next)
		assert.False(t, accepted)
	})

	t.Run("newer timestamp accepted despite lower progress", func(t *testing.T) {
		prev := ProgressEntry{UUID: "b1", Progress: 50, LastUpdated: base}
		next := ProgressEntry{UUID: "b1", Progress: 40, LastUpdated: base.Add(time.Second)}
		got, accepted := merge(&prev, next)
		assert.True(t, accepted)
		assert.Equal(t, 40, got.Progress)
	})

	t.Run("higher progress accepted despite equal timestamp", func(t *testing.T) {
		prev := ProgressEntry{UUID: "b1", Progress: 50, LastUpdated: base}
		next := ProgressEntry{UUID: "b1", Progress: 60, LastUpdated: base}
		_, accepted := merge(&prev, next)
		assert.True(t, accepted)
	})

	t.Run("completed update bypasses staleness check", func(t *testing.T) {
		prev := ProgressEntry{UUID: "b1", Progress: 100, LastUpdated: base}
		next := ProgressEntry{UUID: "b1", Status: StatusCompleted, Progress: 100, Completed: true, LastUpdated: base}
		_, accepted := merge(&prev, next)
		assert.True(t, accepted)
	})

	t.Run("name preserved across updates", func(t *testing.T) {
		prev := ProgressEntry{UUID: "b1", Progress: 10, LastUpdated: base, BackupName: "nightly"}
		next := ProgressEntry{UUID: "b1", Progress: 20, LastUpdated: base.Add(time.Second)}
		got, accepted := merge(&prev, next)
		require.True(t, accepted)
		assert.Equal(t, "nightly", got.BackupName)
	})
}
