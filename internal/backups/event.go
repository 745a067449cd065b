package backups

import (
	"encoding/json"
	"errors"
	"time"
)

// ChannelBackupStatus is the daemon event channel carrying backup progress
const ChannelBackupStatus = "backup_status"

// ErrMissingUUID is returned when a status event has no backup identifier.
// Callers treat it (and JSON errors) as a signal to drop the frame silently;
// the event feed is best-effort telemetry, not a command channel.
var ErrMissingUUID = errors.New("status event missing backup_uuid")

// StatusEvent is the raw payload of a backup_status frame. All fields
// except BackupUUID are optional.
type StatusEvent struct {
	BackupUUID string    `json:"backup_uuid"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message,omitempty"`
	Timestamp  int64     `json:"timestamp,omitempty"` // unix seconds
	Operation  Operation `json:"operation,omitempty"`
	Error      string    `json:"error,omitempty"`
	Adapter    string    `json:"adapter,omitempty"`
	Name       string    `json:"name,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// ParseStatusEvent decodes a backup_status payload. The daemon sometimes
// double-encodes the payload as a JSON string, so both forms are accepted.
func ParseStatusEvent(raw []byte) (*StatusEvent, error) {
	data := raw
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, err
		}
		data = []byte(inner)
	}

	var ev StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.BackupUUID == "" {
		return nil, ErrMissingUUID
	}
	return &ev, nil
}

// IsCompleted reports whether the event marks the operation as finished
func (e *StatusEvent) IsCompleted() bool {
	return e.Status == StatusCompleted && e.Progress == 100
}

// IsDeletion reports whether the underlying operation removes a backup
func (e *StatusEvent) IsDeletion() bool {
	return e.Operation == OperationDelete || e.Deleted
}

// normalize derives a progress entry from the event. now is used when the
// event carries no timestamp.
func (e *StatusEvent) normalize(now time.Time) ProgressEntry {
	lastUpdated := now
	if e.Timestamp > 0 {
		lastUpdated = time.Unix(e.Timestamp, 0).UTC()
	}

	message := e.Message
	if e.Error != "" {
		if message == "" {
			message = "Operation failed"
		}
		message = message + ": " + e.Error
	}

	return ProgressEntry{
		UUID:        e.BackupUUID,
		Status:      e.Status,
		Progress:    e.Progress,
		Message:     message,
		CanRetry:    e.Status == StatusFailed && e.Operation == OperationCreate,
		LastUpdated: lastUpdated,
		Completed:   e.IsCompleted(),
		IsDeletion:  e.IsDeletion(),
		BackupName:  e.Name,
	}
}

// merge applies the monotonicity and staleness rules to a new entry, given
// the previous entry for the same uuid (nil if none). It returns the entry
// to store and whether the update was accepted.
//
// A completed entry never regresses: once a backup reported 100%/completed,
// a delayed lower-progress event must not undo it. Non-completed updates
// are rejected as stale when both their timestamp and their progress are no
// newer than what is already stored. Comparing both is a heuristic: it can
// misclassify a legitimate progress reset whose timestamp is not strictly
// greater, which callers accept as an approximation rather than a true
// ordering protocol.
func merge(prev *ProgressEntry, next ProgressEntry) (ProgressEntry, bool) {
	if prev != nil {
		if prev.Completed && !next.Completed {
			return *prev, false
		}
		if !next.Completed &&
			!prev.LastUpdated.Before(next.LastUpdated) &&
			prev.Progress >= next.Progress {
			return *prev, false
		}
		if next.BackupName == "" {
			next.BackupName = prev.BackupName
		}
	}
	return next, true
}
