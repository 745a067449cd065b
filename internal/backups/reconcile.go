package backups

import (
	"sort"
	"time"
)

// liveOnlyPlaceholder labels a live entry that carries no usable name
const liveOnlyPlaceholder = "Processing..."

// BuildView merges the snapshot listing with the live progress table into a
// single de-duplicated list of backups, newest first. It is a pure function
// of its inputs: calling it again with unchanged state yields the same
// output. Live-only entries are dated now so they sort to the top.
func BuildView(snapshot *Snapshot, live map[string]ProgressEntry, now time.Time) []Unified {
	var out []Unified

	if snapshot != nil {
		for i := range snapshot.Items {
			rec := &snapshot.Items[i]
			u := Unified{
				UUID:         rec.UUID,
				Name:         rec.Name,
				IsSuccessful: rec.IsSuccessful,
				IsLocked:     rec.IsLocked,
				Checksum:     rec.Checksum,
				Bytes:        rec.Bytes,
				CreatedAt:    rec.CreatedAt,
				CompletedAt:  rec.CompletedAt,
				CanRetry:     rec.CanRetry,
			}

			if entry, ok := live[rec.UUID]; ok {
				// An in-flight operation blocks further actions and its
				// live fields win over the record's derived state
				u.Status = entry.Status
				u.Progress = entry.Progress
				u.Message = entry.Message
				u.CanRetry = entry.CanRetry
				u.IsDeletion = entry.IsDeletion
				if entry.BackupName != "" {
					u.Name = entry.BackupName
				}
			} else {
				if rec.IsSuccessful {
					u.Status = StatusCompleted
					u.Progress = 100
				} else {
					u.Status = StatusFailed
				}
				u.CanDelete = true
				u.CanDownload = rec.IsSuccessful
				u.CanRestore = rec.IsSuccessful
			}

			out = append(out, u)
		}
	}

	for uuid, entry := range live {
		if snapshot.Contains(uuid) {
			continue
		}
		// In-flight deletions of records already gone from the listing are
		// not new backups; never surface them
		if entry.IsDeletion {
			continue
		}

		name := entry.BackupName
		if name == "" {
			name = entry.Message
		}
		if name == "" {
			name = liveOnlyPlaceholder
		}

		out = append(out, Unified{
			UUID:       uuid,
			Name:       name,
			Status:     entry.Status,
			Progress:   entry.Progress,
			Message:    entry.Message,
			CanRetry:   entry.CanRetry,
			CreatedAt:  now,
			IsLiveOnly: true,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		// Live-only rows all carry the same timestamp; break the tie so
		// map iteration order never leaks into the output
		return out[i].UUID < out[j].UUID
	})

	return out
}
