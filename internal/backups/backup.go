package backups

import (
	"time"
)

// Status represents the lifecycle state of a backup operation
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Operation represents what the daemon is doing to a backup
type Operation string

const (
	OperationCreate  Operation = "create"
	OperationDelete  Operation = "delete"
	OperationRestore Operation = "restore"
)

// Record represents a persisted backup as reported by the node daemon
// listing. Once a record is present it is the authoritative source for the
// backup's stored fields.
type Record struct {
	UUID         string     `json:"uuid"`
	Name         string     `json:"name"`
	IsSuccessful bool       `json:"is_successful"`
	IsLocked     bool       `json:"is_locked"`
	Checksum     string     `json:"checksum,omitempty"`
	Bytes        int64      `json:"bytes"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CanRetry     bool       `json:"can_retry"`
}

// StorageUsage reports how much backup storage a server consumes
type StorageUsage struct {
	UsedBytes  int64 `json:"used_bytes"`
	QuotaBytes int64 `json:"quota_bytes"`
}

// Pagination describes the page of a backup listing
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// Snapshot is one fetched page of the daemon's backup listing plus its
// metadata. The tracker holds the last successfully fetched snapshot.
type Snapshot struct {
	Items       []Record      `json:"items"`
	BackupCount int           `json:"backup_count"`
	Storage     *StorageUsage `json:"storage,omitempty"`
	Pagination  Pagination    `json:"pagination"`
}

// Contains reports whether the snapshot holds a record for the given uuid
func (s *Snapshot) Contains(uuid string) bool {
	if s == nil {
		return false
	}
	for i := range s.Items {
		if s.Items[i].UUID == uuid {
			return true
		}
	}
	return false
}

// ProgressEntry is the ephemeral, event-sourced state of an in-flight
// backup operation, keyed by backup uuid
type ProgressEntry struct {
	UUID        string    `json:"uuid"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	CanRetry    bool      `json:"can_retry"`
	LastUpdated time.Time `json:"last_updated"`
	Completed   bool      `json:"completed"`
	IsDeletion  bool      `json:"is_deletion"`
	BackupName  string    `json:"backup_name,omitempty"`
}

// Unified is the reconciled view of a backup, merging the persisted record
// with any live progress for the same uuid. Live fields win while an
// operation is in flight.
type Unified struct {
	UUID         string     `json:"uuid"`
	Name         string     `json:"name"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	Message      string     `json:"message,omitempty"`
	IsSuccessful bool       `json:"is_successful"`
	IsLocked     bool       `json:"is_locked"`
	Checksum     string     `json:"checksum,omitempty"`
	Bytes        int64      `json:"bytes"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CanRetry     bool       `json:"can_retry"`
	CanDelete    bool       `json:"can_delete"`
	CanDownload  bool       `json:"can_download"`
	CanRestore   bool       `json:"can_restore"`
	IsLiveOnly   bool       `json:"is_live_only"`
	IsDeletion   bool       `json:"is_deletion"`
}

// CreateRequest holds the options for creating a new backup
type CreateRequest struct {
	Name     string `json:"name"`
	Ignored  string `json:"ignored"`
	IsLocked bool   `json:"is_locked"`
}
