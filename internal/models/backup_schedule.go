package models

import (
	"time"

	"gorm.io/gorm"
)

// BackupSchedule represents a scheduled backup configuration for a server
type BackupSchedule struct {
	ID        uint    `json:"id" gorm:"column:id;primaryKey"`
	ServerID  uint    `json:"server_id" gorm:"column:server_id;not null;index"`
	Server    *Server `json:"server,omitempty" gorm:"foreignKey:ServerID"`
	Name      string  `json:"name" gorm:"column:name;size:100;not null"`
	IsEnabled bool    `json:"is_enabled" gorm:"column:is_enabled;default:true"`

	Frequency  string `json:"frequency" gorm:"column:frequency;size:20;not null"`         // daily, weekly, monthly
	DayOfWeek  int    `json:"day_of_week" gorm:"column:day_of_week;default:0"`            // 0=Sunday, 1=Monday, etc. (for weekly)
	DayOfMonth int    `json:"day_of_month" gorm:"column:day_of_month;default:1"`          // 1-28 (for monthly)
	TimeOfDay  string `json:"time_of_day" gorm:"column:time_of_day;size:5;default:02:00"` // HH:MM format (24hr)
	Retention  int    `json:"retention" gorm:"column:retention;default:7"`                // Number of backups to keep

	// Backup options passed to the daemon
	IgnoredPaths string `json:"ignored_paths" gorm:"column:ignored_paths;size:1000"` // Newline-separated glob patterns
	LockBackups  bool   `json:"lock_backups" gorm:"column:lock_backups;default:false"`

	// FTP mirror settings
	FTPEnabled  bool   `json:"ftp_enabled" gorm:"column:ftp_enabled;default:false"`
	FTPHost     string `json:"ftp_host" gorm:"column:ftp_host;size:255"`
	FTPPort     int    `json:"ftp_port" gorm:"column:ftp_port;default:21"`
	FTPUsername string `json:"ftp_username" gorm:"column:ftp_username;size:100"`
	FTPPassword string `json:"ftp_password" gorm:"column:ftp_password;size:255"`
	FTPPath     string `json:"ftp_path" gorm:"column:ftp_path;size:255;default:/backups"`
	FTPTLS      bool   `json:"ftp_tls" gorm:"column:ftp_tls;default:false"`

	// Status tracking
	LastRunAt  *time.Time `json:"last_run_at" gorm:"column:last_run_at"`
	LastStatus string     `json:"last_status" gorm:"column:last_status;size:20"` // success, failed, running
	LastError  string     `json:"last_error" gorm:"column:last_error;size:500"`
	NextRunAt  *time.Time `json:"next_run_at" gorm:"column:next_run_at"`

	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"column:deleted_at;index"`
}

// BackupRun represents a backup execution log entry
type BackupRun struct {
	ID            uint      `json:"id" gorm:"column:id;primaryKey"`
	ScheduleID    *uint     `json:"schedule_id" gorm:"column:schedule_id"` // null if manual backup
	ScheduleName  string    `json:"schedule_name" gorm:"column:schedule_name;size:100"`
	ServerUUID    string    `json:"server_uuid" gorm:"column:server_uuid;size:36;index"`
	BackupUUID    string    `json:"backup_uuid" gorm:"column:backup_uuid;size:36;index"`
	BackupName    string    `json:"backup_name" gorm:"column:backup_name;size:255"`
	Status        string    `json:"status" gorm:"column:status;size:20"` // started, success, failed
	ErrorMessage  string    `json:"error_message" gorm:"column:error_message;size:500"`
	StartedAt     time.Time `json:"started_at" gorm:"column:started_at"`
	CreatedByID   *uint     `json:"created_by_id" gorm:"column:created_by_id"`
	CreatedByName string    `json:"created_by_name" gorm:"column:created_by_name;size:100"`
}

// BackupMirror tracks which backups have been copied to offsite storage
type BackupMirror struct {
	ID           uint      `json:"id" gorm:"column:id;primaryKey"`
	ServerUUID   string    `json:"server_uuid" gorm:"column:server_uuid;size:36;index"`
	BackupUUID   string    `json:"backup_uuid" gorm:"column:backup_uuid;size:36;uniqueIndex"`
	Destination  string    `json:"destination" gorm:"column:destination;size:500"` // ftp://host/path/file
	Bytes        int64     `json:"bytes" gorm:"column:bytes"`
	Status       string    `json:"status" gorm:"column:status;size:20"` // success, failed
	ErrorMessage string    `json:"error_message" gorm:"column:error_message;size:500"`
	MirroredAt   time.Time `json:"mirrored_at" gorm:"column:mirrored_at"`
}

// TableName specifies the table name for BackupSchedule
func (BackupSchedule) TableName() string {
	return "backup_schedules"
}

// TableName specifies the table name for BackupRun
func (BackupRun) TableName() string {
	return "backup_runs"
}

// TableName specifies the table name for BackupMirror
func (BackupMirror) TableName() string {
	return "backup_mirrors"
}
