package models

import (
	"time"
)

// AuditAction represents the type of audit action
type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionDelete  AuditAction = "delete"
	AuditActionLogin   AuditAction = "login"
	AuditActionLogout  AuditAction = "logout"
	AuditActionRetry   AuditAction = "retry"
	AuditActionRestore AuditAction = "restore"
	AuditActionRename  AuditAction = "rename"
	AuditActionLock    AuditAction = "lock"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	UserID      uint        `gorm:"index" json:"user_id"`
	User        *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Username    string      `gorm:"size:100" json:"username"`
	UserType    UserType    `json:"user_type"`
	Action      AuditAction `gorm:"size:50;not null;index" json:"action"`
	EntityType  string      `gorm:"size:50;index" json:"entity_type"` // server, backup, node, schedule, etc.
	EntityID    string      `gorm:"size:100;index" json:"entity_id"`
	EntityName  string      `gorm:"size:100" json:"entity_name"`
	Description string      `gorm:"size:500" json:"description"`
	IPAddress   string      `gorm:"size:50" json:"ip_address"`
	UserAgent   string      `gorm:"size:255" json:"user_agent"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}
