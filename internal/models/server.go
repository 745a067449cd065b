package models

import (
	"time"

	"gorm.io/gorm"
)

// ServerStatus represents the provisioning status of a game server
type ServerStatus string

const (
	ServerStatusInstalling ServerStatus = "installing"
	ServerStatusActive     ServerStatus = "active"
	ServerStatusSuspended  ServerStatus = "suspended"
)

// Server represents a game server hosted on a node
type Server struct {
	ID          uint         `gorm:"column:id;primaryKey" json:"id"`
	UUID        string       `gorm:"column:uuid;size:36;not null;uniqueIndex" json:"uuid"`
	Name        string       `gorm:"column:name;size:100;not null" json:"name"`
	Description string       `gorm:"column:description;size:255" json:"description"`
	Status      ServerStatus `gorm:"column:status;size:20;default:active" json:"status"`

	// Relations
	NodeID  uint  `gorm:"column:node_id;not null;index" json:"node_id"`
	Node    *Node `gorm:"foreignKey:NodeID" json:"node,omitempty"`
	OwnerID uint  `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Owner   *User `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`

	// Backup limits
	BackupLimit int `gorm:"column:backup_limit;default:5" json:"backup_limit"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName specifies the table name for Server
func (Server) TableName() string {
	return "servers"
}
