package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Node represents a machine running the node daemon that hosts game servers
type Node struct {
	ID          uint   `gorm:"column:id;primaryKey" json:"id"`
	Name        string `gorm:"column:name;size:100;not null" json:"name"`
	FQDN        string `gorm:"column:fqdn;size:255;not null;uniqueIndex" json:"fqdn"`
	Port        int    `gorm:"column:port;default:8443" json:"port"`
	UseSSL      bool   `gorm:"column:use_ssl;default:true" json:"use_ssl"`
	Description string `gorm:"column:description;size:255" json:"description"`

	// Daemon API token
	Token    string `gorm:"column:token;size:255;not null" json:"-"` // Hidden from API responses for security
	HasToken bool   `gorm:"-" json:"has_token"`                      // Computed field to indicate if token is set

	// Status
	IsActive  bool           `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName specifies the table name for Node
func (Node) TableName() string {
	return "nodes"
}

// BaseURL returns the daemon HTTP base URL for this node
func (n *Node) BaseURL() string {
	scheme := "http"
	if n.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, n.FQDN, n.Port)
}
