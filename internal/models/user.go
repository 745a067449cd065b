package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// UserType represents the type of user
type UserType int

const (
	UserTypeUser  UserType = 1
	UserTypeAdmin UserType = 2
)

// MarshalJSON converts UserType to string for JSON
func (ut UserType) MarshalJSON() ([]byte, error) {
	var s string
	switch ut {
	case UserTypeUser:
		s = "user"
	case UserTypeAdmin:
		s = "admin"
	default:
		s = "unknown"
	}
	return json.Marshal(s)
}

// UnmarshalJSON converts string back to UserType for JSON parsing
func (ut *UserType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as integer for backward compatibility
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		*ut = UserType(i)
		return nil
	}
	switch s {
	case "admin":
		*ut = UserTypeAdmin
	default:
		*ut = UserTypeUser
	}
	return nil
}

// User represents a panel user (server owner or administrator)
type User struct {
	ID        uint           `gorm:"column:id;primaryKey" json:"id"`
	Username  string         `gorm:"column:username;uniqueIndex;size:100;not null" json:"username"`
	Password  string         `gorm:"column:password;size:255;not null" json:"-"`
	Email     string         `gorm:"column:email;size:255" json:"email"`
	FullName  string         `gorm:"column:full_name;size:255" json:"full_name"`
	UserType  UserType       `gorm:"column:user_type;default:1" json:"user_type"`
	IsActive  bool           `gorm:"column:is_active;default:true" json:"is_active"`
	LastLogin *time.Time     `gorm:"column:last_login" json:"last_login"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`

	// 2FA fields
	TwoFactorEnabled bool   `gorm:"column:two_factor_enabled;default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string `gorm:"column:two_factor_secret;size:255" json:"-"`

	// Force password change on first login
	ForcePasswordChange bool `gorm:"column:force_password_change;default:false" json:"force_password_change"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
