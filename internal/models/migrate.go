package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate runs database migrations for all panel models
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&User{},
		&Node{},
		&Server{},
		&BackupSchedule{},
		&BackupRun{},
		&BackupMirror{},
		&AuditLog{},
	); err != nil {
		return err
	}

	log.Println("Database migrations completed")
	return nil
}
