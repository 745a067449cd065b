package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/driftpanel/backend/internal/backups"
	"github.com/driftpanel/backend/internal/daemon"
	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/models"
)

// BackupSchedulerService runs scheduled backups against node daemons
type BackupSchedulerService struct {
	manager  *backups.Manager
	stopChan chan struct{}
}

// NewBackupSchedulerService creates a new backup scheduler service
func NewBackupSchedulerService(manager *backups.Manager) *BackupSchedulerService {
	return &BackupSchedulerService{
		manager:  manager,
		stopChan: make(chan struct{}),
	}
}

// Start starts the backup scheduler
func (s *BackupSchedulerService) Start() {
	log.Println("BackupSchedulerService started, checking every 1 minute")

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	// Initial check
	s.checkSchedules()

	for {
		select {
		case <-s.stopChan:
			log.Println("BackupSchedulerService stopped")
			return
		case <-ticker.C:
			s.checkSchedules()
		}
	}
}

// Stop stops the backup scheduler
func (s *BackupSchedulerService) Stop() {
	close(s.stopChan)
}

// checkSchedules checks all schedules and runs due backups
func (s *BackupSchedulerService) checkSchedules() {
	var schedules []models.BackupSchedule
	if err := database.DB.Preload("Server").Preload("Server.Node").Where("is_enabled = ?", true).Find(&schedules).Error; err != nil {
		log.Printf("BackupScheduler: Failed to load schedules: %v", err)
		return
	}

	now := time.Now()
	for i := range schedules {
		schedule := schedules[i]
		if ScheduleIsDue(&schedule, now) {
			go s.runBackup(&schedule)
		}
	}
}

// ScheduleIsDue reports whether a schedule should run at the given time,
// using a one minute window on the configured time of day
func ScheduleIsDue(schedule *models.BackupSchedule, now time.Time) bool {
	hour, minute := 2, 0 // default 02:00
	if schedule.TimeOfDay != "" {
		fmt.Sscanf(schedule.TimeOfDay, "%d:%d", &hour, &minute)
	}

	if now.Hour() != hour || now.Minute() != minute {
		return false
	}

	switch schedule.Frequency {
	case "daily":
		return true
	case "weekly":
		return int(now.Weekday()) == schedule.DayOfWeek
	case "monthly":
		return now.Day() == schedule.DayOfMonth
	}

	return false
}

// trackerFor returns the backup tracker for a schedule's server,
// registering it with the manager on first use
func (s *BackupSchedulerService) trackerFor(server *models.Server) (*backups.Tracker, error) {
	if t, ok := s.manager.Get(server.UUID); ok {
		return t, nil
	}
	if server.Node == nil {
		var node models.Node
		if err := database.DB.First(&node, server.NodeID).Error; err != nil {
			return nil, err
		}
		server.Node = &node
	}
	api := daemon.NewClient(server.Node.BaseURL(), server.Node.Token).Server(server.UUID)
	return s.manager.Register(server.UUID, api, api), nil
}

// runBackup executes one scheduled backup
func (s *BackupSchedulerService) runBackup(schedule *models.BackupSchedule) {
	startTime := time.Now()

	if schedule.Server == nil {
		log.Printf("BackupScheduler: Schedule %s has no server, skipping", schedule.Name)
		return
	}
	server := schedule.Server

	// Update status to running
	database.DB.Model(schedule).Updates(map[string]interface{}{
		"last_status": "running",
		"last_run_at": startTime,
	})

	run := models.BackupRun{
		ScheduleID:   &schedule.ID,
		ScheduleName: schedule.Name,
		ServerUUID:   server.UUID,
		Status:       "started",
		StartedAt:    startTime,
	}
	database.DB.Create(&run)

	tracker, err := s.trackerFor(server)
	if err != nil {
		s.handleBackupError(schedule, &run, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	name := fmt.Sprintf("%s %s", schedule.Name, startTime.Format("2006-01-02 15:04"))
	rec, err := tracker.Create(ctx, backups.CreateRequest{
		Name:     name,
		Ignored:  schedule.IgnoredPaths,
		IsLocked: schedule.LockBackups,
	})
	if err != nil {
		s.handleBackupError(schedule, &run, err)
		return
	}

	run.BackupUUID = rec.UUID
	run.BackupName = rec.Name
	run.Status = "success"
	database.DB.Save(&run)

	// Prune oldest unlocked backups beyond the retention count
	if schedule.Retention > 0 {
		s.pruneBackups(ctx, tracker, schedule)
	}

	nextRun := CalculateNextRun(schedule, time.Now())
	database.DB.Model(schedule).Updates(map[string]interface{}{
		"last_status": "success",
		"last_error":  "",
		"next_run_at": nextRun,
	})

	log.Printf("BackupScheduler: Backup started for %s (%s on server %s)",
		schedule.Name, rec.UUID, server.UUID)
}

// pruneBackups deletes the oldest unlocked persisted backups beyond the
// schedule's retention count. Locked and still-running backups are skipped.
func (s *BackupSchedulerService) pruneBackups(ctx context.Context, tracker *backups.Tracker, schedule *models.BackupSchedule) {
	list := tracker.Backups()

	var candidates []backups.Unified
	for _, b := range list {
		if b.IsLocked || b.IsLiveOnly || !b.CanDelete {
			continue
		}
		candidates = append(candidates, b)
	}
	if len(candidates) <= schedule.Retention {
		return
	}

	// Oldest first
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	for _, b := range candidates[:len(candidates)-schedule.Retention] {
		if err := tracker.Delete(ctx, b.UUID); err != nil {
			log.Printf("BackupScheduler: Failed to prune backup %s for %s: %v", b.UUID, schedule.Name, err)
			continue
		}
		log.Printf("BackupScheduler: Pruned old backup %s for %s", b.UUID, schedule.Name)
	}
}

// CalculateNextRun returns the next time a schedule should run after now
func CalculateNextRun(schedule *models.BackupSchedule, now time.Time) time.Time {
	hour, minute := 2, 0
	if schedule.TimeOfDay != "" {
		fmt.Sscanf(schedule.TimeOfDay, "%d:%d", &hour, &minute)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	switch schedule.Frequency {
	case "daily":
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
	case "weekly":
		daysUntil := (schedule.DayOfWeek - int(now.Weekday()) + 7) % 7
		if daysUntil == 0 && !next.After(now) {
			daysUntil = 7
		}
		next = next.AddDate(0, 0, daysUntil)
	case "monthly":
		next = time.Date(now.Year(), now.Month(), schedule.DayOfMonth, hour, minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 1, 0)
		}
	}

	return next
}

// handleBackupError records a failed scheduled backup
func (s *BackupSchedulerService) handleBackupError(schedule *models.BackupSchedule, run *models.BackupRun, err error) {
	log.Printf("BackupScheduler: Backup failed for %s: %v", schedule.Name, err)

	database.DB.Model(schedule).Updates(map[string]interface{}{
		"last_status": "failed",
		"last_error":  err.Error(),
	})

	run.Status = "failed"
	run.ErrorMessage = err.Error()
	database.DB.Save(run)
}
