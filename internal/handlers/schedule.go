package handlers

import (
	"regexp"

	"github.com/gofiber/fiber/v2"

	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/middleware"
	"github.com/driftpanel/backend/internal/models"
	"github.com/driftpanel/backend/internal/services"
)

var timeOfDayRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type ScheduleHandler struct{}

func NewScheduleHandler() *ScheduleHandler {
	return &ScheduleHandler{}
}

// serverForSchedule loads the server for the :server path param and checks
// the current user may manage it
func (h *ScheduleHandler) serverForSchedule(c *fiber.Ctx) (*models.Server, error) {
	var server models.Server
	if err := database.DB.Where("uuid = ?", c.Params("server")).First(&server).Error; err != nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Server not found",
		})
	}

	user := middleware.GetCurrentUser(c)
	if user == nil || (user.UserType != models.UserTypeAdmin && server.OwnerID != user.ID) {
		return nil, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "You do not have access to this server",
		})
	}

	return &server, nil
}

// List returns all backup schedules for a server
func (h *ScheduleHandler) List(c *fiber.Ctx) error {
	server, err := h.serverForSchedule(c)
	if server == nil {
		return err
	}

	var schedules []models.BackupSchedule
	if err := database.DB.Where("server_id = ?", server.ID).Order("id asc").Find(&schedules).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch schedules",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    schedules,
	})
}

// ScheduleRequest represents create/update schedule request
type ScheduleRequest struct {
	Name         string `json:"name"`
	IsEnabled    *bool  `json:"is_enabled"`
	Frequency    string `json:"frequency"`
	DayOfWeek    *int   `json:"day_of_week"`
	DayOfMonth   *int   `json:"day_of_month"`
	TimeOfDay    string `json:"time_of_day"`
	Retention    *int   `json:"retention"`
	IgnoredPaths string `json:"ignored_paths"`
	LockBackups  *bool  `json:"lock_backups"`
	FTPEnabled   *bool  `json:"ftp_enabled"`
	FTPHost      string `json:"ftp_host"`
	FTPPort      *int   `json:"ftp_port"`
	FTPUsername  string `json:"ftp_username"`
	FTPPassword  string `json:"ftp_password"`
	FTPPath      string `json:"ftp_path"`
	FTPTLS       *bool  `json:"ftp_tls"`
}

func validateScheduleTiming(frequency, timeOfDay string, dayOfWeek, dayOfMonth int) string {
	switch frequency {
	case "daily":
	case "weekly":
		if dayOfWeek < 0 || dayOfWeek > 6 {
			return "day_of_week must be between 0 and 6"
		}
	case "monthly":
		if dayOfMonth < 1 || dayOfMonth > 28 {
			return "day_of_month must be between 1 and 28"
		}
	default:
		return "Frequency must be daily, weekly or monthly"
	}
	if !timeOfDayRegex.MatchString(timeOfDay) {
		return "time_of_day must be HH:MM (24 hour)"
	}
	return ""
}

// Create adds a backup schedule to a server
func (h *ScheduleHandler) Create(c *fiber.Ctx) error {
	server, err := h.serverForSchedule(c)
	if server == nil {
		return err
	}

	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Name is required",
		})
	}

	schedule := models.BackupSchedule{
		ServerID:     server.ID,
		Name:         req.Name,
		IsEnabled:    true,
		Frequency:    req.Frequency,
		TimeOfDay:    "02:00",
		DayOfMonth:   1,
		Retention:    7,
		IgnoredPaths: req.IgnoredPaths,
		FTPPort:      21,
		FTPPath:      "/backups",
	}
	if req.TimeOfDay != "" {
		schedule.TimeOfDay = req.TimeOfDay
	}
	if req.DayOfWeek != nil {
		schedule.DayOfWeek = *req.DayOfWeek
	}
	if req.DayOfMonth != nil {
		schedule.DayOfMonth = *req.DayOfMonth
	}
	if req.Retention != nil && *req.Retention > 0 {
		schedule.Retention = *req.Retention
	}
	if req.LockBackups != nil {
		schedule.LockBackups = *req.LockBackups
	}
	if req.IsEnabled != nil {
		schedule.IsEnabled = *req.IsEnabled
	}
	applyFTPSettings(&schedule, &req)

	if msg := validateScheduleTiming(schedule.Frequency, schedule.TimeOfDay, schedule.DayOfWeek, schedule.DayOfMonth); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": msg,
		})
	}

	if schedule.FTPEnabled && schedule.FTPHost == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "ftp_host is required when ftp_enabled is set",
		})
	}

	if err := database.DB.Create(&schedule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create schedule",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    schedule,
	})
}

// Update modifies a backup schedule
func (h *ScheduleHandler) Update(c *fiber.Ctx) error {
	server, err := h.serverForSchedule(c)
	if server == nil {
		return err
	}

	var schedule models.BackupSchedule
	if err := database.DB.Where("id = ? AND server_id = ?", c.Params("id"), server.ID).First(&schedule).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Schedule not found",
		})
	}

	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name != "" {
		schedule.Name = req.Name
	}
	if req.Frequency != "" {
		schedule.Frequency = req.Frequency
	}
	if req.TimeOfDay != "" {
		schedule.TimeOfDay = req.TimeOfDay
	}
	if req.DayOfWeek != nil {
		schedule.DayOfWeek = *req.DayOfWeek
	}
	if req.DayOfMonth != nil {
		schedule.DayOfMonth = *req.DayOfMonth
	}
	if req.Retention != nil && *req.Retention > 0 {
		schedule.Retention = *req.Retention
	}
	if req.IgnoredPaths != "" {
		schedule.IgnoredPaths = req.IgnoredPaths
	}
	if req.LockBackups != nil {
		schedule.LockBackups = *req.LockBackups
	}
	if req.IsEnabled != nil {
		schedule.IsEnabled = *req.IsEnabled
	}
	applyFTPSettings(&schedule, &req)

	if msg := validateScheduleTiming(schedule.Frequency, schedule.TimeOfDay, schedule.DayOfWeek, schedule.DayOfMonth); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": msg,
		})
	}

	// Timing changed, let the scheduler recompute
	schedule.NextRunAt = nil

	if err := database.DB.Save(&schedule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update schedule",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    schedule,
	})
}

// Delete removes a backup schedule
func (h *ScheduleHandler) Delete(c *fiber.Ctx) error {
	server, err := h.serverForSchedule(c)
	if server == nil {
		return err
	}

	result := database.DB.Where("id = ? AND server_id = ?", c.Params("id"), server.ID).Delete(&models.BackupSchedule{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete schedule",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Schedule not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Schedule deleted",
	})
}

// Runs returns the recent backup run history for a server
func (h *ScheduleHandler) Runs(c *fiber.Ctx) error {
	server, err := h.serverForSchedule(c)
	if server == nil {
		return err
	}

	var runs []models.BackupRun
	if err := database.DB.Where("server_uuid = ?", server.UUID).Order("started_at desc").Limit(50).Find(&runs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch backup runs",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    runs,
	})
}

// TestFTP verifies the given FTP credentials before they are saved
func (h *ScheduleHandler) TestFTP(c *fiber.Ctx) error {
	var req struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		Password string `json:"password"`
		Path     string `json:"path"`
		TLS      bool   `json:"tls"`
	}
	if err := c.BodyParser(&req); err != nil || req.Host == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Host is required",
		})
	}
	if req.Port == 0 {
		req.Port = 21
	}

	if err := services.TestFTPConnection(req.Host, req.Port, req.Username, req.Password, req.Path, req.TLS); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "FTP connection successful",
	})
}

func applyFTPSettings(schedule *models.BackupSchedule, req *ScheduleRequest) {
	if req.FTPEnabled != nil {
		schedule.FTPEnabled = *req.FTPEnabled
	}
	if req.FTPHost != "" {
		schedule.FTPHost = req.FTPHost
	}
	if req.FTPPort != nil && *req.FTPPort > 0 {
		schedule.FTPPort = *req.FTPPort
	}
	if req.FTPUsername != "" {
		schedule.FTPUsername = req.FTPUsername
	}
	if req.FTPPassword != "" {
		schedule.FTPPassword = req.FTPPassword
	}
	if req.FTPPath != "" {
		schedule.FTPPath = req.FTPPath
	}
	if req.FTPTLS != nil {
		schedule.FTPTLS = *req.FTPTLS
	}
}
