package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/models"
)

type AuditHandler struct{}

func NewAuditHandler() *AuditHandler {
	return &AuditHandler{}
}

// List returns audit log entries, newest first, with optional filters
func (h *AuditHandler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := c.QueryInt("per_page", 50)
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	query := database.DB.Model(&models.AuditLog{})
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if entityType := c.Query("entity_type"); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if entityID := c.Query("entity_id"); entityID != "" {
		query = query.Where("entity_id = ?", entityID)
	}
	if userID := c.QueryInt("user_id", 0); userID > 0 {
		query = query.Where("user_id = ?", userID)
	}

	var total int64
	query.Count(&total)

	var logs []models.AuditLog
	if err := query.Order("created_at desc").Offset((page - 1) * perPage).Limit(perPage).Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch audit logs",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"logs":     logs,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		},
	})
}
