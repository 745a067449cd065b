package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/driftpanel/backend/internal/backups"
	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/middleware"
	"github.com/driftpanel/backend/internal/models"
)

type ServerHandler struct {
	manager *backups.Manager
}

func NewServerHandler(manager *backups.Manager) *ServerHandler {
	return &ServerHandler{manager: manager}
}

// List returns servers visible to the current user. Admins see every
// server, regular users only their own.
func (h *ServerHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	query := database.DB.Preload("Node").Preload("Owner")
	if user.UserType != models.UserTypeAdmin {
		query = query.Where("owner_id = ?", user.ID)
	}

	var servers []models.Server
	if err := query.Order("name asc").Find(&servers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch servers",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    servers,
	})
}

// Get returns a single server by uuid
func (h *ServerHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var server models.Server
	if err := database.DB.Preload("Node").Preload("Owner").Where("uuid = ?", c.Params("server")).First(&server).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Server not found",
		})
	}

	if user == nil || (user.UserType != models.UserTypeAdmin && server.OwnerID != user.ID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "You do not have access to this server",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    server,
	})
}

// ServerRequest represents create/update server request
type ServerRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	NodeID      uint   `json:"node_id"`
	OwnerID     uint   `json:"owner_id"`
	BackupLimit *int   `json:"backup_limit"`
}

// Create registers a new server on a node
func (h *ServerHandler) Create(c *fiber.Ctx) error {
	var req ServerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name == "" || req.NodeID == 0 || req.OwnerID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Name, node_id and owner_id are required",
		})
	}

	var node models.Node
	if err := database.DB.First(&node, req.NodeID).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Node not found",
		})
	}
	if !node.IsActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Node is not active",
		})
	}

	var owner models.User
	if err := database.DB.First(&owner, req.OwnerID).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Owner not found",
		})
	}

	server := models.Server{
		UUID:        uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Status:      models.ServerStatusInstalling,
		NodeID:      node.ID,
		OwnerID:     owner.ID,
		BackupLimit: 5,
	}
	if req.BackupLimit != nil && *req.BackupLimit >= 0 {
		server.BackupLimit = *req.BackupLimit
	}

	if err := database.DB.Create(&server).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create server",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    server,
	})
}

// Update modifies server settings
func (h *ServerHandler) Update(c *fiber.Ctx) error {
	var server models.Server
	if err := database.DB.Where("uuid = ?", c.Params("server")).First(&server).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Server not found",
		})
	}

	var req ServerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name != "" {
		server.Name = req.Name
	}
	if req.Description != "" {
		server.Description = req.Description
	}
	if req.OwnerID != 0 {
		server.OwnerID = req.OwnerID
	}
	if req.BackupLimit != nil && *req.BackupLimit >= 0 {
		server.BackupLimit = *req.BackupLimit
	}

	if err := database.DB.Save(&server).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update server",
		})
	}

	database.InvalidateServerCache(server.UUID)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    server,
	})
}

// Delete removes a server and stops tracking its backups
func (h *ServerHandler) Delete(c *fiber.Ctx) error {
	var server models.Server
	if err := database.DB.Where("uuid = ?", c.Params("server")).First(&server).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Server not found",
		})
	}

	if err := database.DB.Delete(&server).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete server",
		})
	}

	h.manager.Unregister(server.UUID)
	database.InvalidateServerCache(server.UUID)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Server deleted",
	})
}

// SetStatus changes a server's provisioning status
func (h *ServerHandler) SetStatus(c *fiber.Ctx) error {
	var req struct {
		Status models.ServerStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	switch req.Status {
	case models.ServerStatusInstalling, models.ServerStatusActive, models.ServerStatusSuspended:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid status",
		})
	}

	var server models.Server
	if err := database.DB.Where("uuid = ?", c.Params("server")).First(&server).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Server not found",
		})
	}

	server.Status = req.Status
	if err := database.DB.Save(&server).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update server status",
		})
	}

	// Suspended servers stop consuming daemon connections
	if req.Status == models.ServerStatusSuspended {
		h.manager.Unregister(server.UUID)
	}
	database.InvalidateServerCache(server.UUID)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    server,
	})
}
