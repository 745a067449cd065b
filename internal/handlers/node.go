package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/models"
)

type NodeHandler struct{}

func NewNodeHandler() *NodeHandler {
	return &NodeHandler{}
}

// List returns all nodes
func (h *NodeHandler) List(c *fiber.Ctx) error {
	var nodes []models.Node

	if err := database.CacheGet(database.CacheKeyNodeList, &nodes); err != nil {
		if err := database.DB.Order("name asc").Find(&nodes).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to fetch nodes",
			})
		}
		database.CacheSet(database.CacheKeyNodeList, nodes, database.CacheTTLNodes)
	}

	for i := range nodes {
		nodes[i].HasToken = nodes[i].Token != ""
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nodes,
	})
}

// Get returns a single node
func (h *NodeHandler) Get(c *fiber.Ctx) error {
	var node models.Node
	if err := database.DB.First(&node, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Node not found",
		})
	}
	node.HasToken = node.Token != ""

	return c.JSON(fiber.Map{
		"success": true,
		"data":    node,
	})
}

// NodeRequest represents create/update node request
type NodeRequest struct {
	Name        string `json:"name"`
	FQDN        string `json:"fqdn"`
	Port        int    `json:"port"`
	UseSSL      *bool  `json:"use_ssl"`
	Description string `json:"description"`
	Token       string `json:"token"`
	IsActive    *bool  `json:"is_active"`
}

// Create adds a new node
func (h *NodeHandler) Create(c *fiber.Ctx) error {
	var req NodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name == "" || req.FQDN == "" || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Name, fqdn and token are required",
		})
	}

	node := models.Node{
		Name:        req.Name,
		FQDN:        req.FQDN,
		Port:        8443,
		UseSSL:      true,
		Description: req.Description,
		Token:       req.Token,
		IsActive:    true,
	}
	if req.Port > 0 {
		node.Port = req.Port
	}
	if req.UseSSL != nil {
		node.UseSSL = *req.UseSSL
	}

	if err := database.DB.Create(&node).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create node",
		})
	}

	database.InvalidateNodeCache()
	node.HasToken = true

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    node,
	})
}

// Update modifies an existing node
func (h *NodeHandler) Update(c *fiber.Ctx) error {
	var node models.Node
	if err := database.DB.First(&node, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Node not found",
		})
	}

	var req NodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name != "" {
		node.Name = req.Name
	}
	if req.FQDN != "" {
		node.FQDN = req.FQDN
	}
	if req.Port > 0 {
		node.Port = req.Port
	}
	if req.UseSSL != nil {
		node.UseSSL = *req.UseSSL
	}
	if req.Description != "" {
		node.Description = req.Description
	}
	if req.Token != "" {
		node.Token = req.Token
	}
	if req.IsActive != nil {
		node.IsActive = *req.IsActive
	}

	if err := database.DB.Save(&node).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update node",
		})
	}

	database.InvalidateNodeCache()
	node.HasToken = node.Token != ""

	return c.JSON(fiber.Map{
		"success": true,
		"data":    node,
	})
}

// Delete removes a node that has no servers
func (h *NodeHandler) Delete(c *fiber.Ctx) error {
	var node models.Node
	if err := database.DB.First(&node, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Node not found",
		})
	}

	var serverCount int64
	database.DB.Model(&models.Server{}).Where("node_id = ?", node.ID).Count(&serverCount)
	if serverCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Node still has servers assigned",
		})
	}

	if err := database.DB.Delete(&node).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete node",
		})
	}

	database.InvalidateNodeCache()

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Node deleted",
	})
}
