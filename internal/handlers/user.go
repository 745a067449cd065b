package handlers

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/models"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// List returns all panel users
func (h *UserHandler) List(c *fiber.Ctx) error {
	var users []models.User
	if err := database.DB.Order("username asc").Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch users",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    users,
	})
}

// UserRequest represents create/update user request
type UserRequest struct {
	Username            string           `json:"username"`
	Email               string           `json:"email"`
	Password            string           `json:"password"`
	UserType            *models.UserType `json:"user_type"`
	IsActive            *bool            `json:"is_active"`
	ForcePasswordChange *bool            `json:"force_password_change"`
}

// Create adds a new panel user
func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req UserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Username and password are required",
		})
	}

	var count int64
	database.DB.Model(&models.User{}).Where("username = ?", req.Username).Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Username already exists",
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to hash password",
		})
	}

	user := models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hash),
		UserType: models.UserTypeUser,
		IsActive: true,
	}
	if req.UserType != nil {
		user.UserType = *req.UserType
	}
	if req.ForcePasswordChange != nil {
		user.ForcePasswordChange = *req.ForcePasswordChange
	}

	if err := database.DB.Create(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create user",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    user,
	})
}

// Update modifies an existing user
func (h *UserHandler) Update(c *fiber.Ctx) error {
	var user models.User
	if err := database.DB.First(&user, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	var req UserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to hash password",
			})
		}
		user.Password = string(hash)
	}
	if req.UserType != nil {
		user.UserType = *req.UserType
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.ForcePasswordChange != nil {
		user.ForcePasswordChange = *req.ForcePasswordChange
	}

	if err := database.DB.Save(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update user",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    user,
	})
}

// Delete removes a user that owns no servers
func (h *UserHandler) Delete(c *fiber.Ctx) error {
	var user models.User
	if err := database.DB.First(&user, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	var serverCount int64
	database.DB.Model(&models.Server{}).Where("owner_id = ?", user.ID).Count(&serverCount)
	if serverCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "User still owns servers",
		})
	}

	if err := database.DB.Delete(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete user",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "User deleted",
	})
}
