package handlers

import (
	"bytes"
	"encoding/base64"
	"image/png"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/middleware"
	"github.com/driftpanel/backend/internal/models"
)

type TwoFAHandler struct{}

func NewTwoFAHandler() *TwoFAHandler {
	return &TwoFAHandler{}
}

// Setup generates a new 2FA secret and returns QR code
func (h *TwoFAHandler) Setup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "DriftPanel",
		AccountName: user.Username,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate 2FA secret",
		})
	}

	// Generate QR code image
	img, err := key.Image(200, 200)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate QR code",
		})
	}

	// Convert to base64
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to encode QR code",
		})
	}
	qrBase64 := base64.StdEncoding.EncodeToString(buf.Bytes())

	// Store secret temporarily (not enabled yet until verified)
	database.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("two_factor_secret", key.Secret())

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"secret":  key.Secret(),
			"qr_code": "data:image/png;base64," + qrBase64,
			"otpauth": key.URL(),
		},
	})
}

// Verify verifies the 2FA code and enables 2FA
func (h *TwoFAHandler) Verify(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Verification code is required",
		})
	}

	// Reload the user for the freshly stored secret
	var fresh models.User
	if err := database.DB.First(&fresh, user.ID).Error; err != nil || fresh.TwoFactorSecret == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "2FA setup has not been started",
		})
	}

	if !totp.Validate(req.Code, fresh.TwoFactorSecret) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid verification code",
		})
	}

	database.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("two_factor_enabled", true)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Two-factor authentication enabled",
	})
}

// Disable turns off 2FA after verifying the user's password
func (h *TwoFAHandler) Disable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Password is required",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid password",
		})
	}

	database.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"two_factor_enabled": false,
		"two_factor_secret":  "",
	})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Two-factor authentication disabled",
	})
}
